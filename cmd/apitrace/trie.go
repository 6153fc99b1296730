// Copyright (C) 2017 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/apitrace/apitrace-sub000/apil/loader"
	"github.com/apitrace/apitrace-sub000/apil/trie"
	"github.com/apitrace/apitrace-sub000/core/log"
)

type trieCmd struct {
	schema string
	pkg    string
	fn     string
	out    string
}

func (*trieCmd) Name() string     { return "trie" }
func (*trieCmd) Synopsis() string { return "Generate a Go call name matcher." }
func (*trieCmd) Usage() string {
	return "trie [-schema api.yaml] [-package name] [-func name] [-out file] [name...]\n"
}

func (c *trieCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.schema, "schema", "", "match the calls of this YAML schema")
	f.StringVar(&c.pkg, "package", "main", "the generated package name")
	f.StringVar(&c.fn, "func", "match", "the generated function name")
	f.StringVar(&c.out, "out", "", "the output file, stdout when empty")
}

func (c *trieCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	names := f.Args()
	if c.schema != "" {
		api, err := loader.LoadFile(ctx, c.schema)
		if err != nil {
			return status(ctx, err)
		}
		for _, call := range api.Calls {
			names = append(names, call.Name)
		}
	}
	if len(names) == 0 {
		log.E(ctx, "No names to match")
		return subcommands.ExitUsageError
	}
	return status(ctx, c.run(ctx, names))
}

func (c *trieCmd) run(ctx context.Context, names []string) error {
	src, err := trie.Source(c.pkg, c.fn, names)
	if err != nil {
		return err
	}
	if c.out == "" {
		_, err := io.WriteString(os.Stdout, string(src))
		return err
	}
	log.D(ctx, "Writing %d names to %s", len(names), c.out)
	return os.WriteFile(c.out, src, 0644)
}
