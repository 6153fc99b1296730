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
	"os"
	"path/filepath"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/apitrace/apitrace-sub000/apil/codec/golang"
	"github.com/apitrace/apitrace-sub000/apil/loader"
	"github.com/apitrace/apitrace-sub000/core/log"
)

type genCmd struct {
	schema string
	pkg    string
	out    string
}

func (*genCmd) Name() string     { return "gen" }
func (*genCmd) Synopsis() string { return "Generate Go capture and replay code from a schema." }
func (*genCmd) Usage() string {
	return "gen -schema api.yaml [-package name] [-out dir]\n"
}

func (c *genCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.schema, "schema", "", "the YAML schema to generate from")
	f.StringVar(&c.pkg, "package", "", "the generated package name, defaults to the schema name")
	f.StringVar(&c.out, "out", ".", "the output directory")
}

func (c *genCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.schema == "" {
		log.E(ctx, "Missing -schema")
		return subcommands.ExitUsageError
	}
	return status(ctx, c.run(ctx))
}

func (c *genCmd) run(ctx context.Context) error {
	api, err := loader.LoadFile(ctx, c.schema)
	if err != nil {
		return err
	}
	pkg := c.pkg
	if pkg == "" {
		pkg = api.Name
	}
	files, err := golang.Generate(ctx, api, pkg)
	if err != nil {
		return errors.Wrapf(err, "Generating %s", api.Name)
	}
	if err := os.MkdirAll(c.out, 0755); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path := filepath.Join(c.out, file.Name)
			if err := os.WriteFile(path, file.Source, 0644); err != nil {
				return errors.Wrapf(err, "Writing %s", path)
			}
			log.D(ctx, "Wrote %s", path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.I(ctx, "Generated %d files for %s in %s", len(files), api.Name, c.out)
	return nil
}
