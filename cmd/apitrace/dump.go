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
	"bufio"
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/trace/dump"
	"github.com/apitrace/apitrace-sub000/trace/stream"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

type dumpCmd struct {
	format     string
	color      string
	calls      int
	noCallNo   bool
	noArgNames bool
}

func (*dumpCmd) Name() string     { return "dump" }
func (*dumpCmd) Synopsis() string { return "Print the calls of a trace." }
func (*dumpCmd) Usage() string {
	return "dump [-format text|json|proto] [-calls n] trace\n"
}

func (c *dumpCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.format, "format", "text", "output format: text, json or proto")
	f.StringVar(&c.color, "color", "auto", "color text output: auto, always or never")
	f.IntVar(&c.calls, "calls", 0, "stop after this many calls, 0 for all")
	f.BoolVar(&c.noCallNo, "no-call-no", false, "omit call numbers")
	f.BoolVar(&c.noArgNames, "no-arg-names", false, "omit argument names")
}

func (c *dumpCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		log.E(ctx, "Expected a single trace file")
		return subcommands.ExitUsageError
	}
	opts, err := c.options()
	if err != nil {
		log.E(ctx, "%v", err)
		return subcommands.ExitUsageError
	}
	return status(ctx, c.run(ctx, f.Arg(0), opts))
}

func (c *dumpCmd) options() (dump.Options, error) {
	format, err := dump.ParseFormat(c.format)
	if err != nil {
		return dump.Options{}, err
	}
	opts := dump.Options{Format: format, Calls: c.calls}
	switch c.color {
	case "always":
		opts.Flags |= dump.Color
	case "auto":
		if terminal(os.Stdout) {
			opts.Flags |= dump.Color
		}
	case "never":
	default:
		return opts, errors.Errorf("Unknown color mode %q", c.color)
	}
	if c.noCallNo {
		opts.Flags |= dump.NoCallNo
	}
	if c.noArgNames {
		opts.Flags |= dump.NoArgNames
	}
	return opts, nil
}

func (c *dumpCmd) run(ctx context.Context, path string, opts dump.Options) error {
	in, compression, err := stream.OpenFile(path)
	if err != nil {
		return err
	}
	defer in.Close()
	ctx = log.V{"trace": path, "compression": compression}.Bind(ctx)
	p, err := wire.NewParser(ctx, bufio.NewReader(in), wire.ParserOptions{})
	if err != nil {
		return errors.Wrapf(err, "Opening %s", path)
	}
	out := bufio.NewWriter(os.Stdout)
	_, err = dump.Run(ctx, p, out, opts)
	if ferr := out.Flush(); err == nil {
		err = ferr
	}
	return err
}
