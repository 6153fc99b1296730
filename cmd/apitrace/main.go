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

// The apitrace command generates capture and replay code from API schemas
// and inspects recorded traces.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/mattn/go-isatty"

	"github.com/apitrace/apitrace-sub000/core/log"
)

var (
	style   = log.Normal
	level   = log.Info
	logFile string
)

func init() {
	if !terminal(os.Stderr) {
		style = log.Brief
	}
	flag.Var(&style, "log-style", "log output style: raw, brief, normal or detailed")
	flag.Var(&level, "log-level", "minimum logged severity: Verbose, Debug, Info, Warning, Error or Fatal")
	flag.StringVar(&logFile, "log-file", "", "also write detailed logs to this file")
}

// terminal returns true if f is an interactive terminal.
func terminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&genCmd{}, "")
	subcommands.Register(&dumpCmd{}, "")
	subcommands.Register(&trieCmd{}, "")
	flag.Parse()

	handlers := log.Broadcast(style.Handler(log.Stderr()))
	if logFile != "" {
		f, err := os.Create(logFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(int(subcommands.ExitFailure))
		}
		w := log.Lines(f)
		handlers.Listen(log.NewHandler(func(m *log.Message) {
			w(log.Detailed.Print(m), m.Severity)
		}, func() { f.Close() }))
	}
	// Generation logs from several goroutines.
	handler := log.Channel(handlers, 64)

	ctx := context.Background()
	ctx = log.PutHandler(ctx, handler)
	ctx = log.PutFilter(ctx, log.SeverityFilter(level))
	ctx = log.PutProcess(ctx, "apitrace")
	exit := subcommands.Execute(ctx)
	handler.Close()
	os.Exit(int(exit))
}

// status logs a failed command and converts err to an exit status.
func status(ctx context.Context, err error) subcommands.ExitStatus {
	if err != nil {
		log.E(ctx, "%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
