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

package trie

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/tools/imports"
)

// Go writes the matcher as a Go function named fn that returns the index of
// its argument, or -1.
func (n *Node) Go(w io.Writer, fn string) {
	fmt.Fprintf(w, "func %s(name string) int {\n", fn)
	n.render(w, 1)
	fmt.Fprintf(w, "}\n")
}

func (n *Node) render(w io.Writer, depth int) {
	indent := strings.Repeat("\t", depth)
	if n.Single {
		fmt.Fprintf(w, "%sif name[%d:] == %s {\n%s\treturn %d\n%s}\n", indent, n.Depth, strconv.Quote(n.Suffix), indent, n.Name, indent)
		fmt.Fprintf(w, "%sreturn -1\n", indent)
		return
	}
	fmt.Fprintf(w, "%sif len(name) == %d {\n%s\treturn %d\n%s}\n", indent, n.Depth, indent, n.Name, indent)
	if len(n.Cases) > 0 {
		fmt.Fprintf(w, "%sswitch name[%d] {\n", indent, n.Depth)
		for _, c := range n.Cases {
			fmt.Fprintf(w, "%scase %s:\n", indent, char(c.Char))
			c.Next.render(w, depth+1)
		}
		fmt.Fprintf(w, "%s}\n", indent)
	}
	fmt.Fprintf(w, "%sreturn -1\n", indent)
}

func char(c byte) string {
	if c >= 0x20 && c < 0x7f {
		return strconv.QuoteRune(rune(c))
	}
	return fmt.Sprintf("0x%02x", c)
}

// Source returns a formatted Go file of package pkg declaring the matcher
// of names as fn, with the names listed in a comment.
func Source(pkg, fn string, names []string) ([]byte, error) {
	n, err := Build(names)
	if err != nil {
		return nil, err
	}
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "// Code generated by apitrace trie. DO NOT EDIT.\n\npackage %s\n\n", pkg)
	fmt.Fprintf(sb, "// %s returns the index of name in:\n", fn)
	for i, name := range names {
		fmt.Fprintf(sb, "//   %d: %s\n", i, name)
	}
	n.Go(sb, fn)
	return imports.Process(fn+".go", []byte(sb.String()), nil)
}
