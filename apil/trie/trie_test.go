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

package trie_test

import (
	"bytes"
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/apitrace/apitrace-sub000/apil/trie"
	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
)

var names = []string{
	"glClear",
	"glClearColor",
	"glClearDepth",
	"gl",
	"glBegin",
	"IDirect3DDevice9::Present",
	"memcpy",
}

func TestTotal(t *testing.T) {
	ctx := log.Testing(t)
	n, err := trie.Build(names)
	assert.For(ctx, "Build").ThatError(err).Succeeded()
	for i, name := range names {
		got, ok := n.Match(name)
		assert.For(ctx, "match %s", name).ThatBoolean(ok).IsTrue()
		assert.For(ctx, "index %s", name).ThatInteger(got).Equals(i)
	}
	for _, name := range []string{"", "g", "glC", "glClea", "glClearX", "glClearColorX", "memcpz", "x", "IDirect3DDevice9::"} {
		got, ok := n.Match(name)
		assert.For(ctx, "miss %q", name).ThatBoolean(ok).IsFalse()
		assert.For(ctx, "miss index %q", name).ThatInteger(got).Equals(-1)
	}
}

func TestChain(t *testing.T) {
	ctx := log.Testing(t)
	n, err := trie.Build([]string{"glBegin"})
	assert.For(ctx, "Build").ThatError(err).Succeeded()
	assert.For(ctx, "single").ThatBoolean(n.Single).IsTrue()
	assert.For(ctx, "suffix").ThatString(n.Suffix).Equals("glBegin")
	assert.For(ctx, "count").ThatInteger(n.Count()).Equals(1)

	n, err = trie.Build([]string{"ab", "ac", "a"})
	assert.For(ctx, "Build").ThatError(err).Succeeded()
	assert.For(ctx, "root branches").ThatSlice(n.Cases).IsLength(1)
	a := n.Cases[0].Next
	assert.For(ctx, "terminator").ThatInteger(a.Name).Equals(2)
	assert.For(ctx, "a branches").ThatSlice(a.Cases).IsLength(2)
	assert.For(ctx, "sorted").ThatInteger(int(a.Cases[0].Char)).Equals('b')
}

func TestEmpty(t *testing.T) {
	ctx := log.Testing(t)
	n, err := trie.Build(nil)
	assert.For(ctx, "Build").ThatError(err).Succeeded()
	_, ok := n.Match("anything")
	assert.For(ctx, "no match").ThatBoolean(ok).IsFalse()
	_, ok = n.Match("")
	assert.For(ctx, "no empty match").ThatBoolean(ok).IsFalse()
}

func TestDuplicate(t *testing.T) {
	ctx := log.Testing(t)
	_, err := trie.Build([]string{"a", "b", "a"})
	assert.For(ctx, "Build").ThatError(err).Contains("Duplicate")
}

func TestSource(t *testing.T) {
	ctx := log.Testing(t)
	src, err := trie.Source("dispatch", "lookupCall", names)
	assert.For(ctx, "Source").ThatError(err).Succeeded()
	_, err = parser.ParseFile(token.NewFileSet(), "dispatch.go", src, 0)
	assert.For(ctx, "parses").ThatError(err).Succeeded()
	text := string(src)
	assert.For(ctx, "func").ThatBoolean(strings.Contains(text, "func lookupCall(name string) int {")).IsTrue()
	assert.For(ctx, "chain").ThatBoolean(strings.Contains(text, `name[1:] == "emcpy"`)).IsTrue()
	assert.For(ctx, "switch").ThatBoolean(strings.Contains(text, "switch name[0] {")).IsTrue()

	buf := &bytes.Buffer{}
	n, _ := trie.Build([]string{"x"})
	n.Go(buf, "f")
	assert.For(ctx, "single").ThatString(buf.String()).Equals("func f(name string) int {\n\tif name[0:] == \"x\" {\n\t\treturn 0\n\t}\n\treturn -1\n}\n")
}
