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

package golang_test

import (
	"context"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apitrace/apitrace-sub000/apil/codec/golang"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
)

func build(ctx context.Context) *schema.API {
	b := schema.NewBuilder()
	u32, i32, f32 := b.Builtin("uint32"), b.Builtin("int32"), b.Builtin("float")
	void := b.Builtin("void")
	which := b.Enum("Which", u32, schema.EnumValue{Name: "A", Value: 0}, schema.EnumValue{Name: "B", Value: 1})
	b.Bitmask("Flags", u32, schema.BitmaskFlag{Name: "F_READ", Value: 1}, schema.BitmaskFlag{Name: "F_WRITE", Value: 2})
	values := b.Struct("Values",
		schema.Member{Name: "count", Type: u32},
		schema.Member{Name: "values", Type: b.Array(f32, "count")},
	)
	obj := b.Handle("Obj", u32, "", &schema.HandleKey{Expr: "dev", Type: u32})
	list := b.Handle("List", u32, "n", nil)
	event := b.Struct("Event",
		schema.Member{Name: "kind", Type: which},
		schema.Member{Name: "data", Type: b.Polymorphic("kind", false, nil,
			schema.Case{Values: []string{"A"}, Type: u32},
			schema.Case{Values: []string{"B"}, Type: f32},
		)},
	)
	b.Function("f", void,
		&schema.Arg{Name: "v", Type: values, Input: true},
		&schema.Arg{Name: "which", Type: which, Input: true},
		&schema.Arg{Name: "dev", Type: u32, Input: true},
		&schema.Arg{Name: "h", Type: obj, Input: true},
	)
	b.Function("create", void,
		&schema.Arg{Name: "dev", Type: u32, Input: true},
		&schema.Arg{Name: "h", Type: b.Pointer(obj), Output: true},
	)
	b.Function("gen", list, &schema.Arg{Name: "n", Type: i32, Input: true})
	b.Function("draw", void,
		&schema.Arg{Name: "events", Type: b.Array(event, "2"), Input: true},
		&schema.Arg{Name: "data", Type: b.Blob(b.Builtin("uint8"), "16"), Input: true},
	)
	b.Function("attribs", void,
		&schema.Arg{Name: "list", Type: b.AttribArray(i32, "0", nil,
			schema.AttribCase{Key: "1", Type: i32},
			schema.AttribCase{Key: "2", Type: f32},
		), Input: true},
	)
	b.Function("map", b.LinearPointer(b.Builtin("uint8"), "size"), &schema.Arg{Name: "size", Type: u32, Input: true})

	base := b.Interface("IUnknown", nil)
	b.Method(base, "Release", u32)
	thing := b.Interface("IThing", base)
	b.Method(thing, "Poke", i32, &schema.Arg{Name: "x", Type: i32, Input: true})
	b.Function("open", i32, &schema.Arg{Name: "out", Type: b.Pointer(b.ObjPointer(thing)), Output: true})

	api, err := b.Finalize("test")
	assert.For(ctx, "Finalize").ThatError(err).Succeeded()
	return api
}

func TestGenerate(t *testing.T) {
	ctx := log.Testing(t)
	files, err := golang.Generate(ctx, build(ctx), "test")
	if !assert.For(ctx, "Generate").ThatError(err).Succeeded() {
		return
	}
	byName := map[string]string{}
	for _, f := range files {
		byName[f.Name] = string(f.Source)
		_, err := parser.ParseFile(token.NewFileSet(), f.Name, f.Source, parser.AllErrors)
		assert.For(ctx, "Parse %s", f.Name).ThatError(err).Succeeded()
	}
	for _, test := range []struct {
		file string
		want []string
	}{
		{"types.go", []string{
			"type Which uint32",
			"A Which = 0",
			"F_WRITE Flags = 0x2",
			"type Obj uint32",
			"type Values struct",
			"Values []float32",
			"type IThing interface",
			"Poke(x int32) int32",
		}},
		{"capture.go", []string{
			"type API interface",
			"func (c *Capture) F(v Values, which Which, dev uint32, h Obj)",
			"func (c *Capture) Open(out *IThing) int32",
			"*out = c.wrapIThing(*out)",
			"func (o *wrapIThing) Release() uint32",
			"o.Wrap.Release()",
			"func encodeValues(tr *capture.Tracer, w *wire.Writer, v Values)",
			"w.WriteEnum(tr.Sigs().Enums[0]",
			"w.WritePointer(capture.Address(ret))",
			"tr.Map(c.ctx, capture.Address(ret), ret)",
		}},
		{"replay.go", []string{
			"func Dispatch(impl API) replay.Dispatcher",
			"func replayIThingPoke(",
			"replay.ErrNilThis",
			`r.Handle(ctx, "Obj", int64(int64(dev))`,
			`r.Handles.Map("List").AddRange(`,
			`r.Handles.Map("Obj").Add(int64(int64(dev))`,
			"r.Objects.Add(ctx",
			"r.Regions.Add(ctx",
			"func decodeValues(ctx context.Context, r *replay.Replayer, val wire.Value) (v Values)",
			`errors.Errorf("No case of %s for %d"`,
			`errors.Errorf("No value type for key %d of %s"`,
		}},
		{"dispatch.go", []string{"func matchCall(name string) int"}},
	} {
		src, ok := byName[test.file]
		if !assert.For(ctx, "%s generated", test.file).That(ok).Equals(true) {
			continue
		}
		for _, want := range test.want {
			if !strings.Contains(src, want) {
				log.E(ctx, "%s does not contain %q:\n%s", test.file, want, src)
			}
		}
	}
}

func TestGenerateErrors(t *testing.T) {
	ctx := log.Testing(t)
	b := schema.NewBuilder()
	b.Function("f", b.Builtin("void"),
		&schema.Arg{Name: "n", Type: b.Builtin("uint32"), Input: true},
		&schema.Arg{Name: "v", Type: b.Array(b.Builtin("uint32"), "missing"), Input: true},
	)
	api, err := b.Finalize("bad")
	assert.For(ctx, "Finalize").ThatError(err).Succeeded()
	_, err = golang.Generate(ctx, api, "bad")
	assert.For(ctx, "Generate").ThatError(err).Contains("missing")
}

func TestGenerateTypeChecks(t *testing.T) {
	if testing.Short() {
		t.Skip("type checks the replay and capture packages from source")
	}
	ctx := log.Testing(t)
	files, err := golang.Generate(ctx, build(ctx), "test")
	if !assert.For(ctx, "Generate").ThatError(err).Succeeded() {
		return
	}
	// The generated package imports this module, so it is checked from a
	// directory inside it.
	dir, err := os.MkdirTemp(".", "generated")
	if !assert.For(ctx, "MkdirTemp").ThatError(err).Succeeded() {
		return
	}
	defer os.RemoveAll(dir)
	dir, err = filepath.Abs(dir)
	assert.For(ctx, "Abs").ThatError(err).Succeeded()
	fset := token.NewFileSet()
	parsed := []*ast.File{}
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		assert.For(ctx, "Write %s", f.Name).ThatError(os.WriteFile(path, f.Source, 0644)).Succeeded()
		file, err := parser.ParseFile(fset, path, nil, 0)
		if !assert.For(ctx, "Parse %s", f.Name).ThatError(err).Succeeded() {
			return
		}
		parsed = append(parsed, file)
	}
	conf := types.Config{Importer: importer.ForCompiler(fset, "source", nil)}
	_, err = conf.Check("test", fset, parsed, nil)
	assert.For(ctx, "Check").ThatError(err).Succeeded()
}
