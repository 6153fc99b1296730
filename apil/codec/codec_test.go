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

package codec_test

import (
	"context"
	"testing"

	"github.com/apitrace/apitrace-sub000/apil/codec"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
)

func generate(ctx context.Context, b *schema.Builder, mode codec.Mode) (*codec.Program, error) {
	api, err := b.Finalize("test")
	if !assert.For(ctx, "Finalize").ThatError(err).Succeeded() {
		return nil, err
	}
	return codec.Generate(ctx, api, mode)
}

func TestSharedRoutines(t *testing.T) {
	ctx := log.Testing(t)
	b := schema.NewBuilder()
	i32 := b.Builtin("int32")
	rect := b.Struct("RECT",
		schema.Member{Name: "left", Type: i32},
		schema.Member{Name: "top", Type: i32},
	)
	f := b.Function("fill", b.Builtin("void"),
		&schema.Arg{Name: "a", Type: rect},
		&schema.Arg{Name: "b", Type: b.Pointer(rect)},
	)
	prog, err := generate(ctx, b, codec.Encode)
	assert.For(ctx, "Generate").ThatError(err).Succeeded()

	c := prog.Call(f)
	a, p := c.Args[0].Instr, c.Args[1].Instr
	assert.For(ctx, "a op").That(a.Op).Equals(codec.OpCall)
	assert.For(ctx, "a name").ThatString(a.Name).Equals("a")
	assert.For(ctx, "b op").That(p.Op).Equals(codec.OpPointer)
	assert.For(ctx, "shared").That(p.Elem.Routine).Equals(a.Routine)
	assert.For(ctx, "routines").ThatSlice(prog.Routines).IsLength(1)
	r := prog.Routines[0]
	assert.For(ctx, "routine name").ThatString(r.Name).Equals("encodeRECT")
	assert.For(ctx, "body").That(r.Body.Op).Equals(codec.OpStruct)
	assert.For(ctx, "members").ThatSlice(r.Body.Members).IsLength(2)
	assert.For(ctx, "member name").ThatString(r.Body.Members[1].Name).Equals("top")
	assert.For(ctx, "sig").ThatString(c.Sig.Name).Equals("fill")
	assert.For(ctx, "sig args").ThatSlice(c.Sig.ArgNames).Equals([]string{"a", "b"})
}

func TestInlineStruct(t *testing.T) {
	ctx := log.Testing(t)
	b := schema.NewBuilder()
	u32 := b.Builtin("uint32")
	data := b.Struct("Data", schema.Member{Name: "bytes", Type: b.Blob(b.Builtin("uint8"), "size")})
	f := b.Function("upload", b.Builtin("void"),
		&schema.Arg{Name: "size", Type: u32},
		&schema.Arg{Name: "data", Type: data},
	)
	prog, err := generate(ctx, b, codec.Encode)
	assert.For(ctx, "Generate").ThatError(err).Succeeded()
	in := prog.Call(f).Args[1].Instr
	assert.For(ctx, "op").That(in.Op).Equals(codec.OpStruct)
	assert.For(ctx, "size").ThatString(in.Members[0].Expr.String()).Equals("size")
	assert.For(ctx, "routines").ThatSlice(prog.Routines).IsEmpty()
}

func TestSelfReferential(t *testing.T) {
	ctx := log.Testing(t)
	b := schema.NewBuilder()
	node := b.Struct("Node")
	inner := b.Struct("Inner", schema.Member{Name: "parent", Type: b.Pointer(node)})
	node.Members = []schema.Member{
		{Name: "value", Type: b.Builtin("int32")},
		{Name: "next", Type: b.Pointer(node)},
		{Name: "inner", Type: inner},
	}
	f := b.Function("walk", b.Builtin("void"), &schema.Arg{Name: "head", Type: b.Pointer(node)})
	prog, err := generate(ctx, b, codec.Decode)
	assert.For(ctx, "Generate").ThatError(err).Succeeded()

	head := prog.Call(f).Args[0].Instr
	r := head.Elem.Routine
	assert.For(ctx, "routine").That(r).IsNotNil()
	assert.For(ctx, "name").ThatString(r.Name).Equals("decodeNode")
	assert.For(ctx, "recursion").That(r.Body.Members[1].Elem.Routine).Equals(r)
	assert.For(ctx, "routines").ThatSlice(prog.Routines).IsLength(2)
	assert.For(ctx, "callee first").ThatString(prog.Routines[0].Name).Equals("decodeInner")
	assert.For(ctx, "caller last").ThatString(prog.Routines[1].Name).Equals("decodeNode")
}

func TestUnions(t *testing.T) {
	ctx := log.Testing(t)
	b := schema.NewBuilder()
	u32 := b.Builtin("uint32")
	kind := b.Enum("Kind", u32,
		schema.EnumValue{Name: "KIND_INT", Value: 0},
		schema.EnumValue{Name: "KIND_FLOAT", Value: 1},
	)
	free := b.Polymorphic("kind", true, nil,
		schema.Case{Values: []string{"KIND_INT"}, Type: u32},
		schema.Case{Values: []string{"KIND_FLOAT"}, Type: b.Builtin("float")},
	)
	bound := b.Polymorphic("kind", false, u32,
		schema.Case{Values: []string{"KIND_FLOAT"}, Type: b.Builtin("float")},
	)
	f := b.Function("set", b.Builtin("void"),
		&schema.Arg{Name: "kind", Type: kind},
		&schema.Arg{Name: "free", Type: free},
		&schema.Arg{Name: "bound", Type: bound},
	)
	prog, err := generate(ctx, b, codec.Encode)
	assert.For(ctx, "Generate").ThatError(err).Succeeded()

	c := prog.Call(f)
	call := c.Args[1].Instr
	assert.For(ctx, "free op").That(call.Op).Equals(codec.OpCall)
	assert.For(ctx, "selector").ThatBoolean(call.Routine.Selector).IsTrue()
	assert.For(ctx, "selector expr").ThatString(call.Expr.String()).Equals("kind")
	assert.For(ctx, "routine body").That(call.Routine.Body.Op).Equals(codec.OpSwitch)
	assert.For(ctx, "cases").ThatSlice(call.Routine.Body.Cases).IsLength(2)

	sw := c.Args[2].Instr
	assert.For(ctx, "bound op").That(sw.Op).Equals(codec.OpSwitch)
	assert.For(ctx, "bound expr").ThatString(sw.Expr.String()).Equals("kind")
	assert.For(ctx, "default").That(sw.Default.Op).Equals(codec.OpUInt)
}

func TestDegraded(t *testing.T) {
	ctx := log.Testing(t)
	b := schema.NewBuilder()
	void := b.Builtin("void")
	in := b.Function("in", void, &schema.Arg{Name: "p", Type: b.Opaque("HWND")})
	out := b.Function("out", void, &schema.Arg{Name: "p", Type: b.Pointer(b.Opaque("HWND")), Output: true})
	api, err := b.Finalize("test")
	assert.For(ctx, "Finalize").ThatError(err).Succeeded()

	enc, err := codec.Generate(ctx, api, codec.Encode)
	assert.For(ctx, "Generate encode").ThatError(err).Succeeded()
	assert.For(ctx, "encode op").That(enc.Call(in).Args[0].Instr.Op).Equals(codec.OpOpaque)
	assert.For(ctx, "encode degraded").ThatBoolean(enc.Call(in).Degraded).IsFalse()

	dec, err := codec.Generate(ctx, api, codec.Decode)
	assert.For(ctx, "Generate decode").ThatError(err).Succeeded()
	assert.For(ctx, "decode op").That(dec.Call(in).Args[0].Instr.Op).Equals(codec.OpUnsupported)
	assert.For(ctx, "input degraded").ThatBoolean(dec.Call(in).Degraded).IsTrue()
	assert.For(ctx, "output only").ThatBoolean(dec.Call(out).Degraded).IsFalse()
	assert.For(ctx, "pointee").That(dec.Call(out).Args[0].Instr.Elem.Op).Equals(codec.OpUnsupported)
}

func TestAlloc(t *testing.T) {
	ctx := log.Testing(t)
	b := schema.NewBuilder()
	u32 := b.Builtin("uint32")
	f := b.Function("read", u32,
		&schema.Arg{Name: "n", Type: u32},
		&schema.Arg{Name: "buf", Type: b.Array(b.Const(u32), "n"), Output: true},
		&schema.Arg{Name: "name", Type: b.Builtin("string")},
	)
	prog, err := generate(ctx, b, codec.Decode)
	assert.For(ctx, "Generate").ThatError(err).Succeeded()
	c := prog.Call(f)
	assert.For(ctx, "alloc").ThatSlice(c.Alloc).IsLength(2)
	assert.For(ctx, "alloc buf").ThatString(c.Alloc[0].Name).Equals("buf")
	assert.For(ctx, "alloc op").That(c.Alloc[0].Op).Equals(codec.OpAlloc)
	arr, ok := c.Alloc[0].Type.(*schema.Array)
	assert.For(ctx, "storage array").ThatBoolean(ok).IsTrue()
	if ok {
		_, isConst := arr.Type.(*schema.Const)
		assert.For(ctx, "storage mutable").ThatBoolean(isConst).IsFalse()
	}
	assert.For(ctx, "alloc name").ThatString(c.Alloc[1].Name).Equals("name")
	assert.For(ctx, "ret").That(c.Ret.Op).Equals(codec.OpUInt)

	enc, err := codec.Generate(ctx, prog.API, codec.Encode)
	assert.For(ctx, "Generate encode").ThatError(err).Succeeded()
	assert.For(ctx, "encode alloc").ThatSlice(enc.Call(f).Alloc).IsEmpty()
}

func TestSchemaErrors(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name    string
		arg     func(b *schema.Builder) schema.Type
		message string
	}{
		{"array without length", func(b *schema.Builder) schema.Type {
			return b.Array(b.Builtin("int32"), "")
		}, "has no length"},
		{"blob without size", func(b *schema.Builder) schema.Type {
			return b.Blob(b.Builtin("uint8"), "")
		}, "has no size"},
		{"interface value", func(b *schema.Builder) schema.Type {
			return b.Interface("IUnknown", nil)
		}, "cannot be used as a value"},
		{"bad expression", func(b *schema.Builder) schema.Type {
			return b.Array(b.Builtin("int32"), "n +")
		}, "Array"},
		{"float handle", func(b *schema.Builder) schema.Type {
			return b.Handle("H", b.Builtin("float"), "", nil)
		}, "not a scalar handle"},
	} {
		b := schema.NewBuilder()
		f := b.Function("broken", b.Builtin("void"), &schema.Arg{Name: "x", Type: test.arg(b)})
		_, err := generate(ctx, b, codec.Encode)
		assert.For(ctx, test.name).ThatError(err).Contains(test.message)
		assert.For(ctx, test.name+" tag").ThatError(err).Contains(f.Tag())
	}
}

func TestUnsupportedVoid(t *testing.T) {
	ctx := log.Testing(t)
	b := schema.NewBuilder()
	f := b.Function("odd", b.Builtin("void"), &schema.Arg{Name: "x", Type: b.Pointer(b.Builtin("void"))})
	prog, err := generate(ctx, b, codec.Encode)
	assert.For(ctx, "Generate").ThatError(err).Succeeded()
	assert.For(ctx, "pointee").That(prog.Call(f).Args[0].Instr.Elem.Op).Equals(codec.OpNull)
	assert.For(ctx, "void return").That(prog.Call(f).Ret).IsNil()
}
