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

package interp

import (
	"context"

	"github.com/apitrace/apitrace-sub000/apil/codec"
	"github.com/apitrace/apitrace-sub000/apil/expr"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

// Addresser is implemented by live objects that know their own address.
type Addresser interface {
	Address() uint64
}

// Encoder writes calls using an encode program.
type Encoder struct {
	prog *codec.Program
	w    *wire.Writer
	root expr.Scope
	// AddressOf returns the address recorded for a live object. The default
	// accepts Addresser implementations and raw addresses.
	AddressOf func(obj any) uint64
}

// NewEncoder returns an Encoder of prog writing to w.
func NewEncoder(prog *codec.Program, w *wire.Writer) *Encoder {
	return &Encoder{
		prog:      prog,
		w:         w,
		root:      expr.Constants(prog.API.Constants),
		AddressOf: DefaultAddress,
	}
}

// DefaultAddress returns the address of an Addresser, or obj itself if it is
// an integer.
func DefaultAddress(obj any) uint64 {
	if a, ok := obj.(Addresser); ok {
		return a.Address()
	}
	v, _ := toUint(obj)
	return v
}

// Enter writes the ENTER event of f with the input arguments from args and
// returns the call number.
func (e *Encoder) Enter(ctx context.Context, f *schema.Function, args map[string]any, thread uint64) uint64 {
	c := e.prog.Call(f)
	no := e.w.BeginEnter(e.prog.Sigs.Call(f), thread)
	if c != nil {
		s := &frame{fields: args, parent: e.root}
		for _, a := range c.Args {
			if a.Input {
				e.w.BeginArg(a.Index)
				e.encode(ctx, a.Instr, args[a.Name], s, 0)
			}
		}
	}
	e.w.EndEnter()
	return no
}

// Leave writes the LEAVE event of call no with the output arguments from
// args and the return value.
func (e *Encoder) Leave(ctx context.Context, no uint64, f *schema.Function, args map[string]any, ret any) {
	c := e.prog.Call(f)
	e.w.BeginLeave(no)
	if c != nil {
		s := &frame{fields: args, parent: e.root}
		for _, a := range c.Args {
			if a.Output {
				e.w.BeginArg(a.Index)
				e.encode(ctx, a.Instr, args[a.Name], s, 0)
			}
		}
		if c.Ret != nil {
			e.w.BeginReturn()
			e.encode(ctx, c.Ret, ret, s, 0)
		}
	}
	e.w.EndLeave()
}

// Encode writes a whole call.
func (e *Encoder) Encode(ctx context.Context, f *schema.Function, args map[string]any, ret any) uint64 {
	no := e.Enter(ctx, f, args, 0)
	e.Leave(ctx, no, f, args, ret)
	return no
}

func (e *Encoder) mismatch(ctx context.Context, in *codec.Instr, v any) {
	log.W(ctx, "Cannot encode %T as %v %s", v, in.Op, in.Type.Tag())
	e.w.WriteNull()
}

// count evaluates a length or size, defaulting to the available length.
func (e *Encoder) count(ctx context.Context, in *codec.Instr, s expr.Scope, available int) int {
	if in.Expr == nil {
		return available
	}
	n, err := in.Expr.Eval(s)
	if err != nil {
		log.W(ctx, "Using length %d for %s: %v", available, in.Type.Tag(), err)
		return available
	}
	if n > int64(available) {
		log.W(ctx, "Length %d of %s exceeds the %d available", n, in.Type.Tag(), available)
	}
	return clamp(n, available)
}

func (e *Encoder) encode(ctx context.Context, in *codec.Instr, v any, s expr.Scope, sel int64) {
	if v == nil {
		switch in.Op {
		case codec.OpBool, codec.OpSInt, codec.OpUInt, codec.OpFloat, codec.OpDouble,
			codec.OpEnum, codec.OpBitmask, codec.OpHandle:
		default:
			e.w.WriteNull()
			return
		}
	}
	switch in.Op {
	case codec.OpNull, codec.OpUnsupported:
		e.w.WriteNull()
	case codec.OpBool:
		b, ok := v.(bool)
		if !ok {
			n, isInt := toInt(v)
			if !isInt {
				e.mismatch(ctx, in, v)
				return
			}
			b = n != 0
		}
		e.w.WriteBool(b)
	case codec.OpSInt:
		n, ok := toInt(v)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		e.w.WriteSInt(n)
	case codec.OpUInt:
		n, ok := toUint(v)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		e.w.WriteUInt(n)
	case codec.OpFloat:
		f, ok := toFloat(v)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		e.w.WriteFloat(float32(f))
	case codec.OpDouble:
		f, ok := toFloat(v)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		e.w.WriteDouble(f)
	case codec.OpString, codec.OpWString:
		str, ok := v.(string)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		if in.Op == codec.OpWString {
			runes := []rune(str)
			e.w.WriteWString(runes[:e.count(ctx, in, s, len(runes))])
		} else {
			e.w.WriteString(str[:e.count(ctx, in, s, len(str))])
		}
	case codec.OpBlob:
		b, ok := v.([]byte)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		e.w.WriteBlob(b[:e.count(ctx, in, s, len(b))])
	case codec.OpEnum:
		n, ok := toInt(v)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		e.w.WriteEnum(e.prog.Sigs.Enum(in.Type.(*schema.Enum)), n)
	case codec.OpBitmask:
		n, ok := toUint(v)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		e.w.WriteBitmask(e.prog.Sigs.Bitmask(in.Type.(*schema.Bitmask)), n)
	case codec.OpArray:
		elems, ok := elements(v)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		n := e.count(ctx, in, s, len(elems))
		e.w.BeginArray(n)
		for _, el := range elems[:n] {
			e.encode(ctx, in.Elem, el, s, 0)
		}
		e.w.EndArray()
	case codec.OpStruct:
		fields, ok := v.(map[string]any)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		child := &frame{fields: fields, parent: s}
		e.w.BeginStruct(e.prog.Sigs.Struct(in.Type.(*schema.Struct)))
		for _, m := range in.Members {
			e.encode(ctx, m, fields[m.Name], child, 0)
		}
		e.w.EndStruct()
	case codec.OpPointer:
		e.w.BeginArray(1)
		e.encode(ctx, in.Elem, v, s, 0)
		e.w.EndArray()
	case codec.OpOpaque, codec.OpRegion, codec.OpIntPointer:
		addr, ok := toUint(v)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		e.w.WritePointer(addr)
	case codec.OpHandle:
		e.encode(ctx, in.Elem, v, s, 0)
	case codec.OpObject:
		e.w.WritePointer(e.AddressOf(v))
	case codec.OpSwitch:
		if in.Expr != nil {
			n, err := in.Expr.Eval(s)
			if err != nil {
				log.W(ctx, "Selecting %s: %v", in.Type.Tag(), err)
				e.w.WriteNull()
				return
			}
			sel = n
		}
		arm, err := selected(in, sel, s)
		if err != nil || arm == nil {
			log.W(ctx, "No case of %s for %d", in.Type.Tag(), sel)
			e.w.WriteNull()
			return
		}
		e.encode(ctx, arm, v, s, 0)
	case codec.OpCall:
		if in.Routine.Selector {
			n, err := in.Expr.Eval(s)
			if err != nil {
				log.W(ctx, "Selecting %s: %v", in.Type.Tag(), err)
				e.w.WriteNull()
				return
			}
			sel = n
		}
		e.encode(ctx, in.Routine.Body, v, e.root, sel)
	case codec.OpAttribs:
		pairs, ok := v.([]AttribPair)
		if !ok {
			e.mismatch(ctx, in, v)
			return
		}
		term, err := in.Expr.Eval(s)
		if err != nil {
			log.W(ctx, "Terminating %s: %v", in.Type.Tag(), err)
			e.w.WriteNull()
			return
		}
		e.w.BeginArray(len(pairs)*2 + 1)
		for _, p := range pairs {
			e.encode(ctx, in.Elem, p.Key, s, 0)
			arm, err := selected(in, p.Key, s)
			if err != nil || arm == nil {
				log.W(ctx, "No value type for key %d of %s", p.Key, in.Type.Tag())
				e.w.WriteNull()
				continue
			}
			e.encode(ctx, arm, p.Value, s, 0)
		}
		e.encode(ctx, in.Elem, term, s, 0)
		e.w.EndArray()
	default:
		e.mismatch(ctx, in, v)
	}
}
