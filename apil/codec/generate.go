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

package codec

import (
	"context"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/apil/expr"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/apil/walk"
	"github.com/apitrace/apitrace-sub000/core/log"
)

// Generate derives the program of api for the given mode.
//
// Descriptors the mode has no rule for are substituted rather than failing:
// decode programs zero the value and mark the call degraded, encode programs
// write a null. Descriptors that can never be values, and malformed
// expressions, are schema errors that stop generation.
func Generate(ctx context.Context, api *schema.API, mode Mode) (*Program, error) {
	g := &generator{
		ctx:       ctx,
		mode:      mode,
		constants: expr.Constants(api.Constants),
		routines:  map[int]*Routine{},
		free:      map[int]map[string]bool{},
		prog:      &Program{Mode: mode, API: api, Sigs: Signatures(api)},
	}
	for _, f := range api.Calls {
		if f.Fake {
			g.prog.Calls = append(g.prog.Calls, nil)
			continue
		}
		c, err := g.call(f)
		if err != nil {
			return nil, errors.Wrapf(err, "Generating %s of %s (%s)", mode, f.Name, f.Tag())
		}
		g.prog.Calls = append(g.prog.Calls, c)
	}
	log.D(ctx, "Generated %s program: %d calls, %d routines", mode, len(g.prog.Calls), len(g.prog.Routines))
	return g.prog, nil
}

type generator struct {
	walk.Unsupported[*Instr]
	ctx       context.Context
	mode      Mode
	constants expr.Constants
	routines  map[int]*Routine
	free      map[int]map[string]bool
	prog      *Program
}

func (g *generator) call(f *schema.Function) (*Call, error) {
	c := &Call{Func: f, Sig: g.prog.Sigs.Call(f)}
	for _, a := range f.Args {
		in, err := g.instr(a.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "Argument %s", a.Name)
		}
		in.Name = a.Name
		c.Args = append(c.Args, &Arg{Index: a.Index, Name: a.Name, Input: a.Input, Output: a.Output, Instr: in})
		if g.mode != Decode {
			continue
		}
		if a.Input && Reaches(in, func(i *Instr) bool { return i.Op == OpUnsupported }) {
			c.Degraded = true
		}
		if needsStorage(in) {
			storage, err := walk.Mutable(g.prog.API.Builder(), a.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "Argument %s", a.Name)
			}
			c.Alloc = append(c.Alloc, &Instr{Op: OpAlloc, Type: storage, Name: a.Name, Elem: in})
		}
	}
	if _, void := schema.Underlying(f.Return).(*schema.Void); !void {
		ret, err := g.instr(f.Return)
		if err != nil {
			return nil, errors.Wrap(err, "Return value")
		}
		c.Ret = ret
	}
	return c, nil
}

func needsStorage(i *Instr) bool {
	switch i.Op {
	case OpArray, OpBlob, OpPointer, OpStruct, OpAttribs, OpSwitch, OpCall, OpString, OpWString:
		return true
	}
	return false
}

// instr returns the instruction for t, substituting the fallback when the
// mode has no rule for it.
func (g *generator) instr(t schema.Type) (*Instr, error) {
	i, err := walk.Visit[*Instr](g, t)
	if errors.Cause(err) != schema.ErrUnsupported {
		return i, err
	}
	log.D(g.ctx, "No %s rule for %v", g.mode, schema.Describe(t))
	if g.mode == Decode {
		return &Instr{Op: OpUnsupported, Type: t}, nil
	}
	return &Instr{Op: OpNull, Type: t}, nil
}

// parse parses an expression of t. An empty source gives nil.
func (g *generator) parse(src string, t schema.Type) (*expr.Expr, error) {
	if src == "" {
		return nil, nil
	}
	e, err := expr.Parse(src)
	if err != nil {
		return nil, errors.Wrapf(err, "In %s", schema.Describe(t))
	}
	return e, nil
}

func (g *generator) required(src string, what string, t schema.Type) (*expr.Expr, error) {
	if src == "" {
		return nil, errors.Errorf("%s has no %s", schema.Describe(t), what)
	}
	return g.parse(src, t)
}

func (g *generator) VisitLiteral(t *schema.Literal) (*Instr, error) {
	ops := map[schema.LiteralKind]Op{
		schema.Bool:   OpBool,
		schema.SInt:   OpSInt,
		schema.UInt:   OpUInt,
		schema.Float:  OpFloat,
		schema.Double: OpDouble,
	}
	op, ok := ops[t.Kind]
	if !ok {
		return nil, errors.Errorf("%s has unknown kind %v", schema.Describe(t), t.Kind)
	}
	return &Instr{Op: op, Type: t}, nil
}

func (g *generator) VisitString(t *schema.String) (*Instr, error) {
	length, err := g.parse(t.Length, t)
	if err != nil {
		return nil, err
	}
	op := OpString
	if t.Wide {
		op = OpWString
	}
	return &Instr{Op: op, Type: t, Expr: length}, nil
}

func (g *generator) VisitPointer(t *schema.Pointer) (*Instr, error) {
	elem, err := g.instr(t.Type)
	if err != nil {
		return nil, err
	}
	return &Instr{Op: OpPointer, Type: t, Elem: elem}, nil
}

func (g *generator) VisitObjPointer(t *schema.ObjPointer) (*Instr, error) {
	return &Instr{Op: OpObject, Type: t}, nil
}

func (g *generator) VisitLinearPointer(t *schema.LinearPointer) (*Instr, error) {
	size, err := g.required(t.Size, "size", t)
	if err != nil {
		return nil, err
	}
	return &Instr{Op: OpRegion, Type: t, Expr: size}, nil
}

func (g *generator) VisitIntPointer(t *schema.IntPointer) (*Instr, error) {
	return &Instr{Op: OpIntPointer, Type: t}, nil
}

func (g *generator) VisitHandle(t *schema.Handle) (*Instr, error) {
	elem, err := g.instr(t.Type)
	if err != nil {
		return nil, err
	}
	switch elem.Op {
	case OpSInt, OpUInt, OpEnum, OpIntPointer:
	default:
		return nil, errors.Errorf("%s is not a scalar handle", schema.Describe(t))
	}
	rng, err := g.parse(t.Range, t)
	if err != nil {
		return nil, err
	}
	out := &Instr{Op: OpHandle, Type: t, Elem: elem, Expr: rng}
	if t.Key != nil {
		if out.Key, err = g.required(t.Key.Expr, "key expression", t); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *generator) VisitEnum(t *schema.Enum) (*Instr, error) {
	return &Instr{Op: OpEnum, Type: t}, nil
}

func (g *generator) VisitBitmask(t *schema.Bitmask) (*Instr, error) {
	return &Instr{Op: OpBitmask, Type: t}, nil
}

func (g *generator) VisitArray(t *schema.Array) (*Instr, error) {
	length, err := g.required(t.Length, "length", t)
	if err != nil {
		return nil, err
	}
	elem, err := g.instr(t.Type)
	if err != nil {
		return nil, err
	}
	return &Instr{Op: OpArray, Type: t, Expr: length, Elem: elem}, nil
}

func (g *generator) VisitAttribArray(t *schema.AttribArray) (*Instr, error) {
	term, err := g.required(t.Terminator, "terminator", t)
	if err != nil {
		return nil, err
	}
	key, err := g.instr(t.Key)
	if err != nil {
		return nil, err
	}
	out := &Instr{Op: OpAttribs, Type: t, Expr: term, Elem: key}
	for _, c := range t.Cases {
		v, err := g.required(c.Key, "case key", t)
		if err != nil {
			return nil, err
		}
		body, err := g.instr(c.Type)
		if err != nil {
			return nil, err
		}
		out.Cases = append(out.Cases, &Case{Values: []*expr.Expr{v}, Body: body})
	}
	if t.Default != nil {
		if out.Default, err = g.instr(t.Default); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (g *generator) VisitBlob(t *schema.Blob) (*Instr, error) {
	size, err := g.required(t.Size, "size", t)
	if err != nil {
		return nil, err
	}
	return &Instr{Op: OpBlob, Type: t, Expr: size}, nil
}

func (g *generator) VisitStruct(t *schema.Struct) (*Instr, error) {
	if !g.selfContained(t) {
		return g.structBody(t)
	}
	r, err := g.routine(t, false, func() (*Instr, error) { return g.structBody(t) })
	if err != nil {
		return nil, err
	}
	return &Instr{Op: OpCall, Type: t, Routine: r}, nil
}

func (g *generator) structBody(t *schema.Struct) (*Instr, error) {
	out := &Instr{Op: OpStruct, Type: t}
	for _, m := range t.Members {
		in, err := g.instr(m.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "Member %s of %s", m.Name, t.Name)
		}
		in.Name = m.Name
		out.Members = append(out.Members, in)
	}
	return out, nil
}

func (g *generator) VisitPolymorphic(t *schema.Polymorphic) (*Instr, error) {
	sel, err := g.required(t.Switch, "switch", t)
	if err != nil {
		return nil, err
	}
	if !t.ContextFree {
		body, err := g.switchBody(t)
		if err != nil {
			return nil, err
		}
		body.Expr = sel
		return body, nil
	}
	r, err := g.routine(t, true, func() (*Instr, error) { return g.switchBody(t) })
	if err != nil {
		return nil, err
	}
	return &Instr{Op: OpCall, Type: t, Expr: sel, Routine: r}, nil
}

func (g *generator) switchBody(t *schema.Polymorphic) (*Instr, error) {
	out := &Instr{Op: OpSwitch, Type: t}
	for _, c := range t.Cases {
		arm := &Case{}
		for _, v := range c.Values {
			e, err := g.parse(v, t)
			if err != nil {
				return nil, err
			}
			arm.Values = append(arm.Values, e)
		}
		body, err := g.instr(c.Type)
		if err != nil {
			return nil, err
		}
		arm.Body = body
		out.Cases = append(out.Cases, arm)
	}
	if t.Default != nil {
		def, err := g.instr(t.Default)
		if err != nil {
			return nil, err
		}
		out.Default = def
	}
	return out, nil
}

// routine returns the shared routine of t, building its body on first use.
// The routine is registered before its body is built so self referential
// types call themselves. Routines are listed after the routines they call.
func (g *generator) routine(t schema.Type, selector bool, body func() (*Instr, error)) (*Routine, error) {
	if r, ok := g.routines[t.Index()]; ok {
		return r, nil
	}
	r := &Routine{Name: g.mode.String() + t.Tag(), Type: t, Selector: selector}
	g.routines[t.Index()] = r
	b, err := body()
	if err != nil {
		return nil, err
	}
	r.Body = b
	g.prog.Routines = append(g.prog.Routines, r)
	return r, nil
}

func (g *generator) VisitOpaque(t *schema.Opaque) (*Instr, error) {
	if g.mode == Decode {
		return g.Unsupported.VisitOpaque(t)
	}
	return &Instr{Op: OpOpaque, Type: t}, nil
}

func notValue(t schema.Type) (*Instr, error) {
	return nil, errors.Errorf("%s cannot be used as a value", schema.Describe(t))
}

func (g *generator) VisitInterface(t *schema.Interface) (*Instr, error) { return notValue(t) }
func (g *generator) VisitFunction(t *schema.Function) (*Instr, error)   { return notValue(t) }
func (g *generator) VisitModule(t *schema.Module) (*Instr, error)       { return notValue(t) }
func (g *generator) VisitAPI(t *schema.API) (*Instr, error)             { return notValue(t) }

// selfContained returns true if every expression under t only refers to
// members of t, of the structures nested in it, or to constants. Such
// structures are coded by a shared routine, the others inline at each use.
func (g *generator) selfContained(t *schema.Struct) bool {
	for name := range g.freeIdents(t) {
		if _, ok := g.constants[name]; !ok {
			return false
		}
	}
	return true
}

func (g *generator) freeIdents(t *schema.Struct) map[string]bool {
	if f, ok := g.free[t.Index()]; ok {
		return f
	}
	g.free[t.Index()] = map[string]bool{} // cycles contribute nothing
	out := map[string]bool{}
	collect := func(srcs ...string) {
		for _, src := range srcs {
			if e, err := expr.Parse(src); err == nil {
				for _, id := range e.Idents() {
					out[id] = true
				}
			}
		}
	}
	var visit func(t schema.Type)
	visit = func(t schema.Type) {
		switch t := t.(type) {
		case *schema.Struct:
			for id := range g.freeIdents(t) {
				out[id] = true
			}
			return
		case *schema.Array:
			collect(t.Length)
		case *schema.Blob:
			collect(t.Size)
		case *schema.String:
			collect(t.Length)
		case *schema.LinearPointer:
			collect(t.Size)
		case *schema.Handle:
			collect(t.Range)
			if t.Key != nil {
				collect(t.Key.Expr)
			}
		case *schema.Polymorphic:
			collect(t.Switch)
			for _, c := range t.Cases {
				collect(c.Values...)
			}
		case *schema.AttribArray:
			collect(t.Terminator)
			for _, c := range t.Cases {
				collect(c.Key)
			}
		case *schema.Interface, *schema.Function, *schema.Module, *schema.API:
			return
		}
		for _, c := range walk.Children(t) {
			visit(c)
		}
	}
	for _, m := range t.Members {
		visit(m.Type)
	}
	for _, m := range t.Members {
		delete(out, m.Name)
	}
	g.free[t.Index()] = out
	return out
}
