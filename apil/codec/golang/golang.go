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

// Package golang renders codec programs as Go source: typed declarations of
// the schema, a capture layer recording every call of an implementation, and
// a replay dispatcher invoking recorded calls on another.
package golang

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"

	"github.com/apitrace/apitrace-sub000/apil/codec"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/apil/trie"
	"github.com/apitrace/apitrace-sub000/core/log"
)

//go:embed templates/*.tmpl
var templates embed.FS

var parsed = template.Must(template.ParseFS(templates, "templates/*.tmpl"))

// File is a generated source file.
type File struct {
	Name   string
	Source []byte
}

// Generate renders the capture and replay source of api as the Go package
// pkg.
func Generate(ctx context.Context, api *schema.API, pkg string) ([]File, error) {
	enc, err := codec.Generate(ctx, api, codec.Encode)
	if err != nil {
		return nil, err
	}
	dec, err := codec.Generate(ctx, api, codec.Decode)
	if err != nil {
		return nil, err
	}
	g := &generator{
		api: api,
		enc: enc,
		dec: dec,
		e:   &emitter{constants: api.Constants},
	}
	v, err := g.view(pkg)
	if err != nil {
		return nil, err
	}
	outputs := []string{"types.go", "capture.go", "replay.go"}
	files := make([]File, len(outputs)+1)
	var eg errgroup.Group
	for i, name := range outputs {
		i, name := i, name
		eg.Go(func() error {
			src, err := render(name, v)
			files[i] = File{Name: name, Source: src}
			return err
		})
	}
	eg.Go(func() error {
		src, err := trie.Source(pkg, "matchCall", v.Names)
		files[len(outputs)] = File{Name: "dispatch.go", Source: src}
		return errors.Wrap(err, "Rendering dispatch.go")
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	log.I(ctx, "Generated package %s: %d calls, %d types", pkg, len(v.Names), len(v.Structs)+len(v.Enums)+len(v.Bitmasks)+len(v.Handles))
	return files, nil
}

func render(name string, v *view) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := parsed.ExecuteTemplate(buf, name+".tmpl", v); err != nil {
		return nil, errors.Wrapf(err, "Rendering %s", name)
	}
	src, err := imports.Process(name, buf.Bytes(), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "Formatting %s", name)
	}
	return src, nil
}

type view struct {
	Package   string
	Enums     []enumView
	Bitmasks  []enumView
	Handles   []namedView
	Structs   []structView
	Ifaces    []ifaceView
	Funcs     []callView
	Encoders  []routineView
	Decoders  []routineView
	Registers []routineView
	Replays   []namedView
	Names     []string
}

type constView struct{ Name, Value string }

type enumView struct {
	Name, Base string
	Values     []constView
}

// namedView is a declaration with a name and a body, the underlying type of
// handles and the statements of replay functions.
type namedView struct{ Name, Base string }

type fieldView struct{ Name, Type string }

type structView struct {
	Name   string
	Fields []fieldView
}

type ifaceView struct {
	Name, Base, Schema string
	Methods            []callView // declared by the interface itself
	All                []callView // including inherited ones
}

type callView struct {
	Name, Params, Result, Args string
	ID                         int
	Capture, Target            string
	Enter, Leave, Pre, Post    string
}

type routineView struct {
	Name, Type, Body string
	Selector         bool
}

type generator struct {
	api      *schema.API
	enc, dec *codec.Program
	e        *emitter
	consts   map[string]int
	calls    map[*schema.Function]callView
}

func (g *generator) view(pkg string) (*view, error) {
	v := &view{Package: pkg}
	g.names()
	g.calls = map[*schema.Function]callView{}
	for _, f := range g.api.Calls {
		if f.Fake {
			continue
		}
		enc, dec := g.enc.Call(f), g.dec.Call(f)
		g.calls[f] = g.capture(f, enc)
		if f.Owner == nil {
			v.Funcs = append(v.Funcs, g.calls[f])
		}
		name := "replay" + method(f)
		if f.Owner != nil {
			name = "replay" + exported(f.Owner.Name) + method(f)
		}
		v.Replays = append(v.Replays, namedView{Name: name, Base: g.replay(f, dec)})
		v.Names = append(v.Names, f.Name)
	}
	for _, t := range g.api.Enums {
		ev := enumView{Name: exported(t.Name), Base: g.scalar(t.Type)}
		for _, val := range t.Values {
			ev.Values = append(ev.Values, constView{g.constName(t.Name, val.Name), strconv.FormatInt(val.Value, 10)})
		}
		v.Enums = append(v.Enums, ev)
	}
	for _, t := range g.api.Bitmasks {
		ev := enumView{Name: exported(t.Name), Base: g.scalar(t.Type)}
		for _, f := range t.Flags {
			ev.Values = append(ev.Values, constView{g.constName(t.Name, f.Name), fmt.Sprintf("%#x", f.Value)})
		}
		v.Bitmasks = append(v.Bitmasks, ev)
	}
	for _, t := range g.api.Structs {
		sv := structView{Name: exported(t.Name)}
		for _, m := range t.Members {
			sv.Fields = append(sv.Fields, fieldView{exported(m.Name), g.e.goType(m.Type)})
		}
		v.Structs = append(v.Structs, sv)
	}
	for _, t := range g.api.Types {
		switch t := t.(type) {
		case *schema.Handle:
			v.Handles = append(v.Handles, namedView{exported(t.Name), g.scalar(t.Type)})
		case *schema.Interface:
			iv := ifaceView{Name: exported(t.Name), Base: "capture.Object", Schema: t.Name}
			if t.Base != nil {
				iv.Base = exported(t.Base.Name)
			}
			for _, f := range t.Methods {
				iv.Methods = append(iv.Methods, g.calls[f])
			}
			for _, f := range t.AllMethods() {
				iv.All = append(iv.All, g.calls[f])
			}
			v.Ifaces = append(v.Ifaces, iv)
		}
	}
	root := newScope(nil)
	for _, r := range g.enc.Routines {
		v.Encoders = append(v.Encoders, routineView{
			Name:     routineName(r),
			Type:     g.e.goType(r.Type),
			Body:     g.e.enc(r.Body, "v", root),
			Selector: r.Selector,
		})
	}
	for _, r := range g.dec.Routines {
		rv := routineView{
			Name:     routineName(r),
			Type:     g.e.goType(r.Type),
			Body:     g.e.dec(r.Body, "val", "v", root),
			Selector: r.Selector,
		}
		v.Decoders = append(v.Decoders, rv)
		if registers(r.Body) {
			rv.Name, rv.Body = registerName(r), g.e.reg(r.Body, "val", "v", root)
			v.Registers = append(v.Registers, rv)
		}
	}
	if g.e.err != nil {
		return nil, errors.Wrapf(g.e.err, "Generating Go for %s", g.api.Name)
	}
	return v, nil
}

func (g *generator) scalar(t schema.Type) string {
	s, err := scalar(t)
	if err != nil {
		g.e.fail(err)
	}
	return s
}

// names counts the declared identifiers so that enumerators sharing a name
// are qualified by their type.
func (g *generator) names() {
	g.consts = map[string]int{}
	for _, n := range []string{"API", "Attrib", "Capture", "Dispatch", "NewCapture"} {
		g.consts[n]++
	}
	for _, t := range g.api.Types {
		switch t := t.(type) {
		case *schema.Enum:
			g.consts[exported(t.Name)]++
			for _, v := range t.Values {
				g.consts[ident(v.Name)]++
			}
		case *schema.Bitmask:
			g.consts[exported(t.Name)]++
			for _, f := range t.Flags {
				g.consts[ident(f.Name)]++
			}
		case *schema.Struct:
			g.consts[exported(t.Name)]++
		case *schema.Handle:
			g.consts[exported(t.Name)]++
		case *schema.Interface:
			g.consts[exported(t.Name)]++
		}
	}
}

func (g *generator) constName(typ, name string) string {
	if id := ident(name); g.consts[id] <= 1 {
		return id
	}
	return exported(typ) + "_" + ident(name)
}

// capture renders the recording of a call of f.
func (g *generator) capture(f *schema.Function, call *codec.Call) callView {
	e := g.e
	cv := callView{Name: method(f), ID: f.ID, Capture: "c", Target: "c.impl"}
	if f.Owner != nil {
		cv.Capture, cv.Target = "o.c", "o.real"
	}
	s := newScope(nil)
	params, args := []string{}, []string{}
	pre, post := &strings.Builder{}, &strings.Builder{}
	for i, a := range f.Args {
		if f.Owner != nil && i == 0 {
			s.bind(a.Name, "o", a.Type)
			continue
		}
		name, t := local(a.Name), e.goType(a.Type)
		s.bind(a.Name, name, a.Type)
		params = append(params, name+" "+t)
		arg := name
		switch u := schema.Underlying(a.Type).(type) {
		case *schema.ObjPointer:
			arg = e.tmp("obj")
			fmt.Fprintf(pre, "%s, _ := capture.Unwrap(%s).(%s)\n", arg, name, t)
		case *schema.Pointer:
			if o, ok := schema.Underlying(u.Type).(*schema.ObjPointer); ok && a.Output {
				fmt.Fprintf(post, "if %s != nil {\n*%s = %s.wrap%s(*%s)\n}\n", name, name, cv.Capture, exported(o.Type.Name), name)
			}
		}
		args = append(args, arg)
	}
	cv.Params, cv.Args = strings.Join(params, ", "), strings.Join(args, ", ")
	if call.Ret != nil {
		cv.Result = e.goType(f.Return)
		switch u := schema.Underlying(f.Return).(type) {
		case *schema.ObjPointer:
			fmt.Fprintf(post, "ret = %s.wrap%s(ret)\n", cv.Capture, exported(u.Type.Name))
		case *schema.LinearPointer:
			fmt.Fprintf(post, "if len(ret) > 0 {\ntr.Map(%s.ctx, capture.Address(ret), ret)\n}\n", cv.Capture)
		}
	}
	if f.Owner != nil {
		switch method(f) {
		case "AddRef":
			post.WriteString("o.Wrap.AddRef()\n")
		case "Release":
			post.WriteString("o.Wrap.Release()\n")
		}
	}
	cv.Pre, cv.Post = pre.String(), post.String()

	enter, leave := &strings.Builder{}, &strings.Builder{}
	for _, a := range call.Args {
		b, _ := s.lookup(a.Name)
		if a.Input {
			fmt.Fprintf(enter, "w.BeginArg(%d)\n%s", a.Index, e.enc(a.Instr, b.expr, s))
		}
		if a.Output {
			fmt.Fprintf(leave, "w.BeginArg(%d)\n%s", a.Index, e.enc(a.Instr, b.expr, s))
		}
	}
	if call.Ret != nil {
		fmt.Fprintf(leave, "w.BeginReturn()\n%s", e.enc(call.Ret, "ret", s))
	}
	cv.Enter, cv.Leave = enter.String(), leave.String()
	return cv
}

// replay renders the body of the function replaying a call of f.
func (g *generator) replay(f *schema.Function, call *codec.Call) string {
	e := g.e
	sb := &strings.Builder{}
	p := printer(sb)
	if call.Degraded {
		p("r.WarnOnce(ctx, c.Name(), errors.Wrap(replay.ErrDegraded, c.Name()))")
	}
	s := newScope(nil)
	locals := make([]string, len(call.Args))
	for i, a := range call.Args {
		t := f.Args[a.Index].Type
		locals[i] = local(a.Name)
		s.bind(a.Name, locals[i], t)
		p("var %s %s", locals[i], e.goType(t))
	}
	for _, late := range []bool{false, true} {
		for i, a := range call.Args {
			if a.Input && a.Instr.Dependent() == late {
				sb.WriteString(e.dec(a.Instr, fmt.Sprintf("replay.Arg(c, %d)", a.Index), locals[i], s))
			}
		}
	}
	for i, a := range call.Args {
		if !a.Input && a.Output {
			sb.WriteString(g.alloc(f.Args[a.Index].Type, a.Index, locals[i]))
		}
	}
	target, args := "impl", locals
	if f.Owner != nil {
		target, args = locals[0], locals[1:]
		p("if %s == nil {", target)
		p("r.Warn(ctx, errors.Wrapf(replay.ErrNilThis, \"Skipping call %%d %%s\", c.No, c.Name()))")
		p("return nil\n}")
	}
	ret := ""
	if call.Ret != nil && registers(call.Ret) {
		ret = "ret := "
	}
	p("%s%s.%s(%s)", ret, target, method(f), strings.Join(args, ", "))
	for i, a := range call.Args {
		if a.Output {
			sb.WriteString(e.reg(a.Instr, fmt.Sprintf("replay.Arg(c, %d)", a.Index), locals[i], s))
		}
	}
	if ret != "" {
		sb.WriteString(e.reg(call.Ret, "c.Ret", "ret", s))
	}
	return sb.String()
}

// alloc returns the statements creating the storage an output argument is
// returned in, sized from the trace.
func (g *generator) alloc(t schema.Type, index int, name string) string {
	gt := g.e.goType(t)
	switch schema.Underlying(t).(type) {
	case *schema.Pointer:
		if gt != "uintptr" {
			return fmt.Sprintf("%s = new(%s)\n", name, strings.TrimPrefix(gt, "*"))
		}
	case *schema.Array:
		return fmt.Sprintf("%s = make(%s, len(replay.Elems(replay.Arg(c, %d))))\n", name, gt, index)
	case *schema.Blob:
		return fmt.Sprintf("%s = make([]byte, len(replay.Blob(replay.Arg(c, %d))))\n", name, index)
	}
	return ""
}
