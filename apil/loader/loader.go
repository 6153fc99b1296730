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

// Package loader builds a frozen schema.API from a YAML document.
package loader

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/core/log"
)

// LoadFile reads and builds the schema stored at path.
func LoadFile(ctx context.Context, path string) (*schema.API, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	api, err := Load(log.V{"schema": path}.Bind(ctx), f)
	if err != nil {
		return nil, errors.Wrapf(err, "Loading %s", path)
	}
	return api, nil
}

// Load reads a YAML schema document from r and builds it.
func Load(ctx context.Context, r io.Reader) (*schema.API, error) {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	doc := &Document{}
	if err := d.Decode(doc); err != nil {
		return nil, errors.Wrap(err, "Decoding schema")
	}
	return Build(ctx, doc)
}

// Build declares every type and function of doc and finalizes the schema.
// Named types may be referenced before their declaration.
func Build(ctx context.Context, doc *Document) (*schema.API, error) {
	if doc.Name == "" {
		return nil, errors.New("Schema has no name")
	}
	l := &loader{
		b:         schema.NewBuilder(),
		decls:     map[string]*Decl{},
		named:     map[string]schema.Type{},
		resolving: map[string]bool{},
	}
	for i := range doc.Types {
		d := &doc.Types[i]
		if d.Name == "" {
			return nil, errors.Errorf("Type %d has no name", i)
		}
		if _, dup := l.decls[d.Name]; dup || l.b.Builtin(d.Name) != nil {
			return nil, errors.Errorf("Duplicate type name %s", d.Name)
		}
		l.decls[d.Name] = d
		// Shells first, so members and methods can refer to any of them.
		switch d.Kind {
		case "struct":
			l.named[d.Name] = l.b.Struct(d.Name)
		case "interface":
			l.named[d.Name] = l.b.Interface(d.Name, nil)
		}
	}
	for _, d := range doc.Types {
		if _, err := l.lookup(d.Name); err != nil {
			return nil, err
		}
	}
	for i := range doc.Types {
		if err := l.complete(&doc.Types[i]); err != nil {
			return nil, err
		}
	}

	functions := map[string]*schema.Function{}
	all := make([]*schema.Function, 0, len(doc.Functions))
	for i := range doc.Functions {
		f, err := l.function(nil, &doc.Functions[i])
		if err != nil {
			return nil, err
		}
		functions[f.Name] = f
		all = append(all, f)
	}

	modules := []*schema.Module{}
	if len(doc.Modules) == 0 {
		ifaces := []*schema.Interface{}
		for _, d := range doc.Types {
			if d.Kind == "interface" {
				ifaces = append(ifaces, l.named[d.Name].(*schema.Interface))
			}
		}
		modules = append(modules, l.b.Module(doc.Name, all, ifaces))
	}
	for _, m := range doc.Modules {
		fs := make([]*schema.Function, len(m.Functions))
		for i, name := range m.Functions {
			if fs[i] = functions[name]; fs[i] == nil {
				return nil, errors.Errorf("Module %s lists unknown function %s", m.Name, name)
			}
		}
		is := make([]*schema.Interface, len(m.Interfaces))
		for i, name := range m.Interfaces {
			iface, ok := l.named[name].(*schema.Interface)
			if !ok {
				return nil, errors.Errorf("Module %s lists unknown interface %s", m.Name, name)
			}
			is[i] = iface
		}
		modules = append(modules, l.b.Module(m.Name, fs, is))
	}

	api, err := l.b.Finalize(doc.Name, modules...)
	if err != nil {
		return nil, err
	}
	log.D(ctx, "Loaded %s: %d types, %d calls", api.Name, len(api.Types), len(api.Calls))
	return api, nil
}

type loader struct {
	b         *schema.Builder
	decls     map[string]*Decl
	named     map[string]schema.Type
	resolving map[string]bool
}

// lookup returns the named type, declaring it first if needed.
func (l *loader) lookup(name string) (schema.Type, error) {
	if t := l.b.Builtin(name); t != nil {
		return t, nil
	}
	if t, ok := l.named[name]; ok {
		return t, nil
	}
	d, ok := l.decls[name]
	if !ok {
		return nil, errors.Errorf("Unknown type %s", name)
	}
	if l.resolving[name] {
		return nil, errors.Errorf("Type %s refers to itself", name)
	}
	l.resolving[name] = true
	defer delete(l.resolving, name)

	inner, err := l.ref(d.Type)
	if err != nil {
		return nil, errors.Wrapf(err, "Declaring %s %s", d.Kind, name)
	}
	var t schema.Type
	switch d.Kind {
	case "alias":
		t = l.b.Alias(name, inner)
	case "enum":
		values := make([]schema.EnumValue, len(d.Values))
		for i, v := range d.Values {
			values[i] = schema.EnumValue{Name: v.Name, Value: v.Value}
		}
		t = l.b.Enum(name, inner, values...)
	case "bitmask":
		flags := make([]schema.BitmaskFlag, len(d.Flags))
		for i, f := range d.Flags {
			flags[i] = schema.BitmaskFlag{Name: f.Name, Value: uint64(f.Value)}
		}
		t = l.b.Bitmask(name, inner, flags...)
	case "handle":
		var key *schema.HandleKey
		if d.Key != nil {
			kt, err := l.ref(d.Key.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "Declaring key of handle %s", name)
			}
			key = &schema.HandleKey{Expr: d.Key.Expr, Type: kt}
		}
		t = l.b.Handle(name, inner, d.Range, key)
	default:
		return nil, errors.Errorf("Type %s has unknown kind %q", name, d.Kind)
	}
	l.named[name] = t
	return t, nil
}

// complete fills in the struct members and interface methods.
func (l *loader) complete(d *Decl) error {
	switch d.Kind {
	case "struct":
		s := l.named[d.Name].(*schema.Struct)
		for _, m := range d.Members {
			t, err := l.ref(m.Type)
			if err != nil {
				return errors.Wrapf(err, "Member %s of %s", m.Name, d.Name)
			}
			s.Members = append(s.Members, schema.Member{Name: m.Name, Type: t})
		}
	case "interface":
		iface := l.named[d.Name].(*schema.Interface)
		if d.Base != "" {
			base, ok := l.named[d.Base].(*schema.Interface)
			if !ok {
				return errors.Errorf("Interface %s derives from unknown interface %s", d.Name, d.Base)
			}
			if base.Derives(iface) {
				return errors.Errorf("Interface %s derives from itself", d.Name)
			}
			iface.Base = base
		}
		for i := range d.Methods {
			if _, err := l.function(iface, &d.Methods[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *loader) function(owner *schema.Interface, d *FuncDecl) (*schema.Function, error) {
	ret := l.b.Builtin("void")
	if d.Ret != nil {
		t, err := l.ref(d.Ret)
		if err != nil {
			return nil, errors.Wrapf(err, "Return of %s", d.Name)
		}
		ret = t
	}
	args := make([]*schema.Arg, len(d.Args))
	for i, a := range d.Args {
		t, err := l.ref(a.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "Argument %s of %s", a.Name, d.Name)
		}
		arg := &schema.Arg{Name: a.Name, Type: t}
		switch a.Dir {
		case "", "in":
			arg.Input = true
		case "out":
			arg.Output = true
		case "inout":
			arg.Input, arg.Output = true, true
		default:
			return nil, errors.Errorf("Argument %s of %s has unknown direction %q", a.Name, d.Name, a.Dir)
		}
		args[i] = arg
	}
	var f *schema.Function
	if owner != nil {
		f = l.b.Method(owner, d.Name, ret, args...)
	} else {
		f = l.b.Function(d.Name, ret, args...)
	}
	if d.SideEffects != nil {
		f.SideEffects = *d.SideEffects
	}
	f.Fail = d.Fail
	return f, nil
}

// ref resolves a type reference, declaring the anonymous types it spells.
func (l *loader) ref(r *TypeRef) (schema.Type, error) {
	if r == nil {
		return nil, errors.New("Missing type")
	}
	if r.Name != "" {
		return l.spelled(strings.TrimSpace(r.Name))
	}
	inner := func() (schema.Type, error) {
		t, err := l.ref(r.Type)
		return t, errors.Wrapf(err, "Element of %s", r.Kind)
	}
	optional := func(r *TypeRef) (schema.Type, error) {
		if r == nil {
			return nil, nil
		}
		return l.ref(r)
	}
	switch r.Kind {
	case "pointer":
		t, err := inner()
		if err != nil {
			return nil, err
		}
		return l.pointer(t), nil
	case "const":
		t, err := inner()
		if err != nil {
			return nil, err
		}
		return l.b.Const(t), nil
	case "reference":
		t, err := inner()
		if err != nil {
			return nil, err
		}
		return l.b.Reference(t), nil
	case "object":
		iface, ok := l.named[r.Interface].(*schema.Interface)
		if !ok {
			return nil, errors.Errorf("Unknown interface %s", r.Interface)
		}
		return l.b.ObjPointer(iface), nil
	case "linear":
		t, err := inner()
		if err != nil {
			return nil, err
		}
		return l.b.LinearPointer(t, r.Size), nil
	case "intptr":
		label := r.Label
		if label == "" {
			label = "intptr"
		}
		return l.b.IntPointer(label), nil
	case "array":
		t, err := inner()
		if err != nil {
			return nil, err
		}
		return l.b.Array(t, r.Length), nil
	case "blob":
		elem := l.b.Builtin("uint8")
		if r.Type != nil {
			t, err := inner()
			if err != nil {
				return nil, err
			}
			elem = t
		}
		return l.b.Blob(elem, r.Size), nil
	case "string":
		return l.b.String(l.b.Builtin("char"), r.Length, false), nil
	case "wstring":
		return l.b.String(l.b.Builtin("wchar"), r.Length, true), nil
	case "opaque":
		return l.b.Opaque(r.Label), nil
	case "attribs":
		key, err := l.ref(r.Key)
		if err != nil {
			return nil, errors.Wrap(err, "Key of attribs")
		}
		def, err := optional(r.Default)
		if err != nil {
			return nil, errors.Wrap(err, "Default of attribs")
		}
		cases := make([]schema.AttribCase, len(r.Cases))
		for i, c := range r.Cases {
			t, err := l.ref(c.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "Attrib %s", c.Key)
			}
			cases[i] = schema.AttribCase{Key: c.Key, Type: t}
		}
		return l.b.AttribArray(key, r.Terminator, def, cases...), nil
	case "polymorphic":
		def, err := optional(r.Default)
		if err != nil {
			return nil, errors.Wrap(err, "Default of polymorphic")
		}
		cases := make([]schema.Case, len(r.Cases))
		for i, c := range r.Cases {
			t, err := l.ref(c.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "Case %v", c.Values)
			}
			cases[i] = schema.Case{Values: c.Values, Type: t}
		}
		return l.b.Polymorphic(r.Switch, r.ContextFree, def, cases...), nil
	default:
		return nil, errors.Errorf("Unknown type kind %q", r.Kind)
	}
}

// spelled resolves the scalar form of a reference: "const T", "T *" and
// "T &", nested in any order.
func (l *loader) spelled(s string) (schema.Type, error) {
	switch {
	case strings.HasSuffix(s, "*"):
		t, err := l.spelled(strings.TrimSpace(strings.TrimSuffix(s, "*")))
		if err != nil {
			return nil, err
		}
		return l.pointer(t), nil
	case strings.HasSuffix(s, "&"):
		t, err := l.spelled(strings.TrimSpace(strings.TrimSuffix(s, "&")))
		if err != nil {
			return nil, err
		}
		return l.b.Reference(t), nil
	case strings.HasPrefix(s, "const "):
		t, err := l.spelled(strings.TrimSpace(strings.TrimPrefix(s, "const ")))
		if err != nil {
			return nil, err
		}
		return l.b.Const(t), nil
	}
	return l.lookup(s)
}

// pointer returns an object pointer for interfaces and a plain pointer
// otherwise.
func (l *loader) pointer(t schema.Type) schema.Type {
	if iface, ok := t.(*schema.Interface); ok {
		return l.b.ObjPointer(iface)
	}
	return l.b.Pointer(t)
}
