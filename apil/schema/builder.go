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

package schema

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/core/fault"
)

const (
	// ErrFrozen is raised when a declaration is added after Finalize.
	ErrFrozen = fault.Const("Schema is frozen")
	// ErrUnsupported is the cause of errors returned for descriptors that a
	// walker or generator has no rule for.
	ErrUnsupported = fault.Const("Unsupported type")
)

// MemcpyName is the name of the call the tracer records when it flushes a
// mapped memory region. It always has wire id 0.
const MemcpyName = "memcpy"

// Builder owns the descriptor arena of one schema. It assigns every descriptor
// a unique tag and an index, and assigns Struct, Enum, Bitmask and call
// signature ids densely per category.
//
// Declarations (structs, enums, bitmasks, handles, interfaces, functions) may
// only be added before Finalize. Structural descriptors (pointers, arrays,
// consts...) may still be derived afterwards, which is how rebuilt copies of
// a frozen schema are made.
type Builder struct {
	mu        sync.Mutex
	tags      map[string]bool
	types     []Type
	structs   []*Struct
	enums     []*Enum
	bitmasks  []*Bitmask
	calls     []*Function
	constants map[string]int64
	builtins  map[string]Type
	frozen    bool
}

// NewBuilder returns a Builder preloaded with the builtin scalar types and the
// memcpy call.
func NewBuilder() *Builder {
	b := &Builder{
		tags:      map[string]bool{},
		constants: map[string]int64{},
		builtins:  map[string]Type{},
	}
	void := &Void{}
	b.add(void, &void.node, "void", "")
	b.builtins["void"] = void
	for _, l := range []struct {
		name string
		kind LiteralKind
		size int
	}{
		{"bool", Bool, 1},
		{"char", SInt, 1},
		{"int8", SInt, 1},
		{"int16", SInt, 2},
		{"int32", SInt, 4},
		{"int64", SInt, 8},
		{"int", SInt, 4},
		{"long", SInt, 8},
		{"uint8", UInt, 1},
		{"uint16", UInt, 2},
		{"uint32", UInt, 4},
		{"uint64", UInt, 8},
		{"uint", UInt, 4},
		{"size_t", UInt, 8},
		{"wchar", UInt, 2},
		{"float", Float, 4},
		{"double", Double, 8},
	} {
		b.builtins[l.name] = b.Literal(l.name, l.kind, l.size)
	}
	b.builtins["string"] = b.String(b.builtins["char"], "", false)
	b.builtins["wstring"] = b.String(b.builtins["wchar"], "", true)

	b.Function(MemcpyName, void,
		&Arg{Name: "dest", Type: b.Opaque("void *")},
		&Arg{Name: "src", Type: b.Blob(b.builtins["uint8"], "n")},
		&Arg{Name: "n", Type: b.builtins["size_t"]},
	).Fake = true
	return b
}

// Builtin returns the builtin type with the given name, or nil.
func (b *Builder) Builtin(name string) Type { return b.builtins[name] }

// Frozen returns true once Finalize has been called.
func (b *Builder) Frozen() bool { return b.frozen }

// Len returns the number of descriptors in the arena.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.types)
}

// add registers t, whose embedded node is n, in the arena. An empty tag is
// derived from the alphanumeric characters of expr. Tags that are already in
// use get a numeric suffix.
func (b *Builder) add(t Type, n *node, expr, tag string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if tag == "" {
		tag = strings.Map(func(r rune) rune {
			if r == '_' || r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				return r
			}
			return -1
		}, expr)
		if tag == "" {
			tag = "anonymous"
		}
	}
	if b.tags[tag] {
		suffix := 1
		for b.tags[tag+strconv.Itoa(suffix)] {
			suffix++
		}
		tag += strconv.Itoa(suffix)
	}
	b.tags[tag] = true
	n.tag, n.expr, n.index = tag, expr, len(b.types)
	b.types = append(b.types, t)
}

func (b *Builder) declare(what, name string) {
	if b.frozen {
		panic(errors.Wrapf(ErrFrozen, "Declaring %s %s", what, name))
	}
}

// Literal returns a new scalar descriptor.
func (b *Builder) Literal(name string, kind LiteralKind, size int) *Literal {
	t := &Literal{Kind: kind, Size: size}
	b.add(t, &t.node, name, "")
	return t
}

// String returns a new string descriptor. An empty length means the string
// is NUL terminated.
func (b *Builder) String(char Type, length string, wide bool) *String {
	t := &String{Char: char, Length: length, Wide: wide}
	expr := "string"
	if wide {
		expr = "wstring"
	}
	if length != "" {
		expr += "[" + length + "]"
	}
	b.add(t, &t.node, expr, "")
	return t
}

// Const returns a read-only view of inner.
func (b *Builder) Const(inner Type) *Const {
	t := &Const{Type: inner}
	b.add(t, &t.node, "const "+inner.Expr(), "C"+inner.Tag())
	return t
}

// Reference returns a reference to inner.
func (b *Builder) Reference(inner Type) *Reference {
	t := &Reference{Type: inner}
	b.add(t, &t.node, inner.Expr()+" &", "R"+inner.Tag())
	return t
}

// Alias returns a new name for inner.
func (b *Builder) Alias(name string, inner Type) *Alias {
	b.declare("alias", name)
	t := &Alias{Name: name, Type: inner}
	b.add(t, &t.node, name, "")
	return t
}

// Pointer returns a pointer to inner.
func (b *Builder) Pointer(inner Type) *Pointer {
	t := &Pointer{Type: inner}
	b.add(t, &t.node, inner.Expr()+" *", "P"+inner.Tag())
	return t
}

// ObjPointer returns a pointer to an object implementing iface.
func (b *Builder) ObjPointer(iface *Interface) *ObjPointer {
	t := &ObjPointer{Type: iface}
	b.add(t, &t.node, iface.Name+" *", "O"+iface.Tag())
	return t
}

// LinearPointer returns a pointer to a region of size bytes.
func (b *Builder) LinearPointer(inner Type, size string) *LinearPointer {
	t := &LinearPointer{Type: inner, Size: size}
	b.add(t, &t.node, inner.Expr()+" *", "L"+inner.Tag())
	return t
}

// IntPointer returns an integer carried in a pointer slot.
func (b *Builder) IntPointer(expr string) *IntPointer {
	t := &IntPointer{}
	b.add(t, &t.node, expr, "")
	return t
}

// Handle declares a remapped scalar.
func (b *Builder) Handle(name string, inner Type, rng string, key *HandleKey) *Handle {
	b.declare("handle", name)
	t := &Handle{Name: name, Type: inner, Range: rng, Key: key}
	b.add(t, &t.node, name, "")
	return t
}

// Enum declares an enumeration. The value names become constants usable in
// length and switch expressions.
func (b *Builder) Enum(name string, inner Type, values ...EnumValue) *Enum {
	b.declare("enum", name)
	t := &Enum{Name: name, Type: inner, Values: values, ID: len(b.enums)}
	b.add(t, &t.node, name, "")
	b.enums = append(b.enums, t)
	for _, v := range values {
		b.constant(v.Name, v.Value)
	}
	return t
}

// Bitmask declares a set of flags over inner.
func (b *Builder) Bitmask(name string, inner Type, flags ...BitmaskFlag) *Bitmask {
	b.declare("bitmask", name)
	t := &Bitmask{Name: name, Type: inner, Flags: flags, ID: len(b.bitmasks)}
	b.add(t, &t.node, name, "")
	b.bitmasks = append(b.bitmasks, t)
	for _, f := range flags {
		b.constant(f.Name, int64(f.Value))
	}
	return t
}

func (b *Builder) constant(name string, value int64) {
	if _, dup := b.constants[name]; !dup {
		b.constants[name] = value
	}
}

// Array returns a sequence of length elements of elem.
func (b *Builder) Array(elem Type, length string) *Array {
	t := &Array{Type: elem, Length: length}
	b.add(t, &t.node, elem.Expr()+"["+length+"]", "")
	return t
}

// AttribArray returns a terminated key value list.
func (b *Builder) AttribArray(key Type, terminator string, def Type, cases ...AttribCase) *AttribArray {
	t := &AttribArray{Key: key, Cases: cases, Default: def, Terminator: terminator}
	b.add(t, &t.node, "attribs<"+key.Expr()+">", "")
	return t
}

// Blob returns a block of size bytes.
func (b *Builder) Blob(elem Type, size string) *Blob {
	t := &Blob{Type: elem, Size: size}
	b.add(t, &t.node, "blob("+size+")", "")
	return t
}

// Struct declares a structure. Members may be assigned after the call, to
// allow self referential structures, until Finalize.
func (b *Builder) Struct(name string, members ...Member) *Struct {
	b.declare("struct", name)
	t := &Struct{Name: name, Members: members, ID: len(b.structs)}
	b.add(t, &t.node, name, "")
	b.structs = append(b.structs, t)
	return t
}

// Polymorphic returns a tagged union.
func (b *Builder) Polymorphic(switchExpr string, contextFree bool, def Type, cases ...Case) *Polymorphic {
	t := &Polymorphic{Switch: switchExpr, Cases: cases, Default: def, ContextFree: contextFree}
	b.add(t, &t.node, "polymorphic("+switchExpr+")", "")
	return t
}

// Opaque returns a value with no known structure.
func (b *Builder) Opaque(label string) *Opaque {
	t := &Opaque{Label: label}
	b.add(t, &t.node, label, "")
	return t
}

// Interface declares an interface deriving from base, which may be nil.
func (b *Builder) Interface(name string, base *Interface) *Interface {
	b.declare("interface", name)
	t := &Interface{Name: name, Base: base}
	b.add(t, &t.node, name, "")
	return t
}

// Function declares a free function.
func (b *Builder) Function(name string, ret Type, args ...*Arg) *Function {
	b.declare("function", name)
	f := &Function{Name: name, Return: ret, Args: args, SideEffects: true, ID: len(b.calls)}
	for i, a := range args {
		a.Index = i
		if !a.Input && !a.Output {
			a.Input = true
		}
	}
	b.add(f, &f.node, name, "")
	b.calls = append(b.calls, f)
	return f
}

// Method declares a method of iface. The object the method is invoked on is
// prepended as the argument named this.
func (b *Builder) Method(iface *Interface, name string, ret Type, args ...*Arg) *Function {
	this := &Arg{Name: "this", Type: b.ObjPointer(iface), Input: true}
	f := b.Function(iface.Name+"::"+name, ret, append([]*Arg{this}, args...)...)
	f.Owner = iface
	iface.Methods = append(iface.Methods, f)
	return f
}

// Module groups functions and interfaces.
func (b *Builder) Module(name string, functions []*Function, interfaces []*Interface) *Module {
	b.declare("module", name)
	m := &Module{Name: name, Functions: functions, Interfaces: interfaces}
	b.add(m, &m.node, name, "")
	return m
}

// Finalize validates the declarations and freezes the schema, returning the
// API root. No declaration may be added afterwards.
func (b *Builder) Finalize(name string, modules ...*Module) (*API, error) {
	if b.frozen {
		return nil, errors.Wrapf(ErrFrozen, "Finalizing %s", name)
	}
	names := map[string]bool{}
	for _, f := range b.calls {
		if names[f.Name] {
			return nil, errors.Errorf("Duplicate call name %s (%s)", f.Name, f.Tag())
		}
		names[f.Name] = true
		if f.Return == nil {
			return nil, errors.Errorf("Call %s (%s) has no return type", f.Name, f.Tag())
		}
		for _, a := range f.Args {
			if a.Type == nil {
				return nil, errors.Errorf("Argument %s of %s (%s) has no type", a.Name, f.Name, f.Tag())
			}
		}
	}
	for _, s := range b.structs {
		for _, m := range s.Members {
			if m.Type == nil {
				return nil, errors.Errorf("Member %s of %s (%s) has no type", m.Name, s.Name, s.Tag())
			}
		}
	}
	b.frozen = true
	api := &API{
		Name:      name,
		Modules:   modules,
		Structs:   b.structs,
		Enums:     b.enums,
		Bitmasks:  b.bitmasks,
		Calls:     b.calls,
		Constants: b.constants,
		Types:     b.types,
		builder:   b,
	}
	b.add(api, &api.node, name, "")
	return api, nil
}

// Describe returns a short diagnostic description of t.
func Describe(t Type) string {
	return fmt.Sprintf("%T %s (%s)", t, t.Expr(), t.Tag())
}
