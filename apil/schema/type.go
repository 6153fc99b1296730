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

// Package schema holds the type descriptor model that describes a native API:
// its scalars, enums, bitmasks, arrays, tagged unions, pointers, handles,
// interfaces and call signatures.
//
// Descriptors are created through a Builder, which gives each one a unique tag
// and a stable arena index, and are immutable once the Builder is finalized.
package schema

// Type is the interface to any descriptor in the model.
type Type interface {
	isType() // A dummy function that's implemented by all descriptors.
	// Tag returns the unique identifier used to name generated routines for
	// this descriptor.
	Tag() string
	// Index returns the arena index assigned to the descriptor at creation.
	Index() int
	// Expr returns the expression text the descriptor was declared with.
	Expr() string
}

// node is embedded in every descriptor.
type node struct {
	tag   string
	index int
	expr  string
}

func (*node) isType()          {}
func (n *node) Tag() string    { return n.tag }
func (n *node) Index() int     { return n.index }
func (n *node) Expr() string   { return n.expr }
func (n *node) String() string { return n.expr }

// LiteralKind is the category of a scalar literal.
type LiteralKind int

const (
	Bool LiteralKind = iota
	SInt
	UInt
	Float
	Double
)

func (k LiteralKind) String() string {
	switch k {
	case Bool:
		return "Bool"
	case SInt:
		return "SInt"
	case UInt:
		return "UInt"
	case Float:
		return "Float"
	case Double:
		return "Double"
	default:
		return "Unknown"
	}
}

// Void is the type of functions that return nothing.
type Void struct{ node }

// Literal is a scalar of a fixed size.
type Literal struct {
	node
	Kind LiteralKind
	Size int // size in bytes
}

// String is a character string. An empty Length means the string is NUL
// terminated.
type String struct {
	node
	Char   Type
	Length string
	Wide   bool
}

// Const marks the underlying type as read-only. It is transparent.
type Const struct {
	node
	Type Type
}

// Reference is a C++ reference to the underlying type. It is transparent.
type Reference struct {
	node
	Type Type
}

// Alias gives a new name to the underlying type. It is transparent.
type Alias struct {
	node
	Name string
	Type Type
}

// Pointer is a pointer to zero or one values of the underlying type.
type Pointer struct {
	node
	Type Type
}

// ObjPointer is a pointer to a reference-counted interface object.
type ObjPointer struct {
	node
	Type *Interface
}

// LinearPointer is a pointer into a sized memory region, such as the result
// of a map operation.
type LinearPointer struct {
	node
	Type Type
	Size string
}

// IntPointer is an integer value carried in a pointer-shaped slot.
type IntPointer struct{ node }

// HandleKey describes the extra value that makes a Handle unique, such as the
// device a resource belongs to.
type HandleKey struct {
	Expr string
	Type Type
}

// Handle is a scalar whose recorded value must be remapped to the value
// created during replay.
type Handle struct {
	node
	Name  string
	Type  Type
	Range string     // number of consecutive handles, empty for one
	Key   *HandleKey // nil when the value alone is unique
}

// EnumValue is a single named value of an Enum.
type EnumValue struct {
	Name  string
	Value int64
}

// Enum is a scalar with a set of named values.
type Enum struct {
	node
	Name   string
	Type   Type
	Values []EnumValue
	ID     int
}

// BitmaskFlag is a single named flag of a Bitmask.
type BitmaskFlag struct {
	Name  string
	Value uint64
}

// Bitmask is an unsigned scalar built from named flags.
type Bitmask struct {
	node
	Name  string
	Type  Type
	Flags []BitmaskFlag
	ID    int
}

// Array is a sequence of elements whose count is given by Length.
type Array struct {
	node
	Type   Type
	Length string
}

// AttribCase is the value type that follows a particular key in an
// AttribArray.
type AttribCase struct {
	Key  string
	Type Type
}

// AttribArray is a list of key value pairs ended by a terminator key, where
// the type of each value depends on the key before it.
type AttribArray struct {
	node
	Key        Type
	Cases      []AttribCase
	Default    Type // the value type for keys with no case, may be nil
	Terminator string
}

// Blob is a block of bytes whose size is given by Size.
type Blob struct {
	node
	Type Type
	Size string
}

// Member is a single field of a Struct.
type Member struct {
	Name string
	Type Type
}

// Struct is a C structure.
type Struct struct {
	node
	Name    string
	Members []Member
	ID      int
}

// Member returns the index of the member with the given name, or -1.
func (s *Struct) Member(name string) int {
	for i, m := range s.Members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// Case is an arm of a Polymorphic.
type Case struct {
	Values []string
	Type   Type
}

// Polymorphic is a tagged union whose active arm is selected by evaluating
// Switch. When ContextFree is true Switch only refers to the value itself,
// otherwise it refers to the surrounding call.
type Polymorphic struct {
	node
	Switch      string
	Cases       []Case
	Default     Type // may be nil
	ContextFree bool
}

// Opaque is a value with no known structure.
type Opaque struct {
	node
	Label string
}

// Interface is a COM-style interface of virtual methods.
type Interface struct {
	node
	Name    string
	Base    *Interface
	Methods []*Function
}

// Derives returns true if i is other or inherits from it.
func (i *Interface) Derives(other *Interface) bool {
	for t := i; t != nil; t = t.Base {
		if t == other {
			return true
		}
	}
	return false
}

// AllMethods returns the methods of the interface including the inherited
// ones, in vtable order.
func (i *Interface) AllMethods() []*Function {
	if i.Base == nil {
		return i.Methods
	}
	return append(append([]*Function{}, i.Base.AllMethods()...), i.Methods...)
}

// Arg is a single argument of a Function.
type Arg struct {
	Name   string
	Type   Type
	Index  int
	Input  bool
	Output bool
}

// Function is a call signature, either a free function or an interface
// method.
type Function struct {
	node
	Name        string
	Return      Type
	Args        []*Arg
	SideEffects bool
	Fail        string     // expression returned when the call cannot be replayed
	Fake        bool       // recorded by the tracer itself rather than the application
	Owner       *Interface // non-nil for methods, whose first argument is this
	ID          int
}

// Arg returns the argument with the given name, or nil.
func (f *Function) Arg(name string) *Arg {
	for _, a := range f.Args {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// Module is a group of functions and interfaces that share a header.
type Module struct {
	node
	Name       string
	Functions  []*Function
	Interfaces []*Interface
}

// API is the root of a finalized schema.
type API struct {
	node
	Name      string
	Modules   []*Module
	Structs   []*Struct  // indexed by ID
	Enums     []*Enum    // indexed by ID
	Bitmasks  []*Bitmask // indexed by ID
	Calls     []*Function
	Constants map[string]int64
	Types     []Type // every declared descriptor, indexed by Index

	builder *Builder
}

// Builder returns the builder the API was finalized by. It can still derive
// structural descriptors.
func (a *API) Builder() *Builder { return a.builder }

// Call returns the function or method signature with the given wire id.
func (a *API) Call(id int) *Function {
	if id < 0 || id >= len(a.Calls) {
		return nil
	}
	return a.Calls[id]
}

// Underlying strips the transparent wrappers from t.
func Underlying(t Type) Type {
	for {
		switch u := t.(type) {
		case *Const:
			t = u.Type
		case *Reference:
			t = u.Type
		case *Alias:
			t = u.Type
		default:
			return t
		}
	}
}
