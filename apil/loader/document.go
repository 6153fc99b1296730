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

package loader

import (
	"gopkg.in/yaml.v3"
)

// Document is the YAML form of an API schema.
//
//	name: gl
//	types:
//	  - {name: GLenum, kind: enum, type: uint32, values: [{name: GL_POINTS, value: 0}]}
//	  - {name: GLtexture, kind: handle, type: uint32}
//	functions:
//	  - name: glGenTextures
//	    args:
//	      - {name: n, type: GLsizei}
//	      - {name: textures, type: {kind: array, type: GLtexture, length: n}, dir: out}
type Document struct {
	Name      string       `yaml:"name"`
	Types     []Decl       `yaml:"types"`
	Functions []FuncDecl   `yaml:"functions"`
	Modules   []ModuleDecl `yaml:"modules"`
}

// Decl declares a named type.
type Decl struct {
	Name string   `yaml:"name"`
	Kind string   `yaml:"kind"` // alias, enum, bitmask, handle, struct or interface
	Type *TypeRef `yaml:"type"`

	Values []ValueDecl `yaml:"values"` // enum
	Flags  []ValueDecl `yaml:"flags"`  // bitmask

	Range string   `yaml:"range"` // handle
	Key   *KeyDecl `yaml:"key"`   // handle

	Members []MemberDecl `yaml:"members"` // struct

	Base    string     `yaml:"base"`    // interface
	Methods []FuncDecl `yaml:"methods"` // interface
}

// ValueDecl is a named enumerator or flag.
type ValueDecl struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

// KeyDecl is the expression that scopes a handle.
type KeyDecl struct {
	Expr string   `yaml:"expr"`
	Type *TypeRef `yaml:"type"`
}

// MemberDecl is a struct member.
type MemberDecl struct {
	Name string   `yaml:"name"`
	Type *TypeRef `yaml:"type"`
}

// FuncDecl declares a function or an interface method.
type FuncDecl struct {
	Name        string    `yaml:"name"`
	Ret         *TypeRef  `yaml:"ret"`
	Args        []ArgDecl `yaml:"args"`
	SideEffects *bool     `yaml:"sideeffects"`
	Fail        string    `yaml:"fail"`
}

// ArgDecl is a function argument. Dir is in (the default), out or inout.
type ArgDecl struct {
	Name string   `yaml:"name"`
	Type *TypeRef `yaml:"type"`
	Dir  string   `yaml:"dir"`
}

// ModuleDecl groups functions and interfaces by name.
type ModuleDecl struct {
	Name       string   `yaml:"name"`
	Functions  []string `yaml:"functions"`
	Interfaces []string `yaml:"interfaces"`
}

// CaseDecl is an arm of an attribute list (Key) or a polymorphic value
// (Values).
type CaseDecl struct {
	Key    string   `yaml:"key"`
	Values []string `yaml:"values"`
	Type   *TypeRef `yaml:"type"`
}

// TypeRef refers to a type. In its scalar form it is a type name, optionally
// prefixed by const and suffixed by * or &. In its mapping form Kind selects
// an anonymous compound type.
type TypeRef struct {
	Name string `yaml:"-"`

	Kind        string     `yaml:"kind"`
	Type        *TypeRef   `yaml:"type"`
	Interface   string     `yaml:"interface"`
	Length      string     `yaml:"length"`
	Size        string     `yaml:"size"`
	Label       string     `yaml:"label"`
	Key         *TypeRef   `yaml:"key"`
	Terminator  string     `yaml:"terminator"`
	Default     *TypeRef   `yaml:"default"`
	Switch      string     `yaml:"switch"`
	ContextFree bool       `yaml:"contextfree"`
	Cases       []CaseDecl `yaml:"cases"`
}

// UnmarshalYAML accepts both the scalar and the mapping form.
func (r *TypeRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Name = node.Value
		return nil
	}
	type plain TypeRef
	return node.Decode((*plain)(r))
}

func (r *TypeRef) String() string {
	switch {
	case r == nil:
		return "<nil>"
	case r.Name != "":
		return r.Name
	default:
		return r.Kind
	}
}
