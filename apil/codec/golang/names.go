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

package golang

import (
	"fmt"
	"go/token"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/apil/schema"
)

// ident turns a schema name into a Go identifier.
func ident(name string) string {
	if i := strings.LastIndex(name, "::"); i >= 0 {
		name = name[i+2:]
	}
	sb := strings.Builder{}
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
			sb.WriteRune(r)
		case unicode.IsDigit(r):
			if i == 0 {
				sb.WriteRune('_')
			}
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "_"
	}
	return sb.String()
}

// exported returns the exported Go identifier of a schema name.
func exported(name string) string {
	id := []rune(ident(name))
	id[0] = unicode.ToUpper(id[0])
	if id[0] == '_' {
		return "X" + string(id)
	}
	return string(id)
}

// reserved are the locals of generated functions.
var reserved = map[string]bool{
	"c": true, "o": true, "r": true, "w": true, "tr": true, "no": true,
	"ret": true, "ctx": true, "impl": true, "errors": true, "replay": true,
	"capture": true, "wire": true, "context": true,
}

// local returns the Go parameter name of a schema argument.
func local(name string) string {
	id := ident(name)
	if token.IsKeyword(id) || reserved[id] || predeclared[id] {
		return id + "_"
	}
	return id
}

var predeclared = map[string]bool{
	"any": true, "bool": true, "byte": true, "error": true, "int": true,
	"int64": true, "uint64": true, "string": true, "len": true, "cap": true,
	"new": true, "make": true, "nil": true, "true": true, "false": true,
	"append": true, "copy": true, "uintptr": true, "float32": true,
	"float64": true, "min": true, "max": true, "real": true,
}

// goType returns the Go type of values of t, or the empty string for void.
func goType(t schema.Type) (string, error) {
	switch t := schema.Underlying(t).(type) {
	case *schema.Void:
		return "", nil
	case *schema.Literal:
		return literal(t)
	case *schema.String:
		return "string", nil
	case *schema.Pointer:
		elem, err := goType(t.Type)
		if err != nil || elem == "" {
			return "uintptr", err
		}
		return "*" + elem, nil
	case *schema.ObjPointer:
		return exported(t.Type.Name), nil
	case *schema.LinearPointer, *schema.Blob:
		return "[]byte", nil
	case *schema.IntPointer, *schema.Opaque:
		return "uintptr", nil
	case *schema.Handle:
		return exported(t.Name), nil
	case *schema.Enum:
		return exported(t.Name), nil
	case *schema.Bitmask:
		return exported(t.Name), nil
	case *schema.Array:
		elem, err := goType(t.Type)
		if err != nil {
			return "", err
		}
		if elem == "" {
			return "", errors.Errorf("%s has void elements", schema.Describe(t))
		}
		return "[]" + elem, nil
	case *schema.AttribArray:
		return "[]Attrib", nil
	case *schema.Struct:
		return exported(t.Name), nil
	case *schema.Polymorphic:
		return "any", nil
	}
	return "", errors.Wrapf(schema.ErrUnsupported, "%s has no Go type", schema.Describe(t))
}

func literal(t *schema.Literal) (string, error) {
	switch t.Kind {
	case schema.Bool:
		return "bool", nil
	case schema.SInt, schema.UInt:
		switch t.Size {
		case 1, 2, 4, 8:
			if t.Kind == schema.SInt {
				return fmt.Sprintf("int%d", t.Size*8), nil
			}
			return fmt.Sprintf("uint%d", t.Size*8), nil
		}
	case schema.Float:
		return "float32", nil
	case schema.Double:
		return "float64", nil
	}
	return "", errors.Errorf("%s has no Go type", schema.Describe(t))
}

// scalar returns the Go type holding the raw value of a named scalar.
func scalar(t schema.Type) (string, error) {
	s, err := goType(t)
	if err != nil {
		return "", err
	}
	switch s {
	case "bool", "float32", "float64", "string", "":
		return "", errors.Errorf("%s is not an integer", schema.Describe(t))
	}
	return s, nil
}

// structOf returns the structure t refers to directly or through a pointer.
func structOf(t schema.Type) (*schema.Struct, bool) {
	switch t := schema.Underlying(t).(type) {
	case *schema.Struct:
		return t, true
	case *schema.Pointer:
		return structOf(t.Type)
	}
	return nil, false
}

// method returns the Go name of a function or method.
func method(f *schema.Function) string { return exported(f.Name) }
