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

// Package walk provides double-dispatch visitors over the schema descriptor
// model, and the standard walkers built on them: a plain traversal, a
// visit-once collector, and a rebuilding walk.
package walk

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/apil/schema"
)

// Visitor has one handler per non-transparent descriptor variant. Visit
// forwards through Const, Reference and Alias unless the visitor also
// implements Wrappers.
type Visitor[R any] interface {
	VisitVoid(*schema.Void) (R, error)
	VisitLiteral(*schema.Literal) (R, error)
	VisitString(*schema.String) (R, error)
	VisitPointer(*schema.Pointer) (R, error)
	VisitObjPointer(*schema.ObjPointer) (R, error)
	VisitLinearPointer(*schema.LinearPointer) (R, error)
	VisitIntPointer(*schema.IntPointer) (R, error)
	VisitHandle(*schema.Handle) (R, error)
	VisitEnum(*schema.Enum) (R, error)
	VisitBitmask(*schema.Bitmask) (R, error)
	VisitArray(*schema.Array) (R, error)
	VisitAttribArray(*schema.AttribArray) (R, error)
	VisitBlob(*schema.Blob) (R, error)
	VisitStruct(*schema.Struct) (R, error)
	VisitPolymorphic(*schema.Polymorphic) (R, error)
	VisitOpaque(*schema.Opaque) (R, error)
	VisitInterface(*schema.Interface) (R, error)
	VisitFunction(*schema.Function) (R, error)
	VisitModule(*schema.Module) (R, error)
	VisitAPI(*schema.API) (R, error)
}

// Wrappers is implemented by visitors that handle the transparent
// descriptors themselves.
type Wrappers[R any] interface {
	VisitConst(*schema.Const) (R, error)
	VisitReference(*schema.Reference) (R, error)
	VisitAlias(*schema.Alias) (R, error)
}

// Visit dispatches t to the handler of v for its variant.
func Visit[R any](v Visitor[R], t schema.Type) (R, error) {
	switch t := t.(type) {
	case *schema.Const:
		if w, ok := v.(Wrappers[R]); ok {
			return w.VisitConst(t)
		}
		return Visit(v, t.Type)
	case *schema.Reference:
		if w, ok := v.(Wrappers[R]); ok {
			return w.VisitReference(t)
		}
		return Visit(v, t.Type)
	case *schema.Alias:
		if w, ok := v.(Wrappers[R]); ok {
			return w.VisitAlias(t)
		}
		return Visit(v, t.Type)
	case *schema.Void:
		return v.VisitVoid(t)
	case *schema.Literal:
		return v.VisitLiteral(t)
	case *schema.String:
		return v.VisitString(t)
	case *schema.Pointer:
		return v.VisitPointer(t)
	case *schema.ObjPointer:
		return v.VisitObjPointer(t)
	case *schema.LinearPointer:
		return v.VisitLinearPointer(t)
	case *schema.IntPointer:
		return v.VisitIntPointer(t)
	case *schema.Handle:
		return v.VisitHandle(t)
	case *schema.Enum:
		return v.VisitEnum(t)
	case *schema.Bitmask:
		return v.VisitBitmask(t)
	case *schema.Array:
		return v.VisitArray(t)
	case *schema.AttribArray:
		return v.VisitAttribArray(t)
	case *schema.Blob:
		return v.VisitBlob(t)
	case *schema.Struct:
		return v.VisitStruct(t)
	case *schema.Polymorphic:
		return v.VisitPolymorphic(t)
	case *schema.Opaque:
		return v.VisitOpaque(t)
	case *schema.Interface:
		return v.VisitInterface(t)
	case *schema.Function:
		return v.VisitFunction(t)
	case *schema.Module:
		return v.VisitModule(t)
	case *schema.API:
		return v.VisitAPI(t)
	default:
		panic(fmt.Errorf("Unsupported descriptor type %T", t))
	}
}

// Unsupported implements every Visitor handler by returning an error whose
// cause is schema.ErrUnsupported. Embed it in walkers that only handle a
// subset of the variants.
type Unsupported[R any] struct{}

func unsupported[R any](t schema.Type) (R, error) {
	var zero R
	return zero, errors.Wrap(schema.ErrUnsupported, schema.Describe(t))
}

func (Unsupported[R]) VisitVoid(t *schema.Void) (R, error)       { return unsupported[R](t) }
func (Unsupported[R]) VisitLiteral(t *schema.Literal) (R, error) { return unsupported[R](t) }
func (Unsupported[R]) VisitString(t *schema.String) (R, error)   { return unsupported[R](t) }
func (Unsupported[R]) VisitPointer(t *schema.Pointer) (R, error) { return unsupported[R](t) }
func (Unsupported[R]) VisitObjPointer(t *schema.ObjPointer) (R, error) {
	return unsupported[R](t)
}
func (Unsupported[R]) VisitLinearPointer(t *schema.LinearPointer) (R, error) {
	return unsupported[R](t)
}
func (Unsupported[R]) VisitIntPointer(t *schema.IntPointer) (R, error) {
	return unsupported[R](t)
}
func (Unsupported[R]) VisitHandle(t *schema.Handle) (R, error)   { return unsupported[R](t) }
func (Unsupported[R]) VisitEnum(t *schema.Enum) (R, error)       { return unsupported[R](t) }
func (Unsupported[R]) VisitBitmask(t *schema.Bitmask) (R, error) { return unsupported[R](t) }
func (Unsupported[R]) VisitArray(t *schema.Array) (R, error)     { return unsupported[R](t) }
func (Unsupported[R]) VisitAttribArray(t *schema.AttribArray) (R, error) {
	return unsupported[R](t)
}
func (Unsupported[R]) VisitBlob(t *schema.Blob) (R, error)     { return unsupported[R](t) }
func (Unsupported[R]) VisitStruct(t *schema.Struct) (R, error) { return unsupported[R](t) }
func (Unsupported[R]) VisitPolymorphic(t *schema.Polymorphic) (R, error) {
	return unsupported[R](t)
}
func (Unsupported[R]) VisitOpaque(t *schema.Opaque) (R, error) { return unsupported[R](t) }
func (Unsupported[R]) VisitInterface(t *schema.Interface) (R, error) {
	return unsupported[R](t)
}
func (Unsupported[R]) VisitFunction(t *schema.Function) (R, error) { return unsupported[R](t) }
func (Unsupported[R]) VisitModule(t *schema.Module) (R, error)     { return unsupported[R](t) }
func (Unsupported[R]) VisitAPI(t *schema.API) (R, error)           { return unsupported[R](t) }
