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

package walk

import (
	"github.com/apitrace/apitrace-sub000/apil/schema"
)

// Rebuilder produces a copy of a descriptor graph with some nodes replaced.
// Structural descriptors whose children are unchanged are returned as is, and
// a node reached through several paths is rebuilt once. Declarations
// (structs, enums, handles, interfaces, functions) are never copied.
type Rebuilder struct {
	// B creates the rebuilt descriptors. The builder may be frozen.
	B *schema.Builder
	// Replace is consulted before a node is rebuilt. If it returns true the
	// returned descriptor is rebuilt in place of the original.
	Replace func(schema.Type) (schema.Type, bool)

	memo map[int]schema.Type
}

var (
	_ Visitor[schema.Type]  = &Rebuilder{}
	_ Wrappers[schema.Type] = &Rebuilder{}
)

// Rebuild returns the rebuilt form of t.
func (r *Rebuilder) Rebuild(t schema.Type) (schema.Type, error) {
	if t == nil {
		return nil, nil
	}
	if out, ok := r.memo[t.Index()]; ok {
		return out, nil
	}
	var out schema.Type
	var err error
	if u, ok := r.replace(t); ok {
		out, err = r.Rebuild(u)
	} else {
		out, err = Visit[schema.Type](r, t)
	}
	if err != nil {
		return nil, err
	}
	if r.memo == nil {
		r.memo = map[int]schema.Type{}
	}
	r.memo[t.Index()] = out
	return out, nil
}

func (r *Rebuilder) replace(t schema.Type) (schema.Type, bool) {
	if r.Replace == nil {
		return nil, false
	}
	u, ok := r.Replace(t)
	return u, ok && u != nil && u != t
}

func (r *Rebuilder) VisitConst(t *schema.Const) (schema.Type, error) {
	inner, err := r.Rebuild(t.Type)
	if err != nil || inner == t.Type {
		return t, err
	}
	return r.B.Const(inner), nil
}

func (r *Rebuilder) VisitReference(t *schema.Reference) (schema.Type, error) {
	inner, err := r.Rebuild(t.Type)
	if err != nil || inner == t.Type {
		return t, err
	}
	return r.B.Reference(inner), nil
}

// VisitAlias drops the alias name if the aliased type changes.
func (r *Rebuilder) VisitAlias(t *schema.Alias) (schema.Type, error) {
	inner, err := r.Rebuild(t.Type)
	if err != nil || inner == t.Type {
		return t, err
	}
	return inner, nil
}

func (r *Rebuilder) VisitVoid(t *schema.Void) (schema.Type, error)       { return t, nil }
func (r *Rebuilder) VisitLiteral(t *schema.Literal) (schema.Type, error) { return t, nil }
func (r *Rebuilder) VisitString(t *schema.String) (schema.Type, error)   { return t, nil }
func (r *Rebuilder) VisitObjPointer(t *schema.ObjPointer) (schema.Type, error) {
	return t, nil
}
func (r *Rebuilder) VisitIntPointer(t *schema.IntPointer) (schema.Type, error) {
	return t, nil
}
func (r *Rebuilder) VisitHandle(t *schema.Handle) (schema.Type, error)   { return t, nil }
func (r *Rebuilder) VisitEnum(t *schema.Enum) (schema.Type, error)       { return t, nil }
func (r *Rebuilder) VisitBitmask(t *schema.Bitmask) (schema.Type, error) { return t, nil }
func (r *Rebuilder) VisitStruct(t *schema.Struct) (schema.Type, error)   { return t, nil }
func (r *Rebuilder) VisitOpaque(t *schema.Opaque) (schema.Type, error)   { return t, nil }
func (r *Rebuilder) VisitInterface(t *schema.Interface) (schema.Type, error) {
	return t, nil
}
func (r *Rebuilder) VisitFunction(t *schema.Function) (schema.Type, error) { return t, nil }
func (r *Rebuilder) VisitModule(t *schema.Module) (schema.Type, error)     { return t, nil }
func (r *Rebuilder) VisitAPI(t *schema.API) (schema.Type, error)           { return t, nil }

func (r *Rebuilder) VisitPointer(t *schema.Pointer) (schema.Type, error) {
	inner, err := r.Rebuild(t.Type)
	if err != nil || inner == t.Type {
		return t, err
	}
	return r.B.Pointer(inner), nil
}

func (r *Rebuilder) VisitLinearPointer(t *schema.LinearPointer) (schema.Type, error) {
	inner, err := r.Rebuild(t.Type)
	if err != nil || inner == t.Type {
		return t, err
	}
	return r.B.LinearPointer(inner, t.Size), nil
}

func (r *Rebuilder) VisitArray(t *schema.Array) (schema.Type, error) {
	inner, err := r.Rebuild(t.Type)
	if err != nil || inner == t.Type {
		return t, err
	}
	return r.B.Array(inner, t.Length), nil
}

func (r *Rebuilder) VisitBlob(t *schema.Blob) (schema.Type, error) {
	inner, err := r.Rebuild(t.Type)
	if err != nil || inner == t.Type {
		return t, err
	}
	return r.B.Blob(inner, t.Size), nil
}

func (r *Rebuilder) VisitAttribArray(t *schema.AttribArray) (schema.Type, error) {
	changed := false
	key, err := r.Rebuild(t.Key)
	if err != nil {
		return nil, err
	}
	changed = changed || key != t.Key
	def, err := r.Rebuild(t.Default)
	if err != nil {
		return nil, err
	}
	changed = changed || def != t.Default
	cases := make([]schema.AttribCase, len(t.Cases))
	for i, c := range t.Cases {
		ty, err := r.Rebuild(c.Type)
		if err != nil {
			return nil, err
		}
		changed = changed || ty != c.Type
		cases[i] = schema.AttribCase{Key: c.Key, Type: ty}
	}
	if !changed {
		return t, nil
	}
	return r.B.AttribArray(key, t.Terminator, def, cases...), nil
}

func (r *Rebuilder) VisitPolymorphic(t *schema.Polymorphic) (schema.Type, error) {
	def, err := r.Rebuild(t.Default)
	if err != nil {
		return nil, err
	}
	changed := def != t.Default
	cases := make([]schema.Case, len(t.Cases))
	for i, c := range t.Cases {
		ty, err := r.Rebuild(c.Type)
		if err != nil {
			return nil, err
		}
		changed = changed || ty != c.Type
		cases[i] = schema.Case{Values: c.Values, Type: ty}
	}
	if !changed {
		return t, nil
	}
	return r.B.Polymorphic(t.Switch, t.ContextFree, def, cases...), nil
}

// Mutable returns t with every Const and Reference stripped, the form used
// to declare the storage that decoded values are written into.
func Mutable(b *schema.Builder, t schema.Type) (schema.Type, error) {
	r := &Rebuilder{B: b, Replace: func(t schema.Type) (schema.Type, bool) {
		switch t := t.(type) {
		case *schema.Const:
			return t.Type, true
		case *schema.Reference:
			return t.Type, true
		}
		return nil, false
	}}
	return r.Rebuild(t)
}
