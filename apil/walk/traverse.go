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

import "github.com/apitrace/apitrace-sub000/apil/schema"

// Children returns the direct child descriptors of t in declaration order.
// Object pointers are leaves: their interface is reached through the module
// that declares it.
func Children(t schema.Type) []schema.Type {
	switch t := t.(type) {
	case *schema.Const:
		return []schema.Type{t.Type}
	case *schema.Reference:
		return []schema.Type{t.Type}
	case *schema.Alias:
		return []schema.Type{t.Type}
	case *schema.Pointer:
		return []schema.Type{t.Type}
	case *schema.LinearPointer:
		return []schema.Type{t.Type}
	case *schema.Handle:
		out := []schema.Type{t.Type}
		if t.Key != nil {
			out = append(out, t.Key.Type)
		}
		return out
	case *schema.Enum:
		return []schema.Type{t.Type}
	case *schema.Bitmask:
		return []schema.Type{t.Type}
	case *schema.Array:
		return []schema.Type{t.Type}
	case *schema.Blob:
		return []schema.Type{t.Type}
	case *schema.AttribArray:
		out := []schema.Type{t.Key}
		for _, c := range t.Cases {
			out = append(out, c.Type)
		}
		if t.Default != nil {
			out = append(out, t.Default)
		}
		return out
	case *schema.Struct:
		out := make([]schema.Type, len(t.Members))
		for i, m := range t.Members {
			out[i] = m.Type
		}
		return out
	case *schema.Polymorphic:
		out := make([]schema.Type, 0, len(t.Cases)+1)
		for _, c := range t.Cases {
			out = append(out, c.Type)
		}
		if t.Default != nil {
			out = append(out, t.Default)
		}
		return out
	case *schema.Interface:
		out := []schema.Type{}
		if t.Base != nil {
			out = append(out, t.Base)
		}
		for _, m := range t.Methods {
			out = append(out, m)
		}
		return out
	case *schema.Function:
		out := []schema.Type{t.Return}
		for _, a := range t.Args {
			out = append(out, a.Type)
		}
		return out
	case *schema.Module:
		out := []schema.Type{}
		for _, f := range t.Functions {
			out = append(out, f)
		}
		for _, i := range t.Interfaces {
			out = append(out, i)
		}
		return out
	case *schema.API:
		out := make([]schema.Type, len(t.Modules))
		for i, m := range t.Modules {
			out[i] = m
		}
		return out
	}
	return nil
}

// Traverse calls f for t and then, if f returns true, for each descendant in
// depth-first pre-order. A node that is already on the current path is not
// entered again, so self-referential graphs terminate. Shared nodes reached
// by different paths are visited once per path.
func Traverse(t schema.Type, f func(schema.Type) bool) {
	onPath := bitset{}
	var walk func(t schema.Type)
	walk = func(t schema.Type) {
		if t == nil || onPath.has(t.Index()) {
			return
		}
		if !f(t) {
			return
		}
		onPath.set(t.Index())
		for _, c := range Children(t) {
			walk(c)
		}
		onPath.clear(t.Index())
	}
	walk(t)
}

// Contains returns true if pred holds for t or any of its descendants.
func Contains(t schema.Type, pred func(schema.Type) bool) bool {
	found := false
	Traverse(t, func(n schema.Type) bool {
		if found {
			return false
		}
		if pred(n) {
			found = true
			return false
		}
		return true
	})
	return found
}
