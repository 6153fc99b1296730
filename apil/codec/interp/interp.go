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

// Package interp executes codec programs directly against live Go values,
// without generating source.
//
// Live values are represented as follows: bool, int64 and uint64 scalars
// (enums are int64, bitmasks and handles uint64), float32 and float64,
// string for both string kinds, []byte for blobs and mapped regions, []any
// for arrays, map[string]any for structures and []AttribPair for attribute
// lists. A pointer is represented by its pointee, or nil.
package interp

import (
	"math"
	"reflect"

	"github.com/apitrace/apitrace-sub000/apil/codec"
	"github.com/apitrace/apitrace-sub000/apil/expr"
)

// AttribPair is one entry of an attribute list.
type AttribPair struct {
	Key   int64
	Value any
}

// frame is the expression scope of a structure or call: its own fields,
// then its parent.
type frame struct {
	fields map[string]any
	parent expr.Scope
}

func (f *frame) Lookup(name string) (any, bool) {
	if v, ok := f.fields[name]; ok {
		return v, true
	}
	if f.parent != nil {
		return f.parent.Lookup(name)
	}
	return nil, false
}

// selected returns the case of in whose values match sel, or in.Default.
func selected(in *codec.Instr, sel int64, s expr.Scope) (*codec.Instr, error) {
	for _, c := range in.Cases {
		for _, v := range c.Values {
			n, err := v.Eval(s)
			if err != nil {
				return nil, err
			}
			if n == sel {
				return c.Body, nil
			}
		}
	}
	return in.Default, nil
}

func toUint(v any) (uint64, bool) {
	switch v := v.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uintptr:
		return uint64(v), true
	}
	n, err := expr.ToInt(v)
	return uint64(n), err == nil
}

func toInt(v any) (int64, bool) {
	n, err := expr.ToInt(v)
	return n, err == nil
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}
	n, err := expr.ToInt(v)
	return float64(n), err == nil
}

// elements returns the elements of a slice of any element type.
func elements(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	r := reflect.ValueOf(v)
	if r.Kind() != reflect.Slice && r.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, r.Len())
	for i := range out {
		out[i] = r.Index(i).Interface()
	}
	return out, true
}

// clamp limits the evaluated count n to the available length.
func clamp(n int64, available int) int {
	if n < 0 {
		return 0
	}
	if n > int64(available) || n > math.MaxInt32 {
		return available
	}
	return int(n)
}
