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

package assert

import (
	"reflect"

	"github.com/google/go-cmp/cmp"
)

// OnSlice is the result of calling ThatSlice on an Assertion.
// It provides assertion tests that are specific to slice types.
type OnSlice struct {
	Assertion
	slice interface{}
}

// ThatSlice returns an OnSlice for assertions on slice type objects.
// Calling this with a non slice type will result in panics.
func (a Assertion) ThatSlice(slice interface{}) OnSlice {
	return OnSlice{Assertion: a, slice: slice}
}

// IsEmpty asserts that the slice was of length 0
func (o OnSlice) IsEmpty() bool {
	value := reflect.ValueOf(o.slice)
	return o.CompareRaw(value.Len(), "is", "empty").Test(value.Len() == 0)
}

// IsNotEmpty asserts that the slice has elements
func (o OnSlice) IsNotEmpty() bool {
	value := reflect.ValueOf(o.slice)
	return o.Compare(value.Len(), "length >", 0).Test(value.Len() > 0)
}

// IsLength asserts that the slice has exactly the specified number of elements
func (o OnSlice) IsLength(length int) bool {
	value := reflect.ValueOf(o.slice)
	return o.Compare(value.Len(), "length ==", length).Test(value.Len() == length)
}

// Equals asserts the array or slice matches expected.
func (o OnSlice) Equals(expected interface{}) bool {
	return o.slicesEqual(expected, func(a, b interface{}) bool { return a == b })
}

// DeepEquals asserts the array or slice matches expected using a deep-equal comparison.
func (o OnSlice) DeepEquals(expected interface{}) bool {
	return o.slicesEqual(expected, func(a, b interface{}) bool { return cmp.Equal(a, b) })
}

// slicesEqual prints one line per index, marking missing (-), extra (+) and
// differing (*) elements.
func (o OnSlice) slicesEqual(expected interface{}, same func(a, b interface{}) bool) bool {
	got, want := reflect.ValueOf(o.slice), reflect.ValueOf(expected)
	n := got.Len()
	if want.Len() > n {
		n = want.Len()
	}
	equal := true
	for i := 0; i < n; i++ {
		var g, w interface{}
		hasG, hasW := i < got.Len(), i < want.Len()
		if hasG {
			g = got.Index(i).Interface()
		}
		if hasW {
			w = want.Index(i).Interface()
		}
		switch {
		case !hasG:
			o.Printf("-\t%d\t\t\t==>\t%T\t", i, w)
			o.Println(w)
		case !hasW:
			o.Printf("+\t%d\t%T\t", i, g)
			o.Print(g)
			o.Rawln("\t;")
		case same(g, w):
			o.Printf("\t%d\t%T\t", i, g)
			o.Print(g)
			o.Rawln("\t;")
			continue
		default:
			o.Printf("*\t%d\t%T\t", i, g)
			o.Print(g)
			o.Printf("\t==>\t%T\t", w)
			o.Println(w)
		}
		equal = false
	}
	return o.Test(equal)
}
