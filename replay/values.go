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

package replay

import (
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

// The accessors below read recorded values leniently: a value of the wrong
// kind reads as the zero value. Generated replay code is built on them.

// Arg returns the recorded value of argument i of c, or Null.
func Arg(c *wire.Call, i int) wire.Value {
	if i < len(c.Args) && c.Args[i] != nil {
		return c.Args[i]
	}
	return wire.Null{}
}

// Int returns the integer held by v.
func Int(v wire.Value) int64 {
	n, _ := wire.Int(v)
	return n
}

// Float returns the floating point number held by v.
func Float(v wire.Value) float64 {
	switch v := v.(type) {
	case wire.Float:
		return float64(v)
	case wire.Double:
		return float64(v)
	case wire.Repr:
		return Float(v.Machine)
	}
	return float64(Int(v))
}

// String returns the string held by v.
func String(v wire.Value) string {
	switch v := v.(type) {
	case wire.String:
		return string(v)
	case wire.WString:
		return string(v)
	case wire.Repr:
		return String(v.Machine)
	}
	return ""
}

// Blob returns the bytes held by v.
func Blob(v wire.Value) []byte {
	switch v := v.(type) {
	case wire.Blob:
		return v
	case wire.String:
		return []byte(v)
	}
	return nil
}

// Elems returns the elements of an array value.
func Elems(v wire.Value) []wire.Value {
	a, _ := v.(wire.Array)
	return a
}

// Member returns member i of a structure value, or Null.
func Member(v wire.Value, i int) wire.Value {
	if s, ok := v.(wire.Struct); ok && i < len(s.Members) {
		return s.Members[i]
	}
	return wire.Null{}
}

// Pointee returns the value a recorded pointer points to, and false for null
// pointers.
func Pointee(v wire.Value) (wire.Value, bool) {
	if a, ok := v.(wire.Array); ok && len(a) > 0 {
		return a[0], true
	}
	return nil, false
}

// Trim returns b limited to n bytes.
func Trim(b []byte, n int64) []byte {
	switch {
	case n < 0:
		return b[:0]
	case n < int64(len(b)):
		return b[:n]
	}
	return b
}
