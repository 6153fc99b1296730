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

package wire

// FunctionSig is the interned signature of a call.
type FunctionSig struct {
	ID       int
	Name     string
	ArgNames []string
}

// Arg returns the index of the named argument, or -1.
func (s *FunctionSig) Arg(name string) int {
	for i, n := range s.ArgNames {
		if n == name {
			return i
		}
	}
	return -1
}

// StructSig is the interned signature of a structure.
type StructSig struct {
	ID          int
	Name        string
	MemberNames []string
}

// EnumValue is a single named value of an EnumSig.
type EnumValue struct {
	Name  string
	Value int64
}

// EnumSig is the interned signature of an enumeration.
type EnumSig struct {
	ID     int
	Values []EnumValue
}

// Name returns the name of the first value equal to v.
func (s *EnumSig) Name(v int64) (string, bool) {
	for _, e := range s.Values {
		if e.Value == v {
			return e.Name, true
		}
	}
	return "", false
}

// BitmaskFlag is a single named flag of a BitmaskSig.
type BitmaskFlag struct {
	Name  string
	Value uint64
}

// BitmaskSig is the interned signature of a bitmask.
type BitmaskSig struct {
	ID    int
	Flags []BitmaskFlag
}

// Split returns the names of the flags set in v, and the bits not covered
// by any flag. A flag of value zero only matches when v is zero.
func (s *BitmaskSig) Split(v uint64) (names []string, rest uint64) {
	rest = v
	for _, f := range s.Flags {
		switch {
		case f.Value == 0:
			if v == 0 {
				names = append(names, f.Name)
			}
		case rest&f.Value == f.Value:
			names = append(names, f.Name)
			rest &^= f.Value
		}
	}
	return names, rest
}

// Frame is an interned stack frame of a call backtrace.
type Frame struct {
	ID       uint64
	Module   string
	Function string
	Filename string
	Line     uint64
	Offset   uint64
}

// Value is a decoded trace value.
type Value interface {
	Tag() Tag
}

type (
	// Null is the absent value, including null pointers.
	Null struct{}
	// Bool is a boolean.
	Bool bool
	// SInt is a signed integer.
	SInt int64
	// UInt is an unsigned integer.
	UInt uint64
	// Float is a single precision float.
	Float float32
	// Double is a double precision float.
	Double float64
	// String is a narrow string.
	String string
	// WString is a wide string.
	WString []rune
	// Blob is an untyped block of bytes.
	Blob []byte
	// Enum is a value of an enumeration.
	Enum struct {
		Sig   *EnumSig
		Value int64
	}
	// Bitmask is a value of a bitmask.
	Bitmask struct {
		Sig   *BitmaskSig
		Value uint64
	}
	// Array is a sequence of values.
	Array []Value
	// Struct is a structure value, with members in signature order.
	Struct struct {
		Sig     *StructSig
		Members []Value
	}
	// Pointer is an opaque address.
	Pointer uint64
	// Repr pairs a human readable value with its machine representation.
	Repr struct {
		Human   Value
		Machine Value
	}
)

func (Null) Tag() Tag { return TagNull }
func (v Bool) Tag() Tag {
	if v {
		return TagTrue
	}
	return TagFalse
}
func (v SInt) Tag() Tag {
	if v < 0 {
		return TagSInt
	}
	return TagUInt
}
func (UInt) Tag() Tag    { return TagUInt }
func (Float) Tag() Tag   { return TagFloat }
func (Double) Tag() Tag  { return TagDouble }
func (String) Tag() Tag  { return TagString }
func (WString) Tag() Tag { return TagWString }
func (Blob) Tag() Tag    { return TagBlob }
func (Enum) Tag() Tag    { return TagEnum }
func (Bitmask) Tag() Tag { return TagBitmask }
func (Array) Tag() Tag   { return TagArray }
func (Struct) Tag() Tag  { return TagStruct }
func (Pointer) Tag() Tag { return TagOpaque }
func (Repr) Tag() Tag    { return TagRepr }

// Member returns the named member of the structure, or nil.
func (s Struct) Member(name string) Value {
	for i, n := range s.Sig.MemberNames {
		if n == name && i < len(s.Members) {
			return s.Members[i]
		}
	}
	return nil
}

// Int returns the integer held by v. Enums, bitmasks, booleans, pointers
// and floats are converted, anything else reports false.
func Int(v Value) (int64, bool) {
	switch v := v.(type) {
	case SInt:
		return int64(v), true
	case UInt:
		return int64(v), true
	case Bool:
		if v {
			return 1, true
		}
		return 0, true
	case Enum:
		return v.Value, true
	case Bitmask:
		return int64(v.Value), true
	case Pointer:
		return int64(v), true
	case Float:
		return int64(v), true
	case Double:
		return int64(v), true
	case Null:
		return 0, true
	case Repr:
		return Int(v.Machine)
	}
	return 0, false
}

// Bits of Call.Flags.
const (
	FlagFake = 1 << iota
	FlagNonReproducible
	FlagNoSideEffects
	FlagRender
	FlagSwapRenderTarget
	FlagEndFrame
	FlagIncomplete
	FlagVerbose
)

// Call is a decoded call record.
type Call struct {
	No        uint64
	Sig       *FunctionSig
	Thread    uint64
	Args      []Value // indexed by argument, nil when not recorded
	Ret       Value   // nil when not recorded
	Backtrace []*Frame
	Flags     uint64
	// Incomplete is set for calls whose LEAVE never arrived before the end
	// of the stream.
	Incomplete bool
}

// Name returns the name of the called function.
func (c *Call) Name() string { return c.Sig.Name }

// Arg returns the value of the named argument, or nil.
func (c *Call) Arg(name string) Value {
	if i := c.Sig.Arg(name); i >= 0 && i < len(c.Args) {
		return c.Args[i]
	}
	return nil
}

func (c *Call) setArg(i int, v Value) {
	for len(c.Args) <= i {
		c.Args = append(c.Args, nil)
	}
	c.Args[i] = v
}
