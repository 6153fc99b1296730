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

// Package codec derives value level encode and decode programs from a
// schema. A program is a tree of instructions per call signature, plus one
// shared routine per structure and per context free union, which a backend
// either interprets or renders as source.
package codec

import (
	"fmt"
	"strings"

	"github.com/apitrace/apitrace-sub000/apil/expr"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

// Mode selects the half of the codec a program implements.
type Mode int

const (
	// Encode programs serialize live values at capture time.
	Encode Mode = iota
	// Decode programs deserialize trace values at replay time.
	Decode
)

func (m Mode) String() string {
	if m == Encode {
		return "encode"
	}
	return "decode"
}

// Op is the operation of an instruction.
type Op int

const (
	OpNull Op = iota
	OpBool
	OpSInt
	OpUInt
	OpFloat
	OpDouble
	OpString
	OpWString
	OpBlob
	OpEnum
	OpBitmask
	OpArray
	OpStruct
	OpPointer
	OpOpaque
	OpHandle
	OpObject
	OpRegion
	OpIntPointer
	OpSwitch
	OpAttribs
	OpCall
	OpAlloc
	OpUnsupported
)

var opNames = [...]string{
	"Null", "Bool", "SInt", "UInt", "Float", "Double", "String", "WString",
	"Blob", "Enum", "Bitmask", "Array", "Struct", "Pointer", "Opaque",
	"Handle", "Object", "Region", "IntPointer", "Switch", "Attribs", "Call",
	"Alloc", "Unsupported",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Instr codes a single value.
//
// Name is the struct member or call argument the value is taken from, or
// empty when the instruction codes the value of its parent directly.
type Instr struct {
	Op      Op
	Type    schema.Type
	Name    string
	Expr    *expr.Expr // length, size, range or selector
	Key     *expr.Expr // handle key, nil for unkeyed handles
	Elem    *Instr     // array element, pointee, handle scalar, attribute key
	Members []*Instr   // struct members in declaration order
	Cases   []*Case    // union arms or attribute values by key
	Default *Instr     // may be nil
	Routine *Routine   // OpCall target
}

// Case is an arm of an OpSwitch or a keyed value of an OpAttribs.
type Case struct {
	Values []*expr.Expr
	Body   *Instr
}

// Routine is a shared program for a complex type, coded once and called from
// every use site.
type Routine struct {
	Name string
	Type schema.Type
	Body *Instr
	// Selector is set for union routines, whose arm is selected by a value
	// evaluated at the call site.
	Selector bool
}

// Arg is the program for one argument of a call.
type Arg struct {
	Index  int
	Name   string
	Input  bool
	Output bool
	Instr  *Instr
}

// Call is the program for one call signature.
type Call struct {
	Func *schema.Function
	Sig  *wire.FunctionSig
	Args []*Arg
	Ret  *Instr // nil for void functions
	// Alloc lists, for decode programs, the arguments that need storage
	// sized from the trace before inputs are filled and outputs written.
	Alloc []*Instr
	// Degraded is set for decode programs that cannot reconstruct every
	// input.
	Degraded bool
}

// Program is the complete codec of an API for one mode.
type Program struct {
	Mode     Mode
	API      *schema.API
	Sigs     *Sigs
	Routines []*Routine
	Calls    []*Call // indexed by call ID, nil for calls the tracer fakes
}

// Call returns the program for f, or nil.
func (p *Program) Call(f *schema.Function) *Call {
	if f.ID < len(p.Calls) {
		return p.Calls[f.ID]
	}
	return nil
}

// String returns a readable listing of the instruction tree.
func (i *Instr) String() string {
	sb := &strings.Builder{}
	i.dump(sb, 0)
	return sb.String()
}

func (i *Instr) dump(sb *strings.Builder, depth int) {
	if i == nil {
		return
	}
	fmt.Fprintf(sb, "%s%v", strings.Repeat("  ", depth), i.Op)
	if i.Name != "" {
		fmt.Fprintf(sb, " %s", i.Name)
	}
	if i.Type != nil {
		fmt.Fprintf(sb, " <%s>", i.Type.Tag())
	}
	if i.Expr != nil {
		fmt.Fprintf(sb, " [%s]", i.Expr)
	}
	if i.Key != nil {
		fmt.Fprintf(sb, " key(%s)", i.Key)
	}
	if i.Routine != nil {
		fmt.Fprintf(sb, " -> %s", i.Routine.Name)
	}
	sb.WriteString("\n")
	i.Elem.dump(sb, depth+1)
	for _, m := range i.Members {
		m.dump(sb, depth+1)
	}
	for _, c := range i.Cases {
		vals := make([]string, len(c.Values))
		for j, v := range c.Values {
			vals[j] = v.String()
		}
		fmt.Fprintf(sb, "%scase %s:\n", strings.Repeat("  ", depth+1), strings.Join(vals, ", "))
		c.Body.dump(sb, depth+2)
	}
	if i.Default != nil {
		fmt.Fprintf(sb, "%sdefault:\n", strings.Repeat("  ", depth+1))
		i.Default.dump(sb, depth+2)
	}
}

// Contains returns true if pred holds for i or any instruction below it.
// Shared routines are not entered.
func (i *Instr) Contains(pred func(*Instr) bool) bool {
	if i == nil {
		return false
	}
	if pred(i) {
		return true
	}
	if i.Elem.Contains(pred) || i.Default.Contains(pred) {
		return true
	}
	for _, m := range i.Members {
		if m.Contains(pred) {
			return true
		}
	}
	for _, c := range i.Cases {
		if c.Body.Contains(pred) {
			return true
		}
	}
	return false
}

// Dependent returns true if i selects or keys values by expressions over
// the enclosing scope. Decoders fill such values after their siblings.
func (i *Instr) Dependent() bool {
	return i.Contains(func(n *Instr) bool {
		switch n.Op {
		case OpSwitch:
			return n.Expr != nil
		case OpCall:
			return n.Routine.Selector
		case OpHandle:
			return n.Key != nil
		}
		return false
	})
}

// Reaches is like Contains but also follows OpCall instructions into their
// routines, each at most once.
func Reaches(i *Instr, pred func(*Instr) bool) bool {
	seen := map[*Routine]bool{}
	var reach func(i *Instr) bool
	reach = func(i *Instr) bool {
		return i.Contains(func(n *Instr) bool {
			if pred(n) {
				return true
			}
			if n.Routine != nil && !seen[n.Routine] {
				seen[n.Routine] = true
				return reach(n.Routine.Body)
			}
			return false
		})
	}
	return reach(i)
}
