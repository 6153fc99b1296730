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

package interp

import (
	"context"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/apil/codec"
	"github.com/apitrace/apitrace-sub000/apil/expr"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

// ErrNoProgram is returned when a call has no decode program.
var ErrNoProgram = errors.New("No decode program")

// Identity maps recorded identities to the ones created during replay.
type Identity interface {
	// LookupHandle returns the live value of a recorded handle. The zero
	// handle resolves to 0. The replayer resolves unknown handles to 0 and
	// reports them with ErrMiss.
	LookupHandle(ctx context.Context, h *schema.Handle, key int64, recorded uint64) uint64
	// RegisterHandle maps count consecutive recorded handles from recorded
	// onwards to the ones from live onwards.
	RegisterHandle(ctx context.Context, h *schema.Handle, key int64, recorded, live, count uint64)
	// LookupObject returns the live object at a recorded address, or nil.
	LookupObject(ctx context.Context, recorded uint64) any
	// RegisterObject maps a recorded object address to a live object.
	RegisterObject(ctx context.Context, recorded uint64, live any)
	// LookupRegion returns the live memory starting at a recorded address,
	// or nil.
	LookupRegion(ctx context.Context, recorded uint64) []byte
	// RegisterRegion maps a recorded address to live memory.
	RegisterRegion(ctx context.Context, recorded uint64, live []byte)
}

// Decoded is a call decoded to live values, ready to be invoked.
type Decoded struct {
	Call *codec.Call
	Wire *wire.Call
	// Args holds the live value of every argument by name. Output only
	// arguments hold storage allocated from the shape of the recorded value.
	Args map[string]any
	// Ret is the recorded return value, decoded.
	Ret      any
	Degraded bool
}

// Decoder reconstructs live argument values using a decode program.
type Decoder struct {
	prog *codec.Program
	ids  Identity
	root expr.Scope
}

// NewDecoder returns a Decoder of prog resolving identities with ids.
func NewDecoder(prog *codec.Program, ids Identity) *Decoder {
	return &Decoder{prog: prog, ids: ids, root: expr.Constants(prog.API.Constants)}
}

// Program returns the decode program.
func (d *Decoder) Program() *codec.Program { return d.prog }

// Decode allocates storage for the arguments of c, then fills the inputs.
func (d *Decoder) Decode(ctx context.Context, c *wire.Call) (*Decoded, error) {
	if c.Sig == nil || c.Sig.ID >= len(d.prog.Calls) || d.prog.Calls[c.Sig.ID] == nil {
		return nil, errors.Wrapf(ErrNoProgram, "Call %d", c.No)
	}
	prog := d.prog.Calls[c.Sig.ID]
	if prog.Func.Name != c.Sig.Name {
		return nil, errors.Errorf("Call %d is %s but signature %d is %s", c.No, c.Sig.Name, c.Sig.ID, prog.Func.Name)
	}
	out := &Decoded{Call: prog, Wire: c, Args: map[string]any{}, Degraded: prog.Degraded}
	recorded := func(a *codec.Arg) wire.Value {
		if a.Index < len(c.Args) && c.Args[a.Index] != nil {
			return c.Args[a.Index]
		}
		return wire.Null{}
	}
	for _, alloc := range prog.Alloc {
		a := arg(prog, alloc.Name)
		out.Args[a.Name] = allocate(alloc.Elem, recorded(a))
	}
	s := &frame{fields: out.Args, parent: d.root}
	// Instructions that evaluate expressions over their siblings are filled
	// after the others.
	for _, late := range []bool{false, true} {
		for _, a := range prog.Args {
			if !a.Input || a.Instr.Dependent() != late {
				continue
			}
			out.Args[a.Name] = d.decode(ctx, a.Instr, recorded(a), s, 0, out.Args[a.Name])
		}
	}
	for _, a := range prog.Args {
		if _, ok := out.Args[a.Name]; !ok {
			out.Args[a.Name] = nil
		}
	}
	if prog.Ret != nil && c.Ret != nil {
		out.Ret = d.decodeRecorded(ctx, prog.Ret, c.Ret, s)
	}
	return out, nil
}

func arg(c *codec.Call, name string) *codec.Arg {
	for _, a := range c.Args {
		if a.Name == name {
			return a
		}
	}
	panic("No argument " + name)
}

// allocate returns zeroed storage shaped like the recorded value w.
func allocate(in *codec.Instr, w wire.Value) any {
	if r, ok := w.(wire.Repr); ok {
		w = r.Machine
	}
	switch in.Op {
	case codec.OpArray:
		if a, ok := w.(wire.Array); ok {
			out := make([]any, len(a))
			for i, el := range a {
				out[i] = allocate(in.Elem, el)
			}
			return out
		}
	case codec.OpBlob:
		if b, ok := w.(wire.Blob); ok {
			return make([]byte, len(b))
		}
	case codec.OpPointer:
		if a, ok := w.(wire.Array); ok && len(a) > 0 {
			return allocate(in.Elem, a[0])
		}
	case codec.OpStruct:
		if st, ok := w.(wire.Struct); ok {
			out := make(map[string]any, len(in.Members))
			for i, m := range in.Members {
				var mw wire.Value = wire.Null{}
				if i < len(st.Members) {
					mw = st.Members[i]
				}
				out[m.Name] = allocate(m, mw)
			}
			return out
		}
	case codec.OpCall:
		return allocate(in.Routine.Body, w)
	case codec.OpAttribs:
		if a, ok := w.(wire.Array); ok {
			return make([]AttribPair, 0, len(a)/2)
		}
	case codec.OpString, codec.OpWString:
		return ""
	}
	return nil
}

// decodeRecorded decodes a value that is never handed to the live call,
// such as the recorded return value. Handles are left unmapped.
func (d *Decoder) decodeRecorded(ctx context.Context, in *codec.Instr, w wire.Value, s expr.Scope) any {
	return (&Decoder{prog: d.prog, ids: recordedIdentity{}, root: d.root}).decode(ctx, in, w, s, 0, nil)
}

func (d *Decoder) decode(ctx context.Context, in *codec.Instr, w wire.Value, s expr.Scope, sel int64, dst any) any {
	if r, ok := w.(wire.Repr); ok {
		w = r.Machine
	}
	switch in.Op {
	case codec.OpNull, codec.OpUnsupported:
		return nil
	case codec.OpBool:
		n, _ := wire.Int(w)
		return n != 0
	case codec.OpSInt, codec.OpEnum:
		n, ok := wire.Int(w)
		if !ok {
			log.W(ctx, "Cannot decode %v as %s", w.Tag(), in.Type.Tag())
		}
		return n
	case codec.OpUInt, codec.OpBitmask, codec.OpIntPointer, codec.OpOpaque:
		n, ok := wire.Int(w)
		if !ok {
			log.W(ctx, "Cannot decode %v as %s", w.Tag(), in.Type.Tag())
		}
		return uint64(n)
	case codec.OpFloat:
		return float32(toReal(w))
	case codec.OpDouble:
		return toReal(w)
	case codec.OpString:
		switch w := w.(type) {
		case wire.String:
			return string(w)
		case wire.WString:
			return string(w)
		}
		return nil
	case codec.OpWString:
		switch w := w.(type) {
		case wire.WString:
			return string(w)
		case wire.String:
			return string(w)
		}
		return nil
	case codec.OpBlob:
		b, ok := w.(wire.Blob)
		if !ok {
			return nil
		}
		out, ok := dst.([]byte)
		if !ok || len(out) != len(b) {
			out = make([]byte, len(b))
		}
		copy(out, b)
		return out
	case codec.OpArray:
		a, ok := w.(wire.Array)
		if !ok {
			return nil
		}
		out, ok := dst.([]any)
		if !ok || len(out) != len(a) {
			out = make([]any, len(a))
		}
		for i, el := range a {
			out[i] = d.decode(ctx, in.Elem, el, s, 0, out[i])
		}
		return out
	case codec.OpPointer:
		a, ok := w.(wire.Array)
		if !ok || len(a) == 0 {
			return nil
		}
		return d.decode(ctx, in.Elem, a[0], s, 0, dst)
	case codec.OpStruct:
		st, ok := w.(wire.Struct)
		if !ok {
			return nil
		}
		out, ok := dst.(map[string]any)
		if !ok {
			out = make(map[string]any, len(in.Members))
		}
		child := &frame{fields: out, parent: s}
		for _, late := range []bool{false, true} {
			for i, m := range in.Members {
				if m.Dependent() != late {
					continue
				}
				var mw wire.Value = wire.Null{}
				if i < len(st.Members) {
					mw = st.Members[i]
				}
				out[m.Name] = d.decode(ctx, m, mw, child, 0, out[m.Name])
			}
		}
		return out
	case codec.OpHandle:
		recorded, _ := toUint(d.decode(ctx, in.Elem, w, s, 0, nil))
		key := d.key(ctx, in, s)
		return d.ids.LookupHandle(ctx, in.Type.(*schema.Handle), key, recorded)
	case codec.OpObject:
		n, _ := wire.Int(w)
		if n == 0 {
			return nil
		}
		return d.ids.LookupObject(ctx, uint64(n))
	case codec.OpRegion:
		n, _ := wire.Int(w)
		if n == 0 {
			return nil
		}
		live := d.ids.LookupRegion(ctx, uint64(n))
		if live == nil {
			log.W(ctx, "No mapped region at 0x%x", n)
		}
		return live
	case codec.OpSwitch:
		if in.Expr != nil {
			n, err := in.Expr.Eval(s)
			if err != nil {
				log.W(ctx, "Selecting %s: %v", in.Type.Tag(), err)
				return nil
			}
			sel = n
		}
		arm, err := selected(in, sel, s)
		if err != nil || arm == nil {
			log.W(ctx, "No case of %s for %d", in.Type.Tag(), sel)
			return nil
		}
		return d.decode(ctx, arm, w, s, 0, dst)
	case codec.OpCall:
		if in.Routine.Selector {
			n, err := in.Expr.Eval(s)
			if err != nil {
				log.W(ctx, "Selecting %s: %v", in.Type.Tag(), err)
				return nil
			}
			sel = n
		}
		return d.decode(ctx, in.Routine.Body, w, d.root, sel, dst)
	case codec.OpAttribs:
		a, ok := w.(wire.Array)
		if !ok {
			return nil
		}
		term, err := in.Expr.Eval(s)
		if err != nil {
			log.W(ctx, "Terminating %s: %v", in.Type.Tag(), err)
			return nil
		}
		out, _ := dst.([]AttribPair)
		out = out[:0]
		for i := 0; i < len(a); i += 2 {
			k, _ := wire.Int(a[i])
			if k == term || i+1 >= len(a) {
				break
			}
			p := AttribPair{Key: k}
			if arm, err := selected(in, k, s); err == nil && arm != nil {
				p.Value = d.decode(ctx, arm, a[i+1], s, 0, nil)
			} else {
				log.W(ctx, "No value type for key %d of %s", k, in.Type.Tag())
			}
			out = append(out, p)
		}
		return out
	}
	log.W(ctx, "Cannot decode %v", in.Op)
	return nil
}

func (d *Decoder) key(ctx context.Context, in *codec.Instr, s expr.Scope) int64 {
	if in.Key == nil {
		return 0
	}
	k, err := in.Key.Eval(s)
	if err != nil {
		log.W(ctx, "Keying %s: %v", in.Type.Tag(), err)
	}
	return k
}

func toReal(w wire.Value) float64 {
	switch w := w.(type) {
	case wire.Float:
		return float64(w)
	case wire.Double:
		return float64(w)
	}
	n, _ := wire.Int(w)
	return float64(n)
}

// Register records the identities created by a call: every output handle,
// object and region, and the return value, paired with the recorded one.
// dec.Args and ret hold the values produced by the live call.
func (d *Decoder) Register(ctx context.Context, dec *Decoded, ret any) {
	s := &frame{fields: dec.Args, parent: d.root}
	for _, a := range dec.Call.Args {
		if !a.Output || a.Index >= len(dec.Wire.Args) || dec.Wire.Args[a.Index] == nil {
			continue
		}
		d.register(ctx, a.Instr, dec.Wire.Args[a.Index], dec.Args[a.Name], s, 0)
	}
	if dec.Call.Ret != nil && dec.Wire.Ret != nil {
		d.register(ctx, dec.Call.Ret, dec.Wire.Ret, ret, s, 0)
	}
}

func (d *Decoder) register(ctx context.Context, in *codec.Instr, w wire.Value, live any, s expr.Scope, sel int64) {
	if r, ok := w.(wire.Repr); ok {
		w = r.Machine
	}
	switch in.Op {
	case codec.OpHandle:
		recorded, ok := wire.Int(w)
		if !ok {
			return
		}
		l, ok := toUint(live)
		if !ok {
			log.W(ctx, "Cannot register %T as %s", live, in.Type.Tag())
			return
		}
		count := int64(1)
		if in.Expr != nil {
			n, err := in.Expr.Eval(s)
			if err != nil {
				log.W(ctx, "Ranging %s: %v", in.Type.Tag(), err)
			} else {
				count = n
			}
		}
		if count <= 0 {
			return
		}
		d.ids.RegisterHandle(ctx, in.Type.(*schema.Handle), d.key(ctx, in, s), uint64(recorded), l, uint64(count))
	case codec.OpObject:
		recorded, _ := wire.Int(w)
		if recorded != 0 && live != nil {
			d.ids.RegisterObject(ctx, uint64(recorded), live)
		}
	case codec.OpRegion:
		recorded, _ := wire.Int(w)
		b, ok := live.([]byte)
		if recorded == 0 || !ok {
			return
		}
		if n, err := in.Expr.Eval(s); err == nil {
			b = b[:clamp(n, len(b))]
		}
		d.ids.RegisterRegion(ctx, uint64(recorded), b)
	case codec.OpArray:
		a, _ := w.(wire.Array)
		elems, _ := elements(live)
		for i := 0; i < len(a) && i < len(elems); i++ {
			d.register(ctx, in.Elem, a[i], elems[i], s, 0)
		}
	case codec.OpPointer:
		if a, ok := w.(wire.Array); ok && len(a) > 0 {
			d.register(ctx, in.Elem, a[0], live, s, 0)
		}
	case codec.OpStruct:
		st, ok := w.(wire.Struct)
		fields, isMap := live.(map[string]any)
		if !ok || !isMap {
			return
		}
		child := &frame{fields: fields, parent: s}
		for i, m := range in.Members {
			if i < len(st.Members) {
				d.register(ctx, m, st.Members[i], fields[m.Name], child, 0)
			}
		}
	case codec.OpSwitch:
		if in.Expr != nil {
			n, err := in.Expr.Eval(s)
			if err != nil {
				return
			}
			sel = n
		}
		if arm, err := selected(in, sel, s); err == nil && arm != nil {
			d.register(ctx, arm, w, live, s, 0)
		}
	case codec.OpCall:
		if in.Routine.Selector {
			n, err := in.Expr.Eval(s)
			if err != nil {
				return
			}
			sel = n
		}
		d.register(ctx, in.Routine.Body, w, live, d.root, sel)
	case codec.OpAttribs:
		a, _ := w.(wire.Array)
		pairs, _ := live.([]AttribPair)
		for i, p := range pairs {
			if 2*i+1 >= len(a) {
				break
			}
			if arm, err := selected(in, p.Key, s); err == nil && arm != nil {
				d.register(ctx, arm, a[2*i+1], p.Value, s, 0)
			}
		}
	}
}

// recordedIdentity resolves every identity to its recorded value.
type recordedIdentity struct{}

func (recordedIdentity) LookupHandle(ctx context.Context, h *schema.Handle, key int64, recorded uint64) uint64 {
	return recorded
}
func (recordedIdentity) RegisterHandle(context.Context, *schema.Handle, int64, uint64, uint64, uint64) {
}
func (recordedIdentity) LookupObject(ctx context.Context, recorded uint64) any { return recorded }
func (recordedIdentity) RegisterObject(context.Context, uint64, any)           {}
func (recordedIdentity) LookupRegion(context.Context, uint64) []byte           { return nil }
func (recordedIdentity) RegisterRegion(context.Context, uint64, []byte)        {}
