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

import (
	"bufio"
	"io"
	"sync"

	"go.uber.org/atomic"

	"github.com/apitrace/apitrace-sub000/core/data/leb128"
)

// Writer encodes calls to a trace stream.
//
// The framing of one call event, from BeginEnter to EndEnter or from
// BeginLeave to EndLeave, holds the writer lock, so events from different
// goroutines never interleave. Value methods must only be called inside a
// framing.
type Writer struct {
	mu       sync.Mutex
	out      *bufio.Writer
	w        *leb128.Writer
	next     atomic.Uint64
	calls    seen
	structs  seen
	enums    seen
	bitmasks seen
	frames   map[uint64]bool
}

type seen []bool

func (s *seen) first(id int) bool {
	for len(*s) <= id {
		*s = append(*s, false)
	}
	if (*s)[id] {
		return false
	}
	(*s)[id] = true
	return true
}

// NewWriter returns a Writer that writes the stream header and then the
// encoded calls to w.
func NewWriter(w io.Writer) *Writer {
	out := bufio.NewWriter(w)
	wr := &Writer{out: out, w: leb128.NewWriter(out), frames: map[uint64]bool{}}
	wr.w.Uint(Version)
	return wr
}

// Error returns the first error encountered while writing.
func (w *Writer) Error() error { return w.w.Error() }

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.w.Error(); err != nil {
		return err
	}
	return w.out.Flush()
}

// Calls returns the number of calls begun so far.
func (w *Writer) Calls() uint64 { return w.next.Load() }

// BeginEnter starts the ENTER event of a new call and returns its number.
// A non-zero thread is recorded with the call.
func (w *Writer) BeginEnter(sig *FunctionSig, thread uint64) uint64 {
	w.mu.Lock()
	no := w.next.Inc() - 1
	w.w.Uint8(EventEnter)
	w.w.Uint(uint64(sig.ID))
	if w.calls.first(sig.ID) {
		w.w.String(sig.Name)
		w.w.Uint(uint64(len(sig.ArgNames)))
		for _, n := range sig.ArgNames {
			w.w.String(n)
		}
	}
	if thread != 0 {
		w.w.Uint8(CallThread)
		w.w.Uint(thread)
	}
	return no
}

// EndEnter ends the ENTER event.
func (w *Writer) EndEnter() {
	w.w.Uint8(CallEnd)
	w.mu.Unlock()
}

// BeginLeave starts the LEAVE event of call no.
func (w *Writer) BeginLeave(no uint64) {
	w.mu.Lock()
	w.w.Uint8(EventLeave)
	w.w.Uint(no)
}

// EndLeave ends the LEAVE event and flushes the stream, so that a crash of
// the traced process loses at most the calls still in flight.
func (w *Writer) EndLeave() {
	w.w.Uint8(CallEnd)
	if w.w.Error() == nil {
		w.w.SetError(w.out.Flush())
	}
	w.mu.Unlock()
}

// BeginArg starts the value of argument index.
func (w *Writer) BeginArg(index int) {
	w.w.Uint8(CallArg)
	w.w.Uint(uint64(index))
}

// BeginReturn starts the return value.
func (w *Writer) BeginReturn() { w.w.Uint8(CallRet) }

// WriteFlags records call flags. Zero flags are not written.
func (w *Writer) WriteFlags(flags uint64) {
	if flags != 0 {
		w.w.Uint8(CallFlags)
		w.w.Uint(flags)
	}
}

// WriteBacktrace records the stack of the call. Frames are interned by ID.
func (w *Writer) WriteBacktrace(frames []*Frame) {
	if len(frames) == 0 {
		return
	}
	w.w.Uint8(CallBacktrace)
	w.w.Uint(uint64(len(frames)))
	for _, f := range frames {
		w.w.Uint(f.ID)
		if w.frames[f.ID] {
			continue
		}
		w.frames[f.ID] = true
		if f.Module != "" {
			w.w.Uint8(FrameModule)
			w.w.String(f.Module)
		}
		if f.Function != "" {
			w.w.Uint8(FrameFunction)
			w.w.String(f.Function)
		}
		if f.Filename != "" {
			w.w.Uint8(FrameFilename)
			w.w.String(f.Filename)
			w.w.Uint8(FrameLine)
			w.w.Uint(f.Line)
		}
		if f.Offset != 0 {
			w.w.Uint8(FrameOffset)
			w.w.Uint(f.Offset)
		}
		w.w.Uint8(FrameEnd)
	}
}

func (w *Writer) tag(t Tag) { w.w.Uint8(uint8(t)) }

// WriteNull writes a null value.
func (w *Writer) WriteNull() { w.tag(TagNull) }

// WriteBool writes a boolean.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.tag(TagTrue)
	} else {
		w.tag(TagFalse)
	}
}

// WriteSInt writes a signed integer. Negative values are written as their
// magnitude with the SINT tag, others as UINT.
func (w *Writer) WriteSInt(v int64) {
	if v < 0 {
		w.tag(TagSInt)
		w.w.Uint(uint64(-v))
	} else {
		w.tag(TagUInt)
		w.w.Uint(uint64(v))
	}
}

// WriteUInt writes an unsigned integer.
func (w *Writer) WriteUInt(v uint64) {
	w.tag(TagUInt)
	w.w.Uint(v)
}

// WriteFloat writes a single precision float.
func (w *Writer) WriteFloat(v float32) {
	w.tag(TagFloat)
	w.w.Float32(v)
}

// WriteDouble writes a double precision float.
func (w *Writer) WriteDouble(v float64) {
	w.tag(TagDouble)
	w.w.Float64(v)
}

// WriteString writes a narrow string.
func (w *Writer) WriteString(v string) {
	w.tag(TagString)
	w.w.String(v)
}

// WriteWString writes a wide string, one varint per code point.
func (w *Writer) WriteWString(v []rune) {
	w.tag(TagWString)
	w.w.Uint(uint64(len(v)))
	for _, r := range v {
		w.w.Uint(uint64(r))
	}
}

// WriteBlob writes a block of bytes.
func (w *Writer) WriteBlob(v []byte) {
	w.tag(TagBlob)
	w.w.Bytes(v)
}

// WriteEnum writes an enumeration value, defining the signature the first
// time it is used.
func (w *Writer) WriteEnum(sig *EnumSig, v int64) {
	w.tag(TagEnum)
	w.w.Uint(uint64(sig.ID))
	if w.enums.first(sig.ID) {
		w.w.Uint(uint64(len(sig.Values)))
		for _, e := range sig.Values {
			w.w.String(e.Name)
			w.WriteSInt(e.Value)
		}
	}
	w.WriteSInt(v)
}

// WriteBitmask writes a bitmask value, defining the signature the first time
// it is used.
func (w *Writer) WriteBitmask(sig *BitmaskSig, v uint64) {
	w.tag(TagBitmask)
	w.w.Uint(uint64(sig.ID))
	if w.bitmasks.first(sig.ID) {
		w.w.Uint(uint64(len(sig.Flags)))
		for _, f := range sig.Flags {
			w.w.String(f.Name)
			w.w.Uint(f.Value)
		}
	}
	w.w.Uint(v)
}

// BeginArray starts an array of n values.
func (w *Writer) BeginArray(n int) {
	w.tag(TagArray)
	w.w.Uint(uint64(n))
}

// EndArray ends an array.
func (w *Writer) EndArray() {}

// BeginStruct starts a structure, defining the signature the first time it
// is used. It must be followed by one value per member.
func (w *Writer) BeginStruct(sig *StructSig) {
	w.tag(TagStruct)
	w.w.Uint(uint64(sig.ID))
	if w.structs.first(sig.ID) {
		w.w.String(sig.Name)
		w.w.Uint(uint64(len(sig.MemberNames)))
		for _, n := range sig.MemberNames {
			w.w.String(n)
		}
	}
}

// EndStruct ends a structure.
func (w *Writer) EndStruct() {}

// WritePointer writes an opaque address. Zero is written as null.
func (w *Writer) WritePointer(addr uint64) {
	if addr == 0 {
		w.WriteNull()
		return
	}
	w.tag(TagOpaque)
	w.w.Uint(addr)
}

// BeginRepr starts a pair of human and machine values.
func (w *Writer) BeginRepr() { w.tag(TagRepr) }

// WriteValue writes a decoded value.
func (w *Writer) WriteValue(v Value) {
	switch v := v.(type) {
	case nil, Null:
		w.WriteNull()
	case Bool:
		w.WriteBool(bool(v))
	case SInt:
		w.WriteSInt(int64(v))
	case UInt:
		w.WriteUInt(uint64(v))
	case Float:
		w.WriteFloat(float32(v))
	case Double:
		w.WriteDouble(float64(v))
	case String:
		w.WriteString(string(v))
	case WString:
		w.WriteWString(v)
	case Blob:
		w.WriteBlob(v)
	case Enum:
		w.WriteEnum(v.Sig, v.Value)
	case Bitmask:
		w.WriteBitmask(v.Sig, v.Value)
	case Array:
		w.BeginArray(len(v))
		for _, e := range v {
			w.WriteValue(e)
		}
		w.EndArray()
	case Struct:
		w.BeginStruct(v.Sig)
		for i := range v.Sig.MemberNames {
			if i < len(v.Members) {
				w.WriteValue(v.Members[i])
			} else {
				w.WriteNull()
			}
		}
		w.EndStruct()
	case Pointer:
		w.WritePointer(uint64(v))
	case Repr:
		w.BeginRepr()
		w.WriteValue(v.Human)
		w.WriteValue(v.Machine)
	}
}
