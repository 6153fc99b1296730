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

// Package capture records calls of a live implementation to a trace.
package capture

import (
	"context"
	"io"
	"reflect"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/apil/codec"
	"github.com/apitrace/apitrace-sub000/apil/codec/interp"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/trace/stream"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

// Options configures a Tracer.
type Options struct {
	// Compression is the transport encoding of the trace.
	Compression stream.Compression
	// Shadow keeps a copy of mapped regions so only the bytes that changed
	// are recorded when a region is flushed. Without it whole regions are
	// recorded.
	Shadow bool
}

// Tracer writes the calls of one process to a trace.
type Tracer struct {
	Wrappers *WrapperCache

	opts   Options
	prog   *codec.Program
	out    io.WriteCloser
	w      *wire.Writer
	enc    *interp.Encoder
	memcpy *wire.FunctionSig
	shadow *Shadow
	ifaces map[string]*schema.Interface
}

// New returns a Tracer encoding with prog and writing to out.
func New(ctx context.Context, out io.Writer, prog *codec.Program, opts Options) (*Tracer, error) {
	if prog.Mode != codec.Encode {
		return nil, errors.Errorf("Tracing with a %v program", prog.Mode)
	}
	s, err := stream.Create(out, opts.Compression)
	if err != nil {
		return nil, err
	}
	t := &Tracer{
		Wrappers: NewWrapperCache(),
		opts:     opts,
		prog:     prog,
		out:      s,
		w:        wire.NewWriter(s),
		memcpy:   prog.Sigs.Call(prog.API.Call(0)),
		shadow:   NewShadow(),
		ifaces:   map[string]*schema.Interface{},
	}
	for _, d := range prog.API.Types {
		if i, ok := d.(*schema.Interface); ok {
			t.ifaces[i.Name] = i
		}
	}
	t.enc = interp.NewEncoder(prog, t.w)
	t.enc.AddressOf = t.AddressOf
	log.D(ctx, "Tracing %s with %v compression", prog.API.Name, opts.Compression)
	return t, nil
}

// Writer returns the trace writer, for generated wrappers that encode
// arguments themselves.
func (t *Tracer) Writer() *wire.Writer { return t.w }

// Sigs returns the wire signatures of the traced API.
func (t *Tracer) Sigs() *codec.Sigs { return t.prog.Sigs }

// Interface returns the interface with the given name, or nil.
func (t *Tracer) Interface(name string) *schema.Interface { return t.ifaces[name] }

// AddressOf returns the address recorded for a live object. Wrappers record
// the address of the object they wrap.
func (t *Tracer) AddressOf(obj any) uint64 {
	switch o := obj.(type) {
	case nil:
		return 0
	case Wrapper:
		return t.AddressOf(o.Wrapped())
	case Object:
		return o.Address()
	}
	if v := reflect.ValueOf(obj); v.Kind() == reflect.Pointer || v.Kind() == reflect.UnsafePointer {
		return uint64(v.Pointer())
	}
	return interp.DefaultAddress(obj)
}

// Enter records the start of a call of f with its input arguments.
func (t *Tracer) Enter(ctx context.Context, f *schema.Function, args map[string]any, thread uint64) uint64 {
	return t.enc.Enter(ctx, f, args, thread)
}

// Leave records the end of call no with its output arguments and result.
func (t *Tracer) Leave(ctx context.Context, no uint64, f *schema.Function, args map[string]any, ret any) {
	t.enc.Leave(ctx, no, f, args, ret)
}

// Trace records a call of f around the invocation of call, which may update
// the output arguments in args.
func (t *Tracer) Trace(ctx context.Context, f *schema.Function, args map[string]any, thread uint64, call func() any) any {
	no := t.Enter(ctx, f, args, thread)
	ret := call()
	t.Leave(ctx, no, f, args, ret)
	return ret
}

// Memcpy records a write of data to the live memory at dest.
func (t *Tracer) Memcpy(ctx context.Context, dest uint64, data []byte) {
	no := t.w.BeginEnter(t.memcpy, 0)
	t.w.BeginArg(0)
	t.w.WritePointer(dest)
	t.w.BeginArg(1)
	t.w.WriteBlob(data)
	t.w.BeginArg(2)
	t.w.WriteUInt(uint64(len(data)))
	t.w.EndEnter()
	t.w.BeginLeave(no)
	t.w.EndLeave()
}

// Map starts tracking a region of live memory mapped at addr.
func (t *Tracer) Map(ctx context.Context, addr uint64, live []byte) {
	t.shadow.Map(ctx, addr, live, t.opts.Shadow)
}

// FlushRegion records the contents of the region mapped at addr that were
// written since it was mapped or last flushed.
func (t *Tracer) FlushRegion(ctx context.Context, addr uint64) {
	for _, d := range t.shadow.Flush(ctx, addr) {
		t.Memcpy(ctx, d.Addr, d.Data)
	}
}

// Unmap flushes the region mapped at addr and stops tracking it.
func (t *Tracer) Unmap(ctx context.Context, addr uint64) {
	t.FlushRegion(ctx, addr)
	t.shadow.Unmap(addr)
}

// Flush writes the buffered calls to the output.
func (t *Tracer) Flush() error { return t.w.Flush() }

// Close flushes the trace and closes the compressed stream. The output
// itself is not closed.
func (t *Tracer) Close() error {
	if err := t.w.Flush(); err != nil {
		t.out.Close()
		return err
	}
	return t.out.Close()
}
