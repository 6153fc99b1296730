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
	"context"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/core/data/leb128"
	"github.com/apitrace/apitrace-sub000/core/log"
)

// ParserOptions controls a Parser.
type ParserOptions struct {
	// DropIncomplete discards the calls still open at the end of the stream
	// instead of returning them flagged Incomplete.
	DropIncomplete bool
}

// Parser decodes calls from a trace stream.
//
// Calls are returned in the order their LEAVE events complete. A truncated
// stream is treated as its end. Unknown tags are fatal since the signature
// caches cannot be resynchronized.
type Parser struct {
	opts     ParserOptions
	r        *leb128.Reader
	version  uint64
	calls    map[uint64]*FunctionSig
	structs  map[uint64]*StructSig
	enums    map[uint64]*EnumSig
	bitmasks map[uint64]*BitmaskSig
	frames   map[uint64]*Frame
	pending  []*Call
	next     uint64
	ended    bool
	fatal    error
	warnings *multierror.Error
}

// NewParser reads the stream header from r and returns a Parser for the
// calls that follow.
func NewParser(ctx context.Context, r io.Reader, opts ParserOptions) (*Parser, error) {
	p := &Parser{
		opts:     opts,
		r:        leb128.NewReader(bufio.NewReader(r)),
		calls:    map[uint64]*FunctionSig{},
		structs:  map[uint64]*StructSig{},
		enums:    map[uint64]*EnumSig{},
		bitmasks: map[uint64]*BitmaskSig{},
		frames:   map[uint64]*Frame{},
	}
	p.version = p.r.Uint()
	if err := p.r.Error(); err != nil {
		return nil, errors.Wrap(err, "Reading trace version")
	}
	if p.version > Version {
		return nil, errors.Wrapf(ErrVersion, "Trace version %d, newest supported is %d", p.version, Version)
	}
	log.D(ctx, "Trace version %d", p.version)
	return p, nil
}

// Version returns the version of the stream.
func (p *Parser) Version() uint64 { return p.version }

// Warnings returns the recoverable problems met so far, or nil.
func (p *Parser) Warnings() error { return p.warnings.ErrorOrNil() }

func (p *Parser) warn(ctx context.Context, err error) {
	log.W(ctx, "%v", err)
	p.warnings = multierror.Append(p.warnings, err)
}

// truncated returns true if err means the stream simply ended.
func truncated(err error) bool {
	cause := errors.Cause(err)
	return cause == io.EOF || cause == io.ErrUnexpectedEOF
}

// Next returns the next completed call. Once the stream ends the calls that
// never completed are returned in ENTER order, then Next returns io.EOF.
// After a fatal error Next keeps returning that error.
func (p *Parser) Next(ctx context.Context) (*Call, error) {
	if p.fatal != nil {
		return nil, p.fatal
	}
	for !p.ended {
		event := p.r.Uint8()
		if err := p.r.Error(); err != nil {
			p.end(ctx, err)
			break
		}
		switch event {
		case EventEnter:
			p.enter(ctx)
		case EventLeave:
			if c := p.leave(ctx); c != nil {
				return c, nil
			}
		default:
			p.r.SetError(errors.Wrapf(ErrBadTag, "Event %d", event))
		}
		if err := p.r.Error(); err != nil {
			p.end(ctx, err)
		}
	}
	if p.fatal != nil {
		return nil, p.fatal
	}
	if len(p.pending) > 0 && !p.opts.DropIncomplete {
		c := p.pending[0]
		p.pending = p.pending[1:]
		c.Incomplete = true
		return c, nil
	}
	return nil, io.EOF
}

func (p *Parser) end(ctx context.Context, err error) {
	p.ended = true
	if truncated(err) {
		log.D(ctx, "End of trace after %d calls", p.next)
		return
	}
	p.fatal = errors.Wrapf(err, "Decoding call %d", p.next)
}

func (p *Parser) enter(ctx context.Context) {
	id := p.r.Uint()
	sig, ok := p.calls[id]
	if !ok {
		sig = &FunctionSig{ID: int(id), Name: p.r.String()}
		n := p.r.Length()
		for i := 0; i < n && p.r.Error() == nil; i++ {
			sig.ArgNames = append(sig.ArgNames, p.r.String())
		}
		if p.r.Error() != nil {
			return
		}
		p.calls[id] = sig
	}
	if p.r.Error() != nil {
		return
	}
	c := &Call{No: p.next, Sig: sig}
	p.next++
	p.pending = append(p.pending, c)
	p.details(ctx, c)
}

func (p *Parser) leave(ctx context.Context) *Call {
	no := p.r.Uint()
	if p.r.Error() != nil {
		return nil
	}
	for i, c := range p.pending {
		if c.No == no {
			if !p.details(ctx, c) {
				return nil
			}
			copy(p.pending[i:], p.pending[i+1:])
			p.pending = p.pending[:len(p.pending)-1]
			return c
		}
	}
	// Parse and discard the details of the unknown call.
	orphan := &Call{No: no}
	if p.details(ctx, orphan) {
		p.warn(ctx, errors.Wrapf(ErrUnmatchedLeave, "Call %d", no))
	}
	return nil
}

// details parses call details up to CALL_END, returning false if the stream
// failed first.
func (p *Parser) details(ctx context.Context, c *Call) bool {
	for {
		detail := p.r.Uint8()
		if p.r.Error() != nil {
			return false
		}
		switch detail {
		case CallEnd:
			return true
		case CallArg:
			i := p.r.Uint()
			v := p.value()
			if p.r.Error() != nil {
				return false
			}
			if c.Sig == nil {
				continue
			}
			if i >= uint64(len(c.Sig.ArgNames)) {
				p.warn(ctx, errors.Errorf("Call %d %s has no argument %d", c.No, c.Sig.Name, i))
				continue
			}
			c.setArg(int(i), v)
		case CallRet:
			c.Ret = p.value()
		case CallThread:
			c.Thread = p.r.Uint()
		case CallBacktrace:
			n := p.r.Length()
			for j := 0; j < n && p.r.Error() == nil; j++ {
				c.Backtrace = append(c.Backtrace, p.frame())
			}
		case CallFlags:
			c.Flags = p.r.Uint()
		default:
			p.r.SetError(errors.Wrapf(ErrBadTag, "Call detail %d", detail))
			return false
		}
	}
}

func (p *Parser) frame() *Frame {
	id := p.r.Uint()
	if f, ok := p.frames[id]; ok {
		return f
	}
	f := &Frame{ID: id}
	for p.r.Error() == nil {
		switch d := p.r.Uint8(); d {
		case FrameEnd:
			if p.r.Error() == nil {
				p.frames[id] = f
			}
			return f
		case FrameModule:
			f.Module = p.r.String()
		case FrameFunction:
			f.Function = p.r.String()
		case FrameFilename:
			f.Filename = p.r.String()
		case FrameLine:
			f.Line = p.r.Uint()
		case FrameOffset:
			f.Offset = p.r.Uint()
		default:
			p.r.SetError(errors.Wrapf(ErrBadTag, "Frame detail %d", d))
		}
	}
	return f
}

// value decodes one value. Errors are left in the sticky reader.
func (p *Parser) value() Value {
	tag := Tag(p.r.Uint8())
	if p.r.Error() != nil {
		return nil
	}
	switch tag {
	case TagNull:
		return Null{}
	case TagFalse:
		return Bool(false)
	case TagTrue:
		return Bool(true)
	case TagSInt:
		return SInt(-int64(p.r.Uint()))
	case TagUInt:
		return UInt(p.r.Uint())
	case TagFloat:
		return Float(p.r.Float32())
	case TagDouble:
		return Double(p.r.Float64())
	case TagString:
		return String(p.r.String())
	case TagWString:
		n := p.r.Length()
		out := make(WString, 0, n)
		for i := 0; i < n && p.r.Error() == nil; i++ {
			out = append(out, rune(p.r.Uint()))
		}
		return out
	case TagBlob:
		return Blob(p.r.Bytes())
	case TagEnum:
		sig := p.enumSig()
		v, _ := Int(p.value())
		return Enum{Sig: sig, Value: v}
	case TagBitmask:
		sig := p.bitmaskSig()
		return Bitmask{Sig: sig, Value: p.r.Uint()}
	case TagArray:
		n := p.r.Length()
		out := make(Array, 0, min(n, 1024))
		for i := 0; i < n && p.r.Error() == nil; i++ {
			out = append(out, p.value())
		}
		return out
	case TagStruct:
		sig := p.structSig()
		out := Struct{Sig: sig}
		for i := 0; i < len(sig.MemberNames) && p.r.Error() == nil; i++ {
			out.Members = append(out.Members, p.value())
		}
		return out
	case TagOpaque:
		return Pointer(p.r.Uint())
	case TagRepr:
		human := p.value()
		return Repr{Human: human, Machine: p.value()}
	}
	p.r.SetError(errors.Wrapf(ErrBadTag, "Value tag %d", tag))
	return nil
}

func (p *Parser) enumSig() *EnumSig {
	id := p.r.Uint()
	if sig, ok := p.enums[id]; ok {
		return sig
	}
	sig := &EnumSig{ID: int(id)}
	n := p.r.Length()
	for i := 0; i < n && p.r.Error() == nil; i++ {
		name := p.r.String()
		v, _ := Int(p.value())
		sig.Values = append(sig.Values, EnumValue{Name: name, Value: v})
	}
	if p.r.Error() == nil {
		p.enums[id] = sig
	}
	return sig
}

func (p *Parser) bitmaskSig() *BitmaskSig {
	id := p.r.Uint()
	if sig, ok := p.bitmasks[id]; ok {
		return sig
	}
	sig := &BitmaskSig{ID: int(id)}
	n := p.r.Length()
	for i := 0; i < n && p.r.Error() == nil; i++ {
		name := p.r.String()
		sig.Flags = append(sig.Flags, BitmaskFlag{Name: name, Value: p.r.Uint()})
	}
	if p.r.Error() == nil {
		p.bitmasks[id] = sig
	}
	return sig
}

func (p *Parser) structSig() *StructSig {
	id := p.r.Uint()
	if sig, ok := p.structs[id]; ok {
		return sig
	}
	sig := &StructSig{ID: int(id), Name: p.r.String()}
	n := p.r.Length()
	for i := 0; i < n && p.r.Error() == nil; i++ {
		sig.MemberNames = append(sig.MemberNames, p.r.String())
	}
	if p.r.Error() == nil {
		p.structs[id] = sig
	}
	return sig
}
