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

// Package dump renders decoded trace calls as text, JSON or length prefixed
// protobuf records.
package dump

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

// Flags control the text rendering.
type Flags int

const (
	// NoCallNo omits the call number prefix.
	NoCallNo Flags = 1 << iota
	// NoArgNames prints argument values only.
	NoArgNames
	// Color decorates the output with ANSI escapes.
	Color
)

// Format is an output encoding.
type Format int

const (
	Text Format = iota
	JSON
	Proto
)

func (f Format) String() string {
	switch f {
	case Text:
		return "text"
	case JSON:
		return "json"
	case Proto:
		return "proto"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat returns the format with the given name.
func ParseFormat(name string) (Format, error) {
	for _, f := range []Format{Text, JSON, Proto} {
		if f.String() == name {
			return f, nil
		}
	}
	return Text, errors.Errorf("Unknown dump format %q", name)
}

type attr string

const (
	normal  attr = "\x1b[0m"
	bold    attr = "\x1b[1m"
	italic  attr = "\x1b[3m"
	strike  attr = "\x1b[9m"
	red     attr = "\x1b[31m"
	pointer attr = "\x1b[32m"
	literal attr = "\x1b[34m"
)

type printer struct {
	sb    strings.Builder
	flags Flags
}

func (p *printer) attr(a attr) {
	if p.flags&Color != 0 {
		p.sb.WriteString(string(a))
	}
}

func (p *printer) styled(a attr, s string) {
	p.attr(a)
	p.sb.WriteString(s)
	p.attr(normal)
}

// Call writes c as a single line, followed by an empty line when the call
// ends a frame.
func Call(w io.Writer, c *wire.Call, flags Flags) error {
	p := &printer{flags: flags}
	p.call(c)
	_, err := io.WriteString(w, p.sb.String())
	return err
}

// Value returns the text rendering of v.
func Value(v wire.Value) string {
	p := &printer{}
	p.value(v)
	return p.sb.String()
}

func (p *printer) call(c *wire.Call) {
	if p.flags&NoCallNo == 0 {
		p.sb.WriteString(strconv.FormatUint(c.No, 10))
		p.sb.WriteByte(' ')
	}
	switch {
	case c.Flags&wire.FlagNonReproducible != 0:
		p.attr(strike)
	case c.Flags&(wire.FlagFake|wire.FlagNoSideEffects) != 0:
		p.attr(normal)
	default:
		p.attr(bold)
	}
	p.sb.WriteString(c.Name())
	p.attr(normal)
	p.sb.WriteByte('(')
	for i, name := range c.Sig.ArgNames {
		if i > 0 {
			p.sb.WriteString(", ")
		}
		if p.flags&NoArgNames == 0 {
			p.styled(italic, name)
			p.sb.WriteString(" = ")
		}
		if v := c.Arg(name); v != nil {
			p.value(v)
		} else {
			p.sb.WriteByte('?')
		}
	}
	p.sb.WriteByte(')')
	if c.Ret != nil {
		p.sb.WriteString(" = ")
		p.value(c.Ret)
	}
	if c.Incomplete || c.Flags&wire.FlagIncomplete != 0 {
		p.sb.WriteString(" // ")
		p.styled(red, "incomplete")
	}
	p.sb.WriteByte('\n')
	if c.Flags&wire.FlagEndFrame != 0 {
		p.sb.WriteByte('\n')
	}
}

func (p *printer) value(v wire.Value) {
	switch v := v.(type) {
	case nil, wire.Null:
		p.sb.WriteString("NULL")
	case wire.Bool:
		p.styled(literal, strconv.FormatBool(bool(v)))
	case wire.SInt:
		p.styled(literal, strconv.FormatInt(int64(v), 10))
	case wire.UInt:
		p.styled(literal, strconv.FormatUint(uint64(v), 10))
	case wire.Float:
		p.styled(literal, strconv.FormatFloat(float64(v), 'g', -1, 32))
	case wire.Double:
		p.styled(literal, strconv.FormatFloat(float64(v), 'g', -1, 64))
	case wire.String:
		p.styled(literal, quote(string(v)))
	case wire.WString:
		p.styled(literal, "L"+quote(string(v)))
	case wire.Enum:
		p.styled(literal, enumName(v))
	case wire.Bitmask:
		p.styled(literal, bitmaskNames(v))
	case wire.Struct:
		p.sb.WriteByte('{')
		for i, m := range v.Members {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			if v.Sig != nil && i < len(v.Sig.MemberNames) {
				p.styled(italic, v.Sig.MemberNames[i])
				p.sb.WriteString(" = ")
			}
			p.value(m)
		}
		p.sb.WriteByte('}')
	case wire.Array:
		if len(v) == 1 {
			p.sb.WriteByte('&')
			p.value(v[0])
			return
		}
		p.sb.WriteByte('{')
		for i, e := range v {
			if i > 0 {
				p.sb.WriteString(", ")
			}
			p.value(e)
		}
		p.sb.WriteByte('}')
	case wire.Blob:
		p.styled(pointer, fmt.Sprintf("blob(%d)", len(v)))
	case wire.Pointer:
		p.styled(pointer, fmt.Sprintf("0x%x", uint64(v)))
	case wire.Repr:
		p.value(v.Human)
	default:
		p.sb.WriteString(fmt.Sprintf("<%T>", v))
	}
}

func enumName(v wire.Enum) string {
	if v.Sig != nil {
		if name, ok := v.Sig.Name(v.Value); ok {
			return name
		}
	}
	return strconv.FormatInt(v.Value, 10)
}

func bitmaskNames(v wire.Bitmask) string {
	if v.Sig == nil {
		return fmt.Sprintf("0x%x", v.Value)
	}
	names, rest := v.Sig.Split(v.Value)
	if rest != 0 || len(names) == 0 {
		names = append(names, fmt.Sprintf("0x%x", rest))
	}
	return strings.Join(names, " | ")
}

// quote renders s as a C string literal. Carriage returns are dropped.
func quote(s string) string {
	sb := strings.Builder{}
	sb.WriteByte('"')
	for len(s) > 0 {
		r, n := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && n == 1 {
			fmt.Fprintf(&sb, "\\%o", s[0])
			s = s[1:]
			continue
		}
		s = s[n:]
		switch {
		case r == '"':
			sb.WriteString(`\"`)
		case r == '\\':
			sb.WriteString(`\\`)
		case r == '\r':
		case r == '\t', r == '\n':
			sb.WriteRune(r)
		case r >= 0x20 && r <= 0x7e:
			sb.WriteRune(r)
		case r < 0x80:
			fmt.Fprintf(&sb, "\\%o", r)
		default:
			fmt.Fprintf(&sb, "\\u%04x", r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

// Options configure Run.
type Options struct {
	Format Format
	Flags  Flags
	// Calls, when non-zero, stops the dump after that many calls.
	Calls int
}

// Run writes every call read from p to w, returning the number of calls
// written.
func Run(ctx context.Context, p *wire.Parser, w io.Writer, opts Options) (int, error) {
	n := 0
	for opts.Calls == 0 || n < opts.Calls {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		c, err := p.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		switch opts.Format {
		case JSON:
			err = WriteJSON(w, c)
		case Proto:
			err = WriteProto(w, c)
		default:
			err = Call(w, c, opts.Flags)
		}
		if err != nil {
			return n, errors.Wrapf(err, "Dumping call %d", c.No)
		}
		n++
	}
	if warnings := p.Warnings(); warnings != nil {
		log.W(ctx, "%v", warnings)
	}
	log.D(ctx, "Dumped %d calls as %v", n, opts.Format)
	return n, nil
}
