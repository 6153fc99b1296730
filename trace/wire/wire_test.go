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

package wire_test

import (
	"bytes"
	"io"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

var (
	sigF = &wire.FunctionSig{ID: 1, Name: "f", ArgNames: []string{"a"}}
	sigG = &wire.FunctionSig{ID: 2, Name: "glDraw", ArgNames: []string{"mode", "count", "data"}}
	rect = &wire.StructSig{ID: 0, Name: "RECT", MemberNames: []string{"left", "top"}}
	mode = &wire.EnumSig{ID: 3, Values: []wire.EnumValue{{"GL_POINTS", 0}, {"GL_LINES", 1}, {"NEG", -4}}}
	bits = &wire.BitmaskSig{ID: 0, Flags: []wire.BitmaskFlag{{"READ", 1}, {"WRITE", 2}}}
)

func parseAll(t *testing.T, data []byte) ([]*wire.Call, *wire.Parser, error) {
	ctx := log.Testing(t)
	p, err := wire.NewParser(ctx, bytes.NewReader(data), wire.ParserOptions{})
	if err != nil {
		return nil, nil, err
	}
	calls := []*wire.Call{}
	for {
		c, err := p.Next(ctx)
		if err == io.EOF {
			return calls, p, nil
		}
		if err != nil {
			return calls, p, err
		}
		calls = append(calls, c)
	}
}

func TestCallBytes(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	for i := 0; i < 2; i++ {
		no := w.BeginEnter(sigF, 0)
		w.BeginArg(0)
		w.WriteUInt(5)
		w.EndEnter()
		w.BeginLeave(no)
		w.BeginReturn()
		w.WriteSInt(-2)
		w.EndLeave()
	}
	assert.For(ctx, "err").ThatError(w.Error()).Succeeded()
	assert.For(ctx, "calls").That(w.Calls()).Equals(uint64(2))
	expect := []byte{
		0x01,                                   // version
		0x00, 0x01, 0x01, 'f', 0x01, 0x01, 'a', // ENTER f, first definition
		0x01, 0x00, 0x04, 0x05, 0x00,           // a = UINT 5, END
		0x01, 0x00, 0x02, 0x03, 0x02, 0x00,     // LEAVE 0, RET SINT -2, END
		0x00, 0x01,                             // ENTER f by id alone
		0x01, 0x00, 0x04, 0x05, 0x00,
		0x01, 0x01, 0x02, 0x03, 0x02, 0x00,
	}
	assert.For(ctx, "bytes").ThatSlice(buf.Bytes()).Equals(expect)

	calls, _, err := parseAll(t, buf.Bytes())
	assert.For(ctx, "err").ThatError(err).Succeeded()
	assert.For(ctx, "count").ThatSlice(calls).IsLength(2)
	assert.For(ctx, "same sig").That(calls[0].Sig).Equals(calls[1].Sig)
	assert.For(ctx, "sig").That(calls[1].Sig).DeepEquals(sigF)
	assert.For(ctx, "no").That(calls[1].No).Equals(uint64(1))
	assert.For(ctx, "arg").That(calls[0].Arg("a")).Equals(wire.Value(wire.UInt(5)))
	assert.For(ctx, "ret").That(calls[0].Ret).Equals(wire.Value(wire.SInt(-2)))
}

func TestValues(t *testing.T) {
	ctx := log.Testing(t)
	values := []wire.Value{
		wire.Null{},
		wire.Bool(true),
		wire.Bool(false),
		wire.SInt(-1),
		wire.SInt(math.MinInt64),
		wire.UInt(math.MaxUint64),
		wire.Float(1.5),
		wire.Double(-2.25),
		wire.String("hello"),
		wire.String(""),
		wire.WString([]rune("wide ✓")),
		wire.Blob{0, 1, 2, 0xff},
		wire.Enum{Sig: mode, Value: 1},
		wire.Enum{Sig: mode, Value: -4},
		wire.Bitmask{Sig: bits, Value: 3},
		wire.Array{wire.UInt(1), wire.Array{}, wire.Null{}},
		wire.Struct{Sig: rect, Members: []wire.Value{wire.SInt(-5), wire.UInt(7)}},
		wire.Struct{Sig: rect, Members: []wire.Value{wire.UInt(1), wire.UInt(2)}},
		wire.Pointer(0xdeadbeef),
		wire.Repr{Human: wire.String("GL_ONE"), Machine: wire.UInt(1)},
	}
	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	sig := &wire.FunctionSig{ID: 0, Name: "values", ArgNames: make([]string, len(values))}
	no := w.BeginEnter(sig, 0)
	for i, v := range values {
		w.BeginArg(i)
		w.WriteValue(v)
	}
	w.EndEnter()
	w.BeginLeave(no)
	w.EndLeave()

	calls, _, err := parseAll(t, buf.Bytes())
	assert.For(ctx, "err").ThatError(err).Succeeded()
	if !assert.For(ctx, "calls").ThatSlice(calls).IsLength(1) {
		return
	}
	for i, v := range values {
		got := calls[0].Args[i]
		if s, ok := v.(wire.SInt); ok && s >= 0 {
			v = wire.UInt(s)
		}
		assert.For(ctx, "value %d", i).That(got).DeepEquals(v, cmp.Comparer(func(a, b *wire.EnumSig) bool {
			return cmp.Equal(a.Values, b.Values) && a.ID == b.ID
		}))
	}
}

func TestDetails(t *testing.T) {
	ctx := log.Testing(t)
	frames := []*wire.Frame{
		{ID: 1, Module: "libGL.so", Function: "glDraw", Filename: "draw.c", Line: 12},
		{ID: 2, Function: "main", Offset: 0x40},
	}
	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	for i := 0; i < 2; i++ {
		no := w.BeginEnter(sigF, 77)
		w.WriteBacktrace(frames)
		w.WriteFlags(4)
		w.EndEnter()
		w.BeginLeave(no)
		w.EndLeave()
	}
	calls, _, err := parseAll(t, buf.Bytes())
	assert.For(ctx, "err").ThatError(err).Succeeded()
	assert.For(ctx, "count").ThatSlice(calls).IsLength(2)
	for _, c := range calls {
		assert.For(ctx, "thread").That(c.Thread).Equals(uint64(77))
		assert.For(ctx, "flags").That(c.Flags).Equals(uint64(4))
		assert.For(ctx, "backtrace").That(c.Backtrace).DeepEquals(frames)
	}
	assert.For(ctx, "interned").That(calls[0].Backtrace[0]).Equals(calls[1].Backtrace[0])
}

func TestNested(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	outer := w.BeginEnter(sigF, 0)
	w.EndEnter()
	inner := w.BeginEnter(sigG, 0)
	w.EndEnter()
	w.BeginLeave(inner)
	w.EndLeave()
	w.BeginLeave(outer)
	w.EndLeave()

	calls, _, err := parseAll(t, buf.Bytes())
	assert.For(ctx, "err").ThatError(err).Succeeded()
	assert.For(ctx, "count").ThatSlice(calls).IsLength(2)
	assert.For(ctx, "first").ThatString(calls[0].Name()).Equals("glDraw")
	assert.For(ctx, "first no").That(calls[0].No).Equals(uint64(1))
	assert.For(ctx, "second").ThatString(calls[1].Name()).Equals("f")
}

func TestTruncated(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	first := w.BeginEnter(sigG, 0)
	w.BeginArg(0)
	w.WriteEnum(mode, 1)
	w.BeginArg(2)
	w.WriteBlob([]byte{1, 2, 3, 4})
	w.EndEnter()
	second := w.BeginEnter(sigF, 0)
	w.EndEnter()
	w.BeginLeave(first)
	w.BeginReturn()
	w.WriteBitmask(bits, 2)
	w.EndLeave()
	w.BeginLeave(second)
	w.EndLeave()
	data := buf.Bytes()

	for n := 1; n <= len(data); n++ {
		calls, _, err := parseAll(t, data[:n])
		if !assert.For(ctx, "truncated at %d", n).ThatError(err).Succeeded() {
			continue
		}
		for _, c := range calls {
			if n == len(data) {
				assert.For(ctx, "complete").ThatBoolean(c.Incomplete).IsFalse()
			}
		}
		if n == len(data) {
			assert.For(ctx, "all calls").ThatSlice(calls).IsLength(2)
		}
	}

	// Cut inside the second call's LEAVE.
	calls, _, err := parseAll(t, data[:len(data)-1])
	assert.For(ctx, "err").ThatError(err).Succeeded()
	assert.For(ctx, "calls").ThatSlice(calls).IsLength(2)
	assert.For(ctx, "first complete").ThatBoolean(calls[0].Incomplete).IsFalse()
	assert.For(ctx, "second incomplete").ThatBoolean(calls[1].Incomplete).IsTrue()
	assert.For(ctx, "second name").ThatString(calls[1].Name()).Equals("f")
}

func TestBadTag(t *testing.T) {
	ctx := log.Testing(t)
	data := []byte{
		0x01,
		0x00, 0x01, 0x01, 'f', 0x01, 0x01, 'a',
		0x01, 0x00, 0x20, // arg 0 with an unknown tag
		0x00,
	}
	p, err := wire.NewParser(ctx, bytes.NewReader(data), wire.ParserOptions{})
	assert.For(ctx, "open").ThatError(err).Succeeded()
	_, err = p.Next(ctx)
	assert.For(ctx, "next").ThatError(err).HasCause(wire.ErrBadTag)
	_, again := p.Next(ctx)
	assert.For(ctx, "sticky").ThatError(again).Equals(err)

	_, _, err = parseAll(t, []byte{0x01, 0x07})
	assert.For(ctx, "event").ThatError(err).HasCause(wire.ErrBadTag)
}

func TestVersion(t *testing.T) {
	ctx := log.Testing(t)
	_, err := wire.NewParser(ctx, bytes.NewReader([]byte{wire.Version + 1}), wire.ParserOptions{})
	assert.For(ctx, "newer").ThatError(err).HasCause(wire.ErrVersion)
	_, err = wire.NewParser(ctx, bytes.NewReader(nil), wire.ParserOptions{})
	assert.For(ctx, "empty").ThatError(err).Failed()
	p, err := wire.NewParser(ctx, bytes.NewReader([]byte{0x00}), wire.ParserOptions{})
	assert.For(ctx, "older").ThatError(err).Succeeded()
	assert.For(ctx, "version").That(p.Version()).Equals(uint64(0))
}

func TestUnmatchedLeave(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	w.BeginLeave(42)
	w.BeginArg(0)
	w.WriteString("ignored")
	w.BeginReturn()
	w.WriteUInt(1)
	w.EndLeave()
	no := w.BeginEnter(sigF, 0)
	w.EndEnter()
	w.BeginLeave(no)
	w.EndLeave()

	calls, p, err := parseAll(t, buf.Bytes())
	assert.For(ctx, "err").ThatError(err).Succeeded()
	assert.For(ctx, "calls").ThatSlice(calls).IsLength(1)
	assert.For(ctx, "name").ThatString(calls[0].Name()).Equals("f")
	assert.For(ctx, "warnings").ThatError(p.Warnings()).Contains("LEAVE without matching ENTER")
}

func TestDropIncomplete(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	w.BeginEnter(sigF, 0)
	w.EndEnter()
	assert.For(ctx, "flush").ThatError(w.Flush()).Succeeded()

	p, err := wire.NewParser(ctx, bytes.NewReader(buf.Bytes()), wire.ParserOptions{DropIncomplete: true})
	assert.For(ctx, "open").ThatError(err).Succeeded()
	_, err = p.Next(ctx)
	assert.For(ctx, "next").ThatError(err).Equals(io.EOF)
}

func TestConcurrentWriters(t *testing.T) {
	ctx := log.Testing(t)
	const goroutines, perGoroutine = 8, 50
	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	wg := sync.WaitGroup{}
	for g := 0; g < goroutines; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				no := w.BeginEnter(sigG, uint64(g+1))
				w.BeginArg(0)
				w.WriteEnum(mode, int64(i%2))
				w.BeginArg(1)
				w.WriteUInt(uint64(i))
				w.EndEnter()
				w.BeginLeave(no)
				w.BeginArg(2)
				w.WriteBlob([]byte{byte(g), byte(i)})
				w.EndLeave()
			}
		}()
	}
	wg.Wait()
	calls, _, err := parseAll(t, buf.Bytes())
	assert.For(ctx, "err").ThatError(err).Succeeded()
	assert.For(ctx, "count").ThatSlice(calls).IsLength(goroutines * perGoroutine)
	for _, c := range calls {
		blob, _ := c.Arg("data").(wire.Blob)
		count, _ := wire.Int(c.Arg("count"))
		if !assert.For(ctx, "blob").ThatSlice(blob).IsLength(2) {
			continue
		}
		assert.For(ctx, "thread").That(c.Thread).Equals(uint64(blob[0]) + 1)
		assert.For(ctx, "count").That(count).Equals(int64(blob[1]))
		assert.For(ctx, "incomplete").ThatBoolean(c.Incomplete).IsFalse()
	}
}
