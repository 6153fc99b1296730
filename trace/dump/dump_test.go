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

package dump_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/trace/dump"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

var (
	glenum = &wire.EnumSig{ID: 0, Values: []wire.EnumValue{
		{Name: "GL_TEXTURE_2D", Value: 0x0DE1},
	}}
	glbits = &wire.BitmaskSig{ID: 0, Flags: []wire.BitmaskFlag{
		{Name: "GL_DEPTH_BUFFER_BIT", Value: 0x100},
		{Name: "GL_COLOR_BUFFER_BIT", Value: 0x4000},
	}}
	point = &wire.StructSig{ID: 0, Name: "POINT", MemberNames: []string{"x", "y"}}
)

func TestValue(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		value  wire.Value
		expect string
	}{
		{wire.Null{}, "NULL"},
		{wire.Bool(true), "true"},
		{wire.SInt(-3), "-3"},
		{wire.UInt(7), "7"},
		{wire.Float(0.5), "0.5"},
		{wire.Double(1e100), "1e+100"},
		{wire.String("a\"b\\c\r\n"), `"a\"b\\c` + "\n" + `"`},
		{wire.String("\x01"), `"\1"`},
		{wire.WString([]rune("hé")), `L"h\u00e9"`},
		{wire.Enum{Sig: glenum, Value: 0x0DE1}, "GL_TEXTURE_2D"},
		{wire.Enum{Sig: glenum, Value: 5}, "5"},
		{wire.Bitmask{Sig: glbits, Value: 0x4100}, "GL_DEPTH_BUFFER_BIT | GL_COLOR_BUFFER_BIT"},
		{wire.Bitmask{Sig: glbits, Value: 0x4001}, "GL_COLOR_BUFFER_BIT | 0x1"},
		{wire.Bitmask{Sig: glbits, Value: 0}, "0x0"},
		{wire.Struct{Sig: point, Members: []wire.Value{wire.SInt(1), wire.SInt(2)}}, "{x = 1, y = 2}"},
		{wire.Array{wire.UInt(1)}, "&1"},
		{wire.Array{wire.UInt(1), wire.UInt(2)}, "{1, 2}"},
		{wire.Array{}, "{}"},
		{wire.Blob{1, 2, 3}, "blob(3)"},
		{wire.Pointer(0xdead), "0xdead"},
		{wire.Repr{Human: wire.String("x"), Machine: wire.UInt(1)}, `"x"`},
	} {
		assert.For(ctx, "%#v", test.value).ThatString(dump.Value(test.value)).Equals(test.expect)
	}
}

func call() *wire.Call {
	return &wire.Call{
		No:  4,
		Sig: &wire.FunctionSig{ID: 1, Name: "glBindTexture", ArgNames: []string{"target", "texture", "missing"}},
		Args: []wire.Value{
			wire.Enum{Sig: glenum, Value: 0x0DE1},
			wire.UInt(9),
		},
		Ret: wire.Bitmask{Sig: glbits, Value: 0x4000},
	}
}

func TestCall(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	assert.For(ctx, "Call").ThatError(dump.Call(buf, call(), 0)).Succeeded()
	assert.For(ctx, "text").ThatString(buf.String()).Equals(
		"4 glBindTexture(target = GL_TEXTURE_2D, texture = 9, missing = ?) = GL_COLOR_BUFFER_BIT\n")

	buf.Reset()
	c := call()
	c.Incomplete = true
	c.Flags = wire.FlagEndFrame
	assert.For(ctx, "Call").ThatError(dump.Call(buf, c, dump.NoCallNo|dump.NoArgNames)).Succeeded()
	assert.For(ctx, "brief").ThatString(buf.String()).Equals(
		"glBindTexture(GL_TEXTURE_2D, 9, ?) = GL_COLOR_BUFFER_BIT // incomplete\n\n")

	buf.Reset()
	assert.For(ctx, "Call").ThatError(dump.Call(buf, call(), dump.Color)).Succeeded()
	assert.For(ctx, "color").ThatString(buf.String()).Contains("\x1b[1mglBindTexture\x1b[0m")
}

func TestStruct(t *testing.T) {
	ctx := log.Testing(t)
	c := call()
	c.Thread = 2
	c.Args[1] = wire.Array{wire.Pointer(0x10), wire.Blob("hi"), wire.UInt(math.MaxUint64), wire.Double(math.Inf(1))}
	s := dump.Struct(c)
	assert.For(ctx, "no").That(s.Fields["no"].GetNumberValue()).Equals(4.0)
	assert.For(ctx, "name").That(s.Fields["name"].GetStringValue()).Equals("glBindTexture")
	assert.For(ctx, "thread").That(s.Fields["thread"].GetNumberValue()).Equals(2.0)
	assert.For(ctx, "ret").That(s.Fields["ret"].GetStringValue()).Equals("GL_COLOR_BUFFER_BIT")
	args := s.Fields["args"].GetStructValue()
	assert.For(ctx, "enum").That(args.Fields["target"].GetStringValue()).Equals("GL_TEXTURE_2D")
	_, missing := args.Fields["missing"]
	assert.For(ctx, "missing").ThatBoolean(missing).IsFalse()
	list := args.Fields["texture"].GetListValue().GetValues()
	if assert.For(ctx, "list").ThatSlice(list).IsLength(4) {
		assert.For(ctx, "pointer").That(list[0].GetStringValue()).Equals("0x10")
		assert.For(ctx, "blob").That(list[1].GetStringValue()).Equals("aGk=")
		assert.For(ctx, "large").That(list[2].GetStringValue()).Equals("18446744073709551615")
		assert.For(ctx, "inf").That(list[3].GetStringValue()).Equals("+Inf")
	}
	_, incomplete := s.Fields["incomplete"]
	assert.For(ctx, "incomplete").ThatBoolean(incomplete).IsFalse()
}

func TestJSON(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	assert.For(ctx, "WriteJSON").ThatError(dump.WriteJSON(buf, call())).Succeeded()
	assert.For(ctx, "line").ThatString(buf.String()).HasSuffix("\n")
	out := map[string]any{}
	assert.For(ctx, "Unmarshal").ThatError(json.Unmarshal(buf.Bytes(), &out)).Succeeded()
	assert.For(ctx, "name").That(out["name"]).Equals("glBindTexture")
	assert.For(ctx, "args").That(out["args"]).DeepEquals(map[string]any{
		"target":  "GL_TEXTURE_2D",
		"texture": 9.0,
	})
}

func TestProto(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	assert.For(ctx, "first").ThatError(dump.WriteProto(buf, call())).Succeeded()
	second := call()
	second.No = 5
	assert.For(ctx, "second").ThatError(dump.WriteProto(buf, second)).Succeeded()

	for _, no := range []float64{4, 5} {
		s, err := dump.ReadProto(buf)
		if assert.For(ctx, "ReadProto").ThatError(err).Succeeded() {
			assert.For(ctx, "no").That(s.Fields["no"].GetNumberValue()).Equals(no)
		}
	}
	_, err := dump.ReadProto(buf)
	assert.For(ctx, "end").ThatError(err).Equals(io.EOF)
}

func TestRun(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	sig := &wire.FunctionSig{ID: 1, Name: "glFlush"}
	for i := 0; i < 3; i++ {
		no := w.BeginEnter(sig, 0)
		w.EndEnter()
		w.BeginLeave(no)
		w.EndLeave()
	}
	open := &wire.FunctionSig{ID: 2, Name: "glFinish"}
	w.BeginEnter(open, 0)
	w.EndEnter()
	assert.For(ctx, "Flush").ThatError(w.Flush()).Succeeded()

	parse := func() *wire.Parser {
		p, err := wire.NewParser(ctx, bytes.NewReader(buf.Bytes()), wire.ParserOptions{})
		assert.For(ctx, "NewParser").ThatError(err).Succeeded()
		return p
	}

	out := &bytes.Buffer{}
	n, err := dump.Run(ctx, parse(), out, dump.Options{})
	assert.For(ctx, "Run").ThatError(err).Succeeded()
	assert.For(ctx, "calls").ThatInteger(n).Equals(4)
	assert.For(ctx, "text").ThatString(out.String()).Equals(
		"0 glFlush()\n1 glFlush()\n2 glFlush()\n3 glFinish() // incomplete\n")

	out.Reset()
	n, err = dump.Run(ctx, parse(), out, dump.Options{Format: dump.JSON, Calls: 2})
	assert.For(ctx, "Run json").ThatError(err).Succeeded()
	assert.For(ctx, "limited").ThatInteger(n).Equals(2)
	assert.For(ctx, "lines").ThatInteger(strings.Count(out.String(), "\n")).Equals(2)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = dump.Run(cancelled, parse(), out, dump.Options{})
	assert.For(ctx, "cancelled").ThatError(err).Equals(context.Canceled)
}

func TestParseFormat(t *testing.T) {
	ctx := log.Testing(t)
	for _, f := range []dump.Format{dump.Text, dump.JSON, dump.Proto} {
		got, err := dump.ParseFormat(f.String())
		assert.For(ctx, "ParseFormat %v", f).ThatError(err).Succeeded()
		assert.For(ctx, "round trip").That(got).Equals(f)
	}
	_, err := dump.ParseFormat("xml")
	assert.For(ctx, "unknown").ThatError(err).Failed()
}
