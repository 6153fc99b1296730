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

package dump

import (
	"encoding/base64"
	"fmt"
	"io"
	"math"

	"github.com/golang/protobuf/jsonpb"
	"github.com/golang/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/apitrace/apitrace-sub000/core/data/leb128"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

// maxExact is the largest integer a JSON number holds without loss.
const maxExact = 1 << 53

// Struct returns c as a protobuf Struct with the fields no, name, args and,
// when present, ret, thread, flags, backtrace and incomplete.
func Struct(c *wire.Call) *structpb.Struct {
	args := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	for _, name := range c.Sig.ArgNames {
		if v := c.Arg(name); v != nil {
			args.Fields[name] = ValueOf(v)
		}
	}
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"no":   structpb.NewNumberValue(float64(c.No)),
		"name": structpb.NewStringValue(c.Name()),
		"args": structpb.NewStructValue(args),
	}}
	if c.Ret != nil {
		s.Fields["ret"] = ValueOf(c.Ret)
	}
	if c.Thread != 0 {
		s.Fields["thread"] = structpb.NewNumberValue(float64(c.Thread))
	}
	if c.Flags != 0 {
		s.Fields["flags"] = structpb.NewNumberValue(float64(c.Flags))
	}
	if len(c.Backtrace) > 0 {
		frames := make([]*structpb.Value, len(c.Backtrace))
		for i, f := range c.Backtrace {
			frames[i] = structpb.NewStringValue(frame(f))
		}
		s.Fields["backtrace"] = structpb.NewListValue(&structpb.ListValue{Values: frames})
	}
	if c.Incomplete {
		s.Fields["incomplete"] = structpb.NewBoolValue(true)
	}
	return s
}

func frame(f *wire.Frame) string {
	switch {
	case f.Filename != "":
		return fmt.Sprintf("%s %s:%d", f.Function, f.Filename, f.Line)
	case f.Module != "":
		return fmt.Sprintf("%s %s+0x%x", f.Function, f.Module, f.Offset)
	default:
		return f.Function
	}
}

// ValueOf converts v to a protobuf Value. Enums and bitmasks become their
// symbolic text, blobs base64 strings, pointers hexadecimal strings and
// integers beyond the exact range of a double decimal strings.
func ValueOf(v wire.Value) *structpb.Value {
	switch v := v.(type) {
	case nil, wire.Null:
		return structpb.NewNullValue()
	case wire.Bool:
		return structpb.NewBoolValue(bool(v))
	case wire.SInt:
		if v > maxExact || v < -maxExact {
			return structpb.NewStringValue(fmt.Sprint(int64(v)))
		}
		return structpb.NewNumberValue(float64(v))
	case wire.UInt:
		if v > maxExact {
			return structpb.NewStringValue(fmt.Sprint(uint64(v)))
		}
		return structpb.NewNumberValue(float64(v))
	case wire.Float:
		return number(float64(v))
	case wire.Double:
		return number(float64(v))
	case wire.String:
		return structpb.NewStringValue(string(v))
	case wire.WString:
		return structpb.NewStringValue(string(v))
	case wire.Blob:
		return structpb.NewStringValue(base64.StdEncoding.EncodeToString(v))
	case wire.Enum:
		return structpb.NewStringValue(enumName(v))
	case wire.Bitmask:
		return structpb.NewStringValue(bitmaskNames(v))
	case wire.Pointer:
		return structpb.NewStringValue(fmt.Sprintf("0x%x", uint64(v)))
	case wire.Array:
		values := make([]*structpb.Value, len(v))
		for i, e := range v {
			values[i] = ValueOf(e)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: values})
	case wire.Struct:
		s := &structpb.Struct{Fields: map[string]*structpb.Value{}}
		for i, m := range v.Members {
			name := fmt.Sprint(i)
			if v.Sig != nil && i < len(v.Sig.MemberNames) {
				name = v.Sig.MemberNames[i]
			}
			s.Fields[name] = ValueOf(m)
		}
		return structpb.NewStructValue(s)
	case wire.Repr:
		return ValueOf(v.Human)
	default:
		return structpb.NewStringValue(fmt.Sprintf("<%T>", v))
	}
}

// number keeps NaN and the infinities representable in JSON.
func number(f float64) *structpb.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return structpb.NewStringValue(fmt.Sprint(f))
	}
	return structpb.NewNumberValue(f)
}

// WriteJSON writes c as a single line JSON object.
func WriteJSON(w io.Writer, c *wire.Call) error {
	m := jsonpb.Marshaler{}
	if err := m.Marshal(w, Struct(c)); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteProto writes c as a varint length prefixed binary Struct.
func WriteProto(w io.Writer, c *wire.Call) error {
	b, err := proto.Marshal(Struct(c))
	if err != nil {
		return err
	}
	if _, err := w.Write(proto.EncodeVarint(uint64(len(b)))); err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadProto reads a record written by WriteProto. It returns io.EOF when r
// ends between records.
func ReadProto(r io.Reader) (*structpb.Struct, error) {
	lr := leb128.NewReader(r)
	b := lr.Bytes()
	if err := lr.Error(); err != nil {
		return nil, err
	}
	s := &structpb.Struct{}
	if err := proto.Unmarshal(b, s); err != nil {
		return nil, err
	}
	return s, nil
}
