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

package leb128_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/data/leb128"
	"github.com/apitrace/apitrace-sub000/core/log"
)

var uintData = []struct {
	name   string
	values []uint64
	data   []byte
}{
	{"Small",
		[]uint64{0, 1, 0x7f},
		[]byte{0x00, 0x01, 0x7f}},
	{"TwoBytes",
		[]uint64{0x80, 300, 0x3fff},
		[]byte{0x80, 0x01, 0xac, 0x02, 0xff, 0x7f}},
	{"Large",
		[]uint64{0x4000, 0xffffffff},
		[]byte{0x80, 0x80, 0x01, 0xff, 0xff, 0xff, 0xff, 0x0f}},
	{"Max",
		[]uint64{^uint64(0)},
		[]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}},
}

func TestUint(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range uintData {
		buf := &bytes.Buffer{}
		w := leb128.NewWriter(buf)
		size := 0
		for _, v := range test.values {
			w.Uint(v)
			size += leb128.Size(v)
		}
		assert.For(ctx, "%s write", test.name).ThatError(w.Error()).Succeeded()
		assert.For(ctx, "%s bytes", test.name).ThatSlice(buf.Bytes()).Equals(test.data)
		assert.For(ctx, "%s size", test.name).ThatInteger(size).Equals(len(test.data))

		r := leb128.NewReader(bytes.NewReader(test.data))
		for i, v := range test.values {
			assert.For(ctx, "%s read %d", test.name, i).That(r.Uint()).Equals(v)
		}
		assert.For(ctx, "%s read", test.name).ThatError(r.Error()).Succeeded()
	}
}

func TestMixed(t *testing.T) {
	ctx := log.Testing(t)
	buf := &bytes.Buffer{}
	w := leb128.NewWriter(buf)
	w.Uint8(7)
	w.String("glClear")
	w.Bytes([]byte{1, 2, 3})
	w.Float32(1.5)
	w.Float64(-2.25)
	w.String("")
	assert.For(ctx, "write").ThatError(w.Error()).Succeeded()

	r := leb128.NewReader(buf)
	assert.For(ctx, "uint8").That(r.Uint8()).Equals(uint8(7))
	assert.For(ctx, "string").That(r.String()).Equals("glClear")
	assert.For(ctx, "bytes").ThatSlice(r.Bytes()).Equals([]byte{1, 2, 3})
	assert.For(ctx, "float32").That(r.Float32()).Equals(float32(1.5))
	assert.For(ctx, "float64").That(r.Float64()).Equals(-2.25)
	assert.For(ctx, "empty").That(r.String()).Equals("")
	assert.For(ctx, "read").ThatError(r.Error()).Succeeded()
}

func TestErrors(t *testing.T) {
	ctx := log.Testing(t)

	r := leb128.NewReader(bytes.NewReader([]byte{0x80, 0x80}))
	r.Uint()
	assert.For(ctx, "truncated").ThatError(r.Error()).Equals(io.EOF)

	r = leb128.NewReader(bytes.NewReader(nil))
	r.Uint8()
	assert.For(ctx, "eof").ThatError(r.Error()).Equals(io.EOF)
	r.SetError(leb128.ErrOverflow)
	assert.For(ctx, "sticky").ThatError(r.Error()).Equals(io.EOF)

	over := bytes.Repeat([]byte{0xff}, 10)
	r = leb128.NewReader(bytes.NewReader(append(over, 0x01)))
	r.Uint()
	assert.For(ctx, "overflow").ThatError(r.Error()).Equals(leb128.ErrOverflow)

	r = leb128.NewReader(bytes.NewReader(leb128.Append(nil, leb128.MaxLength+1)))
	assert.For(ctx, "too long string").ThatString(r.String()).Equals("")
	assert.For(ctx, "too long").ThatError(r.Error()).Equals(leb128.ErrTooLong)
}
