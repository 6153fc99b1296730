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

package replay_test

import (
	"testing"

	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/core/math/interval"
	"github.com/apitrace/apitrace-sub000/replay"
)

func TestHandleMap(t *testing.T) {
	ctx := log.Testing(t)
	h := replay.NewHandles()
	m := h.Map("GLtexture")
	assert.For(ctx, "same map").That(h.Map("GLtexture")).Equals(m)
	assert.For(ctx, "name").ThatString(m.Name()).Equals("GLtexture")

	m.Add(1, 7, 42)
	for i := 0; i < 2; i++ {
		live, err := m.Lookup(1, 7)
		assert.For(ctx, "lookup %d", i).ThatError(err).Succeeded()
		assert.For(ctx, "live %d", i).That(live).Equals(uint64(42))
	}
	_, err := m.Lookup(2, 7)
	assert.For(ctx, "other key").ThatError(err).HasCause(replay.ErrMiss)
	live, err := m.Lookup(5, 0)
	assert.For(ctx, "zero").ThatError(err).Succeeded()
	assert.For(ctx, "zero live").That(live).Equals(uint64(0))

	m.AddRange(0, 100, 500, 3)
	for i := uint64(0); i < 3; i++ {
		live, err := m.Lookup(0, 100+i)
		assert.For(ctx, "range %d", i).ThatError(err).Succeeded()
		assert.For(ctx, "range live %d", i).That(live).Equals(500 + i)
	}
	_, err = m.Lookup(0, 103)
	assert.For(ctx, "past range").ThatError(err).HasCause(replay.ErrMiss)
	assert.For(ctx, "len").ThatInteger(m.Len()).Equals(4)
	m.Remove(1, 7)
	_, err = m.Lookup(1, 7)
	assert.For(ctx, "removed").ThatError(err).HasCause(replay.ErrMiss)
}

func TestObjects(t *testing.T) {
	ctx := log.Testing(t)
	o := replay.NewObjects()
	a, b := &struct{ n int }{1}, &struct{ n int }{2}
	o.Add(ctx, 0x1000, a)
	got, err := o.Lookup(0x1000)
	assert.For(ctx, "lookup").ThatError(err).Succeeded()
	assert.For(ctx, "object").That(got).Equals(a)
	o.Add(ctx, 0x1000, b)
	got, _ = o.Lookup(0x1000)
	assert.For(ctx, "replaced").That(got).Equals(b)
	got, err = o.Lookup(0)
	assert.For(ctx, "null").ThatError(err).Succeeded()
	assert.For(ctx, "null object").That(got).IsNil()
	_, err = o.Lookup(0x2000)
	assert.For(ctx, "miss").ThatError(err).HasCause(replay.ErrMiss)
	o.Add(ctx, 0, a)
	assert.For(ctx, "len").ThatInteger(o.Len()).Equals(1)
}

func TestRegions(t *testing.T) {
	ctx := log.Testing(t)
	r := replay.NewRegions()
	first := make([]byte, 16)
	r.Add(ctx, 0x1000, first)
	live, err := r.Lookup(0x1004)
	assert.For(ctx, "lookup").ThatError(err).Succeeded()
	assert.For(ctx, "offset").ThatInteger(len(live)).Equals(12)
	live[0] = 9
	assert.For(ctx, "aliases").ThatInteger(int(first[4])).Equals(9)

	_, err = r.Lookup(0x1010)
	assert.For(ctx, "end").ThatError(err).HasCause(replay.ErrMiss)

	second := []byte{1, 2, 3, 4}
	r.Add(ctx, 0x1006, second)
	assert.For(ctx, "split").ThatInteger(r.Len()).Equals(3)
	live, _ = r.Lookup(0x1007)
	assert.For(ctx, "inner").ThatSlice(live).Equals([]byte{2, 3, 4})
	live, _ = r.Lookup(0x100a)
	assert.For(ctx, "tail").ThatInteger(len(live)).Equals(6)
	live[0] = 7
	assert.For(ctx, "tail aliases").ThatInteger(int(first[10])).Equals(7)
	live, _ = r.Lookup(0x1000)
	assert.For(ctx, "head").ThatInteger(len(live)).Equals(6)

	r.Remove(interval.U64Span{Start: 0x1000, End: 0x1006})
	_, err = r.Lookup(0x1000)
	assert.For(ctx, "removed").ThatError(err).HasCause(replay.ErrMiss)
	assert.For(ctx, "remaining").ThatInteger(r.Len()).Equals(2)
}
