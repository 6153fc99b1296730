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
	"bytes"
	"context"
	"testing"

	"github.com/hashicorp/go-multierror"

	"github.com/apitrace/apitrace-sub000/apil/codec"
	"github.com/apitrace/apitrace-sub000/apil/codec/interp"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/replay"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

type fixture struct {
	api     *schema.API
	create  *schema.Function
	use     *schema.Function
	mapBuf  *schema.Function
	query   *schema.Function
	finish  *schema.Function
	boom    *schema.Function
	release *schema.Function
}

func newFixture(ctx context.Context) *fixture {
	f := &fixture{}
	b := schema.NewBuilder()
	u32, void := b.Builtin("uint32"), b.Builtin("void")
	obj := b.Handle("Obj", u32, "", &schema.HandleKey{Expr: "dev", Type: u32})
	f.create = b.Function("create", void,
		&schema.Arg{Name: "dev", Type: u32},
		&schema.Arg{Name: "h", Type: b.Pointer(obj), Output: true},
	)
	f.use = b.Function("use", void,
		&schema.Arg{Name: "dev", Type: u32},
		&schema.Arg{Name: "h", Type: obj},
	)
	f.mapBuf = b.Function("map", b.LinearPointer(b.Builtin("uint8"), "size"), &schema.Arg{Name: "size", Type: u32})
	f.query = b.Function("query", void, &schema.Arg{Name: "p", Type: b.Opaque("HWND")})
	f.finish = b.Function("finish", void)
	f.boom = b.Function("boom", void)
	iface := b.Interface("IThing", nil)
	f.release = b.Method(iface, "Release", u32)
	api, err := b.Finalize("test")
	assert.For(ctx, "Finalize").ThatError(err).Succeeded()
	f.api = api
	return f
}

func TestReplay(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx)
	enc, err := codec.Generate(ctx, f.api, codec.Encode)
	assert.For(ctx, "encode program").ThatError(err).Succeeded()
	dec, err := codec.Generate(ctx, f.api, codec.Decode)
	assert.For(ctx, "decode program").ThatError(err).Succeeded()

	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	e := interp.NewEncoder(enc, w)
	e.Encode(ctx, f.create, map[string]any{"dev": uint32(1), "h": uint32(7)}, nil)
	e.Encode(ctx, f.use, map[string]any{"dev": uint32(1), "h": uint32(7)}, nil)
	e.Encode(ctx, f.mapBuf, map[string]any{"size": uint32(8)}, uint64(0x5000))
	no := w.BeginEnter(enc.Sigs.Call(f.api.Call(0)), 0)
	w.BeginArg(0)
	w.WritePointer(0x5002)
	w.BeginArg(1)
	w.WriteBlob([]byte{1, 2, 3})
	w.BeginArg(2)
	w.WriteUInt(3)
	w.EndEnter()
	w.BeginLeave(no)
	w.EndLeave()
	e.Encode(ctx, f.query, map[string]any{"p": uint64(0xdead)}, nil)
	e.Encode(ctx, f.query, map[string]any{"p": uint64(0xbeef)}, nil)
	e.Encode(ctx, f.finish, map[string]any{}, nil)
	e.Encode(ctx, f.finish, map[string]any{}, nil)
	e.Encode(ctx, f.release, map[string]any{"this": uint64(0x9000)}, uint32(0))
	e.Encode(ctx, f.boom, map[string]any{}, nil)
	assert.For(ctx, "Flush").ThatError(w.Flush()).Succeeded()

	var used any
	queried := 0
	live := make([]byte, 16)
	r, err := replay.New(dec, map[string]replay.Handler{
		"create": func(ctx context.Context, c *interp.Decoded) (any, error) {
			c.Args["h"] = uint64(42)
			return nil, nil
		},
		"use": func(ctx context.Context, c *interp.Decoded) (any, error) {
			used = c.Args["h"]
			return nil, nil
		},
		"map": func(ctx context.Context, c *interp.Decoded) (any, error) {
			return live, nil
		},
		"query": func(ctx context.Context, c *interp.Decoded) (any, error) {
			queried++
			return nil, nil
		},
		"IThing::Release": func(ctx context.Context, c *interp.Decoded) (any, error) {
			t.Error("Release replayed on a null object")
			return uint32(0), nil
		},
		"boom": func(ctx context.Context, c *interp.Decoded) (any, error) {
			panic("boom")
		},
	}, replay.Options{})
	assert.For(ctx, "New").ThatError(err).Succeeded()

	p, err := wire.NewParser(ctx, bytes.NewReader(buf.Bytes()), wire.ParserOptions{})
	assert.For(ctx, "NewParser").ThatError(err).Succeeded()
	err = r.Run(ctx, p)
	assert.For(ctx, "Run").ThatError(err).HasCause(replay.ErrPanic)

	assert.For(ctx, "remapped").That(used).Equals(uint64(42))
	assert.For(ctx, "region").ThatSlice(live[:6]).Equals([]byte{0, 0, 1, 2, 3, 0})
	mapped, err := r.Regions.Lookup(0x5000)
	assert.For(ctx, "mapped").ThatError(err).Succeeded()
	assert.For(ctx, "mapped size").ThatInteger(len(mapped)).Equals(8)
	assert.For(ctx, "degraded still replayed").ThatInteger(queried).Equals(2)
	assert.For(ctx, "replayed").ThatInteger(r.Replayed()).Equals(5)

	merr, ok := r.Warnings().(*multierror.Error)
	assert.For(ctx, "warnings").ThatBoolean(ok).IsTrue()
	if ok {
		causes := []string{}
		for _, w := range merr.Errors {
			causes = append(causes, w.Error())
		}
		assert.For(ctx, "warning count %v", causes).ThatInteger(len(merr.Errors)).Equals(4)
		assert.For(ctx, "degraded").ThatError(merr.Errors[0]).HasCause(replay.ErrDegraded)
		assert.For(ctx, "no handler").ThatError(merr.Errors[1]).HasCause(replay.ErrNoHandler)
		assert.For(ctx, "object miss").ThatError(merr.Errors[2]).HasCause(replay.ErrMiss)
		assert.For(ctx, "null this").ThatError(merr.Errors[3]).HasCause(replay.ErrNilThis)
	}
}

func TestNewNeedsDecode(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx)
	enc, err := codec.Generate(ctx, f.api, codec.Encode)
	assert.For(ctx, "encode program").ThatError(err).Succeeded()
	_, err = replay.New(enc, nil, replay.Options{})
	assert.For(ctx, "New").ThatError(err).Failed()
}

func TestDispatch(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx)
	enc, err := codec.Generate(ctx, f.api, codec.Encode)
	assert.For(ctx, "encode program").ThatError(err).Succeeded()
	dec, err := codec.Generate(ctx, f.api, codec.Decode)
	assert.For(ctx, "decode program").ThatError(err).Succeeded()

	buf := &bytes.Buffer{}
	w := wire.NewWriter(buf)
	e := interp.NewEncoder(enc, w)
	e.Encode(ctx, f.finish, map[string]any{}, nil)
	e.Encode(ctx, f.create, map[string]any{"dev": uint32(1), "h": uint32(7)}, nil)
	e.Encode(ctx, f.boom, map[string]any{}, nil)
	assert.For(ctx, "Flush").ThatError(w.Flush()).Succeeded()

	dispatched := []string{}
	created := 0
	r, err := replay.New(dec, map[string]replay.Handler{
		"create": func(ctx context.Context, c *interp.Decoded) (any, error) {
			created++
			return nil, nil
		},
	}, replay.Options{
		Dispatch: func(ctx context.Context, r *replay.Replayer, c *wire.Call) (bool, error) {
			dispatched = append(dispatched, c.Name())
			switch c.Name() {
			case "finish":
				return true, nil
			case "boom":
				panic("boom")
			}
			return false, nil
		},
	})
	assert.For(ctx, "New").ThatError(err).Succeeded()

	p, err := wire.NewParser(ctx, bytes.NewReader(buf.Bytes()), wire.ParserOptions{})
	assert.For(ctx, "NewParser").ThatError(err).Succeeded()
	err = r.Run(ctx, p)
	assert.For(ctx, "Run").ThatError(err).HasCause(replay.ErrPanic)
	assert.For(ctx, "dispatched").ThatSlice(dispatched).Equals([]string{"finish", "create", "boom"})
	assert.For(ctx, "fallback").ThatInteger(created).Equals(1)
	assert.For(ctx, "replayed").ThatInteger(r.Replayed()).Equals(2)
}

func TestWarnOnce(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx)
	dec, err := codec.Generate(ctx, f.api, codec.Decode)
	assert.For(ctx, "decode program").ThatError(err).Succeeded()
	r, err := replay.New(dec, nil, replay.Options{})
	assert.For(ctx, "New").ThatError(err).Succeeded()
	assert.For(ctx, "no warnings").ThatError(r.Warnings()).Succeeded()
	r.WarnOnce(ctx, "use", replay.ErrDegraded)
	r.WarnOnce(ctx, "use", replay.ErrDegraded)
	r.Warn(ctx, replay.ErrMiss)
	merr, ok := r.Warnings().(*multierror.Error)
	assert.For(ctx, "warnings").ThatBoolean(ok).IsTrue()
	if ok {
		assert.For(ctx, "warning count").ThatInteger(len(merr.Errors)).Equals(2)
	}
}

func TestMemcpyLength(t *testing.T) {
	ctx := log.Testing(t)
	f := newFixture(ctx)
	dec, err := codec.Generate(ctx, f.api, codec.Decode)
	assert.For(ctx, "decode program").ThatError(err).Succeeded()
	r, err := replay.New(dec, nil, replay.Options{})
	assert.For(ctx, "New").ThatError(err).Succeeded()
	live := make([]byte, 16)
	r.RegisterRegion(ctx, 0x1000, live)
	sig := dec.Sigs.Call(f.api.Call(0))
	for _, n := range []wire.Value{wire.UInt(1 << 63), wire.SInt(-1), wire.UInt(99)} {
		c := &wire.Call{Sig: sig, Args: []wire.Value{wire.Pointer(0x1000), wire.Blob{1, 2, 3, 4}, n}}
		assert.For(ctx, "memcpy %v", n).ThatError(r.Call(ctx, c)).Succeeded()
	}
	assert.For(ctx, "region").ThatSlice(live[:5]).Equals([]byte{1, 2, 3, 4, 0})
	merr, ok := r.Warnings().(*multierror.Error)
	assert.For(ctx, "warnings").ThatBoolean(ok).IsTrue()
	if ok {
		assert.For(ctx, "warning count").ThatInteger(len(merr.Errors)).Equals(3)
	}
}
