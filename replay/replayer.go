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

// Package replay executes a recorded trace against a live implementation,
// remapping the handles, objects and memory regions the trace refers to.
package replay

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/apil/codec"
	"github.com/apitrace/apitrace-sub000/apil/codec/interp"
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/apil/trie"
	"github.com/apitrace/apitrace-sub000/core/context/keys"
	"github.com/apitrace/apitrace-sub000/core/fault"
	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

const (
	// ErrNoHandler is the cause of warnings for calls nothing replays.
	ErrNoHandler = fault.Const("No handler")
	// ErrDegraded is the cause of warnings for calls that could not be fully
	// decoded.
	ErrDegraded = fault.Const("Degraded decode")
	// ErrNilThis is the cause of warnings for methods invoked on unknown
	// objects.
	ErrNilThis = fault.Const("Method called on a null object")
	// ErrPanic is the cause of errors from handlers that panicked.
	ErrPanic = fault.Const("Handler panicked")
)

// Handler invokes a decoded call on the live implementation and returns its
// result. The arguments in call.Args may be replaced with the values the
// live call produced, for outputs to be registered.
type Handler func(ctx context.Context, call *interp.Decoded) (ret any, err error)

// Dispatcher replays a call with generated code. It reports false for
// calls it has no code for, which are then decoded and handed to the
// handlers.
type Dispatcher func(ctx context.Context, r *Replayer, c *wire.Call) (handled bool, err error)

// Options configures a Replayer.
type Options struct {
	// WarnOnce is the number of call names remembered to only warn once
	// about each.
	WarnOnce int
	// Dispatch, if set, is offered every call before the handlers.
	Dispatch Dispatcher
}

// Replayer dispatches recorded calls to their handlers.
type Replayer struct {
	Handles *Handles
	Objects *Objects
	Regions *Regions

	dec      *interp.Decoder
	dispatch Dispatcher
	names    []string
	handlers []Handler
	match    *trie.Node
	warned   *lru.Cache[string, struct{}]

	mu       sync.Mutex
	warnings *multierror.Error
	replayed int
}

// New returns a Replayer decoding with prog and dispatching to handlers by
// call name.
func New(prog *codec.Program, handlers map[string]Handler, opts Options) (*Replayer, error) {
	if prog.Mode != codec.Decode {
		return nil, errors.Errorf("Replaying with an %v program", prog.Mode)
	}
	if opts.WarnOnce <= 0 {
		opts.WarnOnce = 1024
	}
	warned, err := lru.New[string, struct{}](opts.WarnOnce)
	if err != nil {
		return nil, err
	}
	r := &Replayer{
		Handles:  NewHandles(),
		Objects:  NewObjects(),
		Regions:  NewRegions(),
		warned:   warned,
		dispatch: opts.Dispatch,
	}
	r.dec = interp.NewDecoder(prog, r)
	for name := range handlers {
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)
	for _, name := range r.names {
		r.handlers = append(r.handlers, handlers[name])
	}
	if r.match, err = trie.Build(r.names); err != nil {
		return nil, err
	}
	return r, nil
}

// Warnings returns the recoverable problems met so far, or nil.
func (r *Replayer) Warnings() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warnings.ErrorOrNil()
}

// Replayed returns the number of calls handed to a handler.
func (r *Replayer) Replayed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replayed
}

// Warn records a recoverable problem.
func (r *Replayer) Warn(ctx context.Context, err error) { r.warn(ctx, err) }

// WarnOnce records a recoverable problem the first time it is met for the
// call name.
func (r *Replayer) WarnOnce(ctx context.Context, name string, err error) {
	r.warnOnce(ctx, name, err)
}

func (r *Replayer) warn(ctx context.Context, err error) {
	log.W(ctx, "%v", err)
	r.mu.Lock()
	r.warnings = multierror.Append(r.warnings, err)
	r.mu.Unlock()
}

// warnOnce reports err the first time it is met for the call name.
func (r *Replayer) warnOnce(ctx context.Context, name string, err error) {
	key := name + "\x00" + errors.Cause(err).Error()
	if found, _ := r.warned.ContainsOrAdd(key, struct{}{}); found {
		return
	}
	r.warn(ctx, err)
}

// Run replays every call read from p until the end of the trace. The context
// is checked between calls only, a call in progress always completes.
func (r *Replayer) Run(ctx context.Context, p *wire.Parser) error {
	defer func() {
		if err := p.Warnings(); err != nil {
			r.mu.Lock()
			r.warnings = multierror.Append(r.warnings, err)
			r.mu.Unlock()
		}
	}()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := p.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := r.Call(ctx, c); err != nil {
			return err
		}
	}
}

// Call replays a single call. Only handler failures are returned, decoding
// problems are recorded as warnings.
func (r *Replayer) Call(ctx context.Context, c *wire.Call) error {
	name := c.Name()
	ctx = log.V{"call": name, "no": c.No}.Bind(ctx)
	if c.Incomplete {
		log.D(ctx, "Replaying incomplete call")
	}
	if name == schema.MemcpyName {
		return r.memcpy(ctx, c)
	}
	if r.dispatch != nil {
		handled, err := dispatch(keys.Clone(context.Background(), ctx), r.dispatch, r, c)
		if err != nil {
			return errors.Wrapf(err, "Replaying call %d %s", c.No, name)
		}
		if handled {
			r.mu.Lock()
			r.replayed++
			r.mu.Unlock()
			return nil
		}
	}
	i, ok := r.match.Match(name)
	if !ok {
		r.warnOnce(ctx, name, errors.Wrap(ErrNoHandler, name))
		return nil
	}
	dec, err := r.dec.Decode(ctx, c)
	if err != nil {
		r.warnOnce(ctx, name, err)
		return nil
	}
	if dec.Degraded {
		r.warnOnce(ctx, name, errors.Wrap(ErrDegraded, name))
	}
	if dec.Call.Func.Owner != nil && dec.Args["this"] == nil {
		r.warn(ctx, errors.Wrapf(ErrNilThis, "Skipping call %d %s", c.No, name))
		return nil
	}
	ret, err := invoke(keys.Clone(context.Background(), ctx), r.handlers[i], dec)
	if err != nil {
		return errors.Wrapf(err, "Replaying call %d %s", c.No, name)
	}
	r.mu.Lock()
	r.replayed++
	r.mu.Unlock()
	r.dec.Register(ctx, dec, ret)
	return nil
}

func dispatch(ctx context.Context, d Dispatcher, r *Replayer, c *wire.Call) (handled bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			handled, err = true, errors.Wrapf(ErrPanic, "%v", fault.From(p))
		}
	}()
	return d(ctx, r, c)
}

func invoke(ctx context.Context, h Handler, dec *interp.Decoded) (ret any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Wrapf(ErrPanic, "%v", fault.From(p))
		}
	}()
	return h(ctx, dec)
}

// memcpy copies a recorded write to mapped memory into the live region.
func (r *Replayer) memcpy(ctx context.Context, c *wire.Call) error {
	dest := uint64(Int(Arg(c, 0)))
	src := Blob(Arg(c, 1))
	n := int(Int(Arg(c, 2)))
	if n < 0 || n > len(src) {
		r.warn(ctx, errors.Errorf("memcpy of %d bytes from a %d byte blob", uint64(Int(Arg(c, 2))), len(src)))
		n = len(src)
	}
	live := r.Region(ctx, dest)
	if live == nil {
		return nil
	}
	if n > len(live) {
		r.warn(ctx, errors.Errorf("memcpy of %d bytes overruns a %d byte region", n, len(live)))
		n = len(live)
	}
	copy(live, src[:n])
	return nil
}

// Handle returns the live value of a recorded handle, or zero if it is not
// known.
func (r *Replayer) Handle(ctx context.Context, name string, key int64, recorded uint64) uint64 {
	live, err := r.Handles.Map(name).Lookup(key, recorded)
	if err != nil {
		r.warn(ctx, err)
	}
	return live
}

// Object returns the live object at a recorded address, or nil if it is not
// known.
func (r *Replayer) Object(ctx context.Context, recorded uint64) any {
	live, err := r.Objects.Lookup(recorded)
	if err != nil {
		r.warn(ctx, err)
	}
	return live
}

// Region returns the live memory at a recorded address, or nil if it is not
// mapped.
func (r *Replayer) Region(ctx context.Context, recorded uint64) []byte {
	live, err := r.Regions.Lookup(recorded)
	if err != nil {
		r.warn(ctx, err)
	}
	return live
}

var _ interp.Identity = (*Replayer)(nil)

func (r *Replayer) LookupHandle(ctx context.Context, h *schema.Handle, key int64, recorded uint64) uint64 {
	return r.Handle(ctx, h.Name, key, recorded)
}

func (r *Replayer) RegisterHandle(ctx context.Context, h *schema.Handle, key int64, recorded, live, count uint64) {
	r.Handles.Map(h.Name).AddRange(key, recorded, live, count)
}

func (r *Replayer) LookupObject(ctx context.Context, recorded uint64) any {
	return r.Object(ctx, recorded)
}

func (r *Replayer) RegisterObject(ctx context.Context, recorded uint64, live any) {
	r.Objects.Add(ctx, recorded, live)
}

func (r *Replayer) LookupRegion(ctx context.Context, recorded uint64) []byte {
	return r.Region(ctx, recorded)
}

func (r *Replayer) RegisterRegion(ctx context.Context, recorded uint64, live []byte) {
	r.Regions.Add(ctx, recorded, live)
}
