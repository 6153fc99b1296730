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

package capture

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/core/log"
)

// Object is a live interface object: its address and the address of the
// method table it currently dispatches through.
type Object interface {
	Address() uint64
	VTable() uint64
}

// Wrapper is implemented by the objects handed to the application in place
// of the real interface objects.
type Wrapper interface {
	Object
	Wrapped() Object
	Interface() *schema.Interface
}

// wrapperBase is the first address handed out to wrappers. It is chosen to
// be easy to tell apart from real addresses in a trace.
const wrapperBase = 0x7ace00000000

// Wrap is the state shared by every wrapper. Generated wrappers embed it.
type Wrap struct {
	real    Object
	iface   *schema.Interface
	vtable  uint64
	methods int
	addr    uint64
	refs    atomic.Int32
	cache   *WrapperCache
	once    sync.Once
	outer   Wrapper
}

var _ Wrapper = (*Wrap)(nil)

// Address returns the address of the wrapper itself.
func (w *Wrap) Address() uint64 { return w.addr }

// VTable returns the method table of the wrapped object when it was
// wrapped.
func (w *Wrap) VTable() uint64 { return w.vtable }

// Wrapped returns the real object.
func (w *Wrap) Wrapped() Object { return w.real }

// Base returns w. Wrappers embedding Wrap inherit it.
func (w *Wrap) Base() *Wrap { return w }

// Outer returns the typed wrapper built around w, calling build the first
// time.
func (w *Wrap) Outer(build func(*Wrap) Wrapper) Wrapper {
	w.once.Do(func() { w.outer = build(w) })
	return w.outer
}

// Interface returns the interface the wrapper implements.
func (w *Wrap) Interface() *schema.Interface { return w.iface }

// AddRef counts a reference handed out to the application.
func (w *Wrap) AddRef() int32 { return w.refs.Inc() }

// Release drops a reference. The wrapper leaves the cache when the last one
// is released.
func (w *Wrap) Release() int32 {
	n := w.refs.Dec()
	if n <= 0 {
		w.cache.evict(w)
	}
	return n
}

// Unwrap returns the real object behind a wrapper, or obj itself.
func Unwrap(obj any) any {
	if w, ok := obj.(Wrapper); ok {
		return w.Wrapped()
	}
	return obj
}

// WrapperCache maps real objects to their wrappers.
type WrapperCache struct {
	mu     sync.Mutex
	byReal map[uint64]*Wrap
	next   atomic.Uint64
}

// NewWrapperCache returns an empty cache.
func NewWrapperCache() *WrapperCache {
	c := &WrapperCache{byReal: map[uint64]*Wrap{}}
	c.next.Store(wrapperBase)
	return c
}

// Wrap returns the wrapper of obj as an iface. A cached wrapper is reused
// only while the object still dispatches through the same method table and
// the wrapper covers every method of iface; otherwise the object is assumed
// to be new memory at a reused address and is wrapped again.
func (c *WrapperCache) Wrap(ctx context.Context, obj Object, iface *schema.Interface) *Wrap {
	if obj == nil {
		return nil
	}
	if w, ok := obj.(interface{ Base() *Wrap }); ok {
		return w.Base()
	}
	addr := obj.Address()
	methods := len(iface.AllMethods())
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.byReal[addr]; ok {
		if w.vtable == obj.VTable() && w.methods >= methods {
			w.refs.Inc()
			return w
		}
		log.D(ctx, "Discarding stale %s wrapper of 0x%x", w.iface.Name, addr)
	}
	w := &Wrap{
		real:    obj,
		iface:   iface,
		vtable:  obj.VTable(),
		methods: methods,
		addr:    c.next.Add(0x10) - 0x10,
		cache:   c,
	}
	w.refs.Store(1)
	c.byReal[addr] = w
	return w
}

// Lookup returns the cached wrapper of the real object at addr, or nil.
func (c *WrapperCache) Lookup(addr uint64) *Wrap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byReal[addr]
}

// Len returns the number of cached wrappers.
func (c *WrapperCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byReal)
}

func (c *WrapperCache) evict(w *Wrap) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.byReal[w.real.Address()] == w {
		delete(c.byReal, w.real.Address())
	}
}

// QueryInterface resolves the result of a QueryInterface call on w. A
// request for an interface w already implements returns w itself, any other
// returns the wrapper of result.
func (c *WrapperCache) QueryInterface(ctx context.Context, w *Wrap, iface *schema.Interface, result Object) *Wrap {
	if w.iface.Derives(iface) {
		w.refs.Inc()
		return w
	}
	return c.Wrap(ctx, result, iface)
}
