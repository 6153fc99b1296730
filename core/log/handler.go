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

package log

import (
	"context"
	"sync"

	"github.com/apitrace/apitrace-sub000/core/context/keys"
)

// Handler is the handler of log messages.
type Handler interface {
	Handle(*Message)
	Close()
}

type handler struct {
	handle func(*Message)
	close  func()
}

func (h handler) Handle(m *Message) { h.handle(m) }
func (h handler) Close() {
	if h.close != nil {
		h.close()
	}
}

// NewHandler returns a Handler that calls handle for each message and close
// when the handler is closed. close may be nil.
func NewHandler(handle func(*Message), close func()) Handler {
	return handler{handle, close}
}

type handlerKeyTy string

const handlerKey handlerKeyTy = "log.handlerKey"

// PutHandler returns a new context with the Handler assigned to w.
func PutHandler(ctx context.Context, w Handler) context.Context {
	return keys.WithValue(ctx, handlerKey, w)
}

// GetHandler returns the Handler assigned to ctx.
func GetHandler(ctx context.Context) Handler {
	out, _ := ctx.Value(handlerKey).(Handler)
	return out
}

// Channel is a log handler that passes log messages to another Handler through
// a chan.
// This makes this Handler safe to use from multiple goroutines.
func Channel(to Handler, size int) Handler {
	c := make(chan *Message, size)
	done := make(chan struct{})
	go func() {
		defer func() {
			to.Close()
			close(done)
		}()
		for m := range c {
			if m == nil {
				return
			}
			to.Handle(m)
		}
	}()
	handle := func(m *Message) {
		if m == nil {
			return
		}
		select {
		case c <- m:
		case <-done:
		}
	}
	close := func() {
		select {
		case <-done:
		case c <- nil:
			<-done
		}
	}
	return handler{handle, close}
}

// Broadcaster forwards all messages to all supplied handlers.
// Broadcaster implements the Handler interface.
type Broadcaster struct {
	l        sync.Mutex
	handlers []*listener
}

type listener struct{ h Handler }

// Broadcast forwards all messages sent to Broadcast to all supplied handlers.
// Additional handlers can be added with Listen.
func Broadcast(handlers ...Handler) *Broadcaster {
	b := &Broadcaster{}
	for _, h := range handlers {
		b.handlers = append(b.handlers, &listener{h})
	}
	return b
}

// Listen calls adds h to the list of handlers that are informed of each log
// message passed to Handle. The returned function removes h from the list.
func (b *Broadcaster) Listen(h Handler) (unlisten func()) {
	b.l.Lock()
	defer b.l.Unlock()
	l := &listener{h}
	b.handlers = append(b.handlers, l)
	return func() {
		b.l.Lock()
		defer b.l.Unlock()
		for i, t := range b.handlers {
			if t == l {
				b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
				return
			}
		}
	}
}

// Handle broadcasts the message to all the listening handlers.
func (b *Broadcaster) Handle(m *Message) {
	b.l.Lock()
	handlers := append([]*listener{}, b.handlers...)
	b.l.Unlock()
	for _, l := range handlers {
		l.h.Handle(m)
	}
}

// Close calls Close on all the listening handlers and removes them from the
// broadcaster.
func (b *Broadcaster) Close() {
	b.l.Lock()
	handlers := b.handlers
	b.handlers = nil
	b.l.Unlock()
	for _, l := range handlers {
		l.h.Close()
	}
}
