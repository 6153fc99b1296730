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

package walk

import "github.com/apitrace/apitrace-sub000/apil/schema"

type bitset []uint64

func (b bitset) has(i int) bool {
	w := i / 64
	return w < len(b) && b[w]&(1<<uint(i%64)) != 0
}

func (b *bitset) set(i int) {
	w := i / 64
	for len(*b) <= w {
		*b = append(*b, 0)
	}
	(*b)[w] |= 1 << uint(i%64)
}

func (b bitset) clear(i int) {
	w := i / 64
	if w < len(b) {
		b[w] &^= 1 << uint(i%64)
	}
}

// Once is a traversal that visits each descriptor at most once across all of
// its walks. Descriptors are tracked by their dense index.
// The zero value is ready to use.
type Once struct {
	seen bitset
}

// Seen returns true if t has been visited by a previous walk.
func (o *Once) Seen(t schema.Type) bool { return o.seen.has(t.Index()) }

// Walk visits t and its descendants in depth-first post-order, calling f for
// each node not visited before. Children are reported before their parents.
func (o *Once) Walk(t schema.Type, f func(schema.Type)) {
	if t == nil || o.seen.has(t.Index()) {
		return
	}
	o.seen.set(t.Index())
	for _, c := range Children(t) {
		o.Walk(c, f)
	}
	f(t)
}

// Collect returns every distinct descriptor of type T reachable from roots,
// children first.
func Collect[T schema.Type](roots ...schema.Type) []T {
	out := []T{}
	o := Once{}
	for _, r := range roots {
		o.Walk(r, func(t schema.Type) {
			if v, ok := t.(T); ok {
				out = append(out, v)
			}
		})
	}
	return out
}
