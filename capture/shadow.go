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

	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/core/math/interval"
)

// Dirty is a written range of a mapped region.
type Dirty struct {
	Addr uint64
	Data []byte
}

type shadowRegion struct {
	live []byte
	copy []byte // contents at the last flush, nil when not shadowed
}

// Shadow tracks mapped regions and finds the bytes written to them.
type Shadow struct {
	mu      sync.Mutex
	regions map[uint64]*shadowRegion
}

// NewShadow returns a Shadow tracking no regions.
func NewShadow() *Shadow {
	return &Shadow{regions: map[uint64]*shadowRegion{}}
}

// Map starts tracking live at addr. If shadow is true the current contents
// are copied so later flushes only report changed bytes.
func (s *Shadow) Map(ctx context.Context, addr uint64, live []byte, shadow bool) {
	r := &shadowRegion{live: live}
	if shadow {
		r.copy = append([]byte(nil), live...)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.regions[addr]; ok {
		log.W(ctx, "Region 0x%x mapped twice", addr)
	}
	s.regions[addr] = r
}

// Flush returns the ranges of the region at addr written since the last
// flush, and makes the current contents the new baseline.
func (s *Shadow) Flush(ctx context.Context, addr uint64) []Dirty {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regions[addr]
	if !ok {
		log.W(ctx, "Flushing unmapped region 0x%x", addr)
		return nil
	}
	if r.copy == nil {
		return []Dirty{{Addr: addr, Data: append([]byte(nil), r.live...)}}
	}
	spans := interval.U64SpanList{}
	for i := range r.live {
		if r.live[i] != r.copy[i] {
			interval.Merge(&spans, interval.U64Span{Start: uint64(i), End: uint64(i) + 1}, true)
		}
	}
	out := make([]Dirty, len(spans))
	for i, span := range spans {
		out[i] = Dirty{Addr: addr + span.Start, Data: append([]byte(nil), r.live[span.Start:span.End]...)}
	}
	copy(r.copy, r.live)
	return out
}

// Unmap stops tracking the region at addr.
func (s *Shadow) Unmap(addr uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.regions, addr)
}
