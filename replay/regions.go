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

package replay

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/core/math/interval"
)

// Region is a recorded address range backed by live memory.
type Region struct {
	Span interval.U64Span
	Data []byte
}

// RegionList is a sorted list of non-overlapping regions.
type RegionList []Region

func (l RegionList) Length() int { return len(l) }

func (l RegionList) GetSpan(index int) interval.U64Span { return l[index].Span }

func (l RegionList) Copy(to, from, count int) { copy(l[to:to+count], l[from:from+count]) }

func (l *RegionList) Resize(length int) {
	if length <= cap(*l) {
		*l = (*l)[:length]
		return
	}
	grown := make(RegionList, length, length*2)
	copy(grown, *l)
	*l = grown
}

// SetSpan trims the region at index to span, which must lie within it.
func (l RegionList) SetSpan(index int, span interval.U64Span) {
	r := &l[index]
	r.Data = r.Data[span.Start-r.Span.Start : span.End-r.Span.Start]
	r.Span = span
}

func (l RegionList) New(index int, span interval.U64Span) {
	l[index] = Region{Span: span}
}

// Regions maps recorded address ranges, such as the result of a map call,
// to live memory.
type Regions struct {
	mu   sync.Mutex
	list RegionList
}

// NewRegions returns an empty region map.
func NewRegions() *Regions { return &Regions{} }

// Add maps the recorded range starting at recorded to live. Existing regions
// that overlap it are cut back.
func (r *Regions) Add(ctx context.Context, recorded uint64, live []byte) {
	if recorded == 0 || len(live) == 0 {
		return
	}
	span := interval.U64Span{Start: recorded, End: recorded + uint64(len(live))}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, count := interval.Intersect(r.list, span); count > 0 {
		log.W(ctx, "Region %v overlaps %d mapped regions", span, count)
	}
	i := interval.Replace(&r.list, span)
	r.list[i].Data = live
}

// Lookup returns the live memory from a recorded address to the end of its
// region.
func (r *Regions) Lookup(recorded uint64) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := interval.IndexOf(r.list, recorded)
	if i < 0 {
		return nil, errors.Wrapf(ErrMiss, "Region 0x%x", recorded)
	}
	reg := r.list[i]
	return reg.Data[recorded-reg.Span.Start:], nil
}

// Remove unmaps the recorded range.
func (r *Regions) Remove(span interval.U64Span) {
	r.mu.Lock()
	defer r.mu.Unlock()
	interval.Remove(&r.list, span)
}

// Len returns the number of mapped regions.
func (r *Regions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.list)
}
