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

// Package interval provides sorted lists of half open uint64 intervals, used
// to track address ranges such as mapped memory regions and dirty bytes.
package interval

import "fmt"

// U64Span is the base interval type understood by the algorithms in this package.
// It is a half open interval that includes the lower bound, but not the upper.
type U64Span struct {
	Start uint64 // the value at which the interval begins
	End   uint64 // the next value not included in the interval.
}

// U64Range is an interval specified by a beginning and size.
type U64Range struct {
	First uint64 // the first value in the interval
	Count uint64 // the count of values in the interval
}

// U64SpanList implements MutableList for an array of U64Span intervals.
type U64SpanList []U64Span

// U64RangeList implements MutableList for an array of U64Range intervals.
type U64RangeList []U64Range

// Range converts a U64Span to a U64Range.
func (s U64Span) Range() U64Range { return U64Range{First: s.Start, Count: s.End - s.Start} }

// Span converts a U64Range to a U64Span.
func (r U64Range) Span() U64Span { return U64Span{Start: r.First, End: r.First + r.Count} }

// Contains returns true if v lies within the span.
func (s U64Span) Contains(v uint64) bool { return s.Start <= v && v < s.End }

// Overlaps returns true if the two spans share at least one value.
func (s U64Span) Overlaps(o U64Span) bool { return s.Start < o.End && o.Start < s.End }

func (s U64Span) String() string { return fmt.Sprintf("[0x%x-0x%x)", s.Start, s.End) }

func (l U64SpanList) Length() int                     { return len(l) }
func (l U64SpanList) GetSpan(index int) U64Span       { return l[index] }
func (l U64SpanList) SetSpan(index int, span U64Span) { l[index] = span }
func (l U64SpanList) New(index int, span U64Span)     { l[index] = span }
func (l U64SpanList) Copy(to, from, count int)        { copy(l[to:to+count], l[from:from+count]) }
func (l *U64SpanList) Resize(length int)              { *l = grow(*l, length) }

func (l U64RangeList) Length() int                     { return len(l) }
func (l U64RangeList) GetSpan(index int) U64Span       { return l[index].Span() }
func (l U64RangeList) SetSpan(index int, span U64Span) { l[index] = span.Range() }
func (l U64RangeList) New(index int, span U64Span)     { l[index] = span.Range() }
func (l U64RangeList) Copy(to, from, count int)        { copy(l[to:to+count], l[from:from+count]) }
func (l *U64RangeList) Resize(length int)              { *l = grow(*l, length) }

// grow resizes s to length, doubling the capacity when it has to reallocate.
func grow[S ~[]E, E any](s S, length int) S {
	if cap(s) >= length {
		return s[:length]
	}
	capacity := cap(s) * 2
	if capacity < length {
		capacity = length
	}
	out := make(S, length, capacity)
	copy(out, s)
	return out
}
