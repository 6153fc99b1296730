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

package interval

import "sort"

// List is the interface to an object that can be used as an interval list by
// the algorithms in this package. The intervals must be sorted and must not
// overlap.
type List interface {
	// Length returns the number of intervals in the list.
	Length() int
	// GetSpan returns the span of the interval at index.
	GetSpan(index int) U64Span
}

// MutableList is a List that can be modified by Merge, Replace and Remove.
type MutableList interface {
	List
	// SetSpan adjusts the span of the existing interval at index.
	SetSpan(index int, span U64Span)
	// New fills the slot at index with a fresh interval covering span.
	New(index int, span U64Span)
	// Copy moves count intervals from the from index to the to index.
	Copy(to, from, count int)
	// Resize changes the length of the list.
	Resize(length int)
}

// Predicate is used to test spans while searching a list.
type Predicate func(test U64Span) bool

// IndexOf returns the index of the interval in l that contains value, or -1.
func IndexOf(l List, value uint64) int {
	index := sort.Search(l.Length(), func(at int) bool {
		return value < l.GetSpan(at).Start
	})
	index--
	if index >= 0 && value < l.GetSpan(index).End {
		return index
	}
	return -1
}

// Search returns the index of the first interval in l for which t is true.
// t must be false for some prefix of the list and true for the rest.
// If no interval matches, it returns the list length.
func Search(l List, t Predicate) int {
	i, j := 0, l.Length()
	for i < j {
		h := i + (j-i)/2
		if !t(l.GetSpan(h)) {
			i = h + 1
		} else {
			j = h
		}
	}
	return i
}

// Intersect returns the index of the first interval in l that overlaps span,
// and the number of overlapping intervals.
func Intersect(l List, span U64Span) (first, count int) {
	s := intersection{}
	s.intersect(l, span, false)
	return s.lowIndex, s.overlap
}

// Merge adds span to l, combining it with every interval it overlaps.
// If joinAdj is true, intervals that only touch span are combined as well.
// It returns the index of the resulting interval.
func Merge(l MutableList, span U64Span, joinAdj bool) int {
	s := intersection{}
	s.intersect(l, span, joinAdj)
	adjust(l, s.lowIndex, 1-s.overlap)
	if s.overlap == 0 {
		l.New(s.lowIndex, span)
		return s.lowIndex
	}
	if s.low.Start < span.Start {
		span.Start = s.low.Start
	}
	if s.high.End > span.End {
		span.End = s.high.End
	}
	l.SetSpan(s.lowIndex, span)
	return s.lowIndex
}

// Replace cuts span out of every interval in l and inserts a new interval
// covering exactly span. It returns the index of the new interval.
func Replace(l MutableList, span U64Span) int {
	index := cut(l, span, true)
	l.New(index, span)
	return index
}

// Remove cuts span out of every interval in l, trimming or splitting the
// intervals that partially overlap it.
func Remove(l MutableList, span U64Span) {
	cut(l, span, false)
}

// intersection holds the result of testing a span against a list.
type intersection struct {
	overlap        int     // the count of intervals that overlap the span
	lowIndex       int     // the index of the low interval
	low            U64Span // the span at the low index
	intersectsLow  bool    // whether the low interval starts before the span
	highIndex      int     // the index of the high interval
	high           U64Span // the span at the high index
	intersectsHigh bool    // whether the high interval ends after the span
}

func (s *intersection) intersect(l List, span U64Span, expand bool) {
	var before, after int
	if expand {
		before = Search(l, func(test U64Span) bool { return span.Start <= test.End })
		after = Search(l, func(test U64Span) bool { return span.End < test.Start })
	} else {
		before = Search(l, func(test U64Span) bool { return span.Start < test.End })
		after = Search(l, func(test U64Span) bool { return span.End <= test.Start })
	}
	if after < before {
		after, before = before, after
	}
	s.lowIndex = before
	s.highIndex = after - 1
	s.overlap = after - before
	s.intersectsLow = false
	s.intersectsHigh = false
	if s.overlap > 0 {
		s.low = l.GetSpan(s.lowIndex)
		s.intersectsLow = s.low.Start < span.Start
		s.high = l.GetSpan(s.highIndex)
		s.intersectsHigh = span.End < s.high.End
	}
}

// cut slices a hole matching span from l. If add is true a slot is left in
// the hole for the caller to fill. It returns the index of the hole.
func cut(l MutableList, span U64Span, add bool) int {
	s := intersection{}
	s.intersect(l, span, false)
	if s.overlap == 0 {
		if add {
			adjust(l, s.lowIndex, 1)
		}
		return s.lowIndex
	}

	insertLen := 0
	insertPoint := s.lowIndex
	if s.intersectsLow {
		s.low.End = span.Start
		insertLen++
		insertPoint++
	}
	if add {
		insertLen++
	}
	if s.intersectsHigh {
		s.high.Start = span.End
		insertLen++
	}
	adjust(l, insertPoint, insertLen-s.overlap)
	if s.intersectsLow {
		l.SetSpan(s.lowIndex, s.low)
	}
	if s.intersectsHigh {
		l.SetSpan(s.lowIndex+insertLen-1, s.high)
	}
	return insertPoint
}

// adjust grows or shrinks l by delta intervals at index at, moving the tail.
func adjust(l MutableList, at, delta int) {
	if delta == 0 {
		return
	}
	oldLen := l.Length()
	newLen := oldLen + delta
	if delta > 0 {
		l.Resize(newLen)
	}
	copyStart := at - delta
	copyTo := at
	if copyStart < 0 {
		copyTo -= copyStart
		copyStart = 0
	}
	l.Copy(copyTo, copyStart, newLen-copyTo)
	if delta < 0 {
		l.Resize(newLen)
	}
}
