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

package interval_test

import (
	"testing"

	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
	"github.com/apitrace/apitrace-sub000/core/math/interval"
)

type S = interval.U64Span
type L = interval.U64SpanList

func TestMerge(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name     string
		list     L
		with     S
		joinAdj  bool
		expected L
	}{
		{"empty", L{}, S{0, 10}, false, L{{0, 10}}},
		{"between", L{{0, 10}, {40, 50}}, S{20, 30}, false, L{{0, 10}, {20, 30}, {40, 50}}},
		{"before", L{{10, 20}}, S{0, 5}, false, L{{0, 5}, {10, 20}}},
		{"after", L{{0, 5}}, S{10, 20}, false, L{{0, 5}, {10, 20}}},
		{"touch no join", L{{3, 5}}, S{5, 7}, false, L{{3, 5}, {5, 7}}},
		{"touch join", L{{3, 5}}, S{5, 7}, true, L{{3, 7}}},
		{"touch join before", L{{3, 5}}, S{0, 3}, true, L{{0, 5}}},
		{"extend before", L{{3, 5}}, S{0, 4}, false, L{{0, 5}}},
		{"extend after", L{{3, 5}}, S{4, 7}, false, L{{3, 7}}},
		{"inside", L{{10, 20}}, S{12, 15}, false, L{{10, 20}}},
		{"merge first two", L{{0, 10}, {20, 30}, {40, 50}}, S{5, 25}, false, L{{0, 30}, {40, 50}}},
		{"merge last two", L{{0, 10}, {20, 30}, {40, 50}}, S{25, 45}, false, L{{0, 10}, {20, 50}}},
		{"merge all", L{{5, 10}, {20, 30}, {40, 45}}, S{0, 50}, false, L{{0, 50}}},
	} {
		interval.Merge(&test.list, test.with, test.joinAdj)
		assert.For(ctx, test.name).ThatSlice(test.list).Equals(test.expected)
	}
}

func TestReplace(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name     string
		list     L
		with     S
		index    int
		expected L
	}{
		{"empty", L{}, S{0, 10}, 0, L{{0, 10}}},
		{"match", L{{5, 10}}, S{5, 10}, 0, L{{5, 10}}},
		{"split", L{{0, 30}}, S{10, 20}, 1, L{{0, 10}, {10, 20}, {20, 30}}},
		{"trim high", L{{10, 20}}, S{5, 15}, 0, L{{5, 15}, {15, 20}}},
		{"trim low", L{{10, 20}}, S{15, 25}, 1, L{{10, 15}, {15, 25}}},
		{"span many", L{{0, 10}, {20, 30}, {40, 50}}, S{5, 45}, 1, L{{0, 5}, {5, 45}, {45, 50}}},
	} {
		index := interval.Replace(&test.list, test.with)
		assert.For(ctx, "%s index", test.name).ThatInteger(index).Equals(test.index)
		assert.For(ctx, test.name).ThatSlice(test.list).Equals(test.expected)
	}
}

func TestRemove(t *testing.T) {
	ctx := log.Testing(t)
	for _, test := range []struct {
		name     string
		list     L
		with     S
		expected L
	}{
		{"empty", L{}, S{0, 10}, L{}},
		{"exact", L{{5, 10}}, S{5, 10}, L{}},
		{"hole", L{{0, 30}}, S{10, 20}, L{{0, 10}, {20, 30}}},
		{"span many", L{{0, 10}, {20, 30}, {40, 50}}, S{5, 45}, L{{0, 5}, {45, 50}}},
		{"miss", L{{0, 10}}, S{20, 30}, L{{0, 10}}},
	} {
		interval.Remove(&test.list, test.with)
		assert.For(ctx, test.name).ThatSlice(test.list).Equals(test.expected)
	}
}

func TestIndexOf(t *testing.T) {
	ctx := log.Testing(t)
	list := L{{0, 10}, {20, 30}}
	for _, test := range []struct {
		value    uint64
		expected int
	}{
		{0, 0}, {9, 0}, {10, -1}, {20, 1}, {29, 1}, {30, -1}, {100, -1},
	} {
		assert.For(ctx, "IndexOf(%d)", test.value).ThatInteger(interval.IndexOf(list, test.value)).Equals(test.expected)
	}
	first, count := interval.Intersect(list, S{5, 25})
	assert.For(ctx, "first").ThatInteger(first).Equals(0)
	assert.For(ctx, "count").ThatInteger(count).Equals(2)
	_, count = interval.Intersect(list, S{10, 20})
	assert.For(ctx, "gap").ThatInteger(count).Equals(0)
}
