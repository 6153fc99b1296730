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

package keys_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/apitrace/apitrace-sub000/core/context/keys"
)

func TestNoKeys(t *testing.T) {
	ctx := context.Background()
	list := keys.Get(ctx)
	if len(list) != 0 {
		t.Errorf("Background context had non zero sized key list")
	}
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	keyList := []interface{}{"A", "B"}
	initial := []interface{}{"a", "b"}
	for i, k := range keyList {
		ctx = keys.WithValue(ctx, k, initial[i])
	}
	ctx = keys.WithValue(ctx, "A", "c")
	if got := ctx.Value("A"); got != "c" {
		t.Errorf("Context has %v for A, expected c", got)
	}
	if got := ctx.Value("B"); got != "b" {
		t.Errorf("Context has %v for B, expected b", got)
	}
	list := keys.Get(ctx)
	if len(list) != 2 || list[0] != "A" || list[1] != "B" {
		t.Errorf("Key list was incorrect, got %v", list)
	}
}

func TestManyKeys(t *testing.T) {
	ctx := context.Background()
	const max = 100
	for i := 0; i < max; i++ {
		ctx = keys.WithValue(ctx, i, fmt.Sprint(i))
	}
	list := keys.Get(ctx)
	if len(list) != max {
		t.Errorf("Key list was the wrong length, got %d expected %d", len(list), max)
	}
}

func TestClone(t *testing.T) {
	from, cancel := context.WithCancel(context.Background())
	from = keys.WithValue(from, "A", "a")
	from = keys.WithValue(from, "B", "b")
	cancel()
	ctx := keys.Clone(context.Background(), from)
	if ctx.Err() != nil {
		t.Errorf("Clone carried the cancellation")
	}
	if ctx.Value("A") != "a" || ctx.Value("B") != "b" {
		t.Errorf("Clone lost values: %v %v", ctx.Value("A"), ctx.Value("B"))
	}
}
