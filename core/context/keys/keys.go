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

// Package keys tracks the keys stored on a context so that the values can be
// copied to an unrelated context.
package keys

import "context"

type keySetType int

const keySet = keySetType(0)

type link struct {
	key  interface{}
	next *link
}

// Get returns the keys stored with WithValue on ctx, most recent first and
// without duplicates.
func Get(ctx context.Context) []interface{} {
	seen := map[interface{}]bool{}
	result := []interface{}{}
	for l, _ := ctx.Value(keySet).(*link); l != nil; l = l.next {
		if !seen[l.key] {
			seen[l.key] = true
			result = append(result, l.key)
		}
	}
	return result
}

// WithValue is a replacement for context.WithValue that records the key so
// that Clone can find it.
func WithValue(ctx context.Context, key interface{}, value interface{}) context.Context {
	old, _ := ctx.Value(keySet).(*link)
	ctx = context.WithValue(ctx, key, value)
	return context.WithValue(ctx, keySet, &link{key: key, next: old})
}

// Clone copies all the keyed values from from onto ctx.
// The result carries from's values but ctx's deadline and cancellation.
func Clone(ctx context.Context, from context.Context) context.Context {
	list := Get(from)
	for i := len(list) - 1; i >= 0; i-- {
		ctx = WithValue(ctx, list[i], from.Value(list[i]))
	}
	return ctx
}
