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
)

// Objects maps the recorded addresses of interface objects to the live
// objects created during replay.
type Objects struct {
	mu   sync.Mutex
	live map[uint64]any
}

// NewObjects returns an empty object map.
func NewObjects() *Objects {
	return &Objects{live: map[uint64]any{}}
}

// Add maps a recorded address to a live object. Replacing a different live
// object is reported, as it usually means a release was not traced.
func (o *Objects) Add(ctx context.Context, recorded uint64, live any) {
	if recorded == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if old, ok := o.live[recorded]; ok && old != nil && old != live {
		log.W(ctx, "Unexpected object at 0x%x: replacing %T", recorded, old)
	}
	o.live[recorded] = live
}

// Lookup returns the live object of a recorded address. The null address
// maps to nil.
func (o *Objects) Lookup(recorded uint64) (any, error) {
	if recorded == 0 {
		return nil, nil
	}
	o.mu.Lock()
	live, ok := o.live[recorded]
	o.mu.Unlock()
	if !ok {
		return nil, errors.Wrapf(ErrMiss, "Object 0x%x", recorded)
	}
	return live, nil
}

// Remove drops the object at a recorded address.
func (o *Objects) Remove(recorded uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.live, recorded)
}

// Len returns the number of mapped objects.
func (o *Objects) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.live)
}
