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
	"sync"

	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/core/fault"
)

// ErrMiss is the cause of lookups of identities that were never registered.
const ErrMiss = fault.Const("Identity not registered")

type handleKey struct {
	key      int64
	recorded uint64
}

// HandleMap remaps the recorded values of one handle type to the values
// created during replay. Handles with a key are only unique together with
// their key, such as the device they belong to.
type HandleMap struct {
	name string
	mu   sync.Mutex
	live map[handleKey]uint64
}

// Name returns the name of the handle type.
func (m *HandleMap) Name() string { return m.name }

// Add maps a single recorded handle to a live one.
func (m *HandleMap) Add(key int64, recorded, live uint64) {
	m.AddRange(key, recorded, live, 1)
}

// AddRange maps count consecutive recorded handles from recorded onwards to
// the consecutive live handles from live onwards.
func (m *HandleMap) AddRange(key int64, recorded, live, count uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := uint64(0); i < count; i++ {
		m.live[handleKey{key, recorded + i}] = live + i
	}
}

// Lookup returns the live handle of a recorded one. The zero handle always
// maps to zero.
func (m *HandleMap) Lookup(key int64, recorded uint64) (uint64, error) {
	if recorded == 0 {
		return 0, nil
	}
	m.mu.Lock()
	live, ok := m.live[handleKey{key, recorded}]
	m.mu.Unlock()
	if !ok {
		return 0, errors.Wrapf(ErrMiss, "%s %d (key %d)", m.name, recorded, key)
	}
	return live, nil
}

// Remove drops the mapping of a recorded handle.
func (m *HandleMap) Remove(key int64, recorded uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, handleKey{key, recorded})
}

// Len returns the number of mapped handles.
func (m *HandleMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Handles holds a HandleMap per handle type.
type Handles struct {
	mu   sync.Mutex
	maps map[string]*HandleMap
}

// NewHandles returns an empty set of handle maps.
func NewHandles() *Handles {
	return &Handles{maps: map[string]*HandleMap{}}
}

// Map returns the map of the named handle type, creating it on first use.
func (h *Handles) Map(name string) *HandleMap {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, ok := h.maps[name]
	if !ok {
		m = &HandleMap{name: name, live: map[handleKey]uint64{}}
		h.maps[name] = m
	}
	return m
}
