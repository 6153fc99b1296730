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

package codec

import (
	"github.com/apitrace/apitrace-sub000/apil/schema"
	"github.com/apitrace/apitrace-sub000/trace/wire"
)

// Sigs holds the wire signatures of an API, indexed by their ids.
type Sigs struct {
	Calls    []*wire.FunctionSig
	Structs  []*wire.StructSig
	Enums    []*wire.EnumSig
	Bitmasks []*wire.BitmaskSig
}

// Signatures derives the wire signatures of every call, struct, enum and
// bitmask of api.
func Signatures(api *schema.API) *Sigs {
	s := &Sigs{}
	for _, f := range api.Calls {
		names := make([]string, len(f.Args))
		for i, a := range f.Args {
			names[i] = a.Name
		}
		s.Calls = append(s.Calls, &wire.FunctionSig{ID: f.ID, Name: f.Name, ArgNames: names})
	}
	for _, t := range api.Structs {
		names := make([]string, len(t.Members))
		for i, m := range t.Members {
			names[i] = m.Name
		}
		s.Structs = append(s.Structs, &wire.StructSig{ID: t.ID, Name: t.Name, MemberNames: names})
	}
	for _, t := range api.Enums {
		values := make([]wire.EnumValue, len(t.Values))
		for i, v := range t.Values {
			values[i] = wire.EnumValue{Name: v.Name, Value: v.Value}
		}
		s.Enums = append(s.Enums, &wire.EnumSig{ID: t.ID, Values: values})
	}
	for _, t := range api.Bitmasks {
		flags := make([]wire.BitmaskFlag, len(t.Flags))
		for i, f := range t.Flags {
			flags[i] = wire.BitmaskFlag{Name: f.Name, Value: f.Value}
		}
		s.Bitmasks = append(s.Bitmasks, &wire.BitmaskSig{ID: t.ID, Flags: flags})
	}
	return s
}

// Call returns the signature of f.
func (s *Sigs) Call(f *schema.Function) *wire.FunctionSig { return s.Calls[f.ID] }

// Struct returns the signature of t.
func (s *Sigs) Struct(t *schema.Struct) *wire.StructSig { return s.Structs[t.ID] }

// Enum returns the signature of t.
func (s *Sigs) Enum(t *schema.Enum) *wire.EnumSig { return s.Enums[t.ID] }

// Bitmask returns the signature of t.
func (s *Sigs) Bitmask(t *schema.Bitmask) *wire.BitmaskSig { return s.Bitmasks[t.ID] }
