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

package log

import "context"

// T matches the reporting methods of *testing.T.
type T interface {
	Name() string
	Fatal(...interface{})
	Error(...interface{})
	Log(...interface{})
}

// Testing returns a context whose messages are reported to t, tagged with
// the test name. Error messages fail the test and Fatal messages stop it.
func Testing(t T) context.Context {
	ctx := PutTag(context.Background(), t.Name())
	return PutHandler(ctx, TestHandler(t, Brief))
}

// TestHandler returns a Handler reporting messages printed with s to t.
func TestHandler(t T, s Style) Handler {
	if t == nil {
		panic("log.TestHandler needs a test")
	}
	return NewHandler(func(m *Message) {
		text := s.Print(m)
		switch {
		case m.Severity >= Fatal:
			t.Fatal(text)
		case m.Severity >= Error:
			t.Error(text)
		default:
			t.Log(text)
		}
	}, nil)
}
