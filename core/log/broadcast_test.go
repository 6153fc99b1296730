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

package log_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
)

func TestBroadcast(t *testing.T) {
	ctx := log.Testing(t)
	raw, rawBuf := log.Buffer()
	detailed, detailedBuf := log.Buffer()
	b := log.Broadcast(log.Raw.Handler(raw), log.Detailed.Handler(detailed))
	for _, test := range testMessages {
		rawBuf.Reset()
		detailedBuf.Reset()
		test.send(b)
		assert.For(ctx, "%s raw", test.msg).ThatString(strings.TrimRight(rawBuf.String(), "\n")).Equals(test.raw)
		assert.For(ctx, "%s detailed", test.msg).ThatString(strings.TrimRight(detailedBuf.String(), "\n")).Equals(test.detailed)
	}
}

type collected []*log.Message

func (l *collected) Handle(m *log.Message) { *l = append(*l, m) }
func (l *collected) Close()                {}

func TestBroadcastListen(t *testing.T) {
	ctx := log.Testing(t)
	b := log.Broadcast()
	b.Handle(&log.Message{})

	first, second := collected{}, collected{}
	b.Listen(&first)
	unlisten := b.Listen(&second)
	b.Handle(&log.Message{})
	unlisten()
	b.Handle(&log.Message{})
	assert.For(ctx, "listening").ThatInteger(len(first)).Equals(2)
	assert.For(ctx, "unlistened").ThatInteger(len(second)).Equals(1)
}

func TestWriters(t *testing.T) {
	ctx := log.Testing(t)
	w, buf := log.Buffer()
	w("one", log.Info)
	w("two", log.Error)
	assert.For(ctx, "buffer").ThatString(buf.String()).Equals("one\ntwo")

	out := &bytes.Buffer{}
	lines := log.Lines(out)
	lines("one", log.Info)
	lines("two", log.Error)
	assert.For(ctx, "lines").ThatString(out.String()).Equals("one\ntwo\n")
}
