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
	"context"
	"strings"
	"testing"
	"time"

	"github.com/apitrace/apitrace-sub000/core/assert"
	"github.com/apitrace/apitrace-sub000/core/log"
)

var testClock = log.FixedClock(time.Date(2000, time.January, 22, 12, 34, 56, 789000000, time.Local))

type testMessage struct {
	msg      string
	args     []interface{}
	values   log.V
	severity log.Severity
	tag      string

	raw      string
	brief    string
	normal   string
	detailed string
}

func (m testMessage) send(h log.Handler) {
	ctx := context.Background()
	ctx = log.PutHandler(ctx, h)
	ctx = log.PutTag(ctx, m.tag)
	ctx = log.PutClock(ctx, testClock)
	ctx = m.values.Bind(ctx)
	log.From(ctx).Logf(m.severity, false, m.msg, m.args...)
}

var testMessages = []testMessage{
	{
		msg:      "plain warning",
		severity: log.Warning,

		raw:      "plain warning",
		brief:    "W: plain warning",
		normal:   "12:34:56.789 W: plain warning",
		detailed: "12:34:56.789 Warning: plain warning",
	}, {
		msg:      "info with values",
		severity: log.Info,
		values:   log.V{"call": "glGenTextures", "no": 7},

		raw:      "info with values",
		brief:    "I: info with values",
		normal:   "12:34:56.789 I: info with values",
		detailed: "12:34:56.789 Info: info with values \n  call: glGenTextures\n  no: 7",
	}, {
		msg:      "tagged %d",
		args:     []interface{}{3},
		severity: log.Debug,
		tag:      "replay",

		raw:      "tagged 3",
		brief:    "D: tagged 3",
		normal:   "12:34:56.789 D: [replay] tagged 3",
		detailed: "12:34:56.789 Debug: [replay] tagged 3",
	},
}

func TestStyles(t *testing.T) {
	for _, test := range testMessages {
		for _, s := range []struct {
			style    log.Style
			expected string
		}{
			{log.Raw, test.raw},
			{log.Brief, test.brief},
			{log.Normal, test.normal},
			{log.Detailed, test.detailed},
		} {
			w, buf := log.Buffer()
			test.send(s.style.Handler(w))
			assert.To(t).For("%s(%s)", s.style.Name, test.msg).
				ThatString(strings.TrimRight(buf.String(), "\n")).Equals(s.expected)
		}
	}
}

func TestFilter(t *testing.T) {
	assert := assert.To(t)
	w, buf := log.Buffer()
	ctx := log.PutHandler(context.Background(), log.Raw.Handler(w))
	ctx = log.PutFilter(ctx, log.SeverityFilter(log.Warning))
	log.I(ctx, "hidden")
	assert.For("filtered").ThatString(buf.String()).Equals("")
	log.W(ctx, "shown")
	assert.For("shown").ThatString(buf.String()).Equals("shown")
}

func TestValuesShadow(t *testing.T) {
	assert := assert.To(t)
	ctx := log.V{"call": "outer"}.Bind(context.Background())
	ctx = log.V{"call": "inner"}.Bind(ctx)
	m := log.From(ctx).Message(log.Info, false, "x")
	assert.For("values").ThatInteger(len(m.Values)).Equals(1)
	assert.For("value").That(m.Values[0].Value).Equals("inner")
}

func TestChannel(t *testing.T) {
	assert := assert.To(t)
	w, b := log.Buffer()
	ping := make(chan struct{})
	handler := log.Channel(pingHandler{log.Normal.Handler(w), ping}, 0)
	defer handler.Close()
	for _, test := range testMessages {
		b.Reset()
		test.send(handler)
		<-ping
		got := strings.TrimRight(b.String(), "\n")
		assert.For(test.msg).That(got).Equals(test.normal)
	}
}

type pingHandler struct {
	h log.Handler
	c chan struct{}
}

func (h pingHandler) Handle(m *log.Message) {
	h.h.Handle(m)
	h.c <- struct{}{}
}

func (h pingHandler) Close() {
	h.h.Close()
	close(h.c)
}
