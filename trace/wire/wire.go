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

// Package wire implements the binary trace format: the event framing, the
// tagged value encoding and the interning of call, struct, enum, bitmask and
// stack frame signatures.
//
// A stream starts with a varint version, followed by a sequence of ENTER and
// LEAVE events. Each ENTER is numbered in stream order, and the matching
// LEAVE refers back to it by that number, so calls from different threads
// and reentrant calls may overlap.
package wire

import (
	"strconv"

	"github.com/apitrace/apitrace-sub000/core/data/leb128"
	"github.com/apitrace/apitrace-sub000/core/fault"
)

// Version is the newest stream version understood by this package.
const Version = 1

const (
	// ErrVersion is returned for streams newer than Version.
	ErrVersion = fault.Const("Unsupported trace version")
	// ErrBadTag is returned for an unknown event, detail or value tag. The
	// stream cannot be resynchronized after one.
	ErrBadTag = fault.Const("Unknown tag")
	// ErrOverflow is returned when a varint is malformed.
	ErrOverflow = leb128.ErrOverflow
	// ErrUnmatchedLeave is the cause of the warning for a LEAVE whose call
	// number was never opened.
	ErrUnmatchedLeave = fault.Const("LEAVE without matching ENTER")
)

// Event tags.
const (
	EventEnter = 0
	EventLeave = 1
)

// Call detail tags.
const (
	CallEnd       = 0
	CallArg       = 1
	CallRet       = 2
	CallThread    = 3
	CallBacktrace = 4
	CallFlags     = 5
)

// Stack frame detail tags.
const (
	FrameEnd      = 0
	FrameModule   = 1
	FrameFunction = 2
	FrameFilename = 3
	FrameLine     = 4
	FrameOffset   = 5
)

// Tag is the one byte prefix of an encoded value.
type Tag uint8

// Value tags.
const (
	TagNull Tag = iota
	TagFalse
	TagTrue
	TagSInt
	TagUInt
	TagFloat
	TagDouble
	TagString
	TagBlob
	TagEnum
	TagBitmask
	TagArray
	TagStruct
	TagOpaque
	TagRepr
	TagWString
)

var tagNames = [...]string{
	"NULL", "FALSE", "TRUE", "SINT", "UINT", "FLOAT", "DOUBLE", "STRING",
	"BLOB", "ENUM", "BITMASK", "ARRAY", "STRUCT", "OPAQUE", "REPR", "WSTRING",
}

func (t Tag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "Tag(" + strconv.Itoa(int(t)) + ")"
}
