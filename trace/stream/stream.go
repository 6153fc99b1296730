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

// Package stream provides the compressed transports that trace files are
// written through. Readers detect the compression from the leading magic
// bytes, so a trace can be opened without knowing how it was written.
package stream

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/apitrace/apitrace-sub000/core/fault"
)

// ErrUnknownCompression is returned for unrecognized compression names.
const ErrUnknownCompression = fault.Const("Unknown compression")

// Compression is a transport encoding of the trace bytes.
type Compression int

const (
	// Raw is the uncompressed byte stream.
	Raw Compression = iota
	// Zstd is a zstandard stream.
	Zstd
	// Snappy is a snappy framed stream.
	Snappy
)

var names = map[Compression]string{Raw: "raw", Zstd: "zstd", Snappy: "snappy"}

func (c Compression) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "unknown"
}

// ParseCompression returns the compression with the given name.
func ParseCompression(name string) (Compression, error) {
	for c, n := range names {
		if strings.EqualFold(n, name) {
			return c, nil
		}
	}
	return Raw, errors.Wrap(ErrUnknownCompression, name)
}

var (
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	snappyMagic = []byte("\xff\x06\x00\x00sNaPpY")
)

// Sniff returns the compression of a stream starting with head.
func Sniff(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	case bytes.HasPrefix(head, snappyMagic):
		return Snappy
	}
	return Raw
}

type readCloser struct {
	io.Reader
	close func() error
}

func (r readCloser) Close() error { return r.close() }

type writeCloser struct {
	io.Writer
	close func() error
}

func (w writeCloser) Close() error { return w.close() }

func nop() error { return nil }

// Open returns a reader of the decompressed contents of r and the detected
// compression. Closing the reader does not close r.
func Open(r io.Reader) (io.ReadCloser, Compression, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(snappyMagic))
	if err != nil && err != io.EOF {
		return nil, Raw, errors.Wrap(err, "Reading stream header")
	}
	c := Sniff(head)
	switch c {
	case Zstd:
		d, err := zstd.NewReader(br)
		if err != nil {
			return nil, c, errors.Wrap(err, "Opening zstd stream")
		}
		return readCloser{d, func() error { d.Close(); return nil }}, c, nil
	case Snappy:
		return readCloser{snappy.NewReader(br), nop}, c, nil
	}
	return readCloser{br, nop}, c, nil
}

// Create returns a writer compressing to w. The writer must be closed to
// flush the stream. Closing it does not close w.
func Create(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case Raw:
		return writeCloser{w, nop}, nil
	case Zstd:
		e, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithZeroFrames(true))
		if err != nil {
			return nil, errors.Wrap(err, "Creating zstd stream")
		}
		return e, nil
	case Snappy:
		return snappy.NewBufferedWriter(w), nil
	}
	return nil, errors.Wrapf(ErrUnknownCompression, "%d", int(c))
}

// OpenFile opens the trace file at path for reading.
func OpenFile(path string) (io.ReadCloser, Compression, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Raw, err
	}
	r, c, err := Open(f)
	if err != nil {
		f.Close()
		return nil, c, err
	}
	return readCloser{r, func() error {
		r.Close()
		return f.Close()
	}}, c, nil
}

// CreateFile creates the trace file at path for writing.
func CreateFile(path string, c Compression) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w, err := Create(f, c)
	if err != nil {
		f.Close()
		return nil, err
	}
	return writeCloser{w, func() error {
		if err := w.Close(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}}, nil
}
