// Copyright 2017-25 the original author or authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wire is a minimal, non-reflective walker for the fixed protobuf
// schema embedded in the OSM PBF container. It decodes exactly the message
// shapes the decoder needs and nothing else: there is no generated-code
// layer and no allocation for fields the caller skips.
package wire

import (
	"errors"
)

// maxVarintBytes bounds how many bytes a single varint may occupy on the
// wire; 64-bit values never need more than 10.
const maxVarintBytes = 10

var (
	// ErrTruncatedVarint is returned when the input ends mid-encoding.
	ErrTruncatedVarint = errors.New("wire: truncated varint")

	// ErrOverlongVarint is returned when a varint consumes more than
	// maxVarintBytes bytes without terminating.
	ErrOverlongVarint = errors.New("wire: overlong varint")

	// ErrUnknownWireType is returned for a field tag whose low 3 bits
	// don't match one of the four recognized wire types.
	ErrUnknownWireType = errors.New("wire: unknown wire type")

	// ErrShortBuffer is returned when a length-delimited read would run
	// past the end of the buffer.
	ErrShortBuffer = errors.New("wire: short buffer")
)

// DecodeVarint decodes an unsigned varint at the start of b, returning the
// value and the number of bytes consumed.
func DecodeVarint(b []byte) (value uint64, n int, err error) {
	for shift := uint(0); shift < maxVarintBytes*7; shift += 7 {
		if n >= len(b) {
			return 0, 0, ErrTruncatedVarint
		}

		c := b[n]
		n++

		value |= uint64(c&0x7f) << shift

		if c&0x80 == 0 {
			return value, n, nil
		}
	}

	return 0, 0, ErrOverlongVarint
}

// Zigzag decodes a zigzag-encoded unsigned value into its signed form.
func Zigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
