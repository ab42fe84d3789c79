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

package wire

import "fmt"

// WireType identifies how a field's value is laid out on the wire.
type WireType int

const (
	Varint  WireType = 0
	Fixed64 WireType = 1
	Bytes   WireType = 2
	Fixed32 WireType = 5
)

// Reader walks a borrowed byte slice field-by-field. It never copies the
// slice it was constructed with; every Bytes() call returns a subslice of
// the original buffer.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for field-at-a-time reading. buf is borrowed, not
// copied.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Done reports whether the cursor has reached the end of the buffer.
func (r *Reader) Done() bool {
	return r.pos >= len(r.buf)
}

// Tag reads a field tag and splits it into field number and wire type.
func (r *Reader) Tag() (field int, wt WireType, err error) {
	u, n, err := DecodeVarint(r.buf[r.pos:])
	if err != nil {
		return 0, 0, err
	}

	r.pos += n

	wt = WireType(u & 0x7)

	switch wt {
	case Varint, Fixed64, Bytes, Fixed32:
	default:
		return 0, 0, fmt.Errorf("%w: %d", ErrUnknownWireType, wt)
	}

	return int(u >> 3), wt, nil
}

// Varint reads an unsigned varint value.
func (r *Reader) Varint() (uint64, error) {
	u, n, err := DecodeVarint(r.buf[r.pos:])
	if err != nil {
		return 0, err
	}

	r.pos += n

	return u, nil
}

// SVarint reads a zigzag-encoded varint value.
func (r *Reader) SVarint() (int64, error) {
	u, err := r.Varint()
	if err != nil {
		return 0, err
	}

	return Zigzag(u), nil
}

// Fixed64Value reads a little-endian 64-bit fixed value.
func (r *Reader) Fixed64Value() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, ErrShortBuffer
	}

	b := r.buf[r.pos : r.pos+8]
	r.pos += 8

	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}

	return v, nil
}

// Fixed32Value reads a little-endian 32-bit fixed value.
func (r *Reader) Fixed32Value() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ErrShortBuffer
	}

	b := r.buf[r.pos : r.pos+4]
	r.pos += 4

	var v uint32
	for i := 3; i >= 0; i-- {
		v = v<<8 | uint32(b[i])
	}

	return v, nil
}

// Bytes reads a length-delimited field and returns a borrowed subslice.
func (r *Reader) Bytes() ([]byte, error) {
	n, err := r.Varint()
	if err != nil {
		return nil, err
	}

	if n > uint64(len(r.buf)-r.pos) {
		return nil, ErrShortBuffer
	}

	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)

	return b, nil
}

// Skip advances the cursor past a field of the given wire type, without
// interpreting its contents.
func (r *Reader) Skip(wt WireType) error {
	switch wt {
	case Varint:
		_, err := r.Varint()

		return err
	case Fixed64:
		_, err := r.Fixed64Value()

		return err
	case Fixed32:
		_, err := r.Fixed32Value()

		return err
	case Bytes:
		_, err := r.Bytes()

		return err
	default:
		return fmt.Errorf("%w: %d", ErrUnknownWireType, wt)
	}
}

// PackedVarints reads a length-delimited run of varints, as produced by a
// `repeated ... [packed=true]` field, and unpacks it into a slice.
func PackedVarints(buf []byte) ([]uint64, error) {
	out := make([]uint64, 0, len(buf)/2)

	for pos := 0; pos < len(buf); {
		u, n, err := DecodeVarint(buf[pos:])
		if err != nil {
			return nil, err
		}

		out = append(out, u)
		pos += n
	}

	return out, nil
}

// PackedSVarints is PackedVarints with zigzag decoding applied to each
// element.
func PackedSVarints(buf []byte) ([]int64, error) {
	u, err := PackedVarints(buf)
	if err != nil {
		return nil, err
	}

	out := make([]int64, len(u))
	for i, v := range u {
		out[i] = Zigzag(v)
	}

	return out, nil
}

// PackedInt32s is PackedVarints narrowed to int32, as used by plain (non
// zigzag) `repeated int32` / `repeated uint32` packed fields.
func PackedInt32s(buf []byte) ([]int32, error) {
	u, err := PackedVarints(buf)
	if err != nil {
		return nil, err
	}

	out := make([]int32, len(u))
	for i, v := range u {
		out[i] = int32(v)
	}

	return out, nil
}

// PackedUint32s is PackedVarints narrowed to uint32.
func PackedUint32s(buf []byte) ([]uint32, error) {
	u, err := PackedVarints(buf)
	if err != nil {
		return nil, err
	}

	out := make([]uint32, len(u))
	for i, v := range u {
		out[i] = uint32(v)
	}

	return out, nil
}

// PackedSInt32s is PackedVarints with zigzag decoding and narrowing to
// int32, for `repeated sint32 ... [packed=true]` fields.
func PackedSInt32s(buf []byte) ([]int32, error) {
	u, err := PackedVarints(buf)
	if err != nil {
		return nil, err
	}

	out := make([]int32, len(u))
	for i, v := range u {
		out[i] = int32(Zigzag(v))
	}

	return out, nil
}

// PackedBools is PackedVarints narrowed to bool.
func PackedBools(buf []byte) ([]bool, error) {
	u, err := PackedVarints(buf)
	if err != nil {
		return nil, err
	}

	out := make([]bool, len(u))
	for i, v := range u {
		out[i] = v != 0
	}

	return out, nil
}
