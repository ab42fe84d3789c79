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

// Package inflate turns a compressed blob payload into an uncompressed
// byte buffer of the declared raw size, dispatching across the four
// compression codecs the wire schema recognizes.
package inflate

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
	"github.com/ulikunitz/xz/lzma"

	"github.com/QuodEstDubitandum/fast-osmpbf/internal/core"
)

var (
	// ErrUnknownCodec is returned for a Blob oneof variant this package
	// does not recognize.
	ErrUnknownCodec = errors.New("inflate: unknown blob compression codec")

	// ErrCorrupt is returned when a compressed stream fails to inflate.
	ErrCorrupt = errors.New("inflate: stream corrupt")

	// ErrSizeMismatch is returned when the inflated length disagrees
	// with the blob's declared raw size.
	ErrSizeMismatch = errors.New("inflate: size mismatch")
)

// Codec identifies which compressed variant of a Blob payload is present.
type Codec int

const (
	Raw Codec = iota
	Zlib
	Lzma
	Lz4
	Zstd
)

// Payload is the subset of a decoded Blob message the inflate stage needs:
// which codec produced the bytes, the bytes themselves, and the declared
// uncompressed size.
type Payload struct {
	Codec   Codec
	Data    []byte
	RawSize int
}

// Inflate inflates a compressed payload into buf, which the caller owns
// and may come from a sync.Pool, and fails with ErrSizeMismatch unless
// exactly payload.RawSize bytes come out. Raw payloads are reborrowed
// without copying; their length is not checked against RawSize.
func Inflate(buf *core.PooledBuffer, payload Payload) ([]byte, error) {
	if payload.Codec == Raw {
		return payload.Data, nil
	}

	factory, err := readerFactory(payload.Codec)
	if err != nil {
		return nil, err
	}

	rawBufferSize := payload.RawSize + bytes.MinRead
	if rawBufferSize > buf.Cap() {
		buf.Grow(rawBufferSize)
	}

	rdr, err := factory(payload.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	n, err := buf.ReadFrom(rdr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if n != int64(payload.RawSize) {
		return nil, fmt.Errorf("%w: inflated %d bytes, expected %d", ErrSizeMismatch, n, payload.RawSize)
	}

	return buf.Bytes(), nil
}

func readerFactory(c Codec) (func(b []byte) (io.Reader, error), error) {
	switch c {
	case Zlib:
		return func(b []byte) (io.Reader, error) {
			return zlib.NewReader(bytes.NewReader(b))
		}, nil
	case Lzma:
		return func(b []byte) (io.Reader, error) {
			return lzma.NewReader(bytes.NewReader(b))
		}, nil
	case Lz4:
		return func(b []byte) (io.Reader, error) {
			return lz4.NewReader(bytes.NewReader(b)), nil
		}, nil
	case Zstd:
		return func(b []byte) (io.Reader, error) {
			return zstd.NewReader(bytes.NewReader(b))
		}, nil
	default:
		return nil, ErrUnknownCodec
	}
}
