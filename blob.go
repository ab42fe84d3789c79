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

package pbf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/QuodEstDubitandum/fast-osmpbf/internal/core"
	"github.com/QuodEstDubitandum/fast-osmpbf/internal/inflate"
	"github.com/QuodEstDubitandum/fast-osmpbf/internal/wire"
)

// blobRecord is one (header, payload) pair off the wire: a type tag plus
// an inflate.Payload describing the (possibly still compressed) bytes.
type blobRecord struct {
	typeTag string
	payload inflate.Payload
}

// readBlobRecord advances the two-state blob framer: it reads the 4-byte
// big-endian header length, the header message, and then the blob
// payload.
func readBlobRecord(r io.Reader, buf *core.PooledBuffer, opts readerOptions) (blobRecord, error) {
	var headerLen uint32

	if err := binary.Read(r, binary.BigEndian, &headerLen); err != nil {
		if errors.Is(err, io.EOF) {
			return blobRecord{}, io.EOF
		}

		return blobRecord{}, fmt.Errorf("%w: reading blob header length: %w", ErrIO, err)
	}

	if int(headerLen) > opts.maxHeaderSize {
		return blobRecord{}, fmt.Errorf("%w: header length %d exceeds limit %d", ErrOversizedHeader, headerLen, opts.maxHeaderSize)
	}

	buf.Reset()

	if n, err := io.CopyN(buf, r, int64(headerLen)); err != nil {
		return blobRecord{}, fmt.Errorf("%w: reading blob header (got %d of %d bytes): %w", ErrIO, n, headerLen, err)
	}

	typeTag, dataSize, err := parseBlobHeader(buf.Bytes())
	if err != nil {
		return blobRecord{}, fmt.Errorf("%w: parsing blob header: %w", ErrIO, err)
	}

	if dataSize < 0 || dataSize > opts.maxCompressedBlob {
		return blobRecord{}, fmt.Errorf("%w: blob size %d outside limit %d", ErrOversizedBlob, dataSize, opts.maxCompressedBlob)
	}

	blobBuf := core.NewPooledBuffer()
	defer blobBuf.Close()

	if n, err := io.CopyN(blobBuf, r, int64(dataSize)); err != nil {
		return blobRecord{}, fmt.Errorf("%w: reading blob (got %d of %d bytes): %w", ErrIO, n, dataSize, err)
	}

	payload, err := parseBlob(blobBuf.Bytes())
	if err != nil {
		return blobRecord{}, fmt.Errorf("%w: parsing blob: %w", ErrIO, err)
	}

	if payload.RawSize < 0 || payload.RawSize > opts.maxRawBlob {
		return blobRecord{}, fmt.Errorf("%w: raw size %d outside limit %d", ErrOversizedBlob, payload.RawSize, opts.maxRawBlob)
	}

	// The payload borrows blobBuf's backing array; copy it out before the
	// pooled buffer is returned.
	owned := make([]byte, len(payload.Data))
	copy(owned, payload.Data)
	payload.Data = owned

	return blobRecord{typeTag: typeTag, payload: payload}, nil
}

// parseBlobHeader decodes a BlobHeader message: string type (1), optional
// indexdata (2, ignored), required int32 datasize (3).
func parseBlobHeader(buf []byte) (typeTag string, dataSize int, err error) {
	r := wire.NewReader(buf)

	for !r.Done() {
		field, wt, err := r.Tag()
		if err != nil {
			return "", 0, err
		}

		switch field {
		case 1:
			b, err := r.Bytes()
			if err != nil {
				return "", 0, err
			}

			typeTag = string(b)
		case 3:
			v, err := r.Varint()
			if err != nil {
				return "", 0, err
			}

			dataSize = int(int32(v))
		default:
			if err := r.Skip(wt); err != nil {
				return "", 0, err
			}
		}
	}

	return typeTag, dataSize, nil
}

// parseBlob decodes a Blob message into an inflate.Payload: exactly one of
// raw (1), zlib_data (3), lzma_data (4), lz4_data (6), zstd_data (7) is
// expected to be present, alongside raw_size (2).
func parseBlob(buf []byte) (inflate.Payload, error) {
	r := wire.NewReader(buf)

	var (
		payload inflate.Payload
		set     bool
	)

	for !r.Done() {
		field, wt, err := r.Tag()
		if err != nil {
			return inflate.Payload{}, err
		}

		switch field {
		case 1:
			b, err := r.Bytes()
			if err != nil {
				return inflate.Payload{}, err
			}

			payload.Codec, payload.Data, set = inflate.Raw, b, true
		case 2:
			v, err := r.Varint()
			if err != nil {
				return inflate.Payload{}, err
			}

			payload.RawSize = int(int32(v))
		case 3:
			b, err := r.Bytes()
			if err != nil {
				return inflate.Payload{}, err
			}

			payload.Codec, payload.Data, set = inflate.Zlib, b, true
		case 4:
			b, err := r.Bytes()
			if err != nil {
				return inflate.Payload{}, err
			}

			payload.Codec, payload.Data, set = inflate.Lzma, b, true
		case 6:
			b, err := r.Bytes()
			if err != nil {
				return inflate.Payload{}, err
			}

			payload.Codec, payload.Data, set = inflate.Lz4, b, true
		case 7:
			b, err := r.Bytes()
			if err != nil {
				return inflate.Payload{}, err
			}

			payload.Codec, payload.Data, set = inflate.Zstd, b, true
		default:
			if err := r.Skip(wt); err != nil {
				return inflate.Payload{}, err
			}
		}
	}

	if !set {
		// A blob with no data oneof decodes to zero bytes and yields no
		// elements.
		payload.Codec, payload.Data = inflate.Raw, nil
	}

	return payload, nil
}

// inflateBlob inflates a blobRecord's payload, translating the inflate
// package's sentinel errors into this package's.
func inflateBlob(buf *core.PooledBuffer, rec blobRecord) ([]byte, error) {
	out, err := inflate.Inflate(buf, rec.payload)
	if err == nil {
		return out, nil
	}

	switch {
	case errors.Is(err, inflate.ErrSizeMismatch):
		return nil, fmt.Errorf("%w: %w", ErrSizeMismatch, err)
	case errors.Is(err, inflate.ErrUnknownCodec), errors.Is(err, inflate.ErrCorrupt):
		return nil, fmt.Errorf("%w: %w", ErrInflate, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrInflate, err)
	}
}
