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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/destel/rill"

	"github.com/QuodEstDubitandum/fast-osmpbf/internal/core"
	"github.com/QuodEstDubitandum/fast-osmpbf/internal/inflate"
	"github.com/QuodEstDubitandum/fast-osmpbf/model"
)

// Reader decodes a sequence of OSM PBF blobs off r. It is safe to share
// across the goroutines its own pipeline spawns; it is not safe to call
// Blocks and ParBlocks concurrently against the same underlying io.Reader.
type Reader struct {
	r    io.Reader
	opts readerOptions

	// started is the write-once start-latch: flipped the first time
	// Blocks or ParBlocks begins reading, after which
	// SetElementFilter/SetTagFilter fail with ErrFilterAfterStart.
	started atomic.Bool
}

// NewReader constructs a Reader over r with the given options applied on
// top of the defaults (see DefaultProtoBufferSize, DefaultWorkers, etc).
func NewReader(r io.Reader, opts ...ReaderOption) *Reader {
	o := defaultReaderOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Reader{r: r, opts: o}
}

// SetElementFilter replaces the reader's element-kind filter. It fails
// with ErrFilterAfterStart if Blocks or ParBlocks has already begun
// reading.
func (rd *Reader) SetElementFilter(f ElementFilter) error {
	if rd.started.Load() {
		return ErrFilterAfterStart
	}

	rd.opts.elementFilter = f

	return nil
}

// SetTagFilter replaces the reader's tag-key filter. It fails with
// ErrFilterAfterStart if Blocks or ParBlocks has already begun reading.
// Passing no keys clears the filter, reverting tag columns to raw
// string-table indices.
func (rd *Reader) SetTagFilter(keys ...[]byte) error {
	if rd.started.Load() {
		return ErrFilterAfterStart
	}

	rd.opts.tagFilter = keys

	return nil
}

// LoadHeader reads and decodes the first blob of r, which must be an
// OSMHeader, without constructing a Reader or beginning element
// iteration. It fails with ErrUnsupportedFeature if the header declares a
// required feature this package does not implement.
func LoadHeader(r io.Reader, opts ...ReaderOption) (model.Header, error) {
	o := defaultReaderOptions()
	for _, opt := range opts {
		opt(&o)
	}

	buf := core.NewPooledBuffer()
	defer buf.Close()

	rec, err := readBlobRecord(r, buf, o)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return model.Header{}, fmt.Errorf("%w: no OSMHeader blob: %w", ErrIO, err)
		}

		return model.Header{}, err
	}

	if rec.typeTag != "OSMHeader" {
		return model.Header{}, fmt.Errorf("%w: expected OSMHeader blob, got %q", ErrIO, rec.typeTag)
	}

	infBuf := core.NewPooledBuffer()
	defer infBuf.Close()

	data, err := inflateBlob(infBuf, rec)
	if err != nil {
		return model.Header{}, err
	}

	return parseHeaderBlock(data)
}

// inflatedBlob is a blob record after inflation: a type tag and an owned
// (not pooled) byte slice ready for the wire parser.
type inflatedBlob struct {
	typeTag string
	data    []byte
}

// Blocks is the single-stage pipeline: a producer performs framing and
// inflate ahead of a worker pool that performs element decode, and
// blocks are emitted in file order.
func (rd *Reader) Blocks(ctx context.Context) func(yield func(*model.DecodedBlock, error) bool) {
	return func(yield func(*model.DecodedBlock, error) bool) {
		rd.started.Store(true)

		opts := rd.opts

		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		in := rd.frameAndInflate(cctx, opts)
		out := rill.OrderedMap(in, opts.workers, func(b inflatedBlob) (*model.DecodedBlock, error) {
			return decodeInflatedBlob(b, opts)
		})

		defer drainDecoded(out)

		for item := range out {
			if item.Error != nil {
				yield(nil, item.Error)

				return
			}

			if item.Value == nil {
				continue
			}

			if !yield(item.Value, nil) {
				return
			}
		}
	}
}

// ParBlocks is the two-stage pipeline: framing runs sequentially, but
// inflate and element decode both run unordered across a worker pool.
// Clients must treat the emitted order as arbitrary.
func (rd *Reader) ParBlocks(ctx context.Context) func(yield func(*model.DecodedBlock, error) bool) {
	return func(yield func(*model.DecodedBlock, error) bool) {
		rd.started.Store(true)

		opts := rd.opts

		cctx, cancel := context.WithCancel(ctx)
		defer cancel()

		in := rd.frameOnly(cctx, opts)
		out := rill.Map(in, opts.workers, func(rec blobRecord) (*model.DecodedBlock, error) {
			buf := core.NewPooledBuffer()
			defer buf.Close()

			buf.Grow(opts.protoBufferSize)

			data, err := inflateBlob(buf, rec)
			if err != nil {
				return nil, err
			}

			owned := data
			if rec.payload.Codec != inflate.Raw {
				owned = append([]byte(nil), data...)
			}

			return decodeInflatedBlob(inflatedBlob{typeTag: rec.typeTag, data: owned}, opts)
		})

		defer drainDecoded(out)

		for item := range out {
			if item.Error != nil {
				yield(nil, item.Error)

				return
			}

			if item.Value == nil {
				continue
			}

			if !yield(item.Value, nil) {
				return
			}
		}
	}
}

// frameAndInflate is the single-stage producer: it frames and inflates
// blobs sequentially and hands the inflated bytes to the caller, one
// blob at a time, in file order. The channel buffer is the bounded
// in-flight queue between framing and decode; when the consumer is slow
// it fills and framing blocks.
func (rd *Reader) frameAndInflate(ctx context.Context, opts readerOptions) <-chan rill.Try[inflatedBlob] {
	ch := make(chan rill.Try[inflatedBlob], opts.protoBatchSize)

	go func() {
		defer close(ch)

		headerBuf := core.NewPooledBuffer()
		defer headerBuf.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			rec, err := readBlobRecord(rd.r, headerBuf, opts)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}

				slog.Error("blob framing failed", "error", err)
				sendTry(ctx, ch, rill.Try[inflatedBlob]{Error: err})

				return
			}

			infBuf := core.NewPooledBuffer()
			infBuf.Grow(opts.protoBufferSize)

			data, err := inflateBlob(infBuf, rec)
			if err != nil {
				infBuf.Close()
				slog.Error("blob inflate failed", "error", err)
				sendTry(ctx, ch, rill.Try[inflatedBlob]{Error: err})

				return
			}

			owned := data
			if rec.payload.Codec != inflate.Raw {
				owned = append([]byte(nil), data...)
			}

			infBuf.Close()

			if !sendTry(ctx, ch, rill.Try[inflatedBlob]{Value: inflatedBlob{typeTag: rec.typeTag, data: owned}}) {
				return
			}
		}
	}()

	return ch
}

// frameOnly is the two-stage producer: it only frames blobs, leaving
// inflate to the parallel stage. As in frameAndInflate, the channel
// buffer bounds how far framing may run ahead of the workers.
func (rd *Reader) frameOnly(ctx context.Context, opts readerOptions) <-chan rill.Try[blobRecord] {
	ch := make(chan rill.Try[blobRecord], opts.protoBatchSize)

	go func() {
		defer close(ch)

		buf := core.NewPooledBuffer()
		defer buf.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			rec, err := readBlobRecord(rd.r, buf, opts)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return
				}

				slog.Error("blob framing failed", "error", err)
				sendTry(ctx, ch, rill.Try[blobRecord]{Error: err})

				return
			}

			if !sendTry(ctx, ch, rill.Try[blobRecord]{Value: rec}) {
				return
			}
		}
	}()

	return ch
}

func sendTry[T any](ctx context.Context, ch chan<- rill.Try[T], v rill.Try[T]) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// drainDecoded consumes whatever is left on out in the background so that
// upstream pipeline stages aren't blocked on a send after the consumer
// has walked away (a broken range-over-func loop, or a terminal error).
func drainDecoded(out <-chan rill.Try[*model.DecodedBlock]) {
	go func() {
		for range out { //nolint:revive // drains to unblock upstream workers
		}
	}()
}

// decodeInflatedBlob dispatches on the blob's type tag: an OSMHeader is
// validated for required-feature support but does not produce a
// DecodedBlock; an OSMData blob is decoded into one.
func decodeInflatedBlob(b inflatedBlob, opts readerOptions) (*model.DecodedBlock, error) {
	switch b.typeTag {
	case "OSMHeader":
		if _, err := parseHeaderBlock(b.data); err != nil {
			return nil, err
		}

		return nil, nil
	case "OSMData":
		if len(b.data) == 0 {
			return &model.DecodedBlock{}, nil
		}

		return decodePrimitiveBlock(b.data, opts.elementFilter, opts.tagFilter)
	default:
		return nil, fmt.Errorf("%w: unknown blob type %q", ErrIO, b.typeTag)
	}
}
