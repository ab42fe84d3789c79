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

import "runtime"

const (
	// DefaultProtoBufferSize is the default initial capacity of the
	// pooled buffers blobs are inflated into.
	DefaultProtoBufferSize = 1024 * 1024

	// DefaultProtoBatchSize is the default depth of the bounded
	// in-flight queue between the framing producer and the decode
	// workers.
	DefaultProtoBatchSize = 16

	// DefaultMaxHeaderSize bounds a BlobHeader's declared length.
	DefaultMaxHeaderSize = 64 * 1024

	// DefaultMaxCompressedBlob bounds a blob's compressed payload size.
	DefaultMaxCompressedBlob = 64 * 1024 * 1024

	// DefaultMaxRawBlob bounds a blob's declared/inflated raw size.
	DefaultMaxRawBlob = 32 * 1024 * 1024
)

// DefaultWorkers returns the default worker-pool size: hardware
// parallelism, at least one.
func DefaultWorkers() int {
	return max(runtime.GOMAXPROCS(-1), 1)
}

// ElementFilter selects which primitive-group kinds the decoder produces.
// The zero value is not valid; use NewElementFilter or rely on the
// reader's default (all kinds enabled).
type ElementFilter struct {
	Nodes     bool
	Ways      bool
	Relations bool
}

// NewElementFilter returns the default element filter: every kind
// enabled.
func NewElementFilter() ElementFilter {
	return ElementFilter{Nodes: true, Ways: true, Relations: true}
}

// readerOptions holds the reader's write-once configuration.
type readerOptions struct {
	protoBufferSize   int
	protoBatchSize    int
	workers           int
	maxHeaderSize     int
	maxCompressedBlob int
	maxRawBlob        int
	elementFilter     ElementFilter
	tagFilter         [][]byte
}

func defaultReaderOptions() readerOptions {
	return readerOptions{
		protoBufferSize:   DefaultProtoBufferSize,
		protoBatchSize:    DefaultProtoBatchSize,
		workers:           DefaultWorkers(),
		maxHeaderSize:     DefaultMaxHeaderSize,
		maxCompressedBlob: DefaultMaxCompressedBlob,
		maxRawBlob:        DefaultMaxRawBlob,
		elementFilter:     NewElementFilter(),
		tagFilter:         nil,
	}
}

// ReaderOption configures a Reader at construction time.
type ReaderOption func(*readerOptions)

// WithProtoBufferSize sets the initial capacity of the pooled buffers
// blobs are inflated into. Larger files with large blocks benefit from a
// size that avoids regrowing mid-inflate. Negative values are clamped to
// zero.
func WithProtoBufferSize(s int) ReaderOption {
	return func(o *readerOptions) { o.protoBufferSize = max(s, 0) }
}

// WithProtoBatchSize sets the depth of the bounded in-flight queue
// between framing and decode: how many blobs the producer may run ahead
// of the workers before backpressure blocks it. Values less than 1 are
// clamped to 1.
func WithProtoBatchSize(s int) ReaderOption {
	return func(o *readerOptions) { o.protoBatchSize = max(s, 1) }
}

// WithWorkers sets the worker-pool size. Values less than 1 are clamped
// to 1.
func WithWorkers(n int) ReaderOption {
	return func(o *readerOptions) { o.workers = max(n, 1) }
}

// WithMaxCompressedBlob overrides the compressed-blob safety limit.
func WithMaxCompressedBlob(n int) ReaderOption {
	return func(o *readerOptions) { o.maxCompressedBlob = n }
}

// WithMaxRawBlob overrides the raw/inflated-blob safety limit.
func WithMaxRawBlob(n int) ReaderOption {
	return func(o *readerOptions) { o.maxRawBlob = n }
}

// WithElementFilter sets the element-kind filter at construction time.
func WithElementFilter(f ElementFilter) ReaderOption {
	return func(o *readerOptions) { o.elementFilter = f }
}

// WithTagFilter sets the tag-key filter at construction time. Keys are
// matched by value against each block's string table.
func WithTagFilter(keys ...[]byte) ReaderOption {
	return func(o *readerOptions) { o.tagFilter = keys }
}
