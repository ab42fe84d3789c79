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

// Package pbf is a high-throughput decoder for OpenStreetMap binary (PBF)
// files.
package pbf

import (
	"errors"

	"github.com/QuodEstDubitandum/fast-osmpbf/internal/wire"
)

// Sentinel errors. Errors this package returns wrap these, so errors.Is
// matches them however deep the wrapping — there is no separate
// error-kind enum to switch on. A framing error wraps ErrIO together with
// its underlying cause and can match a wire-level sentinel as well. A
// length-delimited field that runs past the end of an inflated block
// surfaces as the unwrapped wire.ErrShortBuffer, which has no counterpart
// here.
var (
	// ErrIO covers read failures and unexpected end of file.
	ErrIO = errors.New("pbf: io error")

	// ErrTruncatedVarint and ErrOverlongVarint are re-exported from the
	// wire package so callers never need to import it directly.
	ErrTruncatedVarint = wire.ErrTruncatedVarint
	ErrOverlongVarint  = wire.ErrOverlongVarint
	ErrUnknownWireType = wire.ErrUnknownWireType

	// ErrOversizedHeader is returned when a blob header's declared
	// length exceeds the configured safety limit.
	ErrOversizedHeader = errors.New("pbf: oversized blob header")

	// ErrOversizedBlob is returned when a blob's compressed or declared
	// raw size exceeds the configured safety limit.
	ErrOversizedBlob = errors.New("pbf: oversized blob")

	// ErrSizeMismatch is returned when an inflated payload's length
	// disagrees with the blob's declared raw size.
	ErrSizeMismatch = errors.New("pbf: inflated size mismatch")

	// ErrInflate is returned for compressed-payload corruption or an
	// unrecognized compression codec.
	ErrInflate = errors.New("pbf: inflate error")

	// ErrUnsupportedFeature is returned when an OSMHeader block declares
	// a required_features entry this decoder does not implement.
	ErrUnsupportedFeature = errors.New("pbf: unsupported required feature")

	// ErrMalformedElement covers out-of-range indices, non-monotonic
	// dense ids, unknown member types, and missing row-offset
	// terminators.
	ErrMalformedElement = errors.New("pbf: malformed element")

	// ErrFilterAfterStart is returned when a filter is configured after
	// iteration has observably begun.
	ErrFilterAfterStart = errors.New("pbf: filter configured after iteration started")
)
