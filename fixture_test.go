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
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// The following helpers hand-build wire-format fixtures in place of real
// .osm.pbf sample files: a minimal encoder for the embedded schema,
// mirroring the field numbers the decoder reads.

func fxVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}

	return append(buf, byte(v))
}

func fxZigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func fxTag(buf []byte, field int, wt int) []byte {
	return fxVarint(buf, uint64(field)<<3|uint64(wt))
}

const (
	fxWireVarint = 0
	fxWireBytes  = 2
)

func fxBytesField(buf []byte, field int, data []byte) []byte {
	buf = fxTag(buf, field, fxWireBytes)
	buf = fxVarint(buf, uint64(len(data)))

	return append(buf, data...)
}

func fxVarintField(buf []byte, field int, v uint64) []byte {
	buf = fxTag(buf, field, fxWireVarint)

	return fxVarint(buf, v)
}

func fxSVarintField(buf []byte, field int, v int64) []byte {
	return fxVarintField(buf, field, fxZigzag(v))
}

func fxPackedVarints(values ...uint64) []byte {
	var buf []byte
	for _, v := range values {
		buf = fxVarint(buf, v)
	}

	return buf
}

func fxPackedSVarints(values ...int64) []byte {
	var buf []byte
	for _, v := range values {
		buf = fxVarint(buf, fxZigzag(v))
	}

	return buf
}

func fxPackedInt32s(values ...int32) []byte {
	var buf []byte
	for _, v := range values {
		buf = fxVarint(buf, uint64(uint32(v)))
	}

	return buf
}

func fxPackedUint32s(values ...uint32) []byte {
	var buf []byte
	for _, v := range values {
		buf = fxVarint(buf, uint64(v))
	}

	return buf
}

func fxPackedBools(values ...bool) []byte {
	var buf []byte

	for _, v := range values {
		u := uint64(0)
		if v {
			u = 1
		}

		buf = fxVarint(buf, u)
	}

	return buf
}

// fxStringTable builds a StringTable message (field 1 repeated bytes)
// whose index 0 is the reserved empty entry and whose entries follow at
// indices 1..len(entries).
func fxStringTable(entries ...string) []byte {
	var buf []byte

	buf = fxBytesField(buf, 1, nil) // index 0, reserved empty entry

	for _, e := range entries {
		buf = fxBytesField(buf, 1, []byte(e))
	}

	return buf
}

// fxDenseNodes builds a DenseNodes message: ids/lats/lons delta-coded,
// an optional keysVals stream (already delta-free; raw index values).
func fxDenseNodes(ids, lats, lons []int64, keysVals []int32) []byte {
	var buf []byte

	buf = fxBytesField(buf, 1, fxPackedSVarints(deltas(ids)...))
	buf = fxBytesField(buf, 8, fxPackedSVarints(deltas(lats)...))
	buf = fxBytesField(buf, 9, fxPackedSVarints(deltas(lons)...))

	if keysVals != nil {
		buf = fxBytesField(buf, 10, fxPackedInt32s(keysVals...))
	}

	return buf
}

func deltas(vs []int64) []int64 {
	out := make([]int64, len(vs))

	var prev int64
	for i, v := range vs {
		out[i] = v - prev
		prev = v
	}

	return out
}

// fxNode builds a loose (non-dense) Node message.
func fxNode(id int64, lat, lon int64, keys, vals []uint32) []byte {
	var buf []byte

	buf = fxSVarintField(buf, 1, id)

	if keys != nil {
		buf = fxBytesField(buf, 2, fxPackedUint32s(keys...))
		buf = fxBytesField(buf, 3, fxPackedUint32s(vals...))
	}

	buf = fxSVarintField(buf, 8, lat)
	buf = fxSVarintField(buf, 9, lon)

	return buf
}

// fxWay builds a Way message: id, optional tag columns, and a
// delta-coded node-reference column.
func fxWay(id int64, keys, vals []uint32, refs []int64) []byte {
	var buf []byte

	buf = fxVarintField(buf, 1, uint64(id))

	if keys != nil {
		buf = fxBytesField(buf, 2, fxPackedUint32s(keys...))
		buf = fxBytesField(buf, 3, fxPackedUint32s(vals...))
	}

	buf = fxBytesField(buf, 8, fxPackedSVarints(deltas(refs)...))

	return buf
}

// fxRelation builds a Relation message: id, optional tag columns, and
// parallel member-id/type/role columns.
func fxRelation(id int64, keys, vals []uint32, memIDs []int64, types, roleSids []int32) []byte {
	var buf []byte

	buf = fxVarintField(buf, 1, uint64(id))

	if keys != nil {
		buf = fxBytesField(buf, 2, fxPackedUint32s(keys...))
		buf = fxBytesField(buf, 3, fxPackedUint32s(vals...))
	}

	buf = fxBytesField(buf, 8, fxPackedInt32s(roleSids...))
	buf = fxBytesField(buf, 9, fxPackedSVarints(deltas(memIDs)...))
	buf = fxBytesField(buf, 10, fxPackedInt32s(types...))

	return buf
}

// fxPrimitiveGroup wraps a submessage under the matching field number:
// 1=nodes (repeated), 2=dense, 3=ways (repeated), 4=relations (repeated).
func fxPrimitiveGroup(field int, msg []byte) []byte {
	return fxBytesField(nil, field, msg)
}

// fxPrimitiveGroupMulti wraps several submessages under the same
// repeated field number (nodes/ways/relations).
func fxPrimitiveGroupMulti(field int, msgs ...[]byte) []byte {
	var buf []byte
	for _, m := range msgs {
		buf = fxBytesField(buf, field, m)
	}

	return buf
}

// fxPrimitiveBlock assembles a full PrimitiveBlock message.
func fxPrimitiveBlock(stringTable []byte, groups [][]byte, granularity int32) []byte {
	var buf []byte

	buf = fxBytesField(buf, 1, stringTable)
	for _, g := range groups {
		buf = fxBytesField(buf, 2, g)
	}

	if granularity != 0 && granularity != 100 {
		buf = fxVarintField(buf, 17, uint64(granularity))
	}

	return buf
}

// fxBlobHeader builds a BlobHeader message: type (1), datasize (3).
func fxBlobHeader(typeTag string, dataSize int) []byte {
	var buf []byte

	buf = fxBytesField(buf, 1, []byte(typeTag))
	buf = fxVarintField(buf, 3, uint64(dataSize))

	return buf
}

// fxBlobRaw builds a Blob message carrying raw bytes (field 1) plus
// raw_size (field 2).
func fxBlobRaw(raw []byte) []byte {
	var buf []byte

	buf = fxBytesField(buf, 1, raw)
	buf = fxVarintField(buf, 2, uint64(len(raw)))

	return buf
}

// fxBlobZlib builds a Blob message carrying zlib_data (field 3) plus
// raw_size (field 2).
func fxBlobZlib(t *testing.T, raw []byte) []byte {
	t.Helper()

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	var buf []byte

	buf = fxBytesField(buf, 3, compressed.Bytes())
	buf = fxVarintField(buf, 2, uint64(len(raw)))

	return buf
}

// fxBlobZlibCorrupt builds a Blob message whose zlib_data stream is
// truncated mid-way, simulating a corrupted compressed payload.
func fxBlobZlibCorrupt(t *testing.T, raw []byte) []byte {
	t.Helper()

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write(raw)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	truncated := compressed.Bytes()[:compressed.Len()/2]

	var buf []byte

	buf = fxBytesField(buf, 3, truncated)
	buf = fxVarintField(buf, 2, uint64(len(raw)))

	return buf
}

// fxRecord frames one blob record: 4-byte big-endian header length, the
// header message, then the blob message.
func fxRecord(typeTag string, blob []byte) []byte {
	header := fxBlobHeader(typeTag, len(blob))

	var out []byte

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(header)))
	out = append(out, lenBuf[:]...)
	out = append(out, header...)
	out = append(out, blob...)

	return out
}

// fxFile concatenates a sequence of pre-built records into a byte slice
// suitable for feeding to NewReader or LoadHeader.
func fxFile(records ...[]byte) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, r...)
	}

	return out
}
