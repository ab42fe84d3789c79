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

package model

import "time"

// NoFilterSlot marks a string-table entry that matches no declared filter
// key in a block's filter-key index. Tags whose key maps to it are dropped
// from the tag columns, so it never appears in TagColumns.Keys.
const NoFilterSlot uint32 = ^uint32(0)

// StringTable is a block's string dictionary: borrowed byte-slice views
// into the block's decompressed buffer, indexed from 0. Index 0 is the
// format's reserved empty entry.
type StringTable [][]byte

// At returns the string-table entry at index i. It panics on an
// out-of-range index, matching slice semantics; callers that decoded i
// from the wire should have already validated it against Len.
func (t StringTable) At(i uint32) []byte {
	return t[i]
}

// Len returns the number of entries in the table.
func (t StringTable) Len() int {
	return len(t)
}

// TagColumns is the compact per-block tag projection shared by every
// element kind: a flat key column, a flat value column, and a row-offset
// column of length n+1 delimiting each element's tag run. When a tag
// filter is active, Keys holds filter slots and only tags whose key
// matches a filter key are kept; otherwise Keys holds raw StringTable
// indices. Vals always holds raw StringTable indices.
type TagColumns struct {
	Keys    []uint32
	Vals    []uint32
	Offsets []int
}

// Row returns the key/value slices for element i.
func (t TagColumns) Row(i int) (keys, vals []uint32) {
	lo, hi := t.Offsets[i], t.Offsets[i+1]

	return t.Keys[lo:hi], t.Vals[lo:hi]
}

// HasAllFilterKeys reports whether element i's tag row contains every slot
// in [0, filterLen), in any order. A zero-length filter is vacuously
// satisfied by every element.
func (t TagColumns) HasAllFilterKeys(i, filterLen int) bool {
	if filterLen == 0 {
		return true
	}

	keys, _ := t.Row(i)

	seen := make([]bool, filterLen)
	remaining := filterLen

	for _, k := range keys {
		if int(k) < filterLen && !seen[k] {
			seen[k] = true

			remaining--
			if remaining == 0 {
				return true
			}
		}
	}

	return remaining == 0
}

// InfoColumns is the columnar form of the per-element Info message, used
// uniformly whether the source was a dense, delta-accumulated DenseInfo or
// a one-off Info attached to a loose node/way/relation.
type InfoColumns struct {
	Versions   []int32
	UIDs       []UID
	Timestamps []time.Time
	Changesets []int64
	UserSids   []int32
	Visible    []bool
}

// ElementBlock is the tagged-variant output of the element decoder: one
// value per primitive group, dispatched on Kind.
type ElementBlock interface {
	Kind() Kind
	Len() int
}

// DenseNodeBlock is the decoded form of a DenseNodes primitive group.
type DenseNodeBlock struct {
	Strings StringTable
	IDs     []int64
	Lats    []int64 // absolute nanodegrees
	Lons    []int64 // absolute nanodegrees
	Tags    TagColumns
	Info    InfoColumns
}

func (b *DenseNodeBlock) Kind() Kind { return DenseNodeKind }
func (b *DenseNodeBlock) Len() int   { return len(b.IDs) }

// NodeBlock is the decoded form of a loose (non-dense) Node primitive
// group.
type NodeBlock struct {
	Strings StringTable
	IDs     []int64
	Lats    []int64
	Lons    []int64
	Tags    TagColumns
	Info    InfoColumns
}

func (b *NodeBlock) Kind() Kind { return NodeKind }
func (b *NodeBlock) Len() int   { return len(b.IDs) }

// WayBlock is the decoded form of a Way primitive group.
type WayBlock struct {
	Strings    StringTable
	IDs        []int64
	Refs       []int64 // flattened node-reference column, delta-decoded per way
	RefOffsets []int   // length n+1
	Tags       TagColumns
	Info       InfoColumns
}

func (b *WayBlock) Kind() Kind { return WayKind }
func (b *WayBlock) Len() int   { return len(b.IDs) }

// WayRefs returns the node-reference column for way i.
func (b *WayBlock) WayRefs(i int) []int64 {
	return b.Refs[b.RefOffsets[i]:b.RefOffsets[i+1]]
}

// RelationBlock is the decoded form of a Relation primitive group.
type RelationBlock struct {
	Strings        StringTable
	IDs            []int64
	MemberIDs      []int64 // flattened, delta-decoded per relation
	MemberTypes    []MemberType
	MemberRoleSids []int32
	MemberOffsets  []int // length n+1
	Tags           TagColumns
	Info           InfoColumns
}

func (b *RelationBlock) Kind() Kind { return RelationKind }
func (b *RelationBlock) Len() int   { return len(b.IDs) }

// Members returns the member columns for relation i.
func (b *RelationBlock) Members(i int) (ids []int64, types []MemberType, roleSids []int32) {
	lo, hi := b.MemberOffsets[i], b.MemberOffsets[i+1]

	return b.MemberIDs[lo:hi], b.MemberTypes[lo:hi], b.MemberRoleSids[lo:hi]
}

// DecodedBlock is everything produced by inflating and decoding a single
// OSMData blob: zero or more element blocks, one per primitive group that
// survived the element-kind filter.
type DecodedBlock struct {
	Groups []ElementBlock
}
