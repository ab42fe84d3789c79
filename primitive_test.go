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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuodEstDubitandum/fast-osmpbf/model"
)

// A single dense-node group of three nodes with ids {10, 12, 17}, no
// tags.
func TestDecodePrimitiveBlockDenseNodes(t *testing.T) {
	stringTable := fxStringTable()
	group := fxPrimitiveGroup(2, fxDenseNodes([]int64{10, 12, 17}, []int64{0, 0, 0}, []int64{0, 0, 0}, nil))
	buf := fxPrimitiveBlock(stringTable, [][]byte{group}, 100)

	block, err := decodePrimitiveBlock(buf, NewElementFilter(), nil)
	require.NoError(t, err)
	require.Len(t, block.Groups, 1)

	dn, ok := block.Groups[0].(*model.DenseNodeBlock)
	require.True(t, ok)
	assert.Equal(t, []int64{10, 12, 17}, dn.IDs)
	assert.Equal(t, []int{0, 0, 0, 0}, dn.Tags.Offsets)
}

// One way with refs = [5, 7, 6].
func TestDecodePrimitiveBlockWayRefs(t *testing.T) {
	way := fxWay(1, nil, nil, []int64{5, 7, 6})
	group := fxPrimitiveGroupMulti(3, way)
	buf := fxPrimitiveBlock(fxStringTable(), [][]byte{group}, 100)

	block, err := decodePrimitiveBlock(buf, NewElementFilter(), nil)
	require.NoError(t, err)
	require.Len(t, block.Groups, 1)

	w, ok := block.Groups[0].(*model.WayBlock)
	require.True(t, ok)
	assert.Equal(t, []int64{1}, w.IDs)
	assert.Equal(t, []int64{5, 7, 6}, w.WayRefs(0))
}

// Two dense nodes, one tagged {"addr:city":"X"}, the other
// {"name":"Y","addr:city":"Z"}; tag filter = ["addr:city"]. Both nodes
// are retained and each projected tag row holds exactly the city entry.
func TestDecodePrimitiveBlockTagFilter(t *testing.T) {
	stringTable := fxStringTable("addr:city", "X", "name", "Y", "Z")
	keysVals := []int32{1, 2, 0, 3, 4, 1, 5, 0}
	group := fxPrimitiveGroup(2, fxDenseNodes([]int64{100, 101}, []int64{0, 0}, []int64{0, 0}, keysVals))
	buf := fxPrimitiveBlock(stringTable, [][]byte{group}, 100)

	block, err := decodePrimitiveBlock(buf, NewElementFilter(), [][]byte{[]byte("addr:city")})
	require.NoError(t, err)
	require.Len(t, block.Groups, 1)

	dn, ok := block.Groups[0].(*model.DenseNodeBlock)
	require.True(t, ok)
	require.Equal(t, 2, dn.Len())

	k0, v0 := dn.Tags.Row(0)
	assert.Equal(t, []uint32{0}, k0)
	assert.Equal(t, "X", string(dn.Strings.At(v0[0])))

	k1, v1 := dn.Tags.Row(1)
	assert.Equal(t, []uint32{0}, k1)
	assert.Equal(t, "Z", string(dn.Strings.At(v1[0])))

	assert.True(t, dn.Tags.HasAllFilterKeys(0, 1))
	assert.True(t, dn.Tags.HasAllFilterKeys(1, 1))
}

// A tag filter containing every key present in the string table retains
// the same element counts as no filter at all.
func TestDecodePrimitiveBlockTagFilterAllKeys(t *testing.T) {
	stringTable := fxStringTable("name", "X", "addr:city", "Y")
	keysVals := []int32{1, 2, 0, 3, 4, 0}
	group := fxPrimitiveGroup(2, fxDenseNodes([]int64{1, 2}, []int64{0, 0}, []int64{0, 0}, keysVals))
	buf := fxPrimitiveBlock(stringTable, [][]byte{group}, 100)

	unfiltered, err := decodePrimitiveBlock(buf, NewElementFilter(), nil)
	require.NoError(t, err)

	filtered, err := decodePrimitiveBlock(buf, NewElementFilter(), [][]byte{
		[]byte("name"), []byte("X"), []byte("addr:city"), []byte("Y"),
	})
	require.NoError(t, err)

	du := unfiltered.Groups[0].(*model.DenseNodeBlock)
	df := filtered.Groups[0].(*model.DenseNodeBlock)

	assert.Equal(t, du.Len(), df.Len())
	assert.Equal(t, du.Tags.Offsets, df.Tags.Offsets)
}

// A blob whose key column is longer than its value column must surface
// MalformedElement instead of panicking, for every loose element kind.
func TestDecodePrimitiveBlockTagColumnMismatch(t *testing.T) {
	stringTable := fxStringTable("k", "v")

	tests := []struct {
		name  string
		group []byte
	}{
		{"node", fxPrimitiveGroupMulti(1, fxNode(1, 0, 0, []uint32{1, 1}, []uint32{2}))},
		{"way", fxPrimitiveGroupMulti(3, fxWay(1, []uint32{1, 1}, []uint32{2}, []int64{5}))},
		{"relation", fxPrimitiveGroupMulti(4, fxRelation(1, []uint32{1, 1}, []uint32{2}, nil, nil, nil))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := fxPrimitiveBlock(stringTable, [][]byte{tc.group}, 100)

			_, err := decodePrimitiveBlock(buf, NewElementFilter(), nil)
			assert.True(t, errors.Is(err, ErrMalformedElement))
		})
	}
}

func TestDecodePrimitiveBlockDenseNodesNotMonotonic(t *testing.T) {
	// raw deltas [10, 2] decode to ids [10, 12]; force a non-increasing
	// sequence by encoding a zero delta for the second node.
	group := fxPrimitiveGroup(2, fxDenseNodes([]int64{10, 10}, []int64{0, 0}, []int64{0, 0}, nil))
	buf := fxPrimitiveBlock(fxStringTable(), [][]byte{group}, 100)

	_, err := decodePrimitiveBlock(buf, NewElementFilter(), nil)
	assert.True(t, errors.Is(err, ErrMalformedElement))
}

func TestDecodePrimitiveBlockRelationUnknownMemberType(t *testing.T) {
	rel := fxRelation(1, nil, nil, []int64{5}, []int32{3}, []int32{0})
	group := fxPrimitiveGroupMulti(4, rel)
	buf := fxPrimitiveBlock(fxStringTable(), [][]byte{group}, 100)

	_, err := decodePrimitiveBlock(buf, NewElementFilter(), nil)
	assert.True(t, errors.Is(err, ErrMalformedElement))
}

func TestDecodePrimitiveBlockRelationMembers(t *testing.T) {
	stringTable := fxStringTable("outer")
	rel := fxRelation(1, nil, nil, []int64{5, 7}, []int32{1, 0}, []int32{1, 1})
	group := fxPrimitiveGroupMulti(4, rel)
	buf := fxPrimitiveBlock(stringTable, [][]byte{group}, 100)

	block, err := decodePrimitiveBlock(buf, NewElementFilter(), nil)
	require.NoError(t, err)

	rb, ok := block.Groups[0].(*model.RelationBlock)
	require.True(t, ok)

	ids, types, roleSids := rb.Members(0)
	assert.Equal(t, []int64{5, 7}, ids)
	assert.Equal(t, []model.MemberType{model.MemberWay, model.MemberNode}, types)
	assert.Equal(t, []int32{1, 1}, roleSids)
}

func TestDecodePrimitiveBlockElementFilterSkipsKind(t *testing.T) {
	way := fxWay(1, nil, nil, []int64{1, 2})
	group := fxPrimitiveGroupMulti(3, way)
	buf := fxPrimitiveBlock(fxStringTable(), [][]byte{group}, 100)

	filter := NewElementFilter()
	filter.Ways = false

	block, err := decodePrimitiveBlock(buf, filter, nil)
	require.NoError(t, err)
	assert.Empty(t, block.Groups)
}

func TestDecodePrimitiveBlockLooseNode(t *testing.T) {
	stringTable := fxStringTable("k", "v")
	node := fxNode(42, 1, 2, []uint32{1}, []uint32{2})
	group := fxPrimitiveGroupMulti(1, node)
	buf := fxPrimitiveBlock(stringTable, [][]byte{group}, 100)

	block, err := decodePrimitiveBlock(buf, NewElementFilter(), nil)
	require.NoError(t, err)

	nb, ok := block.Groups[0].(*model.NodeBlock)
	require.True(t, ok)
	assert.Equal(t, []int64{42}, nb.IDs)
	assert.Equal(t, int64(100), nb.Lats[0])
	assert.Equal(t, int64(200), nb.Lons[0])

	keys, vals := nb.Tags.Row(0)
	assert.Equal(t, []uint32{1}, keys)
	assert.Equal(t, []uint32{2}, vals)
}
