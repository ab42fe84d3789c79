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
	"fmt"
	"time"

	"golang.org/x/exp/constraints"

	"github.com/QuodEstDubitandum/fast-osmpbf/internal/wire"
	"github.com/QuodEstDubitandum/fast-osmpbf/model"
)

// blockDecodeCtx carries everything the element decoder needs that is
// scoped to a single primitive block: the string table, the (optional)
// filter-key projection built over it, and the coordinate/time
// conversion parameters.
type blockDecodeCtx struct {
	strings      model.StringTable
	filterIdx    []uint32 // nil when no tag filter is active
	tagFilterLen int

	granularity     int32
	dateGranularity int32
	latOffset       int64
	lonOffset       int64
}

// decodePrimitiveBlock turns one inflated OSMData payload into a
// model.DecodedBlock, applying the element-kind filter before any
// per-element work and the tag filter while building tag columns.
func decodePrimitiveBlock(buf []byte, elemFilter ElementFilter, tagFilter [][]byte) (*model.DecodedBlock, error) {
	r := wire.NewReader(buf)

	var (
		stringTableBytes []byte
		groupBytes       [][]byte
		granularity      int32 = 100
		dateGranularity  int32 = 1000
		latOffset        int64
		lonOffset        int64
	)

	for !r.Done() {
		field, wt, err := r.Tag()
		if err != nil {
			return nil, err
		}

		switch field {
		case 1:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			stringTableBytes = b
		case 2:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			groupBytes = append(groupBytes, b)
		case 17:
			v, err := r.Varint()
			if err != nil {
				return nil, err
			}

			granularity = int32(v)
		case 18:
			v, err := r.Varint()
			if err != nil {
				return nil, err
			}

			dateGranularity = int32(v)
		case 19:
			v, err := r.SVarint()
			if err != nil {
				return nil, err
			}

			latOffset = v
		case 20:
			v, err := r.SVarint()
			if err != nil {
				return nil, err
			}

			lonOffset = v
		default:
			if err := r.Skip(wt); err != nil {
				return nil, err
			}
		}
	}

	table, err := parseStringTable(stringTableBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: string table: %w", ErrMalformedElement, err)
	}

	ctx := &blockDecodeCtx{
		strings:         table,
		filterIdx:       filterIndex(table, tagFilter),
		tagFilterLen:    len(tagFilter),
		granularity:     granularity,
		dateGranularity: dateGranularity,
		latOffset:       latOffset,
		lonOffset:       lonOffset,
	}

	var groups []model.ElementBlock

	for _, gb := range groupBytes {
		g, err := ctx.decodeGroup(gb, elemFilter)
		if err != nil {
			return nil, err
		}

		if g != nil {
			groups = append(groups, g)
		}
	}

	return &model.DecodedBlock{Groups: groups}, nil
}

// decodeGroup decodes a PrimitiveGroup message. Exactly one of
// nodes/dense/ways/relations is expected to carry data; the element-kind
// filter is consulted before any per-element work, but the group's bytes
// are read regardless so the message cursor advances correctly.
func (c *blockDecodeCtx) decodeGroup(buf []byte, filter ElementFilter) (model.ElementBlock, error) {
	r := wire.NewReader(buf)

	var (
		nodeBytes [][]byte
		denseBy   []byte
		wayBytes  [][]byte
		relBytes  [][]byte
	)

	for !r.Done() {
		field, wt, err := r.Tag()
		if err != nil {
			return nil, err
		}

		switch field {
		case 1:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			nodeBytes = append(nodeBytes, b)
		case 2:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			denseBy = b
		case 3:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			wayBytes = append(wayBytes, b)
		case 4:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			relBytes = append(relBytes, b)
		default:
			if err := r.Skip(wt); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case len(nodeBytes) > 0:
		if !filter.Nodes {
			return nil, nil
		}

		return c.decodeNodes(nodeBytes)
	case denseBy != nil:
		if !filter.Nodes {
			return nil, nil
		}

		return c.decodeDenseNodes(denseBy)
	case len(wayBytes) > 0:
		if !filter.Ways {
			return nil, nil
		}

		return c.decodeWays(wayBytes)
	case len(relBytes) > 0:
		if !filter.Relations {
			return nil, nil
		}

		return c.decodeRelations(relBytes)
	default:
		return nil, nil
	}
}

// appendTagRow appends the filtered-or-raw tag projection for one element
// to tc and closes out its row-offset entry.
func (c *blockDecodeCtx) appendTagRow(tc *model.TagColumns, keyIDs, valIDs []uint32) error {
	if len(keyIDs) != len(valIDs) {
		return fmt.Errorf("%w: tag key/value column length mismatch", ErrMalformedElement)
	}

	for i, k := range keyIDs {
		v := valIDs[i]

		if int(k) >= len(c.strings) || int(v) >= len(c.strings) {
			return fmt.Errorf("%w: tag index out of range", ErrMalformedElement)
		}

		if c.filterIdx == nil {
			tc.Keys = append(tc.Keys, k)
			tc.Vals = append(tc.Vals, v)

			continue
		}

		slot := c.filterIdx[k]
		if slot == model.NoFilterSlot {
			continue
		}

		tc.Keys = append(tc.Keys, slot)
		tc.Vals = append(tc.Vals, v)
	}

	tc.Offsets = append(tc.Offsets, len(tc.Keys))

	return nil
}

func (c *blockDecodeCtx) toTime(v int64) time.Time {
	return time.UnixMilli(v * int64(c.dateGranularity)).UTC()
}

type wireInfo struct {
	present   bool
	version   int32
	timestamp int64
	changeset int64
	uid       int32
	userSid   int32
	visible   bool
}

// parseInfo decodes an Info message. An entirely absent Info is visible
// by default, matching the format's convention that elements without
// explicit metadata are current.
func parseInfo(buf []byte) (wireInfo, error) {
	info := wireInfo{visible: true}

	if buf == nil {
		return info, nil
	}

	info.present = true

	r := wire.NewReader(buf)

	for !r.Done() {
		field, wt, err := r.Tag()
		if err != nil {
			return wireInfo{}, err
		}

		switch field {
		case 1:
			v, err := r.Varint()
			if err != nil {
				return wireInfo{}, err
			}

			info.version = int32(v)
		case 2:
			v, err := r.Varint()
			if err != nil {
				return wireInfo{}, err
			}

			info.timestamp = int64(v)
		case 3:
			v, err := r.Varint()
			if err != nil {
				return wireInfo{}, err
			}

			info.changeset = int64(v)
		case 4:
			v, err := r.Varint()
			if err != nil {
				return wireInfo{}, err
			}

			info.uid = int32(v)
		case 5:
			v, err := r.Varint()
			if err != nil {
				return wireInfo{}, err
			}

			info.userSid = int32(v)
		case 6:
			v, err := r.Varint()
			if err != nil {
				return wireInfo{}, err
			}

			info.visible = v != 0
		default:
			if err := r.Skip(wt); err != nil {
				return wireInfo{}, err
			}
		}
	}

	return info, nil
}

func (c *blockDecodeCtx) appendInfoRow(ic *model.InfoColumns, wi wireInfo) {
	ic.Versions = append(ic.Versions, wi.version)
	ic.UIDs = append(ic.UIDs, model.UID(wi.uid))
	ic.Timestamps = append(ic.Timestamps, c.toTime(wi.timestamp))
	ic.Changesets = append(ic.Changesets, wi.changeset)
	ic.UserSids = append(ic.UserSids, wi.userSid)
	ic.Visible = append(ic.Visible, wi.visible)
}

func (c *blockDecodeCtx) coord(offset int64, raw int64) int64 {
	return offset + int64(c.granularity)*raw
}

// decodeNodes decodes a loose (non-dense) Node primitive group.
func (c *blockDecodeCtx) decodeNodes(raw [][]byte) (*model.NodeBlock, error) {
	block := &model.NodeBlock{Strings: c.strings, Tags: model.TagColumns{Offsets: []int{0}}}

	for _, buf := range raw {
		r := wire.NewReader(buf)

		var (
			id          int64
			keys, vals  []uint32
			infoBytes   []byte
			lat, lon    int64
			sawID       bool
		)

		for !r.Done() {
			field, wt, err := r.Tag()
			if err != nil {
				return nil, err
			}

			switch field {
			case 1:
				v, err := r.SVarint()
				if err != nil {
					return nil, err
				}

				id, sawID = v, true
			case 2:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				keys, err = wire.PackedUint32s(b)
				if err != nil {
					return nil, err
				}
			case 3:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				vals, err = wire.PackedUint32s(b)
				if err != nil {
					return nil, err
				}
			case 4:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				infoBytes = b
			case 8:
				v, err := r.SVarint()
				if err != nil {
					return nil, err
				}

				lat = v
			case 9:
				v, err := r.SVarint()
				if err != nil {
					return nil, err
				}

				lon = v
			default:
				if err := r.Skip(wt); err != nil {
					return nil, err
				}
			}
		}

		if !sawID {
			return nil, fmt.Errorf("%w: node missing id", ErrMalformedElement)
		}

		wi, err := parseInfo(infoBytes)
		if err != nil {
			return nil, err
		}

		block.IDs = append(block.IDs, id)
		block.Lats = append(block.Lats, c.coord(c.latOffset, lat))
		block.Lons = append(block.Lons, c.coord(c.lonOffset, lon))
		c.appendInfoRow(&block.Info, wi)

		if err := c.appendTagRow(&block.Tags, keys, vals); err != nil {
			return nil, err
		}
	}

	return block, nil
}

// decodeDenseNodes decodes a DenseNodes primitive group: a single
// running-accumulator pass over id/lat/lon plus the keys_vals
// re-segmentation into per-node tag rows.
func (c *blockDecodeCtx) decodeDenseNodes(buf []byte) (*model.DenseNodeBlock, error) {
	r := wire.NewReader(buf)

	var (
		ids       []int64
		lats      []int64
		lons      []int64
		keysVals  []int32
		infoBytes []byte
	)

	for !r.Done() {
		field, wt, err := r.Tag()
		if err != nil {
			return nil, err
		}

		switch field {
		case 1:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			ids, err = wire.PackedSVarints(b)
			if err != nil {
				return nil, err
			}
		case 5:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			infoBytes = b
		case 8:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			lats, err = wire.PackedSVarints(b)
			if err != nil {
				return nil, err
			}
		case 9:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			lons, err = wire.PackedSVarints(b)
			if err != nil {
				return nil, err
			}
		case 10:
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			keysVals, err = wire.PackedInt32s(b)
			if err != nil {
				return nil, err
			}
		default:
			if err := r.Skip(wt); err != nil {
				return nil, err
			}
		}
	}

	if len(lats) != len(ids) || len(lons) != len(ids) {
		return nil, fmt.Errorf("%w: dense node coordinate column length mismatch", ErrMalformedElement)
	}

	di, err := parseDenseInfo(infoBytes, len(ids))
	if err != nil {
		return nil, err
	}

	block := &model.DenseNodeBlock{
		Strings: c.strings,
		Tags:    model.TagColumns{Offsets: []int{0}},
	}

	ids = wire.UndoDeltas(ids)
	lats = wire.UndoDeltas(lats)
	lons = wire.UndoDeltas(lons)

	var (
		version   int32
		timestamp int64
		changeset int64
		uid       int32
		userSid   int32
	)

	kvPos := 0

	for i, id := range ids {
		if i > 0 && id <= ids[i-1] {
			return nil, fmt.Errorf("%w: dense node ids not strictly increasing", ErrMalformedElement)
		}

		block.IDs = append(block.IDs, id)
		block.Lats = append(block.Lats, c.coord(c.latOffset, lats[i]))
		block.Lons = append(block.Lons, c.coord(c.lonOffset, lons[i]))

		if di.present {
			version += colAt(di.version, i)
			timestamp += colAt(di.timestamp, i)
			changeset += colAt(di.changeset, i)
			uid += colAt(di.uid, i)
			userSid += colAt(di.userSid, i)

			visible := true
			if di.visible != nil {
				visible = di.visible[i]
			}

			c.appendInfoRow(&block.Info, wireInfo{
				present:   true,
				version:   version,
				timestamp: timestamp,
				changeset: changeset,
				uid:       uid,
				userSid:   userSid,
				visible:   visible,
			})
		} else {
			c.appendInfoRow(&block.Info, wireInfo{visible: true})
		}

		var keys, vals []uint32

		for keysVals != nil && kvPos < len(keysVals) && keysVals[kvPos] != 0 {
			if kvPos+1 >= len(keysVals) {
				return nil, fmt.Errorf("%w: dense node tag stream missing terminator", ErrMalformedElement)
			}

			keys = append(keys, uint32(keysVals[kvPos]))
			vals = append(vals, uint32(keysVals[kvPos+1]))
			kvPos += 2
		}

		if keysVals != nil {
			if kvPos >= len(keysVals) {
				return nil, fmt.Errorf("%w: dense node tag stream missing terminator", ErrMalformedElement)
			}

			kvPos++ // skip the terminating 0
		}

		if err := c.appendTagRow(&block.Tags, keys, vals); err != nil {
			return nil, err
		}
	}

	return block, nil
}

// colAt reads a delta column that may be entirely absent; an absent
// column contributes zero deltas.
func colAt[T constraints.Integer](col []T, i int) T {
	if col == nil {
		return 0
	}

	return col[i]
}

type wireDenseInfo struct {
	present              bool
	version              []int32
	timestamp, changeset []int64
	uid, userSid         []int32
	visible              []bool
}

// parseDenseInfo decodes a DenseInfo message. Every column is delta-coded
// across the dense-node group and is accumulated by the caller.
func parseDenseInfo(buf []byte, n int) (wireDenseInfo, error) {
	if buf == nil {
		return wireDenseInfo{}, nil
	}

	di := wireDenseInfo{present: true}

	r := wire.NewReader(buf)

	for !r.Done() {
		field, wt, err := r.Tag()
		if err != nil {
			return wireDenseInfo{}, err
		}

		switch field {
		case 1:
			b, err := r.Bytes()
			if err != nil {
				return wireDenseInfo{}, err
			}

			di.version, err = wire.PackedInt32s(b)
			if err != nil {
				return wireDenseInfo{}, err
			}
		case 2:
			b, err := r.Bytes()
			if err != nil {
				return wireDenseInfo{}, err
			}

			di.timestamp, err = wire.PackedSVarints(b)
			if err != nil {
				return wireDenseInfo{}, err
			}
		case 3:
			b, err := r.Bytes()
			if err != nil {
				return wireDenseInfo{}, err
			}

			di.changeset, err = wire.PackedSVarints(b)
			if err != nil {
				return wireDenseInfo{}, err
			}
		case 4:
			b, err := r.Bytes()
			if err != nil {
				return wireDenseInfo{}, err
			}

			di.uid, err = wire.PackedSInt32s(b)
			if err != nil {
				return wireDenseInfo{}, err
			}
		case 5:
			b, err := r.Bytes()
			if err != nil {
				return wireDenseInfo{}, err
			}

			di.userSid, err = wire.PackedSInt32s(b)
			if err != nil {
				return wireDenseInfo{}, err
			}
		case 6:
			b, err := r.Bytes()
			if err != nil {
				return wireDenseInfo{}, err
			}

			di.visible, err = wire.PackedBools(b)
			if err != nil {
				return wireDenseInfo{}, err
			}
		default:
			if err := r.Skip(wt); err != nil {
				return wireDenseInfo{}, err
			}
		}
	}

	// Each column is optional; a present one must cover every node.
	if (di.version != nil && len(di.version) != n) ||
		(di.timestamp != nil && len(di.timestamp) != n) ||
		(di.changeset != nil && len(di.changeset) != n) ||
		(di.uid != nil && len(di.uid) != n) ||
		(di.userSid != nil && len(di.userSid) != n) ||
		(di.visible != nil && len(di.visible) != n) {
		return wireDenseInfo{}, fmt.Errorf("%w: dense info column length mismatch", ErrMalformedElement)
	}

	return di, nil
}

// decodeWays decodes a Way primitive group.
func (c *blockDecodeCtx) decodeWays(raw [][]byte) (*model.WayBlock, error) {
	block := &model.WayBlock{
		Strings:    c.strings,
		Tags:       model.TagColumns{Offsets: []int{0}},
		RefOffsets: []int{0},
	}

	for _, buf := range raw {
		r := wire.NewReader(buf)

		var (
			id         int64
			keys, vals []uint32
			infoBytes  []byte
			refDeltas  []int64
			sawID      bool
		)

		for !r.Done() {
			field, wt, err := r.Tag()
			if err != nil {
				return nil, err
			}

			switch field {
			case 1:
				v, err := r.Varint()
				if err != nil {
					return nil, err
				}

				id, sawID = int64(v), true
			case 2:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				keys, err = wire.PackedUint32s(b)
				if err != nil {
					return nil, err
				}
			case 3:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				vals, err = wire.PackedUint32s(b)
				if err != nil {
					return nil, err
				}
			case 4:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				infoBytes = b
			case 8:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				refDeltas, err = wire.PackedSVarints(b)
				if err != nil {
					return nil, err
				}
			default:
				if err := r.Skip(wt); err != nil {
					return nil, err
				}
			}
		}

		if !sawID {
			return nil, fmt.Errorf("%w: way missing id", ErrMalformedElement)
		}

		wi, err := parseInfo(infoBytes)
		if err != nil {
			return nil, err
		}

		block.IDs = append(block.IDs, id)
		c.appendInfoRow(&block.Info, wi)

		if err := c.appendTagRow(&block.Tags, keys, vals); err != nil {
			return nil, err
		}

		block.Refs = append(block.Refs, wire.UndoDeltas(refDeltas)...)
		block.RefOffsets = append(block.RefOffsets, len(block.Refs))
	}

	return block, nil
}

// decodeRelations decodes a Relation primitive group.
func (c *blockDecodeCtx) decodeRelations(raw [][]byte) (*model.RelationBlock, error) {
	block := &model.RelationBlock{
		Strings:       c.strings,
		Tags:          model.TagColumns{Offsets: []int{0}},
		MemberOffsets: []int{0},
	}

	for _, buf := range raw {
		r := wire.NewReader(buf)

		var (
			id              int64
			keys, vals      []uint32
			infoBytes       []byte
			roleSids, types []int32
			memDeltas       []int64
			sawID           bool
		)

		for !r.Done() {
			field, wt, err := r.Tag()
			if err != nil {
				return nil, err
			}

			switch field {
			case 1:
				v, err := r.Varint()
				if err != nil {
					return nil, err
				}

				id, sawID = int64(v), true
			case 2:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				keys, err = wire.PackedUint32s(b)
				if err != nil {
					return nil, err
				}
			case 3:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				vals, err = wire.PackedUint32s(b)
				if err != nil {
					return nil, err
				}
			case 4:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				infoBytes = b
			case 8:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				roleSids, err = wire.PackedInt32s(b)
				if err != nil {
					return nil, err
				}
			case 9:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				memDeltas, err = wire.PackedSVarints(b)
				if err != nil {
					return nil, err
				}
			case 10:
				b, err := r.Bytes()
				if err != nil {
					return nil, err
				}

				types, err = wire.PackedInt32s(b)
				if err != nil {
					return nil, err
				}
			default:
				if err := r.Skip(wt); err != nil {
					return nil, err
				}
			}
		}

		if !sawID {
			return nil, fmt.Errorf("%w: relation missing id", ErrMalformedElement)
		}

		if len(types) != len(memDeltas) || len(types) != len(roleSids) {
			return nil, fmt.Errorf("%w: relation member column length mismatch", ErrMalformedElement)
		}

		wi, err := parseInfo(infoBytes)
		if err != nil {
			return nil, err
		}

		block.IDs = append(block.IDs, id)
		c.appendInfoRow(&block.Info, wi)

		if err := c.appendTagRow(&block.Tags, keys, vals); err != nil {
			return nil, err
		}

		memIDs := wire.UndoDeltas(memDeltas)

		for i, memID := range memIDs {
			mt, err := decodeMemberType(types[i])
			if err != nil {
				return nil, err
			}

			if roleSids[i] < 0 || int(roleSids[i]) >= len(c.strings) {
				return nil, fmt.Errorf("%w: member role index out of range", ErrMalformedElement)
			}

			block.MemberIDs = append(block.MemberIDs, memID)
			block.MemberTypes = append(block.MemberTypes, mt)
			block.MemberRoleSids = append(block.MemberRoleSids, roleSids[i])
		}

		block.MemberOffsets = append(block.MemberOffsets, len(block.MemberIDs))
	}

	return block, nil
}

func decodeMemberType(v int32) (model.MemberType, error) {
	switch v {
	case 0:
		return model.MemberNode, nil
	case 1:
		return model.MemberWay, nil
	case 2:
		return model.MemberRelation, nil
	default:
		return 0, fmt.Errorf("%w: unrecognized member type %d", ErrMalformedElement, v)
	}
}
