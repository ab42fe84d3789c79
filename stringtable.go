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
	"github.com/QuodEstDubitandum/fast-osmpbf/internal/wire"
	"github.com/QuodEstDubitandum/fast-osmpbf/model"
)

// parseStringTable decodes a StringTable message: repeated bytes s (1),
// borrowed from buf without copying.
func parseStringTable(buf []byte) (model.StringTable, error) {
	r := wire.NewReader(buf)

	var table model.StringTable

	for !r.Done() {
		field, wt, err := r.Tag()
		if err != nil {
			return nil, err
		}

		if field == 1 {
			b, err := r.Bytes()
			if err != nil {
				return nil, err
			}

			table = append(table, b)

			continue
		}

		if err := r.Skip(wt); err != nil {
			return nil, err
		}
	}

	return table, nil
}

// filterIndex maps a block's string-table position to the filter slot of
// the matching tag-filter key, or model.NoFilterSlot if the entry doesn't
// match any declared key. Matching is by value, so two distinct
// string-table entries with equal bytes resolve to the same slot.
//
// Construction is O(|string table|): each entry is hashed once against a
// map built once from the (small, ≤~255 key) filter list.
func filterIndex(table model.StringTable, tagFilter [][]byte) []uint32 {
	if len(tagFilter) == 0 {
		return nil
	}

	slots := make(map[string]uint32, len(tagFilter))
	for i, key := range tagFilter {
		slots[string(key)] = uint32(i)
	}

	idx := make([]uint32, len(table))

	for i, entry := range table {
		if slot, ok := slots[string(entry)]; ok {
			idx[i] = slot
		} else {
			idx[i] = model.NoFilterSlot
		}
	}

	return idx
}
