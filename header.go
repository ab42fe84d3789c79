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

	"github.com/QuodEstDubitandum/fast-osmpbf/internal/wire"
	"github.com/QuodEstDubitandum/fast-osmpbf/model"
)

// recognizedFeatures lists the required_features values this decoder
// implements.
var recognizedFeatures = map[string]bool{
	"OsmSchema-V0.6": true,
	"DenseNodes":     true,
}

// parseHeaderBlock decodes an OSMHeader payload into a model.Header and
// checks its required_features against recognizedFeatures. An absent
// required_features list is treated as an empty one.
func parseHeaderBlock(buf []byte) (model.Header, error) {
	r := wire.NewReader(buf)

	var (
		header model.Header
		bbox   *headerBBox
	)

	for !r.Done() {
		field, wt, err := r.Tag()
		if err != nil {
			return model.Header{}, err
		}

		switch field {
		case 1:
			b, err := r.Bytes()
			if err != nil {
				return model.Header{}, err
			}

			bbox, err = parseHeaderBBox(b)
			if err != nil {
				return model.Header{}, err
			}
		case 4:
			b, err := r.Bytes()
			if err != nil {
				return model.Header{}, err
			}

			header.RequiredFeatures = append(header.RequiredFeatures, string(b))
		case 5:
			b, err := r.Bytes()
			if err != nil {
				return model.Header{}, err
			}

			header.OptionalFeatures = append(header.OptionalFeatures, string(b))
		case 16:
			b, err := r.Bytes()
			if err != nil {
				return model.Header{}, err
			}

			header.WritingProgram = string(b)
		case 17:
			b, err := r.Bytes()
			if err != nil {
				return model.Header{}, err
			}

			header.Source = string(b)
		case 32:
			v, err := r.Varint()
			if err != nil {
				return model.Header{}, err
			}

			header.OsmosisReplicationTimestamp = time.Unix(int64(v), 0).UTC()
		case 33:
			v, err := r.Varint()
			if err != nil {
				return model.Header{}, err
			}

			header.OsmosisReplicationSequenceNumber = int64(v)
		case 34:
			b, err := r.Bytes()
			if err != nil {
				return model.Header{}, err
			}

			header.OsmosisReplicationBaseURL = string(b)
		default:
			if err := r.Skip(wt); err != nil {
				return model.Header{}, err
			}
		}
	}

	if bbox != nil {
		header.BoundingBox = &model.BoundingBox{
			Left:   model.ToDegrees(0, 1, bbox.left),
			Right:  model.ToDegrees(0, 1, bbox.right),
			Top:    model.ToDegrees(0, 1, bbox.top),
			Bottom: model.ToDegrees(0, 1, bbox.bottom),
		}
	}

	for _, f := range header.RequiredFeatures {
		if !recognizedFeatures[f] {
			return model.Header{}, fmt.Errorf("%w: %q", ErrUnsupportedFeature, f)
		}
	}

	return header, nil
}

type headerBBox struct {
	left, right, top, bottom int64
}

// parseHeaderBBox decodes a HeaderBBox message: sint64 left (1), right
// (2), top (3), bottom (4), in nanodegrees, not delta-coded.
func parseHeaderBBox(buf []byte) (*headerBBox, error) {
	r := wire.NewReader(buf)

	bbox := &headerBBox{}

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

			bbox.left = v
		case 2:
			v, err := r.SVarint()
			if err != nil {
				return nil, err
			}

			bbox.right = v
		case 3:
			v, err := r.SVarint()
			if err != nil {
				return nil, err
			}

			bbox.top = v
		case 4:
			v, err := r.SVarint()
			if err != nil {
				return nil, err
			}

			bbox.bottom = v
		default:
			if err := r.Skip(wt); err != nil {
				return nil, err
			}
		}
	}

	return bbox, nil
}
