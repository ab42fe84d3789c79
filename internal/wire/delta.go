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

package wire

import "golang.org/x/exp/constraints"

// UndoDeltas reverses a delta-coded column in place of allocating a new
// one: deltas[i] becomes the running sum of deltas[0..i]. It is the
// decode-side mirror of an encoder's calcDeltas.
func UndoDeltas[T constraints.Integer | constraints.Float](deltas []T) []T {
	var prev T

	for i, d := range deltas {
		prev += d
		deltas[i] = prev
	}

	return deltas
}
