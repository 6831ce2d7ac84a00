/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package extension

import (
	"fmt"

	"github.com/datasketches-ext/hllagg/hll"
)

type stateKind uint8

const (
	consumedKind stateKind = iota
	sketchKind
	unionKind
)

func (k stateKind) String() string {
	switch k {
	case sketchKind:
		return "sketch"
	case unionKind:
		return "union"
	default:
		return "consumed"
	}
}

// state is either an accumulating sketch or a merging union, never both.
type state struct {
	kind   stateKind
	sketch hll.HllSketch
	union  hll.Union
}

func newSketchState(lgK int, tgtHllType hll.TgtHllType) (*state, error) {
	sk, err := hll.NewHllSketch(lgK, tgtHllType)
	if err != nil {
		return nil, err
	}
	return &state{kind: sketchKind, sketch: sk}, nil
}

func newUnionState(lgK int) (*state, error) {
	u, err := hll.NewUnion(lgK)
	if err != nil {
		return nil, err
	}
	return &state{kind: unionKind, union: u}, nil
}

func wrapSketch(sk hll.HllSketch) *state {
	return &state{kind: sketchKind, sketch: sk}
}

// resolve turns the state into a sketch and leaves the state consumed. A sketch is
// handed over as is; a union is materialized as a sketch of tgtHllType and dropped.
func (s *state) resolve(tgtHllType hll.TgtHllType) (hll.HllSketch, error) {
	kind := s.kind
	s.kind = consumedKind
	switch kind {
	case sketchKind:
		sk := s.sketch
		s.sketch = nil
		return sk, nil
	case unionKind:
		u := s.union
		s.union = nil
		sk, err := u.GetResult(tgtHllType)
		if err != nil {
			return nil, fmt.Errorf("materialize union: %w", err)
		}
		return sk, nil
	default:
		return nil, ErrConsumedState
	}
}
