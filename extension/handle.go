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
	"math"
	"sync"
)

// Handle is the token a caller holds for one live state. The upper 32 bits carry the
// slot generation and the lower 32 bits the slot index.
type Handle uint64

// NoHandle is the all-bits-set sentinel meaning "no state yet".
const NoHandle Handle = math.MaxUint64

// Slot indexes stay below MaxUint32, so no issued handle equals NoHandle.
const maxSlots = math.MaxUint32

func makeHandle(idx uint32, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(idx))
}

func (h Handle) index() uint32 {
	return uint32(h)
}

func (h Handle) generation() uint32 {
	return uint32(h >> 32)
}

func (h Handle) String() string {
	if h == NoHandle {
		return "NoHandle"
	}
	return fmt.Sprintf("%d@%d", h.index(), h.generation())
}

type slot struct {
	gen   uint32
	state *state
}

// handleTable maps handles to exclusively owned states. A slot's generation advances
// every time its state is taken out, so a handle is accepted at most once.
type handleTable struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	live  int
	max   int
}

func newHandleTable(maxHandles int) *handleTable {
	return &handleTable{max: maxHandles}
}

func (t *handleTable) put(s *state) (Handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if (t.max > 0 && t.live >= t.max) || (len(t.free) == 0 && len(t.slots) >= maxSlots) {
		return NoHandle, &AllocationError{Live: t.live, Max: t.max}
	}

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		idx = uint32(len(t.slots))
		t.slots = append(t.slots, slot{})
	}
	t.slots[idx].state = s
	t.live++
	return makeHandle(idx, t.slots[idx].gen), nil
}

// take removes and returns the state behind h, invalidating h.
func (t *handleTable) take(h Handle) (*state, error) {
	if h == NoHandle {
		return nil, ErrStaleHandle
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := h.index()
	if int(idx) >= len(t.slots) {
		return nil, ErrStaleHandle
	}
	sl := &t.slots[idx]
	if sl.state == nil || sl.gen != h.generation() {
		return nil, ErrStaleHandle
	}
	s := sl.state
	sl.state = nil
	sl.gen++
	t.free = append(t.free, idx)
	t.live--
	return s, nil
}

func (t *handleTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}
