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

package hll

// pairIterator walks the (slot, value) pairs of a sketch. A pair packs the slot number
// or coupon address in the low 26 bits and the value in the upper 6 bits.
type pairIterator interface {
	nextValid() bool
	nextAll() bool
	getIndex() int
	getPair() (int, error)
	getKey() int
	getValue() (int, error)
	getSlot() int
}

// intArrayPairIterator iterates an array of packed pairs: coupon tables and aux maps.
type intArrayPairIterator struct {
	array    []int
	slotMask int
	index    int
	pair     int
}

func newIntArrayPairIterator(array []int, lgConfigK int) pairIterator {
	return &intArrayPairIterator{
		array:    array,
		slotMask: (1 << lgConfigK) - 1,
		index:    -1,
	}
}

func (i *intArrayPairIterator) getIndex() int {
	return i.index
}

func (i *intArrayPairIterator) getPair() (int, error) {
	return i.pair, nil
}

// nextValid advances to the next non-empty pair and returns false when the array is exhausted.
func (i *intArrayPairIterator) nextValid() bool {
	for i.index+1 < len(i.array) {
		i.index++
		if p := i.array[i.index]; p != empty {
			i.pair = p
			return true
		}
	}
	return false
}

func (i *intArrayPairIterator) nextAll() bool {
	i.index++
	if i.index < len(i.array) {
		i.pair = i.array[i.index]
		return true
	}
	return false
}

func (i *intArrayPairIterator) getKey() int {
	return getPairLow26(i.pair)
}

func (i *intArrayPairIterator) getValue() (int, error) {
	return getPairValue(i.pair), nil
}

func (i *intArrayPairIterator) getSlot() int {
	return i.getKey() & i.slotMask
}

// hllPairIterator holds the cursor shared by the HLL array iterators. The index is the
// slot number, so the key and the slot coincide.
type hllPairIterator struct {
	lengthPairs int
	index       int
	value       int
}

func newHllPairIterator(lengthPairs int) hllPairIterator {
	return hllPairIterator{
		lengthPairs: lengthPairs,
		index:       -1,
	}
}

func (h *hllPairIterator) nextAll() bool {
	h.index++
	return h.index < h.lengthPairs
}

func (h *hllPairIterator) getIndex() int {
	return h.index
}

func (h *hllPairIterator) getKey() int {
	return h.index
}

func (h *hllPairIterator) getSlot() int {
	return h.index
}
