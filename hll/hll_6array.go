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

import (
	"fmt"

	"github.com/datasketches-ext/hllagg/internal"
)

// hll6ArrayImpl uses 6 bits per slot in a packed byte array.
type hll6ArrayImpl struct {
	hllArrayImpl
}

type hll6Iterator struct {
	hllPairIterator
	hll       *hll6ArrayImpl
	bitOffset int
}

func newHll6Array(lgConfigK int) *hll6ArrayImpl {
	return &hll6ArrayImpl{
		hllArrayImpl: newHllArrayImpl(lgConfigK, TgtHllTypeHll6),
	}
}

func (h *hll6ArrayImpl) iterator() pairIterator {
	return &hll6Iterator{
		hllPairIterator: newHllPairIterator(1 << h.lgConfigK),
		hll:             h,
		bitOffset:       -valBits6,
	}
}

func (h *hll6ArrayImpl) copyAs(tgtHllType TgtHllType) (hllSketchStateI, error) {
	switch tgtHllType {
	case TgtHllTypeHll6:
		return h.copy()
	case TgtHllTypeHll4:
		return convertToHll4(h)
	case TgtHllTypeHll8:
		return convertToHll8(h)
	}
	return nil, fmt.Errorf("cannot convert to TgtHllType id: %d", int(tgtHllType))
}

func (h *hll6ArrayImpl) copy() (hllSketchStateI, error) {
	return &hll6ArrayImpl{
		hllArrayImpl: h.copyCommon(),
	}, nil
}

func (h *hll6ArrayImpl) ToCompactSlice() ([]byte, error) {
	return h.ToUpdatableSlice()
}

func (h *hll6ArrayImpl) ToUpdatableSlice() ([]byte, error) {
	return toHllByteArr(h, false)
}

func deserializeHll6(byteArray []byte) (hllSketchStateI, error) {
	hll6 := newHll6Array(extractLgK(byteArray))
	hll6.extractCommonHll(byteArray)
	return hll6, nil
}

func (h *hll6ArrayImpl) couponUpdate(coupon int) (hllSketchStateI, error) {
	newValue := coupon >> keyBits26
	slotNo := h.slotNo(coupon)
	return h, h.updateSlotWithKxQ(slotNo, newValue)
}

func (h *hll6ArrayImpl) updateSlotWithKxQ(slotNo int, newValue int) error {
	oldValue := h.getSlotValue(slotNo)
	if newValue <= oldValue {
		return nil
	}
	put6Bit(h.hllByteArr, slotNo, newValue)
	if err := h.hipAndKxQIncrementalUpdate(oldValue, newValue); err != nil {
		return err
	}
	if oldValue == 0 {
		h.numAtCurMin-- //interpret numAtCurMin as num Zeros
		if h.numAtCurMin < 0 {
			return fmt.Errorf("numAtCurMin < 0")
		}
	}
	return nil
}

func (h *hll6ArrayImpl) getSlotValue(slotNo int) int {
	return get6Bit(h.hllByteArr, slotNo)
}

func get6Bit(arr []byte, slotNo int) int {
	startBit := slotNo * valBits6
	shift := startBit & 0x7
	return (internal.GetShortLE(arr, startBit>>3) >> shift) & valMask6
}

func put6Bit(arr []byte, slotNo int, newValue int) {
	startBit := slotNo * valBits6
	shift := startBit & 0x7
	byteIdx := startBit >> 3
	valShifted := (newValue & valMask6) << shift
	curMasked := internal.GetShortLE(arr, byteIdx) & ^(valMask6 << shift)
	internal.PutShortLE(arr, byteIdx, curMasked|valShifted)
}

// convertToHll6 re-encodes any HLL array as HLL_6, keeping its HIP accumulator.
func convertToHll6(srcAbsHllArr hllArray) (hllSketchStateI, error) {
	hll6Array := newHll6Array(srcAbsHllArr.GetLgConfigK())
	if err := refillFrom(&hll6Array.hllArrayImpl, hll6Array, srcAbsHllArr); err != nil {
		return nil, err
	}
	return hll6Array, nil
}

func (h *hll6Iterator) nextAll() bool {
	if !h.hllPairIterator.nextAll() {
		return false
	}
	h.bitOffset += valBits6
	h.value = h.load()
	return true
}

func (h *hll6Iterator) nextValid() bool {
	for h.nextAll() {
		if h.value != empty {
			return true
		}
	}
	return false
}

func (h *hll6Iterator) load() int {
	tmp := internal.GetShortLE(h.hll.hllByteArr, h.bitOffset>>3)
	return (tmp >> (h.bitOffset & 0x7)) & valMask6
}

func (h *hll6Iterator) getValue() (int, error) {
	return h.value, nil
}

func (h *hll6Iterator) getPair() (int, error) {
	return pair(h.index, h.value), nil
}
