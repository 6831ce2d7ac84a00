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
)

// hll8ArrayImpl uses one byte per slot. It is the only type a union gadget uses.
type hll8ArrayImpl struct {
	hllArrayImpl
}

type hll8Iterator struct {
	hllPairIterator
	hll *hll8ArrayImpl
}

func newHll8Array(lgConfigK int) *hll8ArrayImpl {
	return &hll8ArrayImpl{
		hllArrayImpl: newHllArrayImpl(lgConfigK, TgtHllTypeHll8),
	}
}

func (h *hll8ArrayImpl) iterator() pairIterator {
	return &hll8Iterator{
		hllPairIterator: newHllPairIterator(1 << h.lgConfigK),
		hll:             h,
	}
}

func (h *hll8ArrayImpl) copyAs(tgtHllType TgtHllType) (hllSketchStateI, error) {
	switch tgtHllType {
	case TgtHllTypeHll8:
		return h.copy()
	case TgtHllTypeHll4:
		return convertToHll4(h)
	case TgtHllTypeHll6:
		return convertToHll6(h)
	}
	return nil, fmt.Errorf("cannot convert to TgtHllType id: %d", int(tgtHllType))
}

func (h *hll8ArrayImpl) copy() (hllSketchStateI, error) {
	return &hll8ArrayImpl{
		hllArrayImpl: h.copyCommon(),
	}, nil
}

func (h *hll8ArrayImpl) ToCompactSlice() ([]byte, error) {
	return h.ToUpdatableSlice()
}

func (h *hll8ArrayImpl) ToUpdatableSlice() ([]byte, error) {
	return toHllByteArr(h, false)
}

func deserializeHll8(byteArray []byte) (*hll8ArrayImpl, error) {
	hll8 := newHll8Array(extractLgK(byteArray))
	hll8.extractCommonHll(byteArray)
	return hll8, nil
}

// convertToHll8 re-encodes any HLL array as HLL_8, keeping its HIP accumulator.
func convertToHll8(srcAbsHllArr hllArray) (hllSketchStateI, error) {
	hll8Array := newHll8Array(srcAbsHllArr.GetLgConfigK())
	if err := refillFrom(&hll8Array.hllArrayImpl, hll8Array, srcAbsHllArr); err != nil {
		return nil, err
	}
	return hll8Array, nil
}

func (h *hll8ArrayImpl) couponUpdate(coupon int) (hllSketchStateI, error) {
	newValue := coupon >> keyBits26
	slotNo := h.slotNo(coupon)
	return h, h.updateSlotWithKxQ(slotNo, newValue)
}

func (h *hll8ArrayImpl) updateSlotWithKxQ(slotNo int, newValue int) error {
	oldValue := h.getSlotValue(slotNo)
	if newValue <= oldValue {
		return nil
	}
	h.hllByteArr[slotNo] = byte(newValue & valMask6)
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

// updateSlotNoKxQ raises a slot without touching HIP or KxQ; callers must flag a rebuild.
func (h *hll8ArrayImpl) updateSlotNoKxQ(slotNo int, newValue int) {
	if newValue > h.getSlotValue(slotNo) {
		h.hllByteArr[slotNo] = byte(newValue & valMask6)
	}
}

func (h *hll8ArrayImpl) getSlotValue(slotNo int) int {
	return int(h.hllByteArr[slotNo] & valMask6)
}

func (h *hll8Iterator) nextAll() bool {
	if !h.hllPairIterator.nextAll() {
		return false
	}
	h.value = h.hll.getSlotValue(h.index)
	return true
}

func (h *hll8Iterator) nextValid() bool {
	for h.nextAll() {
		if h.value != empty {
			return true
		}
	}
	return false
}

func (h *hll8Iterator) getValue() (int, error) {
	return h.value, nil
}

func (h *hll8Iterator) getPair() (int, error) {
	return pair(h.index, h.value), nil
}
