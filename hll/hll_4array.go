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

// hll4ArrayImpl uses 4 bits per slot, stored relative to curMin. Values that do not fit
// are marked with auxToken and kept in the aux map.
type hll4ArrayImpl struct {
	hllArrayImpl
}

type hll4Iterator struct {
	hllPairIterator
	hll *hll4ArrayImpl
	err error
}

func newHll4Array(lgConfigK int) *hll4ArrayImpl {
	return &hll4ArrayImpl{
		hllArrayImpl: newHllArrayImpl(lgConfigK, TgtHllTypeHll4),
	}
}

func (h *hll4ArrayImpl) getSlotValue(slotNo int) (int, error) {
	nib := h.getNibble(slotNo)
	if nib != auxToken {
		return nib + h.curMin, nil
	}
	if h.auxHashMap == nil {
		return 0, fmt.Errorf("aux token at slot %d without aux map", slotNo)
	}
	return h.auxHashMap.mustFindValueFor(slotNo)
}

func (h *hll4ArrayImpl) iterator() pairIterator {
	return &hll4Iterator{
		hllPairIterator: newHllPairIterator(1 << h.lgConfigK),
		hll:             h,
	}
}

func (h *hll4ArrayImpl) ToCompactSlice() ([]byte, error) {
	return toHllByteArr(h, true)
}

func (h *hll4ArrayImpl) ToUpdatableSlice() ([]byte, error) {
	return toHllByteArr(h, false)
}

func (h *hll4ArrayImpl) GetUpdatableSerializationBytes() int {
	lgAux := lgAuxArrInts[h.lgConfigK]
	if h.auxHashMap != nil {
		lgAux = h.auxHashMap.getLgAuxArrInts()
	}
	return hllByteArrStart + h.getHllByteArrBytes() + (4 << lgAux)
}

func (h *hll4ArrayImpl) copyAs(tgtHllType TgtHllType) (hllSketchStateI, error) {
	switch tgtHllType {
	case TgtHllTypeHll4:
		return h.copy()
	case TgtHllTypeHll6:
		return convertToHll6(h)
	case TgtHllTypeHll8:
		return convertToHll8(h)
	}
	return nil, fmt.Errorf("cannot convert to TgtHllType id: %d", int(tgtHllType))
}

func (h *hll4ArrayImpl) copy() (hllSketchStateI, error) {
	return &hll4ArrayImpl{
		hllArrayImpl: h.copyCommon(),
	}, nil
}

func (h *hll4ArrayImpl) couponUpdate(coupon int) (hllSketchStateI, error) {
	newValue := coupon >> keyBits26
	slotNo := h.slotNo(coupon)
	return h, internalHll4Update(h, slotNo, newValue)
}

func deserializeHll4(byteArray []byte) (hllSketchStateI, error) {
	lgConfigK := extractLgK(byteArray)
	hll4 := newHll4Array(lgConfigK)
	hll4.extractCommonHll(byteArray)

	auxCount := extractAuxCount(byteArray)
	if auxCount > 0 {
		auxHashMap, err := deserializeAuxHashMap(byteArray, hll4.auxStart, lgConfigK, auxCount, extractCompactFlag(byteArray))
		if err != nil {
			return nil, err
		}
		hll4.auxHashMap = auxHashMap
	}
	return hll4, nil
}

// convertToHll4 re-encodes any HLL array as HLL_4, keeping its HIP accumulator.
func convertToHll4(srcAbsHllArr hllArray) (hllSketchStateI, error) {
	lgConfigK := srcAbsHllArr.GetLgConfigK()
	hll4Array := newHll4Array(lgConfigK)
	hll4Array.putOutOfOrder(srcAbsHllArr.isOutOfOrder())

	// 1st pass: curMin must be known before any nibble is written.
	curMin, numAtCurMin, err := curMinAndNum(srcAbsHllArr)
	if err != nil {
		return nil, err
	}

	// 2nd pass: populate KxQ registers and exceptions.
	srcItr := srcAbsHllArr.iterator()
	for srcItr.nextValid() {
		slotNo := srcItr.getIndex()
		actualValue, err := srcItr.getValue()
		if err != nil {
			return nil, err
		}
		if err := hll4Array.hipAndKxQIncrementalUpdate(0, actualValue); err != nil {
			return nil, err
		}
		if actualValue >= curMin+auxToken {
			hll4Array.putNibble(slotNo, auxToken)
			if hll4Array.auxHashMap == nil {
				hll4Array.auxHashMap = hll4Array.getNewAuxHashMap()
			}
			if err := hll4Array.auxHashMap.mustAdd(slotNo, actualValue); err != nil {
				return nil, err
			}
		} else {
			hll4Array.putNibble(slotNo, byte(actualValue-curMin))
		}
	}
	hll4Array.curMin = curMin
	hll4Array.numAtCurMin = numAtCurMin
	hll4Array.hipAccum = srcAbsHllArr.getHipAccum() //intentional overwrite
	hll4Array.rebuildCurMinNumKxQ = false
	return hll4Array, nil
}

// curMinAndNum returns the minimum slot value and how many slots hold it.
func curMinAndNum(absHllArr hllArray) (int, int, error) {
	curMin := 64
	numAtCurMin := 0
	itr := absHllArr.iterator()
	for itr.nextAll() {
		v, err := itr.getValue()
		if err != nil {
			return 0, 0, err
		}
		if v > curMin {
			continue
		}
		if v < curMin {
			curMin = v
			numAtCurMin = 1
		} else {
			numAtCurMin++
		}
	}
	return curMin, numAtCurMin, nil
}

// nextValid stops on a lookup failure as well, so that getValue can report it.
func (itr *hll4Iterator) nextValid() bool {
	for itr.index+1 < itr.lengthPairs {
		itr.index++
		itr.value, itr.err = itr.hll.getSlotValue(itr.index)
		if itr.err != nil || itr.value != empty {
			return true
		}
	}
	return false
}

func (itr *hll4Iterator) nextAll() bool {
	if !itr.hllPairIterator.nextAll() {
		return false
	}
	itr.value, itr.err = itr.hll.getSlotValue(itr.index)
	return true
}

func (itr *hll4Iterator) getValue() (int, error) {
	return itr.value, itr.err
}

func (itr *hll4Iterator) getPair() (int, error) {
	return pair(itr.index, itr.value), itr.err
}
