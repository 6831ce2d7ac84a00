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

// internalHll4Update raises slotNo to newValue if it is larger than the stored value.
//
// Four cases, by whether the stored nibble is auxToken and whether the shifted new value
// needs one:
//  1. old and new are both exceptions: only the aux map changes.
//  2. old is an exception and new is not: impossible while curMin is unchanged.
//  3. old is not an exception and new is: store auxToken and add to the aux map.
//  4. neither is an exception: overwrite the nibble.
func internalHll4Update(h *hll4ArrayImpl, slotNo int, newValue int) error {
	var (
		curMin             = h.curMin
		rawStoredOldNibble = h.getNibble(slotNo)
		lbOnOldValue       = rawStoredOldNibble + curMin // lower bound, could be 0
		actualOldValue     int
	)

	if newValue <= lbOnOldValue {
		return nil
	}

	shiftedNewValue := newValue - curMin
	if rawStoredOldNibble == auxToken {
		if h.auxHashMap == nil {
			return fmt.Errorf("aux map must already exist for slot %d", slotNo)
		}
		var err error
		actualOldValue, err = h.auxHashMap.mustFindValueFor(slotNo)
		if err != nil || newValue <= actualOldValue {
			return err
		}
		if err := h.hipAndKxQIncrementalUpdate(actualOldValue, newValue); err != nil {
			return err
		}
		if shiftedNewValue >= auxToken { // case 1
			if err := h.auxHashMap.mustReplace(slotNo, newValue); err != nil {
				return err
			}
		}
	} else {
		actualOldValue = lbOnOldValue
		if err := h.hipAndKxQIncrementalUpdate(actualOldValue, newValue); err != nil {
			return err
		}
		if shiftedNewValue >= auxToken { // case 3
			h.putNibble(slotNo, auxToken)
			if h.auxHashMap == nil {
				h.auxHashMap = h.getNewAuxHashMap()
			}
			if err := h.auxHashMap.mustAdd(slotNo, newValue); err != nil {
				return err
			}
		} else { // case 4
			h.putNibble(slotNo, byte(shiftedNewValue))
		}
	}

	if actualOldValue != curMin {
		return nil
	}
	if h.numAtCurMin < 1 {
		return fmt.Errorf("numAtCurMin < 1 at curMin %d", curMin)
	}
	h.numAtCurMin--
	for h.numAtCurMin == 0 {
		if err := shiftToBiggerCurMin(h); err != nil {
			return err
		}
	}
	return nil
}

// shiftToBiggerCurMin increments curMin by one: every nibble below auxToken is
// decremented, and exceptions that now fit are moved back into the nibble array.
// HipAccum and the KxQ registers are untouched.
func shiftToBiggerCurMin(h *hll4ArrayImpl) error {
	var (
		newCurMin      = h.curMin + 1
		configK        = 1 << h.lgConfigK
		configKmask    = configK - 1
		numAtNewCurMin = 0
		numAuxTokens   = 0
	)

	for i := 0; i < configK; i++ {
		oldStoredNibble := h.getNibble(i)
		if oldStoredNibble == 0 {
			return fmt.Errorf("array slots cannot be 0 at this point: slot %d", i)
		}
		if oldStoredNibble == auxToken {
			numAuxTokens++
			continue
		}
		oldStoredNibble--
		h.putNibble(i, byte(oldStoredNibble))
		if oldStoredNibble == 0 {
			numAtNewCurMin++
		}
	}

	var newAuxMap *auxHashMap
	if h.auxHashMap == nil {
		if numAuxTokens != 0 {
			return fmt.Errorf("%d aux tokens without aux map", numAuxTokens)
		}
	} else {
		itr := h.auxHashMap.iterator()
		for itr.nextValid() {
			slotNo := itr.getKey() & configKmask
			oldActualVal, err := itr.getValue()
			if err != nil {
				return err
			}
			newShiftedVal := oldActualVal - newCurMin
			if newShiftedVal < 0 {
				return fmt.Errorf("exception below curMin at slot %d", slotNo)
			}
			if h.getNibble(slotNo) != auxToken {
				return fmt.Errorf("array slot != AUX_TOKEN: %d", h.getNibble(slotNo))
			}
			if newShiftedVal < auxToken {
				if newShiftedVal != auxToken-1 {
					return fmt.Errorf("unexpected shifted value %d at slot %d", newShiftedVal, slotNo)
				}
				// no longer an exception
				h.putNibble(slotNo, byte(newShiftedVal))
				numAuxTokens--
				continue
			}
			if newAuxMap == nil {
				newAuxMap = h.getNewAuxHashMap()
			}
			if err := newAuxMap.mustAdd(slotNo, oldActualVal); err != nil {
				return err
			}
		}
	}
	if newAuxMap != nil && newAuxMap.getAuxCount() != numAuxTokens {
		return fmt.Errorf("aux count %d != aux tokens %d", newAuxMap.getAuxCount(), numAuxTokens)
	}

	h.auxHashMap = newAuxMap
	h.curMin = newCurMin
	h.numAtCurMin = numAtNewCurMin
	return nil
}
