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

// hllArray is the HLL mode of a sketch, backed by 4, 6 or 8 bit registers.
type hllArray interface {
	hllSketchStateI

	getAuxHashMap() *auxHashMap
	getAuxStart() int
	getCurMin() int
	getHipAccum() float64
	getHllByteArr() []byte
	getHllByteArrBytes() int
	getKxQ0() float64
	getKxQ1() float64
	getNumAtCurMin() int

	putAuxHashMap(auxHashMap *auxHashMap)
	putCurMin(curMin int)
	putHipAccum(hipAccum float64)
	putKxQ0(kxq0 float64)
	putKxQ1(kxq1 float64)
	putNumAtCurMin(numAtCurMin int)

	extractCommonHll(byteArr []byte)
	hipAndKxQIncrementalUpdate(oldValue int, newValue int) error
}

type hllArrayImpl struct {
	hllSketchConfig
	oooFlag             bool
	rebuildCurMinNumKxQ bool
	curMin              int // always zero for Hll6 and Hll8, only used by Hll4Array
	numAtCurMin         int // # of values at curMin. If curMin = 0, it is # of zeros
	hipAccum            float64
	kxq0                float64 // sum of 2^-v for v < 32
	kxq1                float64 // sum of 2^-v for v >= 32

	hllByteArr []byte

	auxHashMap *auxHashMap
	auxStart   int
}

func newHllArrayImpl(lgConfigK int, tgtHllType TgtHllType) hllArrayImpl {
	arrBytes := hllArrBytes(tgtHllType, lgConfigK)
	return hllArrayImpl{
		hllSketchConfig: newHllSketchConfig(lgConfigK, tgtHllType, curModeHll),
		numAtCurMin:     1 << lgConfigK,
		kxq0:            float64(uint64(1) << lgConfigK),
		hllByteArr:      make([]byte, arrBytes),
		auxStart:        hllByteArrStart + arrBytes,
	}
}

func newHllArray(lgConfigK int, tgtHllType TgtHllType) (hllArray, error) {
	switch tgtHllType {
	case TgtHllTypeHll4:
		return newHll4Array(lgConfigK), nil
	case TgtHllTypeHll6:
		return newHll6Array(lgConfigK), nil
	case TgtHllTypeHll8:
		return newHll8Array(lgConfigK), nil
	}
	return nil, fmt.Errorf("unknown TgtHllType: %d", int(tgtHllType))
}

func (a *hllArrayImpl) getPreInts() int {
	return hllPreInts
}

func (a *hllArrayImpl) IsEmpty() bool {
	return false
}

// GetEstimate returns the HIP estimate, or the composite estimate once the sketch has
// been through a union and the HIP accumulator is no longer valid.
func (a *hllArrayImpl) GetEstimate() (float64, error) {
	if a.oooFlag {
		return a.GetCompositeEstimate()
	}
	return a.hipAccum, nil
}

func (a *hllArrayImpl) GetCompositeEstimate() (float64, error) {
	return hllCompositeEstimate(a)
}

func (a *hllArrayImpl) GetHipEstimate() (float64, error) {
	return a.hipAccum, nil
}

func (a *hllArrayImpl) getMemDataStart() int {
	return hllByteArrStart
}

func (a *hllArrayImpl) GetUpperBound(numStdDev int) (float64, error) {
	if err := checkNumStdDev(numStdDev); err != nil {
		return 0, err
	}
	return hllUpperBound(a, numStdDev)
}

func (a *hllArrayImpl) GetLowerBound(numStdDev int) (float64, error) {
	if err := checkNumStdDev(numStdDev); err != nil {
		return 0, err
	}
	return hllLowerBound(a, numStdDev)
}

func (a *hllArrayImpl) GetUpdatableSerializationBytes() int {
	return hllByteArrStart + a.getHllByteArrBytes()
}

func (a *hllArrayImpl) getCurMin() int {
	return a.curMin
}

func (a *hllArrayImpl) getNumAtCurMin() int {
	return a.numAtCurMin
}

func (a *hllArrayImpl) getKxQ1() float64 {
	return a.kxq1
}

func (a *hllArrayImpl) getKxQ0() float64 {
	return a.kxq0
}

func (a *hllArrayImpl) getHllByteArrBytes() int {
	return len(a.hllByteArr)
}

func (a *hllArrayImpl) getHllByteArr() []byte {
	return a.hllByteArr
}

func (a *hllArrayImpl) putHipAccum(hipAccum float64) {
	a.hipAccum = hipAccum
}

func (a *hllArrayImpl) getHipAccum() float64 {
	return a.hipAccum
}

// putOutOfOrder sets the out-of-order flag. Setting it invalidates the HIP accumulator.
func (a *hllArrayImpl) putOutOfOrder(oooFlag bool) {
	if oooFlag {
		a.hipAccum = 0
	}
	a.oooFlag = oooFlag
}

func (a *hllArrayImpl) isOutOfOrder() bool {
	return a.oooFlag
}

func (a *hllArrayImpl) putAuxHashMap(auxHashMap *auxHashMap) {
	a.auxHashMap = auxHashMap
}

func (a *hllArrayImpl) putCurMin(curMin int) {
	a.curMin = curMin
}

func (a *hllArrayImpl) putKxQ0(kxq0 float64) {
	a.kxq0 = kxq0
}

func (a *hllArrayImpl) putKxQ1(kxq1 float64) {
	a.kxq1 = kxq1
}

func (a *hllArrayImpl) putNumAtCurMin(numAtCurMin int) {
	a.numAtCurMin = numAtCurMin
}

func (a *hllArrayImpl) putRebuildCurMinNumKxQFlag(rebuildCurMinNumKxQ bool) {
	a.rebuildCurMinNumKxQ = rebuildCurMinNumKxQ
}

func (a *hllArrayImpl) isRebuildCurMinNumKxQFlag() bool {
	return a.rebuildCurMinNumKxQ
}

func (a *hllArrayImpl) getNewAuxHashMap() *auxHashMap {
	return newAuxHashMap(lgAuxArrInts[a.lgConfigK], a.lgConfigK)
}

func (a *hllArrayImpl) getAuxHashMap() *auxHashMap {
	return a.auxHashMap
}

func (a *hllArrayImpl) getAuxStart() int {
	return a.auxStart
}

func (a *hllArrayImpl) getNibble(slotNo int) int {
	theByte := int(a.hllByteArr[slotNo>>1])
	if (slotNo & 1) > 0 { //odd?
		theByte >>= 4
	}
	return theByte & loNibbleMask
}

func (a *hllArrayImpl) putNibble(slotNo int, value byte) {
	byteNo := slotNo >> 1
	oldValue := a.hllByteArr[byteNo]
	if (slotNo & 1) == 0 {
		a.hllByteArr[byteNo] = (oldValue & hiNibbleMask) | (value & loNibbleMask)
	} else {
		a.hllByteArr[byteNo] = (oldValue & loNibbleMask) | ((value << 4) & hiNibbleMask)
	}
}

// mergeTo is only meaningful for coupon modes; HLL arrays are merged by the union.
func (a *hllArrayImpl) mergeTo(HllSketch) error {
	return fmt.Errorf("possible Corruption, improper access")
}

// copyCommon deep copies the registers and the aux map.
func (a *hllArrayImpl) copyCommon() hllArrayImpl {
	newH := *a
	if a.auxHashMap != nil {
		newH.auxHashMap = a.auxHashMap.copy()
	}
	newH.hllByteArr = make([]byte, len(a.hllByteArr))
	copy(newH.hllByteArr, a.hllByteArr)
	return newH
}

// hipAndKxQIncrementalUpdate moves a slot from oldValue to newValue, adding to the HIP
// accumulator before the KxQ registers change.
func (a *hllArrayImpl) hipAndKxQIncrementalUpdate(oldValue int, newValue int) error {
	if oldValue >= newValue {
		return fmt.Errorf("oldValue >= newValue: %d >= %d", oldValue, newValue)
	}
	a.hipAccum += float64(uint64(1)<<a.lgConfigK) / (a.kxq0 + a.kxq1)
	return a.incrementalUpdateKxQ(oldValue, newValue)
}

func (a *hllArrayImpl) incrementalUpdateKxQ(oldValue int, newValue int) error {
	oldInv, err := internal.InvPow2(oldValue)
	if err != nil {
		return err
	}
	newInv, err := internal.InvPow2(newValue)
	if err != nil {
		return err
	}
	// subtract first, then add
	if oldValue < 32 {
		a.kxq0 -= oldInv
	} else {
		a.kxq1 -= oldInv
	}
	if newValue < 32 {
		a.kxq0 += newInv
	} else {
		a.kxq1 += newInv
	}
	return nil
}

// extractCommonHll loads the HLL preamble fields and a private copy of the registers.
func (a *hllArrayImpl) extractCommonHll(byteArr []byte) {
	a.putOutOfOrder(extractOooFlag(byteArr))
	a.curMin = extractCurMin(byteArr)
	a.hipAccum = extractHipAccum(byteArr)
	a.kxq0 = extractKxQ0(byteArr)
	a.kxq1 = extractKxQ1(byteArr)
	a.numAtCurMin = extractNumAtCurMin(byteArr)
	a.rebuildCurMinNumKxQ = extractRebuildCurMinNumKxQFlag(byteArr)

	copy(a.hllByteArr, byteArr[hllByteArrStart:hllByteArrStart+len(a.hllByteArr)])
}

// refillFrom replays every non-empty slot of src into the empty array tgt, whose common
// state is dst. couponUpdate rebuilds the KxQ registers; the HIP accumulator is carried over.
func refillFrom(dst *hllArrayImpl, tgt hllSketchStateI, src hllArray) error {
	dst.putOutOfOrder(src.isOutOfOrder())
	numZeros := 1 << dst.lgConfigK
	itr := src.iterator()
	for itr.nextValid() {
		p, err := itr.getPair()
		if err != nil {
			return err
		}
		numZeros--
		if _, err := tgt.couponUpdate(p); err != nil {
			return err
		}
	}
	dst.numAtCurMin = numZeros
	dst.hipAccum = src.getHipAccum() //intentional overwrite
	dst.rebuildCurMinNumKxQ = false
	return nil
}
