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
	"encoding/binary"
	"fmt"
	"math"

	"github.com/datasketches-ext/hllagg/internal"
)

const (
	preambleIntsBytes = 0
	serVerByte        = 1
	familyByte        = 2
	lgKByte           = 3
	lgArrByte         = 4
	flagsByte         = 5
	listCountByte     = 6
	hllCurMinByte     = 6
	// modeByte
	// mode encoding of combined curMode and TgtHllType:
	// Dec  Lo4Bits TgtHllType, curMode
	//   0     0000      HLL_4,    LIST
	//   1     0001      HLL_4,     SET
	//   2     0010      HLL_4,     HLL
	//   4     0100      HLL_6,    LIST
	//   5     0101      HLL_6,     SET
	//   6     0110      HLL_6,     HLL
	//   8     1000      HLL_8,    LIST
	//   9     1001      HLL_8,     SET
	//  10     1010      HLL_8,     HLL
	modeByte = 7 //lo2bits = curMode, next 2 bits = tgtHllType

	listIntArrStart = 8
)

const (
	//Coupon Hash Set
	hashSetCountInt    = 8
	hashSetIntArrStart = 12
)

const (
	// HLL
	hipAccumDouble  = 8
	kxq0Double      = 16
	kxq1Double      = 24
	curMinCountInt  = 32
	auxCountInt     = 36
	hllByteArrStart = 40
)

const (
	//Flag bit masks
	emptyFlagMask           = 4
	compactFlagMask         = 8
	outOfOrderFlagMask      = 16
	rebuildCurminNumKxqMask = 32
)

const (
	//Mode byte masks
	curModeMask    = 3
	tgtHllTypeMask = 12
)

const (
	// Other constants
	serVer         = 1
	familyId       = 7
	listPreInts    = 2
	hashSetPreInts = 3
	hllPreInts     = 10
)

func extractPreInts(byteArr []byte) int {
	return int(byteArr[preambleIntsBytes] & 0x3F)
}

func extractSerVer(byteArr []byte) int {
	return int((byteArr[serVerByte]) & 0xFF)
}

func extractFamilyID(byteArr []byte) int {
	return int((byteArr[familyByte]) & 0xFF)
}

func extractCurMode(byteArr []byte) curMode {
	return curMode(byteArr[modeByte] & curModeMask)
}

func extractTgtHllType(byteArr []byte) TgtHllType {
	typeId := byteArr[modeByte] & tgtHllTypeMask
	return TgtHllType(typeId >> 2)
}

func extractLgK(byteArr []byte) int {
	return int(byteArr[lgKByte] & 0xFF)
}

func extractListCount(byteArr []byte) int {
	return int(byteArr[listCountByte] & 0xFF)
}

func extractCompactFlag(byteArr []byte) bool {
	return (int(byteArr[flagsByte]) & compactFlagMask) > 0
}

func extractHashSetCount(byteArr []byte) int {
	return int(binary.LittleEndian.Uint32(byteArr[hashSetCountInt : hashSetCountInt+4]))
}

func extractLgArr(byteArr []byte) int {
	return int(byteArr[lgArrByte] & 0xFF)
}

func extractOooFlag(byteArr []byte) bool {
	flags := byteArr[flagsByte]
	return (flags & outOfOrderFlagMask) > 0
}

func extractCurMin(byteArr []byte) int {
	return int(byteArr[hllCurMinByte] & 0xFF)
}

func extractHipAccum(byteArr []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(byteArr[hipAccumDouble : hipAccumDouble+8]))
}

func extractKxQ0(byteArr []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(byteArr[kxq0Double : kxq0Double+8]))
}

func extractKxQ1(byteArr []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(byteArr[kxq1Double : kxq1Double+8]))
}

func extractNumAtCurMin(byteArr []byte) int {
	return int(binary.LittleEndian.Uint32(byteArr[curMinCountInt : curMinCountInt+4]))
}

func extractRebuildCurMinNumKxQFlag(byteArr []byte) bool {
	return (byteArr[flagsByte] & rebuildCurminNumKxqMask) > 0
}

func extractAuxCount(byteArr []byte) int {
	return int(binary.LittleEndian.Uint32(byteArr[auxCountInt : auxCountInt+4]))
}

func computeLgArr(curMode curMode, couponCount int, lgConfigK int) (int, error) {
	//value is missing, recompute
	if curMode == curModeList {
		return lgInitListSize, nil
	}
	ceilPwr2 := internal.CeilPowerOf2(couponCount)
	if (resizeDenom * couponCount) > (resizeNumber * ceilPwr2) {
		ceilPwr2 <<= 1
	}
	if curMode == curModeSet {
		v, err := internal.ExactLog2(ceilPwr2)
		return max(lgInitSetSize, v), err
	}
	//only used for HLL4
	v, err := internal.ExactLog2(ceilPwr2)
	return max(lgAuxArrInts[lgConfigK], v), err

}

func insertAuxCount(byteArr []byte, auxCount int) {
	binary.LittleEndian.PutUint32(byteArr[auxCountInt:auxCountInt+4], uint32(auxCount))
}

func insertListCount(byteArr []byte, listCnt int) {
	byteArr[listCountByte] = byte(listCnt)
}

func insertHashSetCount(byteArr []byte, hashSetCnt int) {
	binary.LittleEndian.PutUint32(byteArr[hashSetCountInt:hashSetCountInt+4], uint32(hashSetCnt))
}

func insertPreInts(byteArr []byte, preInts int) {
	byteArr[preambleIntsBytes] = byte(preInts & 0x3F)
}

func insertSerVer(byteArr []byte) {
	byteArr[serVerByte] = byte(serVer)
}

func insertFamilyID(byteArr []byte) {
	byteArr[familyByte] = byte(familyId)
}

func insertLgK(byteArr []byte, lgK int) {
	byteArr[lgKByte] = byte(lgK)
}

func insertLgArr(byteArr []byte, lgArr int) {
	byteArr[lgArrByte] = byte(lgArr)

}

func insertEmptyFlag(byteArr []byte, emptyFlag bool) {
	flags := byteArr[flagsByte]
	if emptyFlag {
		flags |= emptyFlagMask
	} else {
		flags &= ^uint8(emptyFlagMask)
	}
	byteArr[flagsByte] = flags
}

func insertOooFlag(byteArr []byte, oooFlag bool) {
	flags := byteArr[flagsByte]
	if oooFlag {
		flags |= outOfOrderFlagMask
	} else {
		flags &= ^uint8(outOfOrderFlagMask)
	}
	byteArr[flagsByte] = flags
}

func insertCurMode(byteArr []byte, curMode curMode) {
	mode := byteArr[modeByte] & ^uint8(curModeMask)
	mode |= uint8(curMode) & curModeMask
	byteArr[modeByte] = mode
}

func insertTgtHllType(byteArr []byte, tgtHllType TgtHllType) {
	mode := byteArr[modeByte] & ^uint8(tgtHllTypeMask)
	mode |= (uint8(tgtHllType) << 2) & tgtHllTypeMask
	byteArr[modeByte] = mode
}

func insertCompactFlag(byteArr []byte, compactFlag bool) {
	flags := byteArr[flagsByte]
	if compactFlag {
		flags |= compactFlagMask
	} else {
		flags &= ^uint8(compactFlagMask)
	}
	byteArr[flagsByte] = flags
}

func insertCurMin(byteArr []byte, curMin int) {
	byteArr[hllCurMinByte] = byte(curMin)
}

func insertHipAccum(byteArr []byte, hipAccum float64) {
	binary.LittleEndian.PutUint64(byteArr[hipAccumDouble:hipAccumDouble+8], math.Float64bits(hipAccum))
}

func insertKxQ0(byteArr []byte, kxq0 float64) {
	binary.LittleEndian.PutUint64(byteArr[kxq0Double:kxq0Double+8], math.Float64bits(kxq0))
}

func insertKxQ1(byteArr []byte, kxq1 float64) {
	binary.LittleEndian.PutUint64(byteArr[kxq1Double:kxq1Double+8], math.Float64bits(kxq1))
}

func insertNumAtCurMin(byteArr []byte, numAtCurMin int) {
	binary.LittleEndian.PutUint32(byteArr[curMinCountInt:curMinCountInt+4], uint32(numAtCurMin))
}

func insertRebuildCurMinNumKxQFlag(byteArr []byte, rebuild bool) {
	flags := byteArr[flagsByte]
	if rebuild {
		flags |= rebuildCurminNumKxqMask
	} else {
		flags &= ^uint8(rebuildCurminNumKxqMask)
	}
	byteArr[flagsByte] = flags
}

// hllArrBytes returns the size of the HLL register array for the given type, without aux space.
func hllArrBytes(tgtHllType TgtHllType, lgConfigK int) int {
	switch tgtHllType {
	case TgtHllTypeHll4:
		return 1 << (lgConfigK - 1)
	case TgtHllTypeHll6:
		return (((1 << lgConfigK) * 3) >> 2) + 1
	default:
		return 1 << lgConfigK
	}
}

// checkImageSize verifies that byteArr is large enough to hold everything its preamble
// declares. It must be called after checkPreamble.
func checkImageSize(byteArr []byte, curMode curMode) error {
	lgConfigK := extractLgK(byteArr)
	compact := extractCompactFlag(byteArr)
	var need int

	switch curMode {
	case curModeList:
		count := extractListCount(byteArr)
		if count > 1<<lgInitListSize {
			return fmt.Errorf("list count out of range: %d", count)
		}
		need = listIntArrStart + (count << 2)
	case curModeSet:
		if len(byteArr) < hashSetIntArrStart {
			return fmt.Errorf("set image too small: %d", len(byteArr))
		}
		count := extractHashSetCount(byteArr)
		if count > 1<<lgConfigK {
			return fmt.Errorf("set count out of range: %d", count)
		}
		if compact {
			need = hashSetIntArrStart + (count << 2)
			break
		}
		lgArr := extractLgArr(byteArr)
		if lgArr < lgInitSetSize || lgArr > max(lgConfigK-3, lgInitSetSize) || count > 1<<lgArr {
			return fmt.Errorf("set lgArr out of range: %d", lgArr)
		}
		need = hashSetIntArrStart + (4 << lgArr)
	default:
		if len(byteArr) < hllByteArrStart {
			return fmt.Errorf("hll image too small: %d", len(byteArr))
		}
		tgtHllType := extractTgtHllType(byteArr)
		need = hllByteArrStart + hllArrBytes(tgtHllType, lgConfigK)
		if tgtHllType != TgtHllTypeHll4 {
			break
		}
		auxCount := extractAuxCount(byteArr)
		if auxCount > 1<<lgConfigK {
			return fmt.Errorf("aux count out of range: %d", auxCount)
		}
		if compact {
			need += auxCount << 2
			break
		}
		if auxCount == 0 {
			break
		}
		lgArr := extractLgArr(byteArr)
		if lgArr < lgAuxArrInts[lgConfigK] || lgArr >= lgConfigK || auxCount > 1<<lgArr {
			return fmt.Errorf("aux lgArr out of range: %d", lgArr)
		}
		need += 4 << lgArr
	}

	if len(byteArr) < need {
		return fmt.Errorf("image too small for %s mode: %d < %d", curMode, len(byteArr), need)
	}
	return nil
}
