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
	"slices"
)

func toHllByteArr(impl hllArray, compact bool) ([]byte, error) {
	auxBytes := 0
	if impl.GetTgtHllType() == TgtHllTypeHll4 {
		auxHashMap := impl.getAuxHashMap()
		switch {
		case auxHashMap != nil && compact:
			auxBytes = auxHashMap.getCompactSizeBytes()
		case auxHashMap != nil:
			auxBytes = auxHashMap.getUpdatableSizeBytes()
		case !compact:
			auxBytes = 4 << lgAuxArrInts[impl.GetLgConfigK()]
		}
	}
	byteArr := make([]byte, hllByteArrStart+impl.getHllByteArrBytes()+auxBytes)
	if err := insertHll(impl, byteArr, compact); err != nil {
		return nil, err
	}
	return byteArr, nil
}

// toCouponSlice serializes a LIST or SET sketch. The compact form writes the coupons
// in ascending order so that equal sketches produce equal bytes.
func toCouponSlice(impl hllCoupon, dstCompact bool) ([]byte, error) {
	srcCouponCount := impl.getCouponCount()
	dataStart := impl.getMemDataStart()
	list := impl.GetCurMode() == curModeList

	var coupons []int
	if dstCompact {
		coupons = make([]int, 0, srcCouponCount)
		itr := impl.iterator()
		for itr.nextValid() {
			p, err := itr.getPair()
			if err != nil {
				return nil, err
			}
			coupons = append(coupons, p)
		}
		if len(coupons) != srcCouponCount {
			return nil, fmt.Errorf("corruption, coupon count %d != %d", len(coupons), srcCouponCount)
		}
		if !list {
			slices.Sort(coupons)
		}
	} else {
		coupons = impl.getCouponIntArr()
	}

	byteArrOut := make([]byte, dataStart+(len(coupons)<<2))
	copyCommonListAndSet(impl, byteArrOut)
	insertCompactFlag(byteArrOut, dstCompact)
	for i, v := range coupons {
		offset := dataStart + (i << 2)
		binary.LittleEndian.PutUint32(byteArrOut[offset:offset+4], uint32(v))
	}
	if list {
		insertListCount(byteArrOut, srcCouponCount)
	} else {
		insertHashSetCount(byteArrOut, srcCouponCount)
	}
	return byteArrOut, nil
}

func copyCommonListAndSet(impl hllCoupon, dst []byte) {
	insertPreInts(dst, impl.getPreInts())
	insertSerVer(dst)
	insertFamilyID(dst)
	insertLgK(dst, impl.GetLgConfigK())
	insertLgArr(dst, impl.getLgCouponArrInts())
	insertEmptyFlag(dst, impl.IsEmpty())
	insertOooFlag(dst, impl.isOutOfOrder())
	insertCurMode(dst, impl.GetCurMode())
	insertTgtHllType(dst, impl.GetTgtHllType())
}

func insertHll(impl hllArray, dst []byte, compact bool) error {
	insertCommonHll(impl, dst, compact)
	copy(dst[hllByteArrStart:], impl.getHllByteArr())
	if impl.getAuxHashMap() == nil {
		insertAuxCount(dst, 0)
		return nil
	}
	return insertAux(impl, dst, compact)
}

func insertCommonHll(impl hllArray, dst []byte, compact bool) {
	insertPreInts(dst, impl.getPreInts())
	insertSerVer(dst)
	insertFamilyID(dst)
	insertLgK(dst, impl.GetLgConfigK())
	insertEmptyFlag(dst, impl.IsEmpty())
	insertCompactFlag(dst, compact)
	insertOooFlag(dst, impl.isOutOfOrder())
	insertCurMin(dst, impl.getCurMin())
	insertCurMode(dst, impl.GetCurMode())
	insertTgtHllType(dst, impl.GetTgtHllType())
	insertHipAccum(dst, impl.getHipAccum())
	insertKxQ0(dst, impl.getKxQ0())
	insertKxQ1(dst, impl.getKxQ1())
	insertNumAtCurMin(dst, impl.getNumAtCurMin())
	insertRebuildCurMinNumKxQFlag(dst, impl.isRebuildCurMinNumKxQFlag())
}

// insertAux writes the HLL_4 exceptions: sorted pairs when compact, the raw table otherwise.
func insertAux(impl hllArray, dst []byte, compact bool) error {
	auxHashMap := impl.getAuxHashMap()
	auxCount := auxHashMap.getAuxCount()
	insertAuxCount(dst, auxCount)
	insertLgArr(dst, auxHashMap.getLgAuxArrInts())
	auxStart := impl.getAuxStart()

	pairs := auxHashMap.getAuxIntArr()
	if compact {
		pairs = make([]int, 0, auxCount)
		itr := auxHashMap.iterator()
		for itr.nextValid() {
			p, err := itr.getPair()
			if err != nil {
				return err
			}
			pairs = append(pairs, p)
		}
		if len(pairs) != auxCount {
			return fmt.Errorf("corruption, should not happen: %d != %d", len(pairs), auxCount)
		}
		slices.SortFunc(pairs, func(a, b int) int {
			return getPairLow26(a) - getPairLow26(b)
		})
	}
	for i, v := range pairs {
		offset := auxStart + (i << 2)
		binary.LittleEndian.PutUint32(dst[offset:offset+4], uint32(v))
	}
	return nil
}
