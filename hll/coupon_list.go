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
)

// couponListImpl is the LIST warm-up mode: up to 8 coupons kept in arrival order.
type couponListImpl struct {
	hllSketchConfig
	hllCouponState
}

func (c *couponListImpl) GetCompositeEstimate() (float64, error) {
	return getEstimate(c)
}

func (c *couponListImpl) GetEstimate() (float64, error) {
	return getEstimate(c)
}

func (c *couponListImpl) GetHipEstimate() (float64, error) {
	return getEstimate(c)
}

func (c *couponListImpl) GetLowerBound(numStdDev int) (float64, error) {
	return getLowerBound(c, numStdDev)
}

func (c *couponListImpl) GetUpperBound(numStdDev int) (float64, error) {
	return getUpperBound(c, numStdDev)
}

func (c *couponListImpl) GetUpdatableSerializationBytes() int {
	return c.getMemDataStart() + (4 << c.getLgCouponArrInts())
}

func (c *couponListImpl) ToCompactSlice() ([]byte, error) {
	return toCouponSlice(c, true)
}

func (c *couponListImpl) ToUpdatableSlice() ([]byte, error) {
	return toCouponSlice(c, false)
}

// couponUpdate stores the coupon in the first empty cell unless it is already present.
// A full list is promoted: straight to HLL for small K, to SET otherwise.
func (c *couponListImpl) couponUpdate(coupon int) (hllSketchStateI, error) {
	length := 1 << c.lgCouponArrInts
	for i := 0; i < length; i++ {
		couponAtIdx := c.couponIntArr[i]
		if couponAtIdx == coupon {
			return c, nil
		}
		if couponAtIdx != empty {
			continue
		}
		c.couponIntArr[i] = coupon
		c.couponCount++
		if c.couponCount < length {
			return c, nil
		}
		if c.lgConfigK < 8 {
			return promoteCouponsToHll(c)
		}
		return promoteListToSet(c)
	}
	return nil, fmt.Errorf("coupon list invalid: no empties and no duplicates")
}

func (c *couponListImpl) iterator() pairIterator {
	return newIntArrayPairIterator(c.couponIntArr, c.lgConfigK)
}

func (c *couponListImpl) getMemDataStart() int {
	return listIntArrStart
}

func (c *couponListImpl) getPreInts() int {
	return listPreInts
}

func (c *couponListImpl) copyAs(tgtHllType TgtHllType) (hllSketchStateI, error) {
	arr := make([]int, len(c.couponIntArr))
	copy(arr, c.couponIntArr)
	return &couponListImpl{
		hllSketchConfig: newHllSketchConfig(c.lgConfigK, tgtHllType, curModeList),
		hllCouponState:  newHllCouponState(c.lgCouponArrInts, c.couponCount, arr),
	}, nil
}

func (c *couponListImpl) copy() (hllSketchStateI, error) {
	return c.copyAs(c.tgtHllType)
}

func (c *couponListImpl) mergeTo(dest HllSketch) error {
	return mergeCouponTo(c, dest)
}

// promoteCouponsToHll moves every coupon of src into a new HLL array seeded with the
// coupon estimate as its HIP accumulator.
func promoteCouponsToHll(src hllCoupon) (hllSketchStateI, error) {
	tgtHllArr, err := newHllArray(src.GetLgConfigK(), src.GetTgtHllType())
	if err != nil {
		return nil, err
	}
	tgtHllArr.putKxQ0(float64(uint64(1) << src.GetLgConfigK()))

	srcIter := src.iterator()
	for srcIter.nextValid() {
		p, err := srcIter.getPair()
		if err != nil {
			return nil, err
		}
		if _, err := tgtHllArr.couponUpdate(p); err != nil {
			return nil, err
		}
	}
	est, err := src.GetEstimate()
	if err != nil {
		return nil, err
	}
	tgtHllArr.putHipAccum(est)
	tgtHllArr.putOutOfOrder(false)
	return tgtHllArr, nil
}

func promoteListToSet(c *couponListImpl) (hllSketchStateI, error) {
	chSet, err := newCouponHashSet(c.lgConfigK, c.tgtHllType)
	if err != nil {
		return nil, err
	}
	var sk hllSketchStateI = chSet
	for i := 0; i < c.couponCount; i++ {
		if sk, err = sk.couponUpdate(c.couponIntArr[i]); err != nil {
			return nil, err
		}
	}
	return sk, nil
}

func newCouponList(lgConfigK int, tgtHllType TgtHllType) *couponListImpl {
	return &couponListImpl{
		hllSketchConfig: newHllSketchConfig(lgConfigK, tgtHllType, curModeList),
		hllCouponState:  newHllCouponState(lgInitListSize, 0, make([]int, 1<<lgInitListSize)),
	}
}

// deserializeCouponList rebuilds a LIST sketch from a validated image. Coupons are
// re-inserted, so duplicates in the image are dropped.
func deserializeCouponList(byteArray []byte) (hllSketchStateI, error) {
	lgConfigK := extractLgK(byteArray)
	tgtHllType := extractTgtHllType(byteArray)
	couponCount := extractListCount(byteArray)

	var (
		sk  hllSketchStateI = newCouponList(lgConfigK, tgtHllType)
		err error
	)
	for it := 0; it < couponCount; it++ {
		offset := listIntArrStart + (it << 2)
		cp := int(binary.LittleEndian.Uint32(byteArray[offset : offset+4]))
		if getPairValue(cp) == empty {
			return nil, fmt.Errorf("invalid coupon at index %d: %d", it, cp)
		}
		if sk, err = sk.couponUpdate(cp); err != nil {
			return nil, err
		}
	}
	return sk, nil
}
