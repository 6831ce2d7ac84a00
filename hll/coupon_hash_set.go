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

// couponHashSetImpl is the SET warm-up mode: an open addressing table of coupons that
// grows until it reaches K/8 entries and is then promoted to an HLL array.
type couponHashSetImpl struct {
	hllSketchConfig
	hllCouponState
}

func (c *couponHashSetImpl) GetCompositeEstimate() (float64, error) {
	return getEstimate(c)
}

func (c *couponHashSetImpl) GetEstimate() (float64, error) {
	return getEstimate(c)
}

func (c *couponHashSetImpl) GetHipEstimate() (float64, error) {
	return getEstimate(c)
}

func (c *couponHashSetImpl) GetLowerBound(numStdDev int) (float64, error) {
	return getLowerBound(c, numStdDev)
}

func (c *couponHashSetImpl) GetUpperBound(numStdDev int) (float64, error) {
	return getUpperBound(c, numStdDev)
}

func (c *couponHashSetImpl) GetUpdatableSerializationBytes() int {
	return c.getMemDataStart() + (4 << c.getLgCouponArrInts())
}

func (c *couponHashSetImpl) ToCompactSlice() ([]byte, error) {
	return toCouponSlice(c, true)
}

func (c *couponHashSetImpl) ToUpdatableSlice() ([]byte, error) {
	return toCouponSlice(c, false)
}

func (c *couponHashSetImpl) couponUpdate(coupon int) (hllSketchStateI, error) {
	index, err := findCoupon(c.couponIntArr, c.lgCouponArrInts, coupon)
	if err != nil {
		return nil, err
	}
	if index >= 0 {
		return c, nil //duplicate
	}
	c.couponIntArr[^index] = coupon
	c.couponCount++
	promote, err := c.checkGrowOrPromote()
	if err != nil {
		return nil, err
	}
	if promote {
		return promoteCouponsToHll(c)
	}
	return c, nil
}

func (c *couponHashSetImpl) iterator() pairIterator {
	return newIntArrayPairIterator(c.couponIntArr, c.lgConfigK)
}

func (c *couponHashSetImpl) getMemDataStart() int {
	return hashSetIntArrStart
}

func (c *couponHashSetImpl) getPreInts() int {
	return hashSetPreInts
}

func (c *couponHashSetImpl) copyAs(tgtHllType TgtHllType) (hllSketchStateI, error) {
	arr := make([]int, len(c.couponIntArr))
	copy(arr, c.couponIntArr)
	return &couponHashSetImpl{
		hllSketchConfig: newHllSketchConfig(c.lgConfigK, tgtHllType, curModeSet),
		hllCouponState:  newHllCouponState(c.lgCouponArrInts, c.couponCount, arr),
	}, nil
}

func (c *couponHashSetImpl) copy() (hllSketchStateI, error) {
	return c.copyAs(c.tgtHllType)
}

func (c *couponHashSetImpl) mergeTo(dest HllSketch) error {
	return mergeCouponTo(c, dest)
}

// checkGrowOrPromote doubles the table past 3/4 load, or reports that the set must be
// promoted once the table is already K/8 ints.
func (c *couponHashSetImpl) checkGrowOrPromote() (bool, error) {
	if (resizeDenom * c.couponCount) <= (resizeNumber * (1 << c.lgCouponArrInts)) {
		return false, nil
	}
	if c.lgCouponArrInts >= (c.lgConfigK - 3) {
		return true, nil
	}
	c.lgCouponArrInts++
	arr, err := growHashSet(c.couponIntArr, c.lgCouponArrInts)
	if err != nil {
		return false, err
	}
	c.couponIntArr = arr
	return false, nil
}

func growHashSet(couponIntArr []int, tgtLgCoupArrSize int) ([]int, error) {
	tgtCouponIntArr := make([]int, 1<<tgtLgCoupArrSize)
	for _, fetched := range couponIntArr {
		if fetched == empty {
			continue
		}
		idx, err := findCoupon(tgtCouponIntArr, tgtLgCoupArrSize, fetched)
		if err != nil {
			return nil, err
		}
		if idx >= 0 {
			return nil, fmt.Errorf("growHashSet, found duplicate")
		}
		tgtCouponIntArr[^idx] = fetched
	}
	return tgtCouponIntArr, nil
}

// findCoupon probes the table for coupon. It returns the index of a duplicate, or the
// one's complement of the first empty index, or an error if the probe wrapped around.
func findCoupon(array []int, lgArrInts int, coupon int) (int, error) {
	arrMask := len(array) - 1
	probe := coupon & arrMask
	loopIndex := probe

	for {
		couponAtIdx := array[probe]
		if couponAtIdx == empty {
			return ^probe, nil
		}
		if coupon == couponAtIdx {
			return probe, nil
		}
		stride := ((coupon & keyMask26) >> lgArrInts) | 1
		probe = (probe + stride) & arrMask
		if probe == loopIndex {
			return 0, fmt.Errorf("key not found and no empty slots")
		}
	}
}

func newCouponHashSet(lgConfigK int, tgtHllType TgtHllType) (*couponHashSetImpl, error) {
	if lgConfigK <= 7 {
		return nil, fmt.Errorf("lgConfigK must be > 7 for SET mode: %d", lgConfigK)
	}
	return &couponHashSetImpl{
		hllSketchConfig: newHllSketchConfig(lgConfigK, tgtHllType, curModeSet),
		hllCouponState:  newHllCouponState(lgInitSetSize, 0, make([]int, 1<<lgInitSetSize)),
	}, nil
}

// deserializeCouponHashSet rebuilds a SET sketch from a validated image by re-inserting
// every coupon, compact or not, so the table layout never comes from the caller.
func deserializeCouponHashSet(byteArray []byte) (hllSketchStateI, error) {
	lgConfigK := extractLgK(byteArray)
	tgtHllType := extractTgtHllType(byteArray)

	set, err := newCouponHashSet(lgConfigK, tgtHllType)
	if err != nil {
		return nil, err
	}

	n := extractHashSetCount(byteArray)
	if !extractCompactFlag(byteArray) {
		n = 1 << extractLgArr(byteArray)
	}

	var sk hllSketchStateI = set
	for it := 0; it < n; it++ {
		offset := hashSetIntArrStart + (it << 2)
		cp := int(binary.LittleEndian.Uint32(byteArray[offset : offset+4]))
		if cp == empty {
			continue
		}
		if getPairValue(cp) == empty {
			return nil, fmt.Errorf("invalid coupon at index %d: %d", it, cp)
		}
		if sk, err = sk.couponUpdate(cp); err != nil {
			return nil, err
		}
	}
	return sk, nil
}
