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
	"math"
)

// hllCoupon is the common view over the LIST and SET warm-up modes, both of which
// store raw coupons in an int array.
type hllCoupon interface {
	hllSketchStateI

	getCouponCount() int
	getLgCouponArrInts() int
	getCouponIntArr() []int
}

type hllCouponState struct {
	lgCouponArrInts int
	couponCount     int
	couponIntArr    []int
}

func newHllCouponState(lgCouponArrInts int, couponCount int, couponIntArr []int) hllCouponState {
	return hllCouponState{
		lgCouponArrInts: lgCouponArrInts,
		couponCount:     couponCount,
		couponIntArr:    couponIntArr,
	}
}

func (c *hllCouponState) getCouponCount() int {
	return c.couponCount
}

func (c *hllCouponState) getLgCouponArrInts() int {
	return c.lgCouponArrInts
}

func (c *hllCouponState) getCouponIntArr() []int {
	return c.couponIntArr
}

func (c *hllCouponState) IsEmpty() bool {
	return c.couponCount == 0
}

// Coupon modes are never out of order and never need a rebuild.
func (c *hllCouponState) isOutOfOrder() bool {
	return false
}

func (c *hllCouponState) putOutOfOrder(bool) {}

func (c *hllCouponState) isRebuildCurMinNumKxQFlag() bool {
	return false
}

func (c *hllCouponState) putRebuildCurMinNumKxQFlag(bool) {}

// getEstimate returns the estimate of a coupon sketch. Coupons carry a 26 bit address,
// so the coupon collector estimate over 2^26 cells corrects for address collisions.
func getEstimate(c hllCoupon) (float64, error) {
	couponCount := c.getCouponCount()
	est := getBitMapEstimate(1<<keyBits26, couponCount)
	return math.Max(est, float64(couponCount)), nil
}

func getLowerBound(c hllCoupon, numStdDev int) (float64, error) {
	if err := checkNumStdDev(numStdDev); err != nil {
		return 0, err
	}
	est, err := getEstimate(c)
	if err != nil {
		return 0, err
	}
	tmp := est / (1.0 + (float64(numStdDev) * couponRSE))
	return math.Max(tmp, float64(c.getCouponCount())), nil
}

func getUpperBound(c hllCoupon, numStdDev int) (float64, error) {
	if err := checkNumStdDev(numStdDev); err != nil {
		return 0, err
	}
	est, err := getEstimate(c)
	if err != nil {
		return 0, err
	}
	tmp := est / (1.0 - (float64(numStdDev) * couponRSE))
	return math.Max(tmp, float64(c.getCouponCount())), nil
}

// getBitMapEstimate is the coupon collector estimate for numBitsSet hits out of bitVectorLength cells.
func getBitMapEstimate(bitVectorLength int, numBitsSet int) float64 {
	v := float64(bitVectorLength)
	unset := float64(bitVectorLength - numBitsSet)
	if unset <= 0 {
		return v * math.Log(v/0.5)
	}
	return v * math.Log1p(float64(numBitsSet)/unset)
}

// mergeCouponTo feeds every coupon of src into dest.
func mergeCouponTo(src hllCoupon, dest HllSketch) error {
	itr := src.iterator()
	for itr.nextValid() {
		p, err := itr.getPair()
		if err != nil {
			return err
		}
		if _, err := dest.couponUpdate(p); err != nil {
			return fmt.Errorf("merging %s coupons: %w", src.GetCurMode(), err)
		}
	}
	return nil
}
