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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCouponList_DuplicatesAndOrder(t *testing.T) {
	list := newCouponList(8, TgtHllTypeHll4)
	coupons := []int{pair(5, 3), pair(1, 2), pair(5, 3), pair(9, 1)}
	var sk hllSketchStateI = list
	for _, c := range coupons {
		var err error
		sk, err = sk.couponUpdate(c)
		require.NoError(t, err)
	}
	assert.Same(t, list, sk)
	assert.Equal(t, 3, list.getCouponCount())
	assert.Equal(t, []int{pair(5, 3), pair(1, 2), pair(9, 1)}, list.getCouponIntArr()[:3])

	compact, err := list.ToCompactSlice()
	require.NoError(t, err)
	assert.Len(t, compact, listIntArrStart+3*4)
	decoded, err := deserializeCouponList(compact)
	require.NoError(t, err)
	assert.Equal(t, list.getCouponIntArr(), decoded.(*couponListImpl).getCouponIntArr())
}

func TestCouponList_CopyIsIndependent(t *testing.T) {
	list := newCouponList(12, TgtHllTypeHll6)
	_, err := list.couponUpdate(pair(7, 4))
	require.NoError(t, err)

	cp, err := list.copyAs(TgtHllTypeHll8)
	require.NoError(t, err)
	assert.Equal(t, TgtHllTypeHll8, cp.GetTgtHllType())
	_, err = cp.couponUpdate(pair(8, 4))
	require.NoError(t, err)

	assert.Equal(t, 1, list.getCouponCount())
	assert.Equal(t, 2, cp.(*couponListImpl).getCouponCount())
}

func TestCouponHashSet_GrowsThenPromotes(t *testing.T) {
	_, err := newCouponHashSet(7, TgtHllTypeHll4)
	assert.Error(t, err)

	set, err := newCouponHashSet(10, TgtHllTypeHll4)
	require.NoError(t, err)
	assert.Equal(t, lgInitSetSize, set.getLgCouponArrInts())

	var sk hllSketchStateI = set
	for i := 1; i <= 96; i++ {
		sk, err = sk.couponUpdate(pair(i, 1+i%50))
		require.NoError(t, err)
	}
	assert.Equal(t, curModeSet, sk.GetCurMode())
	assert.Equal(t, 7, set.getLgCouponArrInts())
	for i := 1; i <= 96; i++ {
		idx, err := findCoupon(set.getCouponIntArr(), set.getLgCouponArrInts(), pair(i, 1+i%50))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, idx, 0)
	}

	sk, err = sk.couponUpdate(pair(97, 3))
	require.NoError(t, err)
	assert.Equal(t, curModeHll, sk.GetCurMode())
	assert.Equal(t, TgtHllTypeHll4, sk.GetTgtHllType())
}

func TestCouponHashSet_FindCouponOnFullTable(t *testing.T) {
	full := make([]int, 1<<lgInitSetSize)
	for i := range full {
		full[i] = pair(i, 1)
	}
	_, err := findCoupon(full, lgInitSetSize, pair(1000, 1))
	assert.Error(t, err)
}

func TestCoupon_Estimates(t *testing.T) {
	assert.Equal(t, 0.0, getBitMapEstimate(1024, 0))
	assert.InDelta(t, 1024*math.Log(2), getBitMapEstimate(1024, 512), 1e-9)
	assert.InDelta(t, 1024*math.Log(2048), getBitMapEstimate(1024, 1024), 1e-9)

	set, err := newCouponHashSet(12, TgtHllTypeHll8)
	require.NoError(t, err)
	var sk hllSketchStateI = set
	for i := 1; i <= 200; i++ {
		sk, err = sk.couponUpdate(pair(i*131, 1+i%30))
		require.NoError(t, err)
	}
	est, err := sk.GetEstimate()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, est, 200.0)
	assert.InDelta(t, 200.0, est, 0.01)

	for numStdDev := 1; numStdDev <= 3; numStdDev++ {
		lb, err := sk.GetLowerBound(numStdDev)
		require.NoError(t, err)
		ub, err := sk.GetUpperBound(numStdDev)
		require.NoError(t, err)
		assert.Equal(t, 200.0, lb)
		assert.Greater(t, ub, est)
	}
	_, err = sk.GetUpperBound(4)
	assert.Error(t, err)
}
