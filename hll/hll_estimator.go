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
)

// hllCompositeEstimate is the estimator used when HIP is not available, i.e. after a
// union. Below 2.5*K with unhit slots left, linear counting is used; otherwise the raw
// HLL estimate.
func hllCompositeEstimate(a *hllArrayImpl) (float64, error) {
	lgConfigK := a.lgConfigK
	configK := float64(uint64(1) << lgConfigK)
	rawEst := getHllRawEstimate(lgConfigK, a.kxq0+a.kxq1)
	if rawEst > 2.5*configK {
		return rawEst, nil
	}
	if a.curMin != 0 || a.numAtCurMin == 0 {
		return rawEst, nil
	}
	return getHllBitMapEstimate(lgConfigK, a.curMin, a.numAtCurMin), nil
}

// getHllBitMapEstimate is the estimator when N is small, roughly less than k log(k).
func getHllBitMapEstimate(lgConfigK int, curMin int, numAtCurMin int) float64 {
	configK := 1 << lgConfigK
	numUnhitBuckets := 0
	if curMin == 0 {
		numUnhitBuckets = numAtCurMin
	}
	return getBitMapEstimate(configK, configK-numUnhitBuckets)
}

// getHllRawEstimate is the algorithm from Flajolet's, et al, 2007 HLL paper, Fig 3.
func getHllRawEstimate(lgConfigK int, kxqSum float64) float64 {
	configK := float64(uint64(1) << lgConfigK)
	var correctionFactor float64
	switch lgConfigK {
	case 4:
		correctionFactor = 0.673
	case 5:
		correctionFactor = 0.697
	case 6:
		correctionFactor = 0.709
	default:
		correctionFactor = 0.7213 / (1.0 + (1.079 / configK))
	}
	return (correctionFactor * configK * configK) / kxqSum
}

func hllUpperBound(a *hllArrayImpl, numStdDev int) (float64, error) {
	estimate, err := a.GetEstimate()
	if err != nil {
		return 0, err
	}
	relErr, err := getRelErrAllK(a.oooFlag, a.lgConfigK, numStdDev)
	if err != nil {
		return 0, err
	}
	return estimate / (1.0 - relErr), nil
}

func hllLowerBound(a *hllArrayImpl, numStdDev int) (float64, error) {
	numNonZeros := float64(uint64(1) << a.lgConfigK)
	if a.curMin == 0 {
		numNonZeros -= float64(a.numAtCurMin)
	}
	estimate, err := a.GetEstimate()
	if err != nil {
		return 0, err
	}
	relErr, err := getRelErrAllK(a.oooFlag, a.lgConfigK, numStdDev)
	if err != nil {
		return 0, err
	}
	return math.Max(estimate/(1.0+relErr), numNonZeros), nil
}

// getRelErrAllK returns the relative error for numStdDev standard deviations: the HIP
// factor sqrt(ln 2) for in-order sketches, sqrt(3 ln 2 - 1) once out of order.
func getRelErrAllK(oooFlag bool, lgConfigK int, numStdDev int) (float64, error) {
	lgK, err := checkLgK(lgConfigK)
	if err != nil {
		return 0, err
	}
	rseFactor := hllHipRSEFActor
	if oooFlag {
		rseFactor = hllNonHipRSEFactor
	}
	return (float64(numStdDev) * rseFactor) / math.Sqrt(float64(uint64(1)<<lgK)), nil
}
