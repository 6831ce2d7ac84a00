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
	"strings"
)

// String returns a human-readable summary of this sketch as a string.
// If printSlots is true, every non-empty slot (or coupon) is listed after the summary.
func (h *hllSketchState) String(printSlots bool) string {
	est, _ := h.GetEstimate()
	lb, _ := h.GetLowerBound(1)
	ub, _ := h.GetUpperBound(1)

	var result strings.Builder
	result.WriteString("### HLL sketch summary:")
	result.WriteString("\n")
	result.WriteString(fmt.Sprintf("  Log Config K   : %d", h.GetLgConfigK()))
	result.WriteString("\n")
	result.WriteString(fmt.Sprintf("  Hll Target     : %s", h.GetTgtHllType()))
	result.WriteString("\n")
	result.WriteString(fmt.Sprintf("  Current Mode   : %s", h.GetCurMode()))
	result.WriteString("\n")
	result.WriteString(fmt.Sprintf("  LB             : %f", lb))
	result.WriteString("\n")
	result.WriteString(fmt.Sprintf("  Estimate       : %f", est))
	result.WriteString("\n")
	result.WriteString(fmt.Sprintf("  UB             : %f", ub))
	result.WriteString("\n")
	result.WriteString(fmt.Sprintf("  OutOfOrder flag: %t", h.sketch.isOutOfOrder()))
	result.WriteString("\n")

	switch sk := h.sketch.(type) {
	case hllArray:
		result.WriteString(fmt.Sprintf("  CurMin         : %d", sk.getCurMin()))
		result.WriteString("\n")
		result.WriteString(fmt.Sprintf("  NumAtCurMin    : %d", sk.getNumAtCurMin()))
		result.WriteString("\n")
		result.WriteString(fmt.Sprintf("  HipAccum       : %f", sk.getHipAccum()))
		result.WriteString("\n")
		result.WriteString(fmt.Sprintf("  KxQ0           : %f", sk.getKxQ0()))
		result.WriteString("\n")
		result.WriteString(fmt.Sprintf("  KxQ1           : %f", sk.getKxQ1()))
		result.WriteString("\n")
		result.WriteString(fmt.Sprintf("  Rebuild KxQ Flg: %t", sk.isRebuildCurMinNumKxQFlag()))
		result.WriteString("\n")
	case hllCoupon:
		result.WriteString(fmt.Sprintf("  Coupon count   : %d", sk.getCouponCount()))
		result.WriteString("\n")
	}
	result.WriteString("### End HLL sketch summary")
	result.WriteString("\n")

	if printSlots {
		writeSlots(&result, h.sketch)
	}
	return result.String()
}

func writeSlots(result *strings.Builder, sketch hllSketchStateI) {
	_, isArray := sketch.(hllArray)
	if isArray {
		result.WriteString("### HLL SLOTS")
	} else {
		result.WriteString("### COUPONS")
	}
	result.WriteString("\n")

	itr := sketch.iterator()
	for itr.nextValid() {
		v, err := itr.getValue()
		if err != nil {
			result.WriteString(fmt.Sprintf("error: %v", err))
			result.WriteString("\n")
			break
		}
		if isArray {
			result.WriteString(fmt.Sprintf("%d\t%d", itr.getSlot(), v))
		} else {
			result.WriteString(fmt.Sprintf("%d\t%d\t%d", itr.getIndex(), itr.getKey(), v))
		}
		result.WriteString("\n")
	}

	if aux := auxOf(sketch); aux != nil {
		result.WriteString("### AUX")
		result.WriteString("\n")
		auxItr := aux.iterator()
		for auxItr.nextValid() {
			v, _ := auxItr.getValue()
			result.WriteString(fmt.Sprintf("%d\t%d", auxItr.getSlot(), v))
			result.WriteString("\n")
		}
	}
	result.WriteString("### END")
	result.WriteString("\n")
}

func auxOf(sketch hllSketchStateI) *auxHashMap {
	if arr, ok := sketch.(hllArray); ok {
		return arr.getAuxHashMap()
	}
	return nil
}
