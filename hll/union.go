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

// Union merges HLL sketches of any lgK and type. The internal gadget is always an
// HLL_8 sketch whose lgK never exceeds the lgMaxK the union was built with.
type Union interface {
	UpdateUInt64(datum uint64) error
	UpdateInt64(datum int64) error
	UpdateSlice(datum []byte) error
	UpdateString(datum string) error
	Reset() error

	GetCompositeEstimate() (float64, error)
	GetEstimate() (float64, error)
	GetLowerBound(numStdDev int) (float64, error)
	GetUpperBound(numStdDev int) (float64, error)
	IsEmpty() bool

	GetLgConfigK() int
	GetTgtHllType() TgtHllType
	GetCurMode() curMode

	GetUpdatableSerializationBytes() int
	ToCompactSlice() ([]byte, error)
	ToUpdatableSlice() ([]byte, error)
	String(printSlots bool) string

	// UpdateSketch folds sketch into the union. The sketch is not modified.
	UpdateSketch(sketch HllSketch) error

	// GetResult returns a copy of the union state as a sketch of the given type.
	GetResult(tgtHllType TgtHllType) (HllSketch, error)
}

type unionImpl struct {
	lgMaxK int
	gadget *hllSketchState
}

func NewUnionWithDefault() (Union, error) {
	return NewUnion(defaultLgK)
}

func NewUnion(lgMaxK int) (Union, error) {
	gadget, err := newGadget(lgMaxK)
	if err != nil {
		return nil, err
	}
	return &unionImpl{
		lgMaxK: lgMaxK,
		gadget: gadget,
	}, nil
}

func newGadget(lgMaxK int) (*hllSketchState, error) {
	lgK, err := checkLgK(lgMaxK)
	if err != nil {
		return nil, err
	}
	return newHllSketchState(newCouponList(lgK, TgtHllTypeHll8)), nil
}

// NewUnionFromSlice builds a union whose lgMaxK is the lgK of the serialized sketch and
// whose state is that sketch.
func NewUnionFromSlice(byteArray []byte) (Union, error) {
	sk, err := NewHllSketchFromSlice(byteArray, false)
	if err != nil {
		return nil, err
	}
	union, err := NewUnion(sk.GetLgConfigK())
	if err != nil {
		return nil, err
	}
	return union, union.UpdateSketch(sk)
}

func (u *unionImpl) GetCompositeEstimate() (float64, error) {
	if err := checkRebuildCurMinNumKxQ(u.gadget); err != nil {
		return 0, err
	}
	return u.gadget.GetCompositeEstimate()
}

func (u *unionImpl) GetEstimate() (float64, error) {
	if err := checkRebuildCurMinNumKxQ(u.gadget); err != nil {
		return 0, err
	}
	return u.gadget.GetEstimate()
}

func (u *unionImpl) GetUpperBound(numStdDev int) (float64, error) {
	if err := checkRebuildCurMinNumKxQ(u.gadget); err != nil {
		return 0, err
	}
	return u.gadget.GetUpperBound(numStdDev)
}

func (u *unionImpl) GetLowerBound(numStdDev int) (float64, error) {
	if err := checkRebuildCurMinNumKxQ(u.gadget); err != nil {
		return 0, err
	}
	return u.gadget.GetLowerBound(numStdDev)
}

func (u *unionImpl) UpdateUInt64(datum uint64) error {
	return u.gadget.UpdateUInt64(datum)
}

func (u *unionImpl) UpdateInt64(datum int64) error {
	return u.gadget.UpdateInt64(datum)
}

func (u *unionImpl) UpdateSlice(datum []byte) error {
	return u.gadget.UpdateSlice(datum)
}

func (u *unionImpl) UpdateString(datum string) error {
	return u.gadget.UpdateString(datum)
}

func (u *unionImpl) UpdateSketch(sketch HllSketch) error {
	source, ok := sketch.(*hllSketchState)
	if !ok || source == nil {
		return fmt.Errorf("unsupported sketch: %T", sketch)
	}
	gadget, err := u.unionImpl(source)
	if err != nil {
		return err
	}
	u.gadget.sketch = gadget
	return nil
}

func (u *unionImpl) GetResult(tgtHllType TgtHllType) (HllSketch, error) {
	if err := checkRebuildCurMinNumKxQ(u.gadget); err != nil {
		return nil, err
	}
	return u.gadget.CopyAs(tgtHllType)
}

func (u *unionImpl) GetLgConfigK() int {
	return u.gadget.GetLgConfigK()
}

func (u *unionImpl) GetTgtHllType() TgtHllType {
	return u.gadget.GetTgtHllType()
}

func (u *unionImpl) GetCurMode() curMode {
	return u.gadget.GetCurMode()
}

func (u *unionImpl) IsEmpty() bool {
	return u.gadget.IsEmpty()
}

func (u *unionImpl) ToCompactSlice() ([]byte, error) {
	if err := checkRebuildCurMinNumKxQ(u.gadget); err != nil {
		return nil, err
	}
	return u.gadget.ToCompactSlice()
}

func (u *unionImpl) ToUpdatableSlice() ([]byte, error) {
	if err := checkRebuildCurMinNumKxQ(u.gadget); err != nil {
		return nil, err
	}
	return u.gadget.ToUpdatableSlice()
}

func (u *unionImpl) GetUpdatableSerializationBytes() int {
	return u.gadget.GetUpdatableSerializationBytes()
}

func (u *unionImpl) String(printSlots bool) string {
	if err := checkRebuildCurMinNumKxQ(u.gadget); err != nil {
		return err.Error()
	}
	return u.gadget.String(printSlots)
}

func (u *unionImpl) Reset() error {
	gadget, err := newGadget(u.lgMaxK)
	if err != nil {
		return err
	}
	u.gadget = gadget
	return nil
}

// unionImpl returns the gadget state after folding in source. The switch key is built
// from: bit 4 set when srcLgK > lgMaxK, bit 3 set when srcLgK < gadget lgK, bits 1-2
// the gadget mode (3 when empty).
func (u *unionImpl) unionImpl(source *hllSketchState) (hllSketchStateI, error) {
	gadget := u.gadget
	if gadget.GetTgtHllType() != TgtHllTypeHll8 {
		return nil, fmt.Errorf("gadget must be HLL_8")
	}
	if source.IsEmpty() {
		return gadget.sketch, nil
	}

	srcMode := source.GetCurMode()
	srcLgK := source.GetLgConfigK()
	gdgtLgK := gadget.GetLgConfigK()
	gdgtEmpty := gadget.IsEmpty()

	if srcMode != curModeHll {
		if srcMode == curModeSet && gdgtEmpty && srcLgK == gdgtLgK {
			return source.sketch.copyAs(TgtHllTypeHll8)
		}
		// coupon updates maintain KxQ incrementally, so they need fresh registers
		if err := checkRebuildCurMinNumKxQ(gadget); err != nil {
			return nil, err
		}
		if err := source.mergeTo(gadget); err != nil {
			return nil, err
		}
		if !gdgtEmpty {
			markMerged(gadget.sketch)
		}
		return gadget.sketch, nil
	}

	// Hereafter, the source is in HLL mode.
	srcArr, ok := source.sketch.(hllArray)
	if !ok {
		return nil, fmt.Errorf("source in HLL mode is not an HLL array: %T", source.sketch)
	}

	bits12 := int(gadget.GetCurMode()) << 1
	if gdgtEmpty {
		bits12 = 3 << 1
	}
	bit3 := 0
	if srcLgK < gdgtLgK {
		bit3 = 8
	}
	bit4 := 0
	if srcLgK > u.lgMaxK {
		bit4 = 16
	}

	switch bit4 | bit3 | bits12 {
	case 0, 8, 2, 10:
		// gadget LIST or SET, src <= max: copy src, reverse merge the gadget coupons into it
		srcHll8, err := srcArr.copyAs(TgtHllTypeHll8)
		if err != nil {
			return nil, err
		}
		return reverseMerge(gadget, srcHll8)
	case 16, 18:
		// gadget LIST or SET, src > max: downsample src to lgMaxK, reverse merge
		srcHll8, err := downsample(srcArr, u.lgMaxK)
		if err != nil {
			return nil, err
		}
		return reverseMerge(gadget, srcHll8)
	case 4, 20:
		// gadget HLL, src >= gadget: forward merge with folding
		gdgtArr, ok := gadget.sketch.(*hll8ArrayImpl)
		if !ok {
			return nil, fmt.Errorf("gadget in HLL mode is not HLL_8: %T", gadget.sketch)
		}
		if err := mergeHlltoHLLmode(srcArr, gdgtArr); err != nil {
			return nil, err
		}
		gdgtArr.putOutOfOrder(true)
		return gdgtArr, nil
	case 12:
		// gadget HLL, src < gadget: downsample the gadget to srcLgK, then forward merge
		gdgtArr, ok := gadget.sketch.(hllArray)
		if !ok {
			return nil, fmt.Errorf("gadget in HLL mode is not an HLL array: %T", gadget.sketch)
		}
		gdgtHll8, err := downsample(gdgtArr, srcLgK)
		if err != nil {
			return nil, err
		}
		if err := mergeHlltoHLLmode(srcArr, gdgtHll8); err != nil {
			return nil, err
		}
		gdgtHll8.putOutOfOrder(true)
		return gdgtHll8, nil
	case 6, 14:
		// gadget empty, src <= max: replace the gadget with a copy of src
		return srcArr.copyAs(TgtHllTypeHll8)
	case 22:
		// gadget empty, src > max: replace the gadget with src downsampled to lgMaxK
		return downsample(srcArr, u.lgMaxK)
	default:
		return nil, fmt.Errorf("impossible union case: %d", bit4|bit3|bits12)
	}
}

// reverseMerge feeds the coupons of a LIST or SET gadget into tgt and returns the result.
func reverseMerge(gadget *hllSketchState, tgt hllSketchStateI) (hllSketchStateI, error) {
	dest := newHllSketchState(tgt)
	if err := gadget.mergeTo(dest); err != nil {
		return nil, err
	}
	markMerged(dest.sketch)
	return dest.sketch, nil
}

// markMerged flags an HLL gadget that absorbed coupons from more than one source. HIP
// depends on arrival order, so the estimate falls back to the registers, and KxQ is
// recomputed in slot order.
func markMerged(sk hllSketchStateI) {
	if sk.GetCurMode() != curModeHll {
		return
	}
	sk.putOutOfOrder(true)
	sk.putRebuildCurMinNumKxQFlag(true)
}

// downsample folds candidate into a new HLL_8 array of tgtLgK, carrying its HIP
// accumulator and out-of-order flag.
func downsample(candidate hllArray, tgtLgK int) (*hll8ArrayImpl, error) {
	tgtHllArr := newHll8Array(tgtLgK)
	itr := candidate.iterator()
	for itr.nextValid() {
		p, err := itr.getPair()
		if err != nil {
			return nil, err
		}
		if _, err := tgtHllArr.couponUpdate(p); err != nil {
			return nil, err
		}
	}
	tgtHllArr.putHipAccum(candidate.getHipAccum())
	tgtHllArr.putOutOfOrder(candidate.isOutOfOrder())
	tgtHllArr.putRebuildCurMinNumKxQFlag(false)
	return tgtHllArr, nil
}

// mergeHlltoHLLmode takes the slot-wise max of src into tgt, folding src slots onto tgt
// slots when src has the larger lgK. KxQ, curMin and numAtCurMin are left stale and
// flagged for rebuild.
func mergeHlltoHLLmode(src hllArray, tgt *hll8ArrayImpl) error {
	srcLgK := src.GetLgConfigK()
	if srcLgK < tgt.lgConfigK {
		return fmt.Errorf("cannot merge lgK %d into larger lgK %d", srcLgK, tgt.lgConfigK)
	}

	if src8, ok := src.(*hll8ArrayImpl); ok && srcLgK == tgt.lgConfigK {
		tgtArr := tgt.hllByteArr
		_ = tgtArr[len(src8.hllByteArr)-1]
		for i, b := range src8.hllByteArr {
			if v := b & valMask6; v > tgtArr[i]&valMask6 {
				tgtArr[i] = v
			}
		}
	} else {
		itr := src.iterator()
		for itr.nextValid() {
			v, err := itr.getValue()
			if err != nil {
				return err
			}
			tgt.updateSlotNoKxQ(itr.getIndex()&tgt.slotNoMask, v)
		}
	}
	tgt.putRebuildCurMinNumKxQFlag(true)
	return nil
}

func checkRebuildCurMinNumKxQ(sketch *hllSketchState) error {
	hll8, ok := sketch.sketch.(*hll8ArrayImpl)
	if !ok {
		return nil
	}
	return rebuildCurMinNumKxQ(hll8)
}

// rebuildCurMinNumKxQ recomputes curMin, numAtCurMin and the KxQ registers from the
// registers when the rebuild flag is set. HipAccum is not affected.
func rebuildCurMinNumKxQ(a *hll8ArrayImpl) error {
	if !a.rebuildCurMinNumKxQ {
		return nil
	}
	curMin := 64
	numAtCurMin := 0
	kxq0 := float64(uint64(1) << a.lgConfigK)
	kxq1 := 0.0
	itr := a.iterator()
	for itr.nextAll() {
		v, err := itr.getValue()
		if err != nil {
			return err
		}
		if v > 0 {
			inv, err := internal.InvPow2(v)
			if err != nil {
				return err
			}
			if v < 32 {
				kxq0 += inv - 1.0
			} else {
				kxq1 += inv - 1.0
			}
		}
		if v > curMin {
			continue
		}
		if v < curMin {
			curMin = v
			numAtCurMin = 1
		} else {
			numAtCurMin++
		}
	}
	a.kxq0 = kxq0
	a.kxq1 = kxq1
	a.curMin = curMin
	a.numAtCurMin = numAtCurMin
	a.rebuildCurMinNumKxQ = false
	return nil
}
