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

// Package hll is dedicated to streaming algorithms that enable estimation of the
// cardinality of a stream of items.
//
// HllSketch and Union are the public facing types of this implementation of Phillipe
// Flajolet's HyperLogLog algorithm with the HIP estimator and the compact binary
// format shared with the other DataSketches libraries.
package hll

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/datasketches-ext/hllagg/internal"
	"github.com/twmb/murmur3"
)

// ErrInvalidImage is wrapped by every error returned while decoding a serialized sketch.
var ErrInvalidImage = errors.New("hll: invalid sketch image")

type HllSketch interface {
	// Copy returns a clone of this sketch.
	Copy() (HllSketch, error)

	// CopyAs returns a clone of this sketch with the specified TgtHllType.
	CopyAs(tgtHllType TgtHllType) (HllSketch, error)

	// GetCompositeEstimate is less accurate than GetEstimate and is used automatically
	// once the sketch has gone through a union and HIP is no longer available.
	GetCompositeEstimate() (float64, error)

	// GetEstimate returns the cardinality estimate
	GetEstimate() (float64, error)

	// UpdateUInt64 present the given unsigned 64-bit integer as a potential unique item.
	UpdateUInt64(datum uint64) error

	// UpdateInt64 present the given signed 64-bit integer as a potential unique item.
	UpdateInt64(datum int64) error

	// UpdateSlice present the given byte slice as a potential unique item.
	// An empty slice is ignored.
	UpdateSlice(datum []byte) error

	// UpdateString present the given string as a potential unique item.
	UpdateString(datum string) error

	// Reset resets the sketch to empty, but does not change the configured values of lgConfigK and tgtHllType.
	Reset() error

	// GetLowerBound gets the approximate lower error bound given the specified number of standard deviations.
	//
	//   - numStdDev, this must be an integer between 1 and 3, inclusive.
	GetLowerBound(numStdDev int) (float64, error)

	// GetUpperBound gets the approximate upper error bound given the specified number of standard deviations.
	//
	//   - numStdDev, this must be an integer between 1 and 3, inclusive.
	GetUpperBound(numStdDev int) (float64, error)

	IsEmpty() bool
	GetLgConfigK() int
	GetTgtHllType() TgtHllType

	// GetCurMode returns the current mode of the sketch: LIST, SET, HLL.
	GetCurMode() curMode

	// GetUpdatableSerializationBytes gets the size in bytes of the current sketch when serialized using
	// ToUpdatableSlice.
	GetUpdatableSerializationBytes() int

	// ToCompactSlice serializes the sketch to a slice, compacting data structures
	// where feasible to eliminate unused storage in the serialized image.
	ToCompactSlice() ([]byte, error)

	// ToUpdatableSlice serializes the sketch as a byte slice in an updatable form.
	// The updatable form is larger than the compact form.
	ToUpdatableSlice() ([]byte, error)

	GetSerializationVersion() int

	// String returns a human readable summary of the sketch, optionally followed by
	// every non-empty slot.
	String(printSlots bool) string

	couponUpdate(coupon int) (hllSketchStateI, error)
	iterator() pairIterator
}

type hllSketchStateI interface {
	GetCompositeEstimate() (float64, error)
	GetEstimate() (float64, error)
	GetHipEstimate() (float64, error)
	GetLowerBound(numStdDev int) (float64, error)
	GetUpperBound(numStdDev int) (float64, error)
	IsEmpty() bool

	GetLgConfigK() int
	GetTgtHllType() TgtHllType
	GetCurMode() curMode

	GetUpdatableSerializationBytes() int
	ToCompactSlice() ([]byte, error)
	ToUpdatableSlice() ([]byte, error)

	getMemDataStart() int
	getPreInts() int
	isOutOfOrder() bool
	isRebuildCurMinNumKxQFlag() bool

	putOutOfOrder(oooFlag bool)
	putRebuildCurMinNumKxQFlag(rebuildCurMinNumKxQFlag bool)
	copyAs(tgtHllType TgtHllType) (hllSketchStateI, error)
	copy() (hllSketchStateI, error)
	mergeTo(dest HllSketch) error

	couponUpdate(coupon int) (hllSketchStateI, error)
	iterator() pairIterator
}

// hllSketchState is the mode-switching shell around the current LIST, SET or HLL state.
type hllSketchState struct {
	sketch  hllSketchStateI
	scratch [8]byte
}

func newHllSketchState(state hllSketchStateI) *hllSketchState {
	return &hllSketchState{sketch: state}
}

// NewHllSketch constructs a new sketch with the type of HLL sketch to configure
//
//   - lgConfigK, the Log2 of K for the target HLL sketch. This value must be
//     between 4 and 21 inclusively.
//   - tgtHllType, the desired HLL type.
func NewHllSketch(lgConfigK int, tgtHllType TgtHllType) (HllSketch, error) {
	lgK, err := checkLgK(lgConfigK)
	if err != nil {
		return nil, err
	}
	if err := checkTgtHllType(tgtHllType); err != nil {
		return nil, err
	}
	return newHllSketchState(newCouponList(lgK, tgtHllType)), nil
}

// NewHllSketchWithDefault constructs a new sketch with the default lgK and tgtHllType.
func NewHllSketchWithDefault() (HllSketch, error) {
	return NewHllSketch(defaultLgK, TgtHllTypeDefault)
}

// NewHllSketchFromSlice deserializes a compact or updatable HllSketch image. The slice
// is neither modified nor retained. Every failure wraps ErrInvalidImage.
func NewHllSketchFromSlice(bytes []byte, checkRebuild bool) (HllSketch, error) {
	state, err := deserializeState(bytes, checkRebuild)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImage, err)
	}
	return newHllSketchState(state), nil
}

func deserializeState(bytes []byte, checkRebuild bool) (hllSketchStateI, error) {
	curMode, err := checkPreamble(bytes)
	if err != nil {
		return nil, err
	}
	if err := checkImageSize(bytes, curMode); err != nil {
		return nil, err
	}

	switch curMode {
	case curModeList:
		return deserializeCouponList(bytes)
	case curModeSet:
		return deserializeCouponHashSet(bytes)
	}

	switch extractTgtHllType(bytes) {
	case TgtHllTypeHll4:
		return deserializeHll4(bytes)
	case TgtHllTypeHll6:
		return deserializeHll6(bytes)
	default:
		hll8, err := deserializeHll8(bytes)
		if err != nil {
			return nil, err
		}
		if checkRebuild {
			if err := rebuildCurMinNumKxQ(hll8); err != nil {
				return nil, err
			}
		}
		return hll8, nil
	}
}

func (h *hllSketchState) Copy() (HllSketch, error) {
	sketch, err := h.sketch.copy()
	if err != nil {
		return nil, err
	}
	return newHllSketchState(sketch), nil
}

func (h *hllSketchState) CopyAs(tgtHllType TgtHllType) (HllSketch, error) {
	if err := checkTgtHllType(tgtHllType); err != nil {
		return nil, err
	}
	sketch, err := h.sketch.copyAs(tgtHllType)
	if err != nil {
		return nil, err
	}
	return newHllSketchState(sketch), nil
}

func (h *hllSketchState) GetCompositeEstimate() (float64, error) {
	return h.sketch.GetCompositeEstimate()
}

func (h *hllSketchState) GetEstimate() (float64, error) {
	return h.sketch.GetEstimate()
}

func (h *hllSketchState) GetHipEstimate() (float64, error) {
	return h.sketch.GetHipEstimate()
}

func (h *hllSketchState) GetUpperBound(numStdDev int) (float64, error) {
	return h.sketch.GetUpperBound(numStdDev)
}

func (h *hllSketchState) GetLowerBound(numStdDev int) (float64, error) {
	return h.sketch.GetLowerBound(numStdDev)
}

func (h *hllSketchState) GetUpdatableSerializationBytes() int {
	return h.sketch.GetUpdatableSerializationBytes()
}

func (h *hllSketchState) UpdateUInt64(datum uint64) error {
	binary.LittleEndian.PutUint64(h.scratch[:], datum)
	_, err := h.couponUpdate(coupon(h.hash(h.scratch[:])))
	return err
}

func (h *hllSketchState) UpdateInt64(datum int64) error {
	return h.UpdateUInt64(uint64(datum))
}

func (h *hllSketchState) UpdateSlice(datum []byte) error {
	if len(datum) == 0 {
		return nil
	}
	_, err := h.couponUpdate(coupon(h.hash(datum)))
	return err
}

func (h *hllSketchState) UpdateString(datum string) error {
	// get a slice to the string data (avoiding a copy to heap)
	return h.UpdateSlice(unsafe.Slice(unsafe.StringData(datum), len(datum)))
}

func (h *hllSketchState) IsEmpty() bool {
	return h.sketch.IsEmpty()
}

func (h *hllSketchState) ToCompactSlice() ([]byte, error) {
	return h.sketch.ToCompactSlice()
}

func (h *hllSketchState) ToUpdatableSlice() ([]byte, error) {
	return h.sketch.ToUpdatableSlice()
}

func (h *hllSketchState) GetLgConfigK() int {
	return h.sketch.GetLgConfigK()
}

func (h *hllSketchState) GetTgtHllType() TgtHllType {
	return h.sketch.GetTgtHllType()
}

func (h *hllSketchState) GetCurMode() curMode {
	return h.sketch.GetCurMode()
}

func (h *hllSketchState) Reset() error {
	h.sketch = newCouponList(h.sketch.GetLgConfigK(), h.sketch.GetTgtHllType())
	return nil
}

func (h *hllSketchState) iterator() pairIterator {
	return h.sketch.iterator()
}

// coupon packs the low 26 bits of the hash with the leading zero count of the high half, plus one.
func coupon(hashLo uint64, hashHi uint64) int {
	addr26 := hashLo & keyMask26
	lz := uint64(bits.LeadingZeros64(hashHi))
	value := min(lz, 62) + 1
	return int((value << keyBits26) | addr26)
}

func (h *hllSketchState) couponUpdate(coupon int) (hllSketchStateI, error) {
	if (coupon >> keyBits26) == empty {
		return h.sketch, nil
	}
	sk, err := h.sketch.couponUpdate(coupon)
	if err != nil {
		return h.sketch, err
	}
	h.sketch = sk
	return sk, nil
}

func (h *hllSketchState) putRebuildCurMinNumKxQFlag(rebuildCurMinNumKxQFlag bool) {
	h.sketch.putRebuildCurMinNumKxQFlag(rebuildCurMinNumKxQFlag)
}

func (h *hllSketchState) mergeTo(dest HllSketch) error {
	return h.sketch.mergeTo(dest)
}

// GetSerializationVersion returns the serialization version used by this sketch.
func (h *hllSketchState) GetSerializationVersion() int {
	return serVer
}

func (h *hllSketchState) hash(bs []byte) (uint64, uint64) {
	return murmur3.SeedSum128(internal.DEFAULT_UPDATE_SEED, internal.DEFAULT_UPDATE_SEED, bs)
}
