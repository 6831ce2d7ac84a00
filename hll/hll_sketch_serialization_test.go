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
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialization_CompactRoundTripIsByteStable(t *testing.T) {
	for _, tgtHllType := range tgtHllTypes {
		for _, lgK := range []int{4, 8, 12} {
			for _, n := range []int{0, 1, 7, 8, 24, 25, 300, 1000, 100000} {
				sk := buildRange(t, lgK, tgtHllType, 0, n)
				compact, err := sk.ToCompactSlice()
				require.NoError(t, err)

				decoded, err := NewHllSketchFromSlice(compact, false)
				require.NoError(t, err)
				assert.Equal(t, sk.GetCurMode(), decoded.GetCurMode())
				assert.Equal(t, tgtHllType, decoded.GetTgtHllType())
				assert.Equal(t, lgK, decoded.GetLgConfigK())

				again, err := decoded.ToCompactSlice()
				require.NoError(t, err)
				assert.Equal(t, compact, again, "type=%s lgK=%d n=%d", tgtHllType, lgK, n)

				want, err := sk.GetEstimate()
				require.NoError(t, err)
				got, err := decoded.GetEstimate()
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		}
	}
}

func TestSerialization_UpdatableDecodesToSameCompact(t *testing.T) {
	for _, tgtHllType := range tgtHllTypes {
		for _, n := range []int{0, 5, 100, 3000, 100000} {
			sk := buildRange(t, 10, tgtHllType, 0, n)
			updatable, err := sk.ToUpdatableSlice()
			require.NoError(t, err)
			assert.Len(t, updatable, sk.GetUpdatableSerializationBytes())

			decoded, err := NewHllSketchFromSlice(updatable, true)
			require.NoError(t, err)

			want, err := sk.ToCompactSlice()
			require.NoError(t, err)
			got, err := decoded.ToCompactSlice()
			require.NoError(t, err)
			assert.Equal(t, want, got, "type=%s n=%d", tgtHllType, n)
		}
	}
}

func TestSerialization_EmptySketch(t *testing.T) {
	sk, err := NewHllSketch(12, TgtHllTypeHll4)
	require.NoError(t, err)
	compact, err := sk.ToCompactSlice()
	require.NoError(t, err)
	assert.Len(t, compact, 8)
	assert.Equal(t, byte(listPreInts), compact[preambleIntsBytes])
	assert.Equal(t, byte(serVer), compact[serVerByte])
	assert.Equal(t, byte(familyId), compact[familyByte])
	assert.Equal(t, byte(12), compact[lgKByte])
	assert.True(t, extractCompactFlag(compact))

	decoded, err := NewHllSketchFromSlice(compact, false)
	require.NoError(t, err)
	assert.True(t, decoded.IsEmpty())
}

func TestSerialization_SetCouponsAreSorted(t *testing.T) {
	sk := buildRange(t, 12, TgtHllTypeHll8, 0, 100)
	require.Equal(t, curModeSet, sk.GetCurMode())
	compact, err := sk.ToCompactSlice()
	require.NoError(t, err)
	assert.Len(t, compact, hashSetIntArrStart+100*4)

	prev := uint32(0)
	for off := hashSetIntArrStart; off < len(compact); off += 4 {
		cp := uint32(compact[off]) | uint32(compact[off+1])<<8 | uint32(compact[off+2])<<16 | uint32(compact[off+3])<<24
		assert.Greater(t, cp, prev)
		prev = cp
	}
}

func TestSerialization_DecodeDoesNotAliasInput(t *testing.T) {
	for _, tgtHllType := range tgtHllTypes {
		sk := buildRange(t, 8, tgtHllType, 0, 5000)
		compact, err := sk.ToCompactSlice()
		require.NoError(t, err)
		want, err := sk.GetEstimate()
		require.NoError(t, err)

		decoded, err := NewHllSketchFromSlice(compact, false)
		require.NoError(t, err)
		for i := hllByteArrStart; i < len(compact); i++ {
			compact[i] = 0
		}
		require.NoError(t, decoded.UpdateString("after"))
		got, err := decoded.GetEstimate()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, want)
	}
}

func TestSerialization_InvalidImages(t *testing.T) {
	valid := func(lgK int, n int, tgtHllType TgtHllType) []byte {
		bytes, err := buildRange(t, lgK, tgtHllType, 0, n).ToCompactSlice()
		require.NoError(t, err)
		return bytes
	}
	mutate := func(bytes []byte, f func([]byte)) []byte {
		f(bytes)
		return bytes
	}

	cases := map[string][]byte{
		"nil":             nil,
		"short":           {2, 1, 7},
		"bad family":      mutate(valid(12, 5, TgtHllTypeHll4), func(b []byte) { b[familyByte] = 3 }),
		"bad serVer":      mutate(valid(12, 5, TgtHllTypeHll4), func(b []byte) { b[serVerByte] = 2 }),
		"bad lgK":         mutate(valid(12, 5, TgtHllTypeHll4), func(b []byte) { b[lgKByte] = 30 }),
		"bad preInts":     mutate(valid(12, 5, TgtHllTypeHll4), func(b []byte) { b[preambleIntsBytes] = 3 }),
		"bad mode":        mutate(valid(12, 5, TgtHllTypeHll4), func(b []byte) { b[modeByte] |= curModeMask }),
		"bad type":        mutate(valid(12, 5, TgtHllTypeHll4), func(b []byte) { b[modeByte] |= tgtHllTypeMask }),
		"list overflow":   mutate(valid(12, 5, TgtHllTypeHll4), func(b []byte) { b[listCountByte] = 200 }),
		"list truncated":  valid(12, 5, TgtHllTypeHll6)[:listIntArrStart+8],
		"zero coupon":     mutate(valid(12, 5, TgtHllTypeHll8), func(b []byte) { copy(b[listIntArrStart:], []byte{0, 0, 0, 0}) }),
		"set truncated":   valid(12, 100, TgtHllTypeHll4)[:hashSetIntArrStart+40],
		"set overflow":    mutate(valid(12, 100, TgtHllTypeHll4), func(b []byte) { b[hashSetCountInt+3] = 1 }),
		"hll truncated":   valid(10, 10000, TgtHllTypeHll8)[:hllByteArrStart+100],
		"hll4 truncated":  valid(10, 10000, TgtHllTypeHll4)[:hllByteArrStart+(1<<9)-1],
		"aux overflow":    mutate(valid(10, 10000, TgtHllTypeHll4), func(b []byte) { b[auxCountInt+3] = 1 }),
		"header only hll": valid(10, 10000, TgtHllTypeHll6)[:hllByteArrStart],
	}
	for name, bytes := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewHllSketchFromSlice(bytes, false)
			assert.ErrorIs(t, err, ErrInvalidImage)
		})
	}
}

func TestSerialization_RandomCorruptionNeverPanics(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	var images [][]byte
	for _, tgtHllType := range tgtHllTypes {
		for _, n := range []int{3, 100, 20000} {
			compact, err := buildRange(t, 8, tgtHllType, 0, n).ToCompactSlice()
			require.NoError(t, err)
			updatable, err := buildRange(t, 8, tgtHllType, 0, n).ToUpdatableSlice()
			require.NoError(t, err)
			images = append(images, compact, updatable)
		}
	}

	for trial := 0; trial < 2000; trial++ {
		src := images[rng.IntN(len(images))]
		bytes := append([]byte(nil), src...)
		for k := 1 + rng.IntN(3); k > 0; k-- {
			bytes[rng.IntN(len(bytes))] = byte(rng.UintN(256))
		}
		if rng.IntN(4) == 0 {
			bytes = bytes[:rng.IntN(len(bytes))]
		}
		assert.NotPanics(t, func() {
			sk, err := NewHllSketchFromSlice(bytes, true)
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidImage)
				return
			}
			_, _ = sk.GetEstimate()
			_, _ = sk.ToCompactSlice()
		})
	}
}
