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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuxHashMap_Replace(t *testing.T) {
	auxMap := newAuxHashMap(3, 7)
	require.NoError(t, auxMap.mustAdd(100, 5))
	val, err := auxMap.mustFindValueFor(100)
	require.NoError(t, err)
	assert.Equal(t, 5, val)

	require.NoError(t, auxMap.mustReplace(100, 10))
	val, err = auxMap.mustFindValueFor(100)
	require.NoError(t, err)
	assert.Equal(t, 10, val)

	assert.EqualError(t, auxMap.mustReplace(101, 5), "pair not found: "+pairString(pair(101, 5)))
}

func TestAuxHashMap_Grow(t *testing.T) {
	auxMap := newAuxHashMap(3, 7)
	assert.Equal(t, 3, auxMap.getLgAuxArrInts())
	for i := 1; i <= 7; i++ {
		require.NoError(t, auxMap.mustAdd(i, i))
	}
	assert.Equal(t, 4, auxMap.getLgAuxArrInts())
	assert.Equal(t, 7, auxMap.getAuxCount())
	assert.Equal(t, 7*4, auxMap.getCompactSizeBytes())
	assert.Equal(t, 16*4, auxMap.getUpdatableSizeBytes())

	itr := auxMap.iterator()
	valid, all := 0, 0
	for itr.nextAll() {
		all++
		p, err := itr.getPair()
		require.NoError(t, err)
		if p != empty {
			valid++
			v, err := itr.getValue()
			require.NoError(t, err)
			assert.Equal(t, itr.getSlot(), v)
		}
	}
	assert.Equal(t, 7, valid)
	assert.Equal(t, 16, all)

	for i := 1; i <= 7; i++ {
		v, err := auxMap.mustFindValueFor(i)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestAuxHashMap_Errors(t *testing.T) {
	auxMap := newAuxHashMap(3, 7)
	require.NoError(t, auxMap.mustAdd(100, 5))

	_, err := auxMap.mustFindValueFor(101)
	assert.EqualError(t, err, "slotNo not found: 101")
	assert.EqualError(t, auxMap.mustAdd(100, 6), "found a slotNo that should not be there: "+pairString(pair(100, 6)))

	_, err = findAuxHashMap(make([]int, 8), 3, 3, 1)
	assert.Error(t, err)

	full := make([]int, 4)
	for i := range full {
		full[i] = pair(i, 20)
	}
	_, err = findAuxHashMap(full, 2, 7, 64)
	assert.Error(t, err)
}

func TestAuxHashMap_Copy(t *testing.T) {
	auxMap := newAuxHashMap(2, 5)
	require.NoError(t, auxMap.mustAdd(3, 20))
	cp := auxMap.copy()
	require.NoError(t, cp.mustReplace(3, 30))
	require.NoError(t, cp.mustAdd(4, 21))

	v, err := auxMap.mustFindValueFor(3)
	require.NoError(t, err)
	assert.Equal(t, 20, v)
	assert.Equal(t, 1, auxMap.getAuxCount())
	assert.Equal(t, 2, cp.getAuxCount())
}

func TestAuxHashMap_Deserialize(t *testing.T) {
	const lgK = 10
	src := newAuxHashMap(lgAuxArrInts[lgK], lgK)
	for slot := 0; slot < 20; slot++ {
		require.NoError(t, src.mustAdd(slot*37, 16+slot%40))
	}

	// compact: the pairs back to back after a fake 40 byte preamble, plus one spare entry
	compact := make([]byte, hllByteArrStart+src.getCompactSizeBytes()+4)
	itr := src.iterator()
	off := hllByteArrStart
	for itr.nextValid() {
		p, err := itr.getPair()
		require.NoError(t, err)
		binary.LittleEndian.PutUint32(compact[off:], uint32(p))
		off += 4
	}
	fromCompact, err := deserializeAuxHashMap(compact, hllByteArrStart, lgK, 20, true)
	require.NoError(t, err)
	assert.Equal(t, src.getLgAuxArrInts(), fromCompact.getLgAuxArrInts())

	// updatable: the whole table, sized by the lgArr preamble byte
	updatable := make([]byte, hllByteArrStart+src.getUpdatableSizeBytes())
	insertLgArr(updatable, src.getLgAuxArrInts())
	for i, p := range src.getAuxIntArr() {
		binary.LittleEndian.PutUint32(updatable[hllByteArrStart+i*4:], uint32(p))
	}
	fromUpdatable, err := deserializeAuxHashMap(updatable, hllByteArrStart, lgK, 20, false)
	require.NoError(t, err)
	assert.Equal(t, src.getAuxIntArr(), fromUpdatable.getAuxIntArr())

	for _, m := range []*auxHashMap{fromCompact, fromUpdatable} {
		assert.Equal(t, 20, m.getAuxCount())
		for slot := 0; slot < 20; slot++ {
			v, err := m.mustFindValueFor(slot * 37)
			require.NoError(t, err)
			assert.Equal(t, 16+slot%40, v)
		}
	}

	_, err = deserializeAuxHashMap(compact, hllByteArrStart, lgK, 21, true)
	assert.Error(t, err, "short count leaves an empty entry")
	_, err = deserializeAuxHashMap(updatable, hllByteArrStart, lgK, 19, false)
	assert.Error(t, err, "count mismatch")
}
