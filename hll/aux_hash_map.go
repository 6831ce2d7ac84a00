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

// auxHashMap holds the HLL_4 exceptions: slots whose value does not fit in a nibble
// above curMin. Entries are pairs keyed by slot number.
type auxHashMap struct {
	lgConfigK    int //required for #slot bits
	lgAuxArrInts int
	auxCount     int
	auxIntArr    []int
}

func newAuxHashMap(lgAuxArrInts int, lgConfigK int) *auxHashMap {
	return &auxHashMap{
		lgConfigK:    lgConfigK,
		lgAuxArrInts: lgAuxArrInts,
		auxIntArr:    make([]int, 1<<lgAuxArrInts),
	}
}

func (a *auxHashMap) copy() *auxHashMap {
	newA := *a
	newA.auxIntArr = make([]int, len(a.auxIntArr))
	copy(newA.auxIntArr, a.auxIntArr)
	return &newA
}

// deserializeAuxHashMap reads auxCount pairs (compact) or a whole table (updatable)
// starting at offset.
func deserializeAuxHashMap(byteArray []byte, offset int, lgConfigK int, auxCount int, srcCompact bool) (*auxHashMap, error) {
	var (
		lgAuxArrInts int
		n            = auxCount
		err          error
	)
	if srcCompact {
		lgAuxArrInts, err = computeLgArr(curModeHll, auxCount, lgConfigK)
		if err != nil {
			return nil, err
		}
	} else {
		lgAuxArrInts = extractLgArr(byteArray)
		n = 1 << lgAuxArrInts
	}

	auxMap := newAuxHashMap(lgAuxArrInts, lgConfigK)
	configKMask := (1 << lgConfigK) - 1
	for i := 0; i < n; i++ {
		p := int(binary.LittleEndian.Uint32(byteArray[offset+(i<<2) : offset+(i<<2)+4]))
		if p == empty {
			if srcCompact {
				return nil, fmt.Errorf("empty aux entry at index %d", i)
			}
			continue
		}
		if err := auxMap.mustAdd(getPairLow26(p)&configKMask, getPairValue(p)); err != nil {
			return nil, err
		}
	}
	if auxMap.auxCount != auxCount {
		return nil, fmt.Errorf("aux count mismatch: %d != %d", auxMap.auxCount, auxCount)
	}
	return auxMap, nil
}

func (a *auxHashMap) getAuxIntArr() []int {
	return a.auxIntArr
}

func (a *auxHashMap) getCompactSizeBytes() int {
	return a.auxCount << 2
}

func (a *auxHashMap) getUpdatableSizeBytes() int {
	return 4 << a.lgAuxArrInts
}

func (a *auxHashMap) getLgAuxArrInts() int {
	return a.lgAuxArrInts
}

func (a *auxHashMap) getAuxCount() int {
	return a.auxCount
}

func (a *auxHashMap) iterator() pairIterator {
	return newIntArrayPairIterator(a.auxIntArr, a.lgConfigK)
}

// mustFindValueFor returns the exception value stored for slotNo.
func (a *auxHashMap) mustFindValueFor(slotNo int) (int, error) {
	index, err := findAuxHashMap(a.auxIntArr, a.lgAuxArrInts, a.lgConfigK, slotNo)
	if err != nil {
		return 0, err
	}
	if index < 0 {
		return 0, fmt.Errorf("slotNo not found: %d", slotNo)
	}
	return getPairValue(a.auxIntArr[index]), nil
}

func (a *auxHashMap) mustReplace(slotNo int, value int) error {
	index, err := findAuxHashMap(a.auxIntArr, a.lgAuxArrInts, a.lgConfigK, slotNo)
	if err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("pair not found: %s", pairString(pair(slotNo, value)))
	}
	a.auxIntArr[index] = pair(slotNo, value)
	return nil
}

// mustAdd inserts a new exception, growing the table past 3/4 load.
func (a *auxHashMap) mustAdd(slotNo int, value int) error {
	index, err := findAuxHashMap(a.auxIntArr, a.lgAuxArrInts, a.lgConfigK, slotNo)
	if err != nil {
		return err
	}
	p := pair(slotNo, value)
	if index >= 0 {
		return fmt.Errorf("found a slotNo that should not be there: %s", pairString(p))
	}
	a.auxIntArr[^index] = p
	a.auxCount++
	return a.checkGrow()
}

func (a *auxHashMap) checkGrow() error {
	if (resizeDenom * a.auxCount) <= (resizeNumber * len(a.auxIntArr)) {
		return nil
	}
	return a.growAuxSpace()
}

func (a *auxHashMap) growAuxSpace() error {
	oldArray := a.auxIntArr
	configKMask := (1 << a.lgConfigK) - 1
	a.lgAuxArrInts++
	a.auxIntArr = make([]int, 1<<a.lgAuxArrInts)
	for _, fetched := range oldArray {
		if fetched == empty {
			continue
		}
		idx, err := findAuxHashMap(a.auxIntArr, a.lgAuxArrInts, a.lgConfigK, fetched&configKMask)
		if err != nil {
			return err
		}
		a.auxIntArr[^idx] = fetched
	}
	return nil
}

// findAuxHashMap probes for slotNo. It returns the index holding slotNo, or the one's
// complement of the first empty index, or an error if the probe wrapped around.
func findAuxHashMap(auxArr []int, lgAuxArrInts int, lgConfigK int, slotNo int) (int, error) {
	if lgAuxArrInts >= lgConfigK {
		return 0, fmt.Errorf("lgAuxArrInts >= lgConfigK: %d >= %d", lgAuxArrInts, lgConfigK)
	}
	auxArrMask := (1 << lgAuxArrInts) - 1
	configKMask := (1 << lgConfigK) - 1
	probe := slotNo & auxArrMask
	loopIndex := probe
	for {
		arrVal := auxArr[probe]
		if arrVal == empty {
			return ^probe, nil
		}
		if slotNo == (arrVal & configKMask) {
			return probe, nil
		}
		stride := (slotNo >> lgAuxArrInts) | 1
		probe = (probe + stride) & auxArrMask
		if probe == loopIndex {
			return 0, fmt.Errorf("key not found and no empty slots")
		}
	}
}
