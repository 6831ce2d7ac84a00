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

package extension

import (
	"github.com/twmb/murmur3"
)

// hashSeed matches the update seed of the sketches themselves.
const hashSeed = 9001

// Hash returns a 63-bit digest of the raw bytes of in, or 0 for an absent buffer. It
// never decodes the payload, so equal sketches with different images hash differently.
func (e *Extension) Hash(in *Buffer) (uint64, error) {
	data, ok, err := take(in)
	if err != nil {
		return 0, e.fail("hash", err)
	}
	if !ok {
		return 0, nil
	}
	return contentHash(data), nil
}

// contentHash keeps the first 64 bits of MurmurHash3 x64/128 shifted right by one.
func contentHash(data []byte) uint64 {
	h1, _ := murmur3.SeedSum128(hashSeed, hashSeed, data)
	return h1 >> 1
}
