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
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

var (
	// ErrStaleHandle is returned for a handle that was never issued or has already been consumed.
	ErrStaleHandle = errors.New("stale or unknown handle")
	// ErrReleasedBuffer is returned when a buffer is passed again after a call released it.
	ErrReleasedBuffer = errors.New("buffer already released")
	// ErrStateKind is returned by build_accum on a handle holding a union.
	ErrStateKind = errors.New("operation does not apply to this state kind")
	// ErrConsumedState is returned when a state is resolved a second time.
	ErrConsumedState = errors.New("state already resolved")
)

// DecodeError reports a payload that could not be decoded as a serialized sketch.
// It unwraps to the codec error, which wraps hll.ErrInvalidImage.
type DecodeError struct {
	Len         int
	Fingerprint uint64
	Err         error
}

func newDecodeError(data []byte, err error) *DecodeError {
	return &DecodeError{
		Len:         len(data),
		Fingerprint: xxhash.Sum64(data),
		Err:         err,
	}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d byte sketch (fingerprint %016x): %v", e.Len, e.Fingerprint, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// AllocationError is returned when a new state would exceed the configured handle limit.
type AllocationError struct {
	Live int
	Max  int
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("cannot allocate state: %d of %d handles live", e.Live, e.Max)
}
