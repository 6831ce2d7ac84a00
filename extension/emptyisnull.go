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

// emptyAsAbsent releases a zero-length buffer and reports it as absent. Released
// buffers pass through so that the wrapped operation reports them.
func emptyAsAbsent(in *Buffer) *Buffer {
	if in == nil || in.released || len(in.data) > 0 {
		return in
	}
	in.release()
	return nil
}

// nullIfEmpty adapts a one-buffer operation so that an empty buffer counts as absent.
func nullIfEmpty[R any](fn func(*Buffer) (R, error)) func(*Buffer) (R, error) {
	return func(in *Buffer) (R, error) {
		return fn(emptyAsAbsent(in))
	}
}

// nullIfEmpty2 is nullIfEmpty for two-buffer operations.
func nullIfEmpty2[R any](fn func(*Buffer, *Buffer) (R, error)) func(*Buffer, *Buffer) (R, error) {
	return func(left, right *Buffer) (R, error) {
		return fn(emptyAsAbsent(left), emptyAsAbsent(right))
	}
}

// HandleBuildAccumEmptyIsNull is HandleBuildAccum with an empty buffer treated as absent.
func (e *Extension) HandleBuildAccumEmptyIsNull(h Handle, in *Buffer) (Handle, error) {
	return nullIfEmpty(func(in *Buffer) (Handle, error) {
		return e.HandleBuildAccum(h, in)
	})(in)
}

// HandleUnionAccumEmptyIsNull is HandleUnionAccum with an empty buffer treated as absent.
func (e *Extension) HandleUnionAccumEmptyIsNull(h Handle, in *Buffer) (Handle, error) {
	return nullIfEmpty(func(in *Buffer) (Handle, error) {
		return e.HandleUnionAccum(h, in)
	})(in)
}

// HandleDeserializeEmptyIsNull is HandleDeserialize with an empty buffer treated as absent.
func (e *Extension) HandleDeserializeEmptyIsNull(in *Buffer) (Handle, error) {
	return nullIfEmpty(e.HandleDeserialize)(in)
}

// GetEstimateEmptyIsNull is GetEstimate with an empty buffer treated as absent.
func (e *Extension) GetEstimateEmptyIsNull(in *Buffer) (float64, error) {
	return nullIfEmpty(e.GetEstimate)(in)
}

// UnionEmptyIsNull is Union with empty buffers treated as absent.
func (e *Extension) UnionEmptyIsNull(left, right *Buffer) (*Buffer, error) {
	return nullIfEmpty2(e.Union)(left, right)
}

// ToStringEmptyIsNull is ToString with an empty buffer treated as absent, so it yields "".
func (e *Extension) ToStringEmptyIsNull(in *Buffer) (string, error) {
	return nullIfEmpty(e.ToString)(in)
}

// HashEmptyIsNull is Hash with an empty buffer treated as absent, so it yields 0.
func (e *Extension) HashEmptyIsNull(in *Buffer) (uint64, error) {
	return nullIfEmpty(e.Hash)(in)
}
