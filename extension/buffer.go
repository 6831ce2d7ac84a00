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

// Buffer is a byte payload whose ownership moves with each call. An operation that
// accepts a *Buffer releases it exactly once, whatever the outcome; a buffer returned
// by an operation belongs to the caller. A nil *Buffer is an absent argument.
type Buffer struct {
	data     []byte
	released bool
}

// NewBuffer wraps data without copying it.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the payload, or nil once the buffer has been released.
func (b *Buffer) Bytes() []byte {
	if b == nil || b.released {
		return nil
	}
	return b.data
}

func (b *Buffer) Len() int {
	return len(b.Bytes())
}

// Released reports whether an operation has taken ownership of the buffer.
func (b *Buffer) Released() bool {
	return b != nil && b.released
}

func (b *Buffer) release() {
	b.data = nil
	b.released = true
}

// take releases b and returns its payload. A nil buffer yields (nil, false, nil).
func take(b *Buffer) ([]byte, bool, error) {
	if b == nil {
		return nil, false, nil
	}
	if b.released {
		return nil, false, ErrReleasedBuffer
	}
	data := b.data
	b.release()
	if data == nil {
		data = []byte{}
	}
	return data, true, nil
}
