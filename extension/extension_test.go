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
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sync/errgroup"

	"github.com/datasketches-ext/hllagg/hll"
)

func newTestExtension(t *testing.T, opts ...ExtensionOptionFunc) *Extension {
	t.Helper()
	opts = append([]ExtensionOptionFunc{WithLogger(zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)))}, opts...)
	e, err := New(opts...)
	require.NoError(t, err)
	return e
}

func newObservedExtension(t *testing.T, level zap.AtomicLevel, opts ...ExtensionOptionFunc) (*Extension, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(level)
	opts = append(opts, WithLogger(zap.New(core)))
	e, err := New(opts...)
	require.NoError(t, err)
	return e, logs
}

// item encodes i the way the host passes a 4-byte integer column.
func item(i uint32) *Buffer {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, i)
	return NewBuffer(b)
}

func buildHandle(t testing.TB, e *Extension, start, n int) Handle {
	t.Helper()
	h := e.HandleInit()
	for i := start; i < start+n; i++ {
		var err error
		h, err = e.HandleBuildAccum(h, item(uint32(i)))
		if err != nil {
			t.Fatal(err)
		}
	}
	return h
}

func serializedSketch(t testing.TB, e *Extension, start, n int) []byte {
	t.Helper()
	out, err := e.HandleSerialize(buildHandle(t, e, start, n))
	if err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func estimate(t *testing.T, e *Extension, data []byte) float64 {
	t.Helper()
	est, err := e.GetEstimate(NewBuffer(data))
	require.NoError(t, err)
	return est
}

func TestNew_Options(t *testing.T) {
	e, err := New()
	require.NoError(t, err)
	assert.Equal(t, DefaultLgK, e.lgK)
	assert.Equal(t, DefaultTgtHllType, e.tgtHllType)
	assert.NotNil(t, e.logger)

	e, err = New(WithLgK(8), WithTgtHllType(hll.TgtHllTypeHll8), WithMaxHandles(10))
	require.NoError(t, err)
	assert.Equal(t, 8, e.lgK)
	assert.Equal(t, hll.TgtHllTypeHll8, e.tgtHllType)
	assert.Equal(t, 10, e.handles.max)

	_, err = New(WithLgK(3))
	assert.Error(t, err)
	_, err = New(WithLgK(22))
	assert.Error(t, err)
	_, err = New(WithTgtHllType(hll.TgtHllType(9)))
	assert.Error(t, err)
	_, err = New(WithMaxHandles(-1))
	assert.Error(t, err)
}

func TestExtension_Sentinels(t *testing.T) {
	e := newTestExtension(t)
	assert.Equal(t, NoHandle, e.HandleInit())
	assert.Equal(t, 0, e.Live())

	h, err := e.HandleMerge(NoHandle, NoHandle)
	require.NoError(t, err)
	assert.Equal(t, NoHandle, h)
	assert.Equal(t, 0, e.Live())

	out, err := e.HandleSerialize(NoHandle)
	require.NoError(t, err)
	assert.NotNil(t, out.Bytes())
	assert.Equal(t, 0, out.Len())

	h, err = e.HandleBuildAccum(NoHandle, nil)
	require.NoError(t, err)
	assert.Equal(t, NoHandle, h)
	h, err = e.HandleUnionAccum(NoHandle, nil)
	require.NoError(t, err)
	assert.Equal(t, NoHandle, h)
	assert.Equal(t, 0, e.Live())

	empty := NewBuffer([]byte{})
	h, err = e.HandleDeserialize(empty)
	require.NoError(t, err)
	assert.Equal(t, NoHandle, h)
	assert.True(t, empty.Released())
	h, err = e.HandleDeserialize(nil)
	require.NoError(t, err)
	assert.Equal(t, NoHandle, h)

	est, err := e.GetEstimate(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, est)
	est, err = e.GetEstimate(NewBuffer(nil))
	require.NoError(t, err)
	assert.Equal(t, 0.0, est)

	s, err := e.ToString(nil)
	require.NoError(t, err)
	assert.Equal(t, "", s)

	hash, err := e.Hash(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), hash)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_AbsentInputKeepsHandle(t *testing.T) {
	e := newTestExtension(t)
	h := buildHandle(t, e, 0, 10)

	same, err := e.HandleBuildAccum(h, nil)
	require.NoError(t, err)
	assert.Equal(t, h, same)

	u, err := e.HandleMerge(h, NoHandle)
	require.NoError(t, err)
	same, err = e.HandleUnionAccum(u, nil)
	require.NoError(t, err)
	assert.Equal(t, u, same)

	out, err := e.HandleSerialize(u)
	require.NoError(t, err)
	assert.InDelta(t, 10, estimate(t, e, out.Bytes()), 1e-3)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_BuildAccum(t *testing.T) {
	e := newTestExtension(t)
	h, err := e.HandleBuildAccum(NoHandle, item(1))
	require.NoError(t, err)
	assert.NotEqual(t, NoHandle, h)
	assert.Equal(t, 1, e.Live())

	in := item(2)
	next, err := e.HandleBuildAccum(h, in)
	require.NoError(t, err)
	assert.NotEqual(t, h, next)
	assert.True(t, in.Released())
	assert.Equal(t, 1, e.Live())

	// duplicates do not count twice
	next, err = e.HandleBuildAccum(next, item(2))
	require.NoError(t, err)

	out, err := e.HandleSerialize(next)
	require.NoError(t, err)
	assert.InDelta(t, 2, estimate(t, e, out.Bytes()), 1e-3)
	assert.Equal(t, 0, e.Live())

	// a zero-length item is still an item
	h, err = e.HandleBuildAccum(NoHandle, NewBuffer([]byte{}))
	require.NoError(t, err)
	assert.NotEqual(t, NoHandle, h)
	_, err = e.HandleSerialize(h)
	require.NoError(t, err)
}

func TestExtension_DefaultSketchConfiguration(t *testing.T) {
	for _, tgt := range []hll.TgtHllType{hll.TgtHllTypeHll4, hll.TgtHllTypeHll6, hll.TgtHllTypeHll8} {
		e := newTestExtension(t, WithLgK(10), WithTgtHllType(tgt))
		sk, err := hll.NewHllSketchFromSlice(serializedSketch(t, e, 0, 5000), true)
		require.NoError(t, err)
		assert.Equal(t, 10, sk.GetLgConfigK())
		assert.Equal(t, tgt, sk.GetTgtHllType())

		// union results come back in the configured type too
		u, err := e.HandleMerge(buildHandle(t, e, 0, 100), NoHandle)
		require.NoError(t, err)
		out, err := e.HandleSerialize(u)
		require.NoError(t, err)
		sk, err = hll.NewHllSketchFromSlice(out.Bytes(), true)
		require.NoError(t, err)
		assert.Equal(t, tgt, sk.GetTgtHllType())
	}

	e := newTestExtension(t)
	sk, err := hll.NewHllSketchFromSlice(serializedSketch(t, e, 0, 1), true)
	require.NoError(t, err)
	assert.Equal(t, 12, sk.GetLgConfigK())
	assert.Equal(t, hll.TgtHllTypeHll4, sk.GetTgtHllType())
}

func TestExtension_UnionAccum(t *testing.T) {
	e := newTestExtension(t)
	a := serializedSketch(t, e, 0, 3000)
	b := serializedSketch(t, e, 2000, 3000)

	h, err := e.HandleUnionAccum(NoHandle, NewBuffer(a))
	require.NoError(t, err)
	h, err = e.HandleUnionAccum(h, NewBuffer(b))
	require.NoError(t, err)
	assert.Equal(t, 1, e.Live())

	out, err := e.HandleSerialize(h)
	require.NoError(t, err)
	assert.InDelta(t, 5000, estimate(t, e, out.Bytes()), 5000*0.05)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_MergeOrderInsensitive(t *testing.T) {
	e := newTestExtension(t)
	mergeBytes := func(leftFirst bool) []byte {
		l := buildHandle(t, e, 0, 20000)
		r := buildHandle(t, e, 10000, 20000)
		var (
			h   Handle
			err error
		)
		if leftFirst {
			h, err = e.HandleMerge(l, r)
		} else {
			h, err = e.HandleMerge(r, l)
		}
		require.NoError(t, err)
		out, err := e.HandleSerialize(h)
		require.NoError(t, err)
		return out.Bytes()
	}

	lr := mergeBytes(true)
	rl := mergeBytes(false)
	assert.Equal(t, lr, rl)
	assert.InDelta(t, 30000, estimate(t, e, lr), 30000*0.05)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_MergeSmallGroupsOrderInsensitive(t *testing.T) {
	e := newTestExtension(t)
	cases := []struct{ start2, n1, n2 int }{
		{300, 300, 300},
		{200, 200, 370},
		{8, 8, 380},
		{0, 300, 300},
		{100, 150, 150},
		{5, 5, 5},
	}
	for _, c := range cases {
		merged := func(leftFirst bool) []byte {
			l := buildHandle(t, e, 0, c.n1)
			r := buildHandle(t, e, c.start2, c.n2)
			var (
				h   Handle
				err error
			)
			if leftFirst {
				h, err = e.HandleMerge(l, r)
			} else {
				h, err = e.HandleMerge(r, l)
			}
			require.NoError(t, err)
			out, err := e.HandleSerialize(h)
			require.NoError(t, err)
			return out.Bytes()
		}
		lr := merged(true)
		rl := merged(false)
		assert.Equal(t, estimate(t, e, lr), estimate(t, e, rl), "%d+%d from %d", c.n1, c.n2, c.start2)
		distinct := max(c.n1, c.start2+c.n2)
		assert.InDelta(t, distinct, estimate(t, e, lr), float64(distinct)*0.05)
	}
	assert.Equal(t, 0, e.Live())
}

func TestExtension_MergeMixedKinds(t *testing.T) {
	e := newTestExtension(t)
	a := serializedSketch(t, e, 0, 8000)

	merged := func(unionFirst bool) []byte {
		u, err := e.HandleUnionAccum(NoHandle, NewBuffer(a))
		require.NoError(t, err)
		s := buildHandle(t, e, 4000, 8000)
		var h Handle
		if unionFirst {
			h, err = e.HandleMerge(u, s)
		} else {
			h, err = e.HandleMerge(s, u)
		}
		require.NoError(t, err)
		out, err := e.HandleSerialize(h)
		require.NoError(t, err)
		return out.Bytes()
	}

	us := merged(true)
	su := merged(false)
	assert.Equal(t, us, su)
	assert.InDelta(t, 12000, estimate(t, e, us), 12000*0.05)

	// a merge result is a union and can keep absorbing serialized sketches
	h, err := e.HandleMerge(buildHandle(t, e, 0, 10), NoHandle)
	require.NoError(t, err)
	h, err = e.HandleUnionAccum(h, NewBuffer(a))
	require.NoError(t, err)
	out, err := e.HandleSerialize(h)
	require.NoError(t, err)
	assert.InDelta(t, 8000, estimate(t, e, out.Bytes()), 8000*0.05)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_MergeAssociative(t *testing.T) {
	e := newTestExtension(t)
	const n = 10000

	left, err := e.HandleMerge(buildHandle(t, e, 0, n), buildHandle(t, e, n, n))
	require.NoError(t, err)
	left, err = e.HandleMerge(left, buildHandle(t, e, 2*n, n))
	require.NoError(t, err)

	right, err := e.HandleMerge(buildHandle(t, e, n, n), buildHandle(t, e, 2*n, n))
	require.NoError(t, err)
	right, err = e.HandleMerge(buildHandle(t, e, 0, n), right)
	require.NoError(t, err)

	l, err := e.HandleSerialize(left)
	require.NoError(t, err)
	r, err := e.HandleSerialize(right)
	require.NoError(t, err)

	le := estimate(t, e, l.Bytes())
	re := estimate(t, e, r.Bytes())
	assert.InDelta(t, le, re, le*0.05)
	assert.InDelta(t, 3*n, le, 3*n*0.05)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_RoundTripIsByteStable(t *testing.T) {
	for _, tgt := range []hll.TgtHllType{hll.TgtHllTypeHll4, hll.TgtHllTypeHll6, hll.TgtHllTypeHll8} {
		for _, n := range []int{1, 7, 100, 1000, 50000} {
			t.Run(fmt.Sprintf("%s/%d", tgt, n), func(t *testing.T) {
				e := newTestExtension(t, WithTgtHllType(tgt))
				first := serializedSketch(t, e, 0, n)

				h, err := e.HandleDeserialize(NewBuffer(first))
				require.NoError(t, err)
				out, err := e.HandleSerialize(h)
				require.NoError(t, err)
				assert.Equal(t, first, out.Bytes())

				// the same holds for a state that went through a union
				u, err := e.HandleUnionAccum(NoHandle, NewBuffer(first))
				require.NoError(t, err)
				out, err = e.HandleSerialize(u)
				require.NoError(t, err)
				second := out.Bytes()
				h, err = e.HandleDeserialize(NewBuffer(second))
				require.NoError(t, err)
				out, err = e.HandleSerialize(h)
				require.NoError(t, err)
				assert.Equal(t, second, out.Bytes())
				assert.Equal(t, 0, e.Live())
			})
		}
	}
}

func TestExtension_DeserializedStateKeepsAccumulating(t *testing.T) {
	e := newTestExtension(t)
	h, err := e.HandleDeserialize(NewBuffer(serializedSketch(t, e, 0, 2000)))
	require.NoError(t, err)
	for i := 2000; i < 4000; i++ {
		h, err = e.HandleBuildAccum(h, item(uint32(i)))
		require.NoError(t, err)
	}
	out, err := e.HandleSerialize(h)
	require.NoError(t, err)
	assert.InDelta(t, 4000, estimate(t, e, out.Bytes()), 4000*0.05)
}

func TestExtension_Union(t *testing.T) {
	e := newTestExtension(t)
	a := serializedSketch(t, e, 0, 6000)
	b := serializedSketch(t, e, 3000, 6000)

	out, err := e.Union(NewBuffer(a), NewBuffer(b))
	require.NoError(t, err)
	ab := out.Bytes()
	out, err = e.Union(NewBuffer(b), NewBuffer(a))
	require.NoError(t, err)
	assert.Equal(t, ab, out.Bytes())
	assert.InDelta(t, 9000, estimate(t, e, ab), 9000*0.05)

	out, err = e.Union(NewBuffer(a), nil)
	require.NoError(t, err)
	assert.InDelta(t, 6000, estimate(t, e, out.Bytes()), 6000*0.05)

	out, err = e.Union(nil, nil)
	require.NoError(t, err)
	empty := out.Bytes()
	assert.Len(t, empty, 8)
	assert.Equal(t, 0.0, estimate(t, e, empty))
	sk, err := hll.NewHllSketchFromSlice(empty, true)
	require.NoError(t, err)
	assert.True(t, sk.IsEmpty())
	assert.Equal(t, 0, e.Live())
}

func TestExtension_ToString(t *testing.T) {
	e := newTestExtension(t)
	s, err := e.ToString(NewBuffer(serializedSketch(t, e, 0, 1000)))
	require.NoError(t, err)
	assert.Contains(t, s, "### HLL sketch summary:")
	assert.Contains(t, s, "Log Config K   : 12")
	assert.Contains(t, s, "Hll Target     : HLL_4")
	assert.Contains(t, s, "### End HLL sketch summary")

	_, err = e.ToString(NewBuffer([]byte{}))
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestExtension_StaleHandles(t *testing.T) {
	e := newTestExtension(t)
	h1 := buildHandle(t, e, 0, 5)
	h2, err := e.HandleBuildAccum(h1, item(100))
	require.NoError(t, err)

	in := item(101)
	_, err = e.HandleBuildAccum(h1, in)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.True(t, in.Released())

	out, err := e.HandleSerialize(h2)
	require.NoError(t, err)
	assert.InDelta(t, 6, estimate(t, e, out.Bytes()), 1e-3)

	_, err = e.HandleSerialize(h2)
	assert.ErrorIs(t, err, ErrStaleHandle)
	_, err = e.HandleMerge(h2, NoHandle)
	assert.ErrorIs(t, err, ErrStaleHandle)
	_, err = e.HandleUnionAccum(h2, NewBuffer(out.Bytes()))
	assert.ErrorIs(t, err, ErrStaleHandle)
	_, err = e.HandleBuildAccum(Handle(12345), item(1))
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_MergeSameHandleTwice(t *testing.T) {
	e := newTestExtension(t)
	h := buildHandle(t, e, 0, 100)

	merged, err := e.HandleMerge(h, h)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.Equal(t, NoHandle, merged)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_MergeConsumesBothOnError(t *testing.T) {
	e := newTestExtension(t)
	good := buildHandle(t, e, 0, 100)
	stale := buildHandle(t, e, 0, 1)
	_, err := e.HandleSerialize(stale)
	require.NoError(t, err)

	_, err = e.HandleMerge(stale, good)
	assert.ErrorIs(t, err, ErrStaleHandle)
	assert.Equal(t, 0, e.Live())
	_, err = e.HandleSerialize(good)
	assert.ErrorIs(t, err, ErrStaleHandle)
}

func TestExtension_ReleasedBuffers(t *testing.T) {
	e := newTestExtension(t)
	in := item(7)
	h, err := e.HandleBuildAccum(NoHandle, in)
	require.NoError(t, err)

	_, err = e.HandleBuildAccum(h, in)
	assert.ErrorIs(t, err, ErrReleasedBuffer)
	assert.Equal(t, 0, e.Live())

	sketch := NewBuffer(serializedSketch(t, e, 0, 10))
	_, err = e.GetEstimate(sketch)
	require.NoError(t, err)
	_, err = e.GetEstimate(sketch)
	assert.ErrorIs(t, err, ErrReleasedBuffer)
	_, err = e.HandleDeserialize(sketch)
	assert.ErrorIs(t, err, ErrReleasedBuffer)
	_, err = e.ToString(sketch)
	assert.ErrorIs(t, err, ErrReleasedBuffer)
	_, err = e.Hash(sketch)
	assert.ErrorIs(t, err, ErrReleasedBuffer)

	u, err := e.HandleUnionAccum(NoHandle, NewBuffer(serializedSketch(t, e, 0, 10)))
	require.NoError(t, err)
	_, err = e.HandleUnionAccum(u, sketch)
	assert.ErrorIs(t, err, ErrReleasedBuffer)
	assert.Equal(t, 0, e.Live())

	other := NewBuffer(serializedSketch(t, e, 0, 10))
	_, err = e.Union(sketch, other)
	assert.ErrorIs(t, err, ErrReleasedBuffer)
	assert.True(t, other.Released())
}

func TestExtension_StateKindMismatch(t *testing.T) {
	e := newTestExtension(t)
	u, err := e.HandleUnionAccum(NoHandle, NewBuffer(serializedSketch(t, e, 0, 10)))
	require.NoError(t, err)

	_, err = e.HandleBuildAccum(u, item(1))
	assert.ErrorIs(t, err, ErrStateKind)
	assert.Equal(t, 0, e.Live())

	s := buildHandle(t, e, 0, 10)
	_, err = e.HandleUnionAccum(s, NewBuffer(serializedSketch(t, e, 0, 10)))
	assert.ErrorIs(t, err, ErrStateKind)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_DecodeErrors(t *testing.T) {
	e, logs := newObservedExtension(t, zap.NewAtomicLevelAt(zap.WarnLevel))
	garbage := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}

	_, err := e.GetEstimate(NewBuffer(garbage))
	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, len(garbage), decodeErr.Len)
	assert.Equal(t, xxhash.Sum64(garbage), decodeErr.Fingerprint)
	assert.ErrorIs(t, err, hll.ErrInvalidImage)

	entries := logs.FilterMessage("Sketch operation failed").AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	assert.Equal(t, "get_estimate", fields["op"])
	assert.Equal(t, int64(len(garbage)), fields["len"])
	assert.Equal(t, fmt.Sprintf("%016x", xxhash.Sum64(garbage)), fields["fingerprint"])

	for name, call := range map[string]func(*Buffer) error{
		"deserialize": func(in *Buffer) error { _, err := e.HandleDeserialize(in); return err },
		"to_string":   func(in *Buffer) error { _, err := e.ToString(in); return err },
		"union":       func(in *Buffer) error { _, err := e.Union(in, nil); return err },
		"union_accum": func(in *Buffer) error { _, err := e.HandleUnionAccum(NoHandle, in); return err },
	} {
		err := call(NewBuffer(garbage))
		assert.ErrorIs(t, err, hll.ErrInvalidImage, name)
		assert.Equal(t, 1, logs.FilterField(zap.String("op", name)).Len(), name)
	}

	h := buildHandle(t, e, 0, 10)
	_, err = e.HandleUnionAccum(h, NewBuffer(garbage))
	assert.ErrorIs(t, err, hll.ErrInvalidImage)
	assert.Equal(t, 0, e.Live())

	// both bad payloads are reported
	_, err = e.Union(NewBuffer(garbage), NewBuffer([]byte{0xff}))
	assert.Len(t, multierr.Errors(err), 2)
}

func TestExtension_TruncatedImages(t *testing.T) {
	e := newTestExtension(t)
	image := serializedSketch(t, e, 0, 20000)
	for cut := 0; cut < len(image); cut += 97 {
		_, err := e.GetEstimate(NewBuffer(image[:cut]))
		if cut == 0 {
			assert.NoError(t, err)
			continue
		}
		assert.ErrorIs(t, err, hll.ErrInvalidImage, "cut at %d", cut)
	}
}

func TestExtension_AllocationLimit(t *testing.T) {
	e := newTestExtension(t, WithMaxHandles(2))
	a := buildHandle(t, e, 0, 10)
	b := buildHandle(t, e, 10, 10)

	_, err := e.HandleBuildAccum(NoHandle, item(1))
	var allocErr *AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, 2, allocErr.Live)
	assert.Equal(t, 2, allocErr.Max)

	// merge frees both inputs before storing its result
	h, err := e.HandleMerge(a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Live())
	out, err := e.HandleSerialize(h)
	require.NoError(t, err)
	assert.InDelta(t, 20, estimate(t, e, out.Bytes()), 1e-3)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_HandleLifecycleLogging(t *testing.T) {
	e, logs := newObservedExtension(t, zap.NewAtomicLevelAt(zap.DebugLevel))
	h, err := e.HandleBuildAccum(NoHandle, item(1))
	require.NoError(t, err)
	h, err = e.HandleBuildAccum(h, item(2))
	require.NoError(t, err)
	_, err = e.HandleSerialize(h)
	require.NoError(t, err)

	issued := logs.FilterMessage("Handle issued").AllUntimed()
	require.Len(t, issued, 2)
	assert.Equal(t, "build_accum", issued[0].ContextMap()["op"])
	assert.Equal(t, "sketch", issued[0].ContextMap()["kind"])
	assert.Equal(t, h.String(), issued[1].ContextMap()["handle"])
	assert.Equal(t, 2, logs.FilterMessage("Handle consumed").Len())
	assert.Equal(t, 0, logs.FilterMessage("Sketch operation failed").Len())
}

func TestExtension_ConcurrentGroups(t *testing.T) {
	e := newTestExtension(t)
	const groups = 8
	const n = 5000
	results := make([][]byte, groups)

	var g errgroup.Group
	for i := 0; i < groups; i++ {
		g.Go(func() error {
			h := e.HandleInit()
			for j := 0; j < n; j++ {
				var err error
				if h, err = e.HandleBuildAccum(h, item(uint32(i*n+j))); err != nil {
					return err
				}
			}
			out, err := e.HandleSerialize(h)
			if err != nil {
				return err
			}
			results[i] = out.Bytes()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 0, e.Live())

	merged, err := e.Union(NewBuffer(results[0]), NewBuffer(results[1]))
	require.NoError(t, err)
	for _, r := range results[2:] {
		merged, err = e.Union(merged, NewBuffer(r))
		require.NoError(t, err)
	}
	assert.InDelta(t, groups*n, estimate(t, e, merged.Bytes()), groups*n*0.05)
}

func TestExtension_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("builds two sketches of a million items")
	}
	e := newTestExtension(t)
	const n = 1000000

	left := buildHandle(t, e, 0, n)
	right := buildHandle(t, e, 0, n)
	h, err := e.HandleMerge(left, right)
	require.NoError(t, err)
	out, err := e.HandleSerialize(h)
	require.NoError(t, err)
	first := out.Bytes()

	h, err = e.HandleDeserialize(NewBuffer(first))
	require.NoError(t, err)
	out, err = e.HandleSerialize(h)
	require.NoError(t, err)
	assert.Equal(t, first, out.Bytes())

	assert.InDelta(t, n, estimate(t, e, first), n*0.05)
	assert.Equal(t, 0, e.Live())
}

func TestExtension_AccuracyOverTrials(t *testing.T) {
	if testing.Short() {
		t.Skip("builds several sketches of a million items")
	}
	e := newTestExtension(t)
	const (
		n      = 1000000
		trials = 5
	)

	var sum, worst float64
	for trial := 0; trial < trials; trial++ {
		relErr := estimate(t, e, serializedSketch(t, e, trial*n, n))/n - 1
		sum += relErr
		worst = max(worst, math.Abs(relErr))
	}
	assert.Less(t, math.Abs(sum/trials), 0.02)
	assert.Less(t, worst, 0.05)
	assert.Equal(t, 0, e.Live())
}

func BenchmarkExtension_BuildAccum(b *testing.B) {
	e, err := New()
	if err != nil {
		b.Fatal(err)
	}
	h := e.HandleInit()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err = e.HandleBuildAccum(h, item(uint32(i)))
		if err != nil {
			b.Fatal(err)
		}
	}
}
