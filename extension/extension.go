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

// Package extension drives HLL sketch state across an aggregate-function boundary.
//
// A caller starts every aggregation group with HandleInit, threads the returned Handle
// through the accumulate and merge calls, and finishes with HandleSerialize. Every call
// that takes a handle or a buffer consumes it, also when the call fails; the handle it
// returns supersedes the one passed in. Consumed handles and released buffers are
// detected and reported as ErrStaleHandle and ErrReleasedBuffer.
package extension

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/datasketches-ext/hllagg/hll"
)

// Extension owns the handle table shared by all aggregation groups of one host.
// Calls for different groups may run concurrently; calls within a group must not.
type Extension struct {
	lgK        int
	tgtHllType hll.TgtHllType
	handles    *handleTable
	logger     *zap.Logger
}

// New creates an extension with the given options.
func New(opts ...ExtensionOptionFunc) (*Extension, error) {
	options := &extensionOptions{
		lgK:        DefaultLgK,
		tgtHllType: DefaultTgtHllType,
	}
	for _, opt := range opts {
		opt(options)
	}

	if _, err := hll.NewHllSketch(options.lgK, options.tgtHllType); err != nil {
		return nil, fmt.Errorf("invalid sketch configuration: %w", err)
	}
	if options.maxHandles < 0 {
		return nil, fmt.Errorf("max handles must not be negative: %d", options.maxHandles)
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}

	return &Extension{
		lgK:        options.lgK,
		tgtHllType: options.tgtHllType,
		handles:    newHandleTable(options.maxHandles),
		logger:     options.logger,
	}, nil
}

// Live returns the number of handles that still own a state.
func (e *Extension) Live() int {
	return e.handles.len()
}

// HandleInit returns NoHandle; the state is allocated by the first accumulate call.
func (e *Extension) HandleInit() Handle {
	return NoHandle
}

// HandleBuildAccum registers the bytes of in as one raw item. An absent buffer leaves
// h untouched.
func (e *Extension) HandleBuildAccum(h Handle, in *Buffer) (Handle, error) {
	const op = "build_accum"
	data, ok, err := take(in)
	if err != nil {
		e.drop(h)
		return NoHandle, e.fail(op, err)
	}
	if !ok {
		return h, nil
	}

	st, err := e.acquire(h, sketchKind)
	if err != nil {
		return NoHandle, e.fail(op, err)
	}
	if err := st.sketch.UpdateSlice(data); err != nil {
		return NoHandle, e.fail(op, err)
	}
	return e.store(op, st)
}

// HandleUnionAccum folds the serialized sketch in into the union behind h. An absent
// buffer leaves h untouched.
func (e *Extension) HandleUnionAccum(h Handle, in *Buffer) (Handle, error) {
	const op = "union_accum"
	data, ok, err := take(in)
	if err != nil {
		e.drop(h)
		return NoHandle, e.fail(op, err)
	}
	if !ok {
		return h, nil
	}

	sk, err := e.decode(data)
	if err != nil {
		e.drop(h)
		return NoHandle, e.fail(op, err)
	}
	st, err := e.acquire(h, unionKind)
	if err != nil {
		return NoHandle, e.fail(op, err)
	}
	if err := st.union.UpdateSketch(sk); err != nil {
		return NoHandle, e.fail(op, err)
	}
	return e.store(op, st)
}

// HandleMerge consumes both handles and returns a union of their states. Merging two
// NoHandle values yields NoHandle without allocating.
func (e *Extension) HandleMerge(left, right Handle) (Handle, error) {
	const op = "merge"
	if left == NoHandle && right == NoHandle {
		return NoHandle, nil
	}

	var (
		sketches []hll.HllSketch
		errs     error
	)
	for _, h := range []Handle{left, right} {
		if h == NoHandle {
			continue
		}
		st, err := e.consume(h)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sk, err := st.resolve(e.tgtHllType)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		sketches = append(sketches, sk)
	}
	if errs != nil {
		return NoHandle, e.fail(op, errs)
	}

	st, err := newUnionState(e.lgK)
	if err != nil {
		return NoHandle, e.fail(op, err)
	}
	for _, sk := range sketches {
		if err := st.union.UpdateSketch(sk); err != nil {
			return NoHandle, e.fail(op, err)
		}
	}
	return e.store(op, st)
}

// HandleSerialize consumes h and returns the compact image of its sketch. NoHandle
// yields an empty buffer.
func (e *Extension) HandleSerialize(h Handle) (*Buffer, error) {
	const op = "serialize"
	if h == NoHandle {
		return NewBuffer([]byte{}), nil
	}
	st, err := e.consume(h)
	if err != nil {
		return nil, e.fail(op, err)
	}
	bytes, err := e.serialize(st)
	if err != nil {
		return nil, e.fail(op, err)
	}
	return NewBuffer(bytes), nil
}

// HandleDeserialize decodes in into a new sketch state. An absent or empty buffer
// yields NoHandle.
func (e *Extension) HandleDeserialize(in *Buffer) (Handle, error) {
	const op = "deserialize"
	data, ok, err := take(in)
	if err != nil {
		return NoHandle, e.fail(op, err)
	}
	if !ok || len(data) == 0 {
		return NoHandle, nil
	}
	sk, err := e.decode(data)
	if err != nil {
		return NoHandle, e.fail(op, err)
	}
	return e.store(op, wrapSketch(sk))
}

// GetEstimate returns the distinct count estimate of the serialized sketch in, or 0
// for an absent or empty buffer.
func (e *Extension) GetEstimate(in *Buffer) (float64, error) {
	const op = "get_estimate"
	data, ok, err := take(in)
	if err != nil {
		return 0, e.fail(op, err)
	}
	if !ok || len(data) == 0 {
		return 0, nil
	}
	sk, err := e.decode(data)
	if err != nil {
		return 0, e.fail(op, err)
	}
	est, err := sk.GetEstimate()
	if err != nil {
		return 0, e.fail(op, err)
	}
	return est, nil
}

// Union returns the compact image of the union of the serialized sketches left and
// right, either of which may be absent.
func (e *Extension) Union(left, right *Buffer) (*Buffer, error) {
	const op = "union"
	var (
		payloads [][]byte
		errs     error
	)
	for _, in := range []*Buffer{left, right} {
		data, ok, err := take(in)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if ok {
			payloads = append(payloads, data)
		}
	}
	if errs != nil {
		return nil, e.fail(op, errs)
	}

	st, err := newUnionState(e.lgK)
	if err != nil {
		return nil, e.fail(op, err)
	}
	for _, data := range payloads {
		sk, err := e.decode(data)
		if err == nil {
			err = st.union.UpdateSketch(sk)
		}
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return nil, e.fail(op, errs)
	}

	bytes, err := e.serialize(st)
	if err != nil {
		return nil, e.fail(op, err)
	}
	return NewBuffer(bytes), nil
}

// ToString renders the summary of the serialized sketch in, or "" for an absent buffer.
func (e *Extension) ToString(in *Buffer) (string, error) {
	const op = "to_string"
	data, ok, err := take(in)
	if err != nil {
		return "", e.fail(op, err)
	}
	if !ok {
		return "", nil
	}
	sk, err := e.decode(data)
	if err != nil {
		return "", e.fail(op, err)
	}
	return sk.String(false), nil
}

// acquire returns the state behind h, or a new state of kind when h is NoHandle.
func (e *Extension) acquire(h Handle, kind stateKind) (*state, error) {
	if h == NoHandle {
		if kind == unionKind {
			return newUnionState(e.lgK)
		}
		return newSketchState(e.lgK, e.tgtHllType)
	}
	st, err := e.consume(h)
	if err != nil {
		return nil, err
	}
	if st.kind != kind {
		return nil, fmt.Errorf("%w: handle %s holds a %s, want a %s", ErrStateKind, h, st.kind, kind)
	}
	return st, nil
}

func (e *Extension) store(op string, st *state) (Handle, error) {
	h, err := e.handles.put(st)
	if err != nil {
		return NoHandle, e.fail(op, err)
	}
	if ce := e.logger.Check(zap.DebugLevel, "Handle issued"); ce != nil {
		ce.Write(zap.String("op", op), zap.Stringer("handle", h), zap.Stringer("kind", st.kind))
	}
	return h, nil
}

func (e *Extension) consume(h Handle) (*state, error) {
	st, err := e.handles.take(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, h)
	}
	if ce := e.logger.Check(zap.DebugLevel, "Handle consumed"); ce != nil {
		ce.Write(zap.Stringer("handle", h), zap.Stringer("kind", st.kind))
	}
	return st, nil
}

// drop consumes h on a failure path that never got to use it.
func (e *Extension) drop(h Handle) {
	if h != NoHandle {
		_, _ = e.consume(h)
	}
}

func (e *Extension) serialize(st *state) ([]byte, error) {
	sk, err := st.resolve(e.tgtHllType)
	if err != nil {
		return nil, err
	}
	return sk.ToCompactSlice()
}

// decode reads a serialized sketch without retaining data. Any failure, including a
// panic inside the codec, is reported as a *DecodeError.
func (e *Extension) decode(data []byte) (sk hll.HllSketch, err error) {
	defer func() {
		if r := recover(); r != nil {
			sk, err = nil, newDecodeError(data, fmt.Errorf("%w: %v", hll.ErrInvalidImage, r))
		}
	}()
	sk, err = hll.NewHllSketchFromSlice(data, true)
	if err != nil {
		return nil, newDecodeError(data, err)
	}
	return sk, nil
}

// fail logs err for op and returns it.
func (e *Extension) fail(op string, err error) error {
	fields := []zap.Field{zap.String("op", op), zap.Error(err)}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		fields = append(fields,
			zap.Int("len", decodeErr.Len),
			zap.String("fingerprint", fmt.Sprintf("%016x", decodeErr.Fingerprint)))
	}
	e.logger.Warn("Sketch operation failed", fields...)
	return err
}
