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
	"go.uber.org/zap"

	"github.com/datasketches-ext/hllagg/hll"
)

const (
	// DefaultLgK is the precision of sketches and unions created by the extension.
	DefaultLgK = 12
	// DefaultTgtHllType is the register width of built sketches and union results.
	DefaultTgtHllType = hll.TgtHllTypeHll4
)

type extensionOptions struct {
	lgK        int
	tgtHllType hll.TgtHllType
	maxHandles int
	logger     *zap.Logger
}

type ExtensionOptionFunc func(*extensionOptions)

// WithLgK sets log2(K) for new sketches and unions (defaults to 12).
func WithLgK(lgK int) ExtensionOptionFunc {
	return func(opts *extensionOptions) {
		opts.lgK = lgK
	}
}

// WithTgtHllType sets the type of built sketches and of materialized union results
// (defaults to HLL_4).
func WithTgtHllType(tgtHllType hll.TgtHllType) ExtensionOptionFunc {
	return func(opts *extensionOptions) {
		opts.tgtHllType = tgtHllType
	}
}

// WithMaxHandles caps the number of live states. Zero, the default, means no cap.
func WithMaxHandles(n int) ExtensionOptionFunc {
	return func(opts *extensionOptions) {
		opts.maxHandles = n
	}
}

// WithLogger sets the logger for failed operations and handle lifecycle events.
func WithLogger(logger *zap.Logger) ExtensionOptionFunc {
	return func(opts *extensionOptions) {
		opts.logger = logger
	}
}
