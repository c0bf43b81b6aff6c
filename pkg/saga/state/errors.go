// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package state implements the saga state manager: the single writer to the
// audit store, enforcing lifecycle legality and idempotent transitions.
package state

import "errors"

// Sentinel errors shared by all audit store implementations.
var (
	// ErrSagaNotFound is returned when the requested saga id does not exist.
	ErrSagaNotFound = errors.New("saga instance not found")

	// ErrDuplicateSaga is returned when inserting a saga id that already exists.
	ErrDuplicateSaga = errors.New("saga instance already exists")

	// ErrStepNotFound is returned when updating a step row that does not exist.
	ErrStepNotFound = errors.New("saga step instance not found")

	// ErrVersionConflict is returned when an optimistic-concurrency update
	// lost the race: the stored row no longer carries the expected version.
	ErrVersionConflict = errors.New("saga instance version conflict")

	// ErrStoreClosed is returned for operations against a closed store.
	ErrStoreClosed = errors.New("audit store is closed")
)
