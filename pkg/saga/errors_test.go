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

package saga

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"validation", NewValidationError("bad type %q", "x"), IsValidation},
		{"illegal state", NewIllegalStateError("cannot advance"), IsIllegalState},
		{"delivery", NewDeliveryError(errors.New("broker down"), "send failed"), IsDelivery},
		{"orphan event", NewOrphanEventError("saga-1", "event-1"), IsOrphanEvent},
		{"compensation failed", NewCompensationFailedError("open-account", errors.New("timeout")), IsCompensationFailed},
		{"saga not found", NewSagaNotFoundError("saga-1"), IsSagaNotFound},
		{"retry exhausted", NewRetryExhaustedError("send", 3, errors.New("down")), IsRetryExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.False(t, tt.check(errors.New("plain error")))
			assert.False(t, tt.check(nil))
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDeliveryError(cause, "send to %s", "account-service")

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "DELIVERY_ERROR")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestErrorClassifiersSeeThroughWrapping(t *testing.T) {
	inner := NewOrphanEventError("saga-1", "event-1")
	wrapped := fmt.Errorf("handling event: %w", inner)

	assert.True(t, IsOrphanEvent(wrapped))
	assert.False(t, IsValidation(wrapped))
}

func TestRetryableFlag(t *testing.T) {
	assert.True(t, IsRetryable(NewDeliveryError(nil, "down")))
	assert.True(t, IsRetryable(NewStorageError("UpdateSaga", errors.New("io"))))
	assert.False(t, IsRetryable(NewValidationError("bad")))
	assert.False(t, IsRetryable(NewIllegalStateError("bad transition")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestErrorMessageWithoutCause(t *testing.T) {
	err := NewSagaNotFoundError("saga-42")
	require.Nil(t, errors.Unwrap(err))
	assert.Equal(t, `SAGA_NOT_FOUND: saga "saga-42" not found`, err.Error())
}
