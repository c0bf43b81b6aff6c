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

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDedupSeen(t *testing.T) {
	dedup := NewMemoryDedup(time.Hour)
	ctx := context.Background()

	seen, err := dedup.Seen(ctx, "event-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = dedup.Seen(ctx, "event-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = dedup.Seen(ctx, "event-2")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.NoError(t, dedup.Close())
}

func TestMemoryDedupTTLEviction(t *testing.T) {
	dedup := NewMemoryDedup(10 * time.Millisecond)
	ctx := context.Background()

	_, err := dedup.Seen(ctx, "event-1")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	// The entry expired, so the id reads as fresh again.
	seen, err := dedup.Seen(ctx, "event-1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryDedupCancelledContext(t *testing.T) {
	dedup := NewMemoryDedup(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dedup.Seen(ctx, "event-1")
	assert.Error(t, err)
}

func TestRedisDedupConfigValidation(t *testing.T) {
	_, err := NewRedisDedup(context.Background(), nil)
	assert.Error(t, err)

	_, err = NewRedisDedup(context.Background(), &RedisDedupConfig{})
	assert.Error(t, err)
}
