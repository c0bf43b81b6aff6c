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

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/state"
)

func newInstance(id string, createdAt time.Time) *saga.Instance {
	return &saga.Instance{
		ID:        id,
		SagaType:  "payment-processing",
		Status:    saga.StatusStarted,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
		Version:   1,
	}
}

func TestMemoryStoreSaveAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveSaga(ctx, newInstance("saga-1", now)))

	got, err := store.GetSaga(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, "saga-1", got.ID)
	assert.Equal(t, int64(1), got.Version)

	_, err = store.GetSaga(ctx, "missing")
	assert.ErrorIs(t, err, state.ErrSagaNotFound)
}

func TestMemoryStoreDuplicateSave(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveSaga(ctx, newInstance("saga-1", now)))
	err := store.SaveSaga(ctx, newInstance("saga-1", now))
	assert.ErrorIs(t, err, state.ErrDuplicateSaga)
}

func TestMemoryStoreOptimisticConcurrency(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveSaga(ctx, newInstance("saga-1", now)))

	// Two readers get the same version.
	first, err := store.GetSaga(ctx, "saga-1")
	require.NoError(t, err)
	second, err := store.GetSaga(ctx, "saga-1")
	require.NoError(t, err)

	first.Status = saga.StatusInProgress
	require.NoError(t, store.UpdateSaga(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	// The second writer lost the race.
	second.Status = saga.StatusFailed
	err = store.UpdateSaga(ctx, second)
	assert.ErrorIs(t, err, state.ErrVersionConflict)

	got, err := store.GetSaga(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusInProgress, got.Status)
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	original := newInstance("saga-1", now)
	require.NoError(t, store.SaveSaga(ctx, original))

	// Mutating the caller's copy must not leak into the store.
	original.Status = saga.StatusFailed
	got, err := store.GetSaga(ctx, "saga-1")
	require.NoError(t, err)
	assert.Equal(t, saga.StatusStarted, got.Status)
}

func TestMemoryStoreListOrdering(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.SaveSaga(ctx, newInstance("saga-b", base.Add(time.Second))))
	require.NoError(t, store.SaveSaga(ctx, newInstance("saga-a", base)))
	require.NoError(t, store.SaveSaga(ctx, newInstance("saga-c", base.Add(time.Second))))

	all, err := store.ListSagas(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "saga-a", all[0].ID)
	assert.Equal(t, "saga-b", all[1].ID)
	assert.Equal(t, "saga-c", all[2].ID)
}

func TestMemoryStoreSteps(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveSaga(ctx, newInstance("saga-1", now)))

	step := &saga.StepInstance{
		ID:             "step-1",
		SagaInstanceID: "saga-1",
		StepName:       "debit-source-account",
		Status:         saga.StepStatusStarted,
		CreatedAt:      now,
	}
	require.NoError(t, store.AppendStep(ctx, step))

	step.Status = saga.StepStatusCompleted
	require.NoError(t, store.UpdateStep(ctx, step))

	steps, err := store.GetSteps(ctx, "saga-1")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, saga.StepStatusCompleted, steps[0].Status)

	// Updating an unknown row fails.
	err = store.UpdateStep(ctx, &saga.StepInstance{ID: "nope", SagaInstanceID: "saga-1"})
	assert.ErrorIs(t, err, state.ErrStepNotFound)

	// Appending to an unknown saga fails.
	err = store.AppendStep(ctx, &saga.StepInstance{ID: "step-2", SagaInstanceID: "missing"})
	assert.ErrorIs(t, err, state.ErrSagaNotFound)
}

func TestMemoryStoreClosed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Close())

	err := store.SaveSaga(ctx, newInstance("saga-1", time.Now().UTC()))
	assert.ErrorIs(t, err, state.ErrStoreClosed)
	_, err = store.ListSagas(ctx)
	assert.ErrorIs(t, err, state.ErrStoreClosed)
}
