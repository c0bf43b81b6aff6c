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

// Package storage provides the audit store backends: an in-memory store for
// development and tests, and a PostgreSQL store for production, plus the
// event-id dedup caches used by the dispatcher.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/state"
)

// MemoryStore is an in-memory saga.AuditStore. It is safe for concurrent
// use and implements the same optimistic-version semantics as the durable
// backends, which makes it a faithful stand-in for tests.
type MemoryStore struct {
	mu     sync.RWMutex
	sagas  map[string]*saga.Instance
	steps  map[string][]*saga.StepInstance
	closed bool
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sagas: make(map[string]*saga.Instance),
		steps: make(map[string][]*saga.StepInstance),
	}
}

// SaveSaga inserts a new saga instance.
func (m *MemoryStore) SaveSaga(ctx context.Context, instance *saga.Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return state.ErrStoreClosed
	}
	if _, exists := m.sagas[instance.ID]; exists {
		return state.ErrDuplicateSaga
	}
	m.sagas[instance.ID] = instance.Clone()
	return nil
}

// UpdateSaga writes the instance back under the version check and bumps the
// caller's copy to the new version on success.
func (m *MemoryStore) UpdateSaga(ctx context.Context, instance *saga.Instance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return state.ErrStoreClosed
	}
	stored, exists := m.sagas[instance.ID]
	if !exists {
		return state.ErrSagaNotFound
	}
	if stored.Version != instance.Version {
		return state.ErrVersionConflict
	}

	instance.Version++
	instance.UpdatedAt = time.Now().UTC()
	m.sagas[instance.ID] = instance.Clone()
	return nil
}

// GetSaga retrieves a saga instance by id.
func (m *MemoryStore) GetSaga(ctx context.Context, sagaID string) (*saga.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, state.ErrStoreClosed
	}
	stored, exists := m.sagas[sagaID]
	if !exists {
		return nil, state.ErrSagaNotFound
	}
	return stored.Clone(), nil
}

// ListSagas returns all saga instances ordered by creation time.
func (m *MemoryStore) ListSagas(ctx context.Context) ([]*saga.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, state.ErrStoreClosed
	}
	result := make([]*saga.Instance, 0, len(m.sagas))
	for _, stored := range m.sagas {
		result = append(result, stored.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// AppendStep appends a new step row.
func (m *MemoryStore) AppendStep(ctx context.Context, step *saga.StepInstance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return state.ErrStoreClosed
	}
	if _, exists := m.sagas[step.SagaInstanceID]; !exists {
		return state.ErrSagaNotFound
	}
	m.steps[step.SagaInstanceID] = append(m.steps[step.SagaInstanceID], step.Clone())
	return nil
}

// UpdateStep rewrites the step row identified by step.ID.
func (m *MemoryStore) UpdateStep(ctx context.Context, step *saga.StepInstance) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return state.ErrStoreClosed
	}
	rows := m.steps[step.SagaInstanceID]
	for i, row := range rows {
		if row.ID == step.ID {
			rows[i] = step.Clone()
			return nil
		}
	}
	return state.ErrStepNotFound
}

// GetSteps returns all step rows of a saga in append order.
func (m *MemoryStore) GetSteps(ctx context.Context, sagaID string) ([]*saga.StepInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, state.ErrStoreClosed
	}
	rows := m.steps[sagaID]
	result := make([]*saga.StepInstance, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.Clone())
	}
	return result, nil
}

// Close marks the store closed; further operations fail with ErrStoreClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ saga.AuditStore = (*MemoryStore)(nil)
