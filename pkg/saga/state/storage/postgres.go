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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga"
	"github.com/0xMYsteRy/saga-microservices-banking-mvp/pkg/saga/state"
)

// postgresSchema is the DDL applied on open. saga_instances is mutated in
// place (status, step index, version); saga_step_instances is append-only,
// one row per attempt.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS saga_instances (
    id                 TEXT PRIMARY KEY,
    saga_type          TEXT        NOT NULL,
    status             TEXT        NOT NULL,
    current_step_index INT         NOT NULL,
    payload            JSONB,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL,
    version            BIGINT      NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_instances_status ON saga_instances (status);
CREATE INDEX IF NOT EXISTS idx_saga_instances_created_at ON saga_instances (created_at);

CREATE TABLE IF NOT EXISTS saga_step_instances (
    id               TEXT PRIMARY KEY,
    saga_instance_id TEXT        NOT NULL REFERENCES saga_instances (id),
    step_name        TEXT        NOT NULL,
    status           TEXT        NOT NULL,
    payload_snapshot JSONB,
    error_message    TEXT        NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_step_instances_saga_id
    ON saga_step_instances (saga_instance_id, created_at);
`

// PostgresConfig configures the PostgreSQL audit store.
type PostgresConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxOpenConns bounds the connection pool. Defaults to 10.
	MaxOpenConns int

	// MaxIdleConns bounds idle pooled connections. Defaults to 5.
	MaxIdleConns int

	// ConnMaxLifetime recycles connections after this duration. Defaults to 30m.
	ConnMaxLifetime time.Duration

	// ConnectTimeout bounds the initial ping. Defaults to 10s.
	ConnectTimeout time.Duration

	// AutoMigrate applies the schema DDL on open. Defaults to true via
	// DefaultPostgresConfig.
	AutoMigrate bool
}

// DefaultPostgresConfig returns the default configuration for the given DSN.
func DefaultPostgresConfig(dsn string) *PostgresConfig {
	return &PostgresConfig{
		DSN:             dsn,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		AutoMigrate:     true,
	}
}

// PostgresStore is the durable saga.AuditStore backed by PostgreSQL.
// Instance updates use a version guard in the WHERE clause so concurrent
// writers cannot interleave; step rows are inserted and never deleted.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the connection pool, verifies connectivity and
// applies the schema when AutoMigrate is set.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	if config == nil || config.DSN == "" {
		return nil, fmt.Errorf("postgres: DSN is required")
	}
	if config.MaxOpenConns <= 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns <= 0 {
		config.MaxIdleConns = 5
	}
	if config.ConnMaxLifetime <= 0 {
		config.ConnMaxLifetime = 30 * time.Minute
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	db, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	store := &PostgresStore{db: db}
	if config.AutoMigrate {
		if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres: apply schema: %w", err)
		}
	}
	return store, nil
}

// newPostgresStoreWithDB wires an existing handle; used by tests with sqlmock.
func newPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveSaga inserts a new saga instance row.
func (p *PostgresStore) SaveSaga(ctx context.Context, instance *saga.Instance) error {
	const q = `
		INSERT INTO saga_instances
			(id, saga_type, status, current_step_index, payload, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	res, err := p.db.ExecContext(ctx, q,
		instance.ID,
		instance.SagaType,
		instance.Status.String(),
		instance.CurrentStepIndex,
		nullableJSON(instance.Payload),
		instance.CreatedAt,
		instance.UpdatedAt,
		instance.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: save saga %s: %w", instance.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: save saga %s: %w", instance.ID, err)
	}
	if affected == 0 {
		return state.ErrDuplicateSaga
	}
	return nil
}

// UpdateSaga writes the instance back guarded by its version. A zero row
// count means either a lost race or a missing row; the follow-up read
// disambiguates the two.
func (p *PostgresStore) UpdateSaga(ctx context.Context, instance *saga.Instance) error {
	const q = `
		UPDATE saga_instances
		SET    status = $1, current_step_index = $2, payload = $3,
		       updated_at = $4, version = version + 1
		WHERE  id = $5 AND version = $6`

	updatedAt := time.Now().UTC()
	res, err := p.db.ExecContext(ctx, q,
		instance.Status.String(),
		instance.CurrentStepIndex,
		nullableJSON(instance.Payload),
		updatedAt,
		instance.ID,
		instance.Version,
	)
	if err != nil {
		return fmt.Errorf("postgres: update saga %s: %w", instance.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update saga %s: %w", instance.ID, err)
	}
	if affected == 0 {
		if _, getErr := p.GetSaga(ctx, instance.ID); getErr != nil {
			return getErr
		}
		return state.ErrVersionConflict
	}

	instance.Version++
	instance.UpdatedAt = updatedAt
	return nil
}

// GetSaga retrieves a saga instance by id.
func (p *PostgresStore) GetSaga(ctx context.Context, sagaID string) (*saga.Instance, error) {
	const q = `
		SELECT id, saga_type, status, current_step_index, payload, created_at, updated_at, version
		FROM   saga_instances
		WHERE  id = $1`

	instance, err := scanInstance(p.db.QueryRowContext(ctx, q, sagaID))
	if err == sql.ErrNoRows {
		return nil, state.ErrSagaNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get saga %s: %w", sagaID, err)
	}
	return instance, nil
}

// ListSagas returns all saga instances ordered by creation time.
func (p *PostgresStore) ListSagas(ctx context.Context) ([]*saga.Instance, error) {
	const q = `
		SELECT id, saga_type, status, current_step_index, payload, created_at, updated_at, version
		FROM   saga_instances
		ORDER  BY created_at, id`

	rows, err := p.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres: list sagas: %w", err)
	}
	defer rows.Close()

	var result []*saga.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: list sagas: %w", err)
		}
		result = append(result, instance)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list sagas: %w", err)
	}
	return result, nil
}

// AppendStep inserts a new step row.
func (p *PostgresStore) AppendStep(ctx context.Context, step *saga.StepInstance) error {
	const q = `
		INSERT INTO saga_step_instances
			(id, saga_instance_id, step_name, status, payload_snapshot, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.db.ExecContext(ctx, q,
		step.ID,
		step.SagaInstanceID,
		step.StepName,
		step.Status.String(),
		nullableJSON(step.PayloadSnapshot),
		step.ErrorMessage,
		step.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append step %s/%s: %w", step.SagaInstanceID, step.StepName, err)
	}
	return nil
}

// UpdateStep rewrites the step row identified by step.ID.
func (p *PostgresStore) UpdateStep(ctx context.Context, step *saga.StepInstance) error {
	const q = `
		UPDATE saga_step_instances
		SET    status = $1, payload_snapshot = $2, error_message = $3
		WHERE  id = $4`

	res, err := p.db.ExecContext(ctx, q,
		step.Status.String(),
		nullableJSON(step.PayloadSnapshot),
		step.ErrorMessage,
		step.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update step %s: %w", step.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: update step %s: %w", step.ID, err)
	}
	if affected == 0 {
		return state.ErrStepNotFound
	}
	return nil
}

// GetSteps returns all step rows of a saga in append order.
func (p *PostgresStore) GetSteps(ctx context.Context, sagaID string) ([]*saga.StepInstance, error) {
	const q = `
		SELECT id, saga_instance_id, step_name, status, payload_snapshot, error_message, created_at
		FROM   saga_step_instances
		WHERE  saga_instance_id = $1
		ORDER  BY created_at, id`

	rows, err := p.db.QueryContext(ctx, q, sagaID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get steps %s: %w", sagaID, err)
	}
	defer rows.Close()

	var result []*saga.StepInstance
	for rows.Next() {
		var (
			step      saga.StepInstance
			rawStatus string
			payload   []byte
		)
		if err := rows.Scan(&step.ID, &step.SagaInstanceID, &step.StepName, &rawStatus,
			&payload, &step.ErrorMessage, &step.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: get steps %s: %w", sagaID, err)
		}
		status, err := saga.ParseStepStatus(rawStatus)
		if err != nil {
			return nil, fmt.Errorf("postgres: get steps %s: %w", sagaID, err)
		}
		step.Status = status
		step.PayloadSnapshot = payload
		result = append(result, &step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get steps %s: %w", sagaID, err)
	}
	return result, nil
}

// Close releases the connection pool.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row rowScanner) (*saga.Instance, error) {
	var (
		instance  saga.Instance
		rawStatus string
		payload   []byte
	)
	if err := row.Scan(&instance.ID, &instance.SagaType, &rawStatus, &instance.CurrentStepIndex,
		&payload, &instance.CreatedAt, &instance.UpdatedAt, &instance.Version); err != nil {
		return nil, err
	}
	status, err := saga.ParseStatus(rawStatus)
	if err != nil {
		return nil, err
	}
	instance.Status = status
	instance.Payload = payload
	return &instance, nil
}

// nullableJSON stores NULL instead of an empty JSONB value.
func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

var _ saga.AuditStore = (*PostgresStore)(nil)
