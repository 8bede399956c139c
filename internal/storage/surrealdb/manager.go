// Package surrealdb implements interfaces.StorageManager and its component
// stores against SurrealDB.
package surrealdb

import (
	"context"
	"fmt"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/surrealdb/surrealdb.go"
)

// Manager implements interfaces.StorageManager using SurrealDB.
type Manager struct {
	db     *surrealdb.DB
	logger *common.Logger

	evidenceStore   *EvidenceStore
	jobQueueStore   *JobQueueStore
	refreshRunStore *RefreshRunStore
	internalStore   *InternalStore
	auditSink       *AuditSink
}

// tables to ensure exist; SurrealDB errors on querying non-existent tables.
var tables = []string{"evidence", "job_queue", "refresh_runs", "user", "system_kv", "audit_events"}

// NewManager creates a new StorageManager connected to SurrealDB.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	ctx := context.Background()

	db, err := surrealdb.New(config.Storage.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Storage.User,
		"pass": config.Storage.Pass,
	}); err != nil {
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Storage.Namespace, config.Storage.Database); err != nil {
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	for _, table := range tables {
		sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", table)
		if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
			return nil, fmt.Errorf("failed to define table %s: %w", table, err)
		}
	}

	// inflight_fingerprint is only set while a job is pending/running and is
	// cleared on completion (see JobQueueStore), so this unique index enforces
	// §4.3's at-most-one-in-flight-job-per-fingerprint invariant: SurrealDB
	// does not index unset fields, so terminal jobs never collide.
	const jobInflightIndexSQL = "DEFINE INDEX IF NOT EXISTS idx_job_inflight_fingerprint " +
		"ON TABLE job_queue COLUMNS inflight_fingerprint UNIQUE"
	if _, err := surrealdb.Query[any](ctx, db, jobInflightIndexSQL, nil); err != nil {
		return nil, fmt.Errorf("failed to define job_queue inflight index: %w", err)
	}

	m := &Manager{db: db, logger: logger}
	m.evidenceStore = NewEvidenceStore(db, logger, config.Screening.ValidityDays)
	m.jobQueueStore = NewJobQueueStore(db, logger, m.evidenceStore)
	m.refreshRunStore = NewRefreshRunStore(db, logger)
	m.internalStore = NewInternalStore(db, logger)
	m.auditSink = NewAuditSink(db, logger)

	logger.Info().
		Str("address", config.Storage.Address).
		Str("namespace", config.Storage.Namespace).
		Str("database", config.Storage.Database).
		Msg("SurrealDB storage manager initialized")

	return m, nil
}

func (m *Manager) EvidenceStore() interfaces.EvidenceStore     { return m.evidenceStore }
func (m *Manager) JobQueueStore() interfaces.JobQueueStore     { return m.jobQueueStore }
func (m *Manager) RefreshRunStore() interfaces.RefreshRunStore { return m.refreshRunStore }
func (m *Manager) InternalStore() interfaces.InternalStore     { return m.internalStore }
func (m *Manager) AuditSink() interfaces.AuditSink             { return m.auditSink }

func (m *Manager) Close() error {
	m.db.Close(context.Background())
	return nil
}

// Compile-time check
var _ interfaces.StorageManager = (*Manager)(nil)
