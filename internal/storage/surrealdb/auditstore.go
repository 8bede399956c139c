package surrealdb

import (
	"context"
	"time"

	"github.com/meridiancompliance/opcheck/internal/common"
	"github.com/meridiancompliance/opcheck/internal/interfaces"
	"github.com/meridiancompliance/opcheck/internal/models"
	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// AuditSink implements interfaces.AuditSink using SurrealDB. Recording is
// best-effort (§4.10): a write failure is logged and dropped rather than
// propagated, since audit logging must never block the request path it
// observes.
type AuditSink struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewAuditSink creates a new AuditSink.
func NewAuditSink(db *surrealdb.DB, logger *common.Logger) *AuditSink {
	return &AuditSink{db: db, logger: logger}
}

func (s *AuditSink) Record(ctx context.Context, event models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	sql := "UPSERT $rid CONTENT $event"
	vars := map[string]any{"rid": surrealmodels.NewRecordID("audit_events", event.ID), "event": event}
	if _, err := surrealdb.Query[[]models.AuditEvent](ctx, s.db, sql, vars); err != nil {
		s.logger.Warn().Err(err).Str("action", event.Action).Str("fingerprint", event.Fingerprint).Msg("failed to record audit event")
	}
}

var _ interfaces.AuditSink = (*AuditSink)(nil)
