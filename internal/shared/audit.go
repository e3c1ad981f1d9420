package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditLog is one ledger or stocktake action kept in audit_logs.
type AuditLog struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	Meta     map[string]any
	At       time.Time
}

func (l AuditLog) validate() error {
	switch {
	case l.Action == "":
		return errors.New("audit log action required")
	case l.Entity == "":
		return errors.New("audit log entity required")
	case l.EntityID == "":
		return errors.New("audit log entity id required")
	}
	return nil
}

// AuditLogger appends records to audit_logs. Storage semantics beyond the
// insert belong to whoever reads the table.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record appends the entry. A zero At falls back to the database clock.
func (l *AuditLogger) Record(ctx context.Context, entry AuditLog) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if err := entry.validate(); err != nil {
		return err
	}
	meta := entry.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode audit meta: %w", err)
	}
	var actor *int64
	if entry.ActorID != 0 {
		actor = &entry.ActorID
	}
	var at *time.Time
	if !entry.At.IsZero() {
		at = &entry.At
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_logs (actor_id, action, entity, entity_id, meta, occurred_at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, actor, entry.Action, entry.Entity, entry.EntityID, metaJSON, at)
	return err
}
