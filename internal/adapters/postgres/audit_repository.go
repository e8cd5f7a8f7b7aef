package postgres

import (
	"context"

	"github.com/rs/zerolog"

	"tokendesk/internal/core/domain"
	"tokendesk/internal/core/ports"
)

type auditRepository struct {
	db  *DB
	log zerolog.Logger
}

var _ ports.AuditLog = (*auditRepository)(nil) // Ensure compliance

// NewAuditRepository creates the append-only audit log for webhook
// handling attempts.
func NewAuditRepository(db *DB, baseLogger *zerolog.Logger) ports.AuditLog {
	return &auditRepository{
		db:  db,
		log: baseLogger.With().Str("component", "audit_repo").Logger(),
	}
}

// Record appends one entry. There is no update or delete path.
func (r *auditRepository) Record(ctx context.Context, entry *domain.AuditEntry) error {
	err := r.db.pool.QueryRow(ctx, `
		INSERT INTO webhook_audit (session_id, action, description, payload, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at
	`, entry.SessionID, entry.Action, entry.Description, entry.Payload).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", entry.SessionID).Str("action", entry.Action).Msg("Failed to insert audit entry")
	}
	return err
}

// ListBySession returns the newest entries for a session.
func (r *auditRepository) ListBySession(ctx context.Context, sessionID string, limit int32) ([]*domain.AuditEntry, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, session_id, action, description, payload, created_at
		FROM webhook_audit WHERE session_id = $1 ORDER BY id DESC LIMIT $2
	`, sessionID, limit)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to list audit entries")
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Action, &e.Description, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
