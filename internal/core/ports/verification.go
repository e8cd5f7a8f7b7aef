package ports

import (
	"context"

	"github.com/google/uuid"

	"tokendesk/internal/core/domain"
)

// VerificationRepository defines the persistence operations for KYC
// sessions and their accumulated sub-results. Session transitions are
// guarded updates: a transition from a terminal status must be a no-op
// reported through the returned bool, never an error. The two terminal
// transitions carry the decision write in the same transaction, so a
// session can never end up terminal with the record's decision missing
// or contradicting it.
type VerificationRepository interface {
	// CreateSession stores a new provider session in 'pending' linked to
	// a fresh verification record for the given user.
	CreateSession(ctx context.Context, userID, sessionID string) (*domain.VerificationSession, error)

	// GetSession finds a session by its provider id. Returns nil, nil
	// when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.VerificationSession, error)

	// MarkInProgress moves a pending session to in_progress. Returns
	// whether a row actually changed; any other current status is a
	// no-op.
	MarkInProgress(ctx context.Context, sessionID string) (bool, error)

	// UpsertDocument writes one document sub-result keyed
	// (session_id, document_id); replays overwrite the same row.
	UpsertDocument(ctx context.Context, doc *domain.DocumentResult) error

	// UpsertBiometrics writes the biometric sub-result for the session.
	UpsertBiometrics(ctx context.Context, bio *domain.BiometricResult) error

	// UpsertCompliance writes the compliance screening sub-result.
	UpsertCompliance(ctx context.Context, comp *domain.ComplianceResult) error

	// GetData reads back everything accumulated for the session so the
	// final status can be recomputed from scratch.
	GetData(ctx context.Context, sessionID string) (*domain.VerificationData, error)

	// CompleteSession moves a non-terminal session to completed and
	// writes the derived decision onto the owning record, both in one
	// transaction. Returns false without touching the record when the
	// session is already terminal, so a completion racing an expiry can
	// never overwrite the expiry's decline. personalInfo and address
	// arrive already encrypted.
	CompleteSession(ctx context.Context, sessionID string, verificationID uuid.UUID,
		status domain.VerificationStatus, riskScore int, declineReason, personalInfo, address *string) (bool, error)

	// ExpireSession moves a non-terminal session to expired and forces
	// the owning record to declined in the same transaction; either both
	// commit or neither does, so a retried expiry event always re-applies
	// the decline. Returns false when the session is already terminal.
	ExpireSession(ctx context.Context, sessionID string, verificationID uuid.UUID,
		riskScore int, declineReason *string) (bool, error)

	// GetRecord finds a verification record by id. Returns nil, nil when
	// absent.
	GetRecord(ctx context.Context, id uuid.UUID) (*domain.VerificationRecord, error)
}

// AuditLog records webhook handling attempts. Append-only.
type AuditLog interface {
	Record(ctx context.Context, entry *domain.AuditEntry) error
	ListBySession(ctx context.Context, sessionID string, limit int32) ([]*domain.AuditEntry, error)
}
