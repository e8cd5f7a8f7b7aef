package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/domain"
	"tokendesk/internal/core/ports"
)

type verificationRepository struct {
	db  *DB
	log zerolog.Logger
}

var _ ports.VerificationRepository = (*verificationRepository)(nil) // Ensure compliance

// NewVerificationRepository creates the repository for KYC sessions and
// their accumulated sub-results.
func NewVerificationRepository(db *DB, baseLogger *zerolog.Logger) ports.VerificationRepository {
	return &verificationRepository{
		db:  db,
		log: baseLogger.With().Str("component", "verification_repo").Logger(),
	}
}

// CreateSession stores a new pending session linked to a fresh
// verification record, both in one transaction.
func (r *verificationRepository) CreateSession(ctx context.Context, userID, sessionID string) (*domain.VerificationSession, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	verificationID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO verification_records (id, user_id, status, risk_score, created_at, updated_at)
		VALUES ($1, $2, 'pending', 0, now(), now())
	`, verificationID, userID)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", userID).Msg("Failed to insert verification record")
		return nil, err
	}

	var sess domain.VerificationSession
	err = tx.QueryRow(ctx, `
		INSERT INTO verification_sessions (session_id, verification_id, status, last_event_at)
		VALUES ($1, $2, 'pending', now())
		RETURNING session_id, verification_id, status, last_event_at
	`, sessionID, verificationID).Scan(&sess.SessionID, &sess.VerificationID, &sess.Status, &sess.LastEventAt)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to insert verification session")
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession finds a session by its provider id. Returns nil, nil when
// absent.
func (r *verificationRepository) GetSession(ctx context.Context, sessionID string) (*domain.VerificationSession, error) {
	var sess domain.VerificationSession
	err := r.db.pool.QueryRow(ctx, `
		SELECT session_id, verification_id, status, last_event_at
		FROM verification_sessions WHERE session_id = $1
	`, sessionID).Scan(&sess.SessionID, &sess.VerificationID, &sess.Status, &sess.LastEventAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to scan session row")
		return nil, err
	}
	return &sess, nil
}

// MarkInProgress applies the guarded pending -> in_progress move. A
// replay or an out-of-order event affects zero rows instead of
// corrupting a later state.
func (r *verificationRepository) MarkInProgress(ctx context.Context, sessionID string) (bool, error) {
	ct, err := r.db.pool.Exec(ctx, `
		UPDATE verification_sessions SET status = 'in_progress', last_event_at = now()
		WHERE session_id = $1 AND status = 'pending'
	`, sessionID)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to mark session in progress")
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

// UpsertDocument writes one document sub-result. Replays overwrite the
// same (session_id, document_id) row.
func (r *verificationRepository) UpsertDocument(ctx context.Context, doc *domain.DocumentResult) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO verification_documents (session_id, document_id, doc_type, status, confidence, extracted_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, document_id) DO UPDATE SET
			doc_type = EXCLUDED.doc_type,
			status = EXCLUDED.status,
			confidence = EXCLUDED.confidence,
			extracted_data = EXCLUDED.extracted_data
	`, doc.SessionID, doc.DocumentID, doc.Type, doc.Status, doc.Confidence, doc.Extracted)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", doc.SessionID).Str("document_id", doc.DocumentID).Msg("Failed to upsert document")
	}
	return err
}

// UpsertBiometrics writes the single biometric sub-result per session.
func (r *verificationRepository) UpsertBiometrics(ctx context.Context, bio *domain.BiometricResult) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO verification_biometrics (session_id, face_match_confidence, face_match_verified, liveness_score, liveness_passed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
			face_match_confidence = EXCLUDED.face_match_confidence,
			face_match_verified = EXCLUDED.face_match_verified,
			liveness_score = EXCLUDED.liveness_score,
			liveness_passed = EXCLUDED.liveness_passed
	`, bio.SessionID, bio.FaceMatchConfidence, bio.FaceMatchVerified, bio.LivenessScore, bio.LivenessPassed)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", bio.SessionID).Msg("Failed to upsert biometrics")
	}
	return err
}

// UpsertCompliance writes the single compliance sub-result per session.
func (r *verificationRepository) UpsertCompliance(ctx context.Context, comp *domain.ComplianceResult) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO verification_compliance (session_id, aml_passed, aml_risk_level, sanctions_passed, sanctions_hits, pep_passed, pep_risk_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			aml_passed = EXCLUDED.aml_passed,
			aml_risk_level = EXCLUDED.aml_risk_level,
			sanctions_passed = EXCLUDED.sanctions_passed,
			sanctions_hits = EXCLUDED.sanctions_hits,
			pep_passed = EXCLUDED.pep_passed,
			pep_risk_level = EXCLUDED.pep_risk_level
	`, comp.SessionID, comp.AMLPassed, comp.AMLRiskLevel, comp.SanctionsPassed, comp.SanctionsHits, comp.PEPPassed, comp.PEPRiskLevel)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", comp.SessionID).Msg("Failed to upsert compliance")
	}
	return err
}

// GetData reads back everything accumulated for the session.
func (r *verificationRepository) GetData(ctx context.Context, sessionID string) (*domain.VerificationData, error) {
	sess, err := r.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}

	data := &domain.VerificationData{Session: *sess}

	rows, err := r.db.pool.Query(ctx, `
		SELECT session_id, document_id, doc_type, status, confidence, extracted_data
		FROM verification_documents WHERE session_id = $1 ORDER BY document_id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d domain.DocumentResult
		if err := rows.Scan(&d.SessionID, &d.DocumentID, &d.Type, &d.Status, &d.Confidence, &d.Extracted); err != nil {
			return nil, err
		}
		data.Documents = append(data.Documents, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var bio domain.BiometricResult
	err = r.db.pool.QueryRow(ctx, `
		SELECT session_id, face_match_confidence, face_match_verified, liveness_score, liveness_passed
		FROM verification_biometrics WHERE session_id = $1
	`, sessionID).Scan(&bio.SessionID, &bio.FaceMatchConfidence, &bio.FaceMatchVerified, &bio.LivenessScore, &bio.LivenessPassed)
	if err == nil {
		data.Biometrics = &bio
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	var comp domain.ComplianceResult
	err = r.db.pool.QueryRow(ctx, `
		SELECT session_id, aml_passed, aml_risk_level, sanctions_passed, sanctions_hits, pep_passed, pep_risk_level
		FROM verification_compliance WHERE session_id = $1
	`, sessionID).Scan(&comp.SessionID, &comp.AMLPassed, &comp.AMLRiskLevel, &comp.SanctionsPassed, &comp.SanctionsHits, &comp.PEPPassed, &comp.PEPRiskLevel)
	if err == nil {
		data.Compliance = &comp
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	err = r.db.pool.QueryRow(ctx, `
		SELECT risk_score FROM verification_records WHERE id = $1
	`, sess.VerificationID).Scan(&data.RiskScore)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	return data, nil
}

// CompleteSession fuses the guarded move to 'completed' with the decision
// write. The session row update runs first inside the transaction: zero
// rows affected means another event already made the session terminal, so
// the record is left untouched and the caller sees false.
func (r *verificationRepository) CompleteSession(ctx context.Context, sessionID string, verificationID uuid.UUID,
	status domain.VerificationStatus, riskScore int, declineReason, personalInfo, address *string) (bool, error) {
	return r.finishSession(ctx, sessionID, domain.SessionCompleted, verificationID, status, riskScore, declineReason, personalInfo, address)
}

// ExpireSession fuses the guarded move to 'expired' with the forced
// decline. Either both commit or neither does, so a provider retry after
// a failed attempt re-applies the whole pair.
func (r *verificationRepository) ExpireSession(ctx context.Context, sessionID string, verificationID uuid.UUID,
	riskScore int, declineReason *string) (bool, error) {
	return r.finishSession(ctx, sessionID, domain.SessionExpired, verificationID, domain.VerificationDeclined, riskScore, declineReason, nil, nil)
}

func (r *verificationRepository) finishSession(ctx context.Context, sessionID string, to domain.SessionStatus,
	verificationID uuid.UUID, status domain.VerificationStatus, riskScore int, declineReason, personalInfo, address *string) (bool, error) {
	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	// Fixed statements keyed off the target, same pattern as the vote
	// tally updates.
	transition := `
		UPDATE verification_sessions SET status = 'completed', last_event_at = now()
		WHERE session_id = $1 AND status IN ('pending', 'in_progress')
	`
	if to == domain.SessionExpired {
		transition = `
			UPDATE verification_sessions SET status = 'expired', last_event_at = now()
			WHERE session_id = $1 AND status IN ('pending', 'in_progress')
		`
	}

	ct, err := tx.Exec(ctx, transition, sessionID)
	if err != nil {
		r.log.Error().Err(err).Str("session_id", sessionID).Str("to", string(to)).Msg("Failed to transition session")
		return false, err
	}
	if ct.RowsAffected() == 0 {
		// Already terminal; the decision that got there first stands.
		return false, nil
	}

	// Encrypted fields passed as nil keep their stored value, so an
	// expiry does not wipe data recorded by an earlier event.
	ct, err = tx.Exec(ctx, `
		UPDATE verification_records SET
			status = $2,
			risk_score = $3,
			decline_reason = $4,
			personal_info = COALESCE($5, personal_info),
			address = COALESCE($6, address),
			updated_at = now()
		WHERE id = $1
	`, verificationID, status, riskScore, declineReason, personalInfo, address)
	if err != nil {
		r.log.Error().Err(err).Str("verification_id", verificationID.String()).Msg("Failed to write verification result")
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, domain.ErrSessionNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// GetRecord finds a verification record by id. Returns nil, nil when
// absent.
func (r *verificationRepository) GetRecord(ctx context.Context, id uuid.UUID) (*domain.VerificationRecord, error) {
	var rec domain.VerificationRecord
	err := r.db.pool.QueryRow(ctx, `
		SELECT id, user_id, status, risk_score, decline_reason, personal_info, address, created_at, updated_at
		FROM verification_records WHERE id = $1
	`, id).Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Status,
		&rec.RiskScore,
		&rec.DeclineReason,
		&rec.PersonalInfo,
		&rec.Address,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.log.Error().Err(err).Str("verification_id", id.String()).Msg("Failed to scan verification record")
		return nil, err
	}
	return &rec, nil
}
