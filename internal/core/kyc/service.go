package kyc

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/domain"
	"tokendesk/internal/core/ports"
)

const (
	// Provider scores run 0-100 with higher meaning more trustworthy;
	// anything below this floor blocks approval.
	minAcceptableRiskScore = 70

	expiredReason  = "Session expired"
	declinedReason = "One or more verification checks failed"
)

// Policy holds the operator-configurable decision knobs.
type Policy struct {
	// RequireDocuments blocks approval when no document was ever
	// submitted. Disabling it restores the provider's vacuous-true
	// reading of an empty document set.
	RequireDocuments bool
}

// Service is the identity verification state machine. It owns no state of
// its own; every transition is a guarded persistence operation so replayed
// events cannot double-count or resurrect a terminal session.
type Service struct {
	repo   ports.VerificationRepository
	audit  ports.AuditLog
	sec    ports.SecurityPort
	bus    ports.EventBus
	policy Policy
	log    zerolog.Logger
}

func NewService(repo ports.VerificationRepository, audit ports.AuditLog, sec ports.SecurityPort, bus ports.EventBus, policy Policy, baseLogger *zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		audit:  audit,
		sec:    sec,
		bus:    bus,
		policy: policy,
		log:    baseLogger.With().Str("component", "kyc").Logger(),
	}
}

// StartSession registers a provider-issued session id for a user.
func (s *Service) StartSession(ctx context.Context, userID, sessionID string) (*domain.VerificationSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(sessionID) == "" {
		verr := domain.NewValidationError()
		verr.Add("sessionId", "must not be empty")
		return nil, verr
	}
	sess, err := s.repo.CreateSession(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("Verification session created")
	return sess, nil
}

// HandleWebhookEvent processes one provider event. An audit entry is
// written before dispatch and a second one on failure, then the error is
// re-raised so the HTTP layer can answer 500. Unknown event types are
// logged and ignored.
func (s *Service) HandleWebhookEvent(ctx context.Context, raw []byte, evt *WebhookEvent) error {
	s.recordAudit(ctx, evt.SessionID, "webhook_"+evt.Event, "received provider event", raw)

	if err := s.dispatch(ctx, evt); err != nil {
		s.recordAudit(ctx, evt.SessionID, "webhook_failure", err.Error(), raw)
		s.log.Error().Err(err).Str("session_id", evt.SessionID).Str("event", evt.Event).Msg("Webhook event failed")
		return err
	}

	_ = s.bus.Publish(ctx, ports.TopicVerificationEvent, evt.SessionID)
	return nil
}

func (s *Service) dispatch(ctx context.Context, evt *WebhookEvent) error {
	sess, err := s.repo.GetSession(ctx, evt.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return domain.ErrSessionNotFound
	}

	switch evt.Event {
	case EventSessionStarted:
		return s.handleStarted(ctx, sess)
	case EventDocumentUploaded:
		return s.handleDocuments(ctx, sess, evt)
	case EventVerificationCompleted:
		return s.handleCompleted(ctx, sess, evt)
	case EventSessionExpired:
		return s.handleExpired(ctx, sess, evt)
	default:
		s.log.Warn().Str("session_id", evt.SessionID).Str("event", evt.Event).Msg("Ignoring unknown webhook event type")
		return nil
	}
}

func (s *Service) handleStarted(ctx context.Context, sess *domain.VerificationSession) error {
	changed, err := s.repo.MarkInProgress(ctx, sess.SessionID)
	if err != nil {
		return fmt.Errorf("transition session: %w", err)
	}
	if !changed {
		// Already past pending; replay or out-of-order delivery.
		s.log.Debug().Str("session_id", sess.SessionID).Msg("session_started ignored, session already started")
	}
	return nil
}

func (s *Service) handleDocuments(ctx context.Context, sess *domain.VerificationSession, evt *WebhookEvent) error {
	if sess.Status.Terminal() {
		s.log.Debug().Str("session_id", sess.SessionID).Str("status", string(sess.Status)).Msg("document_uploaded ignored on terminal session")
		return nil
	}

	// The provider may skip session_started and open with documents.
	if _, err := s.repo.MarkInProgress(ctx, sess.SessionID); err != nil {
		return fmt.Errorf("transition session: %w", err)
	}

	for _, d := range evt.Data.Documents {
		doc := &domain.DocumentResult{
			SessionID:  sess.SessionID,
			DocumentID: d.ID,
			Type:       d.Type,
			Status:     domain.DocumentStatus(d.Status),
			Confidence: d.Confidence,
			Extracted:  d.ExtractedData,
		}
		if err := s.repo.UpsertDocument(ctx, doc); err != nil {
			return fmt.Errorf("upsert document %s: %w", d.ID, err)
		}
	}
	return nil
}

func (s *Service) handleCompleted(ctx context.Context, sess *domain.VerificationSession, evt *WebhookEvent) error {
	if sess.Status.Terminal() {
		// A late completion after expiry must never flip the decision.
		s.log.Debug().Str("session_id", sess.SessionID).Str("status", string(sess.Status)).Msg("verification_completed ignored on terminal session")
		return nil
	}

	if evt.Data.Biometrics != nil {
		bio := &domain.BiometricResult{
			SessionID:           sess.SessionID,
			FaceMatchConfidence: evt.Data.Biometrics.FaceMatch.Confidence,
			FaceMatchVerified:   evt.Data.Biometrics.FaceMatch.Verified,
			LivenessScore:       evt.Data.Biometrics.LivenessCheck.Score,
			LivenessPassed:      evt.Data.Biometrics.LivenessCheck.Passed,
		}
		if err := s.repo.UpsertBiometrics(ctx, bio); err != nil {
			return fmt.Errorf("upsert biometrics: %w", err)
		}
	}

	if cc := evt.Data.ComplianceChecks; cc != nil {
		comp := &domain.ComplianceResult{SessionID: sess.SessionID}
		if cc.AMLScreening != nil {
			comp.AMLPassed = cc.AMLScreening.Passed
			comp.AMLRiskLevel = cc.AMLScreening.RiskLevel
		}
		if cc.SanctionsCheck != nil {
			comp.SanctionsPassed = cc.SanctionsCheck.Passed
			comp.SanctionsHits = cc.SanctionsCheck.Matches
		}
		if cc.PEPCheck != nil {
			comp.PEPPassed = cc.PEPCheck.Passed
			comp.PEPRiskLevel = cc.PEPCheck.RiskLevel
		}
		if err := s.repo.UpsertCompliance(ctx, comp); err != nil {
			return fmt.Errorf("upsert compliance: %w", err)
		}
	}

	// Documents can arrive embedded in the final event as well.
	for _, d := range evt.Data.Documents {
		doc := &domain.DocumentResult{
			SessionID:  sess.SessionID,
			DocumentID: d.ID,
			Type:       d.Type,
			Status:     domain.DocumentStatus(d.Status),
			Confidence: d.Confidence,
			Extracted:  d.ExtractedData,
		}
		if err := s.repo.UpsertDocument(ctx, doc); err != nil {
			return fmt.Errorf("upsert document %s: %w", d.ID, err)
		}
	}

	data, err := s.repo.GetData(ctx, sess.SessionID)
	if err != nil {
		return fmt.Errorf("load accumulated data: %w", err)
	}
	if evt.Data.RiskScore != nil {
		data.RiskScore = *evt.Data.RiskScore
	}

	final := DetermineFinalStatus(data, evt.Status, s.policy)

	var reason *string
	if final == domain.VerificationDeclined {
		r := declinedReason
		reason = &r
	}

	personal, err := s.encryptField(evt.Data.ExtractedPersonalInfo)
	if err != nil {
		return fmt.Errorf("encrypt personal info: %w", err)
	}
	address, err := s.encryptField(evt.Data.ExtractedAddress)
	if err != nil {
		return fmt.Errorf("encrypt address: %w", err)
	}

	// One transaction: the guarded transition decides whether the result
	// is written at all. An expiry that slipped in since the session was
	// read leaves zero rows changed and its decline untouched.
	changed, err := s.repo.CompleteSession(ctx, sess.SessionID, sess.VerificationID, final, data.RiskScore, reason, personal, address)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if !changed {
		s.log.Debug().Str("session_id", sess.SessionID).Msg("verification_completed ignored, session turned terminal concurrently")
		return nil
	}

	s.log.Info().
		Str("session_id", sess.SessionID).
		Str("final_status", string(final)).
		Int("risk_score", data.RiskScore).
		Msg("Verification completed")
	_ = s.bus.Publish(ctx, ports.TopicVerificationFinal, sess.VerificationID.String())
	return nil
}

func (s *Service) handleExpired(ctx context.Context, sess *domain.VerificationSession, evt *WebhookEvent) error {
	// An expired session can never be approved, no matter which partial
	// sub-results were already recorded. Transition and forced decline
	// commit together: a failed attempt rolls back both, so the provider
	// retry re-applies the whole pair instead of finding the session
	// already expired with the record still pending.
	reason := expiredReason
	risk := 0
	if evt.Data.RiskScore != nil {
		risk = *evt.Data.RiskScore
	}
	changed, err := s.repo.ExpireSession(ctx, sess.SessionID, sess.VerificationID, risk, &reason)
	if err != nil {
		return fmt.Errorf("decline expired verification: %w", err)
	}
	if !changed {
		// Replay, or the session already completed; either way nothing to do.
		s.log.Debug().Str("session_id", sess.SessionID).Msg("session_expired ignored, session already terminal")
		return nil
	}

	s.log.Info().Str("session_id", sess.SessionID).Msg("Session expired, verification declined")
	_ = s.bus.Publish(ctx, ports.TopicVerificationFinal, sess.VerificationID.String())
	return nil
}

// Verification returns the record with its encrypted fields decrypted for
// the caller.
func (s *Service) Verification(ctx context.Context, id uuid.UUID) (*domain.VerificationRecord, error) {
	rec, err := s.repo.GetRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load verification: %w", err)
	}
	if rec == nil {
		return nil, domain.ErrSessionNotFound
	}
	if rec.PersonalInfo != nil {
		plain, err := s.decryptField(*rec.PersonalInfo)
		if err != nil {
			return nil, err
		}
		rec.PersonalInfo = plain
	}
	if rec.Address != nil {
		plain, err := s.decryptField(*rec.Address)
		if err != nil {
			return nil, err
		}
		rec.Address = plain
	}
	return rec, nil
}

// AuditTrail exposes the append-only webhook audit entries for a session.
func (s *Service) AuditTrail(ctx context.Context, sessionID string, limit int32) ([]*domain.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.audit.ListBySession(ctx, sessionID, limit)
}

// recordAudit is best effort: a failed audit write is logged but never
// blocks event handling, so the trail stays independent of storage hiccups
// in either direction.
func (s *Service) recordAudit(ctx context.Context, sessionID, action, description string, raw []byte) {
	entry := &domain.AuditEntry{
		SessionID:   sessionID,
		Action:      action,
		Description: description,
		Payload:     raw,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID).Str("action", action).Msg("Failed to write audit entry")
	}
}

func (s *Service) encryptField(raw []byte) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	enc, err := s.sec.Encrypt(raw)
	if err != nil {
		return nil, err
	}
	out := base64.StdEncoding.EncodeToString(enc)
	return &out, nil
}

func (s *Service) decryptField(stored string) (*string, error) {
	decBytes, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("decode encrypted field: %w", err)
	}
	plain, err := s.sec.Decrypt(decBytes)
	if err != nil {
		return nil, fmt.Errorf("decrypt field: %w", err)
	}
	out := string(plain)
	return &out, nil
}

// DetermineFinalStatus recomputes the decision from the accumulated
// sub-results. It is pure: no partial patching, so repeated recomputation
// cannot drift. eventStatus is the triggering event's top-level status;
// anything short of "completed" with unmet conditions stays pending.
func DetermineFinalStatus(data *domain.VerificationData, eventStatus string, policy Policy) domain.VerificationStatus {
	documentsVerified := len(data.Documents) > 0 || !policy.RequireDocuments
	for _, d := range data.Documents {
		if d.Status != domain.DocumentVerified {
			documentsVerified = false
			break
		}
	}

	biometricsVerified := data.Biometrics != nil &&
		data.Biometrics.FaceMatchVerified && data.Biometrics.LivenessPassed

	compliancePassed := data.Compliance != nil && data.Compliance.Passed()

	riskAcceptable := data.RiskScore >= minAcceptableRiskScore

	if documentsVerified && biometricsVerified && compliancePassed && riskAcceptable {
		return domain.VerificationApproved
	}
	if eventStatus == "completed" {
		return domain.VerificationDeclined
	}
	return domain.VerificationPending
}
