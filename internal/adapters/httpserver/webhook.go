package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/domain"
	"tokendesk/internal/core/kyc"
)

// signatureHeader carries the provider's HMAC over the raw body.
const signatureHeader = "X-Didit-Signature"

// Webhook receives identity-provider events. The body is read raw first:
// the signature covers the exact bytes on the wire, not a re-marshalled
// form.
type Webhook struct {
	svc      *kyc.Service
	verifier *SignatureVerifier
	log      zerolog.Logger
}

func NewWebhook(svc *kyc.Service, verifier *SignatureVerifier, baseLogger *zerolog.Logger) Webhook {
	return Webhook{
		svc:      svc,
		verifier: verifier,
		log:      baseLogger.With().Str("component", "webhook").Logger(),
	}
}

func (h Webhook) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !h.verifier.Verify(body, c.GetHeader(signatureHeader)) {
		h.log.Warn().Str("ip", c.ClientIP()).Msg("Webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var evt kyc.WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	if evt.SessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing sessionId"})
		return
	}

	if err := h.svc.HandleWebhookEvent(c.Request.Context(), body, &evt); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown session"})
			return
		}
		// Failure audit entry is already written; surface the outage.
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
