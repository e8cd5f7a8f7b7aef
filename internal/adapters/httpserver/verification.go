package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/kyc"
)

// Verification exposes the KYC read side and session registration to
// authenticated admin UIs. Events themselves only ever arrive through
// the webhook.
type Verification struct {
	svc *kyc.Service
	log zerolog.Logger
}

func NewVerification(svc *kyc.Service, baseLogger *zerolog.Logger) Verification {
	return Verification{
		svc: svc,
		log: baseLogger.With().Str("component", "verification_api").Logger(),
	}
}

type startSessionRequest struct {
	UserID    string `json:"userId" binding:"required"`
	SessionID string `json:"sessionId" binding:"required"`
}

func (h Verification) StartSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request body"})
		return
	}

	sess, err := h.svc.StartSession(c.Request.Context(), req.UserID, req.SessionID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusCreated, sess)
}

func (h Verification) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad verification id"})
		return
	}
	rec, err := h.svc.Verification(c.Request.Context(), id)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusOK, rec)
}

func (h Verification) AuditTrail(c *gin.Context) {
	var q struct {
		Limit int32 `form:"limit"`
	}
	_ = c.ShouldBindQuery(&q)

	entries, err := h.svc.AuditTrail(c.Request.Context(), c.Param("sessionId"), q.Limit)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusOK, entries)
}
