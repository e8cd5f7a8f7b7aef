package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/domain"
	"tokendesk/internal/core/governance"
)

// Governance exposes the proposal/vote RPC surface consumed by web UIs.
// Every response uses the {success, data|error} envelope.
type Governance struct {
	svc *governance.Service
	log zerolog.Logger
}

func NewGovernance(svc *governance.Service, baseLogger *zerolog.Logger) Governance {
	return Governance{
		svc: svc,
		log: baseLogger.With().Str("component", "governance_api").Logger(),
	}
}

func respondData(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// respondErr maps the error taxonomy onto HTTP. Validation failures carry
// per-field details so a form can mark every bad input at once; anything
// unrecognized is a persistence-level fault the client may retry.
func respondErr(c *gin.Context, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "validation failed", "fields": verr.Fields})
		return
	}
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, domain.ErrProposalNotFound), errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, domain.ErrDuplicateVote),
		errors.Is(err, domain.ErrProposalImmutable),
		errors.Is(err, domain.ErrVotingClosed),
		errors.Is(err, domain.ErrProposalOpen):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "temporary storage failure, please retry"})
	}
}

type createProposalRequest struct {
	Title                  string  `json:"title"`
	Description            string  `json:"description"`
	Category               string  `json:"category"`
	Status                 string  `json:"status"`
	StartDate              string  `json:"startDate"`
	EndDate                string  `json:"endDate"`
	Quorum                 int64   `json:"quorum"`
	ProposedChanges        *string `json:"proposedChanges,omitempty"`
	ImplementationTimeline *string `json:"implementationTimeline,omitempty"`
	ExpectedImpact         *string `json:"expectedImpact,omitempty"`
}

func (h Governance) Create(c *gin.Context) {
	var req createProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request body"})
		return
	}

	p, err := h.svc.CreateProposal(c.Request.Context(), governance.CreateProposalInput{
		Title:                  req.Title,
		Description:            req.Description,
		Category:               domain.ProposalCategory(req.Category),
		Status:                 domain.ProposalStatus(req.Status),
		StartDate:              req.StartDate,
		EndDate:                req.EndDate,
		Quorum:                 req.Quorum,
		CreatorID:              c.GetString("sub"),
		ProposedChanges:        req.ProposedChanges,
		ImplementationTimeline: req.ImplementationTimeline,
		ExpectedImpact:         req.ExpectedImpact,
	})
	if err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusCreated, p)
}

type castVoteRequest struct {
	VoteType string `json:"voteType" binding:"required"`
	// Accepted for wire compatibility with older clients; the engine
	// resolves the weight from the voter's balance and ignores this.
	VoteWeight int64 `json:"voteWeight,omitempty"`
}

func (h Governance) CastVote(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad proposal id"})
		return
	}

	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "malformed request body"})
		return
	}

	vote, err := h.svc.CastVote(c.Request.Context(), proposalID, c.GetString("sub"), domain.VoteType(req.VoteType))
	if err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusCreated, vote)
}

func (h Governance) Get(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad proposal id"})
		return
	}
	p, err := h.svc.Get(c.Request.Context(), proposalID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusOK, p)
}

func (h Governance) List(c *gin.Context) {
	var q struct {
		Limit  int32 `form:"limit"`
		Offset int32 `form:"offset"`
	}
	_ = c.ShouldBindQuery(&q)

	proposals, err := h.svc.List(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusOK, proposals)
}

func (h Governance) Outcome(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad proposal id"})
		return
	}
	out, err := h.svc.Outcome(c.Request.Context(), proposalID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusOK, out)
}

func (h Governance) Finalize(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad proposal id"})
		return
	}
	p, err := h.svc.Finalize(c.Request.Context(), proposalID)
	if err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusOK, p)
}

func (h Governance) Archive(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad proposal id"})
		return
	}
	if err := h.svc.Archive(c.Request.Context(), proposalID); err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"archived": true})
}

func (h Governance) Delete(c *gin.Context) {
	proposalID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "bad proposal id"})
		return
	}
	if err := h.svc.Delete(c.Request.Context(), proposalID, c.GetString("sub")); err != nil {
		respondErr(c, err)
		return
	}
	respondData(c, http.StatusOK, gin.H{"deleted": true})
}
