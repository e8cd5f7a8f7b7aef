package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/governance"
	"tokendesk/internal/core/kyc"
)

// Deps carries everything the router needs, injected by the composition
// root.
type Deps struct {
	Governance   *governance.Service
	KYC          *kyc.Service
	Verifier     *SignatureVerifier
	Redis        *redis.Client
	JWTSecret    []byte
	AllowOrigins []string
	RateLimit    int
	RateWindow   time.Duration
	Logger       *zerolog.Logger
}

// NewRouter builds the gin engine: an unauthenticated, signature-checked
// webhook route plus the JWT-secured RPC surface.
func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// The webhook contract answers 405 on a wrong method, not 404.
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	limited := RateLimitMiddleware(deps.Redis, deps.RateLimit, deps.RateWindow, deps.Logger)

	webhookH := NewWebhook(deps.KYC, deps.Verifier, deps.Logger)
	govH := NewGovernance(deps.Governance, deps.Logger)
	kycH := NewVerification(deps.KYC, deps.Logger)

	v1 := r.Group("/v1")
	{
		v1.POST("/webhooks/didit", limited, webhookH.Handle)

		secured := v1.Group("")
		secured.Use(JWTMiddleware(deps.JWTSecret))
		{
			secured.POST("/proposals", govH.Create)
			secured.GET("/proposals", govH.List)
			secured.GET("/proposals/:id", govH.Get)
			secured.GET("/proposals/:id/outcome", govH.Outcome)
			secured.POST("/proposals/:id/votes", limited, govH.CastVote)
			secured.POST("/proposals/:id/finalize", govH.Finalize)
			secured.POST("/proposals/:id/archive", govH.Archive)
			secured.DELETE("/proposals/:id", govH.Delete)

			secured.POST("/kyc/sessions", kycH.StartSession)
			secured.GET("/kyc/sessions/:sessionId/audit", kycH.AuditTrail)
			secured.GET("/kyc/verifications/:id", kycH.Get)
		}
	}

	return r
}
