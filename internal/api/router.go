package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/davidahmann/proofofchoice/internal/auth"
	"github.com/davidahmann/proofofchoice/internal/platform/logger"
)

type RouterConfig struct {
	Handler        *Handler
	Auth           auth.Authenticator
	Idempotency    IdemStore
	Log            *logger.Logger
	AllowedOrigins []string
	// ServiceName enables otelgin spans when set.
	ServiceName string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(RequestID())
	r.Use(CORS(cfg.AllowedOrigins))
	r.Use(RequestLogger(cfg.Log))

	h := cfg.Handler
	r.GET("/healthcheck", h.HealthCheck)

	v1 := r.Group("/v1")
	v1.Use(RequireAuth(cfg.Auth))
	v1.Use(Idempotency(cfg.Idempotency))
	{
		v1.GET("/decisions", h.ListDecisions)
		v1.POST("/decisions", h.CreateDecision)
		v1.GET("/decisions/:id", h.GetDecision)
		v1.PATCH("/decisions/:id", h.UpdateDecision)

		v1.POST("/decisions/:id/options", h.AddOption)
		v1.GET("/decisions/:id/options/costs", h.OptionCosts)
		v1.PUT("/decisions/:id/options/:optionId", h.UpdateOption)
		v1.DELETE("/decisions/:id/options/:optionId", h.RemoveOption)

		v1.POST("/decisions/:id/publish", h.Publish)
		v1.POST("/decisions/:id/review", h.OpenReview)
		v1.POST("/decisions/:id/select", h.Select)
		v1.POST("/decisions/:id/approve", h.Approve)
		v1.POST("/decisions/:id/reject", h.Reject)
		v1.POST("/decisions/:id/revise", h.Revise)
		v1.POST("/decisions/:id/archive", h.Archive)
		v1.POST("/decisions/:id/escalate", h.Escalate)

		v1.GET("/decisions/:id/comments", h.ListComments)
		v1.POST("/decisions/:id/comments", h.PostComment)

		v1.GET("/decisions/:id/audit", h.Audit)
		v1.GET("/decisions/:id/audit/verify", h.VerifyAudit)
		v1.GET("/decisions/:id/versions", h.Versions)
		v1.GET("/decisions/:id/signature", h.Signature)
		v1.GET("/decisions/:id/signature/verify", h.VerifySignature)

		v1.GET("/decisions/:id/export.zip", h.ExportZip)
		v1.GET("/decisions/:id/export.pdf", h.ExportPDF)
	}
	return r
}
