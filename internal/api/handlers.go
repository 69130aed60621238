package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/davidahmann/proofofchoice/internal/decisions"
	"github.com/davidahmann/proofofchoice/internal/pack"
	"github.com/davidahmann/proofofchoice/internal/platform/logger"
)

const maxBodyBytes = 1 << 20

type Handler struct {
	Service  *decisions.Service
	Renderer pack.Renderer
	// Policy is the raw workflow policy shipped inside proof packs.
	Policy []byte
	Log    *logger.Logger
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *Handler) ListDecisions(c *gin.Context) {
	out, err := h.Service.List(c.Request.Context(), c.Query("project_id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": out})
}

func (h *Handler) CreateDecision(c *gin.Context) {
	var req CreateDecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Service.Create(c.Request.Context(), callerFrom(c), req.input())
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDecision(c *gin.Context) {
	d, err := h.Service.Get(c.Request.Context(), c.Param("id"), c.Query("include") == "comments")
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDecision(c *gin.Context) {
	var req UpdateDecisionRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Service.UpdateMetadata(c.Request.Context(), callerFrom(c), c.Param("id"), req.patch())
	h.respondDecision(c, d, err)
}

func (h *Handler) AddOption(c *gin.Context) {
	var req OptionRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Service.AddOption(c.Request.Context(), callerFrom(c), c.Param("id"), req.option())
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) UpdateOption(c *gin.Context) {
	var req OptionRequest
	if !bindJSON(c, &req) {
		return
	}
	opt := req.option()
	opt.ID = c.Param("optionId")
	d, err := h.Service.UpdateOption(c.Request.Context(), callerFrom(c), c.Param("id"), opt)
	h.respondDecision(c, d, err)
}

func (h *Handler) RemoveOption(c *gin.Context) {
	d, err := h.Service.RemoveOption(c.Request.Context(), callerFrom(c), c.Param("id"), c.Param("optionId"))
	h.respondDecision(c, d, err)
}

func (h *Handler) OptionCosts(c *gin.Context) {
	costs, err := h.Service.Costs(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"costs": costs})
}

func (h *Handler) Publish(c *gin.Context) {
	d, err := h.Service.Publish(c.Request.Context(), callerFrom(c), c.Param("id"))
	h.respondDecision(c, d, err)
}

func (h *Handler) OpenReview(c *gin.Context) {
	d, err := h.Service.OpenReview(c.Request.Context(), callerFrom(c), c.Param("id"))
	h.respondDecision(c, d, err)
}

func (h *Handler) Select(c *gin.Context) {
	var req SelectRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Service.Select(c.Request.Context(), callerFrom(c), c.Param("id"), req.OptionID)
	h.respondDecision(c, d, err)
}

func (h *Handler) Approve(c *gin.Context) {
	var req ApproveRequest
	if !bindJSON(c, &req) {
		return
	}
	d, sig, err := h.Service.Approve(c.Request.Context(), callerFrom(c), c.Param("id"), decisions.ApproveInput{
		SignerName:     req.SignerName,
		SignerEmail:    req.SignerEmail,
		SignatureImage: req.SignatureImage,
	})
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, ApproveResponse{Decision: d, Signature: sig})
}

func (h *Handler) Reject(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Service.Reject(c.Request.Context(), callerFrom(c), c.Param("id"), req.Reason)
	h.respondDecision(c, d, err)
}

func (h *Handler) Revise(c *gin.Context) {
	d, err := h.Service.Revise(c.Request.Context(), callerFrom(c), c.Param("id"))
	h.respondDecision(c, d, err)
}

func (h *Handler) Archive(c *gin.Context) {
	d, err := h.Service.Archive(c.Request.Context(), callerFrom(c), c.Param("id"))
	h.respondDecision(c, d, err)
}

func (h *Handler) Escalate(c *gin.Context) {
	var req ReasonRequest
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.Service.Escalate(c.Request.Context(), callerFrom(c), c.Param("id"), req.Reason)
	h.respondDecision(c, d, err)
}

func (h *Handler) PostComment(c *gin.Context) {
	var req CommentRequest
	if !bindJSON(c, &req) {
		return
	}
	in := decisions.CommentInput{Content: req.Content, Attachments: req.Attachments}
	post := h.Service.PostComment
	if req.Question {
		post = h.Service.AskQuestion
	}
	comment, err := post(c.Request.Context(), callerFrom(c), c.Param("id"), in)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *Handler) ListComments(c *gin.Context) {
	thread, err := h.Service.Comments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": thread})
}

func (h *Handler) Audit(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(c, http.StatusBadRequest, "invalid_limit", errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	entries, err := h.Service.Audit(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) VerifyAudit(c *gin.Context) {
	res, err := h.Service.VerifyAudit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Versions(c *gin.Context) {
	versions, err := h.Service.Versions(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (h *Handler) Signature(c *gin.Context) {
	sig, err := h.Service.Signature(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, sig)
}

func (h *Handler) VerifySignature(c *gin.Context) {
	check, err := h.Service.VerifySignature(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, check)
}

func (h *Handler) ExportZip(c *gin.Context) {
	in, ok := h.packInput(c)
	if !ok {
		return
	}
	zipBytes, err := pack.BuildZip(in, baseURL(c.Request))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "export_failed", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=proof-%s.zip", in.Proof.Decision.ID))
	c.Data(http.StatusOK, "application/zip", zipBytes)
}

func (h *Handler) ExportPDF(c *gin.Context) {
	if h.Renderer == nil {
		respondError(c, http.StatusNotImplemented, "renderer_not_configured", errors.New("pdf export is not configured"))
		return
	}
	in, ok := h.packInput(c)
	if !ok {
		return
	}
	_, html, err := pack.BuildSummary(in, baseURL(c.Request))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "export_failed", err)
		return
	}
	pdf, err := h.Renderer.RenderPDF(c.Request.Context(), html)
	if err != nil && h.Log != nil {
		h.Log.Warn("pdf render failed", "decision_id", in.Proof.Decision.ID, "error", err)
	}
	switch {
	case errors.Is(err, pack.ErrRendererTimeout):
		respondError(c, http.StatusGatewayTimeout, "renderer_timeout", err)
		return
	case err != nil:
		respondError(c, http.StatusBadGateway, "renderer_failed", err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=proof-%s.pdf", in.Proof.Decision.ID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *Handler) packInput(c *gin.Context) (pack.Input, bool) {
	proof, err := h.Service.Proof(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWorkflowError(c, err)
		return pack.Input{}, false
	}
	return pack.Input{Proof: proof, Policy: h.Policy, CreatedAt: time.Now().UTC().Format(time.RFC3339)}, true
}

func (h *Handler) respondDecision(c *gin.Context, d any, err error) {
	if err != nil {
		respondWorkflowError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func bindJSON(c *gin.Context, dst any) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_json", errors.New("invalid json"))
		return false
	}
	return true
}

func baseURL(r *http.Request) string {
	if r.Host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
