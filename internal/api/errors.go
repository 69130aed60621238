package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davidahmann/proofofchoice/internal/workflow"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

var kindStatus = map[workflow.Kind]int{
	workflow.KindValidation:   http.StatusBadRequest,
	workflow.KindInvalidState: http.StatusConflict,
	workflow.KindConflict:     http.StatusConflict,
	workflow.KindNotFound:     http.StatusNotFound,
	workflow.KindForbidden:    http.StatusForbidden,
	workflow.KindPersistence:  http.StatusInternalServerError,
}

func respondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// respondWorkflowError maps a command failure onto its HTTP status.
func respondWorkflowError(c *gin.Context, err error) {
	var we *workflow.Error
	if !errors.As(err, &we) {
		respondError(c, http.StatusInternalServerError, "internal", errors.New("internal error"))
		return
	}
	status, ok := kindStatus[we.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := we.Error()
	if we.Kind == workflow.KindPersistence {
		// Storage details stay in the logs.
		_ = c.Error(err)
		msg = we.Msg
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: string(we.Kind), Rule: we.Rule}})
}
