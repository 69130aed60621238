package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/davidahmann/proofofchoice/internal/crypto"
	"github.com/davidahmann/proofofchoice/internal/ledger"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 128
	maxIdempotentBody    = 1 << 20
)

// IdemStore keeps completed responses keyed by Idempotency-Key.
type IdemStore interface {
	PutIdempotencyKey(ctx context.Context, rec ledger.IdempotencyRecord) error
	GetIdempotencyKey(ctx context.Context, key string) (ledger.IdempotencyRecord, bool)
}

type captureWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response of a mutating request retried with the
// same Idempotency-Key. A key reused for a different request is rejected with 422.
// Concurrent requests sharing a key wait for the first one and then replay its
// response. Requests without the header pass through untouched.
func Idempotency(store IdemStore) gin.HandlerFunc {
	var inflight singleflight.Group
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
		if store == nil || key == "" || !mutating(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			respondError(c, http.StatusBadRequest, "idempotency_key_invalid", errors.New("idempotency key too long"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxIdempotentBody+1))
		if err != nil || len(body) > maxIdempotentBody {
			respondError(c, http.StatusBadRequest, "invalid_body", errors.New("request body unreadable or too large"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		caller := callerFrom(c)
		scoped := caller.Actor.ID + ":" + key
		requestHash := crypto.DigestWithPrefix([]byte(c.Request.Method + "\n" + c.Request.URL.Path + "\n" + string(body)))

		if replayStored(c, store, scoped, requestHash) {
			return
		}
		led := false
		_, _, _ = inflight.Do(scoped, func() (any, error) {
			led = true
			runAndRecord(c, store, ledger.IdempotencyRecord{
				Key:         scoped,
				ActorID:     caller.Actor.ID,
				Method:      c.Request.Method,
				Path:        c.Request.URL.Path,
				RequestHash: requestHash,
			})
			return nil, nil
		})
		if led || replayStored(c, store, scoped, requestHash) {
			return
		}
		// The leader's response was not recordable, so this request runs on its own.
		c.Next()
	}
}

// replayStored answers from a completed record for key. It reports whether the
// request was handled.
func replayStored(c *gin.Context, store IdemStore, key, requestHash string) bool {
	rec, ok := store.GetIdempotencyKey(c.Request.Context(), key)
	if !ok {
		return false
	}
	if rec.RequestHash != requestHash {
		respondError(c, http.StatusUnprocessableEntity, "idempotency_key_reused", errors.New("idempotency key already used for a different request"))
		return true
	}
	c.Header(headerReplayed, "true")
	c.Data(rec.StatusCode, "application/json; charset=utf-8", rec.ResponseJSON)
	c.Abort()
	return true
}

// runAndRecord runs the handler chain and stores its JSON response under rec.Key.
// Server errors are not stored so the client can retry them.
func runAndRecord(c *gin.Context, store IdemStore, rec ledger.IdempotencyRecord) {
	w := &captureWriter{ResponseWriter: c.Writer}
	c.Writer = w
	c.Next()

	status := w.Status()
	if status >= 500 || !strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		return
	}
	rec.StatusCode = status
	rec.ResponseJSON = w.body.Bytes()
	rec.CreatedAt = ledger.FormatTime(time.Now())
	if err := store.PutIdempotencyKey(c.Request.Context(), rec); err != nil && !errors.Is(err, ledger.ErrDuplicate) {
		_ = c.Error(err)
	}
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
