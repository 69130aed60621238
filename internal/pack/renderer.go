package pack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrRendererTimeout = errors.New("pdf renderer timed out")
	ErrRendererFailed  = errors.New("pdf renderer failed")
)

const (
	defaultRenderTimeout = 20 * time.Second
	maxPDFBytes          = 32 << 20
)

// Renderer turns a summary page into a PDF document.
type Renderer interface {
	RenderPDF(ctx context.Context, html []byte) ([]byte, error)
}

// HTTPRenderer posts the HTML to an external rendering service and returns its body.
type HTTPRenderer struct {
	URL     string
	Timeout time.Duration
	Client  *http.Client
}

func (r *HTTPRenderer) RenderPDF(ctx context.Context, html []byte) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.URL, bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRendererFailed, err)
	}
	req.Header.Set("Content-Type", "text/html; charset=utf-8")
	req.Header.Set("Accept", "application/pdf")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrRendererTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrRendererFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrRendererFailed, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrRendererTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrRendererFailed, err)
	}
	if len(body) > maxPDFBytes {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrRendererFailed, maxPDFBytes)
	}
	return body, nil
}
