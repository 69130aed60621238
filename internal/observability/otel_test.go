package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/davidahmann/proofofchoice/internal/platform/logger"
)

func TestInitOTelDisabled(t *testing.T) {
	shutdown, err := InitOTel(context.Background(), logger.NewNop(), OtelConfig{})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitOTelStdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitOTel(context.Background(), logger.NewNop(), OtelConfig{
		Enabled:      true,
		ServiceName:  "proof-test",
		SampleRatio:  1,
		StdoutWriter: &buf,
	})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "decision.approve")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "decision.approve") {
		t.Fatalf("expected exported span, got %q", buf.String())
	}
}

func TestClampRatio(t *testing.T) {
	if clampRatio(0) != 0.1 || clampRatio(5) != 1 || clampRatio(0.5) != 0.5 {
		t.Fatalf("unexpected clamp results")
	}
}
