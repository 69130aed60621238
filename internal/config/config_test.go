package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

func TestLoadAndValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proof.yaml")

	os.Setenv("PROOF_TEST_CLIENT_TOKEN", "client-secret")
	defer os.Unsetenv("PROOF_TEST_CLIENT_TOKEN")

	data := `
listen_addr: ":8080"
log_mode: prod
db:
  driver: sqlite
  dsn: "file:proof.db"
auth:
  tokens:
    "${PROOF_TEST_CLIENT_TOKEN}":
      id: u-client
      name: J. Park
      role: client
cors:
  allowed_origins: ["http://localhost:5173"]
tracing:
  enabled: true
  sample_ratio: 0.5
export:
  renderer_url: "http://renderer:3000/render"
  timeout: 15s
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	actor, ok := cfg.Auth.Tokens["client-secret"]
	if !ok {
		t.Fatalf("expected expanded client token, got %v", cfg.Auth.Tokens)
	}
	if actor.Role != types.RoleClient || actor.Name != "J. Park" {
		t.Fatalf("unexpected actor: %+v", actor)
	}
	if cfg.Export.Timeout != 15*time.Second {
		t.Fatalf("expected 15s export timeout, got %s", cfg.Export.Timeout)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 {
		t.Fatalf("expected one cors origin")
	}
}

func TestValidateMissingFields(t *testing.T) {
	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateMemoryNeedsNoDSN(t *testing.T) {
	cfg := Config{ListenAddr: ":8080", DB: DBConfig{Driver: "memory"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateDBRequiresDSN(t *testing.T) {
	cfg := Config{ListenAddr: ":8080", DB: DBConfig{Driver: "sqlite"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := Config{ListenAddr: ":8080", DB: DBConfig{Driver: "mongo", DSN: "x"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateTokenRole(t *testing.T) {
	cfg := Config{ListenAddr: ":8080", Auth: AuthConfig{Tokens: map[string]types.Actor{"t": {ID: "u", Role: "owner"}}}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateSampleRatio(t *testing.T) {
	cfg := Config{ListenAddr: ":8080", Tracing: TracingConfig{SampleRatio: 2}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestValidateLogMode(t *testing.T) {
	cfg := Config{ListenAddr: ":8080", LogMode: "verbose"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("does-not-exist.yaml"); err == nil {
		t.Fatalf("expected error")
	}
}
