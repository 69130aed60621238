package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/proofofchoice/internal/config"
	"github.com/davidahmann/proofofchoice/internal/crypto"
	"github.com/davidahmann/proofofchoice/internal/platform/logger"
)

func noEnv(string) string { return "" }

func envOf(values map[string]string) envFn {
	return func(key string) string { return values[key] }
}

func stubFactory(t *testing.T, check func(config.Config)) serverFactory {
	t.Helper()
	return func(_ context.Context, cfg config.Config, _ *logger.Logger) (*http.Server, func(), error) {
		if check != nil {
			check(cfg)
		}
		return &http.Server{Addr: cfg.ListenAddr}, func() {}, nil
	}
}

func closedListener(*http.Server) error { return http.ErrServerClosed }

func TestNewServerMemory(t *testing.T) {
	cfg := config.Config{ListenAddr: "127.0.0.1:9999", DB: config.DBConfig{Driver: "memory"}}
	srv, cleanup, err := newServer(context.Background(), cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer cleanup()
	if srv.Addr != cfg.ListenAddr {
		t.Fatalf("expected addr %s, got %s", cfg.ListenAddr, srv.Addr)
	}

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthcheck status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/decisions", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestNewServerSQLiteWithDevToken(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		ListenAddr: ":0",
		DB:         config.DBConfig{Driver: "sqlite", DSN: filepath.Join(dir, "proof.db")},
		SigningKey: config.SigningKeyConfig{PrivateKeyPath: filepath.Join(dir, "keys", "signing.key")},
		Auth:       config.AuthConfig{DevToken: "dev-token"},
	}
	srv, cleanup, err := newServer(context.Background(), cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	defer cleanup()

	if _, err := os.Stat(cfg.SigningKey.PrivateKeyPath); err != nil {
		t.Fatalf("expected signing key to be created: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/decisions", nil)
	req.Header.Set("Authorization", "Bearer dev-token")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestNewServerBadPolicyPath(t *testing.T) {
	cfg := config.Config{ListenAddr: ":0", PolicyPath: filepath.Join(t.TempDir(), "missing.yaml")}
	if _, _, err := newServer(context.Background(), cfg, logger.NewNop()); err == nil {
		t.Fatalf("expected policy load error")
	}
}

func TestRunDefaults(t *testing.T) {
	factory := stubFactory(t, func(cfg config.Config) {
		if cfg.ListenAddr != ":8080" {
			t.Fatalf("expected default addr, got %s", cfg.ListenAddr)
		}
		if cfg.DB.Driver != "memory" {
			t.Fatalf("expected memory driver, got %s", cfg.DB.Driver)
		}
		if cfg.PolicyPath != "" {
			t.Fatalf("expected built-in policy, got %s", cfg.PolicyPath)
		}
	})
	if err := run(nil, noEnv, closedListener, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunServeSubcommand(t *testing.T) {
	called := false
	factory := stubFactory(t, func(config.Config) { called = true })
	if err := run([]string{"serve"}, noEnv, closedListener, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected factory to be called")
	}
}

func TestRunError(t *testing.T) {
	listenErr := errors.New("listen failed")
	listen := func(*http.Server) error { return listenErr }
	getenv := envOf(map[string]string{"PROOF_LISTEN_ADDR": "127.0.0.1:1234"})

	if err := run(nil, getenv, listen, stubFactory(t, nil)); !errors.Is(err, listenErr) {
		t.Fatalf("expected listen error, got %v", err)
	}
}

func TestRunFactoryError(t *testing.T) {
	factory := func(context.Context, config.Config, *logger.Logger) (*http.Server, func(), error) {
		return nil, nil, errors.New("wiring failed")
	}
	if err := run(nil, noEnv, closedListener, factory); err == nil {
		t.Fatalf("expected factory error")
	}
}

func TestRunLoadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proof.yaml")
	body := "listen_addr: \":9999\"\npolicy_path: \"./policies/workflow.yaml\"\nlog_mode: dev\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	factory := stubFactory(t, func(cfg config.Config) {
		if cfg.ListenAddr != ":9999" {
			t.Fatalf("expected addr from config, got %s", cfg.ListenAddr)
		}
		if cfg.PolicyPath != "./policies/workflow.yaml" {
			t.Fatalf("expected policy path from config, got %s", cfg.PolicyPath)
		}
		if cfg.LogMode != "dev" {
			t.Fatalf("expected dev log mode, got %s", cfg.LogMode)
		}
	})
	if err := run([]string{"--config", path}, noEnv, closedListener, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunEnvOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proof.yaml")
	if err := os.WriteFile(path, []byte("listen_addr: \":9999\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	getenv := envOf(map[string]string{
		"PROOF_CONFIG_PATH": path,
		"PROOF_LISTEN_ADDR": ":7777",
		"PROOF_DEV_TOKEN":   "secret",
		"PROOF_DB_DRIVER":   "sqlite",
		"PROOF_DB_DSN":      filepath.Join(dir, "proof.db"),
	})

	factory := stubFactory(t, func(cfg config.Config) {
		if cfg.ListenAddr != ":7777" {
			t.Fatalf("expected env addr, got %s", cfg.ListenAddr)
		}
		if cfg.Auth.DevToken != "secret" {
			t.Fatalf("expected dev token from env")
		}
		if cfg.DB.Driver != "sqlite" {
			t.Fatalf("expected sqlite driver, got %s", cfg.DB.Driver)
		}
	})
	if err := run(nil, getenv, closedListener, factory); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	getenv := envOf(map[string]string{"PROOF_DB_DRIVER": "sqlite"})
	if err := run(nil, getenv, closedListener, stubFactory(t, nil)); err == nil {
		t.Fatalf("expected error for sqlite without dsn")
	}
}

func TestMigrateSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "proof.db")
	getenv := envOf(map[string]string{"PROOF_DB_DRIVER": "sqlite", "PROOF_DB_DSN": dsn})

	root := newRootCmd(getenv, closedListener, stubFactory(t, nil))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"migrate"})
	if err := root.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out.String(), "applied 0001_init") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	out.Reset()
	root = newRootCmd(getenv, closedListener, stubFactory(t, nil))
	root.SetOut(&out)
	root.SetArgs([]string{"migrate"})
	if err := root.Execute(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if !strings.Contains(out.String(), "schema up to date") {
		t.Fatalf("expected no-op on rerun, got %q", out.String())
	}
}

func TestMigrateMemory(t *testing.T) {
	root := newRootCmd(noEnv, closedListener, stubFactory(t, nil))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"migrate"})
	if err := root.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !strings.Contains(out.String(), "nothing to migrate") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestKeygen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")

	root := newRootCmd(noEnv, closedListener, stubFactory(t, nil))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"keygen", "--out", path})
	if err := root.Execute(); err != nil {
		t.Fatalf("keygen: %v", err)
	}
	_, pub, err := crypto.LoadEd25519PrivateKey(path)
	if err != nil {
		t.Fatalf("load generated key: %v", err)
	}
	if !strings.Contains(out.String(), crypto.KeyFingerprint(pub)) {
		t.Fatalf("expected key id in output, got %q", out.String())
	}

	root = newRootCmd(noEnv, closedListener, stubFactory(t, nil))
	root.SetOut(&out)
	root.SetArgs([]string{"keygen", "--out", path})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}

	root = newRootCmd(noEnv, closedListener, stubFactory(t, nil))
	root.SetOut(&out)
	root.SetArgs([]string{"keygen", "--out", path, "--force"})
	if err := root.Execute(); err != nil {
		t.Fatalf("forced keygen: %v", err)
	}
}

func TestLoadSigningKeyReusesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signing.key")
	_, first, err := loadSigningKey(path, logger.NewNop())
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	_, second, err := loadSigningKey(path, logger.NewNop())
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !first.Equal(second) {
		t.Fatalf("expected the persisted key to be reused")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "b", "c"); got != "b" {
		t.Fatalf("expected b, got %s", got)
	}
	if got := firstNonEmpty("", ""); got != "" {
		t.Fatalf("expected empty, got %s", got)
	}
}
