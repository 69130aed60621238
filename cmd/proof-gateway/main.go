package main

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/davidahmann/proofofchoice/internal/api"
	"github.com/davidahmann/proofofchoice/internal/auth"
	"github.com/davidahmann/proofofchoice/internal/config"
	"github.com/davidahmann/proofofchoice/internal/crypto"
	"github.com/davidahmann/proofofchoice/internal/decisions"
	"github.com/davidahmann/proofofchoice/internal/ledger"
	"github.com/davidahmann/proofofchoice/internal/ledger/pgstore"
	"github.com/davidahmann/proofofchoice/internal/ledger/sqlstore"
	"github.com/davidahmann/proofofchoice/internal/observability"
	"github.com/davidahmann/proofofchoice/internal/pack"
	"github.com/davidahmann/proofofchoice/internal/platform/logger"
	"github.com/davidahmann/proofofchoice/internal/policy"
)

func main() {
	if err := runFn(os.Args[1:], os.Getenv, listenAndServe, newServer); err != nil {
		fatalf("proof-gateway: %v", err)
	}
}

var runFn = run
var fatalf = log.Fatalf

type envFn func(string) string
type listenFn func(*http.Server) error

// serverFactory wires a server from resolved config. The returned cleanup
// releases whatever the server holds open.
type serverFactory func(ctx context.Context, cfg config.Config, log *logger.Logger) (*http.Server, func(), error)

func run(args []string, getenv envFn, listen listenFn, factory serverFactory) error {
	root := newRootCmd(getenv, listen, factory)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func newRootCmd(getenv envFn, listen listenFn, factory serverFactory) *cobra.Command {
	var configPath string

	serve := func(cmd *cobra.Command, _ []string) error {
		cfg, err := resolveConfig(configPath, getenv)
		if err != nil {
			return err
		}
		return serveGateway(cmd.Context(), cfg, listen, factory)
	}

	root := &cobra.Command{
		Use:           "proof-gateway",
		Short:         "Decision approval service with signed, hash-chained proof of choice",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to gateway config file (env PROOF_CONFIG_PATH)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  serve,
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(configPath, getenv)
			if err != nil {
				return err
			}
			driver, err := ledger.ParseDriver(cfg.DB.Driver)
			if err != nil {
				return err
			}
			if driver == ledger.DBMemory {
				fmt.Fprintln(cmd.OutOrStdout(), "memory store: nothing to migrate")
				return nil
			}
			_, applied, closeFn, err := openStore(driver, cfg.DB.DSN)
			if err != nil {
				return err
			}
			defer closeFn()
			if len(applied) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date\n", driver)
				return nil
			}
			for _, version := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", version)
			}
			return nil
		},
	})

	var keyOut string
	var force bool
	keygen := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 signing key seed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeNewKey(cmd.OutOrStdout(), keyOut, force)
		},
	}
	keygen.Flags().StringVar(&keyOut, "out", "proof-signing.key", "where to write the key seed")
	keygen.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	root.AddCommand(keygen)

	return root
}

// resolveConfig layers the config file (if any) under PROOF_* environment
// overrides and fills defaults.
func resolveConfig(configPath string, getenv envFn) (config.Config, error) {
	cfgFile := firstNonEmpty(configPath, getenv("PROOF_CONFIG_PATH"))

	var cfg config.Config
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	cfg.ListenAddr = firstNonEmpty(getenv("PROOF_LISTEN_ADDR"), cfg.ListenAddr, ":8080")
	cfg.LogMode = firstNonEmpty(getenv("PROOF_LOG_MODE"), cfg.LogMode, "prod")
	cfg.PolicyPath = firstNonEmpty(getenv("PROOF_POLICY_PATH"), cfg.PolicyPath)
	cfg.DB.Driver = firstNonEmpty(getenv("PROOF_DB_DRIVER"), cfg.DB.Driver, string(ledger.DBMemory))
	cfg.DB.DSN = firstNonEmpty(getenv("PROOF_DB_DSN"), cfg.DB.DSN)
	cfg.SigningKey.KeyID = firstNonEmpty(getenv("PROOF_KEY_ID"), cfg.SigningKey.KeyID)
	cfg.SigningKey.PrivateKeyPath = firstNonEmpty(getenv("PROOF_SIGNING_KEY_PATH"), cfg.SigningKey.PrivateKeyPath)
	cfg.Auth.DevToken = firstNonEmpty(getenv("PROOF_DEV_TOKEN"), cfg.Auth.DevToken)
	cfg.Export.RendererURL = firstNonEmpty(getenv("PROOF_RENDERER_URL"), cfg.Export.RendererURL)
	if getenv("PROOF_TRACING_ENABLED") == "true" {
		cfg.Tracing.Enabled = true
	}
	cfg.Tracing.OTLPEndpoint = firstNonEmpty(getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.Tracing.OTLPEndpoint)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func serveGateway(ctx context.Context, cfg config.Config, listen listenFn, factory serverFactory) error {
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer lg.Sync()

	shutdown, err := observability.InitOTel(ctx, lg, observability.OtelConfig{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		SampleRatio:  cfg.Tracing.SampleRatio,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		Insecure:     cfg.Tracing.Insecure,
		Headers:      cfg.Tracing.Headers,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			lg.Warn("otel shutdown failed", "error", err)
		}
	}()

	server, cleanup, err := factory(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer cleanup()

	lg.Info("proof-gateway listening", "addr", cfg.ListenAddr, "db", cfg.DB.Driver)
	if err := listen(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func newServer(ctx context.Context, cfg config.Config, lg *logger.Logger) (*http.Server, func(), error) {
	driver, err := ledger.ParseDriver(cfg.DB.Driver)
	if err != nil {
		return nil, nil, err
	}
	store, applied, closeStore, err := openStore(driver, cfg.DB.DSN)
	if err != nil {
		return nil, nil, err
	}
	if len(applied) > 0 {
		lg.Info("applied migrations", "versions", applied)
	}
	fail := func(err error) (*http.Server, func(), error) {
		closeStore()
		return nil, nil, err
	}

	loaded := policy.Default()
	if cfg.PolicyPath != "" {
		loaded, err = policy.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			return fail(fmt.Errorf("policy %s: %w", cfg.PolicyPath, err))
		}
	}

	priv, pub, err := loadSigningKey(cfg.SigningKey.PrivateKeyPath, lg)
	if err != nil {
		return fail(err)
	}
	keyID := firstNonEmpty(cfg.SigningKey.KeyID, crypto.KeyFingerprint(pub))
	if err := store.PutKey(ctx, ledger.KeyRecord{
		KeyID:     keyID,
		PublicKey: pub,
		CreatedAt: ledger.FormatTime(time.Now()),
	}); err != nil {
		return fail(fmt.Errorf("register signing key: %w", err))
	}

	svc, err := decisions.NewService(decisions.NewServiceInput{
		Store:     store,
		Signer:    crypto.NewKeySigner(keyID, priv),
		PublicKey: pub,
		Policy:    &loaded,
		Log:       lg,
	})
	if err != nil {
		return fail(err)
	}

	authenticator, err := auth.NewTokenAuthenticator(cfg.Auth.Tokens)
	if err != nil {
		return fail(err)
	}
	authenticator.WithDevToken(cfg.Auth.DevToken)

	handler := &api.Handler{
		Service: svc,
		Policy:  loaded.Bytes,
		Log:     lg,
	}
	if cfg.Export.RendererURL != "" {
		handler.Renderer = &pack.HTTPRenderer{URL: cfg.Export.RendererURL, Timeout: cfg.Export.Timeout}
	}

	serviceName := ""
	if cfg.Tracing.Enabled {
		serviceName = firstNonEmpty(cfg.Tracing.ServiceName, "proof-gateway")
	}
	router := api.NewRouter(api.RouterConfig{
		Handler:        handler,
		Auth:           authenticator,
		Idempotency:    store,
		Log:            lg,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		ServiceName:    serviceName,
	})

	lg.Info("gateway wired", "key_id", keyID, "policy_hash", loaded.Hash)
	return &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}, closeStore, nil
}

// openStore opens the configured ledger and brings its schema up to date.
// The returned versions are the migrations this call applied.
func openStore(driver ledger.DBDriver, dsn string) (ledger.Store, []string, func(), error) {
	var (
		store interface {
			ledger.Store
			DB() *sql.DB
			Close() error
		}
		err error
	)
	switch driver {
	case ledger.DBSQLite:
		store, err = sqlstore.OpenSQLite(dsn)
	case ledger.DBPostgres:
		store, err = pgstore.OpenPostgres(dsn)
	default:
		return ledger.NewInMemoryStore(), nil, func() {}, nil
	}
	if err != nil {
		return nil, nil, nil, err
	}
	applied, err := ledger.Migrate(store.DB(), driver)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}
	return store, applied, func() { _ = store.Close() }, nil
}

// loadSigningKey reads the key at path, creating it on first start. With no
// path the key lives only as long as the process.
func loadSigningKey(path string, lg *logger.Logger) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	if path == "" {
		lg.Warn("no signing key configured; using an ephemeral key")
		return crypto.GenerateKeyPair()
	}
	priv, pub, err := crypto.LoadEd25519PrivateKey(path)
	if err == nil {
		return priv, pub, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, nil, err
	}
	priv, pub, err = crypto.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	if err := crypto.WriteEd25519Seed(path, priv); err != nil {
		return nil, nil, err
	}
	lg.Info("generated signing key", "path", path)
	return priv, pub, nil
}

func writeNewKey(out io.Writer, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	if err := crypto.WriteEd25519Seed(path, priv); err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s\nkey_id: %s\n", path, crypto.KeyFingerprint(pub))
	return nil
}

func listenAndServe(server *http.Server) error {
	return server.ListenAndServe()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
