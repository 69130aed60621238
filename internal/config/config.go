package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/davidahmann/proofofchoice/internal/ledger"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

type Config struct {
	ListenAddr string           `yaml:"listen_addr"`
	LogMode    string           `yaml:"log_mode"`
	DB         DBConfig         `yaml:"db"`
	PolicyPath string           `yaml:"policy_path"`
	SigningKey SigningKeyConfig `yaml:"signing_key"`
	Auth       AuthConfig       `yaml:"auth"`
	CORS       CORSConfig       `yaml:"cors"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Export     ExportConfig     `yaml:"export"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type SigningKeyConfig struct {
	KeyID          string `yaml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

type AuthConfig struct {
	// Tokens maps a bearer token to the actor it authenticates as.
	Tokens   map[string]types.Actor `yaml:"tokens"`
	DevToken string                 `yaml:"dev_token"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type TracingConfig struct {
	Enabled      bool              `yaml:"enabled"`
	ServiceName  string            `yaml:"service_name"`
	SampleRatio  float64           `yaml:"sample_ratio"`
	OTLPEndpoint string            `yaml:"otlp_endpoint"`
	Insecure     bool              `yaml:"insecure"`
	Headers      map[string]string `yaml:"headers"`
}

type ExportConfig struct {
	RendererURL string        `yaml:"renderer_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.LogMode {
	case "", "dev", "development", "prod", "production":
	default:
		return fmt.Errorf("log_mode must be dev or prod, got %q", c.LogMode)
	}

	driver, err := ledger.ParseDriver(c.DB.Driver)
	if err != nil {
		return fmt.Errorf("db.driver: %w", err)
	}
	if driver != ledger.DBMemory && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver is %s", c.DB.Driver)
	}

	for token, actor := range c.Auth.Tokens {
		if token == "" {
			return fmt.Errorf("auth.tokens: empty token")
		}
		if actor.ID == "" {
			return fmt.Errorf("auth.tokens: actor without id")
		}
		if !actor.Role.Valid() {
			return fmt.Errorf("auth.tokens: actor %s has unknown role %q", actor.ID, actor.Role)
		}
	}

	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}
	if c.Export.Timeout < 0 {
		return fmt.Errorf("export.timeout must not be negative")
	}

	return nil
}
