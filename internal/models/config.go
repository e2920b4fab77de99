// Package models - Service configuration and operational settings.
// This file defines configuration structures for every service component.
//
// Configuration Philosophy:
// - Hierarchical configuration grouped by component (server, limiter, audit, etc.)
// - Defaults that work out of the box for a single instance
// - Validation that rejects misconfigurations at startup rather than first use
package models

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// Audit store type constants
const (
	AuditTypeMemory   = "memory"
	AuditTypeSQLite   = "sqlite"
	AuditTypePostgres = "postgres"
	AuditTypeRedis    = "redis"
)

// Login proxy key sources
const (
	LoginKeyByForm = "form"
	LoginKeyByIP   = "ip"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Limiter: Login attempt policy (attempts, window, block duration)
// - Security: API authentication and request throttling
// - Audit: Block event journal
// - LoginProxy: Optional guarded route in front of an upstream login endpoint
// - Logging: Structured logging and output configuration
// - Metrics: Prometheus endpoint
// - Observability: Tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Limiter       LimiterConfig       `yaml:"limiter" json:"limiter"`             // Login attempt policy
	Security      SecurityConfig      `yaml:"security" json:"security"`           // Authentication and throttling
	Audit         AuditConfig         `yaml:"audit" json:"audit"`                 // Block event journal
	LoginProxy    LoginProxyConfig    `yaml:"login_proxy" json:"login_proxy"`     // Guarded upstream login route
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
}

// LimiterConfig is the login attempt policy. BlockDuration of zero means the
// block lasts one window.
type LimiterConfig struct {
	MaxAttempts   int           `yaml:"max_attempts" json:"max_attempts"`
	Window        time.Duration `yaml:"window" json:"window"`
	BlockDuration time.Duration `yaml:"block_duration" json:"block_duration"`
	Shards        int           `yaml:"shards" json:"shards"`
}

type SecurityConfig struct {
	EnableAuth bool           `yaml:"enable_auth" json:"enable_auth"`
	APIKeys    []APIKey       `yaml:"api_keys" json:"api_keys"`
	Throttle   ThrottleConfig `yaml:"throttle" json:"throttle"`
	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means client addresses come from
	// the connection only.
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies"`
}

// ThrottleConfig bounds how fast a single client may call the API.
type ThrottleConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type AuditConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	Type         string        `yaml:"type" json:"type"`
	DSN          string        `yaml:"dsn" json:"dsn"`
	MaxEvents    int           `yaml:"max_events" json:"max_events"`
	BufferSize   int           `yaml:"buffer_size" json:"buffer_size"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	Redis        RedisConfig   `yaml:"redis" json:"redis"`
}

// LoginProxyConfig forwards POST requests on Path to an upstream login
// endpoint through the login limiter. Upstream is joined with the request
// path, so "http://app:3000" with Path "/login" forwards to
// "http://app:3000/login".
type LoginProxyConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Path      string `yaml:"path" json:"path"`
	Upstream  string `yaml:"upstream" json:"upstream"`
	KeyBy     string `yaml:"key_by" json:"key_by"`         // form or ip
	FormField string `yaml:"form_field" json:"form_field"` // login field for key_by form
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Key      string `yaml:"key" json:"key"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - 5 attempts per 15 minutes, 30 minute block: common guidance for
//   interactive logins
// - Memory audit journal: no external dependencies
// - Metrics enabled on a separate port
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Limiter: LimiterConfig{
			MaxAttempts:   5,
			Window:        15 * time.Minute,
			BlockDuration: 30 * time.Minute,
			Shards:        32,
		},
		Security: SecurityConfig{
			EnableAuth: false,
			APIKeys:    []APIKey{},
			Throttle: ThrottleConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				BurstSize:         100,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Audit: AuditConfig{
			Enabled:      true,
			Type:         AuditTypeMemory,
			MaxEvents:    10000,
			BufferSize:   1024,
			WriteTimeout: 5 * time.Second,
			Redis: RedisConfig{
				Key: "loginguard:blocks",
			},
		},
		LoginProxy: LoginProxyConfig{
			Enabled:   false,
			Path:      "/login",
			KeyBy:     LoginKeyByForm,
			FormField: "username",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "loginguard",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Limiter.Validate(); err != nil {
		return fmt.Errorf("invalid limiter config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("invalid audit config: %w", err)
	}

	if err := c.LoginProxy.Validate(); err != nil {
		return fmt.Errorf("invalid login proxy config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	return nil
}

func (lc *LimiterConfig) Validate() error {
	if lc.MaxAttempts <= 0 {
		return errors.New("max attempts must be positive")
	}
	if lc.Window <= 0 {
		return errors.New("window must be positive")
	}
	if lc.BlockDuration < 0 {
		return errors.New("block duration cannot be negative")
	}
	if lc.Shards < 0 {
		return errors.New("shards cannot be negative")
	}
	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.Throttle.Enabled {
		if sec.Throttle.RequestsPerMinute <= 0 {
			return errors.New("throttle requests per minute must be positive")
		}
		if sec.Throttle.BurstSize <= 0 {
			return errors.New("throttle burst size must be positive")
		}
		if sec.Throttle.CleanupInterval < 0 {
			return errors.New("throttle cleanup interval cannot be negative")
		}
	}

	for _, apiKey := range sec.APIKeys {
		if apiKey.Name == "" {
			return errors.New("API key name cannot be empty")
		}
		if !isSHA256Hex(apiKey.KeyHash) {
			return fmt.Errorf("API key %q must have a 64-character hex SHA-256 key_hash", apiKey.Name)
		}
	}

	if sec.EnableAuth && len(sec.APIKeys) == 0 {
		return errors.New("at least one API key is required when auth is enabled")
	}

	for _, proxy := range sec.TrustedProxies {
		if !isAddrOrPrefix(proxy) {
			return fmt.Errorf("trusted proxy %q must be an IP address or CIDR", proxy)
		}
	}

	return nil
}

func isAddrOrPrefix(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

func (lp *LoginProxyConfig) Validate() error {
	if !lp.Enabled {
		return nil
	}

	u, err := url.Parse(lp.Upstream)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("upstream must be an absolute http(s) URL, got %q", lp.Upstream)
	}

	if !strings.HasPrefix(lp.Path, "/") {
		return errors.New("path must start with /")
	}
	if lp.Path == "/health" || lp.Path == "/api" || strings.HasPrefix(lp.Path, "/api/") {
		return fmt.Errorf("path %q collides with the service API", lp.Path)
	}

	switch lp.KeyBy {
	case LoginKeyByIP:
	case LoginKeyByForm:
		if lp.FormField == "" {
			return errors.New("form field is required when key_by is form")
		}
	default:
		return fmt.Errorf("invalid key_by: %s", lp.KeyBy)
	}

	return nil
}

func (ac *AuditConfig) Validate() error {
	if !ac.Enabled {
		return nil
	}

	validTypes := []string{AuditTypeMemory, AuditTypeSQLite, AuditTypePostgres, AuditTypeRedis}
	found := false
	for _, vt := range validTypes {
		if ac.Type == vt {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid audit type: %s", ac.Type)
	}

	if (ac.Type == AuditTypePostgres || ac.Type == AuditTypeSQLite) && ac.DSN == "" {
		return errors.New("database DSN is required for database audit stores")
	}

	if ac.Type == AuditTypeRedis && ac.Redis.Addr == "" {
		return errors.New("Redis address is required when audit type is redis")
	}

	if ac.MaxEvents < 0 {
		return errors.New("max events cannot be negative")
	}

	if ac.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}

	if ac.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if oc.ServiceName == "" {
		return errors.New("service name cannot be empty")
	}

	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required when exporter is otlp")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
