package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"loginguard/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOGINGUARD_"

// Load loads configuration from file and environment variables.
//
// Precedence, lowest first: defaults, YAML file, .env file, process
// environment. Variables already set in the process are never replaced by
// the .env file.
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	// Override with environment variables
	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadDotEnv reads LOGINGUARD_ENV_FILE, or ./.env, when present.
func loadDotEnv() error {
	path := os.Getenv(EnvPrefix + "ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// deprecatedConfig mirrors config shapes that are accepted by the decoder but
// ignored, so operators get a warning instead of silent misconfiguration.
type deprecatedConfig struct {
	Storage  interface{} `yaml:"storage"`
	Security struct {
		APIKeys []struct {
			Key string `yaml:"key"`
		} `yaml:"api_keys"`
		RateLimit interface{} `yaml:"rate_limit"`
	} `yaml:"security"`
}

// warnDeprecatedKeys logs a warning for each ignored config key found in the YAML data.
func warnDeprecatedKeys(data []byte) {
	var dep deprecatedConfig
	if err := yaml.Unmarshal(data, &dep); err != nil {
		return
	}
	if dep.Storage != nil {
		slog.Warn("Config key is not used; configure the block journal under audit.", "config_key", "storage")
	}
	for i, k := range dep.Security.APIKeys {
		if k.Key != "" {
			slog.Warn("Raw API keys are not accepted; set key_hash to the SHA-256 hex digest of the key.",
				"config_key", fmt.Sprintf("security.api_keys[%d].key", i))
		}
	}
	if dep.Security.RateLimit != nil {
		slog.Warn("Config key was renamed.", "config_key", "security.rate_limit", "replacement", "security.throttle")
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnDeprecatedKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables.
// Malformed numbers, booleans and durations are reported rather than ignored.
func loadFromEnvironment(config *models.Config) error {
	e := &envReader{}

	// Server configuration
	e.int("PORT", &config.Server.Port)
	e.string("HOST", &config.Server.Host)
	e.duration("READ_TIMEOUT", &config.Server.ReadTimeout)
	e.duration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	e.duration("IDLE_TIMEOUT", &config.Server.IdleTimeout)

	// Limiter policy
	e.int("MAX_ATTEMPTS", &config.Limiter.MaxAttempts)
	e.duration("WINDOW", &config.Limiter.Window)
	e.duration("BLOCK_DURATION", &config.Limiter.BlockDuration)
	e.int("SHARDS", &config.Limiter.Shards)

	// Security configuration
	e.bool("ENABLE_AUTH", &config.Security.EnableAuth)
	e.bool("THROTTLE_ENABLED", &config.Security.Throttle.Enabled)
	e.int("THROTTLE_REQUESTS_PER_MINUTE", &config.Security.Throttle.RequestsPerMinute)
	e.int("THROTTLE_BURST_SIZE", &config.Security.Throttle.BurstSize)
	e.list("TRUSTED_PROXIES", &config.Security.TrustedProxies)

	// A raw bootstrap key is hashed on load and granted admin.
	if raw := os.Getenv(EnvPrefix + "BOOTSTRAP_KEY"); raw != "" {
		config.Security.APIKeys = append(config.Security.APIKeys,
			models.NewAPIKey("bootstrap", raw, []string{models.PermissionAdmin}))
	}

	// Audit journal
	e.bool("AUDIT_ENABLED", &config.Audit.Enabled)
	e.string("AUDIT_TYPE", &config.Audit.Type)
	e.string("AUDIT_DSN", &config.Audit.DSN)
	e.int("AUDIT_MAX_EVENTS", &config.Audit.MaxEvents)
	e.int("AUDIT_BUFFER_SIZE", &config.Audit.BufferSize)
	e.duration("AUDIT_WRITE_TIMEOUT", &config.Audit.WriteTimeout)
	e.string("REDIS_ADDR", &config.Audit.Redis.Addr)
	e.string("REDIS_PASSWORD", &config.Audit.Redis.Password)
	e.int("REDIS_DB", &config.Audit.Redis.DB)
	e.string("REDIS_KEY", &config.Audit.Redis.Key)

	// Login proxy
	e.bool("LOGIN_PROXY_ENABLED", &config.LoginProxy.Enabled)
	e.string("LOGIN_PROXY_PATH", &config.LoginProxy.Path)
	e.string("LOGIN_PROXY_UPSTREAM", &config.LoginProxy.Upstream)
	e.string("LOGIN_PROXY_KEY_BY", &config.LoginProxy.KeyBy)
	e.string("LOGIN_PROXY_FORM_FIELD", &config.LoginProxy.FormField)

	// Logging configuration
	e.string("LOG_LEVEL", &config.Logging.Level)
	e.string("LOG_FORMAT", &config.Logging.Format)
	e.string("LOG_OUTPUT", &config.Logging.Output)
	e.string("LOG_FILE_PATH", &config.Logging.FilePath)

	// Metrics configuration
	e.bool("METRICS_ENABLED", &config.Metrics.Enabled)
	e.string("METRICS_PATH", &config.Metrics.Path)
	e.int("METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	e.string("SERVICE_NAME", &config.Observability.ServiceName)
	e.bool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	e.string("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	e.string("OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	e.float("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)

	return errors.Join(e.errs...)
}

// envReader applies LOGINGUARD_* variables and collects parse errors.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(name string) (string, bool) {
	v := os.Getenv(EnvPrefix + name)
	return v, v != ""
}

func (e *envReader) fail(name, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, value, err))
}

func (e *envReader) string(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

// list splits a comma-separated value, dropping empty entries.
func (e *envReader) list(name string, dst *[]string) {
	if v, ok := e.lookup(name); ok {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst = out
	}
}

func (e *envReader) int(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) float(name string, dst *float64) {
	if v, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) bool(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	if v, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = d
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()

	// Enable authentication for example; replace the hash with your own key's digest.
	config.Security.EnableAuth = true
	config.Security.APIKeys = []models.APIKey{
		models.NewAPIKey("operations", "lg_replace-with-generated-key", []string{models.PermissionAdmin}),
	}

	// Example reverse proxy in front of the service and a guarded login route
	config.Security.TrustedProxies = []string{"10.0.0.0/8"}
	config.LoginProxy.Enabled = true
	config.LoginProxy.Upstream = "http://127.0.0.1:3000"

	// Example durable journal
	config.Audit.Type = models.AuditTypeSQLite
	config.Audit.DSN = "./data/audit.db"

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
