// Package config validates the per-role environment variables for the
// coordinator, data node, and chat node binaries, following the
// accumulate-all-errors style of the teacher's environment validator.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// CoordinatorConfig holds validated environment configuration for the
// coordinator role (roster management, 2PC driver, UserOps surface).
type CoordinatorConfig struct {
	Port           string
	IdentitySecret string // signs participant identity tokens (golang-jwt/jwt/v5)

	SweepIntervalSeconds int
	CommitWaitMillis     int
	DecisionPollMillis   int

	GoEnv          string
	LogLevel       string
	AllowedOrigins string

	RateLimitUserOpsIP string

	// TracingCollectorAddr is the OTLP gRPC collector address. Tracing is
	// disabled when unset.
	TracingCollectorAddr string
}

// ValidateCoordinatorEnv validates the coordinator's required environment
// variables, collecting every problem before returning.
func ValidateCoordinatorEnv() (*CoordinatorConfig, error) {
	cfg := &CoordinatorConfig{}
	var errs []string

	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else if !isValidPort(cfg.Port) {
		errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
	}

	cfg.IdentitySecret = os.Getenv("IDENTITY_SECRET")
	if cfg.IdentitySecret == "" {
		errs = append(errs, "IDENTITY_SECRET is required")
	} else if len(cfg.IdentitySecret) < 32 {
		errs = append(errs, fmt.Sprintf("IDENTITY_SECRET must be at least 32 characters (got %d)", len(cfg.IdentitySecret)))
	}

	cfg.SweepIntervalSeconds = getEnvIntOrDefault("SWEEP_INTERVAL_SECONDS", 60)
	cfg.CommitWaitMillis = getEnvIntOrDefault("COMMIT_WAIT_MILLIS", 1000)
	cfg.DecisionPollMillis = getEnvIntOrDefault("DECISION_POLL_MILLIS", 1000)

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.AllowedOrigins = getEnvOrDefault("ALLOWED_ORIGINS", "*")
	cfg.RateLimitUserOpsIP = getEnvOrDefault("RATE_LIMIT_USEROPS_IP", "100-M")
	cfg.TracingCollectorAddr = os.Getenv("TRACING_COLLECTOR_ADDR")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	slog.Info("coordinator environment configuration validated",
		"port", cfg.Port,
		"identity_secret", redactSecret(cfg.IdentitySecret),
		"sweep_interval_seconds", cfg.SweepIntervalSeconds,
		"go_env", cfg.GoEnv,
	)

	return cfg, nil
}

// DataNodeConfig holds validated environment configuration for a data node
// (durable user/chatroom store, 2PC participant, DataOps surface).
type DataNodeConfig struct {
	OpsPort         string
	ParticipantPort string
	DataDir         string
	CoordinatorAddr string

	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	GoEnv    string
	LogLevel string

	TracingCollectorAddr string
}

// ValidateDataNodeEnv validates a data node's required environment variables.
func ValidateDataNodeEnv() (*DataNodeConfig, error) {
	cfg := &DataNodeConfig{}
	var errs []string

	cfg.OpsPort = os.Getenv("OPS_PORT")
	if cfg.OpsPort == "" {
		errs = append(errs, "OPS_PORT is required")
	} else if !isValidPort(cfg.OpsPort) {
		errs = append(errs, fmt.Sprintf("OPS_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.OpsPort))
	}

	cfg.ParticipantPort = os.Getenv("PARTICIPANT_PORT")
	if cfg.ParticipantPort == "" {
		errs = append(errs, "PARTICIPANT_PORT is required")
	} else if !isValidPort(cfg.ParticipantPort) {
		errs = append(errs, fmt.Sprintf("PARTICIPANT_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.ParticipantPort))
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		errs = append(errs, "DATA_DIR is required")
	}

	cfg.CoordinatorAddr = os.Getenv("COORDINATOR_ADDR")
	if cfg.CoordinatorAddr == "" {
		errs = append(errs, "COORDINATOR_ADDR is required")
	} else if !isValidHostPort(cfg.CoordinatorAddr) {
		errs = append(errs, fmt.Sprintf("COORDINATOR_ADDR must be in format 'host:port' (got '%s')", cfg.CoordinatorAddr))
	}

	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.TracingCollectorAddr = os.Getenv("TRACING_COLLECTOR_ADDR")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	slog.Info("data node environment configuration validated",
		"ops_port", cfg.OpsPort,
		"participant_port", cfg.ParticipantPort,
		"data_dir", cfg.DataDir,
		"coordinator_addr", cfg.CoordinatorAddr,
		"redis_enabled", cfg.RedisEnabled,
	)

	return cfg, nil
}

// ChatNodeConfig holds validated environment configuration for a chat node
// (chatroom hosting, pub/sub fan-out, raw TCP stream surface).
type ChatNodeConfig struct {
	OpsPort         string
	StreamPort      string
	CoordinatorAddr string

	LogRetryMillis int

	GoEnv    string
	LogLevel string

	TracingCollectorAddr string
}

// ValidateChatNodeEnv validates a chat node's required environment variables.
func ValidateChatNodeEnv() (*ChatNodeConfig, error) {
	cfg := &ChatNodeConfig{}
	var errs []string

	cfg.OpsPort = os.Getenv("OPS_PORT")
	if cfg.OpsPort == "" {
		errs = append(errs, "OPS_PORT is required")
	} else if !isValidPort(cfg.OpsPort) {
		errs = append(errs, fmt.Sprintf("OPS_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.OpsPort))
	}

	cfg.StreamPort = os.Getenv("STREAM_PORT")
	if cfg.StreamPort == "" {
		errs = append(errs, "STREAM_PORT is required")
	} else if !isValidPort(cfg.StreamPort) {
		errs = append(errs, fmt.Sprintf("STREAM_PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.StreamPort))
	}

	cfg.CoordinatorAddr = os.Getenv("COORDINATOR_ADDR")
	if cfg.CoordinatorAddr == "" {
		errs = append(errs, "COORDINATOR_ADDR is required")
	} else if !isValidHostPort(cfg.CoordinatorAddr) {
		errs = append(errs, fmt.Sprintf("COORDINATOR_ADDR must be in format 'host:port' (got '%s')", cfg.CoordinatorAddr))
	}

	cfg.LogRetryMillis = getEnvIntOrDefault("LOG_RETRY_MILLIS", 1000)
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.TracingCollectorAddr = os.Getenv("TRACING_COLLECTOR_ADDR")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	slog.Info("chat node environment configuration validated",
		"ops_port", cfg.OpsPort,
		"stream_port", cfg.StreamPort,
		"coordinator_addr", cfg.CoordinatorAddr,
	)

	return cfg, nil
}

// isValidPort checks if a string is a valid TCP port number.
func isValidPort(s string) bool {
	port, err := strconv.Atoi(s)
	return err == nil && port >= 1 && port <= 65535
}

// isValidHostPort checks if a string is in the format "host:port".
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}
	if parts[0] == "" {
		return false
	}
	return isValidPort(parts[1])
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the integer value of the environment variable or a default.
func getEnvIntOrDefault(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// redactSecret redacts a secret by showing only the first 8 characters.
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
