package config

import (
	"os"
	"strings"
	"testing"
)

// clearEnv unsets every variable any of the three validators read, returning
// a cleanup function that restores whatever was previously set.
func clearEnv(t *testing.T) func() {
	keys := []string{
		"PORT", "IDENTITY_SECRET", "SWEEP_INTERVAL_SECONDS",
		"OPS_PORT", "PARTICIPANT_PORT", "DATA_DIR", "COORDINATOR_ADDR",
		"REDIS_ENABLED", "REDIS_ADDR", "REDIS_PASSWORD",
		"STREAM_PORT", "LOG_RETRY_MILLIS",
		"GO_ENV", "LOG_LEVEL",
	}
	orig := map[string]string{}
	for _, k := range keys {
		orig[k] = os.Getenv(k)
		os.Unsetenv(k)
	}
	return func() {
		for k, v := range orig {
			if v != "" {
				os.Setenv(k, v)
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

func TestValidateCoordinatorEnv_Valid(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("PORT", "8080")
	os.Setenv("IDENTITY_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")

	cfg, err := ValidateCoordinatorEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected PORT '8080', got '%s'", cfg.Port)
	}
	if cfg.GoEnv != "production" {
		t.Errorf("expected GO_ENV to default to 'production', got '%s'", cfg.GoEnv)
	}
	if cfg.SweepIntervalSeconds != 60 {
		t.Errorf("expected default sweep interval 60, got %d", cfg.SweepIntervalSeconds)
	}
}

func TestValidateCoordinatorEnv_MissingIdentitySecret(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("PORT", "8080")

	_, err := ValidateCoordinatorEnv()
	if err == nil {
		t.Fatal("expected error for missing IDENTITY_SECRET, got nil")
	}
	if !strings.Contains(err.Error(), "IDENTITY_SECRET is required") {
		t.Errorf("expected error about IDENTITY_SECRET, got: %v", err)
	}
}

func TestValidateCoordinatorEnv_ShortIdentitySecret(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("PORT", "8080")
	os.Setenv("IDENTITY_SECRET", "short")

	_, err := ValidateCoordinatorEnv()
	if err == nil {
		t.Fatal("expected error for short IDENTITY_SECRET, got nil")
	}
	if !strings.Contains(err.Error(), "must be at least 32 characters") {
		t.Errorf("expected error about secret length, got: %v", err)
	}
}

func TestValidateCoordinatorEnv_InvalidPort(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("PORT", "99999")
	os.Setenv("IDENTITY_SECRET", "this-is-a-very-long-secret-key-for-testing-purposes")

	_, err := ValidateCoordinatorEnv()
	if err == nil {
		t.Fatal("expected error for invalid PORT, got nil")
	}
	if !strings.Contains(err.Error(), "PORT must be a valid port number") {
		t.Errorf("expected error about invalid PORT, got: %v", err)
	}
}

func TestValidateDataNodeEnv_Valid(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("OPS_PORT", "9001")
	os.Setenv("PARTICIPANT_PORT", "9002")
	os.Setenv("DATA_DIR", "/tmp/chatmesh-data")
	os.Setenv("COORDINATOR_ADDR", "localhost:8080")

	cfg, err := ValidateDataNodeEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.DataDir != "/tmp/chatmesh-data" {
		t.Errorf("expected DATA_DIR to be set correctly")
	}
	if cfg.RedisEnabled {
		t.Errorf("expected RedisEnabled to default false")
	}
}

func TestValidateDataNodeEnv_InvalidCoordinatorAddr(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("OPS_PORT", "9001")
	os.Setenv("PARTICIPANT_PORT", "9002")
	os.Setenv("DATA_DIR", "/tmp/chatmesh-data")
	os.Setenv("COORDINATOR_ADDR", "no-port-here")

	_, err := ValidateDataNodeEnv()
	if err == nil {
		t.Fatal("expected error for invalid COORDINATOR_ADDR, got nil")
	}
	if !strings.Contains(err.Error(), "COORDINATOR_ADDR must be in format 'host:port'") {
		t.Errorf("expected error about COORDINATOR_ADDR format, got: %v", err)
	}
}

func TestValidateDataNodeEnv_RedisDefaultAddr(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("OPS_PORT", "9001")
	os.Setenv("PARTICIPANT_PORT", "9002")
	os.Setenv("DATA_DIR", "/tmp/chatmesh-data")
	os.Setenv("COORDINATOR_ADDR", "localhost:8080")
	os.Setenv("REDIS_ENABLED", "true")

	cfg, err := ValidateDataNodeEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected REDIS_ADDR to default to 'localhost:6379', got '%s'", cfg.RedisAddr)
	}
}

func TestValidateDataNodeEnv_MissingDataDir(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("OPS_PORT", "9001")
	os.Setenv("PARTICIPANT_PORT", "9002")
	os.Setenv("COORDINATOR_ADDR", "localhost:8080")

	_, err := ValidateDataNodeEnv()
	if err == nil {
		t.Fatal("expected error for missing DATA_DIR, got nil")
	}
	if !strings.Contains(err.Error(), "DATA_DIR is required") {
		t.Errorf("expected error about DATA_DIR, got: %v", err)
	}
}

func TestValidateChatNodeEnv_Valid(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("OPS_PORT", "9101")
	os.Setenv("STREAM_PORT", "9102")
	os.Setenv("COORDINATOR_ADDR", "localhost:8080")

	cfg, err := ValidateChatNodeEnv()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.LogRetryMillis != 1000 {
		t.Errorf("expected default LogRetryMillis 1000, got %d", cfg.LogRetryMillis)
	}
}

func TestValidateChatNodeEnv_MissingStreamPort(t *testing.T) {
	defer clearEnv(t)()

	os.Setenv("OPS_PORT", "9101")
	os.Setenv("COORDINATOR_ADDR", "localhost:8080")

	_, err := ValidateChatNodeEnv()
	if err == nil {
		t.Fatal("expected error for missing STREAM_PORT, got nil")
	}
	if !strings.Contains(err.Error(), "STREAM_PORT is required") {
		t.Errorf("expected error about STREAM_PORT, got: %v", err)
	}
}

func TestRedactSecret(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		expected string
	}{
		{"Long secret", "this-is-a-very-long-secret-key", "this-is-***"},
		{"Short secret", "short", "***"},
		{"Exactly 8 chars", "12345678", "***"},
		{"9 chars", "123456789", "12345678***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := redactSecret(tt.secret)
			if result != tt.expected {
				t.Errorf("expected '%s', got '%s'", tt.expected, result)
			}
		})
	}
}

func TestIsValidHostPort(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected bool
	}{
		{"Valid localhost", "localhost:8080", true},
		{"Valid IP", "127.0.0.1:3000", true},
		{"Valid hostname", "example.com:443", true},
		{"Missing port", "localhost", false},
		{"Missing host", ":8080", false},
		{"Invalid port", "localhost:99999", false},
		{"Non-numeric port", "localhost:abc", false},
		{"Multiple colons", "localhost:8080:9090", false},
		{"Empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isValidHostPort(tt.addr)
			if result != tt.expected {
				t.Errorf("isValidHostPort('%s') = %v, expected %v", tt.addr, result, tt.expected)
			}
		})
	}
}
