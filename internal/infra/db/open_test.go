package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConnectionConfig(t *testing.T) {
	cfg := DefaultConnectionConfig()

	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 1*time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxIdleTime)
}

func TestGetConnectionConfigFromEnv_Defaults(t *testing.T) {
	// Clear all environment variables
	_ = os.Unsetenv("DB_MAX_OPEN_CONNS")
	_ = os.Unsetenv("DB_MAX_IDLE_CONNS")
	_ = os.Unsetenv("DB_CONN_MAX_LIFETIME")
	_ = os.Unsetenv("DB_CONN_MAX_IDLE_TIME")

	cfg := getConnectionConfigFromEnv()

	// Should use defaults
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 1*time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxIdleTime)
}

func TestGetConnectionConfigFromEnv_MaxOpenConns(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected int
	}{
		{
			name:     "valid value",
			envValue: "50",
			expected: 50,
		},
		{
			name:     "invalid value - non-numeric",
			envValue: "invalid",
			expected: 25, // default
		},
		{
			name:     "invalid value - zero",
			envValue: "0",
			expected: 25, // default
		},
		{
			name:     "invalid value - negative",
			envValue: "-10",
			expected: 25, // default
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Setenv("DB_MAX_OPEN_CONNS", tt.envValue)
			defer func() { _ = os.Unsetenv("DB_MAX_OPEN_CONNS") }()

			cfg := getConnectionConfigFromEnv()
			assert.Equal(t, tt.expected, cfg.MaxOpenConns)
		})
	}
}

func TestGetConnectionConfigFromEnv_MaxIdleConns(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected int
	}{
		{
			name:     "valid value",
			envValue: "20",
			expected: 20,
		},
		{
			name:     "invalid value - non-numeric",
			envValue: "abc",
			expected: 10, // default
		},
		{
			name:     "invalid value - zero",
			envValue: "0",
			expected: 10, // default
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Setenv("DB_MAX_IDLE_CONNS", tt.envValue)
			defer func() { _ = os.Unsetenv("DB_MAX_IDLE_CONNS") }()

			cfg := getConnectionConfigFromEnv()
			assert.Equal(t, tt.expected, cfg.MaxIdleConns)
		})
	}
}

func TestGetConnectionConfigFromEnv_ConnMaxLifetime(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected time.Duration
	}{
		{
			name:     "valid value - hours",
			envValue: "2h",
			expected: 2 * time.Hour,
		},
		{
			name:     "valid value - minutes",
			envValue: "45m",
			expected: 45 * time.Minute,
		},
		{
			name:     "valid value - mixed",
			envValue: "1h30m",
			expected: 90 * time.Minute,
		},
		{
			name:     "invalid value - not a duration",
			envValue: "invalid",
			expected: 1 * time.Hour, // default
		},
		{
			name:     "invalid value - zero",
			envValue: "0s",
			expected: 1 * time.Hour, // default
		},
		{
			name:     "invalid value - negative",
			envValue: "-1h",
			expected: 1 * time.Hour, // default
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Setenv("DB_CONN_MAX_LIFETIME", tt.envValue)
			defer func() { _ = os.Unsetenv("DB_CONN_MAX_LIFETIME") }()

			cfg := getConnectionConfigFromEnv()
			assert.Equal(t, tt.expected, cfg.ConnMaxLifetime)
		})
	}
}

func TestGetConnectionConfigFromEnv_ConnMaxIdleTime(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		expected time.Duration
	}{
		{
			name:     "valid value",
			envValue: "15m",
			expected: 15 * time.Minute,
		},
		{
			name:     "invalid value",
			envValue: "not-a-duration",
			expected: 30 * time.Minute, // default
		},
		{
			name:     "zero value",
			envValue: "0m",
			expected: 30 * time.Minute, // default
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Setenv("DB_CONN_MAX_IDLE_TIME", tt.envValue)
			defer func() { _ = os.Unsetenv("DB_CONN_MAX_IDLE_TIME") }()

			cfg := getConnectionConfigFromEnv()
			assert.Equal(t, tt.expected, cfg.ConnMaxIdleTime)
		})
	}
}

func TestGetConnectionConfigFromEnv_AllCustomValues(t *testing.T) {
	// Set all custom values
	_ = os.Setenv("DB_MAX_OPEN_CONNS", "100")
	_ = os.Setenv("DB_MAX_IDLE_CONNS", "50")
	_ = os.Setenv("DB_CONN_MAX_LIFETIME", "2h")
	_ = os.Setenv("DB_CONN_MAX_IDLE_TIME", "45m")

	defer func() {
		_ = os.Unsetenv("DB_MAX_OPEN_CONNS")
		_ = os.Unsetenv("DB_MAX_IDLE_CONNS")
		_ = os.Unsetenv("DB_CONN_MAX_LIFETIME")
		_ = os.Unsetenv("DB_CONN_MAX_IDLE_TIME")
	}()

	cfg := getConnectionConfigFromEnv()

	assert.Equal(t, 100, cfg.MaxOpenConns)
	assert.Equal(t, 50, cfg.MaxIdleConns)
	assert.Equal(t, 2*time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 45*time.Minute, cfg.ConnMaxIdleTime)
}

func TestGetConnectionConfigFromEnv_PartialCustomValues(t *testing.T) {
	// Set only some custom values
	_ = os.Setenv("DB_MAX_OPEN_CONNS", "75")
	_ = os.Setenv("DB_CONN_MAX_LIFETIME", "3h")

	defer func() {
		_ = os.Unsetenv("DB_MAX_OPEN_CONNS")
		_ = os.Unsetenv("DB_CONN_MAX_LIFETIME")
	}()

	cfg := getConnectionConfigFromEnv()

	// Custom values
	assert.Equal(t, 75, cfg.MaxOpenConns)
	assert.Equal(t, 3*time.Hour, cfg.ConnMaxLifetime)

	// Default values
	assert.Equal(t, 10, cfg.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxIdleTime)
}

func TestConnectionConfig_Struct(t *testing.T) {
	// Test that ConnectionConfig struct can be created manually
	cfg := ConnectionConfig{
		MaxOpenConns:    100,
		MaxIdleConns:    50,
		ConnMaxLifetime: 2 * time.Hour,
		ConnMaxIdleTime: 1 * time.Hour,
	}

	assert.Equal(t, 100, cfg.MaxOpenConns)
	assert.Equal(t, 50, cfg.MaxIdleConns)
	assert.Equal(t, 2*time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 1*time.Hour, cfg.ConnMaxIdleTime)
}

/* ──────────────────────────────── 7. Open Function Integration Tests ──────────────────────────────── */

// TestOpen_SuccessfulConnection tests that Open() successfully connects to a valid database
func TestOpen_SuccessfulConnection(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Database connection failed: %v", err)
	}
}

// TestOpen_ConnectionPoolConfiguration tests that connection pool is configured correctly
func TestOpen_ConnectionPoolConfiguration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	_ = os.Setenv("DB_MAX_OPEN_CONNS", "50")
	_ = os.Setenv("DB_MAX_IDLE_CONNS", "25")
	defer func() {
		_ = os.Unsetenv("DB_MAX_OPEN_CONNS")
		_ = os.Unsetenv("DB_MAX_IDLE_CONNS")
	}()

	db, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	defer func() { _ = db.Close() }()

	stats := db.Stats()
	assert.NotNil(t, stats)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Database connection failed with custom pool config: %v", err)
	}
}

// TestOpen_VerifyPingTimeout tests that Open() includes connection verification
func TestOpen_VerifyPingTimeout(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Ping failed within timeout: %v", err)
	}
}

// TestOpen_WithDefaultConfiguration tests Open() with default configuration values
func TestOpen_WithDefaultConfiguration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	_ = os.Unsetenv("DB_MAX_OPEN_CONNS")
	_ = os.Unsetenv("DB_MAX_IDLE_CONNS")
	_ = os.Unsetenv("DB_CONN_MAX_LIFETIME")
	_ = os.Unsetenv("DB_CONN_MAX_IDLE_TIME")

	db, err := Open(context.Background())
	if err != nil {
		t.Fatalf("Open() returned error: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Database connection failed with default config: %v", err)
	}

	stats := db.Stats()
	assert.NotNil(t, stats)
}

// TestOpen_MultipleConnections tests that multiple connections can be established
func TestOpen_MultipleConnections(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db1, err := Open(context.Background())
	if err != nil {
		t.Fatalf("first Open() returned error: %v", err)
	}
	defer func() { _ = db1.Close() }()

	db2, err := Open(context.Background())
	if err != nil {
		t.Fatalf("second Open() returned error: %v", err)
	}
	defer func() { _ = db2.Close() }()

	ctx := context.Background()

	if err := db1.PingContext(ctx); err != nil {
		t.Fatalf("First connection failed: %v", err)
	}

	if err := db2.PingContext(ctx); err != nil {
		t.Fatalf("Second connection failed: %v", err)
	}
}

// Note: Testing Open() with a missing DATABASE_URL or an unreachable DSN is
// covered by the error-return path directly; no subprocess harness is needed
// since Open() returns an error instead of calling log.Fatal.
func TestOpen_MissingDatabaseURL(t *testing.T) {
	_ = os.Unsetenv("DATABASE_URL")

	_, err := Open(context.Background())
	assert.Error(t, err)
}
