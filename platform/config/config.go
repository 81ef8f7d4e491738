// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinIOMaxFileSize() int64
	GetMinIOBucketArtifacts() string
	GetMinIOBucketImports() string
	IsMinIOEnabled() bool
}

// ArtifactConfig provides settings for recordings and screenshots.
type ArtifactConfig interface {
	GetArtifactDir() string
	GetRecordingFolder() string
	GetPublisherID() string
}

// SchedulerConfig provides settings for the background job queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	IsSchedulerEnabled() bool
}

// VoiceConfig provides settings for the outbound call provider.
type VoiceConfig interface {
	GetVoiceAPIURL() string
	GetVoiceAPIKey() string
	GetVoiceID() string
	GetVoiceCallbackURL() string
	GetVoiceRateLimit() float64
	GetPhoneRegion() string
}

// IntakeConfig provides settings for the partner intake portal.
type IntakeConfig interface {
	GetIntakePortalURL() string
	GetIntakeUsername() string
	GetIntakePassword() string
	GetIntakeProfilePath() string
	GetIntakeHeadless() bool
}

// PipelineConfig provides scheduler and worker tuning.
type PipelineConfig interface {
	GetMaxConcurrentCalls() int
	GetMaxConcurrentEntries() int
	GetCallTimeout() time.Duration
	GetCallPollInterval() time.Duration
	GetCallCooldown() time.Duration
	GetCallMaxAttempts() int
	GetEntryTimeout() time.Duration
	GetEntryMaxAttempts() int
	GetIdleDelay() time.Duration
	GetBatchDelay() time.Duration
	GetDrainTimeout() time.Duration
	GetLockFile() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	JWTAccessSecret string
	CORSAllowAll    bool
	CORSOrigins     []string

	MinIOEndpoint        string
	MinIOAccessKey       string
	MinIOSecretKey       string
	MinIOUseSSL          bool
	MinIOMaxFileSize     int64
	MinIOBucketArtifacts string
	MinIOBucketImports   string

	ArtifactDir     string
	RecordingFolder string
	PublisherID     string

	RedisURL         string
	RedisTLSInsecure bool
	AsynqQueueName   string
	AsynqConcurrency int

	VoiceAPIURL      string
	VoiceAPIKey      string
	VoiceID          string
	VoiceCallbackURL string
	VoiceRateLimit   float64
	PhoneRegion      string

	IntakePortalURL   string
	IntakeUsername    string
	IntakePassword    string
	IntakeProfilePath string
	IntakeHeadless    bool

	MaxConcurrentCalls   int
	MaxConcurrentEntries int
	CallTimeout          time.Duration
	CallPollInterval     time.Duration
	CallCooldown         time.Duration
	CallMaxAttempts      int
	EntryTimeout         time.Duration
	EntryMaxAttempts     int
	IdleDelay            time.Duration
	BatchDelay           time.Duration
	DrainTimeout         time.Duration
	LockFile             string
}

// =============================================================================
// Interface Implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string     { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

func (c *Config) GetMinIOEndpoint() string        { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string       { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string       { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool            { return c.MinIOUseSSL }
func (c *Config) GetMinIOMaxFileSize() int64      { return c.MinIOMaxFileSize }
func (c *Config) GetMinIOBucketArtifacts() string { return c.MinIOBucketArtifacts }
func (c *Config) GetMinIOBucketImports() string   { return c.MinIOBucketImports }
func (c *Config) IsMinIOEnabled() bool            { return c.MinIOEndpoint != "" }

func (c *Config) GetArtifactDir() string     { return c.ArtifactDir }
func (c *Config) GetRecordingFolder() string { return c.RecordingFolder }
func (c *Config) GetPublisherID() string     { return c.PublisherID }

func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) IsSchedulerEnabled() bool  { return c.RedisURL != "" }

func (c *Config) GetVoiceAPIURL() string      { return c.VoiceAPIURL }
func (c *Config) GetVoiceAPIKey() string      { return c.VoiceAPIKey }
func (c *Config) GetVoiceID() string          { return c.VoiceID }
func (c *Config) GetVoiceCallbackURL() string { return c.VoiceCallbackURL }
func (c *Config) GetVoiceRateLimit() float64  { return c.VoiceRateLimit }
func (c *Config) GetPhoneRegion() string      { return c.PhoneRegion }

func (c *Config) GetIntakePortalURL() string   { return c.IntakePortalURL }
func (c *Config) GetIntakeUsername() string    { return c.IntakeUsername }
func (c *Config) GetIntakePassword() string    { return c.IntakePassword }
func (c *Config) GetIntakeProfilePath() string { return c.IntakeProfilePath }
func (c *Config) GetIntakeHeadless() bool      { return c.IntakeHeadless }

func (c *Config) GetMaxConcurrentCalls() int         { return c.MaxConcurrentCalls }
func (c *Config) GetMaxConcurrentEntries() int       { return c.MaxConcurrentEntries }
func (c *Config) GetCallTimeout() time.Duration      { return c.CallTimeout }
func (c *Config) GetCallPollInterval() time.Duration { return c.CallPollInterval }
func (c *Config) GetCallCooldown() time.Duration     { return c.CallCooldown }
func (c *Config) GetCallMaxAttempts() int            { return c.CallMaxAttempts }
func (c *Config) GetEntryTimeout() time.Duration     { return c.EntryTimeout }
func (c *Config) GetEntryMaxAttempts() int           { return c.EntryMaxAttempts }
func (c *Config) GetIdleDelay() time.Duration        { return c.IdleDelay }
func (c *Config) GetBatchDelay() time.Duration       { return c.BatchDelay }
func (c *Config) GetDrainTimeout() time.Duration     { return c.DrainTimeout }
func (c *Config) GetLockFile() string                { return c.LockFile }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))

	cfg := &Config{
		Env:             getEnv("APP_ENV", "development"),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		JWTAccessSecret: getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:    strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true") || containsWildcard(corsOrigins),
		CORSOrigins:     corsOrigins,

		MinIOEndpoint:        getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:       getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:       getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:          strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinIOMaxFileSize:     mustInt64(getEnv("MINIO_MAX_FILE_SIZE", "104857600")),
		MinIOBucketArtifacts: getEnv("MINIO_BUCKET_ARTIFACTS", "lead-artifacts"),
		MinIOBucketImports:   getEnv("MINIO_BUCKET_IMPORTS", "lead-imports"),

		ArtifactDir:     getEnv("ARTIFACT_DIR", filepath.Join("logs", "artifacts")),
		RecordingFolder: getEnv("RECORDING_FOLDER", "recordings"),
		PublisherID:     getEnv("PUBLISHER_ID", ""),

		RedisURL:         getEnv("REDIS_URL", ""),
		RedisTLSInsecure: strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "leadpipe"),
		AsynqConcurrency: mustInt(getEnv("ASYNQ_CONCURRENCY", "4")),

		VoiceAPIURL:      strings.TrimRight(getEnv("VOICE_API_URL", ""), "/"),
		VoiceAPIKey:      getEnv("VOICE_API_KEY", ""),
		VoiceID:          getEnv("VOICE_ID", "en-US-Neural2-F"),
		VoiceCallbackURL: getEnv("VOICE_CALLBACK_URL", ""),
		VoiceRateLimit:   mustFloat(getEnv("VOICE_RATE_LIMIT", "2")),
		PhoneRegion:      strings.ToUpper(getEnv("PHONE_REGION", "US")),

		IntakePortalURL:   getEnv("INTAKE_PORTAL_URL", ""),
		IntakeUsername:    getEnv("INTAKE_USERNAME", ""),
		IntakePassword:    getEnv("INTAKE_PASSWORD", ""),
		IntakeProfilePath: getEnv("INTAKE_PROFILE", ""),
		IntakeHeadless:    !strings.EqualFold(getEnv("INTAKE_HEADLESS", "true"), "false"),

		MaxConcurrentCalls:   mustInt(getEnv("MAX_CONCURRENT_CALLS", "5")),
		MaxConcurrentEntries: mustInt(getEnv("MAX_CONCURRENT_ENTRIES", "3")),
		CallTimeout:          mustDuration(getEnv("CALL_TIMEOUT", "300s")),
		CallPollInterval:     mustDuration(getEnv("CALL_POLL_INTERVAL", "5s")),
		CallCooldown:         mustDuration(getEnv("CALL_COOLDOWN", "1h")),
		CallMaxAttempts:      mustInt(getEnv("CALL_MAX_ATTEMPTS", "3")),
		EntryTimeout:         mustDuration(getEnv("ENTRY_TIMEOUT", "300s")),
		EntryMaxAttempts:     mustInt(getEnv("ENTRY_MAX_ATTEMPTS", "3")),
		IdleDelay:            mustDuration(getEnv("PIPELINE_IDLE_DELAY", "30s")),
		BatchDelay:           mustDuration(getEnv("PIPELINE_BATCH_DELAY", "5s")),
		DrainTimeout:         mustDuration(getEnv("PIPELINE_DRAIN_TIMEOUT", "30s")),
		LockFile:             getEnv("PIPELINE_LOCK_FILE", filepath.Join(os.TempDir(), "leadpipe.lock")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.MaxConcurrentCalls < 1 || c.MaxConcurrentEntries < 1 {
		return fmt.Errorf("MAX_CONCURRENT_CALLS and MAX_CONCURRENT_ENTRIES must be positive")
	}
	if c.CallTimeout <= 0 || c.EntryTimeout <= 0 {
		return fmt.Errorf("CALL_TIMEOUT and ENTRY_TIMEOUT must be positive durations")
	}
	if c.CallPollInterval <= 0 {
		return fmt.Errorf("CALL_POLL_INTERVAL must be a positive duration")
	}
	if c.CallMaxAttempts < 1 || c.EntryMaxAttempts < 1 {
		return fmt.Errorf("CALL_MAX_ATTEMPTS and ENTRY_MAX_ATTEMPTS must be positive")
	}
	if c.MinIOEndpoint != "" && (c.MinIOAccessKey == "" || c.MinIOSecretKey == "") {
		return fmt.Errorf("MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required when MINIO_ENDPOINT is set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
