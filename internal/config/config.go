// Package config provides configuration loading and validation for the
// territory engine commands. It uses koanf to merge environment variables
// with optional file overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/session"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/track"
)

// Config holds all configuration values.
type Config struct {
	// Server settings
	Port int    `koanf:"port"`
	Env  string `koanf:"env"`

	// Storage
	DatabaseURL string `koanf:"database_url"`
	RedisURL    string `koanf:"redis_url"`

	// Snapshot
	SnapshotRefreshInterval time.Duration `koanf:"snapshot_refresh_interval"`
	SnapshotCacheTTL        time.Duration `koanf:"snapshot_cache_ttl"`
	// SnapshotRegion optionally limits the snapshot to "minLat,minLng,maxLat,maxLng".
	SnapshotRegion string `koanf:"snapshot_region"`

	// Tracing
	TracingEnabled    bool    `koanf:"tracing_enabled"`
	OTelExporterType  string  `koanf:"otel_exporter_type"`
	OTelEndpoint      string  `koanf:"otel_exporter_otlp_endpoint"`
	TracingSampleRate float64 `koanf:"tracing_sample_rate"`

	// Sample filter
	MaxAccuracyMeters float64 `koanf:"max_accuracy_meters"`
	MinMovementMeters float64 `koanf:"min_movement_meters"`

	// Loop closure and validation
	ClosureMeters   float64 `koanf:"closure_meters"`
	MinPoints       int     `koanf:"min_points"`
	MinLengthMeters float64 `koanf:"min_length_meters"`
	MinAreaSqMeters float64 `koanf:"min_area_sq_meters"`
	ClosureWindow   int     `koanf:"closure_window"`

	// Speed policies
	ClaimSoftLimitKmh   float64       `koanf:"claim_soft_limit_kmh"`
	ClaimHardLimitKmh   float64       `koanf:"claim_hard_limit_kmh"`
	ClaimGracePeriod    time.Duration `koanf:"claim_grace_period"`
	ExploreHardLimitKmh float64       `koanf:"explore_hard_limit_kmh"`
	ExploreGracePeriod  time.Duration `koanf:"explore_grace_period"`

	// Collision
	CollisionInterval      time.Duration `koanf:"collision_interval"`
	ProximityCautionMeters float64       `koanf:"proximity_caution_meters"`
	ProximityWarningMeters float64       `koanf:"proximity_warning_meters"`
	ProximityDangerMeters  float64       `koanf:"proximity_danger_meters"`
}

// Configuration validation errors.
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrInvalidPort        = errors.New("PORT must be a valid integer")
	ErrInvalidNumber      = errors.New("value must be a valid number")
	ErrInvalidDuration    = errors.New("value must be a valid duration")
	ErrInvalidThreshold   = errors.New("invalid threshold")
	ErrInvalidRegion      = errors.New("SNAPSHOT_REGION must be minLat,minLng,maxLat,maxLng")
)

// Default values for non-secret configuration.
const (
	DefaultPort                    = 8080
	DefaultEnv                     = "development"
	DefaultSnapshotRefreshInterval = territory.DefaultRefreshInterval
	DefaultSnapshotCacheTTL        = territory.DefaultCacheTTL
	DefaultOTelExporterType        = "otlp-http"
	DefaultTracingSampleRate       = 0.1
	DefaultCollisionInterval       = 10 * time.Second
)

// Load reads configuration from environment variables and an optional config file.
// Environment variables take precedence over file values.
// Returns the loaded config and a slice of validation errors (empty if valid).
// If a config file path is provided and the file cannot be loaded, an error is returned.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	// Load from YAML file first if provided (lower precedence)
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	collect := func(err error) {
		if err != nil {
			loadErrs = append(loadErrs, err)
		}
	}

	filter := track.DefaultFilterConfig()
	recorder := track.DefaultRecorderConfig()
	validator := territory.DefaultValidatorConfig()
	claiming := track.ClaimingPolicy()
	exploring := track.ExplorationPolicy()
	bands := territory.DefaultProximityBands()

	// Try TURF_PORT first, then PORT for backward compatibility
	port, err := getEnvIntOrDefaultMulti([]string{"TURF_PORT", "PORT"}, k.Int("port"), DefaultPort)
	collect(err)

	cfg := &Config{
		Port:           port,
		Env:            getEnvOrDefaultMulti([]string{"TURF_ENV", "ENV", "GO_ENV"}, k.String("env"), DefaultEnv),
		DatabaseURL:    getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		RedisURL:       getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		SnapshotRegion: getEnvOrKoanf("SNAPSHOT_REGION", k, "snapshot_region"),
		OTelExporterType: getEnvOrDefault("OTEL_EXPORTER_TYPE", k.String("otel_exporter_type"),
			DefaultOTelExporterType),
		OTelEndpoint:   getEnvOrKoanf("OTEL_EXPORTER_OTLP_ENDPOINT", k, "otel_exporter_otlp_endpoint"),
		TracingEnabled: getEnvBoolOrDefault("TRACING_ENABLED", k, "tracing_enabled", false),
	}

	cfg.SnapshotRefreshInterval, err = getEnvDurationOrDefault("SNAPSHOT_REFRESH_INTERVAL", k, "snapshot_refresh_interval", DefaultSnapshotRefreshInterval)
	collect(err)
	cfg.SnapshotCacheTTL, err = getEnvDurationOrDefault("SNAPSHOT_CACHE_TTL", k, "snapshot_cache_ttl", DefaultSnapshotCacheTTL)
	collect(err)
	cfg.TracingSampleRate, err = getEnvFloatOrDefault("TRACING_SAMPLE_RATE", k, "tracing_sample_rate", DefaultTracingSampleRate)
	collect(err)

	cfg.MaxAccuracyMeters, err = getEnvFloatOrDefault("TURF_MAX_ACCURACY_METERS", k, "max_accuracy_meters", filter.MaxAccuracyMeters)
	collect(err)
	cfg.MinMovementMeters, err = getEnvFloatOrDefault("TURF_MIN_MOVEMENT_METERS", k, "min_movement_meters", filter.MinMovementMeters)
	collect(err)
	cfg.ClosureMeters, err = getEnvFloatOrDefault("TURF_CLOSURE_METERS", k, "closure_meters", recorder.ClosureMeters)
	collect(err)
	cfg.MinPoints, err = getEnvIntOrDefault("TURF_MIN_POINTS", k, "min_points", validator.MinPoints)
	collect(err)
	cfg.MinLengthMeters, err = getEnvFloatOrDefault("TURF_MIN_LENGTH_METERS", k, "min_length_meters", validator.MinLengthMeters)
	collect(err)
	cfg.MinAreaSqMeters, err = getEnvFloatOrDefault("TURF_MIN_AREA_SQ_METERS", k, "min_area_sq_meters", validator.MinAreaSqMeters)
	collect(err)
	cfg.ClosureWindow, err = getEnvIntOrDefault("TURF_CLOSURE_WINDOW", k, "closure_window", validator.ClosureWindow)
	collect(err)

	cfg.ClaimSoftLimitKmh, err = getEnvFloatOrDefault("TURF_CLAIM_SOFT_LIMIT_KMH", k, "claim_soft_limit_kmh", claiming.SoftLimitKmh)
	collect(err)
	cfg.ClaimHardLimitKmh, err = getEnvFloatOrDefault("TURF_CLAIM_HARD_LIMIT_KMH", k, "claim_hard_limit_kmh", claiming.HardLimitKmh)
	collect(err)
	cfg.ClaimGracePeriod, err = getEnvDurationOrDefault("TURF_CLAIM_GRACE_PERIOD", k, "claim_grace_period", claiming.GracePeriod)
	collect(err)
	cfg.ExploreHardLimitKmh, err = getEnvFloatOrDefault("TURF_EXPLORE_HARD_LIMIT_KMH", k, "explore_hard_limit_kmh", exploring.HardLimitKmh)
	collect(err)
	cfg.ExploreGracePeriod, err = getEnvDurationOrDefault("TURF_EXPLORE_GRACE_PERIOD", k, "explore_grace_period", exploring.GracePeriod)
	collect(err)

	cfg.CollisionInterval, err = getEnvDurationOrDefault("TURF_COLLISION_INTERVAL", k, "collision_interval", DefaultCollisionInterval)
	collect(err)
	cfg.ProximityCautionMeters, err = getEnvFloatOrDefault("TURF_PROXIMITY_CAUTION_METERS", k, "proximity_caution_meters", bands.CautionMeters)
	collect(err)
	cfg.ProximityWarningMeters, err = getEnvFloatOrDefault("TURF_PROXIMITY_WARNING_METERS", k, "proximity_warning_meters", bands.WarningMeters)
	collect(err)
	cfg.ProximityDangerMeters, err = getEnvFloatOrDefault("TURF_PROXIMITY_DANGER_METERS", k, "proximity_danger_meters", bands.DangerMeters)
	collect(err)

	// Validate and collect errors
	errs := cfg.Validate()
	errs = append(loadErrs, errs...)

	return cfg, errs
}

// getEnvOrKoanf returns the environment variable value if set, otherwise the koanf value.
func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

// getEnvOrDefault returns the environment variable value if set, otherwise the koanf value, or default.
func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first non-empty value found, otherwise the koanf value, or default.
func getEnvOrDefaultMulti(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

// getEnvIntOrDefault returns the environment variable as int if set,
// otherwise the koanf value when the key exists, or default. An explicit 0
// in the file is kept and left to Validate.
// Returns an error if the environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidNumber)
		}
		return i, nil
	}
	if k.Exists(koanfKey) {
		return k.Int(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvIntOrDefaultMulti tries multiple environment variable keys in order.
// Returns the first valid integer value found, otherwise the koanf value, or default.
// Returns an error if any environment variable is set but cannot be parsed as an integer.
func getEnvIntOrDefaultMulti(envKeys []string, koanfVal int, defaultVal int) (int, error) {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			i, err := strconv.Atoi(val)
			if err != nil {
				return 0, fmt.Errorf("%s must be a valid integer: %w", key, ErrInvalidPort)
			}
			return i, nil
		}
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

// getEnvFloatOrDefault returns the environment variable as float64 if set,
// otherwise the koanf value when the key exists, or default. Like
// getEnvIntOrDefault it keeps an explicit 0 from the file.
// Returns an error if the environment variable is set but cannot be parsed as a float.
func getEnvFloatOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal float64) (float64, error) {
	if val := os.Getenv(envKey); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid float: %w", envKey, ErrInvalidNumber)
		}
		return f, nil
	}
	if k.Exists(koanfKey) {
		return k.Float64(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvDurationOrDefault returns the environment variable as a duration if set,
// otherwise the koanf value when the key exists, or default. A zero duration
// is a valid value.
func getEnvDurationOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal time.Duration) (time.Duration, error) {
	if val := os.Getenv(envKey); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid duration: %w", envKey, ErrInvalidDuration)
		}
		return d, nil
	}
	if k.Exists(koanfKey) {
		return k.Duration(koanfKey), nil
	}
	return defaultVal, nil
}

// getEnvBoolOrDefault returns the environment variable as a bool if set,
// otherwise the koanf value when the key exists, or default.
func getEnvBoolOrDefault(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	result := defaultVal
	if k.Exists(koanfKey) {
		result = k.Bool(koanfKey)
	}
	if val := os.Getenv(envKey); val != "" {
		// Env var takes precedence over file config
		switch strings.ToLower(val) {
		case "true", "1", "yes", "on":
			result = true
		case "false", "0", "no", "off":
			result = false
		}
	}
	return result
}

// Validate checks that the thresholds are usable.
// Returns a slice of validation errors (empty if valid).
func (c *Config) Validate() []error {
	var errs []error

	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidThreshold}, args...)...))
	}

	if c.MaxAccuracyMeters <= 0 {
		invalid("max accuracy must be positive, got %v", c.MaxAccuracyMeters)
	}
	if c.MinMovementMeters <= 0 {
		invalid("min movement must be positive, got %v", c.MinMovementMeters)
	}
	if c.ClosureMeters <= 0 {
		invalid("closure distance must be positive, got %v", c.ClosureMeters)
	}
	if c.MinPoints < 3 {
		invalid("min points must be at least 3, got %d", c.MinPoints)
	}
	if c.MinLengthMeters < 0 || c.MinAreaSqMeters < 0 {
		invalid("min length and area must not be negative")
	}
	if c.ClosureWindow < 0 {
		invalid("closure window must not be negative, got %d", c.ClosureWindow)
	}
	if c.ClaimHardLimitKmh <= 0 || c.ExploreHardLimitKmh <= 0 {
		invalid("hard speed limits must be positive")
	}
	if c.ClaimSoftLimitKmh > c.ClaimHardLimitKmh {
		invalid("claim soft limit %v exceeds hard limit %v", c.ClaimSoftLimitKmh, c.ClaimHardLimitKmh)
	}
	if c.ClaimGracePeriod < 0 || c.ExploreGracePeriod < 0 {
		invalid("grace periods must not be negative")
	}
	if c.CollisionInterval <= 0 {
		invalid("collision interval must be positive, got %v", c.CollisionInterval)
	}
	if !(c.ProximityDangerMeters < c.ProximityWarningMeters && c.ProximityWarningMeters < c.ProximityCautionMeters) {
		invalid("proximity bands must satisfy danger < warning < caution")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		invalid("tracing sample rate must be within [0, 1], got %v", c.TracingSampleRate)
	}
	if _, err := c.Region(); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// RequireDatabase reports ErrMissingDatabaseURL when no database is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// Region parses SnapshotRegion. It returns nil when no region is set.
func (c *Config) Region() (*geo.BoundingBox, error) {
	if c.SnapshotRegion == "" {
		return nil, nil
	}
	box, err := geo.ParseBoundingBox(c.SnapshotRegion)
	if err != nil {
		return nil, ErrInvalidRegion
	}
	return &box, nil
}

// SessionConfig returns the per-session thresholds.
func (c *Config) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.Filter = track.FilterConfig{
		MaxAccuracyMeters: c.MaxAccuracyMeters,
		MinMovementMeters: c.MinMovementMeters,
	}
	cfg.Recorder = track.RecorderConfig{
		MinPoints:     c.MinPoints,
		ClosureMeters: c.ClosureMeters,
	}
	cfg.ClaimingPolicy.SoftLimitKmh = c.ClaimSoftLimitKmh
	cfg.ClaimingPolicy.HardLimitKmh = c.ClaimHardLimitKmh
	cfg.ClaimingPolicy.GracePeriod = c.ClaimGracePeriod
	cfg.ExplorationPolicy.HardLimitKmh = c.ExploreHardLimitKmh
	cfg.ExplorationPolicy.GracePeriod = c.ExploreGracePeriod
	cfg.CollisionInterval = c.CollisionInterval
	return cfg
}

// ValidatorConfig returns the loop validation thresholds.
func (c *Config) ValidatorConfig() territory.ValidatorConfig {
	return territory.ValidatorConfig{
		MinPoints:       c.MinPoints,
		MinLengthMeters: c.MinLengthMeters,
		MinAreaSqMeters: c.MinAreaSqMeters,
		ClosureWindow:   c.ClosureWindow,
	}
}

// ProximityBands returns the collision advisory bands.
func (c *Config) ProximityBands() territory.ProximityBands {
	return territory.ProximityBands{
		CautionMeters: c.ProximityCautionMeters,
		WarningMeters: c.ProximityWarningMeters,
		DangerMeters:  c.ProximityDangerMeters,
	}
}

// LogSummary returns a summary of the configuration suitable for logging.
// All secrets are masked to prevent accidental exposure.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                      strconv.Itoa(c.Port),
		"env":                       c.Env,
		"database_url":              maskDatabaseURL(c.DatabaseURL),
		"redis_url":                 maskDatabaseURL(c.RedisURL),
		"snapshot_refresh_interval": c.SnapshotRefreshInterval.String(),
		"snapshot_cache_ttl":        c.SnapshotCacheTTL.String(),
		"snapshot_region":           c.SnapshotRegion,
		"tracing_enabled":           strconv.FormatBool(c.TracingEnabled),
		"otel_exporter_type":        c.OTelExporterType,
		"max_accuracy_meters":       formatFloat(c.MaxAccuracyMeters),
		"min_movement_meters":       formatFloat(c.MinMovementMeters),
		"closure_meters":            formatFloat(c.ClosureMeters),
		"min_points":                strconv.Itoa(c.MinPoints),
		"min_length_meters":         formatFloat(c.MinLengthMeters),
		"min_area_sq_meters":        formatFloat(c.MinAreaSqMeters),
		"closure_window":            strconv.Itoa(c.ClosureWindow),
		"claim_hard_limit_kmh":      formatFloat(c.ClaimHardLimitKmh),
		"explore_hard_limit_kmh":    formatFloat(c.ExploreHardLimitKmh),
		"explore_grace_period":      c.ExploreGracePeriod.String(),
		"collision_interval":        c.CollisionInterval.String(),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// maskSecret masks a secret value, showing only the first 4 characters followed by ****
// If the secret is shorter than 8 characters, it's fully masked.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	if len(s) < 8 {
		return "****"
	}
	return s[:4] + "****"
}

// maskDatabaseURL masks the password in a connection URL.
// Works for postgres://, postgresql:// and redis:// schemes.
func maskDatabaseURL(s string) string {
	if s == "" {
		return "<not set>"
	}

	// Look for password pattern: user:password@host
	schemeEnd := strings.Index(s, "://")
	if schemeEnd == -1 {
		return maskSecret(s)
	}

	rest := s[schemeEnd+3:]
	atIndex := strings.Index(rest, "@")
	if atIndex == -1 {
		return s // No credentials in URL
	}

	colonIndex := strings.Index(rest[:atIndex], ":")
	if colonIndex == -1 {
		return s // No password (only username)
	}

	// Reconstruct URL with masked password
	scheme := s[:schemeEnd+3]
	user := rest[:colonIndex]
	hostAndPath := rest[atIndex:]

	return scheme + user + ":****" + hostAndPath
}
