// Package config holds OPERATOR-LEVEL configuration for a veil installation.
//
// Everything here is set by whoever deploys the service: data directory,
// cipher and audit signing keys, detector selection, session retention,
// rate limits and telemetry export. Values come from env vars (VEIL_*), the
// config file (veil.config.yaml) and the defaults below, merged by Viper.
//
// The cipher key decides whether stored sessions can be reversed. Rotating it
// makes every session created before the rotation undecryptable.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dativo-io/veil/internal/cipher"
	"github.com/dativo-io/veil/internal/cryptoutil"
	"github.com/dativo-io/veil/internal/detector"
	"github.com/dativo-io/veil/internal/otel"
	"github.com/dativo-io/veil/internal/session"
)

// Viper keys. Each maps to an env var with the VEIL_ prefix
// (e.g. "cipher_key" → VEIL_CIPHER_KEY) and to a YAML field
// in veil.config.yaml (e.g. cipher_key: "...").
const (
	KeyDataDir         = "data_dir"
	KeyCipherKey       = "cipher_key"
	KeyCipherAlgorithm = "cipher_algorithm"
	KeySigningKey      = "signing_key"
	KeyDetector        = "detector"
	KeyPresidioURL     = "presidio_url"
	KeyDetectorTimeout = "detector_timeout"
	KeyPatternFile     = "pattern_file"
	KeyEntities        = "entities"
	KeyLanguage        = "language"
	KeyMinScore        = "min_score"
	KeySessionTTL      = "session_ttl"
	KeySweepSchedule   = "sweep_schedule"
	KeyAuditEnabled    = "audit_enabled"
	KeyRateLimit       = "rate_limit"
	KeyAPIKeys         = "api_keys"
	KeyOTelExporter    = "otel_exporter"
	KeyOTelEndpoint    = "otel_endpoint"
	KeyOTelProtocol    = "otel_protocol"
)

// Detector backends.
const (
	DetectorLocal    = "local"
	DetectorPresidio = "presidio"
)

// Defaults that do NOT involve crypto material. Crypto keys intentionally
// have no baked-in defaults: when unset we generate a deterministic
// per-machine fallback and warn loudly.
const (
	DefaultDetector        = DetectorLocal
	DefaultPresidioURL     = "http://localhost:5002"
	DefaultOTelExporter    = otel.ExporterStdout
	DefaultOTelProtocol    = "grpc"
	DefaultAuditEnabled    = true
	DefaultSessionTTL      = time.Duration(0)
	DefaultDetectorTimeout = detector.DefaultTimeout
)

// Config holds resolved operator-level configuration for a veil process.
type Config struct {
	DataDir         string        // Base directory for all state (~/.veil)
	CipherKey       string        // Token encryption key (16/24/32 raw bytes or hex)
	CipherAlgorithm string        // aes-gcm | secretbox
	SigningKey      string        // HMAC-SHA256 key for audit signing (≥32 bytes)
	Detector        string        // local | presidio
	PresidioURL     string        // Presidio analyzer base URL
	DetectorTimeout time.Duration // Per-call analyzer deadline
	PatternFile     string        // Extra recognizer YAML layered over the defaults
	Entities        []string      // Entity types requested from the detector
	Language        string        // Detection language
	MinScore        float64       // Local detector confidence threshold
	SessionTTL      time.Duration // 0 keeps sessions for the process lifetime
	SweepSchedule   string        // Cron schedule for the session sweeper
	AuditEnabled    bool          // Record signed audit events in SQLite
	RateLimit       float64       // Requests/second per client; 0 disables
	APIKeys         map[string]string
	OTelExporter    string
	OTelEndpoint    string
	OTelProtocol    string

	usingDefaultCipherKey  bool
	usingDefaultSigningKey bool
}

// UsingDefaultKeys returns true if either crypto key fell back to
// a generated default. Commands should warn when this is the case.
func (c *Config) UsingDefaultKeys() bool {
	return c.usingDefaultCipherKey || c.usingDefaultSigningKey
}

// UsingDefaultCipherKey returns true if the cipher key was derived (not set explicitly).
func (c *Config) UsingDefaultCipherKey() bool {
	return c.usingDefaultCipherKey
}

// UsingDefaultSigningKey returns true if the audit signing key was derived (not set explicitly).
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when crypto keys are not explicitly set.
// Suppressed when VEIL_QUICKSTART=1 or true (e.g. first-time exploration, demos).
func (c *Config) WarnIfDefaultKeys() {
	if isQuickstart() || !c.UsingDefaultKeys() {
		return
	}
	if c.usingDefaultCipherKey {
		log.Warn().Msg("Using generated default VEIL_CIPHER_KEY; set via env var or config file for production")
	}
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default VEIL_SIGNING_KEY; set via env var or config file for production")
	}
}

func isQuickstart() bool {
	v := os.Getenv("VEIL_QUICKSTART")
	return v == "1" || v == "true" || v == "TRUE"
}

func init() {
	setDefaults()
}

func setDefaults() {
	viper.SetEnvPrefix("VEIL")
	viper.AutomaticEnv()
	viper.SetDefault(KeyCipherAlgorithm, cipher.AlgorithmAESGCM)
	viper.SetDefault(KeyDetector, DefaultDetector)
	viper.SetDefault(KeyPresidioURL, DefaultPresidioURL)
	viper.SetDefault(KeyDetectorTimeout, DefaultDetectorTimeout)
	viper.SetDefault(KeyEntities, detector.DefaultEntities)
	viper.SetDefault(KeyLanguage, detector.DefaultLanguage)
	viper.SetDefault(KeyMinScore, detector.DefaultMinScore)
	viper.SetDefault(KeySessionTTL, DefaultSessionTTL)
	viper.SetDefault(KeySweepSchedule, session.DefaultSweepSchedule)
	viper.SetDefault(KeyAuditEnabled, DefaultAuditEnabled)
	viper.SetDefault(KeyOTelExporter, DefaultOTelExporter)
	viper.SetDefault(KeyOTelProtocol, DefaultOTelProtocol)
}

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:         resolveDataDir(),
		CipherKey:       viper.GetString(KeyCipherKey),
		CipherAlgorithm: viper.GetString(KeyCipherAlgorithm),
		SigningKey:      viper.GetString(KeySigningKey),
		Detector:        viper.GetString(KeyDetector),
		PresidioURL:     viper.GetString(KeyPresidioURL),
		DetectorTimeout: viper.GetDuration(KeyDetectorTimeout),
		PatternFile:     viper.GetString(KeyPatternFile),
		Entities:        splitList(viper.GetStringSlice(KeyEntities)),
		Language:        viper.GetString(KeyLanguage),
		MinScore:        viper.GetFloat64(KeyMinScore),
		SessionTTL:      viper.GetDuration(KeySessionTTL),
		SweepSchedule:   viper.GetString(KeySweepSchedule),
		AuditEnabled:    viper.GetBool(KeyAuditEnabled),
		RateLimit:       viper.GetFloat64(KeyRateLimit),
		APIKeys:         viper.GetStringMapString(KeyAPIKeys),
		OTelExporter:    viper.GetString(KeyOTelExporter),
		OTelEndpoint:    viper.GetString(KeyOTelEndpoint),
		OTelProtocol:    viper.GetString(KeyOTelProtocol),
	}

	if cfg.CipherKey == "" {
		cfg.CipherKey = deriveDefaultKey(cfg.DataDir, "token-encryption")
		cfg.usingDefaultCipherKey = true
	}
	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// splitList accepts both YAML lists and comma-separated env values
// (VEIL_ENTITIES=PERSON,EMAIL_ADDRESS).
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veil"
	}
	return filepath.Join(home, ".veil")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key, hex encoded,
// from the data directory path and a salt. This is NOT cryptographically
// strong: it exists solely so `veil serve` works out of the box while
// sessions survive a restart with the same data directory.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("veil:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if _, err := cipher.New(c.CipherAlgorithm, c.CipherKey); err != nil {
		return fmt.Errorf("cipher_key: %w; set VEIL_CIPHER_KEY", err)
	}
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	switch c.Detector {
	case DetectorLocal:
	case DetectorPresidio:
		if c.PresidioURL == "" {
			return fmt.Errorf("presidio_url is required when detector is %q", DetectorPresidio)
		}
	default:
		return fmt.Errorf("detector must be %q or %q (got %q)", DetectorLocal, DetectorPresidio, c.Detector)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("min_score must be between 0 and 1 (got %v)", c.MinScore)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session_ttl must not be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	switch c.OTelExporter {
	case otel.ExporterStdout, otel.ExporterOTLP:
	default:
		return fmt.Errorf("otel_exporter must be %q or %q (got %q)", otel.ExporterStdout, otel.ExporterOTLP, c.OTelExporter)
	}
	return nil
}

// validateSigningKey accepts either ≥32 raw bytes or ≥64 hex characters (decoded length ≥32 for HMAC-SHA256).
func validateSigningKey(key string) error {
	n := len(key)
	if _, ok := cryptoutil.DecodeHexKey(key, 32); ok {
		return nil
	}
	if n >= 32 {
		return nil
	}
	return fmt.Errorf("signing_key must be at least 32 bytes or 64+ hex characters (got %d); set VEIL_SIGNING_KEY", n)
}
