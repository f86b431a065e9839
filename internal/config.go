package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/hearsay/internal/pow"
	"github.com/starford/hearsay/internal/reputation"
)

// MaxConfiguredDifficulty caps pow.difficulty; each step multiplies the
// expected mining time by 16.
const MaxConfiguredDifficulty = 8

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Store      StoreConfig       `yaml:"store"`
	SQLite     SQLiteConfig      `yaml:"sqlite"`
	Identity   IdentityConfig    `yaml:"identity"`
	Pow        PowConfig         `yaml:"pow"`
	Reputation reputation.Policy `yaml:"reputation"`
	RateLimit  RateLimitConfig   `yaml:"rate_limit"`
	Trust      TrustConfig       `yaml:"trust"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []struct {
		section string
		v       interface{ Validate() error }
	}{
		{"app", &c.App},
		{"store", &c.Store},
		{"sqlite", &c.SQLite},
		{"identity", &c.Identity},
		{"pow", &c.Pow},
		{"reputation", &c.Reputation},
		{"rate_limit", &c.RateLimit},
		{"trust", &c.Trust},
	}
	for _, s := range validators {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.section, err)
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig locates the shared record store. The server demands Token as
// its bearer credential and clients present it.
//
// ModeratorToken guards vote outcome judgments. It is held by the judge only;
// when empty the server refuses every judgment.
type StoreConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	ModeratorToken string `yaml:"moderator_token"`
}

// Validate validates the store configuration. URL and Token are required.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.ModeratorToken,
			validation.When(c.ModeratorToken != "",
				validation.NotIn(c.Token).Error("must differ from token"))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// IdentityConfig locates the installation identity file.
type IdentityConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the identity configuration.
func (c *IdentityConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// PowConfig holds the proof-of-work difficulty.
type PowConfig struct {
	Difficulty uint `yaml:"difficulty"`
}

// Validate validates the proof-of-work configuration.
func (c *PowConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Difficulty, validation.Max(uint(MaxConfiguredDifficulty))),
	)
}

// RateLimitConfig throttles write endpoints per client address.
//
// The address is the TCP peer unless TrustProxy is set, in which case
// X-Forwarded-For and X-Real-IP are honoured. Enable it only behind a proxy
// that overwrites those headers.
type RateLimitConfig struct {
	RPS        float64 `yaml:"rps"`
	Burst      int     `yaml:"burst"`
	TrustProxy bool    `yaml:"trust_proxy"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RPS, validation.Required, validation.Min(0.0).Exclusive()),
		validation.Field(&c.Burst, validation.Required, validation.Min(1)),
	)
}

// TrustConfig controls trust score memoization.
type TrustConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Validate validates the trust configuration.
func (c *TrustConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
// Store URL and token have no defaults.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./hearsay.db",
		},
		Identity: IdentityConfig{
			Path: "./identity.json",
		},
		Pow: PowConfig{
			Difficulty: pow.DefaultDifficulty,
		},
		Reputation: reputation.DefaultPolicy(),
		RateLimit: RateLimitConfig{
			RPS:   2,
			Burst: 5,
		},
		Trust: TrustConfig{
			CacheTTL: 30 * time.Second,
		},
	}
}
