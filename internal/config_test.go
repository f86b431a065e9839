package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/hearsay/pkg/config"
)

func validConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.Store.URL = "http://localhost:8080"
	cfg.Store.Token = "secret"
	return cfg
}

func TestDefaultConfigNeedsStore(t *testing.T) {
	cfg := NewDefaultConfig()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("default config without store should fail")
	}
	if !strings.HasPrefix(err.Error(), "store:") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestStoreConfig(t *testing.T) {
	cases := []struct {
		name  string
		cfg   StoreConfig
		valid bool
	}{
		{"complete", StoreConfig{URL: "https://rumors.example.com", Token: "t"}, true},
		{"missing token", StoreConfig{URL: "https://rumors.example.com"}, false},
		{"missing url", StoreConfig{Token: "t"}, false},
		{"bad url", StoreConfig{URL: "not a url", Token: "t"}, false},
		{"moderator token", StoreConfig{URL: "https://rumors.example.com", Token: "t", ModeratorToken: "m"}, true},
		{"moderator token reuses token", StoreConfig{URL: "https://rumors.example.com", Token: "t", ModeratorToken: "t"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.valid && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPowDifficultyBounded(t *testing.T) {
	cfg := validConfig()
	cfg.Pow.Difficulty = MaxConfiguredDifficulty
	if err := cfg.Validate(); err != nil {
		t.Fatalf("max difficulty should pass: %v", err)
	}
	cfg.Pow.Difficulty = MaxConfiguredDifficulty + 1
	if err := cfg.Validate(); err == nil {
		t.Error("difficulty above max should fail")
	}
	cfg.Pow.Difficulty = 0
	if err := cfg.Validate(); err != nil {
		t.Errorf("difficulty 0 should pass: %v", err)
	}
}

func TestReputationPolicyValidated(t *testing.T) {
	cfg := validConfig()
	cfg.Reputation.Min = 2
	if err := cfg.Validate(); err == nil || !strings.HasPrefix(err.Error(), "reputation:") {
		t.Errorf("min above 1 should fail, got %v", err)
	}
}

func TestRateLimitValidated(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.RPS = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero rps should fail")
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("HEARSAY_TOKEN", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `app:
  log_level: debug
  http:
    port: 9090
store:
  url: http://127.0.0.1:9090
  token: ${HEARSAY_TOKEN}
pow:
  difficulty: 4
trust:
  cache_ttl: 5s
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Token != "from-env" {
		t.Errorf("token = %q", cfg.Store.Token)
	}
	if cfg.Pow.Difficulty != 4 || cfg.App.HTTP.Port != 9090 {
		t.Errorf("pow = %d port = %d", cfg.Pow.Difficulty, cfg.App.HTTP.Port)
	}
	if cfg.Trust.CacheTTL != 5*time.Second {
		t.Errorf("cache ttl = %v", cfg.Trust.CacheTTL)
	}
	if cfg.Reputation.Delta != 0.05 || cfg.Identity.Path != "./identity.json" {
		t.Errorf("defaults lost: %+v %+v", cfg.Reputation, cfg.Identity)
	}
}
