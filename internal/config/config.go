package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Cloudflare's always-pass test keys; real deployments override them via env.
const (
	TestSiteKey   = "1x00000000000000000000AA"
	TestSecretKey = "1x0000000000000000000000000000000AA"

	DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
)

type ServerCfg struct {
	Listen         string   `yaml:"listen"`
	ReadTimeoutMs  int      `yaml:"read_timeout_ms"`
	WriteTimeoutMs int      `yaml:"write_timeout_ms"`
	TrustedProxies []string `yaml:"trusted_proxies"` // CIDRs allowed to set X-Forwarded-For

	TrustedProxyCIDRs []*net.IPNet `yaml:"-"`
}

type AppCfg struct {
	Env string `yaml:"env"` // development | production
}

type TurnstileCfg struct {
	SiteKey   string `yaml:"site_key"`
	SecretKey string `yaml:"secret_key"`
	VerifyURL string `yaml:"verify_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type GateCfg struct {
	CookieName     string  `yaml:"cookie_name"`
	TTLSec         int     `yaml:"ttl_sec"`
	TrustMode      string  `yaml:"trust_mode"` // plain | signed
	VerifyRPSLimit float64 `yaml:"verify_rps_limit"`
	RetryAfterSec  int     `yaml:"retry_after_sec"`
}

type ThemeCfg struct {
	CookieName string `yaml:"cookie_name"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type TokenCfg struct {
	Alg        string            `yaml:"alg"`
	Keys       map[string]string `yaml:"keys"`
	CurrentKID string            `yaml:"current_kid"`
	Issuer     string            `yaml:"issuer"`
	SkewSec    int               `yaml:"skew_sec"`
}

type BreakerCfg struct {
	FailureThreshold int `yaml:"failure_threshold"`
	SuccessThreshold int `yaml:"success_threshold"`
	OpenSec          int `yaml:"open_sec"`
}

type LoggingCfg struct {
	Level     string `yaml:"level"` // info|debug
	IPHashKey string `yaml:"ip_hash_key"`
}

type Config struct {
	Server    ServerCfg    `yaml:"server"`
	App       AppCfg       `yaml:"app"`
	Turnstile TurnstileCfg `yaml:"turnstile"`
	Gate      GateCfg      `yaml:"gate"`
	Theme     ThemeCfg     `yaml:"theme"`
	Token     TokenCfg     `yaml:"token"`
	Breaker   BreakerCfg   `yaml:"breaker"`
	Logging   LoggingCfg   `yaml:"logging"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()

	for _, cidr := range cfg.Server.TrustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		cfg.Server.TrustedProxyCIDRs = append(cfg.Server.TrustedProxyCIDRs, ipNet)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TURNSTILE_SITE_KEY"); v != "" {
		c.Turnstile.SiteKey = v
	}
	if v := getenv("TURNSTILE_SECRET_KEY"); v != "" {
		c.Turnstile.SecretKey = v
	}
	if v := getenv("APP_ENV"); v != "" {
		c.App.Env = v
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		c.Server.Listen = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":3000"
	}
	if c.Server.ReadTimeoutMs == 0 {
		c.Server.ReadTimeoutMs = 5000
	}
	if c.Server.WriteTimeoutMs == 0 {
		c.Server.WriteTimeoutMs = 15000
	}
	if c.App.Env == "" {
		c.App.Env = "development"
	}
	if c.Turnstile.SiteKey == "" {
		c.Turnstile.SiteKey = TestSiteKey
	}
	if c.Turnstile.SecretKey == "" {
		c.Turnstile.SecretKey = TestSecretKey
	}
	if c.Turnstile.VerifyURL == "" {
		c.Turnstile.VerifyURL = DefaultVerifyURL
	}
	if c.Turnstile.TimeoutMs == 0 {
		c.Turnstile.TimeoutMs = 8000
	}
	if c.Gate.CookieName == "" {
		c.Gate.CookieName = "turnstile_verified"
	}
	if c.Gate.TTLSec == 0 {
		c.Gate.TTLSec = 3600
	}
	if c.Gate.TrustMode == "" {
		c.Gate.TrustMode = "plain"
	}
	if c.Gate.RetryAfterSec == 0 {
		c.Gate.RetryAfterSec = 10
	}
	if c.Theme.CookieName == "" {
		c.Theme.CookieName = "theme"
	}
	if c.Theme.MaxAgeDays == 0 {
		c.Theme.MaxAgeDays = 30
	}
	if c.Token.Alg == "" {
		c.Token.Alg = "HS256"
	}
	if c.Token.Issuer == "" {
		c.Token.Issuer = "subtranslate"
	}
	if c.Token.SkewSec == 0 {
		c.Token.SkewSec = 30
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 2
	}
	if c.Breaker.OpenSec == 0 {
		c.Breaker.OpenSec = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Production reports whether cookies must carry the Secure attribute.
func (c *Config) Production() bool {
	return strings.EqualFold(c.App.Env, "production")
}

func (c *Config) TrustTTL() time.Duration {
	return time.Duration(c.Gate.TTLSec) * time.Second
}

func (c *Config) ThemeMaxAge() time.Duration {
	return time.Duration(c.Theme.MaxAgeDays) * 24 * time.Hour
}

func (c *Config) VerifyTimeout() time.Duration {
	return time.Duration(c.Turnstile.TimeoutMs) * time.Millisecond
}

func (c *Config) Validate() error {
	if c.Turnstile.SiteKey == "" || c.Turnstile.SecretKey == "" {
		return errors.New("turnstile.site_key and turnstile.secret_key required")
	}
	if !strings.HasPrefix(c.Turnstile.VerifyURL, "https://") && !strings.HasPrefix(c.Turnstile.VerifyURL, "http://") {
		return errors.New("turnstile.verify_url must be an http(s) URL")
	}
	if c.Turnstile.TimeoutMs <= 0 || c.Turnstile.TimeoutMs > 30000 {
		return errors.New("turnstile.timeout_ms must be in (0, 30000]")
	}
	if c.Gate.TTLSec <= 0 {
		return errors.New("gate.ttl_sec must be > 0")
	}
	if c.Gate.VerifyRPSLimit < 0 {
		return errors.New("gate.verify_rps_limit must be >= 0")
	}
	switch c.Gate.TrustMode {
	case "plain":
	case "signed":
		if c.Token.CurrentKID == "" || len(c.Token.Keys) == 0 {
			return errors.New("token.keys and token.current_kid required when gate.trust_mode is 'signed'")
		}
		if _, ok := c.Token.Keys[c.Token.CurrentKID]; !ok {
			return errors.New("token.current_kid not found in token.keys")
		}
	default:
		return errors.New("gate.trust_mode must be 'plain' or 'signed'")
	}
	if c.Theme.MaxAgeDays <= 0 {
		return errors.New("theme.max_age_days must be > 0")
	}
	switch c.Logging.Level {
	case "info", "debug":
	default:
		return errors.New("logging.level must be 'info' or 'debug'")
	}
	return nil
}
