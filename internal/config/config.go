package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no config path is provided.
const DefaultConfigPath = "config.yaml"

// Config is the root file configuration for the server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	JWT      JWTConfig      `yaml:"jwt"`
	Redis    RedisConfig    `yaml:"redis"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Creem    CreemConfig    `yaml:"creem"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Credits  CreditsConfig  `yaml:"credits"`
	Plans    []Plan         `yaml:"plans"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Listen  string `yaml:"listen"`   // Listen address, e.g. ":8080".
	BaseURL string `yaml:"base_url"` // Public base URL used for checkout redirects.
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // PostgreSQL or SQLite DSN.
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`       // logrus level name.
	File       string `yaml:"file"`        // Log file path; stdout only when empty.
	MaxSizeMB  int    `yaml:"max_size_mb"` // Rotation size threshold.
	MaxBackups int    `yaml:"max_backups"` // Rotated files to keep.
	MaxAgeDays int    `yaml:"max_age_days"`
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret           string `yaml:"secret"`
	ExpiryHours      int    `yaml:"expiry_hours"`
	AdminExpiryHours int    `yaml:"admin_expiry_hours"`
}

// Expiry returns the user token lifetime.
func (c JWTConfig) Expiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

// AdminExpiry returns the admin token lifetime.
func (c JWTConfig) AdminExpiry() time.Duration {
	return time.Duration(c.AdminExpiryHours) * time.Hour
}

// RedisConfig holds the rate limiter store settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"` // Empty disables Redis; an in-memory limiter is used.
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// StripeConfig holds Stripe provider credentials.
type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// CreemConfig holds Creem provider credentials.
type CreemConfig struct {
	APIKey        string `yaml:"api_key"`
	WebhookSecret string `yaml:"webhook_secret"`
	APIBase       string `yaml:"api_base"` // Defaults to the production API.
}

// JobsConfig holds settings for scheduled/triggered jobs.
type JobsConfig struct {
	// DistributeUser and DistributePassword protect GET /api/distribute-credits.
	DistributeUser     string `yaml:"distribute_user"`
	DistributePassword string `yaml:"distribute_password"`
}

// GrantConfig describes a configured credit grant.
type GrantConfig struct {
	Enabled    bool  `yaml:"enabled"`
	Amount     int64 `yaml:"amount"`
	ExpireDays int   `yaml:"expire_days"` // 0 means the grant never expires.
}

// CreditsConfig holds global credit system settings.
type CreditsConfig struct {
	Enabled      bool        `yaml:"enabled"`
	RegisterGift GrantConfig `yaml:"register_gift"`
	MonthlyFree  GrantConfig `yaml:"monthly_free"`
}

// Price is a purchasable price under a plan.
type Price struct {
	ID       string `yaml:"id"`       // Provider price identifier.
	Interval string `yaml:"interval"` // "month", "year" or "one_time".
	Amount   int64  `yaml:"amount"`   // Price in the smallest currency unit.
	Currency string `yaml:"currency"`
	Disabled bool   `yaml:"disabled"`

	// Credits granted on each renewal (subscriptions) or each monthly
	// cycle (lifetime plans).
	CreditsEnabled    bool  `yaml:"credits_enabled"`
	CreditsAmount     int64 `yaml:"credits_amount"`
	CreditsExpireDays int   `yaml:"credits_expire_days"`
}

// Plan is a sellable plan in the catalog.
type Plan struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	IsFree     bool    `yaml:"is_free"`
	IsLifetime bool    `yaml:"is_lifetime"`
	Disabled   bool    `yaml:"disabled"`
	Prices     []Price `yaml:"prices"`
}

// FindPrice returns the price with the given ID under this plan, if any.
func (p *Plan) FindPrice(priceID string) *Price {
	if p == nil {
		return nil
	}
	for i := range p.Prices {
		if p.Prices[i].ID == priceID {
			return &p.Prices[i]
		}
	}
	return nil
}

// ResolveConfigPath returns the effective config path.
func ResolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return DefaultConfigPath
	}
	return filepath.Clean(trimmed)
}

// Load reads and parses the YAML config file.
func Load(path string) (*Config, error) {
	data, errRead := os.ReadFile(ResolveConfigPath(path))
	if errRead != nil {
		return nil, fmt.Errorf("config: read: %w", errRead)
	}
	var cfg Config
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return nil, fmt.Errorf("config: parse: %w", errUnmarshal)
	}
	cfg.applyDefaults()
	if errValidate := cfg.validate(); errValidate != nil {
		return nil, errValidate
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = ":8080"
	}
	if c.JWT.ExpiryHours <= 0 {
		c.JWT.ExpiryHours = 24
	}
	if c.JWT.AdminExpiryHours <= 0 {
		c.JWT.AdminExpiryHours = 8
	}
	if strings.TrimSpace(c.Creem.APIBase) == "" {
		c.Creem.APIBase = "https://api.creem.io"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database.dsn is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	seen := map[string]struct{}{}
	for i := range c.Plans {
		plan := &c.Plans[i]
		if strings.TrimSpace(plan.ID) == "" {
			return fmt.Errorf("config: plans[%d].id is required", i)
		}
		if _, dup := seen[plan.ID]; dup {
			return fmt.Errorf("config: duplicate plan id %q", plan.ID)
		}
		seen[plan.ID] = struct{}{}
	}
	return nil
}
