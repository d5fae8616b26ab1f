package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for treasuryd.
type Config struct {
	ListenAddress string             `yaml:"listen"`
	DataDir       string             `yaml:"data_dir"`
	LogFile       string             `yaml:"log_file"`
	TickInterval  Duration           `yaml:"tick_interval"`
	Period        Duration           `yaml:"period"`
	StrictRoles   *bool              `yaml:"strict_roles"`
	Chain         ChainConfig        `yaml:"chain"`
	Membership    MembershipConfig   `yaml:"membership"`
	Notifications NotificationConfig `yaml:"notifications"`
	Admin         AdminConfig        `yaml:"admin"`
}

// ChainConfig configures the EVM client used to settle batches.
type ChainConfig struct {
	Endpoint       string   `yaml:"endpoint"`
	ChainID        uint64   `yaml:"chain_id"`
	SignerKey      string   `yaml:"signer_key"`
	SignerKeyFile  string   `yaml:"signer_key_file"`
	SignerKeyEnv   string   `yaml:"signer_key_env"`
	Confirmations  uint64   `yaml:"confirmations"`
	ConfirmPoll    Duration `yaml:"confirm_poll"`
	ConfirmTimeout Duration `yaml:"confirm_timeout"`
}

// MembershipConfig points at the directory service.
type MembershipConfig struct {
	Endpoint string `yaml:"endpoint"`
}

// NotificationConfig configures the outcome webhook. An empty endpoint
// disables notifications.
type NotificationConfig struct {
	Endpoint      string  `yaml:"endpoint"`
	RatePerMinute float64 `yaml:"rate_per_minute"`
}

// AdminConfig captures security settings for the admin API.
type AdminConfig struct {
	BearerToken       string  `yaml:"bearer_token"`
	BearerTokenFile   string  `yaml:"bearer_token_file"`
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Chain.normalise(); err != nil {
		return cfg, fmt.Errorf("chain signer: %w", err)
	}
	if err := cfg.Admin.normalise(); err != nil {
		return cfg, fmt.Errorf("admin security: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Strict reports the strict_roles setting, defaulting to strict filtering.
func (c Config) Strict() bool {
	if c.StrictRoles == nil {
		return true
	}
	return *c.StrictRoles
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "treasuryd-data"
	}
	if cfg.TickInterval.Duration == 0 {
		cfg.TickInterval.Duration = time.Hour
	}
	if cfg.Period.Duration == 0 {
		cfg.Period.Duration = 30 * 24 * time.Hour
	}
	if cfg.Chain.Confirmations == 0 {
		cfg.Chain.Confirmations = 3
	}
	if cfg.Chain.ConfirmPoll.Duration == 0 {
		cfg.Chain.ConfirmPoll.Duration = 3 * time.Second
	}
	if cfg.Chain.ConfirmTimeout.Duration == 0 {
		cfg.Chain.ConfirmTimeout.Duration = 5 * time.Minute
	}
	if cfg.Notifications.RatePerMinute <= 0 {
		cfg.Notifications.RatePerMinute = 30
	}
	if cfg.Admin.RequestsPerMinute <= 0 {
		cfg.Admin.RequestsPerMinute = 120
	}
}

func validateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Chain.Endpoint) == "" {
		return fmt.Errorf("chain endpoint must be configured")
	}
	if cfg.Chain.ChainID == 0 {
		return fmt.Errorf("chain chain_id must be configured")
	}
	if strings.TrimSpace(cfg.Chain.SignerKey) == "" {
		return fmt.Errorf("signer key must be configured")
	}
	if strings.TrimSpace(cfg.Membership.Endpoint) == "" {
		return fmt.Errorf("membership endpoint must be configured")
	}
	if cfg.Admin.BearerToken == "" {
		return fmt.Errorf("admin bearer_token must be configured")
	}
	return nil
}

func (c *ChainConfig) normalise() error {
	if c == nil {
		return fmt.Errorf("chain configuration missing")
	}
	c.SignerKey = strings.TrimSpace(c.SignerKey)
	c.SignerKeyEnv = strings.TrimSpace(c.SignerKeyEnv)
	c.SignerKeyFile = strings.TrimSpace(c.SignerKeyFile)
	if c.SignerKey != "" {
		return nil
	}
	switch {
	case c.SignerKeyEnv != "":
		value := strings.TrimSpace(os.Getenv(c.SignerKeyEnv))
		if value == "" {
			return fmt.Errorf("signer_key_env %s is empty", c.SignerKeyEnv)
		}
		c.SignerKey = value
	case c.SignerKeyFile != "":
		contents, err := os.ReadFile(c.SignerKeyFile)
		if err != nil {
			return fmt.Errorf("read signer_key_file: %w", err)
		}
		c.SignerKey = strings.TrimSpace(string(contents))
	default:
		return fmt.Errorf("signer_key is required")
	}
	return nil
}

func (a *AdminConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("admin configuration missing")
	}
	token := strings.TrimSpace(a.BearerToken)
	if path := strings.TrimSpace(a.BearerTokenFile); path != "" {
		contents, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read bearer_token_file: %w", err)
		}
		token = strings.TrimSpace(string(contents))
	}
	a.BearerToken = token
	return nil
}
