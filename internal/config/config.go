package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no path is given
const DefaultPath = "config.yaml"

// Config holds all application configuration
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Loyalty   LoyaltyConfig   `yaml:"loyalty"`
	Jobs      JobsConfig      `yaml:"jobs"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Token     string  `yaml:"token"`
	AdminIDs  []int64 `yaml:"admin_ids"`
	LogChatID int64   `yaml:"log_chat_id"` // purchase/renewal logs; falls back to admins
	Proxy     string  `yaml:"proxy"`       // socks5://host:port
	APIServer string  `yaml:"api_server"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path      string `yaml:"path"`
	BackupDir string `yaml:"backup_dir"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// WalletConfig holds wallet top-up settings
type WalletConfig struct {
	CardNumber string `yaml:"card_number"`
	CardHolder string `yaml:"card_holder"`
	MinDeposit int64  `yaml:"min_deposit"`
	MaxDeposit int64  `yaml:"max_deposit"`
}

// LoyaltyConfig holds point rewards
type LoyaltyConfig struct {
	DailyLoginPoints int   `yaml:"daily_login_points"`
	BirthdayPoints   int   `yaml:"birthday_points"`
	TomanPerPoint    int64 `yaml:"toman_per_point"` // one point per this many Toman spent
}

// JobsConfig holds cron specs for background jobs
type JobsConfig struct {
	BackupSpec       string `yaml:"backup_spec"`
	ExpirySpec       string `yaml:"expiry_spec"`
	CleanupSpec      string `yaml:"cleanup_spec"`
	ExpiryWarnDays   []int  `yaml:"expiry_warn_days"`
	StateMaxAgeHours int    `yaml:"state_max_age_hours"`
	Timezone         string `yaml:"timezone"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute"`
	Burst                int `yaml:"burst"`
}

// envOverrides are applied on top of the YAML file, so secrets can stay out of it
type envOverrides struct {
	Token     string `envconfig:"TELEGRAM_TOKEN"`
	DBPath    string `envconfig:"DB_PATH"`
	LogLevel  string `envconfig:"LOG_LEVEL"`
	LogChatID int64  `envconfig:"LOG_CHAT_ID"`
}

// Load reads configuration from path (config.yaml when empty)
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes YAML, applies VPNBOT_* environment overrides, defaults and validation
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("VPNBOT", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.applyEnv(env)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(env envOverrides) {
	if env.Token != "" {
		c.Telegram.Token = env.Token
	}
	if env.DBPath != "" {
		c.Database.Path = env.DBPath
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.LogChatID != 0 {
		c.Telegram.LogChatID = env.LogChatID
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "vpnbot.db"
	}
	if c.Database.BackupDir == "" {
		c.Database.BackupDir = "backups"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Wallet.MinDeposit <= 0 {
		c.Wallet.MinDeposit = 10000
	}
	if c.Loyalty.DailyLoginPoints <= 0 {
		c.Loyalty.DailyLoginPoints = 5
	}
	if c.Loyalty.BirthdayPoints <= 0 {
		c.Loyalty.BirthdayPoints = 100
	}
	if c.Loyalty.TomanPerPoint <= 0 {
		c.Loyalty.TomanPerPoint = 1000
	}
	if c.Jobs.BackupSpec == "" {
		c.Jobs.BackupSpec = "0 3 * * *"
	}
	if c.Jobs.ExpirySpec == "" {
		c.Jobs.ExpirySpec = "0 * * * *"
	}
	if c.Jobs.CleanupSpec == "" {
		c.Jobs.CleanupSpec = "*/30 * * * *"
	}
	if len(c.Jobs.ExpiryWarnDays) == 0 {
		c.Jobs.ExpiryWarnDays = []int{3, 1}
	}
	if c.Jobs.StateMaxAgeHours <= 0 {
		c.Jobs.StateMaxAgeHours = 24
	}
	if c.Jobs.Timezone == "" {
		c.Jobs.Timezone = "Asia/Tehran"
	}
}

// Validate checks required fields
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required")
	}

	if len(c.Telegram.AdminIDs) == 0 {
		return fmt.Errorf("telegram.admin_ids is required")
	}

	if c.Wallet.MaxDeposit > 0 && c.Wallet.MaxDeposit < c.Wallet.MinDeposit {
		return fmt.Errorf("wallet.max_deposit must be >= wallet.min_deposit")
	}

	return nil
}

// IsAdmin reports whether userID is listed in telegram.admin_ids
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// LogChats returns the chats that receive purchase and renewal logs
func (c *Config) LogChats() []int64 {
	if c.Telegram.LogChatID != 0 {
		return []int64{c.Telegram.LogChatID}
	}
	return c.Telegram.AdminIDs
}
