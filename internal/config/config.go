package config

import (
	"errors"
	"fmt"
	"os"

	"salonbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig         `yaml:"app"`
	Hours      HoursConfig       `yaml:"hours"`
	Booking    BookingConfig     `yaml:"booking"`
	Holds      HoldsConfig       `yaml:"holds"`
	Database   DatabaseConfig    `yaml:"database"`
	Redis      RedisConfig       `yaml:"redis"`
	Monitoring MonitoringConfig  `yaml:"monitoring"`
	Logging    LoggingConfig     `yaml:"logging"`
	API        APIConfig         `yaml:"api"`
	Notify     NotifyConfig      `yaml:"notify"`
	OCR        OCRConfig         `yaml:"ocr"`
	Exports    ExportConfig      `yaml:"exports"`
	Providers  []models.Provider `yaml:"providers"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type HoursConfig struct {
	OpenHour       int `yaml:"open_hour"`
	CloseHour      int `yaml:"close_hour"`
	LunchStartHour int `yaml:"lunch_start_hour"`
	LunchEndHour   int `yaml:"lunch_end_hour"`
	SlotMinutes    int `yaml:"slot_minutes"`
}

type BookingConfig struct {
	DepositPerHour float64 `yaml:"deposit_per_hour"`
	AmountSalt     string  `yaml:"amount_salt"`
	MaxHours       int     `yaml:"max_hours"`
}

type HoldsConfig struct {
	TTLSeconds           int `yaml:"ttl_seconds"`
	ReviewTTLSeconds     int `yaml:"review_ttl_seconds"`
	SkewMs               int `yaml:"skew_ms"`
	RenewIntervalSeconds int `yaml:"renew_interval_seconds"`
	CASMaxRetries        int `yaml:"cas_max_retries"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type NotifyConfig struct {
	Enabled       bool     `yaml:"enabled"`
	TelegramToken string   `yaml:"telegram_token"`
	OperatorChats []string `yaml:"operator_chats"`
}

type OCRConfig struct {
	Command   string `yaml:"command"`
	Languages string `yaml:"languages"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен, но если есть — подхватываем
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Hours.OpenHour >= c.Hours.CloseHour {
		return fmt.Errorf("open hour %d must precede close hour %d", c.Hours.OpenHour, c.Hours.CloseHour)
	}

	if c.Notify.Enabled && c.Notify.TelegramToken == "" {
		return errors.New("notify.telegram_token is required when notifications are enabled")
	}

	return ValidateProviders(c.Providers)
}

func ValidateProviders(providers []models.Provider) error {
	if len(providers) == 0 {
		return errors.New("at least one provider is required")
	}
	seen := make(map[string]bool)
	for _, p := range providers {
		if p.ID == "" {
			return fmt.Errorf("provider %q has empty id", p.Name)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id found: %s", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Hours.OpenHour == 0 {
		c.Hours.OpenHour = 10
	}
	if c.Hours.CloseHour == 0 {
		c.Hours.CloseHour = 20
	}
	if c.Hours.LunchStartHour == 0 {
		c.Hours.LunchStartHour = 12
	}
	if c.Hours.LunchEndHour == 0 {
		c.Hours.LunchEndHour = 13
	}
	if c.Hours.SlotMinutes == 0 {
		c.Hours.SlotMinutes = 60
	}

	if c.Booking.DepositPerHour == 0 {
		c.Booking.DepositPerHour = models.DefaultDepositPerHour
	}
	if c.Booking.MaxHours == 0 {
		c.Booking.MaxHours = 4
	}

	if c.Holds.TTLSeconds == 0 {
		c.Holds.TTLSeconds = models.DefaultHoldTTLSeconds
	}
	if c.Holds.ReviewTTLSeconds == 0 {
		c.Holds.ReviewTTLSeconds = models.ReviewHoldTTLSeconds
	}
	if c.Holds.SkewMs == 0 {
		c.Holds.SkewMs = models.HoldSkewMs
	}
	if c.Holds.RenewIntervalSeconds == 0 {
		c.Holds.RenewIntervalSeconds = models.HoldRenewIntervalSeconds
	}
	if c.Holds.CASMaxRetries == 0 {
		c.Holds.CASMaxRetries = 16
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.OCR.Command == "" {
		c.OCR.Command = "tesseract"
	}
	if c.OCR.Languages == "" {
		c.OCR.Languages = "eng+tha"
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
}
