package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// RequestTimeout bounds every handler, processor calls included.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

type AdminConfig struct {
	Addr      string        `yaml:"addr"`
	APIKey    string        `yaml:"api_key"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MercadoPagoConfig struct {
	BaseURL         string        `yaml:"base_url"`
	AccessToken     string        `yaml:"access_token"`
	PayerEmail      string        `yaml:"payer_email"`
	NotificationURL string        `yaml:"notification_url"`
	WebhookSecret   string        `yaml:"webhook_secret"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RatePerSecond   float64       `yaml:"rate_per_second"`
}

type SandboxConfig struct {
	PixKey       string        `yaml:"pix_key"`
	MerchantName string        `yaml:"merchant_name"`
	MerchantCity string        `yaml:"merchant_city"`
	ApproveAfter time.Duration `yaml:"approve_after"` // 0 keeps charges pending forever
}

type PaymentConfig struct {
	Processor   string            `yaml:"processor"` // mercadopago | sandbox
	Window      time.Duration     `yaml:"window"`
	LockTTL     time.Duration     `yaml:"lock_ttl"`
	MercadoPago MercadoPagoConfig `yaml:"mercadopago"`
	Sandbox     SandboxConfig     `yaml:"sandbox"`
}

type PremiumConfig struct {
	DefaultPrice        string `yaml:"default_price"`
	DefaultDurationDays int    `yaml:"default_duration_days"`
	Description         string `yaml:"description"`
}

type RateLimitConfig struct {
	CreatePerWindow int           `yaml:"create_per_window"`
	Window          time.Duration `yaml:"window"`
}

type SchedulerConfig struct {
	ReconcileCron        string        `yaml:"reconcile_cron"`
	StaleAfter           time.Duration `yaml:"stale_after"`
	Workers              int           `yaml:"workers"`
	BatchSize            int           `yaml:"batch_size"`
	EntitlementRetention time.Duration `yaml:"entitlement_retention"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	HTTP      HTTPConfig      `yaml:"http"`
	Admin     AdminConfig     `yaml:"admin"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Premium   PremiumConfig   `yaml:"premium"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies environment overrides and
// defaults, then validates. A missing file is allowed when the environment
// supplies everything required.
func LoadConfig(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	cfg.Runtime.Dev = dev

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	set := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.URL, "DATABASE_URL")
	set(&cfg.Redis.URL, "REDIS_URL")
	set(&cfg.Payment.MercadoPago.AccessToken, "MP_ACCESS_TOKEN")
	set(&cfg.Payment.MercadoPago.WebhookSecret, "MP_WEBHOOK_SECRET")
	set(&cfg.Admin.APIKey, "ADMIN_API_KEY")
	set(&cfg.Admin.JWTSecret, "ADMIN_JWT_SECRET")
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.HTTP.ReadTimeout <= 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout <= 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 20 * time.Second
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = ":8081"
	}
	if cfg.Admin.TokenTTL <= 0 {
		cfg.Admin.TokenTTL = 12 * time.Hour
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)

	if cfg.Payment.Processor == "" {
		cfg.Payment.Processor = "mercadopago"
	}
	if cfg.Payment.Window <= 0 {
		cfg.Payment.Window = 30 * time.Minute
	}
	if cfg.Payment.LockTTL <= 0 {
		cfg.Payment.LockTTL = 10 * time.Second
	}
	mp := &cfg.Payment.MercadoPago
	if mp.BaseURL == "" {
		mp.BaseURL = "https://api.mercadopago.com"
	}
	if mp.Timeout <= 0 {
		mp.Timeout = 10 * time.Second
	}
	if mp.MaxRetries <= 0 {
		mp.MaxRetries = 3
	}
	if mp.RatePerSecond <= 0 {
		mp.RatePerSecond = 10
	}
	if mp.PayerEmail == "" {
		mp.PayerEmail = "pagador@guiaparacuru.com.br"
	}
	sb := &cfg.Payment.Sandbox
	if sb.PixKey == "" {
		sb.PixKey = "guia@paracuru.ce.gov.br"
	}
	if sb.MerchantName == "" {
		sb.MerchantName = "GUIA PARACURU"
	}
	if sb.MerchantCity == "" {
		sb.MerchantCity = "PARACURU"
	}

	if cfg.Premium.DefaultPrice == "" {
		cfg.Premium.DefaultPrice = "1.99"
	}
	if cfg.Premium.DefaultDurationDays <= 0 {
		cfg.Premium.DefaultDurationDays = 30
	}
	if cfg.Premium.Description == "" {
		cfg.Premium.Description = "Guia Paracuru Premium"
	}

	if cfg.RateLimit.CreatePerWindow <= 0 {
		cfg.RateLimit.CreatePerWindow = 5
	}
	if cfg.RateLimit.Window <= 0 {
		cfg.RateLimit.Window = time.Minute
	}

	if cfg.Scheduler.ReconcileCron == "" {
		cfg.Scheduler.ReconcileCron = "*/2 * * * *"
	}
	if cfg.Scheduler.StaleAfter <= 0 {
		cfg.Scheduler.StaleAfter = 2 * time.Minute
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 4
	}
	if cfg.Scheduler.BatchSize <= 0 {
		cfg.Scheduler.BatchSize = 100
	}
}

// Validate performs minimal validation of the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	switch c.Payment.Processor {
	case "mercadopago":
		if c.Payment.MercadoPago.AccessToken == "" {
			return errors.New("payment.mercadopago.access_token is required")
		}
	case "sandbox":
	default:
		return fmt.Errorf("unknown payment.processor %q", c.Payment.Processor)
	}
	if _, err := c.Premium.Price(); err != nil {
		return fmt.Errorf("premium.default_price: %w", err)
	}
	if c.Premium.DefaultDurationDays > 366 {
		return errors.New("premium.default_duration_days must be at most 366")
	}
	return nil
}

// Price parses DefaultPrice.
func (p PremiumConfig) Price() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(p.DefaultPrice)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, errors.New("must be positive")
	}
	return d, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
