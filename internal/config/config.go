package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application. Only PORT is
// strictly needed; every backing service is optional.
type Config struct {
	Port         string   `mapstructure:"port" validate:"required,numeric"`
	DatabaseURL  string   `mapstructure:"database_url" validate:"omitempty,url"`
	RedisURL     string   `mapstructure:"redis_url" validate:"omitempty,url"`
	NATSURL      string   `mapstructure:"nats_url" validate:"omitempty,url"`
	NATSSubjects []string `mapstructure:"nats_subjects"`

	NumWorkers      int           `mapstructure:"num_workers" validate:"min=1"`
	QueueSize       int           `mapstructure:"queue_size" validate:"min=0"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout" validate:"gt=0"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout" validate:"gtfield=DeliveryTimeout"`
	OrderTTL        time.Duration `mapstructure:"order_ttl" validate:"gt=0"`

	SeedFile      string `mapstructure:"seed_file"`
	MigrationsDir string `mapstructure:"migrations_dir"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`

	LogLevel     string `mapstructure:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat    string `mapstructure:"log_format" validate:"oneof=json text"`
	OTELEndpoint string `mapstructure:"otel_endpoint"`
	ServiceName  string `mapstructure:"service_name" validate:"required"`
}

var defaults = map[string]any{
	"port":          "8080",
	"database_url":  "",
	"redis_url":     "",
	"nats_url":      "",
	"nats_subjects": []string{"checkout.>", "payment.>"},

	"num_workers":      8,
	"queue_size":       256,
	"delivery_timeout": 5 * time.Second,
	"dispatch_timeout": 30 * time.Second,
	"order_ttl":        24 * time.Hour,

	"seed_file":      "",
	"migrations_dir": "",
	"auto_migrate":   true,

	"log_level":     "info",
	"log_format":    "json",
	"otel_endpoint": "",
	"service_name":  "checkout-webhooks",
}

// Load reads configuration from environment variables. Each key is the
// upper-cased field name (PORT, DATABASE_URL, ...). When CONFIG_FILE names
// a YAML file its values sit between the defaults and the environment.
func Load() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	if err := v.BindEnv("config_file"); err != nil {
		return nil, fmt.Errorf("binding CONFIG_FILE: %w", err)
	}
	if path := v.GetString("config_file"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.NATSSubjects = compact(cfg.NATSSubjects)
	if len(cfg.NATSSubjects) == 0 {
		cfg.NATSSubjects = defaults["nats_subjects"].([]string)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and reports the first violation by
// its environment variable name.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid %s: failed %q constraint", envNames[fe.Field()], fe.Tag())
	}
	return fmt.Errorf("validating config: %w", err)
}

var envNames = map[string]string{
	"Port":            "PORT",
	"DatabaseURL":     "DATABASE_URL",
	"RedisURL":        "REDIS_URL",
	"NATSURL":         "NATS_URL",
	"NumWorkers":      "NUM_WORKERS",
	"QueueSize":       "QUEUE_SIZE",
	"DeliveryTimeout": "DELIVERY_TIMEOUT",
	"DispatchTimeout": "DISPATCH_TIMEOUT",
	"OrderTTL":        "ORDER_TTL",
	"LogLevel":        "LOG_LEVEL",
	"LogFormat":       "LOG_FORMAT",
	"ServiceName":     "SERVICE_NAME",
}

// compact trims every entry and drops blanks.
func compact(list []string) []string {
	var out []string
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
