package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the process needs at startup. It is built once in
// main and handed to the components that need it.
type Config struct {
	AppPort     string
	Environment string

	DatabaseDriver string
	DatabaseDSN    string

	JWTSecret   string
	RabbitMQURL string

	PublicBaseURL string
	SeedCatalog   bool

	Stripe Stripe
}

// Stripe holds the payment processor settings.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	APIURL        string // empty means the real Stripe API
	Timeout       time.Duration
	Currency      string
}

// SuccessURL is where the processor sends the browser after a paid checkout.
// Stripe substitutes {CHECKOUT_SESSION_ID} itself.
func (c *Config) SuccessURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/payment/success?session_id={CHECKOUT_SESSION_ID}"
}

// CancelURL is where the processor sends the browser when checkout is abandoned.
func (c *Config) CancelURL(orderID string) string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/payment/cancel?order_id=" + orderID
}

// Load reads configuration from the environment, and from the file named by
// CONFIG_FILE when it is set.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", file, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "file:storefront.db?cache=shared")
	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8080")
	v.SetDefault("SEED_CATALOG", false)
	v.SetDefault("STRIPE_API_URL", "")
	v.SetDefault("STRIPE_TIMEOUT", "10s")
	v.SetDefault("CHECKOUT_CURRENCY", "usd")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		AppPort:        v.GetString("APP_PORT"),
		Environment:    v.GetString("APP_ENV"),
		DatabaseDriver: v.GetString("DATABASE_DRIVER"),
		DatabaseDSN:    v.GetString("DATABASE_DSN"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		RabbitMQURL:    v.GetString("RABBITMQ_URL"),
		PublicBaseURL:  v.GetString("PUBLIC_BASE_URL"),
		SeedCatalog:    v.GetBool("SEED_CATALOG"),
		Stripe: Stripe{
			SecretKey:     v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
			APIURL:        v.GetString("STRIPE_API_URL"),
			Timeout:       v.GetDuration("STRIPE_TIMEOUT"),
			Currency:      strings.ToLower(v.GetString("CHECKOUT_CURRENCY")),
		},
	}
}

// Validate reports the first missing or malformed setting.
func (c *Config) Validate() error {
	switch {
	case c.Stripe.SecretKey == "":
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	case c.Stripe.WebhookSecret == "":
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required")
	case c.Stripe.Timeout <= 0:
		return fmt.Errorf("STRIPE_TIMEOUT must be positive, got %s", c.Stripe.Timeout)
	case c.Stripe.Currency == "":
		return fmt.Errorf("CHECKOUT_CURRENCY is required")
	case c.DatabaseDriver != "postgres" && c.DatabaseDriver != "sqlite":
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	return nil
}
