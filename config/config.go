package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"Storefront/currency"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Name           string
	Env            string
	Port           string
	OriginProvince string
	BaseCurrency   string
	UploadDir      string
	AllowOrigins   []string
}

type DatabaseConfig struct {
	Driver       string // mysql, postgres, sqlite
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	Path         string // sqlite file
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	LogLevel     string
}

type RedisConfig struct {
	Addr     string
	Password string
	Database int
}

type JWTConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	TokenTTL       time.Duration
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type OTPConfig struct {
	Provider       string // redis, http
	CodeTTL        time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	SessionTTL     time.Duration
	BaseURL        string
	APIKey         string
}

type PaymentConfig struct {
	BaseURL     string
	StartPayURL string
	MerchantID  string
	CallbackURL string
	Timeout     time.Duration
}

type CurrencyConfig struct {
	Codes []string
	// Rates are units of the base currency per one unit of each code.
	Rates map[string]string
}

type CartConfig struct {
	RevalidationInterval time.Duration
}

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	OTP      OTPConfig
	Payment  PaymentConfig
	Currency CurrencyConfig
	Cart     CartConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "storefront")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "3000")
	v.SetDefault("app.origin_province", "tehran")
	v.SetDefault("app.base_currency", "IRR")
	v.SetDefault("app.upload_dir", "./uploads")
	v.SetDefault("app.allow_origins", []string{"*"})

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.name", "storefront")
	v.SetDefault("database.path", "storefront.db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.database", 0)

	v.SetDefault("jwt.private_key_path", "jwt/private_key.pem")
	v.SetDefault("jwt.public_key_path", "jwt/public_key.pem")
	v.SetDefault("jwt.token_ttl", 72*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("otp.provider", "redis")
	v.SetDefault("otp.code_ttl", 2*time.Minute)
	v.SetDefault("otp.resend_cooldown", 180*time.Second)
	v.SetDefault("otp.max_attempts", 5)
	v.SetDefault("otp.session_ttl", 15*time.Minute)

	v.SetDefault("payment.base_url", "https://sandbox.zarinpal.com/pg/v4/payment")
	v.SetDefault("payment.start_pay_url", "https://sandbox.zarinpal.com/pg/StartPay/")
	v.SetDefault("payment.callback_url", "http://localhost:3000/api/v1/payments/callback")
	v.SetDefault("payment.timeout", 10*time.Second)

	v.SetDefault("currency.codes", []string{"IRR", "USD", "EUR", "AED"})
	v.SetDefault("currency.rates", map[string]string{
		"IRR": "1",
		"USD": "600000",
		"EUR": "650000",
		"AED": "163000",
	})

	v.SetDefault("cart.revalidation_interval", 10*time.Minute)
}

// Load reads config.yaml from the working directory, ./config or /app and
// lets STOREFRONT_ environment variables override it. A missing file is not
// an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/app")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:           v.GetString("app.name"),
			Env:            v.GetString("app.env"),
			Port:           v.GetString("app.port"),
			OriginProvince: v.GetString("app.origin_province"),
			BaseCurrency:   currency.Normalize(v.GetString("app.base_currency")),
			UploadDir:      v.GetString("app.upload_dir"),
			AllowOrigins:   v.GetStringSlice("app.allow_origins"),
		},
		Database: DatabaseConfig{
			Driver:       strings.ToLower(v.GetString("database.driver")),
			Host:         v.GetString("database.host"),
			Port:         v.GetInt("database.port"),
			User:         v.GetString("database.user"),
			Password:     v.GetString("database.password"),
			Name:         v.GetString("database.name"),
			Path:         v.GetString("database.path"),
			SSLMode:      v.GetString("database.sslmode"),
			MaxOpenConns: v.GetInt("database.max_open_conns"),
			MaxIdleConns: v.GetInt("database.max_idle_conns"),
			LogLevel:     v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			Database: v.GetInt("redis.database"),
		},
		JWT: JWTConfig{
			PrivateKeyPath: v.GetString("jwt.private_key_path"),
			PublicKeyPath:  v.GetString("jwt.public_key_path"),
			TokenTTL:       v.GetDuration("jwt.token_ttl"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		OTP: OTPConfig{
			Provider:       strings.ToLower(v.GetString("otp.provider")),
			CodeTTL:        v.GetDuration("otp.code_ttl"),
			ResendCooldown: v.GetDuration("otp.resend_cooldown"),
			MaxAttempts:    v.GetInt("otp.max_attempts"),
			SessionTTL:     v.GetDuration("otp.session_ttl"),
			BaseURL:        v.GetString("otp.base_url"),
			APIKey:         v.GetString("otp.api_key"),
		},
		Payment: PaymentConfig{
			BaseURL:     v.GetString("payment.base_url"),
			StartPayURL: v.GetString("payment.start_pay_url"),
			MerchantID:  v.GetString("payment.merchant_id"),
			CallbackURL: v.GetString("payment.callback_url"),
			Timeout:     v.GetDuration("payment.timeout"),
		},
		Currency: CurrencyConfig{
			Codes: v.GetStringSlice("currency.codes"),
			Rates: v.GetStringMapString("currency.rates"),
		},
		Cart: CartConfig{
			RevalidationInterval: v.GetDuration("cart.revalidation_interval"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q is not one of mysql, postgres, sqlite", c.Database.Driver)
	}
	if c.Database.Driver != "sqlite" && c.Database.Port <= 0 {
		return fmt.Errorf("database.port must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.App.BaseCurrency == "" {
		return fmt.Errorf("app.base_currency is required")
	}
	switch c.OTP.Provider {
	case "redis":
	case "http":
		if c.OTP.BaseURL == "" {
			return fmt.Errorf("otp.base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("otp.provider %q is not one of redis, http", c.OTP.Provider)
	}
	if c.OTP.MaxAttempts <= 0 {
		return fmt.Errorf("otp.max_attempts must be positive")
	}
	if c.Cart.RevalidationInterval <= 0 {
		return fmt.Errorf("cart.revalidation_interval must be positive")
	}
	if _, err := c.Rates(); err != nil {
		return err
	}
	return nil
}

// Rates builds the configured exchange table. Only codes listed in
// currency.codes are kept, and the base currency must be among them.
func (c *Config) Rates() (*currency.Rates, error) {
	rates := make(map[string]decimal.Decimal, len(c.Currency.Codes))
	for _, code := range c.Currency.Codes {
		code = currency.Normalize(code)
		raw, ok := lookupRate(c.Currency.Rates, code)
		if !ok {
			return nil, fmt.Errorf("currency.rates has no rate for %s", code)
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("currency.rates.%s: %w", code, err)
		}
		rates[code] = rate
	}
	if _, ok := rates[c.App.BaseCurrency]; !ok {
		return nil, fmt.Errorf("currency.codes must include the base currency %s", c.App.BaseCurrency)
	}
	return currency.NewRates(c.App.BaseCurrency, rates)
}

// viper lowercases map keys.
func lookupRate(rates map[string]string, code string) (string, bool) {
	if raw, ok := rates[code]; ok {
		return raw, true
	}
	raw, ok := rates[strings.ToLower(code)]
	return raw, ok
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
