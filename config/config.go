package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// SetupEnvFile loads .env into the process environment. A missing file is not an error,
// variables already set in the environment win.
func SetupEnvFile() {
	if err := godotenv.Load(".env"); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Error loading .env file: %v", err)
		}
	}
}

// Config returns the environment value for key or fallback when unset or empty.
func Config(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func ConfigInt(key string, fallback int) int {
	raw := Config(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return value
}

func ConfigDuration(key string, fallback time.Duration) time.Duration {
	raw := Config(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Invalid duration for %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return value
}

// BillingAddress is attached to every tokenized card.
type BillingAddress struct {
	Address1    string
	Address2    string
	Address3    string
	City        string
	PostalCode  string
	State       string
	CountryCode string
}

// PaymentFacilitator is sent on the CIT only when SchemeID is set.
type PaymentFacilitator struct {
	SchemeID                       string
	IndependentSalesOrganizationID string
	SubMerchantName                string
	SubMerchantReference           string
	SubMerchantPostalCode          string
	SubMerchantStreet              string
	SubMerchantCity                string
	SubMerchantState               string
	SubMerchantCountryCode         string
	SubMerchantPhoneNumber         string
	SubMerchantEmail               string
	SubMerchantTaxReference        string
}

type WorldpayConfig struct {
	BaseURL        string
	MerchantEntity string
	Username       string
	Password       string
	APIToken       string
	Timeout        time.Duration
	OverrideName   string
	Narrative      string
	Facilitator    PaymentFacilitator
}

type RegistryConfig struct {
	Driver        string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	AbandonAfter  time.Duration
	SweepSchedule string
}

type DatabaseConfig struct {
	Host     string
	User     string
	Password string
	Name     string
	Port     string
}

type PaymentLogConfig struct {
	Driver        string
	Database      DatabaseConfig
	MongoURI      string
	MongoDatabase string
}

type AppConfig struct {
	Env       string
	Port      string
	BaseURL   string
	LogDir    string
	LogLevel  string
	LogFormat string

	Amount   int64
	Currency string
	Billing  BillingAddress

	ProfilingOrgID  string
	ProfilingDomain string

	MerchantDataSecret string
	AdminJWTSecret     string

	Worldpay   WorldpayConfig
	Registry   RegistryConfig
	PaymentLog PaymentLogConfig
}

// Load reads the full application configuration from the environment.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Env:       Config("APP_ENV", "development"),
		Port:      Config("APP_PORT", "3000"),
		BaseURL:   strings.TrimRight(Config("APP_BASE_URL", "http://localhost:3000"), "/"),
		LogDir:    Config("LOG_DIR", "logs"),
		LogLevel:  Config("LOG_LEVEL", "info"),
		LogFormat: Config("LOG_FORMAT", "console"),

		Amount:   int64(ConfigInt("PAYMENT_AMOUNT", 100)),
		Currency: strings.ToUpper(Config("PAYMENT_CURRENCY", "GBP")),
		Billing: BillingAddress{
			Address1:    Config("BILLING_ADDRESS1", "221B Baker Street"),
			Address2:    Config("BILLING_ADDRESS2", ""),
			Address3:    Config("BILLING_ADDRESS3", ""),
			City:        Config("BILLING_CITY", "London"),
			PostalCode:  Config("BILLING_POSTAL_CODE", "NW1 6XE"),
			State:       Config("BILLING_STATE", "LND"),
			CountryCode: Config("BILLING_COUNTRY_CODE", "GB"),
		},

		ProfilingOrgID:  Config("TM_ORGANISATION_ID", "afevfjm6"),
		ProfilingDomain: Config("TM_PROFILING_DOMAIN", "ddc-test.worldpay.com"),

		MerchantDataSecret: Config("MD_SECRET", ""),
		AdminJWTSecret:     Config("ADMIN_JWT_SECRET", ""),

		Worldpay: WorldpayConfig{
			BaseURL:        Config("WORLDPAY_BASE_URL", "https://try.access.worldpay.com/"),
			MerchantEntity: Config("WORLDPAY_MERCHANT_ENTITY", "default"),
			Username:       Config("WORLDPAY_USERNAME", ""),
			Password:       Config("WORLDPAY_PASSWORD", ""),
			APIToken:       Config("WORLDPAY_API_TOKEN", ""),
			Timeout:        ConfigDuration("WORLDPAY_TIMEOUT", 30*time.Second),
			OverrideName:   Config("MERCHANT_OVERRIDE_NAME", "SubmerchName"),
			Narrative:      Config("PAYMENT_NARRATIVE", "Test payment"),
			Facilitator: PaymentFacilitator{
				SchemeID:                       Config("FACILITATOR_SCHEME_ID", ""),
				IndependentSalesOrganizationID: Config("FACILITATOR_ISO_ID", ""),
				SubMerchantName:                Config("SUBMERCHANT_NAME", ""),
				SubMerchantReference:           Config("SUBMERCHANT_REFERENCE", ""),
				SubMerchantPostalCode:          Config("SUBMERCHANT_POSTAL_CODE", ""),
				SubMerchantStreet:              Config("SUBMERCHANT_STREET", ""),
				SubMerchantCity:                Config("SUBMERCHANT_CITY", ""),
				SubMerchantState:               Config("SUBMERCHANT_STATE", ""),
				SubMerchantCountryCode:         Config("SUBMERCHANT_COUNTRY_CODE", ""),
				SubMerchantPhoneNumber:         Config("SUBMERCHANT_PHONE", ""),
				SubMerchantEmail:               Config("SUBMERCHANT_EMAIL", ""),
				SubMerchantTaxReference:        Config("SUBMERCHANT_TAX_REFERENCE", ""),
			},
		},

		Registry: RegistryConfig{
			Driver:        strings.ToLower(Config("REGISTRY_DRIVER", "memory")),
			TTL:           ConfigDuration("REGISTRY_TTL", 30*time.Minute),
			RedisAddr:     Config("REDIS_ADDR", "127.0.0.1:6379"),
			RedisPassword: Config("REDIS_PASS", ""),
			RedisDB:       ConfigInt("REDIS_DB", 0),
			RedisPrefix:   Config("REDIS_PREFIX", "cardpay:trx"),
			AbandonAfter:  ConfigDuration("ABANDON_AFTER", 15*time.Minute),
			SweepSchedule: Config("SWEEP_SCHEDULE", "@every 1m"),
		},

		PaymentLog: PaymentLogConfig{
			Driver: strings.ToLower(Config("PAYMENT_LOG_DRIVER", "none")),
			Database: DatabaseConfig{
				Host:     Config("DB_HOST", "localhost"),
				User:     Config("DB_USER", ""),
				Password: Config("DB_PASSWORD", ""),
				Name:     Config("DB_NAME", ""),
				Port:     Config("DB_PORT", "5432"),
			},
			MongoURI:      Config("MONGODB_URI", ""),
			MongoDatabase: Config("MONGODB_DATABASE", "cardpay"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) Validate() error {
	if c.Amount <= 0 {
		return fmt.Errorf("PAYMENT_AMOUNT must be positive, got %d", c.Amount)
	}
	if len(c.Currency) != 3 {
		return fmt.Errorf("PAYMENT_CURRENCY must be an ISO 4217 code, got %q", c.Currency)
	}
	if len(c.MerchantDataSecret) < 16 {
		return fmt.Errorf("MD_SECRET must be at least 16 characters")
	}
	if c.Registry.AbandonAfter >= c.Registry.TTL {
		return fmt.Errorf("ABANDON_AFTER (%s) must be shorter than REGISTRY_TTL (%s)", c.Registry.AbandonAfter, c.Registry.TTL)
	}
	switch c.Registry.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported REGISTRY_DRIVER %q", c.Registry.Driver)
	}
	switch c.PaymentLog.Driver {
	case "none", "postgres", "mongo":
	default:
		return fmt.Errorf("unsupported PAYMENT_LOG_DRIVER %q", c.PaymentLog.Driver)
	}
	if c.PaymentLog.Driver == "mongo" && c.PaymentLog.MongoURI == "" {
		return fmt.Errorf("MONGODB_URI is required for the mongo payment log")
	}
	if c.Worldpay.APIToken == "" && c.Worldpay.Username == "" {
		log.Println("WARN: no Worldpay credentials configured, gateway calls will be rejected")
	}
	return nil
}

// CallbackURL is the absolute URL the issuer posts the challenge result to.
func (c *AppConfig) CallbackURL() string {
	return c.BaseURL + "/auth-callback"
}
