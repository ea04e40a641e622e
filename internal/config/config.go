package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingSecret = errors.New("missing secret")
	ErrInvalidValue  = errors.New("invalid config value")
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Log      LogConfig      `yaml:"log"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Cart     CartConfig     `yaml:"cart"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Payment  PaymentConfig  `yaml:"payment"`
	Auth     AuthConfig     `yaml:"auth"`
	Pricing  PricingConfig  `yaml:"pricing"`
}

type HTTPConfig struct {
	Port               string        `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
}

type GRPCConfig struct {
	Port        string        `yaml:"port"`
	HealthCheck time.Duration `yaml:"health_check_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CatalogConfig struct {
	DBPath   string        `yaml:"db_path"`
	Timeout  time.Duration `yaml:"timeout"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// Cache is "memory" or "redis".
	Cache string `yaml:"cache"`
}

type CartConfig struct {
	Debounce    time.Duration `yaml:"debounce"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type PaymentConfig struct {
	BaseURL      string        `yaml:"base_url"`
	KeyID        string        `yaml:"key_id"`
	KeySecret    string        `yaml:"key_secret"`
	Timeout      time.Duration `yaml:"timeout"`
	MerchantName string        `yaml:"merchant_name"`
}

type AuthConfig struct {
	JWTSecret string   `yaml:"jwt_secret"`
	Admins    []string `yaml:"admins"`
}

type PricingConfig struct {
	Currency              string            `yaml:"currency"`
	TaxRate               decimal.Decimal   `yaml:"tax_rate"`
	FreeShippingThreshold decimal.Decimal   `yaml:"free_shipping_threshold"`
	FlatShippingFee       decimal.Decimal   `yaml:"flat_shipping_fee"`
	ExpressShippingFee    decimal.Decimal   `yaml:"express_shipping_fee"`
	Coupons               map[string]Coupon `yaml:"coupons"`
}

// Coupon is either a percentage (0.10 for 10%) or a flat amount off.
type Coupon struct {
	Percent decimal.Decimal `yaml:"percent"`
	Flat    decimal.Decimal `yaml:"flat"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:               "8080",
			RequestTimeout:     30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			MaxRequestBodySize: 1 << 20, // 1MB
		},
		GRPC: GRPCConfig{Port: "50051", HealthCheck: 10 * time.Second},
		Log:  LogConfig{Level: "info", Format: "json"},
		Catalog: CatalogConfig{
			DBPath:   "./catalog.db",
			Timeout:  5 * time.Second,
			CacheTTL: 5 * time.Minute,
			Cache:    "memory",
		},
		Cart:  CartConfig{Debounce: 300 * time.Millisecond, SnapshotTTL: 30 * 24 * time.Hour},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Postgres: PostgresConfig{
			Host:   "localhost",
			Port:   5432,
			User:   "postgres",
			DBName: "storefront",
		},
		Mongo: MongoConfig{URI: "mongodb://localhost:27017", Database: "storefront", Collection: "profiles"},
		Kafka: KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "order-events", GroupID: "storefront-cart"},
		Payment: PaymentConfig{
			BaseURL:      "https://api.razorpay.com/v1",
			Timeout:      5 * time.Second,
			MerchantName: "Storefront",
		},
		Pricing: PricingConfig{
			Currency:              "INR",
			TaxRate:               decimal.RequireFromString("0.05"),
			FreeShippingThreshold: decimal.NewFromInt(500),
			FlatShippingFee:       decimal.NewFromInt(40),
			ExpressShippingFee:    decimal.NewFromInt(100),
			Coupons: map[string]Coupon{
				"WELCOME10": {Percent: decimal.RequireFromString("0.10")},
				"FLAT100":   {Flat: decimal.NewFromInt(100)},
			},
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("STOREFRONT_CONFIG")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.HTTP.Port = getEnv("HTTP_PORT", c.HTTP.Port)
	c.HTTP.RequestTimeout = parseDuration(getEnv("REQUEST_TIMEOUT", ""), c.HTTP.RequestTimeout)
	c.HTTP.ShutdownTimeout = parseDuration(getEnv("SHUTDOWN_TIMEOUT", ""), c.HTTP.ShutdownTimeout)
	c.GRPC.Port = getEnv("GRPC_PORT", c.GRPC.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.Catalog.DBPath = getEnv("CATALOG_DB_PATH", c.Catalog.DBPath)
	c.Catalog.Timeout = parseDuration(getEnv("CATALOG_TIMEOUT", ""), c.Catalog.Timeout)
	c.Catalog.CacheTTL = parseDuration(getEnv("CATALOG_CACHE_TTL", ""), c.Catalog.CacheTTL)
	c.Catalog.Cache = getEnv("CATALOG_CACHE", c.Catalog.Cache)
	c.Cart.Debounce = parseDuration(getEnv("CART_DEBOUNCE", ""), c.Cart.Debounce)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Postgres.Host = getEnv("POSTGRES_HOST", c.Postgres.Host)
	if v := getEnv("POSTGRES_PORT", ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: POSTGRES_PORT=%q", ErrInvalidValue, v)
		}
		c.Postgres.Port = port
	}
	c.Postgres.User = getEnv("POSTGRES_USER", c.Postgres.User)
	c.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Postgres.Password)
	c.Postgres.DBName = getEnv("POSTGRES_DB", c.Postgres.DBName)

	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DATABASE", c.Mongo.Database)

	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		c.Kafka.Brokers = splitCSV(v)
	}
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)

	c.Payment.BaseURL = getEnv("PAYMENT_BASE_URL", c.Payment.BaseURL)
	c.Payment.KeyID = getEnv("PAYMENT_KEY_ID", c.Payment.KeyID)
	c.Payment.KeySecret = getEnv("PAYMENT_KEY_SECRET", c.Payment.KeySecret)
	c.Payment.Timeout = parseDuration(getEnv("PAYMENT_TIMEOUT", ""), c.Payment.Timeout)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	if v := getEnv("ADMIN_ACCOUNTS", ""); v != "" {
		c.Auth.Admins = splitCSV(v)
	}

	c.Pricing.Currency = getEnv("CURRENCY", c.Pricing.Currency)
	for key, dst := range map[string]*decimal.Decimal{
		"TAX_RATE":                &c.Pricing.TaxRate,
		"FREE_SHIPPING_THRESHOLD": &c.Pricing.FreeShippingThreshold,
		"FLAT_SHIPPING_FEE":       &c.Pricing.FlatShippingFee,
		"EXPRESS_SHIPPING_FEE":    &c.Pricing.ExpressShippingFee,
	} {
		v := getEnv(key, "")
		if v == "" {
			continue
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, key, v)
		}
		*dst = d
	}
	return nil
}

// Validate is called before serving; migrate only needs the database settings.
func (c *Config) Validate() error {
	if c.Payment.KeyID == "" || c.Payment.KeySecret == "" {
		return fmt.Errorf("%w: payment key id and secret", ErrMissingSecret)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("%w: jwt secret", ErrMissingSecret)
	}
	p := c.Pricing
	for name, v := range map[string]decimal.Decimal{
		"tax_rate":                p.TaxRate,
		"free_shipping_threshold": p.FreeShippingThreshold,
		"flat_shipping_fee":       p.FlatShippingFee,
		"express_shipping_fee":    p.ExpressShippingFee,
	} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s is negative", ErrInvalidValue, name)
		}
	}
	for code, cp := range p.Coupons {
		if cp.Percent.IsNegative() || cp.Percent.GreaterThan(decimal.NewFromInt(1)) || cp.Flat.IsNegative() {
			return fmt.Errorf("%w: coupon %s", ErrInvalidValue, code)
		}
	}
	if c.Catalog.Cache != "memory" && c.Catalog.Cache != "redis" {
		return fmt.Errorf("%w: catalog cache %q", ErrInvalidValue, c.Catalog.Cache)
	}
	return nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.DBName)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); strings.TrimSpace(value) != "" {
		return value
	}
	return defaultValue
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
