package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the gateway client and daemon.
type Config struct {
	// OpenAPI credentials
	AppKey      string `envconfig:"LONGBRIDGE_APP_KEY" yaml:"app_key"`
	AppSecret   string `envconfig:"LONGBRIDGE_APP_SECRET" yaml:"app_secret"`
	AccessToken string `envconfig:"LONGBRIDGE_ACCESS_TOKEN" yaml:"access_token"`

	// Endpoints
	HTTPURL    string `envconfig:"LONGBRIDGE_HTTP_URL" default:"https://openapi.longbridgeapp.com" yaml:"http_url"`
	QuoteWSURL string `envconfig:"LONGBRIDGE_QUOTE_WS_URL" default:"wss://openapi-quote.longbridgeapp.com/v2" yaml:"quote_ws_url"`
	TradeWSURL string `envconfig:"LONGBRIDGE_TRADE_WS_URL" default:"wss://openapi-trade.longbridgeapp.com/v2" yaml:"trade_ws_url"`

	Language            string `envconfig:"LONGBRIDGE_LANGUAGE" default:"en" yaml:"language"`
	EnableOvernight     bool   `envconfig:"LONGBRIDGE_ENABLE_OVERNIGHT" default:"false" yaml:"enable_overnight"`
	PushCandlestickMode string `envconfig:"LONGBRIDGE_PUSH_CANDLESTICK_MODE" default:"realtime" yaml:"push_candlestick_mode"`
	LogPath             string `envconfig:"LONGBRIDGE_LOG_PATH" yaml:"log_path"`
	LogLevel            string `envconfig:"LOG_LEVEL" default:"info" yaml:"log_level"`

	// Transport tuning
	RequestTimeout    time.Duration `envconfig:"GATEWAY_REQUEST_TIMEOUT" default:"10s" yaml:"request_timeout"`
	HeartbeatInterval time.Duration `envconfig:"GATEWAY_HEARTBEAT_INTERVAL" default:"10s" yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `envconfig:"GATEWAY_HEARTBEAT_TIMEOUT" default:"30s" yaml:"heartbeat_timeout"`
	BackoffBase       time.Duration `envconfig:"GATEWAY_BACKOFF_BASE" default:"1s" yaml:"backoff_base"`
	BackoffMax        time.Duration `envconfig:"GATEWAY_BACKOFF_MAX" default:"30s" yaml:"backoff_max"`

	// Push pipeline
	DispatchShards    int `envconfig:"GATEWAY_DISPATCH_SHARDS" default:"8" yaml:"dispatch_shards"`
	DispatchQueueSize int `envconfig:"GATEWAY_DISPATCH_QUEUE" default:"1024" yaml:"dispatch_queue"`
	TradesRingSize    int `envconfig:"GATEWAY_TRADES_RING" default:"500" yaml:"trades_ring"`

	// Daemon
	Symbols        []string `envconfig:"GATEWAY_SYMBOLS" yaml:"symbols"`
	AdminAddr      string   `envconfig:"ADMIN_ADDR" default:":8080" yaml:"admin_addr"`
	AdminJWTSecret string   `envconfig:"ADMIN_JWT_SECRET" default:"dev-secret" yaml:"admin_jwt_secret"`
	GRPCAddr       string   `envconfig:"GRPC_ADDR" default:":50051" yaml:"grpc_addr"`
	DBDriver       string   `envconfig:"DB_DRIVER" default:"sqlite" yaml:"db_driver"`
	DBDSN          string   `envconfig:"DB_DSN" default:"./data/gateway.db" yaml:"db_dsn"`
}

// Load reads .env (if present), the environment, then the optional YAML file
// named by GATEWAY_CONFIG_FILE. YAML values override the environment.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if path := os.Getenv("GATEWAY_CONFIG_FILE"); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.Symbols = splitAndTrim(strings.Join(cfg.Symbols, ","))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) overlayFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects missing credentials and unknown enum values.
func (c *Config) Validate() error {
	var missing []string
	if c.AppKey == "" {
		missing = append(missing, "LONGBRIDGE_APP_KEY")
	}
	if c.AppSecret == "" {
		missing = append(missing, "LONGBRIDGE_APP_SECRET")
	}
	if c.AccessToken == "" {
		missing = append(missing, "LONGBRIDGE_ACCESS_TOKEN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	switch c.Language {
	case "en", "zh-CN", "zh-HK":
	default:
		return fmt.Errorf("unsupported language %q", c.Language)
	}
	switch strings.ToLower(c.PushCandlestickMode) {
	case "realtime", "confirmed":
	default:
		return fmt.Errorf("unsupported push candlestick mode %q", c.PushCandlestickMode)
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	if c.RequestTimeout <= 0 || c.HeartbeatInterval <= 0 || c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("heartbeat timeout must exceed interval and timeouts must be positive")
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("invalid backoff %s..%s", c.BackoffBase, c.BackoffMax)
	}
	if c.DispatchShards <= 0 || c.DispatchQueueSize <= 0 || c.TradesRingSize <= 0 {
		return fmt.Errorf("dispatcher shards, queue and trades ring must be positive")
	}
	return nil
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
