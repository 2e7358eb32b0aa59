package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cryptopilot/trade-core/internal/safety"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`

	Venues struct {
		Bybit struct {
			APIKey  string `yaml:"api_key"`
			Secret  string `yaml:"secret"`
			Testnet bool   `yaml:"testnet"`
		} `yaml:"bybit"`
		Alpaca struct {
			APIKey  string `yaml:"api_key"`
			Secret  string `yaml:"secret"`
			BaseURL string `yaml:"base_url"`
		} `yaml:"alpaca"`
		UseSimulator bool `yaml:"use_simulator"`
	} `yaml:"venues"`

	Coordinator struct {
		ConfirmationTTL Duration `yaml:"confirmation_ttl"`
		ExecuteTimeout  Duration `yaml:"execute_timeout"`
	} `yaml:"coordinator"`

	Risk struct {
		MinOrderNotional  float64 `yaml:"min_order_notional"`
		LiquidationBuffer float64 `yaml:"liquidation_buffer"`
	} `yaml:"risk"`

	Monitor struct {
		Interval     Duration `yaml:"interval"`
		Concurrency  int      `yaml:"concurrency"`
		ClosePercent float64  `yaml:"close_percent"`
	} `yaml:"monitor"`

	Safety struct {
		BreakerFailureThreshold int      `yaml:"breaker_failure_threshold"`
		BreakerSuccessThreshold int      `yaml:"breaker_success_threshold"`
		BreakerWindow           Duration `yaml:"breaker_window"`
		BreakerCooldown         Duration `yaml:"breaker_cooldown"`
		VenueRateLimit          int      `yaml:"venue_rate_limit"`
		VenueCallTimeout        Duration `yaml:"venue_call_timeout"`
	} `yaml:"safety"`

	Notifications struct {
		TelegramToken  string `yaml:"telegram_token"`
		TelegramChatID string `yaml:"telegram_chat_id"`
	} `yaml:"notifications"`

	Server struct {
		APIPort     int `yaml:"api_port"`
		MetricsPort int `yaml:"metrics_port"`
	} `yaml:"server"`

	History struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"history"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	cfg := &Config{}
	cfg.Environment = "development"
	cfg.LogLevel = "info"
	cfg.Venues.Bybit.Testnet = true
	cfg.Venues.UseSimulator = false
	cfg.Coordinator.ConfirmationTTL = Duration(5 * time.Minute)
	cfg.Coordinator.ExecuteTimeout = Duration(15 * time.Second)
	cfg.Risk.MinOrderNotional = 10.0
	cfg.Risk.LiquidationBuffer = 0.025
	cfg.Monitor.Interval = Duration(30 * time.Second)
	cfg.Monitor.Concurrency = 4
	cfg.Monitor.ClosePercent = 100
	cfg.Safety.BreakerFailureThreshold = 5
	cfg.Safety.BreakerSuccessThreshold = 2
	cfg.Safety.BreakerWindow = Duration(time.Minute)
	cfg.Safety.BreakerCooldown = Duration(30 * time.Second)
	cfg.Safety.VenueRateLimit = 10
	cfg.Safety.VenueCallTimeout = Duration(10 * time.Second)
	cfg.Server.APIPort = 8080
	cfg.Server.MetricsPort = 8081
	cfg.History.SQLitePath = "trade_history.db"
	return cfg
}

// BreakerSettings converts the safety section into breaker thresholds.
// A negative threshold would wrap on the cast, so it clamps to zero;
// Validate rejects such configs before they get here.
func (c *Config) BreakerSettings() safety.BreakerConfig {
	failures := c.Safety.BreakerFailureThreshold
	if failures < 0 {
		failures = 0
	}
	successes := c.Safety.BreakerSuccessThreshold
	if successes < 0 {
		successes = 0
	}
	return safety.BreakerConfig{
		FailureThreshold: uint32(failures),
		SuccessThreshold: uint32(successes),
		Window:           c.Safety.BreakerWindow.Std(),
		Cooldown:         c.Safety.BreakerCooldown.Std(),
	}
}

// Load builds a configuration from defaults, an optional YAML file and
// environment variables, in that order. A .env file in the working
// directory is honored when present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("ENV", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Venues.Bybit.APIKey = getEnv("BYBIT_API_KEY", c.Venues.Bybit.APIKey)
	c.Venues.Bybit.Secret = getEnv("BYBIT_API_SECRET", c.Venues.Bybit.Secret)
	c.Venues.Bybit.Testnet = getEnvBool("BYBIT_TESTNET", c.Venues.Bybit.Testnet)
	c.Venues.Alpaca.APIKey = getEnv("ALPACA_API_KEY", c.Venues.Alpaca.APIKey)
	c.Venues.Alpaca.Secret = getEnv("ALPACA_API_SECRET", c.Venues.Alpaca.Secret)
	c.Venues.Alpaca.BaseURL = getEnv("ALPACA_BASE_URL", c.Venues.Alpaca.BaseURL)
	c.Venues.UseSimulator = getEnvBool("USE_SIMULATOR", c.Venues.UseSimulator)

	c.Coordinator.ConfirmationTTL = Duration(getEnvDuration("CONFIRMATION_TTL", c.Coordinator.ConfirmationTTL.Std()))
	c.Coordinator.ExecuteTimeout = Duration(getEnvDuration("EXECUTE_TIMEOUT", c.Coordinator.ExecuteTimeout.Std()))

	c.Risk.MinOrderNotional = getEnvFloat("MIN_ORDER_NOTIONAL", c.Risk.MinOrderNotional)
	c.Risk.LiquidationBuffer = getEnvFloat("LIQUIDATION_BUFFER", c.Risk.LiquidationBuffer)

	c.Monitor.Interval = Duration(getEnvDuration("MONITOR_INTERVAL", c.Monitor.Interval.Std()))
	c.Monitor.Concurrency = getEnvInt("MONITOR_CONCURRENCY", c.Monitor.Concurrency)
	c.Monitor.ClosePercent = getEnvFloat("MONITOR_CLOSE_PERCENT", c.Monitor.ClosePercent)

	c.Server.APIPort = getEnvInt("API_PORT", c.Server.APIPort)
	c.Server.MetricsPort = getEnvInt("METRICS_PORT", c.Server.MetricsPort)

	c.History.SQLitePath = getEnv("HISTORY_SQLITE_PATH", c.History.SQLitePath)

	c.Notifications.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notifications.TelegramToken)
	c.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notifications.TelegramChatID)
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if c.Coordinator.ConfirmationTTL <= 0 {
		return fmt.Errorf("confirmation_ttl must be positive")
	}
	if c.Risk.LiquidationBuffer <= 0 || c.Risk.LiquidationBuffer >= 1 {
		return fmt.Errorf("liquidation_buffer must be in (0, 1)")
	}
	if c.Monitor.ClosePercent <= 0 || c.Monitor.ClosePercent > 100 {
		return fmt.Errorf("close_percent must be in (0, 100]")
	}
	if c.Safety.BreakerFailureThreshold < 1 {
		return fmt.Errorf("breaker_failure_threshold must be at least 1")
	}
	if c.Server.APIPort == c.Server.MetricsPort {
		return fmt.Errorf("api_port and metrics_port must differ")
	}
	if !c.Venues.UseSimulator && c.Venues.Bybit.APIKey == "" && c.Venues.Alpaca.APIKey == "" {
		return fmt.Errorf("no venue credentials configured, set USE_SIMULATOR=true for paper trading")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
