package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/raakeshmj/gobill/internal/reliability"
)

var ErrParsingConfig = errors.New("failed to parse configuration")

type Config struct {
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`

	// Optional backends. Empty selects the in-memory implementation.
	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR"`

	JWTSecret        string `env:"JWT_SECRET,required,notEmpty"`
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET,required,notEmpty"`
	WebhookSecret    string `env:"WEBHOOK_SECRET,required,notEmpty"`

	// ClientsFile points at a YAML client registry. When unset the registry
	// is built from <PLATFORM>_CLIENT_SECRET variables.
	ClientsFile  string `env:"CLIENTS_FILE"`
	SeedDemoData bool   `env:"SEED_DEMO_DATA" envDefault:"true"`

	AuthRateLimit   int                         `env:"AUTH_RATE_LIMIT" envDefault:"10"`
	APIRateLimit    int                         `env:"API_RATE_LIMIT" envDefault:"100"`
	RateLimitWindow time.Duration               `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitOnFail reliability.FailureStrategy `env:"RATE_LIMIT_FAILURE_MODE" envDefault:"fail_open"`

	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For and X-Real-IP
	// headers are honoured. Empty keys rate limits on the peer address.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	Log LogConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
	Debug  bool   `env:"DEBUG" envDefault:"false"`
}

// Load reads a .env file if one exists, then parses the environment.
func Load() (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.AuthRateLimit < 1 || c.APIRateLimit < 1 {
		return fmt.Errorf("%w: rate limits must be positive", ErrParsingConfig)
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("%w: RATE_LIMIT_WINDOW must be positive", ErrParsingConfig)
	}
	switch c.RateLimitOnFail {
	case reliability.FailOpen, reliability.FailClosed:
	default:
		return fmt.Errorf("%w: RATE_LIMIT_FAILURE_MODE must be fail_open or fail_closed", ErrParsingConfig)
	}
	if c.JWTSecret == c.JWTRefreshSecret {
		return fmt.Errorf("%w: JWT_SECRET and JWT_REFRESH_SECRET must differ", ErrParsingConfig)
	}
	return nil
}

func (c *Config) ListenAddress() string {
	return ":" + c.ServerPort
}

// ConfigureZerolog sets the global level and output format.
func (c LogConfig) ConfigureZerolog() {
	level := zerolog.InfoLevel
	if c.Debug {
		level = zerolog.DebugLevel
	} else {
		switch strings.ToLower(c.Level) {
		case "trace":
			level = zerolog.TraceLevel
		case "debug":
			level = zerolog.DebugLevel
		case "info":
			level = zerolog.InfoLevel
		case "warn", "warning":
			level = zerolog.WarnLevel
		case "error":
			level = zerolog.ErrorLevel
		}
	}
	zerolog.SetGlobalLevel(level)

	if strings.ToLower(c.Format) == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}
