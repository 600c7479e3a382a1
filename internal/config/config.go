package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrInvalid wraps every configuration failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	QiscusBaseURL      string   `env:"QISCUS_BASE_URL" envDefault:"https://api.qiscus.com/api/v2.1/rest" validate:"required,url"`
	QiscusAppID        string   `env:"QISCUS_APP_ID" validate:"required"`
	QiscusSecret       string   `env:"QISCUS_SDK_SECRET" validate:"required"`
	RoomIDs            []string `env:"QISCUS_ROOM_IDS" envSeparator:","`
	RoomsEndpoint      string   `env:"QISCUS_ROOMS_ENDPOINT" envDefault:"get_rooms_info" validate:"required"`
	MessagesEndpoint   string   `env:"QISCUS_MESSAGES_ENDPOINT" envDefault:"get_room_comments" validate:"required"`
	PageSize           int      `env:"PAGE_SIZE" envDefault:"100" validate:"min=1,max=1000"`
	MaxPages           int      `env:"MAX_PAGES" envDefault:"50" validate:"min=1"`
	HTTPTimeoutSeconds int      `env:"HTTP_TIMEOUT_SECONDS" envDefault:"30" validate:"min=1"`
	SourceRetries      int      `env:"SOURCE_RETRIES" envDefault:"2" validate:"min=0,max=10"`
	RequestsPerSecond  float64  `env:"REQUESTS_PER_SECOND" envDefault:"5" validate:"gt=0"`
	RateBurst          int      `env:"RATE_BURST" envDefault:"5" validate:"min=1"`
	Workers            int      `env:"WORKERS" envDefault:"4" validate:"min=1,max=64"`

	BookingEndpoint     string `env:"BOOKING_API_ENDPOINT" envDefault:"http://internal.api/bookings" validate:"required"`
	TransactionEndpoint string `env:"TRANSACTION_API_ENDPOINT" envDefault:"http://internal.api/transactions" validate:"required"`
	InternalAPIToken    string `env:"INTERNAL_API_TOKEN"`
	BookingTable        string `env:"BOOKING_TABLE" envDefault:"bookings" validate:"required"`
	TransactionTable    string `env:"TRANSACTION_TABLE" envDefault:"transactions" validate:"required"`
	MongoDatabase       string `env:"LOOKUP_MONGO_DATABASE" envDefault:"funnel" validate:"required"`
	CacheRedisAddr      string `env:"LOOKUP_CACHE_REDIS_ADDR" validate:"omitempty,hostname_port"`
	CacheTTLSeconds     int    `env:"LOOKUP_CACHE_TTL_SECONDS" envDefault:"900" validate:"min=1"`

	KeywordFile      string   `env:"KEYWORD_FILE" envDefault:"opening_keywords.txt"`
	OutputFile       string   `env:"OUTPUT_FILE" envDefault:"funnel_report.csv" validate:"required"`
	ChannelRulesFile string   `env:"CHANNEL_RULES_FILE"`
	OperatorDomains  []string `env:"OPERATOR_DOMAINS" envDefault:"qismo.com" envSeparator:","`
	OperatorAccounts []string `env:"OPERATOR_ACCOUNTS" envSeparator:","`
	LeadTimezone     string   `env:"LEAD_TIMEZONE" validate:"omitempty,timezone"`

	LogLevelName    string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat       string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	LogFile         string `env:"LOG_FILE"`
	MetricsTextfile string `env:"METRICS_TEXTFILE"`
	Port            string `env:"PORT" envDefault:"8080" validate:"numeric"`
}

// FromEnv loads an optional .env file, parses the environment and validates
// the result.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: .env: %v", ErrInvalid, err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	cfg.RoomIDs = compact(cfg.RoomIDs)
	cfg.OperatorDomains = compact(cfg.OperatorDomains)
	cfg.OperatorAccounts = compact(cfg.OperatorAccounts)
	return cfg, cfg.Validate()
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) LogLevel() slog.Level {
	switch c.LogLevelName {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Location returns the lead-date timezone, nil when unset.
func (c Config) Location() *time.Location {
	if c.LeadTimezone == "" {
		return nil
	}
	loc, err := time.LoadLocation(c.LeadTimezone)
	if err != nil {
		return nil
	}
	return loc
}

func compact(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
