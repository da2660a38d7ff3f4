package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// Config holds all runtime configuration for the venue process.
type Config struct {
	Port     int
	LogLevel string

	AdminKey      domain.Key
	QuoteMint     domain.Key
	QuoteDecimals uint8

	StalenessBound   uint64
	MaxBookOrders    int
	StepBudget       int
	SequenceInterval time.Duration

	DataDir     string // empty keeps every record in memory
	ListingFile string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Dev identities used when ADMIN_KEY or QUOTE_MINT is not set.
var (
	DefaultAdminKey  = domain.KeyFromString("crossmargin-admin")
	DefaultQuoteMint = domain.KeyFromString("usdc")
)

var defaults = map[string]any{
	"PORT":              8080,
	"LOG_LEVEL":         "info",
	"ADMIN_KEY":         DefaultAdminKey.String(),
	"QUOTE_MINT":        DefaultQuoteMint.String(),
	"QUOTE_DECIMALS":    6,
	"STALENESS_BOUND":   10,
	"MAX_BOOK_ORDERS":   1024,
	"STEP_BUDGET":       256,
	"SEQUENCE_INTERVAL": "500ms",
	"DATA_DIR":          "",
	"LISTING_FILE":      "",
	"READ_TIMEOUT":      "5s",
	"WRITE_TIMEOUT":     "10s",
	"IDLE_TIMEOUT":      "60s",
	"SHUTDOWN_TIMEOUT":  "10s",
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	cfg := &Config{
		DataDir:     v.GetString("DATA_DIR"),
		ListingFile: v.GetString("LISTING_FILE"),
	}
	var err error

	if cfg.Port, err = getInt(v, "PORT"); err != nil {
		return nil, err
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d out of range", cfg.Port)
	}

	cfg.LogLevel = v.GetString("LOG_LEVEL")
	if !isValidLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}

	if cfg.AdminKey, err = getKey(v, "ADMIN_KEY"); err != nil {
		return nil, err
	}
	if cfg.QuoteMint, err = getKey(v, "QUOTE_MINT"); err != nil {
		return nil, err
	}

	decimals, err := getInt(v, "QUOTE_DECIMALS")
	if err != nil {
		return nil, err
	}
	if decimals < 0 || decimals > 18 {
		return nil, fmt.Errorf("invalid QUOTE_DECIMALS: %d, must be in [0, 18]", decimals)
	}
	cfg.QuoteDecimals = uint8(decimals)

	bound, err := getInt(v, "STALENESS_BOUND")
	if err != nil {
		return nil, err
	}
	if bound < 0 {
		return nil, fmt.Errorf("invalid STALENESS_BOUND: %d, must be >= 0", bound)
	}
	cfg.StalenessBound = uint64(bound)

	if cfg.MaxBookOrders, err = getInt(v, "MAX_BOOK_ORDERS"); err != nil {
		return nil, err
	}
	if cfg.MaxBookOrders < 1 {
		return nil, fmt.Errorf("invalid MAX_BOOK_ORDERS: %d, must be > 0", cfg.MaxBookOrders)
	}
	if cfg.StepBudget, err = getInt(v, "STEP_BUDGET"); err != nil {
		return nil, err
	}
	if cfg.StepBudget < 1 {
		return nil, fmt.Errorf("invalid STEP_BUDGET: %d, must be > 0", cfg.StepBudget)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SEQUENCE_INTERVAL", &cfg.SequenceInterval},
		{"READ_TIMEOUT", &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", &cfg.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if *d.dst, err = getDuration(v, d.key); err != nil {
			return nil, err
		}
	}
	if cfg.SequenceInterval <= 0 {
		return nil, fmt.Errorf("invalid SEQUENCE_INTERVAL: %v, must be positive", cfg.SequenceInterval)
	}

	return cfg, nil
}

func getInt(v *viper.Viper, key string) (int, error) {
	n, err := strconv.Atoi(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getKey(v *viper.Viper, key string) (domain.Key, error) {
	k, err := domain.ParseKey(v.GetString(key))
	if err != nil {
		return k, fmt.Errorf("invalid %s: %w", key, err)
	}
	return k, nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
