package core

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Credentials holds the venue API key pair. String redacts both fields, so
// a stray %v/%+v in a log statement never prints a secret; callers that
// need to log presence should check APIKey != "" instead.
type Credentials struct {
	APIKey    string
	APISecret string
}

// String implements fmt.Stringer without revealing either field.
func (c Credentials) String() string {
	return "Credentials{APIKey:<redacted>, APISecret:<redacted>}"
}

// ExchangeConfig is one entry in Config.Exchanges: a venue/variant pair
// (e.g. id "binance_futures", name "Binance Futures") and its symbol list. An empty
// Symbols list means the adapter discovers the tradable set at startup.
type ExchangeConfig struct {
	ID      string
	Name    string
	Symbols []string
}

// Config is the fully validated process configuration, assembled from
// environment variables (and an optional YAML file) via spf13/viper.
// Field set matches core::config::Config plus the exchange-table and
// per-class rate-limit fields confirmed present by core/tests/config.rs.
type Config struct {
	ProxyURL string

	SpotSymbols    []string
	FuturesSymbols []string
	MexcSymbols    []string
	KrakenSymbols  []string

	ChunkSize       int
	EventBufferSize int

	EnableSpot    bool
	EnableFutures bool
	EnableMexc    bool
	EnableKraken  bool
	EnableMetrics bool

	Credentials Credentials

	CABundle  string
	CertPins  []string

	HTTPBurst        int
	HTTPRefillPerSec int
	WSBurst          int
	WSRefillPerSec   int

	BookRefreshSecs int
	MaxBackoffSecs  int
	MaxFailures     int

	Exchanges []ExchangeConfig

	MetricsAddr    string
	DeadLetterPath string
}

// LoadConfig reads configuration from the environment, optionally
// overlaid with a YAML file at configPath (pass "" to skip the file),
// and validates it. Grounded on the teacher's LoadProvidersConfig
// (os.ReadFile-or-viper + explicit Validate() pass) and on
// core::config::Config::from_env's defaulting rules.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("CHUNK_SIZE", 100)
	v.SetDefault("EVENT_BUFFER_SIZE", 1024)
	v.SetDefault("ENABLE_SPOT", true)
	v.SetDefault("ENABLE_FUTURES", true)
	v.SetDefault("ENABLE_MEXC", false)
	v.SetDefault("ENABLE_KRAKEN", true)
	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("HTTP_BURST", 10)
	v.SetDefault("HTTP_REFILL_PER_SEC", 5)
	v.SetDefault("WS_BURST", 5)
	v.SetDefault("WS_REFILL_PER_SEC", 1)
	v.SetDefault("BOOK_REFRESH_SECS", 21600)
	v.SetDefault("MAX_BACKOFF_SECS", 64)
	v.SetDefault("MAX_FAILURES", 10)
	v.SetDefault("METRICS_ADDR", ":9090")
	v.SetDefault("DEAD_LETTER_PATH", "dead_letter.ndjson")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		ProxyURL:         v.GetString("SOCKS5_PROXY"),
		SpotSymbols:      splitCSV(v.GetString("SPOT_SYMBOLS")),
		FuturesSymbols:   splitCSV(v.GetString("FUTURES_SYMBOLS")),
		MexcSymbols:      splitCSV(v.GetString("MEXC_SYMBOLS")),
		KrakenSymbols:    splitCSV(v.GetString("KRAKEN_SYMBOLS")),
		ChunkSize:        v.GetInt("CHUNK_SIZE"),
		EventBufferSize:  v.GetInt("EVENT_BUFFER_SIZE"),
		EnableSpot:       v.GetBool("ENABLE_SPOT"),
		EnableFutures:    v.GetBool("ENABLE_FUTURES"),
		EnableMexc:       v.GetBool("ENABLE_MEXC"),
		EnableKraken:     v.GetBool("ENABLE_KRAKEN"),
		EnableMetrics:    v.GetBool("ENABLE_METRICS"),
		Credentials: Credentials{
			APIKey:    v.GetString("API_KEY"),
			APISecret: v.GetString("API_SECRET"),
		},
		CABundle:         v.GetString("CA_BUNDLE"),
		CertPins:         splitCSV(v.GetString("CERT_PINS")),
		HTTPBurst:        v.GetInt("HTTP_BURST"),
		HTTPRefillPerSec: v.GetInt("HTTP_REFILL_PER_SEC"),
		WSBurst:          v.GetInt("WS_BURST"),
		WSRefillPerSec:   v.GetInt("WS_REFILL_PER_SEC"),
		BookRefreshSecs:  v.GetInt("BOOK_REFRESH_SECS"),
		MaxBackoffSecs:   v.GetInt("MAX_BACKOFF_SECS"),
		MaxFailures:      v.GetInt("MAX_FAILURES"),
		MetricsAddr:      v.GetString("METRICS_ADDR"),
		DeadLetterPath:   v.GetString("DEAD_LETTER_PATH"),
	}

	cfg.Exchanges = buildExchangeTable(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func buildExchangeTable(cfg *Config) []ExchangeConfig {
	var exchanges []ExchangeConfig
	if cfg.EnableSpot {
		exchanges = append(exchanges, ExchangeConfig{ID: "binance_spot", Name: "Binance Spot", Symbols: cfg.SpotSymbols})
	}
	if cfg.EnableFutures {
		exchanges = append(exchanges, ExchangeConfig{ID: "binance_futures", Name: "Binance Futures", Symbols: cfg.FuturesSymbols})
	}
	if cfg.EnableMexc {
		exchanges = append(exchanges, ExchangeConfig{ID: "mexc", Name: "MEXC Spot", Symbols: cfg.MexcSymbols})
	}
	if cfg.EnableKraken {
		exchanges = append(exchanges, ExchangeConfig{ID: "kraken", Name: "Kraken Spot", Symbols: cfg.KrakenSymbols})
	}
	return exchanges
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate enforces the same bounds as core::config::Config::validate: a
// non-empty credential pair, at least one symbol for every enabled market,
// and chunk/buffer sizes within sane limits.
func (c *Config) Validate() error {
	if c.Credentials.APIKey == "" || c.Credentials.APISecret == "" {
		return fmt.Errorf("credentials: API_KEY and API_SECRET must both be set")
	}
	if c.EnableSpot && len(c.SpotSymbols) == 0 {
		return fmt.Errorf("spot_symbols: must be non-empty when spot is enabled")
	}
	if c.EnableFutures && len(c.FuturesSymbols) == 0 {
		return fmt.Errorf("futures_symbols: must be non-empty when futures is enabled")
	}
	if c.EnableMexc && len(c.MexcSymbols) == 0 {
		return fmt.Errorf("mexc_symbols: must be non-empty when mexc is enabled")
	}
	if c.EnableKraken && len(c.KrakenSymbols) == 0 {
		return fmt.Errorf("kraken_symbols: must be non-empty when kraken is enabled")
	}
	if c.ChunkSize < 1 || c.ChunkSize > 1024 {
		return fmt.Errorf("chunk_size: must be between 1 and 1024, got %d", c.ChunkSize)
	}
	if c.EventBufferSize < 1 || c.EventBufferSize > 65536 {
		return fmt.Errorf("event_buffer_size: must be between 1 and 65536, got %d", c.EventBufferSize)
	}
	if c.HTTPBurst <= 0 {
		return fmt.Errorf("http_burst: must be positive, got %d", c.HTTPBurst)
	}
	if c.WSBurst <= 0 {
		return fmt.Errorf("ws_burst: must be positive, got %d", c.WSBurst)
	}
	if c.BookRefreshSecs <= 0 {
		return fmt.Errorf("book_refresh_secs: must be positive, got %d", c.BookRefreshSecs)
	}
	if c.MaxBackoffSecs <= 0 {
		return fmt.Errorf("max_backoff_secs: must be positive, got %d", c.MaxBackoffSecs)
	}
	if c.MaxFailures <= 0 {
		return fmt.Errorf("max_failures: must be positive, got %d", c.MaxFailures)
	}
	return nil
}
