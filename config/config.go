package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"price-agent/scraper"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	StoreBackend      string // memory, pebble or postgres
	PebbleDir         string
	HistoryWindowDays int
	RetentionDays     int

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	Providers      string
	BrowserURLs    map[string]string
	ChromeBin      string
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	PagesToScrape  int
	MaxResults     int

	ProviderTimeout  time.Duration
	NarrativeTimeout time.Duration
	SaleCalendarPath string

	GeminiAPIKey      string
	GeminiModel       string
	GeminiTemperature float64
	GeminiBaseURL     string

	LogLevel  string
	LogFormat string
	LogFile   string

	CSVOutputPath string
	HTTPAddr      string
}

var defaultBrowserURLs = map[string]string{
	"amazon":   "https://www.amazon.in/s?k={query}&page={page}",
	"flipkart": "https://www.flipkart.com/search?q={query}&page={page}",
	"meesho":   "https://www.meesho.com/search?q={query}&page={page}",
}

// Load reads the .env file and returns a populated Config struct. Values
// come from the environment, with defaults for everything.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		PostgresHost:     v.GetString("postgres_host"),
		PostgresPort:     v.GetString("postgres_port"),
		PostgresUser:     v.GetString("postgres_user"),
		PostgresPassword: v.GetString("postgres_password"),
		PostgresDB:       v.GetString("postgres_db"),
		PostgresSSLMode:  v.GetString("postgres_sslmode"),

		StoreBackend:      strings.ToLower(v.GetString("store_backend")),
		PebbleDir:         v.GetString("pebble_dir"),
		HistoryWindowDays: v.GetInt("history_window_days"),
		RetentionDays:     v.GetInt("retention_days"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		CacheTTL:      v.GetDuration("cache_ttl"),

		Providers:      v.GetString("providers"),
		BrowserURLs:    make(map[string]string),
		ChromeBin:      v.GetString("chrome_bin"),
		MaxConcurrency: v.GetInt("max_concurrency"),
		RateLimitMs:    v.GetInt("rate_limit_ms"),
		MaxRetries:     v.GetInt("max_retries"),
		PagesToScrape:  v.GetInt("pages_to_scrape"),
		MaxResults:     v.GetInt("max_results"),

		ProviderTimeout:  v.GetDuration("provider_timeout"),
		NarrativeTimeout: v.GetDuration("narrative_timeout"),
		SaleCalendarPath: v.GetString("sale_calendar_path"),

		GeminiAPIKey:      v.GetString("gemini_api_key"),
		GeminiModel:       v.GetString("gemini_model"),
		GeminiTemperature: v.GetFloat64("gemini_temperature"),
		GeminiBaseURL:     v.GetString("gemini_base_url"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
		LogFile:   v.GetString("log_file"),

		CSVOutputPath: v.GetString("csv_output_path"),
		HTTPAddr:      v.GetString("http_addr"),
	}

	for _, item := range strings.Split(cfg.Providers, ",") {
		platform, _, _ := strings.Cut(strings.TrimSpace(item), ":")
		platform = strings.ToLower(strings.TrimSpace(platform))
		if platform == "" {
			continue
		}
		if u := v.GetString("browser_url_" + platform); u != "" {
			cfg.BrowserURLs[platform] = u
		}
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", "5432")
	v.SetDefault("postgres_user", "priceagent")
	v.SetDefault("postgres_password", "priceagent")
	v.SetDefault("postgres_db", "price_history")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("store_backend", "memory")
	v.SetDefault("pebble_dir", "./data/history")
	v.SetDefault("history_window_days", 30)
	v.SetDefault("retention_days", 180)

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("cache_ttl", "15m")

	v.SetDefault("providers", "amazon:mock,flipkart:mock,meesho:mock")
	for platform, u := range defaultBrowserURLs {
		v.SetDefault("browser_url_"+platform, u)
	}
	v.SetDefault("chrome_bin", "")
	v.SetDefault("max_concurrency", 3)
	v.SetDefault("rate_limit_ms", 2000)
	v.SetDefault("max_retries", 3)
	v.SetDefault("pages_to_scrape", 1)
	v.SetDefault("max_results", 3)

	v.SetDefault("provider_timeout", "10s")
	v.SetDefault("narrative_timeout", "15s")
	v.SetDefault("sale_calendar_path", "")

	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("gemini_temperature", 0.7)
	v.SetDefault("gemini_base_url", "https://generativelanguage.googleapis.com")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")

	v.SetDefault("csv_output_path", "./output/listings.csv")
	v.SetDefault("http_addr", ":8080")
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// ProviderSpecs parses the configured provider list.
func (c *Config) ProviderSpecs() ([]scraper.Spec, error) {
	return scraper.ParseSpecs(c.Providers, c.BrowserURLs)
}
