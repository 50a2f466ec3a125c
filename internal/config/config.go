package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Quota persistence modes
const (
	// QuotaProcess counts secondary-provider calls for the lifetime of the process
	QuotaProcess = "process"
	// QuotaDaily persists the count on disk and resets it when the calendar day changes
	QuotaDaily = "daily"
)

// Config holds all configuration for the equity collector.
type Config struct {
	// What to collect
	Tickers     []string `mapstructure:"tickers"`
	Start       string   `mapstructure:"start"`
	End         string   `mapstructure:"end"`
	Hybrid      bool     `mapstructure:"hybrid"`
	OutputDir   string   `mapstructure:"output_dir"`
	Concurrency int      `mapstructure:"concurrency"`
	Schedule    string   `mapstructure:"schedule"`

	// Primary provider
	YahooBaseURL           string        `mapstructure:"yahoo_base_url"`
	YahooRequestsPerSecond float64       `mapstructure:"yahoo_requests_per_second"`
	YahooTimeout           time.Duration `mapstructure:"yahoo_timeout"`
	YahooRetries           int           `mapstructure:"yahoo_retries"`

	// Secondary provider
	AlphavantageAPIKey         string        `mapstructure:"alphavantage_api_key"`
	AlphavantageBaseURL        string        `mapstructure:"alphavantage_base_url"`
	AlphavantageDailyLimit     int           `mapstructure:"alphavantage_daily_limit"`
	AlphavantageCallsPerMinute int           `mapstructure:"alphavantage_calls_per_minute"`
	AlphavantagePaceInterval   time.Duration `mapstructure:"alphavantage_pace_interval"`
	AlphavantageTimeout        time.Duration `mapstructure:"alphavantage_timeout"`

	// Daily ceiling bookkeeping
	QuotaPersistence string `mapstructure:"quota_persistence"`
	QuotaPath        string `mapstructure:"quota_path"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// ErrHelp is returned when --help was requested
var ErrHelp = pflag.ErrHelp

// Load reads configuration from, in increasing precedence: defaults, an
// optional config.yaml, a .env file, environment variables and command-line
// flags.
//
// Expected environment variables (all optional except TICKERS when no flag is given):
//   - TICKERS (comma-separated)
//   - ALPHAVANTAGE_API_KEY (defaults to the shared demo key)
//   - HYBRID, START, END, OUTPUT_DIR, CONCURRENCY, SCHEDULE
//   - YAHOO_BASE_URL, ALPHAVANTAGE_BASE_URL (optional, default to production)
//   - QUOTA_PERSISTENCE, QUOTA_PATH
//   - LOG_LEVEL, LOG_FORMAT, LOG_FILE
func Load(args []string) (*Config, error) {
	v := viper.New()

	// .env does not override variables already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v.AutomaticEnv()

	setDefaults(v)

	// Optionally read from config file if it exists
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.equitycollector")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			key = f.Name
		}
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind flag --%s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return nil, bindErr
	}

	// Unmarshal config into struct
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Tickers = normalizeTickers(config.Tickers)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("start", "2016-01-01")
	v.SetDefault("end", "2023-12-31")
	v.SetDefault("hybrid", true)
	v.SetDefault("output_dir", "data/raw")
	v.SetDefault("concurrency", 1)
	v.SetDefault("schedule", "")

	v.SetDefault("yahoo_base_url", "https://query2.finance.yahoo.com")
	v.SetDefault("yahoo_requests_per_second", 2.0)
	v.SetDefault("yahoo_timeout", 30*time.Second)
	v.SetDefault("yahoo_retries", 2)

	v.SetDefault("alphavantage_api_key", "demo")
	v.SetDefault("alphavantage_base_url", "https://www.alphavantage.co/query")
	v.SetDefault("alphavantage_daily_limit", 25)
	v.SetDefault("alphavantage_calls_per_minute", 5)
	v.SetDefault("alphavantage_pace_interval", 12*time.Second)
	v.SetDefault("alphavantage_timeout", 30*time.Second)

	v.SetDefault("quota_persistence", QuotaProcess)
	v.SetDefault("quota_path", ".equitycollector/quota")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")

	// AutomaticEnv only resolves keys viper already knows about
	v.SetDefault("tickers", []string{})
}

// newFlagSet declares the command-line flags. Only flags the user sets
// override the other sources.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("equitycollector", pflag.ContinueOnError)
	fs.StringSlice("tickers", nil, "tickers to collect (comma-separated)")
	fs.String("start", "", "first day of price history (YYYY-MM-DD)")
	fs.String("end", "", "day after the last day of price history (YYYY-MM-DD)")
	fs.Bool("hybrid", true, "supplement missing fields from Alpha Vantage")
	fs.String("output-dir", "", "directory receiving the CSV files and reports")
	fs.Int("concurrency", 0, "tickers collected in parallel")
	fs.String("schedule", "", "cron schedule; empty runs once")
	fs.String("quota-persistence", "", "daily ceiling scope: process or daily")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-file", "", "rotating log file")
	return fs
}

// flagKeys maps flag names to config keys where they differ
var flagKeys = map[string]string{
	"output-dir":        "output_dir",
	"quota-persistence": "quota_persistence",
	"log-level":         "log_level",
	"log-file":          "log_file",
}

func normalizeTickers(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range in {
		for _, t := range strings.Split(item, ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Validate checks every setting and reports all problems at once
func (c *Config) Validate() error {
	var problems []string

	if len(c.Tickers) == 0 {
		problems = append(problems, "TICKERS is required")
	}

	start, serr := time.Parse(time.DateOnly, c.Start)
	if serr != nil {
		problems = append(problems, fmt.Sprintf("START (%q is not YYYY-MM-DD)", c.Start))
	}
	end, eerr := time.Parse(time.DateOnly, c.End)
	if eerr != nil {
		problems = append(problems, fmt.Sprintf("END (%q is not YYYY-MM-DD)", c.End))
	}
	if serr == nil && eerr == nil && !start.Before(end) {
		problems = append(problems, "START must be before END")
	}

	if c.Concurrency < 1 {
		problems = append(problems, "CONCURRENCY must be at least 1")
	}
	if c.YahooRequestsPerSecond <= 0 {
		problems = append(problems, "YAHOO_REQUESTS_PER_SECOND must be positive")
	}
	if c.AlphavantageDailyLimit < 0 {
		problems = append(problems, "ALPHAVANTAGE_DAILY_LIMIT must not be negative")
	}
	if c.AlphavantageCallsPerMinute < 1 {
		problems = append(problems, "ALPHAVANTAGE_CALLS_PER_MINUTE must be at least 1")
	}
	if c.QuotaPersistence != QuotaProcess && c.QuotaPersistence != QuotaDaily {
		problems = append(problems, fmt.Sprintf("QUOTA_PERSISTENCE (%q is not %s or %s)", c.QuotaPersistence, QuotaProcess, QuotaDaily))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}
	return nil
}
