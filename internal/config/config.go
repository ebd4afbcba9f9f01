// Load JSON config via viper
// Load envs from .env
// Validate before any network call

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Easy Apply filter polarity. The flag is explicit: "exclude" drops Easy
// Apply postings from the output, "only" keeps nothing else.
const (
	PolarityExclude = "exclude"
	PolarityOnly    = "only"
)

var (
	ErrMissingField   = errors.New("config: missing required field")
	ErrMalformedQuery = errors.New("config: malformed search query")
)

// SearchQuery is a named listing URL. The URL must point at the listing
// endpoint; unrecognized query parameters are passed through untouched.
type SearchQuery struct {
	Name        string `mapstructure:"name" json:"name"`
	URL         string `mapstructure:"url" json:"url"`
	Description string `mapstructure:"description" json:"description"`
}

// Config holds one run's settings. Loaded once, immutable afterwards.
type Config struct {
	SearchQueries     []SearchQuery
	MaxPagesPerQuery  int
	FilterEasyApply   bool
	EasyApplyPolarity string
	RequestTimeout    time.Duration
	PageDelay         time.Duration
	MaxAttempts       int
	Concurrency       int
	OutputPath        string
	OutputFormat      string // "csv" or "json"

	// Credentials, straight from the environment.
	Email    string
	Password string
	Cookies  map[string]string
}

// fileConfig mirrors the raw config.json keys.
type fileConfig struct {
	MaxPagesPerSearch int           `mapstructure:"MAX_PAGES_PER_SEARCH"`
	FilterEasyApply   bool          `mapstructure:"FILTER_EASY_APPLY"`
	EasyApplyPolarity string        `mapstructure:"EASY_APPLY_POLARITY"`
	SearchURLs        []SearchQuery `mapstructure:"SEARCH_URLS"`
	RequestTimeout    int           `mapstructure:"REQUEST_TIMEOUT"`
	PageDelay         int           `mapstructure:"PAGE_DELAY"`
	MaxAttempts       int           `mapstructure:"MAX_ATTEMPTS"`
	Concurrency       int           `mapstructure:"CONCURRENCY"`
	CSVFilename       string        `mapstructure:"CSV_FILENAME"`
	OutputFormat      string        `mapstructure:"OUTPUT_FORMAT"`
}

// cookieEnvVars maps environment variable names to the LinkedIn cookie each
// one carries. li_at is the only one required for the cookie auth path.
var cookieEnvVars = map[string]string{
	"LINKEDIN_LI_AT":      "li_at",
	"LINKEDIN_JSESSIONID": "JSESSIONID",
	"LINKEDIN_LIAP":       "liap",
	"LINKEDIN_LIDC":       "lidc",
	"LINKEDIN_BCOOKIE":    "bcookie",
	"LINKEDIN_BSCOOKIE":   "bscookie",
}

// Load reads config.json at path, applies env overrides from .env / the
// process environment, fills defaults and validates.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using system env vars only")
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw fileConfig
	if err := v.Unmarshal(&raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg := &Config{
		SearchQueries:     raw.SearchURLs,
		MaxPagesPerQuery:  raw.MaxPagesPerSearch,
		FilterEasyApply:   raw.FilterEasyApply,
		EasyApplyPolarity: raw.EasyApplyPolarity,
		RequestTimeout:    time.Duration(raw.RequestTimeout) * time.Second,
		PageDelay:         time.Duration(raw.PageDelay) * time.Second,
		MaxAttempts:       raw.MaxAttempts,
		Concurrency:       raw.Concurrency,
		OutputPath:        raw.CSVFilename,
		OutputFormat:      strings.ToLower(raw.OutputFormat),
		Email:             os.Getenv("LINKEDIN_EMAIL"),
		Password:          os.Getenv("LINKEDIN_PASSWORD"),
		Cookies:           map[string]string{},
	}

	for envVar, cookie := range cookieEnvVars {
		if val := os.Getenv(envVar); val != "" {
			cfg.Cookies[cookie] = val
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.EasyApplyPolarity == "" {
		c.EasyApplyPolarity = PolarityExclude
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.PageDelay == 0 {
		c.PageDelay = 2 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Concurrency == 0 {
		c.Concurrency = 3
	}
	if c.OutputPath == "" {
		c.OutputPath = "jobs.csv"
	}
	if c.OutputFormat == "" {
		c.OutputFormat = "csv"
	}
}

// Validate enforces the startup contract: it runs before any network call
// and a failure is fatal for the run.
func (c *Config) Validate() error {
	if len(c.SearchQueries) == 0 {
		return fmt.Errorf("%w: SEARCH_URLS", ErrMissingField)
	}
	if c.MaxPagesPerQuery < 1 {
		return fmt.Errorf("%w: MAX_PAGES_PER_SEARCH must be >= 1", ErrMissingField)
	}
	for i, q := range c.SearchQueries {
		if q.URL == "" {
			return fmt.Errorf("%w: SEARCH_URLS[%d] has no url", ErrMalformedQuery, i)
		}
		u, err := url.Parse(q.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: SEARCH_URLS[%d] url %q", ErrMalformedQuery, i, q.URL)
		}
	}
	if c.EasyApplyPolarity != PolarityExclude && c.EasyApplyPolarity != PolarityOnly {
		return fmt.Errorf("%w: EASY_APPLY_POLARITY must be %q or %q",
			ErrMalformedQuery, PolarityExclude, PolarityOnly)
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" {
		return fmt.Errorf("%w: OUTPUT_FORMAT must be csv or json", ErrMalformedQuery)
	}
	return nil
}

// HasCookieAuth reports whether the cookie auth path is possible.
// li_at alone is enough to attempt the probe.
func (c *Config) HasCookieAuth() bool {
	return c.Cookies["li_at"] != ""
}

// HasCredentialAuth reports whether the login auth path is possible.
func (c *Config) HasCredentialAuth() bool {
	return c.Email != "" && c.Password != ""
}
