package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets in the YAML file.
const (
	EnvPostgresDSN   = "EVENTFEED_PG_DSN"
	EnvRedisPassword = "EVENTFEED_REDIS_PASSWORD"
	EnvFirecrawlKey  = "FIRECRAWL_API_KEY"
	EnvKafkaBrokers  = "EVENTFEED_KAFKA_BROKERS"
)

type StoreConfig struct {
	Type      string `yaml:"type"`       // json | postgres
	Path      string `yaml:"path"`       // json collection file, e.g. data/events.json
	DSN       string `yaml:"dsn"`        // postgres; EVENTFEED_PG_DSN wins
	Table     string `yaml:"table"`      // default: events
	StatePath string `yaml:"state_path"` // last run summary, e.g. data/run-state.json
}

type FirecrawlConfig struct {
	APIURL string `yaml:"api_url"` // default: https://api.firecrawl.dev
	APIKey string `yaml:"api_key"` // FIRECRAWL_API_KEY wins
}

type FetchConfig struct {
	Mode      string        `yaml:"mode"` // http | colly | firecrawl
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	// Pacing & retries
	RatePerSecond float64       `yaml:"rate_per_second"` // e.g. 1.0 = 1 req/sec
	Burst         int           `yaml:"burst"`           // token bucket burst
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       time.Duration `yaml:"backoff"`     // initial backoff (e.g. 500ms)
	MaxBackoff    time.Duration `yaml:"max_backoff"` // cap (e.g. 10s)
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`

	Firecrawl FirecrawlConfig `yaml:"firecrawl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`     // localhost:6379
	Password string `yaml:"password"` // EVENTFEED_REDIS_PASSWORD wins
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"` // key prefix, default: eventfeed:page:
}

type CacheConfig struct {
	Type    string        `yaml:"type"` // none | memory | redis
	TTL     time.Duration `yaml:"ttl"`  // recent-fetch guard, e.g. 6h
	MaxKeys int           `yaml:"max_keys"`
	Redis   RedisConfig   `yaml:"redis"`
}

type BatchConfig struct {
	Size       int           `yaml:"size"`        // fetches per batch
	ItemDelay  time.Duration `yaml:"item_delay"`  // stagger between fetch starts
	BatchDelay time.Duration `yaml:"batch_delay"` // pause between batches
	Scope      string        `yaml:"scope"`       // all | incomplete | upcoming
	Limit      int           `yaml:"limit"`       // 0 = no cap
}

type GateConfig struct {
	PriceCeiling float64       `yaml:"price_ceiling"` // 0 disables the check
	PriceMode    string        `yaml:"price_mode"`    // reject | flag
	MaxPast      time.Duration `yaml:"max_past"`
	MaxFuture    time.Duration `yaml:"max_future"`
	Dedupe       string        `yaml:"dedupe"` // first | latest
}

type PolicyConfig struct {
	CancelNonLatin *bool   `yaml:"cancel_non_latin"` // default true
	LatinRatio     float64 `yaml:"latin_ratio"`      // default 0.5
}

// CancelNonLatinEnabled resolves the toggle with its default.
func (p PolicyConfig) CancelNonLatinEnabled() bool {
	return p.CancelNonLatin == nil || *p.CancelNonLatin
}

type DatesConfig struct {
	Zoneless string `yaml:"zoneless"` // civil | utc
}

type SanitizeConfig struct {
	MinDescription      int               `yaml:"min_description"`
	Placeholders        []string          `yaml:"placeholders"` // extra placeholder descriptions
	FallbackDescription string            `yaml:"fallback_description"`
	FallbackImage       string            `yaml:"fallback_image"`
	CategoryImages      map[string]string `yaml:"category_images"` // category -> image URL
	MaxTitle            int               `yaml:"max_title"`
}

type KeywordRule struct {
	When     []string `yaml:"when"`     // any of these substrings (case-insensitive) in title/description
	Category string   `yaml:"category"` // category to add when matched
}

type RegexRule struct {
	Field    string `yaml:"field"` // title | description | url | location
	Expr     string `yaml:"expr"`
	Category string `yaml:"category"`
}

type CategoriesConfig struct {
	Keywords []KeywordRule `yaml:"keywords"`
	Regex    []RegexRule   `yaml:"regex"`
	Fallback string        `yaml:"fallback"` // default: Other
}

type LokiConfig struct {
	URL       string        `yaml:"url"`       // http://loki:3100
	TenantID  string        `yaml:"tenant_id"` // optional multi-tenancy
	Job       string        `yaml:"job"`       // label value, default: eventfeed
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type VictoriaConfig struct {
	URL       string        `yaml:"url"` // http://victoria-metrics:8428
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"` // EVENTFEED_KAFKA_BROKERS (comma separated) wins
	Topic   string   `yaml:"topic"`
}

type ReportsConfig struct {
	Log      bool           `yaml:"log"`     // one JSON line per report on stdout log
	Dir      string         `yaml:"dir"`     // export directory; empty disables file export
	Formats  []string       `yaml:"formats"` // json | csv | xlsx
	Loki     LokiConfig     `yaml:"loki"`
	Victoria VictoriaConfig `yaml:"victoria"`
	Kafka    KafkaConfig    `yaml:"kafka"`
}

type MetricsConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"` // standalone /metrics listener for batch modes, e.g. :9108
}

type APIConfig struct {
	Listen       string        `yaml:"listen"`
	AllowOrigins []string      `yaml:"allow_origins"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	MaxPageSize  int           `yaml:"max_page_size"`
}

type DiagConfig struct {
	Capacity int `yaml:"capacity"`
}

type Config struct {
	Store      StoreConfig      `yaml:"store"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Cache      CacheConfig      `yaml:"cache"`
	Batch      BatchConfig      `yaml:"batch"`
	Gate       GateConfig       `yaml:"gate"`
	Policy     PolicyConfig     `yaml:"policy"`
	Dates      DatesConfig      `yaml:"dates"`
	Sanitize   SanitizeConfig   `yaml:"sanitize"`
	Categories CategoriesConfig `yaml:"categories"`
	Reports    ReportsConfig    `yaml:"reports"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	API        APIConfig        `yaml:"api"`
	Diag       DiagConfig       `yaml:"diag"`
}

var ErrInvalid = errors.New("invalid config")

// Load reads a .env file next to the process (if any), then the YAML file,
// applies environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	// a missing .env is the normal case outside development
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse is Load without the filesystem.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default returns a configuration with every default applied and no file.
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Store.DSN = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := os.Getenv(EnvFirecrawlKey); v != "" {
		c.Fetch.Firecrawl.APIKey = v
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		c.Reports.Kafka.Brokers = brokers
	}
}

func (c *Config) applyDefaults() {
	// Store
	if c.Store.Type == "" {
		c.Store.Type = "json"
	}
	if c.Store.Path == "" {
		c.Store.Path = "data/events.json"
	}
	if c.Store.Table == "" {
		c.Store.Table = "events"
	}
	if c.Store.StatePath == "" {
		c.Store.StatePath = "data/run-state.json"
	}
	// Fetch
	if c.Fetch.Mode == "" {
		c.Fetch.Mode = "http"
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 20 * time.Second
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "eventfeed/1.0 (+maintenance)"
	}
	if c.Fetch.RatePerSecond == 0 {
		c.Fetch.RatePerSecond = 2
	}
	if c.Fetch.Burst == 0 {
		c.Fetch.Burst = 2
	}
	if c.Fetch.MaxRetries == 0 {
		c.Fetch.MaxRetries = 3
	}
	if c.Fetch.Backoff == 0 {
		c.Fetch.Backoff = 500 * time.Millisecond
	}
	if c.Fetch.MaxBackoff == 0 {
		c.Fetch.MaxBackoff = 10 * time.Second
	}
	if c.Fetch.MaxBodyBytes == 0 {
		c.Fetch.MaxBodyBytes = 8 << 20
	}
	if c.Fetch.Firecrawl.APIURL == "" {
		c.Fetch.Firecrawl.APIURL = "https://api.firecrawl.dev"
	}
	// Cache
	if c.Cache.Type == "" {
		c.Cache.Type = "none"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 6 * time.Hour
	}
	if c.Cache.MaxKeys == 0 {
		c.Cache.MaxKeys = 5000
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = "localhost:6379"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "eventfeed:page:"
	}
	// Batch
	if c.Batch.Size == 0 {
		c.Batch.Size = 5
	}
	if c.Batch.ItemDelay == 0 {
		c.Batch.ItemDelay = 500 * time.Millisecond
	}
	if c.Batch.BatchDelay == 0 {
		c.Batch.BatchDelay = 3 * time.Second
	}
	if c.Batch.Scope == "" {
		c.Batch.Scope = "incomplete"
	}
	// Gate
	if c.Gate.PriceMode == "" {
		c.Gate.PriceMode = "reject"
	}
	if c.Gate.MaxPast == 0 {
		c.Gate.MaxPast = 24 * time.Hour
	}
	if c.Gate.MaxFuture == 0 {
		c.Gate.MaxFuture = 365 * 24 * time.Hour
	}
	if c.Gate.Dedupe == "" {
		c.Gate.Dedupe = "latest"
	}
	// Policy & parsing
	if c.Policy.LatinRatio == 0 {
		c.Policy.LatinRatio = 0.5
	}
	if c.Dates.Zoneless == "" {
		c.Dates.Zoneless = "civil"
	}
	if c.Sanitize.MinDescription == 0 {
		c.Sanitize.MinDescription = 20
	}
	if c.Sanitize.MaxTitle == 0 {
		c.Sanitize.MaxTitle = 200
	}
	if c.Categories.Fallback == "" {
		c.Categories.Fallback = "Other"
	}
	// Reporting
	if c.Reports.Loki.Job == "" {
		c.Reports.Loki.Job = "eventfeed"
	}
	if c.Reports.Loki.Timeout == 0 {
		c.Reports.Loki.Timeout = 10 * time.Second
	}
	if c.Reports.Victoria.Timeout == 0 {
		c.Reports.Victoria.Timeout = 10 * time.Second
	}
	if c.Reports.Kafka.Topic == "" {
		c.Reports.Kafka.Topic = "eventfeed.reports"
	}
	// API
	if c.API.Listen == "" {
		c.API.Listen = ":8080"
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 5 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		c.API.WriteTimeout = 10 * time.Second
	}
	if c.API.MaxPageSize == 0 {
		c.API.MaxPageSize = 200
	}
	if c.Diag.Capacity == 0 {
		c.Diag.Capacity = 500
	}
}

// Validate reports the first problem found.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "json":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: store.type=postgres needs store.dsn or %s", ErrInvalid, EnvPostgresDSN)
		}
	default:
		return fmt.Errorf("%w: unknown store.type %q", ErrInvalid, c.Store.Type)
	}
	switch c.Fetch.Mode {
	case "http", "colly":
	case "firecrawl":
		if c.Fetch.Firecrawl.APIKey == "" {
			return fmt.Errorf("%w: fetch.mode=firecrawl needs %s", ErrInvalid, EnvFirecrawlKey)
		}
	default:
		return fmt.Errorf("%w: unknown fetch.mode %q", ErrInvalid, c.Fetch.Mode)
	}
	switch c.Cache.Type {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("%w: unknown cache.type %q", ErrInvalid, c.Cache.Type)
	}
	switch c.Batch.Scope {
	case "all", "incomplete", "upcoming":
	default:
		return fmt.Errorf("%w: unknown batch.scope %q", ErrInvalid, c.Batch.Scope)
	}
	if c.Batch.Size < 1 {
		return fmt.Errorf("%w: batch.size must be positive", ErrInvalid)
	}
	switch c.Gate.PriceMode {
	case "reject", "flag":
	default:
		return fmt.Errorf("%w: unknown gate.price_mode %q", ErrInvalid, c.Gate.PriceMode)
	}
	switch c.Gate.Dedupe {
	case "first", "latest":
	default:
		return fmt.Errorf("%w: unknown gate.dedupe %q", ErrInvalid, c.Gate.Dedupe)
	}
	if c.Gate.PriceCeiling < 0 {
		return fmt.Errorf("%w: gate.price_ceiling must not be negative", ErrInvalid)
	}
	switch c.Dates.Zoneless {
	case "civil", "local", "utc":
	default:
		return fmt.Errorf("%w: unknown dates.zoneless %q", ErrInvalid, c.Dates.Zoneless)
	}
	for _, f := range c.Reports.Formats {
		switch f {
		case "json", "csv", "xlsx":
		default:
			return fmt.Errorf("%w: unknown report format %q", ErrInvalid, f)
		}
	}
	return nil
}
