// Package yaml loads sigmatch configuration and catalogs from YAML files.
package yaml

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/fwojciec/sigmatch"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	DatabaseEnv       = "SIGMATCH_DB"
	GeminiAPIKeyEnv   = "GEMINI_API_KEY"
	SearchAPIKeyEnv   = "SIGMATCH_SEARCH_API_KEY"
	SearchEndpointEnv = "SIGMATCH_SEARCH_ENDPOINT"
	LogLevelEnv       = "SIGMATCH_LOG_LEVEL"
)

// Config holds every tunable of the pipeline.
type Config struct {
	LogLevel  string          `yaml:"logLevel"`
	Database  DatabaseConfig  `yaml:"database"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Search    SearchConfig    `yaml:"search"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Matching  MatchingConfig  `yaml:"matching"`
	Selection SelectionConfig `yaml:"selection"`
	Decay     DecayConfig     `yaml:"decay"`
	Schedule  ScheduleConfig  `yaml:"schedule"`

	// Path is the file the configuration was read from, empty when only
	// defaults and environment overrides apply.
	Path string `yaml:"-"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// DiscoveryConfig tunes the discovery engine.
type DiscoveryConfig struct {
	SearchBatchSize   int           `yaml:"searchBatchSize"`
	BatchPause        time.Duration `yaml:"batchPause"`
	MaxSearchSources  int           `yaml:"maxSearchSources"`
	DailySearchQuota  int           `yaml:"dailySearchQuota"`
	FailureCeiling    int           `yaml:"failureCeiling"`
	FeedTimeout       time.Duration `yaml:"feedTimeout"`
	SearchTimeout     time.Duration `yaml:"searchTimeout"`
	MaxItemsPerSource int           `yaml:"maxItemsPerSource"`
	MaxDuration       time.Duration `yaml:"maxDuration"`
	SeenCapacity      uint          `yaml:"seenCapacity"`
	SeenFalsePositive float64       `yaml:"seenFalsePositive"`
}

// SearchConfig configures the search-API provider.
type SearchConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	APIKey    string  `yaml:"apiKey"`
	PageSize  int     `yaml:"pageSize"`
	RateLimit float64 `yaml:"rateLimit"` // requests per second, 0 is unlimited
}

// ScrapeConfig tunes the content fetch stage.
type ScrapeConfig struct {
	Concurrency  int           `yaml:"concurrency"`
	BatchSize    int           `yaml:"batchSize"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	FetchTimeout time.Duration `yaml:"fetchTimeout"`
	DomainRate   float64       `yaml:"domainRate"` // requests per second per host
	Browser      bool          `yaml:"browser"`
	MaxBodyBytes int64         `yaml:"maxBodyBytes"`

	// Browser recycling; see the rod package.
	BrowserRecycleAfter int `yaml:"browserRecycleAfter"`
	BrowserFailureLimit int `yaml:"browserFailureLimit"`
}

// EmbeddingConfig configures the embedding provider and worker.
type EmbeddingConfig struct {
	APIKey       string        `yaml:"apiKey"`
	Model        string        `yaml:"model"`
	Dimensions   int           `yaml:"dimensions"`
	BatchSize    int           `yaml:"batchSize"`
	MaxBatches   int           `yaml:"maxBatches"`
	Window       time.Duration `yaml:"window"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
}

// MatchingConfig tunes the target matcher.
type MatchingConfig struct {
	Thresholds     sigmatch.ThresholdTable `yaml:"thresholds"`
	Lookback       time.Duration           `yaml:"lookback"`
	PerTargetLimit int                     `yaml:"perTargetLimit"`
	MatchTTL       time.Duration           `yaml:"matchTTL"`
}

// SelectionConfig tunes the article selector.
type SelectionConfig struct {
	CandidatePool int           `yaml:"candidatePool"`
	Floor         float64       `yaml:"floor"`
	PerSourceCap  int           `yaml:"perSourceCap"`
	OutputCap     int           `yaml:"outputCap"`
	Window        time.Duration `yaml:"window"`
}

// DecayConfig tunes the salience decay engine.
type DecayConfig struct {
	Floor      float64            `yaml:"floor"`
	ClassRates map[string]float64 `yaml:"classRates"`
}

// ScheduleConfig sets how often the scheduler runs the pipeline.
type ScheduleConfig struct {
	Interval      time.Duration `yaml:"interval"`
	DecayInterval time.Duration `yaml:"decayInterval"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Database: DatabaseConfig{Path: "sigmatch.db"},
		Discovery: DiscoveryConfig{
			SearchBatchSize:   10,
			BatchPause:        2 * time.Second,
			MaxSearchSources:  50,
			DailySearchQuota:  100,
			FailureCeiling:    10,
			FeedTimeout:       10 * time.Second,
			SearchTimeout:     15 * time.Second,
			MaxItemsPerSource: 100,
			SeenCapacity:      100000,
			SeenFalsePositive: 0.001,
		},
		Search: SearchConfig{PageSize: 20, RateLimit: 5},
		Scrape: ScrapeConfig{
			Concurrency:  5,
			BatchSize:    100,
			MaxAttempts:  3,
			FetchTimeout: 15 * time.Second,
			DomainRate:   1,
			MaxBodyBytes: 5 << 20,

			BrowserRecycleAfter: 75,
			BrowserFailureLimit: 3,
		},
		Embedding: EmbeddingConfig{
			Model:        "gemini-embedding-001",
			Dimensions:   768,
			BatchSize:    100,
			MaxBatches:   10,
			Window:       24 * time.Hour,
			BatchTimeout: 60 * time.Second,
		},
		Matching: MatchingConfig{
			Thresholds:     sigmatch.DefaultThresholds(),
			Lookback:       24 * time.Hour,
			PerTargetLimit: 50,
			MatchTTL:       sigmatch.DefaultMatchTTL,
		},
		Selection: SelectionConfig{
			CandidatePool: 200,
			Floor:         0.32,
			PerSourceCap:  8,
			OutputCap:     50,
			Window:        24 * time.Hour,
		},
		Decay: DecayConfig{
			Floor: sigmatch.SalienceFloor,
			ClassRates: map[string]float64{
				"default":     0.005,
				"brand_asset": 0.002,
			},
		},
		Schedule: ScheduleConfig{
			Interval:      time.Hour,
			DecayInterval: 24 * time.Hour,
		},
	}
}

// LoadConfig reads the configuration file at path over the defaults and
// applies environment overrides. A missing file yields the defaults with
// Path left empty; a malformed file is an error. A nil getenv reads the
// process environment.
func LoadConfig(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, sigmatch.Errorf(sigmatch.EINVALID, "parse config %s: %v", path, err)
			}
			cfg.Path = path
		}
	}

	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(DatabaseEnv); v != "" {
		c.Database.Path = v
	}
	if v := getenv(GeminiAPIKeyEnv); v != "" {
		c.Embedding.APIKey = v
	}
	if v := getenv(SearchAPIKeyEnv); v != "" {
		c.Search.APIKey = v
	}
	if v := getenv(SearchEndpointEnv); v != "" {
		c.Search.Endpoint = v
	}
	if v := getenv(LogLevelEnv); v != "" {
		c.LogLevel = v
	}
}

// Validate returns an error if the configuration contains invalid values.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return sigmatch.Errorf(sigmatch.EINVALID, "database path required")
	}
	for t := range c.Matching.Thresholds.ByType {
		if !t.Valid() {
			return sigmatch.Errorf(sigmatch.EINVALID, "unknown target type %q in thresholds", t)
		}
	}
	if c.Embedding.BatchSize > sigmatch.MaxEmbedBatch {
		return sigmatch.Errorf(sigmatch.EINVALID, "embedding batch size %d exceeds %d", c.Embedding.BatchSize, sigmatch.MaxEmbedBatch)
	}
	if c.Decay.Floor < sigmatch.SalienceFloor {
		return sigmatch.Errorf(sigmatch.EINVALID, "decay floor %.2f below %.2f", c.Decay.Floor, sigmatch.SalienceFloor)
	}
	for class, rate := range c.Decay.ClassRates {
		if rate <= 0 || rate >= 1 {
			return sigmatch.Errorf(sigmatch.EINVALID, "decay rate %.4f for %q out of range", rate, class)
		}
	}
	return nil
}
