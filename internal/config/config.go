package config

import (
	"slices"
	"strings"
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for ghdependents.
type Config struct {
	Scraper  ScraperConfig  `mapstructure:"scraper"  yaml:"scraper"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"  yaml:"fetcher"`
	Browser  BrowserConfig  `mapstructure:"browser"  yaml:"browser"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Storage  StorageConfig  `mapstructure:"storage"  yaml:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"  yaml:"metrics"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
}

// ScraperConfig controls which listing is traversed and how far.
type ScraperConfig struct {
	Host      string `mapstructure:"host"       yaml:"host"`
	Pages     int    `mapstructure:"pages"      yaml:"pages"`
	PackageID string `mapstructure:"package_id" yaml:"package_id"`
}

// FetcherConfig controls the page fetcher.
type FetcherConfig struct {
	Type            string        `mapstructure:"type"              yaml:"type"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
}

// BrowserConfig controls the headless browser fetcher.
type BrowserConfig struct {
	Headless   bool          `mapstructure:"headless"    yaml:"headless"`
	Stealth    bool          `mapstructure:"stealth"     yaml:"stealth"`
	WaitStable time.Duration `mapstructure:"wait_stable" yaml:"wait_stable"`
	Bin        string        `mapstructure:"bin"         yaml:"bin"`
}

// PipelineConfig controls filtering applied before dependents are stored.
type PipelineConfig struct {
	Dedup         bool     `mapstructure:"dedup"          yaml:"dedup"`
	MinStars      int      `mapstructure:"min_stars"      yaml:"min_stars"`
	ExcludeOwners []string `mapstructure:"exclude_owners" yaml:"exclude_owners"`
}

// StorageConfig controls output/storage.
type StorageConfig struct {
	Type            string `mapstructure:"type"             yaml:"type"`
	OutputPath      string `mapstructure:"output_path"      yaml:"output_path"`
	MongoURI        string `mapstructure:"mongo_uri"        yaml:"mongo_uri"`
	MongoDatabase   string `mapstructure:"mongo_database"   yaml:"mongo_database"`
	MongoCollection string `mapstructure:"mongo_collection" yaml:"mongo_collection"`
}

// Types returns the backends named by Type, which may be a comma list
// such as "jsonl,mongodb". Names are lower-cased and repeats dropped.
func (s *StorageConfig) Types() []string {
	var out []string
	for _, t := range strings.Split(s.Type, ",") {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Has reports whether backend t is among Types.
func (s *StorageConfig) Has(t string) bool {
	return slices.Contains(s.Types(), t)
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// APIConfig controls the HTTP API served by "ghdependents serve".
type APIConfig struct {
	Port     int `mapstructure:"port"      yaml:"port"`
	MaxPages int `mapstructure:"max_pages" yaml:"max_pages"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Scraper: ScraperConfig{
			Host:  "github.com",
			Pages: 1,
		},
		Fetcher: FetcherConfig{
			Type:           "http",
			RequestTimeout: 30 * time.Second,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    10,
		},
		Browser: BrowserConfig{
			Headless:   true,
			Stealth:    true,
			WaitStable: 300 * time.Millisecond,
		},
		Pipeline: PipelineConfig{
			Dedup: true,
		},
		Storage: StorageConfig{
			Type:            "json",
			OutputPath:      "./output",
			MongoDatabase:   "ghdependents",
			MongoCollection: "dependents",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
		API: APIConfig{
			Port:     8080,
			MaxPages: 100,
		},
	}
}
