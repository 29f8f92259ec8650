// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Headless    HeadlessConfig    `mapstructure:"headless"`
	Chunker     ChunkerConfig     `mapstructure:"chunker"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding"`
	Completion  CompletionConfig  `mapstructure:"completion"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	Publisher   PublisherConfig   `mapstructure:"publisher"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs listing fetches, downloads and crawl defaults.
type CrawlerConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	UserAgent        string        `mapstructure:"user_agent"`
	IgnoreRobots     bool          `mapstructure:"ignore_robots"`
	ListingConnect   time.Duration `mapstructure:"listing_connect_timeout"`
	ListingTimeout   time.Duration `mapstructure:"listing_timeout"`
	DownloadConnect  time.Duration `mapstructure:"download_connect_timeout"`
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`
	DownloadRPS      float64       `mapstructure:"download_rps"`
	DownloadBurst    int           `mapstructure:"download_burst"`
	TempDir          string        `mapstructure:"temp_dir"`
	Years            []int         `mapstructure:"years"`
	MaxItemsPerPage  int           `mapstructure:"max_items_per_page"`
	EventBufferSize  int           `mapstructure:"event_buffer_size"`
	ProgressBuffer   int           `mapstructure:"progress_buffer"`
	ProgressSinkWait time.Duration `mapstructure:"progress_sink_timeout"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	MaxParallel     int           `mapstructure:"max_parallel"`
	NavTimeout      time.Duration `mapstructure:"nav_timeout"`
	Settle          time.Duration `mapstructure:"settle"`
	PromotionThresh int           `mapstructure:"promotion_threshold"`
}

// ChunkerConfig bounds chunk windows in whitespace tokens.
type ChunkerConfig struct {
	MaxTokens     int `mapstructure:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens"`
}

// EmbeddingConfig points at an OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	Dimension int    `mapstructure:"dimension"`
}

// CompletionConfig points at a llama.cpp compatible completion server.
type CompletionConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
}

// VectorStoreConfig selects and configures the vector backend.
type VectorStoreConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Qdrant   QdrantConfig   `mapstructure:"qdrant"`
}

// PostgresConfig holds pgvector settings.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// QdrantConfig holds Qdrant REST settings.
type QdrantConfig struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Collection string        `mapstructure:"collection"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ArchiveConfig controls where merged source PDFs are kept.
type ArchiveConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Backend string           `mapstructure:"backend"`
	Prefix  string           `mapstructure:"prefix"`
	Local   LocalArchiveConf `mapstructure:"local"`
	GCS     GCSArchiveConf   `mapstructure:"gcs"`
}

// LocalArchiveConf configures the filesystem archive.
type LocalArchiveConf struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSArchiveConf configures the bucket archive.
type GCSArchiveConf struct {
	Bucket string `mapstructure:"bucket"`
}

// PublisherConfig holds metadata for ingestion notifications.
type PublisherConfig struct {
	Backend   string `mapstructure:"backend"`
	Topic     string `mapstructure:"topic"`
	ProjectID string `mapstructure:"project_id"`
}

// RetrievalConfig tunes query answering.
type RetrievalConfig struct {
	DefaultTopK  int `mapstructure:"default_top_k"`
	ContextChars int `mapstructure:"context_chars"`
	SnippetChars int `mapstructure:"snippet_chars"`
}

// Load builds a Config from disk/environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SIEPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.request_timeout", 15*time.Minute)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("cors.enabled", true)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("logging.development", false)
	v.SetDefault("crawler.base_url", "https://siepe.ufpr.br")
	v.SetDefault("crawler.user_agent", "siepe-rag/0.1")
	v.SetDefault("crawler.ignore_robots", true)
	v.SetDefault("crawler.listing_connect_timeout", 30*time.Second)
	v.SetDefault("crawler.listing_timeout", 90*time.Second)
	v.SetDefault("crawler.download_connect_timeout", 10*time.Second)
	v.SetDefault("crawler.download_timeout", 60*time.Second)
	v.SetDefault("crawler.download_rps", 2.0)
	v.SetDefault("crawler.download_burst", 2)
	v.SetDefault("crawler.temp_dir", "")
	v.SetDefault("crawler.max_items_per_page", 0)
	v.SetDefault("crawler.event_buffer_size", 256)
	v.SetDefault("crawler.progress_buffer", 1024)
	v.SetDefault("crawler.progress_sink_timeout", 2*time.Second)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout", 45*time.Second)
	v.SetDefault("headless.settle", 0)
	v.SetDefault("headless.promotion_threshold", 10)
	v.SetDefault("chunker.max_tokens", 800)
	v.SetDefault("chunker.overlap_tokens", 50)
	v.SetDefault("embedding.base_url", "http://localhost:8081/v1")
	v.SetDefault("embedding.model", "intfloat/multilingual-e5-base")
	v.SetDefault("embedding.dimension", 768)
	v.SetDefault("completion.base_url", "http://localhost:8080")
	v.SetDefault("completion.timeout", 600*time.Second)
	v.SetDefault("completion.max_tokens", 512)
	v.SetDefault("completion.temperature", 0.2)
	v.SetDefault("vectorstore.driver", "memory")
	v.SetDefault("vectorstore.postgres.table", "articles")
	v.SetDefault("vectorstore.postgres.max_conns", 4)
	v.SetDefault("vectorstore.qdrant.url", "http://localhost:6333")
	v.SetDefault("vectorstore.qdrant.collection", "articles")
	v.SetDefault("vectorstore.qdrant.timeout", 30*time.Second)
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.backend", "memory")
	v.SetDefault("archive.prefix", "sources")
	v.SetDefault("publisher.backend", "none")
	v.SetDefault("publisher.topic", "siepe-ingested")
	v.SetDefault("retrieval.default_top_k", 3)
	v.SetDefault("retrieval.context_chars", 1200)
	v.SetDefault("retrieval.snippet_chars", 200)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		return fmt.Errorf("auth.token must be set when auth is enabled")
	}
	if c.Crawler.BaseURL == "" {
		return fmt.Errorf("crawler.base_url is required")
	}
	if c.Crawler.MaxItemsPerPage < 0 {
		return fmt.Errorf("crawler.max_items_per_page must be >= 0")
	}
	if c.Crawler.DownloadRPS <= 0 {
		return fmt.Errorf("crawler.download_rps must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Chunker.MaxTokens <= 0 {
		return fmt.Errorf("chunker.max_tokens must be > 0")
	}
	if c.Chunker.OverlapTokens < 0 || c.Chunker.OverlapTokens >= c.Chunker.MaxTokens {
		return fmt.Errorf("chunker.overlap_tokens must be in [0, max_tokens)")
	}
	if c.Embedding.BaseURL == "" || c.Embedding.Model == "" {
		return fmt.Errorf("embedding.base_url and embedding.model are required")
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must be >= 0")
	}
	if c.Completion.BaseURL == "" {
		return fmt.Errorf("completion.base_url is required")
	}
	switch c.VectorStore.Driver {
	case "memory":
	case "postgres":
		if c.VectorStore.Postgres.DSN == "" {
			return fmt.Errorf("vectorstore.postgres.dsn is required for the postgres driver")
		}
		if c.Embedding.Dimension <= 0 {
			return fmt.Errorf("embedding.dimension must be > 0 for the postgres driver")
		}
	case "qdrant":
		if c.VectorStore.Qdrant.URL == "" {
			return fmt.Errorf("vectorstore.qdrant.url is required for the qdrant driver")
		}
	default:
		return fmt.Errorf("vectorstore.driver %q is not supported", c.VectorStore.Driver)
	}
	if c.Archive.Enabled {
		switch c.Archive.Backend {
		case "memory":
		case "local":
			if c.Archive.Local.BaseDir == "" {
				return fmt.Errorf("archive.local.base_dir is required for the local backend")
			}
		case "gcs":
			if c.Archive.GCS.Bucket == "" {
				return fmt.Errorf("archive.gcs.bucket is required for the gcs backend")
			}
		default:
			return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
		}
	}
	switch c.Publisher.Backend {
	case "none", "memory":
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			return fmt.Errorf("publisher.project_id and publisher.topic are required for pubsub")
		}
	default:
		return fmt.Errorf("publisher.backend %q is not supported", c.Publisher.Backend)
	}
	if c.Retrieval.DefaultTopK <= 0 {
		return fmt.Errorf("retrieval.default_top_k must be > 0")
	}
	return nil
}
