package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddrs    []string
	ElasticsearchIndex    string
	ElasticsearchUsername string
	ElasticsearchPassword string
	ElasticsearchAPIKey   string
}

// Ingest holds configuration for one feed -> index ingestion run.
type Ingest struct {
	Common
	FeedURL         string
	FeedTimeout     time.Duration
	UserAgent       string
	IndexPageSize   int
	MinimalSchema   bool
	MediaDir        string
	MediaExt        string
	DownloadTimeout time.Duration
	Language        string
	WhisperBinary   string
	WhisperModel    string
	KeywordMode     string
	KeywordLimit    int
	KeywordMinLen   int
	MaxEpisodes     int
	FailOnError     bool
	KafkaBrokers    []string
	KafkaTopic      string
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// Janitor configures the orphaned media sweep loop.
type Janitor struct {
	MediaDir string
	MediaExt string
	Interval time.Duration
	MaxAge   time.Duration
}

// LoadIngest builds an Ingest config from environment variables.
func LoadIngest() (*Ingest, error) {
	c := &Ingest{
		Common:          loadCommon(),
		FeedURL:         strings.TrimSpace(getEnv("PODCAST_RSS", "")),
		FeedTimeout:     getDuration("FEED_TIMEOUT", "30s"),
		UserAgent:       getEnv("HTTP_USER_AGENT", "podcast-radar/1.0"),
		IndexPageSize:   getInt("INDEX_PAGE_SIZE", 500),
		MinimalSchema:   getBool("INDEX_MINIMAL_SCHEMA", false),
		MediaDir:        getEnv("MEDIA_DIR", "./media"),
		MediaExt:        strings.TrimPrefix(getEnv("MEDIA_EXT", "audio"), "."),
		DownloadTimeout: getDuration("DOWNLOAD_TIMEOUT", "30m"),
		Language:        getEnv("TRANSCRIBE_LANGUAGE", "ja"),
		WhisperBinary:   getEnv("WHISPER_BIN", "whisper"),
		WhisperModel:    getEnv("WHISPER_MODEL", "medium"),
		KeywordMode:     strings.ToLower(getEnv("KEYWORD_MODE", "normal")),
		KeywordLimit:    getInt("KEYWORD_LIMIT", 50),
		KeywordMinLen:   getInt("KEYWORD_MIN_LEN", 3),
		MaxEpisodes:     getInt("INGEST_MAX_EPISODES", 0),
		FailOnError:     getBool("INGEST_FAIL_ON_ERROR", true),
		KafkaBrokers:    splitAndTrim(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "episode_outcomes"),
	}

	if c.FeedURL == "" {
		return nil, fmt.Errorf("PODCAST_RSS is required")
	}
	if err := c.Common.validate(); err != nil {
		return nil, err
	}
	if c.IndexPageSize <= 0 {
		return nil, fmt.Errorf("INDEX_PAGE_SIZE must be positive")
	}
	if c.MediaDir == "" {
		return nil, fmt.Errorf("MEDIA_DIR cannot be empty")
	}
	if c.MediaExt == "" || strings.ContainsAny(c.MediaExt, `/\`) {
		return nil, fmt.Errorf("MEDIA_EXT must be a bare file extension")
	}
	switch c.KeywordMode {
	case "normal", "search", "extended":
	default:
		return nil, fmt.Errorf("KEYWORD_MODE must be one of normal, search, extended")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLen < 0 {
		return nil, fmt.Errorf("KEYWORD_MIN_LEN cannot be negative")
	}
	if c.MaxEpisodes < 0 {
		return nil, fmt.Errorf("INGEST_MAX_EPISODES cannot be negative")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if err := c.Common.validate(); err != nil {
		return nil, err
	}
	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadJanitor builds a Janitor config from environment variables.
func LoadJanitor() (*Janitor, error) {
	c := &Janitor{
		MediaDir: getEnv("MEDIA_DIR", "./media"),
		MediaExt: strings.TrimPrefix(getEnv("MEDIA_EXT", "audio"), "."),
		Interval: getDuration("JANITOR_INTERVAL", "1h"),
		MaxAge:   getDuration("JANITOR_MAX_AGE", "24h"),
	}

	if c.MediaDir == "" {
		return nil, fmt.Errorf("MEDIA_DIR cannot be empty")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("JANITOR_INTERVAL must be positive")
	}
	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("JANITOR_MAX_AGE must be positive")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddrs:    splitAndTrim(getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200")),
		ElasticsearchIndex:    getEnv("ELASTICSEARCH_INDEX", "episodes"),
		ElasticsearchUsername: getEnv("ELASTICSEARCH_USERNAME", ""),
		ElasticsearchPassword: getEnv("ELASTICSEARCH_PASSWORD", ""),
		ElasticsearchAPIKey:   getEnv("ELASTICSEARCH_API_KEY", ""),
	}
}

func (c Common) validate() error {
	if len(c.ElasticsearchAddrs) == 0 {
		return fmt.Errorf("ELASTICSEARCH_ADDR must contain at least one address")
	}
	if c.ElasticsearchAPIKey != "" && c.ElasticsearchUsername != "" {
		return fmt.Errorf("ELASTICSEARCH_API_KEY and ELASTICSEARCH_USERNAME are mutually exclusive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
