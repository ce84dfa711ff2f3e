package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Gallery   GalleryConfig
	Embedding EmbeddingConfig
	Identity  IdentityConfig
	Search    SearchConfig
	Database  DatabaseConfig
	Web       WebConfig
	Log       LogConfig
}

type GalleryConfig struct {
	Dir       string // local working directory mirrored from the remote gallery
	Bucket    string // GCS bucket holding the reference gallery
	Prefix    string // object prefix inside the bucket (e.g., "gallery/")
	RemoteDir string // directory used as the remote gallery when no bucket is configured
}

// HasRemote reports whether a remote gallery source is configured.
func (c *GalleryConfig) HasRemote() bool {
	return c.Bucket != "" || c.RemoteDir != ""
}

// ObjectPrefix returns the prefix normalized to end with a slash, or "" for the bucket root.
func (c *GalleryConfig) ObjectPrefix() string {
	p := strings.Trim(c.Prefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

type EmbeddingConfig struct {
	URL string // EMBEDDING_URL, defaults to http://localhost:8000
}

type IdentityConfig struct {
	Threshold  float64 // minimum confidence for a named verdict; 0 disables the gate
	MatchLimit int     // number of nearest neighbours requested per probe
}

type SearchConfig struct {
	APIKey   string
	EngineID string
	Referer  string // sent as Referer header, required by key restrictions on some CSE keys
}

// Enabled reports whether the search provider has credentials.
func (c *SearchConfig) Enabled() bool {
	return c.APIKey != "" && c.EngineID != ""
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL for the verdict audit log (optional)
	MaxOpenConns int    // Maximum open connections (default 10)
	MaxIdleConns int    // Maximum idle connections (default 2)
}

type WebConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	AllowedOrigins []string // CORS origins; "*" allows any
}

type LogConfig struct {
	Level  string
	Format string // "text" or "json"
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in [0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("30s", "2m").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping blank items.
func envList(key string, defaultVal []string) []string {
	var items []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultVal
	}
	return items
}

func Load() *Config {
	return &Config{
		Gallery: GalleryConfig{
			Dir:       envString("GALLERY_DIR", "db_faces"),
			Bucket:    os.Getenv("GALLERY_BUCKET"),
			Prefix:    envString("GALLERY_PREFIX", "db_faces/"),
			RemoteDir: os.Getenv("GALLERY_REMOTE_DIR"),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", "http://localhost:8000"),
		},
		Identity: IdentityConfig{
			Threshold:  envFloat("IDENTITY_THRESHOLD", 0.65),
			MatchLimit: envInt("MATCH_LIMIT", 5),
		},
		Search: SearchConfig{
			APIKey:   os.Getenv("GOOGLE_CSE_API_KEY"),
			EngineID: os.Getenv("GOOGLE_CSE_ID"),
			Referer:  os.Getenv("GOOGLE_CSE_REFERER"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 2),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			RequestTimeout: envDuration("REQUEST_TIMEOUT", 2*time.Minute),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
	}
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Gallery.Dir) == "" {
		return errors.New("GALLERY_DIR must not be empty")
	}
	if c.Gallery.Bucket != "" && c.Gallery.RemoteDir != "" {
		return errors.New("GALLERY_BUCKET and GALLERY_REMOTE_DIR are mutually exclusive")
	}
	if c.embeddingIsSelf() {
		return fmt.Errorf("EMBEDDING_URL %s points at this server's own port %d", c.Embedding.URL, c.Web.Port)
	}
	return nil
}

// embeddingIsSelf reports whether the embedding URL resolves to the address
// the web server listens on.
func (c *Config) embeddingIsSelf() bool {
	u, err := url.Parse(c.Embedding.URL)
	if err != nil || u.Host == "" {
		return false
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	if port != strconv.Itoa(c.Web.Port) {
		return false
	}
	host := u.Hostname()
	switch host {
	case "localhost", "127.0.0.1", "::1", "0.0.0.0":
		return true
	}
	return host == c.Web.Host
}
