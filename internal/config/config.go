// Package config loads pipeline settings from environment variables.
// Validation failures abort the process before any work starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	MongoURI      string
	MongoDatabase string

	KafkaBrokers           []string
	KafkaNotificationTopic string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Locality bounds which interests a message can match when the source
	// document does not carry its own.
	DefaultLocality string

	// IngestBatchSize caps how many unprocessed documents one run consumes.
	IngestBatchSize int

	// CrawlerSources maps source identifiers to file-backed document feeds,
	// parsed from "name=path,name=path" pairs.
	CrawlerSources map[string]string

	// Reverse geocoding enrichment (disabled unless GEOCODE_URL is set).
	GeocodeEnabled   bool
	GeocodeURL       string
	GeocodeTimeout   time.Duration
	GeocodeCacheSize int
}

// Load reads configuration from environment variables, applying defaults
// where unset. Every missing or invalid key is reported in one error.
func Load() (*Config, error) {
	var problems []string

	cfg := &Config{
		MongoURI:               os.Getenv("MONGO_URI"),
		MongoDatabase:          envOrDefault("MONGO_DATABASE", "oboapp"),
		KafkaBrokers:           splitList(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaNotificationTopic: envOrDefault("KAFKA_NOTIFICATIONS_TOPIC", "device-notifications"),
		HTTPAddr:               envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:               envOrDefault("LOG_LEVEL", "info"),
		LogFormat:              envOrDefault("LOG_FORMAT", "json"),
		DefaultLocality:        envOrDefault("DEFAULT_LOCALITY", "sofia"),
		GeocodeURL:             os.Getenv("GEOCODE_URL"),
		CrawlerSources:         map[string]string{},
	}

	if cfg.MongoURI == "" {
		problems = append(problems, "MONGO_URI is required")
	}
	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, "KAFKA_BROKERS is required")
	}
	if cfg.KafkaNotificationTopic == "" {
		problems = append(problems, "KAFKA_NOTIFICATIONS_TOPIC is required")
	}

	var err error
	if cfg.ShutdownTimeout, err = durationOrDefault("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.IngestBatchSize, err = intOrDefault("INGEST_BATCH_SIZE", 200); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.GeocodeTimeout, err = durationOrDefault("GEOCODE_TIMEOUT", 5*time.Second); err != nil {
		problems = append(problems, err.Error())
	}
	if cfg.GeocodeCacheSize, err = intOrDefault("GEOCODE_CACHE_SIZE", 1000); err != nil {
		problems = append(problems, err.Error())
	}

	cfg.GeocodeEnabled = cfg.GeocodeURL != ""
	if v := os.Getenv("GEOCODE_ENABLED"); v != "" {
		cfg.GeocodeEnabled = v == "true"
	}
	if cfg.GeocodeEnabled && cfg.GeocodeURL == "" {
		problems = append(problems, "GEOCODE_ENABLED is true but GEOCODE_URL is not set")
	}

	if sources := os.Getenv("CRAWLER_SOURCES"); sources != "" {
		parsed, err := parseSources(sources)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			cfg.CrawlerSources = parsed
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationOrDefault(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func intOrDefault(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

// parseSources splits "name=path,name=path" into a map.
func parseSources(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, path, ok := strings.Cut(pair, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid CRAWLER_SOURCES entry %q", pair)
		}
		out[name] = path
	}
	return out, nil
}
