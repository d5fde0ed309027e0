package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/class-attendance/internal/tiling"
)

//go:embed pipeline.yaml
var pipelineYAML []byte

type Config struct {
	Database DatabaseConfig
	Detector DetectorConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Web      WebConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the face profile index (optional, rebuilt on startup if empty)
}

type DetectorConfig struct {
	URL         string        // defaults to http://localhost:8000
	Timeout     time.Duration // per-call timeout (default 60s)
	Concurrency int           // maximum in-flight detector calls (default 1)
	Model       string        // model name stored with enrolled profiles
}

type StorageConfig struct {
	Dir string // root for proof images and enrollment photos (default ./data)
}

type WebConfig struct {
	AllowedOrigins []string // extra CORS origins besides localhost
}

// PipelineConfig holds the tunables of the attendance pipeline.
type PipelineConfig struct {
	MatchThreshold float64       `yaml:"match_threshold"`
	NMSThreshold   float64       `yaml:"nms_threshold"`
	ProofQuality   int           `yaml:"proof_quality"`
	Layout         tiling.Layout `yaml:"layout"`
}

// Validate checks thresholds and the tile layout.
func (p PipelineConfig) Validate() error {
	if p.MatchThreshold < -1 || p.MatchThreshold >= 1 {
		return fmt.Errorf("match threshold %v out of range [-1, 1)", p.MatchThreshold)
	}
	if p.NMSThreshold <= 0 || p.NMSThreshold > 1 {
		return fmt.Errorf("NMS threshold %v out of range (0, 1]", p.NMSThreshold)
	}
	if p.ProofQuality < 1 || p.ProofQuality > 100 {
		return errors.New("proof quality must be between 1 and 100")
	}
	if err := p.Layout.Validate(); err != nil {
		return fmt.Errorf("tile layout: %w", err)
	}
	return nil
}

// DefaultPipeline returns the embedded pipeline defaults.
func DefaultPipeline() PipelineConfig {
	var p PipelineConfig
	if err := yaml.Unmarshal(pipelineYAML, &p); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded pipeline.yaml: " + err.Error())
	}
	return p
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

// envFloat reads an environment variable and parses it as a float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a Go duration ("90s") or whole seconds ("90").
// Returns the default value if the env var is unset, empty, or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	pipeline := DefaultPipeline()
	pipeline.MatchThreshold = envFloat("MATCH_THRESHOLD", pipeline.MatchThreshold)
	pipeline.NMSThreshold = envFloat("NMS_THRESHOLD", pipeline.NMSThreshold)

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Detector: DetectorConfig{
			URL:         os.Getenv("DETECTOR_URL"),
			Timeout:     envDuration("DETECTOR_TIMEOUT", 60*time.Second),
			Concurrency: envInt("DETECTOR_CONCURRENCY", 1),
			Model:       envString("DETECTOR_MODEL", "buffalo_l"),
		},
		Storage: StorageConfig{
			Dir: envString("STORAGE_DIR", "./data"),
		},
		Pipeline: pipeline,
		Web: WebConfig{
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}
}
