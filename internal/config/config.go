package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed presets.yaml
var presetsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Legacy    LegacyConfig
	Extractor ExtractorConfig
	Cluster   ClusterConfig
	Photos    PhotosConfig
	Presets   PresetsConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL; empty selects the in-memory backend
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the face HNSW index (optional, if empty index is rebuilt on startup)
}

type LegacyConfig struct {
	DatabaseURL string // MariaDB DSN of a legacy PhotoPrism library for marker import (e.g., photoprism:photoprism@tcp(mariadb:3306)/photoprism)
}

type ExtractorConfig struct {
	URL            string // defaults to http://localhost:8000
	TimeoutSeconds int    // per-request timeout (default 120)
}

// ClusterConfig holds the resolved distance policy parameters. Load starts
// from the named preset and lets explicit env values override it.
type ClusterConfig struct {
	Preset     string
	Tolerance  float64
	Epsilon    float64
	MinSamples int
}

type PhotosConfig struct {
	Dir string // Directory holding original images, used for thumbnails and ingest
}

// PresetsConfig holds the named distance policy presets from presets.yaml.
type PresetsConfig struct {
	Presets map[string]PolicyPreset `yaml:"presets"`
}

// PolicyPreset is one named set of clustering parameters.
type PolicyPreset struct {
	Tolerance  float64 `yaml:"tolerance"`
	Epsilon    float64 `yaml:"epsilon"`
	MinSamples int     `yaml:"min_samples"`
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

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func Load() *Config {
	var presets PresetsConfig
	if err := yaml.Unmarshal(presetsYAML, &presets); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded presets.yaml: " + err.Error())
	}

	presetName := os.Getenv("CLUSTER_PRESET")
	if presetName == "" {
		presetName = "default"
	}
	preset, ok := presets.Presets[presetName]
	if !ok {
		preset = PolicyPreset{Tolerance: 0.6, Epsilon: 0.4, MinSamples: 2}
	}

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Legacy: LegacyConfig{
			DatabaseURL: os.Getenv("LEGACY_DATABASE_URL"),
		},
		Extractor: ExtractorConfig{
			URL:            os.Getenv("EXTRACTOR_URL"),
			TimeoutSeconds: envInt("EXTRACTOR_TIMEOUT_SECONDS", 120),
		},
		Cluster: ClusterConfig{
			Preset:     presetName,
			Tolerance:  envFloat("CLUSTER_TOLERANCE", preset.Tolerance),
			Epsilon:    envFloat("CLUSTER_EPSILON", preset.Epsilon),
			MinSamples: envInt("CLUSTER_MIN_SAMPLES", preset.MinSamples),
		},
		Photos: PhotosConfig{
			Dir: os.Getenv("PHOTOS_DIR"),
		},
		Presets: presets,
	}
}

// GetPolicyPreset returns the named preset from the embedded presets file.
func (c *Config) GetPolicyPreset(name string) (PolicyPreset, bool) {
	preset, ok := c.Presets.Presets[name]
	return preset, ok
}
