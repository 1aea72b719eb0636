// Package config loads service settings from defaults, an optional YAML
// file, a .env file and LIFELINE_ prefixed environment variables, in that
// order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "LIFELINE_"

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type DirectionsConfig struct {
	BaseURL     string        `koanf:"base_url" validate:"required,url"`
	AccessToken string        `koanf:"access_token"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	Geometries  string        `koanf:"geometries" validate:"oneof=geojson polyline6"`
}

type WeatherConfig struct {
	BaseURL  string        `koanf:"base_url" validate:"required,url"`
	Timeout  time.Duration `koanf:"timeout" validate:"gt=0"`
	CacheTTL time.Duration `koanf:"cache_ttl" validate:"gt=0"`
}

type RiskModelConfig struct {
	ONNXPath          string `koanf:"onnx_path" validate:"required"`
	MetaPath          string `koanf:"meta_path"`
	SharedLibraryPath string `koanf:"shared_library_path"`
	LogEnabled        bool   `koanf:"log_enabled"`
	LogPath           string `koanf:"log_path" validate:"required_if=LogEnabled true"`
}

// Config is the full service configuration
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Database   DatabaseConfig   `koanf:"database"`
	Directions DirectionsConfig `koanf:"directions"`
	Weather    WeatherConfig    `koanf:"weather"`
	RiskModel  RiskModelConfig  `koanf:"riskmodel"`
}

var defaults = map[string]interface{}{
	"server.addr":                   "127.0.0.1:8080",
	"log.level":                     "info",
	"log.format":                    "json",
	"database.path":                 "./data/lifeline.db",
	"directions.base_url":           "https://api.mapbox.com/directions/v5/mapbox",
	"directions.access_token":       "",
	"directions.timeout":            "10s",
	"directions.geometries":         "geojson",
	"weather.base_url":              "https://api.open-meteo.com/v1/forecast",
	"weather.timeout":               "4s",
	"weather.cache_ttl":             "10m",
	"riskmodel.onnx_path":           "./models/routing-risk.onnx",
	"riskmodel.meta_path":           "./models/routing-risk.meta.json",
	"riskmodel.shared_library_path": "",
	"riskmodel.log_enabled":         false,
	"riskmodel.log_path":            "./logs/routing-risk-inference.csv",
}

// Load builds the configuration. configPath and envFile are optional; a
// missing .env file is ignored, a missing config file is not.
func Load(configPath, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Directions.AccessToken == "" {
		cfg.Directions.AccessToken = strings.TrimSpace(os.Getenv("MAPBOX_TOKEN"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps LIFELINE_DIRECTIONS__ACCESS_TOKEN to directions.access_token
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
