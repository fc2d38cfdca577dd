package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tamcal/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Data     DataConfig
	Database DatabaseConfig
	Server   ServerConfig
	Search   SearchConfig
	Demo     DemoConfig

	Profiling ProfilingConfig
}

// DataConfig locates the input tables and the output directory
type DataConfig struct {
	Dir           string
	PePath        string
	QianFigCPath  string
	QianFigDPath  string
	PeGrowthPath  string
	KappaVEGFPath string
	SigmaCCL2Path string
	ResultsDir    string
}

// DatabaseConfig selects the fit repository backend
type DatabaseConfig struct {
	Driver string
	URL    string
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// SearchConfig tunes both fits
type SearchConfig struct {
	Workers           int
	Seed              int64
	QianSamples       int
	GridScale         float64
	Refine            bool
	RefineEvaluations int
	Timeout           time.Duration
}

// DemoConfig holds the full-model constants the fits do not identify
type DemoConfig struct {
	K            float64
	AlphaV       float64
	KDrift       float64
	ThetaOC      float64
	SV           float64
	DV           float64
	Angiogenesis bool
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	dataDir := getEnvOrDefault("DATA_DIR", "data")
	resultsDir := getEnvOrDefault("RESULTS_DIR", "results")

	config := &Config{
		Data: DataConfig{
			Dir:           dataDir,
			PePath:        getEnvOrDefault("PE_DATA_PATH", filepath.Join(dataDir, "Pe_Proliferation.csv")),
			QianFigCPath:  getEnvOrDefault("QIAN_FIGC_PATH", filepath.Join(dataDir, "FigC.csv")),
			QianFigDPath:  getEnvOrDefault("QIAN_FIGD_PATH", filepath.Join(dataDir, "FigD.csv")),
			PeGrowthPath:  getEnvOrDefault("PE_GROWTH_PATH", ""),
			KappaVEGFPath: getEnvOrDefault("QIAN_VEGF_PATH", ""),
			SigmaCCL2Path: getEnvOrDefault("QIAN_CCL2_PATH", ""),
			ResultsDir:    resultsDir,
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnvOrDefault("DB_DRIVER", "sqlite")),
			URL:    getEnvOrDefault("DATABASE_URL", filepath.Join(resultsDir, "tamcal.db")),
		},
		Server: ServerConfig{
			Port:    getEnvOrDefault("PORT", "8080"),
			GinMode: getEnvOrDefault("GIN_MODE", "release"),
		},
		Search: SearchConfig{
			Workers:           getEnvIntOrDefault("SEARCH_WORKERS", 0),
			Seed:              int64(getEnvIntOrDefault("SEARCH_SEED", 42)),
			QianSamples:       getEnvIntOrDefault("QIAN_SAMPLES", 600),
			GridScale:         getEnvFloatOrDefault("PE_GRID_SCALE", 1.0),
			Refine:            getEnvBoolOrDefault("REFINE_ENABLED", false),
			RefineEvaluations: getEnvIntOrDefault("REFINE_EVALUATIONS", 0),
			Timeout:           getEnvDurationOrDefault("FIT_TIMEOUT", 0),
		},
		Demo: DemoConfig{
			K:            getEnvFloatOrDefault("DEMO_K", 0),
			AlphaV:       getEnvFloatOrDefault("DEMO_ALPHA_V", 0.05),
			KDrift:       getEnvFloatOrDefault("DEMO_K_DRIFT", 1),
			ThetaOC:      getEnvFloatOrDefault("DEMO_THETA_OC", 0),
			SV:           getEnvFloatOrDefault("DEMO_S_V", 0.1),
			DV:           getEnvFloatOrDefault("DEMO_D_V", 0.1),
			Angiogenesis: getEnvBoolOrDefault("DEMO_ANGIOGENESIS", true),
		},
	}
	config.Profiling = *loadProfilingConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadProfilingConfig() *ProfilingConfig {
	return &ProfilingConfig{
		Port:    getEnvOrDefault("PPROF_PORT", "6060"),
		Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
	}
}

func validateConfig(config *Config) error {
	switch config.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errors.ConfigInvalid("DB_DRIVER must be sqlite or postgres, got " + config.Database.Driver)
	}
	if config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}
	if config.Search.Workers < 0 {
		return errors.ConfigInvalid("SEARCH_WORKERS must be >= 0")
	}
	if config.Search.QianSamples <= 0 {
		return errors.ConfigInvalid("QIAN_SAMPLES must be > 0")
	}
	if !(config.Search.GridScale > 0) {
		return errors.ConfigInvalid("PE_GRID_SCALE must be > 0")
	}
	if config.Demo.ThetaOC < 0 || config.Demo.ThetaOC > 1 {
		return errors.ConfigInvalid("DEMO_THETA_OC must be in [0,1]")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
