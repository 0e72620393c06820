package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting a scan reads from the environment.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	OutputDir       string        `env:"OUTPUT_DIR"        envDefault:"output_frames"`
	LookFor         string        `env:"LOOK_FOR"          envDefault:"bare spot"`
	AggregationMode string        `env:"AGGREGATION_MODE"  envDefault:"multi"`
	ConfidenceFloor float64       `env:"CONFIDENCE_FLOOR"  envDefault:"0.85"`
	DetectTimeout   time.Duration `env:"DETECT_TIMEOUT"    envDefault:"0s"`

	VideoBackend    string `env:"VIDEO_BACKEND"    envDefault:"ffmpeg"`
	AnnotateBackend string `env:"ANNOTATE_BACKEND" envDefault:"image"`
	DetectorBackend string `env:"DETECTOR_BACKEND" envDefault:"ollama"`

	OllamaBaseURL string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost"`
	OllamaPort    int    `env:"OLLAMA_PORT"     envDefault:"11434"`
	OllamaModel   string `env:"OLLAMA_MODEL"    envDefault:"llama3.2-vision:11b"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	JSONExport  bool   `env:"JSON_EXPORT"  envDefault:"false"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`
	MetricsAddr string `env:"METRICS_ADDR"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.ConfidenceFloor < 0 || c.ConfidenceFloor > 1 {
		return fmt.Errorf("CONFIDENCE_FLOOR must be within [0,1], got %v", c.ConfidenceFloor)
	}
	if c.DetectTimeout < 0 {
		return fmt.Errorf("DETECT_TIMEOUT must not be negative, got %s", c.DetectTimeout)
	}
	if err := oneOf("AGGREGATION_MODE", c.AggregationMode, "multi", "single"); err != nil {
		return err
	}
	if err := oneOf("VIDEO_BACKEND", c.VideoBackend, "ffmpeg", "opencv"); err != nil {
		return err
	}
	if err := oneOf("ANNOTATE_BACKEND", c.AnnotateBackend, "image", "opencv"); err != nil {
		return err
	}
	if err := oneOf("DETECTOR_BACKEND", c.DetectorBackend, "ollama", "gemini"); err != nil {
		return err
	}
	if c.DetectorBackend == "gemini" && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when DETECTOR_BACKEND=gemini")
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), value)
}
