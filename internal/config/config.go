package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Face backends
	InsightURL          string `envconfig:"INSIGHT_URL" default:"http://localhost:18081"`
	InsightModel        string `envconfig:"INSIGHT_MODEL" default:"buffalo_l"`
	RekognitionFallback bool   `envconfig:"REKOGNITION_FALLBACK" default:"false"`
	AWSRegion           string `envconfig:"AWS_REGION" default:"us-east-1"`

	// Index storage
	IndexDir string `envconfig:"INDEX_DIR" default:"./indexes"`
	PhotoDir string `envconfig:"PHOTO_DIR" default:"./photos"`

	// Matching
	MatchThreshold   float64       `envconfig:"MATCH_THRESHOLD" default:"0.55"`
	MaxResultPhotos  int           `envconfig:"MAX_RESULT_PHOTOS" default:"200"`
	MatchWorkers     int           `envconfig:"MATCH_WORKERS" default:"3"`
	SessionTimeout   time.Duration `envconfig:"SESSION_TIMEOUT" default:"3h"`
	SessionGrace     time.Duration `envconfig:"SESSION_GRACE" default:"24h"`
	OperationTimeout time.Duration `envconfig:"OPERATION_TIMEOUT" default:"45s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.MatchWorkers < 1 {
		return nil, fmt.Errorf("MATCH_WORKERS must be at least 1, got %d", cfg.MatchWorkers)
	}
	if cfg.MatchThreshold < -1 || cfg.MatchThreshold > 1 {
		return nil, fmt.Errorf("MATCH_THRESHOLD must be in [-1,1], got %v", cfg.MatchThreshold)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
