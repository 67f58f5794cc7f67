package infra

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string `env:"APP_ENV" envDefault:"development"`
	Port           string `env:"PORT" envDefault:"8080"`
	DatabaseURL    string `env:"DATABASE_URL"`
	OwnerSecret    string `env:"SESSION_SECRET"`
	StoragePath    string `env:"STORAGE_PATH" envDefault:"./images"`
	StorageBaseURL string `env:"STORAGE_BASE_URL" envDefault:"/images"`

	Sanitizer     string `env:"SANITIZER" envDefault:"words"`
	TopicEnricher string `env:"TOPIC_ENRICHER" envDefault:"gemini"`
	ImageProvider string `env:"IMAGE_PROVIDER" envDefault:"imagen"`
	MaxAttempts   int    `env:"GENERATION_MAX_ATTEMPTS" envDefault:"3"`

	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	GeminiModel   string        `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash-001"`
	GeminiBaseURL string        `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiTimeout time.Duration `env:"GEMINI_TIMEOUT" envDefault:"15s"`

	GoogleProject  string        `env:"GOOGLE_CLOUD_PROJECT" envDefault:"mom-mural-dev"`
	VertexLocation string        `env:"VERTEX_LOCATION" envDefault:"us-central1"`
	ImagenModel    string        `env:"IMAGEN_MODEL" envDefault:"imagegeneration@006"`
	ImagenBaseURL  string        `env:"IMAGEN_BASE_URL"`
	ImagenTimeout  time.Duration `env:"IMAGEN_TIMEOUT" envDefault:"60s"`
	AccessToken    string        `env:"GOOGLE_ACCESS_TOKEN"`

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"240s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	RateLimitPerMin  int           `env:"RATE_LIMIT_PER_MINUTE" envDefault:"10"`
	CORSOrigins      []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	DBMaxConns       int32         `env:"DB_MAX_CONNS" envDefault:"10"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("GENERATION_MAX_ATTEMPTS must be positive, got %d", cfg.MaxAttempts)
	}

	cfg.Sanitizer = strings.ToLower(strings.TrimSpace(cfg.Sanitizer))
	cfg.TopicEnricher = strings.ToLower(strings.TrimSpace(cfg.TopicEnricher))
	cfg.ImageProvider = strings.ToLower(strings.TrimSpace(cfg.ImageProvider))
	cfg.StorageBaseURL = strings.TrimRight(cfg.StorageBaseURL, "/")

	return cfg, nil
}

// ImagenEndpoint returns the Vertex AI predict URL for the configured model.
func (c *Config) ImagenEndpoint() string {
	if base := strings.TrimRight(c.ImagenBaseURL, "/"); base != "" {
		return fmt.Sprintf("%s/models/%s:predict", base, c.ImagenModel)
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:predict",
		c.VertexLocation, c.GoogleProject, c.VertexLocation, c.ImagenModel)
}
