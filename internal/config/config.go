package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend kinds understood by the fallback chain
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Vector index and embedding providers
const (
	VectorBackendSQLite   = "sqlite"
	VectorBackendPgvector = "pgvector"

	EmbeddingLocal  = "local"
	EmbeddingOllama = "ollama"
	EmbeddingOpenAI = "openai"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort string
	ServerHost string

	// API rate limiting; RateLimitRPS <= 0 disables it
	RateLimitRPS   float64
	RateLimitBurst int

	// Storage
	DataDir       string // vector index directory
	UploadDir     string
	MaxUploadMB   int
	VectorBackend string

	// Embeddings
	EmbeddingProvider   string
	EmbeddingModel      string
	EmbeddingDimensions int
	EmbeddingWorkers    int

	// Retrieval
	ChunkSize    int
	ChunkOverlap int
	SearchTopK   int

	// Language-model backends
	OllamaBaseURL  string
	LLMModels      []string
	LLMTimeout     time.Duration
	LLMTemperature float64
	LLMMaxTokens   int
	OpenAIAPIKey   string
	OpenAIModel    string
	BackendsFile   string
	Backends       []BackendConfig

	// Observability
	JaegerEndpoint string
	TracingEnabled bool
	LogLevel       string
	LogPretty      bool
}

// BackendConfig describes one item of the answer fallback chain
type BackendConfig struct {
	Name        string  `yaml:"name"`
	Kind        string  `yaml:"kind"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

type backendsFile struct {
	Backends []BackendConfig `yaml:"backends"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "docqa"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		ServerPort: getEnv("SERVER_PORT", "8080"),
		ServerHost: getEnv("SERVER_HOST", "localhost"),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 20),

		DataDir:       getEnv("DATA_DIR", "./data/index"),
		UploadDir:     getEnv("UPLOAD_DIR", "./media/documents"),
		MaxUploadMB:   getEnvInt("MAX_UPLOAD_MB", 20),
		VectorBackend: strings.ToLower(getEnv("VECTOR_BACKEND", VectorBackendSQLite)),

		EmbeddingProvider:   strings.ToLower(getEnv("EMBEDDING_PROVIDER", EmbeddingLocal)),
		EmbeddingModel:      getEnv("EMBEDDING_MODEL", ""),
		EmbeddingDimensions: getEnvInt("EMBEDDING_DIMENSIONS", 384),
		EmbeddingWorkers:    getEnvInt("EMBEDDING_WORKERS", 5),

		ChunkSize:    getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getEnvInt("CHUNK_OVERLAP", 200),
		SearchTopK:   getEnvInt("SEARCH_TOP_K", 5),

		OllamaBaseURL:  getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		LLMModels:      getEnvList("LLM_MODELS", []string{"llama3.2", "mistral"}),
		LLMTimeout:     getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.1),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 512),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		BackendsFile:   getEnv("BACKENDS_FILE", ""),

		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
		TracingEnabled: getEnvBool("TRACING_ENABLED", true),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvBool("LOG_PRETTY", false),
	}

	backends, err := cfg.loadBackends()
	if err != nil {
		return nil, err
	}
	cfg.Backends = backends

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	if c.SearchTopK <= 0 {
		return fmt.Errorf("SEARCH_TOP_K must be positive, got %d", c.SearchTopK)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive when RATE_LIMIT_RPS is set, got %d", c.RateLimitBurst)
	}
	if c.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLMTimeout)
	}

	switch c.VectorBackend {
	case VectorBackendSQLite, VectorBackendPgvector:
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorBackend)
	}

	switch c.EmbeddingProvider {
	case EmbeddingLocal, EmbeddingOllama:
	case EmbeddingOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for EMBEDDING_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	for i, b := range c.Backends {
		switch b.Kind {
		case BackendOllama:
		case BackendOpenAI:
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("backend %d (%s): OPENAI_API_KEY is required", i, b.Name)
			}
		default:
			return fmt.Errorf("backend %d (%s): unknown kind %q", i, b.Name, b.Kind)
		}
	}

	return nil
}

// loadBackends reads the ordered backend list from BACKENDS_FILE, or derives it from
// LLM_MODELS plus an OpenAI entry when an API key is configured.
func (c *Config) loadBackends() ([]BackendConfig, error) {
	if c.BackendsFile != "" {
		data, err := os.ReadFile(c.BackendsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read backends file: %w", err)
		}
		return c.ParseBackends(data)
	}

	backends := make([]BackendConfig, 0, len(c.LLMModels)+1)
	for _, model := range c.LLMModels {
		backends = append(backends, c.withDefaults(BackendConfig{Kind: BackendOllama, Model: model}))
	}
	if c.OpenAIAPIKey != "" {
		backends = append(backends, c.withDefaults(BackendConfig{Kind: BackendOpenAI, Model: c.OpenAIModel}))
	}
	return backends, nil
}

// ParseBackends decodes a YAML backend list and fills unset fields from the config
func (c *Config) ParseBackends(data []byte) ([]BackendConfig, error) {
	var file backendsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse backends file: %w", err)
	}

	backends := make([]BackendConfig, 0, len(file.Backends))
	for _, b := range file.Backends {
		b.Kind = strings.ToLower(strings.TrimSpace(b.Kind))
		if b.Kind == "" {
			b.Kind = BackendOllama
		}
		backends = append(backends, c.withDefaults(b))
	}
	return backends, nil
}

func (c *Config) withDefaults(b BackendConfig) BackendConfig {
	if b.BaseURL == "" && b.Kind == BackendOllama {
		b.BaseURL = c.OllamaBaseURL
	}
	if b.Model == "" && b.Kind == BackendOpenAI {
		b.Model = c.OpenAIModel
	}
	if b.Name == "" {
		b.Name = b.Kind + ":" + b.Model
	}
	if b.Temperature == 0 {
		b.Temperature = c.LLMTemperature
	}
	if b.MaxTokens == 0 {
		b.MaxTokens = c.LLMMaxTokens
	}
	return b
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// MaxUploadBytes is the upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
