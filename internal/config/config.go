package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const configPathEnv = "NEWSRAG_CONFIG"

type Config struct {
	Search    SearchConfig    `yaml:"search"`
	Fetch     FetchConfig     `yaml:"fetch"`
	AI        AIConfig        `yaml:"ai"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Chunk     ChunkConfig     `yaml:"chunk"`
	Synthesis SynthesisConfig `yaml:"synthesis"`

	TelegramToken      string        `yaml:"telegram_token"`
	TelegramWebhookURL string        `yaml:"telegram_webhook_url"`
	CacheRetention     time.Duration `yaml:"cache_retention"`
	ServerPort         string        `yaml:"server_port"`
	LogLevel           string        `yaml:"log_level"`
	LogFormat          string        `yaml:"log_format"`
}

type SearchConfig struct {
	Provider    string        `yaml:"provider"`
	NewsAPIKey  string        `yaml:"newsapi_key"`
	NewsAPIURL  string        `yaml:"newsapi_url"`
	GNewsAPIKey string        `yaml:"gnews_key"`
	GNewsURL    string        `yaml:"gnews_url"`
	Language    string        `yaml:"language"`
	Limit       int           `yaml:"limit"`
	Timeout     time.Duration `yaml:"timeout"`
}

type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	UserAgent     string        `yaml:"user_agent"`
	MinExtractLen int           `yaml:"min_extract_len"`
}

// AIConfig selects the embedding and generation backends.
// Provider is one of "openai", "genai" or "hash".
type AIConfig struct {
	Provider         string        `yaml:"provider"`
	OpenAIAPIKey     string        `yaml:"openai_api_key"`
	OpenAIBaseURL    string        `yaml:"openai_base_url"`
	OpenAIEmbedModel string        `yaml:"openai_embed_model"`
	OpenAIChatModel  string        `yaml:"openai_chat_model"`
	GenAIAPIKey      string        `yaml:"genai_api_key"`
	GenAIEmbedModel  string        `yaml:"genai_embed_model"`
	GenAIChatModel   string        `yaml:"genai_chat_model"`
	HashDimensions   int           `yaml:"hash_dimensions"`
	Temperature      float64       `yaml:"temperature"`
	EmbedTimeout     time.Duration `yaml:"embed_timeout"`
	GenerateTimeout  time.Duration `yaml:"generate_timeout"`
}

type ClusterConfig struct {
	Eps        float64 `yaml:"eps"`
	MinSamples int     `yaml:"min_samples"`
	MinTextLen int     `yaml:"min_text_len"`
}

type ChunkConfig struct {
	Size       int `yaml:"size"`
	Overlap    int `yaml:"overlap"`
	MinTextLen int `yaml:"min_text_len"`
}

type SynthesisConfig struct {
	TopKSingle      int `yaml:"top_k_single"`
	TopKMulti       int `yaml:"top_k_multi"`
	MaxContextChars int `yaml:"max_context_chars"`
}

func Default() *Config {
	return &Config{
		Search: SearchConfig{
			Provider:   "newsapi",
			NewsAPIURL: "https://newsapi.org",
			GNewsURL:   "https://gnews.io",
			Language:   "en",
			Limit:      30,
			Timeout:    10 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:       10 * time.Second,
			UserAgent:     "Mozilla/5.0 (compatible; newsrag/1.0)",
			MinExtractLen: 300,
		},
		AI: AIConfig{
			Provider:         "openai",
			OpenAIEmbedModel: "text-embedding-3-small",
			OpenAIChatModel:  "gpt-4o-mini",
			GenAIEmbedModel:  "gemini-embedding-001",
			GenAIChatModel:   "gemini-2.5-flash",
			HashDimensions:   384,
			Temperature:      0.2,
			EmbedTimeout:     30 * time.Second,
			GenerateTimeout:  60 * time.Second,
		},
		Cluster: ClusterConfig{
			Eps:        0.25,
			MinSamples: 2,
			MinTextLen: 50,
		},
		Chunk: ChunkConfig{
			Size:       1500,
			Overlap:    200,
			MinTextLen: 100,
		},
		Synthesis: SynthesisConfig{
			TopKSingle:      5,
			TopKMulti:       10,
			MaxContextChars: 15000,
		},
		CacheRetention: 10 * time.Minute,
		ServerPort:     "8080",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// Load starts from defaults, overlays the YAML file named by NEWSRAG_CONFIG
// when set, then applies environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(configPathEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Search.Provider = getEnv("SEARCH_PROVIDER", c.Search.Provider)
	c.Search.NewsAPIKey = getEnv("NEWS_API_KEY", c.Search.NewsAPIKey)
	c.Search.GNewsAPIKey = getEnv("GNEWS_API_KEY", c.Search.GNewsAPIKey)
	c.Search.Limit = getEnvAsInt("SEARCH_LIMIT", c.Search.Limit)
	c.Fetch.Timeout = getEnvAsDuration("FETCH_TIMEOUT", c.Fetch.Timeout)

	c.AI.Provider = getEnv("AI_PROVIDER", c.AI.Provider)
	c.AI.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.AI.OpenAIAPIKey)
	c.AI.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", c.AI.OpenAIBaseURL)
	c.AI.OpenAIChatModel = getEnv("OPENAI_CHAT_MODEL", c.AI.OpenAIChatModel)
	c.AI.OpenAIEmbedModel = getEnv("OPENAI_EMBED_MODEL", c.AI.OpenAIEmbedModel)
	c.AI.GenAIAPIKey = getEnv("GEMINI_API_KEY", c.AI.GenAIAPIKey)
	c.AI.Temperature = getEnvAsFloat("AI_TEMPERATURE", c.AI.Temperature)
	c.AI.GenerateTimeout = getEnvAsDuration("GENERATE_TIMEOUT", c.AI.GenerateTimeout)

	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	c.TelegramWebhookURL = getEnv("TELEGRAM_WEBHOOK_URL", c.TelegramWebhookURL)
	c.CacheRetention = getEnvAsDuration("CACHE_RETENTION", c.CacheRetention)
	c.ServerPort = getEnv("SERVER_PORT", c.ServerPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
}

// Validate reports settings that would leave a pipeline stage unusable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Search.Provider {
	case "newsapi":
		if c.Search.NewsAPIKey == "" {
			errs = append(errs, errors.New("NEWS_API_KEY is required for the newsapi provider"))
		}
	case "gnews":
		if c.Search.GNewsAPIKey == "" {
			errs = append(errs, errors.New("GNEWS_API_KEY is required for the gnews provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown search provider %q", c.Search.Provider))
	}
	if c.Search.Limit <= 0 || c.Search.Limit > 30 {
		errs = append(errs, fmt.Errorf("search limit must be within 1..30, got %d", c.Search.Limit))
	}

	switch c.AI.Provider {
	case "openai":
		if c.AI.OpenAIAPIKey == "" && c.AI.OpenAIBaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case "genai":
		if c.AI.GenAIAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the genai provider"))
		}
	case "hash":
	default:
		errs = append(errs, fmt.Errorf("unknown ai provider %q", c.AI.Provider))
	}

	if c.Chunk.Overlap >= c.Chunk.Size {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.Chunk.Overlap, c.Chunk.Size))
	}
	if c.Cluster.MinSamples < 2 {
		errs = append(errs, fmt.Errorf("cluster min_samples must be at least 2, got %d", c.Cluster.MinSamples))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
