package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	SourceFile     = "file"
	SourcePostgres = "postgres"

	DriverPGDriver = "pgdriver"
	DriverPQ       = "pq"
)

type Config struct {
	LogLevel     string         `yaml:"log_level"`
	ChatLLM      LLMConfig      `yaml:"chat_llm"`
	EmbedLLM     LLMConfig      `yaml:"embed_llm"`
	TranslateLLM LLMConfig      `yaml:"translate_llm"`
	RAG          RAGConfig      `yaml:"rag"`
	Corpus       CorpusConfig   `yaml:"corpus"`
	Database     DatabaseConfig `yaml:"database"`
	FAQ          FAQConfig      `yaml:"faq"`
}

// LLMConfig describes one model endpoint. Provider is openai (any OpenAI
// compatible server) or ollama.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	Key      string `yaml:"key"`
	Model    string `yaml:"model"`
	Stream   bool   `yaml:"stream"`
}

type RAGConfig struct {
	ContextLength   int     `yaml:"context_length"`
	Separator       string  `yaml:"separator"`
	SeparatorTokens int     `yaml:"separator_tokens"`
	Encoding        string  `yaml:"encoding"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	WorkingLanguage string  `yaml:"working_language"`
	InputLanguage   string  `yaml:"input_language"`
	OutputLanguage  string  `yaml:"output_language"`
	ChunkSize       int     `yaml:"chunk_size"`
	ChunkOverlap    int     `yaml:"chunk_overlap"`
	EncryptionKey   string  `yaml:"encryption_key"`
}

type CorpusConfig struct {
	Source         string `yaml:"source"`
	ChunksFile     string `yaml:"chunks_file"`
	EmbeddingsFile string `yaml:"embeddings_file"`
	BaseURL        string `yaml:"base_url"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type FAQConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Path       string  `yaml:"path"`
	Collection string  `yaml:"collection"`
	InMemory   bool    `yaml:"in_memory"`
	ExportFile string  `yaml:"export_file"`
	Threshold  float64 `yaml:"threshold"`
}

// LoadConfig reads the YAML file at path. Environment variables referenced as
// ${NAME} are expanded after loading an optional .env file.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes raw YAML, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := preset()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := preset()
	applyDefaults(&cfg)
	return &cfg
}

// preset holds defaults for fields whose zero value is a valid setting. They
// are set before decoding so only an absent key picks them up.
func preset() Config {
	return Config{RAG: RAGConfig{Temperature: 0.2}}
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	llmDefaults(&cfg.ChatLLM, "gpt-4-32k")
	llmDefaults(&cfg.EmbedLLM, "text-embedding-ada-002")
	if cfg.TranslateLLM.Model == "" && cfg.TranslateLLM.BaseURL == "" && cfg.TranslateLLM.Provider == "" {
		cfg.TranslateLLM = cfg.ChatLLM
		cfg.TranslateLLM.Stream = false
	}
	llmDefaults(&cfg.TranslateLLM, "gpt-4-32k")

	r := &cfg.RAG
	if r.ContextLength == 0 {
		r.ContextLength = 3000
	}
	if r.Separator == "" {
		r.Separator = "\n* "
	}
	if r.Encoding == "" {
		r.Encoding = "gpt2"
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 1024
	}
	if r.WorkingLanguage == "" {
		r.WorkingLanguage = "English"
	}
	if r.InputLanguage == "" {
		r.InputLanguage = r.WorkingLanguage
	}
	if r.OutputLanguage == "" {
		r.OutputLanguage = r.WorkingLanguage
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = 1000
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = 200
	}

	if cfg.Corpus.Source == "" {
		cfg.Corpus.Source = SourceFile
	}
	if cfg.Corpus.ChunksFile == "" {
		cfg.Corpus.ChunksFile = "./data/Processed_PDFs.csv"
	}
	if cfg.Corpus.EmbeddingsFile == "" {
		cfg.Corpus.EmbeddingsFile = "./data/Embeddings.json"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverPGDriver
	}

	if cfg.FAQ.Path == "" {
		cfg.FAQ.Path = "./chromemdb"
	}
	if cfg.FAQ.Collection == "" {
		cfg.FAQ.Collection = "faq"
	}
	if cfg.FAQ.Threshold == 0 {
		cfg.FAQ.Threshold = 0.9
	}
}

func llmDefaults(c *LLMConfig, model string) {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if c.Model == "" {
		c.Model = model
	}
	if c.BaseURL == "" {
		switch c.Provider {
		case ProviderOllama:
			c.BaseURL = "http://localhost:11434"
		default:
			c.BaseURL = "https://api.openai.com/v1"
		}
	}
}

func (c *Config) Validate() error {
	for name, l := range map[string]LLMConfig{"chat_llm": c.ChatLLM, "embed_llm": c.EmbedLLM, "translate_llm": c.TranslateLLM} {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.RAG.ContextLength <= 0 {
		return fmt.Errorf("rag.context_length must be greater than zero")
	}
	if c.RAG.SeparatorTokens < 0 {
		return fmt.Errorf("rag.separator_tokens must not be negative")
	}
	if c.RAG.MaxTokens <= 0 {
		return fmt.Errorf("rag.max_tokens must be greater than zero")
	}
	if c.RAG.Temperature < 0 || c.RAG.Temperature > 2 {
		return fmt.Errorf("rag.temperature must be within [0, 2]")
	}
	switch c.Corpus.Source {
	case SourceFile, SourcePostgres:
	default:
		return fmt.Errorf("unknown corpus.source: %s", c.Corpus.Source)
	}
	if c.Corpus.Source == SourcePostgres && strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required when corpus.source is postgres")
	}
	switch c.Database.Driver {
	case DriverPGDriver, DriverPQ:
	default:
		return fmt.Errorf("unknown database.driver: %s", c.Database.Driver)
	}
	if c.FAQ.Threshold <= 0 || c.FAQ.Threshold > 1 {
		return fmt.Errorf("faq.threshold must be within (0, 1]")
	}
	return nil
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown provider: %s", l.Provider)
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// NeedsTranslation reports whether lang differs from the working language.
func (r RAGConfig) NeedsTranslation(lang string) bool {
	return lang != "" && !strings.EqualFold(lang, r.WorkingLanguage)
}
