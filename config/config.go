// Package config loads the run configuration from defaults, an optional YAML
// file, a .env file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Sentinel configuration errors.
var (
	// ErrInvalidConfig is returned when a configuration value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingCredential is returned when a required credential is not set.
	ErrMissingCredential = errors.New("missing credential")
)

// Source names accepted by RequireCredentials.
const (
	SourceGitHub = "github"
	SourcePDF    = "pdf"
)

// EnvPrefix prefixes every environment override, e.g. DOCQA_VECTORSTORE_TOP_K.
const EnvPrefix = "DOCQA"

// Config represents the complete configuration of one run.
type Config struct {
	GitHub      GitHubConfig      `mapstructure:"github" yaml:"github"`
	PDF         PDFConfig         `mapstructure:"pdf" yaml:"pdf"`
	Embedding   EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	Gemini      GeminiConfig      `mapstructure:"gemini" yaml:"gemini"`
	VectorStore VectorStoreConfig `mapstructure:"vectorstore" yaml:"vectorstore"`
	Query       string            `mapstructure:"query" yaml:"query"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// GitHubConfig describes the repository source.
type GitHubConfig struct {
	Repo         string   `mapstructure:"repo" yaml:"repo"`             // owner/name
	Branch       string   `mapstructure:"branch" yaml:"branch"`         // default master
	Extensions   []string `mapstructure:"extensions" yaml:"extensions"` // accepted file suffixes
	APIURL       string   `mapstructure:"api_url" yaml:"api_url"`
	Token        string   `mapstructure:"token" yaml:"-"`
	ChunkSize    int      `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
}

// PDFConfig describes the local PDF source.
type PDFConfig struct {
	Path             string `mapstructure:"path" yaml:"path"`
	Engine           string `mapstructure:"engine" yaml:"engine"` // ledongthuc, unipdf
	UnidocLicenseKey string `mapstructure:"unidoc_license_key" yaml:"-"`
	ChunkSize        int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap" yaml:"chunk_overlap"`
}

// EmbeddingConfig selects the primary and fallback embedding providers.
type EmbeddingConfig struct {
	Provider   string       `mapstructure:"provider" yaml:"provider"` // gemini, ollama, openai, hash
	Fallback   string       `mapstructure:"fallback" yaml:"fallback"` // same set, or none
	Model      string       `mapstructure:"model" yaml:"model"`       // gemini embedding model
	Dimensions int          `mapstructure:"dimensions" yaml:"dimensions"`
	BatchSize  int          `mapstructure:"batch_size" yaml:"batch_size"`
	Ollama     OllamaConfig `mapstructure:"ollama" yaml:"ollama"`
	OpenAI     OpenAIConfig `mapstructure:"openai" yaml:"openai"`
	Hash       HashConfig   `mapstructure:"hash" yaml:"hash"`
}

// OllamaConfig configures the local Ollama embedding endpoint.
type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"-"`
}

// HashConfig configures the offline feature-hashing embedder.
type HashConfig struct {
	Dimensions int `mapstructure:"dimensions" yaml:"dimensions"`
}

// GeminiConfig configures the Google Generative AI client used for chat and,
// when selected, embeddings.
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key" yaml:"-"`
	ChatModel   string  `mapstructure:"chat_model" yaml:"chat_model"`
	Temperature float32 `mapstructure:"temperature" yaml:"temperature"`
}

// VectorStoreConfig selects the index backend.
type VectorStoreConfig struct {
	Provider string       `mapstructure:"provider" yaml:"provider"` // memory, chroma
	TopK     int          `mapstructure:"top_k" yaml:"top_k"`
	Chroma   ChromaConfig `mapstructure:"chroma" yaml:"chroma"`
}

// ChromaConfig configures the Chroma HTTP backend.
type ChromaConfig struct {
	URL              string `mapstructure:"url" yaml:"url"`
	CollectionPrefix string `mapstructure:"collection_prefix" yaml:"collection_prefix"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // trace, debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration. It carries no credentials,
// repository, path or query: those must come from the caller.
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			Branch:       "master",
			Extensions:   []string{".md"},
			APIURL:       "https://api.github.com/",
			ChunkSize:    1000,
			ChunkOverlap: 100,
		},
		PDF: PDFConfig{
			Engine:       "ledongthuc",
			ChunkSize:    4000,
			ChunkOverlap: 200,
		},
		Embedding: EmbeddingConfig{
			Provider:  "gemini",
			Fallback:  "ollama",
			Model:     "text-embedding-004",
			BatchSize: 100,
			Ollama: OllamaConfig{
				Endpoint: "http://localhost:11434",
				Model:    "nomic-embed-text:v1.5",
			},
			OpenAI: OpenAIConfig{
				Model: "text-embedding-3-small",
			},
			Hash: HashConfig{
				Dimensions: 256,
			},
		},
		Gemini: GeminiConfig{
			ChatModel:   "gemini-2.5-flash",
			Temperature: 0.2,
		},
		VectorStore: VectorStoreConfig{
			Provider: "memory",
			TopK:     4,
			Chroma: ChromaConfig{
				URL:              "http://localhost:8000",
				CollectionPrefix: "docqa",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// plainEnv maps config keys to the unprefixed environment variables that
// also set them: the credentials plus CHROMA_URL. The first variable that is
// set wins.
var plainEnv = map[string][]string{
	"github.token":             {"GITHUB_TOKEN"},
	"gemini.api_key":           {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"embedding.openai.api_key": {"OPENAI_API_KEY"},
	"pdf.unidoc_license_key":   {"UNIDOC_LICENSE_KEY"},
	"vectorstore.chroma.url":   {"CHROMA_URL"},
}

// Load builds the configuration. path may be empty. flags, when non-nil, are
// bound by their Annotations[FlagKey] entry (see BindFlag).
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	// A missing .env is normal in CI and containers.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: .env: %v", ErrInvalidConfig, err)
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range plainEnv {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			keys, ok := f.Annotations[FlagKey]
			if !ok || len(keys) == 0 || bindErr != nil {
				return
			}
			bindErr = v.BindPFlag(keys[0], f)
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.GitHub.Extensions = normalizeExtensions(cfg.GitHub.Extensions)
	return cfg, nil
}

// FlagKey is the pflag annotation naming the config key a flag overrides.
const FlagKey = "docqa.config.key"

// BindFlag marks flag name in fs as an override for config key.
func BindFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, FlagKey, []string{key}); err != nil {
		panic(fmt.Sprintf("config: binding unknown flag %q", name))
	}
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("github.repo", d.GitHub.Repo)
	v.SetDefault("github.branch", d.GitHub.Branch)
	v.SetDefault("github.extensions", d.GitHub.Extensions)
	v.SetDefault("github.api_url", d.GitHub.APIURL)
	v.SetDefault("github.token", "")
	v.SetDefault("github.chunk_size", d.GitHub.ChunkSize)
	v.SetDefault("github.chunk_overlap", d.GitHub.ChunkOverlap)

	v.SetDefault("pdf.path", d.PDF.Path)
	v.SetDefault("pdf.engine", d.PDF.Engine)
	v.SetDefault("pdf.unidoc_license_key", "")
	v.SetDefault("pdf.chunk_size", d.PDF.ChunkSize)
	v.SetDefault("pdf.chunk_overlap", d.PDF.ChunkOverlap)

	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.fallback", d.Embedding.Fallback)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.ollama.endpoint", d.Embedding.Ollama.Endpoint)
	v.SetDefault("embedding.ollama.model", d.Embedding.Ollama.Model)
	v.SetDefault("embedding.openai.base_url", d.Embedding.OpenAI.BaseURL)
	v.SetDefault("embedding.openai.model", d.Embedding.OpenAI.Model)
	v.SetDefault("embedding.openai.api_key", "")
	v.SetDefault("embedding.hash.dimensions", d.Embedding.Hash.Dimensions)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.chat_model", d.Gemini.ChatModel)
	v.SetDefault("gemini.temperature", d.Gemini.Temperature)

	v.SetDefault("vectorstore.provider", d.VectorStore.Provider)
	v.SetDefault("vectorstore.top_k", d.VectorStore.TopK)
	v.SetDefault("vectorstore.chroma.url", d.VectorStore.Chroma.URL)
	v.SetDefault("vectorstore.chroma.collection_prefix", d.VectorStore.Chroma.CollectionPrefix)

	v.SetDefault("query", d.Query)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// normalizeExtensions lowercases the extensions and adds a missing leading dot.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// Validate validates the configuration for the given source.
func Validate(cfg *Config, source string) []error {
	var errs []error

	validProviders := map[string]bool{
		"gemini": true, "ollama": true, "openai": true, "hash": true,
	}
	if !validProviders[cfg.Embedding.Provider] {
		errs = append(errs, fmt.Errorf("%w: embedding provider %q", ErrInvalidConfig, cfg.Embedding.Provider))
	}
	if cfg.Embedding.Fallback != "none" && cfg.Embedding.Fallback != "" && !validProviders[cfg.Embedding.Fallback] {
		errs = append(errs, fmt.Errorf("%w: embedding fallback %q", ErrInvalidConfig, cfg.Embedding.Fallback))
	}
	if cfg.Embedding.Dimensions < 0 {
		errs = append(errs, fmt.Errorf("%w: embedding dimensions must not be negative", ErrInvalidConfig))
	}
	if cfg.Embedding.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: embedding batch_size must be positive", ErrInvalidConfig))
	}
	if cfg.Embedding.Hash.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("%w: hash embedder dimensions must be positive", ErrInvalidConfig))
	}

	validStores := map[string]bool{"memory": true, "chroma": true}
	if !validStores[cfg.VectorStore.Provider] {
		errs = append(errs, fmt.Errorf("%w: vector store %q", ErrInvalidConfig, cfg.VectorStore.Provider))
	}
	if cfg.VectorStore.TopK <= 0 {
		errs = append(errs, fmt.Errorf("%w: top_k must be positive", ErrInvalidConfig))
	}
	if cfg.Gemini.Temperature < 0 || cfg.Gemini.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidConfig))
	}
	if strings.TrimSpace(cfg.Query) == "" {
		errs = append(errs, fmt.Errorf("%w: query is required", ErrInvalidConfig))
	}

	switch source {
	case SourceGitHub:
		if owner, name, ok := strings.Cut(cfg.GitHub.Repo, "/"); !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			errs = append(errs, fmt.Errorf("%w: repo must be owner/name, got %q", ErrInvalidConfig, cfg.GitHub.Repo))
		}
		if cfg.GitHub.Branch == "" {
			errs = append(errs, fmt.Errorf("%w: branch is required", ErrInvalidConfig))
		}
		if len(cfg.GitHub.Extensions) == 0 {
			errs = append(errs, fmt.Errorf("%w: at least one file extension is required", ErrInvalidConfig))
		}
		errs = append(errs, validateChunking(cfg.GitHub.ChunkSize, cfg.GitHub.ChunkOverlap)...)
	case SourcePDF:
		if cfg.PDF.Path == "" {
			errs = append(errs, fmt.Errorf("%w: pdf path is required", ErrInvalidConfig))
		}
		if cfg.PDF.Engine != "ledongthuc" && cfg.PDF.Engine != "unipdf" {
			errs = append(errs, fmt.Errorf("%w: pdf engine %q", ErrInvalidConfig, cfg.PDF.Engine))
		}
		errs = append(errs, validateChunking(cfg.PDF.ChunkSize, cfg.PDF.ChunkOverlap)...)
	default:
		errs = append(errs, fmt.Errorf("%w: unknown source %q", ErrInvalidConfig, source))
	}

	return errs
}

func validateChunking(size, overlap int) []error {
	var errs []error
	if size <= 0 {
		errs = append(errs, fmt.Errorf("%w: chunk_size must be positive", ErrInvalidConfig))
	}
	if overlap < 0 {
		errs = append(errs, fmt.Errorf("%w: chunk_overlap must not be negative", ErrInvalidConfig))
	}
	if size > 0 && overlap >= size {
		errs = append(errs, fmt.Errorf("%w: chunk_overlap (%d) must be smaller than chunk_size (%d)", ErrInvalidConfig, overlap, size))
	}
	return errs
}

// RequireCredentials reports every credential the source needs that is not set.
// The chat model is always Gemini, so GOOGLE_API_KEY is required for both sources.
func RequireCredentials(cfg *Config, source string) error {
	var missing []string
	if source == SourceGitHub && cfg.GitHub.Token == "" {
		missing = append(missing, "GITHUB_TOKEN")
	}
	if cfg.Gemini.APIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if cfg.PDF.Engine == "unipdf" && source == SourcePDF && cfg.PDF.UnidocLicenseKey == "" {
		missing = append(missing, "UNIDOC_LICENSE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: environment variables %s must be set", ErrMissingCredential, strings.Join(missing, " and "))
	}
	return nil
}

// ExpandPath resolves a leading ~ in a local path.
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + p[1:]
		}
	}
	return p
}
