// docqa answers a question about a GitHub repository or a PDF with
// retrieval-augmented generation.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ragpipe/docqa/config"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	d := config.DefaultConfig()

	rootCmd := &cobra.Command{
		Use:   "docqa",
		Short: "Ask a question about a GitHub repository or a PDF",
		Long: `docqa loads documents from a GitHub repository or a local PDF, splits them
into chunks, embeds the chunks, indexes them in a vector store and answers one
question with a Gemini chat model grounded in the best matching chunks.

Credentials are read from the environment (or a .env file):
  GITHUB_TOKEN      required by the github command
  GOOGLE_API_KEY    required by both commands`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to a YAML config file")
	pf.String("log-level", d.Logging.Level, "log level (trace, debug, info, warn, error)")
	pf.String("log-format", d.Logging.Format, "log format (text, json)")
	pf.Int("top-k", d.VectorStore.TopK, "number of chunks retrieved for the answer")
	pf.String("store", d.VectorStore.Provider, "vector store (memory, chroma)")
	pf.String("chroma-url", d.VectorStore.Chroma.URL, "Chroma server URL")
	pf.String("embedding-provider", d.Embedding.Provider, "embedding provider (gemini, ollama, openai, hash)")
	pf.String("embedding-fallback", d.Embedding.Fallback, "fallback embedding provider, or none")

	config.BindFlag(pf, "log-level", "logging.level")
	config.BindFlag(pf, "log-format", "logging.format")
	config.BindFlag(pf, "top-k", "vectorstore.top_k")
	config.BindFlag(pf, "store", "vectorstore.provider")
	config.BindFlag(pf, "chroma-url", "vectorstore.chroma.url")
	config.BindFlag(pf, "embedding-provider", "embedding.provider")
	config.BindFlag(pf, "embedding-fallback", "embedding.fallback")

	rootCmd.AddCommand(newGitHubCmd(d), newPDFCmd(d), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "docqa %s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newGitHubCmd(d *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "github",
		Short: "Answer a question about the documentation of a GitHub repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSource(cmd, config.SourceGitHub)
		},
	}

	f := cmd.Flags()
	f.String("repo", "", "repository as owner/name")
	f.String("branch", d.GitHub.Branch, "branch to read")
	f.StringSlice("ext", d.GitHub.Extensions, "file extensions to load (repeatable)")
	f.String("query", "", "question to answer")
	f.Int("chunk-size", d.GitHub.ChunkSize, "maximum chunk length in characters")
	f.Int("chunk-overlap", d.GitHub.ChunkOverlap, "overlap between neighbouring chunks")

	config.BindFlag(f, "repo", "github.repo")
	config.BindFlag(f, "branch", "github.branch")
	config.BindFlag(f, "ext", "github.extensions")
	config.BindFlag(f, "query", "query")
	config.BindFlag(f, "chunk-size", "github.chunk_size")
	config.BindFlag(f, "chunk-overlap", "github.chunk_overlap")
	return cmd
}

func newPDFCmd(d *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf",
		Short: "Answer a question about a local PDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSource(cmd, config.SourcePDF)
		},
	}

	f := cmd.Flags()
	f.String("path", "", "path to the PDF file")
	f.String("engine", d.PDF.Engine, "text extraction engine (ledongthuc, unipdf)")
	f.String("query", "", "question to answer")
	f.Int("chunk-size", d.PDF.ChunkSize, "maximum chunk length in characters")
	f.Int("chunk-overlap", d.PDF.ChunkOverlap, "overlap between neighbouring chunks")

	config.BindFlag(f, "path", "pdf.path")
	config.BindFlag(f, "engine", "pdf.engine")
	config.BindFlag(f, "query", "query")
	config.BindFlag(f, "chunk-size", "pdf.chunk_size")
	config.BindFlag(f, "chunk-overlap", "pdf.chunk_overlap")
	return cmd
}

// loadConfig loads and checks the configuration for source. Every problem
// is reported at once.
func loadConfig(cmd *cobra.Command, source string) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(config.ExpandPath(path), cmd.Flags())
	if err != nil {
		return nil, err
	}
	if errs := config.Validate(cfg, source); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := config.RequireCredentials(cfg, source); err != nil {
		return nil, err
	}
	return cfg, nil
}
