package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

// Loader fetches the raw documents of one source.
type Loader interface {
	// Name identifies the source in logs, e.g. "github:owner/repo@master".
	Name() string

	// Load returns the documents in source order.
	Load(ctx context.Context) ([]models.Document, error)
}

// LoadDocuments runs the loader and reports any failure, including an empty
// result, through the logger. A failed load is returned as nil; callers treat
// "no documents" as a normal end of the run.
func LoadDocuments(ctx context.Context, loader Loader, logger hclog.Logger) (docs []models.Document) {
	logger = logging.OrNull(logger)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("error loading documents", "source", loader.Name(), "error", fmt.Sprint(r))
			docs = nil
		}
	}()

	docs, err := loader.Load(ctx)
	if err != nil {
		logger.Error("error loading documents", "source", loader.Name(), "error", err)
		return nil
	}
	if len(docs) == 0 {
		logger.Warn("no documents loaded", "source", loader.Name())
		return nil
	}
	logger.Info("loaded documents", "source", loader.Name(), "count", len(docs))
	return docs
}

// ExtensionFilter accepts paths whose extension (case-insensitive) is one of exts.
func ExtensionFilter(exts ...string) func(path string) bool {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}
	return func(path string) bool {
		return allowed[strings.ToLower(filepath.Ext(path))]
	}
}

// DefaultFileFilter accepts markdown documentation only.
var DefaultFileFilter = ExtensionFilter(".md")

func calculateFileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
