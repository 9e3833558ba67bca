package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/ledongthuc/pdf"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/ragpipe/docqa/logging"
	"github.com/ragpipe/docqa/models"
)

// PDF text extraction engines.
const (
	PDFEngineLedongthuc = "ledongthuc"
	PDFEngineUnipdf     = "unipdf"
)

// PDFLoader loads a local PDF as one Document per page.
type PDFLoader struct {
	path   string
	engine string
	logger hclog.Logger
}

// NewPDFLoader prepares a loader for path. The unipdf engine needs a metered
// license key, which is registered here rather than at package init.
func NewPDFLoader(path, engine, licenseKey string, logger hclog.Logger) (*PDFLoader, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: pdf path is required", ErrInvalidConfig)
	}
	switch engine {
	case "", PDFEngineLedongthuc:
		engine = PDFEngineLedongthuc
	case PDFEngineUnipdf:
		if licenseKey == "" {
			return nil, fmt.Errorf("%w: UNIDOC_LICENSE_KEY is required by the unipdf engine", ErrMissingCredential)
		}
		if err := license.SetMeteredKey(licenseKey); err != nil {
			return nil, fmt.Errorf("failed to set Unidoc license key: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown pdf engine %q", ErrInvalidConfig, engine)
	}
	return &PDFLoader{path: path, engine: engine, logger: logging.OrNull(logger)}, nil
}

// Name returns "pdf:<path>".
func (l *PDFLoader) Name() string {
	return "pdf:" + l.path
}

// Load extracts the text of every page. Pages without text still produce a
// Document so page numbers stay aligned with the file.
func (l *PDFLoader) Load(ctx context.Context) ([]models.Document, error) {
	if _, err := os.Stat(l.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("PDF file not found at %s: %w", l.path, err)
		}
		return nil, err
	}

	var (
		pages []string
		err   error
	)
	if l.engine == PDFEngineUnipdf {
		pages, err = extractPagesWithUnipdf(ctx, l.path)
	} else {
		pages, err = extractPagesWithLedongthuc(ctx, l.path)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading PDF: %w", err)
	}

	hash, err := calculateFileHash(l.path)
	if err != nil {
		return nil, err
	}

	docs := make([]models.Document, 0, len(pages))
	for i, text := range pages {
		docs = append(docs, models.Document{
			Content: text,
			Metadata: map[string]any{
				"source":      l.path,
				"page":        i,
				"total_pages": len(pages),
				"sha256":      hash,
			},
		})
	}
	l.logger.Debug("extracted pages", "path", l.path, "engine", l.engine, "pages", len(pages))
	return docs, nil
}

// extractPagesWithLedongthuc reads page text with the pure-Go ledongthuc/pdf reader.
func extractPagesWithLedongthuc(ctx context.Context, path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

// extractPagesWithUnipdf uses UniPDF to get the text of each page.
func extractPagesWithUnipdf(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return nil, err
		}

		ex, err := extractor.New(page)
		if err != nil {
			return nil, err
		}

		text, err := ex.ExtractText()
		if err != nil {
			return nil, err
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	return pages, nil
}
