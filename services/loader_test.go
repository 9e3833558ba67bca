package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragpipe/docqa/models"
)

func TestLoadDocuments_ReturnsDocuments(t *testing.T) {
	logger, logs := captureLogger()
	loader := &fakeLoader{docs: pageDocs(3)}

	docs := LoadDocuments(context.Background(), loader, logger)

	require.Len(t, docs, 3)
	assert.Contains(t, logs.String(), "loaded documents")
}

func TestLoadDocuments_FailuresAreLoggedAndAbsent(t *testing.T) {
	tests := []struct {
		name    string
		loader  *fakeLoader
		wantLog string
	}{
		{
			name:    "loader error",
			loader:  &fakeLoader{err: errors.New("rate limited")},
			wantLog: "rate limited",
		},
		{
			name:    "empty result",
			loader:  &fakeLoader{docs: []models.Document{}},
			wantLog: "no documents loaded",
		},
		{
			name:    "panic",
			loader:  &fakeLoader{panicMsg: "boom"},
			wantLog: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := captureLogger()

			docs := LoadDocuments(context.Background(), tt.loader, logger)

			assert.Nil(t, docs)
			assert.Contains(t, logs.String(), tt.wantLog)
		})
	}
}

func TestLoadDocuments_NilLogger(t *testing.T) {
	docs := LoadDocuments(context.Background(), &fakeLoader{err: errors.New("x")}, nil)
	assert.Nil(t, docs)
}

func TestPDFLoader_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pdf")
	loader, err := NewPDFLoader(path, PDFEngineLedongthuc, "", nil)
	require.NoError(t, err)

	_, err = loader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PDF file not found at "+path)

	logger, logs := captureLogger()
	assert.Nil(t, LoadDocuments(context.Background(), loader, logger))
	assert.Contains(t, logs.String(), "error loading documents")
	assert.Contains(t, logs.String(), "PDF file not found")
}

func TestPDFLoader_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o644))

	loader, err := NewPDFLoader(path, "", "", nil)
	require.NoError(t, err)

	logger, logs := captureLogger()
	docs := LoadDocuments(context.Background(), loader, logger)

	assert.Nil(t, docs)
	assert.Contains(t, logs.String(), "error loading documents")
}

func TestNewPDFLoader_Validation(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		engine  string
		key     string
		wantErr error
	}{
		{name: "empty path", path: "", engine: PDFEngineLedongthuc, wantErr: ErrInvalidConfig},
		{name: "unknown engine", path: "a.pdf", engine: "poppler", wantErr: ErrInvalidConfig},
		{name: "unipdf without license", path: "a.pdf", engine: PDFEngineUnipdf, wantErr: ErrMissingCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPDFLoader(tt.path, tt.engine, tt.key, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPDFLoader_Name(t *testing.T) {
	loader, err := NewPDFLoader("docs/manual.pdf", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "pdf:docs/manual.pdf", loader.Name())
}

func TestExtensionFilter(t *testing.T) {
	filter := ExtensionFilter(".md", ".TXT")

	tests := []struct {
		path string
		want bool
	}{
		{"README.md", true},
		{"docs/Guide.MD", true},
		{"notes.txt", true},
		{"main.go", false},
		{"Makefile", false},
		{"archive.md.gz", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, filter(tt.path), tt.path)
	}

	assert.True(t, DefaultFileFilter("CHANGELOG.md"))
	assert.False(t, DefaultFileFilter("CHANGELOG.rst"))
}

func TestCalculateFileHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	hash, err := calculateFileHash(path)
	require.NoError(t, err)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", hash)
}
