// Package source acquires the raw ticket dump: plain text files, PDF exports
// and Jira searches.
package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"jiratriage/internal/config"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.Config) (Extractor, error) {
	switch cfg.PDFExtractor {
	case "pdftotext", "":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "native":
		return NativePDF{}, nil
	default:
		return nil, eris.Errorf("source: unknown pdf extractor %q", cfg.PDFExtractor)
	}
}

// ReadDump returns the text of path. Files with a .pdf extension go through
// the extractor; everything else is read as text.
func ReadDump(ctx context.Context, extractor Extractor, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		if extractor == nil {
			return "", eris.Errorf("source: no pdf extractor configured for %s", path)
		}
		if _, err := os.Stat(path); err != nil {
			return "", eris.Wrapf(err, "source: stat %s", path)
		}
		return extractor.ExtractText(ctx, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "source: read %s", path)
	}
	return string(data), nil
}
