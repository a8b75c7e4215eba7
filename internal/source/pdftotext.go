package source

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// PdfToText shells out to poppler's pdftotext. Layout mode keeps the
// columns of a Jira export on one line, which the key pattern relies on.
type PdfToText struct {
	binPath string
}

func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText returns the text of the dump at pdfPath. Form feeds between
// pages become blank lines, the same page separator NativePDF uses.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", "-enc", "UTF-8", pdfPath, "-")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return "", eris.Wrapf(err, "source: %s not found; install poppler-utils or set pdf_extractor: native", p.binPath)
		}
		return "", eris.Wrapf(err, "source: read ticket dump %s with %s: %s",
			pdfPath, p.binPath, strings.TrimSpace(stderr.String()))
	}

	pages := strings.Count(stdout.String(), "\f")
	text := strings.ReplaceAll(stdout.String(), "\f", "\n\n")
	if strings.TrimSpace(text) == "" {
		zap.L().Warn("ticket dump has no text layer", zap.String("path", pdfPath))
	}
	zap.L().Debug("pdftotext done",
		zap.String("path", pdfPath),
		zap.Int("pages", pages),
		zap.Int("bytes", len(text)),
	)
	return text, nil
}
