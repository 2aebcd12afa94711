package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// ErrPDFToolMissing is returned when the pdftotext binary cannot be found.
var ErrPDFToolMissing = errors.New("pdftotext not found in PATH")

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	manySpaces   = regexp.MustCompile(` {2,}`)
)

// PDFExtractor turns a PDF file into plain text.
type PDFExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// PDFToText extracts text with poppler's pdftotext.
type PDFToText struct {
	// Bin is the pdftotext executable; empty means "pdftotext" from PATH.
	Bin string
}

// ExtractText runs pdftotext on path and returns the cleaned text.
func (p PDFToText) ExtractText(ctx context.Context, path string) (string, error) {
	bin := p.Bin
	if bin == "" {
		bin = "pdftotext"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return "", ErrPDFToolMissing
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-enc", "UTF-8", path, "-")
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext %s: %w (%s)", path, err, strings.TrimSpace(stderr.String()))
	}
	return CleanPDFText(string(out)), nil
}

// CleanPDFText joins form-feed separated pages with blank lines and
// squeezes runs of blank lines and spaces.
func CleanPDFText(raw string) string {
	var pages []string
	for _, page := range strings.Split(raw, "\f") {
		page = strings.TrimSpace(page)
		if page != "" {
			pages = append(pages, page)
		}
	}
	text := strings.Join(pages, "\n\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = manySpaces.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
