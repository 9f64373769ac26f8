// Package extractor pulls plain text out of PDF files.
package extractor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// pageSource is the subset of a parsed PDF the extractor reads.
type pageSource interface {
	NumPage() int
	PageText(n int) (string, error) // 1-based
}

type openFunc func(path string) (pageSource, io.Closer, error)

// Extractor reads per-page text from PDFs. It holds no state between calls.
type Extractor struct {
	open openFunc
	log  zerolog.Logger
}

// New creates an extractor backed by github.com/ledongthuc/pdf
func New(log zerolog.Logger) *Extractor {
	return &Extractor{open: openPDF, log: log}
}

// Extract returns the text of every page, each followed by a newline.
// Pages that cannot be decoded (scanned images, broken fonts) contribute an empty
// line instead of failing the whole document.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("failed to stat pdf: %w", err)
	}

	doc, closer, err := e.open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf %s: %w", path, err)
	}
	defer closer.Close()

	var sb strings.Builder
	pages := doc.NumPage()
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := doc.PageText(i)
		if err != nil {
			e.log.Debug().Err(err).Str("path", path).Int("page", i).Msg("skipping unreadable page")
			text = ""
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	return sb.String(), nil
}

// ledongthucReader adapts *pdf.Reader to pageSource
type ledongthucReader struct {
	r *pdf.Reader
}

func openPDF(path string) (pageSource, io.Closer, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		if f != nil {
			f.Close()
		}
		return nil, nil, err
	}
	return ledongthucReader{r: r}, f, nil
}

func (l ledongthucReader) NumPage() int {
	return l.r.NumPage()
}

func (l ledongthucReader) PageText(n int) (string, error) {
	page := l.r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}
