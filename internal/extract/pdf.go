package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// readPDFText returns the embedded text layer of the PDF at path, pages separated by newlines.
func readPDFText(path string) (text string, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse PDF: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", i, err)
		}
		b.WriteString(pageText)
		if i < numPages {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}

// countTextRunes counts the non-space runes of s.
func countTextRunes(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// extractPDF reads the text layer and falls back to rasterising and OCRing every page when the
// layer has fewer than minTextChars non-space runes.
func (e *Extractor) extractPDF(ctx context.Context, path, workDir string) (string, error) {
	text, layerErr := readPDFText(path)
	if layerErr == nil && countTextRunes(text) >= e.minTextChars {
		return text, nil
	}
	if e.rasterizer == nil || e.ocr == nil {
		if layerErr != nil {
			return "", layerErr
		}
		return text, nil
	}
	if layerErr != nil {
		e.logger.Debug("pdf text layer unreadable, falling back to OCR", zap.Error(layerErr))
	} else {
		e.logger.Debug("pdf text layer too sparse, falling back to OCR")
	}

	pages, err := e.rasterizer.Rasterize(ctx, path, workDir)
	if err != nil {
		return "", fmt.Errorf("rasterize PDF: %w", err)
	}
	var b strings.Builder
	for i, page := range pages {
		pageText, err := e.ocr.Recognize(ctx, page)
		if err != nil {
			return "", fmt.Errorf("ocr page %d: %w", i+1, err)
		}
		b.WriteString(pageText)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
