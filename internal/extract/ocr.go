package extract

import (
	"context"
	"strings"
)

// OCREngine recognises text in an image file.
type OCREngine interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// TesseractOCR runs the tesseract binary.
type TesseractOCR struct {
	Path     string
	Language string
}

// NewTesseractOCR returns an engine that runs the tesseract binary at path (looked up in PATH
// when not absolute) with the given language.
func NewTesseractOCR(path, language string) *TesseractOCR {
	if path == "" {
		path = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &TesseractOCR{Path: path, Language: language}
}

// Recognize implements OCREngine.
func (t *TesseractOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	out, err := runCommand(ctx, t.Path, imagePath, "stdout", "-l", t.Language)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
