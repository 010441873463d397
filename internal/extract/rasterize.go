package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
)

// Rasterizer renders every page of a PDF to an image file in outDir and returns the image
// paths in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error)
}

// PdftoppmRasterizer runs poppler's pdftoppm.
type PdftoppmRasterizer struct {
	Path string
	DPI  int
}

// NewPdftoppmRasterizer returns a rasterizer rendering PNGs at dpi.
func NewPdftoppmRasterizer(path string, dpi int) *PdftoppmRasterizer {
	if path == "" {
		path = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 300
	}
	return &PdftoppmRasterizer{Path: path, DPI: dpi}
}

// Rasterize implements Rasterizer.
func (p *PdftoppmRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	prefix := filepath.Join(outDir, "page")
	if _, err := runCommand(ctx, p.Path, "-r", strconv.Itoa(p.DPI), "-png", pdfPath, prefix); err != nil {
		return nil, err
	}
	// pdftoppm zero-pads page numbers to a common width, so lexical order is page order.
	pages, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	sort.Strings(pages)
	return pages, nil
}
