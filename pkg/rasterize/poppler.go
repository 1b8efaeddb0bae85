package rasterize

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gardar/ocrbatch/pkg/ocr"
)

const (
	// DefaultDPI matches the resolution the extraction pipeline was tuned
	// for; OCR quality degrades noticeably below it on scanned documents.
	DefaultDPI = 300

	defaultBin = "pdftoppm"
)

// Poppler renders PDF pages to PNG images using the pdftoppm tool.
type Poppler struct {
	BinPath string // pdftoppm binary, "pdftoppm" when empty
	DPI     int    // render resolution, DefaultDPI when zero or negative
}

// NewPoppler creates a pdftoppm-backed rasterizer.
func NewPoppler(binPath string, dpi int) *Poppler {
	if binPath == "" {
		binPath = defaultBin
	}
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return &Poppler{BinPath: binPath, DPI: dpi}
}

// Rasterize validates the document, renders every page to PNG in a temporary
// directory and returns the pages in ascending order.
func (p *Poppler) Rasterize(ctx context.Context, pdfPath string) ([]ocr.Page, error) {
	expected, err := pageCount(pdfPath)
	if err != nil {
		return nil, &RasterizationError{Path: pdfPath, Err: err}
	}

	tmpDir, err := os.MkdirTemp("", "ocrbatch-pages-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	bin := p.BinPath
	if bin == "" {
		bin = defaultBin
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	prefix := filepath.Join(tmpDir, "page")
	cmd := exec.CommandContext(ctx, bin, "-png", "-r", strconv.Itoa(dpi), pdfPath, prefix)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &RasterizationError{
			Path: pdfPath,
			Err:  fmt.Errorf("%s failed: %w: %s", bin, err, strings.TrimSpace(stderr.String())),
		}
	}

	pages, err := collectPages(tmpDir)
	if err != nil {
		return nil, &RasterizationError{Path: pdfPath, Err: err}
	}
	if len(pages) != expected {
		return nil, &RasterizationError{
			Path: pdfPath,
			Err:  fmt.Errorf("rendered %d pages, document has %d", len(pages), expected),
		}
	}
	return pages, nil
}

// collectPages reads the rendered page-N.png files and orders them by the
// page number pdftoppm put in the file name.
func collectPages(dir string) ([]ocr.Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var pages []ocr.Page
	for _, entry := range entries {
		name := entry.Name()
		idx, ok := pageIndexFromName(name)
		if !ok {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		pages = append(pages, ocr.Page{Index: idx, PNG: data})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("renderer produced no page images")
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].Index < pages[j].Index })
	for i, page := range pages {
		if page.Index != i+1 {
			return nil, fmt.Errorf("page sequence has a gap at index %d", i+1)
		}
	}
	return pages, nil
}

// pageIndexFromName parses the 1-based page number out of a pdftoppm output
// file name such as "page-3.png" or "page-017.png".
func pageIndexFromName(name string) (int, bool) {
	if !strings.HasSuffix(name, ".png") {
		return 0, false
	}
	base := strings.TrimSuffix(name, ".png")
	dash := strings.LastIndexByte(base, '-')
	if dash < 0 {
		return 0, false
	}
	idx, err := strconv.Atoi(base[dash+1:])
	if err != nil || idx < 1 {
		return 0, false
	}
	return idx, true
}
