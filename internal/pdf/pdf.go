package pdf

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// BaseDPI is the PDF reference resolution. Render scale is targetDPI/BaseDPI.
const BaseDPI = 72.0

// PageRenderError reports a page that could not be rasterized. Page is the
// zero-based index of the failing page.
type PageRenderError struct {
	Page int
	Err  error
}

func (e *PageRenderError) Error() string {
	return fmt.Sprintf("rendering page %d failed: %v", e.Page, e.Err)
}

func (e *PageRenderError) Unwrap() error { return e.Err }

// Document provides page-level access to a PDF through two backends over the
// same file: MuPDF for rasterizing and text extraction, pdfcpu for
// object-level access used by figure extraction.
type Document struct {
	path string
	fz   *fitz.Document
	pctx *model.Context
}

// Open opens and validates the document at path. The returned Document must
// be closed by the caller.
func Open(path string) (*Document, error) {
	fz, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		fz.Close()
		return nil, err
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		fz.Close()
		return nil, fmt.Errorf("validating document: %w", err)
	}

	return &Document{path: path, fz: fz, pctx: pctx}, nil
}

// Close releases the underlying document handles.
func (d *Document) Close() error {
	return d.fz.Close()
}

// Path returns the location the document was opened from.
func (d *Document) Path() string { return d.path }

// Context exposes the pdfcpu context for object-level access.
func (d *Document) Context() *model.Context { return d.pctx }

// PageCount returns the number of pages in the document.
func (d *Document) PageCount() int { return d.fz.NumPage() }

// PageText extracts the full text of the page at the zero-based index. No
// truncation happens at this layer.
func (d *Document) PageText(index int) (string, error) {
	text, err := d.fz.Text(index)
	if err != nil {
		return "", fmt.Errorf("extracting text of page %d: %w", index, err)
	}
	return text, nil
}

// RenderImage rasterizes the page at the zero-based index at the given DPI.
func (d *Document) RenderImage(index int, dpi float64) (image.Image, error) {
	img, err := d.fz.ImageDPI(index, dpi)
	if err != nil {
		return nil, &PageRenderError{Page: index, Err: err}
	}
	return img, nil
}

// RenderPNG rasterizes the page at the zero-based index into PNG bytes.
func (d *Document) RenderPNG(index int, dpi float64) ([]byte, error) {
	data, err := d.fz.ImagePNG(index, dpi)
	if err != nil {
		return nil, &PageRenderError{Page: index, Err: err}
	}
	return data, nil
}

// SavePagePNG renders the page and writes it into dir as page_<n>.png, keyed
// by the one-based page number. Returns the written path.
func (d *Document) SavePagePNG(index int, dpi float64, dir string) (string, error) {
	data, err := d.RenderPNG(index, dpi)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("page_%d.png", index+1))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing page image: %w", err)
	}
	return path, nil
}

// PageBounds returns the page box of the zero-based page in PDF units
// (1 unit = 1/72 inch).
func (d *Document) PageBounds(index int) (width, height float64, err error) {
	b, err := d.fz.Bound(index)
	if err != nil {
		return 0, 0, fmt.Errorf("reading bounds of page %d: %w", index, err)
	}
	return float64(b.Dx()), float64(b.Dy()), nil
}
