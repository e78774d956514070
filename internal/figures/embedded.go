package figures

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/pdf"
	"github.com/gridone/paperlens/models"
)

const (
	// More embedded images than this means an icon-heavy page where raw
	// extraction would produce noise, so the tier returns nothing.
	maxEmbeddedImages = 5
	// Images below this size are thumbnails or icons.
	minEmbeddedBytes = 10 * 1024
)

// EmbeddedDetector is the last tier: it lifts raster images embedded on the
// page out of the document verbatim, with no layout judgement at all.
type EmbeddedDetector struct {
	log logger.Logger
}

func (d *EmbeddedDetector) Name() string { return "embedded-images" }

// Detect extracts the page's embedded images in ascending object number
// order, saved with their native file type. Small images are skipped but
// still consume an index; a page with more than maxEmbeddedImages embedded
// images yields nothing regardless of their size.
func (d *EmbeddedDetector) Detect(ctx context.Context, doc *pdf.Document, pageIndex int, outDir string) ([]models.FigureCrop, error) {
	pageNr := pageIndex + 1
	pctx := doc.Context()

	if n := len(pdfcpu.ImageObjNrs(pctx, pageNr)); n > maxEmbeddedImages {
		d.log.Debug("Page %d has %d embedded images, skipping raw extraction", pageNr, n)
		return nil, nil
	}

	images, err := pdfcpu.ExtractPageImages(pctx, pageNr, false)
	if err != nil {
		return nil, err
	}

	objNrs := make([]int, 0, len(images))
	for nr := range images {
		objNrs = append(objNrs, nr)
	}
	sort.Ints(objNrs)

	var crops []models.FigureCrop
	for idx, nr := range objNrs {
		img := images[nr]
		data, err := io.ReadAll(img)
		if err != nil {
			d.log.Debug("Skipping embedded image %d on page %d: %v", nr, pageNr, err)
			continue
		}
		if len(data) < minEmbeddedBytes {
			continue
		}
		ext := img.FileType
		if ext == "" {
			ext = "png"
		}
		path := filepath.Join(outDir, CropName(pageNr, idx, ext))
		if err := os.WriteFile(path, data, 0644); err != nil {
			d.log.Warn("Failed to save embedded image %s: %v", path, err)
			continue
		}
		crops = append(crops, models.FigureCrop{Page: pageNr, Index: idx, ImagePath: path})
	}
	return crops, nil
}
