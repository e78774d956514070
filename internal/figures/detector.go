// Package figures locates figure regions on document pages and materializes
// them as cropped image files. Three strategies of decreasing precision are
// tried in fixed order: an external learned layout detector, image-block
// geometry recovered from the page content stream, and raw embedded-image
// extraction.
package figures

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"strings"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/pdf"
	"github.com/gridone/paperlens/models"
)

// Detector is one strategy for locating figures on a page. Detect writes
// crops into outDir using the page_<n>_figure_<i>.<ext> convention and
// returns them in index order. Indexes may have gaps where candidates were
// filtered out; they still count, so citations stay aligned with what the
// model was shown.
type Detector interface {
	Name() string
	Detect(ctx context.Context, doc *pdf.Document, pageIndex int, outDir string) ([]models.FigureCrop, error)
}

// CropName returns the filename for a figure crop on a one-based page.
func CropName(pageNumber, index int, ext string) string {
	return fmt.Sprintf("page_%d_figure_%d.%s", pageNumber, index, strings.TrimPrefix(ext, "."))
}

// Cascade evaluates detectors in fixed priority order. Which tiers are live
// is decided once per run at construction, never re-probed per page.
type Cascade struct {
	learned   Detector // nil when the layout service is not live
	fallbacks []Detector
	log       logger.Logger
}

// NewCascade builds the detection cascade for one run. The learned tier is
// included only when a layout service is configured and reachable; block
// geometry and embedded-image extraction are always available.
func NewCascade(ctx context.Context, cfg *config.Config, log logger.Logger) *Cascade {
	c := &Cascade{
		fallbacks: []Detector{
			&BlockDetector{log: log},
			&EmbeddedDetector{log: log},
		},
		log: log,
	}
	if cfg.LayoutServiceURL != "" {
		learned, err := NewLearnedDetector(ctx, cfg.LayoutServiceURL, cfg.LayoutConfidence, log)
		if err != nil {
			log.Warn("Layout service unavailable, using fallback tiers: %v", err)
		} else {
			c.learned = learned
		}
	}
	log.Info("Figure detection tiers: %s", strings.Join(c.TierNames(), ", "))
	return c
}

// TierNames lists the live tiers in evaluation order.
func (c *Cascade) TierNames() []string {
	var names []string
	if c.learned != nil {
		names = append(names, c.learned.Name())
	}
	for _, d := range c.fallbacks {
		names = append(names, d.Name())
	}
	return names
}

// Detect returns the figure crops for the zero-based page. When the learned
// tier is live it owns the page outright: an empty result is final. Without
// it, block geometry is tried first and embedded-image extraction only when
// no crop was produced. Tier errors fall through to the next tier and are
// never fatal to extraction.
func (c *Cascade) Detect(ctx context.Context, doc *pdf.Document, pageIndex int, outDir string) []models.FigureCrop {
	if c.learned != nil {
		crops, err := c.learned.Detect(ctx, doc, pageIndex, outDir)
		if err == nil {
			return crops
		}
		c.log.Warn("Tier %s failed on page %d, falling back: %v", c.learned.Name(), pageIndex+1, err)
	}
	for _, tier := range c.fallbacks {
		crops, err := tier.Detect(ctx, doc, pageIndex, outDir)
		if err != nil {
			c.log.Warn("Tier %s failed on page %d: %v", tier.Name(), pageIndex+1, err)
			continue
		}
		if len(crops) > 0 {
			return crops
		}
	}
	return nil
}

// cropImage cuts the pixel region out of img, clamped to the image bounds.
func cropImage(img image.Image, r image.Rectangle) (image.Image, error) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil, fmt.Errorf("region lies outside the rendered page")
	}
	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("rendered page image does not support cropping")
	}
	return sub.SubImage(r), nil
}

// writePNG encodes img into a file at path.
func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}

func encodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}
