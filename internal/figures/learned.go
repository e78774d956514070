package figures

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/pdf"
	"github.com/gridone/paperlens/models"
)

// learnedRenderDPI renders pages at 2x for detection, matching the scale the
// layout models are served at.
const learnedRenderDPI = 2 * pdf.BaseDPI

// LearnedDetector is the first tier: an external instance-segmentation
// layout service. It is live for a run only when its health endpoint
// answered at cascade construction.
type LearnedDetector struct {
	baseURL       string
	minConfidence float64
	client        *http.Client
	log           logger.Logger
}

type detectRequest struct {
	Image string `json:"image"` // base64 PNG
}

type detectedRegion struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label,omitempty"`
}

type detectResponse struct {
	Regions []detectedRegion `json:"regions"`
}

// NewLearnedDetector probes the layout service and returns a detector bound
// to it. An unreachable service is an error so the cascade can drop the tier
// for the whole run.
func NewLearnedDetector(ctx context.Context, baseURL string, minConfidence float64, log logger.Logger) (*LearnedDetector, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid layout service URL: %w", err)
	}
	client := &http.Client{Timeout: 30 * time.Second}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("layout service health check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("layout service health check returned %s", resp.Status)
	}

	return &LearnedDetector{
		baseURL:       baseURL,
		minConfidence: minConfidence,
		client:        client,
		log:           log,
	}, nil
}

func (d *LearnedDetector) Name() string { return "learned-layout" }

// Detect renders the page at 2x, asks the service for figure regions, and
// crops every region at or above the confidence threshold. Regions below the
// threshold and regions that fail to crop still consume an index, so the
// indexes the model cites stay aligned with detection order.
func (d *LearnedDetector) Detect(ctx context.Context, doc *pdf.Document, pageIndex int, outDir string) ([]models.FigureCrop, error) {
	img, err := doc.RenderImage(pageIndex, learnedRenderDPI)
	if err != nil {
		return nil, err
	}

	regions, err := d.detectRegions(ctx, img)
	if err != nil {
		return nil, err
	}

	pageNumber := pageIndex + 1
	var crops []models.FigureCrop
	for idx, region := range regions {
		if region.Confidence < d.minConfidence {
			continue
		}
		rect := image.Rect(
			int(region.X), int(region.Y),
			int(region.X+region.Width), int(region.Y+region.Height),
		)
		crop, err := cropImage(img, rect)
		if err != nil {
			d.log.Debug("Skipping region %d on page %d: %v", idx, pageNumber, err)
			continue
		}
		path := filepath.Join(outDir, CropName(pageNumber, idx, "png"))
		if err := writePNG(path, crop); err != nil {
			d.log.Warn("Failed to save figure crop %s: %v", path, err)
			continue
		}
		crops = append(crops, models.FigureCrop{Page: pageNumber, Index: idx, ImagePath: path})
	}
	return crops, nil
}

// detectRegions posts the rendered page to the service.
func (d *LearnedDetector) detectRegions(ctx context.Context, img image.Image) ([]detectedRegion, error) {
	var png bytes.Buffer
	if err := encodePNG(&png, img); err != nil {
		return nil, fmt.Errorf("encoding page for detection: %w", err)
	}

	body, err := json.Marshal(detectRequest{Image: base64.StdEncoding.EncodeToString(png.Bytes())})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/detect", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("layout service request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("layout service returned %s", resp.Status)
	}

	var parsed detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding layout response: %w", err)
	}
	return parsed.Regions, nil
}
