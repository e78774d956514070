package figures

import (
	"context"
	"image"
	"io"
	"math"
	"path/filepath"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/internal/pdf"
	"github.com/gridone/paperlens/models"
)

const (
	// blockPadding widens each image box to include borders, in PDF units.
	blockPadding = 5.0
	// Boxes smaller than this are icons or decorations, not figures.
	minBlockWidth  = 100.0
	minBlockHeight = 50.0
	// blockZoom is the render scale for cropped regions.
	blockZoom = 3
)

// BlockDetector is the second tier: it recovers the placement rectangle of
// every image XObject drawn by the page content stream and crops those
// regions from a high-resolution page render. Geometry comes from the
// graphics state (q/Q/cm) at each Do operator.
type BlockDetector struct {
	log logger.Logger
}

func (d *BlockDetector) Name() string { return "block-geometry" }

// Detect returns a crop per image block large enough to be a figure. Blocks
// filtered for size and blocks that fail to render still consume an index.
// A page without image blocks yields no crops, which makes the cascade fall
// through to embedded-image extraction.
func (d *BlockDetector) Detect(ctx context.Context, doc *pdf.Document, pageIndex int, outDir string) ([]models.FigureCrop, error) {
	pageNr := pageIndex + 1
	pctx := doc.Context()

	names := imageResourceNames(pctx, pageNr)
	if len(names) == 0 {
		return nil, nil
	}

	reader, err := pdfcpu.ExtractPageContent(pctx, pageNr)
	if err != nil {
		return nil, err
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	boxes := imagePlacements(content, names)
	if len(boxes) == 0 {
		return nil, nil
	}

	_, pageHeight, err := doc.PageBounds(pageIndex)
	if err != nil {
		return nil, err
	}
	rendered, err := doc.RenderImage(pageIndex, blockZoom*pdf.BaseDPI)
	if err != nil {
		return nil, err
	}

	var crops []models.FigureCrop
	for idx, box := range boxes {
		padded := box.pad(blockPadding)
		if padded.width() < minBlockWidth || padded.height() < minBlockHeight {
			continue
		}

		// PDF user space has its origin bottom-left; the raster is
		// top-left. Flip, then scale into pixels.
		rect := image.Rect(
			int(padded.x0*blockZoom),
			int((pageHeight-padded.y1)*blockZoom),
			int(padded.x1*blockZoom),
			int((pageHeight-padded.y0)*blockZoom),
		)
		crop, err := cropImage(rendered, rect)
		if err != nil {
			d.log.Debug("Skipping image block %d on page %d: %v", idx, pageNr, err)
			continue
		}
		path := filepath.Join(outDir, CropName(pageNr, idx, "png"))
		if err := writePNG(path, crop); err != nil {
			d.log.Warn("Failed to save figure crop %s: %v", path, err)
			continue
		}
		crops = append(crops, models.FigureCrop{Page: pageNr, Index: idx, ImagePath: path})
	}
	return crops, nil
}

// imageResourceNames returns the XObject resource names of the page's
// images. The stub extraction reads metadata only, no image decoding.
func imageResourceNames(pctx *model.Context, pageNr int) map[string]bool {
	images, err := pdfcpu.ExtractPageImages(pctx, pageNr, true)
	if err != nil || len(images) == 0 {
		return nil
	}
	names := make(map[string]bool, len(images))
	for _, img := range images {
		names[img.Name] = true
	}
	return names
}

// box is an axis-aligned rectangle in PDF user space.
type box struct {
	x0, y0, x1, y1 float64
}

func (b box) width() float64  { return b.x1 - b.x0 }
func (b box) height() float64 { return b.y1 - b.y0 }

func (b box) pad(p float64) box {
	return box{x0: b.x0 - p, y0: b.y0 - p, x1: b.x1 + p, y1: b.y1 + p}
}

// matrix is a PDF transformation matrix [a b c d e f].
type matrix struct {
	a, b, c, d, e, f float64
}

var identity = matrix{a: 1, d: 1}

// mul returns m concatenated onto n (m applied first).
func (m matrix) mul(n matrix) matrix {
	return matrix{
		a: m.a*n.a + m.b*n.c,
		b: m.a*n.b + m.b*n.d,
		c: m.c*n.a + m.d*n.c,
		d: m.c*n.b + m.d*n.d,
		e: m.e*n.a + m.f*n.c + n.e,
		f: m.e*n.b + m.f*n.d + n.f,
	}
}

// apply transforms the point (x, y).
func (m matrix) apply(x, y float64) (float64, float64) {
	return m.a*x + m.c*y + m.e, m.b*x + m.d*y + m.f
}

// unitSquareBounds is the bounding box of the unit square under m. Image
// XObjects are drawn into the unit square, so this is the placement
// rectangle on the page.
func (m matrix) unitSquareBounds() box {
	xs := [4]float64{}
	ys := [4]float64{}
	corners := [4][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}}
	for i, c := range corners {
		xs[i], ys[i] = m.apply(c[0], c[1])
	}
	b := box{x0: xs[0], y0: ys[0], x1: xs[0], y1: ys[0]}
	for i := 1; i < 4; i++ {
		b.x0 = math.Min(b.x0, xs[i])
		b.y0 = math.Min(b.y0, ys[i])
		b.x1 = math.Max(b.x1, xs[i])
		b.y1 = math.Max(b.y1, ys[i])
	}
	return b
}

// imagePlacements walks the content stream's graphics state and returns the
// placement rectangle of every Do of a named image XObject, in drawing
// order. The tokenizer understands just enough of the operator stream for
// q/Q/cm/Do; inline content it cannot parse is skipped.
func imagePlacements(content []byte, imageNames map[string]bool) []box {
	var boxes []box

	ctm := identity
	var stack []matrix
	var operands []token

	for _, tok := range tokenize(content) {
		switch {
		case tok.kind == tokenOperator && tok.text == "q":
			stack = append(stack, ctm)
			operands = operands[:0]
		case tok.kind == tokenOperator && tok.text == "Q":
			if n := len(stack); n > 0 {
				ctm = stack[n-1]
				stack = stack[:n-1]
			}
			operands = operands[:0]
		case tok.kind == tokenOperator && tok.text == "cm":
			if m, ok := matrixFromOperands(operands); ok {
				ctm = m.mul(ctm)
			}
			operands = operands[:0]
		case tok.kind == tokenOperator && tok.text == "Do":
			if n := len(operands); n > 0 {
				last := operands[n-1]
				if last.kind == tokenName && imageNames[last.text] {
					boxes = append(boxes, ctm.unitSquareBounds())
				}
			}
			operands = operands[:0]
		case tok.kind == tokenOperator:
			operands = operands[:0]
		default:
			operands = append(operands, tok)
		}
	}
	return boxes
}

func matrixFromOperands(operands []token) (matrix, bool) {
	if len(operands) < 6 {
		return matrix{}, false
	}
	vals := [6]float64{}
	for i := 0; i < 6; i++ {
		tok := operands[len(operands)-6+i]
		if tok.kind != tokenNumber {
			return matrix{}, false
		}
		v, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return matrix{}, false
		}
		vals[i] = v
	}
	return matrix{a: vals[0], b: vals[1], c: vals[2], d: vals[3], e: vals[4], f: vals[5]}, true
}

type tokenKind int

const (
	tokenNumber tokenKind = iota
	tokenName
	tokenOperator
)

type token struct {
	kind tokenKind
	text string
}

// tokenize splits a content stream into numbers, names, and operators.
// Strings, arrays, and dictionaries are consumed and dropped; they never
// carry the geometry this detector needs.
func tokenize(content []byte) []token {
	var tokens []token
	i := 0
	n := len(content)

	for i < n {
		ch := content[i]
		switch {
		case isWhitespace(ch):
			i++
		case ch == '%': // comment to end of line
			for i < n && content[i] != '\n' {
				i++
			}
		case ch == '(': // string literal, balanced parens with escapes
			depth := 1
			i++
			for i < n && depth > 0 {
				switch content[i] {
				case '\\':
					i++
				case '(':
					depth++
				case ')':
					depth--
				}
				i++
			}
		case ch == '<' || ch == '>' || ch == '[' || ch == ']' || ch == '{' || ch == '}':
			i++
		case ch == '/':
			start := i + 1
			i++
			for i < n && !isDelimiter(content[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenName, text: string(content[start:i])})
		case ch == '+' || ch == '-' || ch == '.' || (ch >= '0' && ch <= '9'):
			start := i
			i++
			for i < n && (content[i] == '.' || (content[i] >= '0' && content[i] <= '9')) {
				i++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: string(content[start:i])})
		default:
			start := i
			for i < n && !isDelimiter(content[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokenOperator, text: string(content[start:i])})
		}
	}
	return tokens
}

func isWhitespace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '\f' || ch == 0
}

func isDelimiter(ch byte) bool {
	return isWhitespace(ch) || ch == '(' || ch == ')' || ch == '<' || ch == '>' ||
		ch == '[' || ch == ']' || ch == '{' || ch == '}' || ch == '/' || ch == '%'
}
