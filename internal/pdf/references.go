package pdf

import "strings"

// referenceKeywords are the section headings that mark the start of a
// bibliography. The Korean variants cover the corpora this service was
// originally deployed against.
var referenceKeywords = []string{
	"references",
	"bibliography",
	"works cited",
	"citations",
	"참고문헌",
	"참고 문헌",
}

// headingScanWindow is how many leading characters of a page are searched
// for a reference heading.
const headingScanWindow = 500

// TextSource is the page-text access FindReferenceSection needs. *Document
// satisfies it; tests substitute fixed text.
type TextSource interface {
	PageCount() int
	PageText(index int) (string, error)
}

// FindReferenceSection scans pages 0..bound-1 and returns the zero-based
// index of the first page whose leading text carries a reference-section
// heading, or -1 when none is found. Pages whose text cannot be read are
// skipped rather than failing the scan.
func FindReferenceSection(doc TextSource, bound int) int {
	if n := doc.PageCount(); bound > n {
		bound = n
	}
	for i := 0; i < bound; i++ {
		text, err := doc.PageText(i)
		if err != nil {
			continue
		}
		if HasReferenceHeading(text) {
			return i
		}
	}
	return -1
}

// HasReferenceHeading reports whether the page text begins a reference
// section. A keyword counts as a heading only at the very start of the page
// or alone on its own line within the scan window; inline mentions are
// ignored. Matching is case-insensitive.
func HasReferenceHeading(text string) bool {
	head := strings.ToLower(text)
	if runes := []rune(head); len(runes) > headingScanWindow {
		head = string(runes[:headingScanWindow])
	}
	for _, kw := range referenceKeywords {
		if strings.HasPrefix(head, kw) || strings.Contains(head, "\n"+kw+"\n") {
			return true
		}
	}
	return false
}
