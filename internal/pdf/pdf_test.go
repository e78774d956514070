package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeTextSource struct {
	pages []string
}

func (f *fakeTextSource) PageCount() int { return len(f.pages) }

func (f *fakeTextSource) PageText(index int) (string, error) {
	if index < 0 || index >= len(f.pages) {
		return "", fmt.Errorf("no page %d", index)
	}
	if f.pages[index] == "<unreadable>" {
		return "", fmt.Errorf("unreadable page %d", index)
	}
	return f.pages[index], nil
}

func TestHasReferenceHeading(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"heading at start", "References\nSmith, J. (2020). A study.", true},
		{"heading on own line", "Closing remarks.\nBibliography\nJones 1999", true},
		{"works cited", "Works Cited\n[1] ...", true},
		{"korean heading", "결론 요약.\n참고문헌\n[1] ...", true},
		{"upper case", "REFERENCES\n[1] ...", true},
		{"inline mention", "We refer to references throughout this work.", false},
		{"mid line mention", "see the bibliography below for details", false},
		{"beyond scan window", strings.Repeat("a", 600) + "\nreferences\n", false},
		{"empty text", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasReferenceHeading(tt.text); got != tt.want {
				t.Errorf("HasReferenceHeading(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestFindReferenceSection(t *testing.T) {
	doc := &fakeTextSource{pages: []string{
		"Introduction\nLots of content here.",
		"Methods are described on this page.",
		"<unreadable>",
		"References\n[1] Smith 2020",
		"Appendix A",
	}}

	t.Run("finds first heading page", func(t *testing.T) {
		if got := FindReferenceSection(doc, 5); got != 3 {
			t.Errorf("FindReferenceSection = %d, want 3", got)
		}
	})

	t.Run("respects scan bound", func(t *testing.T) {
		if got := FindReferenceSection(doc, 3); got != -1 {
			t.Errorf("FindReferenceSection = %d, want -1", got)
		}
	})

	t.Run("bound larger than document", func(t *testing.T) {
		if got := FindReferenceSection(doc, 50); got != 3 {
			t.Errorf("FindReferenceSection = %d, want 3", got)
		}
	})

	t.Run("no heading anywhere", func(t *testing.T) {
		plain := &fakeTextSource{pages: []string{"first page", "second page"}}
		if got := FindReferenceSection(plain, 2); got != -1 {
			t.Errorf("FindReferenceSection = %d, want -1", got)
		}
	})
}

func TestDocument(t *testing.T) {
	samples, err := filepath.Glob(filepath.Join("..", "..", "testdata", "*.pdf"))
	if err != nil {
		t.Fatalf("Failed to list sample PDFs: %v", err)
	}
	if len(samples) == 0 {
		t.Skip("No sample PDFs found in testdata directory")
	}

	for _, path := range samples {
		t.Run(filepath.Base(path), func(t *testing.T) {
			doc, err := Open(path)
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer doc.Close()

			if doc.PageCount() < 1 {
				t.Fatalf("PageCount = %d, want >= 1", doc.PageCount())
			}

			if _, err := doc.PageText(0); err != nil {
				t.Errorf("PageText failed: %v", err)
			}

			dir := t.TempDir()
			saved, err := doc.SavePagePNG(0, 144, dir)
			if err != nil {
				t.Fatalf("SavePagePNG failed: %v", err)
			}
			if filepath.Base(saved) != "page_1.png" {
				t.Errorf("saved page name = %s, want page_1.png", filepath.Base(saved))
			}
			if fi, err := os.Stat(saved); err != nil || fi.Size() == 0 {
				t.Errorf("saved page image missing or empty: %v", err)
			}

			w, h, err := doc.PageBounds(0)
			if err != nil || w <= 0 || h <= 0 {
				t.Errorf("PageBounds = (%v, %v), err = %v", w, h, err)
			}
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.pdf")); err == nil {
		t.Error("Expected error for missing file, got nil")
	}
}
