// Package documents resolves an analysis source — a local path, a URL, or a
// Zotero item — into a local PDF file for the extraction pipeline.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/Epistemic-Technology/zotero/zotero"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/logger"
)

// ErrNotPDF rejects input whose content is not a PDF, whatever its name
// claims.
var ErrNotPDF = errors.New("not a PDF document")

// Source names exactly one place to fetch the document from.
type Source struct {
	Path      string
	URL       string
	ZoteroKey string
}

// Resolved is a source materialized as a local file. Cleanup removes any
// temporary file Resolve created; it is safe to call for local paths too.
type Resolved struct {
	Path    string
	Name    string
	Cleanup func()
}

// Resolve materializes the source as a local PDF. Exactly one of the
// source's fields must be set.
func Resolve(ctx context.Context, cfg *config.Config, src Source, log logger.Logger) (*Resolved, error) {
	set := 0
	for _, v := range []string{src.Path, src.URL, src.ZoteroKey} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("exactly one of path, url, or zotero_key must be provided, got %d", set)
	}

	switch {
	case src.Path != "":
		return resolvePath(src.Path)
	case src.URL != "":
		return resolveURL(ctx, cfg, src.URL, log)
	default:
		return resolveZotero(ctx, cfg, src.ZoteroKey, log)
	}
}

// IsPDF reports whether data starts with the PDF magic bytes.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF"))
}

func resolvePath(docPath string) (*Resolved, error) {
	f, err := os.Open(docPath)
	if err != nil {
		return nil, fmt.Errorf("opening document: %w", err)
	}
	defer f.Close()

	header := make([]byte, 4)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("reading document header: %w", err)
	}
	if !IsPDF(header) {
		return nil, fmt.Errorf("%s: %w", docPath, ErrNotPDF)
	}

	return &Resolved{
		Path:    docPath,
		Name:    filepath.Base(docPath),
		Cleanup: func() {},
	}, nil
}

func resolveURL(ctx context.Context, cfg *config.Config, rawURL string, log logger.Logger) (*Resolved, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid document URL %q", rawURL)
	}

	log.Info("Downloading document from %s", rawURL)
	data, err := GetFromURL(ctx, rawURL, cfg.MaxFileSize)
	if err != nil {
		return nil, err
	}

	name := path.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		name = "document.pdf"
	}
	return materialize(data, name)
}

func resolveZotero(ctx context.Context, cfg *config.Config, itemKey string, log logger.Logger) (*Resolved, error) {
	if cfg.ZoteroAPIKey == "" || cfg.ZoteroLibraryID == "" {
		return nil, fmt.Errorf("zotero API key and library ID must be configured")
	}

	log.Info("Fetching Zotero item %s", itemKey)
	data, err := GetFromZotero(ctx, itemKey, cfg.ZoteroAPIKey, cfg.ZoteroLibraryID)
	if err != nil {
		return nil, fmt.Errorf("fetching zotero item %s: %w", itemKey, err)
	}
	if int64(len(data)) > cfg.MaxFileSize {
		return nil, fmt.Errorf("zotero item %s exceeds the %d byte size limit", itemKey, cfg.MaxFileSize)
	}
	return materialize(data, itemKey+".pdf")
}

// materialize writes fetched bytes into a temp file, rejecting non-PDF
// content.
func materialize(data []byte, name string) (*Resolved, error) {
	if !IsPDF(data) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotPDF)
	}

	f, err := os.CreateTemp("", "paperlens-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, err
	}

	tempPath := f.Name()
	return &Resolved{
		Path:    tempPath,
		Name:    name,
		Cleanup: func() { os.Remove(tempPath) },
	}, nil
}

// GetFromURL fetches document data from a URL, bounded by maxSize bytes.
func GetFromURL(ctx context.Context, rawURL string, maxSize int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("document exceeds the %d byte size limit", maxSize)
	}
	return data, nil
}

// GetFromZotero fetches document data from a Zotero library
func GetFromZotero(ctx context.Context, itemKey string, apiKey string, libraryID string) ([]byte, error) {
	client := zotero.NewClient(libraryID, zotero.LibraryTypeUser, zotero.WithAPIKey(apiKey))
	data, err := client.File(ctx, itemKey)
	if err != nil {
		return nil, err
	}
	return data, nil
}
