package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "paperlens.db"), logger.NewNoOpLogger())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleAnalysis(id string) *models.Analysis {
	return &models.Analysis{
		ID:          id,
		SourceName:  "paper.pdf",
		PageCount:   7,
		FigureCount: 3,
		Model:       "gemini-2.5-flash",
		Status:      models.StatusCompleted,
		ReportPath:  "/data/analyses/" + id + "/ANALYSIS.md",
		GeneratedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	saved := sampleAnalysis("abcd1234")
	if err := store.SaveAnalysis(ctx, saved); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	got, err := store.GetAnalysis(ctx, "abcd1234")
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if got.SourceName != saved.SourceName || got.PageCount != saved.PageCount ||
		got.FigureCount != saved.FigureCount || got.Model != saved.Model ||
		got.Status != saved.Status || got.ReportPath != saved.ReportPath {
		t.Errorf("GetAnalysis = %+v, want %+v", got, saved)
	}
	if !got.GeneratedAt.Equal(saved.GeneratedAt) {
		t.Errorf("GeneratedAt = %v, want %v", got.GeneratedAt, saved.GeneratedAt)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated by the database")
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetAnalysis(context.Background(), "deadbeef")
	if !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("error = %v, want ErrAnalysisNotFound", err)
	}
}

func TestListAnalyses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a := sampleAnalysis(fmt.Sprintf("0000000%d", i))
		if err := store.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}
	}

	t.Run("all rows", func(t *testing.T) {
		got, err := store.ListAnalyses(ctx, 0)
		if err != nil {
			t.Fatalf("ListAnalyses failed: %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("got %d analyses, want 5", len(got))
		}
		if got[0].ID != "00000004" {
			t.Errorf("first row = %s, want newest first", got[0].ID)
		}
	})

	t.Run("limited", func(t *testing.T) {
		got, err := store.ListAnalyses(ctx, 2)
		if err != nil {
			t.Fatalf("ListAnalyses failed: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d analyses, want 2", len(got))
		}
	})
}

func TestDeleteAnalysis(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveAnalysis(ctx, sampleAnalysis("abcd1234")); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	if err := store.DeleteAnalysis(ctx, "abcd1234"); err != nil {
		t.Fatalf("DeleteAnalysis failed: %v", err)
	}
	if _, err := store.GetAnalysis(ctx, "abcd1234"); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("deleted analysis still present: %v", err)
	}
	if err := store.DeleteAnalysis(ctx, "abcd1234"); !errors.Is(err, ErrAnalysisNotFound) {
		t.Errorf("double delete error = %v, want ErrAnalysisNotFound", err)
	}
}

func TestSaveAnalysisUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := sampleAnalysis("abcd1234")
	if err := store.SaveAnalysis(ctx, a); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	a.Status = models.StatusFailed
	if err := store.SaveAnalysis(ctx, a); err != nil {
		t.Fatalf("second SaveAnalysis failed: %v", err)
	}

	got, err := store.GetAnalysis(ctx, "abcd1234")
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if got.Status != models.StatusFailed {
		t.Errorf("status = %s, want the replaced value", got.Status)
	}
	list, err := store.ListAnalyses(ctx, 0)
	if err != nil {
		t.Fatalf("ListAnalyses failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d rows after upsert, want 1", len(list))
	}
}
