package runs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllocate(t *testing.T) {
	ws, err := NewWorkspace(filepath.Join(t.TempDir(), "analyses"))
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		run, err := ws.Allocate()
		if err != nil {
			t.Fatalf("Allocate failed: %v", err)
		}
		if len(run.ID) != IDLength {
			t.Errorf("run ID %q has length %d, want %d", run.ID, len(run.ID), IDLength)
		}
		if seen[run.ID] {
			t.Errorf("run ID %q allocated twice", run.ID)
		}
		seen[run.ID] = true

		info, err := os.Stat(run.Dir)
		if err != nil || !info.IsDir() {
			t.Errorf("run directory %s not created", run.Dir)
		}
		if filepath.Dir(run.Dir) != ws.Root() {
			t.Errorf("run directory %s not directly under root", run.Dir)
		}
	}
}

func TestRunIsolation(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}
	a, err := ws.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	b, err := ws.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(a.Dir, "page_1.png"), []byte("a"), 0644); err != nil {
		t.Fatalf("Failed to write into run a: %v", err)
	}
	if err := os.WriteFile(filepath.Join(b.Dir, "page_1.png"), []byte("b"), 0644); err != nil {
		t.Fatalf("Failed to write into run b: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(a.Dir, "page_1.png"))
	if err != nil || string(data) != "a" {
		t.Errorf("run a content = %q, want a", data)
	}

	if err := ws.Remove(b.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := os.Stat(a.Dir); err != nil {
		t.Errorf("removing run b destroyed run a: %v", err)
	}
	if _, err := ws.Dir(b.ID); err == nil {
		t.Error("removed run still resolvable")
	}
}

func TestResolveFile(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatalf("NewWorkspace failed: %v", err)
	}
	run, err := ws.Allocate()
	if err != nil {
		t.Fatalf("Allocate failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(run.Dir, "page_1_figure_0.png"), []byte("img"), 0644); err != nil {
		t.Fatalf("Failed to write crop: %v", err)
	}

	t.Run("resolves existing file", func(t *testing.T) {
		path, err := ws.ResolveFile(run.ID, "page_1_figure_0.png")
		if err != nil {
			t.Fatalf("ResolveFile failed: %v", err)
		}
		if filepath.Dir(path) != run.Dir {
			t.Errorf("resolved path %s outside run dir", path)
		}
	})

	t.Run("rejects traversal and hidden names", func(t *testing.T) {
		for _, name := range []string{"../secret", "..", "a/b.png", ".hidden", ""} {
			if _, err := ws.ResolveFile(run.ID, name); err == nil {
				t.Errorf("ResolveFile(%q) succeeded, want error", name)
			}
		}
	})

	t.Run("rejects malformed run IDs", func(t *testing.T) {
		for _, id := range []string{"", "..", "../../etc", "ABCDEF01", "12345678901"} {
			if _, err := ws.ResolveFile(id, "page_1_figure_0.png"); err == nil {
				t.Errorf("ResolveFile with ID %q succeeded, want error", id)
			}
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := ws.ResolveFile(run.ID, "page_9.png"); err == nil {
			t.Error("ResolveFile for absent file succeeded, want error")
		}
	})
}
