package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/models"
)

type fakeDialogue struct {
	turns []Turn
	// failOn fails the turn with this 1-based sequence number.
	failOn   int
	failErr  error
	failures int // how many times the failing turn should fail
	response string
}

func (f *fakeDialogue) Send(ctx context.Context, turn Turn) (string, error) {
	if f.failOn > 0 && len(f.turns)+1 == f.failOn && f.failures > 0 {
		f.failures--
		return "", f.failErr
	}
	f.turns = append(f.turns, turn)
	return f.response, nil
}

type fakeClient struct {
	dialogue *fakeDialogue
	startErr error
}

func (f *fakeClient) Model() string { return "fake-model" }

func (f *fakeClient) StartDialogue(ctx context.Context) (Dialogue, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.dialogue, nil
}

func driverConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.TurnDelay = 0
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

func makePages(t *testing.T, n int) []models.PageRecord {
	t.Helper()
	dir := t.TempDir()
	pages := make([]models.PageRecord, 0, n)
	for i := 1; i <= n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("page_%d.png", i))
		if err := os.WriteFile(path, []byte("png-bytes"), 0644); err != nil {
			t.Fatalf("Failed to write page image: %v", err)
		}
		var figures []models.FigureCrop
		if i == 2 {
			figures = []models.FigureCrop{
				{Page: i, Index: 0, ImagePath: filepath.Join(dir, "page_2_figure_0.png")},
				{Page: i, Index: 1, ImagePath: filepath.Join(dir, "page_2_figure_1.png")},
			}
		}
		rec, err := models.NewPageRecord(i, fmt.Sprintf("text of page %d", i), path, figures)
		if err != nil {
			t.Fatalf("Failed to build page record: %v", err)
		}
		pages = append(pages, rec)
	}
	return pages
}

func TestDriverRun(t *testing.T) {
	log := logger.NewNoOpLogger()

	t.Run("sends preamble, pages in order, final request", func(t *testing.T) {
		dialogue := &fakeDialogue{response: "the report"}
		driver := NewDriver(&fakeClient{dialogue: dialogue}, driverConfig(), log)
		pages := makePages(t, 3)

		report, err := driver.Run(context.Background(), pages)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if report != "the report" {
			t.Errorf("report = %q, want the final response", report)
		}
		if driver.State() != StateCompleted {
			t.Errorf("state = %s, want completed", driver.State())
		}

		if len(dialogue.turns) != 5 {
			t.Fatalf("sent %d turns, want 5 (preamble + 3 pages + final)", len(dialogue.turns))
		}
		if dialogue.turns[0].Image != nil {
			t.Errorf("preamble turn carries an image")
		}
		for i := 1; i <= 3; i++ {
			turn := dialogue.turns[i]
			if !strings.Contains(turn.Text, fmt.Sprintf("### Page %d", i)) {
				t.Errorf("turn %d text missing page header: %q", i, turn.Text)
			}
			if len(turn.Image) == 0 || turn.ImageMIME != "image/png" {
				t.Errorf("turn %d missing page image attachment", i)
			}
		}
		if !strings.Contains(dialogue.turns[2].Text, "Figures detected on this page: 2") {
			t.Errorf("page 2 turn missing figure count note: %q", dialogue.turns[2].Text)
		}
		if strings.Contains(dialogue.turns[1].Text, "Figures detected") {
			t.Errorf("page 1 turn should not carry a figure note: %q", dialogue.turns[1].Text)
		}
		final := dialogue.turns[4]
		if !strings.Contains(final.Text, "All 3 pages") {
			t.Errorf("final turn does not reference total page count: %q", final.Text)
		}
	})

	t.Run("truncates page text to the configured cap", func(t *testing.T) {
		dialogue := &fakeDialogue{response: "r"}
		cfg := driverConfig()
		cfg.PageTextLimit = 4
		driver := NewDriver(&fakeClient{dialogue: dialogue}, cfg, log)

		pages := makePages(t, 1)
		pages[0].Text = "abcdefgh"
		if _, err := driver.Run(context.Background(), pages); err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if !strings.Contains(dialogue.turns[1].Text, "abcd\n") {
			t.Errorf("page text not truncated: %q", dialogue.turns[1].Text)
		}
		if strings.Contains(dialogue.turns[1].Text, "abcde") {
			t.Errorf("page text exceeds cap: %q", dialogue.turns[1].Text)
		}
	})

	t.Run("transient failure is retried and the run completes", func(t *testing.T) {
		dialogue := &fakeDialogue{
			response: "ok",
			failOn:   2, // first page turn
			failErr:  errors.New("connection reset by peer"),
			failures: 2,
		}
		driver := NewDriver(&fakeClient{dialogue: dialogue}, driverConfig(), log)
		if _, err := driver.Run(context.Background(), makePages(t, 2)); err != nil {
			t.Fatalf("Run failed despite retries: %v", err)
		}
		if driver.State() != StateCompleted {
			t.Errorf("state = %s, want completed", driver.State())
		}
	})

	t.Run("exhausted retries fail with the in-flight page", func(t *testing.T) {
		transportErr := errors.New("connection reset by peer")
		dialogue := &fakeDialogue{
			response: "ok",
			failOn:   3, // second page turn
			failErr:  transportErr,
			failures: 3,
		}
		driver := NewDriver(&fakeClient{dialogue: dialogue}, driverConfig(), log)

		_, err := driver.Run(context.Background(), makePages(t, 3))
		if err == nil {
			t.Fatal("Run succeeded, want failure")
		}
		var convErr *ConversationError
		if !errors.As(err, &convErr) {
			t.Fatalf("error = %T, want *ConversationError", err)
		}
		if convErr.Stage != StagePage || convErr.Page != 2 {
			t.Errorf("failure at stage %s page %d, want page stage, page 2", convErr.Stage, convErr.Page)
		}
		if convErr.Attempts != 3 {
			t.Errorf("attempts = %d, want 3", convErr.Attempts)
		}
		if !errors.Is(err, transportErr) {
			t.Errorf("error = %v, want to wrap the transport error", err)
		}
		if driver.State() != StateFailed {
			t.Errorf("state = %s, want failed", driver.State())
		}
	})

	t.Run("non-transient failure is not retried", func(t *testing.T) {
		dialogue := &fakeDialogue{
			response: "ok",
			failOn:   1,
			failErr:  errors.New("invalid request payload"),
			failures: 1,
		}
		driver := NewDriver(&fakeClient{dialogue: dialogue}, driverConfig(), log)

		_, err := driver.Run(context.Background(), makePages(t, 1))
		var convErr *ConversationError
		if !errors.As(err, &convErr) {
			t.Fatalf("error = %T, want *ConversationError", err)
		}
		if convErr.Stage != StageInstructions || convErr.Attempts != 1 {
			t.Errorf("stage %s attempts %d, want instructions stage with a single attempt", convErr.Stage, convErr.Attempts)
		}
	})

	t.Run("dialogue start failure reports one attempt", func(t *testing.T) {
		// Opening the dialogue never goes through the retry loop, so the
		// attempt count must stay 1 even when the error reads as
		// transient.
		client := &fakeClient{startErr: errors.New("connection reset by peer")}
		driver := NewDriver(client, driverConfig(), log)

		_, err := driver.Run(context.Background(), makePages(t, 1))
		var convErr *ConversationError
		if !errors.As(err, &convErr) {
			t.Fatalf("error = %T, want *ConversationError", err)
		}
		if convErr.Stage != StageInstructions || convErr.Attempts != 1 {
			t.Errorf("stage %s attempts %d, want instructions stage with a single attempt", convErr.Stage, convErr.Attempts)
		}
		if driver.State() != StateFailed {
			t.Errorf("state = %s, want failed", driver.State())
		}
	})

	t.Run("driver is single use", func(t *testing.T) {
		dialogue := &fakeDialogue{response: "r"}
		driver := NewDriver(&fakeClient{dialogue: dialogue}, driverConfig(), log)
		if _, err := driver.Run(context.Background(), makePages(t, 1)); err != nil {
			t.Fatalf("first Run failed: %v", err)
		}
		if _, err := driver.Run(context.Background(), nil); err == nil {
			t.Error("second Run succeeded, want error")
		}
	})
}

func TestDriverTemplatePreview(t *testing.T) {
	log := logger.NewNoOpLogger()
	dialogue := &fakeDialogue{response: "r"}

	cfg := driverConfig()
	cfg.TemplatePreviewLimit = 10
	templatePath := filepath.Join(t.TempDir(), "template.md")
	if err := os.WriteFile(templatePath, []byte("# Report template with many sections"), 0644); err != nil {
		t.Fatalf("Failed to write template: %v", err)
	}
	cfg.TemplatePath = templatePath

	driver := NewDriver(&fakeClient{dialogue: dialogue}, cfg, log)
	if _, err := driver.Run(context.Background(), makePages(t, 1)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	preamble := dialogue.turns[0].Text
	if !strings.Contains(preamble, "# Report t") {
		t.Errorf("preamble missing template preview: %q", preamble)
	}
	if strings.Contains(preamble, "# Report template") {
		t.Errorf("template preview not capped: %q", preamble)
	}
}
