package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/logger"
	"github.com/gridone/paperlens/models"
)

// State of the conversation driver. The progression is strictly linear;
// Failed is terminal and reachable from every non-terminal state.
type State int

const (
	StateIdle State = iota
	StateInstructionsSent
	StateSendingPages
	StateFinalRequested
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInstructionsSent:
		return "instructions-sent"
	case StateSendingPages:
		return "sending-pages"
	case StateFinalRequested:
		return "final-requested"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const instructionsFormat = `This is an academic paper. Every page will now be delivered in order, each as the extracted text plus a rendered image of the page. The bibliography section has already been removed.

After all pages have been delivered you will be asked for a final structured report.

Writing principles:
- Explain so a reader new to the field can follow; unpack jargon into plain language.
- Use concrete analogies for abstract concepts.
- Keep it focused: core ideas over exhaustive detail.

When you mention a figure, always cite it with its page number and per-page index, exactly in the form "Figure X (Page Y, Index Z)". The index counts figures on that page starting at 0. Example: "Figure 1 (Page 3, Index 0) shows the overall system."

Report template:
%s

The pages follow now. Keep track of each one.`

const finalRequestFormat = `All %d pages have been delivered.

Produce the final structured report now, following the template from the first message:
1. Summarize the title, abstract, and every figure, each with a plain-language explanation.
2. Condense the introduction and conclusion to their core claims.
3. Explain the key equations in everyday language rather than notation.
4. Answer: what were the authors trying to achieve, which elements of their approach matter most, could a reader build on this work, and which references are worth following up?
5. Name three limitations of the work and why each matters.

Remember to cite every figure as "Figure X (Page Y, Index Z)".`

// Driver holds one ordered, stateful dialogue with the analysis model. It is
// single-use: Run may be called once.
type Driver struct {
	client Client
	cfg    *config.Config
	log    logger.Logger

	state State
	page  int // one-based page in flight, 0 outside page turns
}

// NewDriver builds a driver for one analysis run.
func NewDriver(client Client, cfg *config.Config, log logger.Logger) *Driver {
	return &Driver{client: client, cfg: cfg, log: log, state: StateIdle}
}

// State returns the driver's current state.
func (d *Driver) State() State { return d.state }

// Run sends the instruction preamble, each page record in page order, and
// the final report request, returning the model's closing response as the
// raw report text. Any turn failure leaves the driver in StateFailed and
// returns a ConversationError naming the turn that was in flight.
func (d *Driver) Run(ctx context.Context, pages []models.PageRecord) (string, error) {
	if d.state != StateIdle {
		return "", fmt.Errorf("driver already ran (state %s)", d.state)
	}

	dialogue, err := d.client.StartDialogue(ctx)
	if err != nil {
		return "", d.fail(StageInstructions, 0, 1, err)
	}

	d.log.Info("Conversation started with model %s for %d pages", d.client.Model(), len(pages))

	if _, attempts, err := d.sendTurn(ctx, dialogue, Turn{Text: d.instructions()}); err != nil {
		return "", d.fail(StageInstructions, 0, attempts, err)
	}
	d.state = StateInstructionsSent

	d.state = StateSendingPages
	for _, rec := range pages {
		d.page = rec.PageNumber
		if attempts, err := d.sendPage(ctx, dialogue, rec); err != nil {
			return "", d.fail(StagePage, rec.PageNumber, attempts, err)
		}
	}
	d.page = 0

	d.state = StateFinalRequested
	report, attempts, err := d.sendTurn(ctx, dialogue, Turn{Text: fmt.Sprintf(finalRequestFormat, len(pages))})
	if err != nil {
		return "", d.fail(StageFinal, 0, attempts, err)
	}

	d.state = StateCompleted
	d.log.Info("Conversation completed, report length %d chars", len(report))
	return report, nil
}

// sendPage composes and sends the turn for one page: page number, truncated
// text, the rendered page image, and how many figures were detected.
func (d *Driver) sendPage(ctx context.Context, dialogue Dialogue, rec models.PageRecord) (int, error) {
	image, err := os.ReadFile(rec.ImagePath)
	if err != nil {
		return 1, fmt.Errorf("reading rendered image for page %d: %w", rec.PageNumber, err)
	}

	turn := Turn{
		Text:      pageTurnText(rec, d.cfg.PageTextLimit),
		Image:     image,
		ImageMIME: "image/png",
	}
	_, attempts, err := d.sendTurn(ctx, dialogue, turn)
	return attempts, err
}

// sendTurn runs one send through the uniform retry policy, with the per-call
// timeout and the inter-turn delay applied inside the retried call so a
// retried turn is paced the same as a fresh one. The attempt count reports
// how many sends actually ran, for failure diagnostics.
func (d *Driver) sendTurn(ctx context.Context, dialogue Dialogue, turn Turn) (string, int, error) {
	policy := RetryPolicy{Attempts: d.cfg.RetryAttempts, BaseDelay: d.cfg.RetryBaseDelay}
	attempts := 0
	response, err := WithRetry(ctx, policy, d.log, IsTransient, func(ctx context.Context) (string, error) {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
		defer cancel()

		response, err := dialogue.Send(callCtx, turn)
		if err != nil {
			return "", err
		}

		if d.cfg.TurnDelay > 0 {
			select {
			case <-time.After(d.cfg.TurnDelay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return response, nil
	})
	if attempts == 0 {
		attempts = 1
	}
	return response, attempts, err
}

// instructions builds the preamble, previewing the report template when one
// is configured.
func (d *Driver) instructions() string {
	preview := "..."
	if d.cfg.TemplatePath != "" {
		data, err := os.ReadFile(d.cfg.TemplatePath)
		if err != nil {
			d.log.Warn("Template not readable, sending instructions without preview: %v", err)
		} else {
			preview = truncateRunes(string(data), d.cfg.TemplatePreviewLimit)
		}
	}
	return fmt.Sprintf(instructionsFormat, preview)
}

func (d *Driver) fail(stage string, page, attempts int, err error) error {
	d.state = StateFailed
	convErr := &ConversationError{Stage: stage, Page: page, Attempts: attempts, Err: err}
	d.log.Error("Conversation failed: %v", convErr)
	return convErr
}

// pageTurnText composes the textual half of a page turn.
func pageTurnText(rec models.PageRecord, textLimit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Page %d\n\n", rec.PageNumber)
	fmt.Fprintf(&b, "Extracted text:\n%s\n\n", truncateRunes(rec.Text, textLimit))
	fmt.Fprintf(&b, "Attached: the rendered image of page %d. Check every figure, chart, and equation on it.\n", rec.PageNumber)
	if len(rec.Figures) > 0 {
		fmt.Fprintf(&b, "Figures detected on this page: %d\n", len(rec.Figures))
	}
	return b.String()
}

// truncateRunes caps s at limit runes, keeping the cut UTF-8 clean.
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
