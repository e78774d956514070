// Package llm drives the stateful multi-turn conversation with the analysis
// model. The conversation is strictly sequential: the model accumulates
// dialogue context turn by turn, so no page is sent before the prior turn is
// acknowledged.
package llm

import (
	"context"
	"fmt"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/logger"
)

// Turn is one request within a dialogue: text plus an optional image
// attachment.
type Turn struct {
	Text      string
	Image     []byte
	ImageMIME string
}

// Dialogue is one stateful conversation with the model. Send transmits a
// turn and returns the model's response text.
type Dialogue interface {
	Send(ctx context.Context, turn Turn) (string, error)
}

// Client starts dialogues against a specific provider and model.
type Client interface {
	Model() string
	StartDialogue(ctx context.Context) (Dialogue, error)
}

// NewClient builds the transport for the configured provider and applies
// the configured shared pacing.
func NewClient(ctx context.Context, cfg *config.Config, log logger.Logger) (Client, error) {
	SetTurnRate(cfg.TurnsPerMinute)
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg, log)
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg, log)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
