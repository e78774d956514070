package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/logger"
)

// GeminiClient is the default transport, backed by the Gemini Chats API.
// Dialogue state lives in the chat session: every turn extends the same
// history, which is what the sequential page protocol relies on.
type GeminiClient struct {
	client *genai.Client
	model  string
	log    logger.Logger
}

// NewGeminiClient builds the Gemini transport from configuration.
func NewGeminiClient(ctx context.Context, cfg *config.Config, log logger.Logger) (*GeminiClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model, log: log}, nil
}

// Model returns the configured model identifier.
func (c *GeminiClient) Model() string { return c.model }

// StartDialogue opens a fresh chat session with empty history.
func (c *GeminiClient) StartDialogue(ctx context.Context) (Dialogue, error) {
	chat, err := c.client.Chats.Create(ctx, c.model, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("starting chat session: %w", err)
	}
	return &geminiDialogue{chat: chat}, nil
}

type geminiDialogue struct {
	chat *genai.Chat
}

func (d *geminiDialogue) Send(ctx context.Context, turn Turn) (string, error) {
	parts := []genai.Part{{Text: turn.Text}}
	if len(turn.Image) > 0 {
		parts = append(parts, genai.Part{
			InlineData: &genai.Blob{MIMEType: turn.ImageMIME, Data: turn.Image},
		})
	}
	resp, err := d.chat.SendMessage(ctx, parts...)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
