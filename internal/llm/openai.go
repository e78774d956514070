package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/gridone/paperlens/internal/config"
	"github.com/gridone/paperlens/internal/logger"
)

// OpenAIClient is the alternative transport, backed by the Responses API.
// Dialogue state is held server-side: each turn chains to the previous one
// via its response ID, so the model sees the cumulative conversation.
type OpenAIClient struct {
	client openai.Client
	model  string
	log    logger.Logger
}

// NewOpenAIClient builds the OpenAI transport from configuration.
func NewOpenAIClient(cfg *config.Config, log logger.Logger) (*OpenAIClient, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("openai API key not configured")
	}
	client := openai.NewClient(option.WithAPIKey(cfg.OpenAIAPIKey))
	return &OpenAIClient{client: client, model: cfg.Model, log: log}, nil
}

// Model returns the configured model identifier.
func (c *OpenAIClient) Model() string { return c.model }

// StartDialogue begins a new response chain.
func (c *OpenAIClient) StartDialogue(ctx context.Context) (Dialogue, error) {
	return &openaiDialogue{client: c.client, model: c.model}, nil
}

type openaiDialogue struct {
	client openai.Client
	model  string

	// ID of the last response, chained into the next request. Empty for
	// the first turn.
	previousID string
}

func (d *openaiDialogue) Send(ctx context.Context, turn Turn) (string, error) {
	contents := responses.ResponseInputMessageContentListParam{
		responses.ResponseInputContentParamOfInputText(turn.Text),
	}
	if len(turn.Image) > 0 {
		dataURL := fmt.Sprintf("data:%s;base64,%s", turn.ImageMIME, base64.StdEncoding.EncodeToString(turn.Image))
		contents = append(contents, responses.ResponseInputContentUnionParam{
			OfInputImage: &responses.ResponseInputImageParam{
				ImageURL: openai.String(dataURL),
				Detail:   responses.ResponseInputImageDetailAuto,
			},
		})
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(d.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: responses.ResponseInputParam{
				responses.ResponseInputItemParamOfMessage(contents, "user"),
			},
		},
	}
	if d.previousID != "" {
		params.PreviousResponseID = openai.String(d.previousID)
	}

	response, err := d.client.Responses.New(ctx, params)
	if err != nil {
		return "", err
	}
	d.previousID = response.ID
	return response.OutputText(), nil
}
