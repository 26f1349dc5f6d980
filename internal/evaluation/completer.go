package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var ErrEmptyCompletion = errors.New("evaluation: empty completion")

// Prompt is a single system+user chat turn.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

// Completer returns the model's reply to a prompt.
type Completer interface {
	Complete(ctx context.Context, p Prompt) (string, error)
}

type OpenAIOptions struct {
	APIKey  string
	BaseURL string
	Model   string
}

const DefaultModel = "gpt-4o-mini"

// OpenAI is a Completer backed by the chat completions API.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(opts OpenAIOptions) *OpenAI {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAI{client: openai.NewClient(reqOpts...), model: model}
}

func (o *OpenAI) Complete(ctx context.Context, p Prompt) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.System),
			openai.UserMessage(p.User),
		},
		Temperature: openai.Float(p.Temperature),
	}
	if p.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(p.MaxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("evaluation: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}
