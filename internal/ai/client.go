package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calmbackend/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// TokenCounter estimates token counts when the backend omits usage.
type TokenCounter interface {
	Count(text string) int
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type Message struct {
	Role    string `json:"role" validate:"oneof=user assistant"`
	Content string `json:"content" validate:"required,max=4000"`
}

type PlanRequest struct {
	Emotion   string
	Intensity int
	Tags      []string
	Language  string
	Context   string
}

type CheckInRequest struct {
	Mood int
	Tags []string
	Note string
}

// Classification is the remote classifier's view of a check-in.
type Classification struct {
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Exercise string `json:"exercise,omitempty"`
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	client  *openai.Client
	cfg     Config
	counter TokenCounter
}

func NewClient(cfg Config, counter TokenCounter) *Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	httpClient := &http.Client{}
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	config.HTTPClient = httpClient

	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 150 * time.Millisecond
	}

	return &Client{
		client:  openai.NewClientWithConfig(config),
		cfg:     cfg,
		counter: counter,
	}
}

func (c *Client) Model() string {
	return c.cfg.Model
}

// GeneratePanicPlan asks the model for a short coping plan.
func (c *Client) GeneratePanicPlan(ctx context.Context, req PlanRequest) (models.PanicPlan, Usage, error) {
	content, usage, err := c.completeJSON(ctx, planSystemPrompt, renderPlanPrompt(req), 600)
	if err != nil {
		return models.PanicPlan{}, usage, err
	}
	plan, err := parsePlan(content)
	if err != nil {
		return models.PanicPlan{}, usage, err
	}
	plan.Source = models.PlanSourceAI
	return plan, usage, nil
}

// ClassifyCheckIn asks the model to rate how concerning a check-in is.
func (c *Client) ClassifyCheckIn(ctx context.Context, req CheckInRequest) (Classification, Usage, error) {
	content, usage, err := c.completeJSON(ctx, checkInSystemPrompt, renderCheckInPrompt(req), 250)
	if err != nil {
		return Classification{}, usage, err
	}
	cls, err := parseClassification(content)
	if err != nil {
		return Classification{}, usage, err
	}
	return cls, usage, nil
}

// Companion streams a supportive reply to the conversation. onChunk receives
// text as it arrives. Failures before the first chunk are retried with backoff.
func (c *Client) Companion(ctx context.Context, history []Message, onChunk func(string)) (string, Usage, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: companionSystemPrompt})
	for _, m := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	req := openai.ChatCompletionRequest{
		Model:         c.cfg.Model,
		Messages:      messages,
		Temperature:   0.7,
		MaxTokens:     400,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	var (
		reply     string
		usage     Usage
		emitted   bool
		streamErr error
	)
	err := retry(ctx, c.cfg.RetryInterval, c.cfg.MaxRetries, func() error {
		reply, usage, emitted, streamErr = c.stream(ctx, req, onChunk)
		if streamErr != nil && emitted {
			// text already reached the user; a retry would repeat it
			return nil
		}
		return streamErr
	})
	if err == nil {
		err = streamErr
	}
	if err != nil {
		return reply, usage, err
	}

	if usage.InputTokens == 0 && c.counter != nil {
		for _, m := range messages {
			usage.InputTokens += 4 + c.counter.Count(m.Content)
		}
		usage.OutputTokens = c.counter.Count(reply)
	}
	return reply, usage, nil
}

func (c *Client) stream(ctx context.Context, req openai.ChatCompletionRequest, onChunk func(string)) (string, Usage, bool, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", Usage{}, false, classify(err)
	}
	defer stream.Close()

	var (
		sb      strings.Builder
		usage   Usage
		emitted bool
	)
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), usage, emitted, classify(err)
		}
		if resp.Usage != nil {
			usage.InputTokens = resp.Usage.PromptTokens
			usage.OutputTokens = resp.Usage.CompletionTokens
		}
		if len(resp.Choices) == 0 {
			continue
		}
		chunk := resp.Choices[0].Delta.Content
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		emitted = true
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	reply := strings.TrimSpace(sb.String())
	if reply == "" {
		return "", usage, emitted, fmt.Errorf("%w: empty companion reply", ErrInvalidResponse)
	}
	return reply, usage, emitted, nil
}

func (c *Client) completeJSON(ctx context.Context, system, user string, maxTokens int) (string, Usage, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.4,
		MaxTokens:   maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", Usage{}, classify(err)
	}

	usage := Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
	if len(resp.Choices) == 0 {
		return "", usage, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", usage, fmt.Errorf("%w: empty content", ErrInvalidResponse)
	}
	if usage.InputTokens == 0 && c.counter != nil {
		usage.InputTokens = c.counter.Count(system) + c.counter.Count(user)
		usage.OutputTokens = c.counter.Count(content)
	}
	return content, usage, nil
}
