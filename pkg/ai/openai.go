// Owner: august@eternis.ai
package ai

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/pkg/errors"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// RequestsPerMinute throttles outgoing calls; 0 disables throttling.
	RequestsPerMinute int
}

// Service is a thin client over any OpenAI-compatible completions endpoint.
type Service struct {
	client  *openai.Client
	logger  *log.Logger
	model   string
	limiter *RateLimiter
}

func NewOpenAIService(logger *log.Logger, cfg Config) *Service {
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
	)
	s := &Service{
		client: &client,
		logger: logger,
		model:  cfg.Model,
	}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = NewRateLimiter(cfg.RequestsPerMinute, time.Minute)
	}
	return s
}

// ParamsCompletions sends a raw completion request and returns the first
// choice message.
func (s *Service) ParamsCompletions(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletionMessage, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return openai.ChatCompletionMessage{}, err
		}
	}

	completion, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}

	if len(completion.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("model returned no completion choices")
	}

	return completion.Choices[0].Message, nil
}

// Generate runs a system+user prompt pair and returns the raw text response.
// Low temperature keeps the scoring contract stable across calls.
func (s *Service) Generate(ctx context.Context, system, user string) (string, error) {
	started := time.Now()
	message, err := s.ParamsCompletions(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model:       s.model,
		Temperature: param.Opt[float64]{Value: 0.2},
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("Completion finished", "model", s.model, "elapsed", time.Since(started))
	return message.Content, nil
}

// Close releases the background limiter, if any.
func (s *Service) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
}
