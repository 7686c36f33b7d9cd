package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"

	"github.com/julianstephens/habitcoach/internal/constants"
	"github.com/julianstephens/habitcoach/internal/logger"
	"github.com/julianstephens/habitcoach/internal/models"
)

// ErrNoAPIKey is returned by NewTogether without a key.
var ErrNoAPIKey = errors.New("LLM API key not configured")

const systemPrompt = "You are a supportive habit coach. Answer briefly and refer to the user's habits where it helps. " +
	"The user's current habit data is: %s"

// TogetherConfig configures the OpenAI-compatible chat backend.
type TogetherConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Timeout bounds each attempt.
	Timeout    time.Duration
	MaxRetries uint64
	RetryBase  time.Duration
	HTTPClient *http.Client
}

// Together talks to Together AI, or any OpenAI-compatible endpoint.
type Together struct {
	client *openai.Client
	cfg    TogetherConfig
}

func NewTogether(cfg TogetherConfig) (*Together, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = constants.DefaultLLMBaseURL
	}
	if u, err := url.Parse(cfg.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid LLM base URL %q", cfg.BaseURL)
	}
	if cfg.Model == "" {
		cfg.Model = constants.DefaultLLMModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.CoachRequestTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = constants.CoachMaxRetries
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = constants.CoachRetryBaseDelay
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &Together{client: openai.NewClientWithConfig(oc), cfg: cfg}, nil
}

func (t *Together) Name() string { return "together" }

func (t *Together) SendMessage(ctx context.Context, hc models.HabitContext, message string) (string, error) {
	message, err := validateMessage(message)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(hc)
	if err != nil {
		return "", fmt.Errorf("failed to encode habit context: %w", err)
	}
	req := openai.ChatCompletionRequest{
		Model: t.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, raw)},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	}

	log := logger.Component("coach")
	var reply string
	backoff := retry.WithMaxRetries(t.cfg.MaxRetries, retry.NewExponential(t.cfg.RetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()

		resp, err := t.client.CreateChatCompletion(attemptCtx, req)
		if err != nil {
			if retryable(err) {
				log.Debug("chat completion failed, retrying", "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("chat completion returned no choices")
		}
		reply = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return reply, nil
}

// retryable reports whether err is a rate limit, server error or timeout.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}
