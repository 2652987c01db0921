package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"

	"github.com/phrazzld/ragpipe/internal/config"
	"github.com/phrazzld/ragpipe/internal/generation"
)

// contentGenerator is the subset of the genai Models service used by Completer.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content,
		config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Completer implements generation.Completer using the Gemini API.
type Completer struct {
	models     contentGenerator
	maxRetries int
	retryDelay time.Duration
	logger     *slog.Logger
}

var _ generation.Completer = (*Completer)(nil)

// NewCompleter creates a Gemini completer from the LLM configuration.
func NewCompleter(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Completer, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return newCompleter(client.Models, cfg.MaxRetries, cfg.RetryDelay(), logger), nil
}

func newCompleter(models contentGenerator, maxRetries int, retryDelay time.Duration, logger *slog.Logger) *Completer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Completer{
		models:     models,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		logger:     logger.With("component", "gemini_completer"),
	}
}

// Complete sends prompt to model and returns the generated text. The document
// reference is attached as a system instruction. Transient failures are retried with
// exponential backoff and jitter; rejected requests and blocked or empty responses
// are not.
func (c *Completer) Complete(ctx context.Context, model, prompt, documentRef string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	backoff := retry.WithMaxRetries(uint64(c.maxRetries),
		retry.WithJitterPercent(20, retry.NewExponential(c.retryDelay)))

	attempt := 0
	var text string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		c.logger.DebugContext(ctx, "calling gemini",
			"model", model,
			"document_ref", documentRef,
			"attempt", attempt)

		resp, err := c.models.GenerateContent(ctx, model, genai.Text(prompt), requestConfig(documentRef))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "gemini call failed",
				"model", model,
				"attempt", attempt,
				"error", err)
			if rejected(err) {
				return fmt.Errorf("%w: %w", ErrRequestRejected, err)
			}
			return retry.RetryableError(fmt.Errorf("%w: %v", generation.ErrTransientFailure, err))
		}

		out, err := extractText(resp)
		if err != nil {
			if isPermanent(err) {
				return err
			}
			return retry.RetryableError(err)
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// requestConfig scopes the request to one document. An empty reference sends no
// configuration.
func requestConfig(documentRef string) *genai.GenerateContentConfig {
	if documentRef == "" {
		return nil
	}
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(
			"Answer only from the document "+documentRef+" and the context passages in the prompt.",
			genai.RoleUser),
	}
}
