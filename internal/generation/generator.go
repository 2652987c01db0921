package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Answer is the output of a single generation.
type Answer struct {
	Text     string
	Metadata map[string]any
	Model    string
}

// Generator produces an answer for a question against one document.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, question, documentRef string) (Answer, error)
}

// Completer runs a prompt against a named model in the context of one document.
type Completer interface {
	Complete(ctx context.Context, model, prompt, documentRef string) (string, error)
}

// ModelConfig controls model selection.
type ModelConfig struct {
	LongModel  string
	ShortModel string
	// LongQuestionChars is the question length above which the long model is used.
	LongQuestionChars int
}

// Pipeline is the default Generator.
type Pipeline struct {
	retriever Retriever
	completer Completer
	models    ModelConfig
	logger    *slog.Logger
}

var _ Generator = (*Pipeline)(nil)

// NewPipeline creates a Pipeline that grounds prompts with retriever and completes
// them with completer.
func NewPipeline(retriever Retriever, completer Completer, models ModelConfig, logger *slog.Logger) (*Pipeline, error) {
	if retriever == nil {
		return nil, fmt.Errorf("%w: retriever cannot be nil", ErrInvalidConfig)
	}
	if completer == nil {
		return nil, fmt.Errorf("%w: completer cannot be nil", ErrInvalidConfig)
	}
	if models.LongModel == "" || models.ShortModel == "" {
		return nil, fmt.Errorf("%w: long and short model names are required", ErrInvalidConfig)
	}
	if models.LongQuestionChars <= 0 {
		return nil, fmt.Errorf("%w: long question threshold must be positive", ErrInvalidConfig)
	}
	return &Pipeline{
		retriever: retriever,
		completer: completer,
		models:    models,
		logger:    logger.With("component", "generation_pipeline"),
	}, nil
}

// Generate extracts metadata, retrieves the document's passages, builds a prompt,
// selects a model and completes the prompt.
func (p *Pipeline) Generate(ctx context.Context, question, documentRef string) (Answer, error) {
	meta := ExtractMetadata(question)

	passages, err := p.retriever.Retrieve(ctx, documentRef, question)
	if err != nil {
		if isContextError(err) {
			return Answer{}, err
		}
		return Answer{}, fmt.Errorf("%w: %s: %w", ErrRetrievalFailed, documentRef, err)
	}

	prompt := BuildPrompt(question, documentRef, passages, meta)
	model := SelectModel(meta, p.models)

	p.logger.DebugContext(ctx, "generating answer",
		"document_ref", documentRef,
		"passages", len(passages),
		"intent", meta.Intent,
		"model", model)

	text, err := p.completer.Complete(ctx, model, prompt, documentRef)
	if err != nil {
		if isContextError(err) {
			return Answer{}, err
		}
		return Answer{}, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return Answer{}, fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}

	return Answer{
		Text:     text,
		Metadata: meta.Map(),
		Model:    model,
	}, nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
