package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/phrazzld/ragpipe/internal/config"
	"github.com/phrazzld/ragpipe/internal/generation"
)

type request struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeModels struct {
	calls     int
	lastModel string
	requests  []request
	responses []*genai.GenerateContentResponse
	errs      []error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content,
	config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	i := f.calls
	f.calls++
	f.lastModel = model
	f.requests = append(f.requests, request{model: model, contents: contents, config: config})
	var resp *genai.GenerateContentResponse
	var err error
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return resp, err
}

// text flattens every text part of a request, system instruction first.
func (r request) text() string {
	var sb strings.Builder
	if r.config != nil && r.config.SystemInstruction != nil {
		for _, p := range r.config.SystemInstruction.Parts {
			sb.WriteString(p.Text)
		}
		sb.WriteString("\n")
	}
	for _, c := range r.contents {
		for _, p := range c.Parts {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content}},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewCompleterRequiresKey(t *testing.T) {
	_, err := NewCompleter(context.Background(), config.LLMConfig{}, testLogger())
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewCompleter(context.Background(), config.LLMConfig{GeminiAPIKey: "k"}, nil)
	assert.Error(t, err)
}

func TestCompleteSuccess(t *testing.T) {
	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("Hello, ", "world")}}
	c := newCompleter(models, 2, time.Millisecond, testLogger())

	text, err := c.Complete(context.Background(), "gemini-1.5-flash", "prompt", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", text)
	assert.Equal(t, 1, models.calls)
	assert.Equal(t, "gemini-1.5-flash", models.lastModel)
}

func TestCompleteRetriesTransientErrors(t *testing.T) {
	models := &fakeModels{
		errs:      []error{errors.New("503"), errors.New("503"), nil},
		responses: []*genai.GenerateContentResponse{nil, nil, textResponse("ok")},
	}
	c := newCompleter(models, 2, time.Millisecond, testLogger())

	text, err := c.Complete(context.Background(), "m", "prompt", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 3, models.calls)
}

func TestCompleteGivesUpAfterMaxRetries(t *testing.T) {
	models := &fakeModels{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	c := newCompleter(models, 1, time.Millisecond, testLogger())

	_, err := c.Complete(context.Background(), "m", "prompt", "a.pdf")
	assert.ErrorIs(t, err, generation.ErrTransientFailure)
	assert.Equal(t, 2, models.calls)
}

func TestCompleteDoesNotRetryRejectedRequests(t *testing.T) {
	models := &fakeModels{
		errs:      []error{genai.APIError{Code: http.StatusBadRequest, Status: "INVALID_ARGUMENT"}},
		responses: []*genai.GenerateContentResponse{nil, textResponse("late")},
	}
	c := newCompleter(models, 3, time.Millisecond, testLogger())

	_, err := c.Complete(context.Background(), "gemini-bogus", "prompt", "a.pdf")
	assert.ErrorIs(t, err, ErrRequestRejected)
	assert.NotErrorIs(t, err, generation.ErrTransientFailure)

	var apiErr genai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Code)
	assert.Equal(t, 1, models.calls)
}

func TestCompleteRetriesThrottledAndServerErrors(t *testing.T) {
	codes := []int{http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusServiceUnavailable}
	for _, code := range codes {
		t.Run(http.StatusText(code), func(t *testing.T) {
			models := &fakeModels{
				errs:      []error{genai.APIError{Code: code}, nil},
				responses: []*genai.GenerateContentResponse{nil, textResponse("ok")},
			}
			c := newCompleter(models, 1, time.Millisecond, testLogger())

			text, err := c.Complete(context.Background(), "m", "prompt", "a.pdf")
			require.NoError(t, err)
			assert.Equal(t, "ok", text)
			assert.Equal(t, 2, models.calls)
		})
	}
}

func TestCompleteScopesRequestToDocument(t *testing.T) {
	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("a"), textResponse("b")}}
	c := newCompleter(models, 0, time.Millisecond, testLogger())
	ctx := context.Background()

	_, err := c.Complete(ctx, "m", "Question: q", "a.pdf")
	require.NoError(t, err)
	_, err = c.Complete(ctx, "m", "Question: q", "b.pdf")
	require.NoError(t, err)

	require.Len(t, models.requests, 2)
	first, second := models.requests[0], models.requests[1]
	assert.NotEqual(t, first.text(), second.text())
	assert.Contains(t, first.text(), "a.pdf")
	assert.Contains(t, second.text(), "b.pdf")
}

func TestCompleteWithoutDocumentSendsNoConfig(t *testing.T) {
	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("ok")}}
	c := newCompleter(models, 0, time.Millisecond, testLogger())

	_, err := c.Complete(context.Background(), "m", "prompt", "")
	require.NoError(t, err)
	require.Len(t, models.requests, 1)
	assert.Nil(t, models.requests[0].config)
}

func TestPipelineSendsDocumentContext(t *testing.T) {
	models := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("a"), textResponse("b")}}
	c := newCompleter(models, 0, time.Millisecond, testLogger())

	p, err := generation.NewPipeline(generation.LocalRetriever{}, c, generation.ModelConfig{
		LongModel:         "gemini-2.5-pro",
		ShortModel:        "gemini-2.5-flash",
		LongQuestionChars: 250,
	}, testLogger())
	require.NoError(t, err)

	for _, doc := range []string{"a.pdf", "b.pdf"} {
		_, err := p.Generate(context.Background(), "What is the outlook?", doc)
		require.NoError(t, err)
	}

	require.Len(t, models.requests, 2)
	prompt := func(r request) string { return r.contents[0].Parts[0].Text }
	assert.NotEqual(t, prompt(models.requests[0]), prompt(models.requests[1]))
	assert.Contains(t, prompt(models.requests[0]), "Document: a.pdf")
	assert.Contains(t, prompt(models.requests[1]), "Document: b.pdf")
}

func TestCompleteDoesNotRetryBlockedContent(t *testing.T) {
	blocked := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonSafety}},
	}
	models := &fakeModels{responses: []*genai.GenerateContentResponse{blocked, textResponse("late")}}
	c := newCompleter(models, 3, time.Millisecond, testLogger())

	_, err := c.Complete(context.Background(), "m", "prompt", "a.pdf")
	assert.ErrorIs(t, err, generation.ErrContentBlocked)
	assert.Equal(t, 1, models.calls)
}

func TestCompleteRejectsEmptyPrompt(t *testing.T) {
	models := &fakeModels{}
	c := newCompleter(models, 0, time.Millisecond, testLogger())

	_, err := c.Complete(context.Background(), "m", "", "a.pdf")
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Zero(t, models.calls)
}

func TestExtractText(t *testing.T) {
	_, err := extractText(nil)
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)

	_, err = extractText(&genai.GenerateContentResponse{})
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)

	_, err = extractText(textResponse(""))
	assert.ErrorIs(t, err, generation.ErrInvalidResponse)

	text, err := extractText(textResponse("a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "ab", text)
}
