package gemini

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/phrazzld/ragpipe/internal/generation"
)

// Error definitions for the gemini package.
var (
	// ErrEmptyPrompt is returned when a prompt is empty.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrRequestRejected is returned when the API refuses a request that would fail
	// the same way on retry, such as an invalid argument or a bad key.
	ErrRequestRejected = errors.New("request rejected by Gemini API")
)

// extractText returns the concatenated text parts of the first candidate, or an
// error describing why the response carries no usable answer.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s",
			generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no candidates", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: candidate has no content", generation.ErrInvalidResponse)
	}

	var text string
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	if text == "" {
		return "", fmt.Errorf("%w: candidate has no text", generation.ErrInvalidResponse)
	}
	return text, nil
}

// isPermanent reports whether err must not be retried.
func isPermanent(err error) bool {
	return errors.Is(err, generation.ErrContentBlocked) ||
		errors.Is(err, generation.ErrInvalidResponse) ||
		errors.Is(err, ErrEmptyPrompt) ||
		errors.Is(err, ErrRequestRejected)
}

// rejected reports whether err is an API error in the 4xx range other than a
// timeout or rate limit.
func rejected(err error) bool {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return apiErr.Code >= 400 && apiErr.Code < 500
}
