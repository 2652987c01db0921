package generation

import (
	"context"
	"fmt"
	"strings"
)

// LocalCompleter answers without calling a model by echoing the retrieved passages
// and the question found in the prompt. Answers are deterministic for a given
// (model, prompt, document).
type LocalCompleter struct{}

var _ Completer = LocalCompleter{}

// Complete implements Completer.
func (LocalCompleter) Complete(ctx context.Context, model, prompt, documentRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	passages, question := parsePrompt(prompt)
	if len(passages) == 0 {
		passages = []string{"no relevant passages found."}
	}

	return fmt.Sprintf("[%s] %s: %s (question: %s)",
		model, documentRef, strings.Join(passages, " "), question), nil
}

// parsePrompt extracts the context passages and the question from a prompt rendered
// by BuildPrompt.
func parsePrompt(prompt string) (passages []string, question string) {
	inContext := false
	for _, line := range strings.Split(prompt, "\n") {
		switch {
		case line == "Context:":
			inContext = true
		case inContext && strings.HasPrefix(line, "- "):
			passages = append(passages, strings.TrimPrefix(line, "- "))
		case strings.HasPrefix(line, "Question: "):
			question = strings.TrimPrefix(line, "Question: ")
			inContext = false
		default:
			inContext = false
		}
	}
	return passages, question
}
