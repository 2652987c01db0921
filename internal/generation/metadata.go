package generation

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxKeywords = 8

// Metadata is the lightweight analysis of a question.
type Metadata struct {
	Intent   string   `json:"intent"`
	Keywords []string `json:"keywords"`
	Length   int      `json:"length"`
}

// Map returns the metadata as a generic map for persistence and caching.
func (m Metadata) Map() map[string]any {
	keywords := m.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return map[string]any{
		"intent":   m.Intent,
		"keywords": keywords,
		"length":   m.Length,
	}
}

// Question intents.
const (
	IntentSummarization = "summarization"
	IntentExplanatory   = "explanatory"
	IntentFactual       = "factual"
	IntentGeneral       = "general"
)

// intentRules are evaluated in order; the first rule with a matching term wins.
var intentRules = []struct {
	intent string
	terms  []string
}{
	{IntentSummarization, []string{"summarize", "summary", "summarise"}},
	{IntentExplanatory, []string{"how", "why", "explain"}},
	{IntentFactual, []string{"list", "what", "who", "when"}},
}

// ExtractMetadata classifies the question intent, picks keywords (words longer than
// five characters, at most eight) and records its length in characters.
func ExtractMetadata(question string) Metadata {
	var keywords []string
	for _, w := range strings.Fields(question) {
		if utf8.RuneCountInString(w) > 5 {
			keywords = append(keywords, w)
			if len(keywords) == maxKeywords {
				break
			}
		}
	}

	lower := strings.ToLower(question)
	intent := IntentGeneral
rules:
	for _, rule := range intentRules {
		for _, term := range rule.terms {
			if strings.Contains(lower, term) {
				intent = rule.intent
				break rules
			}
		}
	}

	return Metadata{
		Intent:   intent,
		Keywords: keywords,
		Length:   utf8.RuneCountInString(question),
	}
}

// BuildPrompt renders the prompt sent to the model. The document reference and its
// retrieved passages are part of the prompt, so requests for different documents differ.
func BuildPrompt(question, documentRef string, passages []string, meta Metadata) string {
	keywords := strings.Join(meta.Keywords, ", ")
	if keywords == "" {
		keywords = "None"
	}

	var passageLines strings.Builder
	if len(passages) == 0 {
		passageLines.WriteString("None\n")
	}
	for _, p := range passages {
		passageLines.WriteString("- ")
		passageLines.WriteString(strings.ReplaceAll(p, "\n", " "))
		passageLines.WriteString("\n")
	}

	return fmt.Sprintf("You are an assistant answering based on a provided document.\n"+
		"Document: %s\n"+
		"Context:\n%s"+
		"Intent: %s\n"+
		"Keywords: %s\n\n"+
		"Question: %s\n\n"+
		"Please answer concisely and cite relevant document snippets if applicable.",
		documentRef, passageLines.String(), meta.Intent, keywords, question)
}

// SelectModel picks the long model for summarization or long questions and the short
// model otherwise.
func SelectModel(meta Metadata, models ModelConfig) string {
	if meta.Intent == IntentSummarization || meta.Length > models.LongQuestionChars {
		return models.LongModel
	}
	return models.ShortModel
}
