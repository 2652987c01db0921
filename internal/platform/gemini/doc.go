// Package gemini implements generation.Completer on top of Google's Gemini API.
//
// The completer sends the prompt produced by the generation pipeline to the model
// chosen by model selection, retries transient failures with exponential backoff and
// maps safety blocks and empty responses to the generation package's error values.
package gemini
