// Package generation produces answers for (question, document) pairs.
//
// A Pipeline extracts lightweight metadata from the question, retrieves the document's
// relevant passages through a Retriever, builds a prompt naming the document and its
// passages, selects a model and delegates the completion to a Completer.
// LocalRetriever and LocalCompleter run fully offline; the Gemini-backed completer
// lives in internal/platform/gemini.
package generation
