package task

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type wireTask struct {
	User     string          `json:"user"`
	Question string          `json:"question"`
	PDFIDs   json.RawMessage `json:"pdf_ids"`
}

// Encode serializes a task into the queue payload format
// {"user": ..., "question": ..., "pdf_ids": [...]}.
func Encode(t Task) ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTask parses a queue payload. pdf_ids may be omitted or null (one default
// document), a bare string (one document) or a list of strings. Every failure wraps
// ErrMalformedPayload.
func DecodeTask(body []byte) (Task, error) {
	var w wireTask
	if err := json.Unmarshal(body, &w); err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	refs, err := decodeDocumentRefs(w.PDFIDs)
	if err != nil {
		return Task{}, fmt.Errorf("%w: pdf_ids: %v", ErrMalformedPayload, err)
	}

	t, err := NewTask(w.User, w.Question, refs)
	if err != nil {
		return Task{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return t, nil
}

func decodeDocumentRefs(raw json.RawMessage) ([]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []string{DefaultDocumentRef}, nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("expected a string or list of strings")
	}
	return []string{single}, nil
}
