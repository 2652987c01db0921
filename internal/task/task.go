package task

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// DefaultUser is recorded for tasks submitted without a user.
const DefaultUser = "anonymous"

// DefaultDocumentRef is used when a payload omits pdf_ids entirely.
const DefaultDocumentRef = "default.pdf"

var validate = validator.New()

// Task is a question to be answered against one or more documents.
// It is immutable once created.
type Task struct {
	// ID identifies the task within this process for logging; it is not serialized.
	ID           uuid.UUID `json:"-"`
	User         string    `json:"user"`
	Question     string    `json:"question" validate:"required"`
	DocumentRefs []string  `json:"pdf_ids" validate:"required,min=1,dive,required"`
}

// NewTask validates and normalizes a task. A blank user becomes DefaultUser; blank
// document references are discarded, and a task left without any is rejected.
func NewTask(user, question string, documentRefs []string) (Task, error) {
	refs := make([]string, 0, len(documentRefs))
	for _, ref := range documentRefs {
		if ref = strings.TrimSpace(ref); ref != "" {
			refs = append(refs, ref)
		}
	}

	user = strings.TrimSpace(user)
	if user == "" {
		user = DefaultUser
	}

	t := Task{
		ID:           uuid.New(),
		User:         user,
		Question:     strings.TrimSpace(question),
		DocumentRefs: refs,
	}

	if err := validate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if verrs[0].StructField() == "Question" {
				return Task{}, ErrEmptyQuestion
			}
			return Task{}, ErrNoDocumentRefs
		}
		return Task{}, err
	}

	return t, nil
}

// Item is the unit of work handled by one worker: one document of one task.
type Item struct {
	TaskID      uuid.UUID
	User        string
	Question    string
	DocumentRef string
}

// Items expands the task into one Item per document reference, in order.
func (t Task) Items() []Item {
	items := make([]Item, len(t.DocumentRefs))
	for i, ref := range t.DocumentRefs {
		items[i] = Item{
			TaskID:      t.ID,
			User:        t.User,
			Question:    t.Question,
			DocumentRef: ref,
		}
	}
	return items
}
