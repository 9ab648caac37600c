package domain

import (
	"strings"
	"time"

	"github.com/jpirok/cleanarchitecture/textutil"
)

// Task represents a single board item owned by a user.
type Task struct {
	AggregateRoot
	OwnerID   string    `json:"ownerId" gorm:"index;not null"`
	Title     string    `json:"title" gorm:"not null"`
	Notes     string    `json:"notes,omitempty"`
	Category  string    `json:"category" gorm:"index"`
	Order     int       `json:"order"`
	Done      bool      `json:"done,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskChanges lists the fields of a task update. Nil fields are left as is.
type TaskChanges struct {
	Title    *string `json:"title,omitempty"`
	Notes    *string `json:"notes,omitempty"`
	Category *string `json:"category,omitempty"`
	Order    *int    `json:"order,omitempty"`
}

func (c TaskChanges) Empty() bool {
	return c.Title == nil && c.Notes == nil && c.Category == nil && c.Order == nil
}

// cleanLabel collapses runs of whitespace in titles and categories.
func cleanLabel(s string) string {
	return strings.TrimSpace(textutil.RemoveExtraSpaces(s))
}

// NewTask creates a task and raises TaskCreated.
func NewTask(ownerID, title, notes, category string, order int) *Task {
	t := &Task{
		AggregateRoot: NewAggregateRoot(),
		OwnerID:       ownerID,
		Title:         cleanLabel(title),
		Notes:         notes,
		Category:      cleanLabel(category),
		Order:         order,
	}
	t.Raise(NewTaskCreated(t))
	return t
}

// Update applies changes and raises TaskUpdated when anything changed.
func (t *Task) Update(changes TaskChanges) bool {
	applied := TaskChanges{}
	if changes.Title != nil && cleanLabel(*changes.Title) != t.Title {
		v := cleanLabel(*changes.Title)
		t.Title = v
		applied.Title = &v
	}
	if changes.Notes != nil && *changes.Notes != t.Notes {
		t.Notes = *changes.Notes
		applied.Notes = changes.Notes
	}
	if changes.Category != nil && cleanLabel(*changes.Category) != t.Category {
		v := cleanLabel(*changes.Category)
		t.Category = v
		applied.Category = &v
	}
	if changes.Order != nil && *changes.Order != t.Order {
		t.Order = *changes.Order
		applied.Order = changes.Order
	}
	if applied.Empty() {
		return false
	}
	t.Raise(NewTaskUpdated(t, applied))
	return true
}

// Complete marks the task as done and raises TaskCompleted.
func (t *Task) Complete() error {
	if t.Done {
		return ErrTaskAlreadyDone
	}
	t.Done = true
	t.Raise(NewTaskCompleted(t))
	return nil
}

// Reopen marks a done task as open again and raises TaskReopened.
func (t *Task) Reopen() error {
	if !t.Done {
		return ErrTaskNotDone
	}
	t.Done = false
	t.Raise(NewTaskReopened(t))
	return nil
}
