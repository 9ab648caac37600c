package domain

const (
	TaskCreatedSubject   = "created"
	TaskUpdatedSubject   = "updated"
	TaskCompletedSubject = "completed"
	TaskReopenedSubject  = "reopened"
)

// TaskCreated carries the full initial state of a task.
type TaskCreated struct {
	DomainEvent
	OwnerID  string `json:"ownerId"`
	Title    string `json:"title"`
	Notes    string `json:"notes,omitempty"`
	Category string `json:"category"`
	Order    int    `json:"order"`
}

func NewTaskCreated(t *Task) *TaskCreated {
	return &TaskCreated{
		DomainEvent: NewDomainEvent(t, TaskCreatedSubject),
		OwnerID:     t.OwnerID,
		Title:       t.Title,
		Notes:       t.Notes,
		Category:    t.Category,
		Order:       t.Order,
	}
}

// TaskUpdated carries only the fields that changed.
type TaskUpdated struct {
	DomainEvent
	OwnerID string      `json:"ownerId"`
	Changes TaskChanges `json:"changes"`
}

func NewTaskUpdated(t *Task, changes TaskChanges) *TaskUpdated {
	return &TaskUpdated{
		DomainEvent: NewDomainEvent(t, TaskUpdatedSubject),
		OwnerID:     t.OwnerID,
		Changes:     changes,
	}
}

// TaskCompleted is delivered to infrastructure in batches.
type TaskCompleted struct {
	BufferedDomainEvent
	OwnerID string `json:"ownerId"`
}

func NewTaskCompleted(t *Task) *TaskCompleted {
	return &TaskCompleted{
		BufferedDomainEvent: NewBufferedDomainEvent(t, TaskCompletedSubject),
		OwnerID:             t.OwnerID,
	}
}

// TaskReopened stays inside the process.
type TaskReopened struct {
	DomainEvent
	OwnerID string `json:"ownerId"`
}

func NewTaskReopened(t *Task) *TaskReopened {
	ev := &TaskReopened{
		DomainEvent: NewDomainEvent(t, TaskReopenedSubject),
		OwnerID:     t.OwnerID,
	}
	ev.CanPublishToInfrastructure = false
	return ev
}
