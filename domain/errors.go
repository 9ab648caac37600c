package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when no entity matches.
	ErrNotFound = errors.New("not found")
	// ErrEventAlreadyPublished is returned when an event is published twice.
	ErrEventAlreadyPublished = errors.New("domain event already published")
	// ErrTaskAlreadyDone is returned when completing a completed task.
	ErrTaskAlreadyDone = errors.New("task already done")
	// ErrTaskNotDone is returned when reopening a task that is still open.
	ErrTaskNotDone = errors.New("task is not done")
	// ErrNotOwner is returned when a caller acts on someone else's task.
	ErrNotOwner = errors.New("task belongs to another user")
)
