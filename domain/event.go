package domain

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Event is implemented by every domain event. Concrete events embed
// DomainEvent and are passed around as pointers.
type Event interface {
	Header() *DomainEvent
}

// DomainEvent is the header shared by all domain events.
type DomainEvent struct {
	ID                         uuid.UUID `json:"id"`
	Topic                      string    `json:"topic"`
	Type                       string    `json:"type"`
	Source                     uuid.UUID `json:"source"`
	Subject                    string    `json:"subject"`
	CanPublishToInfrastructure bool      `json:"canPublishToInfrastructure"`
	SourceVersion              int64     `json:"sourceVersion"`
	IsPublished                bool      `json:"isPublished"`
	Time                       time.Time `json:"time"`
}

// NewDomainEvent builds the header for an event raised by source. The topic is
// "<source type>/<subject>".
func NewDomainEvent(source Entity, subject string) DomainEvent {
	typ := entityTypeName(source)
	var sourceID uuid.UUID
	if source != nil {
		sourceID = source.EntityID()
	}
	return DomainEvent{
		ID:                         uuid.New(),
		Topic:                      typ + "/" + subject,
		Type:                       typ,
		Source:                     sourceID,
		Subject:                    subject,
		CanPublishToInfrastructure: true,
	}
}

func (e *DomainEvent) Header() *DomainEvent {
	return e
}

// SetVersion records the version of the source entity that produced the event.
func (e *DomainEvent) SetVersion(version int64) *DomainEvent {
	e.SourceVersion = version
	return e
}

// Publishing marks the event as published at ts, or now when ts is zero.
func (e *DomainEvent) Publishing(ts time.Time) *DomainEvent {
	e.IsPublished = true
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	e.Time = ts
	return e
}

// Equal compares events by identifier only.
func (e *DomainEvent) Equal(other Event) bool {
	if e == nil || other == nil || other.Header() == nil {
		return false
	}
	return e.ID == other.Header().ID
}

// EventName returns the Go type name of ev, without package or pointer.
func EventName(ev Event) string {
	return typeName(reflect.TypeOf(ev))
}

func entityTypeName(e Entity) string {
	if e == nil {
		return ""
	}
	return typeName(reflect.TypeOf(e))
}

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
