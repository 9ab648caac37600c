package domain

// EventRecorder is implemented by entities that raise domain events.
type EventRecorder interface {
	Entity
	DomainEvents() []Event
	ClearDomainEvents()
}

// AggregateRoot records domain events raised by an entity until the unit of
// work collects them. Each raised event receives the next source version.
type AggregateRoot struct {
	BaseEntity
	Version int64 `json:"version" bson:"version" gorm:"not null"`

	events []Event
}

// NewAggregateRoot returns an aggregate with a new identifier.
func NewAggregateRoot() AggregateRoot {
	return AggregateRoot{BaseEntity: NewBaseEntity()}
}

// Raise versions ev and keeps it for later publication.
func (a *AggregateRoot) Raise(ev Event) {
	a.Version++
	ev.Header().SetVersion(a.Version)
	a.events = append(a.events, ev)
}

func (a *AggregateRoot) DomainEvents() []Event {
	if len(a.events) == 0 {
		return nil
	}
	out := make([]Event, len(a.events))
	copy(out, a.events)
	return out
}

func (a *AggregateRoot) ClearDomainEvents() {
	a.events = nil
}
