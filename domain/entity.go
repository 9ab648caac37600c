package domain

import "github.com/google/uuid"

// Entity is anything with a stable identity.
type Entity interface {
	EntityID() uuid.UUID
}

// BaseEntity carries the identifier shared by all persisted entities.
type BaseEntity struct {
	ID uuid.UUID `json:"id" bson:"_id" gorm:"type:uuid;primaryKey"`
}

// NewBaseEntity returns a BaseEntity with a freshly generated identifier.
func NewBaseEntity() BaseEntity {
	return BaseEntity{ID: uuid.New()}
}

func (e BaseEntity) EntityID() uuid.UUID {
	return e.ID
}

// SameEntity reports whether a and b refer to the same entity. Two entities are
// equal when they have the same concrete type and identifier.
func SameEntity(a, b Entity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if entityTypeName(a) != entityTypeName(b) {
		return false
	}
	return a.EntityID() == b.EntityID()
}
