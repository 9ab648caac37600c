package tasks

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/jpirok/cleanarchitecture/domain"
)

func (s *Service) onCreated(ctx context.Context, ev *domain.TaskCreated) error {
	h := ev.Header()
	view := &TaskView{
		ID:        h.Source.String(),
		OwnerID:   ev.OwnerID,
		Title:     ev.Title,
		Notes:     ev.Notes,
		Category:  ev.Category,
		Order:     ev.Order,
		Version:   h.SourceVersion,
		UpdatedAt: h.Time,
	}
	return s.project(ctx, ev.OwnerID, view)
}

func (s *Service) onUpdated(ctx context.Context, ev *domain.TaskUpdated) error {
	return s.apply(ctx, ev, ev.OwnerID, func(v *TaskView) {
		c := ev.Changes
		if c.Title != nil {
			v.Title = *c.Title
		}
		if c.Notes != nil {
			v.Notes = *c.Notes
		}
		if c.Category != nil {
			v.Category = *c.Category
		}
		if c.Order != nil {
			v.Order = *c.Order
		}
	})
}

func (s *Service) onCompleted(ctx context.Context, ev *domain.TaskCompleted) error {
	return s.apply(ctx, ev, ev.OwnerID, func(v *TaskView) { v.Done = true })
}

func (s *Service) onReopened(ctx context.Context, ev *domain.TaskReopened) error {
	return s.apply(ctx, ev, ev.OwnerID, func(v *TaskView) { v.Done = false })
}

// apply loads the view of ev's source and mutates it with fn. Events older
// than the stored view are ignored.
func (s *Service) apply(ctx context.Context, ev domain.Event, ownerID string, fn func(*TaskView)) error {
	h := ev.Header()
	view, err := s.views.Get(ctx, h.Source.String())
	if errors.Is(err, domain.ErrNotFound) {
		s.log.WithFields(log.Fields{"task": h.Source, "event": domain.EventName(ev)}).Warn("task view missing")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task view: %w", err)
	}
	if view.Version >= h.SourceVersion {
		return nil
	}
	fn(view)
	view.Version = h.SourceVersion
	view.UpdatedAt = h.Time
	return s.project(ctx, ownerID, view)
}

func (s *Service) project(ctx context.Context, ownerID string, view *TaskView) error {
	if err := s.writer.Upsert(ctx, view.ID, view); err != nil {
		return fmt.Errorf("store task view: %w", err)
	}
	if s.cache == nil {
		return nil
	}
	evict := func() error { return s.cache.Remove(ctx, cacheKey(ownerID)) }
	if err := s.gens.advance(ownerID, evict); err != nil {
		s.log.WithError(err).WithField("owner", ownerID).Warn("unable to evict task list")
	}
	return nil
}
