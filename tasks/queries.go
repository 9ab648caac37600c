package tasks

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jpirok/cleanarchitecture/domain"
	"github.com/jpirok/cleanarchitecture/identity"
	"github.com/jpirok/cleanarchitecture/mediator"
)

type GetTask struct {
	ID string `validate:"required"`
}

func (GetTask) RequiredRoles() []string { return []string{RoleUser} }

type ListTasks struct{}

func (ListTasks) RequiredRoles() []string { return []string{RoleUser} }

func (s *Service) getTask(ctx context.Context, req GetTask) (TaskView, error) {
	user, ok := identity.FromContext(ctx)
	if !ok {
		return TaskView{}, mediator.ErrUnauthorized
	}
	view, err := s.views.Get(ctx, req.ID)
	if err != nil {
		return TaskView{}, err
	}
	// Someone else's task is reported as missing.
	if view.OwnerID != user.ID {
		return TaskView{}, domain.ErrNotFound
	}
	return *view, nil
}

// listTasks returns the caller's tasks ordered by category and order, read
// through the per-owner cache. A loaded list is cached only when no
// projection wrote the owner's views while it was being read.
func (s *Service) listTasks(ctx context.Context, _ ListTasks) ([]TaskView, error) {
	user, ok := identity.FromContext(ctx)
	if !ok {
		return nil, mediator.ErrUnauthorized
	}
	load := func(ctx context.Context) ([]TaskView, error) {
		return s.views.List(ctx, bson.M{"ownerId": user.ID},
			options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "order", Value: 1}}))
	}
	if s.cache == nil {
		return load(ctx)
	}
	key := cacheKey(user.ID)
	if list, ok, err := s.cache.Get(ctx, key); err != nil || ok {
		return list, err
	}
	gen := s.gens.current(user.ID)
	list, err := load(ctx)
	if err != nil {
		return nil, err
	}
	stored, err := s.gens.storeIfCurrent(user.ID, gen, func() error {
		return s.cache.Add(ctx, key, list, s.cacheTTL)
	})
	if err != nil {
		s.log.WithError(err).WithField("owner", user.ID).Warn("unable to cache task list")
	} else if !stored {
		s.log.WithField("owner", user.ID).Debug("task list changed while loading, not cached")
	}
	return list, nil
}
