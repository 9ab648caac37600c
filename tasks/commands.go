package tasks

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jpirok/cleanarchitecture/domain"
	"github.com/jpirok/cleanarchitecture/identity"
	"github.com/jpirok/cleanarchitecture/mediator"
)

type CreateTask struct {
	Title    string `json:"title" validate:"required,max=200"`
	Notes    string `json:"notes" validate:"max=2000"`
	Category string `json:"category" validate:"max=50"`
	Order    int    `json:"order" validate:"gte=0"`
}

func (CreateTask) RequiredRoles() []string { return []string{RoleUser} }

type UpdateTask struct {
	ID       string  `json:"-" validate:"required,uuid"`
	Title    *string `json:"title" validate:"omitnil,min=1,max=200"`
	Notes    *string `json:"notes" validate:"omitnil,max=2000"`
	Category *string `json:"category" validate:"omitnil,max=50"`
	Order    *int    `json:"order" validate:"omitnil,gte=0"`
}

func (UpdateTask) RequiredRoles() []string { return []string{RoleUser} }

type CompleteTask struct {
	ID string `json:"-" validate:"required,uuid"`
}

func (CompleteTask) RequiredRoles() []string { return []string{RoleUser} }

type ReopenTask struct {
	ID string `json:"-" validate:"required,uuid"`
}

func (ReopenTask) RequiredRoles() []string { return []string{RoleUser} }

func (s *Service) createTask(ctx context.Context, req CreateTask) (TaskView, error) {
	user, ok := identity.FromContext(ctx)
	if !ok {
		return TaskView{}, mediator.ErrUnauthorized
	}
	task := domain.NewTask(user.ID, req.Title, req.Notes, req.Category, req.Order)
	uow := s.units()
	uow.Add(task)
	if _, err := uow.SaveChanges(ctx); err != nil {
		return TaskView{}, err
	}
	s.log.WithFields(log.Fields{"task": task.ID, "owner": user.ID}).Debug("task created")
	return viewOf(task), nil
}

func (s *Service) updateTask(ctx context.Context, req UpdateTask) (TaskView, error) {
	return s.modify(ctx, req.ID, func(t *domain.Task) (bool, error) {
		changed := t.Update(domain.TaskChanges{
			Title:    req.Title,
			Notes:    req.Notes,
			Category: req.Category,
			Order:    req.Order,
		})
		return changed, nil
	})
}

func (s *Service) completeTask(ctx context.Context, req CompleteTask) (TaskView, error) {
	return s.modify(ctx, req.ID, func(t *domain.Task) (bool, error) {
		return true, t.Complete()
	})
}

func (s *Service) reopenTask(ctx context.Context, req ReopenTask) (TaskView, error) {
	return s.modify(ctx, req.ID, func(t *domain.Task) (bool, error) {
		return true, t.Reopen()
	})
}

// modify loads the caller's task, applies fn and saves it when fn reports a
// change.
func (s *Service) modify(ctx context.Context, rawID string, fn func(*domain.Task) (bool, error)) (TaskView, error) {
	task, err := s.owned(ctx, rawID)
	if err != nil {
		return TaskView{}, err
	}
	changed, err := fn(task)
	if err != nil {
		return TaskView{}, err
	}
	if !changed {
		return viewOf(task), nil
	}
	uow := s.units()
	uow.Update(task)
	if _, err := uow.SaveChanges(ctx); err != nil {
		return TaskView{}, err
	}
	return viewOf(task), nil
}

func (s *Service) owned(ctx context.Context, rawID string) (*domain.Task, error) {
	user, ok := identity.FromContext(ctx)
	if !ok {
		return nil, mediator.ErrUnauthorized
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, domain.ErrNotFound
	}
	task, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.OwnerID != user.ID {
		return nil, domain.ErrNotOwner
	}
	return task, nil
}

func viewOf(t *domain.Task) TaskView {
	return TaskView{
		ID:        t.ID.String(),
		OwnerID:   t.OwnerID,
		Title:     t.Title,
		Notes:     t.Notes,
		Category:  t.Category,
		Order:     t.Order,
		Done:      t.Done,
		Version:   t.Version,
		UpdatedAt: t.UpdatedAt,
	}
}
