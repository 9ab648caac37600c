// Package tasks is the sample feature: task commands written through the
// relational unit of work and task queries answered from the document read
// model.
package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jpirok/cleanarchitecture/domain"
	"github.com/jpirok/cleanarchitecture/mediator"
	"github.com/jpirok/cleanarchitecture/storage/statestore"
)

// RoleUser is required by every task request.
const RoleUser = "user"

// TaskView is the read model of a task.
type TaskView struct {
	ID        string    `json:"id" bson:"_id"`
	OwnerID   string    `json:"-" bson:"ownerId"`
	Title     string    `json:"title" bson:"title"`
	Notes     string    `json:"notes,omitempty" bson:"notes,omitempty"`
	Category  string    `json:"category" bson:"category"`
	Order     int       `json:"order" bson:"order"`
	Done      bool      `json:"done,omitempty" bson:"done"`
	Version   int64     `json:"version" bson:"version"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// UnitOfWork stages aggregate changes and saves them with their events.
type UnitOfWork interface {
	Add(e domain.Entity)
	Update(e domain.Entity)
	SaveChanges(ctx context.Context) (int, error)
}

// TaskReader loads aggregates from the write model.
type TaskReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)
}

// ViewReader reads TaskView documents.
type ViewReader interface {
	Get(ctx context.Context, id any) (*TaskView, error)
	List(ctx context.Context, filter any, opts ...*options.FindOptions) ([]TaskView, error)
}

// ViewWriter stores TaskView documents.
type ViewWriter interface {
	Upsert(ctx context.Context, id any, doc *TaskView) error
}

// Service handles task requests and keeps the read model in sync.
type Service struct {
	units    func() UnitOfWork
	tasks    TaskReader
	views    ViewReader
	writer   ViewWriter
	cache    statestore.Store[[]TaskView]
	cacheTTL time.Duration
	gens     generations
	log      *log.Logger
}

type Options struct {
	// Units returns a fresh unit of work per command.
	Units    func() UnitOfWork
	Tasks    TaskReader
	Views    ViewReader
	Writer   ViewWriter
	Cache    statestore.Store[[]TaskView]
	CacheTTL time.Duration
	Logger   *log.Logger
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Service{
		units:    opts.Units,
		tasks:    opts.Tasks,
		views:    opts.Views,
		writer:   opts.Writer,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		log:      logger,
	}
}

// Register wires the request handlers and the projection subscribers into m.
func Register(m *mediator.Mediator, s *Service) error {
	if err := mediator.Register(m, s.createTask); err != nil {
		return err
	}
	if err := mediator.Register(m, s.updateTask); err != nil {
		return err
	}
	if err := mediator.Register(m, s.completeTask); err != nil {
		return err
	}
	if err := mediator.Register(m, s.reopenTask); err != nil {
		return err
	}
	if err := mediator.Register(m, s.getTask); err != nil {
		return err
	}
	if err := mediator.Register(m, s.listTasks); err != nil {
		return err
	}
	mediator.Subscribe(m, s.onCreated)
	mediator.Subscribe(m, s.onUpdated)
	mediator.Subscribe(m, s.onCompleted)
	mediator.Subscribe(m, s.onReopened)
	return nil
}

func cacheKey(ownerID string) string {
	return "tasks:" + ownerID
}
