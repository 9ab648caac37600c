// Package gormdb implements the relational unit of work on top of gorm.
package gormdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jpirok/cleanarchitecture/domain"
)

// EventPublisher receives the domain events raised by saved aggregates.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

type State int

const (
	Added State = iota + 1
	Modified
	Deleted
)

func (s State) String() string {
	switch s {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Entry is a tracked entity and its pending change.
type Entry struct {
	Entity domain.Entity
	State  State
}

// Context is a unit of work over a gorm session. Changes are staged with
// Add, Update and Remove and written by SaveChanges in one transaction.
type Context struct {
	db     *gorm.DB
	events EventPublisher

	mu      sync.Mutex
	entries []Entry
}

// Open connects through dialector and migrates models.
func Open(dialector gorm.Dialector, logger *log.Logger, models ...any) (*Context, error) {
	cfg := &gorm.Config{SkipDefaultTransaction: true}
	if logger != nil {
		cfg.Logger = gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}
	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("gorm open: %w", err)
	}
	if len(models) > 0 {
		if err := db.AutoMigrate(models...); err != nil {
			return nil, fmt.Errorf("gorm migrate: %w", err)
		}
	}
	return New(db), nil
}

func New(db *gorm.DB) *Context {
	return &Context{db: db}
}

// Session returns a unit of work sharing the connection pool but with its
// own change tracker.
func (c *Context) Session() *Context {
	return &Context{db: c.db, events: c.events}
}

// WithEvents attaches the publisher used after a successful save.
func (c *Context) WithEvents(p EventPublisher) *Context {
	c.events = p
	return c
}

func (c *Context) DB() *gorm.DB {
	return c.db
}

func (c *Context) Add(e domain.Entity)    { c.track(e, Added) }
func (c *Context) Update(e domain.Entity) { c.track(e, Modified) }
func (c *Context) Remove(e domain.Entity) { c.track(e, Deleted) }

func (c *Context) track(e domain.Entity, state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, entry := range c.entries {
		if !domain.SameEntity(entry.Entity, e) {
			continue
		}
		switch {
		case entry.State == Added && state == Deleted:
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
		case entry.State == Added:
			c.entries[i].Entity = e
		default:
			c.entries[i] = Entry{Entity: e, State: state}
		}
		return
	}
	c.entries = append(c.entries, Entry{Entity: e, State: state})
}

// ChangeTracking returns the tracked entities in staging order.
func (c *Context) ChangeTracking() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// SaveChanges writes staged changes in one transaction and returns the number
// of affected rows. After the commit the domain events of the saved aggregates
// are published in staging order. A publish error is returned after the data
// has been committed.
func (c *Context) SaveChanges(ctx context.Context) (int, error) {
	c.mu.Lock()
	entries := c.entries
	c.entries = nil
	c.mu.Unlock()

	if len(entries) == 0 {
		return 0, nil
	}

	var affected int64
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range entries {
			var res *gorm.DB
			switch entry.State {
			case Added:
				res = tx.Create(entry.Entity)
			case Modified:
				res = tx.Save(entry.Entity)
			case Deleted:
				res = tx.Delete(entry.Entity)
			}
			if res.Error != nil {
				return fmt.Errorf("%s %T: %w", entry.State, entry.Entity, res.Error)
			}
			affected += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		c.mu.Lock()
		c.entries = append(entries, c.entries...)
		c.mu.Unlock()
		return 0, err
	}

	var events []domain.Event
	for _, entry := range entries {
		if rec, ok := entry.Entity.(domain.EventRecorder); ok {
			events = append(events, rec.DomainEvents()...)
			rec.ClearDomainEvents()
		}
	}
	if c.events != nil {
		var errs []error
		for _, ev := range events {
			if err := c.events.Publish(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			return int(affected), fmt.Errorf("publish domain events: %w", err)
		}
	}
	return int(affected), nil
}

// Ping checks the database connection.
func (c *Context) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
