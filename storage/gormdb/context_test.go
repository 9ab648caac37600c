package gormdb

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus/hooks/test"
	"gorm.io/driver/postgres"

	"github.com/jpirok/cleanarchitecture/domain"
)

type recordingPublisher struct {
	events []domain.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev domain.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func newMockContext(t *testing.T) (*Context, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	logger, _ := test.NewNullLogger()
	c, err := Open(postgres.New(postgres.Config{Conn: db}), logger)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return c, mock
}

func TestChangeTrackingDeduplicatesByIdentity(t *testing.T) {
	c, _ := newMockContext(t)
	a := domain.NewTask("u1", "a", "", "", 0)
	b := domain.NewTask("u1", "b", "", "", 0)

	c.Add(a)
	c.Update(b)
	c.Update(a)
	entries := c.ChangeTracking()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Entity != a || entries[0].State != Added {
		t.Fatalf("expected added entity to stay added, got %v", entries[0].State)
	}
	if entries[1].State != Modified {
		t.Fatalf("unexpected state %v", entries[1].State)
	}

	c.Remove(a)
	c.Remove(b)
	entries = c.ChangeTracking()
	if len(entries) != 1 || entries[0].Entity != b || entries[0].State != Deleted {
		t.Fatalf("unexpected entries after removal %#v", entries)
	}
}

func TestSaveChangesCommitsAndPublishesEvents(t *testing.T) {
	c, mock := newMockContext(t)
	pub := &recordingPublisher{}
	c.WithEvents(pub)

	created := domain.NewTask("u1", "new", "", "normal", 0)
	done := domain.NewTask("u1", "old", "", "normal", 1)
	done.ClearDomainEvents()
	_ = done.Complete()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "tasks"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "tasks" SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c.Add(created)
	c.Update(done)
	n, err := c.SaveChanges(context.Background())
	if err != nil {
		t.Fatalf("save changes: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 affected rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}

	if len(pub.events) != 2 {
		t.Fatalf("expected 2 published events, got %d", len(pub.events))
	}
	if _, ok := pub.events[0].(*domain.TaskCreated); !ok {
		t.Fatalf("unexpected first event %T", pub.events[0])
	}
	if _, ok := pub.events[1].(*domain.TaskCompleted); !ok {
		t.Fatalf("unexpected second event %T", pub.events[1])
	}
	if len(created.DomainEvents()) != 0 || len(c.ChangeTracking()) != 0 {
		t.Fatalf("expected events and tracker to be cleared")
	}
}

func TestSaveChangesRollsBackWithoutPublishing(t *testing.T) {
	c, mock := newMockContext(t)
	pub := &recordingPublisher{}
	c.WithEvents(pub)

	task := domain.NewTask("u1", "new", "", "normal", 0)
	boom := errors.New("duplicate key")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "tasks"`).WillReturnError(boom)
	mock.ExpectRollback()

	c.Add(task)
	if _, err := c.SaveChanges(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected insert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("rolled back changes must not publish events")
	}
	if len(task.DomainEvents()) != 1 || len(c.ChangeTracking()) != 1 {
		t.Fatalf("failed save must keep events and tracked entities")
	}
}

func TestSaveChangesReportsPublishErrorsAfterCommit(t *testing.T) {
	c, mock := newMockContext(t)
	boom := errors.New("sink down")
	c.WithEvents(&recordingPublisher{err: boom})

	task := domain.NewTask("u1", "old", "", "normal", 0)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "tasks"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	c.Remove(task)
	n, err := c.SaveChanges(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}
	if n != 1 {
		t.Fatalf("expected committed row count, got %d", n)
	}
}

func TestSaveChangesWithoutChanges(t *testing.T) {
	c, mock := newMockContext(t)
	if n, err := c.SaveChanges(context.Background()); err != nil || n != 0 {
		t.Fatalf("unexpected %d %v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("no statements expected: %v", err)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
