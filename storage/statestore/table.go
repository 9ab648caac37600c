package statestore

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"

	"github.com/jpirok/cleanarchitecture/storage"
)

// TableClient is the subset of *aztables.Client used by TableStore.
type TableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpsertEntity(ctx context.Context, entity []byte, options *aztables.UpsertEntityOptions) (aztables.UpsertEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
}

type stateEntity struct {
	aztables.Entity
	Value      string `json:"Value,omitempty"`
	TTLSeconds int64  `json:"TTLSeconds,omitempty"`
	ExpiresAt  string `json:"ExpiresAt,omitempty"`
}

type stateExpiry struct {
	aztables.Entity
	ExpiresAt string `json:"ExpiresAt"`
}

// TableStore keeps values as rows of an Azure table, one partition per store.
// Expired rows are deleted when they are next read.
type TableStore[T any] struct {
	table     TableClient
	partition string
	now       func() time.Time
	loader    loader[T]
}

func NewTableStore[T any](table TableClient, partition string) *TableStore[T] {
	return &TableStore[T]{table: table, partition: partition, now: time.Now}
}

func (s *TableStore[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	resp, err := s.table.GetEntity(ctx, s.partition, key, nil)
	if err != nil {
		if storage.IsNotFound(err) {
			return zero, false, nil
		}
		return zero, false, err
	}
	var ent stateEntity
	if err := sonic.Unmarshal(resp.Value, &ent); err != nil {
		return zero, false, err
	}

	now := s.now().UTC()
	if ent.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339Nano, ent.ExpiresAt)
		if err == nil && !now.Before(expiresAt) {
			return zero, false, s.Remove(ctx, key)
		}
	}

	var v T
	if err := sonic.UnmarshalString(ent.Value, &v); err != nil {
		return zero, false, err
	}
	if ent.TTLSeconds > 0 {
		if err := s.touch(ctx, key, now.Add(time.Duration(ent.TTLSeconds)*time.Second)); err != nil {
			return zero, false, err
		}
	}
	return v, true, nil
}

func (s *TableStore[T]) touch(ctx context.Context, key string, expiresAt time.Time) error {
	payload, err := sonic.Marshal(stateExpiry{
		Entity:    aztables.Entity{PartitionKey: s.partition, RowKey: key},
		ExpiresAt: expiresAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

func (s *TableStore[T]) GetBulk(ctx context.Context, keys []string) ([]T, error) {
	return getBulk(ctx, keys, s.Get)
}

func (s *TableStore[T]) GetOrCreate(ctx context.Context, key string, factory func(context.Context) (T, error), ttl time.Duration) (T, error) {
	return s.loader.getOrCreate(ctx, key, s.Get, s.Add, factory, ttl)
}

func (s *TableStore[T]) Add(ctx context.Context, key string, item T, ttl time.Duration) error {
	value, err := sonic.MarshalString(item)
	if err != nil {
		return err
	}
	ent := stateEntity{
		Entity: aztables.Entity{PartitionKey: s.partition, RowKey: key},
		Value:  value,
	}
	if ttl > 0 {
		secs := int64(ttl / time.Second)
		if secs == 0 {
			secs = 1
		}
		ent.TTLSeconds = secs
		ent.ExpiresAt = s.now().UTC().Add(time.Duration(secs) * time.Second).Format(time.RFC3339Nano)
	}
	payload, err := sonic.Marshal(ent)
	if err != nil {
		return err
	}
	// Replace so a re-add without ttl drops the previous expiry columns.
	_, err = s.table.UpsertEntity(ctx, payload, &aztables.UpsertEntityOptions{UpdateMode: aztables.UpdateModeReplace})
	return err
}

func (s *TableStore[T]) Remove(ctx context.Context, key string) error {
	et := azcore.ETagAny
	_, err := s.table.DeleteEntity(ctx, s.partition, key, &aztables.DeleteEntityOptions{IfMatch: &et})
	if err != nil && !storage.IsNotFound(err) {
		return err
	}
	return nil
}
