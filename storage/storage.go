// Package storage builds Azure Storage clients shared by the table state
// store, the queue event sink and the provisioning tool.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

var retryStatusCodes = []int{408, 429, 500, 502, 503, 504}

// TableOptions returns the client options used for table access.
func TableOptions() *aztables.ClientOptions {
	return &aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
}

// QueueOptions returns the client options used for queue access.
func QueueOptions() *azqueue.ClientOptions {
	return &azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   retryStatusCodes,
			},
		},
	}
}

// NewTableClient returns a client for table in the account of connStr.
func NewTableClient(connStr, table string) (*aztables.Client, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, TableOptions())
	if err != nil {
		return nil, err
	}
	return svc.NewClient(table), nil
}

// NewQueueClient returns a client for queue in the account of connStr.
func NewQueueClient(connStr, queue string) (*azqueue.QueueClient, error) {
	return azqueue.NewQueueClientFromConnectionString(connStr, queue, QueueOptions())
}

type tableCreator interface {
	CreateTable(ctx context.Context, options *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type queueCreator interface {
	Create(ctx context.Context, o *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

// EnsureTable creates the table unless it already exists.
func EnsureTable(ctx context.Context, c tableCreator) error {
	if _, err := c.CreateTable(ctx, nil); err != nil && !IsErrorCode(err, string(aztables.TableAlreadyExists)) {
		return err
	}
	return nil
}

// EnsureQueue creates the queue unless it already exists.
func EnsureQueue(ctx context.Context, q queueCreator) error {
	if _, err := q.Create(ctx, nil); err != nil && !IsErrorCode(err, "QueueAlreadyExists") {
		return err
	}
	return nil
}

// IsErrorCode reports whether err is an Azure response error with code.
func IsErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}

// IsNotFound reports whether err is an Azure 404 response.
func IsNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
