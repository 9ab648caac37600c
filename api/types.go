package api

import (
	"context"
	"net/http"

	"github.com/jpirok/cleanarchitecture/identity"
)

// Authenticator is implemented by types able to identify callers from headers.
type Authenticator interface {
	UserFromHeader(http.Header) (identity.User, error)
}

// Deduper prevents processing of duplicate commands.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, userID, key string) error
}
