package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const accountIDKey contextKey = "account_id"

func WithAccountID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, accountIDKey, id)
}

// AccountIDFromContext returns the authenticated account's ID. The
// second return is false on unauthenticated requests.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(accountIDKey).(uuid.UUID)
	return id, ok
}
