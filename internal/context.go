package internal

import (
	"context"
	"time"
)

type ctxKey string

const contextIdentityKey ctxKey = "identity"

// Identity is the authenticated caller resolved from a session token.
type Identity struct {
	UserID    int64  `json:"id"`
	Email     string `json:"email"`
	LastName  string `json:"nom"`
	FirstName string `json:"prenom"`
	// Token is the bearer token the identity was resolved from. It is never serialized.
	Token string `json:"-"`
}

func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, contextIdentityKey, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(contextIdentityKey).(*Identity)
	return identity, ok && identity != nil
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
