package contract

import (
	"context"
	"errors"
)

var ErrMissingCaller = errors.New("caller identity missing from context")

type callerKey struct{}

// WithCaller returns a context carrying the authenticated account id of the
// party invoking an entry point.
func WithCaller(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, callerKey{}, accountID)
}

// CallerFrom returns the account id stored by WithCaller.
func CallerFrom(ctx context.Context) (string, bool) {
	accountID, ok := ctx.Value(callerKey{}).(string)
	if !ok || accountID == "" {
		return "", false
	}
	return accountID, true
}
