// Package authz is the capability seam used by the HTTP layer. Role and
// permission modeling is not implemented; Noop grants no roles and treats
// every authenticated account as permitted.
package authz

import (
	"context"
)

// Authorizer answers role and permission questions about an account.
type Authorizer interface {
	Roles(ctx context.Context, accountID string) ([]string, error)
	Permissions(ctx context.Context, accountID string) ([]string, error)
	Allowed(ctx context.Context, accountID, permission string) (bool, error)
}

// Noop is the default Authorizer.
type Noop struct{}

var _ Authorizer = Noop{}

// Roles always returns an empty, non-nil list.
func (Noop) Roles(context.Context, string) ([]string, error) {
	return []string{}, nil
}

// Permissions always returns an empty, non-nil list.
func (Noop) Permissions(context.Context, string) ([]string, error) {
	return []string{}, nil
}

// Allowed always permits. Authentication is the only gate until a real
// Authorizer is wired.
func (Noop) Allowed(context.Context, string, string) (bool, error) {
	return true, nil
}
