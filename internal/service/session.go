package service

import (
	"context"
	"errors"

	apperrors "github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/errors"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/store"
	"github.com/surya385-kapilit/RishiKrishi-slave-backend/internal/tenant"
)

// SessionRunner opens tenant-scoped sessions. *tenant.Router implements it.
type SessionRunner interface {
	WithSession(ctx context.Context, tenantID string, fn tenant.SessionFunc) error
}

var _ SessionRunner = (*tenant.Router)(nil)

// notFoundAs turns store.ErrNotFound into a NotFound error with msg. Other
// errors are returned unchanged so the router can classify them.
func notFoundAs(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperrors.NotFound(msg)
	}
	return err
}
