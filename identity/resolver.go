package identity

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"teamcollab/apperror"
	"teamcollab/models"
	"teamcollab/services"
	"teamcollab/utils"
)

// UserStore is the part of the user service the resolver needs.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Sync(ctx context.Context, email, displayName string, in services.SyncInput) (*models.User, error)
}

// Resolver turns bearer credentials into local users.
type Resolver struct {
	verifier Verifier
	users    UserStore
	log      *logrus.Entry
}

func NewResolver(verifier Verifier, users UserStore) *Resolver {
	return &Resolver{
		verifier: verifier,
		users:    users,
		log:      utils.Component("identity"),
	}
}

// Authenticate verifies token without touching the user store.
func (r *Resolver) Authenticate(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.Unauthenticated(apperror.CodeMissingToken, "Authorization required")
	}
	id, err := r.verifier.Verify(ctx, token)
	if err != nil {
		r.log.WithError(err).Debug("token rejected")
		return nil, apperror.Unauthenticated(apperror.CodeInvalidToken, "Invalid or expired token")
	}
	return id, nil
}

// Resolve authenticates token and loads the existing local user. A verified
// identity with no local record yields USER_NOT_FOUND.
func (r *Resolver) Resolve(ctx context.Context, token string) (*models.User, *Identity, error) {
	id, err := r.Authenticate(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	user, err := r.users.FindByEmail(ctx, id.Email)
	if err != nil {
		return nil, id, err
	}
	return user, id, nil
}

// Sync authenticates token and finds or creates the local user, applying the
// profile fields present in in.
func (r *Resolver) Sync(ctx context.Context, token string, in services.SyncInput) (*models.User, error) {
	id, err := r.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	user, err := r.users.Sync(ctx, id.Email, id.Name, in)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{"user_id": user.ID, "subject": id.Subject}).Debug("identity synced")
	return user, nil
}
