// Package auth resolves the acting identity of a request and guards
// owner-only mutations.
package auth

import (
	"context"
	"errors"
	"time"

	"inkwell/internal/middleware"
	"inkwell/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ErrNoCredentials is returned by a Resolver when the request carries no
// credentials at all, as opposed to invalid ones.
var ErrNoCredentials = errors.New("no credentials")

func accountGone() error {
	return models.NewUnauthorizedError("Account no longer exists")
}

const localIdentity = "identity"

// Identity is the authenticated actor of a request.
type Identity struct {
	UserID uint
	// TokenID is the JWT id in token mode.
	TokenID string
	// SessionID is the opaque session id in session mode.
	SessionID string
	ExpiresAt time.Time
}

// Resolver extracts the acting identity from a request.
type Resolver interface {
	Resolve(c *fiber.Ctx) (Identity, error)
}

// Provider is a Resolver that can also establish and end identities.
type Provider interface {
	Resolver
	// Issue establishes an identity for user. Token providers return the
	// bearer token; session providers set a cookie and return "".
	Issue(c *fiber.Ctx, user *models.User) (string, error)
	// Revoke ends id so that later requests presenting it are rejected.
	Revoke(c *fiber.Ctx, id Identity) error
}

// UserLookup loads the account an identity names. It returns a NotFound
// AppError once the account has been deleted.
type UserLookup func(ctx context.Context, id uint) (*models.User, error)

type existingAccounts struct {
	Resolver
	lookup UserLookup
}

// ExistingAccounts wraps r so that credentials outliving their account are
// rejected as unauthorized.
func ExistingAccounts(r Resolver, lookup UserLookup) Resolver {
	return existingAccounts{Resolver: r, lookup: lookup}
}

func (e existingAccounts) Resolve(c *fiber.Ctx) (Identity, error) {
	id, err := e.Resolver.Resolve(c)
	if err != nil {
		return Identity{}, err
	}
	if _, err := e.lookup(c.UserContext(), id.UserID); err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return Identity{}, accountGone()
		}
		return Identity{}, err
	}
	return id, nil
}

// Required rejects requests without a valid identity and stores the identity
// in locals and in the request context.
func Required(r Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := r.Resolve(c)
		if errors.Is(err, ErrNoCredentials) {
			return models.NewUnauthorizedError("Authorization required")
		}
		if err != nil {
			return err
		}
		attach(c, id)
		return c.Next()
	}
}

// Optional attaches an identity when valid credentials are present and
// otherwise lets the request through anonymously.
func Optional(r Resolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if id, err := r.Resolve(c); err == nil {
			attach(c, id)
		}
		return c.Next()
	}
}

func attach(c *fiber.Ctx, id Identity) {
	c.Locals(middleware.LocalUserID, id.UserID)
	c.Locals(localIdentity, id)
	c.SetUserContext(context.WithValue(c.UserContext(), middleware.UserIDKey, id.UserID))
}

// FromCtx returns the identity attached by Required or Optional.
func FromCtx(c *fiber.Ctx) (Identity, bool) {
	id, ok := c.Locals(localIdentity).(Identity)
	return id, ok && id.UserID != 0
}
