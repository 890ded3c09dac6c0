package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"inkwell/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionCookie is the name of the session id cookie.
const SessionCookie = "inkwell_session"

// SessionProvider keeps server-side sessions in Redis, keyed by an opaque id
// carried in a cookie. Each resolved request extends the session.
type SessionProvider struct {
	rdb    *redis.Client
	ttl    time.Duration
	secure bool
}

// NewSessionProvider requires a Redis client; sessions are not kept in process.
func NewSessionProvider(rdb *redis.Client, ttl time.Duration, secureCookie bool) (*SessionProvider, error) {
	if rdb == nil {
		return nil, errors.New("session auth requires redis")
	}
	return &SessionProvider{rdb: rdb, ttl: ttl, secure: secureCookie}, nil
}

func sessionKey(id string) string {
	return "session:" + id
}

// Issue creates a session for user and sets the cookie on c.
func (p *SessionProvider) Issue(c *fiber.Ctx, user *models.User) (string, error) {
	id := uuid.NewString()
	if err := p.rdb.Set(c.UserContext(), sessionKey(id), user.ID, p.ttl).Err(); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	p.setCookie(c, id, time.Now().Add(p.ttl))
	return "", nil
}

// Resolve looks up the session named by the request cookie.
func (p *SessionProvider) Resolve(c *fiber.Ctx) (Identity, error) {
	id := c.Cookies(SessionCookie)
	if id == "" {
		return Identity{}, ErrNoCredentials
	}

	raw, err := p.rdb.Get(c.UserContext(), sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Identity{}, models.NewUnauthorizedError("Session has expired")
	}
	if err != nil {
		return Identity{}, models.NewInternalError(err)
	}

	userID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || userID == 0 {
		return Identity{}, models.NewUnauthorizedError("Invalid session")
	}

	p.rdb.Expire(c.UserContext(), sessionKey(id), p.ttl)
	return Identity{UserID: uint(userID), SessionID: id, ExpiresAt: time.Now().Add(p.ttl)}, nil
}

// Revoke deletes the session and clears the cookie.
func (p *SessionProvider) Revoke(c *fiber.Ctx, id Identity) error {
	if id.SessionID != "" {
		if err := p.rdb.Del(c.UserContext(), sessionKey(id.SessionID)).Err(); err != nil {
			return models.NewInternalError(err)
		}
	}
	p.setCookie(c, "", time.Unix(0, 0))
	return nil
}

func (p *SessionProvider) setCookie(c *fiber.Ctx, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   p.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
