package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/middleware"
	"inkwell/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TokenIssuer     = "inkwell-api"
	TokenAudience   = "inkwell-client"
	RefreshAudience = "inkwell-refresh"

	// HeaderRefreshToken carries the refresh token on refresh and logout.
	HeaderRefreshToken = "X-Refresh-Token"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// DefaultRefreshTTL applies when no refresh lifetime is configured.
const DefaultRefreshTTL = 7 * 24 * time.Hour

type tokenClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// TokenPair is an access token and the refresh token that renews it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Refresher is implemented by providers whose credentials can be renewed
// without the password.
type Refresher interface {
	IssuePair(ctx context.Context, user *models.User) (TokenPair, error)
	Refresh(ctx context.Context, refreshToken string, lookup UserLookup) (TokenPair, error)
	RevokeRefresh(ctx context.Context, refreshToken string) error
}

// TokenProvider issues and verifies HS256 bearer tokens. Revoked token ids
// are kept in Redis until the token would have expired.
type TokenProvider struct {
	secret     []byte
	ttl        time.Duration
	refreshTTL time.Duration
	rdb        *redis.Client
	now        func() time.Time
}

// NewTokenProvider returns a provider signing with secret. rdb may be nil, in
// which case logout cannot revoke outstanding tokens and refresh is refused.
func NewTokenProvider(secret string, ttl, refreshTTL time.Duration, rdb *redis.Client) *TokenProvider {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenProvider{secret: []byte(secret), ttl: ttl, refreshTTL: refreshTTL, rdb: rdb, now: time.Now}
}

func blacklistKey(jti string) string {
	return "blacklist:" + jti
}

// Issue signs an access token for user.
func (p *TokenProvider) Issue(_ *fiber.Ctx, user *models.User) (string, error) {
	return p.sign(user.ID, tokenTypeAccess)
}

// IssuePair signs an access token and a refresh token for user.
func (p *TokenProvider) IssuePair(_ context.Context, user *models.User) (TokenPair, error) {
	access, err := p.sign(user.ID, tokenTypeAccess)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := p.sign(user.ID, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (p *TokenProvider) sign(userID uint, typ string) (string, error) {
	if len(p.secret) == 0 {
		return "", fmt.Errorf("JWT secret not configured")
	}

	audience, ttl := TokenAudience, p.ttl
	if typ == tokenTypeRefresh {
		audience, ttl = RefreshAudience, p.refreshTTL
	}

	now := p.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Issuer:    TokenIssuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Type: typ,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// verify checks signature, issuer, audience, type and revocation of raw and
// returns the identity it names.
func (p *TokenProvider) verify(ctx context.Context, raw, typ string) (Identity, error) {
	audience := TokenAudience
	if typ == tokenTypeRefresh {
		audience = RefreshAudience
	}

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !token.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, models.NewUnauthorizedError("Token has expired")
		}
		return Identity{}, models.NewUnauthorizedError("Invalid or expired token")
	}
	if claims.Type != typ {
		return Identity{}, models.NewUnauthorizedError("Invalid token type")
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return Identity{}, models.NewUnauthorizedError("Invalid subject claim")
	}

	if claims.ID != "" && p.rdb != nil {
		revoked, err := p.rdb.Exists(ctx, blacklistKey(claims.ID)).Result()
		if err == nil && revoked > 0 {
			return Identity{}, models.NewUnauthorizedError("Token has been revoked")
		}
	}

	return Identity{
		UserID:    uint(userID),
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Resolve verifies the bearer access token of c.
func (p *TokenProvider) Resolve(c *fiber.Ctx) (Identity, error) {
	raw := bearerToken(c.Get(fiber.HeaderAuthorization))
	if raw == "" {
		return Identity{}, ErrNoCredentials
	}
	return p.verify(c.UserContext(), raw, tokenTypeAccess)
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked in the same step, so each refresh token is accepted at most once.
func (p *TokenProvider) Refresh(ctx context.Context, refreshToken string, lookup UserLookup) (TokenPair, error) {
	raw := refreshValue(refreshToken)
	if raw == "" {
		return TokenPair{}, models.NewUnauthorizedError("Refresh token required")
	}
	if p.rdb == nil {
		return TokenPair{}, models.NewUnauthorizedError("Token refresh is unavailable")
	}

	id, err := p.verify(ctx, raw, tokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if id.TokenID == "" {
		return TokenPair{}, models.NewUnauthorizedError("Invalid or expired token")
	}

	// SETNX settles concurrent presentations of the same token: one rotates,
	// the others see the key and are rejected.
	ttl := max(id.ExpiresAt.Sub(p.now()), time.Second)
	claimed, err := p.rdb.SetNX(ctx, blacklistKey(id.TokenID), "1", ttl).Result()
	if err != nil {
		return TokenPair{}, models.NewInternalError(err)
	}
	if !claimed {
		return TokenPair{}, models.NewUnauthorizedError("Token has been revoked")
	}

	user, err := lookup(ctx, id.UserID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return TokenPair{}, accountGone()
		}
		return TokenPair{}, err
	}
	return p.IssuePair(ctx, user)
}

// RevokeRefresh blacklists a refresh token for the rest of its lifetime.
// Invalid or expired tokens are already unusable and are ignored.
func (p *TokenProvider) RevokeRefresh(ctx context.Context, refreshToken string) error {
	raw := refreshValue(refreshToken)
	if raw == "" {
		return nil
	}
	id, err := p.verify(ctx, raw, tokenTypeRefresh)
	if err != nil {
		return nil
	}
	return p.blacklist(ctx, id)
}

// Revoke blacklists id's token for the rest of its lifetime.
func (p *TokenProvider) Revoke(c *fiber.Ctx, id Identity) error {
	return p.blacklist(c.UserContext(), id)
}

func (p *TokenProvider) blacklist(ctx context.Context, id Identity) error {
	if id.TokenID == "" {
		return nil
	}
	if p.rdb == nil {
		middleware.Logger.WarnContext(ctx, "token revocation skipped: redis unavailable")
		return nil
	}

	ttl := id.ExpiresAt.Sub(p.now())
	if ttl <= 0 {
		return nil
	}
	if err := p.rdb.Set(ctx, blacklistKey(id.TokenID), "1", ttl).Err(); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// refreshValue accepts the refresh header with or without a Bearer prefix.
func refreshValue(header string) string {
	if token := bearerToken(header); token != "" {
		return token
	}
	return strings.TrimSpace(header)
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
