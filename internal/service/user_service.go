package service

import (
	"context"
	"errors"
	"strings"

	"inkwell/internal/auth"
	"inkwell/internal/cache"
	"inkwell/internal/models"
	"inkwell/internal/repository"
	"inkwell/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultUserListLimit = 20
	maxUserListLimit     = 100
)

type UserService struct {
	users    repository.UserRepository
	cache    *cache.Cache
	hashCost int
}

type SignupInput struct {
	Email        string
	Password     string
	Nickname     string
	ProfileImage string
}

// UpdateProfileInput patches a profile; nil fields are left unchanged.
type UpdateProfileInput struct {
	Actor        auth.Identity
	Nickname     *string
	ProfileImage *string
}

func NewUserService(users repository.UserRepository, c *cache.Cache) *UserService {
	return &UserService{users: users, cache: c, hashCost: bcrypt.DefaultCost}
}

func (s *UserService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	return string(h), nil
}

// Signup registers a user. Duplicate email or nickname is a Conflict.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	email := validation.NormalizeEmail(in.Email)
	nickname := strings.TrimSpace(in.Nickname)

	if email == "" || in.Password == "" || nickname == "" {
		return nil, models.NewValidationError("Email, password and nickname are required")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateNickname(nickname); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	hashed, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		Nickname:     nickname,
		Password:     hashed,
		ProfileImage: strings.TrimSpace(in.ProfileImage),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, models.NewValidationError("Email and password are required")
	}

	invalid := models.NewUnauthorizedError("Invalid email or password")
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); cmpErr != nil {
		if errors.Is(cmpErr, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, invalid
		}
		return nil, models.NewInternalError(cmpErr)
	}
	return user, nil
}

// EmailAvailable reports whether no account uses email.
func (s *UserService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	email = validation.NormalizeEmail(email)
	if err := validation.ValidateEmail(email); err != nil {
		return false, models.NewValidationError(err.Error())
	}
	exists, err := s.users.EmailExists(ctx, email)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	return cache.Aside(ctx, s.cache, cache.UserKey(id), cache.UserTTL, func() (*models.User, error) {
		return s.users.GetByID(ctx, id)
	})
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 {
		limit = defaultUserListLimit
	}
	limit = min(limit, maxUserListLimit)
	offset = max(offset, 0)
	return s.users.List(ctx, limit, offset)
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	if in.Actor.UserID == 0 {
		return nil, models.NewUnauthorizedError("Authorization required")
	}
	user, err := s.users.GetByID(ctx, in.Actor.UserID)
	if err != nil {
		return nil, err
	}

	if in.Nickname != nil {
		nickname := strings.TrimSpace(*in.Nickname)
		if err := validation.ValidateNickname(nickname); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Nickname = nickname
	}
	if in.ProfileImage != nil {
		user.ProfileImage = strings.TrimSpace(*in.ProfileImage)
	}

	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.UserKey(user.ID))
	// Cached posts embed the author's nickname and image.
	authored, err := s.users.AuthoredPostIDs(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	invalidatePosts(ctx, s.cache, authored...)
	return s.users.GetByID(ctx, user.ID)
}

func (s *UserService) ResetPassword(ctx context.Context, actor auth.Identity, password string) error {
	if actor.UserID == 0 {
		return models.NewUnauthorizedError("Authorization required")
	}
	if password == "" {
		return models.NewValidationError("Password is required")
	}
	if err := validation.ValidatePassword(password); err != nil {
		return models.NewValidationError(err.Error())
	}

	hashed, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.users.UpdatePassword(ctx, actor.UserID, hashed)
}

// DeleteAccount removes the actor and everything they own, then drops the
// cached copies of every post whose counters changed.
func (s *UserService) DeleteAccount(ctx context.Context, actor auth.Identity) error {
	if actor.UserID == 0 {
		return models.NewUnauthorizedError("Authorization required")
	}
	affected, err := s.users.Delete(ctx, actor.UserID)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.UserKey(actor.UserID))
	invalidatePosts(ctx, s.cache, affected...)
	return nil
}
