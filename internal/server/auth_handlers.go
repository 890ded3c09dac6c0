package server

import (
	"inkwell/internal/auth"
	"inkwell/internal/models"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

type authResponse struct {
	Token        string       `json:"token,omitempty"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         *models.User `json:"user,omitempty"`
}

// issueCredentials signs user in. Token providers that support renewal also
// return a refresh token.
func (s *Server) issueCredentials(c *fiber.Ctx, user *models.User) (authResponse, error) {
	if r, ok := s.auth.(auth.Refresher); ok {
		pair, err := r.IssuePair(c.UserContext(), user)
		if err != nil {
			return authResponse{}, models.NewInternalError(err)
		}
		return authResponse{Token: pair.AccessToken, RefreshToken: pair.RefreshToken, User: user}, nil
	}

	token, err := s.auth.Issue(c, user)
	if err != nil {
		return authResponse{}, models.NewInternalError(err)
	}
	return authResponse{Token: token, User: user}, nil
}

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new account and sign it in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string,nickname=string,profile_image=string} true "Signup request"
// @Success 201 {object} object{token=string,refresh_token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		Nickname     string `json:"nickname"`
		ProfileImage string `json:"profile_image"`
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	user, err := s.userService.Signup(c.UserContext(), service.SignupInput{
		Email:        req.Email,
		Password:     req.Password,
		Nickname:     req.Nickname,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		return err
	}

	resp, err := s.issueCredentials(c, user)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate and return a token or set a session cookie
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} object{token=string,refresh_token=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	user, err := s.userService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	resp, err := s.issueCredentials(c, user)
	if err != nil {
		return err
	}

	return c.JSON(resp)
}

// Refresh handles POST /api/auth/refresh
// @Summary Refresh tokens
// @Description Exchange a refresh token for a new token pair. The presented refresh token is revoked.
// @Tags auth
// @Produce json
// @Param X-Refresh-Token header string true "Refresh token"
// @Success 200 {object} object{token=string,refresh_token=string}
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/refresh [post]
func (s *Server) Refresh(c *fiber.Ctx) error {
	r, ok := s.auth.(auth.Refresher)
	if !ok {
		return models.NewValidationError("Token refresh is not available in session mode")
	}

	pair, err := r.Refresh(c.UserContext(), c.Get(auth.HeaderRefreshToken), s.userService.GetUser)
	if err != nil {
		return err
	}
	return c.JSON(authResponse{Token: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revokes the access token and, when sent, the refresh token
// @Tags auth
// @Security BearerAuth
// @Param X-Refresh-Token header string false "Refresh token to revoke"
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	id, ok := auth.FromCtx(c)
	if !ok {
		return models.NewUnauthorizedError("Authorization required")
	}
	if err := s.auth.Revoke(c, id); err != nil {
		return models.NewInternalError(err)
	}
	if r, ok := s.auth.(auth.Refresher); ok {
		if err := r.RevokeRefresh(c.UserContext(), c.Get(auth.HeaderRefreshToken)); err != nil {
			return err
		}
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Session handles GET /api/auth/session
// @Summary Current session
// @Description Returns the signed-in user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /auth/session [get]
func (s *Server) Session(c *fiber.Ctx) error {
	user, err := s.userService.GetUser(c.UserContext(), actor(c).UserID)
	if err != nil {
		if models.IsCode(err, models.CodeNotFound) {
			// The account was deleted while the credentials were still live.
			return models.NewUnauthorizedError("Session is no longer valid")
		}
		return err
	}
	return c.JSON(user)
}

// CheckEmail handles POST /api/auth/check-email
// @Summary Email availability
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string} true "Email to check"
// @Success 200 {object} object{available=bool}
// @Failure 400 {object} models.ErrorResponse
// @Router /auth/check-email [post]
func (s *Server) CheckEmail(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	available, err := s.userService.EmailAvailable(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"available": available})
}
