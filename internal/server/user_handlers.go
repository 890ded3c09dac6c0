package server

import (
	"inkwell/internal/auth"
	"inkwell/internal/middleware"
	"inkwell/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetUsers handles GET /api/users
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {array} models.User
// @Router /users [get]
func (s *Server) GetUsers(c *fiber.Ctx) error {
	page := parseOffsetPage(c)
	users, err := s.userService.ListUsers(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return err
	}
	return c.JSON(users)
}

// GetMyProfile handles GET /api/users/me
// @Summary Current user's profile
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /users/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.userService.GetUser(c.UserContext(), actor(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// UpdateMyProfile handles PUT /api/users/me
// @Summary Update profile
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{nickname=string,profile_image=string} true "Profile fields"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /users/me [put]
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req struct {
		Nickname     *string `json:"nickname"`
		ProfileImage *string `json:"profile_image"`
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		Actor:        actor(c),
		Nickname:     req.Nickname,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		return err
	}
	return c.JSON(user)
}

// DeleteMyAccount handles DELETE /api/users/me
// @Summary Delete account
// @Description Deletes the account with its posts, comments, likes and views
// @Tags users
// @Security BearerAuth
// @Success 204
// @Router /users/me [delete]
func (s *Server) DeleteMyAccount(c *fiber.Ctx) error {
	id, _ := auth.FromCtx(c)
	if err := s.userService.DeleteAccount(c.UserContext(), id); err != nil {
		return err
	}
	if err := s.auth.Revoke(c, id); err != nil {
		middleware.Logger.WarnContext(c.UserContext(), "failed to revoke credentials of deleted account",
			"user_id", id.UserID, "error", err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ResetPassword handles PUT /api/users/reset-password
// @Summary Change password
// @Tags users
// @Accept json
// @Security BearerAuth
// @Param request body object{password=string} true "New password"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Router /users/reset-password [put]
func (s *Server) ResetPassword(c *fiber.Ctx) error {
	var req struct {
		Password string `json:"password"`
	}
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	if err := s.userService.ResetPassword(c.UserContext(), actor(c), req.Password); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
