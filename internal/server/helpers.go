package server

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"inkwell/internal/auth"
	"inkwell/internal/models"
	"inkwell/internal/pagination"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper.  Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// Offset pagination for the user directory.
type offsetPage struct {
	Limit  int
	Offset int
}

func parseOffsetPage(c *fiber.Ctx) offsetPage {
	return offsetPage{
		Limit:  c.QueryInt("limit", 0),
		Offset: c.QueryInt("offset", 0),
	}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+humanizeParam(param)), false)
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "postId" -> "post ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

// splitCamel splits a camelCase string into words.
func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}

// parsePageRequest reads cursor, cursor_id, limit and order. lastCreatedAt
// is accepted as an older name for cursor.
func parsePageRequest(c *fiber.Ctx, defaultLimit int, defaultDirection pagination.Direction) (pagination.Request, error) {
	rawCursor := c.Query("cursor")
	if rawCursor == "" {
		rawCursor = c.Query("lastCreatedAt")
	}

	cursor, err := pagination.ParseCursor(rawCursor, c.Query("cursor_id"))
	if err != nil {
		return pagination.Request{}, models.NewValidationError(err.Error())
	}

	return pagination.Request{
		Limit:     pagination.ParseLimit(c.Query("limit"), defaultLimit),
		Cursor:    cursor,
		Direction: pagination.ParseDirection(c.Query("order"), defaultDirection),
	}, nil
}

// actor returns the request's identity, or the zero identity for anonymous
// requests.
func actor(c *fiber.Ctx) auth.Identity {
	id, _ := auth.FromCtx(c)
	return id
}

// viewerKey identifies a reader for view counting.
func viewerKey(c *fiber.Ctx) string {
	if id, ok := auth.FromCtx(c); ok {
		return fmt.Sprintf("user:%d", id.UserID)
	}
	return "ip:" + c.IP()
}

// bindJSON parses the request body into dst.
func bindJSON(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return models.NewValidationError("Invalid request body")
	}
	return nil
}
