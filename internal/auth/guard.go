package auth

import (
	"fmt"

	"inkwell/internal/models"
)

// RequireOwner allows id to act on a resource owned by ownerID. Callers load
// the resource first so that a missing resource reports NotFound, not Forbidden.
func RequireOwner(id Identity, ownerID uint) error {
	if id.UserID == 0 {
		return models.NewUnauthorizedError("Authorization required")
	}
	if id.UserID != ownerID {
		return models.NewForbiddenError("You do not have permission to modify this resource")
	}
	return nil
}

// RequireOwnerOf is RequireOwner with the resource named in the error.
func RequireOwnerOf(id Identity, resource string, ownerID uint) error {
	err := RequireOwner(id, ownerID)
	if models.IsCode(err, models.CodeForbidden) {
		return models.NewForbiddenError(fmt.Sprintf("You can only modify your own %s", resource))
	}
	return err
}
