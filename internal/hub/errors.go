package hub

import (
	"errors"
	"fmt"

	"hearth/internal/auth"
	"hearth/internal/engine"
	"hearth/internal/repo"
)

// Error codes carried on error events. These go only to the connection that
// caused them; they are never broadcast and never fatal to the process.
const (
	CodeAuthentication = "authentication_error"
	CodeAuthorization  = "authorization_error"
	CodeNotInRoom      = "not_in_room"
	CodeValidation     = "validation_error"
	CodeNotFound       = "not_found"
	CodeStorage        = "storage_error"
)

// ErrNotInRoom rejects mutations issued before a room join.
var ErrNotInRoom = errors.New("join a household first")

// AuthorizationError rejects a join targeting a household other than the
// session's own.
type AuthorizationError struct {
	HouseholdID string
}

func (e AuthorizationError) Error() string {
	return fmt.Sprintf("not a member of household %s", e.HouseholdID)
}

func errorCode(err error) string {
	var authzErr AuthorizationError
	var valErr engine.ValidationError
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		return CodeAuthentication
	case errors.As(err, &authzErr):
		return CodeAuthorization
	case errors.Is(err, ErrNotInRoom):
		return CodeNotInRoom
	case errors.As(err, &valErr):
		return CodeValidation
	case errors.Is(err, repo.ErrNotFound):
		return CodeNotFound
	default:
		return CodeStorage
	}
}
