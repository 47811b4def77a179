package coordinator

import (
	"github.com/pkg/errors"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// UpdateFailedError is returned by a refresh cycle that could not publish.
// The previous snapshot stays in place.
type UpdateFailedError struct {
	Err error
}

func (e *UpdateFailedError) Error() string {
	return "update failed: " + e.Err.Error()
}

func (e *UpdateFailedError) Unwrap() error {
	return e.Err
}

// IsAuthFailure reports whether a refresh failed because the credentials
// were rejected, in which case the user has to be asked for new ones
func IsAuthFailure(err error) bool {
	return ufanetapi.IsAuthentication(err)
}

// IsUpdateFailed reports whether err came out of a failed refresh cycle
func IsUpdateFailed(err error) bool {
	var ue *UpdateFailedError
	return errors.As(err, &ue)
}
