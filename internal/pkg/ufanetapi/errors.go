package ufanetapi

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// AuthenticationError means the vendor refused the credentials, or accepted
// them without handing out an access token.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %s", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// CommunicationError is a transport level failure: connection refused,
// DNS, timeout..
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s: communication error: %s", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// UpstreamError is an unexpected HTTP status from a resource endpoint
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: HTTP %d (%s): %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

// IsAuthentication reports whether err carries an AuthenticationError
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// IsCommunication reports whether err carries a CommunicationError
func IsCommunication(err error) bool {
	var ce *CommunicationError
	return errors.As(err, &ce)
}

// IsUnauthorized reports whether the vendor rejected the token we sent
func IsUnauthorized(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.StatusCode == http.StatusUnauthorized || ue.StatusCode == http.StatusForbidden
}

// StatusCode returns the HTTP status carried by err, or 0
func StatusCode(err error) int {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.StatusCode
	}
	return 0
}
