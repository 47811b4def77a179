package ufanetapi

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://dom.ufanet.ru/"

	AuthEndpoint      = "api/v1/auth/auth_by_contract/"
	DevicesEndpoint   = "api/v0/skud/shared/"
	OpenDoorEndpoint  = "api/v0/skud/shared/%s/open/"
	CamerasEndpoint   = "api/v1/cctv"
	ContractsEndpoint = "api/v0/contract/"

	// Scheme the vendor expects in the Authorization header
	TokenType = "JWT"
)

// Credentials identify the subscriber: contract number and its password
type Credentials struct {
	Contract string
	Password string
}

func (c Credentials) Validate() error {
	if c.Contract == "" || c.Password == "" {
		return &AuthenticationError{Reason: "contract number and password are required"}
	}
	return nil
}

func hashOf(s string) string {
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// obfuscate the password when stringified
func (c Credentials) String() string {
	return fmt.Sprintf("Contract [%s], Password [%s]", c.Contract, hashOf(c.Password))
}

// Authenticator exchanges credentials for an access/refresh token pair
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (*oauth2.Token, error)
}

// Ufanet is the set of vendor calls the bridge makes.  Authenticated calls
// take the header set produced by the session manager.
type Ufanet interface {
	Authenticator
	WithTimeout(d time.Duration) Ufanet
	Devices(ctx context.Context, headers http.Header) ([]IntercomDevice, error)
	Cameras(ctx context.Context, headers http.Header) ([]Camera, error)
	Contracts(ctx context.Context, headers http.Header) ([]Contract, error)
	OpenDoor(ctx context.Context, headers http.Header, deviceID Identifier) error
	Close()
}
