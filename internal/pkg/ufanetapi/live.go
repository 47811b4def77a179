package ufanetapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/version"
)

// Live talks to the vendor over a single resty client.  Copies made by the
// With* methods share the client and therefore its connection pool.
type Live struct {
	baseURL string
	http    *resty.Client
	timeout time.Duration
}

func NewLiveClient(baseURL string) *Live {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	r := resty.New()
	r.SetBaseURL(baseURL)
	r.SetHeader("Accept", "application/json")
	r.SetHeader("User-Agent", version.UserAgent())

	return &Live{
		baseURL: baseURL,
		http:    r,
	}
}

func (c *Live) WithTimeout(d time.Duration) Ufanet {
	nc := *c
	nc.timeout = d
	return &nc
}

func (c *Live) MakeContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}

	var ctx = parent
	var cancel context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, c.timeout)
	}

	return ctx, cancel
}

// Close drops the idle connections of the shared pool
func (c *Live) Close() {
	c.http.GetClient().CloseIdleConnections()
}

type loginRequest struct {
	Contract string `json:"contract"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token *struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	} `json:"token"`
}

func (c *Live) Login(ctx context.Context, creds Credentials) (*oauth2.Token, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	logging.Logger(ctx).Debugf("logging in to %s as contract %s", c.baseURL, creds.Contract)

	lr := &loginResponse{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(loginRequest{Contract: creds.Contract, Password: creds.Password}).
		SetResult(lr).
		ForceContentType("application/json").
		Post(AuthEndpoint)
	if err != nil {
		if undecodable(ctx, resp) {
			return nil, &AuthenticationError{Reason: "malformed login response", Err: err}
		}
		return nil, &CommunicationError{Op: "login", Err: err}
	}

	if resp.StatusCode() != http.StatusOK {
		return nil, &AuthenticationError{Reason: fmt.Sprintf("login rejected with HTTP %d", resp.StatusCode())}
	}

	if lr.Token == nil || lr.Token.Access == "" {
		return nil, &AuthenticationError{Reason: "access token not received"}
	}

	return &oauth2.Token{
		AccessToken:  lr.Token.Access,
		RefreshToken: lr.Token.Refresh,
		TokenType:    TokenType,
	}, nil
}

func (c *Live) get(ctx context.Context, op string, path string, headers http.Header) (*resty.Response, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaderMultiValues(headers).
		Get(path)
	if err != nil {
		return nil, &CommunicationError{Op: op, Err: err}
	}

	return resp, nil
}

// getJSON decodes a 2xx answer into dst.  The vendor does not always label
// its JSON, so the content type is forced.
func (c *Live) getJSON(ctx context.Context, op string, path string, headers http.Header, dst interface{}) error {
	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaderMultiValues(headers).
		SetResult(dst).
		ForceContentType("application/json").
		Get(path)
	if err != nil {
		if undecodable(ctx, resp) {
			return errors.Wrapf(err, "%s: decoding response", op)
		}
		return &CommunicationError{Op: op, Err: err}
	}

	if !resp.IsSuccess() {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 256)}
	}

	return nil
}

// undecodable reports whether a request error came from decoding a body
// that did arrive, rather than from the transport
func undecodable(ctx context.Context, resp *resty.Response) bool {
	return resp != nil && resp.RawResponse != nil && ctx.Err() == nil
}

func (c *Live) Devices(ctx context.Context, headers http.Header) ([]IntercomDevice, error) {
	var items []IntercomDevice
	if err := c.getJSON(ctx, "listing intercom devices", DevicesEndpoint, headers, &items); err != nil {
		return nil, err
	}

	return items, nil
}

func (c *Live) Cameras(ctx context.Context, headers http.Header) ([]Camera, error) {
	var items []Camera
	if err := c.getJSON(ctx, "listing cameras", CamerasEndpoint, headers, &items); err != nil {
		return nil, err
	}

	return items, nil
}

func (c *Live) Contracts(ctx context.Context, headers http.Header) ([]Contract, error) {
	var items []Contract
	if err := c.getJSON(ctx, "listing contracts", ContractsEndpoint, headers, &items); err != nil {
		return nil, err
	}

	return items, nil
}

// OpenDoor succeeds only on HTTP 200
func (c *Live) OpenDoor(ctx context.Context, headers http.Header, deviceID Identifier) error {
	if deviceID == "" {
		return errors.New("opening door: empty device id")
	}

	ctx, cancel := c.MakeContext(ctx)
	defer cancel()

	op := "opening door " + deviceID.String()
	resp, err := c.get(ctx, op, fmt.Sprintf(OpenDoorEndpoint, url.PathEscape(deviceID.String())), headers)
	if err != nil {
		return err
	}

	if resp.StatusCode() != http.StatusOK {
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode(), Body: truncate(resp.String(), 256)}
	}

	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
