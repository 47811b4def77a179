// Package ufanettest provides a fake Ufanet API for tests.
package ufanettest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

const (
	Contract = "1234567"
	Password = "secret"
)

var Credentials = ufanetapi.Credentials{Contract: Contract, Password: Password}

type response struct {
	status int
	body   string
	delay  time.Duration
}

// Server answers the vendor endpoints from canned responses.  Resource
// endpoints reject any Authorization header but "JWT <current token>".
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	token      string
	generation int
	responses  map[string]response
	hits       map[string]int
}

// NewServer starts a server with empty collections and a working login
func NewServer() *Server {
	s := &Server{
		token:      "access-1",
		generation: 1,
		responses: map[string]response{
			"/" + ufanetapi.DevicesEndpoint:   {status: http.StatusOK, body: "[]"},
			"/" + ufanetapi.CamerasEndpoint:   {status: http.StatusOK, body: "[]"},
			"/" + ufanetapi.ContractsEndpoint: {status: http.StatusOK, body: "[]"},
		},
		hits: make(map[string]int),
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// BaseURL returns the base URL to give to the client
func (s *Server) BaseURL() string {
	return s.Server.URL + "/"
}

// Respond sets the answer for path, which is relative to the base URL
func (s *Server) Respond(path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.responses["/"+path]
	r.status, r.body = status, body
	s.responses["/"+path] = r
}

// Delay makes path answer only after d
func (s *Server) Delay(path string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.responses["/"+path]
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.delay = d
	s.responses["/"+path] = r
}

// Expire rejects the current token; the next login hands out a new one
func (s *Server) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.token = fmt.Sprintf("access-%d", s.generation)
}

// Hits counts the requests made to path
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits["/"+path]
}

func (s *Server) Logins() int {
	return s.Hits(ufanetapi.AuthEndpoint)
}

func (s *Server) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	resp, canned := s.responses[r.URL.Path]
	token := s.token
	s.mu.Unlock()

	if resp.delay > 0 {
		select {
		case <-time.After(resp.delay):
		case <-r.Context().Done():
			return
		}
	}

	if r.URL.Path == "/"+ufanetapi.AuthEndpoint {
		if canned && resp.status != 0 {
			writeResponse(w, resp.status, resp.body)
			return
		}
		writeResponse(w, http.StatusOK, fmt.Sprintf(`{"token":{"access":%q,"refresh":"refresh-1"}}`, token))
		return
	}

	if r.Header.Get("Authorization") != ufanetapi.TokenType+" "+token {
		writeResponse(w, http.StatusUnauthorized, `{"detail":"invalid token"}`)
		return
	}

	if canned && resp.status != 0 {
		writeResponse(w, resp.status, resp.body)
		return
	}

	// open-door endpoints default to success
	if strings.HasSuffix(r.URL.Path, "/open/") {
		writeResponse(w, http.StatusOK, `{"result":true}`)
		return
	}

	http.NotFound(w, r)
}

func writeResponse(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprint(w, body)
}
