package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-openapi/runtime/middleware/header"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// 100kb max body
const maxBodySize = 100 * 1024

type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class,omitempty"`
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			return fmt.Errorf("expected JSON request, got %s", value)
		}
	}

	reader := http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must only contain a single JSON object")
	}

	return nil
}

func sendJSONResponse(w http.ResponseWriter, r *http.Request, status int, d interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if err := enc.Encode(d); err != nil {
		logging.Logger(r.Context()).WithError(err).Error("sending json response")
	}
}

func sendError(w http.ResponseWriter, r *http.Request, status int, err error) {
	sendJSONResponse(w, r, status, errorResponse{
		Error: err.Error(),
		Class: errorClass(err),
	})
}

// errorClass names the failure for the host, which prompts for credentials
// on "authentication"
func errorClass(err error) string {
	switch {
	case coordinator.IsAuthFailure(err):
		return "authentication"
	case ufanetapi.IsCommunication(err):
		return "communication"
	case ufanetapi.StatusCode(err) != 0:
		return "upstream"
	}

	return ""
}
