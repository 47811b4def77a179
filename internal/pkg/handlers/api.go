package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/jake-scott/ufanet-bridge/internal/pkg/coordinator"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/entities"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/history"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/logging"
	"github.com/jake-scott/ufanet-bridge/internal/pkg/ufanetapi"
)

// Refresher is the coordinator surface served over HTTP
type Refresher interface {
	Snapshot() *coordinator.Snapshot
	Status() coordinator.Status
	Refresh(ctx context.Context) error
}

// Entities is the entity surface served over HTTP
type Entities interface {
	States() []entities.State
	Get(uniqueID string) (entities.State, bool)
	Press(ctx context.Context, deviceID ufanetapi.Identifier) (bool, error)
	PressButton(ctx context.Context, uniqueID string) (bool, error)
}

// History returns recorded door openings
type History interface {
	Recent(ctx context.Context, domofonID string, limit int) ([]history.DoorOpening, error)
}

type snapshotResponse struct {
	Status   coordinator.Status    `json:"status"`
	Snapshot *coordinator.Snapshot `json:"snapshot"`
}

type pressRequest struct {
	UniqueID string `json:"unique_id"`
}

type pressResponse struct {
	Success bool `json:"success"`
}

type BridgeHandler struct {
	coord    Refresher
	entities Entities
	history  History
}

func NewBridgeHandler(coord Refresher, ents Entities) *BridgeHandler {
	return &BridgeHandler{
		coord:    coord,
		entities: ents,
	}
}

// WithHistory enables the door history endpoint
func (h *BridgeHandler) WithHistory(hist History) *BridgeHandler {
	h.history = hist
	return h
}

// Register adds the API routes to r
func (h *BridgeHandler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/snapshot", h.HandleSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/refresh", h.HandleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/entities", h.HandleEntities).Methods(http.MethodGet)
	api.HandleFunc("/entities/{unique_id}", h.HandleEntity).Methods(http.MethodGet)
	api.HandleFunc("/buttons/press", h.HandlePressButton).Methods(http.MethodPost)
	api.HandleFunc("/intercoms/{id}/open", h.HandleOpen).Methods(http.MethodPost)
	api.HandleFunc("/intercoms/{id}/history", h.HandleHistory).Methods(http.MethodGet)

	r.HandleFunc("/healthz", h.HandleHealth).Methods(http.MethodGet)
}

func (h *BridgeHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	resp := snapshotResponse{
		Status:   h.coord.Status(),
		Snapshot: h.coord.Snapshot(),
	}

	status := http.StatusOK
	if resp.Snapshot == nil {
		status = http.StatusServiceUnavailable
	}

	sendJSONResponse(w, r, status, resp)
}

func (h *BridgeHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.coord.Refresh(r.Context()); err != nil {
		logging.Logger(r.Context()).WithError(err).Error("on-demand refresh failed")
		sendError(w, r, http.StatusBadGateway, err)
		return
	}

	sendJSONResponse(w, r, http.StatusOK, h.coord.Status())
}

func (h *BridgeHandler) HandleEntities(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, r, http.StatusOK, h.entities.States())
}

func (h *BridgeHandler) HandleEntity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["unique_id"]

	st, ok := h.entities.Get(id)
	if !ok {
		sendError(w, r, http.StatusNotFound, errors.Errorf("no entity %s", id))
		return
	}

	sendJSONResponse(w, r, http.StatusOK, st)
}

func (h *BridgeHandler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	id := ufanetapi.Identifier(mux.Vars(r)["id"])

	ok, err := h.entities.Press(r.Context(), id)
	h.sendPressResult(w, r, ok, err)
}

func (h *BridgeHandler) HandlePressButton(w http.ResponseWriter, r *http.Request) {
	var req pressRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		logging.Logger(r.Context()).WithError(err).Errorf("decoding JSON")
		sendError(w, r, http.StatusBadRequest, errors.Wrap(err, "unable to parse JSON"))
		return
	}

	if req.UniqueID == "" {
		sendError(w, r, http.StatusBadRequest, errors.New("unique_id is required"))
		return
	}

	ok, err := h.entities.PressButton(r.Context(), req.UniqueID)
	h.sendPressResult(w, r, ok, err)
}

// a failed open is a normal outcome, only an unknown button is an error
func (h *BridgeHandler) sendPressResult(w http.ResponseWriter, r *http.Request, ok bool, err error) {
	if err != nil {
		if errors.Is(err, entities.ErrUnknownDevice) {
			sendError(w, r, http.StatusNotFound, err)
			return
		}
		sendError(w, r, http.StatusInternalServerError, err)
		return
	}

	sendJSONResponse(w, r, http.StatusOK, pressResponse{Success: ok})
}

func (h *BridgeHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		sendError(w, r, http.StatusNotFound, errors.New("door history is not enabled"))
		return
	}

	id := mux.Vars(r)["id"]

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n > history.MaxRecentLimit {
			sendError(w, r, http.StatusBadRequest,
				errors.Errorf("limit must be an integer between 0 and %d", history.MaxRecentLimit))
			return
		}
		limit = n
	}

	openings, err := h.history.Recent(r.Context(), id, limit)
	if err != nil {
		logging.Logger(r.Context()).WithError(err).Error("reading door history")
		sendError(w, r, http.StatusInternalServerError, err)
		return
	}

	sendJSONResponse(w, r, http.StatusOK, openings)
}

func (h *BridgeHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.coord.Status()

	status := http.StatusOK
	if st.Stale || st.RefreshedAt.IsZero() {
		status = http.StatusServiceUnavailable
	}

	sendJSONResponse(w, r, status, st)
}
