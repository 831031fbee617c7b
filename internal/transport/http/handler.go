package httptransport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"slotgate/internal/backend"
	"slotgate/internal/call"
	"slotgate/internal/events"
	"slotgate/internal/platform/middleware"
	"slotgate/internal/registry"
	dErrors "slotgate/pkg/domain-errors"
)

// Service is the registry surface the HTTP layer delegates to.
type Service interface {
	Create(ctx context.Context, backendAddr, adminAddr call.Address) (registry.Instance, error)
	Call(ctx context.Context, id uuid.UUID, c call.Call) ([]byte, error)
	Describe(ctx context.Context, id uuid.UUID) (registry.Instance, error)
	Events(id uuid.UUID) ([]events.Event, error)
	Modules() []backend.Info
}

// Handler is the thin HTTP layer. It translates JSON to invocation tuples and
// back; routing and access-control semantics live in the proxy itself.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register wires the authenticated API routes onto r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/proxies", h.handleCreateProxy)
	r.Get("/v1/proxies/{id}", h.handleDescribeProxy)
	r.Post("/v1/proxies/{id}/calls", h.handleCall)
	r.Get("/v1/proxies/{id}/events", h.handleEvents)
	r.Get("/v1/modules", h.handleModules)
}

type createProxyRequest struct {
	Backend string `json:"backend"`
	Admin   string `json:"admin"`
}

type proxyResponse struct {
	ID      string `json:"id"`
	Backend string `json:"backend"`
	Admin   string `json:"admin"`
}

func (h *Handler) handleCreateProxy(w http.ResponseWriter, r *http.Request) {
	var req createProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidArgument, "invalid request body"))
		return
	}
	backendAddr, err := call.ParseAddress(req.Backend)
	if err != nil {
		writeError(w, err)
		return
	}
	adminAddr, err := call.ParseAddress(req.Admin)
	if err != nil {
		writeError(w, err)
		return
	}
	inst, err := h.service.Create(r.Context(), backendAddr, adminAddr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proxyResponse{
		ID:      inst.ID.String(),
		Backend: inst.Backend.Hex(),
		Admin:   inst.Admin.Hex(),
	})
}

func (h *Handler) handleDescribeProxy(w http.ResponseWriter, r *http.Request) {
	id, err := proxyID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	inst, err := h.service.Describe(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proxyResponse{
		ID:      inst.ID.String(),
		Backend: inst.Backend.Hex(),
		Admin:   inst.Admin.Hex(),
	})
}

// callRequest names an operation either by canonical signature ("method") or
// by explicit selector hex. Data is the 0x-prefixed argument payload; value
// is the optional transfer amount carried to the module.
type callRequest struct {
	Method   string `json:"method,omitempty"`
	Selector string `json:"selector,omitempty"`
	Data     string `json:"data,omitempty"`
	Value    uint64 `json:"value,omitempty"`
}

type callResponse struct {
	Data string `json:"data"`
}

func (h *Handler) handleCall(w http.ResponseWriter, r *http.Request) {
	id, err := proxyID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := middleware.GetCaller(r.Context())
	if caller.IsNull() {
		writeError(w, dErrors.New(dErrors.CodeUnauthorized, "no caller identity established"))
		return
	}

	var req callRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidArgument, "invalid request body"))
		return
	}
	c, err := buildCall(caller, req)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.service.Call(r.Context(), id, c)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, callResponse{Data: "0x" + hex.EncodeToString(result)})
}

func buildCall(caller call.Address, req callRequest) (call.Call, error) {
	var selector call.Selector
	switch {
	case req.Selector != "":
		var err error
		selector, err = call.ParseSelector(req.Selector)
		if err != nil {
			return call.Call{}, err
		}
	case req.Method != "":
		selector = call.SelectorFor(req.Method)
	default:
		return call.Call{}, dErrors.New(dErrors.CodeInvalidArgument, "method or selector is required")
	}

	var args []byte
	if req.Data != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(req.Data, "0x"))
		if err != nil {
			return call.Call{}, dErrors.Wrap(err, dErrors.CodeInvalidArgument, "malformed data payload")
		}
		args = raw
	}
	return call.Call{Caller: caller, Selector: selector, Args: args, Value: req.Value}, nil
}

type eventResponse struct {
	Timestamp string            `json:"timestamp"`
	Name      string            `json:"name"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, err := proxyID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := h.service.Events(id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]eventResponse, 0, len(history))
	for _, e := range history {
		out = append(out, eventResponse{
			Timestamp: e.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
			Name:      e.Name,
			Attrs:     e.Attrs,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

type moduleResponse struct {
	Address string `json:"address"`
	Version string `json:"version"`
}

func (h *Handler) handleModules(w http.ResponseWriter, _ *http.Request) {
	infos := h.service.Modules()
	out := make([]moduleResponse, 0, len(infos))
	for _, info := range infos {
		out = append(out, moduleResponse{Address: info.Address.Hex(), Version: info.Version})
	}
	writeJSON(w, http.StatusOK, map[string]any{"modules": out})
}

func proxyID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, "proxy id must be a uuid")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError centralizes domain error translation to HTTP responses so every
// handler produces the same JSON error envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(dErrors.ToHTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   string(code),
		"message": err.Error(),
	})
}
