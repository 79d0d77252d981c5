package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"contractdesk.org/internal/authz"
	"contractdesk.org/internal/workflow"
)

type transitionRequest struct {
	Trigger string     `json:"trigger"`
	Comment string     `json:"comment"`
	DueAt   *time.Time `json:"due_at"`
}

type historyResponse struct {
	Items []workflow.Event `json:"items"`
	AsOf  time.Time        `json:"as_of"`
}

func (a *API) handleWorkflowResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/workflows/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	entityType, entityID := parts[0], parts[1]
	switch {
	case len(parts) == 2:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.describeWorkflow(w, r, entityType, entityID)
	case len(parts) == 3 && parts[2] == "transitions":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.applyTransition(w, r, entityType, entityID)
	case len(parts) == 3 && parts[2] == "events":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.workflowHistory(w, r, entityType, entityID)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) describeWorkflow(w http.ResponseWriter, r *http.Request, entityType, entityID string) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	desc, err := a.engine.Describe(r.Context(), act, entityType, entityID)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

func (a *API) applyTransition(w http.ResponseWriter, r *http.Request, entityType, entityID string) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	result, err := a.engine.Transition(r.Context(), act, workflow.TransitionRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Trigger:    req.Trigger,
		Comment:    req.Comment,
		DueAt:      req.DueAt,
	})
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) workflowHistory(w http.ResponseWriter, r *http.Request, entityType, entityID string) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}
	events, err := a.engine.History(r.Context(), act, entityType, entityID)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{
		Items: events,
		AsOf:  time.Now().UTC(),
	})
}

func handleWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated", "authentication required")
	case errors.Is(err, authz.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden", "permission denied")
	case errors.Is(err, workflow.ErrInvalidInput), errors.Is(err, authz.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, workflow.ErrGuardRejected):
		writeError(w, r, http.StatusConflict, "guard_rejected", err.Error())
	case errors.Is(err, workflow.ErrConflict):
		writeError(w, r, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, workflow.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	payload := map[string]any{
		"error": msg,
		"code":  code,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
}
