package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/earthframe/earthframe/pkg/api/schema"
	"github.com/earthframe/earthframe/pkg/api/store"
	"github.com/earthframe/earthframe/pkg/naming"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Error categories returned in the "error" field of error bodies.
const (
	categoryValidation       = "validation_error"
	categoryBadRequest       = "bad_request"
	categoryNotFound         = "not_found"
	categoryDuplicate        = "duplicate"
	categoryConflict         = "conflict"
	categoryInvalidReference = "invalid_reference"
	categorySummarization    = "summarization_failed"
	categoryNotConfigured    = "not_configured"
	categoryUnauthorized     = "unauthorized"
	categoryForbidden        = "forbidden"
	categoryRateLimited      = "rate_limited"
	categoryTooLarge         = "request_too_large"
	categoryInternal         = "internal_error"
)

// errorResponse is the standard error payload.
type errorResponse struct {
	Error  string              `json:"error"`
	Detail string              `json:"detail"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

// writeJSON encodes v as JSON with camelCase keys and writes it to w.
// Keys under the extra map are written as stored.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := camelJSON(v)
	if err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_, _ = w.Write(body)
}

func camelJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	out, err := json.Marshal(naming.CamelizeKeys(generic, schema.ExtraKey))
	if err != nil {
		return nil, err
	}

	return append(out, '\n'), nil
}

func writeError(w http.ResponseWriter, status int, category, detail string) {
	writeJSON(w, status, errorResponse{Error: category, Detail: detail})
}

// writeRequestError reports a body that could not be decoded or validated.
func (s *server) writeRequestError(w http.ResponseWriter, err error) {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:  categoryValidation,
			Detail: verr.Error(),
			Fields: verr.Fields,
		})

		return
	}

	s.writeInternalError(w, err)
}

// writeReferenceError reports a write pointing at a missing row.
func writeReferenceError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: categoryInvalidReference, Detail: err.Error()}

	var refErr *store.ReferenceError
	if errors.As(err, &refErr) {
		resp.Fields = []schema.FieldError{{
			Field:   naming.ToCamel(refErr.Field),
			Message: fmt.Sprintf("%q does not exist", refErr.Value),
		}}
	}

	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func (s *server) writeInternalError(w http.ResponseWriter, err error) {
	s.log.WithError(err).Error("Request failed")

	writeError(w, http.StatusInternalServerError, categoryInternal,
		"internal server error")
}

// readBody reads the whole request body, reporting oversized bodies.
func (s *server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, categoryTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))

			return nil, false
		}

		writeError(w, http.StatusBadRequest, categoryBadRequest,
			"reading request body failed")

		return nil, false
	}

	return body, true
}

// pathID parses a UUID route parameter.
func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	raw := chi.URLParam(r, param)

	id, err := uuid.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, categoryBadRequest,
			fmt.Sprintf("invalid %s %q: must be a UUID", naming.ToCamel(param), raw))

		return uuid.Nil, false
	}

	return id, true
}

// handleHealth reports liveness and database reachability.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.WithError(err).Warn("Health check failed")

		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
		})

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Lookup handlers ---

// handleListStatuses returns the status vocabulary.
func (s *server) handleListStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.store.ListStatuses(r.Context())
	if err != nil {
		s.writeInternalError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, schema.NewStatuses(statuses))
}

// handleListVariables returns every known variable.
func (s *server) handleListVariables(w http.ResponseWriter, r *http.Request) {
	variables, err := s.store.ListVariables(r.Context())
	if err != nil {
		s.writeInternalError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, schema.NewVariables(variables))
}
