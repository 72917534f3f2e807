package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/apperr"
	"exceptiontracker/src/auth"
	"exceptiontracker/src/model"
	"exceptiontracker/src/query"
	"exceptiontracker/src/utils"
)

func init() {
	// Averages are rendered as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type envelope struct {
	Success    bool              `json:"success"`
	Data       interface{}       `json:"data,omitempty"`
	Error      *errorBody        `json:"error,omitempty"`
	Pagination *query.Pagination `json:"pagination,omitempty"`
}

type errorBody struct {
	Kind    string                 `json:"kind"`
	Message string                 `json:"message"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status code. Internal details never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	body := &errorBody{Kind: kind.String(), Message: "Internal Server Error"}

	var appErr *apperr.Error
	if kind != apperr.KindInternal && errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Fields = appErr.Fields
	}

	entry := logger.WithFields(map[string]interface{}{
		"request_id": auth.GetRequestID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
		"kind":       kind.String(),
	}).WithError(err)
	if kind == apperr.KindInternal {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}

	writeJSON(w, statusFor(kind), envelope{Success: false, Error: body})
}

func principal(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, ok := auth.GetPrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return p, ok
}

func decode(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperr.Validation("invalid payload").With("reason", err.Error())
	}
	return nil
}

func idParam(r *http.Request, name string) (uint, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid %s", name).With(name, raw)
	}
	return uint(id), nil
}

func uintQuery(r *http.Request, name string) (*uint, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, apperr.Validation("invalid %s", name).With(name, raw)
	}
	u := uint(v)
	return &u, nil
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, apperr.Validation("invalid %s", name).With(name, raw)
	}
	return v, nil
}

func boolQuery(r *http.Request, name string) (*bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperr.Validation("invalid %s", name).With(name, raw)
	}
	return &v, nil
}

// timeQuery accepts RFC3339 or a plain date. A plain date used as an upper
// bound covers the whole day.
func timeQuery(r *http.Request, name string, upper bool) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.Validation("invalid %s", name).With(name, raw)
	}
	if upper {
		t = utils.EndOfDay(t)
	}
	return &t, nil
}

func statusQuery(r *http.Request) *model.ExceptionStatus {
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := model.ExceptionStatus(raw)
		return &s
	}
	return nil
}

func severityQuery(r *http.Request) *model.Severity {
	if raw := r.URL.Query().Get("severity"); raw != "" {
		s := model.Severity(raw)
		return &s
	}
	return nil
}
