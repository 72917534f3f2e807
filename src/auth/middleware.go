package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/model"
)

// Identity headers set by the gateway in front of this service once the
// caller has been authenticated.
const (
	HeaderUserID     = "X-User-ID"
	HeaderUserRole   = "X-User-Role"
	HeaderVerticalID = "X-Vertical-ID"
	HeaderRequestID  = "X-Request-ID"
)

// RequestID tags every request with an id, reusing the caller's one if present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromHeaders resolves the identity headers into a Principal.
// Requests without a valid identity are rejected with 401.
func PrincipalFromHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := parsePrincipal(r.Header)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"request_id": GetRequestID(r.Context()),
				"path":       r.URL.Path,
				"reason":     err.Error(),
			}).Warn("Rejected request without a valid principal")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func parsePrincipal(h http.Header) (model.Principal, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(h.Get(HeaderUserID)), 10, 64)
	if err != nil || id == 0 {
		return model.Principal{}, fmt.Errorf("missing or invalid %s", HeaderUserID)
	}
	role, ok := model.ParseRole(h.Get(HeaderUserRole))
	if !ok {
		return model.Principal{}, fmt.Errorf("missing or invalid %s", HeaderUserRole)
	}

	p := model.Principal{ID: uint(id), Role: role}
	if raw := strings.TrimSpace(h.Get(HeaderVerticalID)); raw != "" {
		vertical, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return model.Principal{}, fmt.Errorf("invalid %s: %w", HeaderVerticalID, err)
		}
		p.VerticalID = uint(vertical)
	}
	if p.VerticalID == 0 && !role.IsGlobal() {
		return model.Principal{}, fmt.Errorf("%s is required for role %s", HeaderVerticalID, role)
	}
	return p, nil
}
