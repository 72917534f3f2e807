package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exceptiontracker/src/model"
)

func TestPrincipalFromHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		wantCode int
		want     model.Principal
	}{
		{
			name:     "vertical lead",
			headers:  map[string]string{HeaderUserID: "10", HeaderUserRole: "vertical_lead", HeaderVerticalID: "5"},
			wantCode: http.StatusOK,
			want:     model.Principal{ID: 10, Role: model.RoleVerticalLead, VerticalID: 5},
		},
		{
			name:     "global admin without vertical",
			headers:  map[string]string{HeaderUserID: "1", HeaderUserRole: "global_admin"},
			wantCode: http.StatusOK,
			want:     model.Principal{ID: 1, Role: model.RoleGlobalAdmin},
		},
		{
			name:     "missing user",
			headers:  map[string]string{HeaderUserRole: "staff", HeaderVerticalID: "5"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "unknown role",
			headers:  map[string]string{HeaderUserID: "3", HeaderUserRole: "root", HeaderVerticalID: "5"},
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "staff without vertical",
			headers:  map[string]string{HeaderUserID: "3", HeaderUserRole: "staff"},
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got model.Principal
			h := PrincipalFromHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				p, ok := GetPrincipalFromContext(r.Context())
				require.True(t, ok)
				got = p
			}))

			req := httptest.NewRequest(http.MethodGet, "/exceptions", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantCode, rr.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "abc-123", seen)
}
