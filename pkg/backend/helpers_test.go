package backend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAnonKey = "anon-key"

// stubService is a fake remote service recording all calls
type stubService struct {
	*httptest.Server
	router *mux.Router

	mu    sync.Mutex
	calls []*http.Request
	auths []string // Authorization header of each call
}

func newStubService(t *testing.T) *stubService {
	t.Helper()
	s := &stubService{router: mux.NewRouter()}
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.mu.Lock()
			s.calls = append(s.calls, r.Clone(r.Context()))
			s.auths = append(s.auths, r.Header.Get("Authorization"))
			s.mu.Unlock()
			next.ServeHTTP(w, r)
		})
	})
	s.Server = httptest.NewServer(s.router)
	t.Cleanup(s.Close)
	return s
}

// called returns "METHOD path" of recorded calls
func (s *stubService) called() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := make([]string, 0, len(s.calls))
	for _, r := range s.calls {
		res = append(res, r.Method+" "+r.URL.Path)
	}
	return res
}

func (s *stubService) lastAuth() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.auths) == 0 {
		return ""
	}
	return s.auths[len(s.auths)-1]
}

func (s *stubService) client(t *testing.T) *Live {
	t.Helper()
	l, err := NewLive(Config{URL: s.URL, AnonKey: testAnonKey, AutoRefresh: true})
	require.NoError(t, err)
	return l
}

// handleAuth registers password sign-in, refresh and user endpoints for a single test user
func (s *stubService) handleAuth(t *testing.T, user User, claims jwt.MapClaims) {
	t.Helper()
	s.router.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		switch r.URL.Query().Get("grant_type") {
		case "password":
			if req["email"] != user.Email || req["password"] != "secret" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant",
					"error_description": "Invalid login credentials"})
				return
			}
			writeJSON(w, http.StatusOK, sessionBody(t, user, "refresh-1", claims))
		case "refresh_token":
			if req["refresh_token"] == "" {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error_code": "refresh_token_not_found"})
				return
			}
			writeJSON(w, http.StatusOK, sessionBody(t, user, req["refresh_token"]+"-next", claims))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}).Methods(http.MethodPost)

	s.router.HandleFunc("/auth/v1/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer "+testAnonKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"code": 401, "msg": "invalid JWT"})
			return
		}
		writeJSON(w, http.StatusOK, user)
	}).Methods(http.MethodGet)
}

func sessionBody(t *testing.T, user User, refreshToken string, claims jwt.MapClaims) map[string]any {
	t.Helper()
	return map[string]any{
		"access_token":  makeToken(t, time.Now().Add(time.Hour), claims),
		"token_type":    "bearer",
		"expires_in":    3600,
		"refresh_token": refreshToken,
		"user":          user,
	}
}

func makeToken(t *testing.T, exp time.Time, claims jwt.MapClaims) string {
	t.Helper()
	c := jwt.MapClaims{"exp": exp.Unix(), "sub": "user-1", "role": "authenticated"}
	for k, v := range claims {
		c[k] = v
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("test-jwt-secret"))
	require.NoError(t, err)
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// roundTripFunc lets tests intercept http calls
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
