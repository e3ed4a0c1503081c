package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pribylovaa/emenu-auth/internal/models"
	"github.com/pribylovaa/emenu-auth/internal/service"
	"github.com/stretchr/testify/require"
)

// capHandler — тестовый slog.Handler: копит attrs из With(...) и из записи.
type capHandler struct {
	base    []slog.Attr
	lastMsg string
	attrs   map[string]any
	count   int
}

func (h *capHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capHandler) Handle(_ context.Context, r slog.Record) error {
	out := make(map[string]any, len(h.base)+8)
	for _, a := range h.base {
		out[a.Key] = a.Value.Any()
	}

	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value.Any()
		return true
	})

	h.count++
	h.lastMsg = r.Message
	h.attrs = out

	return nil
}

func (h *capHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.base = append(h.base, attrs...)
	return h
}

func (h *capHandler) WithGroup(string) slog.Handler { return h }

type errEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id,omitempty"`
	} `json:"error"`
}

// stubAuth — Authenticator с фиксированным ответом.
type stubAuth struct {
	id       *models.Identity
	err      error
	gotToken string
}

func (s *stubAuth) Authenticate(_ context.Context, raw string) (*models.Identity, error) {
	s.gotToken = raw
	return s.id, s.err
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) errEnvelope {
	t.Helper()
	var env errEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

// wrap собирает мидлвары вокруг h; первый в списке оказывается внешним.
func wrap(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	var seenHeader, seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHeader = r.Header.Get("X-Request-Id")
		seenCtx = RequestIDFrom(r.Context())
	})

	rr := httptest.NewRecorder()
	wrap(h, RequestID()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rid", nil))

	respID := rr.Header().Get("X-Request-Id")
	require.Len(t, respID, 36)
	require.Equal(t, respID, seenHeader)
	require.Equal(t, respID, seenCtx)
}

func TestRequestID_UseExisting(t *testing.T) {
	const given = "abc123-existing-id"
	var seenCtx string

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenCtx = RequestIDFrom(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set("X-Request-Id", given)
	rr := httptest.NewRecorder()
	wrap(h, RequestID()).ServeHTTP(rr, req)

	require.Equal(t, given, rr.Header().Get("X-Request-Id"))
	require.Equal(t, given, seenCtx)
}

func TestTimeout_SetsDeadline_WhenAbsent(t *testing.T) {
	var hasDeadline bool

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	})

	wrap(h, Timeout(50*time.Millisecond)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/t", nil))
	require.True(t, hasDeadline)

	wrap(h, Timeout(0)).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/t", nil))
	require.False(t, hasDeadline)
}

func TestTimeout_DoesNotOverrideExistingDeadline(t *testing.T) {
	var childDL time.Time

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		childDL, _ = r.Context().Deadline()
	})

	parent, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/t", nil).WithContext(parent)

	wrap(h, Timeout(time.Second)).ServeHTTP(httptest.NewRecorder(), req)

	parentDL, _ := parent.Deadline()
	require.WithinDuration(t, parentDL, childDL, time.Millisecond)
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	rr := httptest.NewRecorder()
	wrap(panicHandler, Recover()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Equal(t, "internal", decodeEnvelope(t, rr).Error.Code)
}

func TestLogging_WritesRecord(t *testing.T) {
	h := &capHandler{}
	logger := slog.New(h)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	})

	req := httptest.NewRequest(http.MethodPost, "/api/login", nil)
	req.Header.Set("X-Request-Id", "rid-456")
	rr := httptest.NewRecorder()
	wrap(final, RequestID(), Logging(logger)).ServeHTTP(rr, req)

	require.Equal(t, 1, h.count)
	require.Equal(t, "http", h.lastMsg)
	require.Equal(t, http.MethodPost, h.attrs["method"])
	require.Equal(t, "/api/login", h.attrs["path"])
	require.Equal(t, "rid-456", h.attrs["request_id"])
	require.EqualValues(t, http.StatusOK, h.attrs["status"])
	require.EqualValues(t, 10, h.attrs["bytes"])
}

func TestLogging_RecordsHandlerStatus(t *testing.T) {
	h := &capHandler{}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	rr := httptest.NewRecorder()
	wrap(final, Logging(slog.New(h))).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/me", nil))

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.EqualValues(t, http.StatusUnauthorized, h.attrs["status"])
	require.EqualValues(t, 0, h.attrs["bytes"])
}

func TestBearerToken_Table(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{"ok", "Bearer abc.def.ghi", "abc.def.ghi", true},
		{"trailing_space", "Bearer abc ", "abc", true},
		{"absent", "", "", false},
		{"basic", "Basic dXNlcjpwYXNz", "", false},
		{"lowercase_scheme", "bearer abc", "", false},
		{"empty_token", "Bearer ", "", false},
		{"no_space", "Bearerabc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			got, ok := BearerToken(req)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestRequireAuth_InjectsIdentity(t *testing.T) {
	auth := &stubAuth{id: &models.Identity{UserID: 7, Login: "alice"}}

	var got *models.Identity
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFrom(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	wrap(h, RequireAuth(auth)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "tok", auth.gotToken)
	require.Equal(t, int64(7), got.UserID)
}

func TestRequireAuth_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		code   string
	}{
		{"missing_header", "", nil, "missing_or_malformed_header"},
		{"not_bearer", "Token tok", nil, "missing_or_malformed_header"},
		{"expired", "Bearer tok", service.ErrTokenExpired, "token_expired"},
		{"malformed", "Bearer tok", service.ErrMalformedToken, "malformed_token"},
		{"invalid", "Bearer tok", service.ErrInvalidToken, "invalid_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &stubAuth{err: tt.err}
			called := false
			h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			wrap(h, RequireAuth(auth)).ServeHTTP(rr, req)

			require.False(t, called)
			require.Equal(t, http.StatusUnauthorized, rr.Code)
			require.Equal(t, tt.code, decodeEnvelope(t, rr).Error.Code)
		})
	}
}

func TestRequireAuth_InternalError(t *testing.T) {
	auth := &stubAuth{err: errors.New("db down")}
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rr := httptest.NewRecorder()
	wrap(h, RequireAuth(auth)).ServeHTTP(rr, req)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestIdentityFrom_Empty(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	require.False(t, ok)
}
