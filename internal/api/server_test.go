package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopmail/internal/types"
)

type testLogger struct {
	infos  []string
	errors []string
}

func newTestLogger() *testLogger { return &testLogger{} }

func (l *testLogger) Info(msg string, args ...any)  { l.infos = append(l.infos, msg) }
func (l *testLogger) Warn(msg string, args ...any)  {}
func (l *testLogger) Error(msg string, args ...any) { l.errors = append(l.errors, msg) }
func (l *testLogger) With(args ...any) types.Logger { return l }

type stubResender struct {
	lastID string
	lastTo string
	rec    *types.NotificationRecord
	err    error
}

func (s *stubResender) Resend(_ context.Context, id, to string) (*types.NotificationRecord, error) {
	s.lastID = id
	s.lastTo = to
	if s.err != nil {
		return nil, s.err
	}
	return s.rec, nil
}

type stubLister struct {
	records []types.NotificationRecord
	err     error
}

func (s *stubLister) ListByResource(_ context.Context, _ string) ([]types.NotificationRecord, error) {
	return s.records, s.err
}

type stubProbe struct {
	name string
	err  error
}

func (p stubProbe) Name() string                    { return p.name }
func (p stubProbe) Check(_ context.Context) error   { return p.err }

const testAdminKey = "ops-key-123"

func newTestServer(resender *stubResender, lister *stubLister, probes ...HealthProbe) *Server {
	return NewServer(ServerConfig{
		Logger:       newTestLogger(),
		AdminAPIKey:  types.SecretString(testAdminKey),
		Resender:     resender,
		Lister:       lister,
		HealthProbes: probes,
	})
}

func doRequest(srv *Server, method, path, body string, admin bool) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("X-Admin-Key", testAdminKey)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func TestHealth_NoProbes(t *testing.T) {
	srv := newTestServer(&stubResender{}, &stubLister{})

	w := doRequest(srv, http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}

func TestHealth_FailingProbe(t *testing.T) {
	srv := newTestServer(&stubResender{}, &stubLister{},
		stubProbe{name: "database"},
		stubProbe{name: "queue", err: errors.New("connection refused")},
	)

	w := doRequest(srv, http.MethodGet, "/health", "", false)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["database"].Status)
	assert.Equal(t, "unhealthy", resp.Components["queue"].Status)
	assert.Contains(t, resp.Components["queue"].Message, "connection refused")
}

func TestResend_RequiresAdminKey(t *testing.T) {
	srv := newTestServer(&stubResender{}, &stubLister{})

	w := doRequest(srv, http.MethodPost, "/notifications/notif_1/resend", "", false)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeAuthUnauthorized), resp.Error.Code)
}

func TestResend_WrongAdminKey(t *testing.T) {
	srv := newTestServer(&stubResender{}, &stubLister{})

	req := httptest.NewRequest(http.MethodPost, "/notifications/notif_1/resend", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResend_Success(t *testing.T) {
	resender := &stubResender{rec: &types.NotificationRecord{
		ID:         "notif_2",
		EventType:  types.EventOrderPlaced,
		ResourceID: "order_1",
		To:         "ada@example.com",
		Status:     types.DeliverySent,
	}}
	srv := newTestServer(resender, &stubLister{})

	w := doRequest(srv, http.MethodPost, "/notifications/notif_1/resend", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "notif_1", resender.lastID)
	assert.Empty(t, resender.lastTo)

	var resp struct {
		Data resendResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Data.Notification)
	assert.Equal(t, "notif_2", resp.Data.Notification.ID)
}

func TestResend_WithOverride(t *testing.T) {
	resender := &stubResender{rec: &types.NotificationRecord{ID: "notif_2"}}
	srv := newTestServer(resender, &stubLister{})

	w := doRequest(srv, http.MethodPost, "/notifications/notif_1/resend",
		`{"to": "support@example.com"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "support@example.com", resender.lastTo)
}

func TestResend_InvalidOverrideEmail(t *testing.T) {
	srv := newTestServer(&stubResender{}, &stubLister{})

	w := doRequest(srv, http.MethodPost, "/notifications/notif_1/resend",
		`{"to": "not-an-email"}`, true)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeValidationInvalidEmail), resp.Error.Code)
}

func TestResend_UnknownField(t *testing.T) {
	srv := newTestServer(&stubResender{}, &stubLister{})

	w := doRequest(srv, http.MethodPost, "/notifications/notif_1/resend",
		`{"recipient": "x@example.com"}`, true)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(errCodeInvalidJSON), resp.Error.Code)
}

func TestResend_NotFound(t *testing.T) {
	resender := &stubResender{err: types.NewAppError(types.ErrCodeNotFoundNotification,
		"notification not found", nil)}
	srv := newTestServer(resender, &stubLister{})

	w := doRequest(srv, http.MethodPost, "/notifications/notif_x/resend", "", true)
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeNotFoundNotification), resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)
}

func TestListByResource(t *testing.T) {
	lister := &stubLister{records: []types.NotificationRecord{
		{ID: "notif_1", ResourceID: "order_1"},
		{ID: "notif_2", ResourceID: "order_1"},
	}}
	srv := newTestServer(&stubResender{}, lister)

	w := doRequest(srv, http.MethodGet, "/resources/order_1/notifications", "", true)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data listNotificationsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Notifications, 2)
}

func TestListByResource_DBError(t *testing.T) {
	lister := &stubLister{err: types.NewAppError(types.ErrCodeInternalDB, "query failed", nil)}
	srv := newTestServer(&stubResender{}, lister)

	w := doRequest(srv, http.MethodGet, "/resources/order_1/notifications", "", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequestIDPropagation(t *testing.T) {
	srv := newTestServer(&stubResender{}, &stubLister{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	assert.Equal(t, "req-abc", w.Header().Get("X-Request-ID"))
}

func TestRequestIDGenerated(t *testing.T) {
	srv := newTestServer(&stubResender{}, &stubLister{})

	w := doRequest(srv, http.MethodGet, "/health", "", false)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRecoverer(t *testing.T) {
	srv := newTestServer(&stubResender{}, &stubLister{})
	srv.router.Get("/boom", func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	})

	w := doRequest(srv, http.MethodGet, "/boom", "", false)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
}
