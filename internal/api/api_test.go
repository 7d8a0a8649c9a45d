package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/FolioPipe/internal/messaging"
	"github.com/BTreeMap/FolioPipe/internal/models"
	"github.com/BTreeMap/FolioPipe/internal/testutil"
	"github.com/BTreeMap/FolioPipe/internal/twiliowhatsapp"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type failingRepo struct{}

func (failingRepo) FindByFolio(context.Context, string) (*models.ServiceRecord, error) {
	return nil, errors.New("database is locked")
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	fx := testutil.NewFixture()
	return NewServer(fx.Engine, fx.Records, opts...)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	var decoded map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &decoded))
	}
	return rr, decoded
}

func TestHealthz(t *testing.T) {
	rr, body := do(t, newTestServer(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, "req-123", rr.Header().Get(RequestIDHeader))
}

func TestTurnsConversation(t *testing.T) {
	s := newTestServer(t)

	rr, body := do(t, s, http.MethodPost, "/v1/turns", `{"user_id":77,"text":"hola"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	result := body["result"].(map[string]any)
	assert.Contains(t, result["text"], "XROM Systems")
	assert.Equal(t, []any{"Consultar Folio", "Asistente IA", "Soporte"}, result["buttons"])

	_, body = do(t, s, http.MethodPost, "/v1/turns", `{"user_id":77,"text":"Consultar Folio"}`)
	assert.Contains(t, body["result"].(map[string]any)["text"], "Consulta de Servicio")

	_, body = do(t, s, http.MethodPost, "/v1/turns", `{"user_id":77,"text":"xrom-zzz"}`)
	result = body["result"].(map[string]any)
	assert.Contains(t, result["text"], "XROM-ZZZ")
	assert.Equal(t, []any{"Volver Al Menú Principal"}, result["buttons"])
}

func TestTurnsRejectsBadRequests(t *testing.T) {
	s := newTestServer(t)
	for _, body := range []string{`{"text":"hola"}`, `not json`, `{"user_id":"abc"}`} {
		rr, decoded := do(t, s, http.MethodPost, "/v1/turns", body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
		assert.Equal(t, "error", decoded["status"], body)
	}
}

func TestServiceLookup(t *testing.T) {
	s := newTestServer(t)

	rr, body := do(t, s, http.MethodGet, "/v1/services/"+url.PathEscape("xrom 12345"), "")
	require.Equal(t, http.StatusOK, rr.Code)
	result := body["result"].(map[string]any)
	assert.Equal(t, "XROM-12345", result["folio"])
	assert.Equal(t, "PENDING", result["status"])

	rr, body = do(t, s, http.MethodGet, "/v1/services/XROM-00000", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", body["status"])

	rr, body = do(t, s, http.MethodGet, "/v1/services/hello", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "error", body["status"])
}

func TestServiceLookupRepositoryFailure(t *testing.T) {
	s := NewServer(nil, failingRepo{})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, testutil.CreateJSONRequest(t, http.MethodGet, "/v1/services/XROM-12345", nil))
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "repository failure")
	body := testutil.AssertJSONResponse(t, rr, models.APIStatusError)
	assert.Equal(t, "Failed to look up folio", body["message"])
}

func TestTurnsUpdatesSession(t *testing.T) {
	fx := testutil.NewFixture()
	s := NewServer(fx.Engine, fx.Records)

	for _, text := range []string{"hola", "Consultar Folio"} {
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, testutil.CreateJSONRequest(t, http.MethodPost, "/v1/turns",
			models.InboundMessage{UserID: 42, Text: text}))
		testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, text)
		testutil.AssertJSONResponse(t, rr, models.APIStatusOK)
	}
	testutil.AssertSessionState(t, fx.Sessions, 42, models.StateWaitingForFolio)
}

func TestTwilioWebhookMountedOnlyWhenEnabled(t *testing.T) {
	form := url.Values{"From": {"whatsapp:+5215512345678"}, "Body": {"hola"}, "MessageSid": {"SM1"}}

	post := func(s *Server) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/twilio/webhook", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusNotFound, post(newTestServer(t)).Code)

	svc := messaging.NewTwilioService(twiliowhatsapp.NewMockClient())
	rr := post(newTestServer(t, WithTwilioWebhook(svc.WebhookHandler)))
	assert.Equal(t, http.StatusOK, rr.Code)
	in := <-svc.Inbound()
	assert.Equal(t, int64(5215512345678), in.UserID)
}

func TestServerRunShutsDown(t *testing.T) {
	s := newTestServer(t, WithAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
