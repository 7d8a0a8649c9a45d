// Package testutil provides common test fixtures and helpers for FolioPipe tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/BTreeMap/FolioPipe/internal/flow"
	"github.com/BTreeMap/FolioPipe/internal/models"
	"github.com/BTreeMap/FolioPipe/internal/store"
	"github.com/BTreeMap/FolioPipe/internal/views"
)

// DemoTime is the fixed clock used to build the demo records in tests.
var DemoTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// TB is the subset of testing.TB the helpers need. It lets the helpers be
// exercised with a recording fake.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Error(args ...any)
	Fatalf(format string, args ...any)
}

// Fixture bundles an engine with the in-memory stores behind it.
type Fixture struct {
	Engine   *flow.Engine
	Sessions *store.InMemoryStore
	Records  *store.InMemoryServiceRepository
	Renderer *views.Renderer
}

// NewFixture builds an engine over in-memory stores seeded with the demo
// records. This centralizes the wiring used by the api and messaging tests.
func NewFixture(opts ...flow.Option) *Fixture {
	sessions := store.NewInMemoryStore()
	records := store.NewInMemoryServiceRepository(store.DemoRecords(DemoTime)...)
	renderer := views.NewRenderer(views.DefaultVocabulary(), views.DefaultSupportContact())
	return &Fixture{
		Engine:   flow.NewEngine(sessions, records, renderer, opts...),
		Sessions: sessions,
		Records:  records,
		Renderer: renderer,
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an API envelope and validates its status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != string(expectedStatus) {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateJSONRequest creates an HTTP request with an optional JSON body.
func CreateJSONRequest(t TB, method, url string, body any) *http.Request {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
			return nil
		}
	}

	req := httptest.NewRequest(method, url, &reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// AssertSessionState fails the test unless the user's stored session is in want.
func AssertSessionState(t TB, sessions flow.SessionStore, userID int64, want models.ConversationState) {
	t.Helper()
	s, err := sessions.GetSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("failed to read session for %d: %v", userID, err)
		return
	}
	if s == nil {
		t.Errorf("no session stored for %d, want state %s", userID, want)
		return
	}
	if s.State != want {
		t.Errorf("session state for %d = %s, want %s", userID, s.State, want)
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target any) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
