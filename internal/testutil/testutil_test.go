package testutil

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/FolioPipe/internal/models"
)

func TestNewFixture(t *testing.T) {
	fx := NewFixture()
	if fx.Engine == nil || fx.Sessions == nil || fx.Records == nil || fx.Renderer == nil {
		t.Fatal("NewFixture returned incomplete fixture")
	}

	for _, folio := range []string{"XROM-12345", "XROM-ABCDE", "XROM-999"} {
		rec, err := fx.Records.FindByFolio(context.Background(), folio)
		if err != nil {
			t.Fatalf("FindByFolio(%s) failed: %v", folio, err)
		}
		if rec == nil {
			t.Errorf("demo record %s not seeded", folio)
		}
	}

	resp := fx.Engine.HandleTurn(context.Background(), models.InboundMessage{UserID: 9, Text: "hola"})
	if len(resp.Buttons) != 3 {
		t.Errorf("expected main menu buttons, got %v", resp.Buttons)
	}
	AssertSessionState(t, fx.Sessions, 9, models.StateMainMenu)
}

func TestAssertHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		expected   int
		actual     int
		shouldFail bool
	}{
		{"matching status codes", 200, 200, false},
		{"different status codes", 200, 404, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			AssertHTTPStatus(mockT, tt.expected, tt.actual, "test context")

			if tt.shouldFail != mockT.failed {
				t.Errorf("failed = %v, want %v", mockT.failed, tt.shouldFail)
			}
			if !mockT.helper {
				t.Error("Helper() was not called")
			}
		})
	}
}

func TestAssertJSONResponse(t *testing.T) {
	tests := []struct {
		name           string
		jsonBody       string
		expectedStatus models.APIStatus
		shouldFail     bool
	}{
		{"valid JSON with matching status", `{"status":"ok","result":"test"}`, models.APIStatusOK, false},
		{"valid JSON with different status", `{"status":"error","message":"boom"}`, models.APIStatusOK, true},
		{"not found envelope", `{"status":"not_found"}`, models.APIStatusNotFound, false},
		{"invalid JSON", `{"status":}`, models.APIStatusOK, true},
		{"missing status field", `{"result":"test"}`, models.APIStatusOK, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockT := &mockTestingT{}
			rr := httptest.NewRecorder()
			rr.Body.WriteString(tt.jsonBody)

			response := AssertJSONResponse(mockT, rr, tt.expectedStatus)

			if tt.shouldFail && !mockT.failed {
				t.Error("Expected test to fail but it passed")
			}
			if !tt.shouldFail && mockT.failed {
				t.Errorf("Expected test to pass but it failed: %s", mockT.errorMsg)
			}
			if !tt.shouldFail && response == nil {
				t.Error("Expected response map to be returned")
			}
		})
	}
}

func TestCreateJSONRequest(t *testing.T) {
	req := CreateJSONRequest(t, http.MethodPost, "/v1/turns", map[string]any{"user_id": 1, "text": "hola"})
	if req.Method != http.MethodPost || req.URL.Path != "/v1/turns" {
		t.Errorf("unexpected request %s %s", req.Method, req.URL.Path)
	}
	if ct := req.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(req.Body)
	var decoded map[string]any
	MustUnmarshalJSON(t, body, &decoded)
	if decoded["text"] != "hola" {
		t.Errorf("body = %s", body)
	}

	req = CreateJSONRequest(t, http.MethodGet, "/healthz", nil)
	if req.Header.Get("Content-Type") != "" {
		t.Error("GET without body should not set Content-Type")
	}
}

func TestAssertSessionState(t *testing.T) {
	fx := NewFixture()

	mockT := &mockTestingT{}
	AssertSessionState(mockT, fx.Sessions, 1, models.StateMainMenu)
	if !mockT.failed {
		t.Error("missing session should fail")
	}

	fx.Engine.HandleTurn(context.Background(), models.InboundMessage{UserID: 1, Text: "hola"})
	fx.Engine.HandleTurn(context.Background(), models.InboundMessage{UserID: 1, Text: "Consultar Folio"})

	mockT = &mockTestingT{}
	AssertSessionState(mockT, fx.Sessions, 1, models.StateMainMenu)
	if !mockT.failed {
		t.Error("wrong state should fail")
	}
	AssertSessionState(t, fx.Sessions, 1, models.StateWaitingForFolio)
}

func TestMustMarshalJSON(t *testing.T) {
	data := MustMarshalJSON(t, models.BotResponse{Text: "hi", Buttons: []string{}})
	if string(data) != `{"text":"hi","buttons":[]}` {
		t.Errorf("MustMarshalJSON = %s", data)
	}

	mockT := &mockTestingT{}
	MustMarshalJSON(mockT, make(chan int))
	if !mockT.failed {
		t.Error("marshaling a channel should fail")
	}
}

func TestMustUnmarshalJSON(t *testing.T) {
	var resp models.BotResponse
	MustUnmarshalJSON(t, []byte(`{"text":"hi","buttons":["Soporte"]}`), &resp)
	if resp.Text != "hi" || len(resp.Buttons) != 1 {
		t.Errorf("MustUnmarshalJSON = %+v", resp)
	}

	mockT := &mockTestingT{}
	MustUnmarshalJSON(mockT, []byte(`{`), &resp)
	if !mockT.failed {
		t.Error("invalid JSON should fail")
	}
}

type mockTestingT struct {
	failed   bool
	errorMsg string
	helper   bool
}

func (m *mockTestingT) Helper() {
	m.helper = true
}

func (m *mockTestingT) Errorf(format string, args ...any) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}

func (m *mockTestingT) Error(args ...any) {
	m.failed = true
	m.errorMsg = fmt.Sprint(args...)
}

func (m *mockTestingT) Fatalf(format string, args ...any) {
	m.failed = true
	m.errorMsg = fmt.Sprintf(format, args...)
}
