package external

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shopmail/internal/types"
)

func newTestBrevoClient(t *testing.T, serverURL string) *BrevoClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-brevo",
		RetryPolicy{
			MaxRetries: 0, // deterministic tests
			MinWait:    1 * time.Millisecond,
			MaxWait:    10 * time.Millisecond,
		},
		"ShopMail-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewBrevoClientWithBase(base, BrevoClientConfig{
		APIKey:  types.SecretString("xkeysib-test"),
		BaseURL: serverURL,
	})
}

func testSendInput() types.SendTemplateInput {
	return types.SendTemplateInput{
		Sender:     types.EmailAddress{Email: "shop@example.com", Name: "Example Shop"},
		To:         []types.EmailAddress{{Email: "jane@example.com"}},
		TemplateID: "17",
		Params:     map[string]any{"display_id": float64(42)},
		Attachments: []types.Attachment{
			{Name: "invoice.pdf", Base64: "JVBERi0=", Type: "application/pdf"},
		},
		ReferenceID: "notif_123",
	}
}

func TestBrevoSendTemplateSuccess(t *testing.T) {
	var received brevoSendPayload
	var apiKey string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v3/smtp/email" {
			t.Errorf("path = %s, want /v3/smtp/email", r.URL.Path)
		}
		apiKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(brevoSendResponse{MessageID: "<msg-abc@brevo>"})
	}))
	defer server.Close()

	msgID, err := newTestBrevoClient(t, server.URL).SendTemplate(context.Background(), testSendInput())
	if err != nil {
		t.Fatalf("SendTemplate() error: %v", err)
	}
	if msgID != "<msg-abc@brevo>" {
		t.Fatalf("message id = %q", msgID)
	}

	if apiKey != "xkeysib-test" {
		t.Errorf("api-key header = %q", apiKey)
	}
	if received.TemplateID != 17 {
		t.Errorf("templateId = %d, want 17", received.TemplateID)
	}
	if len(received.To) != 1 || received.To[0].Email != "jane@example.com" {
		t.Errorf("to = %+v", received.To)
	}
	if len(received.Attachment) != 1 || received.Attachment[0].Name != "invoice.pdf" {
		t.Errorf("attachment = %+v", received.Attachment)
	}
	if received.Headers["X-Reference-Id"] != "notif_123" {
		t.Errorf("headers = %+v", received.Headers)
	}
}

func TestBrevoSendTemplateBccMapped(t *testing.T) {
	var received brevoSendPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(brevoSendResponse{MessageID: "m"})
	}))
	defer server.Close()

	input := testSendInput()
	input.Bcc = "archive@example.com"
	_, err := newTestBrevoClient(t, server.URL).SendTemplate(context.Background(), input)
	if err != nil {
		t.Fatalf("SendTemplate() error: %v", err)
	}
	if len(received.Bcc) != 1 || received.Bcc[0].Email != "archive@example.com" {
		t.Fatalf("bcc = %+v", received.Bcc)
	}
}

func TestBrevoSendTemplateBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(brevoErrorResponse{Code: "permission_denied", Message: "recipient suppressed"})
	}))
	defer server.Close()

	_, err := newTestBrevoClient(t, server.URL).SendTemplate(context.Background(), testSendInput())
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error is %T, want *types.AppError", err)
	}
	if appErr.Code != types.ErrCodeEmailBlocked {
		t.Fatalf("code = %s, want %s", appErr.Code, types.ErrCodeEmailBlocked)
	}
}

func TestBrevoSendTemplateBadRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(brevoErrorResponse{Code: "invalid_parameter", Message: "templateId is required"})
	}))
	defer server.Close()

	_, err := newTestBrevoClient(t, server.URL).SendTemplate(context.Background(), testSendInput())
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("error is %T, want *types.AppError", err)
	}
	if appErr.Code != types.ErrCodeUpstreamEmailProvider {
		t.Fatalf("code = %s, want %s", appErr.Code, types.ErrCodeUpstreamEmailProvider)
	}
}

func TestBrevoCreateContact(t *testing.T) {
	var received brevoContactPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/contacts" {
			t.Errorf("path = %s, want /v3/contacts", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	err := newTestBrevoClient(t, server.URL).CreateContact(context.Background(), types.ContactInput{
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Doe",
		ListIDs:   []int64{4},
	})
	if err != nil {
		t.Fatalf("CreateContact() error: %v", err)
	}
	if received.Email != "jane@example.com" {
		t.Errorf("email = %q", received.Email)
	}
	if !received.UpdateEnabled {
		t.Error("updateEnabled should be true")
	}
	if received.Attributes["FIRSTNAME"] != "Jane" || received.Attributes["LASTNAME"] != "Doe" {
		t.Errorf("attributes = %+v", received.Attributes)
	}
	if len(received.ListIDs) != 1 || received.ListIDs[0] != 4 {
		t.Errorf("listIds = %+v", received.ListIDs)
	}
}

func TestParseTemplateID(t *testing.T) {
	if got := parseTemplateID("123"); got != 123 {
		t.Fatalf("parseTemplateID(123) = %d", got)
	}
	if got := parseTemplateID("d-abc"); got != 0 {
		t.Fatalf("parseTemplateID(d-abc) = %d, want 0", got)
	}
	if got := parseTemplateID(""); got != 0 {
		t.Fatalf("parseTemplateID(empty) = %d, want 0", got)
	}
}
