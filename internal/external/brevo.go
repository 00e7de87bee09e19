package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shopmail/internal/types"
)

// brevoAPIBase is the default Brevo API base URL. Overridable in tests via
// BrevoClientConfig.BaseURL.
const brevoAPIBase = "https://api.brevo.com"

// BrevoClientConfig holds the configuration for creating a BrevoClient.
type BrevoClientConfig struct {
	APIKey  types.SecretString
	BaseURL string // override for testing; defaults to brevoAPIBase
	Logger  types.Logger
}

// BrevoClient implements EmailProvider and ContactsProvider by calling the
// Brevo v3 API through BaseClient, so every send gets circuit breaking,
// retries, and error mapping, and tests can point it at an httptest server.
type BrevoClient struct {
	base    *BaseClient
	apiKey  types.SecretString
	baseURL string
	logger  types.Logger
}

func NewBrevoClient(httpClient *http.Client, cfg BrevoClientConfig) *BrevoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = brevoAPIBase
	}

	base := NewBaseClient(
		httpClient,
		"brevo",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"ShopMail/1.0",
	)

	return &BrevoClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  cfg.Logger,
	}
}

// NewBrevoClientWithBase creates a BrevoClient with a pre-configured
// BaseClient, used by tests to control retry behavior.
func NewBrevoClientWithBase(base *BaseClient, cfg BrevoClientConfig) *BrevoClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = brevoAPIBase
	}
	return &BrevoClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  cfg.Logger,
	}
}

// ---------------------------------------------------------------------------
// EmailProvider Implementation
// ---------------------------------------------------------------------------

// SendTemplate sends one templated transactional email via the Brevo
// /v3/smtp/email endpoint and returns the provider message id.
//
// Error mapping:
//   - 403 Forbidden -> types.ErrCodeEmailBlocked (recipient suppressed)
//   - 429 -> handled by BaseClient (retry + ErrCodeUpstreamRateLimited)
//   - 5xx -> handled by BaseClient (retry + ErrCodeUpstreamUnavailable)
//   - other 4xx -> types.ErrCodeUpstreamEmailProvider
func (b *BrevoClient) SendTemplate(ctx context.Context, input types.SendTemplateInput) (string, error) {
	payload := b.buildSendPayload(input)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal Brevo smtp/email payload",
			err,
		)
	}

	reqURL := b.baseURL + "/v3/smtp/email"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create Brevo send request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	b.setAuthHeaders(req)

	resp, err := b.base.Do(req)
	if err != nil {
		return "", b.wrapTransportError("SendTemplate", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusAccepted {
		var ok brevoSendResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&ok); decodeErr == nil {
			return ok.MessageID, nil
		}
		return "", nil
	}

	return "", b.handleErrorResponse(resp, "SendTemplate")
}

// ---------------------------------------------------------------------------
// ContactsProvider Implementation
// ---------------------------------------------------------------------------

// CreateContact subscribes an email address to the configured contact lists
// via /v3/contacts. Existing contacts are updated instead of erroring.
func (b *BrevoClient) CreateContact(ctx context.Context, input types.ContactInput) error {
	attributes := map[string]any{}
	for k, v := range input.Attributes {
		attributes[k] = v
	}
	if input.FirstName != "" {
		attributes["FIRSTNAME"] = input.FirstName
	}
	if input.LastName != "" {
		attributes["LASTNAME"] = input.LastName
	}

	payload := brevoContactPayload{
		Email:         input.Email,
		Attributes:    attributes,
		ListIDs:       input.ListIDs,
		UpdateEnabled: true,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal Brevo contact payload",
			err,
		)
	}

	reqURL := b.baseURL + "/v3/contacts"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create Brevo contact request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	b.setAuthHeaders(req)

	resp, err := b.base.Do(req)
	if err != nil {
		return b.wrapTransportError("CreateContact", err)
	}
	defer resp.Body.Close()

	// 201 on create, 204 on update of an existing contact.
	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	return b.handleErrorResponse(resp, "CreateContact")
}

// ---------------------------------------------------------------------------
// Payload Construction
// ---------------------------------------------------------------------------

// brevoSendPayload is the /v3/smtp/email request body for template sends.
type brevoSendPayload struct {
	Sender      brevoAddress      `json:"sender"`
	To          []brevoAddress    `json:"to"`
	Bcc         []brevoAddress    `json:"bcc,omitempty"`
	TemplateID  int64             `json:"templateId,omitempty"`
	Params      map[string]any    `json:"params,omitempty"`
	Attachment  []brevoAttachment `json:"attachment,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

type brevoAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoAttachment struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type brevoSendResponse struct {
	MessageID string `json:"messageId"`
}

type brevoContactPayload struct {
	Email         string         `json:"email"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	ListIDs       []int64        `json:"listIds,omitempty"`
	UpdateEnabled bool           `json:"updateEnabled"`
}

func (b *BrevoClient) buildSendPayload(input types.SendTemplateInput) brevoSendPayload {
	to := make([]brevoAddress, 0, len(input.To))
	for _, addr := range input.To {
		to = append(to, brevoAddress{Email: addr.Email, Name: addr.Name})
	}

	payload := brevoSendPayload{
		Sender:     brevoAddress{Email: input.Sender.Email, Name: input.Sender.Name},
		To:         to,
		TemplateID: parseTemplateID(input.TemplateID),
		Params:     input.Params,
	}

	if input.Bcc != "" {
		payload.Bcc = []brevoAddress{{Email: input.Bcc}}
	}

	for _, att := range input.Attachments {
		payload.Attachment = append(payload.Attachment, brevoAttachment{
			Name:    att.Name,
			Content: att.Base64,
		})
	}

	// Header correlation lets webhook events link back to the notification.
	if input.ReferenceID != "" {
		payload.Headers = map[string]string{"X-Reference-Id": input.ReferenceID}
	}

	return payload
}

// parseTemplateID converts the string template reference to Brevo's numeric
// template id. Non-numeric references yield zero and are rejected upstream by
// the API, surfacing a provider error rather than a silent misroute.
func parseTemplateID(ref string) int64 {
	var id int64
	for _, r := range ref {
		if r < '0' || r > '9' {
			return 0
		}
		id = id*10 + int64(r-'0')
	}
	return id
}

// ---------------------------------------------------------------------------
// HTTP Helpers
// ---------------------------------------------------------------------------

func (b *BrevoClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("api-key", b.apiKey.Unmask())
}

// ---------------------------------------------------------------------------
// Error Handling
// ---------------------------------------------------------------------------

// brevoErrorResponse is the JSON error body returned by Brevo.
type brevoErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (b *BrevoClient) handleErrorResponse(resp *http.Response, operation string) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("%s: Brevo returned status %d and response body was unreadable", operation, resp.StatusCode),
			readErr,
		)
	}

	var brevoErr brevoErrorResponse
	errMsg := string(body)
	if jsonErr := json.Unmarshal(body, &brevoErr); jsonErr == nil && brevoErr.Message != "" {
		errMsg = brevoErr.Message
	}

	return b.mapProviderError(operation, resp.StatusCode, errMsg)
}

func (b *BrevoClient) mapProviderError(operation string, statusCode int, message string) error {
	switch {
	case statusCode == http.StatusForbidden:
		return types.NewAppError(
			types.ErrCodeEmailBlocked,
			fmt.Sprintf("%s: Brevo blocked delivery: %s", operation, message),
			nil,
		)
	case statusCode == http.StatusTooManyRequests:
		return types.NewAppError(
			types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: Brevo rate limit exceeded", operation),
			nil,
		)
	case statusCode >= 500:
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: Brevo server error: %s", operation, message),
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("%s: Brevo error (%d): %s", operation, statusCode, message),
			nil,
		)
	}
}

func (b *BrevoClient) wrapTransportError(operation string, err error) error {
	// AppErrors from BaseClient already carry the right upstream code.
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("%s: Brevo request failed: %v", operation, err),
		err,
	)
}

// Compile-time interface assertions.
var (
	_ types.EmailProvider    = (*BrevoClient)(nil)
	_ types.ContactsProvider = (*BrevoClient)(nil)
)
