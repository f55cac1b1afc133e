package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	razorpayDefaultBaseURL = "https://api.razorpay.com"
	razorpayCapturedStatus = "captured"
)

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	APIBaseURL    string
	HTTPTimeout   time.Duration
}

type RazorpayProvider struct {
	cfg    RazorpayConfig
	client *http.Client
}

func NewRazorpayProvider(cfg RazorpayConfig) *RazorpayProvider {
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = razorpayDefaultBaseURL
	}

	return &RazorpayProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *RazorpayProvider) Code() int32 {
	return CodeRazorpay
}

func (p *RazorpayProvider) KeyID() string {
	return strings.TrimSpace(p.cfg.KeyID)
}

func (p *RazorpayProvider) CreateOrder(ctx context.Context, input *CreateOrderInput) (*CreateOrderOutput, error) {
	if !p.hasAPICredentials() {
		return nil, fmt.Errorf("%w: razorpay key id/secret missing", ErrNotConfigured)
	}

	notes := make(map[string]string, len(input.Notes))
	for k, v := range input.Notes {
		notes[k] = v
	}
	requestBody, err := json.Marshal(map[string]interface{}{
		"amount":   input.AmountMinor,
		"currency": strings.ToUpper(strings.TrimSpace(input.Currency)),
		"receipt":  input.Receipt,
		"notes":    notes,
	})
	if err != nil {
		return nil, err
	}

	body, err := p.do(ctx, http.MethodPost, "/v1/orders", requestBody)
	if err != nil {
		return nil, err
	}

	var payload struct {
		ID       string `json:"id"`
		Amount   int64  `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: decode order response: %w", ErrUpstream, err)
	}
	orderID := strings.TrimSpace(payload.ID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: razorpay order id missing", ErrUpstream)
	}

	return &CreateOrderOutput{
		OrderID:     orderID,
		AmountMinor: payload.Amount,
		Currency:    payload.Currency,
		Status:      payload.Status,
	}, nil
}

func (p *RazorpayProvider) VerifyAndParseWebhook(_ context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	if strings.TrimSpace(p.cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: razorpay webhook secret missing", ErrNotConfigured)
	}
	if !VerifySignature(payload, signature, p.cfg.WebhookSecret) {
		return nil, ErrInvalidSignature
	}

	var envelope struct {
		Event   string `json:"event"`
		Payload struct {
			Payment struct {
				Entity razorpayPayment `json:"entity"`
			} `json:"payment"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	entity := envelope.Payload.Payment.Entity
	return &WebhookEvent{
		EventType:     strings.TrimSpace(envelope.Event),
		PaymentID:     strings.TrimSpace(entity.ID),
		OrderID:       strings.TrimSpace(entity.OrderID),
		PaymentStatus: strings.TrimSpace(entity.Status),
		AmountMinor:   entity.Amount,
		Currency:      strings.TrimSpace(entity.Currency),
		Notes:         parseNotes(entity.Notes),
	}, nil
}

func (p *RazorpayProvider) FetchCapturedPayment(ctx context.Context, orderID string) (*CapturedPayment, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, nil
	}
	if !p.hasAPICredentials() {
		return nil, fmt.Errorf("%w: razorpay key id/secret missing", ErrNotConfigured)
	}

	body, err := p.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(strings.TrimSpace(orderID))+"/payments", nil)
	if err != nil {
		return nil, err
	}

	var collection struct {
		Items []razorpayPayment `json:"items"`
	}
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("%w: decode order payments: %w", ErrUpstream, err)
	}

	for _, item := range collection.Items {
		if item.Status != razorpayCapturedStatus || strings.TrimSpace(item.ID) == "" {
			continue
		}
		return &CapturedPayment{
			PaymentID:   strings.TrimSpace(item.ID),
			OrderID:     strings.TrimSpace(item.OrderID),
			AmountMinor: item.Amount,
			Currency:    item.Currency,
			Notes:       parseNotes(item.Notes),
		}, nil
	}

	return nil, nil
}

func (p *RazorpayProvider) hasAPICredentials() bool {
	return strings.TrimSpace(p.cfg.KeyID) != "" && strings.TrimSpace(p.cfg.KeySecret) != ""
}

func (p *RazorpayProvider) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.APIBaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.cfg.KeyID, p.cfg.KeySecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: razorpay request failed: path=%s status=%d body=%s", ErrUpstream, path, resp.StatusCode, string(body))
	}

	return body, nil
}

type razorpayPayment struct {
	ID       string          `json:"id"`
	OrderID  string          `json:"order_id"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	Status   string          `json:"status"`
	Notes    json.RawMessage `json:"notes"`
}

// VerifySignature checks a lowercase hex HMAC-SHA256 of the exact raw body.
// The header is compared as text, so a case change in any digit fails.
func VerifySignature(payload []byte, signatureHeader string, secret string) bool {
	signatureHeader = strings.TrimSpace(signatureHeader)
	if signatureHeader == "" || strings.TrimSpace(secret) == "" {
		return false
	}

	expected := Sign(payload, secret)
	return hmac.Equal([]byte(signatureHeader), []byte(expected))
}

// Sign returns the hex signature VerifySignature accepts.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Razorpay sends notes as [] when empty, and values may be numbers.
func parseNotes(raw json.RawMessage) map[string]string {
	notes := map[string]string{}
	if len(raw) == 0 {
		return notes
	}

	var object map[string]interface{}
	if json.Unmarshal(raw, &object) != nil {
		return notes
	}
	for k, v := range object {
		switch t := v.(type) {
		case string:
			notes[k] = strings.TrimSpace(t)
		case float64:
			notes[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			notes[k] = strconv.FormatBool(t)
		}
	}
	return notes
}
