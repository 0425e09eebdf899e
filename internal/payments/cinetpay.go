package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	cinetpayDefaultBaseURL = "https://api-checkout.cinetpay.com"
	cinetpayProviderName   = "cinetpay"

	cinetpayCodeCreated = "201"
	cinetpayCodeSuccess = "00"

	cinetpayDateLayout = "2006-01-02 15:04:05"
)

// CinetPayLogger defines the logging contract for gateway operations.
type CinetPayLogger func(ctx context.Context, event string, fields map[string]any)

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CinetPayConfig configures the CinetPayProvider.
type CinetPayConfig struct {
	APIKey     string
	SiteID     string
	BaseURL    string
	Channels   string
	HTTPClient httpDoer
	Logger     CinetPayLogger
	Clock      func() time.Time
}

// CinetPayProvider implements the Provider interface over the CinetPay
// checkout REST API.
type CinetPayProvider struct {
	apiKey   string
	siteID   string
	baseURL  string
	channels string
	client   httpDoer
	clock    func() time.Time
	logger   CinetPayLogger
}

// NewCinetPayProvider constructs a CinetPay Provider using the given configuration.
func NewCinetPayProvider(cfg CinetPayConfig) (*CinetPayProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("cinetpay: api key is required")
	}
	siteID := strings.TrimSpace(cfg.SiteID)
	if siteID == "" {
		return nil, errors.New("cinetpay: site id is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = cinetpayDefaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	channels := strings.TrimSpace(cfg.Channels)
	if channels == "" {
		channels = "ALL"
	}

	return &CinetPayProvider{
		apiKey:   apiKey,
		siteID:   siteID,
		baseURL:  baseURL,
		channels: channels,
		client:   client,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

type cinetpayEnvelope struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type cinetpayCheckoutData struct {
	PaymentToken string `json:"payment_token"`
	PaymentURL   string `json:"payment_url"`
}

type cinetpayCheckData struct {
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Status        string      `json:"status"`
	PaymentMethod string      `json:"payment_method"`
	OperatorID    string      `json:"operator_id"`
	PaymentDate   string      `json:"payment_date"`
}

// CreateCheckout opens a hosted payment page for the transaction.
func (p *CinetPayProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("cinetpay: provider is nil")
	}
	transactionID := strings.TrimSpace(req.TransactionID)
	if transactionID == "" {
		return CheckoutSession{}, errors.New("cinetpay: transaction id is required")
	}
	if req.Amount <= 0 {
		return CheckoutSession{}, errors.New("cinetpay: amount must be positive")
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "XOF"
	}
	channels := strings.TrimSpace(req.Channels)
	if channels == "" {
		channels = p.channels
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Order " + transactionID
	}

	payload := map[string]any{
		"apikey":         p.apiKey,
		"site_id":        p.siteID,
		"transaction_id": transactionID,
		"amount":         req.Amount,
		"currency":       currency,
		"description":    description,
		"channels":       channels,
		"notify_url":     strings.TrimSpace(req.NotifyURL),
		"return_url":     strings.TrimSpace(req.ReturnURL),
	}
	if req.CustomerID != "" {
		payload["customer_id"] = req.CustomerID
	}
	if len(req.Metadata) > 0 {
		if meta, err := json.Marshal(req.Metadata); err == nil {
			payload["metadata"] = string(meta)
		}
	}

	envelope, raw, err := p.post(ctx, "/v2/payment", payload)
	if err != nil {
		return CheckoutSession{}, err
	}
	if envelope.Code != cinetpayCodeCreated {
		return CheckoutSession{}, fmt.Errorf("cinetpay: create checkout rejected: code %s message %q", envelope.Code, envelope.Message)
	}

	var data cinetpayCheckoutData
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		return CheckoutSession{}, fmt.Errorf("cinetpay: decode checkout data: %w", err)
	}
	if data.PaymentURL == "" {
		return CheckoutSession{}, errors.New("cinetpay: checkout response missing payment url")
	}

	p.logger(ctx, "payments.cinetpay.checkout.created", map[string]any{
		"transactionId": transactionID,
		"amount":        req.Amount,
		"currency":      currency,
	})

	return CheckoutSession{
		TransactionID: transactionID,
		Provider:      cinetpayProviderName,
		PaymentURL:    data.PaymentURL,
		PaymentToken:  data.PaymentToken,
		Amount:        req.Amount,
		Currency:      currency,
		CreatedAt:     p.clock(),
		Raw:           raw,
	}, nil
}

// CheckTransaction fetches the authoritative transaction state. Callbacks are
// never trusted; this call is the only source of payment facts.
func (p *CinetPayProvider) CheckTransaction(ctx context.Context, transactionID string) (TransactionDetails, error) {
	if p == nil {
		return TransactionDetails{}, errors.New("cinetpay: provider is nil")
	}
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return TransactionDetails{}, errors.New("cinetpay: transaction id is required")
	}

	payload := map[string]any{
		"apikey":         p.apiKey,
		"site_id":        p.siteID,
		"transaction_id": transactionID,
	}

	envelope, raw, err := p.post(ctx, "/v2/payment/check", payload)
	if err != nil {
		return TransactionDetails{}, err
	}

	if isCinetpayNotFound(envelope) {
		return TransactionDetails{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, transactionID)
	}

	var data cinetpayCheckData
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			return TransactionDetails{}, fmt.Errorf("cinetpay: decode check data: %w", err)
		}
	}

	details := TransactionDetails{
		Provider:       cinetpayProviderName,
		TransactionID:  transactionID,
		Status:         cinetpayStatus(envelope.Code, data.Status),
		ProviderStatus: strings.ToUpper(strings.TrimSpace(data.Status)),
		Amount:         parseCinetpayAmount(data.Amount),
		Currency:       strings.ToUpper(strings.TrimSpace(data.Currency)),
		Method:         strings.TrimSpace(data.PaymentMethod),
		OperatorID:     strings.TrimSpace(data.OperatorID),
		Raw:            raw,
	}
	if settled := parseCinetpayDate(data.PaymentDate); settled != nil && details.Status == StatusSucceeded {
		details.SettledAt = settled
	}

	p.logger(ctx, "payments.cinetpay.transaction.checked", map[string]any{
		"transactionId":  transactionID,
		"code":           envelope.Code,
		"providerStatus": details.ProviderStatus,
	})
	return details, nil
}

func (p *CinetPayProvider) post(ctx context.Context, path string, payload map[string]any) (cinetpayEnvelope, map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return cinetpayEnvelope{}, nil, fmt.Errorf("cinetpay: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return cinetpayEnvelope{}, nil, fmt.Errorf("cinetpay: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return cinetpayEnvelope{}, nil, fmt.Errorf("cinetpay: call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return cinetpayEnvelope{}, nil, fmt.Errorf("cinetpay: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return cinetpayEnvelope{}, nil, fmt.Errorf("cinetpay: %s returned status %d", path, resp.StatusCode)
	}

	var envelope cinetpayEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return cinetpayEnvelope{}, nil, fmt.Errorf("cinetpay: decode response: %w", err)
	}

	rawMap := map[string]any{}
	_ = json.Unmarshal(raw, &rawMap)
	return envelope, rawMap, nil
}

// cinetpayStatus folds the response code and the transaction status string
// into the normalised state. Only code 00 with status ACCEPTED counts as paid.
func cinetpayStatus(code, status string) Status {
	status = strings.ToUpper(strings.TrimSpace(status))
	if code == cinetpayCodeSuccess && status == "ACCEPTED" {
		return StatusSucceeded
	}
	switch status {
	case "REFUSED", "CANCELED", "CANCELLED", "EXPIRED":
		return StatusFailed
	case "REFUNDED":
		return StatusRefunded
	}
	return StatusPending
}

func isCinetpayNotFound(envelope cinetpayEnvelope) bool {
	message := strings.ToUpper(envelope.Message)
	return strings.Contains(message, "NOT_FOUND") || strings.Contains(message, "NOT FOUND")
}

func parseCinetpayAmount(amount json.Number) int64 {
	s := strings.TrimSpace(amount.String())
	if s == "" {
		return 0
	}
	if v, err := amount.Int64(); err == nil {
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseCinetpayDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	t, err := time.Parse(cinetpayDateLayout, value)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
