// Package client talks to the payment API from a device and keeps the
// device-local premium state.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
)

// ErrUnavailable wraps network failures and unexpected answers from the API.
var ErrUnavailable = errors.New("payment api unavailable")

// Checkout is what the device needs to show a Pix charge.
type Checkout struct {
	PaymentID    string
	QRCode       string
	QRCodeBase64 string
	Amount       decimal.Decimal
	ExpiresAt    time.Time
}

type PaymentStatus struct {
	Status           model.PaymentStatus
	PaidAt           *time.Time
	PremiumExpiresAt *time.Time
}

// Entitlement is the server's view of a device's premium access.
type Entitlement struct {
	Active    bool
	PaymentID string
	ExpiresAt time.Time
}

// API is an HTTP client for the public payment endpoints.
type API struct {
	baseURL string
	client  *http.Client
}

func NewAPI(baseURL string, timeout time.Duration) *API {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type errorBody struct {
	Error     string     `json:"error"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// CreatePayment asks the server for a new Pix charge. An active grant comes
// back as *domain.AlreadyEntitledError.
func (a *API) CreatePayment(ctx context.Context, deviceID string) (*Checkout, error) {
	body, _ := json.Marshal(map[string]string{"device_id": deviceID})
	var out struct {
		PaymentID    string      `json:"payment_id"`
		QRCode       string      `json:"qr_code"`
		QRCodeBase64 string      `json:"qr_code_base64"`
		Amount       json.Number `json:"amount"`
		ExpiresAt    time.Time   `json:"expires_at"`
	}
	status, raw, err := a.do(ctx, http.MethodPost, "/payments", body)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
	case http.StatusBadRequest:
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.ExpiresAt != nil {
			return nil, &domain.AlreadyEntitledError{ExpiresAt: *eb.ExpiresAt}
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidArgument, errorText(raw))
	case http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return nil, domain.ErrProcessorUnavailable
	default:
		return nil, fmt.Errorf("%w: create payment: status %d: %s", ErrUnavailable, status, errorText(raw))
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode checkout: %v", ErrUnavailable, err)
	}
	amount, err := decimal.NewFromString(out.Amount.String())
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrUnavailable, out.Amount, err)
	}
	return &Checkout{
		PaymentID:    out.PaymentID,
		QRCode:       out.QRCode,
		QRCodeBase64: out.QRCodeBase64,
		Amount:       amount.Round(2),
		ExpiresAt:    out.ExpiresAt,
	}, nil
}

// Status reads a payment's status. Unknown ids map to domain.ErrPaymentNotFound.
func (a *API) Status(ctx context.Context, paymentID string) (*PaymentStatus, error) {
	status, raw, err := a.do(ctx, http.MethodGet, "/payments?id="+url.QueryEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, domain.ErrPaymentNotFound
	default:
		return nil, fmt.Errorf("%w: payment status: status %d: %s", ErrUnavailable, status, errorText(raw))
	}
	var out struct {
		Status           model.PaymentStatus `json:"status"`
		PaidAt           *time.Time          `json:"paid_at"`
		PremiumExpiresAt *time.Time          `json:"premium_expires_at"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode status: %v", ErrUnavailable, err)
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrUnavailable, out.Status)
	}
	return &PaymentStatus{Status: out.Status, PaidAt: out.PaidAt, PremiumExpiresAt: out.PremiumExpiresAt}, nil
}

// Entitlement asks the server whether the device currently holds premium access.
func (a *API) Entitlement(ctx context.Context, deviceID string) (*Entitlement, error) {
	status, raw, err := a.do(ctx, http.MethodGet, "/entitlements?device_id="+url.QueryEscape(deviceID), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: entitlement: status %d: %s", ErrUnavailable, status, errorText(raw))
	}
	var out struct {
		Active    bool       `json:"active"`
		PaymentID string     `json:"payment_id"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: decode entitlement: %v", ErrUnavailable, err)
	}
	e := &Entitlement{Active: out.Active, PaymentID: out.PaymentID}
	if out.ExpiresAt != nil {
		e.ExpiresAt = *out.ExpiresAt
	}
	return e, nil
}

func (a *API) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, rdr)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	return resp.StatusCode, raw, nil
}

func errorText(raw []byte) string {
	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
		return eb.Error
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
