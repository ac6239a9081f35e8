package payment

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

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"guia-paracuru/internal/domain/ports/adapter"
)

var _ adapter.PixProcessor = (*MercadoPagoProcessor)(nil)

const mpExpirationLayout = "2006-01-02T15:04:05.000-07:00"

// MercadoPagoConfig wires the Mercado Pago Payments API.
type MercadoPagoConfig struct {
	BaseURL         string
	AccessToken     string
	PayerEmail      string
	NotificationURL string
	Timeout         time.Duration
	Retry           RetryConfig
	RatePerSecond   float64
}

// MercadoPagoProcessor issues Pix charges through POST /v1/payments and reads
// them back through GET /v1/payments/{id}.
type MercadoPagoProcessor struct {
	baseURL         string
	token           string
	payerEmail      string
	notificationURL string
	client          *http.Client
	retry           RetryConfig
	limiter         *rate.Limiter
	log             *zerolog.Logger
}

func NewMercadoPagoProcessor(cfg MercadoPagoConfig, logger *zerolog.Logger) (*MercadoPagoProcessor, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("mercadopago: access token empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.mercadopago.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}
	l := logger.With().Str("component", "MercadoPago").Logger()
	return &MercadoPagoProcessor{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		token:           cfg.AccessToken,
		payerEmail:      cfg.PayerEmail,
		notificationURL: cfg.NotificationURL,
		client:          &http.Client{Timeout: cfg.Timeout},
		retry:           cfg.Retry,
		limiter:         rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		log:             &l,
	}, nil
}

func (m *MercadoPagoProcessor) Name() string { return "mercadopago" }

type mpCreateRequest struct {
	TransactionAmount json.Number `json:"transaction_amount"`
	Description       string      `json:"description"`
	PaymentMethodID   string      `json:"payment_method_id"`
	ExternalReference string      `json:"external_reference"`
	DateOfExpiration  string      `json:"date_of_expiration,omitempty"`
	NotificationURL   string      `json:"notification_url,omitempty"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
}

type mpPayment struct {
	ID                 int64   `json:"id"`
	Status             string  `json:"status"`
	StatusDetail       string  `json:"status_detail"`
	DateApproved       *string `json:"date_approved"`
	ExternalReference  string  `json:"external_reference"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

func (m *MercadoPagoProcessor) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (*adapter.Charge, error) {
	if req.IdempotencyKey == "" || !req.Amount.IsPositive() {
		return nil, errors.New("mercadopago: idempotency key and positive amount required")
	}
	body := mpCreateRequest{
		TransactionAmount: json.Number(req.Amount.StringFixed(2)),
		Description:       req.Description,
		PaymentMethodID:   "pix",
		ExternalReference: req.Reference,
		NotificationURL:   m.notificationURL,
	}
	body.Payer.Email = m.payerEmail
	if !req.ExpiresAt.IsZero() {
		body.DateOfExpiration = req.ExpiresAt.Format(mpExpirationLayout)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	out, err := withRetry(ctx, m.retry, func(ctx context.Context) (*mpPayment, error) {
		return m.do(ctx, "create_charge", http.MethodPost, "/v1/payments", payload, req.IdempotencyKey)
	})
	if err != nil {
		return nil, err
	}

	data := out.PointOfInteraction.TransactionData
	if out.ID == 0 || data.QRCode == "" {
		return nil, fmt.Errorf("%w: mercadopago returned no pix data", adapter.ErrTransport)
	}
	image := data.QRCodeBase64
	if image == "" {
		if image, err = RenderQRBase64(data.QRCode); err != nil {
			m.log.Warn().Err(err).Int64("mp_id", out.ID).Msg("local qr rendering failed")
		}
	}
	return &adapter.Charge{
		ExternalID:  strconv.FormatInt(out.ID, 10),
		QRCode:      data.QRCode,
		QRCodeImage: image,
		Status:      mapMPStatus(out.Status, out.StatusDetail),
	}, nil
}

func (m *MercadoPagoProcessor) GetChargeStatus(ctx context.Context, externalID string) (*adapter.ChargeState, error) {
	if externalID == "" {
		return nil, errors.New("mercadopago: external id empty")
	}
	out, err := withRetry(ctx, m.retry, func(ctx context.Context) (*mpPayment, error) {
		return m.do(ctx, "get_status", http.MethodGet, "/v1/payments/"+externalID, nil, "")
	})
	if err != nil {
		return nil, err
	}
	st := &adapter.ChargeState{Status: mapMPStatus(out.Status, out.StatusDetail)}
	if st.Status == adapter.ChargeStatusApproved && out.DateApproved != nil {
		if t, perr := time.Parse(time.RFC3339Nano, *out.DateApproved); perr == nil {
			st.PaidAt = &t
		}
	}
	return st, nil
}

func (m *MercadoPagoProcessor) do(ctx context.Context, op, method, path string, body []byte, idempotencyKey string) (*mpPayment, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", adapter.ErrTransport, op, err)
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", adapter.ErrTransport, op, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: read body: %v", adapter.ErrTransport, op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		m.log.Warn().Str("op", op).Int("status", resp.StatusCode).Msg("mercadopago request failed")
		return nil, &HTTPError{Op: op, StatusCode: resp.StatusCode, Body: clip(string(raw), 512)}
	}

	var out mpPayment
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", adapter.ErrTransport, op, err)
	}
	return &out, nil
}

// mapMPStatus folds Mercado Pago's payment statuses onto ours. A Pix charge
// that times out at the processor comes back cancelled/expired.
func mapMPStatus(status, detail string) adapter.ChargeStatus {
	switch status {
	case "approved":
		return adapter.ChargeStatusApproved
	case "rejected":
		return adapter.ChargeStatusRejected
	case "cancelled":
		if detail == "expired" {
			return adapter.ChargeStatusExpired
		}
		return adapter.ChargeStatusRejected
	default:
		// pending, in_process, authorized, in_mediation, ...
		return adapter.ChargeStatusPending
	}
}
