package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/domain/model"
	"guia-paracuru/internal/infra/adapters/payment"
	"guia-paracuru/internal/infra/logging"
	"guia-paracuru/internal/infra/metrics"
	"guia-paracuru/internal/usecase"
)

const maxBodyBytes = 64 << 10

// Server exposes the device-facing payment contract and the processor webhook.
type Server struct {
	payUC         usecase.PaymentUseCase
	entUC         usecase.EntitlementUseCase
	webhookSecret string
	dev           bool
	log           *zerolog.Logger
}

func NewServer(payUC usecase.PaymentUseCase, entUC usecase.EntitlementUseCase, webhookSecret string, dev bool, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "API").Logger()
	return &Server{payUC: payUC, entUC: entUC, webhookSecret: webhookSecret, dev: dev, log: &l}
}

// Options configures the router built by Handler.
type Options struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	Metrics        bool // mount /metrics
}

// Handler builds the public router with the standard middleware stack.
func (s *Server) Handler(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.log), TraceID(), RequestLog(s.log), CORS(opts.AllowedOrigins))
	if opts.RequestTimeout > 0 {
		r.Use(Timeout(opts.RequestTimeout))
	}
	s.Register(r)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// Register attaches the payment routes to r.
func (s *Server) Register(r chi.Router) {
	r.Post("/payments", s.handleCreatePayment)
	r.Get("/payments", s.handleGetStatus)
	r.Post("/payments/webhook", s.handleWebhook)
	r.Get("/entitlements", s.handleEntitlement)
}

type createPaymentRequest struct {
	DeviceID string `json:"device_id"`
}

type createPaymentResponse struct {
	PaymentID    string    `json:"payment_id"`
	QRCode       string    `json:"qr_code"`
	QRCodeBase64 string    `json:"qr_code_base64"`
	Amount       float64   `json:"amount"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || strings.TrimSpace(req.DeviceID) == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	ctx := logging.WithDeviceID(r.Context(), logging.Redact(req.DeviceID, s.dev))

	p, err := s.payUC.CreatePayment(ctx, req.DeviceID)
	if err != nil {
		var already *domain.AlreadyEntitledError
		switch {
		case errors.As(err, &already):
			metrics.IncPaymentCreated("already_entitled")
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":      domain.ErrAlreadyEntitled.Error(),
				"expires_at": already.ExpiresAt,
			})
		case errors.Is(err, domain.ErrInvalidArgument):
			metrics.IncPaymentCreated("invalid")
			writeError(w, http.StatusBadRequest, "device_id is required")
		case errors.Is(err, domain.ErrRateLimited):
			metrics.IncPaymentCreated("rate_limited")
			writeError(w, http.StatusTooManyRequests, "too many payment attempts, try again later")
		case errors.Is(err, domain.ErrProcessorUnavailable):
			metrics.IncPaymentCreated("processor_error")
			writeError(w, http.StatusBadGateway, "payment processor unavailable")
		default:
			metrics.IncPaymentCreated("error")
			l := logging.With(ctx, s.log)
			l.Error().Err(err).Msg("create payment failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	metrics.IncPaymentCreated("created")
	writeJSON(w, http.StatusCreated, createPaymentResponse{
		PaymentID:    p.ID,
		QRCode:       deref(p.QRCode),
		QRCodeBase64: deref(p.QRCodeImage),
		Amount:       p.Amount.InexactFloat64(),
		ExpiresAt:    p.ExpiresAt,
	})
}

type statusResponse struct {
	Status           model.PaymentStatus `json:"status"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
	PremiumExpiresAt *time.Time          `json:"premium_expires_at,omitempty"`
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	ctx := logging.WithPaymentID(r.Context(), id)

	view, err := s.payUC.GetStatus(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "payment not found")
		return
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "id is required")
		return
	case err != nil:
		l := logging.With(ctx, s.log)
		l.Error().Err(err).Msg("get status failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	metrics.IncPaymentStatus(string(view.Status))
	writeJSON(w, http.StatusOK, toStatusResponse(view))
}

func toStatusResponse(v *usecase.PaymentStatusView) statusResponse {
	out := statusResponse{Status: v.Status}
	if v.Status == model.PaymentStatusApproved {
		out.PaidAt, out.PremiumExpiresAt = v.PaidAt, v.PremiumExpiresAt
	}
	return out
}

type entitlementResponse struct {
	Active    bool       `json:"active"`
	PaymentID string     `json:"payment_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (s *Server) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSpace(r.URL.Query().Get("device_id"))
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	e, err := s.entUC.Active(r.Context(), deviceID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusOK, entitlementResponse{Active: false})
		return
	case err != nil:
		s.log.Error().Err(err).Msg("entitlement lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	exp := e.ExpiresAt
	writeJSON(w, http.StatusOK, entitlementResponse{Active: true, PaymentID: e.PaymentID, ExpiresAt: &exp})
}

type webhookBody struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var body webhookBody
	_ = json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body)

	q := r.URL.Query()
	dataID := strings.Trim(string(body.Data.ID), `"`)
	if dataID == "" {
		dataID = q.Get("data.id")
	}
	if dataID == "" && q.Get("topic") == "payment" {
		dataID = q.Get("id")
	}
	kind := body.Type
	if kind == "" {
		kind = q.Get("type")
	}

	if err := payment.VerifyWebhookSignature(s.webhookSecret, r.Header.Get("x-signature"), r.Header.Get("x-request-id"), dataID, time.Now(), 0); err != nil {
		s.log.Warn().Str("data_id", dataID).Msg("webhook signature rejected")
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	if dataID == "" || (kind != "" && kind != "payment") {
		writeJSON(w, http.StatusOK, map[string]string{"result": "ignored"})
		return
	}

	view, err := s.payUC.HandleNotification(r.Context(), dataID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.log.Info().Str("external_id", dataID).Msg("webhook for unknown payment")
		writeJSON(w, http.StatusOK, map[string]string{"result": "ignored"})
		return
	case err != nil:
		s.log.Error().Err(err).Str("external_id", dataID).Msg("webhook handling failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "ok", "status": string(view.Status)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
