//go:build !integration

package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain/ports/adapter"
)

func newTestMercadoPago(t *testing.T, h http.HandlerFunc) *MercadoPagoProcessor {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger := zerolog.Nop()
	mp, err := NewMercadoPagoProcessor(MercadoPagoConfig{
		BaseURL:       srv.URL,
		AccessToken:   "TEST-token",
		PayerEmail:    "payer@test.dev",
		Timeout:       2 * time.Second,
		Retry:         RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		RatePerSecond: 1000,
	}, &logger)
	if err != nil {
		t.Fatalf("new processor: %v", err)
	}
	return mp
}

const mpCreated = `{
  "id": 123,
  "status": "pending",
  "status_detail": "pending_waiting_transfer",
  "point_of_interaction": {"transaction_data": {"qr_code": "00020101021226...6304ABCD", "qr_code_base64": "iVBORw0KGgo="}}
}`

func TestMercadoPago_CreateCharge(t *testing.T) {
	ctx := context.Background()
	req := adapter.ChargeRequest{
		Amount:         decimal.RequireFromString("1.99"),
		Description:    "Guia Paracuru Premium",
		IdempotencyKey: "pay-1",
		Reference:      "pay-1",
		ExpiresAt:      time.Date(2026, 1, 10, 12, 30, 0, 0, time.UTC),
	}

	t.Run("should retry server errors with the same idempotency key", func(t *testing.T) {
		// --- Arrange ---
		var (
			calls atomic.Int32
			mu    sync.Mutex
			keys  []string
			body  map[string]any
		)
		mp := newTestMercadoPago(t, func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			keys = append(keys, r.Header.Get("X-Idempotency-Key"))
			mu.Unlock()
			if r.Method != http.MethodPost || r.URL.Path != "/v1/payments" || r.Header.Get("Authorization") != "Bearer TEST-token" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(mpCreated))
		})

		// --- Act ---
		c, err := mp.CreateCharge(ctx, req)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if c.ExternalID != "123" || c.Status != adapter.ChargeStatusPending || c.QRCodeImage != "iVBORw0KGgo=" {
			t.Errorf("unexpected charge %+v", c)
		}
		if len(keys) != 2 || keys[0] != "pay-1" || keys[1] != "pay-1" {
			t.Errorf("expected the idempotency key on both attempts, got %v", keys)
		}
		if body["transaction_amount"] != 1.99 || body["payment_method_id"] != "pix" || body["external_reference"] != "pay-1" {
			t.Errorf("unexpected request body %v", body)
		}
		if body["date_of_expiration"] != "2026-01-10T12:30:00.000+00:00" {
			t.Errorf("unexpected expiration %v", body["date_of_expiration"])
		}
	})

	t.Run("should not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		mp := newTestMercadoPago(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"message":"invalid payer"}`))
		})

		_, err := mp.CreateCharge(ctx, req)

		var he *HTTPError
		if !errors.As(err, &he) || he.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected HTTPError 400, got %v", err)
		}
		if !errors.Is(err, adapter.ErrTransport) {
			t.Error("expected ErrTransport in chain")
		}
		if calls.Load() != 1 {
			t.Errorf("expected one call, got %d", calls.Load())
		}
	})

	t.Run("should give up after the retry budget", func(t *testing.T) {
		var calls atomic.Int32
		mp := newTestMercadoPago(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		_, err := mp.CreateCharge(ctx, req)

		if !errors.Is(err, adapter.ErrTransport) {
			t.Fatalf("expected ErrTransport, got %v", err)
		}
		if calls.Load() != 3 {
			t.Errorf("expected 3 attempts, got %d", calls.Load())
		}
	})

	t.Run("should render the qr image when the processor omits it", func(t *testing.T) {
		mp := newTestMercadoPago(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 7, "status": "pending", "point_of_interaction": {"transaction_data": {"qr_code": "000201"}}}`))
		})

		c, err := mp.CreateCharge(ctx, req)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if c.QRCodeImage == "" {
			t.Error("expected a locally rendered image")
		}
	})
}

func TestMercadoPago_GetChargeStatus(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		status, detail string
		want           adapter.ChargeStatus
	}{
		{"pending", "pending_waiting_transfer", adapter.ChargeStatusPending},
		{"in_process", "", adapter.ChargeStatusPending},
		{"approved", "accredited", adapter.ChargeStatusApproved},
		{"rejected", "cc_rejected_other_reason", adapter.ChargeStatusRejected},
		{"cancelled", "expired", adapter.ChargeStatusExpired},
		{"cancelled", "by_collector", adapter.ChargeStatusRejected},
	}
	for _, tc := range cases {
		t.Run("should map "+tc.status+"/"+tc.detail, func(t *testing.T) {
			mp := newTestMercadoPago(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/payments/123" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id": 123, "status": tc.status, "status_detail": tc.detail,
					"date_approved": "2026-01-10T09:05:00.000-03:00",
				})
			})

			st, err := mp.GetChargeStatus(ctx, "123")

			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if st.Status != tc.want {
				t.Errorf("expected %s, got %s", tc.want, st.Status)
			}
			if tc.want == adapter.ChargeStatusApproved {
				if st.PaidAt == nil || !st.PaidAt.Equal(time.Date(2026, 1, 10, 12, 5, 0, 0, time.UTC)) {
					t.Errorf("unexpected paid_at %v", st.PaidAt)
				}
			} else if st.PaidAt != nil {
				t.Errorf("expected no paid_at, got %v", st.PaidAt)
			}
		})
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	now := time.UnixMilli(1767960000000)
	sign := func(secret, manifest string) string {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(manifest))
		return hex.EncodeToString(mac.Sum(nil))
	}
	manifest := "id:123;request-id:req-1;ts:1767960000000;"

	t.Run("should accept a valid signature", func(t *testing.T) {
		header := "ts=1767960000000,v1=" + sign("s3cret", manifest)

		if err := VerifyWebhookSignature("s3cret", header, "req-1", "123", now, 5*time.Minute); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("should reject a tampered or stale signature", func(t *testing.T) {
		header := "ts=1767960000000,v1=" + sign("s3cret", manifest)

		if err := VerifyWebhookSignature("s3cret", header, "req-1", "999", now, 0); !errors.Is(err, ErrBadSignature) {
			t.Errorf("expected ErrBadSignature for other id, got %v", err)
		}
		if err := VerifyWebhookSignature("s3cret", header, "req-1", "123", now.Add(time.Hour), 5*time.Minute); !errors.Is(err, ErrBadSignature) {
			t.Errorf("expected ErrBadSignature for stale ts, got %v", err)
		}
		if err := VerifyWebhookSignature("s3cret", "garbage", "req-1", "123", now, 0); !errors.Is(err, ErrBadSignature) {
			t.Errorf("expected ErrBadSignature for malformed header, got %v", err)
		}
	})

	t.Run("should skip verification without a secret", func(t *testing.T) {
		if err := VerifyWebhookSignature("", "", "", "123", now, 0); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})
}
