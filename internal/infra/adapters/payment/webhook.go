package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// VerifyWebhookSignature checks Mercado Pago's x-signature header
// ("ts=<unix>,v1=<hex hmac>") against the manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;". A zero maxAge skips the
// freshness check.
func VerifyWebhookSignature(secret, header, requestID, dataID string, now time.Time, maxAge time.Duration) error {
	if secret == "" {
		return nil
	}
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return ErrBadSignature
	}

	var b strings.Builder
	if dataID != "" {
		b.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if requestID != "" {
		b.WriteString("request-id:" + requestID + ";")
	}
	b.WriteString("ts:" + ts + ";")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(v1))) {
		return ErrBadSignature
	}

	if maxAge > 0 {
		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return ErrBadSignature
		}
		// ts is milliseconds in current deliveries, seconds in older ones.
		sent := time.Unix(n, 0)
		if n > 1e12 {
			sent = time.UnixMilli(n)
		}
		if now.Sub(sent) > maxAge || sent.Sub(now) > maxAge {
			return ErrBadSignature
		}
	}
	return nil
}
