package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"guia-paracuru/internal/domain"
	"guia-paracuru/internal/usecase"
)

type loginRequest struct {
	Key string `json:"key"`
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		s.log.Error().Msg("admin auth is not configured")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !keyMatches(req.Key, s.apiKey) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("admin login rejected")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := s.auth.Mint(w); err != nil {
		s.log.Error().Err(err).Msg("mint admin token")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if s.auth != nil {
		s.auth.Clear(w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Prices travel as strings so "1.99" never becomes 1.9899999.
type settingsPayload struct {
	PremiumPrice        string `json:"premium_price"`
	PremiumDurationDays int    `json:"premium_duration_days"`
}

func (s *Server) settingsGetHandler(w http.ResponseWriter, r *http.Request) {
	terms, err := s.settingsUC.Premium(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("read premium terms")
		http.Error(w, "Failed to read settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{
		PremiumPrice:        terms.Price.StringFixed(2),
		PremiumDurationDays: terms.DurationDays,
	})
}

func (s *Server) settingsPutHandler(w http.ResponseWriter, r *http.Request) {
	var req settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	price, err := decimal.NewFromString(req.PremiumPrice)
	if err != nil {
		http.Error(w, "premium_price must be a decimal", http.StatusBadRequest)
		return
	}
	terms := usecase.PremiumTerms{Price: price, DurationDays: req.PremiumDurationDays}
	if err := s.settingsUC.UpdatePremium(r.Context(), terms); err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error().Err(err).Msg("update premium terms")
		http.Error(w, "Failed to update settings", http.StatusInternalServerError)
		return
	}
	s.log.Info().Str("price", price.StringFixed(2)).Int("duration_days", terms.DurationDays).Msg("premium terms updated")
	writeJSON(w, http.StatusOK, settingsPayload{
		PremiumPrice:        price.StringFixed(2),
		PremiumDurationDays: terms.DurationDays,
	})
}

type statsResponse struct {
	Revenue struct {
		Day   string `json:"day"`
		Week  string `json:"week"`
		Month string `json:"month"`
	} `json:"revenue_brl"`
	ActiveEntitlements int `json:"active_entitlements"`
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rev, err := s.statsUC.Revenue(ctx)
	if err != nil {
		http.Error(w, "Failed to get revenue", http.StatusInternalServerError)
		return
	}
	active, err := s.statsUC.ActiveEntitlements(ctx)
	if err != nil {
		http.Error(w, "Failed to count entitlements", http.StatusInternalServerError)
		return
	}

	var resp statsResponse
	resp.Revenue.Day = rev.Day.StringFixed(2)
	resp.Revenue.Week = rev.Week.StringFixed(2)
	resp.Revenue.Month = rev.Month.StringFixed(2)
	resp.ActiveEntitlements = active
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
