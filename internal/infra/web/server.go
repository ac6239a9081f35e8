package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"guia-paracuru/internal/usecase"
)

// Server is the back-office API: premium terms and revenue figures.
type Server struct {
	settingsUC usecase.SettingsUseCase
	statsUC    usecase.StatsUseCase
	apiKey     string
	auth       *AuthManager
	log        *zerolog.Logger
}

func NewServer(
	settingsUC usecase.SettingsUseCase,
	statsUC usecase.StatsUseCase,
	apiKey string,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "AdminAPI").Logger()
	return &Server{
		settingsUC: settingsUC,
		statsUC:    statsUC,
		apiKey:     apiKey,
		auth:       auth,
		log:        &l,
	}
}

// Handler returns a router with every admin route mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.RegisterRoutes(r)
	return r
}

// RegisterRoutes sets up the routing for the admin API.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Post("/auth/login", s.loginHandler)
		r.Post("/auth/logout", s.logoutHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/settings", s.settingsGetHandler)
			r.Put("/settings", s.settingsPutHandler)
			r.Get("/stats", s.statsHandler)
		})
	})
}

// authMiddleware admits requests carrying a valid admin JWT (bearer or cookie).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := s.auth.ParseFromRequest(r); err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
