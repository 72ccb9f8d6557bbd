package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/partnerdesk/api/internal/config"
	"github.com/partnerdesk/api/internal/enum"
	"github.com/partnerdesk/api/internal/handler"
	mw "github.com/partnerdesk/api/internal/middleware"
	"github.com/partnerdesk/api/internal/ws"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Store is the row store surface the HTTP layer reads from.
// Satisfied by *postgres.Store.
type Store interface {
	handler.FlowStore
	handler.UnreadStore
	handler.CatalogueStore
}

// New creates a Chi router with all application routes wired up.
// Applies authentication, location scoping, and role-based middleware as needed.
func New(cfg *config.Config, st Store, svc handler.FlowServicer, hub ws.Feed, log *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// WebSocket route (handles auth internally via query param)
	wsHandler := ws.NewHandler(hub, st, svc, cfg.JWTSecret, ws.Options{
		PageSize: cfg.PageSize,
		Debounce: cfg.RefetchDebounce,
		Poll:     cfg.PollFallback,
	}, log)
	r.Get("/ws/locations/{lid}/flows/{flow}", wsHandler.ServeWS)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))
		r.Use(mw.RequireRole(enum.RolePartner, enum.RoleAdmin))

		r.Route("/locations/{lid}", func(r chi.Router) {
			r.Use(mw.RequireLocation)

			flowHandler := handler.NewFlowHandler(st, svc, cfg.PageSize, log)
			r.Route("/flows", flowHandler.RegisterRoutes)

			unreadHandler := handler.NewUnreadHandler(st, log)
			unreadHandler.RegisterRoutes(r)

			catalogueHandler := handler.NewCatalogueHandler(st, log)
			catalogueHandler.RegisterRoutes(r)
		})
	})

	log.Info("router initialized")
	return r
}
