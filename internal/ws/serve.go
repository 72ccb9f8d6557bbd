package ws

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/partnerdesk/api/internal/auth"
	"github.com/partnerdesk/api/internal/feed"
	"github.com/partnerdesk/api/internal/lifecycle"
	"github.com/partnerdesk/api/internal/notify"
	"github.com/partnerdesk/api/internal/view"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Connections authenticate with a token, so any origin may connect.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Feed is the change feed a view subscribes to. Satisfied by *feed.Hub.
type Feed interface {
	Subscribe(table string, locationID uuid.UUID) *feed.Subscription
	Unsubscribe(sub *feed.Subscription)
}

// Handler upgrades list view connections.
type Handler struct {
	feed      Feed
	lister    view.Lister
	actions   view.Actions
	jwtSecret string
	pageSize  int
	debounce  time.Duration
	poll      time.Duration
	log       *zap.Logger
}

// Options tunes per-connection refresh behaviour.
type Options struct {
	PageSize int
	Debounce time.Duration
	// Poll is the fallback refetch interval. Zero disables polling.
	Poll time.Duration
}

// NewHandler creates a Handler.
func NewHandler(hub Feed, lister view.Lister, actions view.Actions, jwtSecret string, opts Options, log *zap.Logger) *Handler {
	if opts.Debounce <= 0 {
		opts.Debounce = notify.DefaultDebounce
	}
	return &Handler{
		feed:      hub,
		lister:    lister,
		actions:   actions,
		jwtSecret: jwtSecret,
		pageSize:  opts.PageSize,
		debounce:  opts.Debounce,
		poll:      opts.Poll,
		log:       log,
	}
}

// ServeWS handles WebSocket requests from partner dashboards.
// Endpoint: WS /ws/locations/{lid}/flows/{flow}?token=JWT
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := auth.ValidateToken(h.jwtSecret, tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	locationID, err := uuid.Parse(chi.URLParam(r, "lid"))
	if err != nil {
		http.Error(w, "invalid location id", http.StatusBadRequest)
		return
	}
	if !claims.CanAccessLocation(locationID) {
		http.Error(w, "location access denied", http.StatusForbidden)
		return
	}

	flow, ok := lifecycle.FlowBySlug(chi.URLParam(r, "flow"))
	if !ok {
		http.Error(w, "unknown flow", http.StatusNotFound)
		return
	}
	if !claims.CanAccessPartnerType(flow.PartnerType) {
		http.Error(w, "flow not available for this partner", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.Error(err))
		return
	}

	ctrl := view.NewController(flow, locationID, claims.UserID, h.pageSize, h.lister, h.actions)
	log := h.log.With(
		zap.String("flow", flow.Slug),
		zap.String("location_id", locationID.String()),
		zap.String("user_id", claims.UserID.String()),
	)
	client := newClient(conn, h.feed, ctrl, h.debounce, h.poll, log)
	client.start(locationID)
}
