package ws

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/webitel/im-presence-service/config"
	"github.com/webitel/im-presence-service/internal/adapter/auth"
	"github.com/webitel/im-presence-service/internal/domain/registry"
	"github.com/webitel/im-presence-service/internal/service"
)

type WSHandler struct {
	logger    *slog.Logger
	deliverer service.Deliverer
	relayer   service.Relayer
	upgrader  websocket.Upgrader
	cfg       config.WSConfig
}

func NewWSHandler(logger *slog.Logger, deliverer service.Deliverer, relayer service.Relayer, cfg *config.Config) *WSHandler {
	origins := cfg.WS.AllowedOrigins

	return &WSHandler{
		logger:    logger,
		deliverer: deliverer,
		relayer:   relayer,
		cfg:       cfg.WS,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 || slices.Contains(origins, "*") {
					return true
				}
				return slices.Contains(origins, r.Header.Get("Origin"))
			},
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 1. IDENTITY SOURCE: the auth middleware already inspected the token (if any).
	principal := auth.FromContext(r.Context())

	// 2. UPGRADE TO WEBSOCKET
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		h.logger.Warn("WS_UPGRADE_FAILED", "remote", r.RemoteAddr, "err", err)
		return
	}

	meta := registry.ConnectMetadata{
		Platform:  r.URL.Query().Get("platform"),
		RemoteIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}

	// 3. RUN THE SESSION UNTIL EITHER SIDE GOES AWAY
	s := newSession(h, ws, principal, meta)
	s.run(r.Context())
}
