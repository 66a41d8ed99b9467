// Package signal serves the signaling websocket channel: one socket per
// participant, frames routed through the hub.
package signal

import (
	"context"
	"time"

	"github.com/dkeye/voicehub/internal/adapters/ws"
	"github.com/dkeye/voicehub/internal/app"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type SignalWSController struct {
	Hub       *app.Hub
	Limiter   *RateLimiter
	WS        ws.Options
	Keepalive time.Duration
}

func NewSignalWSController(hub *app.Hub, limiter *RateLimiter, opts ws.Options, keepalive time.Duration) *SignalWSController {
	if keepalive <= 0 {
		keepalive = 20 * time.Second
	}
	return &SignalWSController{
		Hub:       hub,
		Limiter:   limiter,
		WS:        opts,
		Keepalive: keepalive,
	}
}

func provisionalID() domain.ParticipantID {
	return domain.ParticipantID("conn-" + uuid.NewString())
}

// HandleSignal upgrades the request and runs the connection until the peer
// leaves or ctx ends. Pumps run on their own goroutines.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sock, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	roomID, err := domain.ParseRoomID(c.Param("room"))
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("rejecting connection")
		ws.CloseWith(sock, websocket.ClosePolicyViolation, "invalid room")
		return
	}

	id := provisionalID()
	conn := ws.NewConn(sock, ctl.WS, "signal")
	ctl.Hub.Register(roomID, id, conn)
	log.Info().Str("module", "signal").Str("room", string(roomID)).Str("participant", string(id)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	ctx, cancel := context.WithCancel(ctx)
	go conn.WritePump(ctx)
	go ctl.Hub.Keepalive(ctx, roomID, conn, ctl.Keepalive)
	go ctl.readPump(ctx, cancel, roomID, id, conn)
}
