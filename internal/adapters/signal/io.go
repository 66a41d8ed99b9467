package signal

import (
	"context"
	"fmt"

	"github.com/dkeye/voicehub/internal/adapters/ws"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// readPump routes inbound frames sequentially, which keeps per-sender order.
// Every exit path unregisters the connection.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, roomID domain.RoomID, key domain.ParticipantID, c *ws.Conn) {
	logger := log.With().Str("module", "signal").Str("room", string(roomID)).Str("participant", string(key)).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Err(fmt.Errorf("panic: %v", r)).Msg("readPump recovered")
		}
		ctl.Hub.UnregisterConn(roomID, c)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(key)
		}
		cancel()
		c.Close()
		logger.Info().Msg("readPump closing")
	}()

	for {
		if ctx.Err() != nil {
			logger.Info().Msg("readPump ctx done")
			return
		}
		kind, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error().Err(err).Msg("readPump read error")
			}
			return
		}
		if kind != websocket.TextMessage {
			logger.Warn().Int("kind", kind).Msg("non-text frame ignored")
			continue
		}
		if ctl.Limiter != nil && !ctl.Limiter.Allow(key) {
			logger.Warn().Msg("rate limited, frame dropped")
			continue
		}
		ctl.handleSignal(roomID, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(roomID domain.RoomID, c *ws.Conn, data []byte) {
	msg, err := domain.ParseMessage(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("room", string(roomID)).Msg("bad json")
		return
	}
	if msg.Type == domain.TypeLeave {
		// leave is relayed; the socket stays open until the peer closes it
		log.Info().Str("module", "signal").Str("room", string(roomID)).Str("participant", string(msg.From)).Msg("leave")
	}
	res := ctl.Hub.Route(roomID, c, msg)
	if len(res.Dropped) > 0 {
		log.Warn().Str("module", "signal").Str("room", string(roomID)).Str("type", msg.Type).Int("dropped", len(res.Dropped)).Msg("delivery failures")
	}
}
