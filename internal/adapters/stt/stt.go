// Package stt serves the caption websocket channel: binary frames carry
// PCM16LE audio of the authenticated speaker, outbound frames are captions
// for the whole room.
package stt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicehub/internal/adapters/auth"
	"github.com/dkeye/voicehub/internal/adapters/ws"
	appstt "github.com/dkeye/voicehub/internal/app/stt"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	errMissingParam = errors.New("missing token, room_id or user_id")
	errNoVerifier   = errors.New("token verification not configured")
)

type STTWSController struct {
	STT  *appstt.Service
	Auth *auth.Verifier
	WS   ws.Options

	// AllowUnsigned accepts any non-empty token when Auth is nil.
	// Only debug mode sets it.
	AllowUnsigned bool
}

func NewSTTWSController(svc *appstt.Service, verifier *auth.Verifier, opts ws.Options) *STTWSController {
	return &STTWSController{STT: svc, Auth: verifier, WS: opts}
}

func (ctl *STTWSController) authorize(c *gin.Context) (domain.RoomID, domain.SpeakerID, error) {
	token := c.Query("token")
	rawRoom, rawUser := c.Query("room_id"), c.Query("user_id")
	if token == "" || rawRoom == "" || rawUser == "" {
		return "", "", errMissingParam
	}
	room, err := domain.ParseRoomID(rawRoom)
	if err != nil {
		return "", "", err
	}
	speaker, err := domain.ParseSpeakerID(rawUser)
	if err != nil {
		return "", "", err
	}
	if ctl.Auth == nil {
		if !ctl.AllowUnsigned {
			return "", "", errNoVerifier
		}
		return room, speaker, nil
	}
	if _, err := ctl.Auth.Verify(token, room, speaker); err != nil {
		return "", "", err
	}
	return room, speaker, nil
}

// HandleSTT upgrades, authenticates and runs one caption connection.
// Rejections close with 1008 before anything is registered.
func (ctl *STTWSController) HandleSTT(ctx context.Context, c *gin.Context) {
	sock, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "stt.ws").Msg("ws upgrade")
		return
	}

	room, speaker, err := ctl.authorize(c)
	if err != nil {
		log.Warn().Err(err).Str("module", "stt.ws").Msg("rejecting connection")
		ws.CloseWith(sock, websocket.ClosePolicyViolation, "unauthorized")
		return
	}

	conn := ws.NewConn(sock, ctl.WS, "stt.ws")
	ctl.STT.RegisterConnection(room, speaker, conn)

	ctx, cancel := context.WithCancel(ctx)
	go conn.WritePump(ctx)
	go ctl.readPump(ctx, cancel, room, speaker, conn)
}

func (ctl *STTWSController) readPump(ctx context.Context, cancel context.CancelFunc, room domain.RoomID, speaker domain.SpeakerID, c *ws.Conn) {
	logger := log.With().Str("module", "stt.ws").Str("room", string(room)).Str("speaker", string(speaker)).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Err(fmt.Errorf("panic: %v", r)).Msg("readPump recovered")
		}
		ctl.STT.UnregisterConnection(room, speaker, c)
		cancel()
		c.Close()
		logger.Info().Msg("readPump closing")
	}()

	for ctx.Err() == nil {
		kind, data, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Error().Err(err).Msg("readPump read error")
			}
			return
		}
		switch kind {
		case websocket.BinaryMessage:
			if c.Closed() {
				// evicted by a failed caption send
				return
			}
			ctl.STT.PushAudioChunk(room, speaker, data)
		case websocket.TextMessage:
			if isStop(data) {
				logger.Info().Msg("stop requested")
				return
			}
		}
	}
}

func isStop(data []byte) bool {
	var env struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(data, &env) == nil && env.Type == "stop"
}
