// Package rtc builds the ICE server list handed to browsers for their peer
// connections. Media never touches this server.
package rtc

import (
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{defaultSTUN},
			},
		},
	}
}

type ICEOptions struct {
	STUN           []string
	TURN           []string
	TURNUsername   string
	TURNCredential string
}

// Configuration returns the client-facing ICE configuration. TURN URLs are
// left out when credentials are incomplete.
func Configuration(o ICEOptions) webrtc.Configuration {
	stun := clean(o.STUN)
	if len(stun) == 0 && len(o.TURN) == 0 {
		return DefaultWebRTCConfig()
	}

	var servers []webrtc.ICEServer
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if turn := clean(o.TURN); len(turn) > 0 {
		if strings.TrimSpace(o.TURNUsername) == "" || strings.TrimSpace(o.TURNCredential) == "" {
			log.Warn().Str("module", "rtc").Strs("turn", turn).Msg("TURN configured without credentials, skipped")
		} else {
			servers = append(servers, webrtc.ICEServer{
				URLs:       turn,
				Username:   o.TURNUsername,
				Credential: o.TURNCredential,
			})
		}
	}
	if len(servers) == 0 {
		return DefaultWebRTCConfig()
	}
	return webrtc.Configuration{ICEServers: servers}
}

func clean(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
