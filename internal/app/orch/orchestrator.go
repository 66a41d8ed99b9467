package orch

import (
	"context"
	"sort"

	"github.com/dkeye/voicehub/internal/app"
	"github.com/dkeye/voicehub/internal/app/stt"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/rs/zerolog/log"
)

// Orchestrator owns both subsystems. They share only room ids.
type Orchestrator struct {
	Hub *app.Hub
	STT *stt.Service
}

func New(hub *app.Hub, svc *stt.Service) *Orchestrator {
	return &Orchestrator{Hub: hub, STT: svc}
}

type RoomView struct {
	Room     domain.RoomID      `json:"room"`
	Members  int                `json:"members"`
	Speakers []stt.SpeakerStats `json:"speakers"`
}

// Rooms merges the signaling rooms with rooms that only have caption connections.
func (o *Orchestrator) Rooms() []RoomView {
	views := make(map[domain.RoomID]*RoomView)
	for _, info := range o.Hub.List() {
		views[info.Room] = &RoomView{Room: info.Room, Members: info.MemberCount}
	}
	if o.STT != nil {
		for _, id := range o.STT.Rooms() {
			v, ok := views[id]
			if !ok {
				v = &RoomView{Room: id}
				views[id] = v
			}
			v.Speakers = o.STT.Speakers(id)
		}
	}

	out := make([]RoomView, 0, len(views))
	for _, v := range views {
		if v.Speakers == nil {
			v.Speakers = []stt.SpeakerStats{}
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

func (o *Orchestrator) Shutdown(ctx context.Context) error {
	if o.STT == nil {
		return nil
	}
	if err := o.STT.Shutdown(ctx); err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("stt shutdown")
		return err
	}
	return nil
}
