package app

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/rs/zerolog/log"
)

type member struct {
	id    domain.ParticipantID
	conn  core.Connection
	bound bool // identity fixed by a join
}

type room struct {
	byID   map[domain.ParticipantID]*member
	byConn map[core.Connection]*member
}

func newRoom() *room {
	return &room{
		byID:   make(map[domain.ParticipantID]*member),
		byConn: make(map[core.Connection]*member),
	}
}

func (r *room) add(m *member) {
	r.byID[m.id] = m
	r.byConn[m.conn] = m
}

func (r *room) remove(m *member) {
	if r.byID[m.id] == m {
		delete(r.byID, m.id)
	}
	if r.byConn[m.conn] == m {
		delete(r.byConn, m.conn)
	}
}

func (r *room) empty() bool { return len(r.byID) == 0 }

type target struct {
	id   domain.ParticipantID
	conn core.Connection
}

// PublishResult reports delivery stats for one routed frame.
type PublishResult struct {
	SendTo  int
	Dropped []domain.ParticipantID
}

type RoomInfo struct {
	Room        domain.RoomID `json:"room"`
	MemberCount int           `json:"member_count"`
}

// Hub tracks room membership and routes signaling frames.
// It never closes a connection except when evicting one that failed a send.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]*room
	policy Policy
}

func NewHub(policy Policy) *Hub {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Hub{
		rooms:  make(map[domain.RoomID]*room),
		policy: policy,
	}
}

// Register adds conn under id, replacing any earlier connection held by id.
func (h *Hub) Register(roomID domain.RoomID, id domain.ParticipantID, conn core.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = newRoom()
		h.rooms[roomID] = r
	}
	if prev, ok := r.byConn[conn]; ok {
		r.remove(prev)
	}
	if old, ok := r.byID[id]; ok {
		r.remove(old)
		log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("participant", string(id)).Msg("replaced connection")
	}
	r.add(&member{id: id, conn: conn})
	log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("participant", string(id)).Int("members", len(r.byID)).Msg("member registered")
}

// Route delivers msg within roomID on behalf of the sending connection.
func (h *Hub) Route(roomID domain.RoomID, from core.Connection, msg domain.Message) PublishResult {
	switch {
	case msg.Type == domain.TypeJoin:
		if !h.bind(roomID, from, msg.From) {
			return PublishResult{}
		}
		return h.deliver(roomID, h.others(roomID, from), msg.Raw)
	case !msg.Broadcast():
		return h.deliver(roomID, h.lookup(roomID, msg.To), msg.Raw)
	default:
		return h.deliver(roomID, h.others(roomID, from), msg.Raw)
	}
}

// bind fixes the participant id of conn on its first join. A connection that
// is not a member yet is registered under id.
func (h *Hub) bind(roomID domain.RoomID, conn core.Connection, id domain.ParticipantID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		if id == "" {
			return false
		}
		r = newRoom()
		h.rooms[roomID] = r
	}
	m, ok := r.byConn[conn]
	if !ok {
		if id == "" {
			return false
		}
		if old, ok := r.byID[id]; ok {
			r.remove(old)
		}
		r.add(&member{id: id, conn: conn, bound: true})
		log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("participant", string(id)).Msg("joined")
		return true
	}
	if id == "" || id == m.id {
		m.bound = true
		return true
	}
	if m.bound {
		log.Warn().Str("module", "app.hub").Str("room", string(roomID)).Str("participant", string(m.id)).Str("claimed", string(id)).Msg("join with different id ignored")
		return false
	}
	if old, ok := r.byID[id]; ok {
		r.remove(old)
	}
	r.remove(m)
	m.id = id
	m.bound = true
	r.add(m)
	log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("participant", string(id)).Msg("joined")
	return true
}

// Unregister removes id only while it still refers to conn.
func (h *Hub) Unregister(roomID domain.RoomID, id domain.ParticipantID, conn core.Connection) bool {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	m, ok := r.byID[id]
	if !ok || m.conn != conn {
		h.mu.Unlock()
		return false
	}
	h.removeLocked(roomID, r, m)
	h.mu.Unlock()

	h.notifyLeft(roomID, id)
	return true
}

// UnregisterConn removes whatever identity conn currently holds in roomID.
func (h *Hub) UnregisterConn(roomID domain.RoomID, conn core.Connection) bool {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	m, ok := r.byConn[conn]
	if !ok {
		h.mu.Unlock()
		return false
	}
	id := m.id
	h.removeLocked(roomID, r, m)
	h.mu.Unlock()

	h.notifyLeft(roomID, id)
	return true
}

func (h *Hub) removeLocked(roomID domain.RoomID, r *room, m *member) {
	r.remove(m)
	if r.empty() {
		delete(h.rooms, roomID)
	}
	log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("participant", string(m.id)).Int("members", len(r.byID)).Msg("member removed")
}

func (h *Hub) notifyLeft(roomID domain.RoomID, id domain.ParticipantID) {
	b, err := json.Marshal(domain.NewUserLeft(id))
	if err != nil {
		log.Error().Err(err).Str("module", "app.hub").Msg("marshal user-left")
		return
	}
	h.deliver(roomID, h.others(roomID, nil), b)
}

func (h *Hub) others(roomID domain.RoomID, except core.Connection) []target {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]target, 0, len(r.byID))
	for id, m := range r.byID {
		if except != nil && m.conn == except {
			continue
		}
		out = append(out, target{id: id, conn: m.conn})
	}
	return out
}

func (h *Hub) lookup(roomID domain.RoomID, id domain.ParticipantID) []target {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	m, ok := r.byID[id]
	if !ok {
		return nil
	}
	return []target{{id: m.id, conn: m.conn}}
}

// deliver sends frame to every target. Failures go through the policy and a
// kicked member is evicted after the pass, so one bad connection never aborts
// delivery to the rest.
func (h *Hub) deliver(roomID domain.RoomID, targets []target, frame core.Frame) PublishResult {
	res := PublishResult{}
	var kicked []target
	for _, t := range targets {
		if err := t.conn.TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.hub").Str("room", string(roomID)).Str("participant", string(t.id)).Msg("send failed")
			res.Dropped = append(res.Dropped, t.id)
			if h.policy.OnSendFailure(roomID, t.id, err) == KickMember {
				kicked = append(kicked, t)
			}
			continue
		}
		res.SendTo++
	}
	for _, t := range kicked {
		h.evict(roomID, t)
	}
	log.Debug().Str("module", "app.hub").Str("room", string(roomID)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("deliver result")
	return res
}

func (h *Hub) evict(roomID domain.RoomID, t target) {
	removed := false
	h.mu.Lock()
	if r, ok := h.rooms[roomID]; ok {
		if m, ok := r.byID[t.id]; ok && m.conn == t.conn {
			h.removeLocked(roomID, r, m)
			removed = true
		}
	}
	h.mu.Unlock()

	t.conn.Close()
	if removed {
		log.Info().Str("module", "app.hub").Str("room", string(roomID)).Str("participant", string(t.id)).Msg("evicted")
		h.notifyLeft(roomID, t.id)
	}
}

var pingFrame = core.Frame(`{"type":"ping"}`)

// Keepalive sends a ping frame on conn every interval until ctx is done or a
// send fails. The read loop owns disconnect handling.
func (h *Hub) Keepalive(ctx context.Context, roomID domain.RoomID, conn core.Connection, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.TrySend(pingFrame); err != nil {
				log.Debug().Err(err).Str("module", "app.hub").Str("room", string(roomID)).Msg("keepalive stopped")
				return
			}
		}
	}
}

func (h *Hub) MemberCount(roomID domain.RoomID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[roomID]; ok {
		return len(r.byID)
	}
	return 0
}

// Members returns the participant ids of roomID in sorted order.
func (h *Hub) Members(roomID domain.RoomID) []domain.ParticipantID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]domain.ParticipantID, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (h *Hub) HasRoom(roomID domain.RoomID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID]
	return ok
}

func (h *Hub) List() []RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]RoomInfo, 0, len(h.rooms))
	for id, r := range h.rooms {
		out = append(out, RoomInfo{Room: id, MemberCount: len(r.byID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}
