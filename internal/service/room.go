package service

import (
	"strings"
	"sync"
	"time"

	"github.com/forgo/saga/presence/internal/model"
)

// Broadcaster delivers a push to a set of connections
type Broadcaster interface {
	Fanout(recipients []string, event string, data interface{}) int
}

// RoomServiceConfig holds the dependencies of a RoomService
type RoomServiceConfig struct {
	Broadcaster    Broadcaster
	Registry       *Registry[model.RoomPresence] // Optional, a new registry is created if nil
	EmoteFreshness time.Duration                 // Optional, defaults to model.EmoteFreshnessWindow
	Now            func() time.Time              // Optional, defaults to time.Now
}

// RoomService moves connections between rooms and tells the other
// occupants. A connection is in at most one room at a time.
type RoomService struct {
	// mu serializes transitions so a departure broadcast, the registry
	// writes and the arrival broadcast of one transition never interleave
	// with another's.
	mu        sync.Mutex
	rooms     *Registry[model.RoomPresence]
	broadcast Broadcaster
	freshness time.Duration
	now       func() time.Time
}

// NewRoomService creates a new room service
func NewRoomService(cfg RoomServiceConfig) *RoomService {
	rooms := cfg.Registry
	if rooms == nil {
		rooms = NewRegistry[model.RoomPresence]()
	}
	freshness := cfg.EmoteFreshness
	if freshness <= 0 {
		freshness = model.EmoteFreshnessWindow
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RoomService{
		rooms:     rooms,
		broadcast: cfg.Broadcaster,
		freshness: freshness,
		now:       now,
	}
}

// Enter places the connection in a room, leaving its previous room first,
// and returns the other occupants.
func (s *RoomService) Enter(conn *Connection, req *model.RoomPositionRequest) (*model.RoomEnterResponse, error) {
	if req.RoomID == "" {
		return nil, ErrRoomRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.currentRoomLocked(conn); prev != "" && prev != req.RoomID {
		s.departLocked(prev, conn.ID)
	}

	presence := req.Presence()
	s.rooms.Join(req.RoomID, conn.ID, presence)
	conn.setRoom(req.RoomID)

	s.fanoutLocked(req.RoomID, conn.ID, EventRoomEntered, presenceEvent(conn.ID, req.RoomID, presence))

	return &model.RoomEnterResponse{ExistingOccupants: s.snapshotLocked(req.RoomID, conn.ID)}, nil
}

// Move overwrites the connection's position and tells the rest of the room.
// A connection that is not yet in the room is placed there, leaving any
// other room first.
func (s *RoomService) Move(conn *Connection, req *model.RoomPositionRequest) error {
	if req.RoomID == "" {
		return ErrRoomRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if prev := s.currentRoomLocked(conn); prev != "" && prev != req.RoomID {
		s.departLocked(prev, conn.ID)
	}

	presence := req.Presence()
	if existing, ok := s.rooms.Get(req.RoomID, conn.ID); ok {
		presence.Emote = existing.Emote
		presence.EmoteAt = existing.EmoteAt
	}
	s.rooms.Join(req.RoomID, conn.ID, presence)
	conn.setRoom(req.RoomID)

	s.fanoutLocked(req.RoomID, conn.ID, EventRoomMoved, presenceEvent(conn.ID, req.RoomID, presence))
	return nil
}

// Emote records an emote on the connection's entry, if it has one, and
// tells the rest of the room. Without an entry the emote is only broadcast.
func (s *RoomService) Emote(conn *Connection, req *model.RoomEmoteRequest) error {
	if req.RoomID == "" {
		return ErrRoomRequired
	}
	if req.Emote == "" {
		return ErrEmoteRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	s.rooms.Update(req.RoomID, conn.ID, func(p *model.RoomPresence) {
		p.Emote = req.Emote
		p.EmoteAt = at
	})

	s.fanoutLocked(req.RoomID, conn.ID, EventRoomEmoted, &model.RoomPresenceEvent{
		ConnectionID: conn.ID,
		RoomID:       req.RoomID,
		X:            req.X,
		Y:            req.Y,
		AvatarRef:    req.AvatarRef,
		DisplayName:  req.DisplayName,
		Emote:        req.Emote,
	})
	return nil
}

// Leave removes the connection from a room after telling the rest of it.
// Leaving a room the connection is not in is a no-op. The id is trimmed
// the same way room.enter trims it.
func (s *RoomService) Leave(conn *Connection, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrRoomRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms.Get(roomID, conn.ID); ok {
		s.departLocked(roomID, conn.ID)
	}
	if conn.cachedRoom() == roomID {
		conn.setRoom("")
	}
	return nil
}

// Disconnect removes the connection from every room that still lists it,
// telling each room's remaining occupants. Safe to call repeatedly.
func (s *RoomService) Disconnect(connectionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := s.rooms.GroupsOf(connectionID)
	for _, roomID := range rooms {
		s.departLocked(roomID, connectionID)
	}
	return rooms
}

// CountOf returns the number of occupants in a room
func (s *RoomService) CountOf(roomID string) int {
	return s.rooms.CountOf(roomID)
}

// Counts returns the occupant count of every non-empty room
func (s *RoomService) Counts() map[string]int {
	return s.rooms.Counts()
}

// currentRoomLocked returns the room the connection is in, trusting the
// connection's cache only when the registry agrees.
func (s *RoomService) currentRoomLocked(conn *Connection) string {
	if cached := conn.cachedRoom(); cached != "" {
		if _, ok := s.rooms.Get(cached, conn.ID); ok {
			return cached
		}
	}
	roomID, _ := s.rooms.CurrentGroup(conn.ID)
	return roomID
}

// departLocked broadcasts room.left to the other occupants, then removes
// the connection from the room.
func (s *RoomService) departLocked(roomID, connectionID string) {
	s.fanoutLocked(roomID, connectionID, EventRoomLeft, &model.RoomLeftEvent{
		ConnectionID: connectionID,
		RoomID:       roomID,
	})
	s.rooms.Leave(roomID, connectionID)
}

func (s *RoomService) fanoutLocked(roomID, exclude, event string, data interface{}) {
	if s.broadcast == nil {
		return
	}
	members := s.rooms.Members(roomID)
	recipients := make([]string, 0, len(members))
	for _, m := range members {
		if m.ConnectionID != exclude {
			recipients = append(recipients, m.ConnectionID)
		}
	}
	s.broadcast.Fanout(recipients, event, data)
}

// snapshotLocked lists every occupant except one, replaying only fresh emotes
func (s *RoomService) snapshotLocked(roomID, exclude string) []model.Occupant {
	now := s.now()
	members := s.rooms.Members(roomID)

	occupants := make([]model.Occupant, 0, len(members))
	for _, m := range members {
		if m.ConnectionID == exclude {
			continue
		}
		occupant := model.Occupant{
			ConnectionID: m.ConnectionID,
			X:            m.Payload.X,
			Y:            m.Payload.Y,
			AvatarRef:    m.Payload.AvatarRef,
			DisplayName:  m.Payload.DisplayName,
		}
		if emote, ok := m.Payload.FreshEmote(now, s.freshness); ok {
			occupant.Emote = emote
		}
		occupants = append(occupants, occupant)
	}
	return occupants
}

func presenceEvent(connectionID, roomID string, p model.RoomPresence) *model.RoomPresenceEvent {
	return &model.RoomPresenceEvent{
		ConnectionID: connectionID,
		RoomID:       roomID,
		X:            p.X,
		Y:            p.Y,
		AvatarRef:    p.AvatarRef,
		DisplayName:  p.DisplayName,
	}
}
