package realtime

import (
	"sync"

	"github.com/sirupsen/logrus"

	"teamcollab/utils"
)

// Hub tracks which connections are joined to which team room. Rooms live
// only in this process; other instances are reached through a Backplane.
type Hub struct {
	mu    sync.RWMutex
	rooms map[uint]map[*Client]struct{}
	log   *logrus.Entry
}

func NewHub() *Hub {
	return &Hub{
		rooms: make(map[uint]map[*Client]struct{}),
		log:   utils.Component("hub"),
	}
}

// Join adds c to the room of teamID. Joining twice is a no-op.
func (h *Hub) Join(teamID uint, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[teamID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[teamID] = room
	}
	room[c] = struct{}{}
	c.rooms[teamID] = struct{}{}
}

// Leave removes c from one room and reports whether it was there.
func (h *Hub) Leave(teamID uint, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaveLocked(teamID, c)
}

func (h *Hub) leaveLocked(teamID uint, c *Client) bool {
	room, ok := h.rooms[teamID]
	if !ok {
		return false
	}
	if _, ok := room[c]; !ok {
		return false
	}
	delete(room, c)
	delete(c.rooms, teamID)
	if len(room) == 0 {
		delete(h.rooms, teamID)
	}
	return true
}

// Remove drops c from every room it joined.
func (h *Hub) Remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for teamID := range c.rooms {
		h.leaveLocked(teamID, c)
	}
}

// Broadcast queues frame on every connection in the room of teamID and
// returns how many accepted it. Connections whose queue is full are closed
// and removed.
func (h *Hub) Broadcast(teamID uint, frame []byte) int {
	h.mu.RLock()
	var slow []*Client
	delivered := 0
	for c := range h.rooms[teamID] {
		if c.Send(frame) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.WithFields(logrus.Fields{"client_id": c.ID, "team_id": teamID}).Warn("dropping slow client")
		h.Remove(c)
		c.Close()
	}
	return delivered
}

// RoomSize returns the number of local connections in a room.
func (h *Hub) RoomSize(teamID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[teamID])
}

// InRoom reports whether c is joined to teamID.
func (h *Hub) InRoom(teamID uint, c *Client) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[teamID]
	return ok
}
