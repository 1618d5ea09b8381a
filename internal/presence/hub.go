// Package presence tracks which users are online and routes room-scoped
// events to live connections. State is process-local and rebuilt from
// zero on restart; nothing here touches persistence.
package presence

import (
	"sort"
	"sync"

	"palaver/internal/models"
)

// sendBuffer is the per-connection outbound queue. Events to a consumer
// that cannot keep up are dropped, not queued without bound.
const sendBuffer = 100

type subscriber struct {
	connID string
	userID string
	ch     chan models.ServerEvent
	rooms  map[string]bool
}

// Hub owns the connection-to-user map and the room subscriptions. All
// access is serialized behind one mutex; connection handlers never touch
// the maps directly.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*subscriber
	rooms map[string]map[string]*subscriber
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]*subscriber),
		rooms: make(map[string]map[string]*subscriber),
	}
}

// Register inserts the connection, joins it to the user's private room,
// emits `connected` to it, and broadcasts the updated online set to
// everyone. Re-registering a live connection id tears the old one down
// first.
func (h *Hub) Register(connID, userID string) <-chan models.ServerEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.conns[connID]; ok {
		h.removeLocked(old)
	}

	sub := &subscriber{
		connID: connID,
		userID: userID,
		ch:     make(chan models.ServerEvent, sendBuffer),
		rooms:  make(map[string]bool),
	}
	h.conns[connID] = sub
	// Private room keyed by userID, so a user can be notified directly
	// regardless of which conversation they have open.
	h.joinLocked(sub, userID)

	send(sub, models.ServerEvent{Type: models.ServerEventConnected})
	h.broadcastOnlineLocked()

	return sub.ch
}

// JoinRoom subscribes the connection to a conversation's broadcasts. A
// connection may belong to many rooms. Unknown connections are ignored.
func (h *Hub) JoinRoom(connID, roomID string) {
	if roomID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.conns[connID]
	if !ok {
		return
	}
	h.joinLocked(sub, roomID)
}

// Relay sends the event to every connection joined to the room except the
// originating one, which renders its own optimistic update. A room with
// no subscribers is a silent no-op.
func (h *Hub) Relay(roomID, originConnID string, ev models.ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for connID, sub := range h.rooms[roomID] {
		if connID == originConnID {
			continue
		}
		send(sub, ev)
	}
}

// Typing relays an ephemeral typing signal to the room. No persistence,
// no delivery guarantee.
func (h *Hub) Typing(roomID, originConnID string, stop bool) {
	ev := models.ServerEvent{Type: models.ServerEventTyping, ConversationID: roomID}
	if stop {
		ev.Type = models.ServerEventStopTyping
	}
	h.Relay(roomID, originConnID, ev)
}

// Unregister removes the connection. Idempotent: connection teardown may
// fire it more than once. The online set is re-broadcast only when the
// user's last connection is gone.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub, ok := h.conns[connID]
	if !ok {
		return
	}
	h.removeLocked(sub)

	for _, other := range h.conns {
		if other.userID == sub.userID {
			return // still online through another connection
		}
	}
	h.broadcastOnlineLocked()
}

// OnlineUsers returns the distinct set of online user ids, sorted for
// deterministic output.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineLocked()
}

func (h *Hub) onlineLocked() []string {
	seen := make(map[string]bool, len(h.conns))
	users := make([]string, 0, len(h.conns))
	for _, sub := range h.conns {
		if !seen[sub.userID] {
			seen[sub.userID] = true
			users = append(users, sub.userID)
		}
	}
	sort.Strings(users)
	return users
}

func (h *Hub) joinLocked(sub *subscriber, roomID string) {
	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[string]*subscriber)
		h.rooms[roomID] = room
	}
	room[sub.connID] = sub
	sub.rooms[roomID] = true
}

func (h *Hub) removeLocked(sub *subscriber) {
	delete(h.conns, sub.connID)
	for roomID := range sub.rooms {
		room := h.rooms[roomID]
		delete(room, sub.connID)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	close(sub.ch)
}

func (h *Hub) broadcastOnlineLocked() {
	ev := models.ServerEvent{
		Type:    models.ServerEventOnlineUsers,
		UserIDs: h.onlineLocked(),
	}
	for _, sub := range h.conns {
		send(sub, ev)
	}
}

func send(sub *subscriber, ev models.ServerEvent) {
	select {
	case sub.ch <- ev:
	default:
		// Slow consumer, drop the event.
	}
}
