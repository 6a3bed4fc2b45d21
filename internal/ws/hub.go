package ws

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
)

type typingKey struct {
	conversationID int
	userID         int
}

// Hub owns all per-instance connection state: the user connection registry,
// the conversation subscription index, the typing cache, and the offline
// queues. Presence is derived purely from registry occupancy. All state is
// per-instance; the database is the cross-instance source of truth.
type Hub struct {
	mu      sync.RWMutex
	clients map[int]map[*Client]bool
	subs    map[int]map[int]bool
	typing  map[typingKey]time.Time
	queues  map[int]*offlineQueue

	participants repositories.ParticipantRepository
	receipts     repositories.ReceiptRepository
}

// NewHub creates an empty hub backed by the given participant and receipt
// stores.
func NewHub(participants repositories.ParticipantRepository, receipts repositories.ReceiptRepository) *Hub {
	return &Hub{
		clients:      make(map[int]map[*Client]bool),
		subs:         make(map[int]map[int]bool),
		typing:       make(map[typingKey]time.Time),
		queues:       make(map[int]*offlineQueue),
		participants: participants,
		receipts:     receipts,
	}
}

// Register adds a connection to the user's set. A user may hold several
// simultaneous connections (multi-device). The first connection broadcasts
// user_online to everyone else and drains the user's offline queue into the
// new connection.
func (h *Hub) Register(c *Client) {
	userID := c.Info.UserID

	h.mu.Lock()
	set, ok := h.clients[userID]
	if !ok {
		set = make(map[*Client]bool)
		h.clients[userID] = set
	}
	first := len(set) == 0
	set[c] = true

	var queued []models.Event
	if first {
		if q, ok := h.queues[userID]; ok {
			queued = q.drain()
			delete(h.queues, userID)
		}
	}
	h.mu.Unlock()

	if !first {
		return
	}
	observability.AddOfflineQueueDepth(-len(queued))
	h.broadcastAll(models.Event{Type: models.EventUserOnline, UserID: userID}, userID)
	for _, ev := range queued {
		c.Deliver(ev)
	}
	h.confirmDelivered(userID, queued)
}

// confirmDelivered stamps delivered receipts for messages replayed out of the
// offline queue. Rows already stamped at fan-out keep their earlier
// delivered_at; rows the fan-out insert missed are recreated here.
func (h *Hub) confirmDelivered(userID int, queued []models.Event) {
	now := time.Now()
	for _, ev := range queued {
		if ev.Type != models.EventNewMessage || ev.Message == nil {
			continue
		}
		if err := h.receipts.MarkDelivered(context.Background(), ev.Message.ID, userID, now); err != nil {
			log.Printf("delivered receipt upsert failed message=%d user=%d: %v", ev.Message.ID, userID, err)
		}
	}
}

// Unregister removes a connection. When the user's last connection goes away
// their typing state is cleared and user_offline is broadcast with last-seen.
func (h *Hub) Unregister(c *Client) {
	userID := c.Info.UserID

	h.mu.Lock()
	set, ok := h.clients[userID]
	if ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, userID)
		}
	}
	last := ok && len(set) == 0
	if last {
		for key := range h.typing {
			if key.userID == userID {
				delete(h.typing, key)
			}
		}
	}
	h.mu.Unlock()

	c.Close()
	if last {
		lastSeen := time.Now()
		h.broadcastAll(models.Event{Type: models.EventUserOffline, UserID: userID, LastSeen: &lastSeen}, userID)
	}
}

// ConnectionsFor returns the user's live connections.
func (h *Hub) ConnectionsFor(userID int) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	return conns
}

// IsOnline reports whether the user has at least one live connection.
func (h *Hub) IsOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// OnlineUsers returns the ids of all connected users.
func (h *Hub) OnlineUsers() []int {
	h.mu.RLock()
	ids := make([]int, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	h.mu.RUnlock()
	sort.Ints(ids)
	return ids
}

// Join verifies membership against the durable participant rows, then adds
// the user to the conversation's cached subscriber set.
func (h *Hub) Join(ctx context.Context, conversationID int, userID int) (bool, error) {
	member, err := h.participants.IsActiveParticipant(ctx, conversationID, userID)
	if err != nil || !member {
		return false, err
	}
	h.mu.Lock()
	if set, ok := h.subs[conversationID]; ok {
		set[userID] = true
	}
	h.mu.Unlock()
	return true, nil
}

// Leave removes the user from the cached subscriber set, pruning empty sets.
func (h *Hub) Leave(conversationID int, userID int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[conversationID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(h.subs, conversationID)
		}
	}
}

// Subscribers resolves the conversation's subscriber set. The cache is
// strictly an optimization: a miss falls back to the active participant rows
// and repopulates, so fan-out stays correct after a restart.
func (h *Hub) Subscribers(ctx context.Context, conversationID int) ([]int, error) {
	h.mu.RLock()
	set, ok := h.subs[conversationID]
	if ok {
		ids := make([]int, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		h.mu.RUnlock()
		sort.Ints(ids)
		return ids, nil
	}
	h.mu.RUnlock()

	ids, err := h.participants.ActiveUserIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	set = make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	h.mu.Lock()
	h.subs[conversationID] = set
	h.mu.Unlock()
	return ids, nil
}

// DeliverToUser sends the event to every live connection of the user, or
// spills it into the offline queue when the user is fully offline. Failed
// socket writes tear the connection down and are not reported to the caller.
func (h *Hub) DeliverToUser(userID int, ev models.Event) {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		h.mu.Lock()
		// Recheck occupancy: a Register between the two lock sections has
		// already drained the queue, and a push now would strand the event
		// until the next offline/online cycle.
		if set := h.clients[userID]; len(set) > 0 {
			for c := range set {
				conns = append(conns, c)
			}
			h.mu.Unlock()
		} else {
			q, ok := h.queues[userID]
			if !ok {
				q = &offlineQueue{}
				h.queues[userID] = q
			}
			dropped := q.push(ev)
			h.mu.Unlock()
			if !dropped {
				observability.AddOfflineQueueDepth(1)
			}
			return
		}
	}
	for _, c := range conns {
		if !c.Deliver(ev) {
			h.Unregister(c)
		}
	}
}

// SetTyping refreshes or clears ephemeral typing state. Nothing is persisted;
// a restart simply forgets who was typing.
func (h *Hub) SetTyping(conversationID int, userID int, typing bool) {
	key := typingKey{conversationID: conversationID, userID: userID}
	h.mu.Lock()
	defer h.mu.Unlock()
	if typing {
		h.typing[key] = time.Now()
	} else {
		delete(h.typing, key)
	}
}

// QueuedFor reports the number of events buffered for an offline user.
func (h *Hub) QueuedFor(userID int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if q, ok := h.queues[userID]; ok {
		return q.len()
	}
	return 0
}

// broadcastAll delivers to every live connection except exclude's.
func (h *Hub) broadcastAll(ev models.Event, exclude int) {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.clients))
	for userID, set := range h.clients {
		if userID == exclude {
			continue
		}
		for c := range set {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if !c.Deliver(ev) {
			h.Unregister(c)
		}
	}
}

// sweepTyping drops typing entries older than ttl, treating silence as an
// implicit stop. Covers clients that disconnect mid-type.
func (h *Hub) sweepTyping(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for key, at := range h.typing {
		if at.Before(cutoff) {
			delete(h.typing, key)
			removed++
		}
	}
	return removed
}

// sweepIdle closes connections idle beyond maxIdle to bound memory held by
// unclean disconnects.
func (h *Hub) sweepIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	h.mu.RLock()
	var stale []*Client
	for _, set := range h.clients {
		for c := range set {
			if c.LastActivity().Before(cutoff) {
				stale = append(stale, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.Unregister(c)
	}
	return len(stale)
}
