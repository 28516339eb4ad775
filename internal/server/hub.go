// Package server coordinates client registration, room membership, and event
// fan-out for the chat relay via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Hub is the room registry: it owns the mapping from room keys to the set of
// clients currently joined to each room, and it is the only component allowed
// to mutate that relation. All membership operations and broadcasts are safe
// for concurrent use; backend calls never run under the registry lock.
type Hub struct {
	clients    map[*Client]bool
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates an empty registry ready to manage connections. Run must be
// started in its own goroutine before clients are registered.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new clients.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Join adds the client to the room's member set, creating the room on first
// join. Joining a room the client is already a member of is a no-op, and
// joins for clients that are not (or no longer) registered are refused.
func (h *Hub) Join(client *Client, roomKey string) {
	h.mutex.Lock()
	// A join can race teardown: the readPump dispatches, the client is torn
	// down (full send buffer, disconnect), and only then does the handler
	// reach Join. A membership added for a client no longer in the registry
	// would never be cleaned up, so refuse it.
	if _, registered := h.clients[client]; !registered || client.closed {
		h.mutex.Unlock()
		log.Printf("Client %s is not registered; ignoring join of %s", client.id, roomKey)
		return
	}
	members, ok := h.rooms[roomKey]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomKey] = members
		roomsGauge.Set(float64(len(h.rooms)))
	}
	if _, joined := members[client]; joined {
		h.mutex.Unlock()
		return
	}
	members[client] = struct{}{}
	client.rooms[roomKey] = struct{}{}
	memberCount := len(members)
	h.mutex.Unlock()

	log.Printf("Client %s joined %s. Room members: %d", client.id, roomKey, memberCount)
}

// Leave removes the client from the room's member set. Absent memberships
// and unknown rooms are no-ops. Rooms are deleted once empty.
func (h *Hub) Leave(client *Client, roomKey string) {
	h.mutex.Lock()
	h.leaveLocked(client, roomKey)
	h.mutex.Unlock()
}

// LeaveAll removes the client from every room it is a member of. It is safe
// to call for clients that never joined anything and safe to call repeatedly.
func (h *Hub) LeaveAll(client *Client) {
	h.mutex.Lock()
	h.leaveAllLocked(client)
	h.mutex.Unlock()
}

func (h *Hub) leaveAllLocked(client *Client) {
	for _, roomKey := range lo.Keys(client.rooms) {
		h.leaveLocked(client, roomKey)
	}
}

func (h *Hub) leaveLocked(client *Client, roomKey string) {
	delete(client.rooms, roomKey)
	members, ok := h.rooms[roomKey]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, roomKey)
		roomsGauge.Set(float64(len(h.rooms)))
		log.Printf("Room %s is empty and was removed", roomKey)
	}
}

// Broadcast delivers the framed event to every client currently joined to
// the room. Delivery order among recipients is unspecified. A recipient
// whose send buffer is full or whose connection is torn down is skipped and
// unregistered; its failure never aborts delivery to the rest. Broadcasting
// to an unknown or empty room is a no-op.
func (h *Hub) Broadcast(roomKey string, event []byte) {
	h.mutex.RLock()
	members := lo.Keys(h.rooms[roomKey])
	h.mutex.RUnlock()

	if len(members) == 0 {
		return
	}
	broadcastsTotal.Inc()

	var failed []*Client
	for _, client := range members {
		if !h.safeSend(client, event) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

// SendTo delivers the framed event to a single client. It reports whether
// the event was queued on the client's send buffer.
func (h *Hub) SendTo(client *Client, event []byte) bool {
	return h.safeSend(client, event)
}

func (h *Hub) safeSend(client *Client, event []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send so teardown cannot close the
	// channel mid-send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- event:
		return true
	default:
		return false
	}
}

// Run starts the hub's main event loop, handling client registration and
// unregistration until Shutdown is called. This method should be called in a
// separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.registerClient(client)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	connectionsGauge.Set(float64(clientCount))
	log.Printf("Client %s connected from %s. Total clients: %d", client.id, client.addr, clientCount)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	h.leaveAllLocked(client)
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	connectionsGauge.Set(float64(clientCount))
	log.Printf("Client %s disconnected from %s. Total clients: %d", client.id, client.addr, clientCount)
}

func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client]; exists {
			h.leaveAllLocked(client)
			delete(h.clients, client)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Client %s removed due to full send buffer", client.id)
		}
	}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	connectionsGauge.Set(float64(clientCount))
	// Close channels after releasing the lock.
	for _, ch := range channelsToClose {
		close(ch)
	}
}

// Stats reports the current number of rooms and connected clients.
func (h *Hub) Stats() (rooms, clients int) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms), len(h.clients)
}

func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	h.mutex.Lock()
	clients := lo.Keys(h.clients)
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
