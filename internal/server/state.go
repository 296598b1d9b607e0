// File: internal/server/state.go
// quiznet server - process-wide shared state (spec.md §3 ServerState, §5)
//
// ServerState owns the client table and the monotonic client-id counter
// (session ids are assigned by session.Engine). It
// deliberately does NOT own the session engine's internals - those live
// behind session.Engine, which has its own lock scoped to the session
// table only (spec.md §5's locking discipline: clients lock, then
// sessions lock, then per-session lock, then accounts lock; ServerState
// enforces the first link of that chain and never reaches past the
// engine's public API into a session's own state).

package server

import (
	"net"
	"sync"

	"quiznet/internal/account"
	"quiznet/internal/session"
	"quiznet/internal/wire"
)

// Client is one connected player (spec.md §3). SendCh is never closed -
// Send/SendMany may race a disconnecting client, and closing a channel
// other goroutines still write to panics. done is what tells writePump
// to stop; it is closed exactly once, only by the disconnect path.
type Client struct {
	ID     int
	Conn   net.Conn
	Addr   string
	SendCh chan []byte
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	pseudo           string
	currentSessionID int // 0 = none
	connected        bool
}

func (c *Client) Pseudo() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pseudo
}

func (c *Client) SetPseudo(p string) {
	c.mu.Lock()
	c.pseudo = p
	c.mu.Unlock()
}

func (c *Client) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pseudo != ""
}

func (c *Client) CurrentSessionID() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentSessionID == 0 {
		return 0, false
	}
	return c.currentSessionID, true
}

// MaxClients bounds the client table (spec.md §4.2).
const MaxClients = 100

// presenceTracker is the narrow slice of presence.Cache the connection
// manager and dispatcher need to mark a pseudo online/offline. Declared
// locally so internal/server never has to import internal/presence.
type presenceTracker interface {
	MarkOnline(pseudo string)
	MarkOffline(pseudo string)
}

// State is ServerState (spec.md §3). A single instance is shared by the
// TCP connection manager and the request dispatcher; the UDP discovery
// responder does not use it.
type State struct {
	Name string

	mu           sync.RWMutex
	clients      map[int]*Client
	nextClientID int

	Accounts *account.Store
	Engine   *session.Engine
	Presence presenceTracker // nil when Redis presence tracking is disabled
}

// NewState constructs an empty ServerState for the given display name.
func NewState(name string, accounts *account.Store, engine *session.Engine) *State {
	return &State{
		Name:         name,
		clients:      make(map[int]*Client),
		nextClientID: 1,
		Accounts:     accounts,
		Engine:       engine,
	}
}

// ErrClientTableFull is returned by AddClient once MaxClients is reached.
var ErrClientTableFull = errClientTableFull{}

type errClientTableFull struct{}

func (errClientTableFull) Error() string { return "server: client table full" }

// AddClient registers a freshly accepted connection and assigns it a
// fresh client id.
func (s *State) AddClient(conn net.Conn) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.clients) >= MaxClients {
		return nil, ErrClientTableFull
	}

	c := &Client{
		ID:        s.nextClientID,
		Conn:      conn,
		Addr:      conn.RemoteAddr().String(),
		SendCh:    make(chan []byte, 64),
		done:      make(chan struct{}),
		connected: true,
	}
	s.nextClientID++
	s.clients[c.ID] = c
	return c, nil
}

// RemoveClient drops a client from the table (spec.md §4.2 disconnect
// policy). Idempotent.
func (s *State) RemoveClient(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

func (s *State) Client(id int) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

func (s *State) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Kick forcibly disconnects a client by closing its connection. readPump
// observes the resulting error and runs the normal disconnect path
// (session leave, RemoveClient), so there is no separate cleanup here.
func (s *State) Kick(clientID int) bool {
	c, ok := s.Client(clientID)
	if !ok {
		return false
	}
	c.Conn.Close()
	return true
}

// Send delivers v (already a struct with json tags) to one client's send
// queue, dropping it if the queue is full (spec.md §5: a slow client must
// never stall anyone else). Implements session.Broadcaster.
func (s *State) Send(clientID int, v any) {
	c, ok := s.Client(clientID)
	if !ok {
		return
	}
	s.enqueue(c, v)
}

// BroadcastAll sends v to every currently connected client, regardless of
// session membership - used for the shutdown notice (SPEC_FULL.md §4.12
// step 2), which every connected player must see even if they never
// joined a session.
func (s *State) BroadcastAll(v any) {
	payload, err := wire.Encode(v)
	if err != nil {
		return
	}
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		s.enqueueBytes(c, payload)
	}
}

// SendMany implements session.Broadcaster.
func (s *State) SendMany(clientIDs []int, v any) {
	if len(clientIDs) == 0 {
		return
	}
	// Encode once, fan out the same bytes to every recipient.
	payload, err := wire.Encode(v)
	if err != nil {
		return
	}
	for _, id := range clientIDs {
		c, ok := s.Client(id)
		if !ok {
			continue
		}
		s.enqueueBytes(c, payload)
	}
}

func (s *State) enqueue(c *Client, v any) {
	payload, err := wire.Encode(v)
	if err != nil {
		return
	}
	s.enqueueBytes(c, payload)
}

func (s *State) enqueueBytes(c *Client, payload []byte) {
	select {
	case c.SendCh <- payload:
	default:
		// Backpressure: the client is too slow. Drop rather than block
		// (spec.md §5 and §9 "Broadcast fan-out").
	}
}

// SetClientSession and ClearClientSession implement session.Membership.
func (s *State) SetClientSession(clientID, sessionID int) {
	c, ok := s.Client(clientID)
	if !ok {
		return
	}
	c.mu.Lock()
	c.currentSessionID = sessionID
	c.mu.Unlock()
}

func (s *State) ClearClientSession(clientID int) {
	c, ok := s.Client(clientID)
	if !ok {
		return
	}
	c.mu.Lock()
	c.currentSessionID = 0
	c.mu.Unlock()
}
