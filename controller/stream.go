package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/engine"
	"github.com/itskum47/defcon/controller/store"
)

const maxStreamClients = 200

// streamEvent is the wire shape pushed to websocket subscribers on every
// outage transition.
type streamEvent struct {
	Kind   string        `json:"kind"`
	Check  *store.Check  `json:"check"`
	Outage *store.Outage `json:"outage"`
}

// Stream broadcasts outage transitions to websocket clients. A single
// broadcaster goroutine owns the client set; handlers only enqueue.
type Stream struct {
	log        zerolog.Logger
	upgrader   websocket.Upgrader
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	events     chan streamEvent

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewStream(log zerolog.Logger) *Stream {
	return &Stream{
		log: log.With().Str("component", "stream").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		events:     make(chan streamEvent, 64),
		clients:    make(map[*websocket.Conn]struct{}),
	}
}

// Hook adapts the stream to the engine's edge callback.
func (s *Stream) Hook() engine.Hook {
	return func(ctx context.Context, e engine.Edge) {
		kind := store.TimelineConfirmed
		if e.Resolved {
			kind = store.TimelineResolved
		}
		select {
		case s.events <- streamEvent{Kind: kind, Check: e.Check, Outage: e.Outage}:
		default:
			// A full queue means nobody is reading fast enough; dropping a
			// broadcast is harmless, the API remains the source of truth.
		}
	}
}

// Run owns the client set until ctx is cancelled.
func (s *Stream) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for conn := range s.clients {
				conn.Close()
			}
			s.clients = make(map[*websocket.Conn]struct{})
			s.mu.Unlock()
			return

		case conn := <-s.register:
			s.mu.Lock()
			if len(s.clients) >= maxStreamClients {
				s.mu.Unlock()
				conn.Close()
				s.log.Warn().Msg("stream client rejected, connection cap reached")
				continue
			}
			s.clients[conn] = struct{}{}
			s.mu.Unlock()

		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[conn]; ok {
				delete(s.clients, conn)
				conn.Close()
			}
			s.mu.Unlock()

		case event := <-s.events:
			s.broadcast(event)
		}
	}
}

func (s *Stream) broadcast(event streamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			delete(s.clients, conn)
			conn.Close()
		}
	}
}

// handleStream upgrades the request and parks a reader goroutine whose only
// job is to notice the peer going away.
func (a *App) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := a.stream.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	a.stream.register <- conn

	go func() {
		defer func() { a.stream.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
