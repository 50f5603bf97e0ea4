// Package statusd exposes sync activity over WebSocket. Connected clients
// receive sync summaries, failures, conflict notices, and task counts as
// they happen; the daemon never accepts commands over the socket.
package statusd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	syncengine "github.com/mattsch/caldav-tasks/internal/sync"
)

// MessageType discriminates status messages on the wire.
type MessageType string

const (
	// MessageTypeSyncSummary carries the outcome of one calendar sync.
	MessageTypeSyncSummary MessageType = "sync_summary"

	// MessageTypeSyncError reports a failed sync attempt.
	MessageTypeSyncError MessageType = "sync_error"

	// MessageTypeConflict reports a task left in conflict after a sync.
	MessageTypeConflict MessageType = "conflict"

	// MessageTypeTaskCounts carries aggregate task statistics.
	MessageTypeTaskCounts MessageType = "task_counts"
)

// Message is one status broadcast.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncErrorData describes a failed sync.
type SyncErrorData struct {
	CalendarID int64  `json:"calendar_id"`
	Error      string `json:"error"`
}

// TaskCountsData carries aggregate counts per calendar.
type TaskCountsData struct {
	CalendarID int64 `json:"calendar_id,omitempty"`
	Total      int   `json:"total"`
	Open       int   `json:"open"`
	Completed  int   `json:"completed"`
	Overdue    int   `json:"overdue"`
}

// Server accepts WebSocket clients and fans status messages out to them.
// It satisfies the sync engine's Notifier interface.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *slog.Logger
}

// NewServer creates a status server listening on the given port.
func NewServer(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      fmt.Sprintf(":%d", port),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
	}
}

// Start binds the listener and begins serving. Non-blocking.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("status server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server error", "error", err)
		}
	}()

	return nil
}

// Stop closes client connections and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}

	s.wg.Wait()
	return nil
}

// SyncCompleted broadcasts a finished sync, plus one conflict message per
// task the merge left unresolved.
func (s *Server) SyncCompleted(sum syncengine.Summary) {
	s.send(MessageTypeSyncSummary, sum)
	for _, c := range sum.Conflicts {
		s.send(MessageTypeConflict, c)
	}
}

// SyncFailed broadcasts a sync failure.
func (s *Server) SyncFailed(calendarID int64, err error) {
	s.send(MessageTypeSyncError, SyncErrorData{CalendarID: calendarID, Error: err.Error()})
}

// PublishCounts broadcasts aggregate task counts.
func (s *Server) PublishCounts(counts TaskCountsData) {
	s.send(MessageTypeTaskCounts, counts)
}

func (s *Server) send(typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal status payload", "type", typ, "error", err)
		return
	}

	msg := Message{Type: typ, Timestamp: time.Now().UTC(), Data: data}
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.Warn("broadcast channel full, dropping message", "type", typ)
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Error("failed to marshal status message", "error", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Writes happen outside the lock so a slow client cannot
			// stall new connections.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	count := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Debug("status client connected", "clients", count)
	go s.readLoop(conn)
}

// readLoop drains client frames so pings are answered; the daemon ignores
// their content.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)
	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		count := len(s.clients)
		s.clientsMu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Debug("status client disconnected", "clients", count)
		return
	}
	s.clientsMu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	count := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": count,
	})
}

// Addr returns the bound listen address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount reports connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
