// Package server exposes the admin HTTP surface: job listing and
// triggering, execution history, the approval queue, and a WebSocket feed
// of lifecycle events.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stewardhq/steward/approval"
	"github.com/stewardhq/steward/logger"
	"github.com/stewardhq/steward/schedule"
	"github.com/stewardhq/steward/store"
)

// Server hosts the admin API and the WebSocket event hub
type Server struct {
	db         *sql.DB
	jobs       *store.JobStore
	executions *store.ExecutionStore
	actions    *store.ActionStore
	scheduler  *schedule.Scheduler
	workflow   *approval.Workflow

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     chan any
	mu         sync.RWMutex

	httpServer *http.Server
	startedAt  time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.SugaredLogger
}

// New creates a server over the given collaborators
func New(db *sql.DB, scheduler *schedule.Scheduler, workflow *approval.Workflow, jobs *store.JobStore, executions *store.ExecutionStore, actions *store.ActionStore) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		db:         db,
		jobs:       jobs,
		executions: executions,
		actions:    actions,
		scheduler:  scheduler,
		workflow:   workflow,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan any, 256),
		startedAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger.Named("server"),
	}
}

// Handler builds the route table. Exposed so tests can drive the API
// without a listening socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.corsMiddleware(s.HandleHealth))
	mux.HandleFunc("/ws", s.corsMiddleware(s.HandleWebSocket))

	mux.HandleFunc("/api/jobs", s.corsMiddleware(s.HandleJobs))            // list (GET)
	mux.HandleFunc("/api/jobs/", s.corsMiddleware(s.HandleJob))            // trigger/toggle/executions per job
	mux.HandleFunc("/api/executions/", s.corsMiddleware(s.HandleExecution)) // execution detail with actions (GET)
	mux.HandleFunc("/api/approvals", s.corsMiddleware(s.HandleApprovals))  // pending queue (GET)
	mux.HandleFunc("/api/actions/", s.corsMiddleware(s.HandleAction))      // approve/veto (POST)
	mux.HandleFunc("/api/status", s.corsMiddleware(s.HandleStatus))

	return mux
}

// Start begins serving on the given port and runs the event hub until
// Stop is called
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Manual triggers block until the run finishes, so the write
		// timeout must outlast the per-run timeout
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runHub()
	}()

	s.logger.Infow("Admin API listening", "port", port)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop shuts the server down, closing all WebSocket clients
func (s *Server) Stop() error {
	s.cancel()

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.httpServer.Shutdown(ctx)
	}

	s.wg.Wait()

	s.mu.Lock()
	for client := range s.clients {
		client.close()
	}
	s.clients = make(map[*Client]bool)
	s.mu.Unlock()

	return err
}

// Broadcast queues an event for all connected WebSocket clients. Safe to
// call from any goroutine; events are dropped if the hub is saturated.
func (s *Server) Broadcast(event any) {
	select {
	case s.events <- event:
	default:
		s.logger.Debugw("Event dropped, hub saturated")
	}
}

// runHub owns the client set and fans events out to it
func (s *Server) runHub() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			count := len(s.clients)
			s.mu.Unlock()
			s.logger.Debugw("Client connected", "client_id", client.id, "clients", count)
		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.close()
			}
			s.mu.Unlock()
		case event := <-s.events:
			s.broadcastEvent(event)
		}
	}
}

// broadcastEvent sends one event to every client, skipping clients whose
// send channel is full
func (s *Server) broadcastEvent(event any) {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.sendMsg <- event:
		default:
			// Channel full - skip
		}
	}
}

// ClientCount returns the number of connected WebSocket clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}
