package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"voteledger/internal/journal"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/tally"
)

// VoteService is the slice of the voting orchestrator the handlers use.
type VoteService interface {
	Topics(ctx context.Context) ([]tally.DecoratedTopic, error)
	CreateTopic(ctx context.Context, name, description string) (registry.TopicRecord, error)
	CastVote(ctx context.Context, topic pubkey.PublicKey, votes uint64) error
	Operations(ctx context.Context, limit int) ([]*journal.Entry, error)
}

// Server represents the HTTP API server
// Provides endpoints for Prometheus metrics, health checks, and the voting REST API
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	votes      VoteService
	port       int
}

// NewServer creates a new API server instance
// The vote service is made available to all handlers
func NewServer(port int, votes VoteService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		mux:   mux,
		votes: votes,
		port:  port,
	}

	// Register all HTTP routes
	s.registerRoutes()

	return s
}

// registerRoutes sets up all HTTP routes
func (s *Server) registerRoutes() {
	// Core endpoints
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", s.handleMetrics())

	// Voting endpoints
	s.mux.HandleFunc("/topics", s.handleTopics)
	s.mux.HandleFunc("/votes", s.handleVotes)
	s.mux.HandleFunc("/operations", s.handleOperations)
}

// handleTopics routes by method: list tallied topics or create a topic
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListTopics(w, r)
	case http.MethodPost:
		s.handleCreateTopic(w, r)
	default:
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleVotes accepts vote submissions
func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleCastVote(w, r)
}

// handleOperations returns the recent submission journal
func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.handleListOperations(w, r)
}

// Start starts the HTTP server in a goroutine
// Returns immediately after starting the server
func (s *Server) Start() error {
	go func() {
		slog.Info("API server starting",
			"port", s.port,
			"endpoints", []string{"/", "/health", "/metrics", "/topics", "/votes", "/operations"},
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)

	return nil
}

// Shutdown gracefully shuts down the HTTP server
// Waits for active connections to close or context to timeout
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("API server shutting down...")
	return s.httpServer.Shutdown(ctx)
}
