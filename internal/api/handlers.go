package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"voteledger/internal/ledger"
	"voteledger/internal/models"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/voting"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// handleIndex returns basic service information
// GET / - Returns service info and available endpoints
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	info := map[string]interface{}{
		"service":     "VoteLedger",
		"version":     "1.0.0",
		"description": "Token-weighted topic voting on a deterministic ledger",
		"endpoints": map[string]string{
			"GET /":           "This page - Service information",
			"GET /health":     "Health check endpoint",
			"GET /metrics":    "Prometheus metrics for monitoring",
			"GET /topics":     "List all topics with their vote tallies",
			"POST /topics":    "Create a topic ({name, description})",
			"POST /votes":     "Cast votes on a topic ({topic, votes})",
			"GET /operations": "Recent submitted operations (supports ?limit=)",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// handleHealth returns health status
// GET /health - Health check for monitoring systems
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "voteledger",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleMetrics returns Prometheus metrics
// GET /metrics - Prometheus scraping endpoint
func (s *Server) handleMetrics() http.Handler {
	return promhttp.Handler()
}

// =============================================================================
// VOTING ENDPOINTS
// =============================================================================

// handleListTopics lists every topic with its current tally
// GET /topics
func (s *Server) handleListTopics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	topics, err := s.votes.Topics(ctx)
	if err != nil {
		slog.Error("Failed to list topics", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := models.TopicListResponse{
		Topics: make([]models.TopicResponse, len(topics)),
		Total:  len(topics),
	}
	for i, topic := range topics {
		response.Topics[i] = buildTopicResponse(topic.TopicRecord, topic.Votes, topic.RawAmount, topic.Err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleCreateTopic registers a new topic and provisions its tally balance
// POST /topics {name, description}
func (s *Server) handleCreateTopic(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	topic, err := s.votes.CreateTopic(r.Context(), req.Name, req.Description)
	if err != nil {
		if errors.Is(err, registry.ErrInvalidTopic) {
			s.sendError(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to create topic", "name", req.Name, "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(buildTopicResponse(topic, 0, 0, nil))
}

// handleCastVote transfers voting tokens to a topic's tally balance
// POST /votes {topic, votes}
func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req models.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	topicAddr, err := pubkey.Parse(req.Topic)
	if err != nil {
		s.sendError(w, "Invalid topic address", http.StatusBadRequest)
		return
	}

	if err := s.votes.CastVote(r.Context(), topicAddr, req.Votes); err != nil {
		switch {
		case errors.Is(err, voting.ErrZeroVotes):
			s.sendError(w, "Vote count must be positive", http.StatusBadRequest)
		case errors.Is(err, voting.ErrVoteTooLarge):
			s.sendError(w, "Vote count too large for the token scale", http.StatusBadRequest)
		case errors.Is(err, ledger.ErrNotFound):
			s.sendError(w, "Topic not found", http.StatusNotFound)
		case errors.Is(err, ledger.ErrInsufficientFunds):
			s.sendError(w, "Insufficient voting tokens", http.StatusUnprocessableEntity)
		case errors.Is(err, voting.ErrVoteIndeterminate):
			// The vote may still land; the caller should re-read tallies
			// rather than resubmit.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(models.CastVoteResponse{
				Topic:  req.Topic,
				Votes:  req.Votes,
				Status: "indeterminate",
			})
		default:
			slog.Error("Failed to cast vote", "topic", req.Topic, "error", err)
			s.sendError(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(models.CastVoteResponse{
		Topic:  req.Topic,
		Votes:  req.Votes,
		Status: "confirmed",
	})
}

// handleListOperations returns the recent submission journal
// GET /operations?limit=50
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	entries, err := s.votes.Operations(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list operations", "error", err)
		s.sendError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := models.OperationListResponse{
		Operations: make([]models.OperationResponse, len(entries)),
		Total:      len(entries),
	}
	for i, entry := range entries {
		op := models.OperationResponse{
			ID:         entry.ID.String(),
			Kind:       entry.Kind,
			Signature:  entry.Signature,
			AmountRaw:  entry.AmountRaw,
			Status:     entry.Status,
			Detail:     entry.Detail,
			CreatedAt:  entry.CreatedAt,
			ResolvedAt: entry.ResolvedAt,
		}
		if !entry.Topic.IsZero() {
			op.Topic = entry.Topic.String()
		}
		response.Operations[i] = op
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func buildTopicResponse(topic registry.TopicRecord, votes, rawAmount uint64, tallyErr error) models.TopicResponse {
	res := models.TopicResponse{
		Address:     topic.Address.String(),
		Index:       topic.Index,
		Name:        topic.Name,
		Description: topic.Description,
		Votes:       votes,
		RawAmount:   rawAmount,
	}
	if !topic.Owner.IsZero() {
		res.Creator = topic.Owner.String()
	}
	if tallyErr != nil {
		res.TallyError = tallyErr.Error()
	}
	return res
}

// sendError sends a JSON error response
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error:   http.StatusText(code),
		Message: message,
		Code:    code,
	})
}
