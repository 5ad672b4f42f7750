package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"voteledger/internal/journal"
	"voteledger/internal/ledger"
	"voteledger/internal/ledger/memledger"
	"voteledger/internal/models"
	"voteledger/internal/provision"
	"voteledger/internal/pubkey"
	"voteledger/internal/registry"
	"voteledger/internal/signer"
	"voteledger/internal/tally"
	"voteledger/internal/voting"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	l := memledger.New()
	mint := pubkey.FromName("api.test.mint")
	l.CreateMint(mint, 9)

	id, err := signer.Generate()
	if err != nil {
		t.Fatalf("generating identity: %v", err)
	}
	if err := l.MintTo(mint, id.PublicKey(), 100_000_000_000); err != nil {
		t.Fatalf("funding identity: %v", err)
	}

	p := provision.New(l, ledger.FinalityConfirmed)
	reg := registry.New(l, p, id, registry.DefaultProgramID, mint, ledger.FinalityConfirmed)
	votes := voting.New(l, p, reg, tally.NewReader(l, mint), journal.NewMemoryRepository(), id, mint, ledger.FinalityConfirmed)

	return NewServer(0, votes)
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndListTopics(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/topics", models.CreateTopicRequest{
		Name:        "upgrade window",
		Description: "when to take the maintenance downtime",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("POST /topics = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}

	var created models.TopicResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if created.Name != "upgrade window" || created.Address == "" {
		t.Errorf("unexpected create response: %+v", created)
	}

	rec = doJSON(t, s, http.MethodGet, "/topics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /topics = %d: %s", rec.Code, rec.Body)
	}
	var list models.TopicListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if list.Total != 1 || list.Topics[0].Address != created.Address {
		t.Errorf("listed topics = %+v, want the created one", list)
	}
	if list.Topics[0].Votes != 0 {
		t.Errorf("fresh topic has %d votes, want 0", list.Topics[0].Votes)
	}
}

func TestCreateTopicRejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/topics", models.CreateTopicRequest{Name: ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty name = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	req := httptest.NewRequest(http.MethodPost, "/topics", bytes.NewBufferString("{not json"))
	rec = httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCastVoteMovesTally(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/topics", models.CreateTopicRequest{Name: "quorum size"})
	var created models.TopicResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}

	rec = doJSON(t, s, http.MethodPost, "/votes", models.CastVoteRequest{Topic: created.Address, Votes: 4})
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /votes = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodGet, "/topics", nil)
	var list models.TopicListResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list response: %v", err)
	}
	if list.Topics[0].Votes != 4 {
		t.Errorf("tally = %d votes, want 4", list.Topics[0].Votes)
	}
}

func TestCastVoteErrors(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/topics", models.CreateTopicRequest{Name: "zero check"})
	var created models.TopicResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}

	rec = doJSON(t, s, http.MethodPost, "/votes", models.CastVoteRequest{Topic: created.Address, Votes: 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero votes = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doJSON(t, s, http.MethodPost, "/votes", models.CastVoteRequest{Topic: created.Address, Votes: math.MaxUint64})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("overflowing votes = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	rec = doJSON(t, s, http.MethodPost, "/votes", models.CastVoteRequest{Topic: "garbage!!", Votes: 1})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad address = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	unknown := pubkey.FromName("api.test.unknown-topic")
	rec = doJSON(t, s, http.MethodPost, "/votes", models.CastVoteRequest{Topic: unknown.String(), Votes: 1})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown topic = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

// stubVoteService overrides CastVote so handler tests can exercise
// outcomes the in-memory ledger never produces.
type stubVoteService struct {
	VoteService
	castVote func(ctx context.Context, topic pubkey.PublicKey, votes uint64) error
}

func (s *stubVoteService) CastVote(ctx context.Context, topic pubkey.PublicKey, votes uint64) error {
	return s.castVote(ctx, topic, votes)
}

func TestCastVoteIndeterminateReturnsPendingStatus(t *testing.T) {
	stub := &stubVoteService{
		castVote: func(ctx context.Context, topic pubkey.PublicKey, votes uint64) error {
			return voting.ErrVoteIndeterminate
		},
	}
	s := NewServer(0, stub)

	topic := pubkey.FromName("api.test.indeterminate-topic")
	rec := doJSON(t, s, http.MethodPost, "/votes", models.CastVoteRequest{Topic: topic.String(), Votes: 2})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("indeterminate vote = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body)
	}

	body := rec.Body.Bytes()
	var res models.CastVoteResponse
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if res.Status != "indeterminate" {
		t.Errorf("status = %q, want %q", res.Status, "indeterminate")
	}

	// A 202 is not a failure; the body must not be an error envelope.
	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if _, ok := envelope["error"]; ok {
		t.Errorf("accepted vote carries an error field: %s", body)
	}
}

func TestOperationsJournal(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/topics", models.CreateTopicRequest{Name: "journaled"})
	var created models.TopicResponse
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding create response: %v", err)
	}
	if rec := doJSON(t, s, http.MethodPost, "/votes", models.CastVoteRequest{Topic: created.Address, Votes: 2}); rec.Code != http.StatusOK {
		t.Fatalf("POST /votes = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, s, http.MethodGet, "/operations", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /operations = %d: %s", rec.Code, rec.Body)
	}
	var ops models.OperationListResponse
	if err := json.NewDecoder(rec.Body).Decode(&ops); err != nil {
		t.Fatalf("decoding operations: %v", err)
	}
	if ops.Total == 0 {
		t.Fatal("expected at least one journal entry")
	}

	found := false
	for _, op := range ops.Operations {
		if op.Kind == "cast_vote" && op.Status == "confirmed" {
			found = true
		}
	}
	if !found {
		t.Errorf("no confirmed cast_vote entry in %+v", ops.Operations)
	}
}

func TestHealthAndIndex(t *testing.T) {
	s := newTestServer(t)

	if rec := doJSON(t, s, http.MethodGet, "/health", nil); rec.Code != http.StatusOK {
		t.Errorf("GET /health = %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodGet, "/", nil); rec.Code != http.StatusOK {
		t.Errorf("GET / = %d", rec.Code)
	}
	if rec := doJSON(t, s, http.MethodDelete, "/topics", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /topics = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
