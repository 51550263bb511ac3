// Package http exposes a chat instance over HTTP with server-sent state updates.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/pkg/domain"
	"github.com/aretw0/headless/pkg/state"
)

// Chat is the part of the SDK facade served over HTTP.
type Chat interface {
	State() domain.State
	SetContext(ctx any)
	AddListener(l state.Listener) state.Unsubscribe
	// SendMessage reports accepted=false when another message was still being processed.
	SendMessage(ctx context.Context, text string, source domain.MessageSource, stream bool) (*domain.MessageResponse, bool, error)
	RestartConversation(ctx context.Context)
	ActiveClient() domain.ClientKind
}

// MessageRequest is the body of POST /messages.
type MessageRequest struct {
	Text   string               `json:"text"`
	Source domain.MessageSource `json:"source,omitempty"`
	Stream bool                 `json:"stream,omitempty"`
}

// MessageResponse is the reply of POST /messages.
type MessageResponse struct {
	// Accepted is false when the message was rejected because another one
	// was still being processed.
	Accepted bool                    `json:"accepted"`
	Response *domain.MessageResponse `json:"response,omitempty"`
	State    domain.State            `json:"state"`
}

// StateResponse is the reply of GET /state.
type StateResponse struct {
	State        domain.State      `json:"state"`
	ActiveClient domain.ClientKind `json:"activeClient"`
}

// Server serves a Chat.
type Server struct {
	Chat    Chat
	Streams *StreamManager
	logger  *slog.Logger

	mu   sync.Mutex
	last *domain.ConversationState
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server and starts broadcasting state diffs of chat.
// The returned function stops the broadcast.
func NewServer(chat Chat, opts ...Option) (*Server, func()) {
	s := &Server{
		Chat:    chat,
		Streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger

	initial := chat.State().Conversation
	s.last = &initial
	stop := state.Watch(chat, state.Conversation, s.publish)
	return s, func() { stop() }
}

// NewHandler creates a new HTTP handler for chat.
func NewHandler(chat Chat, opts ...Option) (http.Handler, func()) {
	s, stop := NewServer(chat, opts...)
	return s.Routes(), stop
}

// Routes returns the chi router of s.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(enableCORS)
	r.Get("/health", s.GetHealth)
	r.Get("/state", s.GetState)
	r.Post("/messages", s.PostMessage)
	r.Post("/restart", s.Restart)
	r.Put("/context", s.PutContext)
	r.Get("/events", s.SubscribeEvents)
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) publish(conv domain.ConversationState) {
	s.mu.Lock()
	diff := domain.Diff(s.last, &conv)
	s.last = &conv
	s.mu.Unlock()

	if diff == nil {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		s.logger.Error("Failed to encode state diff", "err", err)
		return
	}
	s.Streams.Broadcast(string(data))
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetState handles the GET /state request.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, StateResponse{State: s.Chat.State(), ActiveClient: s.Chat.ActiveClient()})
}

// PostMessage handles the POST /messages request.
func (s *Server) PostMessage(w http.ResponseWriter, r *http.Request) {
	var body MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostMessage: Invalid request body", "err", err)
		return
	}
	if body.Source == "" {
		body.Source = domain.SourceUser
	}

	resp, accepted, err := s.Chat.SendMessage(r.Context(), body.Text, body.Source, body.Stream)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, domain.ErrStreamingUnsupported) {
			status = http.StatusConflict
		}
		http.Error(w, fmt.Sprintf("Message error: %v", err), status)
		s.logger.Error("PostMessage failed", "err", err)
		return
	}

	status := http.StatusOK
	if !accepted {
		status = http.StatusConflict
	}
	s.writeJSON(w, status, MessageResponse{Accepted: accepted, Response: resp, State: s.Chat.State()})
}

// Restart handles the POST /restart request.
func (s *Server) Restart(w http.ResponseWriter, r *http.Request) {
	s.Chat.RestartConversation(r.Context())
	s.writeJSON(w, http.StatusOK, StateResponse{State: s.Chat.State(), ActiveClient: s.Chat.ActiveClient()})
}

// PutContext handles the PUT /context request. The body replaces the
// consumer context sent with every request.
func (s *Server) PutContext(w http.ResponseWriter, r *http.Request) {
	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PutContext: Invalid request body", "err", err)
		return
	}
	s.Chat.SetContext(body)
	w.WriteHeader(http.StatusNoContent)
}

// SubscribeEvents handles the GET /events request (SSE). Every state change
// is pushed as a conversation diff. The optional watch parameter keeps only
// diffs touching the listed fields (messages, notes, loading, conversation).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		watchList = strings.Split(watch, ",")
	}

	ch, cancel := s.Streams.Subscribe()
	defer cancel()
	s.logger.Info("SSE: Client subscribed", "watch", watchList)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	if snapshot, err := json.Marshal(domain.Diff(nil, ptr(s.Chat.State().Conversation))); err == nil {
		fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", snapshot)
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watchList) > 0 && !matchesWatch(msg, watchList) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func matchesWatch(msg string, watchList []string) bool {
	var diff domain.ConversationDiff
	if err := json.Unmarshal([]byte(msg), &diff); err != nil {
		return true
	}
	for _, field := range watchList {
		switch strings.TrimSpace(field) {
		case "messages":
			if diff.Messages != nil {
				return true
			}
		case "notes":
			if diff.Notes != nil {
				return true
			}
		case "loading":
			if diff.IsLoading != nil || diff.CanSendMessage != nil {
				return true
			}
		case "conversation":
			if diff.ConversationID != nil {
				return true
			}
		}
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

func ptr[T any](v T) *T {
	return &v
}
