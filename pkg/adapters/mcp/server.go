// Package mcp exposes a chat instance as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/headless/internal/logging"
	"github.com/aretw0/headless/pkg/domain"
)

const conversationURI = "headless://conversation"

// Chat is the part of the SDK facade exposed as tools.
type Chat interface {
	State() domain.State
	SetContext(ctx any)
	// SendMessage reports accepted=false when another message was still being processed.
	SendMessage(ctx context.Context, text string, source domain.MessageSource, stream bool) (*domain.MessageResponse, bool, error)
	RestartConversation(ctx context.Context)
	ActiveClient() domain.ClientKind
}

// ConversationResponse is the structured result of every tool.
type ConversationResponse struct {
	Accepted     bool                     `json:"accepted" jsonschema_description:"False when another message was still being processed"`
	Reply        *domain.Message          `json:"reply,omitempty" jsonschema_description:"The bot reply, absent when an agent is connected"`
	ActiveClient domain.ClientKind        `json:"activeClient" jsonschema_description:"The client currently receiving messages (bot or agent)"`
	Conversation domain.ConversationState `json:"conversation" jsonschema_description:"The conversation after the call"`
}

// Server wraps a Chat and exposes it as an MCP Server.
type Server struct {
	chat      Chat
	mcpServer *server.MCPServer
	logger    *slog.Logger
	version   string
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

// WithVersion sets the version announced to MCP clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new MCP Server instance.
func NewServer(chat Chat, opts ...Option) *Server {
	s := &Server{chat: chat, logger: logging.NewNop(), version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("headless-mcp", s.version)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer { return s.mcpServer }

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: send_message
	sendTool := mcp.NewTool("send_message",
		mcp.WithDescription("Send a user message to the active client and return the updated conversation."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message text")),
		mcp.WithBoolean("stream", mcp.Description("Stream the bot reply (bot client only)")),
		mcp.WithOutputSchema[ConversationResponse](),
	)
	s.mcpServer.AddTool(sendTool, mcp.NewStructuredToolHandler(s.handleSendMessage))

	// TOOL: restart_conversation
	restartTool := mcp.NewTool("restart_conversation",
		mcp.WithDescription("Clear the conversation and return to the bot."),
		mcp.WithOutputSchema[ConversationResponse](),
	)
	s.mcpServer.AddTool(restartTool, mcp.NewStructuredToolHandler(s.handleRestart))

	// TOOL: get_state
	stateTool := mcp.NewTool("get_state",
		mcp.WithDescription("Get the current conversation state."),
		mcp.WithOutputSchema[ConversationResponse](),
	)
	s.mcpServer.AddTool(stateTool, mcp.NewStructuredToolHandler(s.handleGetState))

	// TOOL: set_context
	s.mcpServer.AddTool(mcp.NewTool("set_context",
		mcp.WithDescription("Replace the context object sent with every request."),
		mcp.WithString("context", mcp.Required(), mcp.Description("JSON value")),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw := request.GetString("context", "")
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid context: %v", err)), nil
		}
		s.chat.SetContext(value)
		return mcp.NewToolResultText("context updated"), nil
	})
}

func (s *Server) snapshot(accepted bool) ConversationResponse {
	return ConversationResponse{
		Accepted:     accepted,
		ActiveClient: s.chat.ActiveClient(),
		Conversation: s.chat.State().Conversation,
	}
}

func (s *Server) handleSendMessage(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (ConversationResponse, error) {
	text, _ := args["text"].(string)
	stream, _ := args["stream"].(bool)

	resp, accepted, err := s.chat.SendMessage(ctx, text, domain.SourceUser, stream)
	if err != nil {
		s.logger.Warn("MCP send_message failed", "err", err)
		return ConversationResponse{}, fmt.Errorf("send failed: %w", err)
	}

	out := s.snapshot(accepted)
	if resp != nil {
		out.Reply = &resp.Message
	}
	return out, nil
}

func (s *Server) handleRestart(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (ConversationResponse, error) {
	s.chat.RestartConversation(ctx)
	return s.snapshot(true), nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (ConversationResponse, error) {
	return s.snapshot(true), nil
}

func (s *Server) registerResources() {
	// EXPOSE: headless://conversation
	s.mcpServer.AddResource(mcp.NewResource(conversationURI, "Current Conversation",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.chat.State().Conversation)
		if err != nil {
			return nil, fmt.Errorf("failed to encode conversation: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      conversationURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
