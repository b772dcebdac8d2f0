// Package mcp exposes the audit ledger to MCP clients as read-only tools and resources.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/authgate"
	"github.com/aretw0/authgate/internal/logging"
	"github.com/aretw0/authgate/pkg/domain"
	"github.com/aretw0/authgate/pkg/ledger"
	"github.com/aretw0/authgate/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// LedgerURI addresses the full ledger export.
const LedgerURI = "authgate://ledger"

// VerifyResult is the structured output of verify_ledger.
type VerifyResult struct {
	OK       bool   `json:"ok" jsonschema_description:"True when every entry verifies"`
	Entries  int    `json:"entries" jsonschema_description:"Number of entries checked"`
	Tip      string `json:"tip" jsonschema_description:"Hash of the newest entry"`
	Index    int    `json:"index" jsonschema_description:"Chain index of the first divergent entry, -1 when none"`
	ActionID string `json:"action_id,omitempty" jsonschema_description:"Action of the first divergent entry"`
	Reason   string `json:"reason,omitempty" jsonschema_description:"Why verification failed"`
}

// EntryArgs selects an entry by action.
type EntryArgs struct {
	ActionID string `json:"action_id"`
}

// Server exposes an AuditReader as an MCP server.
type Server struct {
	audit     ports.AuditReader
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(audit ports.AuditReader, opts ...Option) *Server {
	s := &Server{
		audit:     audit,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("authgate-mcp", strings.TrimSpace(authgate.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves SSE on port until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

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
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	verifyTool := mcp.NewTool("verify_ledger",
		mcp.WithDescription("Recompute every hash and signature in the audit ledger."),
		mcp.WithOutputSchema[VerifyResult](),
	)
	s.mcpServer.AddTool(verifyTool, mcp.NewStructuredToolHandler(s.handleVerify))

	entryTool := mcp.NewTool("get_entry",
		mcp.WithDescription("Fetch the audit entry recorded for an action."),
		mcp.WithString("action_id", mcp.Required(), mcp.Description("Action identifier")),
		mcp.WithOutputSchema[domain.AuditEntry](),
	)
	s.mcpServer.AddTool(entryTool, mcp.NewStructuredToolHandler(s.handleGetEntry))

	s.mcpServer.AddTool(mcp.NewTool("ledger_tip",
		mcp.WithDescription("Hash of the newest ledger entry."),
	), s.handleTip)
}

func (s *Server) handleVerify(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (VerifyResult, error) {
	res := VerifyResult{Entries: s.audit.Len(), Tip: s.audit.Tip(), Index: -1}
	err := s.audit.VerifyChainIntegrity(ctx)
	if err == nil {
		res.OK = true
		return res, nil
	}

	var violation *domain.ChainIntegrityError
	if !errors.As(err, &violation) {
		return VerifyResult{}, fmt.Errorf("verify failed: %w", err)
	}
	s.logger.Warn("MCP verify_ledger: violation", "index", violation.Index, "action_id", violation.ActionID)
	res.Index = violation.Index
	res.ActionID = violation.ActionID
	res.Reason = violation.Reason
	return res, nil
}

func (s *Server) handleGetEntry(ctx context.Context, request mcp.CallToolRequest, args EntryArgs) (domain.AuditEntry, error) {
	if args.ActionID == "" {
		return domain.AuditEntry{}, errors.New("action_id is required")
	}
	entry, err := s.audit.Entry(args.ActionID)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return entry, nil
}

func (s *Server) handleTip(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.audit.Tip()), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(LedgerURI, "Audit Ledger",
		mcp.WithResourceDescription("Every sealed entry with the chain tip"),
		mcp.WithMIMEType("application/json"),
	), s.readLedger)
}

func (s *Server) readLedger(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	doc := ledger.Document{
		Version: ledger.ExportVersion,
		Sealed:  s.audit.Sealed(),
		Tip:     s.audit.Tip(),
		Entries: s.audit.Entries(),
	}
	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ledger: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      LedgerURI,
			MIMEType: "application/json",
			Text:     string(jsonBytes),
		},
	}, nil
}
