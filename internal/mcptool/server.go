// Package mcptool exposes the question-answering pipeline as MCP tools so
// agent hosts can query patient records over stdio with the same
// guardrails as the HTTP transport.
package mcptool

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/patient-insight-server/internal/domain"
)

// QueryPipeline answers one natural-language question within a session.
type QueryPipeline interface {
	Answer(ctx context.Context, sessionID, query string) (*domain.Response, error)
}

// Server wraps the MCP SDK server around the pipeline. Tool calls that
// omit a session share one per-process conversation, so pronoun
// follow-ups work across calls from the same host.
type Server struct {
	mcpServer      *mcp.Server
	pipeline       QueryPipeline
	source         domain.EvidenceSource
	defaultSession string
	logger         *logrus.Logger
}

// NewServer creates an MCP server exposing the patient_chat,
// patient_lookup and patient_summary tools.
func NewServer(pipeline QueryPipeline, source domain.EvidenceSource, logger *logrus.Logger) *Server {
	serverInfo := &mcp.Implementation{
		Name:    "patient-insight-mcp",
		Version: "v1.0.0",
	}

	server := &Server{
		mcpServer:      mcp.NewServer(serverInfo, nil),
		pipeline:       pipeline,
		source:         source,
		defaultSession: uuid.New().String(),
		logger:         logger,
	}
	server.registerTools()

	return server
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "patient_chat",
		Description: "Ask a natural-language question about a patient's records. Answers come only from stored data, carry evidence field paths, and medical advice requests are declined.",
	}, s.handleChat)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "patient_lookup",
		Description: "Find patients by full or partial name and return their demographics.",
	}, s.handleLookup)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "patient_summary",
		Description: "Return the clinical summary for a patient by ID, generating and caching it when needed.",
	}, s.handleSummary)

	s.logger.WithField("tool_count", 3).Info("Registered MCP tools")
}

// Start runs the MCP server over stdio until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio transport")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
