// Package mcp exposes flows and sessions as Model Context Protocol tools so
// an assistant can validate flow drafts and help operators with sessions.
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

	"github.com/aretw0/parley"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/runner"
	"github.com/aretw0/parley/pkg/schema"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const flowsURI = "parley://flows"

// ValidationReport is the outcome of validate_flow.
type ValidationReport struct {
	Valid    bool             `json:"valid" jsonschema_description:"True when the flow can be published"`
	FlowID   string           `json:"flow_id,omitempty"`
	Problems []domain.Problem `json:"problems,omitempty" jsonschema_description:"Graph defects, one per node or handle"`
	Errors   []string         `json:"errors,omitempty" jsonschema_description:"Document decoding errors"`
}

// SessionReport is returned by the session tools.
type SessionReport struct {
	Session *domain.Session `json:"session" jsonschema_description:"The session after the operation"`
	Actions []domain.Action `json:"actions,omitempty" jsonschema_description:"Actions performed by the operation"`
}

type validateArgs struct {
	Document string `json:"document"`
	Format   string `json:"format"`
}

type sessionArgs struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

type messageArgs struct {
	FlowID string `json:"flow_id"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Server wraps a Runner as an MCP server.
type Server struct {
	runner    *runner.Runner
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(r *runner.Runner, opts ...Option) *Server {
	s := &Server{
		runner:    r,
		mcpServer: server.NewMCPServer("parley-mcp", strings.TrimSpace(parley.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves over SSE until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", addr)
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
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_flows",
		mcp.WithDescription("List published flows with their versions."),
	), s.handleListFlows)

	s.mcpServer.AddTool(mcp.NewTool("validate_flow",
		mcp.WithDescription("Decode and validate a flow document without publishing it."),
		mcp.WithString("document", mcp.Required(), mcp.Description("The flow document")),
		mcp.WithString("format", mcp.Description("yaml (default) or json"), mcp.Enum("yaml", "json")),
		mcp.WithOutputSchema[ValidationReport](),
	), mcp.NewStructuredToolHandler(s.handleValidateFlow))

	s.mcpServer.AddTool(mcp.NewTool("inspect_session",
		mcp.WithDescription("Show the stored state of a session."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Session key, flow_id:user_id")),
		mcp.WithOutputSchema[SessionReport](),
	), mcp.NewStructuredToolHandler(s.handleInspectSession))

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Deliver a message as if the end-user typed it."),
		mcp.WithString("flow_id", mcp.Required()),
		mcp.WithString("user_id", mcp.Required()),
		mcp.WithString("text", mcp.Required()),
		mcp.WithOutputSchema[SessionReport](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("resume_session",
		mcp.WithDescription("Wake a sleeping session before its timer."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Session key, flow_id:user_id")),
		mcp.WithOutputSchema[SessionReport](),
	), mcp.NewStructuredToolHandler(s.handleResumeSession))

	s.mcpServer.AddTool(mcp.NewTool("cancel_session",
		mcp.WithDescription("End a session from outside its flow."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Session key, flow_id:user_id")),
		mcp.WithString("reason", mcp.Description("Recorded on the session")),
		mcp.WithOutputSchema[SessionReport](),
	), mcp.NewStructuredToolHandler(s.handleCancelSession))
}

func (s *Server) handleListFlows(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	flows, err := s.runner.Flows().List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	data, _ := json.Marshal(flows)
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleValidateFlow(_ context.Context, _ mcp.CallToolRequest, args validateArgs) (ValidationReport, error) {
	name := "flow.yaml"
	if strings.EqualFold(args.Format, "json") {
		name = "flow.json"
	}
	return Validate(name, []byte(args.Document)), nil
}

// Validate decodes and validates a document, collecting every defect.
func Validate(name string, data []byte) ValidationReport {
	g, err := schema.Parse(name, data)
	if err != nil {
		report := ValidationReport{}
		if errs := schema.DecodeErrors(err); errs != nil {
			for _, e := range errs {
				report.Errors = append(report.Errors, e.Error())
			}
		} else {
			report.Errors = []string{err.Error()}
		}
		return report
	}
	report := ValidationReport{FlowID: g.FlowID}
	var invalid *domain.ValidationError
	if err := domain.Validate(g); errors.As(err, &invalid) {
		report.Problems = invalid.Problems
		return report
	}
	report.Valid = true
	return report
}

func (s *Server) handleInspectSession(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionReport, error) {
	sess, err := s.runner.Sessions().Load(ctx, args.Key)
	if err != nil {
		return SessionReport{}, err
	}
	return SessionReport{Session: sess}, nil
}

func (s *Server) handleSendMessage(ctx context.Context, _ mcp.CallToolRequest, args messageArgs) (SessionReport, error) {
	res, err := s.runner.HandleInbound(ctx, args.FlowID, args.UserID, args.Text)
	if err != nil {
		s.logger.Warn("MCP send_message failed", "flow_id", args.FlowID, "err", err)
		return SessionReport{}, err
	}
	return report(res), nil
}

func (s *Server) handleResumeSession(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionReport, error) {
	res, err := s.runner.Resume(ctx, args.Key)
	if err != nil {
		return SessionReport{}, err
	}
	return report(res), nil
}

func (s *Server) handleCancelSession(ctx context.Context, _ mcp.CallToolRequest, args sessionArgs) (SessionReport, error) {
	res, err := s.runner.Cancel(ctx, args.Key, args.Reason)
	if err != nil {
		return SessionReport{}, err
	}
	return report(res), nil
}

func report(res *runner.Result) SessionReport {
	return SessionReport{Session: res.Session, Actions: res.Actions}
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(flowsURI, "Published Flows",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		flows, err := s.runner.Flows().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list flows: %w", err)
		}
		if flows == nil {
			flows = []ports.FlowSummary{}
		}
		data, _ := json.Marshal(flows)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: flowsURI, MIMEType: "application/json", Text: string(data)},
		}, nil
	})
}
