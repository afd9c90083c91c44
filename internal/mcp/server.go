package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gnucleus/gnucleus-mcp/internal/core"
	"github.com/gnucleus/gnucleus-mcp/internal/gnucleus"
	"github.com/gnucleus/gnucleus-mcp/internal/telemetry"
)

const (
	ServerName    = "gNucleus MCP Server"
	ToolTextToCAD = "text_to_cad"
)

type ctxKey string

const ctxKeyTraceID ctxKey = "trace_id"

// CADClient is the slice of the gNucleus API the tools use.
type CADClient interface {
	TextToCAD(ctx context.Context, input string) (json.RawMessage, error)
}

type Server struct {
	client  CADClient
	logger  *slog.Logger
	timeout time.Duration
	sdk     *mcpsdk.Server
}

func NewServer(client CADClient, logger *slog.Logger, timeout time.Duration, version string) *Server {
	if timeout <= 0 {
		timeout = core.DefaultToolTimeout
	}
	s := &Server{
		client:  client,
		logger:  logger,
		timeout: timeout,
	}
	s.sdk = mcpsdk.NewServer(&mcpsdk.Implementation{Name: ServerName, Version: version}, nil)
	s.sdk.AddTool(textToCADTool(), s.handleTextToCAD)
	return s
}

// ToolDefinitions lists every tool the server registers.
func ToolDefinitions() []*mcpsdk.Tool {
	return []*mcpsdk.Tool{textToCADTool()}
}

func textToCADTool() *mcpsdk.Tool {
	return &mcpsdk.Tool{
		Name:        ToolTextToCAD,
		Description: "Transform a text prompt into a CAD Part or CAD Assembly and return a markdown summary plus a viewer URL.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{
					"type":        "string",
					"description": "Free-text description of the part or assembly to generate",
				},
			},
			"required": []string{"input"},
		},
	}
}

// RunStdio serves MCP over stdin/stdout until ctx is done or the peer
// disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	s.logger.Info("mcp server starting", "transport", core.TransportStdio)
	return s.sdk.Run(ctx, &mcpsdk.StdioTransport{})
}

// HTTPHandler serves the streamable HTTP transport.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.sdk }, nil)
}

// Connect attaches the server to an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.sdk.Connect(ctx, t, nil)
}

type textToCADArgs struct {
	Input *string `json:"input"`
}

func (s *Server) handleTextToCAD(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args textToCADArgs
	if err := json.Unmarshal(req.Params.Arguments, &args); err != nil || args.Input == nil {
		msg := "invalid arguments: input is required and must be a string"
		if err != nil {
			msg = "invalid arguments: " + err.Error()
		}
		telemetry.IncToolCall(ToolTextToCAD, "invalid_arguments")
		s.logger.Warn("tool call rejected", "tool_name", ToolTextToCAD, "err", msg)
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
		}, nil
	}

	ctx = context.WithValue(ctx, ctxKeyTraceID, uuid.New().String())
	text := s.TextToCAD(ctx, *args.Input)
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}, nil
}

// TextToCAD performs one text_to_cad invocation. It always returns markdown
// for the end user; failures are described in the text, never returned.
func (s *Server) TextToCAD(ctx context.Context, input string) (out string) {
	traceID, _ := ctx.Value(ctxKeyTraceID).(string)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	logger := s.logger.With("trace_id", traceID, "tool_name", ToolTextToCAD)

	start := time.Now()
	defer func() { telemetry.ObserveToolDuration(ToolTextToCAD, time.Since(start)) }()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool call panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			telemetry.IncToolCall(ToolTextToCAD, "panic")
			out = gnucleus.Format(input, nil, fmt.Errorf("panic: %v", r))
		}
	}()

	logger.Info("text_to_cad called", "input", input)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := s.client.TextToCAD(ctx, input)
	out = gnucleus.Format(input, body, err)

	duration := fmt.Sprintf("%dms", time.Since(start).Milliseconds())
	switch {
	case err != nil:
		info := core.MapError(err)
		telemetry.IncToolCall(ToolTextToCAD, "failure")
		logger.Error("tool call failed", "code", info.Code, "err", err, "duration", duration)
	case !gnucleus.ParseResponse(body).HasValidID():
		telemetry.IncToolCall(ToolTextToCAD, "invalid_response")
		logger.Warn("upstream response has no gnucleus id", "duration", duration)
	default:
		telemetry.IncToolCall(ToolTextToCAD, "ok")
		logger.Info("Generating response successfully", "duration", duration)
	}
	return out
}
