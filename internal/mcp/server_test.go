package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/gnucleus/gnucleus-mcp/internal/gnucleus"
	"github.com/gnucleus/gnucleus-mcp/internal/telemetry"
)

type fakeClient struct {
	mu     sync.Mutex
	inputs []string
	body   json.RawMessage
	err    error
	panics bool
	sawDL  bool
}

func (f *fakeClient) TextToCAD(ctx context.Context, input string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	_, f.sawDL = ctx.Deadline()
	if f.panics {
		panic("decoder exploded")
	}
	return f.body, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func connect(t *testing.T, s *Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	serverCtx, serverCancel := context.WithCancel(context.Background())
	serverSession, err := s.Connect(serverCtx, serverTransport)
	require.NoError(t, err)

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "client", Version: "test"}, nil)
	clientSession, err := client.Connect(context.Background(), clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = clientSession.Close()
		_ = serverSession.Close()
		serverCancel()
	})
	return clientSession
}

func firstText(res *mcpsdk.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, c := range res.Content {
		if txt, ok := c.(*mcpsdk.TextContent); ok {
			return txt.Text
		}
	}
	return ""
}

func TestListToolsExposesTextToCAD(t *testing.T) {
	s := NewServer(&fakeClient{}, testLogger(), time.Minute, "test")
	session := connect(t, s)

	res, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, res.Tools, 1)
	require.Equal(t, "text_to_cad", res.Tools[0].Name)
	require.Contains(t, res.Tools[0].Description, "CAD Part or CAD Assembly")
}

func TestCallTextToCADReturnsMarkdown(t *testing.T) {
	telemetry.Reset()
	fc := &fakeClient{body: json.RawMessage(`{"id":"gnucleus-123","message":"Generated"}`)}
	s := NewServer(fc, testLogger(), time.Minute, "test")
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "text_to_cad",
		Arguments: map[string]any{"input": "a hex bolt"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	text := firstText(res)
	require.True(t, strings.HasPrefix(text, "### gNucleus\n\nGenerated\n"), text)
	require.Contains(t, text, "https://gnucleus.ai/app/viewer/gnucleus-123")
	require.Equal(t, []string{"a hex bolt"}, fc.inputs)
	require.True(t, fc.sawDL, "upstream call must carry the invocation deadline")
	require.Contains(t, telemetry.RenderPrometheus(), `gnucleus_tool_calls_total{tool="text_to_cad",status="ok"} 1`)
}

func TestCallTextToCADFailureIsText(t *testing.T) {
	telemetry.Reset()
	fc := &fakeClient{err: &gnucleus.Failure{Kind: gnucleus.KindConfiguration, Message: "Configuration error: Missing API credentials"}}
	s := NewServer(fc, testLogger(), time.Minute, "test")
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "text_to_cad",
		Arguments: map[string]any{"input": "a gear"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, `gNucleus failed to generate CAD for 'a gear' and the reponse is {"message":"Configuration error: Missing API credentials"} `, firstText(res))
	require.Contains(t, telemetry.RenderPrometheus(), `status="failure"} 1`)
}

func TestCallTextToCADRejectsMissingInput(t *testing.T) {
	fc := &fakeClient{}
	s := NewServer(fc, testLogger(), time.Minute, "test")
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "text_to_cad",
		Arguments: map[string]any{"prompt": "wrong key"},
	})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, firstText(res), "input is required")
	require.Empty(t, fc.inputs)
}

func TestTextToCADRecoversPanics(t *testing.T) {
	s := NewServer(&fakeClient{panics: true}, testLogger(), time.Minute, "test")

	out := s.TextToCAD(context.Background(), "a spring")
	require.Equal(t, `gNucleus failed to generate CAD for 'a spring' and the reponse is {"message":"An unexpected error occurred"} `, out)
}

func TestTextToCADInvalidResponse(t *testing.T) {
	telemetry.Reset()
	s := NewServer(&fakeClient{body: json.RawMessage(`{"id":"job-1"}`)}, testLogger(), time.Minute, "test")

	out := s.TextToCAD(context.Background(), "a cam")
	require.Equal(t, `gNucleus failed to generate CAD for 'a cam' and the reponse is {"id":"job-1"} `, out)
	require.Contains(t, telemetry.RenderPrometheus(), `status="invalid_response"} 1`)
}

func TestTextToCADAgainstUpstream(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		io.WriteString(w, `{
			"id": "gnucleus-123",
			"message": "Assembly generated",
			"is_assembly": true,
			"assemblies_info": {"root_assembly": "asm1", "parts": [{"part_name": "Bracket", "key_parameters": "L=10"}]}
		}`)
	}))
	t.Cleanup(ts.Close)

	u, err := url.Parse(ts.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client := gnucleus.NewClient(
		gnucleus.Config{Host: u.Hostname(), Port: port, APIKey: "k", OrgID: "org-1"},
		gnucleus.WithHTTPClient(ts.Client()),
		gnucleus.WithLogger(testLogger()),
	)
	s := NewServer(client, testLogger(), time.Minute, "test")
	session := connect(t, s)

	res, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      "text_to_cad",
		Arguments: map[string]any{"input": "a gearbox"},
	})
	require.NoError(t, err)

	text := firstText(res)
	require.Contains(t, text, "https://gnucleus.ai/app/viewer/gnucleus-123/asm1")
	require.Contains(t, text, "* **Bracket**\n\nL=10")
	require.Equal(t, map[string]any{"input": "a gearbox", "org_id": "org-1"}, gotBody)
}

func TestToolDefinitionsRequireInput(t *testing.T) {
	defs := ToolDefinitions()
	require.Len(t, defs, 1)

	schema, ok := defs[0].InputSchema.(map[string]any)
	require.True(t, ok)
	require.Equal(t, []string{"input"}, schema["required"])
}
