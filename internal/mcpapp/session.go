package mcpapp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tasak/tasak/internal/apperr"
	"github.com/tasak/tasak/internal/config"
	"github.com/tasak/tasak/internal/logging"
	"github.com/tasak/tasak/internal/schemacache"
)

// Session is an open transport to one tool server. A session serves
// exactly one one-shot call or one interactive loop; it is never shared.
type Session interface {
	ListTools(ctx context.Context) ([]schemacache.ToolDef, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*Result, error)
	Close() error
}

// Result is the outcome of one tool call.
type Result struct {
	IsError bool
	// Text is the raw textual payload.
	Text string
	// Structured is the decoded value when Text parses as JSON.
	Structured interface{}
}

// Render writes the result: structured values as indented JSON, plain
// text verbatim.
func (r *Result) Render() string {
	if r.Structured != nil {
		return logging.PrettyJSON(r.Structured)
	}
	return r.Text
}

// DialFunc opens a session for an app. accessToken is empty when the app
// does not require auth.
type DialFunc func(ctx context.Context, app *config.App, accessToken string, logger *logging.Logger) (Session, error)

// mcpSession speaks the MCP protocol to a subprocess over its standard
// streams. Local apps run their configured command; remote apps run the
// mcp-remote proxy pointed at the server URL.
type mcpSession struct {
	app    *config.App
	client *client.Client
	logger *logging.Logger
}

// Dial starts the tool server subprocess and performs the initialize
// handshake.
func Dial(ctx context.Context, app *config.App, accessToken string, logger *logging.Logger) (Session, error) {
	command, args, env, err := transportCommand(app, accessToken)
	if err != nil {
		return nil, err
	}

	mcpClient, err := client.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, transportError(app, err)
	}

	s := &mcpSession{app: app, client: mcpClient, logger: logger}

	if err := mcpClient.Start(ctx); err != nil {
		_ = mcpClient.Close()
		return nil, transportError(app, err)
	}
	if err := s.initialize(ctx); err != nil {
		_ = mcpClient.Close()
		return nil, transportError(app, err)
	}
	return s, nil
}

// transportCommand resolves the subprocess for an app's transport.
func transportCommand(app *config.App, accessToken string) (string, []string, []string, error) {
	var env []string
	for k, v := range app.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	switch app.Type {
	case config.TypeMCP:
		if len(app.Command) == 0 {
			return "", nil, nil, apperr.Newf(apperr.ConfigMissing,
				"application %q has no command configured", app.Key)
		}
		if accessToken != "" {
			env = append(env, "TASAK_ACCESS_TOKEN="+accessToken)
		}
		return app.Command[0], app.Command[1:], env, nil

	case config.TypeMCPRemote:
		if app.ServerURL == "" {
			return "", nil, nil, apperr.Newf(apperr.ConfigMissing,
				"application %q has no server_url configured", app.Key)
		}
		args := []string{"-y", "mcp-remote", app.ServerURL}
		if accessToken != "" {
			args = append(args, "--header", "Authorization: Bearer "+accessToken)
		}
		return "npx", args, env, nil

	default:
		return "", nil, nil, apperr.Newf(apperr.ConfigMissing,
			"application %q is not an MCP application", app.Key)
	}
}

func (s *mcpSession) initialize(ctx context.Context) error {
	req := mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "tasak",
				Version: "1.0.0",
			},
		},
	}

	s.logger.Request("initialize", req.Params)
	result, err := s.client.Initialize(ctx, req)
	if err != nil {
		return fmt.Errorf("initialize handshake: %w", err)
	}
	s.logger.Response("initialize", result)
	return nil
}

// ListTools fetches the live tool catalog.
func (s *mcpSession) ListTools(ctx context.Context) ([]schemacache.ToolDef, error) {
	req := mcp.ListToolsRequest{}
	s.logger.Request("tools/list", req.Params)

	result, err := s.client.ListTools(ctx, req)
	if err != nil {
		return nil, transportError(s.app, err)
	}
	s.logger.Response("tools/list", result)

	tools := make([]schemacache.ToolDef, len(result.Tools))
	for i, tool := range result.Tools {
		tools[i] = toToolDef(tool)
	}
	return tools, nil
}

// toToolDef converts a wire tool into the cacheable catalog shape.
func toToolDef(tool mcp.Tool) schemacache.ToolDef {
	def := schemacache.ToolDef{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: schemacache.InputSchema{
			Type:       tool.InputSchema.Type,
			Properties: map[string]schemacache.Property{},
			Required:   tool.InputSchema.Required,
		},
	}
	if def.InputSchema.Type == "" {
		def.InputSchema.Type = "object"
	}
	for name, raw := range tool.InputSchema.Properties {
		prop := schemacache.Property{}
		if m, ok := raw.(map[string]interface{}); ok {
			if t, ok := m["type"].(string); ok {
				prop.Type = t
			}
			if d, ok := m["description"].(string); ok {
				prop.Description = d
			}
		}
		def.InputSchema.Properties[name] = prop
	}
	return def
}

// CallTool issues a single tool call on the open session.
func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]interface{}) (*Result, error) {
	req := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}

	s.logger.Request("tools/call", req.Params)
	result, err := s.client.CallTool(ctx, req)
	if err != nil {
		if isAuthError(err) {
			return nil, apperr.Wrap(apperr.NotAuthenticated, err,
				"authentication required for "+s.app.Key).
				WithHint("tasak admin auth %s", s.app.Key)
		}
		return nil, apperr.Wrap(apperr.ToolExecutionError, err,
			"calling tool "+name)
	}
	s.logger.Response("tools/call", result)

	return toResult(result), nil
}

// toResult flattens a wire call result into text and, when the text
// parses as JSON, a structured value.
func toResult(result *mcp.CallToolResult) *Result {
	var parts []string
	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, text.Text)
		} else if img, ok := mcp.AsImageContent(content); ok {
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes]", img.MIMEType, len(img.Data)))
		}
	}
	res := &Result{IsError: result.IsError, Text: strings.Join(parts, "\n")}

	var structured interface{}
	trimmed := strings.TrimSpace(res.Text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &structured); err == nil {
			res.Structured = structured
		}
	}
	return res
}

func (s *mcpSession) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// isAuthError recognizes authentication failures surfaced by the server
// or the mcp-remote proxy.
func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized")
}

// transportError classifies a session failure, distinguishing "not
// installed / not running" from misconfiguration.
func transportError(app *config.App, err error) error {
	if isAuthError(err) {
		return apperr.Wrap(apperr.NotAuthenticated, err,
			"authentication required for "+app.Key).
			WithHint("tasak admin auth %s", app.Key)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "executable file not found") || strings.Contains(msg, "no such file") {
		what := "command"
		if app.Type == config.TypeMCPRemote {
			what = "npx (install Node.js and npm)"
		}
		return apperr.Wrap(apperr.TransportUnavailable, err,
			fmt.Sprintf("tool server for %q could not start: %s not found", app.Key, what))
	}
	return apperr.Wrap(apperr.TransportUnavailable, err,
		fmt.Sprintf("connecting to tool server for %q", app.Key))
}
