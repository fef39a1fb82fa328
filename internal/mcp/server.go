package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/busgate/internal/bus"
	"github.com/ppiankov/busgate/internal/model"
	"github.com/ppiankov/busgate/internal/policy"
	"github.com/ppiankov/busgate/internal/profile"
)

// Tool operation names, as seen by the policy engine's profile check,
// forbidden list and rate limiter.
const (
	OpStatus         = "system.status"
	OpNotify         = "notify"
	OpListServices   = "dbus.list_services"
	OpIntrospect     = "dbus.introspect"
	OpCallMethod     = "dbus.call_method"
	OpClipboardRead  = "clipboard.read"
	OpClipboardWrite = "clipboard.write"
)

// Config holds MCP server configuration.
type Config struct {
	Engine  *policy.Engine
	Profile profile.Profile
	Bus     bus.Caller
	Version string
	Logger  *zap.Logger
}

// Server wraps the MCP SDK server with busgate policy enforcement.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *policy.Engine
	profile   profile.Profile
	bus       bus.Caller
	version   string
	logger    *zap.Logger
	tools     []string
}

// New creates an MCP server exposing the busgate tools.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("mcp: policy engine is required")
	}
	if cfg.Bus == nil {
		return nil, errors.New("mcp: bus caller is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		engine:  cfg.Engine,
		profile: cfg.Profile,
		bus:     cfg.Bus,
		version: version,
		logger:  logger.With(zap.String("mod", "mcp")),
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "busgate",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", zap.Strings("tools", s.tools))
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

func addTool[In, Out any](s *Server, tool *mcpsdk.Tool, h mcpsdk.ToolHandlerFor[In, Out]) {
	mcpsdk.AddTool(s.mcpServer, tool, h)
	s.tools = append(s.tools, tool.Name)
}

// registerTools adds all busgate tools to the MCP server.
func (s *Server) registerTools() {
	addTool(s, &mcpsdk.Tool{
		Name:        "help",
		Description: "Describe the active safety level, system profile and the operation categories it allows.",
	}, s.handleHelp)

	addTool(s, &mcpsdk.Tool{
		Name:        "policy_check",
		Description: "Check whether a bus method would be allowed at the current safety level without calling it (dry-run).",
	}, s.handlePolicyCheck)

	addTool(s, &mcpsdk.Tool{
		Name:        "audit_log",
		Description: "Return the most recent policy decisions, oldest first, with a hash chain check.",
	}, s.handleAuditLog)

	addTool(s, &mcpsdk.Tool{
		Name:        "rate_limit_status",
		Description: "Show per-operation rate limit usage for the current window.",
	}, s.handleRateLimitStatus)

	addTool(s, &mcpsdk.Tool{
		Name:        "status",
		Description: "Quick system overview: battery, network connectivity and the active profile.",
	}, s.handleStatus)

	addTool(s, &mcpsdk.Tool{
		Name:        "notify",
		Description: "Show a desktop notification. Blocked requests return an error with the reason.",
	}, s.handleNotify)

	addTool(s, &mcpsdk.Tool{
		Name:        "list_services",
		Description: "List the names owned on the session or system bus.",
	}, s.handleListServices)

	addTool(s, &mcpsdk.Tool{
		Name:        "introspect",
		Description: "List the interfaces, methods, signals, properties and child objects of a bus object, with the policy decision for each method.",
	}, s.handleIntrospect)

	addTool(s, &mcpsdk.Tool{
		Name:        "call_method",
		Description: "Call a bus method through busgate policy enforcement. Blocked calls return an error with the reason.",
	}, s.handleCallMethod)

	// Clipboard tools exist only where the profile knows a clipboard adapter.
	if _, ok := s.clipboard(); ok {
		addTool(s, &mcpsdk.Tool{
			Name:        "clipboard_read",
			Description: "Read the current clipboard text.",
		}, s.handleClipboardRead)

		addTool(s, &mcpsdk.Tool{
			Name:        "clipboard_write",
			Description: "Replace the clipboard text.",
		}, s.handleClipboardWrite)
	}
}

func (s *Server) clipboard() (profile.Clipboard, bool) {
	if p, ok := s.profile.(profile.ClipboardProvider); ok {
		return p.Clipboard()
	}
	return profile.Clipboard{}, false
}

// gate runs the tool-level and method-level checks for one bus call.
// The method check is skipped when the operation check already denied.
func (s *Server) gate(op string, args map[string]any, service, iface, method string) model.Decision {
	d := s.engine.CheckOperation(op, args, s.profile)
	if !d.Allowed {
		return d
	}
	return s.engine.CheckMethod(service, iface, method, args)
}
