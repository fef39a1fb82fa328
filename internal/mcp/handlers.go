package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/ppiankov/busgate/internal/audit"
	"github.com/ppiankov/busgate/internal/bus"
	"github.com/ppiankov/busgate/internal/model"
	"github.com/ppiankov/busgate/internal/policy"
	"github.com/ppiankov/busgate/internal/profile"
	"github.com/ppiankov/busgate/internal/ratelimit"
)

// DefaultAuditLimit is how many records audit_log returns when no limit is given.
const DefaultAuditLimit = 100

// --- Input/Output types ---

// HelpInput is empty; no parameters needed.
type HelpInput struct{}

// HelpOutput describes what the server will allow.
type HelpOutput struct {
	Server      string         `json:"server"`
	Version     string         `json:"version"`
	InstanceID  string         `json:"instance_id"`
	SafetyLevel string         `json:"safety_level"`
	CatalogHash string         `json:"catalog_hash"`
	Profile     *ProfileInfo   `json:"profile,omitempty"`
	Allowed     []CategoryInfo `json:"allowed_categories"`
	Tools       []string       `json:"tools"`
}

// ProfileInfo summarizes the active system profile.
type ProfileInfo struct {
	Name       string          `json:"name"`
	InitSystem string          `json:"init_system"`
	Categories map[string]bool `json:"categories"`
}

// CategoryInfo describes one allowed catalog category.
type CategoryInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Tier        string `json:"tier"`
	Interaction string `json:"interaction,omitempty"`
}

// PolicyCheckInput defines parameters for the policy_check tool.
type PolicyCheckInput struct {
	Service   string `json:"service" jsonschema:"destination bus name, e.g. org.freedesktop.Notifications"`
	Interface string `json:"interface,omitempty" jsonschema:"interface name"`
	Method    string `json:"method" jsonschema:"method member name, e.g. Notify"`
}

// PolicyCheckOutput contains the policy decision.
type PolicyCheckOutput struct {
	Allowed     bool                   `json:"allowed"`
	Verdict     model.Verdict          `json:"verdict"`
	Reason      string                 `json:"reason"`
	Category    string                 `json:"category,omitempty"`
	Tier        string                 `json:"tier,omitempty"`
	Interaction *model.InteractionInfo `json:"interaction,omitempty"`
}

// AuditLogInput defines parameters for the audit_log tool.
type AuditLogInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum records to return (default 100, negative for all)"`
}

// AuditLogOutput lists recent audit records.
type AuditLogOutput struct {
	Records []audit.Record     `json:"records"`
	Chain   audit.VerifyResult `json:"chain"`
}

// RateLimitStatusInput is empty; no parameters needed.
type RateLimitStatusInput struct{}

// RateLimitStatusOutput reports usage per operation key.
type RateLimitStatusOutput struct {
	Window string                     `json:"window"`
	Keys   map[string]ratelimit.Usage `json:"keys"`
}

// NotifyInput defines parameters for the notify tool.
type NotifyInput struct {
	Summary  string `json:"summary" jsonschema:"notification title"`
	Body     string `json:"body,omitempty" jsonschema:"notification text"`
	Urgency  string `json:"urgency,omitempty" jsonschema:"low, normal or critical"`
	Icon     string `json:"icon,omitempty" jsonschema:"icon name or path"`
	ExpireMs int32  `json:"expire_ms,omitempty" jsonschema:"display time in milliseconds (0 lets the server decide)"`
}

// NotifyOutput contains the notification ID or block details.
type NotifyOutput struct {
	ID      uint32        `json:"id,omitempty"`
	Blocked bool          `json:"blocked,omitempty"`
	Verdict model.Verdict `json:"verdict,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// ListServicesInput defines parameters for the list_services tool.
type ListServicesInput struct {
	Bus           string `json:"bus,omitempty" jsonschema:"session (default) or system"`
	Prefix        string `json:"prefix,omitempty" jsonschema:"only names starting with this prefix"`
	IncludeUnique bool   `json:"include_unique,omitempty" jsonschema:"include unique connection names such as :1.42"`
}

// ListServicesOutput lists bus names or block details.
type ListServicesOutput struct {
	Bus      string        `json:"bus,omitempty"`
	Services []string      `json:"services,omitempty"`
	Blocked  bool          `json:"blocked,omitempty"`
	Verdict  model.Verdict `json:"verdict,omitempty"`
	Reason   string        `json:"reason,omitempty"`
}

// CallMethodInput defines parameters for the call_method tool.
type CallMethodInput struct {
	Bus       string `json:"bus,omitempty" jsonschema:"session (default) or system"`
	Service   string `json:"service" jsonschema:"destination bus name"`
	Path      string `json:"path" jsonschema:"object path, e.g. /org/freedesktop/Notifications"`
	Interface string `json:"interface" jsonschema:"interface name"`
	Method    string `json:"method" jsonschema:"method member name"`
	Signature string `json:"signature,omitempty" jsonschema:"argument type signature, e.g. su"`
	Args      []any  `json:"args,omitempty" jsonschema:"method arguments"`
}

// CallMethodOutput contains the reply body or block details.
type CallMethodOutput struct {
	Result      []any                  `json:"result,omitempty"`
	Category    string                 `json:"category,omitempty"`
	Interaction *model.InteractionInfo `json:"interaction,omitempty"`
	Blocked     bool                   `json:"blocked,omitempty"`
	Verdict     model.Verdict          `json:"verdict,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
}

// StatusInput is empty; no parameters needed.
type StatusInput struct{}

// StatusOutput is a best-effort system overview. Readings that are denied or
// unavailable are omitted.
type StatusOutput struct {
	Profile    string         `json:"profile,omitempty"`
	InitSystem string         `json:"init_system,omitempty"`
	Battery    *BatteryStatus `json:"battery,omitempty"`
	Network    string         `json:"network,omitempty"`
	Blocked    bool           `json:"blocked,omitempty"`
	Verdict    model.Verdict  `json:"verdict,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// BatteryStatus is the UPower display device reading.
type BatteryStatus struct {
	Percent float64 `json:"percent"`
	State   string  `json:"state,omitempty"`
}

// IntrospectInput defines parameters for the introspect tool.
type IntrospectInput struct {
	Bus     string `json:"bus,omitempty" jsonschema:"session (default) or system"`
	Service string `json:"service" jsonschema:"destination bus name, e.g. org.kde.klipper"`
	Path    string `json:"path,omitempty" jsonschema:"object path (default /)"`
}

// IntrospectOutput describes one bus object or block details.
type IntrospectOutput struct {
	Bus        string          `json:"bus,omitempty"`
	Service    string          `json:"service,omitempty"`
	Path       string          `json:"path,omitempty"`
	Children   []string        `json:"children,omitempty"`
	Interfaces []InterfaceInfo `json:"interfaces,omitempty"`
	Blocked    bool            `json:"blocked,omitempty"`
	Verdict    model.Verdict   `json:"verdict,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

// InterfaceInfo lists the members of one interface.
type InterfaceInfo struct {
	Name       string         `json:"name"`
	Methods    []MethodInfo   `json:"methods,omitempty"`
	Signals    []string       `json:"signals,omitempty"`
	Properties []PropertyInfo `json:"properties,omitempty"`
}

// MethodInfo is a method with its signatures and what call_method would
// decide for it at the current level.
type MethodInfo struct {
	Name     string `json:"name"`
	In       string `json:"in,omitempty"`
	Out      string `json:"out,omitempty"`
	Allowed  bool   `json:"allowed"`
	Category string `json:"category,omitempty"`
}

// PropertyInfo is a property's type and access mode.
type PropertyInfo struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Access string `json:"access"`
}

// ClipboardReadInput is empty; no parameters needed.
type ClipboardReadInput struct{}

// ClipboardReadOutput contains the clipboard text or block details.
type ClipboardReadOutput struct {
	Text    string        `json:"text"`
	Blocked bool          `json:"blocked,omitempty"`
	Verdict model.Verdict `json:"verdict,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// ClipboardWriteInput defines parameters for the clipboard_write tool.
type ClipboardWriteInput struct {
	Text string `json:"text" jsonschema:"text to place on the clipboard"`
}

// ClipboardWriteOutput reports the write or block details.
type ClipboardWriteOutput struct {
	Written bool          `json:"written,omitempty"`
	Blocked bool          `json:"blocked,omitempty"`
	Verdict model.Verdict `json:"verdict,omitempty"`
	Reason  string        `json:"reason,omitempty"`
}

// --- Handlers ---

func (s *Server) handleHelp(ctx context.Context, req *mcpsdk.CallToolRequest, input HelpInput) (*mcpsdk.CallToolResult, HelpOutput, error) {
	out := HelpOutput{
		Server:      "busgate",
		Version:     s.version,
		InstanceID:  s.engine.ID(),
		SafetyLevel: s.engine.Level().String(),
		CatalogHash: s.engine.Catalog().Hash(),
		Allowed:     []CategoryInfo{},
		Tools:       s.Tools(),
	}
	if s.profile != nil {
		out.Profile = &ProfileInfo{
			Name:       s.profile.Name(),
			InitSystem: s.profile.InitSystem(),
			Categories: s.profile.AvailableCategories(),
		}
	}
	for _, c := range s.engine.AllowedCategories() {
		out.Allowed = append(out.Allowed, CategoryInfo{
			Name:        c.Name,
			Description: c.Description,
			Tier:        c.Tier.String(),
			Interaction: string(c.Interaction),
		})
	}
	return nil, out, nil
}

func (s *Server) handlePolicyCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input PolicyCheckInput) (*mcpsdk.CallToolResult, PolicyCheckOutput, error) {
	if input.Method == "" {
		return nil, PolicyCheckOutput{}, fmt.Errorf("method is required")
	}
	d := s.engine.Classify(input.Service, input.Method)
	return nil, PolicyCheckOutput{
		Allowed:     d.Allowed,
		Verdict:     d.Verdict,
		Reason:      d.Reason,
		Category:    d.Category,
		Tier:        d.Tier,
		Interaction: d.Interaction,
	}, nil
}

func (s *Server) handleAuditLog(ctx context.Context, req *mcpsdk.CallToolRequest, input AuditLogInput) (*mcpsdk.CallToolResult, AuditLogOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = DefaultAuditLimit
	}
	recs := s.engine.AuditLog(limit)
	if recs == nil {
		recs = []audit.Record{}
	}
	return nil, AuditLogOutput{Records: recs, Chain: audit.Verify(recs)}, nil
}

func (s *Server) handleRateLimitStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input RateLimitStatusInput) (*mcpsdk.CallToolResult, RateLimitStatusOutput, error) {
	return nil, RateLimitStatusOutput{
		Window: s.engine.RateLimitWindow().String(),
		Keys:   s.engine.RateLimitStatus(),
	}, nil
}

func (s *Server) handleNotify(ctx context.Context, req *mcpsdk.CallToolRequest, input NotifyInput) (*mcpsdk.CallToolResult, NotifyOutput, error) {
	if input.Summary == "" {
		return nil, NotifyOutput{}, fmt.Errorf("summary is required")
	}
	urgency, err := bus.ParseUrgency(input.Urgency)
	if err != nil {
		return nil, NotifyOutput{}, err
	}

	args := map[string]any{"summary": input.Summary, "body": input.Body, "urgency": input.Urgency}
	d := s.gate(OpNotify, args, bus.NotificationsService, bus.NotificationsInterface, "Notify")
	if !d.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, NotifyOutput{Blocked: true, Verdict: d.Verdict, Reason: d.Reason}, nil
	}

	expire := input.ExpireMs
	if expire == 0 {
		expire = -1
	}
	id, err := bus.Notify(ctx, s.bus, bus.Notification{
		Summary:  input.Summary,
		Body:     input.Body,
		Icon:     input.Icon,
		Urgency:  urgency,
		ExpireMs: expire,
	})
	if err != nil {
		return nil, NotifyOutput{}, fmt.Errorf("notification failed: %w", err)
	}
	return nil, NotifyOutput{ID: id}, nil
}

func (s *Server) handleListServices(ctx context.Context, req *mcpsdk.CallToolRequest, input ListServicesInput) (*mcpsdk.CallToolResult, ListServicesOutput, error) {
	kind, err := bus.ParseKind(input.Bus)
	if err != nil {
		return nil, ListServicesOutput{}, err
	}

	args := map[string]any{"bus": string(kind), "prefix": input.Prefix}
	d := s.gate(OpListServices, args, "org.freedesktop.DBus", "org.freedesktop.DBus", "ListNames")
	if !d.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, ListServicesOutput{Blocked: true, Verdict: d.Verdict, Reason: d.Reason}, nil
	}

	names, err := s.bus.ListNames(ctx, kind)
	if err != nil {
		return nil, ListServicesOutput{}, fmt.Errorf("list services failed: %w", err)
	}

	services := make([]string, 0, len(names))
	for _, n := range names {
		if !input.IncludeUnique && strings.HasPrefix(n, ":") {
			continue
		}
		if input.Prefix != "" && !strings.HasPrefix(n, input.Prefix) {
			continue
		}
		services = append(services, n)
	}
	sort.Strings(services)
	return nil, ListServicesOutput{Bus: string(kind), Services: services}, nil
}

func (s *Server) handleCallMethod(ctx context.Context, req *mcpsdk.CallToolRequest, input CallMethodInput) (*mcpsdk.CallToolResult, CallMethodOutput, error) {
	kind, err := bus.ParseKind(input.Bus)
	if err != nil {
		return nil, CallMethodOutput{}, err
	}
	call := bus.Call{
		Bus:       kind,
		Service:   input.Service,
		Path:      input.Path,
		Interface: input.Interface,
		Method:    input.Method,
	}
	if err := call.Validate(); err != nil {
		return nil, CallMethodOutput{}, fmt.Errorf("invalid call: %w", err)
	}
	call.Args, err = bus.ConvertArgs(input.Signature, input.Args)
	if err != nil {
		return nil, CallMethodOutput{}, fmt.Errorf("invalid arguments: %w", err)
	}

	args := map[string]any{
		"bus":    string(kind),
		"target": policy.MethodKey(input.Service, input.Interface, input.Method),
		"path":   input.Path,
		"args":   input.Args,
	}
	d := s.gate(OpCallMethod, args, input.Service, input.Interface, input.Method)
	if !d.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, CallMethodOutput{
			Category: d.Category,
			Blocked:  true,
			Verdict:  d.Verdict,
			Reason:   d.Reason,
		}, nil
	}
	if d.Interaction != nil {
		s.logger.Info("waiting for user interaction",
			zap.String("method", call.Member()),
			zap.String("kind", string(d.Interaction.Kind)))
	}

	body, err := s.bus.Call(ctx, call)
	if err != nil {
		return nil, CallMethodOutput{}, fmt.Errorf("call failed: %w", err)
	}

	result := make([]any, len(body))
	for i, v := range body {
		result[i] = bus.Plain(v)
	}
	return nil, CallMethodOutput{
		Result:      result,
		Category:    d.Category,
		Interaction: d.Interaction,
	}, nil
}

// UPower and NetworkManager readings used by the status tool.
const (
	upowerService       = "org.freedesktop.UPower"
	upowerDisplayDevice = "/org/freedesktop/UPower/devices/DisplayDevice"
	upowerDeviceIface   = "org.freedesktop.UPower.Device"
	networkService      = "org.freedesktop.NetworkManager"
	networkPath         = "/org/freedesktop/NetworkManager"
)

var batteryStates = map[uint32]string{
	0: "unknown",
	1: "charging",
	2: "discharging",
	3: "empty",
	4: "fully-charged",
	5: "pending-charge",
	6: "pending-discharge",
}

var connectivity = map[uint32]string{
	0: "unknown",
	1: "none",
	2: "portal",
	3: "limited",
	4: "full",
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	d := s.engine.CheckOperation(OpStatus, nil, s.profile)
	if !d.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, StatusOutput{Blocked: true, Verdict: d.Verdict, Reason: d.Reason}, nil
	}

	var out StatusOutput
	if s.profile != nil {
		out.Profile = s.profile.Name()
		out.InitSystem = s.profile.InitSystem()
	}

	if v, ok := s.readProperty(ctx, upowerService, upowerDisplayDevice, upowerDeviceIface, "Percentage"); ok {
		if pct, ok := v.(float64); ok {
			out.Battery = &BatteryStatus{Percent: pct}
			if v, ok := s.readProperty(ctx, upowerService, upowerDisplayDevice, upowerDeviceIface, "State"); ok {
				if st, ok := v.(uint32); ok {
					out.Battery.State = batteryStates[st]
				}
			}
		}
	}
	if v, ok := s.readProperty(ctx, networkService, networkPath, networkService, "Connectivity"); ok {
		if c, ok := v.(uint32); ok {
			out.Network = connectivity[c]
		}
	}
	return nil, out, nil
}

// readProperty gates and reads one system bus property. Denials and bus
// errors only drop the reading.
func (s *Server) readProperty(ctx context.Context, service, path, iface, prop string) (any, bool) {
	args := map[string]any{"path": path, "interface": iface, "property": prop}
	if d := s.engine.CheckMethod(service, bus.PropertiesInterface, "Get", args); !d.Allowed {
		return nil, false
	}
	v, err := bus.GetProperty(ctx, s.bus, bus.System, service, path, iface, prop)
	if err != nil {
		s.logger.Debug("status reading unavailable",
			zap.String("service", service),
			zap.String("property", prop),
			zap.Error(err))
		return nil, false
	}
	return v, true
}

func (s *Server) handleIntrospect(ctx context.Context, req *mcpsdk.CallToolRequest, input IntrospectInput) (*mcpsdk.CallToolResult, IntrospectOutput, error) {
	kind, err := bus.ParseKind(input.Bus)
	if err != nil {
		return nil, IntrospectOutput{}, err
	}
	path := input.Path
	if path == "" {
		path = "/"
	}
	call := bus.IntrospectCall(kind, input.Service, path)
	if err := call.Validate(); err != nil {
		return nil, IntrospectOutput{}, fmt.Errorf("invalid object: %w", err)
	}

	args := map[string]any{"bus": string(kind), "service": input.Service, "path": path}
	d := s.gate(OpIntrospect, args, input.Service, bus.IntrospectableInterface, "Introspect")
	if !d.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, IntrospectOutput{Blocked: true, Verdict: d.Verdict, Reason: d.Reason}, nil
	}

	node, err := bus.Introspect(ctx, s.bus, kind, input.Service, path)
	if err != nil {
		return nil, IntrospectOutput{}, fmt.Errorf("introspect failed: %w", err)
	}

	out := IntrospectOutput{Bus: string(kind), Service: input.Service, Path: path}
	for _, child := range node.Children {
		if child.Name != "" {
			out.Children = append(out.Children, strings.TrimRight(path, "/")+"/"+child.Name)
		}
	}
	for _, iface := range node.Interfaces {
		info := InterfaceInfo{Name: iface.Name}
		for _, m := range iface.Methods {
			md := s.engine.Classify(input.Service, m.Name)
			info.Methods = append(info.Methods, MethodInfo{
				Name:     m.Name,
				In:       bus.Signature(m.Args, "in"),
				Out:      bus.Signature(m.Args, "out"),
				Allowed:  md.Allowed,
				Category: md.Category,
			})
		}
		for _, sig := range iface.Signals {
			info.Signals = append(info.Signals, sig.Name)
		}
		for _, p := range iface.Properties {
			info.Properties = append(info.Properties, PropertyInfo{Name: p.Name, Type: p.Type, Access: p.Access})
		}
		out.Interfaces = append(out.Interfaces, info)
	}
	return nil, out, nil
}

// gateClipboard runs the tool check, then the method check for the
// profile's clipboard member.
func (s *Server) gateClipboard(op string, args map[string]any, member func(profile.Clipboard) string) (profile.Clipboard, model.Decision, error) {
	d := s.engine.CheckOperation(op, args, s.profile)
	if !d.Allowed {
		return profile.Clipboard{}, d, nil
	}
	adapter, ok := s.clipboard()
	if !ok {
		return profile.Clipboard{}, d, fmt.Errorf("profile has no clipboard adapter")
	}
	return adapter, s.engine.CheckMethod(adapter.Service, adapter.Interface, member(adapter), args), nil
}

func (s *Server) handleClipboardRead(ctx context.Context, req *mcpsdk.CallToolRequest, input ClipboardReadInput) (*mcpsdk.CallToolResult, ClipboardReadOutput, error) {
	adapter, d, err := s.gateClipboard(OpClipboardRead, nil, func(c profile.Clipboard) string { return c.Read })
	if err != nil {
		return nil, ClipboardReadOutput{}, err
	}
	if !d.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, ClipboardReadOutput{Blocked: true, Verdict: d.Verdict, Reason: d.Reason}, nil
	}

	body, err := s.bus.Call(ctx, bus.Call{
		Bus:       bus.Session,
		Service:   adapter.Service,
		Path:      adapter.Path,
		Interface: adapter.Interface,
		Method:    adapter.Read,
	})
	if err != nil {
		return nil, ClipboardReadOutput{}, fmt.Errorf("clipboard read failed: %w", err)
	}
	if len(body) != 1 {
		return nil, ClipboardReadOutput{}, fmt.Errorf("clipboard read: reply has %d values", len(body))
	}
	text, ok := body[0].(string)
	if !ok {
		return nil, ClipboardReadOutput{}, fmt.Errorf("clipboard read: reply is %T, not text", body[0])
	}
	return nil, ClipboardReadOutput{Text: text}, nil
}

func (s *Server) handleClipboardWrite(ctx context.Context, req *mcpsdk.CallToolRequest, input ClipboardWriteInput) (*mcpsdk.CallToolResult, ClipboardWriteOutput, error) {
	// Clipboard text is not audited, only its size.
	args := map[string]any{"length": utf8.RuneCountInString(input.Text)}
	adapter, d, err := s.gateClipboard(OpClipboardWrite, args, func(c profile.Clipboard) string { return c.Write })
	if err != nil {
		return nil, ClipboardWriteOutput{}, err
	}
	if !d.Allowed {
		return &mcpsdk.CallToolResult{IsError: true}, ClipboardWriteOutput{Blocked: true, Verdict: d.Verdict, Reason: d.Reason}, nil
	}

	_, err = s.bus.Call(ctx, bus.Call{
		Bus:       bus.Session,
		Service:   adapter.Service,
		Path:      adapter.Path,
		Interface: adapter.Interface,
		Method:    adapter.Write,
		Args:      []any{input.Text},
	})
	if err != nil {
		return nil, ClipboardWriteOutput{}, fmt.Errorf("clipboard write failed: %w", err)
	}
	return nil, ClipboardWriteOutput{Written: true}, nil
}
