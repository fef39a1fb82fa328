// Package bus is the desktop message bus adapter used by the MCP tools.
// It never makes policy decisions; callers check with the policy engine
// before dispatching a call.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// Kind selects the session or system bus.
type Kind string

const (
	Session Kind = "session"
	System  Kind = "system"
)

// ParseKind accepts "session" (or empty) and "system".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "", string(Session):
		return Session, nil
	case string(System):
		return System, nil
	default:
		return "", fmt.Errorf("unknown bus %q: must be session or system", s)
	}
}

// Call addresses one method invocation.
type Call struct {
	Bus       Kind
	Service   string
	Path      string
	Interface string
	Method    string
	Args      []any
}

// Member returns the fully qualified "interface.method" name.
func (c Call) Member() string {
	return c.Interface + "." + c.Method
}

// Validate checks the addressing fields.
func (c Call) Validate() error {
	var errs []error
	if c.Service == "" {
		errs = append(errs, errors.New("service is required"))
	}
	if !godbus.ObjectPath(c.Path).IsValid() {
		errs = append(errs, fmt.Errorf("invalid object path %q", c.Path))
	}
	if c.Interface == "" {
		errs = append(errs, errors.New("interface is required"))
	}
	if c.Method == "" || strings.Contains(c.Method, ".") {
		errs = append(errs, fmt.Errorf("invalid method name %q", c.Method))
	}
	return errors.Join(errs...)
}

// Caller performs bus calls.
type Caller interface {
	Call(ctx context.Context, call Call) ([]any, error)
	ListNames(ctx context.Context, kind Kind) ([]string, error)
}

// DefaultTimeout bounds a call when the context carries no deadline.
const DefaultTimeout = 25 * time.Second

type dialer func(Kind) (*godbus.Conn, error)

func dial(kind Kind) (*godbus.Conn, error) {
	if kind == System {
		return godbus.ConnectSystemBus()
	}
	return godbus.ConnectSessionBus()
}

// Client is a Caller backed by real bus connections, opened on first use
// and shared afterwards.
type Client struct {
	mu      sync.Mutex
	conns   map[Kind]*godbus.Conn
	dial    dialer
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient returns a client that connects lazily.
func NewClient(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		conns:   make(map[Kind]*godbus.Conn),
		dial:    dial,
		timeout: DefaultTimeout,
		logger:  logger.With(zap.String("mod", "bus")),
	}
}

func (c *Client) conn(kind Kind) (*godbus.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[kind]; ok && conn.Connected() {
		return conn, nil
	}
	conn, err := c.dial(kind)
	if err != nil {
		return nil, fmt.Errorf("connect to %s bus: %w", kind, err)
	}
	c.conns[kind] = conn
	c.logger.Debug("bus connected", zap.String("bus", string(kind)))
	return conn, nil
}

// Call invokes a method and returns its reply body.
func (c *Client) Call(ctx context.Context, call Call) ([]any, error) {
	if err := call.Validate(); err != nil {
		return nil, err
	}
	conn, err := c.conn(call.Bus)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	obj := conn.Object(call.Service, godbus.ObjectPath(call.Path))
	res := obj.CallWithContext(ctx, call.Member(), 0, call.Args...)
	if res.Err != nil {
		return nil, fmt.Errorf("%s on %s: %w", call.Member(), call.Service, res.Err)
	}
	return res.Body, nil
}

// ListNames returns the names currently owned on the bus.
func (c *Client) ListNames(ctx context.Context, kind Kind) ([]string, error) {
	conn, err := c.conn(kind)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return nil, fmt.Errorf("list names on %s bus: %w", kind, err)
	}
	return names, nil
}

// Close closes every open connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for kind, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s bus: %w", kind, err))
		}
		delete(c.conns, kind)
	}
	return errors.Join(errs...)
}
