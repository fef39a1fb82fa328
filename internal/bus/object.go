package bus

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/godbus/dbus/v5/introspect"
)

// Standard interfaces every bus object may implement.
const (
	PropertiesInterface     = "org.freedesktop.DBus.Properties"
	IntrospectableInterface = "org.freedesktop.DBus.Introspectable"
)

// PropertyCall builds the Properties.Get call for one property.
func PropertyCall(kind Kind, service, path, iface, prop string) Call {
	return Call{
		Bus:       kind,
		Service:   service,
		Path:      path,
		Interface: PropertiesInterface,
		Method:    "Get",
		Args:      []any{iface, prop},
	}
}

// GetProperty reads one property and returns its value with the variant
// unwrapped, as Plain would.
func GetProperty(ctx context.Context, c Caller, kind Kind, service, path, iface, prop string) (any, error) {
	body, err := c.Call(ctx, PropertyCall(kind, service, path, iface, prop))
	if err != nil {
		return nil, err
	}
	if len(body) != 1 {
		return nil, fmt.Errorf("property %s.%s: reply has %d values", iface, prop, len(body))
	}
	return Plain(body[0]), nil
}

// IntrospectCall builds the Introspect call for an object.
func IntrospectCall(kind Kind, service, path string) Call {
	return Call{
		Bus:       kind,
		Service:   service,
		Path:      path,
		Interface: IntrospectableInterface,
		Method:    "Introspect",
	}
}

// Introspect fetches and parses an object's introspection document.
func Introspect(ctx context.Context, c Caller, kind Kind, service, path string) (*introspect.Node, error) {
	body, err := c.Call(ctx, IntrospectCall(kind, service, path))
	if err != nil {
		return nil, err
	}
	if len(body) != 1 {
		return nil, fmt.Errorf("introspect %s %s: reply has %d values", service, path, len(body))
	}
	doc, ok := body[0].(string)
	if !ok {
		return nil, fmt.Errorf("introspect %s %s: reply is %T, not a string", service, path, body[0])
	}
	var node introspect.Node
	if err := xml.Unmarshal([]byte(doc), &node); err != nil {
		return nil, fmt.Errorf("introspect %s %s: %w", service, path, err)
	}
	return &node, nil
}

// Signature joins the types of the arguments flowing in one direction
// ("in" or "out"). Method arguments without a direction are inputs.
func Signature(args []introspect.Arg, direction string) string {
	var sig string
	for _, a := range args {
		dir := a.Direction
		if dir == "" {
			dir = "in"
		}
		if dir == direction {
			sig += a.Type
		}
	}
	return sig
}
