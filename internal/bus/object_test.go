package bus

import (
	"context"
	"testing"

	godbus "github.com/godbus/dbus/v5"
)

const notificationsXML = `<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN"
 "http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">
<node>
  <interface name="org.freedesktop.Notifications">
    <method name="Notify">
      <arg type="s" direction="in"/>
      <arg type="u" direction="in"/>
      <arg type="u" direction="out"/>
    </method>
    <method name="GetCapabilities">
      <arg type="as" direction="out"/>
    </method>
    <signal name="NotificationClosed">
      <arg type="u"/>
      <arg type="u"/>
    </signal>
    <property name="Version" type="s" access="read"/>
  </interface>
  <node name="child"/>
</node>`

func TestIntrospect(t *testing.T) {
	f := &fakeCaller{reply: []any{notificationsXML}}
	node, err := Introspect(context.Background(), f, Session, NotificationsService, NotificationsPath)
	if err != nil {
		t.Fatalf("Introspect: %v", err)
	}
	if len(f.calls) != 1 || f.calls[0].Member() != "org.freedesktop.DBus.Introspectable.Introspect" {
		t.Errorf("unexpected calls %+v", f.calls)
	}
	if len(node.Interfaces) != 1 || len(node.Children) != 1 || node.Children[0].Name != "child" {
		t.Fatalf("unexpected node %+v", node)
	}
	methods := node.Interfaces[0].Methods
	if len(methods) != 2 {
		t.Fatalf("expected 2 methods, got %d", len(methods))
	}
	if in, out := Signature(methods[0].Args, "in"), Signature(methods[0].Args, "out"); in != "su" || out != "u" {
		t.Errorf("Notify signature in=%q out=%q", in, out)
	}
	if len(node.Interfaces[0].Properties) != 1 || node.Interfaces[0].Properties[0].Access != "read" {
		t.Errorf("unexpected properties %+v", node.Interfaces[0].Properties)
	}
}

func TestIntrospectBadReply(t *testing.T) {
	for _, reply := range [][]any{{uint32(1)}, {"<node"}, {}} {
		f := &fakeCaller{reply: reply}
		if _, err := Introspect(context.Background(), f, Session, "org.x", "/"); err == nil {
			t.Errorf("reply %v: expected error", reply)
		}
	}
}

func TestGetProperty(t *testing.T) {
	f := &fakeCaller{reply: []any{godbus.MakeVariant(float64(87))}}
	v, err := GetProperty(context.Background(), f, System, "org.freedesktop.UPower",
		"/org/freedesktop/UPower/devices/DisplayDevice", "org.freedesktop.UPower.Device", "Percentage")
	if err != nil {
		t.Fatal(err)
	}
	if v != float64(87) {
		t.Errorf("GetProperty = %#v, want 87", v)
	}
	c := f.calls[0]
	if c.Bus != System || c.Member() != "org.freedesktop.DBus.Properties.Get" || c.Args[1] != "Percentage" {
		t.Errorf("unexpected call %+v", c)
	}
}
