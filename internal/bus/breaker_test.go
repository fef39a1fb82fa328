package bus

import (
	"context"
	"errors"
	"fmt"
	"testing"

	godbus "github.com/godbus/dbus/v5"
	"github.com/sony/gobreaker"
)

func notifyCall(service string) Call {
	return Call{Service: service, Path: "/x", Interface: "x.Y", Method: "Do"}
}

func TestGuardedOpensAfterUnansweredCalls(t *testing.T) {
	f := &fakeCaller{err: fmt.Errorf("Do on org.hung: %w", godbus.Error{Name: errNoReply})}
	g := NewGuarded(f, nil)

	for i := 0; i < BreakerFailures; i++ {
		if _, err := g.Call(context.Background(), notifyCall("org.hung")); err == nil {
			t.Fatal("expected error from hung service")
		}
	}
	_, err := g.Call(context.Background(), notifyCall("org.hung"))
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if len(f.calls) != BreakerFailures {
		t.Errorf("open breaker must not reach the bus: %d calls", len(f.calls))
	}
}

func TestGuardedIgnoresErrorReplies(t *testing.T) {
	f := &fakeCaller{err: godbus.Error{Name: "org.freedesktop.DBus.Error.UnknownMethod"}}
	g := NewGuarded(f, nil)

	for i := 0; i < BreakerFailures*2; i++ {
		_, err := g.Call(context.Background(), notifyCall("org.x"))
		if errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("error replies must not open the breaker (call %d)", i)
		}
	}
	if len(f.calls) != BreakerFailures*2 {
		t.Errorf("expected every call forwarded, got %d", len(f.calls))
	}
}

func TestGuardedIsPerService(t *testing.T) {
	f := &fakeCaller{err: context.DeadlineExceeded}
	g := NewGuarded(f, nil)
	for i := 0; i < BreakerFailures; i++ {
		_, _ = g.Call(context.Background(), notifyCall("org.hung"))
	}

	f.err = nil
	f.reply = []any{uint32(7)}
	body, err := g.Call(context.Background(), notifyCall("org.healthy"))
	if err != nil {
		t.Fatalf("healthy service blocked by another service's breaker: %v", err)
	}
	if len(body) != 1 || body[0] != uint32(7) {
		t.Errorf("unexpected reply %v", body)
	}
}
