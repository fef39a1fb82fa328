package bus

import (
	"context"
	"fmt"

	godbus "github.com/godbus/dbus/v5"
)

const (
	NotificationsService   = "org.freedesktop.Notifications"
	NotificationsPath      = "/org/freedesktop/Notifications"
	NotificationsInterface = "org.freedesktop.Notifications"
)

// Urgency levels for the freedesktop "urgency" hint.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// Notification is a desktop notification request.
type Notification struct {
	AppName string
	Summary string
	Body    string
	Icon    string
	Urgency byte
	// ExpireMs is the display time in milliseconds; -1 lets the server decide.
	ExpireMs int32
}

// NotifyCall builds the Notify call for n.
func NotifyCall(n Notification) Call {
	app := n.AppName
	if app == "" {
		app = "busgate"
	}
	hints := map[string]godbus.Variant{
		"urgency": godbus.MakeVariant(n.Urgency),
	}
	return Call{
		Bus:       Session,
		Service:   NotificationsService,
		Path:      NotificationsPath,
		Interface: NotificationsInterface,
		Method:    "Notify",
		Args: []any{
			app,
			uint32(0),
			n.Icon,
			n.Summary,
			n.Body,
			[]string{},
			hints,
			n.ExpireMs,
		},
	}
}

// Notify sends n and returns the server-assigned notification ID.
func Notify(ctx context.Context, c Caller, n Notification) (uint32, error) {
	body, err := c.Call(ctx, NotifyCall(n))
	if err != nil {
		return 0, err
	}
	if len(body) != 1 {
		return 0, fmt.Errorf("notify: unexpected reply of %d values", len(body))
	}
	id, ok := body[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("notify: unexpected reply type %T", body[0])
	}
	return id, nil
}

// ParseUrgency maps "low", "normal" and "critical" to hint values.
func ParseUrgency(s string) (byte, error) {
	switch s {
	case "low":
		return UrgencyLow, nil
	case "", "normal":
		return UrgencyNormal, nil
	case "critical":
		return UrgencyCritical, nil
	default:
		return 0, fmt.Errorf("unknown urgency %q", s)
	}
}
