package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Error names that mean the destination did not answer in time.
const (
	errNoReply = "org.freedesktop.DBus.Error.NoReply"
	errTimeout = "org.freedesktop.DBus.Error.Timeout"
)

// BreakerFailures is how many consecutive unanswered calls open a
// service's breaker.
const BreakerFailures = 3

// Guarded wraps a Caller with one circuit breaker per destination service,
// so a hung service fails fast instead of holding every request for the
// full call timeout. Only unanswered calls count as failures; an error
// reply from the service is a normal result.
type Guarded struct {
	next   Caller
	logger *zap.Logger

	// cooldown is how long a breaker stays open before a trial call.
	cooldown time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ Caller = (*Guarded)(nil)

// NewGuarded wraps next.
func NewGuarded(next Caller, logger *zap.Logger) *Guarded {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guarded{
		next:     next,
		logger:   logger.With(zap.String("mod", "bus")),
		cooldown: 30 * time.Second,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (g *Guarded) breaker(service string) *gobreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, ok := g.breakers[service]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        service,
		MaxRequests: 1,
		Timeout:     g.cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !unanswered(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.logger.Warn("bus breaker state changed",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	g.breakers[service] = cb
	return cb
}

// Call forwards to the wrapped Caller unless the service's breaker is open.
func (g *Guarded) Call(ctx context.Context, call Call) ([]any, error) {
	res, err := g.breaker(call.Service).Execute(func() (interface{}, error) {
		return g.next.Call(ctx, call)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s is not responding: %w", call.Service, err)
	}
	body, _ := res.([]any)
	return body, err
}

// ListNames asks the bus daemon itself and is not guarded.
func (g *Guarded) ListNames(ctx context.Context, kind Kind) ([]string, error) {
	return g.next.ListNames(ctx, kind)
}

func unanswered(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var name string
	var de godbus.Error
	var dp *godbus.Error
	switch {
	case errors.As(err, &de):
		name = de.Name
	case errors.As(err, &dp):
		name = dp.Name
	}
	return name == errNoReply || name == errTimeout
}
