// internal/link/link.go
package link

import (
	"context"
	"errors"
	"log"
	"time"
)

// Transport abstracts the Modbus TCP client so the link state machine can
// be tested against a fake. Implementations return *ProtocolError for
// device exception responses; any other error is treated as a
// connection-level failure.
type Transport interface {
	Connect() error
	Close() error
	ReadHoldingRegisters(unitID byte, address, quantity uint16) ([]uint16, error)
}

// State is the connection lifecycle state, owned by the single polling
// goroutine that drives the link.
type State uint8

const (
	Disconnected State = iota
	Connected
	BackingOff
)

func (s State) String() string {
	switch s {
	case Connected:
		return "CONNECTED"
	case BackingOff:
		return "BACKING_OFF"
	default:
		return "DISCONNECTED"
	}
}

const (
	// DefaultInitialDelay is the first reconnect delay after a failure.
	DefaultInitialDelay = 1 * time.Second
	// DefaultMaxDelay caps the doubling reconnect delay.
	DefaultMaxDelay = 60 * time.Second
)

// Link owns one device connection: connect, read holding registers, and
// reconnect with exponential backoff. One Link per device; no shared
// mutable state between links.
type Link struct {
	transport Transport
	logger    *log.Logger

	state   State
	delay   time.Duration
	initial time.Duration
	max     time.Duration

	// sleep is swapped out in tests to observe the backoff sequence.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a link in the DISCONNECTED state.
func New(t Transport, logger *log.Logger) *Link {
	return &Link{
		transport: t,
		logger:    logger,
		state:     Disconnected,
		delay:     DefaultInitialDelay,
		initial:   DefaultInitialDelay,
		max:       DefaultMaxDelay,
		sleep:     sleepCtx,
	}
}

// State reports the current connection state.
func (l *Link) State() State { return l.state }

// Read performs one holding-register read, connecting first if needed.
//
// On a connection-level failure the link transitions to BACKING_OFF,
// sleeps the current delay (ctx-aware), doubles it up to the cap, and
// returns a *ConnError; the next Read attempts to reconnect. On a device
// exception response it returns the *ProtocolError without touching the
// connection. The delay resets to the initial value on the first
// successful connect+read after a failure streak.
func (l *Link) Read(ctx context.Context, unitID byte, address, quantity uint16) ([]uint16, error) {
	if l.state != Connected {
		if err := l.transport.Connect(); err != nil {
			l.backoff(ctx, &ConnError{Op: "connect", Err: err})
			return nil, &ConnError{Op: "connect", Err: err}
		}
		l.setState(Connected)
	}

	regs, err := l.transport.ReadHoldingRegisters(unitID, address, quantity)
	if err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			// Application-level rejection; connection stays up.
			return nil, pe
		}
		// A read failure right after a successful connect still re-enters
		// the backoff cycle rather than looping tightly.
		l.transport.Close()
		l.setState(Disconnected)
		l.backoff(ctx, &ConnError{Op: "read", Err: err})
		return nil, &ConnError{Op: "read", Err: err}
	}

	if l.delay != l.initial {
		l.logger.Printf("link: recovered, backoff reset to %s", l.initial)
		l.delay = l.initial
	}
	return regs, nil
}

// Close tears down the transport connection.
func (l *Link) Close() error {
	l.setState(Disconnected)
	return l.transport.Close()
}

func (l *Link) setState(s State) {
	if l.state == s {
		return
	}
	l.logger.Printf("link: %s -> %s", l.state, s)
	l.state = s
}

// backoff sleeps the current delay and doubles it, capped at max.
// Shutdown is honored during the sleep.
func (l *Link) backoff(ctx context.Context, cause error) {
	l.setState(BackingOff)
	l.logger.Printf("link: %v; retrying in %s", cause, l.delay)
	if err := l.sleep(ctx, l.delay); err != nil {
		return
	}
	next := l.delay * 2
	if next > l.max {
		next = l.max
	}
	if next != l.delay {
		l.logger.Printf("link: backoff delay now %s", next)
	}
	l.delay = next
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
