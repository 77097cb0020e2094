// internal/poll/engine.go
package poll

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/fcolinet/wxmodbus/internal/decode"
	"github.com/fcolinet/wxmodbus/internal/link"
)

// Link is the read contract the engine depends on. *link.Link satisfies
// it; tests inject fakes.
type Link interface {
	Read(ctx context.Context, unitID byte, address, quantity uint16) ([]uint16, error)
}

// Config is the minimal runtime config the engine needs.
type Config struct {
	Interval time.Duration
	Groups   []GroupSpec
}

// Engine drives one device link sequentially: one round per interval,
// one in-flight read at a time.
type Engine struct {
	cfg    Config
	link   Link
	sink   Sink
	logger *log.Logger

	now func() time.Time
}

// New creates an engine with immutable config.
func New(cfg Config, l Link, sink Sink, logger *log.Logger) (*Engine, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("poll: interval must be > 0")
	}
	if len(cfg.Groups) == 0 {
		return nil, errors.New("poll: at least one sensor group required")
	}
	if l == nil || sink == nil {
		return nil, errors.New("poll: link and sink required")
	}
	return &Engine{cfg: cfg, link: l, sink: sink, logger: logger, now: time.Now}, nil
}

// PollOnce performs one round: every group is attempted, every error is
// contained within the round. Recoverable failures surface as log lines
// and missing readings, never as a returned error.
func (e *Engine) PollOnce(ctx context.Context) {
	at := e.now()

	for _, g := range e.cfg.Groups {
		regs, err := e.link.Read(ctx, g.UnitID, g.Start, g.Length)
		if err != nil {
			var pe *link.ProtocolError
			if errors.As(err, &pe) {
				// Device rejected this group's request; the round goes on.
				e.logger.Printf("poll: group %q: %v; skipping this round", g.Name, pe)
				continue
			}
			// Connection-level failure. Backoff already happened inside
			// the link; no group-level retry on top of it.
			e.logger.Printf("poll: group %q: %v; skipping this round", g.Name, err)
			continue
		}

		for _, f := range g.Fields {
			v, err := decode.Decode(regs, f, g.Order)
			if err != nil {
				// Short read. The group passed validation, so the device
				// returned fewer registers than requested.
				e.logger.Printf("poll: group %q: %v; field skipped", g.Name, err)
				continue
			}
			if err := e.sink.Publish(Reading{Field: f.Name, Value: v, At: at}); err != nil {
				e.logger.Printf("poll: publish %q: %v", f.Name, err)
			}
		}
	}
}

// Run polls until ctx is canceled. The interval is measured between round
// starts; a round that overruns delays the next one until it finishes
// (the pending tick fires immediately) but rounds never overlap.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.PollOnce(ctx)
		}
	}
}
