package downloader

import (
	"context"
	"time"
)

// Pacer admits at most one worker per interval across the whole pool.
// A zero or negative interval admits everyone immediately.
type Pacer struct {
	ticker *time.Ticker
}

// NewPacer creates a Pacer. Call Stop when done.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{}
	}
	return &Pacer{ticker: time.NewTicker(interval)}
}

// Wait blocks until the next tick or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.ticker == nil {
		return ctx.Err()
	}
	select {
	case <-p.ticker.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop releases the underlying ticker.
func (p *Pacer) Stop() {
	if p.ticker != nil {
		p.ticker.Stop()
	}
}
