// Package connectivity turns periodic reachability checks into a stream of
// online/offline transitions.
package connectivity

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Pinger checks whether the remote is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe polls a Pinger
type Probe struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
}

// NewProbe creates a probe that pings every interval, each ping bounded by timeout
func NewProbe(p Pinger, interval, timeout time.Duration) *Probe {
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &Probe{pinger: p, interval: interval, timeout: timeout}
}

// Run pings immediately and then every interval. It sends the first result
// and afterwards only changes of state. The channel is closed when ctx ends.
func (p *Probe) Run(ctx context.Context) <-chan bool {
	out := make(chan bool)
	logger := log.With().Str("component", "connectivity").Logger()

	go func() {
		defer close(out)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last, known bool
		for {
			online := p.check(ctx)
			if !known || online != last {
				logger.Info().Bool("online", online).Msg("connectivity changed")
				select {
				case out <- online:
				case <-ctx.Done():
					return
				}
				last, known = online, true
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

func (p *Probe) check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.pinger.Ping(ctx) == nil
}
