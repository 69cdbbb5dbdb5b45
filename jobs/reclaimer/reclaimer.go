// Package reclaimer advances a reclamation domain on a fixed interval.
package reclaimer

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"rc/infra/memory"
)

type Reclaimer struct {
	domain   *memory.Domain
	interval time.Duration
	log      zerolog.Logger
}

func New(d *memory.Domain, interval time.Duration, log zerolog.Logger) *Reclaimer {
	return &Reclaimer{
		domain:   d,
		interval: interval,
		log:      log.With().Str("job", "reclaimer").Logger(),
	}
}

// Run advances the domain every interval until ctx is done, then drains
// whatever is still pending.
func (r *Reclaimer) Run(ctx context.Context) error {
	r.log.Info().Dur("interval", r.interval).Msg("reclaimer started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n := r.domain.Drain()
			r.log.Info().Int("drained", n).Msg("reclaimer stopped")
			return nil
		case <-ticker.C:
			r.domain.Advance()
		}
	}
}
