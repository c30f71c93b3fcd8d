package booking

import (
	"context"
	"log/slog"
	"time"
)

// ListingExpirer is the slice of the catalog the sweeper drives.
type ListingExpirer interface {
	ExpireDue() (int, error)
}

// Sweeper runs the two timed behaviors as periodic checks: listings
// whose departure date passed while still active, and deliveries the
// shipper never confirmed.
type Sweeper struct {
	Lifecycle     *Lifecycle
	Catalog       ListingExpirer
	Interval      time.Duration
	CompleteAfter time.Duration
	Logger        *slog.Logger
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	if s.Catalog != nil {
		if n, err := s.Catalog.ExpireDue(); err != nil {
			s.Logger.Error("listing expiry sweep failed", "error", err)
		} else if n > 0 {
			s.Logger.Info("listings expired", "count", n)
		}
	}
	if n, err := s.Lifecycle.AutoCompleteDue(s.CompleteAfter); err != nil {
		s.Logger.Error("auto-complete sweep failed", "error", err)
	} else if n > 0 {
		s.Logger.Info("bookings auto-completed", "count", n)
	}
}
