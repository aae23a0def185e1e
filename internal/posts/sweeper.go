package posts

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RunSweeper deletes expired posts every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration, log *zap.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.sweepOnce(ctx, log)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context, log *zap.Logger) {
	n, err := s.Sweep(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn("post sweep failed", zap.Int64("deleted", n), zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("expired posts deleted", zap.Int64("deleted", n))
	}
}
