package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Warm keeps the cache filled in the background so requests rarely wait on
// upstream. It loads posts right away, then on every tick, until ctx is done.
// Ticks that find the cache fresh do not reach upstream.
func (s *Service) Warm(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.warm(ctx)
	for {
		select {
		case <-ctx.Done():
			log.WithField("source", s.source.Name()).Info("Stopped warming cache")
			return
		case <-ticker.C:
			s.warm(ctx)
		}
	}
}

func (s *Service) warm(ctx context.Context) {
	result, err := s.Posts(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.WithFields(log.Fields{
				"source": s.source.Name(),
				"error":  err,
			}).Error("Error warming cache")
		}
		return
	}

	log.WithFields(log.Fields{
		"source": s.source.Name(),
		"origin": result.Origin,
		"count":  len(result.Posts),
	}).Debug("Warmed cache")
}
