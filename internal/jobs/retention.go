package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const retentionRunTimeout = 30 * time.Second

// EventTrimmer drops analytics events older than a retention window.
type EventTrimmer interface {
	TrimEvents(ctx context.Context, retention time.Duration) (int64, error)
}

// ExpiredKeyDeleter removes API keys past their expiry.
type ExpiredKeyDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// RetentionJob periodically trims the analytics event log and, when a
// database is configured, deletes expired API keys. Sessions need no sweep:
// the store expires them.
type RetentionJob struct {
	events    EventTrimmer
	keys      ExpiredKeyDeleter
	retention time.Duration
	interval  time.Duration
	done      chan struct{}
	stopOnce  sync.Once
}

// NewRetentionJob accepts a nil keys deleter.
func NewRetentionJob(
	events EventTrimmer,
	keys ExpiredKeyDeleter,
	retention time.Duration,
	interval time.Duration,
) *RetentionJob {
	return &RetentionJob{
		events:    events,
		keys:      keys,
		retention: retention,
		interval:  interval,
		done:      make(chan struct{}),
	}
}

func (j *RetentionJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("retention job started")
}

func (j *RetentionJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("retention job stopped")
	})
}

func (j *RetentionJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *RetentionJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), retentionRunTimeout)
	defer cancel()

	j.runCleanup(ctx, "analytics events", func(ctx context.Context) (int64, error) {
		return j.events.TrimEvents(ctx, j.retention)
	})
	if j.keys != nil {
		j.runCleanup(ctx, "expired api keys", j.keys.DeleteExpired)
	}
}

func (j *RetentionJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
