package scheduler

import (
	"context"
	"time"

	"github.com/ikkim/storefront-cart/pkg/logger"
	"github.com/robfig/cron/v3"
)

// IdleEvictor unloads sessions that have not been used for maxIdle.
type IdleEvictor interface {
	EvictIdle(maxIdle time.Duration) int
}

// ExpiredPurger deletes persisted guest carts past their TTL. Only storage
// without native expiry needs one.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionJanitor periodically unloads idle cart sessions and purges expired
// guest carts.
type SessionJanitor struct {
	cron    *cron.Cron
	spec    string
	idleTTL time.Duration
	evictor IdleEvictor
	purger  ExpiredPurger
	log     *logger.Logger
}

// NewSessionJanitor creates the janitor. purger may be nil.
func NewSessionJanitor(spec string, idleTTL time.Duration, evictor IdleEvictor, purger ExpiredPurger) *SessionJanitor {
	return &SessionJanitor{
		cron:    cron.New(),
		spec:    spec,
		idleTTL: idleTTL,
		evictor: evictor,
		purger:  purger,
		log:     logger.Component("session_janitor"),
	}
}

// Start schedules the janitor on its cron spec, e.g. "@every 5m"
func (j *SessionJanitor) Start() error {
	if _, err := j.cron.AddFunc(j.spec, j.RunOnce); err != nil {
		j.log.Error("Failed to add cron job for session janitor", err, map[string]interface{}{
			"spec": j.spec,
		})
		return err
	}

	j.cron.Start()
	j.log.Info("Session janitor started", map[string]interface{}{
		"spec":     j.spec,
		"idle_ttl": j.idleTTL.String(),
	})
	return nil
}

// RunOnce performs a single sweep.
func (j *SessionJanitor) RunOnce() {
	evicted := j.evictor.EvictIdle(j.idleTTL)

	var purged int64
	if j.purger != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := j.purger.PurgeExpired(ctx)
		if err != nil {
			j.log.Error("Failed to purge expired guest carts", err)
		}
		purged = n
	}

	j.log.Debug("Session janitor sweep finished", map[string]interface{}{
		"evicted": evicted,
		"purged":  purged,
	})
}

// Stop waits for a running sweep and stops the scheduler
func (j *SessionJanitor) Stop() {
	j.log.Info("Stopping session janitor...")
	<-j.cron.Stop().Done()
	j.log.Info("Session janitor stopped")
}
