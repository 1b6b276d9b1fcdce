package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

const purgeTimeout = time.Minute

// StartPurger removes cached quizzes older than ttl on the given cron schedule.
// It runs one purge immediately. Stop the returned cron to end the schedule.
func StartPurger(db *DB, schedule string, ttl time.Duration, logger *log.Logger) (*cron.Cron, error) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
		defer cancel()
		n, err := db.PurgeOlderThan(ctx, time.Now().Add(-ttl))
		if err != nil {
			logger.Printf("[CACHE-REAPER] purge error: %v", err)
			return
		}
		if n > 0 {
			logger.Printf("[CACHE-REAPER] purged %d cached quizzes", n)
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(schedule, run); err != nil {
		return nil, fmt.Errorf("invalid purge schedule %q: %w", schedule, err)
	}

	run()
	logger.Printf("[CACHE-REAPER] started schedule=%q ttl=%s", schedule, ttl)
	c.Start()
	return c, nil
}
