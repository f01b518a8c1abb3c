// Package scheduler wires up the cron job that periodically triggers a
// crawl cycle.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// CycleRunner runs one crawl cycle; ticks while a cycle is in flight are
// rejected by the runner itself.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Scheduler wraps robfig/cron and manages the crawl loop.
type Scheduler struct {
	cron   *cron.Cron
	runner CycleRunner
	spec   string
	eager  bool
	wg     sync.WaitGroup
}

// New creates a Scheduler that fires every interval, optionally running one
// cycle eagerly at startup.
func New(runner CycleRunner, interval time.Duration, eager bool) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		spec:   fmt.Sprintf("@every %s", interval),
		eager:  eager,
	}
}

// Start registers the job and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if err := s.runner.RunCycle(ctx); err != nil {
			log.Printf("[scheduler] Crawl cycle error: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started with spec %s", s.spec)

	if s.eager {
		// Run immediately on startup (non-blocking); cron does not track
		// this goroutine, so Stop waits on it separately.
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.runner.RunCycle(ctx); err != nil {
				log.Printf("[scheduler] Startup crawl cycle error: %v", err)
			}
		}()
	}

	return nil
}

// Stop prevents further cycles from being scheduled and blocks until every
// in-flight cycle, including the eager startup one, has completed.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	log.Println("[scheduler] Cron stopped")
}
