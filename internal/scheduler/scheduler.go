package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// JobID is the typed key of a scheduled job. IDs are constructed by the
// helpers below, never by ad hoc string concatenation at call sites.
type JobID string

// OutboxDrainJob is the periodic storage-purge drain.
const OutboxDrainJob JobID = "outbox:drain"

// StallCheckJob keys the delayed progress recheck of one asset.
func StallCheckJob(assetID string) JobID {
	return JobID("stall:" + assetID)
}

// Handler runs when a job fires. The context is the scheduler's lifetime.
type Handler func(ctx context.Context)

type job struct {
	timer    *time.Timer
	ticker   *time.Ticker
	stopOnce sync.Once
	stop     chan struct{}
}

// Scheduler is an explicit in-process job table: every pending delayed or
// periodic task is an entry keyed by JobID, with replace and cancel
// operations. Entries live only in memory; anything that must survive a
// restart belongs in the deletion outbox, not here.
type Scheduler struct {
	mu     sync.Mutex
	jobs   map[JobID]*job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an empty scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[JobID]*job),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ScheduleOnce arms a one-shot job after delay, replacing any pending job
// with the same ID.
func (s *Scheduler) ScheduleOnce(id JobID, delay time.Duration, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)

	j := &job{stop: make(chan struct{})}
	j.timer = time.AfterFunc(delay, func() {
		// The liveness check and the Add must happen under the mutex:
		// otherwise a callback that passed the check could register with
		// the WaitGroup after Stop has started waiting on it.
		s.mu.Lock()
		select {
		case <-s.ctx.Done():
			s.mu.Unlock()
			return
		case <-j.stop:
			s.mu.Unlock()
			return
		default:
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()

		handler(s.ctx)

		s.mu.Lock()
		if s.jobs[id] == j {
			delete(s.jobs, id)
		}
		s.mu.Unlock()
	})

	s.jobs[id] = j
	log.Debug().Str("job", string(id)).Dur("delay", delay).Msg("scheduled job")
}

// ScheduleEvery arms a periodic job, replacing any pending job with the
// same ID. The first run happens after one interval.
func (s *Scheduler) ScheduleEvery(id JobID, interval time.Duration, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)

	j := &job{stop: make(chan struct{}), ticker: time.NewTicker(interval)}
	s.jobs[id] = j

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-j.stop:
				return
			case <-j.ticker.C:
				handler(s.ctx)
			}
		}
	}()

	log.Debug().Str("job", string(id)).Dur("interval", interval).Msg("scheduled periodic job")
}

// Cancel removes a pending job. Cancelling an unknown ID is a no-op.
func (s *Scheduler) Cancel(id JobID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

// Pending reports whether a job with this ID is currently armed.
func (s *Scheduler) Pending(id JobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Stop cancels every job and waits for in-flight handlers to return.
func (s *Scheduler) Stop() {
	s.cancel()

	s.mu.Lock()
	for id := range s.jobs {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) removeLocked(id JobID) {
	j, ok := s.jobs[id]
	if !ok {
		return
	}

	j.stopOnce.Do(func() { close(j.stop) })
	if j.timer != nil {
		j.timer.Stop()
	}
	if j.ticker != nil {
		j.ticker.Stop()
	}
	delete(s.jobs, id)
}
