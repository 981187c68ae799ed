package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Schedule computes when a job runs next.
type Schedule interface {
	Next(now time.Time) time.Time
	String() string
}

type every time.Duration

// Every runs a job d after the previous run completed.
func Every(d time.Duration) Schedule { return every(d) }

func (e every) Next(now time.Time) time.Time { return now.Add(time.Duration(e)) }
func (e every) String() string               { return "every " + time.Duration(e).String() }

type alignedEvery time.Duration

// AlignedEvery runs a job d after the previous run completed, rounded down
// to second :00 of that minute.
func AlignedEvery(d time.Duration) Schedule { return alignedEvery(d) }

func (a alignedEvery) Next(now time.Time) time.Time {
	next := now.Add(time.Duration(a))
	return next.Add(-time.Duration(next.Second())*time.Second - time.Duration(next.Nanosecond()))
}

func (a alignedEvery) String() string {
	return "every " + time.Duration(a).String() + " at :00"
}

type dailyAt struct {
	hour, minute, second int
}

// ParseDailyAt parses "HH:MM" or "HH:MM:SS" into a schedule that fires once a
// day at that local time.
func ParseDailyAt(s string) (Schedule, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return nil, fmt.Errorf("invalid time of day %q: want HH:MM or HH:MM:SS", s)
	}
	limits := []int{23, 59, 59}
	vals := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || len(p) != 2 || n < 0 || n > limits[i] {
			return nil, fmt.Errorf("invalid time of day %q", s)
		}
		vals[i] = n
	}
	return dailyAt{hour: vals[0], minute: vals[1], second: vals[2]}, nil
}

func (d dailyAt) Next(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), d.hour, d.minute, d.second, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, d.hour, d.minute, d.second, 0, now.Location())
	}
	return next
}

func (d dailyAt) String() string {
	return fmt.Sprintf("daily at %02d:%02d:%02d", d.hour, d.minute, d.second)
}

// Job is one scheduled unit of work.
type Job struct {
	Name       string
	Schedule   Schedule
	RunAtStart bool
	Run        func(ctx context.Context)

	next time.Time
}

// NextRun returns when the job is due next. It is zero before Start.
func (j *Job) NextRun() time.Time { return j.next }

// Scheduler runs jobs from a single goroutine on a fixed tick. Due jobs run
// one at a time in registration order; a job's next run is computed from
// the time it completed.
type Scheduler struct {
	tick   time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu   sync.Mutex // guards jobs
	jobs []*Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that checks for due jobs every tick.
func NewScheduler(tick time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{tick: tick, now: time.Now, logger: logger}
}

// Add registers a job. Jobs added after Start are scheduled from the next
// tick.
func (s *Scheduler) Add(j *Job) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.next = j.Schedule.Next(s.now())
	s.jobs = append(s.jobs, j)
	return j
}

// Start runs the jobs flagged RunAtStart, then begins the tick loop in a
// goroutine. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		s.runAtStart(s.ctx)

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.RunPending(s.ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the running job to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Running reports whether the scheduler loop is active.
func (s *Scheduler) Running() bool {
	return s.ctx != nil && s.ctx.Err() == nil
}

// Jobs returns the registered jobs.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

func (s *Scheduler) runAtStart(ctx context.Context) {
	for _, j := range s.Jobs() {
		if ctx.Err() != nil {
			return
		}
		if j.RunAtStart {
			s.run(ctx, j)
		}
	}
}

// RunPending runs every job that is due, in order.
func (s *Scheduler) RunPending(ctx context.Context) {
	for _, j := range s.Jobs() {
		if ctx.Err() != nil {
			return
		}
		if !s.now().Before(j.next) {
			s.run(ctx, j)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j *Job) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", zap.String("job", j.Name), zap.Any("panic", r))
		}
		s.mu.Lock()
		j.next = j.Schedule.Next(s.now())
		s.mu.Unlock()
		s.logger.Debug("job scheduled", zap.String("job", j.Name), zap.Time("next_run", j.next))
	}()
	j.Run(ctx)
}
