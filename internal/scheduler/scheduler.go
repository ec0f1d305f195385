package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zeromicro/go-zero/core/logx"
)

// Func is one run of a task. The context is cancelled on Stop.
type Func func(ctx context.Context) error

// Task is a named unit of background work. Interval tasks loop in their own
// goroutine; a non-empty Cron runs the task on the cron engine instead.
type Task struct {
	Name     string
	Interval time.Duration
	// Jitter adds a random [0, Jitter) to every sleep.
	Jitter time.Duration
	// MaxBackoff > 0 doubles the sleep per consecutive failure up to MaxBackoff.
	MaxBackoff time.Duration
	Cron       string
	Run        Func
}

func (t Task) validate() error {
	switch {
	case t.Name == "":
		return errors.New("scheduler: task name is required")
	case t.Run == nil:
		return fmt.Errorf("scheduler: task %s has no run func", t.Name)
	case t.Cron == "" && t.Interval <= 0:
		return fmt.Errorf("scheduler: task %s needs an interval or a cron spec", t.Name)
	}
	return nil
}

// Stats is a snapshot of one task's counters.
type Stats struct {
	Name                string        `json:"name"`
	Ticks               int64         `json:"ticks"`
	Failures            int64         `json:"failures"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastError           string        `json:"last_error,omitempty"`
	LastRun             time.Time     `json:"last_run"`
	LastDuration        time.Duration `json:"last_duration"`
}

type Scheduler struct {
	mu      sync.Mutex
	tasks   []Task
	stats   map[string]*Stats
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stop    sync.Once
	rnd     *rand.Rand
	now     func() time.Time
}

type Option func(*Scheduler)

// WithLocation sets the timezone cron specs are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.cron = newCron(loc)
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		stats: map[string]*Stats{},
		cron:  newCron(time.Local),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newCron(loc *time.Location) *cron.Cron {
	l := cronLogger{}
	return cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		cron.WithLogger(l),
	)
}

// Add registers a task. Tasks added after Start are rejected.
func (s *Scheduler) Add(t Task) error {
	if err := t.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: add %s after start", t.Name)
	}
	if _, dup := s.stats[t.Name]; dup {
		return fmt.Errorf("scheduler: duplicate task %s", t.Name)
	}
	if t.Cron != "" {
		if _, err := cron.ParseStandard(t.Cron); err != nil {
			return fmt.Errorf("scheduler: task %s cron %q: %w", t.Name, t.Cron, err)
		}
	}
	s.tasks = append(s.tasks, t)
	s.stats[t.Name] = &Stats{Name: t.Name}
	return nil
}

// Start launches every task. Interval tasks run immediately, then after
// each sleep.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler: already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true

	for _, t := range s.tasks {
		if t.Cron != "" {
			task := t
			if _, err := s.cron.AddFunc(task.Cron, func() { s.runOnce(s.ctx, task) }); err != nil {
				s.cancel()
				return fmt.Errorf("scheduler: register %s: %w", task.Name, err)
			}
			continue
		}
		s.wg.Add(1)
		go s.loop(t)
	}
	s.cron.Start()
	logx.Infof("scheduler: started tasks=%d", len(s.tasks))
	return nil
}

// Stop cancels every sleep and in-flight run, then waits for all loops and
// running cron jobs to return. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	s.stop.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
		s.wg.Wait()
		logx.Info("scheduler: stopped")
	})
}

func (s *Scheduler) loop(t Task) {
	defer s.wg.Done()
	for {
		failures := s.runOnce(s.ctx, t)
		if !Sleep(s.ctx, s.delay(t, failures)) {
			return
		}
	}
}

// delay is the sleep after a run with the given consecutive failure count.
func (s *Scheduler) delay(t Task, failures int) time.Duration {
	d := t.Interval
	if t.MaxBackoff > 0 && failures > 0 {
		for i := 0; i < failures && d < t.MaxBackoff; i++ {
			d *= 2
		}
		if d > t.MaxBackoff {
			d = t.MaxBackoff
		}
	}
	if t.Jitter > 0 {
		s.mu.Lock()
		d += time.Duration(s.rnd.Int63n(int64(t.Jitter)))
		s.mu.Unlock()
	}
	return d
}

// runOnce executes the task with panic recovery, updates stats and returns
// the consecutive failure count.
func (s *Scheduler) runOnce(ctx context.Context, t Task) int {
	if ctx.Err() != nil {
		return 0
	}
	start := s.now()
	err := safeRun(ctx, t)

	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[t.Name]
	st.Ticks++
	st.LastRun = start
	st.LastDuration = s.now().Sub(start)
	if err != nil && ctx.Err() == nil {
		st.Failures++
		st.ConsecutiveFailures++
		st.LastError = err.Error()
		logx.Errorf("scheduler: task=%s failures=%d err=%v", t.Name, st.ConsecutiveFailures, err)
	} else if err == nil {
		st.ConsecutiveFailures = 0
		st.LastError = ""
	}
	return st.ConsecutiveFailures
}

func safeRun(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			logx.Errorf("scheduler: task=%s panic=%v\n%s", t.Name, r, debug.Stack())
		}
	}()
	return t.Run(ctx)
}

// Stats returns a snapshot of every task, ordered by name.
func (s *Scheduler) Stats() []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Stats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// cronLogger routes cron's internal logging to logx.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logx.Debugf("scheduler: cron %s %v", msg, keysAndValues)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logx.Errorf("scheduler: cron %s %v err=%v", msg, keysAndValues, err)
}
