package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leozw/portfolio-guardian/internal/core"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	ErrUnknownSweep   = errors.New("unknown sweep")
	ErrAlreadyRunning = errors.New("sweep already running")
)

// Sweep is one periodic job. Run returns an error only when the batch could
// not be loaded at all.
type Sweep interface {
	Name() string
	Run(ctx context.Context) (*core.Summary, error)
}

// Recorder receives every finished run, typically the metrics collector.
type Recorder interface {
	ObserveSweep(summary *core.Summary, elapsed time.Duration, runErr error)
}

// Status is the externally visible state of one registered sweep.
type Status struct {
	Name        string        `json:"name"`
	Schedule    string        `json:"schedule"`
	Running     bool          `json:"running"`
	NextRun     *time.Time    `json:"next_run,omitempty"`
	LastRun     *time.Time    `json:"last_run,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	LastSummary *core.Summary `json:"last_summary,omitempty"`
}

type Scheduler struct {
	cron     *cron.Cron
	parser   cron.Parser
	recorder Recorder
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
	baseCtx context.Context
	wg      sync.WaitGroup
}

func NewScheduler(recorder Recorder, logger *zap.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:     cron.New(cron.WithParser(parser)),
		parser:   parser,
		recorder: recorder,
		logger:   logger,
		entries:  make(map[string]*entry),
		baseCtx:  context.Background(),
	}
}

// Register adds a sweep, or replaces the one with the same name. An empty
// schedule registers the sweep for on-demand runs only.
func (s *Scheduler) Register(sw Sweep, schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule != "" {
		if _, err := s.parser.Parse(schedule); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", schedule, sw.Name(), err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[sw.Name()]
	if ok {
		if e.cronID != 0 {
			s.cron.Remove(e.cronID)
			e.cronID = 0
		}
		e.setSweep(sw)
	} else {
		e = newEntry(sw)
		s.entries[sw.Name()] = e
	}
	e.schedule = schedule

	if schedule != "" {
		id, err := s.cron.AddFunc(schedule, func() {
			if _, err := s.execute(s.context(), e); err != nil && !errors.Is(err, ErrAlreadyRunning) {
				s.logger.Error("Scheduled sweep failed", zap.String("sweep", e.name), zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
		e.cronID = id
	}

	s.logger.Info("Sweep registered", zap.String("sweep", sw.Name()), zap.String("schedule", schedule))
	return nil
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

// Start runs the cron loop until ctx is done, then waits for in-flight
// sweeps.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info("Starting scheduler", zap.Int("sweeps", len(s.Status())))
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info("Stopping scheduler")
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// RunNow runs a sweep immediately. It fails with ErrAlreadyRunning instead of
// overlapping a run in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*core.Summary, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSweep, name)
	}
	return s.execute(ctx, e)
}

func (s *Scheduler) Status() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		st := e.status()
		if e.cronID != 0 {
			if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
				st.NextRun = &next
			}
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns a registered sweep by name.
func (s *Scheduler) Lookup(name string) (Sweep, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return e.current(), true
}
