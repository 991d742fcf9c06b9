// Package scheduler triggers trading sessions and intraday stop-loss checks
// on exchange-local wall-clock times.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"robotrader/internal/logging"
	"robotrader/internal/models"
	"robotrader/pkg/utils"
)

// Config holds schedule settings.
type Config struct {
	Timezone    string `mapstructure:"timezone" default:"America/New_York" validate:"required"`
	Morning     string `mapstructure:"morning" default:"09:35" validate:"required"`
	Afternoon   string `mapstructure:"afternoon" default:"15:30" validate:"required"`
	MarketOpen  string `mapstructure:"market_open" default:"09:30" validate:"required"`
	MarketClose string `mapstructure:"market_close" default:"16:00" validate:"required"`
}

// SessionFunc runs one scheduled session.
type SessionFunc func(ctx context.Context, sessionType models.SessionType)

// CheckFunc runs one intraday check.
type CheckFunc func(ctx context.Context)

// Entry describes a registered job.
type Entry struct {
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	cron     *cron.Cron
	cfg      Config
	hours    utils.MarketHours
	location *time.Location
	logger   zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	entries map[cron.EntryID]Entry
}

// New creates a scheduler in the configured exchange time zone.
func New(cfg Config, logger zerolog.Logger) (*Scheduler, error) {
	hours, err := utils.NewMarketHours(cfg.Timezone, cfg.MarketOpen, cfg.MarketClose)
	if err != nil {
		return nil, err
	}
	log := logging.WithComponent(logger, "scheduler")
	cl := cronLogger{logger: log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(hours.Location),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		cfg:      cfg,
		hours:    hours,
		location: hours.Location,
		logger:   log,
		ctx:      context.Background(),
		entries:  make(map[cron.EntryID]Entry),
	}, nil
}

// Hours returns the market window used for intraday gating.
func (s *Scheduler) Hours() utils.MarketHours { return s.hours }

// IsMarketOpen reports whether now is within regular weekday hours.
func (s *Scheduler) IsMarketOpen(now time.Time) bool { return s.hours.IsOpen(now) }

// WeekdaySpec converts HH:MM into a weekday cron spec.
func WeekdaySpec(clock string) (string, error) {
	offset, err := utils.ParseClock(clock)
	if err != nil {
		return "", err
	}
	h := int(offset / time.Hour)
	m := int((offset % time.Hour) / time.Minute)
	return fmt.Sprintf("%d %d * * 1-5", m, h), nil
}

func (s *Scheduler) add(name, spec string, job func()) error {
	id, err := s.cron.AddFunc(spec, job)
	if err != nil {
		return fmt.Errorf("register %s task: %w", name, err)
	}
	s.mu.Lock()
	s.entries[id] = Entry{Name: name, Spec: spec}
	s.mu.Unlock()
	s.logger.Info().Str("job", name).Str("spec", spec).Msg("Registered scheduled task")
	return nil
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// RegisterSessions schedules MORNING and AFTERNOON sessions on weekdays.
func (s *Scheduler) RegisterSessions(run SessionFunc) error {
	for _, sess := range []struct {
		name  string
		clock string
		typ   models.SessionType
	}{
		{"morning_session", s.cfg.Morning, models.SessionMorning},
		{"afternoon_session", s.cfg.Afternoon, models.SessionAfternoon},
	} {
		spec, err := WeekdaySpec(sess.clock)
		if err != nil {
			return fmt.Errorf("%s: %w", sess.name, err)
		}
		typ := sess.typ
		if err := s.add(sess.name, spec, func() {
			ctx := s.jobContext()
			if ctx.Err() != nil {
				return
			}
			run(ctx, typ)
		}); err != nil {
			return err
		}
	}
	return nil
}

// RegisterIntraday runs check every interval while the market is open.
func (s *Scheduler) RegisterIntraday(interval time.Duration, check CheckFunc) error {
	if interval <= 0 {
		return fmt.Errorf("intraday interval must be positive, got %s", interval)
	}
	return s.add("intraday_stop_loss", "@every "+interval.String(), func() {
		ctx := s.jobContext()
		if ctx.Err() != nil || !s.hours.IsOpen(time.Now()) {
			return
		}
		check(ctx)
	})
}

// Start begins dispatching jobs. Jobs receive ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info().Str("timezone", s.location.String()).Msg("Scheduler started")
}

// Stop stops scheduling new jobs and returns a context that is done once
// running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	done := s.cron.Stop()
	s.logger.Info().Msg("Scheduler stopped")
	return done
}

// Entries lists registered jobs ordered by next run.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for _, e := range s.cron.Entries() {
		meta, ok := s.entries[e.ID]
		if !ok {
			continue
		}
		meta.Next = e.Next
		if meta.Next.IsZero() && e.Schedule != nil {
			meta.Next = e.Schedule.Next(time.Now().In(s.location))
		}
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

// NextSession returns the first session run strictly after now.
func (s *Scheduler) NextSession(now time.Time) (models.SessionType, time.Time, error) {
	var bestType models.SessionType
	var best time.Time
	for _, sess := range []struct {
		clock string
		typ   models.SessionType
	}{
		{s.cfg.Morning, models.SessionMorning},
		{s.cfg.Afternoon, models.SessionAfternoon},
	} {
		spec, err := WeekdaySpec(sess.clock)
		if err != nil {
			return "", time.Time{}, err
		}
		sched, err := cron.ParseStandard(spec)
		if err != nil {
			return "", time.Time{}, err
		}
		next := sched.Next(now.In(s.location))
		if best.IsZero() || next.Before(best) {
			best, bestType = next, sess.typ
		}
	}
	return bestType, best, nil
}

// cronLogger adapts zerolog to cron's logger interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
