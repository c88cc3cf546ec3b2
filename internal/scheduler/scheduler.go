package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/heishia/thread-auto/internal/events"
	"github.com/heishia/thread-auto/internal/settings"
	"github.com/heishia/thread-auto/pkg/logging"
)

type Class string

const (
	ClassAutoGen  Class = "autogen"
	ClassReminder Class = "reminder"
)

// Status is a snapshot of one timer class.
type Status struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"intervalMinutes,omitempty"`
	IsRunning       bool       `json:"isRunning"`
	NextFireTime    *time.Time `json:"nextFireTime,omitempty"`
}

type classState struct {
	enabled  bool
	interval time.Duration
	timer    *time.Timer
	running  bool
	nextFire time.Time
	// gen invalidates callbacks from timers armed before the last
	// stop; a stale fire that raced a restart is dropped.
	gen uint64
}

type Config struct {
	// AutoGenAction runs one auto-generation batch. Its error is logged,
	// never propagated; the next fire proceeds regardless.
	AutoGenAction func(ctx context.Context) error
	Settings      settings.Store
	Bus           *events.Bus
	Logger        logging.Logger
}

// Scheduler owns the recurring timer classes. All state transitions happen
// under one mutex; timer callbacks re-enter through it.
type Scheduler struct {
	mu      sync.Mutex
	classes map[Class]*classState

	autoGenAction func(ctx context.Context) error
	settings      settings.Store
	bus           *events.Bus
	logger        logging.Logger

	// reminderInterval is time.Hour in production; tests shorten it.
	reminderInterval time.Duration
	now              func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		classes: map[Class]*classState{
			ClassAutoGen:  {},
			ClassReminder: {},
		},
		autoGenAction:    cfg.AutoGenAction,
		settings:         cfg.Settings,
		bus:              cfg.Bus,
		logger:           cfg.Logger,
		reminderInterval: time.Hour,
		now:              time.Now,
		baseCtx:          ctx,
		cancel:           cancel,
	}
}

// Restore starts the classes the persisted settings mark enabled.
func (s *Scheduler) Restore(ctx context.Context) error {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if cfg.AutoGenerateEnabled {
		if err := s.Start(ClassAutoGen, time.Duration(cfg.AutoGenerateInterval)*time.Minute); err != nil {
			return err
		}
	}
	if cfg.ReminderEnabled {
		if err := s.Start(ClassReminder, 0); err != nil {
			return err
		}
	}
	return nil
}

// Start arms a class. Idempotent: any existing timer for the class is
// cancelled first, so a double start never leaves two live timers.
// The reminder class ignores the interval argument; it is hour-aligned.
func (s *Scheduler) Start(class Class, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.classes[class]
	if !ok {
		return fmt.Errorf("unknown timer class %q", class)
	}
	if class == ClassAutoGen && interval <= 0 {
		return fmt.Errorf("auto-generation interval must be positive, got %s", interval)
	}

	s.stopLocked(state)
	state.enabled = true
	state.interval = interval

	switch class {
	case ClassAutoGen:
		s.armLocked(state, interval, s.fireAutoGen)
	case ClassReminder:
		// Align the first fire to the top of the wall-clock hour, then
		// repeat at a fixed period. No resync afterwards: suspend or DST
		// shifts the fire time and that drift is accepted.
		s.armLocked(state, nextHourDelay(s.now()), s.fireReminder)
	}

	s.logger.WithFields(logging.Fields{
		"class":    class,
		"interval": interval.String(),
	}).Info("Timer class started")
	return nil
}

// Stop disarms a class. Idempotent; an in-flight run finishes but does not
// rearm.
func (s *Scheduler) Stop(class Class) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.classes[class]
	if !ok {
		return
	}
	s.stopLocked(state)
	state.enabled = false
	s.logger.WithFields(logging.Fields{"class": class}).Info("Timer class stopped")
}

// Configure persists the class settings and starts or stops it to match.
func (s *Scheduler) Configure(ctx context.Context, class Class, enabled bool, interval time.Duration) error {
	update := settings.Update{}
	switch class {
	case ClassAutoGen:
		minutes := int(interval / time.Minute)
		update.AutoGenerateEnabled = &enabled
		if minutes > 0 {
			update.AutoGenerateInterval = &minutes
		}
	case ClassReminder:
		update.ReminderEnabled = &enabled
	default:
		return fmt.Errorf("unknown timer class %q", class)
	}
	if _, err := s.settings.Set(ctx, update); err != nil {
		return fmt.Errorf("persist %s settings: %w", class, err)
	}

	if !enabled {
		s.Stop(class)
		return nil
	}
	return s.Start(class, interval)
}

// Status reports the class snapshot.
func (s *Scheduler) Status(class Class) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.classes[class]
	if !ok {
		return Status{}
	}
	status := Status{
		Enabled:   state.enabled,
		IsRunning: state.running,
	}
	if state.interval > 0 {
		status.IntervalMinutes = int(state.interval / time.Minute)
	}
	if state.enabled && !state.nextFire.IsZero() {
		next := state.nextFire
		status.NextFireTime = &next
	}
	return status
}

// Shutdown stops every class and waits for in-flight runs.
func (s *Scheduler) Shutdown() {
	s.Stop(ClassAutoGen)
	s.Stop(ClassReminder)
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) stopLocked(state *classState) {
	state.gen++
	if state.timer != nil {
		state.timer.Stop()
		state.timer = nil
	}
	state.nextFire = time.Time{}
}

func (s *Scheduler) armLocked(state *classState, delay time.Duration, fire func(*classState, uint64)) {
	gen := state.gen
	state.nextFire = s.now().Add(delay)
	state.timer = time.AfterFunc(delay, func() { fire(state, gen) })
}

func (s *Scheduler) fireAutoGen(state *classState, gen uint64) {
	s.mu.Lock()
	if !state.enabled || state.gen != gen {
		s.mu.Unlock()
		return
	}
	// Rearm before running so a slow action keeps the cadence.
	s.armLocked(state, state.interval, s.fireAutoGen)
	if state.running {
		s.mu.Unlock()
		s.logger.Warn("Auto-generation fire skipped, previous run still in flight")
		return
	}
	state.running = true
	// Add while still holding the mutex so Shutdown's Wait cannot start
	// between the claim and the Add.
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runAutoGen(state)
}

func (s *Scheduler) runAutoGen(state *classState) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logging.Fields{"panic": r}).Error("Auto-generation run panicked")
		}
		s.mu.Lock()
		state.running = false
		s.mu.Unlock()
	}()

	if s.bus != nil {
		s.bus.Publish(events.AutoGenStarted, nil)
	}
	err := s.autoGenAction(s.baseCtx)
	if err != nil {
		s.logger.WithError(err).Warn("Auto-generation run failed")
	}
	if s.bus != nil {
		s.bus.Publish(events.AutoGenFinished, map[string]any{"ok": err == nil})
	}
}

func (s *Scheduler) fireReminder(state *classState, gen uint64) {
	s.mu.Lock()
	if !state.enabled || state.gen != gen {
		s.mu.Unlock()
		return
	}
	s.armLocked(state, s.reminderInterval, s.fireReminder)
	s.mu.Unlock()

	targetURL := ""
	if cfg, err := s.settings.Get(s.baseCtx); err == nil {
		targetURL = cfg.ReminderTargetURL
	} else {
		s.logger.WithError(err).Warn("Reminder fired but settings unavailable")
	}

	s.logger.WithFields(logging.Fields{"target_url": targetURL}).Info("Hourly reminder fired")
	if s.bus != nil {
		s.bus.Publish(events.ReminderFired, map[string]any{"targetUrl": targetURL})
	}
}

// nextHourDelay returns the time until the next top of the hour. A call
// exactly on the boundary waits a full hour.
func nextHourDelay(now time.Time) time.Duration {
	next := now.Truncate(time.Hour).Add(time.Hour)
	return next.Sub(now)
}
