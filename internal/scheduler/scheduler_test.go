package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heishia/thread-auto/internal/events"
	"github.com/heishia/thread-auto/internal/settings"
	"github.com/heishia/thread-auto/pkg/logging"
)

func newTestScheduler(action func(ctx context.Context) error) (*Scheduler, settings.Store) {
	store := settings.NewMemoryStore()
	s := New(Config{
		AutoGenAction: action,
		Settings:      store,
		Bus:           events.NewBus(),
		Logger:        logging.NewLogger(),
	})
	return s, store
}

func TestNextHourDelay(t *testing.T) {
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	if got := nextHourDelay(base); got != time.Hour {
		t.Fatalf("on the boundary: got %s, want 1h", got)
	}
	if got := nextHourDelay(base.Add(59*time.Minute + 59*time.Second)); got != time.Second {
		t.Fatalf("one second before: got %s, want 1s", got)
	}
	if got := nextHourDelay(base.Add(30 * time.Minute)); got != 30*time.Minute {
		t.Fatalf("half past: got %s, want 30m", got)
	}
}

func TestAutoGenOverlapGuardDropsFires(t *testing.T) {
	var runs int32
	blocker := make(chan struct{})
	action := func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		<-blocker
		return nil
	}
	s, _ := newTestScheduler(action)
	defer func() {
		close(blocker)
		s.Shutdown()
	}()

	if err := s.Start(ClassAutoGen, 20*time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Several intervals elapse while the first run blocks; the guard must
	// drop those fires instead of queueing them.
	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != 1 {
		t.Fatalf("expected exactly 1 run while action in flight, got %d", got)
	}
}

func TestAutoGenRunsOverMultipleIntervals(t *testing.T) {
	var runs int32
	action := func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}
	s, _ := newTestScheduler(action)
	defer s.Shutdown()

	if err := s.Start(ClassAutoGen, 30*time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(110 * time.Millisecond)
	s.Stop(ClassAutoGen)

	got := atomic.LoadInt32(&runs)
	if got < 2 || got > 4 {
		t.Fatalf("expected ~3 runs over 3 intervals, got %d", got)
	}
}

func TestAutoGenFailureDoesNotStopFutureFires(t *testing.T) {
	var runs int32
	action := func(ctx context.Context) error {
		n := atomic.AddInt32(&runs, 1)
		if n == 1 {
			panic("first run explodes")
		}
		return nil
	}
	s, _ := newTestScheduler(action)
	defer s.Shutdown()

	if err := s.Start(ClassAutoGen, 25*time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(90 * time.Millisecond)

	if got := atomic.LoadInt32(&runs); got < 2 {
		t.Fatalf("panicking run wedged the class, only %d runs", got)
	}
}

func TestRestartClearsPreviousTimer(t *testing.T) {
	var runs int32
	action := func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}
	s, _ := newTestScheduler(action)
	defer s.Shutdown()

	if err := s.Start(ClassAutoGen, 25*time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(ClassAutoGen, 25*time.Millisecond); err != nil {
		t.Fatalf("restart: %v", err)
	}

	time.Sleep(65 * time.Millisecond)
	s.Stop(ClassAutoGen)

	// A leaked timer from the first Start would double the fire count.
	if got := atomic.LoadInt32(&runs); got > 3 {
		t.Fatalf("duplicate timers detected, %d runs in ~2.5 intervals", got)
	}
}

func TestStopIsIdempotentAndHaltsFires(t *testing.T) {
	var runs int32
	action := func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}
	s, _ := newTestScheduler(action)
	defer s.Shutdown()

	if err := s.Start(ClassAutoGen, 20*time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	s.Stop(ClassAutoGen)
	s.Stop(ClassAutoGen)

	// Let any run that fired just before the stop finish.
	time.Sleep(20 * time.Millisecond)
	settled := atomic.LoadInt32(&runs)
	time.Sleep(80 * time.Millisecond)
	if got := atomic.LoadInt32(&runs); got != settled {
		t.Fatalf("fires continued after stop: %d -> %d", settled, got)
	}
	if st := s.Status(ClassAutoGen); st.Enabled || st.NextFireTime != nil {
		t.Fatalf("status still armed after stop: %+v", st)
	}
}

func TestStartRejectsNonPositiveInterval(t *testing.T) {
	s, _ := newTestScheduler(func(ctx context.Context) error { return nil })
	defer s.Shutdown()

	if err := s.Start(ClassAutoGen, 0); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestReminderAlignsToHourThenRepeats(t *testing.T) {
	s, _ := newTestScheduler(func(ctx context.Context) error { return nil })
	defer s.Shutdown()

	// Pin "now" just before an hour boundary so the aligned first fire is
	// immediate, then shorten the repeat period.
	boundary := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return boundary.Add(-10 * time.Millisecond) }
	s.reminderInterval = 30 * time.Millisecond

	fired := make(chan events.Event, 8)
	s.bus.Subscribe(func(e events.Event) {
		if e.Name == events.ReminderFired {
			fired <- e
		}
	})

	if err := s.Start(ClassReminder, 0); err != nil {
		t.Fatalf("start: %v", err)
	}
	st := s.Status(ClassReminder)
	if st.NextFireTime == nil || !st.NextFireTime.Equal(boundary) {
		t.Fatalf("first fire not hour-aligned: %v", st.NextFireTime)
	}

	var count int
	deadline := time.After(300 * time.Millisecond)
	for count < 2 {
		select {
		case e := <-fired:
			if _, ok := e.Data["targetUrl"]; !ok {
				t.Fatalf("reminder event missing target url: %v", e.Data)
			}
			count++
		case <-deadline:
			t.Fatalf("expected repeated reminder fires, got %d", count)
		}
	}
}

func TestConfigurePersistsAndStarts(t *testing.T) {
	var runs int32
	action := func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}
	s, store := newTestScheduler(action)
	defer s.Shutdown()

	if err := s.Configure(context.Background(), ClassAutoGen, true, 45*time.Minute); err != nil {
		t.Fatalf("configure: %v", err)
	}

	cfg, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("settings get: %v", err)
	}
	if !cfg.AutoGenerateEnabled || cfg.AutoGenerateInterval != 45 {
		t.Fatalf("settings not persisted: %+v", cfg)
	}

	st := s.Status(ClassAutoGen)
	if !st.Enabled || st.IntervalMinutes != 45 {
		t.Fatalf("class not armed: %+v", st)
	}

	if err := s.Configure(context.Background(), ClassAutoGen, false, 0); err != nil {
		t.Fatalf("configure off: %v", err)
	}
	cfg, _ = store.Get(context.Background())
	if cfg.AutoGenerateEnabled {
		t.Fatalf("disable not persisted")
	}
	if st := s.Status(ClassAutoGen); st.Enabled {
		t.Fatalf("class still armed after disable")
	}
}

func TestRestoreStartsEnabledClasses(t *testing.T) {
	s, store := newTestScheduler(func(ctx context.Context) error { return nil })
	defer s.Shutdown()

	enabled := true
	interval := 30
	if _, err := store.Set(context.Background(), settings.Update{
		AutoGenerateEnabled:  &enabled,
		AutoGenerateInterval: &interval,
	}); err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	if err := s.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if st := s.Status(ClassAutoGen); !st.Enabled || st.IntervalMinutes != 30 {
		t.Fatalf("autogen not restored: %+v", st)
	}
	// Reminder defaults to enabled.
	if st := s.Status(ClassReminder); !st.Enabled {
		t.Fatalf("reminder not restored: %+v", st)
	}
}

func TestShutdownWaitsForInFlightRun(t *testing.T) {
	var started, finished int32
	action := func(ctx context.Context) error {
		atomic.AddInt32(&started, 1)
		time.Sleep(80 * time.Millisecond)
		atomic.AddInt32(&finished, 1)
		return nil
	}
	s, _ := newTestScheduler(action)

	if err := s.Start(ClassAutoGen, 10*time.Millisecond); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&started) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("action never started")
		}
		time.Sleep(time.Millisecond)
	}

	s.Shutdown()

	// Shutdown must not return while the run is still sleeping.
	if got := atomic.LoadInt32(&finished); got != atomic.LoadInt32(&started) {
		t.Fatalf("shutdown returned with %d of %d runs unfinished", atomic.LoadInt32(&started)-got, atomic.LoadInt32(&started))
	}
}
