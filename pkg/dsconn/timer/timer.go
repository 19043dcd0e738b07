// Package timer implements the Timer Service (spec §4.B): named, cancelable deadlines
// and periodic ticks.
//
// It is built on a single github.com/robfig/cron/v3 scheduler rather than a pile of
// stdlib time.Timer/time.Ticker values. Each timer is added with a fixedDelay schedule
// (next firing = now + period, at full time.Duration resolution) rather than cron's
// "@every" descriptor, which rounds delays up to whole seconds. One scheduler type covers
// both this service's periodic ticks (heartbeats) and its one-shot deadlines (a one-shot
// handle simply removes its own entry from inside the fired job, before the callback
// runs).
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Handle identifies one scheduled timer so it can be canceled.
type Handle int

// Service schedules named, cancelable deadlines and periodic ticks for a single
// Connection Core instance.
type Service struct {
	logger *zap.Logger

	mu         sync.Mutex
	cron       *cron.Cron
	byName     map[string]Handle
	entries    map[Handle]cron.EntryID
	started    bool
	lastHandle Handle
}

// NewService creates a Timer Service. Call Start before scheduling anything and Stop to
// cancel every outstanding timer at once (client.Client.Close does this on shutdown; the
// Connection Core cancels its session-scoped timers one by one with CancelName).
func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		logger:  logger,
		byName:  make(map[string]Handle),
		entries: make(map[Handle]cron.EntryID),
	}
}

// Start begins the underlying scheduler. Safe to call once; calling it again is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}

	s.cron = cron.New(cron.WithLogger(newZapCronLogger(s.logger)))
	s.cron.Start()
	s.started = true
}

// Stop cancels every outstanding timer and stops the scheduler. Idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()

	s.cron = nil
	s.byName = make(map[string]Handle)
	s.entries = make(map[Handle]cron.EntryID)
	s.started = false
}

// Schedule arms a single-shot deadline: cb fires at most once, after delay. Scheduling
// under a name that already has a pending timer cancels the previous one first, mirroring
// how the Connection Core re-arms a deadline (e.g. re-starting the heartbeat interval on
// every OPEN).
func (s *Service) Schedule(name string, delay time.Duration, cb func()) (Handle, error) {
	return s.schedule(name, delay, cb, true)
}

// SetInterval arms a periodic tick: cb fires every period until canceled.
func (s *Service) SetInterval(name string, period time.Duration, cb func()) (Handle, error) {
	return s.schedule(name, period, cb, false)
}

func (s *Service) schedule(name string, period time.Duration, cb func(), oneShot bool) (Handle, error) {
	if period <= 0 {
		return 0, fmt.Errorf("timer: period must be positive, got %s", period)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return 0, fmt.Errorf("timer: service not started")
	}

	if prev, ok := s.byName[name]; ok {
		s.cancelLocked(prev)
	}

	s.lastHandle++
	handle := s.lastHandle

	entryID := s.cron.Schedule(fixedDelay(period), cron.FuncJob(func() {
		if oneShot {
			s.mu.Lock()
			id, ok := s.entries[handle]
			if !ok {
				// Already fired or canceled.
				s.mu.Unlock()
				return
			}
			s.cron.Remove(id)
			delete(s.entries, handle)
			delete(s.byName, name)
			s.mu.Unlock()
		}
		cb()
	}))

	s.byName[name] = handle
	s.entries[handle] = entryID

	return handle, nil
}

// fixedDelay is a cron.Schedule that fires every d with full time.Duration resolution.
type fixedDelay time.Duration

func (d fixedDelay) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

// Cancel cancels a previously scheduled timer by handle. Idempotent: canceling an already
// fired or already-canceled handle is a no-op.
func (s *Service) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked(h)
}

func (s *Service) cancelLocked(h Handle) {
	entryID, ok := s.entries[h]
	if !ok {
		return
	}
	if s.cron != nil {
		s.cron.Remove(entryID)
	}
	delete(s.entries, h)
	for name, handle := range s.byName {
		if handle == h {
			delete(s.byName, name)
		}
	}
}

// CancelName cancels whatever timer is currently registered under name, if any.
func (s *Service) CancelName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.byName[name]; ok {
		s.cancelLocked(h)
	}
}

// zapCronLogger adapts a zap.Logger to cron.Logger, logging cron's own informational
// chatter at Debug since it fires once per tick and would otherwise be noisy at Info.
type zapCronLogger struct {
	logger *zap.Logger
}

func newZapCronLogger(logger *zap.Logger) *zapCronLogger {
	return &zapCronLogger{logger: logger}
}

func (z *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, fieldsFromPairs(keysAndValues)...)
}

func (z *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := append([]zap.Field{zap.Error(err)}, fieldsFromPairs(keysAndValues)...)
	z.logger.Error(msg, fields...)
}

func fieldsFromPairs(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
