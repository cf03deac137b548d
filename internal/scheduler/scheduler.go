package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/keshon/ghostline/internal/ghost"
)

// Action is the unit of scheduled work. Errors are caught at the scheduler
// boundary and never propagate past it.
type Action func(ctx context.Context) error

// ValidationError is raised synchronously by ScheduleEvent for an invalid cron
// expression, before any registration side effect.
type ValidationError struct {
	Expr string
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid cron expression %q: %v", e.Expr, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure inside a scheduled action. It is logged with
// the offending id and discarded; it never halts the scheduler.
type ExecutionError struct {
	ID  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("scheduled action %q failed: %v", e.ID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ScheduledEvent describes one live recurring registration.
type ScheduledEvent struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CronExpression string `json:"cron_expression"`
	Enabled        bool   `json:"enabled"`
}

// QueuedEvent describes one pending one-shot registration.
type QueuedEvent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	ExecuteAt time.Time `json:"execute_at"`
}

type recurringEntry struct {
	id       string
	name     string
	expr     string
	schedule cron.Schedule
	enabled  bool
	timer    Timer
	action   Action
}

type queuedEntry struct {
	id        string
	name      string
	executeAt time.Time
	timer     Timer
	action    Action
}

// Scheduler drives time-based interventions independently of chat input. It
// owns two registries keyed by string id: recurring cron jobs and one-shot
// delayed jobs. Registry identity is by id; re-registering an id cancels the
// prior timer first, so there are never two live timers for one id.
type Scheduler struct {
	machine *ghost.Machine
	clock   Clock
	log     zerolog.Logger

	interventionSeq atomic.Uint64

	mu        sync.Mutex
	running   bool
	recurring map[string]*recurringEntry
	queued    map[string]*queuedEntry
}

// New creates a Scheduler over machine using the real clock. Initial state:
// not running, both registries empty.
func New(machine *ghost.Machine, log zerolog.Logger) *Scheduler {
	return newScheduler(machine, realClock{}, log)
}

func newScheduler(machine *ghost.Machine, clock Clock, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		machine:   machine,
		clock:     clock,
		log:       log.With().Str("component", "scheduler").Logger(),
		recurring: make(map[string]*recurringEntry),
		queued:    make(map[string]*queuedEntry),
	}
}

// ScheduleEvent registers a recurring cron job. The expression is validated
// synchronously; a *ValidationError means nothing was registered. A valid call
// replaces any prior registration with the same id.
func (s *Scheduler) ScheduleEvent(id, name, expr string, action Action) error {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return &ValidationError{Expr: expr, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.recurring[id]; ok && old.timer != nil {
		old.timer.Stop()
	}
	e := &recurringEntry{
		id:       id,
		name:     name,
		expr:     expr,
		schedule: sched,
		enabled:  true,
		action:   action,
	}
	s.recurring[id] = e
	if s.running {
		s.armRecurringLocked(e)
	}
	return nil
}

// EnableEvent reactivates a disabled recurring job. Reports whether the id is
// registered.
func (s *Scheduler) EnableEvent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.recurring[id]
	if !ok {
		return false
	}
	if !e.enabled {
		e.enabled = true
		if s.running {
			s.armRecurringLocked(e)
		}
	}
	return true
}

// DisableEvent pauses a recurring job without deleting the registration.
// Reports whether the id is registered.
func (s *Scheduler) DisableEvent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.recurring[id]
	if !ok {
		return false
	}
	e.enabled = false
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	return true
}

// RemoveEvent cancels a recurring job's timer and deletes the registration.
// Reports whether the id existed.
func (s *Scheduler) RemoveEvent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.recurring[id]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.recurring, id)
	return true
}

// ScheduledEvents lists every live recurring registration.
func (s *Scheduler) ScheduledEvents() []ScheduledEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduledEvent, 0, len(s.recurring))
	for _, e := range s.recurring {
		out = append(out, ScheduledEvent{
			ID:             e.id,
			Name:           e.name,
			CronExpression: e.expr,
			Enabled:        e.enabled,
		})
	}
	return out
}

// QueueEvent schedules a single firing at now + delay. Re-queueing an existing
// id cancels the previous timer and replaces the entry. The entry is removed
// after the attempt whether or not the action succeeds; there is no retry.
// The timer arms only while the scheduler is running; an entry queued on a
// stopped scheduler waits for the next Start.
func (s *Scheduler) QueueEvent(id, name string, delay time.Duration, action Action) {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.queued[id]; ok && old.timer != nil {
		old.timer.Stop()
	}
	e := &queuedEntry{
		id:        id,
		name:      name,
		executeAt: s.clock.Now().Add(delay),
		action:    action,
	}
	s.queued[id] = e
	if s.running {
		s.armQueuedLocked(e)
	}
}

// CancelQueuedEvent cancels a pending one-shot and removes it, reporting
// whether it existed.
func (s *Scheduler) CancelQueuedEvent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.queued[id]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.queued, id)
	return true
}

// QueuedEvents lists all pending one-shot entries.
func (s *Scheduler) QueuedEvents() []QueuedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]QueuedEvent, 0, len(s.queued))
	for _, e := range s.queued {
		out = append(out, QueuedEvent{ID: e.id, Name: e.name, ExecuteAt: e.executeAt})
	}
	return out
}

// ScheduleIntervention queues a one-shot that transitions to mode and records
// a time intervention. Returns the generated entry id.
func (s *Scheduler) ScheduleIntervention(delay time.Duration, mode ghost.Mode, reason string) string {
	// The counter keeps ids distinct when two calls land on the same clock
	// instant, which would otherwise silently replace the first entry.
	id := fmt.Sprintf("intervention_%d_%d", s.clock.Now().UnixNano(), s.interventionSeq.Add(1))
	s.QueueEvent(id, "scheduled intervention", delay, func(ctx context.Context) error {
		if _, err := s.machine.TransitionMode(mode, reason); err != nil {
			return err
		}
		_, err := s.machine.RecordIntervention(ghost.TriggerTime, map[string]string{
			"scheduled_mode": string(mode),
			"reason":         reason,
		})
		return err
	})
	return id
}

// Start arms every enabled recurring job and every pending one-shot, then
// registers the default job set. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	for _, e := range s.recurring {
		if e.enabled {
			s.armRecurringLocked(e)
		}
	}
	for _, e := range s.queued {
		s.armQueuedLocked(e)
	}
	s.mu.Unlock()

	s.registerDefaultJobs()
	s.log.Info().Msg("scheduler started")
}

// Stop cancels every recurring timer and every pending one-shot, clearing the
// one-shot registry entirely. Recurring registrations survive and are rearmed
// by the next Start. No action fires after Stop returns, except a firing
// already in flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for _, e := range s.recurring {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
	for id, e := range s.queued {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(s.queued, id)
	}
	s.mu.Unlock()

	s.log.Info().Msg("scheduler stopped")
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// armRecurringLocked schedules e's next tick. Caller holds s.mu.
func (s *Scheduler) armRecurringLocked(e *recurringEntry) {
	now := s.clock.Now()
	next := e.schedule.Next(now)
	if next.IsZero() {
		return
	}
	e.timer = s.clock.AfterFunc(next.Sub(now), func() { s.fireRecurring(e.id) })
}

// armQueuedLocked schedules e's firing, clamping a past-due execute time to
// now. Caller holds s.mu.
func (s *Scheduler) armQueuedLocked(e *queuedEntry) {
	delay := e.executeAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	e.timer = s.clock.AfterFunc(delay, func() { s.fireQueued(e.id, e) })
}

// fireRecurring runs one tick of a recurring job and arms the next one. Ticks
// for ids that were removed, disabled, or stopped in the meantime are no-ops.
func (s *Scheduler) fireRecurring(id string) {
	s.mu.Lock()
	e, ok := s.recurring[id]
	if !ok || !e.enabled || !s.running {
		s.mu.Unlock()
		return
	}
	act := e.action
	s.armRecurringLocked(e)
	s.mu.Unlock()

	s.invoke(id, act)
}

// fireQueued runs a one-shot whose timer expired. The registry entry is gone
// before the action runs, so a failure never leaves a retry behind. Nothing
// fires on a stopped scheduler.
func (s *Scheduler) fireQueued(id string, fired *queuedEntry) {
	s.mu.Lock()
	e, ok := s.queued[id]
	if !ok || e != fired || !s.running {
		// cancelled, replaced by a newer registration with the same id, or
		// the scheduler stopped before the tick was handled
		s.mu.Unlock()
		return
	}
	delete(s.queued, id)
	act := e.action
	s.mu.Unlock()

	s.invoke(id, act)
}

// invoke is the supervisor boundary: panics become errors, errors are logged
// with the offending id, and nothing propagates to other registrations.
func (s *Scheduler) invoke(id string, act Action) {
	if err := runAction(context.Background(), act); err != nil {
		ee := &ExecutionError{ID: id, Err: err}
		s.log.Error().Err(ee).Str("event_id", id).Msg("scheduled action failed")
	}
}

func runAction(ctx context.Context, act Action) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return act(ctx)
}
