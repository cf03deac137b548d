package ghost

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Machine exposes all mutations of the ghost state. Every read-modify-write
// cycle runs under one mutex, so overlapping callers (chat evaluations,
// scheduler ticks) serialize instead of clobbering each other's writes.
type Machine struct {
	store *Store
	mu    sync.Mutex
	log   zerolog.Logger
}

// NewMachine creates a Machine over store.
func NewMachine(store *Store, log zerolog.Logger) *Machine {
	return &Machine{store: store, log: log.With().Str("component", "machine").Logger()}
}

// TransitionMode switches the ghost to mode, pulling intensity into the mode's
// preferred interval (left alone when already inside, midpoint otherwise), and
// appends a narrative event carrying the reason. Any mode may transition to
// any other at any time.
func (m *Machine) TransitionMode(mode Mode, reason string) (*State, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.store.GetState()
	oldMode := st.CurrentMode
	st.CurrentMode = mode

	r := RangeFor(mode)
	if !r.Contains(st.Intensity) {
		st.Intensity = r.Midpoint()
	}

	now := time.Now()
	st.LastInterventionTime = now.UnixMilli()
	st.TriggerHistory = append(st.TriggerHistory, TriggerEvent{
		Type:      TriggerNarrative,
		Timestamp: now.UnixMilli(),
		Data: map[string]string{
			"reason":   reason,
			"old_mode": string(oldMode),
			"new_mode": string(mode),
		},
		ResultingMode: mode,
	})
	trimHistory(st)

	if err := m.store.SetState(st); err != nil {
		return nil, err
	}

	m.log.Info().
		Str("old_mode", string(oldMode)).
		Str("new_mode", string(mode)).
		Int("intensity", st.Intensity).
		Str("reason", reason).
		Msg("mode transition")
	return st, nil
}

// UpdateIntensity shifts intensity by delta, clamped to [0,100]. No history
// entry is appended.
func (m *Machine) UpdateIntensity(delta int) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.store.GetState()
	st.Intensity = clampIntensity(st.Intensity + delta)

	if err := m.store.SetState(st); err != nil {
		return nil, err
	}
	return st, nil
}

// RecordIntervention stamps the intervention time and appends a trigger event
// of the given type. The mode itself is unchanged.
func (m *Machine) RecordIntervention(t TriggerType, data map[string]string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.store.GetState()
	now := time.Now()
	st.LastInterventionTime = now.UnixMilli()
	st.TriggerHistory = append(st.TriggerHistory, TriggerEvent{
		Type:          t,
		Timestamp:     now.UnixMilli(),
		Data:          data,
		ResultingMode: st.CurrentMode,
	})
	trimHistory(st)

	if err := m.store.SetState(st); err != nil {
		return nil, err
	}
	return st, nil
}

// TimeSinceLastIntervention returns now minus the last intervention stamp.
// Fails soft to 0 when the stored stamp is unusable.
func (m *Machine) TimeSinceLastIntervention() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.store.GetState()
	if st.LastInterventionTime <= 0 {
		return 0
	}
	d := time.Since(time.UnixMilli(st.LastInterventionTime))
	if d < 0 {
		return 0
	}
	return d
}

// TriggerHistory returns the full history, or the most recent limit entries
// when limit > 0.
func (m *Machine) TriggerHistory(limit int) []TriggerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.store.GetState()
	hist := st.TriggerHistory
	if limit > 0 && len(hist) > limit {
		hist = hist[len(hist)-limit:]
	}
	out := make([]TriggerEvent, len(hist))
	copy(out, hist)
	return out
}

// CurrentState returns a snapshot of the state.
func (m *Machine) CurrentState() *State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.GetState()
}

// Reset overwrites the state with a fresh default (new timestamp, empty
// history) and persists it.
func (m *Machine) Reset() (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := DefaultState(time.Now())
	if err := m.store.SetState(st); err != nil {
		return nil, err
	}
	m.log.Info().Msg("ghost state reset to default")
	return st, nil
}

// trimHistory drops the oldest entries past HistoryLimit, never reordering.
func trimHistory(st *State) {
	if len(st.TriggerHistory) > HistoryLimit {
		st.TriggerHistory = st.TriggerHistory[len(st.TriggerHistory)-HistoryLimit:]
	}
}

func clampIntensity(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
