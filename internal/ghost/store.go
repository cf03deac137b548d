package ghost

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// stateKey is the single well-known key holding the serialized ghost state.
const stateKey = "ghost_state"

// KV is the narrow surface consumed from the persisted key-value collaborator.
// *datastore.DataStore satisfies it.
type KV interface {
	Get(key string) (any, bool)
	Add(key string, value any)
	SaveToFile() error
}

// StateAccessError signals that the persisted store could not confirm a write.
// Callers must treat the mutation as failed, not silently ignorable.
type StateAccessError struct {
	Op  string
	Err error
}

func (e *StateAccessError) Error() string {
	return fmt.Sprintf("state access failed during %s: %v", e.Op, e.Err)
}

func (e *StateAccessError) Unwrap() error { return e.Err }

// Store is the only holder of durable ghost state: pure get/set against the
// key-value collaborator. Reads fail soft, writes fail loud.
type Store struct {
	kv  KV
	log zerolog.Logger
}

// NewStore creates a Store over kv.
func NewStore(kv KV, log zerolog.Logger) *Store {
	return &Store{kv: kv, log: log.With().Str("component", "store").Logger()}
}

// DefaultState returns a fresh default ghost state stamped at now.
func DefaultState(now time.Time) *State {
	return &State{
		CurrentMode:          DefaultMode,
		Intensity:            DefaultIntensity,
		LastInterventionTime: now.UnixMilli(),
		TriggerHistory:       []TriggerEvent{},
	}
}

// GetState returns the current state, creating and persisting the default when
// absent. Never returns an error: on store trouble it degrades to an in-memory
// default without persisting.
func (s *Store) GetState() *State {
	data, exists := s.kv.Get(stateKey)
	if !exists {
		now := time.Now()
		s.kv.Add(stateKey, DefaultState(now))
		if err := s.kv.SaveToFile(); err != nil {
			s.log.Warn().Err(err).Msg("could not persist initial state, serving in-memory default")
		}
		return DefaultState(now)
	}

	st, err := decodeState(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("stored state unreadable, serving in-memory default")
		return DefaultState(time.Now())
	}
	return st
}

// SetState persists st verbatim. On a save failure the previous value is put
// back, so a rejected write never lingers in memory, and *StateAccessError is
// returned.
func (s *Store) SetState(st *State) error {
	prev, had := s.kv.Get(stateKey)
	s.kv.Add(stateKey, st)
	if err := s.kv.SaveToFile(); err != nil {
		if had {
			s.kv.Add(stateKey, prev)
		}
		return &StateAccessError{Op: "set", Err: err}
	}
	return nil
}

// decodeState converts whatever the datastore holds (a typed struct right
// after creation, a generic map after a reload from disk) into a fresh *State
// via a JSON round trip. Always copying keeps the stored value private to the
// store: callers can mutate the result freely without aliasing live state.
func decodeState(data any) (*State, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("error marshalling stored data: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("error unmarshalling to *State: %w", err)
	}
	if !st.CurrentMode.Valid() {
		st.CurrentMode = DefaultMode
	}
	if st.TriggerHistory == nil {
		st.TriggerHistory = []TriggerEvent{}
	}
	return &st, nil
}
