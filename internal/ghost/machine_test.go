package ghost

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func nowForTest() time.Time {
	return time.Now()
}

func newTestMachine() (*Machine, *fakeKV) {
	kv := newFakeKV()
	store := NewStore(kv, zerolog.Nop())
	return NewMachine(store, zerolog.Nop()), kv
}

func TestUpdateIntensityClamping(t *testing.T) {
	m, _ := newTestMachine()

	st, err := m.UpdateIntensity(200)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if st.Intensity != 100 {
		t.Fatalf("expected clamp to 100, got %d", st.Intensity)
	}

	st, err = m.UpdateIntensity(-500)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if st.Intensity != 0 {
		t.Fatalf("expected clamp to 0, got %d", st.Intensity)
	}
}

func TestUpdateIntensityAppendsNoHistory(t *testing.T) {
	m, _ := newTestMachine()

	st, err := m.UpdateIntensity(5)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(st.TriggerHistory) != 0 {
		t.Fatalf("intensity update must not append history, got %d entries", len(st.TriggerHistory))
	}
}

func TestTransitionIntensityWithinModeRange(t *testing.T) {
	for _, mode := range []Mode{ModeWhisperer, ModeTrickster, ModePoltergeist, ModeDemon} {
		m, _ := newTestMachine()
		st, err := m.TransitionMode(mode, "test")
		if err != nil {
			t.Fatalf("transition to %s failed: %v", mode, err)
		}
		r := RangeFor(mode)
		if !r.Contains(st.Intensity) {
			t.Fatalf("mode %s: intensity %d outside [%d,%d]", mode, st.Intensity, r.Min, r.Max)
		}
	}
}

func TestTransitionKeepsInRangeIntensity(t *testing.T) {
	m, _ := newTestMachine()

	// Default intensity 30 already lies in trickster's 30-60 interval.
	st, err := m.TransitionMode(ModeTrickster, "test")
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if st.Intensity != DefaultIntensity {
		t.Fatalf("in-range intensity should be untouched, got %d", st.Intensity)
	}

	// 30 is outside demon's 70-100 interval: expect the midpoint.
	st, err = m.TransitionMode(ModeDemon, "test")
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if want := RangeFor(ModeDemon).Midpoint(); st.Intensity != want {
		t.Fatalf("expected midpoint %d, got %d", want, st.Intensity)
	}
}

func TestTransitionAppendsNarrativeEvent(t *testing.T) {
	m, _ := newTestMachine()

	st, err := m.TransitionMode(ModePoltergeist, "knocked over a lamp")
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if len(st.TriggerHistory) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(st.TriggerHistory))
	}
	ev := st.TriggerHistory[0]
	if ev.Type != TriggerNarrative {
		t.Fatalf("expected narrative event, got %s", ev.Type)
	}
	if ev.ResultingMode != ModePoltergeist {
		t.Fatalf("expected resulting mode poltergeist, got %s", ev.ResultingMode)
	}
	if ev.Data["old_mode"] != string(ModeWhisperer) || ev.Data["new_mode"] != string(ModePoltergeist) {
		t.Fatalf("unexpected event data: %+v", ev.Data)
	}
	if ev.Data["reason"] != "knocked over a lamp" {
		t.Fatalf("reason not carried: %+v", ev.Data)
	}
}

func TestTransitionUnknownMode(t *testing.T) {
	m, _ := newTestMachine()
	if _, err := m.TransitionMode(Mode("banshee"), "test"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestHistoryBoundedFIFO(t *testing.T) {
	m, _ := newTestMachine()

	const n = HistoryLimit + 10
	for i := 0; i < n; i++ {
		if _, err := m.RecordIntervention(TriggerTime, map[string]string{"seq": strconv.Itoa(i)}); err != nil {
			t.Fatalf("record %d failed: %v", i, err)
		}
	}

	hist := m.TriggerHistory(0)
	if len(hist) != HistoryLimit {
		t.Fatalf("expected history capped at %d, got %d", HistoryLimit, len(hist))
	}
	// Retained entries are exactly the most recent ones, in original order.
	for i, ev := range hist {
		want := strconv.Itoa(n - HistoryLimit + i)
		if ev.Data["seq"] != want {
			t.Fatalf("entry %d: expected seq %s, got %s", i, want, ev.Data["seq"])
		}
	}
}

func TestTriggerHistoryLimit(t *testing.T) {
	m, _ := newTestMachine()

	for i := 0; i < 5; i++ {
		if _, err := m.RecordIntervention(TriggerTime, map[string]string{"seq": strconv.Itoa(i)}); err != nil {
			t.Fatalf("record failed: %v", err)
		}
	}

	hist := m.TriggerHistory(2)
	if len(hist) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(hist))
	}
	if hist[0].Data["seq"] != "3" || hist[1].Data["seq"] != "4" {
		t.Fatalf("expected the most recent entries, got %+v", hist)
	}
}

func TestRecordInterventionStampsTime(t *testing.T) {
	m, _ := newTestMachine()

	before := time.Now().UnixMilli()
	st, err := m.RecordIntervention(TriggerSilence, map[string]string{"silent_for": "15m0s"})
	if err != nil {
		t.Fatalf("record failed: %v", err)
	}
	if st.LastInterventionTime < before {
		t.Fatalf("intervention time not stamped: %d < %d", st.LastInterventionTime, before)
	}
	if st.CurrentMode != ModeWhisperer {
		t.Fatalf("record must not change mode, got %s", st.CurrentMode)
	}
	if st.TriggerHistory[0].ResultingMode != ModeWhisperer {
		t.Fatalf("resulting mode should be the unchanged current mode")
	}
}

func TestTimeSinceLastIntervention(t *testing.T) {
	m, kv := newTestMachine()

	past := time.Now().Add(-5 * time.Minute)
	st := DefaultState(past)
	kv.Add(stateKey, st)

	d := m.TimeSinceLastIntervention()
	if d < 4*time.Minute || d > 6*time.Minute {
		t.Fatalf("expected ~5m, got %v", d)
	}
}

func TestTimeSinceLastInterventionFailSoft(t *testing.T) {
	m, kv := newTestMachine()

	st := DefaultState(time.Now())
	st.LastInterventionTime = 0
	kv.Add(stateKey, st)

	if d := m.TimeSinceLastIntervention(); d != 0 {
		t.Fatalf("expected 0 for missing stamp, got %v", d)
	}
}

func TestReset(t *testing.T) {
	m, _ := newTestMachine()

	if _, err := m.TransitionMode(ModeDemon, "test"); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	st, err := m.Reset()
	if err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if st.CurrentMode != DefaultMode || st.Intensity != DefaultIntensity {
		t.Fatalf("reset did not restore defaults: %+v", st)
	}
	if len(st.TriggerHistory) != 0 {
		t.Fatalf("reset did not clear history: %d entries", len(st.TriggerHistory))
	}
}

func TestMutationFailLoudOnUnavailableStore(t *testing.T) {
	m, kv := newTestMachine()
	m.CurrentState() // create the default while the store is healthy
	kv.failSave = true

	var sae *StateAccessError
	if _, err := m.TransitionMode(ModeDemon, "test"); !errors.As(err, &sae) {
		t.Fatalf("expected *StateAccessError from transition, got %v", err)
	}
	if _, err := m.UpdateIntensity(5); !errors.As(err, &sae) {
		t.Fatalf("expected *StateAccessError from intensity update, got %v", err)
	}
}

func TestFailedMutationNotVisible(t *testing.T) {
	m, kv := newTestMachine()
	m.CurrentState() // create the default while the store is healthy
	kv.failSave = true

	if _, err := m.TransitionMode(ModeDemon, "test"); err == nil {
		t.Fatal("expected error from transition on unavailable store")
	}

	kv.failSave = false
	st := m.CurrentState()
	if st.CurrentMode != DefaultMode {
		t.Fatalf("rejected transition left applied: mode %s", st.CurrentMode)
	}
	if st.Intensity != DefaultIntensity {
		t.Fatalf("rejected transition changed intensity: %d", st.Intensity)
	}
	if len(st.TriggerHistory) != 0 {
		t.Fatalf("rejected transition left history: %+v", st.TriggerHistory)
	}
}

// Two writers with overlapping read-modify-write cycles must not lose either
// write: every append lands, in some serialization.
func TestConcurrentWritersSerialize(t *testing.T) {
	m, _ := newTestMachine()

	const writers = 40
	var wg sync.WaitGroup
	wg.Add(writers + 1)
	for i := 0; i < writers; i++ {
		go func(i int) {
			defer wg.Done()
			if _, err := m.RecordIntervention(TriggerTime, map[string]string{"seq": strconv.Itoa(i)}); err != nil {
				t.Errorf("record %d failed: %v", i, err)
			}
		}(i)
	}
	go func() {
		defer wg.Done()
		if _, err := m.TransitionMode(ModeTrickster, "concurrent"); err != nil {
			t.Errorf("transition failed: %v", err)
		}
	}()
	wg.Wait()

	st := m.CurrentState()
	if len(st.TriggerHistory) != writers+1 {
		t.Fatalf("lost update: expected %d history entries, got %d", writers+1, len(st.TriggerHistory))
	}
	if st.Intensity < 0 || st.Intensity > 100 {
		t.Fatalf("intensity out of bounds: %d", st.Intensity)
	}
	if st.CurrentMode != ModeTrickster {
		t.Fatalf("transition lost: mode %s", st.CurrentMode)
	}
}

func TestCharacteristicsLookup(t *testing.T) {
	c := CharacteristicsFor(ModeDemon)
	if c.Tone == "" || c.MessageStyle == "" || c.EffectIntensity == "" {
		t.Fatalf("incomplete characteristics: %+v", c)
	}
	if CharacteristicsFor(Mode("unknown")) != CharacteristicsFor(ModeWhisperer) {
		t.Fatal("unknown mode should fall back to whisperer characteristics")
	}
}
