package trigger

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/keshon/ghostline/internal/ghost"
)

// Input is one inbound chat line.
type Input struct {
	Message   string
	Timestamp time.Time
}

// Detection is one candidate trigger produced by an evaluation cycle.
// TargetMode is empty when the trigger records an intervention without
// changing the mode.
type Detection struct {
	Type       ghost.TriggerType `json:"trigger_type"`
	Priority   int               `json:"priority"`
	TargetMode ghost.Mode        `json:"target_mode,omitempty"`
	Matched    map[string]string `json:"matched_data,omitempty"`
}

// Evaluator detects candidate triggers on chat input and arbitrates them down
// to at most one state-affecting action per cycle.
type Evaluator struct {
	machine *ghost.Machine
	table   *Table
	log     zerolog.Logger
}

// NewEvaluator creates an Evaluator over machine with the given trigger table.
func NewEvaluator(machine *ghost.Machine, table *Table, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		machine: machine,
		table:   table,
		log:     log.With().Str("component", "trigger").Logger(),
	}
}

// Evaluate detects zero or more candidate triggers for in. For an identical
// message and state snapshot, keyword and sentiment results are identical
// between calls; only the silence check depends on the input timestamp.
// Results come back sorted by descending priority, ties in evaluation order.
func (e *Evaluator) Evaluate(in Input) []Detection {
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}
	words := tokenize(in.Message)
	var results []Detection

	if d, ok := e.detectKeyword(words); ok {
		results = append(results, d)
	}
	if d, ok := e.detectSentiment(words); ok {
		results = append(results, d)
	}
	if d, ok := e.detectSilence(in.Timestamp); ok {
		results = append(results, d)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Priority > results[j].Priority
	})
	return results
}

// Process applies only the single highest-priority detection; everything else
// in the batch is discarded. This keeps arbitration conflict-free even when
// several categories matched the same message.
func (e *Evaluator) Process(results []Detection) error {
	if len(results) == 0 {
		return nil
	}

	sorted := make([]Detection, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	top := sorted[0]
	if len(sorted) > 1 {
		e.log.Debug().
			Str("winner", string(top.Type)).
			Int("discarded", len(sorted)-1).
			Msg("trigger arbitration")
	}

	if top.TargetMode != "" {
		_, err := e.machine.TransitionMode(top.TargetMode, reasonFor(top))
		return err
	}
	_, err := e.machine.RecordIntervention(top.Type, top.Matched)
	return err
}

// EvaluateAndProcess runs one full evaluation cycle for in. The returned list
// is the unfiltered detection set for observability, even though only its top
// entry was applied.
func (e *Evaluator) EvaluateAndProcess(in Input) ([]Detection, error) {
	results := e.Evaluate(in)
	if err := e.Process(results); err != nil {
		return results, err
	}
	return results, nil
}

// SilenceThreshold exposes the active silence threshold.
func (e *Evaluator) SilenceThreshold() time.Duration {
	return e.table.SilenceThreshold()
}

// KeywordTriggers exposes the active keyword configuration in canonical order.
func (e *Evaluator) KeywordTriggers() []KeywordCategory {
	out := make([]KeywordCategory, len(e.table.Keywords))
	copy(out, e.table.Keywords)
	return out
}

// detectKeyword emits at most one keyword detection: the first category in
// canonical table order with any word present in the message.
func (e *Evaluator) detectKeyword(words map[string]bool) (Detection, bool) {
	for _, cat := range e.table.Keywords {
		for _, w := range cat.Words {
			if words[w] {
				return Detection{
					Type:       ghost.TriggerKeyword,
					Priority:   PriorityKeyword,
					TargetMode: cat.TargetMode,
					Matched: map[string]string{
						"keyword":  w,
						"category": cat.Name,
					},
				}, true
			}
		}
	}
	return Detection{}, false
}

// detectSentiment counts message words against the positive/negative lists.
// Negative swings bias toward the higher-intensity modes, positive toward the
// calmer ones.
func (e *Evaluator) detectSentiment(words map[string]bool) (Detection, bool) {
	s := e.table.Sentiment
	var net int
	for _, w := range s.Positive {
		if words[w] {
			net++
		}
	}
	for _, w := range s.Negative {
		if words[w] {
			net--
		}
	}

	var target ghost.Mode
	switch {
	case net <= -2*s.Threshold:
		target = s.ExtremeMode
	case net <= -s.Threshold:
		target = s.NegativeMode
	case net >= s.Threshold:
		target = s.PositiveMode
	default:
		return Detection{}, false
	}

	return Detection{
		Type:       ghost.TriggerSentiment,
		Priority:   PrioritySentiment,
		TargetMode: target,
		Matched: map[string]string{
			"score": strconv.Itoa(net),
		},
	}, true
}

// detectSilence emits when the chat has been quiet past the configured
// threshold; the target mode is meant to break the silence.
func (e *Evaluator) detectSilence(at time.Time) (Detection, bool) {
	st := e.machine.CurrentState()
	if st.LastInterventionTime <= 0 {
		return Detection{}, false
	}
	quiet := at.Sub(time.UnixMilli(st.LastInterventionTime))
	if quiet <= e.table.SilenceThreshold() {
		return Detection{}, false
	}
	return Detection{
		Type:       ghost.TriggerSilence,
		Priority:   PrioritySilence,
		TargetMode: e.table.SilenceMode,
		Matched: map[string]string{
			"silent_for": quiet.Truncate(time.Second).String(),
		},
	}, true
}

func reasonFor(d Detection) string {
	switch d.Type {
	case ghost.TriggerKeyword:
		return "keyword trigger: " + d.Matched["keyword"]
	case ghost.TriggerSentiment:
		return "sentiment swing: " + d.Matched["score"]
	case ghost.TriggerSilence:
		return "breaking silence after " + d.Matched["silent_for"]
	}
	return string(d.Type) + " trigger"
}

// tokenize lowercases msg and splits it into a word set on anything that is
// not a letter or digit.
func tokenize(msg string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(msg), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
