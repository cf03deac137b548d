package trigger

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/keshon/ghostline/internal/ghost"
)

// Fixed priority tiers, one per trigger class. Arbitration depends on these
// never overlapping.
const (
	PriorityKeyword   = 80
	PrioritySentiment = 60
	PrioritySilence   = 50
)

// KeywordCategory maps a word list to a target mode. Categories are checked
// in table order; the first match wins when several categories share a message.
type KeywordCategory struct {
	Name       string     `json:"name"`
	Words      []string   `json:"words"`
	TargetMode ghost.Mode `json:"target_mode"`
}

// SentimentConfig drives the lexical sentiment trigger. Net score is positive
// matches minus negative matches; the trigger fires when |net| >= Threshold.
type SentimentConfig struct {
	Positive  []string `json:"positive"`
	Negative  []string `json:"negative"`
	Threshold int      `json:"threshold"`
	// PositiveMode is targeted on net >= Threshold, NegativeMode on
	// net <= -Threshold, ExtremeMode on net <= -2*Threshold.
	PositiveMode ghost.Mode `json:"positive_mode"`
	NegativeMode ghost.Mode `json:"negative_mode"`
	ExtremeMode  ghost.Mode `json:"extreme_mode"`
}

// Table is the full trigger configuration: data, not logic, so it can be
// tuned without touching the evaluator.
type Table struct {
	Version            int               `json:"version"`
	Keywords           []KeywordCategory `json:"keywords"`
	Sentiment          SentimentConfig   `json:"sentiment"`
	SilenceThresholdMs int64             `json:"silence_threshold_ms"`
	SilenceMode        ghost.Mode        `json:"silence_mode"`
}

// SilenceThreshold returns the silence threshold as a duration.
func (t *Table) SilenceThreshold() time.Duration {
	return time.Duration(t.SilenceThresholdMs) * time.Millisecond
}

// DefaultTable returns the built-in trigger configuration. Keyword category
// order is canonical: it is the tie-break when one message matches several.
func DefaultTable() *Table {
	return &Table{
		Version: 1,
		Keywords: []KeywordCategory{
			{
				Name:       "demonic",
				Words:      []string{"demon", "devil", "hell", "summon", "ritual", "666"},
				TargetMode: ghost.ModeDemon,
			},
			{
				Name:       "haunting",
				Words:      []string{"ghost", "haunt", "spirit", "possessed", "seance", "ouija"},
				TargetMode: ghost.ModePoltergeist,
			},
			{
				Name:       "mischief",
				Words:      []string{"trick", "prank", "joke", "chaos", "mischief"},
				TargetMode: ghost.ModeTrickster,
			},
			{
				Name:       "calm",
				Words:      []string{"peace", "calm", "quiet", "rest", "sleep"},
				TargetMode: ghost.ModeWhisperer,
			},
		},
		Sentiment: SentimentConfig{
			Positive: []string{
				"love", "great", "happy", "good", "wonderful", "nice", "fun",
				"awesome", "beautiful", "friend",
			},
			Negative: []string{
				"hate", "fear", "scared", "angry", "terrible", "awful", "dark",
				"death", "kill", "crying", "pain",
			},
			Threshold:    2,
			PositiveMode: ghost.ModeWhisperer,
			NegativeMode: ghost.ModePoltergeist,
			ExtremeMode:  ghost.ModeDemon,
		},
		SilenceThresholdMs: (10 * time.Minute).Milliseconds(),
		SilenceMode:        ghost.ModeTrickster,
	}
}

// Load reads a trigger table from a JSON file and validates it. Nothing is
// applied on validation failure.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trigger table: %w", err)
	}
	var t Table
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("invalid trigger table JSON: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Validate checks the table for structural problems: empty word lists,
// unknown modes, duplicate category names.
func (t *Table) Validate() error {
	if len(t.Keywords) == 0 {
		return fmt.Errorf("trigger table has no keyword categories")
	}
	seen := make(map[string]bool, len(t.Keywords))
	for _, cat := range t.Keywords {
		if cat.Name == "" {
			return fmt.Errorf("keyword category without a name")
		}
		if seen[cat.Name] {
			return fmt.Errorf("duplicate keyword category %q", cat.Name)
		}
		seen[cat.Name] = true
		if len(cat.Words) == 0 {
			return fmt.Errorf("keyword category %q has no words", cat.Name)
		}
		if !cat.TargetMode.Valid() {
			return fmt.Errorf("keyword category %q targets unknown mode %q", cat.Name, cat.TargetMode)
		}
	}

	s := t.Sentiment
	if len(s.Positive) == 0 || len(s.Negative) == 0 {
		return fmt.Errorf("sentiment word lists must not be empty")
	}
	if s.Threshold < 1 {
		return fmt.Errorf("sentiment threshold must be >= 1, got %d", s.Threshold)
	}
	for _, m := range []ghost.Mode{s.PositiveMode, s.NegativeMode, s.ExtremeMode} {
		if !m.Valid() {
			return fmt.Errorf("sentiment mapping targets unknown mode %q", m)
		}
	}

	if t.SilenceThresholdMs <= 0 {
		return fmt.Errorf("silence threshold must be positive, got %dms", t.SilenceThresholdMs)
	}
	if !t.SilenceMode.Valid() {
		return fmt.Errorf("silence trigger targets unknown mode %q", t.SilenceMode)
	}
	return nil
}
