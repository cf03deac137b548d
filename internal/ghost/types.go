package ghost

// Mode is one of four mutually exclusive behavioral personas.
type Mode string

const (
	ModeWhisperer   Mode = "whisperer"
	ModeTrickster   Mode = "trickster"
	ModePoltergeist Mode = "poltergeist"
	ModeDemon       Mode = "demon"
)

// Valid reports whether m is one of the four known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeWhisperer, ModeTrickster, ModePoltergeist, ModeDemon:
		return true
	}
	return false
}

// TriggerType classifies what caused a recorded intervention.
type TriggerType string

const (
	TriggerKeyword   TriggerType = "keyword"
	TriggerSentiment TriggerType = "sentiment"
	TriggerSilence   TriggerType = "silence"
	TriggerTime      TriggerType = "time"
	TriggerNarrative TriggerType = "narrative"
)

// TriggerEvent is one entry in the ghost's trigger history. Immutable once appended;
// Data carries context (matched keyword, reason, old/new mode) for observability only.
type TriggerEvent struct {
	Type          TriggerType       `json:"type"`
	Timestamp     int64             `json:"timestamp"` // ms since epoch
	Data          map[string]string `json:"data,omitempty"`
	ResultingMode Mode              `json:"resulting_mode"`
}

// State is the single globally shared ghost state blob.
type State struct {
	CurrentMode          Mode           `json:"current_mode"`
	Intensity            int            `json:"intensity"` // 0..100
	LastInterventionTime int64          `json:"last_intervention_time"` // ms since epoch
	TriggerHistory       []TriggerEvent `json:"trigger_history"`
}

// HistoryLimit caps TriggerHistory; oldest entries are evicted first.
const HistoryLimit = 50

const (
	DefaultMode      = ModeWhisperer
	DefaultIntensity = 30
)

// IntensityRange is the preferred closed interval for a mode.
type IntensityRange struct {
	Min int
	Max int
}

// Midpoint returns the interval midpoint, rounded down.
func (r IntensityRange) Midpoint() int {
	return (r.Min + r.Max) / 2
}

// Contains reports whether v lies within the interval.
func (r IntensityRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// modeRanges is the fixed per-mode intensity policy.
var modeRanges = map[Mode]IntensityRange{
	ModeWhisperer:   {Min: 10, Max: 40},
	ModeTrickster:   {Min: 30, Max: 60},
	ModePoltergeist: {Min: 50, Max: 80},
	ModeDemon:       {Min: 70, Max: 100},
}

// RangeFor returns the intensity interval for mode; unknown modes fall back
// to the whisperer interval.
func RangeFor(mode Mode) IntensityRange {
	if r, ok := modeRanges[mode]; ok {
		return r
	}
	return modeRanges[ModeWhisperer]
}

// Characteristics describes how a mode should color ghost-authored output.
type Characteristics struct {
	Tone            string `json:"tone"`
	MessageStyle    string `json:"message_style"`
	EffectIntensity string `json:"effect_intensity"`
}

var modeCharacteristics = map[Mode]Characteristics{
	ModeWhisperer: {
		Tone:            "soft, distant, barely there",
		MessageStyle:    "fragments and half-heard murmurs",
		EffectIntensity: "subtle",
	},
	ModeTrickster: {
		Tone:            "playful, needling, unpredictable",
		MessageStyle:    "short jabs, wordplay, misdirection",
		EffectIntensity: "moderate",
	},
	ModePoltergeist: {
		Tone:            "restless, physical, disruptive",
		MessageStyle:    "abrupt interjections, things knocked over mid-sentence",
		EffectIntensity: "strong",
	},
	ModeDemon: {
		Tone:            "cold, commanding, malevolent",
		MessageStyle:    "full declarative sentences, direct address",
		EffectIntensity: "overwhelming",
	},
}

// CharacteristicsFor is a pure lookup with no persistence dependency.
// Unknown modes fall back to whisperer.
func CharacteristicsFor(mode Mode) Characteristics {
	if c, ok := modeCharacteristics[mode]; ok {
		return c
	}
	return modeCharacteristics[ModeWhisperer]
}
