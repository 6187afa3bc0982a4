package trace

// TraceLevel controls the verbosity of message tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures policy decisions only.
	TraceLevelDecisions TraceLevel = "decisions"
	// TraceLevelMessages captures decisions and every message lifecycle event.
	TraceLevelMessages TraceLevel = "messages"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	TraceLevelMessages:  true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects records during a simulation run.
// A nil *SimulationTrace records nothing.
type SimulationTrace struct {
	Config    TraceConfig
	RunID     string
	Messages  []MessageRecord
	Decisions []DecisionRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:    config,
		Messages:  make([]MessageRecord, 0),
		Decisions: make([]DecisionRecord, 0),
	}
}

// RecordMessage appends a message record when the level includes messages.
func (st *SimulationTrace) RecordMessage(record MessageRecord) {
	if st == nil || st.Config.Level != TraceLevelMessages {
		return
	}
	st.Messages = append(st.Messages, record)
}

// RecordDecision appends a decision record unless tracing is off.
func (st *SimulationTrace) RecordDecision(record DecisionRecord) {
	if st == nil {
		return
	}
	switch st.Config.Level {
	case TraceLevelDecisions, TraceLevelMessages:
		st.Decisions = append(st.Decisions, record)
	}
}
