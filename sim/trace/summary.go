package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalMessages   int
	SentByKind      map[string]int
	TimeoutsByKind  map[string]int
	Unhandled       int
	Dropped         int
	DecisionsByType map[string]int
	UniqueChains    int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		SentByKind:      make(map[string]int),
		TimeoutsByKind:  make(map[string]int),
		DecisionsByType: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	chains := make(map[uint64]bool)
	for _, m := range st.Messages {
		chains[m.DemandID] = true
		switch m.Event {
		case EventSent:
			summary.TotalMessages++
			summary.SentByKind[m.Kind]++
		case EventTimeout:
			summary.TimeoutsByKind[m.Kind]++
		case EventUnhandled:
			summary.Unhandled++
		case EventDropped:
			summary.Dropped++
		}
	}
	for _, d := range st.Decisions {
		summary.DecisionsByType[d.Decision]++
	}
	summary.UniqueChains = len(chains)

	return summary
}
