package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/tradesim/tradesim/sim"
	"github.com/tradesim/tradesim/sim/trace"
)

// StockReport is the end-of-run stock of one product at one actor.
type StockReport struct {
	Product string  `json:"product"`
	Actual  float64 `json:"actual"`
	Claimed float64 `json:"claimed"`
	Ordered float64 `json:"ordered"`
}

// ActorReport is the end-of-run state of one actor.
type ActorReport struct {
	Name         string        `json:"name"`
	Balance      float64       `json:"balance"`
	Stock        []StockReport `json:"stock"`
	StoreEntries int           `json:"store_entries"`
	OpenChains   int           `json:"open_chains"`
}

// Report summarizes a run.
type Report struct {
	RunID     string              `json:"run_id"`
	Seed      int64               `json:"seed"`
	Clock     int64               `json:"clock"`
	Events    int                 `json:"events"`
	Pending   int                 `json:"pending"`
	Restocks  int                 `json:"restock_requests"`
	Generated int                 `json:"generated_demands"`
	Actors    []ActorReport       `json:"actors"`
	Trace     *trace.TraceSummary `json:"trace,omitempty"`
}

// Report captures the current state of the simulation.
func (s *Simulation) Report() *Report {
	r := &Report{
		RunID:   s.RunID,
		Seed:    int64(s.Model.RNG.Key()),
		Clock:   s.Loop.Now(),
		Events:  s.Loop.Executed(),
		Pending: s.Loop.Pending(),
	}
	for _, c := range s.Controllers {
		n, _ := c.Requests()
		r.Restocks += n
	}
	for _, g := range s.Generators {
		r.Generated += g.Count()
	}
	for _, a := range s.Model.Actors() {
		ar := ActorReport{
			Name:         a.Name,
			StoreEntries: a.Store().Len(),
			OpenChains:   len(a.Store().Chains()),
		}
		if acc := a.Account(); acc != nil {
			ar.Balance = acc.Balance()
		}
		if inv := a.Inventory(); inv != nil {
			for _, p := range inv.Products() {
				l := inv.Level(p)
				ar.Stock = append(ar.Stock, StockReport{Product: p.ID, Actual: l.Actual, Claimed: l.Claimed, Ordered: l.Ordered})
			}
			sort.Slice(ar.Stock, func(i, j int) bool { return ar.Stock[i].Product < ar.Stock[j].Product })
		}
		r.Actors = append(r.Actors, ar)
	}
	if s.Model.Trace != nil {
		r.Trace = trace.Summarize(s.Model.Trace)
	}
	return r
}

// Actor returns the report of the named actor, or nil.
func (r *Report) Actor(name string) *ActorReport {
	for i := range r.Actors {
		if r.Actors[i].Name == name {
			return &r.Actors[i]
		}
	}
	return nil
}

// Print writes a human-readable summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Report ===")
	fmt.Fprintf(w, "Run ID            : %s\n", r.RunID)
	fmt.Fprintf(w, "Seed              : %d\n", r.Seed)
	fmt.Fprintf(w, "Simulated time    : %.2f days\n", float64(r.Clock)/float64(sim.Day))
	fmt.Fprintf(w, "Events executed   : %d (%d pending)\n", r.Events, r.Pending)
	fmt.Fprintf(w, "Restock requests  : %d\n", r.Restocks)
	fmt.Fprintf(w, "Generated demands : %d\n", r.Generated)
	for _, a := range r.Actors {
		fmt.Fprintf(w, "--- %s: balance %.2f, %d open chains\n", a.Name, a.Balance, a.OpenChains)
		for _, st := range a.Stock {
			fmt.Fprintf(w, "    %-16s actual %10.2f  claimed %8.2f  ordered %8.2f\n", st.Product, st.Actual, st.Claimed, st.Ordered)
		}
	}
	if r.Trace != nil {
		fmt.Fprintf(w, "Messages sent     : %d across %d chains\n", r.Trace.TotalMessages, r.Trace.UniqueChains)
		kinds := make([]string, 0, len(r.Trace.SentByKind))
		for k := range r.Trace.SentByKind {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "    %-20s %d\n", k, r.Trace.SentByKind[k])
		}
		timeouts := 0
		for _, n := range r.Trace.TimeoutsByKind {
			timeouts += n
		}
		fmt.Fprintf(w, "Timeouts          : %d\n", timeouts)
		fmt.Fprintf(w, "Unhandled         : %d\n", r.Trace.Unhandled)
	}
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
