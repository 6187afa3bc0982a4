// Package trace provides message-level trace recording for protocol analysis.
// It has no dependencies on sim/ and stores pure data types only.
package trace

// EventType names what happened to a message.
type EventType string

const (
	EventSent      EventType = "sent"
	EventReceived  EventType = "received"
	EventTimeout   EventType = "timeout"
	EventUnhandled EventType = "unhandled"
	EventDropped   EventType = "dropped"
)

// MessageRecord captures one lifecycle event of a message.
type MessageRecord struct {
	MessageID uint64
	DemandID  uint64
	Kind      string
	Sender    string
	Receiver  string
	Clock     int64
	Event     EventType
}

// DecisionRecord captures a policy or controller decision that is not itself a message:
// a retry, an abandoned chain, a fine, a quote selection.
type DecisionRecord struct {
	Actor    string
	Policy   string
	DemandID uint64
	Clock    int64
	Decision string
	Detail   string
}
