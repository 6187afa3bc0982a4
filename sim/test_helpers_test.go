package sim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestModel(t *testing.T, cfg Config) (*EventLoop, *Model) {
	t.Helper()
	loop := NewEventLoop(0)
	m, err := NewModel(loop, cfg, 42)
	require.NoError(t, err)
	return loop, m
}

func newTestActor(t *testing.T, m *Model, name string) *Actor {
	t.Helper()
	a, err := m.NewActor(name, Location{})
	require.NoError(t, err)
	return a
}

func newTestProduct(t *testing.T, m *Model, id string) *Product {
	t.Helper()
	p := &Product{ID: id, Name: id, Topic: "goods/" + id}
	require.NoError(t, m.AddProduct(p))
	return p
}

// recorder is a policy that remembers what it was given.
type recorder struct {
	PolicyBase
	got    []Message
	result bool
}

func newRecorder(id string, kind MessageKind, owner *Actor, result bool) *recorder {
	return &recorder{PolicyBase: NewPolicyBase(id, kind, owner), result: result}
}

func (r *recorder) Handle(msg Message) bool {
	r.got = append(r.got, msg)
	return r.result
}

// bogus is a message kind the store does not know.
type bogus struct {
	MessageHeader
}

func (*bogus) Kind() MessageKind { return KindUnknown }
