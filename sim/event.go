package sim

import (
	"container/heap"
	"math"

	"github.com/sirupsen/logrus"
)

// Handle identifies a scheduled callback so that it can be cancelled.
// The zero Handle never refers to a live callback.
type Handle uint64

// Scheduler is the simulated clock service. All timeouts, retries and
// delivery delays in the engine are expressed against it.
type Scheduler interface {
	Now() int64
	ScheduleAt(at int64, name string, fn func()) Handle
	ScheduleAfter(delay int64, name string, fn func()) Handle
	Cancel(h Handle) bool
}

// Event priorities for callbacks sharing a timestamp. Lower runs first.
const (
	PriorityDelivery = 0
	PriorityDefault  = 1
	PriorityTimeout  = 2
)

// scheduledEvent is a pending callback in the EventLoop heap.
type scheduledEvent struct {
	time     int64
	priority int
	seq      uint64
	name     string
	fn       func()
	index    int
}

// eventQueue is a min-heap ordered by (time, priority, seq).
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-PriorityQueue
type eventQueue []*scheduledEvent

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].time != q[j].time {
		return q[i].time < q[j].time
	}
	if q[i].priority != q[j].priority {
		return q[i].priority < q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*scheduledEvent)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}

// EventLoop is the deterministic Scheduler used to drive a simulation.
// Callbacks at the same timestamp run by priority, then in scheduling order.
// Cancelled callbacks are removed from the heap immediately.
//
// Thread-safety: NOT thread-safe. Must be driven from a single goroutine.
type EventLoop struct {
	clock     int64
	queue     eventQueue
	live      map[Handle]*scheduledEvent
	nextSeq   uint64
	executed  int
	cancelled int
	stopped   bool
}

// NewEventLoop creates an EventLoop whose clock starts at start.
func NewEventLoop(start int64) *EventLoop {
	return &EventLoop{
		clock: start,
		queue: make(eventQueue, 0),
		live:  make(map[Handle]*scheduledEvent),
	}
}

// Now returns the current simulated time.
func (l *EventLoop) Now() int64 {
	return l.clock
}

// ScheduleAt schedules fn at the given time with default priority.
// Times in the past are clamped to Now().
func (l *EventLoop) ScheduleAt(at int64, name string, fn func()) Handle {
	return l.ScheduleAtPriority(at, PriorityDefault, name, fn)
}

// ScheduleAfter schedules fn delay seconds from now. Negative delays are treated as zero.
func (l *EventLoop) ScheduleAfter(delay int64, name string, fn func()) Handle {
	if delay < 0 {
		delay = 0
	}
	at := l.clock + delay
	if at < l.clock { // overflow
		at = math.MaxInt64
	}
	return l.ScheduleAtPriority(at, PriorityDefault, name, fn)
}

// ScheduleAtPriority schedules fn at the given time and priority.
// Panics if fn is nil.
func (l *EventLoop) ScheduleAtPriority(at int64, priority int, name string, fn func()) Handle {
	if fn == nil {
		panic("EventLoop.ScheduleAtPriority: nil callback")
	}
	if at < l.clock {
		logrus.Debugf("[t %d] %s scheduled in the past (%d), clamped to now", l.clock, name, at)
		at = l.clock
	}
	l.nextSeq++
	ev := &scheduledEvent{
		time:     at,
		priority: priority,
		seq:      l.nextSeq,
		name:     name,
		fn:       fn,
	}
	heap.Push(&l.queue, ev)
	h := Handle(ev.seq)
	l.live[h] = ev
	return h
}

// Cancel removes a pending callback. Returns false if it already ran,
// was already cancelled, or never existed.
func (l *EventLoop) Cancel(h Handle) bool {
	ev, ok := l.live[h]
	if !ok {
		return false
	}
	delete(l.live, h)
	heap.Remove(&l.queue, ev.index)
	l.cancelled++
	return true
}

// Pending returns the number of callbacks still scheduled.
func (l *EventLoop) Pending() int {
	return l.queue.Len()
}

// Executed returns the number of callbacks run so far.
func (l *EventLoop) Executed() int {
	return l.executed
}

// Cancelled returns the number of callbacks cancelled so far.
func (l *EventLoop) Cancelled() int {
	return l.cancelled
}

// PeekTime returns the timestamp of the next callback and whether there is one.
func (l *EventLoop) PeekTime() (int64, bool) {
	if l.queue.Len() == 0 {
		return 0, false
	}
	return l.queue[0].time, true
}

// Stop makes the current Run return after the callback in progress.
func (l *EventLoop) Stop() {
	l.stopped = true
}

// Step runs the next callback, if any. Returns false when the queue is empty.
func (l *EventLoop) Step() bool {
	if l.queue.Len() == 0 {
		return false
	}
	ev := heap.Pop(&l.queue).(*scheduledEvent)
	delete(l.live, Handle(ev.seq))
	l.clock = ev.time
	logrus.Tracef("[t %d] executing %s", l.clock, ev.name)
	ev.fn()
	l.executed++
	return true
}

// Run executes callbacks in order until the queue drains, Stop is called,
// or the next callback lies beyond horizon. When the horizon cuts the run
// short the clock is advanced to the horizon. Run may be called again to continue.
// Returns the number of callbacks executed by this call.
func (l *EventLoop) Run(horizon int64) int {
	l.stopped = false
	start := l.executed
	for !l.stopped {
		next, ok := l.PeekTime()
		if !ok {
			break
		}
		if next > horizon {
			if horizon > l.clock {
				l.clock = horizon
			}
			break
		}
		l.Step()
	}
	logrus.Debugf("[t %d] event loop paused after %d callbacks (%d pending)", l.clock, l.executed-start, l.Pending())
	return l.executed - start
}

// PriorityScheduler is implemented by schedulers that order same-time
// callbacks by an explicit priority.
type PriorityScheduler interface {
	Scheduler
	ScheduleAtPriority(at int64, priority int, name string, fn func()) Handle
}

// scheduleAt uses the priority when the scheduler supports one and falls
// back to plain FIFO scheduling otherwise.
func scheduleAt(s Scheduler, at int64, priority int, name string, fn func()) Handle {
	if ps, ok := s.(PriorityScheduler); ok {
		return ps.ScheduleAtPriority(at, priority, name, fn)
	}
	return s.ScheduleAt(at, name, fn)
}
