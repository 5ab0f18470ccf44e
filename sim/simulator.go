// sim/simulator.go
package sim

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// eventEntry wraps an Event with a sequence ID for deterministic FIFO
// tie-breaking when timestamps are equal.
type eventEntry struct {
	event     Event
	seqID     int64
	cancelled bool
	fired     bool
}

// EventQueue is a min-heap ordered by (Timestamp, seqID).
// Implements heap.Interface.
type EventQueue []*eventEntry

func (eq EventQueue) Len() int { return len(eq) }

func (eq EventQueue) Less(i, j int) bool {
	if eq[i].event.Timestamp() != eq[j].event.Timestamp() {
		return eq[i].event.Timestamp() < eq[j].event.Timestamp()
	}
	return eq[i].seqID < eq[j].seqID
}

func (eq EventQueue) Swap(i, j int) { eq[i], eq[j] = eq[j], eq[i] }

func (eq *EventQueue) Push(x any) {
	*eq = append(*eq, x.(*eventEntry))
}

func (eq *EventQueue) Pop() any {
	old := *eq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*eq = old[0 : n-1]
	return item
}

// Simulator is the core object that holds simulation time and the event loop.
// It is not safe for concurrent use: every handler runs on the caller's goroutine.
type Simulator struct {
	Clock   int64
	Horizon int64
	// EventQueue has all scheduled events, including cancelled ones that
	// have not yet reached the head of the heap.
	EventQueue EventQueue

	nextSeq  int64
	executed int64
	running  bool
}

// NewSimulator creates a Simulator that stops once the next event lies beyond horizon.
// A non-positive horizon means no limit.
func NewSimulator(horizon int64) *Simulator {
	if horizon <= 0 {
		horizon = math.MaxInt64
	}
	return &Simulator{
		Clock:      0,
		Horizon:    horizon,
		EventQueue: make(EventQueue, 0),
	}
}

// Now returns the current virtual time in ticks.
func (sim *Simulator) Now() int64 {
	return sim.Clock
}

// Schedule pushes an event into the queue and returns its handle.
// Scheduling into the past is a programming error.
func (sim *Simulator) Schedule(ev Event) *EventHandle {
	if ev.Timestamp() < sim.Clock {
		panic(fmt.Sprintf("Schedule: event at %d is before clock %d", ev.Timestamp(), sim.Clock))
	}
	entry := &eventEntry{event: ev, seqID: sim.nextSeq}
	sim.nextSeq++
	heap.Push(&sim.EventQueue, entry)
	return &EventHandle{entry: entry}
}

// ScheduleAfter runs fn delay ticks from now. Events scheduled for the same
// time execute in the order they were scheduled.
func (sim *Simulator) ScheduleAfter(delay int64, fn func()) *EventHandle {
	if delay < 0 {
		panic(fmt.Sprintf("ScheduleAfter: negative delay %d", delay))
	}
	return sim.Schedule(NewFuncEvent(sim.Clock+delay, fn))
}

// ScheduleNow runs fn at the current time, after every event already
// scheduled for this time.
func (sim *Simulator) ScheduleNow(fn func()) *EventHandle {
	return sim.ScheduleAfter(0, fn)
}

// HasPendingEvents reports whether any non-cancelled event remains.
// Cancelled entries at the head of the heap are discarded on the way.
func (sim *Simulator) HasPendingEvents() bool {
	sim.dropCancelled()
	return len(sim.EventQueue) > 0
}

// PeekNextEventTime returns the time of the next live event, or -1 if none.
func (sim *Simulator) PeekNextEventTime() int64 {
	if !sim.HasPendingEvents() {
		return -1
	}
	return sim.EventQueue[0].event.Timestamp()
}

// ExecutedEvents returns how many events have run so far.
func (sim *Simulator) ExecutedEvents() int64 {
	return sim.executed
}

// Step executes the next live event. It returns false when no event is left
// or the next event lies beyond the horizon.
func (sim *Simulator) Step() bool {
	if !sim.HasPendingEvents() {
		return false
	}
	if sim.EventQueue[0].event.Timestamp() > sim.Horizon {
		return false
	}
	entry := heap.Pop(&sim.EventQueue).(*eventEntry)
	sim.Clock = entry.event.Timestamp()
	entry.fired = true
	sim.executed++
	logrus.Tracef("[tick %07d] Executing %T", sim.Clock, entry.event)
	entry.event.Execute(sim)
	return true
}

// Run processes events until the queue drains or the horizon is reached.
func (sim *Simulator) Run() {
	if sim.running {
		panic("Simulator.Run() called re-entrantly")
	}
	sim.running = true
	defer func() { sim.running = false }()

	for sim.Step() {
	}
	logrus.Infof("[tick %07d] Simulation ended after %d events", sim.Clock, sim.executed)
}

// RunUntil processes every event with a timestamp <= t and then advances
// the clock to t.
func (sim *Simulator) RunUntil(t int64) {
	saved := sim.Horizon
	sim.Horizon = min(t, saved)
	for sim.Step() {
	}
	sim.Horizon = saved
	if t > sim.Clock && t <= saved {
		sim.Clock = t
	}
}

func (sim *Simulator) dropCancelled() {
	for len(sim.EventQueue) > 0 && sim.EventQueue[0].cancelled {
		heap.Pop(&sim.EventQueue)
	}
}
