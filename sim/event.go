package sim

// Event defines the interface for all simulation events.
// Each event has a Timestamp (in ticks) and an Execute method
// that advances simulation state when invoked.
type Event interface {
	Timestamp() int64
	Execute(*Simulator)
}

// FuncEvent is an Event whose action is a closure over its owner.
// Protocol entities use it for timers and deferred SAP calls.
type FuncEvent struct {
	time int64
	fn   func()
}

// NewFuncEvent creates a FuncEvent firing fn at the absolute time t.
func NewFuncEvent(t int64, fn func()) *FuncEvent {
	if fn == nil {
		panic("NewFuncEvent: fn must not be nil")
	}
	return &FuncEvent{time: t, fn: fn}
}

// Timestamp returns the scheduled time of the FuncEvent.
func (e *FuncEvent) Timestamp() int64 {
	return e.time
}

// Execute runs the wrapped closure.
func (e *FuncEvent) Execute(_ *Simulator) {
	e.fn()
}

// EventHandle identifies a scheduled event so that it can be cancelled.
// A nil handle is valid and behaves like an event that already fired.
type EventHandle struct {
	entry *eventEntry
}

// Cancel prevents the event from executing. Cancelling a fired or
// already-cancelled event is a no-op.
func (h *EventHandle) Cancel() {
	if h == nil || h.entry == nil || h.entry.fired {
		return
	}
	h.entry.cancelled = true
}

// Pending reports whether the event will still execute.
func (h *EventHandle) Pending() bool {
	if h == nil || h.entry == nil {
		return false
	}
	return !h.entry.fired && !h.entry.cancelled
}

// Timestamp returns the time the event is (or was) scheduled for.
// Returns -1 for a nil handle.
func (h *EventHandle) Timestamp() int64 {
	if h == nil || h.entry == nil {
		return -1
	}
	return h.entry.event.Timestamp()
}

// EventScheduler is the part of the engine protocol entities depend on:
// a virtual clock and relative scheduling of callbacks.
type EventScheduler interface {
	Now() int64
	ScheduleAfter(delay int64, fn func()) *EventHandle
}

// Tick conversions. One tick is one microsecond of virtual time.
const (
	TicksPerMillisecond int64 = 1000
	TicksPerSecond      int64 = 1_000_000

	// SubframeTicks is the duration of one scheduling interval (TTI).
	SubframeTicks = TicksPerMillisecond
)

// Milliseconds converts ms to ticks.
func Milliseconds(ms int64) int64 {
	return ms * TicksPerMillisecond
}

// TicksToSeconds converts a tick count to seconds.
func TicksToSeconds(t int64) float64 {
	return float64(t) / float64(TicksPerSecond)
}
