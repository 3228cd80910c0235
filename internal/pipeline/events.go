package pipeline

import (
	"sync"
	"time"

	"subflow/internal/services"
	"subflow/internal/subtitles"
)

// EventType classifies messages emitted during a run.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventSegment   EventType = "segment"
	EventResult    EventType = "result"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// Terminal reports whether no event follows this type.
func (t EventType) Terminal() bool {
	return t == EventResult || t == EventError || t == EventCancelled
}

// Event is a sequenced payload delivered to sinks. Seq starts at 1 per run.
type Event struct {
	Seq       int64               `json:"seq"`
	RunID     string              `json:"runId"`
	Type      EventType           `json:"type"`
	Stage     Stage               `json:"stage"`
	Percent   float64             `json:"percent"`
	Message   string              `json:"message,omitempty"`
	Segment   *subtitles.Segment  `json:"segment,omitempty"`
	Segments  []subtitles.Segment `json:"segments,omitempty"`
	Result    *Result             `json:"result,omitempty"`
	ErrorKind services.Kind       `json:"errorKind,omitempty"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// Sink receives run events. Emit is called from the run goroutine in order;
// implementations that hand events to another goroutine must keep that order.
type Sink interface {
	Emit(Event)
}

// FuncSink adapts a function to Sink.
type FuncSink func(Event)

// Emit calls f.
func (f FuncSink) Emit(e Event) {
	if f != nil {
		f(e)
	}
}

// Discard drops every event.
var Discard Sink = FuncSink(nil)

// ChannelSink forwards events to a buffered channel. Emit blocks when the
// buffer is full so no event is dropped or reordered.
type ChannelSink struct {
	ch   chan Event
	once sync.Once
}

// NewChannelSink returns a sink with the given buffer size. The buffer holds
// at least one event so a rejected Start never blocks the caller.
func NewChannelSink(buffer int) *ChannelSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelSink{ch: make(chan Event, buffer)}
}

// Emit sends e and closes the channel after a terminal event.
func (s *ChannelSink) Emit(e Event) {
	s.ch <- e
	if e.Type.Terminal() {
		s.once.Do(func() { close(s.ch) })
	}
}

// Events returns the receive side. It is closed after the terminal event.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// multiSink fans one event out to several sinks in order.
type multiSink []Sink

func (m multiSink) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Tee returns a sink emitting to every non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Bus stores recent events of one run and lets readers catch up from a
// sequence number, e.g. an HTTP poller or a reconnecting WebSocket.
type Bus struct {
	mu        sync.RWMutex
	maxEvents int
	events    []Event
	lastSeq   int64
	closed    bool
	subs      map[chan struct{}]struct{}
}

// NewBus creates a bounded in-memory event buffer.
func NewBus(maxEvents int) *Bus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &Bus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, min(maxEvents, 64)),
		subs:      make(map[chan struct{}]struct{}),
	}
}

// Emit appends e and wakes subscribers. Events without a sequence number are
// numbered by the bus. A terminal event closes the bus.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if e.Seq == 0 {
		e.Seq = b.lastSeq + 1
	}
	b.lastSeq = e.Seq
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.events = append(b.events, e)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	for ch := range b.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	if e.Type.Terminal() {
		b.closeLocked()
	}
}

// Since returns buffered events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Event, 0, len(b.events))
	for _, e := range b.events {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Closed reports whether the terminal event has been stored.
func (b *Bus) Closed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// Subscribe returns a channel that receives a value whenever new events are
// stored and is closed when the bus closes. Call the returned function to
// unsubscribe.
func (b *Bus) Subscribe() (<-chan struct{}, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{}, 1)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

func (b *Bus) closeLocked() {
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
}
