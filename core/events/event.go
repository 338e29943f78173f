package events

// Payload carries a typed attribute map describing a single state change.
// Attributes are advisory output for external observers and never feed back
// into state transitions.
type Payload struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// FanoutEmitter forwards every event to each configured child emitter in
// order. Nil children are skipped.
type FanoutEmitter struct {
	children []Emitter
}

// NewFanoutEmitter bundles several emitters behind a single Emitter.
func NewFanoutEmitter(children ...Emitter) *FanoutEmitter {
	filtered := make([]Emitter, 0, len(children))
	for _, child := range children {
		if child != nil {
			filtered = append(filtered, child)
		}
	}
	return &FanoutEmitter{children: filtered}
}

// Emit implements the Emitter interface.
func (f *FanoutEmitter) Emit(evt Event) {
	if f == nil {
		return
	}
	for _, child := range f.children {
		child.Emit(evt)
	}
}
