package core

import (
	"sync"

	"github.com/spaghettifunk/penumbra/engine/containers"
)

type EventContext struct {
	Data struct {
		I64 [2]int64
		U32 [4]uint32
		F32 [4]float32
		U16 [8]uint16

		C [2]string
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Keyboard key pressed.
	/* Context usage:
	 * key_code = data.U16[0]
	 */
	EVENT_CODE_KEY_PRESSED SystemEventCode = 0x02

	// Keyboard key released.
	/* Context usage:
	 * key_code = data.U16[0]
	 */
	EVENT_CODE_KEY_RELEASED SystemEventCode = 0x03

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * width = data.U32[0]
	 * height = data.U32[1]
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// The scene description file changed on disk.
	/* Context usage:
	 * path = data.C[0]
	 */
	EVENT_CODE_SCENE_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Capacity of the cross-goroutine post queue.
const EVENT_QUEUE_CAPACITY = 256

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type queuedEvent struct {
	code    SystemEventCode
	sender  interface{}
	context EventContext
}

// EventSystem routes events to listeners. Fire runs callbacks immediately on
// the calling goroutine; Post may be called from any goroutine and the event
// is delivered by the next Dispatch on the main thread.
type EventSystem struct {
	registered map[SystemEventCode][]*registeredEvent

	mu      sync.Mutex
	pending *containers.RingQueue[queuedEvent]
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[SystemEventCode][]*registeredEvent),
		pending:    containers.NewRingQueue[queuedEvent](EVENT_QUEUE_CAPACITY),
	}
}

// Register to listen for when events are sent with the provided code. A
// listener already registered for the code is rejected.
func (es *EventSystem) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	for _, e := range es.registered[code] {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	es.registered[code] = append(es.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

func (es *EventSystem) Unregister(code SystemEventCode, listener interface{}) bool {
	events := es.registered[code]
	for i, e := range events {
		if e.listener == listener {
			es.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire delivers an event to listeners of the given code. If a handler
// returns true the event is considered handled and is not passed on.
func (es *EventSystem) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	for _, e := range es.registered[code] {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

// Post queues an event for the main thread.
func (es *EventSystem) Post(code SystemEventCode, sender interface{}, context EventContext) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.pending.Push(queuedEvent{code: code, sender: sender, context: context})
}

// Dispatch fires every queued event in post order and reports how many were
// delivered.
func (es *EventSystem) Dispatch() int {
	n := 0
	for {
		es.mu.Lock()
		ev, err := es.pending.Pop()
		es.mu.Unlock()
		if err != nil {
			return n
		}
		es.Fire(ev.code, ev.sender, ev.context)
		n++
	}
}

func (es *EventSystem) Shutdown() {
	es.registered = make(map[SystemEventCode][]*registeredEvent)
	es.mu.Lock()
	defer es.mu.Unlock()
	es.pending.Clear()
}
