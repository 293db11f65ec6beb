package core

import "sync"

type EventContext struct {
	Data struct {
		I64 [2]int64
		U64 [2]uint64
		F64 [2]float64

		I32 [4]int32
		U32 [4]uint32
		F32 [4]float32

		C [4]string
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A merge finished successfully.
	/* Context usage:
	 * string recipe_name = data.Data.C[0];
	 * string output_path = data.Data.C[1];
	 * f64 elapsed_ms = data.Data.F64[0];
	 * u32 lod_count = data.Data.U32[0];
	 * u32 bone_count = data.Data.U32[1];
	 */
	EVENT_CODE_MESH_MERGED SystemEventCode = 0x02

	// A merge failed.
	/* Context usage:
	 * string recipe_name = data.Data.C[0];
	 * string error = data.Data.C[1];
	 */
	EVENT_CODE_MERGE_FAILED SystemEventCode = 0x03

	// A watched source file changed on disk.
	/* Context usage:
	 * string path = data.Data.C[0];
	 */
	EVENT_CODE_SOURCE_CHANGED SystemEventCode = 0x04

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

type eventCodeEntry struct {
	events []*registeredEvent
}

// State structure.
type eventSystemState struct {
	mutex sync.RWMutex
	// Lookup table for event codes.
	registered [MAX_MESSAGE_CODES]eventCodeEntry
}

var eventState *eventSystemState = nil
var eventMutex sync.Mutex

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

func EventSystemInitialize() bool {
	eventMutex.Lock()
	defer eventMutex.Unlock()
	if eventState != nil {
		return false
	}
	eventState = &eventSystemState{}
	return true
}

func EventSystemShutdown() error {
	eventMutex.Lock()
	defer eventMutex.Unlock()
	eventState = nil
	return nil
}

func getEventState() *eventSystemState {
	eventMutex.Lock()
	defer eventMutex.Unlock()
	return eventState
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener/callback combos will not be registered again and will cause this to return FALSE.
 * @param code The event code to listen for.
 * @param listener A pointer to a listener instance. Can be nil.
 * @param onEvent The callback function to be invoked when the event code is fired.
 * @returns TRUE if the event is successfully registered; otherwise false.
 */
func EventRegister(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	state := getEventState()
	if state == nil || onEvent == nil {
		return false
	}
	state.mutex.Lock()
	defer state.mutex.Unlock()

	for _, e := range state.registered[code].events {
		if e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	state.registered[code].events = append(state.registered[code].events, &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns FALSE.
 * @param code The event code to stop listening for.
 * @param listener A pointer to a listener instance. Can be nil.
 * @returns TRUE if the event is successfully unregistered; otherwise false.
 */
func EventUnregister(code SystemEventCode, listener interface{}) bool {
	state := getEventState()
	if state == nil {
		return false
	}
	state.mutex.Lock()
	defer state.mutex.Unlock()

	events := state.registered[code].events
	for i, e := range events {
		if e.listener == listener {
			state.registered[code].events = append(events[:i], events[i+1:]...)
			return true
		}
	}
	// Not found.
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * TRUE, the event is considered handled and is not passed on to any more listeners.
 * @param code The event code to fire.
 * @param sender A pointer to the sender. Can be nil.
 * @param context The event data.
 * @returns TRUE if handled, otherwise FALSE.
 */
func EventFire(code SystemEventCode, sender interface{}, context EventContext) bool {
	state := getEventState()
	if state == nil {
		return false
	}
	state.mutex.RLock()
	events := make([]*registeredEvent, len(state.registered[code].events))
	copy(events, state.registered[code].events)
	state.mutex.RUnlock()

	for _, e := range events {
		if e.callback(code, sender, e.listener, context) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}
