package connectortest

import (
	"sync"

	"github.com/oneconcern/depot/pkg/transfer"
)

var _ transfer.Listener = &RecordingListener{}

// RecordingListener keeps every event it is notified of.
//
// Chunks of progress events are copied, since the buffers they come from are reused.
type RecordingListener struct {
	mx     sync.Mutex
	events []transfer.Event
}

func (r *RecordingListener) record(e transfer.Event) {
	if e.Chunk != nil {
		e.Chunk = append([]byte(nil), e.Chunk...)
	}
	r.mx.Lock()
	r.events = append(r.events, e)
	r.mx.Unlock()
}

// TransferInitiated records the event
func (r *RecordingListener) TransferInitiated(e transfer.Event) error { r.record(e); return nil }

// TransferStarted records the event
func (r *RecordingListener) TransferStarted(e transfer.Event) error { r.record(e); return nil }

// TransferProgressed records the event
func (r *RecordingListener) TransferProgressed(e transfer.Event) error { r.record(e); return nil }

// TransferCorrupted records the event
func (r *RecordingListener) TransferCorrupted(e transfer.Event) error { r.record(e); return nil }

// TransferSucceeded records the event
func (r *RecordingListener) TransferSucceeded(e transfer.Event) { r.record(e) }

// TransferFailed records the event
func (r *RecordingListener) TransferFailed(e transfer.Event) { r.record(e) }

// Events recorded so far
func (r *RecordingListener) Events() []transfer.Event {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]transfer.Event(nil), r.events...)
}

// For returns the events recorded for one transfer, in order
func (r *RecordingListener) For(t *transfer.Transfer) []transfer.Event {
	r.mx.Lock()
	defer r.mx.Unlock()
	var events []transfer.Event
	for _, e := range r.events {
		if e.Resource.Transfer == t {
			events = append(events, e)
		}
	}
	return events
}

// Types of the events recorded for one transfer, with consecutive progress events collapsed
func (r *RecordingListener) Types(t *transfer.Transfer) []transfer.EventType {
	var types []transfer.EventType
	for _, e := range r.For(t) {
		if e.Type == transfer.EventProgressed && len(types) > 0 && types[len(types)-1] == transfer.EventProgressed {
			continue
		}
		types = append(types, e.Type)
	}
	return types
}

// Reset forgets all recorded events
func (r *RecordingListener) Reset() {
	r.mx.Lock()
	r.events = nil
	r.mx.Unlock()
}
