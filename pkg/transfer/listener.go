package transfer

// EventType of a transfer event
type EventType uint8

// Event types, in lifecycle order
const (
	EventInitiated EventType = iota
	EventStarted
	EventProgressed
	EventCorrupted
	EventSucceeded
	EventFailed
)

func (e EventType) String() string {
	switch e {
	case EventInitiated:
		return "INITIATED"
	case EventStarted:
		return "STARTED"
	case EventProgressed:
		return "PROGRESSED"
	case EventCorrupted:
		return "CORRUPTED"
	case EventSucceeded:
		return "SUCCEEDED"
	case EventFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// RequestType tells if an event is about fetching or publishing
type RequestType uint8

// Request types
const (
	Get RequestType = iota
	Put
)

func (r RequestType) String() string {
	if r == Put {
		return "PUT"
	}
	return "GET"
}

// Resource is the remote object of a transfer
type Resource struct {
	RepositoryURL string
	// Name is the path of the object relative to the repository
	Name string
	// File is the local file, empty for existence checks
	File string
	// ContentLength in bytes, or -1 when unknown
	ContentLength int64
	Transfer      *Transfer
}

// Event describes a step in the lifecycle of a transfer
type Event struct {
	Type     EventType
	Request  RequestType
	Resource Resource
	// Transferred is the number of bytes transferred so far
	Transferred int64
	// Chunk is the data just transferred, for progress events. It is only valid during the callback.
	Chunk []byte
	Err   error
}

// Listener observes transfers. Callbacks for a given transfer are invoked sequentially
// from the goroutine executing it, with no ordering across transfers.
//
// Returning an error wrapping ErrCancelled from the non-terminal callbacks aborts the transfer.
type Listener interface {
	TransferInitiated(Event) error
	TransferStarted(Event) error
	TransferProgressed(Event) error
	TransferCorrupted(Event) error
	TransferSucceeded(Event)
	TransferFailed(Event)
}

// NopListener ignores all events. It may be embedded to implement only part of Listener.
type NopListener struct{}

// TransferInitiated does nothing
func (NopListener) TransferInitiated(Event) error { return nil }

// TransferStarted does nothing
func (NopListener) TransferStarted(Event) error { return nil }

// TransferProgressed does nothing
func (NopListener) TransferProgressed(Event) error { return nil }

// TransferCorrupted does nothing
func (NopListener) TransferCorrupted(Event) error { return nil }

// TransferSucceeded does nothing
func (NopListener) TransferSucceeded(Event) {}

// TransferFailed does nothing
func (NopListener) TransferFailed(Event) {}

type multiListener []Listener

// Listeners fans events out to several listeners, in order.
//
// The first error returned by a listener interrupts the dispatch of that event.
func Listeners(listeners ...Listener) Listener {
	ls := make(multiListener, 0, len(listeners))
	for _, l := range listeners {
		if l != nil {
			ls = append(ls, l)
		}
	}
	return ls
}

func (m multiListener) each(fn func(Listener) error) error {
	for _, l := range m {
		if err := fn(l); err != nil {
			return err
		}
	}
	return nil
}

func (m multiListener) TransferInitiated(e Event) error {
	return m.each(func(l Listener) error { return l.TransferInitiated(e) })
}

func (m multiListener) TransferStarted(e Event) error {
	return m.each(func(l Listener) error { return l.TransferStarted(e) })
}

func (m multiListener) TransferProgressed(e Event) error {
	return m.each(func(l Listener) error { return l.TransferProgressed(e) })
}

func (m multiListener) TransferCorrupted(e Event) error {
	return m.each(func(l Listener) error { return l.TransferCorrupted(e) })
}

func (m multiListener) TransferSucceeded(e Event) {
	for _, l := range m {
		l.TransferSucceeded(e)
	}
}

func (m multiListener) TransferFailed(e Event) {
	for _, l := range m {
		l.TransferFailed(e)
	}
}
