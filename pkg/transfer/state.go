package transfer

// State of a transfer
type State uint8

// Transfer states. Done and Failed are terminal.
const (
	New State = iota
	Active
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case New:
		return "NEW"
	case Active:
		return "ACTIVE"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal is true for Done and Failed
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Kind tells what a transfer carries
type Kind uint8

// Payload kinds
const (
	ArtifactKind Kind = iota
	MetadataKind
)

func (k Kind) String() string {
	if k == MetadataKind {
		return "metadata"
	}
	return "artifact"
}

// Direction of a transfer
type Direction uint8

// Directions
const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Download {
		return "download"
	}
	return "upload"
}
