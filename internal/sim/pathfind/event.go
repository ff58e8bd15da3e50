package pathfind

type EventKind uint8

const (
	EventCached EventKind = iota + 1
	EventOpened
	EventRelaxed
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventCached:
		return "CACHED"
	case EventOpened:
		return "OPENED"
	case EventRelaxed:
		return "RELAXED"
	case EventClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Event describes one change to the search state. Observers receive events
// synchronously on the search goroutine and must not retain the search.
type Event struct {
	Kind  EventKind
	Step  int
	Pos   Vec3i
	Solid bool
	G, F  int
}

// Observer is an optional debug hook. It has no influence on the search.
type Observer func(Event)
