package engine

// State is a step of the per-query state machine.
//
//	Idle -> Routing -> Retrieving -> Merging -> Responded
//	                       |            ^
//	                       v            |
//	               RetrievingFallback --+
//
// Every transition happens at most once per query.
type State int

const (
	StateIdle State = iota
	StateRouting
	StateRetrieving
	StateRetrievingFallback
	StateMerging
	StateResponded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRouting:
		return "routing"
	case StateRetrieving:
		return "retrieving"
	case StateRetrievingFallback:
		return "retrieving_fallback"
	case StateMerging:
		return "merging"
	case StateResponded:
		return "responded"
	default:
		return "unknown"
	}
}
