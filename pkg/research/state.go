package research

import "fmt"

// State is a Loop Controller state.
type State string

const (
	StateInitial          State = "INITIAL"
	StateQueriesGenerated State = "QUERIES_GENERATED"
	StateResearching      State = "RESEARCHING"
	StateReflecting       State = "REFLECTING"
	StateSynthesizing     State = "SYNTHESIZING"
	StateDone             State = "DONE"
	StateFailed           State = "FAILED"
)

// transitions lists the only edges the controller may take. REFLECTING ->
// RESEARCHING is the single backward edge and is bounded by MaxLoops.
var transitions = map[State][]State{
	StateInitial:          {StateQueriesGenerated},
	StateQueriesGenerated: {StateResearching},
	StateResearching:      {StateReflecting},
	StateReflecting:       {StateResearching, StateSynthesizing},
	StateSynthesizing:     {StateDone},
}

// CanTransition reports whether from -> to is a legal edge. Any
// non-terminal state may move to FAILED.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateDone && from != StateFailed
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s *Session) advance(to State) error {
	if !CanTransition(s.State, to) {
		return fmt.Errorf("illegal transition %s -> %s", s.State, to)
	}
	s.State = to
	return nil
}
