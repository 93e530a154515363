package group

import (
	"github.com/pkg/errors"
)

// State is the lifecycle state of a consumer group. A group moves through
// PreparingRebalance -> AwaitingSync -> Stable for every rebalance round and
// can reach Dead from any of them. Dead is terminal.
type State int

const (
	PreparingRebalance State = 1 + iota
	AwaitingSync
	Stable
	Dead
)

// validPreviousStates lists, per target state, the states a group is allowed
// to transition from. TransitionTo is the only mutation path for Group.state,
// so every state change in the system goes through this table.
var validPreviousStates = map[State][]State{
	Dead:               {Stable, PreparingRebalance, AwaitingSync},
	AwaitingSync:       {PreparingRebalance},
	Stable:             {AwaitingSync},
	PreparingRebalance: {Stable, AwaitingSync},
}

func (s State) String() string {
	switch s {
	case PreparingRebalance:
		return "PreparingRebalance"
	case AwaitingSync:
		return "AwaitingSync"
	case Stable:
		return "Stable"
	case Dead:
		return "Dead"
	default:
		return "Unknown"
	}
}

func (s State) validTransitionTo(target State) bool {
	for _, from := range validPreviousStates[target] {
		if from == s {
			return true
		}
	}
	return false
}

// IllegalTransitionError reports a state change that does not appear in the
// legal-transition table. It is a contract violation: the caller asked for a
// transition the protocol never performs.
type IllegalTransitionError struct {
	GroupId string
	From    State
	To      State
}

func (e *IllegalTransitionError) Error() string {
	return errors.Errorf("group %s should be in one of %v states before moving to %s, current state is %s",
		e.GroupId, validPreviousStates[e.To], e.To, e.From).Error()
}
