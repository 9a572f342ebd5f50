package confnode

import "fmt"

type State uint8

const (
	Unknown State = iota
	Loading
	Synced
	Error
	Disposed
)

var stateNames = []string{"Unknown", "Loading", "Synced", "Error", "Disposed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// NodeState is the lifecycle of a single node. Error is sticky until Reset and
// Disposed is terminal. Transitions never propagate to parents or children.
type NodeState struct {
	state State
	err   error
}

func (s *NodeState) State() State {
	return s.state
}

func (s *NodeState) HasError() bool {
	return s.state == Error
}

// Err returns the failure recorded by the last transition into Error.
func (s *NodeState) Err() error {
	return s.err
}

// begin is called before content is assigned.
func (s *NodeState) begin() error {
	switch s.state {
	case Disposed:
		return ErrDisposed
	case Unknown:
		s.state = Loading
	}
	return nil
}

func (s *NodeState) markLoaded() error {
	switch s.state {
	case Error:
		return fmt.Errorf("%w: cannot mark as loaded, object state is in error [state=%s]", ErrInvalidState, s.state)
	case Disposed:
		return fmt.Errorf("%w: cannot mark as loaded [state=%s]", ErrDisposed, s.state)
	}
	s.state = Synced
	return nil
}

func (s *NodeState) fail(err error) {
	if s.state == Disposed {
		return
	}
	s.state = Error
	s.err = err
}

func (s *NodeState) reset() {
	if s.state != Error {
		return
	}
	s.state = Unknown
	s.err = nil
}

func (s *NodeState) dispose() bool {
	if s.state == Disposed {
		return false
	}
	s.state = Disposed
	return true
}
