package node

import (
	"sync"
	"sync/atomic"
)

// State captures the state of a node: Enabled, Disabled or Shutdown
type State uint32

const (
	// Enabled is the initial state of a node.
	Enabled State = iota
	// Disabled nodes process messages but do not broadcast their Status.
	Disabled
	// Shutdown is shutdown
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Enabled:
		return "Enabled"
	case Disabled:
		return "Disabled"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
	wg    sync.WaitGroup
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}

// Start a goroutine and add it to waitgroup
func (b *state) goFunc(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
