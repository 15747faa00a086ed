package ledger

import "errors"

var ErrReentrantCall = errors.New("reentrant call")

// Guard is a one-shot reentrancy lock for state-mutating entry points.
type Guard struct {
	entered bool
}

// Enter takes the lock, failing if the current call already holds it.
func (g *Guard) Enter() error {
	if g.entered {
		return ErrReentrantCall
	}
	g.entered = true
	return nil
}

// Exit releases the lock.
func (g *Guard) Exit() {
	g.entered = false
}
