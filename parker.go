package eventqueue

import (
	"sync"

	"github.com/valyala/fastrand"
)

// waiter is the identity of a parked consumer. Its ready channel is closed
// by exactly one wake.
type waiter struct {
	id        uint32
	ready     chan struct{}
	abandoned bool // guarded by parker.mu
}

// parker tracks the single parked consumer. Registering a new waiter
// silently replaces the previous one.
type parker struct {
	mu     sync.Mutex
	waiter *waiter
}

// park registers a fresh consumer identity and returns it.
func (p *parker) park() *waiter {
	id := fastrand.Uint32()
	for id == 0 {
		id = fastrand.Uint32()
	}
	w := &waiter{id: id, ready: make(chan struct{})}

	p.mu.Lock()
	p.waiter = w
	p.mu.Unlock()
	return w
}

// release drops the registered identity. Called by the consumer after it
// received a word on its own; there is only one consumer, so whatever is
// registered is its own.
func (p *parker) release() {
	p.mu.Lock()
	p.waiter = nil
	p.mu.Unlock()
}

// abandon marks the identity id as gone if it is still the registered one.
// A producer that later tries to wake it gets ErrWakeTargetInvalid.
// It reports whether id was registered.
func (p *parker) abandon(id uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiter == nil || p.waiter.id != id {
		return false
	}
	p.waiter.abandoned = true
	return true
}

// wake resumes the registered consumer, if any, and clears its identity.
// It returns the woken identity, or 0 if nobody was parked.
func (p *parker) wake() (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	w := p.waiter
	if w == nil {
		return 0, nil
	}
	p.waiter = nil
	if w.abandoned {
		return w.id, ErrWakeTargetInvalid
	}
	close(w.ready)
	return w.id, nil
}

// parked returns the identity of the registered consumer, or 0.
func (p *parker) parked() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiter == nil {
		return 0
	}
	return p.waiter.id
}
