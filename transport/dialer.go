package transport

import "sync"

// dialAttempt is one in-flight outbound attempt. All callers dialing the
// same address wait on the same attempt; done is closed when the attempt
// settles with either an identified peer or an error.
type dialAttempt struct {
	done       chan struct{}
	settleOnce sync.Once
	peer       PeerID
	err        error
}

// wait blocks until the attempt settles.
func (a *dialAttempt) wait() (PeerID, error) {
	<-a.done
	return a.peer, a.err
}

// settle records the outcome and wakes every waiter. Only the first call
// counts: a dial finishing concurrently with Stop must not settle twice.
func (a *dialAttempt) settle(peer PeerID, err error) {
	a.settleOnce.Do(func() {
		a.peer = peer
		a.err = err
		close(a.done)
	})
}

// dialLedger collapses concurrent outbound dials to one address into a
// single attempt. An entry exists only while its attempt is in flight; it is
// removed when the attempt settles, permitting a fresh attempt afterward.
type dialLedger struct {
	mu       sync.Mutex
	attempts map[string]*dialAttempt
}

func newDialLedger() *dialLedger {
	return &dialLedger{attempts: make(map[string]*dialAttempt)}
}

// begin returns the attempt for an address. started reports whether this
// call created it, making the caller responsible for dialing and for
// settling the attempt.
func (l *dialLedger) begin(addrKey string) (attempt *dialAttempt, started bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if pending, ok := l.attempts[addrKey]; ok {
		return pending, false
	}
	attempt = &dialAttempt{done: make(chan struct{})}
	l.attempts[addrKey] = attempt
	return attempt, true
}

// settle removes the attempt's ledger entry and records its outcome.
func (l *dialLedger) settle(addrKey string, attempt *dialAttempt, peer PeerID, err error) {
	l.mu.Lock()
	if l.attempts[addrKey] == attempt {
		delete(l.attempts, addrKey)
	}
	l.mu.Unlock()

	attempt.settle(peer, err)
}

// failAll settles every in-flight attempt with the given error. Stop uses
// this so pending dial waiters fail deterministically instead of hanging.
func (l *dialLedger) failAll(err error) {
	l.mu.Lock()
	attempts := l.attempts
	l.attempts = make(map[string]*dialAttempt)
	l.mu.Unlock()

	for _, attempt := range attempts {
		attempt.settle("", err)
	}
}

// size returns the number of in-flight attempts.
func (l *dialLedger) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}
