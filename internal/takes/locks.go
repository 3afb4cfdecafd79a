package takes

import (
	"sync"

	"github.com/jamsplit/jamsplit/internal/faults"
)

// sessionLocks serializes structural edits per session. Concurrent edits of
// the same session are rejected rather than queued so a client never waits
// behind a long reprocess.
type sessionLocks struct {
	mu   sync.Mutex
	held map[int64]struct{}
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{held: make(map[int64]struct{})}
}

// acquire takes the lock for sessionID and returns a release func, or a
// conflict error when another edit is in flight.
func (l *sessionLocks) acquire(sessionID int64) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[sessionID]; busy {
		return nil, faults.New(faults.KindConflict, "session %d is being processed", sessionID)
	}
	l.held[sessionID] = struct{}{}

	return func() {
		l.mu.Lock()
		delete(l.held, sessionID)
		l.mu.Unlock()
	}, nil
}
