package netengine

import "sync"

// serverObject is the minimal surface ServerObjectList needs from a
// member. requestShutdown is the type-specific immediate teardown entry
// point (TCPSocket.disconnect / UDPSession.disconnect), distinct from
// the embedded BaseServerObject.terminate, which only does the generic
// lifecycle bookkeeping (self-removal) and does not by itself unblock a
// socket's blocking I/O or a session's idle wait.
type serverObject interface {
	ID() uint64
	requestShutdown()
	Join()
}

// ServerObjectList is a concurrent set of ServerObjects keyed by identity.
// Removal never invokes user code while the list's own lock is held: the
// lock only ever guards the map mutation itself, never the terminate()
// call or any callback it may trigger.
type ServerObjectList struct {
	mu      LockPolicy
	members map[uint64]serverObject
}

// NewServerObjectList returns an empty list ready for use, with its lock
// built on kind.
func NewServerObjectList(kind LockKind) *ServerObjectList {
	return &ServerObjectList{mu: NewLockPolicy(kind), members: make(map[uint64]serverObject)}
}

// push adds obj to the list and installs the weak owner back-edge used for
// self-removal; the owner invoked on termination is the list itself.
func (l *ServerObjectList) push(obj serverObject, base *BaseServerObject) {
	l.pushWithOwner(obj, base, l)
}

// pushWithOwner adds obj to the list but installs a caller-supplied weak
// owner instead of the list itself, used when a second structure (e.g.
// UDPServer's peer-address index) must also be cleaned up on
// self-removal. The supplied owner is responsible for eventually calling
// back into the list's own remove.
func (l *ServerObjectList) pushWithOwner(obj serverObject, base *BaseServerObject, owner objectRemover) {
	l.mu.Lock()
	l.members[obj.ID()] = obj
	l.mu.Unlock()
	base.setOwner(owner)
}

// remove implements objectRemover; it is called by a member's own
// terminate(), never holds the lock across user code, and is a no-op if
// the member was already removed (e.g. shutdown-all racing a self-remove).
func (l *ServerObjectList) remove(id uint64) {
	l.mu.Lock()
	delete(l.members, id)
	l.mu.Unlock()
}

// Count returns the current member count.
func (l *ServerObjectList) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.members)
}

// Find returns the first member for which pred returns true, or nil.
func (l *ServerObjectList) Find(pred func(serverObject) bool) serverObject {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.members {
		if pred(m) {
			return m
		}
	}
	return nil
}

// ShutdownAll requests termination of every current member and waits for
// each to finish its background execution. The member snapshot is taken
// under the lock, which is then released before any terminate()/Join()
// call: removal (and thus OnDisconnect) never runs with the list lock
// held.
func (l *ServerObjectList) ShutdownAll() {
	l.mu.Lock()
	snapshot := make([]serverObject, 0, len(l.members))
	for _, m := range l.members {
		snapshot = append(snapshot, m)
	}
	l.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(len(snapshot))
	for _, m := range snapshot {
		m := m
		go func() {
			defer wg.Done()
			m.requestShutdown()
			m.Join()
		}()
	}
	wg.Wait()
}
