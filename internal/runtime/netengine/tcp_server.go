package netengine

import (
	"net"
	"sync/atomic"
	"time"
)

type serverState int32

const (
	stateStopped serverState = iota
	stateStarted
	stateStopping
)

// TCPServer listens for TCP connections, performs admission control, and
// spawns a TCPSocket per accepted connection. Synchronous-mode callers
// drain newly-accepted sockets from Accepted and drive Receive themselves;
// asynchronous-mode sockets start their own receive loop immediately and
// deliver packets through OnReceived. The IOCP-style variant is selected by
// setting cfg.WorkerThreadCount > 0: each accepted socket still starts its
// own parser goroutines, but they share one semaphore of that size, so at
// most WorkerThreadCount of them run across all sockets at once.
//
// TCPServer must not be copied once Start has been called; embed noCopy
// catches this under `go vet`.
type TCPServer struct {
	noCopy noCopy

	mu       LockPolicy // BaseServerLock: guards state/fields, never held across a callback
	state    serverState
	stopping atomic.Bool

	cfg        *ServerConfig
	ln         net.Listener
	acceptDone chan struct{}
	list       *ServerObjectList
	bufPool    *bytePool
	sharedSem  chan struct{}

	// Accepted delivers every newly admitted socket, synchronous or
	// asynchronous, so a synchronous caller can pull it and start
	// calling Receive. Buffered; once the buffer is full, the notification
	// for a newly admitted socket is dropped (and logged through Logf),
	// while the socket itself stays admitted and registered in Sockets.
	Accepted chan *TCPSocket

	lastErr error
}

// NewTCPServer validates cfg and returns a ready-to-Start server.
func NewTCPServer(cfg *ServerConfig) (*TCPServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &TCPServer{
		mu:       NewLockPolicy(cfg.LockKind),
		cfg:      cfg,
		list:     NewServerObjectList(cfg.LockKind),
		bufPool:  defaultBytePool(),
		Accepted: make(chan *TCPSocket, 128),
	}
	if cfg.WorkerThreadCount > 0 {
		s.sharedSem = make(chan struct{}, cfg.WorkerThreadCount)
	}
	return s, nil
}

// LastError returns the cause of the most recent Start failure, if any.
func (s *TCPServer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Sockets returns the server's live connection list, for admission
// bookkeeping or diagnostics.
func (s *TCPServer) Sockets() *ServerObjectList { return s.list }

// Start initializes the listener and spawns the accept loop. Starting an
// already-Started server returns true with no side effect (§4.9, §8
// boundary case); any setup failure unwinds the partially acquired
// listener and returns false.
func (s *TCPServer) Start() bool {
	s.mu.Lock()
	if s.state == stateStarted {
		s.mu.Unlock()
		return true
	}
	if s.state == stateStopping {
		s.mu.Unlock()
		return false
	}
	ln, err := net.Listen("tcp", net.JoinHostPort("", s.cfg.Port))
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return false
	}
	s.ln = ln
	s.state = stateStarted
	s.stopping.Store(false)
	s.acceptDone = make(chan struct{})
	s.mu.Unlock()

	go s.acceptLoop()
	return true
}

func (s *TCPServer) acceptLoop() {
	defer close(s.acceptDone)
	var backoff time.Duration
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.stopping.Load() {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else {
					backoff *= 2
					if backoff > 500*time.Millisecond {
						backoff = 500 * time.Millisecond
					}
				}
				time.Sleep(backoff)
				continue
			}
			return
		}
		backoff = 0

		if s.cfg.MaxConnectionCount > 0 && s.list.Count() >= s.cfg.MaxConnectionCount {
			_ = conn.Close()
			continue
		}
		if !s.cfg.Callback.OnAccept(conn.RemoteAddr()) {
			_ = conn.Close()
			continue
		}
		if s.cfg.ProtocolVersion != "" {
			if !s.negotiateServerSide(conn) {
				_ = conn.Close()
				continue
			}
		}

		sock := newTCPSocket(conn, s.cfg.Callback, s.cfg.AsyncReceive, s.cfg.MaxProcessorCount, 0, s.bufPool, s.sharedSem, s.cfg.LockKind)
		s.list.push(sock, &sock.BaseServerObject)
		sock.start()

		select {
		case s.Accepted <- sock:
		default:
			s.cfg.logf("netengine: TCPServer.Accepted buffer full, dropping notification for %s", conn.RemoteAddr())
		}
	}
}

func (s *TCPServer) negotiateServerSide(conn net.Conn) bool {
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetDeadline(time.Time{})
	if err := sendProtocolVersion(conn, s.cfg.ProtocolVersion); err != nil {
		return false
	}
	peer, err := recvProtocolVersion(conn)
	if err != nil {
		return false
	}
	ok, err := checkProtocolCompatible(peer, s.cfg.ProtocolVersion)
	return err == nil && ok
}

// Stop is idempotent: it closes the listener (unblocking Accept), waits up
// to cfg.WaitTime for the accept loop to exit, then shuts down every live
// socket.
func (s *TCPServer) Stop() {
	s.mu.Lock()
	if s.state != stateStarted {
		s.mu.Unlock()
		return
	}
	s.state = stateStopping
	s.stopping.Store(true)
	ln := s.ln
	done := s.acceptDone
	s.mu.Unlock()

	_ = ln.Close()
	waitForDone(done, s.cfg.WaitTime)

	s.list.ShutdownAll()

	s.mu.Lock()
	s.state = stateStopped
	s.mu.Unlock()
}

func waitForDone(done chan struct{}, timeout time.Duration) {
	if timeout <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}

func (s *TCPServer) applyReloadableFields(f reloadableServerFields) {
	s.mu.Lock()
	if f.MaxConnectionCount != nil {
		s.cfg.MaxConnectionCount = *f.MaxConnectionCount
	}
	if f.WaitTimeMS != nil {
		s.cfg.WaitTime = time.Duration(*f.WaitTimeMS) * time.Millisecond
	}
	if f.MaxProcessorCount != nil {
		s.cfg.MaxProcessorCount = *f.MaxProcessorCount
	}
	maxProc := f.MaxProcessorCount
	s.mu.Unlock()

	if maxProc != nil {
		s.list.Find(func(o serverObject) bool {
			if sock, ok := o.(*TCPSocket); ok {
				sock.SetMaxProcessorCount(*maxProc)
			}
			return false
		})
	}
}

// noCopy, embedded by value, makes `go vet -copylocks` flag any copy of a
// struct that contains it, the mechanism used to forbid copying a live
// Server or Client (SPEC_FULL.md Open Question 3).
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
