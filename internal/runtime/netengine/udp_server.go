package netengine

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// fallbackMaxDatagramSize is the maximum IPv4 UDP payload (65535 - 8 byte
// UDP header - 20 byte minimal IP header), used when the OS send-buffer
// size can't be queried and as the cap on whatever SO_SNDBUF reports.
const fallbackMaxDatagramSize = 65507

// UDPServer runs a single recvfrom loop, demultiplexes datagrams by peer
// address into per-peer UDPSession virtual connections, and enforces
// admission for first-seen peers. It must not be copied once Start has
// been called.
type UDPServer struct {
	noCopy noCopy

	mu       LockPolicy
	state    serverState
	stopping atomic.Bool

	cfg         *ServerConfig
	conn        *net.UDPConn
	recvDone    chan struct{}
	list        *ServerObjectList
	bufPool     *bytePool
	idleTimeout time.Duration

	sendMu LockPolicy // server-wide send lock: all sessions write through the one shared socket

	sessionsMu     sync.Mutex
	sessionsByAddr map[string]*UDPSession
	addrByID       map[uint64]string

	maxPacketSize int
	lastErr       error
}

// NewUDPServer validates cfg and returns a ready-to-Start server.
// idleTimeout is the virtual-session eviction wait (§4.7); zero selects
// defaultSessionIdleTimeout.
func NewUDPServer(cfg *ServerConfig, idleTimeout time.Duration) (*UDPServer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &UDPServer{
		mu:             NewLockPolicy(cfg.LockKind),
		cfg:            cfg,
		list:           NewServerObjectList(cfg.LockKind),
		bufPool:        defaultBytePool(),
		idleTimeout:    idleTimeout,
		sendMu:         NewLockPolicy(cfg.LockKind),
		sessionsByAddr: make(map[string]*UDPSession),
		addrByID:       make(map[uint64]string),
	}, nil
}

// LastError returns the cause of the most recent Start failure, if any.
func (s *UDPServer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Sockets returns the server's live virtual-session list.
func (s *UDPServer) Sockets() *ServerObjectList { return s.list }

// GetMaxPacketByteSize reports the maximum datagram size usable on this
// server's socket, queried at Start time (§6: "Max datagram size is
// queried from the OS ... at server start").
func (s *UDPServer) GetMaxPacketByteSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxPacketSize
}

// Start binds the UDP socket and spawns the single receive loop. Starting
// an already-Started server returns true with no side effect.
func (s *UDPServer) Start() bool {
	s.mu.Lock()
	if s.state == stateStarted {
		s.mu.Unlock()
		return true
	}
	if s.state == stateStopping {
		s.mu.Unlock()
		return false
	}
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort("", s.cfg.Port))
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return false
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return false
	}
	s.conn = conn
	s.maxPacketSize = queryMaxDatagramSize(conn)
	s.state = stateStarted
	s.stopping.Store(false)
	s.recvDone = make(chan struct{})
	s.mu.Unlock()

	go s.recvLoop()
	return true
}

func (s *UDPServer) recvLoop() {
	defer close(s.recvDone)
	scratch := make([]byte, s.maxPacketSize)
	for {
		n, remote, err := s.conn.ReadFromUDP(scratch)
		if err != nil {
			if s.stopping.Load() {
				return
			}
			continue
		}

		key := remote.String()
		s.sessionsMu.Lock()
		sess, ok := s.sessionsByAddr[key]
		s.sessionsMu.Unlock()

		if ok {
			sess.enqueue(NewPacket(scratch[:n]))
			continue
		}

		if s.cfg.MaxConnectionCount > 0 && s.list.Count() >= s.cfg.MaxConnectionCount {
			continue // admission drops are silent for UDP (§4.6)
		}
		if !s.cfg.Callback.OnAccept(remote) {
			continue
		}

		sess = newUDPSession(remote, s, s.cfg.Callback, s.idleTimeout)
		s.sessionsMu.Lock()
		s.sessionsByAddr[key] = sess
		s.addrByID[sess.ID()] = key
		s.sessionsMu.Unlock()

		s.list.pushWithOwner(sess, &sess.BaseServerObject, s)
		sess.start()
		sess.enqueue(NewPacket(scratch[:n]))
	}
}

// remove implements objectRemover on behalf of the sessions this server
// owns: it cleans the peer-address index and then the underlying list,
// without ever holding a lock across user code.
func (s *UDPServer) remove(id uint64) {
	s.sessionsMu.Lock()
	if key, ok := s.addrByID[id]; ok {
		delete(s.addrByID, id)
		delete(s.sessionsByAddr, key)
	}
	s.sessionsMu.Unlock()
	s.list.remove(id)
}

// sendTo writes one unframed datagram to remote through the shared
// listening socket, serialized behind the server's send lock.
func (s *UDPServer) sendTo(remote *net.UDPAddr, body []byte, timeout time.Duration) (int, SendStatus) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	} else {
		_ = s.conn.SetWriteDeadline(time.Time{})
	}
	defer s.conn.SetWriteDeadline(time.Time{})

	n, err := s.conn.WriteToUDP(body, remote)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, SendTimeOut
		}
		if n == 0 {
			return -1, SendSocketError
		}
		return n, SendFailed
	}
	return n, SendSuccess
}

// Stop is idempotent: it closes the socket (unblocking ReadFromUDP), waits
// up to cfg.WaitTime for the receive loop to exit, then evicts every live
// session.
func (s *UDPServer) Stop() {
	s.mu.Lock()
	if s.state != stateStarted {
		s.mu.Unlock()
		return
	}
	s.state = stateStopping
	s.stopping.Store(true)
	conn := s.conn
	done := s.recvDone
	s.mu.Unlock()

	_ = conn.Close()
	waitForDone(done, s.cfg.WaitTime)

	s.list.ShutdownAll()

	s.mu.Lock()
	s.state = stateStopped
	s.mu.Unlock()
}
