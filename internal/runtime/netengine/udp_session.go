package netengine

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// defaultSessionIdleTimeout is how long a virtual session's worker waits
// for the next datagram before concluding the peer has gone away and
// evicting the session (§4.7).
const defaultSessionIdleTimeout = 30 * time.Second

// UDPSession is a server-side logical connection for one UDP peer. It owns
// no OS socket handle: sends are relayed through the server's shared
// listening socket, serialized by the server's own send lock. It owns
// only a packet queue and the worker that drains it.
type UDPSession struct {
	BaseServerObject

	remote      *net.UDPAddr
	server      *UDPServer
	cb          ServerCallback
	idleTimeout time.Duration

	queue          *packetQueue
	alive          atomic.Bool
	disconnectOnce sync.Once
}

func newUDPSession(remote *net.UDPAddr, server *UDPServer, cb ServerCallback, idleTimeout time.Duration) *UDPSession {
	if idleTimeout <= 0 {
		idleTimeout = defaultSessionIdleTimeout
	}
	s := &UDPSession{
		BaseServerObject: newBaseServerObject(),
		remote:           remote,
		server:           server,
		cb:               cb,
		idleTimeout:      idleTimeout,
		queue:            newPacketQueue(),
	}
	s.alive.Store(true)
	return s
}

// RemoteAddr implements Conn.
func (s *UDPSession) RemoteAddr() net.Addr { return s.remote }

// IsAlive implements Conn.
func (s *UDPSession) IsAlive() bool { return s.alive.Load() }

// Send relays body through the server's shared listening socket to this
// session's peer address.
func (s *UDPSession) Send(body []byte, timeout time.Duration) (int, SendStatus) {
	if !s.IsAlive() {
		return -1, SendNotConnected
	}
	return s.server.sendTo(s.remote, body, timeout)
}

// Close evicts the session immediately, as if its idle timeout had
// elapsed.
func (s *UDPSession) Close() { s.disconnect() }

// requestShutdown implements serverObject for ServerObjectList.ShutdownAll.
func (s *UDPSession) requestShutdown() { s.disconnect() }

func (s *UDPSession) enqueue(pkt *Packet) {
	if !s.IsAlive() {
		pkt.Release()
		return
	}
	s.queue.push(pkt)
}

func (s *UDPSession) start() {
	s.BaseServerObject.start(s.run)
}

// run is the session's single worker: dequeue with the configured wait; a
// dequeue timeout is the idle-eviction policy and terminates the session.
func (s *UDPSession) run() {
	for {
		pkt, ok := s.queue.pop(s.idleTimeout)
		if !ok {
			s.disconnect()
			return
		}
		if !s.IsAlive() {
			pkt.Release()
			return
		}
		s.cb.OnReceived(s, pkt, ReceiveSuccess)
		pkt.Release()
	}
}

func (s *UDPSession) disconnect() {
	s.disconnectOnce.Do(func() {
		s.alive.Store(false)
		s.queue.close()
		s.cb.OnDisconnect(s)
		s.terminate()
		s.queue.drainAndRelease()
	})
}
