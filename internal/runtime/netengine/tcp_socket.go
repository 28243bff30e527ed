package netengine

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPSocket is the per-connection state for one accepted (or dialed) TCP
// connection: send lock, callback reference, remote address, alive flag,
// and, for the async variant, a dedicated receive loop feeding a
// per-socket parser pool. It implements Conn and embeds BaseServerObject
// for list membership and lifecycle.
type TCPSocket struct {
	BaseServerObject

	conn     net.Conn
	cb       ServerCallback
	async    bool
	frameCap uint32
	bufPool  *bytePool

	sendMu LockPolicy
	alive  atomic.Bool

	pool           *parserPool
	disconnectOnce sync.Once
}

func newTCPSocket(conn net.Conn, cb ServerCallback, async bool, maxProcessors int, frameCap uint32, bufPool *bytePool, sharedSem chan struct{}, lockKind LockKind) *TCPSocket {
	s := &TCPSocket{
		BaseServerObject: newBaseServerObject(),
		conn:             conn,
		cb:               cb,
		async:            async,
		frameCap:         frameCap,
		bufPool:          bufPool,
		sendMu:           NewLockPolicy(lockKind),
	}
	s.alive.Store(true)
	if async {
		s.pool = newSharedParserPool(maxProcessors, func(pkt *Packet) {
			cb.OnReceived(s, pkt, ReceiveSuccess)
			pkt.Release()
		}, sharedSem)
	}
	return s
}

// RemoteAddr implements Conn.
func (s *TCPSocket) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

// IsAlive implements Conn; safe to call concurrently with Close.
func (s *TCPSocket) IsAlive() bool { return s.alive.Load() }

// SetMaxProcessorCount live-resizes the async receive processor pool's
// worker cap (0 = unbounded), per SPEC_FULL.md's supplemented live-tunable
// knob. A no-op on a sync socket.
func (s *TCPSocket) SetMaxProcessorCount(n int) {
	if s.pool != nil {
		s.pool.setMaxWorkers(n)
	}
}

// GetMaxProcessorCount returns the processor pool's current worker cap
// (0 = unbounded), or 0 on a sync socket, which has no pool.
func (s *TCPSocket) GetMaxProcessorCount() int {
	if s.pool == nil {
		return 0
	}
	return s.pool.getMaxWorkers()
}

// start launches the async receive loop. No-op for a sync socket, whose
// background execution stays dormant until the caller pulls packets via
// Receive (§4.5).
func (s *TCPSocket) start() {
	if !s.async {
		return
	}
	s.BaseServerObject.start(s.receiveLoop)
}

func (s *TCPSocket) receiveLoop() {
	for {
		if s.Terminated() {
			return
		}
		pkt, err := readFrame(s.conn, s.bufPool, s.frameCap)
		if err != nil {
			s.disconnect()
			return
		}
		if s.pool != nil {
			s.pool.enqueue(pkt)
		} else {
			pkt.Release()
		}
	}
}

// Receive is the caller-driven pull for a sync TCP socket: read the
// 4-byte length prefix (select-equivalent via a read deadline), then the
// body. A zero-length frame is SUCCESS with an empty packet; a clean
// peer close before any header byte arrives is CONNECTION_CLOSING.
func (s *TCPSocket) Receive(timeout time.Duration) (*Packet, ReceiveStatus) {
	if !s.IsAlive() {
		return nil, ReceiveNotConnected
	}
	if timeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}
	defer s.conn.SetReadDeadline(time.Time{})

	var hdr [frameHeaderSize]byte
	n, err := readFullN(s.conn, hdr[:])
	if err != nil {
		status := classifyReadErr(n, err)
		if status != ReceiveTimeOut {
			s.disconnect()
		}
		return nil, status
	}
	length := decodeFrameHeader(hdr[:])
	if s.frameCap != 0 && length > s.frameCap {
		s.disconnect()
		return nil, ReceiveSocketError
	}
	pkt := NewPacketSize(int(length))
	if length > 0 {
		n, err := readFullN(s.conn, pkt.data)
		if err != nil {
			status := classifyReadErr(n, err)
			if status != ReceiveTimeOut {
				s.disconnect()
			}
			return nil, status
		}
	}
	return pkt, ReceiveSuccess
}

// readFullN is like readFull but also reports how many bytes were
// actually written, needed by classifyReadErr to tell a clean close from a
// fatal short read.
func readFullN(r io.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if n <= 0 && err == nil {
			return total, io.ErrUnexpectedEOF
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func classifyReadErr(n int, err error) ReceiveStatus {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReceiveTimeOut
	}
	if n == 0 {
		return ReceiveConnectionClosing
	}
	return ReceiveFailed
}

// Send serializes outbound writes on this connection behind sendMu,
// per §4.2: failure conditions map to NOT_CONNECTED, TIME_OUT,
// SOCKET_ERROR and SEND_FAILED, and the returned byte count excludes the
// 4-byte length prefix.
func (s *TCPSocket) Send(body []byte, timeout time.Duration) (int, SendStatus) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.IsAlive() {
		return -1, SendNotConnected
	}
	if timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(timeout))
	} else {
		_ = s.conn.SetWriteDeadline(time.Time{})
	}
	defer s.conn.SetWriteDeadline(time.Time{})

	n, err := writeFrame(s.conn, body)
	if err != nil {
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return n, SendTimeOut
		}
		if n == 0 {
			return -1, SendSocketError
		}
		return n, SendFailed
	}
	return n, SendSuccess
}

// Close tears the connection down immediately, as if the peer had closed
// it: OnDisconnect fires exactly once, the handle closes, and the socket
// self-removes from its owning list.
func (s *TCPSocket) Close() { s.disconnect() }

// requestShutdown implements serverObject for ServerObjectList.ShutdownAll.
func (s *TCPSocket) requestShutdown() { s.disconnect() }

func (s *TCPSocket) disconnect() {
	s.disconnectOnce.Do(func() {
		s.alive.Store(false)
		if s.pool != nil {
			s.pool.stop()
		}
		s.cb.OnDisconnect(s)
		_ = s.conn.Close()
		s.terminate()
	})
}
