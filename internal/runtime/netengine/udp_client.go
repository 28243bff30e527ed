package netengine

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// UDPClient is a connected-UDP-socket client: each Send/Receive carries
// one whole datagram as its own packet, with no frame header and no
// reassembly, mirroring the server-side UDPSession's unframed contract.
// Optional async receive delivers to a UDPClientCallback on its own
// goroutine, bounded by a cap-1 parser pool for callback ordering.
//
// Must not be copied once Connect has been called.
type UDPClient struct {
	noCopy noCopy

	mu    LockPolicy
	state clientState

	cfg  *UDPClientConfig
	conn *net.UDPConn

	sendMu        LockPolicy
	alive         atomic.Bool
	maxPacketSize int

	pool           *parserPool
	wg             sync.WaitGroup
	disconnectOnce sync.Once
	lastErr        error
}

// NewUDPClient validates cfg and returns a ready-to-Connect client.
func NewUDPClient(cfg *UDPClientConfig) (*UDPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &UDPClient{
		mu:     NewLockPolicy(cfg.LockKind),
		cfg:    cfg,
		sendMu: NewLockPolicy(cfg.LockKind),
	}, nil
}

// LastError returns the cause of the most recent Connect failure, if any.
func (c *UDPClient) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsConnectionAlive reflects the alive flag; safe to call concurrently
// with Disconnect.
func (c *UDPClient) IsConnectionAlive() bool { return c.alive.Load() }

// GetMaxPacketByteSize reports the maximum datagram size usable on this
// client's socket, queried at Connect time.
func (c *UDPClient) GetMaxPacketByteSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxPacketSize
}

// Connect resolves the configured host:port and binds a connected UDP
// socket. No handshake crosses the wire, since UDP has no connection
// setup; "connected" here only fixes the peer address for Send/Receive
// and filters ICMP-unreachable delivery.
func (c *UDPClient) Connect(timeout time.Duration) bool {
	c.mu.Lock()
	if c.state == clientConnected || c.state == clientConnecting {
		c.mu.Unlock()
		return c.state == clientConnected
	}
	c.state = clientConnecting
	c.mu.Unlock()

	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.cfg.Hostname, c.cfg.Port))
	if err != nil {
		c.mu.Lock()
		c.state = clientDisconnected
		c.lastErr = err
		c.mu.Unlock()
		return false
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		c.mu.Lock()
		c.state = clientDisconnected
		c.lastErr = err
		c.mu.Unlock()
		return false
	}

	c.mu.Lock()
	c.conn = conn
	c.maxPacketSize = queryMaxDatagramSize(conn)
	c.state = clientConnected
	c.mu.Unlock()
	c.alive.Store(true)
	c.disconnectOnce = sync.Once{}

	if c.cfg.AsyncReceive {
		c.pool = newParserPool(1, func(pkt *Packet) {
			c.cfg.Callback.OnReceived(c, pkt, ReceiveSuccess)
			pkt.Release()
		})
		c.wg.Add(1)
		go c.receiveLoop()
	}
	return true
}

func (c *UDPClient) receiveLoop() {
	scratch := make([]byte, c.maxPacketSize)
	for c.alive.Load() {
		n, err := c.conn.Read(scratch)
		if err != nil {
			// Leave the wait group first: disconnect waits on it.
			c.wg.Done()
			c.disconnect()
			return
		}
		pkt := NewPacket(scratch[:n])
		if c.pool != nil {
			c.pool.enqueue(pkt)
		} else {
			pkt.Release()
		}
	}
	c.wg.Done()
}

// Receive is the caller-driven pull for a synchronous client: one
// Receive returns exactly one datagram.
func (c *UDPClient) Receive(timeout time.Duration) (*Packet, ReceiveStatus) {
	if !c.alive.Load() {
		return nil, ReceiveNotConnected
	}
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	defer c.conn.SetReadDeadline(time.Time{})

	scratch := make([]byte, c.maxPacketSize)
	n, err := c.conn.Read(scratch)
	if err != nil {
		status := classifyReadErr(n, err)
		if status != ReceiveTimeOut {
			c.disconnect()
		}
		return nil, status
	}
	return NewPacket(scratch[:n]), ReceiveSuccess
}

// Send writes one unframed datagram, serialized behind sendMu.
func (c *UDPClient) Send(body []byte, timeout time.Duration) (int, SendStatus) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.alive.Load() {
		return -1, SendNotConnected
	}
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
	} else {
		_ = c.conn.SetWriteDeadline(time.Time{})
	}
	defer c.conn.SetWriteDeadline(time.Time{})

	n, err := c.conn.Write(body)
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

// Disconnect closes the socket and fires OnDisconnect exactly once.
func (c *UDPClient) Disconnect() { c.disconnect() }

func (c *UDPClient) disconnect() {
	c.disconnectOnce.Do(func() {
		c.mu.Lock()
		c.state = clientDisconnecting
		conn := c.conn
		pool := c.pool
		c.mu.Unlock()

		c.alive.Store(false)
		if conn != nil {
			_ = conn.Close()
		}
		waitGroupWithTimeout(&c.wg, c.cfg.WaitTime)
		if pool != nil {
			pool.stop()
		}
		c.cfg.Callback.OnDisconnect(c)

		c.mu.Lock()
		c.state = clientDisconnected
		c.mu.Unlock()
	})
}
