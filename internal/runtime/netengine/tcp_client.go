package netengine

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

type clientState int32

const (
	clientDisconnected clientState = iota
	clientConnecting
	clientConnected
	clientDisconnecting
)

// TCPClient is a length-prefixed-frame TCP client with optional async
// receive, mirroring the server-side TCPSocket's send/receive contracts
// but delivering to a ClientCallback and carrying the Disconnected ->
// Connecting -> Connected -> Disconnecting -> Disconnected state machine
// from §4.8.
//
// Must not be copied once Connect has been called.
type TCPClient struct {
	noCopy noCopy

	mu    LockPolicy
	state clientState

	cfg     *ClientConfig
	conn    net.Conn
	bufPool *bytePool

	sendMu LockPolicy
	alive  atomic.Bool

	pool           *parserPool
	wg             sync.WaitGroup
	disconnectOnce sync.Once
	lastErr        error
}

// NewTCPClient validates cfg and returns a ready-to-Connect client.
func NewTCPClient(cfg *ClientConfig) (*TCPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TCPClient{
		mu:      NewLockPolicy(cfg.LockKind),
		cfg:     cfg,
		bufPool: defaultBytePool(),
		sendMu:  NewLockPolicy(cfg.LockKind),
	}, nil
}

// LastError returns the cause of the most recent Connect failure, if any.
func (c *TCPClient) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// IsConnectionAlive reflects the alive flag; safe to call concurrently
// with Disconnect.
func (c *TCPClient) IsConnectionAlive() bool { return c.alive.Load() }

// Connect resolves the configured host:port and connects synchronously.
// On success it starts the receive loop when AsyncReceive is set. On any
// failure, partially acquired resources are released and Connect returns
// false.
func (c *TCPClient) Connect(timeout time.Duration) bool {
	c.mu.Lock()
	if c.state == clientConnected || c.state == clientConnecting {
		c.mu.Unlock()
		return c.state == clientConnected
	}
	c.state = clientConnecting
	c.mu.Unlock()

	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("tcp", net.JoinHostPort(c.cfg.Hostname, c.cfg.Port))
	if err != nil {
		c.mu.Lock()
		c.state = clientDisconnected
		c.lastErr = err
		c.mu.Unlock()
		return false
	}

	if c.cfg.RequireProtocol != "" {
		if !c.negotiateClientSide(conn) {
			_ = conn.Close()
			c.mu.Lock()
			c.state = clientDisconnected
			c.lastErr = errors.New("netengine: protocol version mismatch")
			c.mu.Unlock()
			return false
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.state = clientConnected
	c.mu.Unlock()
	c.alive.Store(true)
	c.disconnectOnce = sync.Once{}

	if c.cfg.AsyncReceive {
		c.pool = newParserPool(c.cfg.MaxProcessorCount, func(pkt *Packet) {
			c.cfg.Callback.OnReceived(c, pkt, ReceiveSuccess)
			pkt.Release()
		})
		c.wg.Add(1)
		go c.receiveLoop()
	}
	return true
}

func (c *TCPClient) negotiateClientSide(conn net.Conn) bool {
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetDeadline(time.Time{})
	peer, err := recvProtocolVersion(conn)
	if err != nil {
		return false
	}
	if err := sendProtocolVersion(conn, c.cfg.RequireProtocol); err != nil {
		return false
	}
	ok, err := checkProtocolCompatible(c.cfg.RequireProtocol, peer)
	return err == nil && ok
}

func (c *TCPClient) receiveLoop() {
	for c.alive.Load() {
		pkt, err := readFrame(c.conn, c.bufPool, 0)
		if err != nil {
			// Leave the wait group first: disconnect waits on it.
			c.wg.Done()
			c.disconnect()
			return
		}
		if c.pool != nil {
			c.pool.enqueue(pkt)
		} else {
			pkt.Release()
		}
	}
	c.wg.Done()
}

// Receive is the caller-driven pull for a synchronous client.
func (c *TCPClient) Receive(timeout time.Duration) (*Packet, ReceiveStatus) {
	if !c.alive.Load() {
		return nil, ReceiveNotConnected
	}
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}
	defer c.conn.SetReadDeadline(time.Time{})

	var hdr [frameHeaderSize]byte
	n, err := readFullN(c.conn, hdr[:])
	if err != nil {
		status := classifyReadErr(n, err)
		if status != ReceiveTimeOut {
			c.disconnect()
		}
		return nil, status
	}
	length := decodeFrameHeader(hdr[:])
	pkt := NewPacketSize(int(length))
	if length > 0 {
		n, err := readFullN(c.conn, pkt.data)
		if err != nil {
			status := classifyReadErr(n, err)
			if status != ReceiveTimeOut {
				c.disconnect()
			}
			return nil, status
		}
	}
	return pkt, ReceiveSuccess
}

// Send writes one frame, serialized behind sendMu.
func (c *TCPClient) Send(body []byte, timeout time.Duration) (int, SendStatus) {
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

	n, err := writeFrame(c.conn, body)
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

// Disconnect sets alive=false, shuts down the connection for sending,
// waits for the receive loop to exit (bounded by cfg.WaitTime), closes the
// handle, and fires OnDisconnect exactly once.
func (c *TCPClient) Disconnect() { c.disconnect() }

func (c *TCPClient) disconnect() {
	c.disconnectOnce.Do(func() {
		c.mu.Lock()
		c.state = clientDisconnecting
		conn := c.conn
		pool := c.pool
		c.mu.Unlock()

		c.alive.Store(false)
		if conn != nil {
			if tc, ok := conn.(*net.TCPConn); ok {
				_ = tc.CloseWrite()
			}
		}
		waitGroupWithTimeout(&c.wg, c.cfg.WaitTime)
		if pool != nil {
			pool.stop()
		}
		if conn != nil {
			_ = conn.Close()
		}
		c.cfg.Callback.OnDisconnect(c)

		c.mu.Lock()
		c.state = clientDisconnected
		c.mu.Unlock()
	})
}

func waitGroupWithTimeout(wg *sync.WaitGroup, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
