package netengine

import (
	"net"
	"time"
)

// Conn is the common surface of a live connection handed to server
// callbacks: a TCP per-connection socket or a UDP virtual session.
type Conn interface {
	RemoteAddr() net.Addr
	Send(body []byte, timeout time.Duration) (int, SendStatus)
	IsAlive() bool
	Close()
}

// ServerCallback is the four-method capability trait a server invokes.
// OnAccept gates admission; OnReceived and OnDisconnect are required for
// any useful server. OnSent only fires for the IOCP server variant, where
// sends are themselves dispatched through the worker pool. Embed
// NoopServerCallback to get default no-ops for the methods you don't care
// about, in place of the original's five separately-overridable virtual
// methods.
type ServerCallback interface {
	OnAccept(remote net.Addr) bool
	OnReceived(conn Conn, pkt *Packet, status ReceiveStatus)
	OnSent(conn Conn, status SendStatus)
	OnDisconnect(conn Conn)
}

// NoopServerCallback implements ServerCallback with no-ops and OnAccept
// always admitting. Embed it and override only the methods you need.
type NoopServerCallback struct{}

func (NoopServerCallback) OnAccept(net.Addr) bool                  { return true }
func (NoopServerCallback) OnReceived(Conn, *Packet, ReceiveStatus) {}
func (NoopServerCallback) OnSent(Conn, SendStatus)                 {}
func (NoopServerCallback) OnDisconnect(Conn)                       {}

// ClientCallback is the three-method capability trait a TCP client invokes.
type ClientCallback interface {
	OnReceived(c *TCPClient, pkt *Packet, status ReceiveStatus)
	OnSent(c *TCPClient, status SendStatus)
	OnDisconnect(c *TCPClient)
}

// NoopClientCallback implements ClientCallback with no-ops.
type NoopClientCallback struct{}

func (NoopClientCallback) OnReceived(*TCPClient, *Packet, ReceiveStatus) {}
func (NoopClientCallback) OnSent(*TCPClient, SendStatus)                 {}
func (NoopClientCallback) OnDisconnect(*TCPClient)                       {}

// UDPClientCallback is the three-method capability trait a UDP client
// invokes. Kept distinct from ClientCallback since a UDPClient's Conn-like
// surface is its own concrete type, not TCPClient.
type UDPClientCallback interface {
	OnReceived(c *UDPClient, pkt *Packet, status ReceiveStatus)
	OnSent(c *UDPClient, status SendStatus)
	OnDisconnect(c *UDPClient)
}

// NoopUDPClientCallback implements UDPClientCallback with no-ops.
type NoopUDPClientCallback struct{}

func (NoopUDPClientCallback) OnReceived(*UDPClient, *Packet, ReceiveStatus) {}
func (NoopUDPClientCallback) OnSent(*UDPClient, SendStatus)                 {}
func (NoopUDPClientCallback) OnDisconnect(*UDPClient)                       {}
