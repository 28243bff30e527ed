package netengine

import (
	"net"
	"sync"
	"testing"
	"time"
)

type recordingUDPServerCallback struct {
	NoopServerCallback
	mu       sync.Mutex
	byPeer   map[string][]string
	accepts  int
}

func newRecordingUDPServerCallback() *recordingUDPServerCallback {
	return &recordingUDPServerCallback{byPeer: make(map[string][]string)}
}

func (cb *recordingUDPServerCallback) OnAccept(remote net.Addr) bool {
	cb.mu.Lock()
	cb.accepts++
	cb.mu.Unlock()
	return true
}

func (cb *recordingUDPServerCallback) OnReceived(conn Conn, pkt *Packet, status ReceiveStatus) {
	if status != ReceiveSuccess {
		return
	}
	key := conn.RemoteAddr().String()
	cb.mu.Lock()
	cb.byPeer[key] = append(cb.byPeer[key], string(pkt.Bytes()))
	cb.mu.Unlock()
	conn.Send(pkt.Bytes(), time.Second)
}

func freeUDPPort(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("failed to find a free UDP port: %v", err)
	}
	_, port, _ := net.SplitHostPort(conn.LocalAddr().String())
	conn.Close()
	return port
}

func TestUDPServerDemuxesByPeerAddress(t *testing.T) {
	scb := newRecordingUDPServerCallback()
	scfg := NewServerConfig(scb)
	scfg.Port = freeUDPPort(t)
	srv, err := NewUDPServer(scfg, time.Second)
	if err != nil {
		t.Fatalf("NewUDPServer: %v", err)
	}
	if !srv.Start() {
		t.Fatalf("Start failed: %v", srv.LastError())
	}
	defer srv.Stop()

	ccb1 := NoopUDPClientCallback{}
	ccfg1 := NewUDPClientConfig(ccb1)
	ccfg1.Port = scfg.Port
	ccfg1.AsyncReceive = false
	cli1, err := NewUDPClient(ccfg1)
	if err != nil {
		t.Fatalf("NewUDPClient: %v", err)
	}
	if !cli1.Connect(time.Second) {
		t.Fatalf("client 1 Connect failed: %v", cli1.LastError())
	}
	defer cli1.Disconnect()

	cli2, err := NewUDPClient(ccfg1)
	if err != nil {
		t.Fatalf("NewUDPClient: %v", err)
	}
	if !cli2.Connect(time.Second) {
		t.Fatalf("client 2 Connect failed: %v", cli2.LastError())
	}
	defer cli2.Disconnect()

	if _, status := cli1.Send([]byte("from-one"), time.Second); status != SendSuccess {
		t.Fatalf("client1 Send status = %v", status)
	}
	if _, status := cli2.Send([]byte("from-two"), time.Second); status != SendSuccess {
		t.Fatalf("client2 Send status = %v", status)
	}

	pkt1, status := cli1.Receive(2 * time.Second)
	if status != ReceiveSuccess || string(pkt1.Bytes()) != "from-one" {
		t.Fatalf("client1 echo = (%v, %q), want (ReceiveSuccess, from-one)", status, pkt1.Bytes())
	}
	pkt2, status := cli2.Receive(2 * time.Second)
	if status != ReceiveSuccess || string(pkt2.Bytes()) != "from-two" {
		t.Fatalf("client2 echo = (%v, %q), want (ReceiveSuccess, from-two)", status, pkt2.Bytes())
	}

	deadline := time.After(time.Second)
	for srv.Sockets().Count() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected 2 distinct sessions, got %d", srv.Sockets().Count())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestUDPSessionIdleEviction(t *testing.T) {
	scb := newRecordingUDPServerCallback()
	scfg := NewServerConfig(scb)
	scfg.Port = freeUDPPort(t)
	srv, err := NewUDPServer(scfg, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewUDPServer: %v", err)
	}
	if !srv.Start() {
		t.Fatalf("Start failed: %v", srv.LastError())
	}
	defer srv.Stop()

	ccfg := NewUDPClientConfig(NoopUDPClientCallback{})
	ccfg.Port = scfg.Port
	cli, err := NewUDPClient(ccfg)
	if err != nil {
		t.Fatalf("NewUDPClient: %v", err)
	}
	if !cli.Connect(time.Second) {
		t.Fatalf("Connect failed: %v", cli.LastError())
	}
	defer cli.Disconnect()

	if _, status := cli.Send([]byte("hi"), time.Second); status != SendSuccess {
		t.Fatalf("Send status = %v", status)
	}

	deadline := time.After(time.Second)
	for srv.Sockets().Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("session never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// No further traffic: the idle timeout must evict the session on its own.
	deadline = time.After(2 * time.Second)
	for srv.Sockets().Count() != 0 {
		select {
		case <-deadline:
			t.Fatalf("session was not evicted by idle timeout, count = %d", srv.Sockets().Count())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestUDPServerRejectsUnknownPeerOverMaxConnectionCount(t *testing.T) {
	scb := newRecordingUDPServerCallback()
	scfg := NewServerConfig(scb)
	scfg.Port = freeUDPPort(t)
	scfg.MaxConnectionCount = 1
	srv, err := NewUDPServer(scfg, time.Second)
	if err != nil {
		t.Fatalf("NewUDPServer: %v", err)
	}
	if !srv.Start() {
		t.Fatalf("Start failed: %v", srv.LastError())
	}
	defer srv.Stop()

	ccfg := NewUDPClientConfig(NoopUDPClientCallback{})
	ccfg.Port = scfg.Port
	cli1, err := NewUDPClient(ccfg)
	if err != nil {
		t.Fatalf("NewUDPClient: %v", err)
	}
	if !cli1.Connect(time.Second) {
		t.Fatalf("client 1 Connect failed: %v", cli1.LastError())
	}
	defer cli1.Disconnect()

	if _, status := cli1.Send([]byte("first"), time.Second); status != SendSuccess {
		t.Fatalf("client1 Send status = %v", status)
	}

	deadline := time.After(time.Second)
	for srv.Sockets().Count() < 1 {
		select {
		case <-deadline:
			t.Fatal("first peer never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cli2, err := NewUDPClient(ccfg)
	if err != nil {
		t.Fatalf("NewUDPClient: %v", err)
	}
	if !cli2.Connect(time.Second) {
		t.Fatalf("client 2 Connect failed: %v", cli2.LastError())
	}
	defer cli2.Disconnect()

	if _, status := cli2.Send([]byte("second"), time.Second); status != SendSuccess {
		t.Fatalf("client2 Send status = %v", status)
	}

	// The server is already at MaxConnectionCount; an unknown peer's
	// datagram must be dropped silently: no OnAccept, no session, and
	// no echo back.
	if _, status := cli2.Receive(200 * time.Millisecond); status != ReceiveTimeOut {
		t.Fatalf("client2 Receive status = %v, want ReceiveTimeOut (no reply)", status)
	}

	scb.mu.Lock()
	accepts := scb.accepts
	scb.mu.Unlock()
	if accepts != 1 {
		t.Fatalf("OnAccept calls = %d, want 1 (second peer must not be admitted)", accepts)
	}
	if srv.Sockets().Count() != 1 {
		t.Fatalf("session count = %d, want 1 (second peer must not get a session)", srv.Sockets().Count())
	}
}

func TestUDPServerMaxPacketByteSizeIsPositive(t *testing.T) {
	scfg := NewServerConfig(NoopServerCallback{})
	scfg.Port = freeUDPPort(t)
	srv, err := NewUDPServer(scfg, 0)
	if err != nil {
		t.Fatalf("NewUDPServer: %v", err)
	}
	if !srv.Start() {
		t.Fatalf("Start failed: %v", srv.LastError())
	}
	defer srv.Stop()

	if srv.GetMaxPacketByteSize() <= 0 {
		t.Fatalf("GetMaxPacketByteSize() = %d, want > 0", srv.GetMaxPacketByteSize())
	}
}
