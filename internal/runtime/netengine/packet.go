package netengine

import "sync/atomic"

// Packet is an owned, immutable-after-construction byte buffer. It is the
// unit of data handed to OnReceived and accepted by Send. Packets are
// reference counted: the receive pipeline (socket -> parser queue -> worker
// -> callback) each hold a reference for their segment of the handoff, and
// the underlying array is only released back to the pool once the last
// holder calls Release.
//
// Zero-length packets are legal and are not special-cased by the codec or
// the dispatch path.
type Packet struct {
	data []byte
	refs int32
	pool *bytePool
}

// NewPacket copies src into a new owned Packet.
func NewPacket(src []byte) *Packet {
	buf := make([]byte, len(src))
	copy(buf, src)
	return &Packet{data: buf, refs: 1}
}

// NewPacketSize returns an owned, uninitialized Packet of exactly n bytes,
// suitable as receive scratch for a framed body read. n == 0 is legal.
func NewPacketSize(n int) *Packet {
	return &Packet{data: make([]byte, n), refs: 1}
}

// newPooledPacket returns a Packet backed by a pooled buffer of at least n
// bytes, trimmed to exactly n. Used by the receive loops to reduce
// allocation churn under sustained traffic.
func newPooledPacket(p *bytePool, n int) *Packet {
	buf := p.Get(n)
	if cap(buf) < n {
		buf = make([]byte, n)
	} else {
		buf = buf[:n]
	}
	return &Packet{data: buf, refs: 1, pool: p}
}

// Bytes returns the packet's body. The slice must not be mutated or
// retained past a call to Release.
func (p *Packet) Bytes() []byte { return p.data }

// Size returns the number of body bytes.
func (p *Packet) Size() int { return len(p.data) }

// Retain increments the reference count. Call once per additional holder
// (e.g. a worker handing the packet to a second consumer).
func (p *Packet) Retain() *Packet {
	atomic.AddInt32(&p.refs, 1)
	return p
}

// Release decrements the reference count, returning the backing buffer to
// its pool once the last holder releases. Safe to call exactly once per
// Retain/NewPacket.
func (p *Packet) Release() {
	if atomic.AddInt32(&p.refs, -1) == 0 && p.pool != nil {
		p.pool.Put(p.data)
		p.data = nil
	}
}
