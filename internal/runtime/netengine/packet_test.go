package netengine

import "testing"

func TestPacketBytesAndSize(t *testing.T) {
	p := NewPacket([]byte("hello"))
	if p.Size() != 5 {
		t.Fatalf("Size() = %d, want 5", p.Size())
	}
	if string(p.Bytes()) != "hello" {
		t.Fatalf("Bytes() = %q, want %q", p.Bytes(), "hello")
	}
}

func TestPacketNewPacketCopiesSource(t *testing.T) {
	src := []byte("abc")
	p := NewPacket(src)
	src[0] = 'z'
	if p.Bytes()[0] != 'a' {
		t.Fatalf("NewPacket did not copy its source, mutation leaked through")
	}
}

func TestPacketRetainReleaseReturnsToPool(t *testing.T) {
	pool := defaultBytePool()
	p := newPooledPacket(pool, 64)
	copy(p.data, []byte("payload"))

	p.Retain()
	p.Release() // refs still 1, buffer must not be pooled yet
	p.Release() // refs now 0, buffer returns to pool

	p2 := newPooledPacket(pool, 64)
	if cap(p2.data) < 64 {
		t.Fatalf("expected a pooled buffer of sufficient capacity, got cap=%d", cap(p2.data))
	}
}

func TestPacketNewPacketSizeZero(t *testing.T) {
	p := NewPacketSize(0)
	if p.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", p.Size())
	}
}
