package netengine

import (
	"sync"
	"testing"
	"time"
)

func TestParserPoolDeliversInOrderWhenCapOne(t *testing.T) {
	var mu sync.Mutex
	var got []int
	pool := newParserPool(1, func(pkt *Packet) {
		mu.Lock()
		got = append(got, int(pkt.Bytes()[0]))
		mu.Unlock()
	})
	defer pool.stop()

	const n = 50
	for i := 0; i < n; i++ {
		pool.enqueue(NewPacket([]byte{byte(i)}))
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := len(got) == n
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for delivery, got %d/%d", len(got), n)
		case <-time.After(time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("out-of-order delivery at index %d: got %d, want %d", i, v, i)
		}
	}
}

func TestParserPoolDeliversInOrderWhenCapGreaterThanOne(t *testing.T) {
	var mu sync.Mutex
	var got []int
	pool := newParserPool(4, func(pkt *Packet) {
		mu.Lock()
		got = append(got, int(pkt.Bytes()[0]))
		mu.Unlock()
	})
	defer pool.stop()

	const n = 100
	for i := 0; i < n; i++ {
		pool.enqueue(NewPacket([]byte{byte(i)}))
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := len(got) == n
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for delivery, got %d/%d", len(got), n)
		case <-time.After(time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		if v != i {
			t.Fatalf("out-of-order delivery at index %d: got %d, want %d", i, v, i)
		}
	}
}

func TestParserPoolStopDrainsBacklog(t *testing.T) {
	delivered := make(chan struct{})
	block := make(chan struct{})
	pool := newParserPool(1, func(pkt *Packet) {
		<-block
		if string(pkt.Bytes()) == "first" {
			close(delivered)
		}
		pkt.Release()
	})

	pool.enqueue(NewPacket([]byte("first")))  // worker blocks on this one
	pool.enqueue(NewPacket([]byte("second"))) // queued behind it; may still be queued at stop time

	close(block)
	<-delivered
	pool.stop() // must not hang and must release the still-queued packet
}

func TestParserPoolEnqueueAfterStopReleasesPacket(t *testing.T) {
	pool := newParserPool(1, func(pkt *Packet) { pkt.Release() })
	pool.stop()
	pool.enqueue(NewPacket([]byte("dropped"))) // must not panic or leak
}
