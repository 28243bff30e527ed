package netengine

import "testing"

func TestBytePoolGetReturnsExactBucketCapacity(t *testing.T) {
	bp := newBytePool([]int{64, 256, 1024}, 8)
	buf := bp.Get(100)
	if cap(buf) != 256 {
		t.Fatalf("cap(buf) = %d, want 256 (next bucket up from 100)", cap(buf))
	}
}

func TestBytePoolGetBeyondLargestBucketAllocatesDirect(t *testing.T) {
	bp := newBytePool([]int{64, 256}, 8)
	buf := bp.Get(1000)
	if cap(buf) != 1000 {
		t.Fatalf("cap(buf) = %d, want 1000 (direct allocation)", cap(buf))
	}
}

func TestBytePoolPutThenGetReusesBuffer(t *testing.T) {
	bp := newBytePool([]int{64}, 8)
	buf := bp.Get(64)
	buf[0] = 0x42
	bp.Put(buf)

	reused := bp.Get(64)
	if &reused[0] != &buf[0] {
		t.Skip("pool did not reuse the exact backing array; sync.Pool reuse is not guaranteed under GC pressure")
	}
}

func TestBytePoolPutMismatchedCapacityIsDropped(t *testing.T) {
	bp := newBytePool([]int{64, 256}, 8)
	odd := make([]byte, 100) // cap doesn't match any bucket size exactly
	bp.Put(odd)              // must not panic
}
