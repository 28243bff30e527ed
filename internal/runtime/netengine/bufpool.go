package netengine

import (
	"sort"
	"sync"
	"sync/atomic"
)

// bytePool is a size-bucketed sync.Pool, adapted from
// internal/runtime/asyncio.BytePool for the receive scratch buffers used by
// the frame codec and the UDP datagram reader. Buffers larger than the
// biggest bucket are allocated directly and never pooled.
type bytePool struct {
	buckets []bucket
}

type bucket struct {
	size  int
	limit int64
	inuse int64
	pool  sync.Pool
}

// defaultBytePool returns a bytePool sized for typical framed-message and
// datagram bodies.
func defaultBytePool() *bytePool {
	sizes := []int{64, 256, 1024, 4096, 16384, 65536}
	return newBytePool(sizes, 512)
}

func newBytePool(sizes []int, maxPerBucket int) *bytePool {
	bs := append([]int(nil), sizes...)
	sort.Ints(bs)
	buckets := make([]bucket, len(bs))
	for i, sz := range bs {
		sz := sz
		buckets[i] = bucket{
			size:  sz,
			limit: int64(maxPerBucket),
			pool:  sync.Pool{New: func() any { return make([]byte, sz) }},
		}
	}
	return &bytePool{buckets: buckets}
}

func (bp *bytePool) Get(n int) []byte {
	if n <= 0 {
		n = 1
	}
	idx := bp.findBucket(n)
	if idx < 0 {
		return make([]byte, n)
	}
	b := &bp.buckets[idx]
	buf := b.pool.Get().([]byte)
	atomic.AddInt64(&b.inuse, 1)
	return buf
}

func (bp *bytePool) Put(buf []byte) {
	capn := cap(buf)
	if capn == 0 {
		return
	}
	idx := bp.findBucket(capn)
	if idx < 0 || bp.buckets[idx].size != capn {
		return
	}
	b := &bp.buckets[idx]
	if cur := atomic.AddInt64(&b.inuse, -1); cur >= b.limit {
		return
	}
	b.pool.Put(buf[:capn])
}

func (bp *bytePool) findBucket(n int) int {
	i := sort.Search(len(bp.buckets), func(i int) bool { return bp.buckets[i].size >= n })
	if i >= len(bp.buckets) {
		return -1
	}
	return i
}
