package tensor

import (
	"sync"
	"sync/atomic"
)

// BufferPool recycles float32 scratch buffers to reduce GC pressure in the
// per-step training hot paths. Buffers are bucketed by capacity rounded up to
// the next power of two. Returned buffers have undefined contents.
type BufferPool struct {
	pools map[int]*sync.Pool
	mutex sync.RWMutex

	hits   int64
	misses int64
	puts   int64
}

// PoolStats reports cumulative pool activity.
type PoolStats struct {
	Hits   int64
	Misses int64
	Puts   int64
}

func NewBufferPool() *BufferPool {
	return &BufferPool{
		pools: make(map[int]*sync.Pool),
	}
}

// Get returns a buffer of exactly size elements, reusing a pooled allocation
// when one is available.
func (bp *BufferPool) Get(size int) []float32 {
	if size <= 0 {
		return nil
	}
	bucket := roundUpToPowerOf2(size)

	bp.mutex.RLock()
	pool, exists := bp.pools[bucket]
	bp.mutex.RUnlock()

	if !exists {
		bp.mutex.Lock()
		pool, exists = bp.pools[bucket]
		if !exists {
			pool = &sync.Pool{}
			bp.pools[bucket] = pool
		}
		bp.mutex.Unlock()
	}

	if buf := pool.Get(); buf != nil {
		atomic.AddInt64(&bp.hits, 1)
		return buf.([]float32)[:size]
	}
	atomic.AddInt64(&bp.misses, 1)
	return make([]float32, size, bucket)
}

// Put returns a buffer to the pool. Buffers whose capacity is not a power of
// two did not come from the pool and are dropped.
func (bp *BufferPool) Put(buf []float32) {
	c := cap(buf)
	if c == 0 || c != roundUpToPowerOf2(c) {
		return
	}
	bucket := c

	bp.mutex.RLock()
	pool, exists := bp.pools[bucket]
	bp.mutex.RUnlock()
	if !exists {
		return
	}

	atomic.AddInt64(&bp.puts, 1)
	pool.Put(buf[:c])
}

// EmptyCache drops every pooled buffer so the allocations become collectible.
// The training loop calls this after refinement steps that grow the model,
// since buffers pooled at the old element count are useless at the new one.
func (bp *BufferPool) EmptyCache() {
	bp.mutex.Lock()
	bp.pools = make(map[int]*sync.Pool)
	bp.mutex.Unlock()
}

// Stats returns a snapshot of cumulative pool counters.
func (bp *BufferPool) Stats() PoolStats {
	return PoolStats{
		Hits:   atomic.LoadInt64(&bp.hits),
		Misses: atomic.LoadInt64(&bp.misses),
		Puts:   atomic.LoadInt64(&bp.puts),
	}
}

func roundUpToPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	return n
}

var (
	globalBufferPool     *BufferPool
	globalBufferPoolOnce sync.Once
)

// GetGlobalBufferPool returns the process-wide buffer pool.
func GetGlobalBufferPool() *BufferPool {
	globalBufferPoolOnce.Do(func() {
		globalBufferPool = NewBufferPool()
	})
	return globalBufferPool
}

// EmptyCache drains the global buffer pool.
func EmptyCache() {
	GetGlobalBufferPool().EmptyCache()
}
