package zio

import (
	"runtime"
	"sync/atomic"
	"unsafe"
)

const opSize = unsafe.Sizeof(FDOperator{})

func allocOp() *FDOperator {
	return opcache.alloc()
}

func freeOp(op *FDOperator) {
	opcache.free(op)
}

func init() {
	opcache = &operatorCache{
		cache: make([]*FDOperator, 0, 1024),
	}
	runtime.KeepAlive(opcache)
}

var opcache *operatorCache

// operatorCache owns every operator it ever handed out. Epoll registrations
// name operators by cache slot, so slots are never reused for another
// operator.
type operatorCache struct {
	locked int32
	first  *FDOperator
	cache  []*FDOperator
}

func (c *operatorCache) alloc() *FDOperator {
	c.lock()
	if c.first == nil {
		n := block4k / opSize
		if n == 0 {
			n = 1
		}
		for i := uintptr(0); i < n; i++ {
			op := &FDOperator{FD: -1, index: uint32(len(c.cache) + 1)}
			c.cache = append(c.cache, op)
			op.next = c.first
			c.first = op
		}
	}
	op := c.first
	c.first = op.next
	op.next = nil
	c.unlock()
	return op
}

func (c *operatorCache) free(op *FDOperator) {
	op.unused()
	op.reset()
	atomic.AddUint32(&op.gen, 1)

	c.lock()
	op.next = c.first
	c.first = op
	c.unlock()
}

// lookup resolves a reference made by opRef. The generation it returns
// must match the operator's current one, or the reference is stale.
func (c *operatorCache) lookup(ref uint64) (*FDOperator, uint32) {
	idx := uint32(ref)
	c.lock()
	defer c.unlock()
	if idx == 0 || int(idx) > len(c.cache) {
		return nil, 0
	}
	return c.cache[idx-1], uint32(ref >> 32)
}

// opRef packs the operator's cache slot and generation into the value
// stored in epoll_data. Operators outside the cache yield 0.
func opRef(op *FDOperator) uint64 {
	return uint64(op.generation())<<32 | uint64(op.index)
}

func (c *operatorCache) lock() {
	for !atomic.CompareAndSwapInt32(&c.locked, 0, 1) {
		runtime.Gosched()
	}
}

func (c *operatorCache) unlock() {
	atomic.StoreInt32(&c.locked, 0)
}
