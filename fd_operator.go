package zio

import (
	"runtime"
	"sync/atomic"
)

// FDOperator is the poller's handle for one armed descriptor registration.
type FDOperator struct {
	FD int

	// OnEvent receives the ready mask. It runs on the poller goroutine and
	// must not block.
	OnEvent func(events uint32)
	// OnHup is called off the poll loop when the descriptor reports an
	// error condition without readiness.
	OnHup func(Poller) error

	poller Poller

	next  *FDOperator
	state int32 // CAS: 0(unused) 1(inuse) 2(onEvent)

	// index is the 1-based cache slot; 0 marks operators outside the cache.
	index uint32
	// gen changes every time the operator returns to the cache.
	gen uint32
}

func (o *FDOperator) generation() uint32 {
	return atomic.LoadUint32(&o.gen)
}

func (o *FDOperator) Control(event EpollEvent) error {
	return o.poller.Control(o, event)
}

func (o *FDOperator) isUnused() bool {
	return atomic.LoadInt32(&o.state) == 0
}

func (o *FDOperator) unused() {
	for !atomic.CompareAndSwapInt32(&o.state, 1, 0) {
		if atomic.LoadInt32(&o.state) == 0 {
			return
		}
		runtime.Gosched()
	}
}

func (o *FDOperator) inuse() {
	for !atomic.CompareAndSwapInt32(&o.state, 0, 1) {
		if atomic.LoadInt32(&o.state) == 1 {
			return
		}
		runtime.Gosched()
	}
}

// tryOnEvent moves an armed operator into event handling.
func (o *FDOperator) tryOnEvent() (ok bool) {
	return atomic.CompareAndSwapInt32(&o.state, 1, 2)
}

// done ends event handling and returns the operator to inuse.
func (o *FDOperator) done() {
	atomic.StoreInt32(&o.state, 1)
}

func (o *FDOperator) reset() {
	o.FD = -1
	o.OnEvent, o.OnHup = nil, nil
	o.poller = nil
}
