package zio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zhihanii/zlog"
)

// A single run loop matches the cooperative model: every readiness event
// is dispatched from one goroutine.
const defaultNumLoops = 1

type pollerManager struct {
	mu       sync.Mutex
	numLoops int
	pollers  []Poller
	balancer loadBalancer
}

func newPollerManager(numLoops int) (*pollerManager, error) {
	m := &pollerManager{balancer: newRoundRobinLoadBalancer(nil)}
	if err := m.SetNumLoops(numLoops); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *pollerManager) SetNumLoops(numLoops int) error {
	if numLoops < 1 {
		return fmt.Errorf("set invalid numLoops[%d]", numLoops)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if numLoops < m.numLoops {
		var pollers = make([]Poller, numLoops)
		for i := 0; i < m.numLoops; i++ {
			if i < numLoops {
				pollers[i] = m.pollers[i]
			} else if err := m.pollers[i].Close(); err != nil {
				zlog.Errorf("poller close failed: %v", err)
			}
		}
		m.numLoops = numLoops
		m.pollers = pollers
		m.balancer.Rebalance(m.pollers)
		return nil
	}

	m.numLoops = numLoops
	return m.buildPollers()
}

func (m *pollerManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for _, p := range m.pollers {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.pollers = nil
	m.numLoops = 0
	m.balancer.Rebalance(nil)
	return firstErr
}

func (m *pollerManager) Pick() (Poller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.pollers) == 0 {
		return nil, fmt.Errorf("no poller running")
	}
	return m.balancer.Pick(), nil
}

func (m *pollerManager) buildPollers() error {
	for i := len(m.pollers); i < m.numLoops; i++ {
		p, err := openPoller()
		if err != nil {
			m.numLoops = len(m.pollers)
			m.balancer.Rebalance(m.pollers)
			return err
		}
		m.pollers = append(m.pollers, p)
		go func() {
			if err := p.Poll(); err != nil {
				zlog.Errorf("poller exited: %v", err)
			}
		}()
	}
	m.balancer.Rebalance(m.pollers)
	return nil
}

type loadBalancer interface {
	Pick() Poller
	Rebalance(pollers []Poller)
}

func newRoundRobinLoadBalancer(pollers []Poller) loadBalancer {
	return &roundRobinLoadBalancer{
		pollers: pollers,
		size:    len(pollers),
	}
}

type roundRobinLoadBalancer struct {
	pollers []Poller
	cur     int32
	size    int
}

func (b *roundRobinLoadBalancer) Pick() (poller Poller) {
	idx := int(uint32(atomic.AddInt32(&b.cur, 1))) % b.size
	return b.pollers[idx]
}

func (b *roundRobinLoadBalancer) Rebalance(pollers []Poller) {
	b.pollers, b.size = pollers, len(pollers)
}
