package zio

import (
	"sync"

	"github.com/zhihanii/zlog"
)

var (
	defaultSchedulerOnce sync.Once
	defaultScheduler     *Scheduler
)

// DefaultScheduler returns the package scheduler, starting its poll loop on
// first use.
func DefaultScheduler() *Scheduler {
	defaultSchedulerOnce.Do(func() {
		m, err := newPollerManager(defaultNumLoops)
		if err != nil {
			zlog.Errorf("start default poller failed: %v", err)
			m = &pollerManager{balancer: newRoundRobinLoadBalancer(nil)}
		}
		defaultScheduler = &Scheduler{manager: m}
	})
	return defaultScheduler
}

// Init sets the number of poll loops behind the package scheduler.
func Init(numLoops int) error {
	return DefaultScheduler().manager.SetNumLoops(numLoops)
}
