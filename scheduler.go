package zio

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/zhihanii/zlog"
)

// Interest selects which readiness a watch waits for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite
)

// Notification is what a watch delivers on its Channel.
type Notification struct {
	FD      int
	Events  uint32
	Tag     any
	Err     error
	Timeout bool
}

func (n Notification) Readable() bool { return n.Err == nil && n.Events&readyRead != 0 }
func (n Notification) Writable() bool { return n.Err == nil && n.Events&readyWrite != 0 }

// Channel is the rendezvous between the poll loop and a suspended task.
// Its capacity must cover every watch armed against it, so the poll loop
// never blocks on delivery.
type Channel chan Notification

func NewChannel(size int) Channel {
	if size < 1 {
		size = 1
	}
	return make(Channel, size)
}

// Receive suspends the calling task until a notification arrives.
func (c Channel) Receive(ctx context.Context) (Notification, error) {
	select {
	case n := <-c:
		return n, nil
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	}
}

// Pending reports how many notifications are already queued.
func (c Channel) Pending() int {
	return len(c)
}

func (c Channel) send(n Notification) {
	select {
	case c <- n:
	default:
		zlog.Errorf("notification for fd=%d dropped: channel full", n.FD)
	}
}

// Watch is a pending readiness or timer registration. Retire invalidates
// it; a retired watch never delivers.
type Watch struct {
	once  sync.Once
	op    *FDOperator
	timer *time.Timer
	mu    sync.Mutex
	dead  bool
}

func (w *Watch) alive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.dead
}

func (w *Watch) Retire() {
	w.once.Do(func() {
		w.mu.Lock()
		w.dead = true
		w.mu.Unlock()
		if w.timer != nil {
			w.timer.Stop()
		}
		if w.op != nil {
			op := w.op
			op.unused()
			if err := op.Control(EpollDetach); err != nil && err != syscall.ENOENT {
				zlog.Errorf("retire watch(fd=%d) failed: %v", op.FD, err)
			}
			freeOp(op)
		}
	})
}

// Scheduler hands out readiness and timer watches backed by a set of poll
// loops.
type Scheduler struct {
	manager *pollerManager
}

func NewScheduler(numLoops int) (*Scheduler, error) {
	m, err := newPollerManager(numLoops)
	if err != nil {
		return nil, err
	}
	return &Scheduler{manager: m}, nil
}

func (s *Scheduler) Close() error {
	return s.manager.Close()
}

// Watch arms a one-shot readiness registration for fd. Descriptors that
// epoll cannot watch (regular files) are always ready and are notified
// immediately.
func (s *Scheduler) Watch(ch Channel, fd int, interest Interest, tag any) (*Watch, error) {
	var event EpollEvent
	switch interest {
	case InterestRead:
		event = EpollRead
	case InterestWrite:
		event = EpollWrite
	case InterestRead | InterestWrite:
		event = EpollReadWrite
	default:
		return nil, fmt.Errorf("invalid interest %d", interest)
	}
	p, err := s.manager.Pick()
	if err != nil {
		return nil, err
	}

	w := new(Watch)
	op := allocOp()
	op.FD = fd
	op.poller = p
	op.OnEvent = func(events uint32) {
		if w.alive() {
			ch.send(Notification{FD: fd, Events: events, Tag: tag})
		}
	}
	op.OnHup = func(Poller) error {
		if w.alive() {
			ch.send(Notification{FD: fd, Tag: tag, Err: fmt.Errorf("fd %d: %w", fd, ErrPollFailed)})
		}
		return nil
	}
	w.op = op

	err = op.Control(event)
	if err == syscall.EPERM {
		w.op = nil
		freeOp(op)
		var events uint32
		if interest&InterestRead != 0 {
			events |= syscall.EPOLLIN
		}
		if interest&InterestWrite != 0 {
			events |= syscall.EPOLLOUT
		}
		ch.send(Notification{FD: fd, Events: events, Tag: tag})
		return w, nil
	}
	if err != nil {
		w.op = nil
		freeOp(op)
		return nil, syscallErr("epoll_ctl", err)
	}
	return w, nil
}

func (s *Scheduler) SendOnReadable(ch Channel, fd int, tag any) (*Watch, error) {
	return s.Watch(ch, fd, InterestRead, tag)
}

func (s *Scheduler) SendOnWritable(ch Channel, fd int, tag any) (*Watch, error) {
	return s.Watch(ch, fd, InterestWrite, tag)
}

// SendAfter delivers a timeout notification on ch once d has elapsed.
func (s *Scheduler) SendAfter(ch Channel, d time.Duration, tag any) *Watch {
	w := new(Watch)
	w.timer = time.AfterFunc(d, func() {
		if w.alive() {
			ch.send(Notification{FD: -1, Tag: tag, Timeout: true})
		}
	})
	return w
}

// await suspends the calling task until fd is ready for interest. An
// error notification is converted into an I/O error here.
func (s *Scheduler) await(ch Channel, fd int, interest Interest) error {
	w, err := s.Watch(ch, fd, interest, nil)
	if err != nil {
		return err
	}
	n := <-ch
	w.Retire()
	if n.Err != nil {
		return fmt.Errorf("wait for fd %d: %w", fd, n.Err)
	}
	return nil
}

func (s *Scheduler) AwaitReadable(ch Channel, fd int) error {
	return s.await(ch, fd, InterestRead)
}

func (s *Scheduler) AwaitWritable(ch Channel, fd int) error {
	return s.await(ch, fd, InterestWrite)
}

// AwaitTimeout suspends the calling task for d.
func (s *Scheduler) AwaitTimeout(ch Channel, d time.Duration) {
	w := s.SendAfter(ch, d, nil)
	<-ch
	w.Retire()
}
