package zio

import (
	"encoding/binary"
	"runtime"
	"syscall"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/zhihanii/zlog"
	"golang.org/x/sys/unix"
)

// Poller is a readiness run loop. Registrations are one-shot: a descriptor
// fires at most once per Control call and is detached before its operator
// is told about the event.
type Poller interface {
	Poll() error

	Close() error

	Control(operator *FDOperator, event EpollEvent) error
}

type EpollEvent int8

const (
	EpollRead      EpollEvent = 0x1
	EpollWrite     EpollEvent = 0x2
	EpollReadWrite EpollEvent = 0x3
	EpollDetach    EpollEvent = 0x4
	// epollWake arms the poller's own eventfd, level triggered.
	epollWake EpollEvent = 0x5
)

const (
	readyRead  = syscall.EPOLLIN | syscall.EPOLLHUP | syscall.EPOLLRDHUP
	readyWrite = syscall.EPOLLOUT
	readyErr   = syscall.EPOLLERR
)

func openPoller() (Poller, error) {
	return openDefaultPoller()
}

type defaultPoller struct {
	size   int
	events []epollevent
	hups   []func(Poller) error
	fd     int
	wop    *FDOperator
	buf    []byte
}

func openDefaultPoller() (*defaultPoller, error) {
	var p = new(defaultPoller)
	var err error
	p.buf = make([]byte, 8)
	p.fd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, syscallErr("epoll_create1", err)
	}
	wfd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(p.fd)
		return nil, syscallErr("eventfd", err)
	}
	p.wop = &FDOperator{FD: wfd}
	if err = p.Control(p.wop, epollWake); err != nil {
		unix.Close(wfd)
		unix.Close(p.fd)
		return nil, syscallErr("epoll_ctl", err)
	}
	return p, nil
}

func (p *defaultPoller) reset(size int) {
	p.size = size
	p.events = make([]epollevent, size)
}

func (p *defaultPoller) Poll() (err error) {
	var msec, n = -1, 0
	p.reset(128)
	for {
		if n == p.size && p.size < 128*1024 {
			p.reset(p.size << 1)
		}
		n, err = EpollWait(p.fd, p.events, msec)
		if err != nil && err != syscall.EINTR {
			return err
		}
		if n <= 0 {
			msec = -1
			runtime.Gosched()
			continue
		}
		msec = 0
		if p.handle(p.events[:n]) {
			return nil
		}
	}
}

func (p *defaultPoller) handle(events []epollevent) (closed bool) {
	for i := range events {
		ref := binary.LittleEndian.Uint64(events[i].data[:])
		if ref == opRef(p.wop) {
			unix.Read(p.wop.FD, p.buf)
			if p.buf[0] > 0 {
				unix.Close(p.wop.FD)
				unix.Close(p.fd)
				zlog.Infof("poller(epfd=%d) closed", p.fd)
				return true
			}
			continue
		}
		operator, gen := opcache.lookup(ref)
		if operator == nil || !operator.tryOnEvent() {
			continue
		}
		if operator.generation() != gen {
			// left over from a registration that was retired earlier in
			// this batch; the operator now belongs to someone else
			operator.done()
			continue
		}

		// one-shot: retire the registration before the waiter can re-arm it
		if err := p.Control(operator, EpollDetach); err != nil && err != syscall.ENOENT {
			zlog.Errorf("detach(fd=%d) failed: %s", operator.FD, err.Error())
		}

		evt := events[i].events
		if evt&readyErr != 0 && evt&(readyRead|readyWrite) == 0 {
			p.appendHup(operator)
			continue
		}
		if operator.OnEvent != nil {
			operator.OnEvent(evt)
		}
		operator.done()
	}
	p.detaches()
	return false
}

func (p *defaultPoller) Close() error {
	_, err := unix.Write(p.wop.FD, []byte{1, 0, 0, 0, 0, 0, 0, 0})
	return err
}

func (p *defaultPoller) Control(operator *FDOperator, event EpollEvent) error {
	var op int
	var evt epollevent
	binary.LittleEndian.PutUint64(evt.data[:], opRef(operator))
	switch event {
	case epollWake:
		op, evt.events = syscall.EPOLL_CTL_ADD, syscall.EPOLLIN
	case EpollRead:
		operator.inuse()
		op, evt.events = syscall.EPOLL_CTL_ADD, syscall.EPOLLIN|syscall.EPOLLRDHUP|syscall.EPOLLERR|syscall.EPOLLONESHOT
	case EpollWrite:
		operator.inuse()
		op, evt.events = syscall.EPOLL_CTL_ADD, syscall.EPOLLOUT|syscall.EPOLLERR|syscall.EPOLLONESHOT
	case EpollReadWrite:
		operator.inuse()
		op, evt.events = syscall.EPOLL_CTL_ADD, syscall.EPOLLIN|syscall.EPOLLOUT|syscall.EPOLLRDHUP|syscall.EPOLLERR|syscall.EPOLLONESHOT
	case EpollDetach:
		op, evt.events = syscall.EPOLL_CTL_DEL, syscall.EPOLLIN|syscall.EPOLLOUT|syscall.EPOLLRDHUP|syscall.EPOLLERR
	}
	return EpollCtl(p.fd, op, operator.FD, &evt)
}

func (p *defaultPoller) appendHup(operator *FDOperator) {
	p.hups = append(p.hups, operator.OnHup)
	operator.done()
}

func (p *defaultPoller) detaches() {
	if len(p.hups) == 0 {
		return
	}
	hups := p.hups
	p.hups = nil
	gopool.Go(func() {
		for i := range hups {
			if hups[i] != nil {
				hups[i](p)
			}
		}
	})
}
