package zio

import (
	"context"
	"time"

	"golang.org/x/sys/unix"
)

// SelectResult partitions the ready streams by the interest set they were
// passed in.
type SelectResult struct {
	Readable []*Stream
	Writable []*Stream
	Errored  []*Stream
}

type selectEntry struct {
	fd       int
	interest Interest
	reader   *Stream
	writer   *Stream
	seen     bool
}

// Select waits until at least one stream in reads is readable or one in
// writes is writable. Every notification already queued when the first one
// arrives is collected too, and the remaining descriptors are checked once
// more without waiting, so descriptors that became ready together are
// reported together.
//
// A zero timeout waits without limit; a negative one is rejected. When the
// timeout elapses with nothing ready Select returns nil and no error.
// Streams with unread buffered bytes count as readable straight away.
// The error interest set is not supported and must be empty.
func Select(ctx context.Context, reads, writes, errs []*Stream, timeout time.Duration) (*SelectResult, error) {
	if len(errs) > 0 {
		return nil, ErrUnsupported
	}
	if timeout < 0 {
		return nil, ErrInvalidTimeout
	}

	res := new(SelectResult)
	for _, s := range reads {
		if err := s.ensureOpenAndReadable(); err != nil {
			return nil, err
		}
		if s.buf.writeSynced() && !s.buf.empty() {
			res.Readable = append(res.Readable, s)
		}
	}
	for _, s := range writes {
		if err := s.ensureOpenAndWritable(); err != nil {
			return nil, err
		}
	}
	if len(res.Readable) > 0 {
		return res, nil
	}

	var entries []*selectEntry
	byFD := make(map[int]*selectEntry)
	entry := func(s *Stream) *selectEntry {
		e, ok := byFD[s.fd]
		if !ok {
			e = &selectEntry{fd: s.fd}
			byFD[s.fd] = e
			entries = append(entries, e)
		}
		return e
	}
	for _, s := range reads {
		e := entry(s)
		e.interest |= InterestRead
		e.reader = s
	}
	for _, s := range writes {
		e := entry(s)
		e.interest |= InterestWrite
		e.writer = s
	}
	if len(entries) == 0 && timeout == 0 {
		return res, nil
	}

	sched := DefaultScheduler()
	if len(reads) > 0 {
		sched = reads[0].sched
	} else if len(writes) > 0 {
		sched = writes[0].sched
	}

	ch := NewChannel(len(entries) + 1)
	watches := make([]*Watch, 0, len(entries)+1)
	defer func() {
		for _, w := range watches {
			w.Retire()
		}
	}()
	for _, e := range entries {
		w, err := sched.Watch(ch, e.fd, e.interest, e)
		if err != nil {
			return nil, err
		}
		watches = append(watches, w)
	}
	if timeout > 0 {
		watches = append(watches, sched.SendAfter(ch, timeout, nil))
	}

	n, err := ch.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if n.Timeout && ch.Pending() == 0 {
		return nil, nil
	}
	collect(res, n)
	for ch.Pending() > 0 {
		collect(res, <-ch)
	}
	if err = sweep(res, entries); err != nil {
		return nil, err
	}
	return res, nil
}

// sweep picks up descriptors that became ready alongside the first one but
// whose notifications the poll loop has not delivered yet.
func sweep(res *SelectResult, entries []*selectEntry) error {
	var fds []unix.PollFd
	var pending []*selectEntry
	for _, e := range entries {
		if e.seen {
			continue
		}
		var events int16
		if e.interest&InterestRead != 0 {
			events |= unix.POLLIN
		}
		if e.interest&InterestWrite != 0 {
			events |= unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(e.fd), Events: events})
		pending = append(pending, e)
	}
	if len(fds) == 0 {
		return nil
	}
	for {
		_, err := unix.Poll(fds, 0)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return syscallErr("poll", err)
		}
		break
	}
	for i, e := range pending {
		var events uint32
		revents := fds[i].Revents
		if revents&(unix.POLLIN|unix.POLLHUP) != 0 {
			events |= unix.EPOLLIN
		}
		if revents&unix.POLLOUT != 0 {
			events |= unix.EPOLLOUT
		}
		var err error
		if revents&(unix.POLLERR|unix.POLLNVAL) != 0 && events == 0 {
			err = ErrPollFailed
		}
		if events != 0 || err != nil {
			collect(res, Notification{FD: e.fd, Events: events, Tag: e, Err: err})
		}
	}
	return nil
}

func collect(res *SelectResult, n Notification) {
	e, ok := n.Tag.(*selectEntry)
	if !ok || e.seen {
		return
	}
	e.seen = true
	if n.Err != nil {
		// surface the failure through the stream's next operation
		if e.reader != nil {
			res.Readable = append(res.Readable, e.reader)
		}
		if e.writer != nil {
			res.Writable = append(res.Writable, e.writer)
		}
		return
	}
	if e.reader != nil && n.Readable() {
		res.Readable = append(res.Readable, e.reader)
	}
	if e.writer != nil && n.Writable() {
		res.Writable = append(res.Writable, e.writer)
	}
}
