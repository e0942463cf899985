package zio

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Stream is a buffered byte stream over one OS descriptor. Reads and
// writes share one buffer window; a Stream is either reading or writing
// at a given moment and switches direction by flushing or unseeking.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	fd     int
	access Access
	buf    *buffer
	lineno int
	sync   bool
	eof    bool

	o     *options
	sched *Scheduler
	ch    Channel
}

func newStream(fd int, access Access, o *options) *Stream {
	s := &Stream{
		fd:     fd,
		access: access,
		buf:    newBuffer(o.bufferSize),
		o:      o,
		sched:  o.scheduler,
		ch:     NewChannel(1),
		sync:   fd == 1 || fd == 2,
	}
	if o.sync != nil {
		s.sync = *o.sync
	}
	return s
}

// Fd returns the underlying descriptor.
func (s *Stream) Fd() (int, error) {
	if err := s.ensureOpen(); err != nil {
		return -1, err
	}
	return s.fd, nil
}

// Access reports the direction the stream was opened for.
func (s *Stream) Access() Access {
	return s.access
}

func (s *Stream) Closed() bool {
	return s.fd == -1
}

func (s *Stream) ensureOpen() error {
	if s.fd == -1 {
		return ErrClosed
	}
	return nil
}

func (s *Stream) ensureOpenAndReadable() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if !s.access.readable() {
		return ErrNotReadable
	}
	return nil
}

func (s *Stream) ensureOpenAndWritable() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if !s.access.writable() {
		return ErrNotWritable
	}
	return nil
}

// Sync reports whether every write is flushed immediately.
func (s *Stream) Sync() (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	return s.sync, nil
}

func (s *Stream) SetSync(sync bool) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.sync = sync
	return nil
}

// Lineno is the number of successful Gets calls, not the number of
// newlines seen.
func (s *Stream) Lineno() (int, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	return s.lineno, nil
}

func (s *Stream) SetLineno(n int) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	s.lineno = n
	return nil
}

func (s *Stream) IsTTY() (bool, error) {
	if err := s.ensureOpen(); err != nil {
		return false, err
	}
	return isatty(s.fd), nil
}

func (s *Stream) Stat() (unix.Stat_t, error) {
	var st unix.Stat_t
	if err := s.ensureOpen(); err != nil {
		return st, err
	}
	if err := unix.Fstat(s.fd, &st); err != nil {
		return st, syscallErr("fstat", err)
	}
	return st, nil
}

// Dup returns a new Stream on a duplicate of the descriptor. The two
// streams do not share buffered state.
func (s *Stream) Dup() (*Stream, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	nfd, err := unix.FcntlInt(uintptr(s.fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, syscallErr("dup", err)
	}
	d := newStream(nfd, s.access, s.o)
	d.sync = s.sync
	return d, nil
}

// Reopen points the stream at other's open file, as dup2(2) does: both
// descriptors then share one file position. Pending writes on either
// stream are flushed, other's read-ahead is given back, and this stream
// drops its buffered data and takes other's access mode.
func (s *Stream) Reopen(other *Stream) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := other.ensureOpen(); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}
	if other.fd == s.fd {
		return nil
	}
	if err := other.Flush(); err != nil {
		return err
	}
	if err := other.buf.unseek(other); err != nil && !errors.Is(err, unix.ESPIPE) {
		return err
	}
	return s.reopenFD(other.fd, other.access)
}

// ReopenPath is Reopen onto a file opened from path. An empty mode means
// "r+".
func (s *Stream) ReopenPath(path, mode string) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.Flush(); err != nil {
		return err
	}
	if mode == "" {
		mode = "r+"
	}
	flags, err := ParseMode(mode)
	if err != nil {
		return err
	}
	fd, err := SysOpen(path, mode, 0666)
	if err != nil {
		return err
	}
	err = s.reopenFD(fd, accessOf(flags))
	return multierr.Append(err, closeFD(fd))
}

func (s *Stream) reopenFD(fd int, access Access) error {
	if err := unix.Dup3(fd, s.fd, unix.O_CLOEXEC); err != nil {
		return syscallErr("dup3", err)
	}
	s.buf.reset()
	s.access = access
	s.eof = false
	return nil
}

// Close flushes pending writes and closes the descriptor.
func (s *Stream) Close() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	err := s.Flush()
	err = multierr.Append(err, closeFD(s.fd))
	s.fd = -1
	s.buf.free()
	return err
}

// CloseRead closes a read-only stream. Streams open for writing are not
// duplex and refuse.
func (s *Stream) CloseRead() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.access != ReadOnly {
		return fmt.Errorf("%w for reading", ErrNonDuplex)
	}
	return s.Close()
}

// CloseWrite closes a write-only stream.
func (s *Stream) CloseWrite() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if s.access != WriteOnly {
		return fmt.Errorf("%w for writing", ErrNonDuplex)
	}
	return s.Close()
}

func (s *Stream) String() string {
	return fmt.Sprintf("zio.Stream{fd=%d access=%s}", s.fd, s.access)
}

// ------------------------------------------ bufferIO ------------------------------------------

func (s *Stream) awaitReadable() error {
	return s.sched.AwaitReadable(s.ch, s.fd)
}

func (s *Stream) primRead(p []byte) (int, error) {
	return readFD(s.fd, p, s.o.retries)
}

// primWrite writes p, waiting for capacity when the descriptor is
// non-blocking and full.
func (s *Stream) primWrite(p []byte) (n int, err error) {
	for i := 0; ; i++ {
		n, err = writeFD(s.fd, p, s.o.retries)
		if err != unix.EAGAIN {
			return n, err
		}
		if i >= s.o.retries {
			return 0, syscallErr("write", err)
		}
		if err = s.sched.AwaitWritable(s.ch, s.fd); err != nil {
			return 0, err
		}
	}
}

func (s *Stream) primSeek(offset int64, whence int) (int64, error) {
	return seekFD(s.fd, offset, whence)
}

func (s *Stream) setEOF() {
	s.eof = true
}
