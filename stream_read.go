package zio

import (
	"errors"
	"io"

	"golang.org/x/sys/unix"
)

// ReadAll reads until the stream is exhausted. An already exhausted
// stream yields an empty, non-nil slice.
func (s *Stream) ReadAll() ([]byte, error) {
	if err := s.ensureOpenAndReadable(); err != nil {
		return nil, err
	}
	return s.readAll()
}

func (s *Stream) readAll() ([]byte, error) {
	p := []byte{}
	for !s.buf.exhausted() {
		if _, err := s.buf.fillFrom(s, noSkip); err != nil {
			return p, err
		}
		p = append(p, s.buf.shift(-1)...)
	}
	return p, nil
}

// ReadN reads length bytes, or fewer if the stream ends first. It returns
// nil and no error once the stream is exhausted; end of stream is a value
// here, not a failure.
func (s *Stream) ReadN(length int) ([]byte, error) {
	if err := s.ensureOpenAndReadable(); err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, ErrNegativeSize
	}
	if s.buf.exhausted() {
		return nil, nil
	}
	if length == 0 {
		return []byte{}, nil
	}

	var p []byte
	for needed := length; needed > 0 && !s.buf.exhausted(); {
		available, err := s.buf.fillFrom(s, noSkip)
		if err != nil {
			return p, err
		}
		count := needed
		if available < count {
			count = available
		}
		p = append(p, s.buf.shift(count)...)
		needed -= count
	}
	if len(p) == 0 {
		return nil, nil
	}
	return p, nil
}

// Read implements io.Reader. It blocks only when nothing is buffered and
// the descriptor has no data, and returns io.EOF at end of stream.
func (s *Stream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, s.ensureOpenAndReadable()
	}
	b, err := s.ReadPartial(len(p))
	n := copy(p, b)
	return n, err
}

// readToSeparator chains buffer fills until sep is found. It returns nil
// once the stream is exhausted.
func (s *Stream) readToSeparator(sep Separator) ([]byte, error) {
	if s.buf.exhausted() {
		return nil, nil
	}
	if sep.kind == sepNone {
		return s.readAll()
	}

	pattern, skip := sep.sep, noSkip
	if sep.kind == sepParagraph {
		pattern, skip = paragraphSep, '\n'
	}

	var line []byte
	for !s.buf.exhausted() {
		// leading separators are only dropped at the start of a record
		lead := skip
		if len(line) > 0 {
			lead = noSkip
		}
		if _, err := s.buf.fillFrom(s, lead); err != nil {
			return line, err
		}
		count, found := s.buf.findAfter(line, pattern)
		if found {
			line = append(line, s.buf.shift(count)...)
			break
		}
		line = append(line, s.buf.shift(-1)...)
	}
	if skip != noSkip {
		s.buf.discard(byte(skip))
	}

	if len(line) == 0 {
		return nil, nil
	}
	return line, nil
}

// Gets reads the next record ending in sep, including the separator. It
// returns nil and no error at end of stream. Each record read bumps the
// stream's line number.
func (s *Stream) Gets(sep Separator) ([]byte, error) {
	if err := s.ensureOpenAndReadable(); err != nil {
		return nil, err
	}
	line, err := s.readToSeparator(sep)
	if line != nil && err == nil {
		s.lineno++
	}
	return line, err
}

// Readline is Gets with io.EOF at end of stream.
func (s *Stream) Readline(sep Separator) ([]byte, error) {
	line, err := s.Gets(sep)
	if err != nil {
		return nil, err
	}
	if line == nil {
		return nil, io.EOF
	}
	return line, nil
}

// Each calls fn with every remaining record. It stops at end of stream or
// at the first error, from the stream or from fn.
func (s *Stream) Each(sep Separator, fn func(line []byte) error) error {
	if err := s.ensureOpenAndReadable(); err != nil {
		return err
	}
	for {
		line, err := s.Gets(sep)
		if err != nil {
			return err
		}
		if line == nil {
			return nil
		}
		if err = fn(line); err != nil {
			return err
		}
	}
}

// ReadLines collects every remaining record.
func (s *Stream) ReadLines(sep Separator) ([][]byte, error) {
	var lines [][]byte
	err := s.Each(sep, func(line []byte) error {
		lines = append(lines, line)
		return nil
	})
	return lines, err
}

// ReadPartial returns up to size bytes: whatever is buffered, topped up by
// one raw read for the remainder. It waits only if nothing is buffered;
// with buffered bytes in hand the raw read does not wait and an empty
// descriptor simply adds nothing. It fails with io.EOF at end of stream.
func (s *Stream) ReadPartial(size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrNegativeSize
	}
	if err := s.ensureOpenAndReadable(); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}

	p := s.buf.shift(size)
	rest := size - len(p)
	if rest == 0 {
		return p, nil
	}
	if len(p) == 0 {
		return s.SysRead(rest)
	}
	more, err := s.readNow(rest)
	switch {
	case err == nil:
		p = append(p, more...)
	case errors.Is(err, ErrWouldBlock), errors.Is(err, io.EOF):
	default:
		return nil, err
	}
	return p, nil
}

// SysRead performs one unbuffered read of up to size bytes after waiting
// for the descriptor to become readable. It must not be mixed with
// buffered reads: unread buffered data makes it fail with ErrBuffered.
func (s *Stream) SysRead(size int) ([]byte, error) {
	if err := s.Flush(); err != nil {
		return nil, err
	}
	if err := s.ensureOpenAndReadable(); err != nil {
		return nil, err
	}
	if !s.buf.empty() {
		return nil, ErrBuffered
	}
	if size < 0 {
		return nil, ErrNegativeSize
	}
	if size == 0 {
		return []byte{}, nil
	}

	if err := s.sched.AwaitReadable(s.ch, s.fd); err != nil {
		return nil, err
	}
	p := make([]byte, size)
	n, err := s.primRead(p)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		s.eof = true
		return nil, io.EOF
	}
	return p[:n], nil
}

// ReadNonblock returns buffered bytes if there are any; otherwise it issues
// one read(2) with O_NONBLOCK set and fails with ErrWouldBlock if no data
// is ready.
func (s *Stream) ReadNonblock(size int) ([]byte, error) {
	if size < 0 {
		return nil, ErrNegativeSize
	}
	if err := s.ensureOpenAndReadable(); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}
	if !s.buf.empty() {
		return s.buf.shift(size), nil
	}
	return s.readNow(size)
}

// readNow is one read(2) that never waits, bypassing the buffer.
func (s *Stream) readNow(size int) ([]byte, error) {
	p := make([]byte, size)
	n, err := readNonblockFD(s.fd, p)
	if err == unix.EAGAIN {
		return nil, ErrWouldBlock
	}
	if err != nil {
		return nil, err
	}
	if n == 0 && size > 0 {
		s.eof = true
		return nil, io.EOF
	}
	return p[:n], nil
}

// Getc returns the next byte, or -1 at end of stream.
func (s *Stream) Getc() (int, error) {
	p, err := s.ReadN(1)
	if err != nil {
		return -1, err
	}
	if p == nil {
		return -1, nil
	}
	return int(p[0]), nil
}

// ReadByte implements io.ByteReader: Getc with io.EOF at end of stream.
func (s *Stream) ReadByte() (byte, error) {
	c, err := s.Getc()
	if err != nil {
		return 0, err
	}
	if c < 0 {
		return 0, io.EOF
	}
	return byte(c), nil
}

// EachByte calls fn with every remaining byte.
func (s *Stream) EachByte(fn func(c byte) error) error {
	for {
		c, err := s.Getc()
		if err != nil {
			return err
		}
		if c < 0 {
			return nil
		}
		if err = fn(byte(c)); err != nil {
			return err
		}
	}
}

// WaitReadable suspends until the descriptor has data or reaches end of
// stream. Buffered bytes are not consulted.
func (s *Stream) WaitReadable() error {
	if err := s.ensureOpenAndReadable(); err != nil {
		return err
	}
	return s.sched.AwaitReadable(s.ch, s.fd)
}

// EOF reports whether the stream has no more data. It fills the buffer once
// when needed, so on pipes and sockets it waits for the peer to write or
// close. Data read this way stays buffered and makes SysRead fail.
func (s *Stream) EOF() (bool, error) {
	if err := s.ensureOpenAndReadable(); err != nil {
		return false, err
	}
	if !s.buf.exhausted() {
		if _, err := s.buf.fillFrom(s, noSkip); err != nil {
			return false, err
		}
	}
	return s.eof && s.buf.exhausted(), nil
}
