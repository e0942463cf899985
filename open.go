package zio

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"
)

// NewStream wraps an existing descriptor. An empty mode adopts the
// descriptor's own access mode. A mode may narrow a read-write descriptor
// but cannot widen or flip a read-only or write-only one; that fails with
// EINVAL.
func NewStream(fd int, mode string, opts ...Option) (*Stream, error) {
	cur, err := fdAccess(fd)
	if err != nil {
		return nil, err
	}
	access := cur
	if mode != "" {
		flags, err := ParseMode(mode)
		if err != nil {
			return nil, err
		}
		access = accessOf(flags)
		if cur != ReadWrite && access != cur {
			return nil, fmt.Errorf("invalid mode %q for descriptor %d: %w", mode, fd, unix.EINVAL)
		}
	}
	return newStream(fd, access, newOptions(opts)), nil
}

// SysOpen opens path and returns the raw descriptor.
func SysOpen(path, mode string, perm uint32) (int, error) {
	flags, err := ParseMode(mode)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Open(path, flags|unix.O_CLOEXEC, perm)
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return fd, nil
}

// Open opens path with a mode string and wraps it in a Stream.
func Open(path, mode string, opts ...Option) (*Stream, error) {
	flags, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	fd, err := SysOpen(path, mode, 0666)
	if err != nil {
		return nil, err
	}
	return newStream(fd, accessOf(flags), newOptions(opts)), nil
}

// Pipe returns the connected read and write ends of a new pipe. Both ends
// are in sync mode unless an option says otherwise.
func Pipe(opts ...Option) (r, w *Stream, err error) {
	var fds [2]int
	if err = unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		return nil, nil, syscallErr("pipe2", err)
	}
	o := newOptions(append([]Option{WithSync(true)}, opts...))
	return newStream(fds[0], ReadOnly, o), newStream(fds[1], WriteOnly, o), nil
}

// ReadFile reads length bytes (all of it when length is negative) from
// path, starting at offset.
func ReadFile(path string, length int, offset int64, opts ...Option) ([]byte, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset must not be negative: %w", unix.EINVAL)
	}
	s, err := Open(path, "r", opts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	if offset != 0 {
		if _, err = s.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
	}
	if length < 0 {
		return s.ReadAll()
	}
	return s.ReadN(length)
}

// ReadLines returns every record of path.
func ReadLines(path string, sep Separator, opts ...Option) ([][]byte, error) {
	s, err := Open(path, "r", opts...)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.ReadLines(sep)
}

// ForEach calls fn with every record of path.
func ForEach(path string, sep Separator, fn func(line []byte) error, opts ...Option) error {
	s, err := Open(path, "r", opts...)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Each(sep, fn)
}
