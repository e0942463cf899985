package zio

import (
	"errors"
	"fmt"
	"reflect"

	"golang.org/x/sys/unix"
)

// recordSeparator terminates every Puts argument.
const recordSeparator = "\n"

// Write implements io.Writer. Bytes are buffered and flushed when the
// window fills, or after every call when the stream is in sync mode.
func (s *Stream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := s.ensureOpenAndWritable(); err != nil {
		return 0, err
	}
	if err := s.buf.unseek(s); err != nil {
		if !errors.Is(err, unix.ESPIPE) {
			return 0, err
		}
		// read-ahead on a socket or tty cannot be given back; keep it
		// buffered and write around it
		return s.writeThrough(p)
	}

	var written int
	for written < len(p) {
		written += s.buf.unshift(p[written:])
		if s.buf.full() || s.sync {
			if _, err := s.buf.emptyTo(s); err != nil {
				return written, err
			}
		}
	}
	return len(p), nil
}

func (s *Stream) writeThrough(p []byte) (int, error) {
	var written int
	for written < len(p) {
		n, err := s.primWrite(p[written:])
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

// WriteNonblock is Write; buffered writes never wait for the reader.
func (s *Stream) WriteNonblock(p []byte) (int, error) {
	return s.Write(p)
}

func (s *Stream) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Print writes the default formatting of each argument, with no separators.
func (s *Stream) Print(args ...any) error {
	for _, arg := range args {
		if _, err := s.WriteString(fmt.Sprint(arg)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) Printf(format string, args ...any) (int, error) {
	return s.WriteString(fmt.Sprintf(format, args...))
}

// Puts writes each argument followed by a newline unless it already ends
// with one. Slice arguments are written one element per line; no
// arguments writes a single newline.
func (s *Stream) Puts(args ...any) error {
	if len(args) == 0 {
		_, err := s.WriteString(recordSeparator)
		return err
	}
	for _, arg := range args {
		if err := s.putsOne(arg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Stream) putsOne(arg any) error {
	var str string
	switch v := arg.(type) {
	case nil:
		str = ""
	case string:
		str = v
	case []byte:
		str = string(v)
	case fmt.Stringer:
		str = v.String()
	default:
		rv := reflect.ValueOf(arg)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				if err := s.putsOne(rv.Index(i).Interface()); err != nil {
					return err
				}
			}
			return nil
		}
		str = fmt.Sprint(arg)
	}
	if _, err := s.WriteString(str); err != nil {
		return err
	}
	if len(str) > 0 && str[len(str)-1] == recordSeparator[0] {
		return nil
	}
	_, err := s.WriteString(recordSeparator)
	return err
}

// Putc writes a single byte.
func (s *Stream) Putc(c byte) error {
	_, err := s.Write([]byte{c})
	return err
}

// SysWrite writes p with one unbuffered write. Pending buffered writes
// make it fail with ErrBuffered.
func (s *Stream) SysWrite(p []byte) (int, error) {
	if err := s.ensureOpenAndWritable(); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !s.buf.writeSynced() {
		return 0, ErrBuffered
	}
	if err := s.buf.unseek(s); err != nil && !errors.Is(err, unix.ESPIPE) {
		return 0, err
	}
	return s.primWrite(p)
}

// Flush hands every buffered write to the operating system.
func (s *Stream) Flush() error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	_, err := s.buf.emptyTo(s)
	return err
}

// Fsync flushes and then asks the OS to commit the data to storage.
func (s *Stream) Fsync() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if err := unix.Fsync(s.fd); err != nil {
		return syscallErr("fsync", err)
	}
	return nil
}
