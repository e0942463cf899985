package zio

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Readable is the read half of a stream.
type Readable interface {
	Read(p []byte) (int, error)
	ReadAll() ([]byte, error)
	ReadN(length int) ([]byte, error)
	Gets(sep Separator) ([]byte, error)
	Readline(sep Separator) ([]byte, error)
	Each(sep Separator, fn func(line []byte) error) error
	ReadLines(sep Separator) ([][]byte, error)
	ReadPartial(size int) ([]byte, error)
	SysRead(size int) ([]byte, error)
	ReadNonblock(size int) ([]byte, error)
	Getc() (int, error)
	ReadByte() (byte, error)
	EachByte(fn func(c byte) error) error
	WaitReadable() error
	EOF() (bool, error)
}

// Writable is the write half of a stream.
type Writable interface {
	Write(p []byte) (int, error)
	WriteString(s string) (int, error)
	WriteNonblock(p []byte) (int, error)
	Print(args ...any) error
	Printf(format string, args ...any) (int, error)
	Puts(args ...any) error
	Putc(c byte) error
	SysWrite(p []byte) (int, error)
	Flush() error
}

var (
	_ Readable = (*Stream)(nil)
	_ Writable = (*Stream)(nil)
	_ Readable = (*DuplexPipe)(nil)
	_ Writable = (*DuplexPipe)(nil)
)

// DuplexPipe joins a child process and up to two pipe halves: reads go to
// the child's stdout, writes to its stdin.
type DuplexPipe struct {
	read  *Stream
	write *Stream
	cmd   *exec.Cmd
	pid   int
	state *os.ProcessState
}

// Popen runs command with /bin/sh -c. Mode "r" connects the child's
// stdout, "w" its stdin, and "r+" (or "w+") both.
func Popen(command, mode string, opts ...Option) (*DuplexPipe, error) {
	flags, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	access := accessOf(flags)

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Stderr = os.Stderr

	var parentRead, parentWrite = -1, -1
	var childOut, childIn *os.File
	cleanup := func() {
		for _, fd := range []int{parentRead, parentWrite} {
			if fd >= 0 {
				unix.Close(fd)
			}
		}
		for _, f := range []*os.File{childOut, childIn} {
			if f != nil {
				f.Close()
			}
		}
	}
	var fds [2]int
	if access.readable() {
		if err = unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
			cleanup()
			return nil, syscallErr("pipe2", err)
		}
		parentRead, childOut = fds[0], os.NewFile(uintptr(fds[1]), "|1")
		cmd.Stdout = childOut
	}
	if access.writable() {
		if err = unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
			cleanup()
			return nil, syscallErr("pipe2", err)
		}
		childIn, parentWrite = os.NewFile(uintptr(fds[0]), "|0"), fds[1]
		cmd.Stdin = childIn
	}

	if err = cmd.Start(); err != nil {
		cleanup()
		return nil, fmt.Errorf("popen %q: %w", command, err)
	}
	// the child holds its own copies now
	if childOut != nil {
		childOut.Close()
	}
	if childIn != nil {
		childIn.Close()
	}

	o := newOptions(append([]Option{WithSync(true)}, opts...))
	p := &DuplexPipe{cmd: cmd, pid: cmd.Process.Pid}
	if parentRead >= 0 {
		p.read = newStream(parentRead, ReadOnly, o)
	}
	if parentWrite >= 0 {
		p.write = newStream(parentWrite, WriteOnly, o)
	}
	return p, nil
}

func (p *DuplexPipe) reader() (*Stream, error) {
	if p.read == nil {
		return nil, ErrNotReadable
	}
	return p.read, nil
}

func (p *DuplexPipe) writer() (*Stream, error) {
	if p.write == nil {
		return nil, ErrNotWritable
	}
	return p.write, nil
}

// Reader exposes the read half.
func (p *DuplexPipe) Reader() (Readable, error) {
	r, err := p.reader()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Writer exposes the write half.
func (p *DuplexPipe) Writer() (Writable, error) {
	w, err := p.writer()
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Close closes whichever halves are still open and reaps the child. Only
// the first call waits for the child; later calls do nothing.
func (p *DuplexPipe) Close() error {
	var err error
	if p.read != nil && !p.read.Closed() {
		err = multierr.Append(err, p.read.Close())
	}
	if p.write != nil && !p.write.Closed() {
		err = multierr.Append(err, p.write.Close())
	}
	if p.pid != 0 {
		err = multierr.Append(err, p.reap())
		p.pid = 0
	}
	return err
}

func (p *DuplexPipe) reap() error {
	werr := p.cmd.Wait()
	p.state = p.cmd.ProcessState
	var exitErr *exec.ExitError
	if errors.As(werr, &exitErr) {
		// a non-zero exit is reported through ProcessState
		return nil
	}
	return werr
}

// Closed reports whether every half that exists is closed.
func (p *DuplexPipe) Closed() bool {
	switch {
	case p.read != nil && p.write != nil:
		return p.read.Closed() && p.write.Closed()
	case p.read != nil:
		return p.read.Closed()
	case p.write != nil:
		return p.write.Closed()
	}
	return true
}

func (p *DuplexPipe) CloseRead() error {
	if p.read == nil || p.read.Closed() {
		return ErrClosed
	}
	return p.read.Close()
}

func (p *DuplexPipe) CloseWrite() error {
	if p.write == nil || p.write.Closed() {
		return ErrClosed
	}
	return p.write.Close()
}

// Pid returns the child's process id, or 0 once it has been reaped.
func (p *DuplexPipe) Pid() (int, error) {
	if p.Closed() {
		return 0, ErrClosed
	}
	return p.pid, nil
}

// ProcessState is the child's exit state, nil until Close has reaped it.
func (p *DuplexPipe) ProcessState() *os.ProcessState {
	return p.state
}

// ------------------------------------------ read half ------------------------------------------

func (p *DuplexPipe) Read(b []byte) (int, error) {
	r, err := p.reader()
	if err != nil {
		return 0, err
	}
	return r.Read(b)
}

func (p *DuplexPipe) ReadAll() ([]byte, error) {
	r, err := p.reader()
	if err != nil {
		return nil, err
	}
	return r.ReadAll()
}

func (p *DuplexPipe) ReadN(length int) ([]byte, error) {
	r, err := p.reader()
	if err != nil {
		return nil, err
	}
	return r.ReadN(length)
}

func (p *DuplexPipe) Gets(sep Separator) ([]byte, error) {
	r, err := p.reader()
	if err != nil {
		return nil, err
	}
	return r.Gets(sep)
}

func (p *DuplexPipe) Readline(sep Separator) ([]byte, error) {
	r, err := p.reader()
	if err != nil {
		return nil, err
	}
	return r.Readline(sep)
}

func (p *DuplexPipe) Each(sep Separator, fn func(line []byte) error) error {
	r, err := p.reader()
	if err != nil {
		return err
	}
	return r.Each(sep, fn)
}

func (p *DuplexPipe) ReadLines(sep Separator) ([][]byte, error) {
	r, err := p.reader()
	if err != nil {
		return nil, err
	}
	return r.ReadLines(sep)
}

func (p *DuplexPipe) ReadPartial(size int) ([]byte, error) {
	r, err := p.reader()
	if err != nil {
		return nil, err
	}
	return r.ReadPartial(size)
}

func (p *DuplexPipe) SysRead(size int) ([]byte, error) {
	r, err := p.reader()
	if err != nil {
		return nil, err
	}
	return r.SysRead(size)
}

func (p *DuplexPipe) ReadNonblock(size int) ([]byte, error) {
	r, err := p.reader()
	if err != nil {
		return nil, err
	}
	return r.ReadNonblock(size)
}

func (p *DuplexPipe) Getc() (int, error) {
	r, err := p.reader()
	if err != nil {
		return -1, err
	}
	return r.Getc()
}

func (p *DuplexPipe) ReadByte() (byte, error) {
	r, err := p.reader()
	if err != nil {
		return 0, err
	}
	return r.ReadByte()
}

func (p *DuplexPipe) EachByte(fn func(c byte) error) error {
	r, err := p.reader()
	if err != nil {
		return err
	}
	return r.EachByte(fn)
}

func (p *DuplexPipe) WaitReadable() error {
	r, err := p.reader()
	if err != nil {
		return err
	}
	return r.WaitReadable()
}

func (p *DuplexPipe) EOF() (bool, error) {
	r, err := p.reader()
	if err != nil {
		return false, err
	}
	return r.EOF()
}

// ------------------------------------------ write half ------------------------------------------

func (p *DuplexPipe) Write(b []byte) (int, error) {
	w, err := p.writer()
	if err != nil {
		return 0, err
	}
	return w.Write(b)
}

func (p *DuplexPipe) WriteString(s string) (int, error) {
	w, err := p.writer()
	if err != nil {
		return 0, err
	}
	return w.WriteString(s)
}

func (p *DuplexPipe) WriteNonblock(b []byte) (int, error) {
	w, err := p.writer()
	if err != nil {
		return 0, err
	}
	return w.WriteNonblock(b)
}

func (p *DuplexPipe) Print(args ...any) error {
	w, err := p.writer()
	if err != nil {
		return err
	}
	return w.Print(args...)
}

func (p *DuplexPipe) Printf(format string, args ...any) (int, error) {
	w, err := p.writer()
	if err != nil {
		return 0, err
	}
	return w.Printf(format, args...)
}

func (p *DuplexPipe) Puts(args ...any) error {
	w, err := p.writer()
	if err != nil {
		return err
	}
	return w.Puts(args...)
}

func (p *DuplexPipe) Putc(c byte) error {
	w, err := p.writer()
	if err != nil {
		return err
	}
	return w.Putc(c)
}

func (p *DuplexPipe) SysWrite(b []byte) (int, error) {
	w, err := p.writer()
	if err != nil {
		return 0, err
	}
	return w.SysWrite(b)
}

func (p *DuplexPipe) Flush() error {
	w, err := p.writer()
	if err != nil {
		return err
	}
	return w.Flush()
}
