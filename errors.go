package zio

import (
	"errors"
	"fmt"
	"os"
)

// Usage errors. These are returned synchronously and never retried.
var (
	ErrClosed         = errors.New("closed stream")
	ErrNotReadable    = errors.New("not opened for reading")
	ErrNotWritable    = errors.New("not opened for writing")
	ErrBuffered       = errors.New("buffered data pending; raw access not allowed")
	ErrNegativeSize   = errors.New("negative size")
	ErrInvalidMode    = errors.New("invalid mode")
	ErrInvalidTimeout = errors.New("timeout must not be negative")
	ErrUnsupported    = errors.New("error interest set is not supported")
	ErrNonDuplex      = errors.New("closing non-duplex stream")
)

var (
	// ErrWouldBlock is returned by ReadNonblock when no data is ready.
	ErrWouldBlock = errors.New("read would block")
	// ErrPollFailed is delivered by the poller when a descriptor reports
	// an error condition instead of readiness.
	ErrPollFailed = errors.New("descriptor poll failed")
)

func syscallErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return os.NewSyscallError(op, err)
}

func invalidModeErr(mode string) error {
	return fmt.Errorf("%w -- %q", ErrInvalidMode, mode)
}
