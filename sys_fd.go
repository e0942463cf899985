package zio

import (
	"github.com/zhihanii/zlog"
	"golang.org/x/sys/unix"
)

// fdAccess queries the access mode the descriptor was opened with.
func fdAccess(fd int) (Access, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return ReadOnly, syscallErr("fcntl", err)
	}
	return accessOf(flags), nil
}

func isatty(fd int) bool {
	_, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	return err == nil
}

// readFD performs one read(2), retrying EINTR at most retries times.
func readFD(fd int, p []byte, retries int) (n int, err error) {
	for i := 0; ; i++ {
		n, err = unix.Read(fd, p)
		if err == unix.EINTR && i < retries {
			continue
		}
		if err != nil {
			return 0, syscallErr("read", err)
		}
		return n, nil
	}
}

// writeFD performs one write(2), retrying EINTR at most retries times.
// EAGAIN is returned unwrapped so the caller can wait for capacity.
func writeFD(fd int, p []byte, retries int) (n int, err error) {
	for i := 0; ; i++ {
		n, err = unix.Write(fd, p)
		if err == unix.EINTR && i < retries {
			continue
		}
		if err == unix.EAGAIN {
			return 0, err
		}
		if err != nil {
			return 0, syscallErr("write", err)
		}
		return n, nil
	}
}

// readNonblockFD performs one read(2) with O_NONBLOCK set, then restores
// the descriptor's own flags. EAGAIN is returned unwrapped.
func readNonblockFD(fd int, p []byte) (n int, err error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return 0, syscallErr("fcntl", err)
	}
	if flags&unix.O_NONBLOCK == 0 {
		if _, err = unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags|unix.O_NONBLOCK); err != nil {
			return 0, syscallErr("fcntl", err)
		}
		defer func() {
			if _, rerr := unix.FcntlInt(uintptr(fd), unix.F_SETFL, flags); rerr != nil && err == nil {
				n, err = 0, syscallErr("fcntl", rerr)
			}
		}()
	}
	n, err = unix.Read(fd, p)
	if err == unix.EAGAIN {
		return 0, err
	}
	if err != nil {
		return 0, syscallErr("read", err)
	}
	return n, nil
}

func seekFD(fd int, offset int64, whence int) (int64, error) {
	off, err := unix.Seek(fd, offset, whence)
	if err != nil {
		return 0, syscallErr("lseek", err)
	}
	return off, nil
}

func closeFD(fd int) error {
	if fd < 0 {
		return nil
	}
	if err := unix.Close(fd); err != nil {
		zlog.Errorf("fd[%d] close error: %s", fd, err.Error())
		return syscallErr("close", err)
	}
	return nil
}
