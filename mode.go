package zio

import "golang.org/x/sys/unix"

// Access is the direction a Stream was opened for.
type Access int8

const (
	ReadOnly Access = iota
	WriteOnly
	ReadWrite
)

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "r"
	case WriteOnly:
		return "w"
	case ReadWrite:
		return "r+"
	}
	return "?"
}

func (a Access) readable() bool { return a != WriteOnly }
func (a Access) writable() bool { return a != ReadOnly }

// accessOf maps open(2) flags to an Access.
func accessOf(flags int) Access {
	switch flags & unix.O_ACCMODE {
	case unix.O_WRONLY:
		return WriteOnly
	case unix.O_RDWR:
		return ReadWrite
	}
	return ReadOnly
}

// ParseMode converts a mode string ("r", "w", "a", optionally followed by
// "+" and/or "b", each at most once) to open(2) flags.
func ParseMode(mode string) (int, error) {
	var flags int
	if len(mode) == 0 || len(mode) > 3 {
		return 0, invalidModeErr(mode)
	}
	switch mode[0] {
	case 'r':
		flags |= unix.O_RDONLY
	case 'w':
		flags |= unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC
	case 'a':
		flags |= unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND
	default:
		return 0, invalidModeErr(mode)
	}
	var plus, binary bool
	for i := 1; i < len(mode); i++ {
		switch mode[i] {
		case '+':
			if plus {
				return 0, invalidModeErr(mode)
			}
			plus = true
			flags &^= unix.O_ACCMODE
			flags |= unix.O_RDWR
		case 'b':
			if binary {
				return 0, invalidModeErr(mode)
			}
			binary = true
			// binary mode is meaningless on unix
		default:
			return 0, invalidModeErr(mode)
		}
	}
	return flags, nil
}
