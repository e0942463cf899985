package zio

import (
	"io"

	"github.com/zhihanii/zlog"
)

// Seek flushes pending writes, gives back unread buffered bytes and then
// repositions the descriptor. whence is one of io.SeekStart,
// io.SeekCurrent or io.SeekEnd.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	if err := s.Flush(); err != nil {
		return 0, err
	}
	if err := s.buf.unseek(s); err != nil {
		return 0, err
	}
	s.eof = false
	return s.primSeek(offset, whence)
}

// SysSeek repositions the descriptor without touching the buffer. Unread
// buffered bytes make it fail with ErrBuffered.
func (s *Stream) SysSeek(offset int64, whence int) (int64, error) {
	if err := s.ensureOpen(); err != nil {
		return 0, err
	}
	if s.buf.writeSynced() {
		if !s.buf.empty() {
			return 0, ErrBuffered
		}
	} else {
		zlog.Infof("sysseek on fd=%d with %d buffered bytes pending write", s.fd, s.buf.size())
	}
	return s.primSeek(offset, whence)
}

// Rewind seeks to the start of the stream and resets the line number.
func (s *Stream) Rewind() error {
	if _, err := s.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.lineno = 0
	return nil
}

// Pos returns the logical position: where the next buffered read or write
// happens.
func (s *Stream) Pos() (int64, error) {
	return s.Seek(0, io.SeekCurrent)
}

func (s *Stream) SetPos(offset int64) error {
	_, err := s.Seek(offset, io.SeekStart)
	return err
}
