package zio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/bytedance/gopkg/lang/mcache"
)

// noSkip disables leading-byte discarding in fillFrom.
const noSkip = -1

type bufferState int8

const (
	bufferIdle bufferState = iota
	bufferReading
	bufferWritePending
)

// bufferIO is the set of primitives a buffer drives. Stream implements it.
type bufferIO interface {
	awaitReadable() error
	primRead(p []byte) (int, error)
	primWrite(p []byte) (int, error)
	primSeek(offset int64, whence int) (int64, error)
	setEOF()
}

// buffer is a sliding window [start, used) over a fixed storage array,
// shared by the read and the write direction of one Stream.
//
// As a read buffer, fillFrom appends at used, never beyond total. As a
// write buffer, unshift appends at used and emptyTo drains [start, used).
type buffer struct {
	storage []byte
	start   int
	used    int
	eof     bool
	state   bufferState
}

func newBuffer(size int) *buffer {
	return &buffer{storage: mcache.Malloc(size)}
}

func (b *buffer) free() {
	if b.storage != nil {
		mcache.Free(b.storage)
		b.storage = nil
	}
	b.start, b.used = 0, 0
}

func (b *buffer) total() int { return len(b.storage) }
func (b *buffer) size() int { return b.used - b.start }
func (b *buffer) unused() int { return len(b.storage) - b.used }
func (b *buffer) empty() bool { return b.start == b.used }
func (b *buffer) full() bool { return b.used == len(b.storage) }
func (b *buffer) exhausted() bool { return b.eof && b.empty() }

func (b *buffer) writeSynced() bool {
	return b.state != bufferWritePending
}

func (b *buffer) reset() {
	b.start, b.used = 0, 0
	b.eof = false
	b.state = bufferIdle
}

// fillFrom makes data available. Pending writes are flushed first and
// leading skip bytes dropped; if bytes remain no I/O happens. Otherwise the
// caller suspends until src is readable and a read is issued, repeated
// while reads yield nothing but skip bytes.
func (b *buffer) fillFrom(src bufferIO, skip int) (int, error) {
	if _, err := b.emptyTo(src); err != nil {
		return 0, err
	}
	for {
		if skip != noSkip {
			b.discard(byte(skip))
		}
		if !b.empty() {
			return b.size(), nil
		}

		b.reset()
		if err := src.awaitReadable(); err != nil {
			return 0, err
		}
		n, err := src.primRead(b.storage[b.used:])
		if err != nil {
			return 0, err
		}
		b.used += n
		b.state = bufferReading
		if b.used == 0 {
			src.setEOF()
			b.eof = true
			return 0, nil
		}
	}
}

// emptyTo writes every pending byte to sink.
func (b *buffer) emptyTo(sink bufferIO) (int, error) {
	if b.writeSynced() || b.empty() {
		return 0, nil
	}
	size := b.size()
	for b.start < b.used {
		n, err := sink.primWrite(b.storage[b.start:b.used])
		if err != nil {
			return size - b.size(), err
		}
		b.start += n
	}
	b.reset()
	return size, nil
}

// discard advances start past any run of skip bytes.
func (b *buffer) discard(skip byte) {
	for b.start < b.used && b.storage[b.start] == skip {
		b.start++
	}
}

// find returns the number of bytes from start through the end of the
// first occurrence of pattern.
func (b *buffer) find(pattern []byte) (int, bool) {
	i := bytes.Index(b.storage[b.start:b.used], pattern)
	if i < 0 {
		return 0, false
	}
	return i + len(pattern), true
}

// findAfter is find for a record that already holds carry: it also matches
// a pattern that starts in the tail of carry and ends inside the window.
// The count returned covers window bytes only.
func (b *buffer) findAfter(carry, pattern []byte) (int, bool) {
	if k := len(pattern) - 1; k > 0 && len(carry) > 0 {
		if len(carry) > k {
			carry = carry[len(carry)-k:]
		}
		head := b.storage[b.start:b.used]
		if len(head) > k {
			head = head[:k]
		}
		joined := make([]byte, 0, len(carry)+len(head))
		joined = append(append(joined, carry...), head...)
		if i := bytes.Index(joined, pattern); i >= 0 {
			return i + len(pattern) - len(carry), true
		}
	}
	return b.find(pattern)
}

// shift removes up to count bytes from the front of the window; a negative
// count takes everything.
func (b *buffer) shift(count int) []byte {
	n := b.size()
	if count >= 0 && count < n {
		n = count
	}
	p := make([]byte, n)
	copy(p, b.storage[b.start:b.start+n])
	b.start += n
	return p
}

// unshift appends write-pending bytes and returns how many fit.
func (b *buffer) unshift(p []byte) int {
	n := copy(b.storage[b.used:], p)
	if n > 0 {
		b.used += n
		b.state = bufferWritePending
	}
	return n
}

// unseek moves the descriptor back over bytes that were read ahead but
// not consumed, so the OS position matches the logical one. It does
// nothing while writes are pending.
func (b *buffer) unseek(sink bufferIO) error {
	if !b.writeSynced() {
		return nil
	}
	if !b.empty() {
		if _, err := sink.primSeek(int64(b.start-b.used), io.SeekCurrent); err != nil {
			return err
		}
	}
	b.reset()
	return nil
}

func (b *buffer) String() string {
	return fmt.Sprintf("buffer{total=%d start=%d used=%d eof=%t state=%d}",
		b.total(), b.start, b.used, b.eof, b.state)
}
