package zio

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"
)

// fakeIO feeds a buffer from canned chunks, one chunk (or part of one) per
// read, and records writes and seeks.
type fakeIO struct {
	chunks  [][]byte
	written []byte
	seeks   []int64
	waits   int
	waitErr error
	eof     bool
}

func (f *fakeIO) awaitReadable() error {
	f.waits++
	return f.waitErr
}

func (f *fakeIO) primRead(p []byte) (int, error) {
	if len(f.chunks) == 0 {
		return 0, nil
	}
	n := copy(p, f.chunks[0])
	f.chunks[0] = f.chunks[0][n:]
	if len(f.chunks[0]) == 0 {
		f.chunks = f.chunks[1:]
	}
	return n, nil
}

func (f *fakeIO) primWrite(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeIO) primSeek(offset int64, whence int) (int64, error) {
	if whence != io.SeekCurrent {
		return 0, errors.New("unexpected whence")
	}
	f.seeks = append(f.seeks, offset)
	return 0, nil
}

func (f *fakeIO) setEOF() {
	f.eof = true
}

func checkInvariant(t *testing.T, b *buffer) {
	t.Helper()
	if b.start < 0 || b.start > b.used || b.used > b.total() {
		t.Fatalf("invariant broken: %s", b)
	}
}

func Test_Buffer_Invariant_Holds_When_Fills_And_Shifts_Interleave(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	data := make([]byte, 4096)
	rng.Read(data)

	var chunks [][]byte
	for rest := data; len(rest) > 0; {
		n := 1 + rng.Intn(40)
		if n > len(rest) {
			n = len(rest)
		}
		chunks = append(chunks, rest[:n])
		rest = rest[n:]
	}
	src := &fakeIO{chunks: chunks}
	b := newBuffer(16)
	defer b.free()

	var got []byte
	for !b.exhausted() {
		if _, err := b.fillFrom(src, noSkip); err != nil {
			t.Fatalf("fillFrom: %v", err)
		}
		checkInvariant(t, b)
		got = append(got, b.shift(rng.Intn(8)-1)...)
		checkInvariant(t, b)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("reassembled %d bytes, want %d", len(got), len(data))
	}
	if !src.eof {
		t.Fatal("source was not told about eof")
	}
}

func Test_Buffer_Discard_Stops_At_First_Non_Skip_Byte(t *testing.T) {
	t.Parallel()

	b := newBuffer(32)
	defer b.free()
	src := &fakeIO{chunks: [][]byte{[]byte("\n\n\nAbc")}}
	if _, err := b.fillFrom(src, noSkip); err != nil {
		t.Fatal(err)
	}

	b.discard('\n')

	if b.storage[b.start] != 'A' {
		t.Fatalf("start at %q, want 'A'", b.storage[b.start])
	}
	if b.start != 3 || b.size() != 3 {
		t.Fatalf("start=%d size=%d, want 3 and 3", b.start, b.size())
	}
}

func Test_Buffer_Reports_Size_And_Capacity_When_Partially_Filled(t *testing.T) {
	t.Parallel()

	b := newBuffer(64)
	defer b.free()
	src := &fakeIO{chunks: [][]byte{bytes.Repeat([]byte("x"), 10)}}
	n, err := b.fillFrom(src, noSkip)
	if err != nil {
		t.Fatal(err)
	}

	if n != 10 || b.size() != 10 {
		t.Fatalf("size=%d (returned %d), want 10", b.size(), n)
	}
	if b.full() {
		t.Fatal("buffer reports full")
	}
	if b.unused() != b.total()-10 {
		t.Fatalf("unused=%d, want %d", b.unused(), b.total()-10)
	}
}

func Test_Buffer_FillFrom_Does_No_IO_When_Data_Remains(t *testing.T) {
	t.Parallel()

	b := newBuffer(8)
	defer b.free()
	src := &fakeIO{chunks: [][]byte{[]byte("abcd"), []byte("efgh")}}
	if _, err := b.fillFrom(src, noSkip); err != nil {
		t.Fatal(err)
	}
	b.shift(2)

	if _, err := b.fillFrom(src, noSkip); err != nil {
		t.Fatal(err)
	}
	if src.waits != 1 {
		t.Fatalf("waited %d times, want 1", src.waits)
	}
	if got := string(b.shift(-1)); got != "cd" {
		t.Fatalf("got %q, want %q", got, "cd")
	}
}

func Test_Buffer_FillFrom_Returns_Wait_Error(t *testing.T) {
	t.Parallel()

	b := newBuffer(8)
	defer b.free()
	sentinel := errors.New("poll failed")
	src := &fakeIO{chunks: [][]byte{[]byte("abc")}, waitErr: sentinel}

	if _, err := b.fillFrom(src, noSkip); !errors.Is(err, sentinel) {
		t.Fatalf("got %v, want %v", err, sentinel)
	}
	if len(src.chunks) != 1 {
		t.Fatal("read happened after a failed wait")
	}
}

func Test_Buffer_FillFrom_Marks_Exhausted_When_Source_Is_Empty(t *testing.T) {
	t.Parallel()

	b := newBuffer(8)
	defer b.free()
	src := &fakeIO{}

	n, err := b.fillFrom(src, noSkip)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 || !b.exhausted() || !src.eof {
		t.Fatalf("n=%d exhausted=%t srcEOF=%t", n, b.exhausted(), src.eof)
	}
}

func Test_Buffer_Find_Counts_Through_End_Of_Match(t *testing.T) {
	t.Parallel()

	b := newBuffer(32)
	defer b.free()
	src := &fakeIO{chunks: [][]byte{[]byte("one\r\ntwo")}}
	if _, err := b.fillFrom(src, noSkip); err != nil {
		t.Fatal(err)
	}

	if n, ok := b.find([]byte("\r\n")); !ok || n != 5 {
		t.Fatalf("find = %d, %t; want 5, true", n, ok)
	}
	if _, ok := b.find([]byte("three")); ok {
		t.Fatal("found a pattern that is not there")
	}
	if b.start != 0 {
		t.Fatal("find moved start")
	}
}

func Test_Buffer_FindAfter_Matches_Across_Carry(t *testing.T) {
	t.Parallel()

	b := newBuffer(32)
	defer b.free()
	src := &fakeIO{chunks: [][]byte{[]byte("\nnext")}}
	if _, err := b.fillFrom(src, noSkip); err != nil {
		t.Fatal(err)
	}

	n, ok := b.findAfter([]byte("para\n"), []byte("\n\n"))
	if !ok || n != 1 {
		t.Fatalf("findAfter = %d, %t; want 1, true", n, ok)
	}
}

func Test_Buffer_EmptyTo_Flushes_Pending_Writes(t *testing.T) {
	t.Parallel()

	b := newBuffer(8)
	defer b.free()
	sink := &fakeIO{}

	if n := b.unshift([]byte("hello world")); n != 8 {
		t.Fatalf("unshift accepted %d, want 8", n)
	}
	if b.writeSynced() || !b.full() {
		t.Fatal("buffer should be full and write pending")
	}
	n, err := b.emptyTo(sink)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 || string(sink.written) != "hello wo" {
		t.Fatalf("flushed %d bytes %q", n, sink.written)
	}
	if !b.writeSynced() || !b.empty() || b.start != 0 {
		t.Fatalf("buffer not reset after flush: %s", b)
	}

	if n, _ = b.emptyTo(sink); n != 0 {
		t.Fatalf("second flush wrote %d bytes", n)
	}
}

func Test_Buffer_FillFrom_Flushes_Writes_Before_Reading(t *testing.T) {
	t.Parallel()

	b := newBuffer(8)
	defer b.free()
	rw := &fakeIO{chunks: [][]byte{[]byte("in")}}
	b.unshift([]byte("out"))

	if _, err := b.fillFrom(rw, noSkip); err != nil {
		t.Fatal(err)
	}
	if string(rw.written) != "out" {
		t.Fatalf("written %q, want %q", rw.written, "out")
	}
	if got := string(b.shift(-1)); got != "in" {
		t.Fatalf("read %q, want %q", got, "in")
	}
}

func Test_Buffer_Unseek_Gives_Back_Unread_Bytes(t *testing.T) {
	t.Parallel()

	b := newBuffer(16)
	defer b.free()
	src := &fakeIO{chunks: [][]byte{[]byte("0123456789")}}
	if _, err := b.fillFrom(src, noSkip); err != nil {
		t.Fatal(err)
	}
	b.shift(4)

	if err := b.unseek(src); err != nil {
		t.Fatal(err)
	}
	if len(src.seeks) != 1 || src.seeks[0] != -6 {
		t.Fatalf("seeks %v, want [-6]", src.seeks)
	}
	if !b.empty() || b.start != 0 || b.used != 0 {
		t.Fatalf("buffer not reset: %s", b)
	}
}

func Test_Buffer_Unseek_Does_Nothing_When_Writes_Pending(t *testing.T) {
	t.Parallel()

	b := newBuffer(16)
	defer b.free()
	sink := &fakeIO{}
	b.unshift([]byte("dirty"))

	if err := b.unseek(sink); err != nil {
		t.Fatal(err)
	}
	if len(sink.seeks) != 0 || b.size() != 5 {
		t.Fatalf("seeks=%v size=%d", sink.seeks, b.size())
	}
}

func Test_Buffer_FillFrom_Skips_Leading_Bytes(t *testing.T) {
	t.Parallel()

	b := newBuffer(16)
	defer b.free()
	src := &fakeIO{chunks: [][]byte{[]byte("\n\n"), []byte("\nrecord")}}

	if _, err := b.fillFrom(src, '\n'); err != nil {
		t.Fatal(err)
	}
	// the first chunk was all skip bytes, so a second read was needed
	if src.waits != 2 {
		t.Fatalf("waited %d times, want 2", src.waits)
	}
	if got := string(b.shift(-1)); got != "record" {
		t.Fatalf("got %q, want %q", got, "record")
	}
}
