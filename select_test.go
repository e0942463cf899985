package zio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhihanii/zio"
)

func openPipe(t *testing.T, opts ...zio.Option) (r, w *zio.Stream) {
	t.Helper()

	r, w, err := zio.Pipe(opts...)
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	t.Cleanup(func() {
		_ = r.Close()
		_ = w.Close()
	})
	return r, w
}

func Test_Select_Returns_Readable_Pipe_When_Data_Is_Waiting(t *testing.T) {
	t.Parallel()

	r, w := openPipe(t)
	idle, _ := openPipe(t)
	if _, err := w.WriteString("x"); err != nil {
		t.Fatal(err)
	}

	res, err := zio.Select(context.Background(), []*zio.Stream{idle, r}, nil, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || len(res.Readable) != 1 || res.Readable[0] != r {
		t.Fatalf("got %+v, want only the pipe with data", res)
	}
}

func Test_Select_Returns_Nil_When_Timeout_Elapses(t *testing.T) {
	t.Parallel()

	r, _ := openPipe(t)

	start := time.Now()
	res, err := zio.Select(context.Background(), []*zio.Stream{r}, nil, nil, 30*time.Millisecond)
	if err != nil || res != nil {
		t.Fatalf("got %+v, %v; want nil, nil", res, err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("returned after %s", elapsed)
	}
}

func Test_Select_Returns_Writable_Pipe_When_It_Has_Room(t *testing.T) {
	t.Parallel()

	r, w := openPipe(t)

	res, err := zio.Select(context.Background(), []*zio.Stream{r}, []*zio.Stream{w}, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || len(res.Writable) != 1 || res.Writable[0] != w || len(res.Readable) != 0 {
		t.Fatalf("got %+v, want only the write end", res)
	}
}

func Test_Select_Counts_Buffered_Data_As_Readable(t *testing.T) {
	t.Parallel()

	r, w := openPipe(t)
	if _, err := w.WriteString("a\nb\n"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Gets(zio.LineSeparator); err != nil {
		t.Fatal(err)
	}

	// the descriptor itself is drained; only the buffer holds "b\n"
	res, err := zio.Select(context.Background(), []*zio.Stream{r}, nil, nil, 30*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || len(res.Readable) != 1 {
		t.Fatalf("got %+v, want the buffered stream", res)
	}
}

func Test_Select_Returns_Context_Error_When_Cancelled(t *testing.T) {
	t.Parallel()

	r, _ := openPipe(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := zio.Select(ctx, []*zio.Stream{r}, nil, nil, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func Test_Select_Rejects_Error_Set_And_Negative_Timeout(t *testing.T) {
	t.Parallel()

	r, _ := openPipe(t)

	if _, err := zio.Select(context.Background(), nil, nil, []*zio.Stream{r}, 0); !errors.Is(err, zio.ErrUnsupported) {
		t.Fatalf("error set: %v", err)
	}
	if _, err := zio.Select(context.Background(), []*zio.Stream{r}, nil, nil, -time.Second); !errors.Is(err, zio.ErrInvalidTimeout) {
		t.Fatalf("negative timeout: %v", err)
	}
}

func Test_Select_Rejects_Closed_And_Wrong_Direction_Streams(t *testing.T) {
	t.Parallel()

	r, w := openPipe(t)

	if _, err := zio.Select(context.Background(), []*zio.Stream{w}, nil, nil, 0); !errors.Is(err, zio.ErrNotReadable) {
		t.Fatalf("write end in read set: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := zio.Select(context.Background(), []*zio.Stream{r}, nil, nil, 0); !errors.Is(err, zio.ErrClosed) {
		t.Fatalf("closed stream: %v", err)
	}
}

func Test_Select_Can_Be_Called_Again_After_Returning(t *testing.T) {
	t.Parallel()

	r, w := openPipe(t)

	for i := 0; i < 3; i++ {
		if _, err := w.WriteString("x"); err != nil {
			t.Fatal(err)
		}
		res, err := zio.Select(context.Background(), []*zio.Stream{r}, nil, nil, time.Second)
		if err != nil || res == nil || len(res.Readable) != 1 {
			t.Fatalf("round %d: got %+v, %v", i, res, err)
		}
		if _, err = r.ReadPartial(1); err != nil {
			t.Fatal(err)
		}
	}
}

func Test_Select_Reports_Every_Pipe_That_Is_Ready_Together(t *testing.T) {
	t.Parallel()

	r1, w1 := openPipe(t)
	r2, w2 := openPipe(t)
	idle, _ := openPipe(t)
	for _, w := range []*zio.Stream{w1, w2} {
		if _, err := w.WriteString("x"); err != nil {
			t.Fatal(err)
		}
	}

	res, err := zio.Select(context.Background(), []*zio.Stream{r1, idle, r2}, nil, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || len(res.Readable) != 2 {
		t.Fatalf("got %+v, want both pipes with data", res)
	}
	got := map[*zio.Stream]bool{res.Readable[0]: true, res.Readable[1]: true}
	if !got[r1] || !got[r2] || got[idle] {
		t.Fatalf("readable set %v, want r1 and r2", res.Readable)
	}
}

func Test_Select_Reports_Readable_And_Writable_Sets_Together(t *testing.T) {
	t.Parallel()

	r, w := openPipe(t)
	_, w2 := openPipe(t)
	if _, err := w.WriteString("x"); err != nil {
		t.Fatal(err)
	}

	res, err := zio.Select(context.Background(), []*zio.Stream{r}, []*zio.Stream{w2}, nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || len(res.Readable) != 1 || len(res.Writable) != 1 {
		t.Fatalf("got %+v, want one readable and one writable", res)
	}
}
