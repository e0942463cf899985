package zio_test

import (
	"errors"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/zhihanii/zio"
)

func Test_ParseMode_Maps_Mode_Strings_To_Open_Flags(t *testing.T) {
	t.Parallel()

	cases := []struct {
		mode string
		want int
	}{
		{"r", unix.O_RDONLY},
		{"rb", unix.O_RDONLY},
		{"r+", unix.O_RDWR},
		{"rb+", unix.O_RDWR},
		{"r+b", unix.O_RDWR},
		{"w", unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC},
		{"w+", unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC},
		{"a", unix.O_WRONLY | unix.O_CREAT | unix.O_APPEND},
		{"a+b", unix.O_RDWR | unix.O_CREAT | unix.O_APPEND},
	}
	for _, tc := range cases {
		got, err := zio.ParseMode(tc.mode)
		if err != nil {
			t.Fatalf("ParseMode(%q): %v", tc.mode, err)
		}
		if got != tc.want {
			t.Fatalf("ParseMode(%q) = %#x, want %#x", tc.mode, got, tc.want)
		}
	}
}

func Test_ParseMode_Rejects_Malformed_Modes(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{"", "x", "rw", "r+x", "r+b+", "+", "r++", "rbb", "w++", "abb"} {
		if _, err := zio.ParseMode(mode); !errors.Is(err, zio.ErrInvalidMode) {
			t.Fatalf("ParseMode(%q) err = %v, want ErrInvalidMode", mode, err)
		}
	}
}

func Test_Access_String_Matches_Mode_Letters(t *testing.T) {
	t.Parallel()

	for access, want := range map[zio.Access]string{
		zio.ReadOnly:  "r",
		zio.WriteOnly: "w",
		zio.ReadWrite: "r+",
	} {
		if got := access.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", access, got, want)
		}
	}
}
