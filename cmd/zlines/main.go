// Command zlines splits its input into records and writes them back out,
// optionally numbered and optionally piped through a filter command.
package main

import (
	"context"
	"os"

	"github.com/spf13/pflag"
	"github.com/zhihanii/taskpool"
	"github.com/zhihanii/zlog"

	"github.com/zhihanii/zio"
)

var (
	number     = pflag.BoolP("number", "n", false, "prefix each record with its line number")
	paragraph  = pflag.BoolP("paragraph", "p", false, "split records on blank lines")
	separator  = pflag.StringP("separator", "s", "\n", "record separator")
	filter     = pflag.StringP("exec", "e", "", "pipe records through this shell command")
	bufferSize = pflag.Int("buffer-size", 32*1024, "stream buffer size in bytes")
)

func main() {
	pflag.Parse()

	sep := zio.Sep(*separator)
	if *paragraph {
		sep = zio.ParagraphSeparator
	}
	opts := []zio.Option{zio.WithBufferSize(*bufferSize)}

	out, err := zio.NewStream(1, "w", opts...)
	if err != nil {
		zlog.Errorf("open stdout: %v", err)
		os.Exit(1)
	}

	status := 0
	inputs := pflag.Args()
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}
	for _, name := range inputs {
		if err = run(name, sep, out, opts); err != nil {
			zlog.Errorf("%s: %v", name, err)
			status = 1
		}
	}
	if err = out.Flush(); err != nil {
		zlog.Errorf("flush stdout: %v", err)
		status = 1
	}
	os.Exit(status)
}

func open(name string, opts []zio.Option) (*zio.Stream, error) {
	if name == "-" {
		return zio.NewStream(0, "r", opts...)
	}
	return zio.Open(name, "r", opts...)
}

func run(name string, sep zio.Separator, out *zio.Stream, opts []zio.Option) error {
	in, err := open(name, opts)
	if err != nil {
		return err
	}
	if name != "-" {
		defer in.Close()
	}
	if *filter == "" {
		return emit(in, sep, out)
	}

	p, err := zio.Popen(*filter, "r+", opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	fed := make(chan error, 1)
	taskpool.Submit(context.Background(), func() {
		err := in.Each(sep, func(line []byte) error {
			_, err := p.Write(line)
			return err
		})
		if cerr := p.CloseWrite(); err == nil {
			err = cerr
		}
		fed <- err
	})

	r, err := p.Reader()
	if err != nil {
		return err
	}
	if err = emit(r, sep, out); err != nil {
		return err
	}
	return <-fed
}

type recordReader interface {
	Gets(sep zio.Separator) ([]byte, error)
}

func emit(in recordReader, sep zio.Separator, out *zio.Stream) error {
	var n int
	for {
		line, err := in.Gets(sep)
		if err != nil {
			return err
		}
		if line == nil {
			return nil
		}
		n++
		if *number {
			if _, err = out.Printf("%6d\t", n); err != nil {
				return err
			}
		}
		if _, err = out.Write(line); err != nil {
			return err
		}
	}
}
