package human

import (
	"bufio"
	"context"
	"io"
	"sync"
)

// LineReader reads newline-terminated lines in the background so callers can
// stop waiting when their context ends. A line read while nobody is waiting
// is held for the next ReadLine, so cancelling never drops input.
type LineReader struct {
	r     *bufio.Reader
	once  sync.Once
	lines chan string
	err   error
}

// NewLineReader creates a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReader(r), lines: make(chan string)}
}

// ReadLine returns the next line including its trailing newline, if any. A
// final line without a newline is returned before the read error. The read
// error (io.EOF at end of input) is returned on every call after that.
func (lr *LineReader) ReadLine(ctx context.Context) (string, error) {
	lr.once.Do(func() { go lr.pump() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lr.lines:
		if !ok {
			return "", lr.err
		}
		return line, nil
	}
}

func (lr *LineReader) pump() {
	for {
		line, err := lr.r.ReadString('\n')
		if line != "" {
			lr.lines <- line
		}
		if err != nil {
			lr.err = err
			close(lr.lines)
			return
		}
	}
}
