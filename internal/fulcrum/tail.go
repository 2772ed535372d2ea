package fulcrum

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/maxmcd/nodehome/internal/logger"
)

// ringBuffer keeps the last max strings written to it. It only grows as
// lines arrive, so a large max costs nothing on a short file.
type ringBuffer struct {
	lines []string
	max   int
	next  int
}

func newRingBuffer(max int) *ringBuffer {
	return &ringBuffer{max: max}
}

func (rb *ringBuffer) push(line string) {
	if len(rb.lines) < rb.max {
		rb.lines = append(rb.lines, line)
		return
	}
	rb.lines[rb.next] = line
	rb.next++
	if rb.next == rb.max {
		rb.next = 0
	}
}

// slice returns the buffered lines oldest first.
func (rb *ringBuffer) slice() []string {
	out := make([]string, 0, len(rb.lines))
	out = append(out, rb.lines[rb.next:]...)
	return append(out, rb.lines[:rb.next]...)
}

// ReadTail returns the last maxLines lines of the file at path. The second
// return value is false when the file doesn't exist or can't be read, callers
// should treat that the same as an indexer that hasn't written anything yet.
func ReadTail(path string, maxLines int) ([]string, bool) {
	if path == "" {
		return nil, false
	}
	f, err := os.Open(path)
	if err != nil {
		logger.Debugw("log tail unavailable", "path", path, "err", err)
		return nil, false
	}
	defer f.Close()
	lines, err := tailLines(f, maxLines)
	if err != nil {
		logger.Debugw("log tail read failed", "path", path, "err", err)
		return nil, false
	}
	return lines, true
}

func tailLines(r io.Reader, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	rb := newRingBuffer(maxLines)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			rb.push(strings.ToValidUTF8(line, ""))
		}
		if err == io.EOF {
			return rb.slice(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
