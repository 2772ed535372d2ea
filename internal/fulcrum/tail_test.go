package fulcrum

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fulcrum.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestReadTail_missing(t *testing.T) {
	lines, ok := ReadTail(filepath.Join(t.TempDir(), "nope.log"), 10)
	assert.False(t, ok)
	assert.Nil(t, lines)

	_, ok = ReadTail("", 10)
	assert.False(t, ok)
}

func TestReadTail_directory(t *testing.T) {
	_, ok := ReadTail(t.TempDir(), 10)
	assert.False(t, ok)
}

func TestReadTail(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		maxLines int
		want     []string
	}{{
		name:     "fewer lines than max",
		content:  "a\nb\nc\n",
		maxLines: 10,
		want:     []string{"a", "b", "c"},
	}, {
		name:     "exactly max",
		content:  "a\nb\nc\n",
		maxLines: 3,
		want:     []string{"a", "b", "c"},
	}, {
		name:     "wraps",
		content:  "a\nb\nc\nd\ne\n",
		maxLines: 2,
		want:     []string{"d", "e"},
	}, {
		name:     "partial final line",
		content:  "a\nb\nProcessed hei",
		maxLines: 2,
		want:     []string{"b", "Processed hei"},
	}, {
		name:     "crlf",
		content:  "a\r\nb\r\n",
		maxLines: 5,
		want:     []string{"a", "b"},
	}, {
		name:     "invalid utf8 dropped",
		content:  "ok\xff\xfe line\n",
		maxLines: 5,
		want:     []string{"ok line"},
	}, {
		name:     "empty file",
		content:  "",
		maxLines: 5,
		want:     []string{},
	}, {
		name:     "zero max",
		content:  "a\n",
		maxLines: 0,
		want:     nil,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, ok := ReadTail(writeLog(t, tt.content), tt.maxLines)
			require.True(t, ok)
			if len(tt.want) == 0 {
				assert.Empty(t, lines)
				return
			}
			assert.Equal(t, tt.want, lines)
		})
	}
}

func TestReadTail_longLines(t *testing.T) {
	long := strings.Repeat("x", 1<<20)
	lines, ok := ReadTail(writeLog(t, "first\n"+long+"\nlast\n"), 2)
	require.True(t, ok)
	require.Len(t, lines, 2)
	assert.Len(t, lines[0], 1<<20)
	assert.Equal(t, "last", lines[1])
}

func TestReadTail_largeFile(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 10000; i++ {
		fmt.Fprintf(&sb, "line %d\n", i)
	}
	lines, ok := ReadTail(writeLog(t, sb.String()), 3)
	require.True(t, ok)
	assert.Equal(t, []string{"line 9997", "line 9998", "line 9999"}, lines)
}

func TestReadTail_hugeMax(t *testing.T) {
	for _, max := range []int{50_000_000, math.MaxInt} {
		lines, ok := ReadTail(writeLog(t, "only line\n"), max)
		require.True(t, ok)
		assert.Equal(t, []string{"only line"}, lines)
	}
}

func TestRingBuffer(t *testing.T) {
	rb := newRingBuffer(3)
	assert.Empty(t, rb.slice())
	for i := 0; i < 7; i++ {
		rb.push(fmt.Sprint(i))
		if i == 1 {
			assert.Equal(t, []string{"0", "1"}, rb.slice())
		}
	}
	assert.Equal(t, []string{"4", "5", "6"}, rb.slice())
	assert.Len(t, rb.lines, 3)
}
