package sink

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdoutSinkFormatsHeaderAndSortedLinks(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)

	require.NoError(t, s.Emit("https://monzo.com/", []string{"https://monzo.com/z", "https://monzo.com/a"}))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "https://monzo.com/")
	assert.Contains(t, lines[0], "2 links")
	assert.Contains(t, lines[1], "https://monzo.com/a")
	assert.Contains(t, lines[2], "https://monzo.com/z")
}

func TestStdoutSinkDoesNotInterleaveConcurrentEmits(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Emit("https://monzo.com/page", []string{"https://monzo.com/a", "https://monzo.com/b"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, n*3, "each emit writes exactly 3 lines with no interleaving corruption")
}

func TestJSONLSinkWritesOneRecordPerLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	s := NewJSONLSink(&buf)

	require.NoError(t, s.Emit("https://monzo.com/", []string{"https://monzo.com/b", "https://monzo.com/a"}))
	require.NoError(t, s.Emit("https://monzo.com/careers", nil))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var first Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "https://monzo.com/", first.Page)
	assert.Equal(t, []string{"https://monzo.com/a", "https://monzo.com/b"}, first.Links)
}
