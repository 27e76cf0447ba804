package msglog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := New(filepath.Join(t.TempDir(), "messages.log"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordFormat(t *testing.T) {
	l := newTestLog(t)
	l.Record("medic-7", "base", "supplies low")
	l.Record("base", "", "copy that")

	lines, err := l.Tail(10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "[MSG] [FROM:medic-7] -> [TO:base]: supplies low", lines[0])
	assert.Equal(t, "[MSG] [FROM:base] -> [TO:ALL]: copy that", lines[1])
}

func TestTailBoundsResult(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 5; i++ {
		l.Record("a", "b", "line")
	}

	lines, err := l.Tail(2)
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	lines, err = l.Tail(0)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestTailMissingFile(t *testing.T) {
	l, err := New(filepath.Join(t.TempDir(), "never-written.log"))
	require.NoError(t, err)
	defer l.Close()

	lines, err := l.Tail(10)
	require.NoError(t, err)
	assert.Empty(t, lines)
}
