package classifier

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTable(t *testing.T, path, category string) {
	t.Helper()
	content := `categories:
  - category: ` + category + `
    phrases:
      - text: "magic phrase"
        weight: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestTableWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intents.yaml")
	writeTable(t, path, "before")

	table, err := LoadTable(path)
	require.NoError(t, err)
	c := New(table, 0)
	require.Equal(t, "before", c.Classify("magic phrase", nil).Top().Category)

	w, err := NewTableWatcher(path, c)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	writeTable(t, path, "after")

	assert.Eventually(t, func() bool {
		return c.Classify("magic phrase", nil).Top().Category == "after"
	}, 5*time.Second, 50*time.Millisecond, "watcher should pick up the rewritten table")
}

func TestTableWatcher_BadFileKeepsPreviousTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intents.yaml")
	writeTable(t, path, "stable")

	table, err := LoadTable(path)
	require.NoError(t, err)
	c := New(table, 0)

	w, err := NewTableWatcher(path, c)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("categories: [broken"), 0644))
	time.Sleep(time.Second)

	assert.Equal(t, "stable", c.Classify("magic phrase", nil).Top().Category)
}

func TestTableWatcher_StopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "intents.yaml")
	writeTable(t, path, "x")

	w, err := NewTableWatcher(path, New(nil, 0))
	require.NoError(t, err)
	require.NoError(t, w.Start())
	require.NoError(t, w.Start(), "starting twice is a no-op")

	w.Stop()
	w.Stop()
}
