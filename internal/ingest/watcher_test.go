package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor reads paths until want shows up and returns everything seen.
func waitFor(t *testing.T, ch <-chan string, want string) []string {
	t.Helper()
	var seen []string
	deadline := time.After(5 * time.Second)
	for {
		select {
		case p, ok := <-ch:
			require.True(t, ok, "watcher stopped")
			seen = append(seen, p)
			if p == want {
				return seen
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s, saw %v", want, seen)
		}
	}
}

func TestWatchReportsNewPDFs(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paths, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, SkipHidden: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.pdf"), []byte("x"), 0o644))
	target := filepath.Join(root, "trial.pdf")
	require.NoError(t, os.WriteFile(target, []byte("%PDF-1.7"), 0o644))
	for _, p := range waitFor(t, paths, target) {
		assert.Equal(t, target, p)
	}

	sub := filepath.Join(root, "later")
	require.NoError(t, os.Mkdir(sub, 0o755))
	nested := filepath.Join(sub, "nested.pdf")
	require.NoError(t, os.WriteFile(nested, []byte("%PDF-1.7"), 0o644))
	for _, p := range waitFor(t, paths, nested) {
		assert.Contains(t, []string{target, nested}, p)
	}

	cancel()
	for range paths {
	}
}

func TestWatchRequiresRoots(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
