package archive

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeArchiver struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newFakeArchiver() *fakeArchiver {
	return &fakeArchiver{objects: make(map[string][]byte)}
}

func (f *fakeArchiver) Put(ctx context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failOn {
		return require.AnError
	}
	f.objects[key] = data
	return nil
}

func TestSyncDir_UploadsEveryFileWithPrefix(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "role"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "role", "allow.jsonl"), []byte(`{"decision":"allow"}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "org.jsonl"), []byte(`{"decision":"deny"}`), 0o600))

	archiver := newFakeArchiver()
	count, err := SyncDir(context.Background(), archiver, root, "2026-08-01")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Contains(t, archiver.objects, "2026-08-01/role/allow.jsonl")
	require.Contains(t, archiver.objects, "2026-08-01/org.jsonl")
}

func TestSyncDir_ReportsFailureButContinues(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.jsonl"), []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.jsonl"), []byte("b"), 0o600))

	archiver := newFakeArchiver()
	archiver.failOn = "snap/a.jsonl"

	count, err := SyncDir(context.Background(), archiver, root, "snap")
	require.Error(t, err)
	require.Equal(t, 1, count)
	require.Contains(t, archiver.objects, "snap/b.jsonl")
}
