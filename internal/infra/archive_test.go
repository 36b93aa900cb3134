package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemArchiveWritesJSONL(t *testing.T) {
	arch, err := NewFilesystemArchive(t.TempDir())
	require.NoError(t, err)

	sweepAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	rows := [][]byte{[]byte(`{"id":1}`), []byte(`{"id":2}`)}

	ref, err := arch.WriteArchive(context.Background(), "download_activity", sweepAt, rows)
	require.NoError(t, err)
	assert.Equal(t, "download_activity/20260314T093000Z.jsonl", ref)

	data, err := os.ReadFile(filepath.Join(arch.baseDir, ref))
	require.NoError(t, err)
	assert.Equal(t, "{\"id\":1}\n{\"id\":2}\n", string(data))
}

func TestFilesystemArchiveHonoursCancellation(t *testing.T) {
	arch, err := NewFilesystemArchive(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = arch.WriteArchive(ctx, "download_activity", time.Now(), [][]byte{[]byte(`{}`)})
	assert.Error(t, err)
}
