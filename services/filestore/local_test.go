package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/campus/core"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	conf := core.NewTestConfig()
	conf.UploadDir = t.TempDir()

	store, err := NewLocalStore(conf)
	require.NoError(t, err)

	url, err := store.Save(ctx, "a1/u1/essay.pdf", strings.NewReader("content"))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/a1/u1/essay.pdf", url)

	data, err := os.ReadFile(filepath.Join(conf.UploadDir, "a1", "u1", "essay.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	require.NoError(t, store.Delete(ctx, url))
	_, err = os.Stat(filepath.Join(conf.UploadDir, "a1", "u1", "essay.pdf"))
	assert.True(t, os.IsNotExist(err))

	// deleting twice is fine
	assert.NoError(t, store.Delete(ctx, url))
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	conf := core.NewTestConfig()
	conf.UploadDir = t.TempDir()
	store, err := NewLocalStore(conf)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "../outside.txt", strings.NewReader("x"))
	assert.Error(t, err)
}
