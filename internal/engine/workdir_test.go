package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWorkDir_LinksDataFiles(t *testing.T) {
	root := t.TempDir()
	data := t.TempDir()
	writeFile(t, data, "rfdata1", "field map")
	writeFile(t, data, "partcl.data", "particles")
	require.NoError(t, os.Mkdir(filepath.Join(data, "subdir"), 0o755))

	dir, err := createWorkDir(root, data)
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(dir))
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "vacc-"))

	for _, name := range []string{"rfdata1", "partcl.data"} {
		info, err := os.Lstat(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, os.ModeSymlink, info.Mode()&os.ModeSymlink, name)
	}
	content, err := os.ReadFile(filepath.Join(dir, "rfdata1"))
	require.NoError(t, err)
	assert.Equal(t, "field map", string(content))

	_, err = os.Lstat(filepath.Join(dir, "subdir"))
	assert.True(t, os.IsNotExist(err), "directories are not linked")
}

func TestCreateWorkDir_NoDataDir(t *testing.T) {
	dir, err := createWorkDir(t.TempDir(), "")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateWorkDir_MissingRoot(t *testing.T) {
	_, err := createWorkDir(filepath.Join(t.TempDir(), "absent"), "")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestCreateWorkDir_RootIsFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file", "")
	_, err := createWorkDir(filepath.Join(root, "file"), "")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestCreateWorkDir_MissingDataDir(t *testing.T) {
	root := t.TempDir()
	_, err := createWorkDir(root, filepath.Join(root, "absent"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	entries, _ := os.ReadDir(root)
	assert.Empty(t, entries, "no working directory is left behind")
}
