package hyperspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hserrors "github.com/hyperspacedb/hyperspace/pkg/hyperspace/errors"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/a/b", NormalizeName("/a/b"))
	assert.Equal(t, "/a/b", NormalizeName("a/b"))
	assert.Equal(t, "/a/b", NormalizeName("/a/b/"))
	assert.Equal(t, "/", NormalizeName("/"))
}

func TestSplitParent(t *testing.T) {
	t.Parallel()

	parent, child, ok := splitParent("/a/b/c")
	require.True(t, ok)
	assert.Equal(t, "/a/b", parent)
	assert.Equal(t, "c", child)

	parent, child, ok = splitParent("/a")
	require.True(t, ok)
	assert.Equal(t, "/", parent)
	assert.Equal(t, "a", child)

	_, _, ok = splitParent("/")
	assert.False(t, ok)
}

func TestValidateName(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateName("/a/b"))
	assert.NoError(t, ValidateName("/"))

	for _, bad := range []string{"", "relative", "/a/b/", "/a//b", "/a/./b", "/a/../b"} {
		err := ValidateName(bad)
		assert.True(t, hserrors.IsCode(err, hserrors.ErrBadPathname), "name %q", bad)
	}
}

func TestStoreGenerationIncrementsAcrossOpens(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s1, err := OpenStore(dir)
	require.NoError(t, err)
	first := s1.Generation()
	assert.Equal(t, uint32(1), first)
	require.NoError(t, s1.Close())

	s2, err := OpenStore(dir)
	require.NoError(t, err)
	defer s2.Close()
	assert.Equal(t, first+1, s2.Generation())
}

func TestStoreSingleMasterGuard(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s1, err := OpenStore(dir)
	require.NoError(t, err)
	defer s1.Close()

	_, err = OpenStore(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked by another process")
}

func TestStoreMkdirErrnoMapping(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := OpenStore(dir)
	require.NoError(t, err)
	defer s.Close()

	// Missing parent component maps to BadPathname.
	err = s.Mkdir("/missing/child")
	assert.True(t, hserrors.IsCode(err, hserrors.ErrBadPathname))

	require.NoError(t, s.Mkdir("/dir"))
	err = s.Mkdir("/dir")
	assert.True(t, hserrors.IsCode(err, hserrors.ErrFileExists))
}

func TestStoreRemove(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := OpenStore(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Mkdir("/d"))
	existed, isDir, err := s.Stat("/d")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.True(t, isDir)

	require.NoError(t, s.Remove("/d"))
	existed, _, err = s.Stat("/d")
	require.NoError(t, err)
	assert.False(t, existed)

	err = s.Remove("/d")
	assert.True(t, hserrors.IsCode(err, hserrors.ErrBadPathname))
}

func TestStoreXattrs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := OpenStore(dir)
	require.NoError(t, err)
	defer s.Close()

	fd, err := s.OpenEntry("/f", openRDWR|openCREAT)
	require.NoError(t, err)
	defer s.CloseEntry(fd)

	_, found, err := s.ReadLockGeneration("/f", fd)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.WriteLockGeneration("/f", fd, 7))
	gen, found, err := s.ReadLockGeneration("/f", fd)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(7), gen)

	_, err = s.GetAttr("/f", fd, "color")
	assert.True(t, hserrors.IsCode(err, hserrors.ErrAttrNotFound))

	require.NoError(t, s.SetAttr("/f", fd, "color", []byte("blue")))
	val, err := s.GetAttr("/f", fd, "color")
	require.NoError(t, err)
	assert.Equal(t, []byte("blue"), val)

	require.NoError(t, s.DelAttr("/f", fd, "color"))
	_, err = s.GetAttr("/f", fd, "color")
	assert.True(t, hserrors.IsCode(err, hserrors.ErrAttrNotFound))

	err = s.DelAttr("/f", fd, "color")
	assert.True(t, hserrors.IsCode(err, hserrors.ErrAttrNotFound))
}
