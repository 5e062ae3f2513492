package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/tdl/ptr"
	"github.com/xeptore/tdl/tidal/fs"
	"github.com/xeptore/tdl/tidal/types"
)

func TestTempDir_Track(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := fs.TempDirFrom(filepath.Join(root, "tmp"))
	require.NoError(t, dir.Ensure())

	track := dir.Track("12345")
	assert.Equal(t, filepath.Join(root, "tmp", "12345.flac"), track.Path)
	assert.Equal(t, filepath.Join(root, "tmp", "12345.json"), track.InfoFile.Path)

	escaped := dir.Track("../x")
	assert.Equal(t, filepath.Join(root, "tmp"), filepath.Dir(escaped.Path))
	assert.Equal(t, "..%2Fx.flac", filepath.Base(escaped.Path))
}

func TestTrack_InfoFileAndRemove(t *testing.T) {
	t.Parallel()

	track := fs.TempDirFrom(t.TempDir()).Track("1")

	exists, err := track.Exists()
	require.NoError(t, err)
	assert.False(t, exists)

	md := types.TrackMetadata{Title: "Song", Artists: []string{"A"}, Album: "Record", TrackNumber: ptr.Of[uint16](2)}
	require.NoError(t, track.InfoFile.Write(md))
	require.NoError(t, os.WriteFile(track.Path, []byte("x"), 0o600))

	got, err := track.InfoFile.Read()
	require.NoError(t, err)
	assert.Equal(t, md, *got)

	exists, err = track.Exists()
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, track.Remove())
	require.NoError(t, track.Remove())

	_, err = track.InfoFile.Read()
	require.ErrorIs(t, err, os.ErrNotExist)
}
