package tag_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/tdl/flactest"
	"github.com/xeptore/tdl/ptr"
	"github.com/xeptore/tdl/tidal/tag"
	"github.com/xeptore/tdl/tidal/types"
)

func TestWriteRead(t *testing.T) {
	t.Parallel()

	path := flactest.WriteFile(t, "1.flac")
	md := types.TrackMetadata{
		Title:       "Song",
		Artists:     []string{"A", "B"},
		Album:       "Record",
		TrackNumber: ptr.Of[uint16](3),
	}
	require.NoError(t, tag.Write(path, md))

	tags, err := tag.Read(path)
	require.NoError(t, err)
	assert.Equal(t, tag.Tags{Title: "Song", Artist: "A; B", Album: "Record", Track: "3"}, *tags)

	f, err := flac.ParseFile(path)
	require.NoError(t, err)
	comment := vorbisComment(t, f)
	track, err := comment.Get(tag.FieldTrack)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, track)
	trackNumber, err := comment.Get(flacvorbis.FIELD_TRACKNUMBER)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, trackNumber)

	// writing again replaces managed fields instead of appending to them
	md.Title = "Other"
	md.TrackNumber = nil
	require.NoError(t, tag.Write(path, md))

	tags, err = tag.Read(path)
	require.NoError(t, err)
	assert.Equal(t, tag.Tags{Title: "Other", Artist: "A; B", Album: "Record", Track: ""}, *tags)

	f, err = flac.ParseFile(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"TITLE=Other", "ARTIST=A; B", "ALBUM=Record"}, vorbisComment(t, f).Comments)
}

func vorbisComment(t *testing.T, f *flac.File) *flacvorbis.MetaDataBlockVorbisComment {
	t.Helper()

	for _, b := range f.Meta {
		if b.Type == flac.VorbisComment {
			c, err := flacvorbis.ParseFromMetaDataBlock(*b)
			require.NoError(t, err)
			return c
		}
	}
	require.FailNow(t, "no vorbis comment block")
	return nil
}

func TestWrite_KeepsForeignComments(t *testing.T) {
	t.Parallel()

	path := flactest.WriteFile(t, "1.flac")
	f, err := flac.ParseFile(path)
	require.NoError(t, err)

	comment := flacvorbis.New()
	require.NoError(t, comment.Add("ENCODER", "ffmpeg"))
	require.NoError(t, comment.Add(flacvorbis.FIELD_TITLE, "stale"))
	require.NoError(t, comment.Add(flacvorbis.FIELD_TRACKNUMBER, "9"))
	block := comment.Marshal()
	f.Meta = append(f.Meta, &block)
	require.NoError(t, f.Save(path))

	require.NoError(t, tag.Write(path, types.TrackMetadata{Title: "Song", Artists: []string{"A"}, Album: "Record", TrackNumber: nil}))

	f, err = flac.ParseFile(path)
	require.NoError(t, err)
	var comments []string
	for _, b := range f.Meta {
		if b.Type == flac.VorbisComment {
			c, err := flacvorbis.ParseFromMetaDataBlock(*b)
			require.NoError(t, err)
			comments = append(comments, c.Comments...)
		}
	}
	assert.ElementsMatch(t, []string{"ENCODER=ffmpeg", "TITLE=Song", "ARTIST=A", "ALBUM=Record"}, comments)
}

func TestWrite_NotFLAC(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "1.flac")
	require.NoError(t, os.WriteFile(path, []byte("definitely not flac"), 0o600))

	err := tag.Write(path, types.TrackMetadata{Title: "Song", Artists: []string{"A"}, Album: "Record", TrackNumber: nil})
	require.ErrorIs(t, err, tag.ErrAudioTagging)

	_, err = tag.Read(path)
	require.ErrorIs(t, err, tag.ErrAudioTagging)

	err = tag.Write(filepath.Join(t.TempDir(), "missing.flac"), types.TrackMetadata{})
	require.ErrorIs(t, err, tag.ErrAudioTagging)
}

func TestRead_Untagged(t *testing.T) {
	t.Parallel()

	tags, err := tag.Read(flactest.WriteFile(t, "1.flac"))
	require.NoError(t, err)
	assert.Equal(t, tag.Tags{}, *tags)
}
