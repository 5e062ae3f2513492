package tag

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-flac/flacvorbis"
	"github.com/go-flac/go-flac"
	"github.com/samber/lo"

	"github.com/xeptore/tdl/tidal/types"
)

var ErrAudioTagging = errors.New("audio tagging failed")

// FieldTrack carries the track number. TRACKNUMBER is written alongside it for players that only read the
// conventional Vorbis field.
const FieldTrack = "TRACK"

var managedFields = []string{
	flacvorbis.FIELD_TITLE,
	flacvorbis.FIELD_ARTIST,
	flacvorbis.FIELD_ALBUM,
	FieldTrack,
	flacvorbis.FIELD_TRACKNUMBER,
}

// Tags are the string values of the managed tag fields as stored in the file.
type Tags struct {
	Title  string
	Artist string
	Album  string
	Track  string
}

func taggingError(path string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrAudioTagging, path, err)
}

func vorbisBlock(f *flac.File) (int, *flacvorbis.MetaDataBlockVorbisComment, error) {
	for i, block := range f.Meta {
		if block.Type != flac.VorbisComment {
			continue
		}

		comment, err := flacvorbis.ParseFromMetaDataBlock(*block)
		if nil != err {
			return -1, nil, err
		}
		return i, comment, nil
	}
	return -1, nil, nil
}

// Write replaces title, artist, album and track in the Vorbis comment block of the FLAC file at path.
// Other comments are kept. The track number is only written when set.
func Write(path string, md types.TrackMetadata) error {
	f, err := flac.ParseFile(path)
	if nil != err {
		return taggingError(path, err)
	}

	idx, existing, err := vorbisBlock(f)
	if nil != err {
		return taggingError(path, err)
	}

	comment := flacvorbis.New()
	if nil != existing {
		comment.Vendor = existing.Vendor
		comment.Comments = lo.Filter(existing.Comments, func(c string, _ int) bool {
			key, _, _ := strings.Cut(c, "=")
			return !lo.Contains(managedFields, strings.ToUpper(key))
		})
	}

	fields := [][2]string{
		{flacvorbis.FIELD_TITLE, md.Title},
		{flacvorbis.FIELD_ARTIST, md.JoinedArtists()},
		{flacvorbis.FIELD_ALBUM, md.Album},
	}
	if nil != md.TrackNumber {
		fields = append(
			fields,
			[2]string{FieldTrack, md.TrackNumberString()},
			[2]string{flacvorbis.FIELD_TRACKNUMBER, md.TrackNumberString()},
		)
	}
	for _, field := range fields {
		if err := comment.Add(field[0], field[1]); nil != err {
			return taggingError(path, err)
		}
	}

	block := comment.Marshal()
	if idx == -1 {
		f.Meta = append(f.Meta, &block)
	} else {
		f.Meta[idx] = &block
	}

	if err := f.Save(path); nil != err {
		return fmt.Errorf("save tagged file: %v", err)
	}

	return nil
}

// Read returns the managed tag fields of the FLAC file at path. Absent fields are empty.
func Read(path string) (*Tags, error) {
	f, err := flac.ParseFile(path)
	if nil != err {
		return nil, taggingError(path, err)
	}

	_, comment, err := vorbisBlock(f)
	if nil != err {
		return nil, taggingError(path, err)
	}

	var tags Tags
	if nil == comment {
		return &tags, nil
	}

	get := func(key string) (string, error) {
		values, err := comment.Get(key)
		if nil != err {
			return "", err
		}
		return strings.Join(values, types.ArtistSeparator), nil
	}

	for key, dst := range map[string]*string{
		flacvorbis.FIELD_TITLE:       &tags.Title,
		flacvorbis.FIELD_ARTIST:      &tags.Artist,
		flacvorbis.FIELD_ALBUM:       &tags.Album,
		FieldTrack:                   &tags.Track,
	} {
		v, err := get(key)
		if nil != err {
			return nil, taggingError(path, err)
		}
		*dst = v
	}

	return &tags, nil
}
