package types

import (
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ArtistSeparator joins multiple artist names into the single artist tag value.
const ArtistSeparator = "; "

var (
	ErrMissingTitle  = errors.New("track is missing metadata for the title")
	ErrMissingArtist = errors.New("track is missing metadata for the artist")
	ErrMissingAlbum  = errors.New("track is missing metadata for the album")
)

// TrackMetadata is the flat record resolved from the track, album, and artist resources.
// TrackNumber is assigned by the caller, never by the API.
type TrackMetadata struct {
	Title       string   `json:"title"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album"`
	TrackNumber *uint16  `json:"track_number,omitempty"`
}

func (m TrackMetadata) JoinedArtists() string {
	return strings.Join(m.Artists, ArtistSeparator)
}

// TrackNumberString returns the decimal track number, or an empty string when unset.
func (m TrackMetadata) TrackNumberString() string {
	if nil == m.TrackNumber {
		return ""
	}

	return strconv.FormatUint(uint64(*m.TrackNumber), 10)
}

// Validate reports the first missing field among title, album, and artists.
func (m TrackMetadata) Validate() error {
	if m.Title == "" {
		return ErrMissingTitle
	}

	if m.Album == "" {
		return ErrMissingAlbum
	}

	if len(m.Artists) == 0 {
		return ErrMissingArtist
	}

	for _, a := range m.Artists {
		if a == "" {
			return ErrMissingArtist
		}
	}

	return nil
}

func (m TrackMetadata) ToDict() *zerolog.Event {
	d := zerolog.Dict().
		Str("title", m.Title).
		Strs("artists", m.Artists).
		Str("album", m.Album)
	if nil != m.TrackNumber {
		d = d.Uint16("track_number", *m.TrackNumber)
	}

	return d
}

// FiledTrack is a track that went through the whole acquisition pipeline.
type FiledTrack struct {
	TrackID  string
	Metadata TrackMetadata
	Path     string
}
