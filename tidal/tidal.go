package tidal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"

	"github.com/xeptore/tdl/config"
	"github.com/xeptore/tdl/tidal/fs"
	"github.com/xeptore/tdl/tidal/manifest"
	"github.com/xeptore/tdl/tidal/tag"
	"github.com/xeptore/tdl/tidal/types"
)

type Stage string

const (
	StageResolve Stage = "resolve"
	StageDecode  Stage = "decode"
	StageMux     Stage = "mux"
	StageTag     Stage = "tag"
	StageFile    Stage = "file"
)

// TrackError reports the stage at which the acquisition of a track stopped.
type TrackError struct {
	TrackID string
	Stage   Stage
	Err     error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("track %q: %s: %v", e.TrackID, e.Stage, e.Err)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}

// AlbumError reports the album track that stopped an album acquisition.
// TrackID is empty when the track listing itself failed.
type AlbumError struct {
	AlbumID     string
	TrackID     string
	TrackNumber uint16
	Err         error
}

func (e *AlbumError) Error() string {
	if e.TrackID == "" {
		return fmt.Sprintf("album %q: list tracks: %v", e.AlbumID, e.Err)
	}

	return fmt.Sprintf("album %q: track %d (%q): %v", e.AlbumID, e.TrackNumber, e.TrackID, e.Err)
}

func (e *AlbumError) Unwrap() error {
	return e.Err
}

type Resolver interface {
	Resolve(ctx context.Context, logger zerolog.Logger, trackID string) (*types.TrackMetadata, error)
	AlbumTrackIDs(ctx context.Context, logger zerolog.Logger, albumID string) ([]string, error)
}

type Muxer interface {
	Mux(ctx context.Context, logger zerolog.Logger, manifest []byte, outPath string) error
}

type Filer interface {
	File(logger zerolog.Logger, path string) (string, error)
}

type Client struct {
	resolver Resolver
	playback manifest.PlaybackInfoGetter
	muxer    Muxer
	filer    Filer
	tempDir  fs.TempDir
	keepTemp bool
}

func NewClient(
	resolver Resolver,
	playback manifest.PlaybackInfoGetter,
	muxer Muxer,
	filer Filer,
	conf config.Store,
) *Client {
	return &Client{
		resolver: resolver,
		playback: playback,
		muxer:    muxer,
		filer:    filer,
		tempDir:  fs.TempDirFrom(conf.TempDir),
		keepTemp: conf.KeepTemp,
	}
}

// Fetch acquires the track or every track of the album the link points to.
func (c *Client) Fetch(ctx context.Context, logger zerolog.Logger, link types.Link) ([]types.FiledTrack, error) {
	switch link.Kind {
	case types.LinkKindTrack:
		track, err := c.FetchTrack(ctx, logger, link.ID, nil)
		if nil != err {
			return nil, err
		}
		return []types.FiledTrack{*track}, nil
	case types.LinkKindAlbum:
		return c.FetchAlbum(ctx, logger, link.ID)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLinkKind, link.Kind)
	}
}

// FetchAlbum acquires the tracks of an album one after another, numbering them by listing position.
// It stops at the first failing track and returns the tracks filed so far along with the error.
func (c *Client) FetchAlbum(ctx context.Context, logger zerolog.Logger, albumID string) ([]types.FiledTrack, error) {
	logger = logger.With().Str("album_id", albumID).Logger()

	trackIDs, err := c.resolver.AlbumTrackIDs(ctx, logger, albumID)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to list album tracks")
		return nil, &AlbumError{AlbumID: albumID, TrackID: "", TrackNumber: 0, Err: err}
	}

	if len(trackIDs) > math.MaxUint16 {
		return nil, &AlbumError{
			AlbumID:     albumID,
			TrackID:     "",
			TrackNumber: 0,
			Err:         fmt.Errorf("album has too many tracks: %d", len(trackIDs)),
		}
	}
	logger.Info().Int("tracks", len(trackIDs)).Msg("Fetching album")

	filed := make([]types.FiledTrack, 0, len(trackIDs))
	for i, trackID := range trackIDs {
		number := uint16(i + 1) //nolint:gosec
		track, err := c.FetchTrack(ctx, logger.With().Uint16("track_number", number).Logger(), trackID, &number)
		if nil != err {
			return filed, &AlbumError{AlbumID: albumID, TrackID: trackID, TrackNumber: number, Err: err}
		}
		filed = append(filed, *track)
	}

	return filed, nil
}

// FetchTrack runs a track through resolution, manifest decoding, muxing, tagging and filing.
// number is written as the track number tag when set. When temporary files are kept, a track muxed by an
// earlier run is tagged and filed again without being acquired.
func (c *Client) FetchTrack(
	ctx context.Context,
	logger zerolog.Logger,
	trackID string,
	number *uint16,
) (*types.FiledTrack, error) {
	logger = logger.With().Str("track_id", trackID).Logger()
	tmp := c.tempDir.Track(trackID)
	defer func() {
		if c.keepTemp {
			logger.Debug().Str("path", tmp.Path).Msg("Keeping temporary track file")
			return
		}
		if removeErr := tmp.Remove(); nil != removeErr {
			logger.Warn().Err(removeErr).Msg("Failed to remove temporary track files")
		}
	}()

	fail := func(stage Stage, err error) error {
		logger.Error().Err(err).Str("stage", string(stage)).Msg("Track acquisition failed")
		return &TrackError{TrackID: trackID, Stage: stage, Err: err}
	}

	md := c.keptTrack(logger, tmp)
	if nil == md {
		var (
			stage Stage
			err   error
		)
		md, stage, err = c.muxTrack(ctx, logger, trackID, tmp)
		if nil != err {
			return nil, fail(stage, err)
		}
	}
	md.TrackNumber = number

	if err := tag.Write(tmp.Path, *md); nil != err {
		return nil, fail(StageTag, err)
	}

	if err := ctx.Err(); nil != err {
		return nil, fail(StageFile, err)
	}

	dest, err := c.filer.File(logger, tmp.Path)
	if nil != err {
		return nil, fail(StageFile, err)
	}

	return &types.FiledTrack{TrackID: trackID, Metadata: *md, Path: dest}, nil
}

// muxTrack resolves, decodes and muxes a track into its temporary file. The info file is written only once
// muxing succeeded, so its presence marks a complete temporary track.
func (c *Client) muxTrack(
	ctx context.Context,
	logger zerolog.Logger,
	trackID string,
	tmp fs.Track,
) (*types.TrackMetadata, Stage, error) {
	md, err := c.resolver.Resolve(ctx, logger, trackID)
	if nil != err {
		return nil, StageResolve, err
	}

	if err := ctx.Err(); nil != err {
		return nil, StageDecode, err
	}

	m, err := manifest.Fetch(ctx, logger, c.playback, trackID)
	if nil != err {
		return nil, StageDecode, err
	}

	if desc, err := m.Describe(); nil != err {
		logger.Warn().Err(err).Str("manifest_mime_type", m.MimeType).Msg("Failed to describe manifest")
	} else {
		logger.Debug().Dict("stream", desc.ToDict()).Msg("Manifest decoded")
	}

	if err := ctx.Err(); nil != err {
		return nil, StageMux, err
	}

	if err := c.tempDir.Ensure(); nil != err {
		return nil, StageMux, err
	}

	if err := tmp.Remove(); nil != err {
		return nil, StageMux, err
	}

	if err := c.muxer.Mux(ctx, logger, m.Payload, tmp.Path); nil != err {
		return nil, StageMux, err
	}

	if err := tmp.InfoFile.Write(*md); nil != err {
		return nil, StageMux, err
	}

	return md, "", nil
}

// keptTrack returns the metadata of a track muxed by an earlier run that kept its temporary files,
// or nil when the track has to be acquired again.
func (c *Client) keptTrack(logger zerolog.Logger, tmp fs.Track) *types.TrackMetadata {
	if !c.keepTemp {
		return nil
	}

	exists, err := tmp.Exists()
	if nil != err {
		logger.Warn().Err(err).Str("path", tmp.Path).Msg("Failed to check kept temporary track")
		return nil
	}
	if !exists {
		return nil
	}

	md, err := tmp.InfoFile.Read()
	if nil != err {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str("path", tmp.InfoFile.Path).Msg("Ignoring unreadable temporary track info file")
		}
		return nil
	}

	if err := md.Validate(); nil != err {
		logger.Warn().Err(err).Str("path", tmp.InfoFile.Path).Msg("Ignoring incomplete temporary track info file")
		return nil
	}

	logger.Info().Str("path", tmp.Path).Dict("metadata", md.ToDict()).Msg("Reusing kept temporary track")
	return md
}
