package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/xeptore/tdl/tidal/types"
)

const (
	EndpointTrack      = "tracks"
	EndpointAlbum      = "albums"
	EndpointArtist     = "artists"
	EndpointAlbumItems = "albums/relationships/items"

	resourceTypeTracks = "tracks"
	cursorParam        = "page[cursor]"
	maxListingPages    = 1_000
)

// ShapeError is returned when a response of an endpoint does not have the expected shape.
type ShapeError struct {
	Endpoint string
	ID       string
	Err      error
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("unexpected %s response shape for %q: %v", e.Endpoint, e.ID, e.Err)
}

func (e *ShapeError) Unwrap() error {
	return e.Err
}

// Getter issues authenticated GET requests against the metadata API.
type Getter interface {
	Get(ctx context.Context, logger zerolog.Logger, segments []string, query url.Values) ([]byte, error)
}

type Resolver struct {
	api Getter
}

func NewResolver(api Getter) *Resolver {
	return &Resolver{api: api}
}

type resourceIdentifier struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type relationship struct {
	Data []resourceIdentifier `json:"data"`
}

type trackDocument struct {
	Data *struct {
		ID         string `json:"id"`
		Attributes *struct {
			Title string `json:"title"`
		} `json:"attributes"`
		Relationships *struct {
			Albums  *relationship `json:"albums"`
			Artists *relationship `json:"artists"`
		} `json:"relationships"`
	} `json:"data"`
}

type albumDocument struct {
	Data *struct {
		Attributes *struct {
			Title string `json:"title"`
		} `json:"attributes"`
	} `json:"data"`
}

type artistDocument struct {
	Data *struct {
		Attributes *struct {
			Name string `json:"name"`
		} `json:"attributes"`
	} `json:"data"`
}

type itemsDocument struct {
	Data  []resourceIdentifier `json:"data"`
	Links *struct {
		Next *string `json:"next"`
		Meta *struct {
			NextCursor string `json:"nextCursor"`
		} `json:"meta"`
	} `json:"links"`
}

var errNoData = errors.New("response has no data attributes")

// Resolve walks track, album and artists of trackID and returns the flat metadata record.
// The track number is left unset.
func (r *Resolver) Resolve(ctx context.Context, logger zerolog.Logger, trackID string) (*types.TrackMetadata, error) {
	logger = logger.With().Str("track_id", trackID).Logger()

	title, albumID, artistIDs, err := r.track(ctx, logger, trackID)
	if nil != err {
		return nil, err
	}

	album, err := r.albumTitle(ctx, logger, albumID)
	if nil != err {
		return nil, err
	}

	artists := make([]string, 0, len(artistIDs))
	for _, id := range artistIDs {
		name, err := r.artistName(ctx, logger, id)
		if nil != err {
			return nil, err
		}
		artists = append(artists, name)
	}

	md := types.TrackMetadata{
		Title:       title,
		Artists:     artists,
		Album:       album,
		TrackNumber: nil,
	}
	if err := md.Validate(); nil != err {
		return nil, &ShapeError{Endpoint: EndpointTrack, ID: trackID, Err: err}
	}
	logger.Debug().Dict("metadata", md.ToDict()).Msg("Track metadata resolved")

	return &md, nil
}

func (r *Resolver) track(
	ctx context.Context,
	logger zerolog.Logger,
	id string,
) (title, albumID string, artistIDs []string, err error) {
	query := url.Values{"include": {"artists", "albums"}}
	respBytes, err := r.api.Get(ctx, logger, []string{EndpointTrack, id}, query)
	if nil != err {
		return "", "", nil, fmt.Errorf("get track: %w", err)
	}

	var doc trackDocument
	if err := json.Unmarshal(respBytes, &doc); nil != err {
		logger.Error().Err(err).Bytes("response_body", respBytes).Msg("Failed to decode track response")
		return "", "", nil, &ShapeError{Endpoint: EndpointTrack, ID: id, Err: err}
	}

	if nil == doc.Data || nil == doc.Data.Attributes {
		return "", "", nil, &ShapeError{Endpoint: EndpointTrack, ID: id, Err: errNoData}
	}

	if doc.Data.Attributes.Title == "" {
		return "", "", nil, &ShapeError{Endpoint: EndpointTrack, ID: id, Err: types.ErrMissingTitle}
	}

	rels := doc.Data.Relationships
	if nil == rels || nil == rels.Albums || len(rels.Albums.Data) == 0 || rels.Albums.Data[0].ID == "" {
		return "", "", nil, &ShapeError{Endpoint: EndpointTrack, ID: id, Err: types.ErrMissingAlbum}
	}

	if nil == rels.Artists || len(rels.Artists.Data) == 0 {
		return "", "", nil, &ShapeError{Endpoint: EndpointTrack, ID: id, Err: types.ErrMissingArtist}
	}

	artistIDs = lo.Map(rels.Artists.Data, func(a resourceIdentifier, _ int) string { return a.ID })
	if lo.Contains(artistIDs, "") {
		return "", "", nil, &ShapeError{Endpoint: EndpointTrack, ID: id, Err: types.ErrMissingArtist}
	}

	return doc.Data.Attributes.Title, rels.Albums.Data[0].ID, artistIDs, nil
}

func (r *Resolver) albumTitle(ctx context.Context, logger zerolog.Logger, id string) (string, error) {
	respBytes, err := r.api.Get(ctx, logger, []string{EndpointAlbum, id}, nil)
	if nil != err {
		return "", fmt.Errorf("get album %q: %w", id, err)
	}

	var doc albumDocument
	if err := json.Unmarshal(respBytes, &doc); nil != err {
		logger.Error().Err(err).Bytes("response_body", respBytes).Msg("Failed to decode album response")
		return "", &ShapeError{Endpoint: EndpointAlbum, ID: id, Err: err}
	}

	if nil == doc.Data || nil == doc.Data.Attributes || doc.Data.Attributes.Title == "" {
		return "", &ShapeError{Endpoint: EndpointAlbum, ID: id, Err: types.ErrMissingAlbum}
	}

	return doc.Data.Attributes.Title, nil
}

func (r *Resolver) artistName(ctx context.Context, logger zerolog.Logger, id string) (string, error) {
	respBytes, err := r.api.Get(ctx, logger, []string{EndpointArtist, id}, nil)
	if nil != err {
		return "", fmt.Errorf("get artist %q: %w", id, err)
	}

	var doc artistDocument
	if err := json.Unmarshal(respBytes, &doc); nil != err {
		logger.Error().Err(err).Bytes("response_body", respBytes).Msg("Failed to decode artist response")
		return "", &ShapeError{Endpoint: EndpointArtist, ID: id, Err: err}
	}

	if nil == doc.Data || nil == doc.Data.Attributes || doc.Data.Attributes.Name == "" {
		return "", &ShapeError{Endpoint: EndpointArtist, ID: id, Err: types.ErrMissingArtist}
	}

	return doc.Data.Attributes.Name, nil
}

// AlbumTrackIDs lists the track ids of an album in album order, following listing cursors until exhausted.
func (r *Resolver) AlbumTrackIDs(ctx context.Context, logger zerolog.Logger, albumID string) ([]string, error) {
	logger = logger.With().Str("album_id", albumID).Logger()

	var (
		ids    []string
		cursor string
		seen   = map[string]struct{}{}
	)
	for page := 0; ; page++ {
		if page == maxListingPages {
			return nil, &ShapeError{Endpoint: EndpointAlbumItems, ID: albumID, Err: errors.New("too many listing pages")}
		}

		var query url.Values
		if cursor != "" {
			query = url.Values{cursorParam: {cursor}}
		}

		respBytes, err := r.api.Get(ctx, logger, []string{"albums", albumID, "relationships", "items"}, query)
		if nil != err {
			return nil, fmt.Errorf("get album items page %d: %w", page, err)
		}

		var doc itemsDocument
		if err := json.Unmarshal(respBytes, &doc); nil != err {
			logger.Error().Err(err).Int("page", page).Bytes("response_body", respBytes).Msg("Failed to decode album items response")
			return nil, &ShapeError{Endpoint: EndpointAlbumItems, ID: albumID, Err: err}
		}

		if nil == doc.Data {
			return nil, &ShapeError{Endpoint: EndpointAlbumItems, ID: albumID, Err: errNoData}
		}

		for _, item := range doc.Data {
			if item.ID == "" {
				return nil, &ShapeError{Endpoint: EndpointAlbumItems, ID: albumID, Err: errors.New("item without id")}
			}

			if item.Type != "" && item.Type != resourceTypeTracks {
				logger.Debug().Str("item_id", item.ID).Str("item_type", item.Type).Msg("Skipping non-track album item")
				continue
			}
			ids = append(ids, item.ID)
		}

		next := nextCursor(doc)
		if next == "" {
			break
		}
		if _, ok := seen[next]; ok {
			logger.Warn().Str("cursor", next).Int("page", page).Msg("Album items cursor repeated, stopping listing")
			break
		}
		seen[next] = struct{}{}
		cursor = next
	}
	logger.Debug().Int("tracks", len(ids)).Msg("Album track list resolved")

	return ids, nil
}

func nextCursor(doc itemsDocument) string {
	if nil == doc.Links {
		return ""
	}

	if nil != doc.Links.Meta && doc.Links.Meta.NextCursor != "" {
		return doc.Links.Meta.NextCursor
	}

	if nil == doc.Links.Next {
		return ""
	}

	u, err := url.Parse(*doc.Links.Next)
	if nil != err {
		return ""
	}

	return u.Query().Get(cursorParam)
}
