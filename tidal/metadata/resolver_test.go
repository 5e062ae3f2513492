package metadata_test

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/tdl/tidal/metadata"
	"github.com/xeptore/tdl/tidal/types"
)

type fakeAPI struct {
	responses map[string]string
	calls     []string
}

func (f *fakeAPI) Get(_ context.Context, _ zerolog.Logger, segments []string, query url.Values) ([]byte, error) {
	key := strings.Join(segments, "/")
	if cursor := query.Get("page[cursor]"); cursor != "" {
		key += "?" + cursor
	}
	f.calls = append(f.calls, key)
	body, ok := f.responses[key]
	if !ok {
		return nil, errors.New("unexpected request " + key)
	}
	return []byte(body), nil
}

func TestResolve(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		responses: map[string]string{
			"tracks/1": `{"data":{"id":"1","type":"tracks","attributes":{"title":"Song"},
				"relationships":{"albums":{"data":[{"id":"ALB","type":"albums"}]},
				"artists":{"data":[{"id":"A1","type":"artists"},{"id":"A2","type":"artists"}]}}}}`,
			"albums/ALB": `{"data":{"id":"ALB","attributes":{"title":"Record"}}}`,
			"artists/A1": `{"data":{"id":"A1","attributes":{"name":"A"}}}`,
			"artists/A2": `{"data":{"id":"A2","attributes":{"name":"B"}}}`,
		},
	}

	md, err := metadata.NewResolver(api).Resolve(context.Background(), zerolog.Nop(), "1")
	require.NoError(t, err)
	assert.Equal(t, "Song", md.Title)
	assert.Equal(t, "Record", md.Album)
	assert.Equal(t, []string{"A", "B"}, md.Artists)
	assert.Nil(t, md.TrackNumber)
	assert.Equal(t, []string{"tracks/1", "albums/ALB", "artists/A1", "artists/A2"}, api.calls)
}

func TestResolve_ShapeErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		responses map[string]string
		endpoint  string
		target    error
	}{
		{
			name: "missing album relationship",
			responses: map[string]string{
				"tracks/1": `{"data":{"attributes":{"title":"Song"},"relationships":{"artists":{"data":[{"id":"A1"}]}}}}`,
			},
			endpoint: metadata.EndpointTrack,
			target:   types.ErrMissingAlbum,
		},
		{
			name: "missing title",
			responses: map[string]string{
				"tracks/1": `{"data":{"attributes":{},"relationships":{"albums":{"data":[{"id":"ALB"}]},"artists":{"data":[{"id":"A1"}]}}}}`,
			},
			endpoint: metadata.EndpointTrack,
			target:   types.ErrMissingTitle,
		},
		{
			name: "no artists",
			responses: map[string]string{
				"tracks/1": `{"data":{"attributes":{"title":"Song"},"relationships":{"albums":{"data":[{"id":"ALB"}]},"artists":{"data":[]}}}}`,
			},
			endpoint: metadata.EndpointTrack,
			target:   types.ErrMissingArtist,
		},
		{
			name: "album without title",
			responses: map[string]string{
				"tracks/1":   `{"data":{"attributes":{"title":"Song"},"relationships":{"albums":{"data":[{"id":"ALB"}]},"artists":{"data":[{"id":"A1"}]}}}}`,
				"albums/ALB": `{"data":{"attributes":{"title":""}}}`,
			},
			endpoint: metadata.EndpointAlbum,
			target:   types.ErrMissingAlbum,
		},
		{
			name: "artist without name",
			responses: map[string]string{
				"tracks/1":   `{"data":{"attributes":{"title":"Song"},"relationships":{"albums":{"data":[{"id":"ALB"}]},"artists":{"data":[{"id":"A1"}]}}}}`,
				"albums/ALB": `{"data":{"attributes":{"title":"Record"}}}`,
				"artists/A1": `{"data":{"attributes":{}}}`,
			},
			endpoint: metadata.EndpointArtist,
			target:   types.ErrMissingArtist,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := metadata.NewResolver(&fakeAPI{responses: tc.responses}).Resolve(context.Background(), zerolog.Nop(), "1")
			require.Error(t, err)

			var shapeErr *metadata.ShapeError
			require.ErrorAs(t, err, &shapeErr)
			assert.Equal(t, tc.endpoint, shapeErr.Endpoint)
			require.ErrorIs(t, err, tc.target)
		})
	}
}

func TestResolve_InvalidJSON(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{responses: map[string]string{"tracks/1": `not json`}}
	_, err := metadata.NewResolver(api).Resolve(context.Background(), zerolog.Nop(), "1")

	var shapeErr *metadata.ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, metadata.EndpointTrack, shapeErr.Endpoint)
	assert.Equal(t, "1", shapeErr.ID)
}

func TestResolve_UpstreamErrorIsNotShapeError(t *testing.T) {
	t.Parallel()

	_, err := metadata.NewResolver(&fakeAPI{}).Resolve(context.Background(), zerolog.Nop(), "1")
	require.Error(t, err)

	var shapeErr *metadata.ShapeError
	assert.NotErrorAs(t, err, &shapeErr)
}

func TestAlbumTrackIDs(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		responses: map[string]string{
			"albums/ALB/relationships/items": `{"data":[{"id":"t1","type":"tracks"},{"id":"v1","type":"videos"}],
				"links":{"meta":{"nextCursor":"c2"}}}`,
			"albums/ALB/relationships/items?c2": `{"data":[{"id":"t2","type":"tracks"}],
				"links":{"next":"/albums/ALB/relationships/items?page%5Bcursor%5D=c3"}}`,
			"albums/ALB/relationships/items?c3": `{"data":[{"id":"t3","type":"tracks"}],"links":{}}`,
		},
	}

	ids, err := metadata.NewResolver(api).AlbumTrackIDs(context.Background(), zerolog.Nop(), "ALB")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids)
	assert.Len(t, api.calls, 3)
}

func TestAlbumTrackIDs_CursorCycle(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		responses: map[string]string{
			"albums/ALB/relationships/items":    `{"data":[{"id":"t1","type":"tracks"}],"links":{"meta":{"nextCursor":"c2"}}}`,
			"albums/ALB/relationships/items?c2": `{"data":[{"id":"t2","type":"tracks"}],"links":{"meta":{"nextCursor":"c3"}}}`,
			"albums/ALB/relationships/items?c3": `{"data":[{"id":"t3","type":"tracks"}],"links":{"meta":{"nextCursor":"c2"}}}`,
		},
	}

	ids, err := metadata.NewResolver(api).AlbumTrackIDs(context.Background(), zerolog.Nop(), "ALB")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids)
	assert.Equal(
		t,
		[]string{"albums/ALB/relationships/items", "albums/ALB/relationships/items?c2", "albums/ALB/relationships/items?c3"},
		api.calls,
	)
}

func TestAlbumTrackIDs_MissingData(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{responses: map[string]string{"albums/ALB/relationships/items": `{"links":{}}`}}
	_, err := metadata.NewResolver(api).AlbumTrackIDs(context.Background(), zerolog.Nop(), "ALB")

	var shapeErr *metadata.ShapeError
	require.ErrorAs(t, err, &shapeErr)
	assert.Equal(t, metadata.EndpointAlbumItems, shapeErr.Endpoint)
}
