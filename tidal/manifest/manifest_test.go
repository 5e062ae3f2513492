package manifest_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/tdl/tidal/manifest"
)

type playbackInfo struct {
	body []byte
	err  error
}

func (p playbackInfo) PlaybackInfo(context.Context, zerolog.Logger, string) ([]byte, error) {
	return p.body, p.err
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestFetch(t *testing.T) {
	t.Parallel()

	body := `{"trackId":1,"manifestMimeType":"application/vnd.tidal.bts","manifest":"` +
		b64(`{"mimeType":"audio/flac","codecs":"flac","encryptionType":"NONE","urls":["https://cdn.example/1.flac"]}`) + `"}`

	m, err := manifest.Fetch(context.Background(), zerolog.Nop(), playbackInfo{body: []byte(body)}, "1")
	require.NoError(t, err)
	assert.Equal(t, manifest.MimeTypeBTS, m.MimeType)
	assert.Contains(t, string(m.Payload), `"urls":["https://cdn.example/1.flac"]`)

	desc, err := m.Describe()
	require.NoError(t, err)
	assert.Equal(t, "flac", desc.Ext)
	assert.Equal(t, 1, desc.URLs)
	assert.False(t, desc.Encrypted)
}

func TestFetch_NonStringManifest(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{name: "number", body: `{"manifest": 123}`},
		{name: "missing", body: `{"trackId": 1}`},
		{name: "null", body: `{"manifest": null}`},
		{name: "array", body: `[1, 2]`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := manifest.Fetch(context.Background(), zerolog.Nop(), playbackInfo{body: []byte(tc.body)}, "7")
			var expectedErr *manifest.ExpectedError
			require.ErrorAs(t, err, &expectedErr)
			assert.Equal(t, "7", expectedErr.TrackID)
			assert.NotNil(t, expectedErr.Response)
		})
	}

	_, err := manifest.Fetch(context.Background(), zerolog.Nop(), playbackInfo{body: []byte(`{"manifest": 123}`)}, "7")
	var expectedErr *manifest.ExpectedError
	require.ErrorAs(t, err, &expectedErr)
	assert.Equal(t, map[string]any{"manifest": float64(123)}, expectedErr.Response)
}

func TestFetch_Errors(t *testing.T) {
	t.Parallel()

	upstream := errors.New("boom")
	_, err := manifest.Fetch(context.Background(), zerolog.Nop(), playbackInfo{err: upstream}, "1")
	require.ErrorIs(t, err, upstream)

	_, err = manifest.Fetch(context.Background(), zerolog.Nop(), playbackInfo{body: []byte(`{"manifest":`)}, "1")
	require.Error(t, err)
	var expectedErr *manifest.ExpectedError
	assert.NotErrorAs(t, err, &expectedErr)

	_, err = manifest.Fetch(context.Background(), zerolog.Nop(), playbackInfo{body: []byte(`{"manifest":"%%%"}`)}, "1")
	require.ErrorContains(t, err, "failed to decode manifest")
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	dash := &manifest.Manifest{
		MimeType: manifest.MimeTypeDASH,
		Payload: []byte(`<MPD><Period><AdaptationSet contentType="audio" mimeType="audio/mp4">` +
			`<Representation codecs="flac" audioSamplingRate="96000"><SegmentTemplate media="https://cdn.example/$Number$.mp4">` +
			`<SegmentTimeline><S d="1" r="2"/></SegmentTimeline></SegmentTemplate></Representation></AdaptationSet></Period></MPD>`),
	}
	desc, err := dash.Describe()
	require.NoError(t, err)
	assert.Equal(t, "flac", desc.Ext)
	assert.Equal(t, 96000, desc.SampleRate)
	assert.Equal(t, 4, desc.Segments)

	_, err = (&manifest.Manifest{MimeType: "text/plain", Payload: nil}).Describe()
	require.ErrorContains(t, err, "unexpected manifest mime type")

	encrypted := &manifest.Manifest{
		MimeType: manifest.MimeTypeBTS,
		Payload:  []byte(`{"mimeType":"audio/flac","codecs":"flac","encryptionType":"OLD_AES","urls":["u"]}`),
	}
	desc, err = encrypted.Describe()
	require.NoError(t, err)
	assert.True(t, desc.Encrypted)
}
