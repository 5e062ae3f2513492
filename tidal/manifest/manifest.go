package manifest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/xeptore/tdl/tidal/mpd"
	"github.com/xeptore/tdl/tidal/types"
)

const (
	MimeTypeDASH = "application/dash+xml"
	MimeTypeBTS  = "application/vnd.tidal.bts"
)

// ExpectedError is returned when a playback info response has no string manifest field.
// Response holds the whole decoded response.
type ExpectedError struct {
	TrackID  string
	Response any
}

func (e *ExpectedError) Error() string {
	return fmt.Sprintf("expected string manifest in playback info of track %q, got: %v", e.TrackID, e.Response)
}

// PlaybackInfoGetter fetches raw playback info responses from the streaming API.
type PlaybackInfoGetter interface {
	PlaybackInfo(ctx context.Context, logger zerolog.Logger, trackID string) ([]byte, error)
}

type Manifest struct {
	MimeType string
	Payload  []byte
}

// Fetch retrieves the playback info of trackID and returns its base64-decoded manifest.
func Fetch(ctx context.Context, logger zerolog.Logger, api PlaybackInfoGetter, trackID string) (*Manifest, error) {
	respBytes, err := api.PlaybackInfo(ctx, logger, trackID)
	if nil != err {
		return nil, fmt.Errorf("get playback info: %w", err)
	}

	return Decode(logger, trackID, respBytes)
}

// Decode extracts the manifest from a raw playback info response.
func Decode(logger zerolog.Logger, trackID string, respBytes []byte) (*Manifest, error) {
	if !gjson.ValidBytes(respBytes) {
		logger.Error().Bytes("response_body", respBytes).Msg("Playback info response is not valid JSON")
		return nil, errors.New("failed to decode playback info response: invalid JSON")
	}

	field := gjson.GetBytes(respBytes, "manifest")
	if field.Type != gjson.String {
		var resp any
		if err := json.Unmarshal(respBytes, &resp); nil != err {
			return nil, fmt.Errorf("failed to decode playback info response: %v", err)
		}
		logger.Error().Bytes("response_body", respBytes).Msg("Playback info response has no string manifest field")
		return nil, &ExpectedError{TrackID: trackID, Response: resp}
	}

	payload, err := base64.StdEncoding.DecodeString(field.String())
	if nil != err {
		logger.Error().Err(err).Msg("Failed to decode base64 manifest")
		return nil, fmt.Errorf("failed to decode manifest: %v", err)
	}

	return &Manifest{
		MimeType: gjson.GetBytes(respBytes, "manifestMimeType").String(),
		Payload:  payload,
	}, nil
}

type Description struct {
	Codec      string
	MimeType   string
	Ext        string
	Encrypted  bool
	SampleRate int
	Segments   int
	URLs       int
}

func (d *Description) ToDict() *zerolog.Event {
	return zerolog.Dict().
		Str("codec", d.Codec).
		Str("mime_type", d.MimeType).
		Str("ext", d.Ext).
		Bool("encrypted", d.Encrypted).
		Int("sample_rate", d.SampleRate).
		Int("segments", d.Segments).
		Int("urls", d.URLs)
}

type btsManifest struct {
	MimeType       string   `json:"mimeType"`
	Codecs         string   `json:"codecs"`
	EncryptionType string   `json:"encryptionType"`
	URLs           []string `json:"urls"`
}

// Describe inspects the manifest payload for the stream it refers to.
func (m *Manifest) Describe() (*Description, error) {
	var desc Description
	switch m.MimeType {
	case MimeTypeDASH, "dash+xml":
		info, err := mpd.ParseStreamInfo(m.Payload)
		if nil != err {
			return nil, fmt.Errorf("failed to parse stream info: %v", err)
		}
		desc = Description{
			Codec:      info.Codec,
			MimeType:   info.MimeType,
			Ext:        "",
			Encrypted:  false,
			SampleRate: info.SampleRate,
			Segments:   info.SegmentCount,
			URLs:       0,
		}
	case MimeTypeBTS, "vnd.tidal.bt":
		var bts btsManifest
		if err := json.Unmarshal(m.Payload, &bts); nil != err {
			return nil, fmt.Errorf("failed to decode vnd.tidal.bt manifest: %v", err)
		}
		desc = Description{
			Codec:      bts.Codecs,
			MimeType:   bts.MimeType,
			Ext:        "",
			Encrypted:  bts.EncryptionType != "" && bts.EncryptionType != "NONE",
			SampleRate: 0,
			Segments:   0,
			URLs:       len(bts.URLs),
		}
	default:
		return nil, fmt.Errorf("unexpected manifest mime type: %s", m.MimeType)
	}

	ext, err := types.InferTrackExt(desc.MimeType, desc.Codec)
	if nil != err {
		return nil, err
	}
	desc.Ext = ext

	return &desc, nil
}
