package mpd

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
)

type MPD struct {
	XMLName                   xml.Name `xml:"MPD"`
	Type                      string   `xml:"type,attr"`
	MediaPresentationDuration string   `xml:"mediaPresentationDuration,attr"`
	Period                    Period   `xml:"Period"`
}

type Period struct {
	AdaptationSet AdaptationSet `xml:"AdaptationSet"`
}

type AdaptationSet struct {
	ContentType    string         `xml:"contentType,attr"`
	MimeType       string         `xml:"mimeType,attr"`
	Representation Representation `xml:"Representation"`
}

type Representation struct {
	Codecs            string          `xml:"codecs,attr"`
	Bandwidth         int             `xml:"bandwidth,attr"`
	AudioSamplingRate int             `xml:"audioSamplingRate,attr"`
	SegmentTemplate   SegmentTemplate `xml:"SegmentTemplate"`
}

type SegmentTemplate struct {
	Initialization  string          `xml:"initialization,attr"`
	Media           string          `xml:"media,attr"`
	SegmentTimeline SegmentTimeline `xml:"SegmentTimeline"`
}

type SegmentTimeline struct {
	S []S `xml:"S"`
}

type S struct {
	D int `xml:"d,attr"`
	R int `xml:"r,attr,omitempty"`
}

// StreamInfo describes the single audio representation of a manifest.
type StreamInfo struct {
	Codec        string
	MimeType     string
	Bandwidth    int
	SampleRate   int
	Duration     string
	SegmentCount int
}

var ErrNoSegments = errors.New("manifest has no media segments")

// segmentCount counts the initialization segment plus every timeline entry, including repeats.
func (m *MPD) segmentCount() int {
	count := 1
	for _, s := range m.Period.AdaptationSet.Representation.SegmentTemplate.SegmentTimeline.S {
		count += 1 + max(s.R, 0)
	}
	return count
}

func ParseStreamInfo(b []byte) (*StreamInfo, error) {
	var mpd MPD
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.Strict = true
	if err := dec.Decode(&mpd); nil != err {
		return nil, fmt.Errorf("failed to parse MPD: %v", err)
	}

	set := mpd.Period.AdaptationSet
	if set.ContentType != "" && set.ContentType != "audio" {
		return nil, fmt.Errorf("unexpected content type: %s", set.ContentType)
	}

	tmpl := set.Representation.SegmentTemplate
	if tmpl.Media == "" || len(tmpl.SegmentTimeline.S) == 0 {
		return nil, ErrNoSegments
	}

	return &StreamInfo{
		Codec:        set.Representation.Codecs,
		MimeType:     set.MimeType,
		Bandwidth:    set.Representation.Bandwidth,
		SampleRate:   set.Representation.AudioSamplingRate,
		Duration:     mpd.MediaPresentationDuration,
		SegmentCount: mpd.segmentCount(),
	}, nil
}
