package types

import (
	"fmt"
	"strings"
)

const (
	codecFLAC = "flac"
	ExtFLAC   = "flac"
)

// InferTrackExt maps a stream mime type and codec to the extension of the container it copies into.
func InferTrackExt(mimeType, codec string) (string, error) {
	switch mimeType {
	case "audio/mp4":
		switch strings.ToLower(codec) {
		case "eac3", "aac", "alac", "mp4a.40.2", "mp4a.40.5":
			return "m4a", nil
		case codecFLAC:
			return ExtFLAC, nil
		default:
			return "", fmt.Errorf("unsupported codec %q for audio/mp4 mime type", codec)
		}
	case "audio/flac":
		if strings.ToLower(codec) == codecFLAC {
			return ExtFLAC, nil
		}

		return "", fmt.Errorf("unsupported codec %q for audio/flac mime type", codec)
	default:
		return "", fmt.Errorf("unsupported mime type %q", mimeType)
	}
}
