package tidal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/xeptore/tdl/tidal/types"
)

var (
	ErrInvalidLink         = errors.New("invalid link")
	ErrUnsupportedLinkKind = errors.New("unsupported link kind")
)

// ParseLink parses https://tidal.com/[browse/]{track,album}/<id>[/u] links.
func ParseLink(l string) (types.Link, error) {
	u, err := url.Parse(l)
	if nil != err {
		return types.Link{}, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	switch u.Scheme {
	case "https":
	default:
		return types.Link{}, fmt.Errorf("%w: unexpected scheme %q", ErrInvalidLink, u.Scheme)
	}

	switch u.Host {
	case "tidal.com", "www.tidal.com", "listen.tidal.com":
	default:
		return types.Link{}, fmt.Errorf("%w: unexpected host %q", ErrInvalidLink, u.Host)
	}

	pathParts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(pathParts) > 0 && pathParts[0] == "browse" {
		pathParts = pathParts[1:]
	}
	if len(pathParts) == 3 && pathParts[2] == "u" {
		pathParts = pathParts[:2]
	}
	if len(pathParts) != 2 || pathParts[1] == "" || pathParts[1] == "u" {
		return types.Link{}, fmt.Errorf("%w: unexpected path %q", ErrInvalidLink, u.Path)
	}

	var kind types.LinkKind
	switch k := pathParts[0]; k {
	case "track":
		kind = types.LinkKindTrack
	case "album":
		kind = types.LinkKindAlbum
	case "mix", "playlist", "artist", "video":
		return types.Link{}, fmt.Errorf("%w: %s", ErrUnsupportedLinkKind, k)
	default:
		return types.Link{}, fmt.Errorf("%w: unexpected media type %q", ErrInvalidLink, k)
	}

	return types.Link{Kind: kind, ID: pathParts[1]}, nil
}

// ParseArg accepts either a bare identifier, taken to be of kind, or a link that must be of kind.
func ParseArg(arg string, kind types.LinkKind) (types.Link, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return types.Link{}, fmt.Errorf("%w: empty %s id", ErrInvalidLink, kind)
	}

	if !strings.Contains(arg, "://") {
		return types.Link{Kind: kind, ID: arg}, nil
	}

	link, err := ParseLink(arg)
	if nil != err {
		return types.Link{}, err
	}

	if link.Kind != kind {
		return types.Link{}, fmt.Errorf("%w: expected %s link, got %s", ErrInvalidLink, kind, link.Kind)
	}

	return link, nil
}
