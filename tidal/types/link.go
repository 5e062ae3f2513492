package types

type LinkKind int

func (k LinkKind) String() string {
	switch k {
	case LinkKindTrack:
		return "track"
	case LinkKindAlbum:
		return "album"
	}

	return "unknown"
}

const (
	LinkKindTrack LinkKind = iota
	LinkKindAlbum
)

type Link struct {
	Kind LinkKind
	ID   string
}
