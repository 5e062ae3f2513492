package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog"

	"github.com/xeptore/tdl/must"
	"github.com/xeptore/tdl/tidal/types"
)

var ErrDestinationExists = errors.New("destination already exists")

// Store files tracks under root/<artist>/<album>/<title>.flac. The directory tree is the only index.
type Store struct {
	root      string
	overwrite bool
}

func Open(root string, overwrite bool) (*Store, error) {
	if err := os.MkdirAll(root, 0o0755); nil != err {
		return nil, fmt.Errorf("failed to create store root: %v", err)
	}

	return &Store{root: root, overwrite: overwrite}, nil
}

// sanitize turns a tag value into a single path component.
// Path separators and NUL become underscores, surrounding spaces and dots are dropped.
func sanitize(v string) string {
	v = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		default:
			return r
		}
	}, v)

	return strings.Trim(v, " .")
}

func component(v string, missing error) (string, error) {
	c := sanitize(v)
	if c == "" {
		if v == "" {
			return "", missing
		}
		return "", fmt.Errorf("%w: %q is not a usable path component", missing, v)
	}

	return c, nil
}

// Destination computes where a track with the given tags is filed.
func (s *Store) Destination(title, artist, album string) (string, error) {
	t, err := component(title, types.ErrMissingTitle)
	if nil != err {
		return "", err
	}

	ar, err := component(artist, types.ErrMissingArtist)
	if nil != err {
		return "", err
	}

	al, err := component(album, types.ErrMissingAlbum)
	if nil != err {
		return "", err
	}

	dest := filepath.Join(s.root, ar, al, t+"."+types.ExtFLAC)
	must.Be(filepath.Dir(filepath.Dir(filepath.Dir(dest))) == filepath.Clean(s.root), "destination must stay under store root")

	return dest, nil
}

func readTags(path string) (m tag.Metadata, err error) {
	f, err := os.Open(path)
	if nil != err {
		return nil, fmt.Errorf("failed to open tagged file: %v", err)
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close tagged file: %v", closeErr))
		}
	}()

	m, err = tag.ReadFrom(f)
	if nil != err {
		return nil, fmt.Errorf("failed to read tags: %v", err)
	}

	return m, nil
}

// File copies the tagged file at path into the store and returns the destination path.
// The source file is left in place.
func (s *Store) File(logger zerolog.Logger, path string) (string, error) {
	m, err := readTags(path)
	if nil != err {
		logger.Error().Err(err).Str("path", path).Msg("Failed to read tags of file to store")
		return "", err
	}

	dest, err := s.Destination(m.Title(), m.Artist(), m.Album())
	if nil != err {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	logger = logger.With().Str("destination", dest).Logger()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o0755); nil != err {
		logger.Error().Err(err).Msg("Failed to create destination directory")
		return "", fmt.Errorf("failed to create destination directory: %v", err)
	}

	if !s.overwrite {
		if _, err := os.Lstat(dest); nil == err {
			logger.Error().Msg("Refusing to overwrite existing file")
			return "", fmt.Errorf("%w: %s", ErrDestinationExists, dest)
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat destination: %v", err)
		}
	}

	if err := copyFile(path, dir, dest); nil != err {
		logger.Error().Err(err).Msg("Failed to copy file into store")
		return "", err
	}
	logger.Info().Msg("Track filed")

	return dest, nil
}

// copyFile copies src into a temporary sibling of dest and renames it into place.
func copyFile(src, dir, dest string) (err error) {
	in, err := os.Open(src)
	if nil != err {
		return fmt.Errorf("failed to open source file: %v", err)
	}
	defer func() {
		if closeErr := in.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close source file: %v", closeErr))
		}
	}()

	out, err := os.CreateTemp(dir, ".tdl-*.partial")
	if nil != err {
		return fmt.Errorf("failed to create temporary destination file: %v", err)
	}
	tmpPath := out.Name()
	defer func() {
		if nil != err {
			if removeErr := os.Remove(tmpPath); nil != removeErr && !errors.Is(removeErr, os.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("failed to remove temporary destination file: %v", removeErr))
			}
		}
	}()

	if _, err := io.Copy(out, in); nil != err {
		return errors.Join(fmt.Errorf("failed to copy file: %v", err), out.Close())
	}

	if err := out.Sync(); nil != err {
		return errors.Join(fmt.Errorf("failed to sync destination file: %v", err), out.Close())
	}

	if err := out.Close(); nil != err {
		return fmt.Errorf("failed to close destination file: %v", err)
	}

	if err := os.Chmod(tmpPath, 0o0644); nil != err {
		return fmt.Errorf("failed to set destination file mode: %v", err)
	}

	if err := os.Rename(tmpPath, dest); nil != err {
		return fmt.Errorf("failed to move file into place: %v", err)
	}

	return nil
}
