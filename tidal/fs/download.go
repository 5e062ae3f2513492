package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/xeptore/tdl/must"
	"github.com/xeptore/tdl/tidal/api"
	"github.com/xeptore/tdl/tidal/types"
)

// TempDir holds in-progress tracks, keyed by track id, before they are filed.
type TempDir string

func TempDirFrom(d string) TempDir {
	return TempDir(d)
}

func (dir TempDir) Ensure() error {
	if err := os.MkdirAll(dir.path(), 0o0755); nil != err {
		return fmt.Errorf("failed to create temp dir: %v", err)
	}

	return nil
}

func (dir TempDir) Track(id string) Track {
	trackPath := filepath.Join(dir.path(), api.PathSegment(id))
	must.Be(filepath.Dir(trackPath) == filepath.Clean(dir.path()), "temp track must stay in temp dir")

	return Track{
		Path:     trackPath + "." + types.ExtFLAC,
		InfoFile: InfoFile[types.TrackMetadata]{Path: trackPath + ".json"},
	}
}

func (dir TempDir) path() string {
	return string(dir)
}

type Track struct {
	Path     string
	InfoFile InfoFile[types.TrackMetadata]
}

func (t Track) Exists() (bool, error) {
	return fileExists(t.Path)
}

// Remove deletes the track and its info file. Missing files are not an error.
func (t Track) Remove() error {
	var errs []error
	if err := os.Remove(t.Path); nil != err && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("failed to remove temp track: %v", err))
	}

	if err := os.Remove(t.InfoFile.Path); nil != err && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("failed to remove temp track info file: %v", err))
	}

	return errors.Join(errs...)
}

func fileExists(path string) (bool, error) {
	if _, err := os.Stat(path); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, fmt.Errorf("failed to stat file: %v", err)
	}

	return true, nil
}

type InfoFile[T any] struct {
	Path string
}

func (p InfoFile[T]) Read() (*T, error) {
	return readInfoFile(p)
}

func (p InfoFile[T]) Write(v T) error {
	return writeInfoFile(p, v)
}

func readInfoFile[T any](file InfoFile[T]) (*T, error) {
	b, err := os.ReadFile(file.Path)
	if nil != err {
		return nil, fmt.Errorf("failed to read info file: %w", err)
	}

	var out T
	if err := json.Unmarshal(b, &out); nil != err {
		return nil, fmt.Errorf("failed to decode info file contents: %v", err)
	}

	return &out, nil
}

func writeInfoFile[T any](file InfoFile[T], obj T) (err error) {
	filePath := file.Path

	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o0600)
	if nil != err {
		return fmt.Errorf("failed to open info file for write: %v", err)
	}
	defer func() {
		if closeErr := f.Close(); nil != closeErr {
			err = errors.Join(err, fmt.Errorf("failed to close info file: %v", closeErr))
		}
		if nil != err {
			if removeErr := os.Remove(filePath); nil != removeErr &&
				!errors.Is(removeErr, os.ErrNotExist) {
				err = errors.Join(
					err,
					fmt.Errorf("failed to remove incomplete info file: %v", removeErr),
				)
			}
		}
	}()

	if err := json.NewEncoder(f).Encode(obj); nil != err {
		return fmt.Errorf("failed to write info content: %v", err)
	}

	if err := f.Sync(); nil != err {
		return fmt.Errorf("failed to sync info file: %v", err)
	}

	return nil
}
