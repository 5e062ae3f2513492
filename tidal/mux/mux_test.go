package mux_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xeptore/tdl/config"
	"github.com/xeptore/tdl/flactest"
	"github.com/xeptore/tdl/tidal/mux"
)

// fakeMuxer writes a shell script standing in for ffmpeg. The script receives the output path as
// its last argument.
func fakeMuxer(t *testing.T, body string) *mux.Muxer {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake muxer is a shell script")
	}

	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor out; do :; done\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o700)) //nolint:gosec

	return mux.New(config.Muxer{FFmpegPath: path, ProtocolWhitelist: "fd,pipe"})
}

func TestMux(t *testing.T) {
	m := fakeMuxer(t, `cat > "$out"`)
	out := filepath.Join(t.TempDir(), "1.flac")

	require.NoError(t, m.Mux(context.Background(), zerolog.Nop(), flactest.Bytes(), out))

	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, flactest.Bytes(), b)
}

func TestMux_Arguments(t *testing.T) {
	m := fakeMuxer(t, `printf '%s\n' "$@" > "$out.args"; cat > "$out"`)
	out := filepath.Join(t.TempDir(), "1.flac")

	require.NoError(t, m.Mux(context.Background(), zerolog.Nop(), flactest.Bytes(), out))

	b, err := os.ReadFile(out + ".args")
	require.NoError(t, err)
	assert.Equal(
		t,
		[]string{"-hide_banner", "-loglevel", "error", "-y", "-protocol_whitelist", "fd,pipe", "-i", "-", "-c", "copy", out},
		strings.Split(strings.TrimSuffix(string(b), "\n"), "\n"),
	)
}

func TestMux_ExitStatus(t *testing.T) {
	m := fakeMuxer(t, `cat > /dev/null; echo "Invalid data found when processing input" >&2; exit 3`)
	out := filepath.Join(t.TempDir(), "1.flac")

	err := m.Mux(context.Background(), zerolog.Nop(), []byte("garbage"), out)

	var exitErr *mux.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "Invalid data found when processing input", exitErr.Stderr)
}

func TestMux_UnexpectedContainer(t *testing.T) {
	m := fakeMuxer(t, `cat > /dev/null; printf 'not audio' > "$out"`)
	out := filepath.Join(t.TempDir(), "1.flac")

	err := m.Mux(context.Background(), zerolog.Nop(), []byte("manifest"), out)
	require.ErrorIs(t, err, mux.ErrUnexpectedContainer)
}

func TestMux_MissingOutput(t *testing.T) {
	m := fakeMuxer(t, `cat > /dev/null`)
	out := filepath.Join(t.TempDir(), "1.flac")

	err := m.Mux(context.Background(), zerolog.Nop(), []byte("manifest"), out)
	require.ErrorIs(t, err, mux.ErrUnexpectedContainer)
}

func TestMux_MissingExecutable(t *testing.T) {
	m := mux.New(config.Muxer{FFmpegPath: filepath.Join(t.TempDir(), "missing"), ProtocolWhitelist: "fd"})

	err := m.Mux(context.Background(), zerolog.Nop(), []byte("manifest"), filepath.Join(t.TempDir(), "1.flac"))
	require.ErrorContains(t, err, "start muxer")
}

func TestMux_StderrIsCapped(t *testing.T) {
	m := fakeMuxer(t, `cat > /dev/null; head -c 200000 /dev/zero | tr '\0' 'x' >&2; exit 1`)

	err := m.Mux(context.Background(), zerolog.Nop(), []byte("manifest"), filepath.Join(t.TempDir(), "1.flac"))

	var exitErr *mux.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Len(t, exitErr.Stderr, 64*1024)
}
