// Package flactest builds minimal FLAC streams for tests.
package flactest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Bytes returns a FLAC stream made of STREAMINFO and PADDING blocks followed by a couple of frame bytes.
// It is enough for metadata parsing and content sniffing, not for decoding.
func Bytes() []byte {
	b := []byte("fLaC")
	// type STREAMINFO, 34 bytes long
	b = append(b, 0x00, 0x00, 0x00, 0x22)
	b = append(b,
		0x10, 0x00, // min block size
		0x10, 0x00, // max block size
		0x00, 0x00, 0x00, // min frame size
		0x00, 0x00, 0x00, // max frame size
		0x0A, 0xC4, 0x42, 0xF0, 0x00, 0x00, 0x00, 0x00, // 44100Hz, 2 channels, 16 bits
	)
	b = append(b, make([]byte, 16)...) // md5
	// last metadata block, type PADDING, 4 bytes long
	b = append(b, 0x81, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00)
	return append(b, 0xFF, 0xF8)
}

// WriteFile writes Bytes to name under a fresh test directory and returns its path.
func WriteFile(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, Bytes(), 0o600))
	return path
}
