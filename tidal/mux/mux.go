package mux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/xeptore/tdl/config"
)

const (
	mimeTypeFLAC   = "audio/flac"
	maxStderrBytes = 64 * 1024
)

var ErrUnexpectedContainer = errors.New("muxer produced an unexpected container")

// ExitError is returned when the muxer process exits with a non-zero status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("muxer exited with code %d: %s", e.Code, e.Stderr)
}

// stderrBuffer keeps the first maxStderrBytes written to it and discards the rest.
type stderrBuffer struct {
	buf bytes.Buffer
}

func (b *stderrBuffer) Write(p []byte) (int, error) {
	if room := maxStderrBytes - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(room, len(p))])
	}
	return len(p), nil
}

func (b *stderrBuffer) String() string {
	return b.buf.String()
}

type Muxer struct {
	conf config.Muxer
}

func New(conf config.Muxer) *Muxer {
	return &Muxer{conf: conf}
}

func (m *Muxer) args(outPath string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-protocol_whitelist", m.conf.ProtocolWhitelist,
		"-i", "-",
		"-c", "copy",
		outPath,
	}
}

// Mux pipes manifest into the muxer process and stream-copies the result into a FLAC file at outPath.
func (m *Muxer) Mux(ctx context.Context, logger zerolog.Logger, manifest []byte, outPath string) error {
	cmd := exec.CommandContext(ctx, m.conf.FFmpegPath, m.args(outPath)...)
	logger = logger.With().Str("cmd", cmd.String()).Logger()

	stdin, err := cmd.StdinPipe()
	if nil != err {
		logger.Error().Err(err).Msg("Failed to open muxer stdin")
		return fmt.Errorf("open muxer stdin: %v", err)
	}

	stderr, err := cmd.StderrPipe()
	if nil != err {
		logger.Error().Err(err).Msg("Failed to open muxer stderr")
		return errors.Join(fmt.Errorf("open muxer stderr: %v", err), stdin.Close())
	}

	if err := cmd.Start(); nil != err {
		logger.Error().Err(err).Msg("Failed to start muxer")
		return errors.Join(fmt.Errorf("start muxer: %v", err), stdin.Close())
	}

	var (
		stderrBuf stderrBuffer
		wg        errgroup.Group
	)
	wg.Go(func() (err error) {
		defer func() {
			if closeErr := stdin.Close(); nil != closeErr {
				err = errors.Join(err, closeErr)
			}
		}()

		if _, err := stdin.Write(manifest); nil != err {
			return fmt.Errorf("write manifest to muxer: %v", err)
		}
		return nil
	})
	wg.Go(func() error {
		if _, err := io.Copy(&stderrBuf, stderr); nil != err {
			return fmt.Errorf("read muxer stderr: %v", err)
		}
		return nil
	})
	pipeErr := wg.Wait()

	if err := cmd.Wait(); nil != err {
		if ctxErr := ctx.Err(); nil != ctxErr {
			return ctxErr
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderrBuf.String())
			logger.Error().Int("exit_code", exitErr.ExitCode()).Str("stderr", msg).Msg("Muxer exited with failure")
			return &ExitError{Code: exitErr.ExitCode(), Stderr: msg}
		}

		logger.Error().Err(err).Msg("Failed to wait for muxer")
		return fmt.Errorf("wait for muxer: %v", err)
	}

	if nil != pipeErr {
		logger.Error().Err(pipeErr).Msg("Muxer pipe failed")
		return pipeErr
	}

	mime, err := mimetype.DetectFile(outPath)
	if nil != err {
		logger.Error().Err(err).Msg("Failed to detect muxer output type")
		return fmt.Errorf("%w: %v", ErrUnexpectedContainer, err)
	}

	if !mime.Is(mimeTypeFLAC) {
		logger.Error().Str("mime", mime.String()).Msg("Muxer output is not FLAC")
		return fmt.Errorf("%w: %s", ErrUnexpectedContainer, mime.String())
	}

	return nil
}
