package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"filedrop/internal/domain/media"
	"filedrop/internal/logging"
	"filedrop/internal/metrics"
)

const (
	defaultSegmentSeconds = 10
	maxStderrBytes        = 2048
)

// OutputPaths resolves where the HLS rendition of a file is written and served.
type OutputPaths interface {
	HLSPaths(filename string) (outputDir, playlistPath, urlPath string)
}

// Converter wraps ffmpeg calls.
type Converter struct {
	Binary            string
	HLSSegmentSeconds int
	Timeout           time.Duration
	paths             OutputPaths
}

// NewConverter creates the ffmpeg adapter. A zero timeout disables the limit.
func NewConverter(binary string, paths OutputPaths, hlsSegmentSeconds int, timeout time.Duration) *Converter {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if hlsSegmentSeconds <= 0 {
		hlsSegmentSeconds = defaultSegmentSeconds
	}
	return &Converter{
		Binary:            binary,
		HLSSegmentSeconds: hlsSegmentSeconds,
		Timeout:           timeout,
		paths:             paths,
	}
}

// Transcode converts inputPath into an HLS rendition named after
// originalFilename. The returned channel yields exactly one result and is then
// closed. Cancelling ctx kills the ffmpeg process. Partial output is not
// removed on failure.
func (c *Converter) Transcode(ctx context.Context, inputPath, originalFilename string) <-chan media.TranscodeResult {
	out := make(chan media.TranscodeResult, 1)

	base := media.StreamName(originalFilename)
	if base == "" || base == "." || base == ".." {
		out <- media.TranscodeResult{Err: fmt.Errorf("transcode %q: %w", originalFilename, media.ErrInvalidFileName)}
		close(out)
		return out
	}

	go func() {
		defer close(out)

		if _, err := os.Stat(inputPath); err != nil {
			out <- media.TranscodeResult{Err: fmt.Errorf("transcode input: %w", err)}
			return
		}

		runCtx := ctx
		if c.Timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, c.Timeout)
			defer cancel()
		}

		outputDir, playlistPath, urlPath := c.paths.HLSPaths(originalFilename)
		logging.Info("generating HLS stream",
			zap.String("input", inputPath),
			zap.String("filename", originalFilename),
			zap.String("output", outputDir))

		finished := metrics.TranscodeStarted()
		err := c.ConvertHLS(runCtx, inputPath, outputDir, playlistPath)
		finished(err)
		if err != nil {
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("transcode timed out after %s: %w", c.Timeout, err)
			}
			out <- media.TranscodeResult{Err: err}
			return
		}

		logging.Info("HLS generation complete", zap.String("url", urlPath))
		out <- media.TranscodeResult{ManifestURL: urlPath}
	}()

	return out
}

// ConvertHLS converts a source media file into an unbounded HLS playlist and
// fixed-length segments.
func (c *Converter) ConvertHLS(ctx context.Context, inputPath, outputDir, playlistPath string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	args := []string{
		"-y",
		"-i", inputPath,
		"-profile:v", "baseline",
		"-level", "3.0",
		"-start_number", "0",
		"-hls_time", fmt.Sprintf("%d", c.HLSSegmentSeconds),
		"-hls_list_size", "0",
		"-f", "hls",
		playlistPath,
	}
	logging.Debug("ffmpeg command", zap.String("command", c.Binary+" "+strings.Join(args, " ")))

	return run(ctx, c.Binary, args...)
}

func run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Stdout = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w: %s", name, err, tail(stderr.String(), maxStderrBytes))
	}
	return nil
}

func tail(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}
