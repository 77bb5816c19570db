// Package audio wraps the ffmpeg/ffprobe binaries used to probe, slice,
// compress, and stitch the episode and clip audio moving through the
// pipeline. Every operation shells out via os/exec — there is no cgo
// audio decoding in this codebase, matching how the rest of this repo
// handles media.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"sifter/internal/config"
)

// The canonical output format every digest and clip is coerced into before
// being handed to the stitcher is 128kbps/44.1kHz/stereo MP3. LowBitrate is
// the encode the transcription stage compresses to when an episode download
// is too large for STT; MidBitrate is a further Compress option.
const (
	CanonicalBitrate    = "128k"
	MidBitrate          = "96k"
	LowBitrate          = "64k"
	CanonicalSampleRate = "44100"
	CanonicalChannels   = "2"
)

// Track is one input to MixTracks: a file played at volume (0..1).
type Track struct {
	Path   string
	Volume float64
}

// ProbeResult is the subset of ffprobe's format block this pipeline reads.
type ProbeResult struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
	} `json:"format"`
}

// Probe returns the duration in seconds of the audio file at path.
func Probe(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, config.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, stderr.String())
	}

	var result ProbeResult
	if err := json.Unmarshal(out, &result); err != nil {
		return 0, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", result.Format.Duration, err)
	}
	return duration, nil
}

// Available reports whether ffmpeg and ffprobe can be executed, so callers
// can fail fast with a clear error before queueing work.
func Available(ctx context.Context) error {
	for _, bin := range []string{config.FFmpegPath, config.FFprobePath} {
		if err := exec.CommandContext(ctx, bin, "-version").Run(); err != nil {
			return fmt.Errorf("%s not usable: %w", bin, err)
		}
	}
	return nil
}

// SliceClip extracts [start, end) seconds from srcPath into dstPath,
// re-encoded to the canonical format. The seek flag is placed before -i so
// ffmpeg can use its fast keyframe-seek path rather than decoding from the
// start of the file.
func SliceClip(ctx context.Context, srcPath string, start, end float64, dstPath string) error {
	duration := end - start
	if duration <= 0 {
		return fmt.Errorf("slice clip: non-positive duration %.3f (start=%.3f end=%.3f)", duration, start, end)
	}
	return run(ctx, config.FFmpegPath,
		"-ss", formatSeconds(start),
		"-i", srcPath,
		"-t", formatSeconds(duration),
		"-ar", CanonicalSampleRate,
		"-ac", CanonicalChannels,
		"-b:a", CanonicalBitrate,
		"-y", dstPath,
	)
}

// Compress re-encodes srcPath into dstPath at bitrate (one of LowBitrate,
// MidBitrate, CanonicalBitrate), without trimming. Used to shrink an
// episode download that exceeds the STT provider's upload limit before
// chunking it.
func Compress(ctx context.Context, srcPath, dstPath string, bitrate string) error {
	return run(ctx, config.FFmpegPath,
		"-i", srcPath,
		"-ar", CanonicalSampleRate,
		"-ac", CanonicalChannels,
		"-b:a", bitrate,
		"-y", dstPath,
	)
}

// AddFades applies a linear fade-in and fade-out of durationSeconds to
// srcPath, writing the result to dstPath. Used on clips before
// concatenation so adjacent segments don't click at their boundaries.
func AddFades(ctx context.Context, srcPath string, durationSeconds float64, dstPath string) error {
	clipDuration, err := Probe(ctx, srcPath)
	if err != nil {
		return fmt.Errorf("add fades: probe %s: %w", srcPath, err)
	}
	fadeOutStart := clipDuration - durationSeconds
	if fadeOutStart < 0 {
		fadeOutStart = 0
	}
	filter := fmt.Sprintf("afade=t=in:st=0:d=%.3f,afade=t=out:st=%.3f:d=%.3f", durationSeconds, fadeOutStart, durationSeconds)
	return run(ctx, config.FFmpegPath,
		"-i", srcPath,
		"-af", filter,
		"-y", dstPath,
	)
}

// Concatenate joins parts (already in the canonical format) in order into
// dstPath, using ffmpeg's concat demuxer via a generated list file. A
// single part is copied unchanged rather than re-encoded.
func Concatenate(ctx context.Context, parts []string, dstPath string) error {
	if len(parts) == 0 {
		return fmt.Errorf("concatenate: no parts given")
	}
	if len(parts) == 1 {
		return copyFile(parts[0], dstPath)
	}
	listFile, cleanup, err := writeConcatList(parts)
	if err != nil {
		return fmt.Errorf("concatenate: %w", err)
	}
	defer cleanup()

	return run(ctx, config.FFmpegPath,
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-ar", CanonicalSampleRate,
		"-ac", CanonicalChannels,
		"-b:a", CanonicalBitrate,
		"-y", dstPath,
	)
}

func copyFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("concatenate: copy %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("concatenate: copy to %s: %w", dstPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("concatenate: copy %s to %s: %w", srcPath, dstPath, err)
	}
	return nil
}

// MixTracks layers tracks together, each at its own volume (0..1), writing
// the result to dstPath. The output duration is the longest track. Used to
// duck narrator voiceover under a faint background bed and, more generally,
// to combine any number of simultaneous audio beds.
func MixTracks(ctx context.Context, tracks []Track, dstPath string) error {
	if len(tracks) == 0 {
		return fmt.Errorf("mix tracks: no tracks given")
	}
	if len(tracks) == 1 {
		return run(ctx, config.FFmpegPath,
			"-i", tracks[0].Path,
			"-af", fmt.Sprintf("volume=%.2f", tracks[0].Volume),
			"-ar", CanonicalSampleRate,
			"-ac", CanonicalChannels,
			"-b:a", CanonicalBitrate,
			"-y", dstPath,
		)
	}

	args := make([]string, 0, len(tracks)*2+6)
	var labels strings.Builder
	for i, tr := range tracks {
		args = append(args, "-i", tr.Path)
		fmt.Fprintf(&labels, "[%d:a]volume=%.2f[a%d];", i, tr.Volume, i)
	}
	for i := range tracks {
		fmt.Fprintf(&labels, "[a%d]", i)
	}
	fmt.Fprintf(&labels, "amix=inputs=%d:duration=longest:dropout_transition=2", len(tracks))

	args = append(args,
		"-filter_complex", labels.String(),
		"-ar", CanonicalSampleRate,
		"-ac", CanonicalChannels,
		"-b:a", CanonicalBitrate,
		"-y", dstPath,
	)
	return run(ctx, config.FFmpegPath, args...)
}

func run(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	slog.Debug("running ffmpeg", "args", args)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %s", bin, strings.Join(args, " "), err, string(output))
	}
	return nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
