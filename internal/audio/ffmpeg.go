package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/jamsplit/jamsplit/internal/faults"
)

// FFmpeg implements Analyzer and Slicer using the ffmpeg CLI.
type FFmpeg struct {
	ffmpegPath string
}

// NewFFmpeg creates a new FFmpeg wrapper.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpeg(ffmpegPath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFmpeg{ffmpegPath: ffmpegPath}
}

const bytesPerWindow = AnalysisSampleRate * WindowSec * 2 // 16-bit samples

// Profile implements Analyzer.Profile. It pipes s16le mono PCM out of
// ffmpeg and folds it into per-second RMS dBFS values one window at a time.
func (f *FFmpeg) Profile(ctx context.Context, path string) ([]float64, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, faults.Wrap(faults.KindDecode, err, "source file not readable: %s", path)
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-i", path,
		"-ac", "1",
		"-ar", strconv.Itoa(AnalysisSampleRate),
		"-f", "s16le",
		"-hide_banner",
		"-",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	profile, readErr := profileFromPCM(stdout)
	waitErr := cmd.Wait()

	if readErr != nil {
		return nil, fmt.Errorf("read decoded audio: %w", readErr)
	}
	if waitErr != nil {
		// The stream is fully drained before Wait, so a non-zero exit
		// means the decoder gave up mid-file. Whatever PCM it emitted
		// before dying is an incomplete picture of the recording.
		return nil, faults.Wrap(faults.KindDecode, waitErr,
			"decode %s failed: %s", filepath.Base(path), lastLine(stderr.String()))
	}
	if len(profile) == 0 {
		return nil, faults.New(faults.KindDecode,
			"no decodable audio in %s: %s", filepath.Base(path), lastLine(stderr.String()))
	}
	return profile, nil
}

// profileFromPCM reads little-endian 16-bit mono PCM and emits one RMS dBFS
// value per full analysis window. A trailing partial window is dropped.
func profileFromPCM(r io.Reader) ([]float64, error) {
	var profile []float64
	buf := make([]byte, bytesPerWindow)

	for {
		_, err := io.ReadFull(r, buf)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return profile, nil
		}
		if err != nil {
			return nil, err
		}
		profile = append(profile, windowRMSDB(buf))
	}
}

// windowRMSDB computes the RMS level of one window in dBFS.
func windowRMSDB(window []byte) float64 {
	var sumSq float64
	n := len(window) / 2
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(window[i*2:])))
		sumSq += s * s
	}
	meanSq := sumSq / float64(n)
	if meanSq <= 0 {
		return FloorDB
	}
	return 10 * math.Log10(meanSq/(32768*32768))
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// Duration implements Analyzer.Duration by parsing ffmpeg's stderr banner.
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, f.ffmpegPath,
		"-i", path,
		"-hide_banner",
		"-f", "null", "-",
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg exits non-zero with a null muxer; the banner still carries
	// the duration, so only the parse result matters.
	_ = cmd.Run()

	dur, err := parseDuration(stderr.String())
	if err != nil {
		return 0, faults.Wrap(faults.KindDecode, err, "probe %s", filepath.Base(path))
	}
	return dur, nil
}

// parseDuration extracts "Duration: HH:MM:SS.cc" from ffmpeg output.
func parseDuration(output string) (float64, error) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, fmt.Errorf("could not parse duration from ffmpeg output: %s", lastLine(output))
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat(matches[4], 64)

	divisor := 1.0
	for i := 0; i < len(matches[4]); i++ {
		divisor *= 10
	}

	return hours*3600 + minutes*60 + seconds + frac/divisor, nil
}

// Slice implements Slicer.Slice using ffmpeg seek + duration extraction.
func (f *FFmpeg) Slice(ctx context.Context, src, dst string, startSec, endSec float64, format Format) error {
	if endSec <= startSec {
		return faults.New(faults.KindValidation, "invalid slice range [%0.2f, %0.2f)", startSec, endSec)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return faults.Wrap(faults.KindStorage, err, "create output directory")
	}

	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", startSec),
		"-i", src,
		"-t", fmt.Sprintf("%.3f", endSec-startSec),
		"-c:a", format.Codec,
	}
	if format.Bitrate != "" {
		args = append(args, "-b:a", format.Bitrate)
	}
	args = append(args, "-hide_banner", dst)

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Leave no half-written artifact behind.
		_ = os.Remove(dst)
		return faults.Wrap(faults.KindStorage, err, "ffmpeg slice failed: %s", lastLine(stderr.String()))
	}
	return nil
}

// lastLine returns the final non-empty line of s, which for ffmpeg output
// is usually the actual error.
func lastLine(s string) string {
	last := ""
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '\n' {
			if line := s[start:i]; len(bytes.TrimSpace([]byte(line))) > 0 {
				last = line
			}
			start = i + 1
		}
	}
	return last
}

// Compile-time interface checks.
var (
	_ Analyzer = (*FFmpeg)(nil)
	_ Slicer   = (*FFmpeg)(nil)
)
