package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamsplit/jamsplit/internal/faults"
)

// fakeDecoder writes a shell script standing in for ffmpeg: it streams the
// given PCM to stdout, logs one line to stderr, and exits with the given
// status.
func fakeDecoder(t *testing.T, pcm []byte, exit int) string {
	t.Helper()
	dir := t.TempDir()

	pcmPath := filepath.Join(dir, "stream.pcm")
	require.NoError(t, os.WriteFile(pcmPath, pcm, 0600))

	script := fmt.Sprintf("#!/bin/sh\ncat %q\necho 'moov atom not found' >&2\nexit %d\n", pcmPath, exit)
	path := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0700))
	return path
}

func writeSource(t *testing.T) string {
	t.Helper()
	src := filepath.Join(t.TempDir(), "jam.m4a")
	require.NoError(t, os.WriteFile(src, []byte("container bytes"), 0600))
	return src
}

// pcmSeconds encodes n seconds of constant-amplitude s16le mono PCM.
func pcmSeconds(n int, amplitude int16) []byte {
	buf := make([]byte, n*bytesPerWindow)
	for i := 0; i < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(amplitude))
	}
	return buf
}

func TestProfileFromPCM(t *testing.T) {
	// Two seconds at half scale, one second of digital silence.
	data := append(pcmSeconds(2, 16384), pcmSeconds(1, 0)...)

	profile, err := profileFromPCM(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, profile, 3)

	// Constant half-scale signal: 10*log10(0.25) ≈ -6.02 dBFS.
	wantDB := 10 * math.Log10(0.25)
	assert.InDelta(t, wantDB, profile[0], 0.01)
	assert.InDelta(t, wantDB, profile[1], 0.01)
	assert.Equal(t, FloorDB, profile[2])
}

func TestProfileFromPCMDropsPartialWindow(t *testing.T) {
	// One full second plus a half window: the partial second is dropped.
	data := append(pcmSeconds(1, 1000), make([]byte, bytesPerWindow/2)...)

	profile, err := profileFromPCM(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Len(t, profile, 1)
}

func TestProfileFromPCMEmpty(t *testing.T) {
	profile, err := profileFromPCM(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, profile)
}

func TestProfileRejectsPartialDecode(t *testing.T) {
	// The decoder emits three seconds of PCM and then dies. The partial
	// profile must not pass for a successful analysis.
	ff := NewFFmpeg(fakeDecoder(t, pcmSeconds(3, 1000), 1))

	profile, err := ff.Profile(context.Background(), writeSource(t))
	require.Error(t, err)
	assert.Nil(t, profile)
	assert.True(t, faults.Is(err, faults.KindDecode))
	assert.Contains(t, err.Error(), "moov atom not found")
}

func TestProfileCleanExit(t *testing.T) {
	ff := NewFFmpeg(fakeDecoder(t, pcmSeconds(2, 16384), 0))

	profile, err := ff.Profile(context.Background(), writeSource(t))
	require.NoError(t, err)
	assert.Len(t, profile, 2)
}

func TestProfileEmptyStream(t *testing.T) {
	ff := NewFFmpeg(fakeDecoder(t, nil, 0))

	_, err := ff.Profile(context.Background(), writeSource(t))
	require.Error(t, err)
	assert.True(t, faults.Is(err, faults.KindDecode))
}

func TestWindowRMSDBFullScale(t *testing.T) {
	window := pcmSeconds(1, -32768)
	assert.InDelta(t, 0, windowRMSDB(window), 0.001)
}

func TestParseDuration(t *testing.T) {
	output := `Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'jam.m4a':
  Duration: 01:23:45.67, start: 0.000000, bitrate: 192 kb/s`

	dur, err := parseDuration(output)
	require.NoError(t, err)
	assert.InDelta(t, 1*3600+23*60+45.67, dur, 0.001)
}

func TestParseDurationMillisPrecision(t *testing.T) {
	dur, err := parseDuration("Duration: 00:00:09.500, start")
	require.NoError(t, err)
	assert.InDelta(t, 9.5, dur, 0.0001)
}

func TestParseDurationMissing(t *testing.T) {
	_, err := parseDuration("jam.m4a: Invalid data found when processing input")
	assert.Error(t, err)
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "real error", lastLine("banner\nnoise\nreal error\n"))
	assert.Equal(t, "", lastLine(""))
}
