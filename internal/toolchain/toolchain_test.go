package toolchain

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
}

func skipIfNoFFprobe(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not installed")
	}
}

func TestCompareDurations_InSync(t *testing.T) {
	result := CompareDurations(60, 61, 2)
	assert.True(t, result.InSync)
	assert.Equal(t, RecommendationNone, result.Recommendation)
	assert.InDelta(t, 1.0, result.Diff, 0.001)
}

func TestCompareDurations_AudioLonger(t *testing.T) {
	result := CompareDurations(60, 63, 2)
	assert.False(t, result.InSync)
	assert.Equal(t, RecommendationTempoUp, result.Recommendation)
}

func TestCompareDurations_AudioShorter(t *testing.T) {
	result := CompareDurations(60, 55, 2)
	assert.False(t, result.InSync)
	assert.Equal(t, RecommendationPad, result.Recommendation)
}

func TestCompareDurations_DefaultTolerance(t *testing.T) {
	// tolerance <= 0 falls back to the default of 2s.
	result := CompareDurations(60, 61.5, 0)
	assert.True(t, result.InSync)
}

func TestClampAtempo(t *testing.T) {
	assert.Equal(t, 0.5, clampAtempo(0.1))
	assert.Equal(t, 100.0, clampAtempo(500))
	assert.Equal(t, 1.5, clampAtempo(1.5))
}

func TestBuildCrossfadeFilterGraph(t *testing.T) {
	graph, finalLabel := buildCrossfadeFilterGraph([]float64{12, 12, 12}, 0.5)

	assert.Contains(t, graph, "xfade=transition=fade:duration=0.500:offset=11.500")
	assert.Contains(t, graph, "[vx1]")
	assert.Contains(t, graph, "[vx2]")
	assert.Equal(t, "[vx2]", finalLabel)
}

func TestToolchainError_Error(t *testing.T) {
	err := &ToolchainError{Op: "probe", Err: assertError("boom"), Stderr: "  some stderr  "}
	assert.Contains(t, err.Error(), "probe")
	assert.Contains(t, err.Error(), "some stderr")

	noStderr := &ToolchainError{Op: "probe", Err: assertError("boom")}
	assert.NotContains(t, noStderr.Error(), ":  ")
}

type assertError string

func (e assertError) Error() string { return string(e) }

// TestIntegration_Toolchain_ExtractAndProbe exercises the real ffmpeg/
// ffprobe binaries end to end: generate a short test clip, extract its
// last frame, probe it, and adjust a synthetic narration track against it.
func TestIntegration_Toolchain_ExtractAndProbe(t *testing.T) {
	skipIfNoFFmpeg(t)
	skipIfNoFFprobe(t)

	dir := t.TempDir()
	video := filepath.Join(dir, "clip.mp4")
	audio := filepath.Join(dir, "narration.mp3")

	ctx := context.Background()
	require.NoError(t, exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=3:size=320x240:rate=25",
		"-f", "lavfi", "-i", "sine=duration=3:frequency=440:sample_rate=44100",
		"-c:v", "libx264", "-preset", "ultrafast",
		"-c:a", "aac",
		video).Run())
	require.NoError(t, exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "lavfi", "-i", "sine=duration=5:frequency=220:sample_rate=44100",
		"-c:a", "libmp3lame",
		audio).Run())

	tc := New()

	frameOut := filepath.Join(dir, "last.jpg")
	require.NoError(t, tc.ExtractLastFrame(ctx, video, frameOut))
	_, err := os.Stat(frameOut)
	require.NoError(t, err)

	probe, err := tc.Probe(ctx, video)
	require.NoError(t, err)
	assert.Equal(t, 320, probe.Width)
	assert.Equal(t, 240, probe.Height)
	assert.InDelta(t, 3.0, probe.Duration, 0.5)

	sync, err := tc.Verify(ctx, video, audio, 2)
	require.NoError(t, err)
	assert.Equal(t, RecommendationTempoUp, sync.Recommendation)

	adjusted := filepath.Join(dir, "adjusted.mp3")
	require.NoError(t, tc.AdjustAudio(ctx, audio, 5.0, 3.0, adjusted))
	adjustedProbe, err := tc.ProbeMedia(ctx, adjusted)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, adjustedProbe.Duration, 0.5)
}

func TestIntegration_Toolchain_ValidateRejectsLowResolution(t *testing.T) {
	skipIfNoFFmpeg(t)
	skipIfNoFFprobe(t)

	dir := t.TempDir()
	video := filepath.Join(dir, "tiny.mp4")

	ctx := context.Background()
	require.NoError(t, exec.CommandContext(ctx, "ffmpeg", "-y",
		"-f", "lavfi", "-i", "testsrc=duration=1:size=160x120:rate=10",
		"-c:v", "libx264", "-preset", "ultrafast",
		video).Run())

	tc := New()
	result, err := tc.Validate(ctx, video)
	require.NoError(t, err)
	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Errors)
}
