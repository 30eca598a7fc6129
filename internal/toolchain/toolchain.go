// Package toolchain wraps the ffmpeg/ffprobe binaries into the small set of
// synchronous media operations the processing orchestrator needs: frame
// extraction, probing, lossless concatenation, crossfade stitching,
// audio/video merging and final transcoding. It is built directly on top of
// internal/ffmpeg's CommandBuilder and Prober rather than reimplementing
// child-process handling.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/promptvid/internal/ffmpeg"
)

// ToolchainError wraps a failed ffmpeg/ffprobe invocation with its captured
// stderr output.
type ToolchainError struct {
	Op     string
	Args   []string
	Stderr string
	Err    error
}

// Error implements the error interface.
func (e *ToolchainError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, stderr)
}

// Unwrap allows errors.Is/As to see the underlying exec error.
func (e *ToolchainError) Unwrap() error { return e.Err }

// ProbeResult is the simplified video-stream probe result.
type ProbeResult struct {
	Duration float64
	Width    int
	Height   int
	FPS      float64
	Codec    string
}

// ProbeMediaResult is the simplified any-media probe result.
type ProbeMediaResult struct {
	Duration   float64
	Format     string
	Bitrate    int
	Channels   int
	SampleRate int
}

// Toolchain is the media-toolchain adapter described by the orchestrator
// design: it abstracts ffmpeg/ffprobe invocation behind a small synchronous
// operation set.
type Toolchain struct {
	detector *ffmpeg.BinaryDetector
	prober   *ffmpeg.Prober
}

// New creates a Toolchain that locates ffmpeg/ffprobe via the BinaryDetector
// (PATH search, PROMPTVID_FFMPEG_BINARY/PROMPTVID_FFPROBE_BINARY overrides).
func New() *Toolchain {
	return &Toolchain{
		detector: ffmpeg.NewBinaryDetector(),
		prober:   ffmpeg.NewProber(ffprobeBinary()),
	}
}

// ffprobeBinary resolves the ffprobe binary the same way BinaryDetector
// resolves ffmpeg: an explicit override env var, falling back to PATH.
func ffprobeBinary() string {
	if path := os.Getenv("PROMPTVID_FFPROBE_BINARY"); path != "" {
		return path
	}
	return "ffprobe"
}

// ffmpegBinary resolves the ffmpeg binary path.
func (t *Toolchain) ffmpegBinary(ctx context.Context) (string, error) {
	info, err := t.detector.Detect(ctx)
	if err != nil {
		return "", fmt.Errorf("detecting ffmpeg binary: %w", err)
	}
	return info.FFmpegPath, nil
}

// run executes a built ffmpeg Command synchronously, capturing stderr for
// error reporting. Command/CommandBuilder's own Run does not capture
// stderr, so the toolchain drives exec directly from the built Binary/Args,
// mirroring what Command.Run does internally.
func (t *Toolchain) run(ctx context.Context, op string, cmd *ffmpeg.Command) error {
	var stderr bytes.Buffer
	execCmd := exec.CommandContext(ctx, cmd.Binary, cmd.Args...)
	execCmd.Stderr = &stderr

	if err := execCmd.Run(); err != nil {
		return &ToolchainError{Op: op, Args: cmd.Args, Stderr: stderr.String(), Err: err}
	}
	return nil
}

// ExtractLastFrame reaches back 0.1s from EOF and emits a single
// high-quality frame.
func (t *Toolchain) ExtractLastFrame(ctx context.Context, video, imageOut string) error {
	bin, err := t.ffmpegBinary(ctx)
	if err != nil {
		return err
	}
	cmd := ffmpeg.NewCommandBuilder(bin).
		HideBanner().
		Overwrite().
		InputArgs("-sseof", "-0.1").
		Input(video).
		OutputArgs("-frames:v", "1", "-q:v", "2").
		Output(imageOut).
		Build()
	return t.run(ctx, "extractLastFrame", cmd)
}

// ExtractFrameAt emits a single frame at the given timestamp (seconds).
func (t *Toolchain) ExtractFrameAt(ctx context.Context, video string, ts float64, imageOut string) error {
	bin, err := t.ffmpegBinary(ctx)
	if err != nil {
		return err
	}
	cmd := ffmpeg.NewCommandBuilder(bin).
		HideBanner().
		Overwrite().
		InputArgs("-ss", fmt.Sprintf("%f", ts)).
		Input(video).
		OutputArgs("-frames:v", "1", "-q:v", "2").
		Output(imageOut).
		Build()
	return t.run(ctx, "extractFrameAt", cmd)
}

// GenerateThumbnail emits a 1280x720 preview frame at ts (default 2s).
func (t *Toolchain) GenerateThumbnail(ctx context.Context, video, imageOut string, ts float64) error {
	if ts <= 0 {
		ts = 2
	}
	bin, err := t.ffmpegBinary(ctx)
	if err != nil {
		return err
	}
	cmd := ffmpeg.NewCommandBuilder(bin).
		HideBanner().
		Overwrite().
		InputArgs("-ss", fmt.Sprintf("%f", ts)).
		Input(video).
		VideoFilter("scale=1280:720").
		OutputArgs("-frames:v", "1", "-q:v", "2").
		Output(imageOut).
		Build()
	return t.run(ctx, "generateThumbnail", cmd)
}

// Probe inspects a video file and returns duration/resolution/fps/codec.
func (t *Toolchain) Probe(ctx context.Context, video string) (ProbeResult, error) {
	info, err := t.prober.ProbeSimple(ctx, video)
	if err != nil {
		return ProbeResult{}, &ToolchainError{Op: "probe", Err: err}
	}
	return ProbeResult{
		Duration: float64(info.Duration) / 1000,
		Width:    info.VideoWidth,
		Height:   info.VideoHeight,
		FPS:      info.VideoFramerate,
		Codec:    info.VideoCodec,
	}, nil
}

// ProbeMedia inspects any media file (video or audio) and returns a
// container-agnostic summary.
func (t *Toolchain) ProbeMedia(ctx context.Context, path string) (ProbeMediaResult, error) {
	info, err := t.prober.ProbeSimple(ctx, path)
	if err != nil {
		return ProbeMediaResult{}, &ToolchainError{Op: "probeMedia", Err: err}
	}
	return ProbeMediaResult{
		Duration:   float64(info.Duration) / 1000,
		Format:     info.ContainerFormat,
		Bitrate:    info.AudioBitrate,
		Channels:   info.AudioChannels,
		SampleRate: info.AudioSampleRate,
	}, nil
}

// ConcatSimple concatenates segments losslessly via the concat demuxer
// (concat-list file, stream copy).
func (t *Toolchain) ConcatSimple(ctx context.Context, segments []string, out string) error {
	if len(segments) == 0 {
		return fmt.Errorf("concatSimple: no segments given")
	}

	listFile, err := writeConcatList(segments)
	if err != nil {
		return fmt.Errorf("concatSimple: %w", err)
	}
	defer os.Remove(listFile)

	bin, err := t.ffmpegBinary(ctx)
	if err != nil {
		return err
	}
	cmd := ffmpeg.NewCommandBuilder(bin).
		HideBanner().
		Overwrite().
		InputArgs("-f", "concat", "-safe", "0").
		Input(listFile).
		OutputArgs("-c", "copy").
		Output(out).
		Build()
	return t.run(ctx, "concatSimple", cmd)
}

// writeConcatList writes an ffmpeg concat-demuxer list file for the given
// segment paths and returns its path.
func writeConcatList(segments []string) (string, error) {
	f, err := os.CreateTemp("", "promptvid-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("creating concat list file: %w", err)
	}
	defer f.Close()

	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			return "", fmt.Errorf("resolving segment path: %w", err)
		}
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			return "", fmt.Errorf("writing concat list entry: %w", err)
		}
	}
	return f.Name(), nil
}

// StitchCrossfade builds a crossfade filter chain across segments: for
// i = 1..N-1, xfade(fade, duration=fadeDuration,
// offset=i*segmentDuration-i*fadeDuration), re-encoding with H.264 preset
// medium, CRF 23. Offsets are computed from the caller-supplied per-segment
// durations (probed, not nominal) so drift in any one segment's actual
// length does not desync the chain. The composite is scaled to 1280x720; a
// single segment is transcoded to that size without a crossfade.
func (t *Toolchain) StitchCrossfade(ctx context.Context, segments []string, out string, fadeDuration float64, segmentDurations []float64) error {
	n := len(segments)
	if n == 0 {
		return fmt.Errorf("stitchCrossfade: no segments given")
	}
	if n != len(segmentDurations) {
		return fmt.Errorf("stitchCrossfade: segment count %d does not match duration count %d", n, len(segmentDurations))
	}
	if n == 1 {
		return t.Transcode(ctx, segments[0], out, 1280, 720)
	}

	bin, err := t.ffmpegBinary(ctx)
	if err != nil {
		return err
	}

	builder := ffmpeg.NewCommandBuilder(bin).HideBanner().Overwrite()

	inputArgs := make([]string, 0, 2*(n-1))
	for i := 0; i < n-1; i++ {
		inputArgs = append(inputArgs, "-i", segments[i])
	}
	builder.InputArgs(inputArgs...)
	builder.Input(segments[n-1])

	filterComplex, finalLabel := buildCrossfadeFilterGraph(segmentDurations, fadeDuration)
	filterComplex += ";" + finalLabel + "scale=1280:720[vout]"
	finalLabel = "[vout]"

	outputArgs := []string{
		"-filter_complex", filterComplex,
		"-map", finalLabel,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
	}
	builder.OutputArgs(outputArgs...)
	builder.Output(out)

	cmd := builder.Build()
	return t.run(ctx, "stitchCrossfade", cmd)
}

// buildCrossfadeFilterGraph builds the chained xfade filter_complex string
// for n inputs (len(durations)), returning the graph and the label of its
// final output stream.
func buildCrossfadeFilterGraph(durations []float64, fadeDuration float64) (string, string) {
	n := len(durations)
	var b strings.Builder

	elapsed := durations[0]
	prevLabel := "[0:v]"
	for i := 1; i < n; i++ {
		var offset float64
		if i == 1 {
			offset = durations[0] - fadeDuration
		} else {
			offset = elapsed - fadeDuration
		}
		outLabel := fmt.Sprintf("[vx%d]", i)
		fmt.Fprintf(&b, "%s[%d:v]xfade=transition=fade:duration=%.3f:offset=%.3f%s;",
			prevLabel, i, fadeDuration, offset, outLabel)
		elapsed = elapsed + durations[i] - fadeDuration
		prevLabel = outLabel
	}

	graph := strings.TrimSuffix(b.String(), ";")
	return graph, prevLabel
}

// MergeAV copies the video stream and encodes the audio track to AAC
// 192kbps, optionally trimming to the shorter of the two inputs.
func (t *Toolchain) MergeAV(ctx context.Context, video, audio, out string, trimToShortest bool) error {
	bin, err := t.ffmpegBinary(ctx)
	if err != nil {
		return err
	}
	builder := ffmpeg.NewCommandBuilder(bin).
		HideBanner().
		Overwrite().
		InputArgs("-i", video).
		Input(audio)

	outputArgs := []string{"-c:v", "copy", "-c:a", "aac", "-b:a", "192k"}
	if trimToShortest {
		outputArgs = append(outputArgs, "-shortest")
	}
	builder.OutputArgs(outputArgs...)
	builder.Output(out)

	cmd := builder.Build()
	return t.run(ctx, "mergeAV", cmd)
}

// Transcode scales a video to w x h, re-encoding with H.264 preset medium,
// CRF 23, copying the audio track.
func (t *Toolchain) Transcode(ctx context.Context, in, out string, w, h int) error {
	bin, err := t.ffmpegBinary(ctx)
	if err != nil {
		return err
	}
	cmd := ffmpeg.NewCommandBuilder(bin).
		HideBanner().
		Overwrite().
		Input(in).
		VideoFilter(fmt.Sprintf("scale=%d:%d", w, h)).
		VideoCodec("libx264").
		VideoPreset("medium").
		OutputArgs("-crf", "23", "-c:a", "copy").
		Output(out).
		Build()
	return t.run(ctx, "transcode", cmd)
}

// AdjustAudio reconciles an audio track's duration with targetDuration: a
// byte-copy when the difference is within 0.5s, a silence pad when the
// audio is shorter, or a tempo scale (atempo=audio/target) when longer.
func (t *Toolchain) AdjustAudio(ctx context.Context, audio string, audioDuration, targetDuration float64, out string) error {
	diff := audioDuration - targetDuration
	if diff < 0 {
		diff = -diff
	}
	if diff <= 0.5 {
		data, err := os.ReadFile(audio)
		if err != nil {
			return fmt.Errorf("adjustAudio: reading source: %w", err)
		}
		if err := os.WriteFile(out, data, 0640); err != nil {
			return fmt.Errorf("adjustAudio: writing copy: %w", err)
		}
		return nil
	}

	bin, err := t.ffmpegBinary(ctx)
	if err != nil {
		return err
	}

	builder := ffmpeg.NewCommandBuilder(bin).HideBanner().Overwrite().Input(audio)

	if audioDuration < targetDuration {
		builder.OutputArgs(
			"-af", fmt.Sprintf("apad=whole_dur=%.3f", targetDuration),
			"-c:a", "libmp3lame", "-b:a", "192k",
		)
	} else {
		ratio := audioDuration / targetDuration
		builder.OutputArgs(
			"-af", fmt.Sprintf("atempo=%.6f", clampAtempo(ratio)),
			"-c:a", "libmp3lame", "-b:a", "192k",
		)
	}
	builder.Output(out)

	cmd := builder.Build()
	return t.run(ctx, "adjustAudio", cmd)
}

// clampAtempo keeps the atempo filter's ratio within ffmpeg's supported
// [0.5, 100.0] range for a single atempo stage.
func clampAtempo(ratio float64) float64 {
	if ratio < 0.5 {
		return 0.5
	}
	if ratio > 100 {
		return 100
	}
	return ratio
}

// SyncResult is the outcome of comparing an audio track's duration against
// its paired video, per §4.6.
type SyncResult struct {
	InSync         bool
	VideoDuration  float64
	AudioDuration  float64
	Diff           float64
	Recommendation string
}

// Recommendation strings returned by Verify.
const (
	RecommendationNone    = "none"
	RecommendationPad     = "pad"
	RecommendationTempoUp = "tempo_up"
)

// Verify compares a video and audio file's probed durations and recommends
// how to reconcile them: padding with silence if the audio is shorter,
// speeding it up if longer, or no action if within tolerance.
func (t *Toolchain) Verify(ctx context.Context, videoPath, audioPath string, tolerance float64) (SyncResult, error) {
	videoInfo, err := t.Probe(ctx, videoPath)
	if err != nil {
		return SyncResult{}, fmt.Errorf("verify: probing video: %w", err)
	}
	audioInfo, err := t.ProbeMedia(ctx, audioPath)
	if err != nil {
		return SyncResult{}, fmt.Errorf("verify: probing audio: %w", err)
	}

	return CompareDurations(videoInfo.Duration, audioInfo.Duration, tolerance), nil
}

// CompareDurations compares an already-probed video/audio duration pair and
// recommends how to reconcile them. Verify is a thin wrapper that probes
// both files first; callers that already hold probed durations (e.g. the
// audio stage, which stitches before narration is synthesized) can call
// this directly instead of re-probing.
func CompareDurations(videoDuration, audioDuration, tolerance float64) SyncResult {
	if tolerance <= 0 {
		tolerance = 2
	}

	diff := audioDuration - videoDuration
	result := SyncResult{
		VideoDuration: videoDuration,
		AudioDuration: audioDuration,
		Diff:          diff,
		InSync:        diff >= -tolerance && diff <= tolerance,
	}

	switch {
	case result.InSync:
		result.Recommendation = RecommendationNone
	case diff > 0:
		result.Recommendation = RecommendationTempoUp
	default:
		result.Recommendation = RecommendationPad
	}

	return result
}

// MergedVerification is the outcome of inspecting a merged deliverable's
// stream composition, per §4.6's verifyMerged.
type MergedVerification struct {
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
	AudioCodec string
	Duration   float64
}

// VerifyMerged inspects a merged output file and reports whether it carries
// both a video and an audio stream, their codecs, and its duration.
func (t *Toolchain) VerifyMerged(ctx context.Context, path string) (MergedVerification, error) {
	info, err := t.prober.ProbeSimple(ctx, path)
	if err != nil {
		return MergedVerification{}, &ToolchainError{Op: "verifyMerged", Err: err}
	}
	return MergedVerification{
		HasVideo:   info.VideoCodec != "",
		HasAudio:   info.AudioCodec != "",
		VideoCodec: info.VideoCodec,
		AudioCodec: info.AudioCodec,
		Duration:   float64(info.Duration) / 1000,
	}, nil
}

// ValidationResult is the outcome of validating a finished deliverable
// against the minimum acceptable resolution and duration, per §4.6's
// validate.
type ValidationResult struct {
	IsValid  bool
	Errors   []string
	Warnings []string
}

const (
	minValidWidth    = 480
	minValidHeight   = 270
	minValidDuration = 10.0
)

// Validate refuses a deliverable whose resolution falls below 480x270 and
// warns (without failing) when its duration is under 10 seconds.
func (t *Toolchain) Validate(ctx context.Context, path string) (ValidationResult, error) {
	probe, err := t.Probe(ctx, path)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("validate: probing: %w", err)
	}

	result := ValidationResult{IsValid: true}
	if probe.Width < minValidWidth || probe.Height < minValidHeight {
		result.IsValid = false
		result.Errors = append(result.Errors, fmt.Sprintf(
			"resolution %dx%d is below the minimum %dx%d", probe.Width, probe.Height, minValidWidth, minValidHeight))
	}
	if probe.Duration < minValidDuration {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"duration %.1fs is under the %.0fs recommended minimum", probe.Duration, minValidDuration))
	}
	return result, nil
}
