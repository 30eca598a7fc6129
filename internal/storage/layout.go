package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/shirou/gopsutil/v4/disk"
)

const (
	dirVideos  = "videos"
	dirSegs    = "segments"
	dirFrames  = "frames"
	dirCache   = "cache"
	dirTemp    = "temp"
	dirProcess = "processing"
)

// Layout maps a VideoRun's on-disk artifacts onto the sandboxed storage
// root: <root>/videos/<userId>/<videoId>/..., <root>/cache/segments/...,
// and <root>/temp/processing/....
type Layout struct {
	sandbox *Sandbox
	baseURL string
}

// NewLayout creates a Layout rooted at baseDir, with baseURL used to derive
// public URLs for served files (e.g. "http://localhost:8080").
func NewLayout(baseDir, baseURL string) (*Layout, error) {
	sandbox, err := NewSandbox(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating storage layout sandbox: %w", err)
	}
	return &Layout{sandbox: sandbox, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// BaseDir returns the absolute path to the storage root.
func (l *Layout) BaseDir() string { return l.sandbox.BaseDir() }

// CacheDir returns the relative path to the segment cache root.
func (l *Layout) CacheDir() string { return dirCache }

// TempProcessingDir returns the relative path to the scratch directory used
// while a run is actively processing, creating it if necessary.
func (l *Layout) TempProcessingDir(runID models.ULID) (string, error) {
	rel := filepath.Join(dirTemp, dirProcess, runID.String())
	if err := l.sandbox.MkdirAll(rel); err != nil {
		return "", err
	}
	return l.sandbox.ResolvePath(rel)
}

// videoRoot returns the relative path to a run's video directory.
func videoRoot(userID string, runID models.ULID) string {
	return filepath.Join(dirVideos, userID, runID.String())
}

// RunRoot returns the relative path of a run's video directory, the same
// root SegmentPath, Final720Path and friends are rooted under.
func (l *Layout) RunRoot(userID string, runID models.ULID) string {
	return videoRoot(userID, runID)
}

// CreateRunTree creates the full directory tree for a run (video dir,
// segments/, frames/), returning an error on any filesystem failure.
func (l *Layout) CreateRunTree(ctx context.Context, userID string, runID models.ULID) error {
	root := videoRoot(userID, runID)
	if err := l.sandbox.MkdirAll(filepath.Join(root, dirSegs)); err != nil {
		return fmt.Errorf("creating segments dir: %w", err)
	}
	if err := l.sandbox.MkdirAll(filepath.Join(root, dirFrames)); err != nil {
		return fmt.Errorf("creating frames dir: %w", err)
	}
	return nil
}

// DeleteRunTree removes a run's entire video directory subtree.
func (l *Layout) DeleteRunTree(ctx context.Context, userID string, runID models.ULID) error {
	return l.sandbox.RemoveAll(videoRoot(userID, runID))
}

// SegmentPath returns the relative path of segment_NNN.mp4 for segmentNumber
// (1-indexed, zero-padded to 3 digits).
func (l *Layout) SegmentPath(userID string, runID models.ULID, segmentNumber int) string {
	return filepath.Join(videoRoot(userID, runID), dirSegs, fmt.Sprintf("segment_%03d.mp4", segmentNumber))
}

// FramePath returns the relative path of frame_NNN.jpg for segmentNumber.
func (l *Layout) FramePath(userID string, runID models.ULID, segmentNumber int) string {
	return filepath.Join(videoRoot(userID, runID), dirFrames, fmt.Sprintf("frame_%03d.jpg", segmentNumber))
}

// StitchedPath returns the relative path of the crossfaded 720p composite.
func (l *Layout) StitchedPath(userID string, runID models.ULID) string {
	return filepath.Join(videoRoot(userID, runID), "stitched_720p.mp4")
}

// Final720Path returns the relative path of the final 720p deliverable.
func (l *Layout) Final720Path(userID string, runID models.ULID) string {
	return filepath.Join(videoRoot(userID, runID), "final_720p.mp4")
}

// Final480Path returns the relative path of the final 480p deliverable.
func (l *Layout) Final480Path(userID string, runID models.ULID) string {
	return filepath.Join(videoRoot(userID, runID), "final_480p.mp4")
}

// AudioPath returns the relative path of the synthesized narration track.
func (l *Layout) AudioPath(userID string, runID models.ULID) string {
	return filepath.Join(videoRoot(userID, runID), "audio.mp3")
}

// ThumbnailPath returns the relative path of the preview thumbnail.
func (l *Layout) ThumbnailPath(userID string, runID models.ULID) string {
	return filepath.Join(videoRoot(userID, runID), "thumbnail.jpg")
}

// AbsPath resolves a layout-relative path to an absolute filesystem path.
func (l *Layout) AbsPath(relativePath string) (string, error) {
	return l.sandbox.ResolvePath(relativePath)
}

// Exists reports whether a layout-relative path exists.
func (l *Layout) Exists(relativePath string) (bool, error) {
	return l.sandbox.Exists(relativePath)
}

// Size returns the size in bytes of a layout-relative path.
func (l *Layout) Size(relativePath string) (int64, error) {
	return l.sandbox.Size(relativePath)
}

// ExistingSegmentPaths enumerates the segment files currently present for a
// run, sorted ascending by segment number.
func (l *Layout) ExistingSegmentPaths(userID string, runID models.ULID) ([]string, error) {
	segDir := filepath.Join(videoRoot(userID, runID), dirSegs)
	entries, err := l.sandbox.List(segDir)
	if err != nil {
		return nil, fmt.Errorf("listing segments dir: %w", err)
	}

	type numbered struct {
		n    int
		path string
	}
	var found []numbered
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "segment_") || !strings.HasSuffix(name, ".mp4") {
			continue
		}
		numStr := strings.TrimSuffix(strings.TrimPrefix(name, "segment_"), ".mp4")
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}
		found = append(found, numbered{n: n, path: filepath.Join(segDir, name)})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })

	paths := make([]string, 0, len(found))
	for _, f := range found {
		abs, err := l.sandbox.ResolvePath(f.path)
		if err != nil {
			return nil, err
		}
		paths = append(paths, abs)
	}
	return paths, nil
}

// PublicURL derives a public URL for a layout-relative path from the
// configured base URL.
func (l *Layout) PublicURL(relativePath string) string {
	cleaned := filepath.ToSlash(relativePath)
	return fmt.Sprintf("%s/files/%s", l.baseURL, strings.TrimPrefix(cleaned, "/"))
}

// DiskStats reports free/total bytes on the filesystem backing the storage
// root, used by /system/status and the disk-space precheck before
// accepting a new video request.
type DiskStats struct {
	TotalBytes uint64  `json:"total_bytes"`
	FreeBytes  uint64  `json:"free_bytes"`
	UsedPct    float64 `json:"used_pct"`
}

// DiskStats returns current disk usage for the storage root's filesystem.
func (l *Layout) DiskStats() (DiskStats, error) {
	usage, err := disk.Usage(l.sandbox.BaseDir())
	if err != nil {
		return DiskStats{}, fmt.Errorf("getting disk usage: %w", err)
	}
	return DiskStats{
		TotalBytes: usage.Total,
		FreeBytes:  usage.Free,
		UsedPct:    usage.UsedPercent,
	}, nil
}
