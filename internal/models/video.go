package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// RunStatus is the lifecycle status of a VideoRun.
type RunStatus string

// VideoRun statuses, in the order the orchestrator drives them through.
const (
	RunStatusPending     RunStatus = "pending"
	RunStatusDecomposing RunStatus = "decomposing"
	RunStatusGenerating  RunStatus = "generating"
	RunStatusStitching   RunStatus = "stitching"
	RunStatusAudio       RunStatus = "audio"
	RunStatusMerging     RunStatus = "merging"
	RunStatusTranscoding RunStatus = "transcoding"
	RunStatusCompleted   RunStatus = "completed"
	RunStatusFailed      RunStatus = "failed"
)

// IsTerminal reports whether the status is a terminal (non-resumable) state.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// IsValid reports whether s is a recognized RunStatus.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusDecomposing, RunStatusGenerating, RunStatusStitching,
		RunStatusAudio, RunStatusMerging, RunStatusTranscoding, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// SegmentStatus is the lifecycle status of a single Segment.
type SegmentStatus string

const (
	SegmentStatusPending    SegmentStatus = "pending"
	SegmentStatusGenerating SegmentStatus = "generating"
	SegmentStatusCompleted  SegmentStatus = "completed"
	SegmentStatusFailed     SegmentStatus = "failed"
)

// IsValid reports whether s is a recognized SegmentStatus.
func (s SegmentStatus) IsValid() bool {
	switch s {
	case SegmentStatusPending, SegmentStatusGenerating, SegmentStatusCompleted, SegmentStatusFailed:
		return true
	}
	return false
}

// TransitionType is the visual transition a Scene uses into its successor.
type TransitionType string

const (
	TransitionCrossfade TransitionType = "crossfade"
	TransitionCut       TransitionType = "cut"
)

// IsValid reports whether t is a recognized TransitionType.
func (t TransitionType) IsValid() bool {
	return t == TransitionCrossfade || t == TransitionCut
}

// Scene prompt/narration length limits (§3).
const (
	MaxScenePromptLen  = 2000
	MaxNarrationLen    = 500
	MinTargetDuration  = 5
	MaxTargetDuration  = 120
	DefaultSegmentSecs = 12
)

// VideoSpec is the immutable-after-create input a VideoRun is built from.
type VideoSpec struct {
	BaseModel

	UserID          string `gorm:"size:255;index" json:"user_id"`
	OriginalPrompt  string `gorm:"size:4000;not null" json:"original_prompt"`
	EnhancedPrompt  string `gorm:"size:4000" json:"enhanced_prompt,omitempty"`
	Title           string `gorm:"size:255" json:"title,omitempty"`
	TargetDuration  int    `gorm:"not null" json:"target_duration"`
	SegmentDuration int    `gorm:"not null" json:"segment_duration"`
	SegmentCount    int    `gorm:"not null" json:"segment_count"`
	VoiceID         string `gorm:"size:100" json:"voice_id,omitempty"`
}

// TableName returns the table name for VideoSpec.
func (VideoSpec) TableName() string { return "video_specs" }

// Validate checks the spec's fields against its invariants.
func (s *VideoSpec) Validate() error {
	if s.OriginalPrompt == "" {
		return ErrPromptRequired
	}
	if s.TargetDuration < MinTargetDuration || s.TargetDuration > MaxTargetDuration {
		return ErrTargetDurationOutOfRange
	}
	return nil
}

// ComputeSegmentDuration returns the segment duration to use for a given
// target duration: 5s targets get a single 5s segment, everything else uses
// the configured default (nominally 12s).
func ComputeSegmentDuration(targetDuration, defaultSegmentDuration int) int {
	if targetDuration == MinTargetDuration {
		return MinTargetDuration
	}
	if defaultSegmentDuration <= 0 {
		return DefaultSegmentSecs
	}
	return defaultSegmentDuration
}

// ComputeSegmentCount returns ceil(targetDuration / segmentDuration).
func ComputeSegmentCount(targetDuration, segmentDuration int) int {
	if segmentDuration <= 0 {
		return 0
	}
	return (targetDuration + segmentDuration - 1) / segmentDuration
}

// Scene is one storyboard unit, corresponding 1:1 to a Segment.
type Scene struct {
	BaseModel

	VideoRunID         ULID           `gorm:"type:varchar(26);not null;index" json:"video_run_id"`
	SceneNumber        int            `gorm:"not null" json:"scene_number"`
	ScenePrompt        string         `gorm:"size:2000;not null" json:"scene_prompt"`
	VisualDescription  string         `gorm:"size:2000" json:"visual_description,omitempty"`
	ContinuityNotes    string         `gorm:"size:2000" json:"continuity_notes,omitempty"`
	NarrationText      string         `gorm:"size:500" json:"narration_text,omitempty"`
	StartTime          float64        `json:"start_time"`
	EndTime            float64        `json:"end_time"`
	TransitionType     TransitionType `gorm:"size:20;default:'crossfade'" json:"transition_type"`
}

// TableName returns the table name for Scene.
func (Scene) TableName() string { return "video_scenes" }

// Validate checks the scene against the invariants of §3.
func (s *Scene) Validate() error {
	if s.VideoRunID.IsZero() {
		return ErrVideoRunIDRequired
	}
	if len(s.ScenePrompt) > MaxScenePromptLen {
		return ErrScenePromptTooLong
	}
	if len(s.NarrationText) > MaxNarrationLen {
		return ErrNarrationTooLong
	}
	if s.TransitionType != "" && !s.TransitionType.IsValid() {
		return ErrInvalidTransitionType
	}
	if s.EndTime <= s.StartTime {
		return ErrInvalidSceneTimeRange
	}
	return nil
}

// Duration returns the scene's nominal duration in seconds.
func (s *Scene) Duration() float64 {
	return s.EndTime - s.StartTime
}

// Segment is the mutable record of a single generated video clip.
type Segment struct {
	BaseModel

	VideoRunID    ULID          `gorm:"type:varchar(26);not null;index" json:"video_run_id"`
	SegmentNumber int           `gorm:"not null" json:"segment_number"`
	Status        SegmentStatus `gorm:"size:20;default:'pending'" json:"status"`
	JobID         string        `gorm:"size:255" json:"job_id,omitempty"`
	FilePath      string        `gorm:"size:1024" json:"file_path,omitempty"`
	LastFramePath string        `gorm:"size:1024" json:"last_frame_path,omitempty"`
	RetryCount    int           `gorm:"default:0" json:"retry_count"`
	Error         string        `gorm:"size:4096" json:"error,omitempty"`
	StartedAt     *Time         `json:"started_at,omitempty"`
	CompletedAt   *Time         `json:"completed_at,omitempty"`
}

// TableName returns the table name for Segment.
func (Segment) TableName() string { return "video_segments" }

// Validate checks the segment against the invariants of §3: FilePath is
// present iff Status==completed, and RetryCount must not exceed maxRetries.
func (s *Segment) Validate(maxRetries int) error {
	if s.VideoRunID.IsZero() {
		return ErrVideoRunIDRequired
	}
	if s.Status != "" && !s.Status.IsValid() {
		return ErrInvalidSegmentStatus
	}
	if s.Status == SegmentStatusCompleted && s.FilePath == "" {
		return fmt.Errorf("segment %d: %w", s.SegmentNumber, ErrInvalidSegmentStatus)
	}
	if s.Status != SegmentStatusCompleted && s.FilePath != "" {
		return fmt.Errorf("segment %d: %w", s.SegmentNumber, ErrInvalidSegmentStatus)
	}
	if maxRetries > 0 && s.RetryCount > maxRetries {
		return fmt.Errorf("segment %d exceeded max retries: %w", s.SegmentNumber, ErrInvalidSegmentStatus)
	}
	return nil
}

// MarkGenerating transitions the segment into the generating state.
func (s *Segment) MarkGenerating(jobID string) {
	s.Status = SegmentStatusGenerating
	s.JobID = jobID
	now := Now()
	s.StartedAt = &now
	s.Error = ""
}

// MarkCompleted records a successfully produced segment file.
func (s *Segment) MarkCompleted(filePath string) {
	s.Status = SegmentStatusCompleted
	s.FilePath = filePath
	now := Now()
	s.CompletedAt = &now
	s.Error = ""
}

// MarkFailed records the terminal failure of a segment after retries are exhausted.
func (s *Segment) MarkFailed(err error) {
	s.Status = SegmentStatusFailed
	if err != nil {
		s.Error = err.Error()
	}
	now := Now()
	s.CompletedAt = &now
}

// VideoFile describes one named output artifact of a VideoRun.
type VideoFile struct {
	Path            string  `json:"path"`
	URL             string  `json:"url"`
	Size            int64   `json:"size"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Well-known VideoRun.Files keys.
const (
	FileKeyStitched720 = "stitched720"
	FileKeyFinal720    = "final720"
	FileKeyFinal480    = "final480"
	FileKeyAudio       = "audio"
	FileKeyThumbnail   = "thumbnail"
)

// VideoFiles is the {name -> artifact} map persisted as a JSON column.
type VideoFiles map[string]VideoFile

// Value implements driver.Valuer for JSON column storage.
func (f VideoFiles) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSON column retrieval.
func (f *VideoFiles) Scan(value any) error {
	if value == nil {
		*f = VideoFiles{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for VideoFiles: %T", value)
	}
	if len(raw) == 0 {
		*f = VideoFiles{}
		return nil
	}
	m := make(VideoFiles)
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("scanning VideoFiles: %w", err)
	}
	*f = m
	return nil
}

// GormDataType returns the GORM column type for VideoFiles.
func (VideoFiles) GormDataType() string { return "text" }

// VideoMetadata carries derived technical metadata about a completed run.
type VideoMetadata struct {
	Resolution string  `json:"resolution,omitempty"`
	FPS        float64 `json:"fps,omitempty"`
	Codec      string  `json:"codec,omitempty"`
	VoiceID    string  `json:"voice_id,omitempty"`
	VoiceName  string  `json:"voice_name,omitempty"`
}

// Value implements driver.Valuer for JSON column storage.
func (m VideoMetadata) Value() (driver.Value, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for JSON column retrieval.
func (m *VideoMetadata) Scan(value any) error {
	if value == nil {
		*m = VideoMetadata{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for VideoMetadata: %T", value)
	}
	if len(raw) == 0 {
		*m = VideoMetadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// GormDataType returns the GORM column type for VideoMetadata.
func (VideoMetadata) GormDataType() string { return "text" }

// VideoRun is the mutable record the orchestrator drives through its phases.
type VideoRun struct {
	BaseModel

	SpecID ULID `gorm:"type:varchar(26);not null;index" json:"spec_id"`

	UserID          string `gorm:"size:255;index" json:"user_id"`
	OriginalPrompt  string `gorm:"size:4000" json:"original_prompt"`
	EnhancedPrompt  string `gorm:"size:4000" json:"enhanced_prompt,omitempty"`
	Title           string `gorm:"size:255" json:"title,omitempty"`
	TargetDuration  int    `gorm:"not null" json:"target_duration"`
	SegmentDuration int    `gorm:"not null" json:"segment_duration"`
	SegmentCount    int    `gorm:"not null" json:"segment_count"`

	Status         RunStatus `gorm:"size:20;default:'pending';index" json:"status"`
	Progress       int       `gorm:"default:0" json:"progress"`
	CurrentPhase   string    `gorm:"size:20" json:"current_phase,omitempty"`
	CurrentSegment int       `gorm:"default:0" json:"current_segment"`

	Files    VideoFiles    `gorm:"type:text" json:"files"`
	Metadata VideoMetadata `gorm:"type:text" json:"metadata"`

	ActualDuration *float64 `json:"actual_duration,omitempty"`
	CompletedAt    *Time    `json:"completed_at,omitempty"`
	ErrorMessage   string   `gorm:"size:4096" json:"error_message,omitempty"`

	CancelRequested bool `gorm:"default:false" json:"cancel_requested"`

	Scenes   []Scene   `gorm:"foreignKey:VideoRunID" json:"scenes,omitempty"`
	Segments []Segment `gorm:"foreignKey:VideoRunID" json:"segments,omitempty"`
}

// TableName returns the table name for VideoRun.
func (VideoRun) TableName() string { return "video_runs" }

// Validate checks the run against the invariants of §3.
func (r *VideoRun) Validate() error {
	if r.UserID == "" {
		return ErrUserIDRequired
	}
	if r.Status != "" && !r.Status.IsValid() {
		return ErrInvalidVideoRunStatus
	}
	if r.Progress < 0 || r.Progress > 100 {
		return ErrProgressOutOfRange
	}
	if r.Status == RunStatusCompleted {
		if _, ok := r.Files[FileKeyFinal720]; !ok {
			return fmt.Errorf("run %s: %w", r.ID, ErrInvalidVideoRunStatus)
		}
		if r.ActualDuration == nil || r.CompletedAt == nil {
			return fmt.Errorf("run %s: %w", r.ID, ErrInvalidVideoRunStatus)
		}
	}
	return nil
}

// IsProcessing reports whether the run is in a non-terminal, active phase.
func (r *VideoRun) IsProcessing() bool {
	return !r.Status.IsTerminal() && r.Status != RunStatusPending
}

// NewVideoRunFromSpec builds an initial (pending) VideoRun from a VideoSpec.
func NewVideoRunFromSpec(spec *VideoSpec) *VideoRun {
	return &VideoRun{
		SpecID:          spec.ID,
		UserID:          spec.UserID,
		OriginalPrompt:  spec.OriginalPrompt,
		EnhancedPrompt:  spec.EnhancedPrompt,
		Title:           spec.Title,
		TargetDuration:  spec.TargetDuration,
		SegmentDuration: spec.SegmentDuration,
		SegmentCount:    spec.SegmentCount,
		Status:          RunStatusPending,
		Files:           VideoFiles{},
	}
}

// ProcessingLock is the single-row-per-key exclusivity record gating the
// orchestrator (§4.1). At most one row per Key may have IsLocked==true with
// ExpiresAt in the future.
type ProcessingLock struct {
	Key       string `gorm:"primarykey;size:100" json:"key"`
	IsLocked  bool   `gorm:"not null;default:false" json:"is_locked"`
	LockedBy  string `gorm:"size:255" json:"locked_by,omitempty"`
	LockedAt  *Time  `json:"locked_at,omitempty"`
	ExpiresAt *Time  `json:"expires_at,omitempty"`

	VideoID             ULID  `gorm:"type:varchar(26)" json:"video_id,omitempty"`
	UserID              string `gorm:"size:255" json:"user_id,omitempty"`
	TargetDuration      int   `json:"target_duration,omitempty"`
	EstimatedCompletion *Time `json:"estimated_completion,omitempty"`

	CreatedAt Time `json:"created_at"`
	UpdatedAt Time `json:"updated_at"`
}

// TableName returns the table name for ProcessingLock.
func (ProcessingLock) TableName() string { return "processing_locks" }

// Validate checks the lock against the invariants of §3.
func (l *ProcessingLock) Validate() error {
	if l.Key == "" {
		return ErrLockKeyRequired
	}
	if l.IsLocked && l.LockedBy == "" {
		return ErrLockOwnerRequired
	}
	return nil
}

// IsExpired reports whether the lock's expiry has passed as of now.
func (l *ProcessingLock) IsExpired(now Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// CacheEntry is one record in the segment cache's JSON manifest (§4.4). It is
// never stored in the relational store; the manifest is a flat file.
type CacheEntry struct {
	Hash            string  `json:"hash"`
	FilePath        string  `json:"file_path"`
	CreatedAt       Time    `json:"created_at"`
	ExpiresAt       Time    `json:"expires_at"`
	ScenePrompt     string  `json:"scene_prompt"`
	SegmentNumber   int     `json:"segment_number"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// Validate checks the cache entry against the invariants of §3.
func (e *CacheEntry) Validate() error {
	if e.Hash == "" {
		return ErrCacheHashRequired
	}
	return nil
}

// IsExpired reports whether the entry's expiry has passed as of now.
func (e *CacheEntry) IsExpired(now Time) bool {
	return e.ExpiresAt.Before(now)
}

// CacheManifest is the single JSON document backing the segment cache.
type CacheManifest struct {
	Entries     map[string]CacheEntry `json:"entries"`
	LastCleanup Time                  `json:"last_cleanup"`
}

// NewCacheManifest returns an empty manifest, used when no manifest file
// exists yet or the existing one is corrupt (self-heal, per §4.4).
func NewCacheManifest() *CacheManifest {
	return &CacheManifest{Entries: make(map[string]CacheEntry)}
}
