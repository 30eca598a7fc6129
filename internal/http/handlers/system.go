// Package handlers provides HTTP API handlers for promptvid.
package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/promptvid/internal/cache"
	"github.com/jmylchreest/promptvid/internal/ffmpeg"
	"github.com/jmylchreest/promptvid/internal/lock"
	"github.com/jmylchreest/promptvid/internal/storage"
)

// FFmpegInfoProvider provides FFmpeg binary information.
type FFmpegInfoProvider interface {
	GetFFmpegInfo(ctx context.Context) (*ffmpeg.BinaryInfo, error)
}

// SystemHandler handles system information endpoints.
type SystemHandler struct {
	ffmpegProvider FFmpegInfoProvider
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(ffmpegProvider FFmpegInfoProvider) *SystemHandler {
	return &SystemHandler{
		ffmpegProvider: ffmpegProvider,
	}
}

// FFmpegInfoInput is the input for the FFmpeg info endpoint.
type FFmpegInfoInput struct{}

// FFmpegInfoOutput is the output for the FFmpeg info endpoint.
type FFmpegInfoOutput struct {
	Body FFmpegInfoResponse
}

// FFmpegInfoResponse represents the FFmpeg capabilities response.
type FFmpegInfoResponse struct {
	Available     bool                     `json:"available" doc:"Whether FFmpeg is available"`
	FFmpegPath    string                   `json:"ffmpeg_path,omitempty" doc:"Path to FFmpeg binary"`
	FFprobePath   string                   `json:"ffprobe_path,omitempty" doc:"Path to FFprobe binary"`
	Version       string                   `json:"version,omitempty" doc:"FFmpeg version string"`
	MajorVersion  int                      `json:"major_version,omitempty" doc:"Major version number"`
	MinorVersion  int                      `json:"minor_version,omitempty" doc:"Minor version number"`
	BuildDate     string                   `json:"build_date,omitempty" doc:"Build date/compiler info"`
	Configuration string                   `json:"configuration,omitempty" doc:"Build configuration flags"`
	Codecs        []FFmpegCodecResponse    `json:"codecs,omitempty" doc:"Available codecs"`
	Encoders      []string                 `json:"encoders,omitempty" doc:"Available encoders"`
	Decoders      []string                 `json:"decoders,omitempty" doc:"Available decoders"`
	HWAccels      []FFmpegHWAccelResponse  `json:"hw_accels,omitempty" doc:"Hardware acceleration methods"`
	Formats       []FFmpegFormatResponse   `json:"formats,omitempty" doc:"Available formats"`
	Recommended   *FFmpegRecommendedConfig `json:"recommended,omitempty" doc:"Recommended configuration"`
}

// FFmpegCodecResponse represents a codec in the API response.
type FFmpegCodecResponse struct {
	Name        string `json:"name" doc:"Codec name"`
	LongName    string `json:"long_name,omitempty" doc:"Human-readable name"`
	Type        string `json:"type" doc:"Codec type: video, audio, subtitle, data"`
	CanDecode   bool   `json:"can_decode" doc:"Supports decoding"`
	CanEncode   bool   `json:"can_encode" doc:"Supports encoding"`
	IsLossy     bool   `json:"is_lossy,omitempty" doc:"Lossy compression"`
	IsLossless  bool   `json:"is_lossless,omitempty" doc:"Lossless compression"`
	IsIntraOnly bool   `json:"is_intra_only,omitempty" doc:"Intra-frame only"`
}

// FFmpegHWAccelResponse represents a hardware accelerator in the API response.
type FFmpegHWAccelResponse struct {
	Type       string   `json:"type" doc:"Hardware acceleration type"`
	Name       string   `json:"name" doc:"Hardware acceleration name"`
	Available  bool     `json:"available" doc:"Whether the accelerator is available and functional"`
	DeviceName string   `json:"device_name,omitempty" doc:"Device name or path"`
	Encoders   []string `json:"encoders,omitempty" doc:"Available hardware encoders"`
	Decoders   []string `json:"decoders,omitempty" doc:"Available hardware decoders"`
}

// FFmpegFormatResponse represents a format in the API response.
type FFmpegFormatResponse struct {
	Name     string `json:"name" doc:"Format name"`
	LongName string `json:"long_name,omitempty" doc:"Human-readable name"`
	CanMux   bool   `json:"can_mux" doc:"Supports muxing (writing)"`
	CanDemux bool   `json:"can_demux" doc:"Supports demuxing (reading)"`
}

// FFmpegRecommendedConfig contains recommended FFmpeg configuration.
type FFmpegRecommendedConfig struct {
	HWAccel      string `json:"hw_accel,omitempty" doc:"Recommended hardware acceleration method"`
	HWAccelName  string `json:"hw_accel_name,omitempty" doc:"Human-readable name of recommended HW accel"`
	VideoEncoder string `json:"video_encoder,omitempty" doc:"Recommended video encoder"`
	AudioEncoder string `json:"audio_encoder,omitempty" doc:"Recommended audio encoder"`
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getFFmpegInfo",
		Method:      "GET",
		Path:        "/api/v1/system/ffmpeg",
		Summary:     "Get FFmpeg capabilities",
		Description: "Returns detailed information about the FFmpeg installation including version, codecs, hardware acceleration, and recommended configuration",
		Tags:        []string{"System"},
	}, h.GetFFmpegInfo)
}

// GetFFmpegInfo returns FFmpeg capabilities and configuration.
func (h *SystemHandler) GetFFmpegInfo(ctx context.Context, input *FFmpegInfoInput) (*FFmpegInfoOutput, error) {
	info, err := h.ffmpegProvider.GetFFmpegInfo(ctx)
	if err != nil {
		// FFmpeg not available - return minimal response
		return &FFmpegInfoOutput{
			Body: FFmpegInfoResponse{
				Available: false,
			},
		}, nil
	}

	response := FFmpegInfoResponse{
		Available:     true,
		FFmpegPath:    info.FFmpegPath,
		FFprobePath:   info.FFprobePath,
		Version:       info.Version,
		MajorVersion:  info.MajorVersion,
		MinorVersion:  info.MinorVersion,
		BuildDate:     info.BuildDate,
		Configuration: info.Configuration,
		Encoders:      info.Encoders,
		Decoders:      info.Decoders,
	}

	// Convert codecs
	response.Codecs = make([]FFmpegCodecResponse, 0, len(info.Codecs))
	for _, codec := range info.Codecs {
		response.Codecs = append(response.Codecs, FFmpegCodecResponse{
			Name:        codec.Name,
			LongName:    codec.LongName,
			Type:        codec.Type,
			CanDecode:   codec.CanDecode,
			CanEncode:   codec.CanEncode,
			IsLossy:     codec.IsLossy,
			IsLossless:  codec.IsLossless,
			IsIntraOnly: codec.IsIntraOnly,
		})
	}

	// Convert hardware accelerators
	response.HWAccels = make([]FFmpegHWAccelResponse, 0, len(info.HWAccels))
	for _, accel := range info.HWAccels {
		response.HWAccels = append(response.HWAccels, FFmpegHWAccelResponse{
			Type:       string(accel.Type),
			Name:       accel.Name,
			Available:  accel.Available,
			DeviceName: accel.DeviceName,
			Encoders:   accel.Encoders,
			Decoders:   accel.Decoders,
		})
	}

	// Convert formats
	response.Formats = make([]FFmpegFormatResponse, 0, len(info.Formats))
	for _, format := range info.Formats {
		response.Formats = append(response.Formats, FFmpegFormatResponse{
			Name:     format.Name,
			LongName: format.LongName,
			CanMux:   format.CanMux,
			CanDemux: format.CanDemux,
		})
	}

	// Add recommended configuration
	if recommended := ffmpeg.GetRecommendedHWAccel(info.HWAccels); recommended != nil {
		response.Recommended = &FFmpegRecommendedConfig{
			HWAccel:     string(recommended.Type),
			HWAccelName: recommended.Name,
		}
		// Suggest video encoder based on available HW encoders
		if len(recommended.Encoders) > 0 {
			for _, enc := range recommended.Encoders {
				// Prefer H.264 encoder for compatibility
				if containsSubstring(enc, "h264") || containsSubstring(enc, "264") {
					response.Recommended.VideoEncoder = enc
					break
				}
			}
			// Fall back to first available encoder if no H.264
			if response.Recommended.VideoEncoder == "" {
				response.Recommended.VideoEncoder = recommended.Encoders[0]
			}
		}
	}

	// Default audio encoder recommendation
	if info.HasEncoder("aac") {
		if response.Recommended == nil {
			response.Recommended = &FFmpegRecommendedConfig{}
		}
		response.Recommended.AudioEncoder = "aac"
	}

	return &FFmpegInfoOutput{
		Body: response,
	}, nil
}

// containsSubstring checks if s contains substr (case-insensitive).
func containsSubstring(s, substr string) bool {
	return len(s) >= len(substr) && containsLower(s, substr)
}

// SystemStatusHandler exposes the orchestrator's current lock, storage and
// segment-cache state for operators.
type SystemStatusHandler struct {
	lockSvc *lock.Service
	layout  *storage.Layout
	cache   *cache.SegmentCache
}

// NewSystemStatusHandler creates a new system status handler.
func NewSystemStatusHandler(lockSvc *lock.Service, layout *storage.Layout, segmentCache *cache.SegmentCache) *SystemStatusHandler {
	return &SystemStatusHandler{lockSvc: lockSvc, layout: layout, cache: segmentCache}
}

// Register registers the system status route with the API.
func (h *SystemStatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSystemStatus",
		Method:      "GET",
		Path:        "/api/v1/system/status",
		Summary:     "Get system status",
		Description: "Returns the processing lock state, storage stats and segment cache stats",
		Tags:        []string{"System"},
	}, h.GetStatus)
}

// LockStatusResponse mirrors lock.Status for the API.
type LockStatusResponse struct {
	Locked         bool   `json:"locked"`
	Owner          string `json:"owner,omitempty"`
	VideoID        string `json:"videoId,omitempty"`
	UserID         string `json:"userId,omitempty"`
	TargetDuration int    `json:"targetDuration,omitempty"`
	ExpiresAt      string `json:"expiresAt,omitempty"`
}

// StorageStatusResponse summarizes the storage root's disk usage.
type StorageStatusResponse struct {
	TotalBytes uint64  `json:"totalBytes"`
	FreeBytes  uint64  `json:"freeBytes"`
	UsedPct    float64 `json:"usedPct"`
}

// CacheStatusResponse summarizes the segment cache's current state.
type CacheStatusResponse struct {
	EntryCount int64  `json:"entryCount"`
	TotalBytes int64  `json:"totalBytes"`
	LastClean  string `json:"lastCleanup,omitempty"`
}

// SystemStatusResponse is the response body for GET /system/status.
type SystemStatusResponse struct {
	Lock    LockStatusResponse    `json:"lock"`
	Storage StorageStatusResponse `json:"storage"`
	Cache   CacheStatusResponse   `json:"cache"`
}

// GetSystemStatusInput is the input for getting system status.
type GetSystemStatusInput struct{}

// GetSystemStatusOutput is the output for getting system status.
type GetSystemStatusOutput struct {
	Body SystemStatusResponse
}

// GetStatus returns the orchestrator's current lock, storage and cache state.
func (h *SystemStatusHandler) GetStatus(ctx context.Context, input *GetSystemStatusInput) (*GetSystemStatusOutput, error) {
	resp := SystemStatusResponse{}

	lockStatus, err := h.lockSvc.Status(ctx, lock.Key)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get lock status", err)
	}
	resp.Lock = LockStatusResponse{
		Locked:         lockStatus.Locked,
		Owner:          lockStatus.Owner,
		UserID:         lockStatus.Metadata.UserID,
		TargetDuration: lockStatus.Metadata.TargetDuration,
	}
	if !lockStatus.Metadata.VideoID.IsZero() {
		resp.Lock.VideoID = lockStatus.Metadata.VideoID.String()
	}
	if lockStatus.Locked {
		resp.Lock.ExpiresAt = lockStatus.ExpiresAt.Format("2006-01-02T15:04:05Z07:00")
	}

	diskStats, err := h.layout.DiskStats()
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get storage stats", err)
	}
	resp.Storage = StorageStatusResponse{
		TotalBytes: diskStats.TotalBytes,
		FreeBytes:  diskStats.FreeBytes,
		UsedPct:    diskStats.UsedPct,
	}

	cacheStats, err := h.cache.Stats(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get cache stats", err)
	}
	resp.Cache = CacheStatusResponse{
		EntryCount: cacheStats.EntryCount,
		TotalBytes: cacheStats.TotalBytes,
	}
	if lastCleanup, err := h.cache.LastCleanup(ctx); err == nil && !lastCleanup.IsZero() {
		resp.Cache.LastClean = lastCleanup.Format("2006-01-02T15:04:05Z07:00")
	}

	return &GetSystemStatusOutput{Body: resp}, nil
}

func containsLower(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		match := true
		for j := 0; j < len(substr); j++ {
			sc := s[i+j]
			tc := substr[j]
			// Simple lowercase comparison for ASCII
			if sc >= 'A' && sc <= 'Z' {
				sc += 32
			}
			if tc >= 'A' && tc <= 'Z' {
				tc += 32
			}
			if sc != tc {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
