package core

import (
	"log/slog"

	"github.com/jmylchreest/promptvid/internal/cache"
	"github.com/jmylchreest/promptvid/internal/provider"
	"github.com/jmylchreest/promptvid/internal/repository"
	"github.com/jmylchreest/promptvid/internal/storage"
	"github.com/jmylchreest/promptvid/internal/toolchain"
)

// Config holds pipeline configuration options.
type Config struct {
	// FadeDuration is the crossfade duration, in seconds, applied at segment
	// boundaries during stitching.
	FadeDuration float64

	// SyncToleranceSeconds is the drift between narration and video duration
	// within which the audio stage's sync check reports them as in sync. The
	// audio duration adjustment itself does not depend on it.
	SyncToleranceSeconds float64
}

// DefaultConfig returns a Config with default settings.
func DefaultConfig() Config {
	return Config{
		FadeDuration:         0.5,
		SyncToleranceSeconds: 0.5,
	}
}

// Builder provides a fluent interface for constructing a Factory.
type Builder struct {
	videoRunRepo  repository.VideoRunRepository
	videoSpecRepo repository.VideoSpecRepository
	layout        *storage.Layout
	segmentCache  *cache.SegmentCache
	toolchain     *toolchain.Toolchain
	storyboard    provider.StoryboardProvider
	videoSegment  provider.VideoSegmentProvider
	narration     provider.NarrationProvider
	logger        *slog.Logger
	config        Config
}

// NewBuilder creates a new pipeline Builder.
func NewBuilder() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithVideoRunRepository sets the video run repository.
func (b *Builder) WithVideoRunRepository(repo repository.VideoRunRepository) *Builder {
	b.videoRunRepo = repo
	return b
}

// WithVideoSpecRepository sets the video spec repository.
func (b *Builder) WithVideoSpecRepository(repo repository.VideoSpecRepository) *Builder {
	b.videoSpecRepo = repo
	return b
}

// WithLayout sets the storage layout.
func (b *Builder) WithLayout(layout *storage.Layout) *Builder {
	b.layout = layout
	return b
}

// WithSegmentCache sets the content-addressed segment cache.
func (b *Builder) WithSegmentCache(c *cache.SegmentCache) *Builder {
	b.segmentCache = c
	return b
}

// WithToolchain sets the ffmpeg/ffprobe toolchain adapter.
func (b *Builder) WithToolchain(t *toolchain.Toolchain) *Builder {
	b.toolchain = t
	return b
}

// WithStoryboardProvider sets the LLM storyboard provider.
func (b *Builder) WithStoryboardProvider(p provider.StoryboardProvider) *Builder {
	b.storyboard = p
	return b
}

// WithVideoSegmentProvider sets the text-to-video segment provider.
func (b *Builder) WithVideoSegmentProvider(p provider.VideoSegmentProvider) *Builder {
	b.videoSegment = p
	return b
}

// WithNarrationProvider sets the text-to-speech narration provider.
func (b *Builder) WithNarrationProvider(p provider.NarrationProvider) *Builder {
	b.narration = p
	return b
}

// WithLogger sets the logger.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithConfig sets the pipeline configuration.
func (b *Builder) WithConfig(config Config) *Builder {
	b.config = config
	return b
}

// Build creates a Factory with the configured settings.
// This does not register stages - use RegisterStage for that.
func (b *Builder) Build() (*Factory, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	deps := &Dependencies{
		VideoRunRepo:  b.videoRunRepo,
		VideoSpecRepo: b.videoSpecRepo,
		Layout:        b.layout,
		SegmentCache:  b.segmentCache,
		Toolchain:     b.toolchain,
		Storyboard:    b.storyboard,
		VideoSegment:  b.videoSegment,
		Narration:     b.narration,
		Logger:        b.logger,
		Config:        b.config,
	}

	return NewFactory(deps), nil
}

// validate checks that all required dependencies are set.
func (b *Builder) validate() error {
	if b.videoRunRepo == nil {
		return NewConfigurationError("videoRunRepo", "video run repository is required")
	}
	if b.layout == nil {
		return NewConfigurationError("layout", "storage layout is required")
	}
	if b.toolchain == nil {
		return NewConfigurationError("toolchain", "ffmpeg toolchain is required")
	}
	if b.storyboard == nil {
		return NewConfigurationError("storyboard", "storyboard provider is required")
	}
	if b.videoSegment == nil {
		return NewConfigurationError("videoSegment", "video segment provider is required")
	}
	if b.narration == nil {
		return NewConfigurationError("narration", "narration provider is required")
	}
	return nil
}

// Config returns the current configuration.
func (b *Builder) Config() Config {
	return b.config
}
