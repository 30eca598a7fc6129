// Package testutil provides test utilities including sample data generation.
package testutil

import (
	"fmt"
	"math/rand"

	"github.com/jmylchreest/promptvid/internal/models"
)

// Themes with their associated prompt fragments, used to build fictional
// scene prompts for a storyboard. NEVER use real film titles, franchises, or
// trademarked characters.
var (
	Themes = map[string][]string{
		"nature": {
			"a majestic eagle soaring over snow-capped mountains",
			"waves crashing against a rocky coastline at sunset",
			"a dense rainforest canopy dripping with morning dew",
			"wildflowers swaying in a golden meadow",
			"a glacier calving into an arctic sea",
		},
		"scifi": {
			"a derelict space station drifting past a ringed planet",
			"a neon-lit city skyline under a double moon",
			"an android walking through a rain-soaked alley",
			"a terraforming drone seeding red Martian soil",
			"a wormhole collapsing above a lone research vessel",
		},
		"urban": {
			"a bustling night market filled with lantern light",
			"commuters crossing a rain-slicked intersection",
			"a street musician playing beneath a subway entrance",
			"skyscrapers reflecting a pink dawn sky",
			"a rooftop garden overlooking a sprawling metropolis",
		},
		"adventure": {
			"a lone hiker cresting a windswept ridge",
			"a kayak cutting through whitewater rapids",
			"a hot air balloon drifting over a patchwork valley",
			"explorers descending into a glowing limestone cave",
			"a caravan crossing dunes under a blazing sun",
		},
		"abstract": {
			"ink bleeding through water in slow motion",
			"geometric shapes folding into one another",
			"a kaleidoscope of light refracting through glass",
			"particles swirling into a spiral galaxy pattern",
			"liquid metal rippling across a mirrored surface",
		},
	}

	// TransitionWeights controls how often crossfade is chosen over cut when
	// generating fallback-style scenes (crossfade is the documented default).
	TransitionWeights = []models.TransitionType{
		models.TransitionCrossfade,
		models.TransitionCrossfade,
		models.TransitionCrossfade,
		models.TransitionCut,
	}

	// NarrationFragments provides short fictional narration lines keyed by
	// theme, used to populate Scene.NarrationText in generated fixtures.
	NarrationFragments = map[string][]string{
		"nature":    {"Nature finds a way, even here.", "The wild endures in silence.", "Every season leaves its mark."},
		"scifi":     {"Out here, the rules are different.", "Tomorrow arrives whether we're ready or not.", "Some frontiers never close."},
		"urban":     {"The city never quite sleeps.", "A million stories, one skyline.", "Somewhere, a light stays on."},
		"adventure": {"The path forward is never certain.", "Every summit hides another.", "Courage is a direction, not a feeling."},
		"abstract":  {"Form dissolves into motion.", "Color becomes its own language.", "Pattern is the only constant."},
	}
)

// SampleScene represents a generated scene for testing, mirroring the
// fields a StoryboardProvider.decompose response would populate.
type SampleScene struct {
	SceneNumber       int
	ScenePrompt       string
	VisualDescription string
	NarrationText     string
	StartTime         float64
	EndTime           float64
	TransitionType    models.TransitionType
}

// ToScene converts a SampleScene to a models.Scene owned by videoRunID.
func (s *SampleScene) ToScene(videoRunID models.ULID) *models.Scene {
	return &models.Scene{
		VideoRunID:        videoRunID,
		SceneNumber:       s.SceneNumber,
		ScenePrompt:       s.ScenePrompt,
		VisualDescription: s.VisualDescription,
		NarrationText:     s.NarrationText,
		StartTime:         s.StartTime,
		EndTime:           s.EndTime,
		TransitionType:    s.TransitionType,
	}
}

// SampleDataGenerator generates realistic but fictional storyboard data for
// testing the decomposition/cache/orchestrator paths without a live
// StoryboardProvider.
type SampleDataGenerator struct {
	rng *rand.Rand
}

// NewSampleDataGenerator creates a new sample data generator with a random seed.
func NewSampleDataGenerator() *SampleDataGenerator {
	return &SampleDataGenerator{
		rng: rand.New(rand.NewSource(rand.Int63())),
	}
}

// NewSampleDataGeneratorWithSeed creates a new generator with a fixed seed for reproducibility.
func NewSampleDataGeneratorWithSeed(seed int64) *SampleDataGenerator {
	return &SampleDataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// RandomTheme returns a random theme key.
func (g *SampleDataGenerator) RandomTheme() string {
	themes := sortedThemeKeys()
	return themes[g.rng.Intn(len(themes))]
}

// RandomFragment returns a random prompt fragment for the given theme,
// falling back to "nature" for an unrecognized theme.
func (g *SampleDataGenerator) RandomFragment(theme string) string {
	fragments, ok := Themes[theme]
	if !ok {
		fragments = Themes["nature"]
	}
	return fragments[g.rng.Intn(len(fragments))]
}

// RandomNarration returns a random narration fragment for the given theme.
func (g *SampleDataGenerator) RandomNarration(theme string) string {
	lines, ok := NarrationFragments[theme]
	if !ok {
		lines = NarrationFragments["nature"]
	}
	return lines[g.rng.Intn(len(lines))]
}

// RandomTransition returns a random transition type, weighted toward crossfade.
func (g *SampleDataGenerator) RandomTransition() models.TransitionType {
	return TransitionWeights[g.rng.Intn(len(TransitionWeights))]
}

// GeneratePrompt builds a single-sentence original prompt for the given theme.
func (g *SampleDataGenerator) GeneratePrompt(theme string) string {
	return g.RandomFragment(theme)
}

// SceneGenerateOptions configures scene generation.
type SceneGenerateOptions struct {
	Theme           string  // Theme key (nature, scifi, urban, adventure, abstract)
	SegmentDuration float64 // Nominal duration of each scene, seconds
	IncludeNarration bool   // Whether to populate NarrationText
}

// DefaultSceneGenerateOptions returns default scene generation options.
func DefaultSceneGenerateOptions() SceneGenerateOptions {
	return SceneGenerateOptions{
		Theme:            "nature",
		SegmentDuration:  12,
		IncludeNarration: true,
	}
}

// GenerateScenes generates a contiguous ordered sequence of scenes, mirroring
// the contract of StoryboardProvider.decompose: ordered sceneNumber,
// contiguous [startTime,endTime) ranges, transitionType defaulting toward
// crossfade.
func (g *SampleDataGenerator) GenerateScenes(count int, opts SceneGenerateOptions) []SampleScene {
	scenes := make([]SampleScene, count)
	cursor := 0.0

	for i := 0; i < count; i++ {
		start := cursor
		end := start + opts.SegmentDuration
		cursor = end

		var narration string
		if opts.IncludeNarration {
			narration = g.RandomNarration(opts.Theme)
		}

		scenes[i] = SampleScene{
			SceneNumber:       i + 1,
			ScenePrompt:       fmt.Sprintf("%s — scene %d of %d", g.RandomFragment(opts.Theme), i+1, count),
			VisualDescription: g.RandomFragment(opts.Theme),
			NarrationText:     narration,
			StartTime:         start,
			EndTime:           end,
			TransitionType:    g.RandomTransition(),
		}
	}

	return scenes
}

// GenerateVideoSpec builds a VideoSpec fixture for the given theme and
// duration, with SegmentDuration/SegmentCount computed the same way the
// service layer computes them for a live request.
func (g *SampleDataGenerator) GenerateVideoSpec(userID, theme string, targetDuration int) *models.VideoSpec {
	segmentDuration := models.ComputeSegmentDuration(targetDuration, models.DefaultSegmentSecs)
	segmentCount := models.ComputeSegmentCount(targetDuration, segmentDuration)
	prompt := g.GeneratePrompt(theme)

	return &models.VideoSpec{
		UserID:          userID,
		OriginalPrompt:  prompt,
		EnhancedPrompt:  prompt,
		Title:           fmt.Sprintf("%s story", theme),
		TargetDuration:  targetDuration,
		SegmentDuration: segmentDuration,
		SegmentCount:    segmentCount,
	}
}

func sortedThemeKeys() []string {
	keys := make([]string, 0, len(Themes))
	for k := range Themes {
		keys = append(keys, k)
	}
	// Deterministic ordering so a seeded generator is reproducible across runs.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
