package service

import (
	"testing"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenesFromInputAssignsContiguousTimes(t *testing.T) {
	runID := models.NewULID()
	inputs := []SceneInput{
		{ScenePrompt: "scene one"},
		{ScenePrompt: "scene two", TransitionType: models.TransitionCut},
		{ScenePrompt: "scene three"},
	}

	scenes := scenesFromInput(runID, inputs, 30, 12)
	require.Len(t, scenes, 3)

	for i, sc := range scenes {
		assert.Equal(t, runID, sc.VideoRunID)
		assert.Equal(t, i+1, sc.SceneNumber)
	}

	assert.Equal(t, models.TransitionCrossfade, scenes[0].TransitionType, "default transition is crossfade")
	assert.Equal(t, models.TransitionCut, scenes[1].TransitionType)

	assert.Equal(t, 0.0, scenes[0].StartTime)
	assert.Equal(t, float64(30), scenes[len(scenes)-1].EndTime, "last scene ends exactly at target duration")

	for i := 1; i < len(scenes); i++ {
		assert.Equal(t, scenes[i-1].EndTime, scenes[i].StartTime)
	}
}
