package shared

import (
	"testing"

	"github.com/jmylchreest/promptvid/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestEnterPhaseRaisesProgressToStart(t *testing.T) {
	run := &models.VideoRun{Progress: 0}
	EnterPhase(run, PhaseGenerating)
	assert.Equal(t, models.RunStatusGenerating, run.Status)
	assert.Equal(t, string(models.RunStatusGenerating), run.CurrentPhase)
	assert.Equal(t, 5, run.Progress)
}

func TestEnterPhaseNeverLowersProgress(t *testing.T) {
	run := &models.VideoRun{Progress: 60}
	EnterPhase(run, PhaseGenerating)
	assert.Equal(t, 60, run.Progress)
}

func TestFinishPhaseRaisesProgressToEnd(t *testing.T) {
	run := &models.VideoRun{Progress: 10}
	FinishPhase(run, PhaseGenerating)
	assert.Equal(t, 70, run.Progress)
}

func TestFinishPhaseNeverLowersProgress(t *testing.T) {
	run := &models.VideoRun{Progress: 80}
	FinishPhase(run, PhaseGenerating)
	assert.Equal(t, 80, run.Progress)
}

func TestSegmentProgressInterpolatesWithinWindow(t *testing.T) {
	assert.Equal(t, PhaseGenerating.Start, SegmentProgress(0, 0))

	first := SegmentProgress(0, 4)
	last := SegmentProgress(3, 4)
	assert.Greater(t, first, PhaseGenerating.Start)
	assert.Less(t, last, PhaseGenerating.End)
	assert.Less(t, first, last)
}
