package shared

import "github.com/jmylchreest/promptvid/internal/models"

// PhaseRange is the progress percentage span a phase owns, and the
// RunStatus a VideoRun carries while that phase is executing, per the
// orchestrator's phase table.
type PhaseRange struct {
	Status     models.RunStatus
	Start, End int
}

// The six phase ranges, in execution order. Boundaries are taken directly
// from the orchestrator's phase table: decomposing 0-5, generating 5-70,
// stitching 70-80, audio 80-90, merging 90-95, transcoding 95-100.
var (
	PhaseDecomposing = PhaseRange{models.RunStatusDecomposing, 0, 5}
	PhaseGenerating  = PhaseRange{models.RunStatusGenerating, 5, 70}
	PhaseStitching   = PhaseRange{models.RunStatusStitching, 70, 80}
	PhaseAudio       = PhaseRange{models.RunStatusAudio, 80, 90}
	PhaseMerging     = PhaseRange{models.RunStatusMerging, 90, 95}
	PhaseTranscoding = PhaseRange{models.RunStatusTranscoding, 95, 100}
)

// EnterPhase sets run's Status/CurrentPhase to r and advances Progress to
// r's start, never decreasing it: progress is monotonically non-decreasing
// until the run reaches a terminal state.
func EnterPhase(run *models.VideoRun, r PhaseRange) {
	run.Status = r.Status
	run.CurrentPhase = string(r.Status)
	if run.Progress < r.Start {
		run.Progress = r.Start
	}
}

// FinishPhase advances run's Progress to r's end.
func FinishPhase(run *models.VideoRun, r PhaseRange) {
	if run.Progress < r.End {
		run.Progress = r.End
	}
}

// SegmentProgress computes the generating-phase progress after completing
// the (i+1)-th of n segments (i is 0-indexed): round(5 + 65*(i+0.5)/n).
func SegmentProgress(i, n int) int {
	if n <= 0 {
		return PhaseGenerating.Start
	}
	p := float64(PhaseGenerating.Start) + float64(PhaseGenerating.End-PhaseGenerating.Start)*(float64(i)+0.5)/float64(n)
	return int(p + 0.5)
}
