package pipeline

// Stage is a state of the run state machine.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageExtracting   Stage = "extracting"
	StageTranscribing Stage = "transcribing"
	StageTranslating  Stage = "translating"
	StageSynthesizing Stage = "synthesizing"
	StageFinalizing   Stage = "finalizing"
	StageMixing       Stage = "mixing"
	StageDone         Stage = "done"
	StageError        Stage = "error"
	StageCancelled    Stage = "cancelled"
)

// Terminal reports whether the run has finished in this stage.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageError || s == StageCancelled
}

const (
	extractionDonePercent   = 10.0
	transcriptionCapPercent = 95.0
	donePercent             = 100.0
)

// progress keeps a run's reported percentage non-decreasing.
type progress struct {
	last float64
}

// advance clamps value to [0,100] and never lets it fall below the last
// reported value.
func (p *progress) advance(value float64) float64 {
	value = max(0, min(value, donePercent))
	if value > p.last {
		p.last = value
	}
	return p.last
}

func (p *progress) current() float64 {
	return p.last
}

// segmentPercent maps the end of a transcribed segment onto the transcription
// band, capped until the run is done.
func segmentPercent(end, duration float64) float64 {
	if duration <= 0 {
		return extractionDonePercent
	}
	return min(transcriptionCapPercent, end/duration*100)
}
