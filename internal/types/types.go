package types

import (
	"errors"
	"fmt"
	"time"
)

// VideoInfo is the platform metadata resolved once per reference.
type VideoInfo struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type OutcomeKind int

const (
	OutcomeFailed OutcomeKind = iota
	OutcomeCaptionHit
	OutcomeTranscribed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCaptionHit:
		return "caption"
	case OutcomeTranscribed:
		return "transcribed"
	default:
		return "failed"
	}
}

// Outcome is the single result of one acquisition run. Only the fields that
// belong to Kind are populated.
type Outcome struct {
	Kind OutcomeKind

	Caption         string
	CaptionLanguage string

	Segments []Segment

	Err error
}

func CaptionHit(raw, lang string) Outcome {
	return Outcome{Kind: OutcomeCaptionHit, Caption: raw, CaptionLanguage: lang}
}

func Transcribed(segs []Segment) Outcome {
	return Outcome{Kind: OutcomeTranscribed, Segments: segs}
}

func Failed(err error) Outcome {
	return Outcome{Kind: OutcomeFailed, Err: err}
}

// Reason returns the failure message, or "" for successful outcomes.
func (o Outcome) Reason() string {
	if o.Kind != OutcomeFailed || o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

type Stage string

const (
	StageMetadata      Stage = "metadata"
	StageCaptions      Stage = "captions"
	StageDownload      Stage = "download"
	StageTranscription Stage = "transcription"
	StageWrite         Stage = "write"
)

// StageError marks a per-item failure with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func NewStageError(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded in err, or "" if err carries none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// ErrConfig marks fatal configuration problems detected before processing.
var ErrConfig = errors.New("config")

// BatchReport is the run-level record; entries follow dedup order.
type BatchReport struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	OutDir     string        `json:"out_dir" yaml:"out_dir"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Entries    []ReportEntry `json:"entries" yaml:"entries"`
}

type ReportEntry struct {
	Reference       string   `json:"reference" yaml:"reference"`
	Title           string   `json:"title,omitempty" yaml:"title,omitempty"`
	Outcome         string   `json:"outcome" yaml:"outcome"`
	Stage           Stage    `json:"stage,omitempty" yaml:"stage,omitempty"`
	CaptionLanguage string   `json:"caption_language,omitempty" yaml:"caption_language,omitempty"`
	Segments        int      `json:"segments,omitempty" yaml:"segments,omitempty"`
	OutputPaths     []string `json:"output_paths,omitempty" yaml:"output_paths,omitempty"`
	Error           string   `json:"error,omitempty" yaml:"error,omitempty"`
}

func (e ReportEntry) Succeeded() bool {
	return e.Outcome != OutcomeFailed.String()
}

// Counts returns (succeeded, failed).
func (r BatchReport) Counts() (int, int) {
	ok, failed := 0, 0
	for _, e := range r.Entries {
		if e.Succeeded() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}
