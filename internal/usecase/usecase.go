package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forPelevin/yt2text/internal/domain/title"
	"github.com/forPelevin/yt2text/internal/ports"
	"github.com/forPelevin/yt2text/internal/types"
)

type Deps struct {
	Metadata    ports.MetadataSource
	Captions    ports.CaptionSource
	Audio       ports.AudioSource
	Transcriber ports.Transcriber
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type State string

const (
	StateInit               State = "init"
	StateCaptionsTried      State = "captions_tried"
	StateAudioTried         State = "audio_tried"
	StateTranscriptionTried State = "transcription_tried"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

type Input struct {
	Ref string
	// Langs is the caption language priority list.
	Langs []string
	// LangHint is passed to the transcriber; "" means auto-detect.
	LangHint string
	WorkDir  string
	Logger   *slog.Logger
}

type Result struct {
	Info  types.VideoInfo
	Title string
	// Audio is the transcoded file when the audio stage ran successfully.
	Audio   ports.AudioHandle
	Outcome types.Outcome
	Trace   []State
}

const progressEvery = 10

// Run walks one reference through captions, then audio, then transcription.
// Each stage runs at most once and exactly one outcome is produced. Failures
// are returned inside the outcome as *types.StageError, never as a Go error.
func (u Usecase) Run(ctx context.Context, in Input) Result {
	log := in.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	res := Result{Trace: []State{StateInit}}
	fail := func(stage types.Stage, err error) Result {
		res.Outcome = types.Failed(types.NewStageError(stage, err))
		res.Trace = append(res.Trace, StateFailed)
		log.Warn("item failed", "stage", stage, "error", err)
		return res
	}

	info, err := u.d.Metadata.Probe(ctx, in.Ref)
	if err != nil {
		return fail(types.StageMetadata, err)
	}
	res.Info = info
	res.Title = title.Normalize(info.Title)
	log.Info("resolved metadata", "title", res.Title, "duration", info.Duration)

	captions, err := u.d.Captions.FetchCaptions(ctx, in.Ref, in.Langs)
	res.Trace = append(res.Trace, StateCaptionsTried)
	switch {
	case err != nil:
		log.Warn("caption lookup failed, falling back to transcription", "error", err)
	case captions.Found:
		log.Info("captions found", "language", captions.Language)
		res.Outcome = types.CaptionHit(captions.Text, captions.Language)
		res.Trace = append(res.Trace, StateDone)
		return res
	default:
		log.Info("no captions available, falling back to transcription", "langs", in.Langs)
	}

	audio, err := u.d.Audio.FetchAudio(ctx, in.Ref, ports.SpeechWAV, in.WorkDir)
	res.Trace = append(res.Trace, StateAudioTried)
	if err != nil {
		return fail(types.StageDownload, err)
	}
	res.Audio = audio
	log.Info("audio ready", "path", audio.Path, "duration", audio.Duration)

	segs, err := u.transcribe(ctx, audio.Path, in.LangHint, log)
	res.Trace = append(res.Trace, StateTranscriptionTried)
	if err != nil {
		return fail(types.StageTranscription, err)
	}
	log.Info("transcription done", "segments", len(segs))
	res.Outcome = types.Transcribed(segs)
	res.Trace = append(res.Trace, StateDone)
	return res
}

func (u Usecase) transcribe(ctx context.Context, path, langHint string, log *slog.Logger) ([]types.Segment, error) {
	seq, err := u.d.Transcriber.Transcribe(ctx, path, langHint)
	if err != nil {
		return nil, err
	}
	var segs []types.Segment
	for seg, err := range seq {
		if err != nil {
			return nil, err
		}
		if err := checkOrder(segs, seg); err != nil {
			return nil, err
		}
		segs = append(segs, seg)
		if len(segs)%progressEvery == 1 {
			log.Info("transcribing", "segments", len(segs), "at", seg.Start)
		}
	}
	return segs, nil
}

func checkOrder(prev []types.Segment, seg types.Segment) error {
	if seg.End < seg.Start {
		return fmt.Errorf("segment %d ends before it starts (%.3f < %.3f)", len(prev)+1, seg.End, seg.Start)
	}
	if n := len(prev); n > 0 && seg.Start < prev[n-1].Start {
		return fmt.Errorf("segment %d starts before segment %d (%.3f < %.3f)", n+1, n, seg.Start, prev[n-1].Start)
	}
	return nil
}
