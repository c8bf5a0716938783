package ports

import (
	"context"
	"iter"
	"time"

	"github.com/forPelevin/yt2text/internal/types"
)

type MetadataSource interface {
	Probe(ctx context.Context, ref string) (types.VideoInfo, error)
}

// CaptionResult is the value returned by a caption lookup. Found == false is
// the normal "no captions" answer, not an error.
type CaptionResult struct {
	Found    bool
	Language string
	Text     string
}

type CaptionSource interface {
	// FetchCaptions tries langs in order and returns the first track found.
	FetchCaptions(ctx context.Context, ref string, langs []string) (CaptionResult, error)
}

// AudioEncoding describes the audio a transcriber expects.
type AudioEncoding struct {
	Format     string
	SampleRate int
	Channels   int
}

// SpeechWAV is what whisper-style engines consume.
var SpeechWAV = AudioEncoding{Format: "wav", SampleRate: 16000, Channels: 1}

type AudioHandle struct {
	Path string
	// Duration is zero when it could not be measured.
	Duration time.Duration
}

type AudioSource interface {
	FetchAudio(ctx context.Context, ref string, enc AudioEncoding, workDir string) (AudioHandle, error)
}

// Transcriber turns a local audio file into timed segments. The returned
// sequence is lazy and single-use; segments come in non-decreasing Start
// order and a failure part-way through is yielded as the error value.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, langHint string) (iter.Seq2[types.Segment, error], error)
}
