package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"strings"
	"unicode"

	"github.com/forPelevin/yt2text/internal/config"
	"github.com/forPelevin/yt2text/internal/domain/subtitles"
	"github.com/forPelevin/yt2text/internal/ports"
	"github.com/forPelevin/yt2text/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/yt2text/internal/ports/adapters/whisperapi"
	"github.com/forPelevin/yt2text/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/yt2text/internal/ports/adapters/ytdlp"
	"github.com/forPelevin/yt2text/internal/usecase"
	"github.com/forPelevin/yt2text/internal/writer"
)

// Run validates cfg, wires the real adapters and processes refs.
func Run(ctx context.Context, cfg config.Config, refs []string, logger *slog.Logger) (BatchResult, error) {
	if err := cfg.Validate(); err != nil {
		return BatchResult{}, err
	}
	return RunBatch(ctx, refs, NewDeps(cfg), BatchOptionsFrom(cfg, logger))
}

// NewDeps builds the adapter set described by cfg.
func NewDeps(cfg config.Config) usecase.Deps {
	yt := ytdlp.New(cfg.YtDlpPath)
	ff := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)

	var tr ports.Transcriber
	switch cfg.Transcriber {
	case config.TranscriberOpenAI:
		tr = whisperapi.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	default:
		tr = whispercpp.New(cfg.WhisperBin, whispercpp.ModelPath(cfg.WhisperModelsDir, cfg.Model), cfg.WhisperThreads)
	}

	return usecase.Deps{
		Metadata:    yt,
		Captions:    yt,
		Audio:       audioSource{dl: yt, tc: ff, pr: ff},
		Transcriber: tr,
	}
}

func BatchOptionsFrom(cfg config.Config, logger *slog.Logger) BatchOptions {
	return BatchOptions{
		OutDir:   cfg.OutDir,
		Langs:    cfg.SubLangs(),
		LangHint: cfg.LangHint(),
		Writer: writer.Options{
			SRTWidth:  cfg.SRTWidth,
			Reflow:    subtitles.ReflowOptions{ByPunct: cfg.TxtWrapPunct, Width: cfg.TxtWidth},
			KeepAudio: cfg.KeepAudio,
		},
		History: !cfg.NoHistory,
		Logger:  logger,
	}
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.MetadataSource = (*ytdlp.Adapter)(nil)
var _ ports.CaptionSource = (*ytdlp.Adapter)(nil)
var _ ports.AudioSource = audioSource{}
var _ audioProber = (*ffmpeg.Adapter)(nil)
var _ ports.Transcriber = (*whispercpp.Adapter)(nil)
var _ ports.Transcriber = (*whisperapi.Adapter)(nil)
