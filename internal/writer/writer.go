package writer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/forPelevin/yt2text/internal/domain/subtitles"
	"github.com/forPelevin/yt2text/internal/types"
)

type Options struct {
	// SRTWidth wraps each subtitle entry; 0 disables wrapping.
	SRTWidth int
	Reflow   subtitles.ReflowOptions
	// KeepAudio copies the transcoded audio next to the transcripts.
	KeepAudio bool
}

type Writer struct {
	opt Options
}

func New(opt Options) Writer { return Writer{opt: opt} }

// Write renders outcome as {title}.srt and {title}.txt in outDir and returns
// the paths written. audioPath is only used with KeepAudio on transcribed
// outcomes.
func (w Writer) Write(outDir, title string, outcome types.Outcome, audioPath string) ([]string, error) {
	var srt, txt string
	switch outcome.Kind {
	case types.OutcomeCaptionHit:
		srt = outcome.Caption
		txt = subtitles.Reflow(subtitles.CaptionText(outcome.Caption), w.opt.Reflow)
	case types.OutcomeTranscribed:
		srt = subtitles.RenderSRT(outcome.Segments, w.opt.SRTWidth)
		txt = subtitles.Reflow(subtitles.JoinSegments(outcome.Segments), w.opt.Reflow)
	default:
		return nil, errors.New("nothing to write for a failed outcome")
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	srtPath := filepath.Join(outDir, title+".srt")
	txtPath := filepath.Join(outDir, title+".txt")
	if err := writeFileAtomic(srtPath, []byte(srt)); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(txtPath, []byte(txt)); err != nil {
		// A failed item leaves no half-written pair behind.
		_ = os.Remove(srtPath)
		return nil, err
	}
	paths := []string{srtPath, txtPath}

	if w.opt.KeepAudio && outcome.Kind == types.OutcomeTranscribed && audioPath != "" {
		wavPath := filepath.Join(outDir, title+filepath.Ext(audioPath))
		if err := copyFileAtomic(audioPath, wavPath); err != nil {
			return paths, err
		}
		paths = append(paths, wavPath)
	}
	return paths, nil
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".yt2text-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	return finish(tmp, path, func(f *os.File) error {
		_, err := f.Write(b)
		return err
	})
}

func copyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".yt2text-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	return finish(tmp, dst, func(f *os.File) error {
		_, err := io.Copy(f, in)
		return err
	})
}

func finish(tmp *os.File, dst string, fill func(*os.File) error) error {
	tmpPath := tmp.Name()
	fillErr := fill(tmp)
	closeErr := tmp.Close()
	if fillErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", filepath.Base(dst), fillErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
