package whispercpp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/forPelevin/yt2text/internal/domain/subtitles"
	"github.com/forPelevin/yt2text/internal/types"
)

type Adapter struct {
	bin     string
	model   string
	threads int
}

// ModelPath maps a model size ("small", "large-v3", ...) to the ggml file
// whisper.cpp ships under modelsDir.
func ModelPath(modelsDir, size string) string {
	return filepath.Join(modelsDir, "ggml-"+size+".bin")
}

func New(binPath, modelPath string, threads int) *Adapter {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &Adapter{bin: binPath, model: modelPath, threads: threads}
}

// Transcribe validates the model and audio paths immediately. The whisper.cpp
// process is started on the first iteration and its stdout is parsed line by
// line, so segments arrive while decoding is still running. Stopping the
// iteration early kills the process.
func (a *Adapter) Transcribe(ctx context.Context, audioPath, langHint string) (iter.Seq2[types.Segment, error], error) {
	if _, err := os.Stat(a.model); err != nil {
		return nil, fmt.Errorf("whisper model: %w", err)
	}
	if _, err := os.Stat(audioPath); err != nil {
		return nil, fmt.Errorf("audio file: %w", err)
	}
	args := a.args(audioPath, langHint)

	var used atomic.Bool
	return func(yield func(types.Segment, error) bool) {
		if used.Swap(true) {
			yield(types.Segment{}, errors.New("transcription sequence already consumed"))
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		cmd := exec.CommandContext(runCtx, a.bin, args...)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			yield(types.Segment{}, err)
			return
		}
		var stderr strings.Builder
		cmd.Stderr = &stderr
		if err := cmd.Start(); err != nil {
			yield(types.Segment{}, fmt.Errorf("whisper.cpp start: %w", err))
			return
		}

		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			seg, ok, err := parseLine(sc.Text())
			if err != nil {
				cancel()
				_ = cmd.Wait()
				yield(types.Segment{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(seg, nil) {
				cancel()
				_ = cmd.Wait()
				return
			}
		}
		scanErr := sc.Err()
		if scanErr != nil {
			// stdout is no longer drained; stop the process before waiting.
			cancel()
		}
		if err := cmd.Wait(); err != nil && scanErr == nil {
			yield(types.Segment{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, tail(stderr.String(), 2000)))
			return
		}
		if scanErr != nil {
			yield(types.Segment{}, fmt.Errorf("read whisper.cpp output: %w", scanErr))
		}
	}, nil
}

func (a *Adapter) args(audioPath, langHint string) []string {
	lang := langHint
	if lang == "" {
		lang = "auto"
	}
	return []string{
		"-m", a.model,
		"-f", audioPath,
		"-l", lang,
		"-t", fmt.Sprint(a.threads),
		"-np",
	}
}

// whisper-cli separates the range from the text with two spaces; the text
// keeps its own leading space so word boundaries survive concatenation.
var segmentLineRE = regexp.MustCompile(`^\[(\d{2}:\d{2}:\d{2}[.,]\d{3})\s*-->\s*(\d{2}:\d{2}:\d{2}[.,]\d{3})\] {0,2}(.*)$`)

// parseLine reads one "[HH:MM:SS.mmm --> HH:MM:SS.mmm]  text" line. Lines
// that are not segments, or segments with no text, report ok == false.
func parseLine(line string) (types.Segment, bool, error) {
	m := segmentLineRE.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return types.Segment{}, false, nil
	}
	text := m[3]
	if strings.TrimSpace(text) == "" {
		return types.Segment{}, false, nil
	}
	start, err := subtitles.ParseTimestamp(m[1])
	if err != nil {
		return types.Segment{}, false, err
	}
	end, err := subtitles.ParseTimestamp(m[2])
	if err != nil {
		return types.Segment{}, false, err
	}
	return types.Segment{Start: start, End: end, Text: text}, true, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
