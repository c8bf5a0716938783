package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/yt2text/internal/ports"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

// Transcode converts any input ffmpeg can read into the requested encoding.
func (a *Adapter) Transcode(ctx context.Context, in, out string, enc ports.AudioEncoding) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, transcodeArgs(in, out, enc)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg transcode audio: %w\n%s", err, string(b))
	}
	return nil
}

func transcodeArgs(in, out string, enc ports.AudioEncoding) []string {
	args := []string{"-y", "-i", in, "-vn"}
	if enc.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(enc.Channels))
	}
	if enc.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(enc.SampleRate))
	}
	if enc.Format != "" {
		args = append(args, "-f", enc.Format)
	}
	return append(args, out)
}

func (a *Adapter) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}
