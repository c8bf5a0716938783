package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/yt2text/internal/ports"
)

type audioDownloader interface {
	DownloadAudio(ctx context.Context, ref, dir string) (string, error)
}

type audioTranscoder interface {
	Transcode(ctx context.Context, in, out string, enc ports.AudioEncoding) error
}

type audioProber interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// audioSource downloads the best audio stream and transcodes it to the
// encoding the transcriber asked for. The downloaded source file is removed
// once transcoded. With a prober set, the transcoded length is measured; a
// failed probe leaves Duration at zero.
type audioSource struct {
	dl audioDownloader
	tc audioTranscoder
	pr audioProber
}

func (a audioSource) FetchAudio(ctx context.Context, ref string, enc ports.AudioEncoding, workDir string) (ports.AudioHandle, error) {
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return ports.AudioHandle{}, err
	}
	src, err := a.dl.DownloadAudio(ctx, ref, workDir)
	if err != nil {
		return ports.AudioHandle{}, err
	}
	out := filepath.Join(workDir, "audio."+enc.Format)
	if err := a.tc.Transcode(ctx, src, out, enc); err != nil {
		return ports.AudioHandle{}, fmt.Errorf("transcode: %w", err)
	}
	if src != out {
		_ = os.Remove(src)
	}
	h := ports.AudioHandle{Path: out}
	if a.pr != nil {
		if d, err := a.pr.ProbeDuration(ctx, out); err == nil {
			h.Duration = d
		}
	}
	return h, nil
}
