package ytdlp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/forPelevin/yt2text/internal/ports"
	"github.com/forPelevin/yt2text/internal/types"
)

// Adapter drives the yt-dlp binary for metadata, caption tracks and audio.
type Adapter struct {
	bin string

	mu    sync.Mutex
	infos map[string]videoInfo
}

type videoInfo struct {
	ID                string                     `json:"id"`
	Title             string                     `json:"title"`
	Duration          float64                    `json:"duration"`
	Subtitles         map[string]json.RawMessage `json:"subtitles"`
	AutomaticCaptions map[string]json.RawMessage `json:"automatic_captions"`
}

func New(binPath string) *Adapter {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Adapter{bin: binPath, infos: map[string]videoInfo{}}
}

func (a *Adapter) Probe(ctx context.Context, ref string) (types.VideoInfo, error) {
	info, err := a.info(ctx, ref)
	if err != nil {
		return types.VideoInfo{}, err
	}
	return types.VideoInfo{ID: info.ID, Title: info.Title, Duration: info.Duration}, nil
}

// FetchCaptions picks the first language in langs that has a manual track,
// falling back to an automatic track for that same language, and downloads
// it as SRT. No matching track is reported as Found == false.
func (a *Adapter) FetchCaptions(ctx context.Context, ref string, langs []string) (ports.CaptionResult, error) {
	info, err := a.info(ctx, ref)
	if err != nil {
		return ports.CaptionResult{}, err
	}
	lang, auto, ok := pickTrack(langs, info.Subtitles, info.AutomaticCaptions)
	if !ok {
		return ports.CaptionResult{}, nil
	}

	dir, err := os.MkdirTemp("", "yt2text-captions-*")
	if err != nil {
		return ports.CaptionResult{}, err
	}
	defer os.RemoveAll(dir)

	writeFlag := "--write-subs"
	if auto {
		writeFlag = "--write-auto-subs"
	}
	_, err = a.run(ctx,
		"--skip-download",
		writeFlag,
		"--sub-langs", lang,
		"--sub-format", "srt/best",
		"--convert-subs", "srt",
		"--no-playlist",
		"--no-warnings",
		"-o", filepath.Join(dir, "caption.%(ext)s"),
		ref,
	)
	if err != nil {
		return ports.CaptionResult{}, fmt.Errorf("yt-dlp captions: %w", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "caption*.srt"))
	if len(matches) == 0 {
		return ports.CaptionResult{}, nil
	}
	sort.Strings(matches)
	b, err := os.ReadFile(matches[0])
	if err != nil {
		return ports.CaptionResult{}, err
	}
	if strings.TrimSpace(string(b)) == "" {
		return ports.CaptionResult{}, nil
	}
	return ports.CaptionResult{Found: true, Language: lang, Text: string(b)}, nil
}

// DownloadAudio fetches the best audio-only stream into dir and returns its
// path. No transcoding happens here.
func (a *Adapter) DownloadAudio(ctx context.Context, ref, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if _, err := a.run(ctx,
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-warnings",
		"--no-part",
		"-o", filepath.Join(dir, "source.%(ext)s"),
		ref,
	); err != nil {
		return "", fmt.Errorf("yt-dlp audio: %w", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "source.*"))
	if len(matches) == 0 {
		return "", errors.New("yt-dlp audio: no output file produced")
	}
	sort.Strings(matches)
	return matches[0], nil
}

func (a *Adapter) info(ctx context.Context, ref string) (videoInfo, error) {
	a.mu.Lock()
	cached, ok := a.infos[ref]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	b, err := a.run(ctx, "--dump-single-json", "--skip-download", "--no-playlist", "--no-warnings", ref)
	if err != nil {
		return videoInfo{}, fmt.Errorf("yt-dlp metadata: %w", err)
	}
	info, err := parseInfo(b)
	if err != nil {
		return videoInfo{}, err
	}

	a.mu.Lock()
	a.infos[ref] = info
	a.mu.Unlock()
	return info, nil
}

func (a *Adapter) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, a.bin, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w\n%s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func parseInfo(b []byte) (videoInfo, error) {
	var info videoInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return videoInfo{}, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}
	return info, nil
}

// pickTrack returns the first language in priority order that has a track.
// Manual subtitles win over automatic captions for the same language.
func pickTrack(langs []string, manual, auto map[string]json.RawMessage) (lang string, automatic bool, ok bool) {
	for _, l := range langs {
		if _, found := manual[l]; found {
			return l, false, true
		}
		if _, found := auto[l]; found {
			return l, true, true
		}
	}
	return "", false, false
}
