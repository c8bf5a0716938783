package pipeline

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/forPelevin/yt2text/internal/history"
	"github.com/forPelevin/yt2text/internal/ports"
	"github.com/forPelevin/yt2text/internal/report"
	"github.com/forPelevin/yt2text/internal/types"
	"github.com/forPelevin/yt2text/internal/usecase"
)

func TestDedup(t *testing.T) {
	got := Dedup([]string{"A", "B", "A", "C", "B"})
	want := []string{"A", "B", "C"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Dedup = %v, want %v", got, want)
	}
	if got := Dedup([]string{"a", "A", "a "}); len(got) != 3 {
		t.Fatalf("expected exact comparison, got %v", got)
	}
	if got := Dedup(nil); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
}

func TestCollectReferences(t *testing.T) {
	list := filepath.Join(t.TempDir(), "urls.txt")
	content := "\ufeff# morning batch\nhttps://youtu.be/b\n\n   https://youtu.be/c  \n#https://youtu.be/skip\nhttps://youtu.be/a\n"
	if err := os.WriteFile(list, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := CollectReferences([]string{"https://youtu.be/a", "https://youtu.be/b"}, list)
	if err != nil {
		t.Fatalf("CollectReferences: %v", err)
	}
	want := "https://youtu.be/a,https://youtu.be/b,https://youtu.be/c"
	if strings.Join(got, ",") != want {
		t.Fatalf("got %v, want %s", got, want)
	}
}

func TestCollectReferences_Errors(t *testing.T) {
	if _, err := CollectReferences(nil, ""); !errors.Is(err, types.ErrConfig) {
		t.Fatalf("expected config error for no references, got %v", err)
	}
	if _, err := CollectReferences([]string{"x"}, filepath.Join(t.TempDir(), "missing.txt")); !errors.Is(err, types.ErrConfig) {
		t.Fatalf("expected config error for missing list file, got %v", err)
	}
	empty := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(empty, []byte("# nothing\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := CollectReferences([]string{"  "}, empty); !errors.Is(err, types.ErrConfig) {
		t.Fatalf("expected config error for empty list, got %v", err)
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := map[string]string{
		"  My Cool.Video  ":            "my-cool-video",
		"___":                          "",
		"abc123":                       "abc123",
		"https://youtu.be/6xXdlpmZwHI": "https-youtu-be-6xxdlpmzwhi",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := normalizePathSegment(in); got != want {
				t.Fatalf("normalizePathSegment(%q) = %q, want %q", in, got, want)
			}
		})
	}
}

func TestItemWorkDir(t *testing.T) {
	ref := "https://www.youtube.com/watch?v=6xXdlpmZwHI&list=PL0123456789abcdef"
	got := itemWorkDir("/w", 1, ref)
	base := filepath.Base(got)
	if filepath.Dir(got) != "/w" || !strings.HasPrefix(base, "002-") {
		t.Fatalf("unexpected work dir %q", got)
	}
	if !strings.HasSuffix(base, "-"+hash(ref)[:6]) {
		t.Fatalf("missing hash suffix: %q", base)
	}
	if itemWorkDir("/w", 1, ref+"x") == got {
		t.Fatalf("work dirs must differ per reference")
	}
}

// fakes keyed by reference

type fakeSource struct {
	titles      map[string]string
	captions    map[string]string
	audioErr    map[string]error
	audioCalls  map[string]int
	transcribed map[string][]types.Segment
	onAudio     func(ref string)
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		titles:      map[string]string{},
		captions:    map[string]string{},
		audioErr:    map[string]error{},
		audioCalls:  map[string]int{},
		transcribed: map[string][]types.Segment{},
	}
}

func (f *fakeSource) Probe(_ context.Context, ref string) (types.VideoInfo, error) {
	return types.VideoInfo{ID: ref, Title: f.titles[ref]}, nil
}

func (f *fakeSource) FetchCaptions(_ context.Context, ref string, _ []string) (ports.CaptionResult, error) {
	if c, ok := f.captions[ref]; ok {
		return ports.CaptionResult{Found: true, Language: "zh-Hant", Text: c}, nil
	}
	return ports.CaptionResult{}, nil
}

func (f *fakeSource) FetchAudio(_ context.Context, ref string, _ ports.AudioEncoding, workDir string) (ports.AudioHandle, error) {
	f.audioCalls[ref]++
	if f.onAudio != nil {
		f.onAudio(ref)
	}
	if err := f.audioErr[ref]; err != nil {
		return ports.AudioHandle{}, err
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return ports.AudioHandle{}, err
	}
	p := filepath.Join(workDir, "audio.wav")
	return ports.AudioHandle{Path: p}, os.WriteFile(p, []byte("RIFF"), 0o644)
}

type fakeTranscriber struct {
	byPath func(path string) []types.Segment
}

func (f fakeTranscriber) Transcribe(_ context.Context, path, _ string) (iter.Seq2[types.Segment, error], error) {
	segs := f.byPath(path)
	return func(yield func(types.Segment, error) bool) {
		for _, s := range segs {
			if !yield(s, nil) {
				return
			}
		}
	}, nil
}

func depsFor(src *fakeSource) usecase.Deps {
	return usecase.Deps{
		Metadata: src,
		Captions: src,
		Audio:    src,
		Transcriber: fakeTranscriber{byPath: func(string) []types.Segment {
			return []types.Segment{{Start: 0, End: 1.5, Text: "嗨"}, {Start: 1.5, End: 3, Text: "你好"}}
		}},
	}
}

func testOptions(t *testing.T) BatchOptions {
	t.Helper()
	clock := time.Date(2025, 5, 27, 8, 0, 0, 0, time.UTC)
	return BatchOptions{
		OutDir:   filepath.Join(t.TempDir(), "out"),
		Langs:    []string{"zh-Hant"},
		LangHint: "zh",
		History:  true,
		newRunID: func() string { return "run-test" },
		now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
}

func TestRunBatch_IsolatesItemFailures(t *testing.T) {
	src := newFakeSource()
	src.titles = map[string]string{"A": "Alpha", "B": "Beta", "C": "Gamma"}
	src.audioErr["B"] = errors.New("HTTP Error 403: Forbidden")
	opt := testOptions(t)

	res, err := RunBatch(context.Background(), []string{"A", "B", "C"}, depsFor(src), opt)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	entries := res.Report.Entries
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"A", "B", "C"} {
		if entries[i].Reference != want {
			t.Fatalf("entry %d is %q, want %q", i, entries[i].Reference, want)
		}
	}
	if entries[0].Outcome != "transcribed" || entries[2].Outcome != "transcribed" {
		t.Fatalf("items 1 and 3 should succeed: %+v", entries)
	}
	if entries[1].Outcome != "failed" || entries[1].Stage != types.StageDownload {
		t.Fatalf("item 2 should fail in download: %+v", entries[1])
	}
	if !strings.Contains(entries[1].Error, "403") {
		t.Fatalf("failure reason missing: %q", entries[1].Error)
	}
	if src.audioCalls["C"] != 1 {
		t.Fatalf("item 3 must still be attempted")
	}

	srt, err := os.ReadFile(filepath.Join(opt.OutDir, "Gamma.srt"))
	if err != nil {
		t.Fatalf("read srt: %v", err)
	}
	if string(srt) != "1\n00:00:00,000 --> 00:00:01,500\n嗨\n\n2\n00:00:01,500 --> 00:00:03,000\n你好\n\n" {
		t.Fatalf("unexpected srt %q", srt)
	}
	txt, err := os.ReadFile(filepath.Join(opt.OutDir, "Gamma.txt"))
	if err != nil {
		t.Fatalf("read txt: %v", err)
	}
	if string(txt) != "嗨你好\n" {
		t.Fatalf("unexpected txt %q", txt)
	}
	if _, err := os.Stat(filepath.Join(opt.OutDir, "Beta.srt")); !os.IsNotExist(err) {
		t.Fatalf("failed item must not produce files")
	}
}

func TestRunBatch_WritesReportAndHistory(t *testing.T) {
	src := newFakeSource()
	src.titles = map[string]string{"A": "Alpha"}
	src.captions["A"] = "1\n00:00:00,000 --> 00:00:01,000\n早安。\n"
	opt := testOptions(t)

	res, err := RunBatch(context.Background(), []string{"A"}, depsFor(src), opt)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if res.Report.RunID != "run-test" || !res.Report.FinishedAt.After(res.Report.StartedAt) {
		t.Fatalf("unexpected report header: %+v", res.Report)
	}
	if src.audioCalls["A"] != 0 {
		t.Fatalf("caption hit must not download audio")
	}

	wantPath := report.Path(filepath.Join(opt.OutDir, StateDirName), "run-test")
	if res.ReportPath != wantPath {
		t.Fatalf("report path = %q, want %q", res.ReportPath, wantPath)
	}
	onDisk, err := report.Read(res.ReportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if len(onDisk.Entries) != 1 || onDisk.Entries[0].Outcome != "caption" || onDisk.Entries[0].CaptionLanguage != "zh-Hant" {
		t.Fatalf("unexpected report entries: %+v", onDisk.Entries)
	}

	store, err := history.Open(context.Background(), filepath.Join(opt.OutDir, StateDirName, "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer store.Close()
	rows, err := store.Recent(context.Background(), "A", 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 1 || rows[0].RunID != "run-test" {
		t.Fatalf("unexpected history rows: %+v", rows)
	}
}

func TestRunBatch_NoHistory(t *testing.T) {
	src := newFakeSource()
	src.titles = map[string]string{"A": "Alpha"}
	opt := testOptions(t)
	opt.History = false

	if _, err := RunBatch(context.Background(), []string{"A"}, depsFor(src), opt); err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if _, err := os.Stat(filepath.Join(opt.OutDir, StateDirName, "history.db")); !os.IsNotExist(err) {
		t.Fatalf("history db must not be created, stat err=%v", err)
	}
}

func TestRunBatch_DisambiguatesTitleCollisions(t *testing.T) {
	src := newFakeSource()
	src.titles = map[string]string{"A": "Same: Title", "B": "Same/ Title"}
	opt := testOptions(t)

	res, err := RunBatch(context.Background(), []string{"A", "B"}, depsFor(src), opt)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	first, second := res.Report.Entries[0].Title, res.Report.Entries[1].Title
	if first != "Same_ Title" {
		t.Fatalf("unexpected first title %q", first)
	}
	if second == first || !strings.HasPrefix(second, first+"-") {
		t.Fatalf("second title not disambiguated: %q", second)
	}
	for _, name := range []string{first, second} {
		if _, err := os.Stat(filepath.Join(opt.OutDir, name+".txt")); err != nil {
			t.Fatalf("missing output for %q: %v", name, err)
		}
	}
}

func TestRunBatch_DedupsInput(t *testing.T) {
	src := newFakeSource()
	opt := testOptions(t)

	res, err := RunBatch(context.Background(), []string{"A", "B", "A"}, depsFor(src), opt)
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(res.Report.Entries) != 2 || src.audioCalls["A"] != 1 {
		t.Fatalf("duplicates must be processed once: entries=%d calls=%d", len(res.Report.Entries), src.audioCalls["A"])
	}
}

func TestRunBatch_CancelledContextRecordsRemainingItems(t *testing.T) {
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src.onAudio = func(ref string) {
		if ref == "A" {
			cancel()
		}
	}
	src.audioErr["A"] = context.Canceled

	res, err := RunBatch(ctx, []string{"A", "B", "C"}, depsFor(src), testOptions(t))
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}
	if len(res.Report.Entries) != 3 {
		t.Fatalf("every item must be reported, got %d", len(res.Report.Entries))
	}
	for _, e := range res.Report.Entries {
		if e.Succeeded() {
			t.Fatalf("expected all items failed after cancel: %+v", e)
		}
	}
	if src.audioCalls["B"] != 0 || src.audioCalls["C"] != 0 {
		t.Fatalf("no work after cancellation")
	}
}

func TestRunBatch_LockHeld(t *testing.T) {
	opt := testOptions(t)
	stateDir := filepath.Join(opt.OutDir, StateDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		t.Fatal(err)
	}
	other := flock.New(filepath.Join(stateDir, "lock"))
	ok, err := other.TryLock()
	if err != nil || !ok {
		t.Fatalf("setup lock: ok=%v err=%v", ok, err)
	}
	defer other.Unlock()

	_, err = RunBatch(context.Background(), []string{"A"}, depsFor(newFakeSource()), opt)
	if !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRunBatch_NoReferences(t *testing.T) {
	_, err := RunBatch(context.Background(), nil, depsFor(newFakeSource()), testOptions(t))
	if !errors.Is(err, types.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

type fakeDownloader struct {
	path string
	err  error
}

func (f fakeDownloader) DownloadAudio(_ context.Context, _ string, dir string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	p := filepath.Join(dir, f.path)
	return p, os.WriteFile(p, []byte("webm"), 0o644)
}

type fakeTranscoder struct {
	got []string
	err error
}

func (f *fakeTranscoder) Transcode(_ context.Context, in, out string, enc ports.AudioEncoding) error {
	f.got = []string{in, out, enc.Format}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(out, []byte("RIFF"), 0o644)
}

func TestAudioSource(t *testing.T) {
	work := filepath.Join(t.TempDir(), "item")
	tc := &fakeTranscoder{}
	a := audioSource{dl: fakeDownloader{path: "source.webm"}, tc: tc}

	h, err := a.FetchAudio(context.Background(), "ref", ports.SpeechWAV, work)
	if err != nil {
		t.Fatalf("FetchAudio: %v", err)
	}
	if h.Path != filepath.Join(work, "audio.wav") {
		t.Fatalf("unexpected path %q", h.Path)
	}
	if tc.got[0] != filepath.Join(work, "source.webm") || tc.got[2] != "wav" {
		t.Fatalf("unexpected transcode call %v", tc.got)
	}
	if _, err := os.Stat(filepath.Join(work, "source.webm")); !os.IsNotExist(err) {
		t.Fatalf("downloaded source should be removed")
	}
}

type fakeProber struct {
	d   time.Duration
	err error
}

func (f fakeProber) ProbeDuration(_ context.Context, path string) (time.Duration, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, err
	}
	return f.d, f.err
}

func TestAudioSource_MeasuresDuration(t *testing.T) {
	work := filepath.Join(t.TempDir(), "item")
	a := audioSource{dl: fakeDownloader{path: "source.webm"}, tc: &fakeTranscoder{}, pr: fakeProber{d: 90 * time.Second}}

	h, err := a.FetchAudio(context.Background(), "ref", ports.SpeechWAV, work)
	if err != nil {
		t.Fatalf("FetchAudio: %v", err)
	}
	if h.Duration != 90*time.Second {
		t.Fatalf("unexpected duration %v", h.Duration)
	}

	a.pr = fakeProber{err: errors.New("ffprobe missing")}
	h, err = a.FetchAudio(context.Background(), "ref", ports.SpeechWAV, work)
	if err != nil {
		t.Fatalf("probe failure must not fail the download: %v", err)
	}
	if h.Duration != 0 || h.Path == "" {
		t.Fatalf("unexpected handle %+v", h)
	}
}

func TestAudioSource_Errors(t *testing.T) {
	work := t.TempDir()
	a := audioSource{dl: fakeDownloader{err: errors.New("geo blocked")}, tc: &fakeTranscoder{}}
	if _, err := a.FetchAudio(context.Background(), "ref", ports.SpeechWAV, work); err == nil {
		t.Fatalf("expected download error")
	}
	a = audioSource{dl: fakeDownloader{path: "s.m4a"}, tc: &fakeTranscoder{err: errors.New("bad codec")}}
	if _, err := a.FetchAudio(context.Background(), "ref", ports.SpeechWAV, work); err == nil || !strings.Contains(err.Error(), "transcode") {
		t.Fatalf("expected transcode error, got %v", err)
	}
}
