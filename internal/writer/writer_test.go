package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forPelevin/yt2text/internal/domain/subtitles"
	"github.com/forPelevin/yt2text/internal/types"
)

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestWrite_Transcribed(t *testing.T) {
	dir := t.TempDir()
	out := types.Transcribed([]types.Segment{
		{Start: 0.0, End: 1.5, Text: "嗨"},
		{Start: 1.5, End: 3.0, Text: "你好"},
	})

	paths, err := New(Options{}).Write(dir, "demo", out, "")
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "demo.srt"), filepath.Join(dir, "demo.txt")}, paths)

	assert.Equal(t, "1\n00:00:00,000 --> 00:00:01,500\n嗨\n\n2\n00:00:01,500 --> 00:00:03,000\n你好\n\n", read(t, paths[0]))
	assert.Equal(t, "嗨你好\n", read(t, paths[1]))
}

func TestWrite_TranscribedKeepsWordBoundaries(t *testing.T) {
	dir := t.TempDir()
	out := types.Transcribed([]types.Segment{
		{Start: 0, End: 2, Text: " Hello world."},
		{Start: 2, End: 3.5, Text: " How are you?"},
	})

	paths, err := New(Options{SRTWidth: 28}).Write(dir, "talk", out, "")
	require.NoError(t, err)

	assert.Equal(t, "1\n00:00:00,000 --> 00:00:02,000\nHello world.\n\n2\n00:00:02,000 --> 00:00:03,500\nHow are you?\n\n", read(t, paths[0]))
	assert.Equal(t, "Hello world. How are you?\n", read(t, paths[1]))

	paths, err = New(Options{Reflow: subtitles.ReflowOptions{Width: 14}}).Write(dir, "wrapped", out, "")
	require.NoError(t, err)
	assert.Equal(t, "Hello world.\nHow are you?\n", read(t, paths[1]))
}

func TestWrite_CaptionHit(t *testing.T) {
	dir := t.TempDir()
	raw := "1\n00:00:00,000 --> 00:00:02,000\n第一句話。\n\n2\n00:00:02,000 --> 00:00:04,000\n第二句話！\n\n"

	paths, err := New(Options{
		SRTWidth: 28,
		Reflow:   subtitles.ReflowOptions{ByPunct: true},
	}).Write(dir, "captions", types.CaptionHit(raw, "zh-Hant"), "")
	require.NoError(t, err)
	require.Len(t, paths, 2)

	assert.Equal(t, raw, read(t, paths[0]), "caption track is kept verbatim")
	assert.Equal(t, "第一句話。\n第二句話！\n", read(t, paths[1]))
}

func TestWrite_KeepAudio(t *testing.T) {
	dir := t.TempDir()
	work := t.TempDir()
	audio := filepath.Join(work, "audio.wav")
	require.NoError(t, os.WriteFile(audio, []byte("RIFF"), 0o644))

	out := types.Transcribed([]types.Segment{{Start: 0, End: 1, Text: "hi"}})
	paths, err := New(Options{KeepAudio: true}).Write(dir, "talk", out, audio)
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Equal(t, filepath.Join(dir, "talk.wav"), paths[2])
	assert.Equal(t, "RIFF", read(t, paths[2]))
}

func TestWrite_FailedOutcome(t *testing.T) {
	_, err := New(Options{}).Write(t.TempDir(), "x", types.Failed(assert.AnError), "")
	assert.Error(t, err)
}

func TestWrite_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Options{}).Write(dir, "a", types.Transcribed(nil), "")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"a.srt", "a.txt"}, names)
}

func TestWrite_UnwritableDir(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := New(Options{}).Write(filepath.Join(blocker, "sub"), "a", types.Transcribed(nil), "")
	assert.Error(t, err)
}

func TestWrite_TxtFailureRemovesSRT(t *testing.T) {
	dir := t.TempDir()
	// A directory in place of the .txt makes the final rename fail.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "a.txt"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt", "keep"), []byte("x"), 0o644))

	out := types.Transcribed([]types.Segment{{Start: 0, End: 1, Text: "hi"}})
	paths, err := New(Options{}).Write(dir, "a", out, "")
	require.Error(t, err)
	assert.Empty(t, paths)

	_, statErr := os.Stat(filepath.Join(dir, "a.srt"))
	assert.True(t, os.IsNotExist(statErr), "srt must not outlive a failed write")
}
