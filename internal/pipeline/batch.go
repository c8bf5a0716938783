package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/forPelevin/yt2text/internal/domain/title"
	"github.com/forPelevin/yt2text/internal/history"
	"github.com/forPelevin/yt2text/internal/logging"
	"github.com/forPelevin/yt2text/internal/report"
	"github.com/forPelevin/yt2text/internal/types"
	"github.com/forPelevin/yt2text/internal/usecase"
	"github.com/forPelevin/yt2text/internal/writer"
)

// StateDirName holds the lock, reports and history inside the output dir.
const StateDirName = ".yt2text"

// ErrLocked is returned when another run holds the output directory.
var ErrLocked = errors.New("output directory is in use by another run")

type BatchOptions struct {
	OutDir   string
	Langs    []string
	LangHint string
	Writer   writer.Options
	// History enables the SQLite run history.
	History bool
	Logger  *slog.Logger
	// WorkDir is the scratch root for downloaded audio; a temp dir is used
	// when empty.
	WorkDir string

	newRunID func() string
	now      func() time.Time
}

// BatchResult is what one batch produced beyond the report itself.
type BatchResult struct {
	Report     types.BatchReport
	ReportPath string
}

// RunBatch processes refs in order. Every reference ends up in the report
// exactly once; item failures are recorded there and never stop the batch.
// The returned error is reserved for run-level problems (lock, output dir).
func RunBatch(ctx context.Context, refs []string, deps usecase.Deps, opt BatchOptions) (BatchResult, error) {
	refs = Dedup(refs)
	if len(refs) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no video references given", types.ErrConfig)
	}
	log := opt.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	newRunID := opt.newRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	now := opt.now
	if now == nil {
		now = time.Now
	}

	stateDir := filepath.Join(opt.OutDir, StateDirName)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return BatchResult{}, fmt.Errorf("create output dir: %w", err)
	}
	lock := flock.New(filepath.Join(stateDir, "lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return BatchResult{}, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return BatchResult{}, fmt.Errorf("%w: %s", ErrLocked, opt.OutDir)
	}
	defer func() { _ = lock.Unlock() }()

	workRoot := opt.WorkDir
	if workRoot == "" {
		workRoot, err = os.MkdirTemp("", "yt2text-*")
		if err != nil {
			return BatchResult{}, fmt.Errorf("create work dir: %w", err)
		}
		defer os.RemoveAll(workRoot)
	}

	rep := types.BatchReport{
		RunID:     newRunID(),
		OutDir:    opt.OutDir,
		StartedAt: now().UTC(),
		Entries:   make([]types.ReportEntry, 0, len(refs)),
	}
	runLog := log.With(logging.FieldRunID, rep.RunID)
	runLog.Info("batch started", "items", len(refs), "outdir", opt.OutDir)

	uc := usecase.New(deps)
	w := writer.New(opt.Writer)
	titles := make(map[string]string, len(refs))

	for i, ref := range refs {
		itemLog := runLog.With(logging.FieldItem, i+1, logging.FieldRef, ref)
		if err := ctx.Err(); err != nil {
			rep.Entries = append(rep.Entries, failedEntry(ref, "", err))
			itemLog.Warn("skipped", "error", err)
			continue
		}

		workDir := itemWorkDir(workRoot, i, ref)
		entry := processItem(ctx, uc, w, ref, workDir, titles, opt, itemLog)
		_ = os.RemoveAll(workDir)
		rep.Entries = append(rep.Entries, entry)
	}
	rep.FinishedAt = now().UTC()

	res := BatchResult{Report: rep}
	succeeded, failed := rep.Counts()
	runLog.Info("batch finished", "succeeded", succeeded, "failed", failed, "elapsed", rep.FinishedAt.Sub(rep.StartedAt))

	if path, err := report.Write(stateDir, rep); err != nil {
		runLog.Warn("write report failed", "error", err)
	} else {
		res.ReportPath = path
		runLog.Debug("report written", "path", path)
	}
	if opt.History {
		if err := recordHistory(ctx, filepath.Join(stateDir, "history.db"), rep); err != nil {
			runLog.Warn("record history failed", "error", err)
		}
	}
	return res, nil
}

func processItem(
	ctx context.Context,
	uc usecase.Usecase,
	w writer.Writer,
	ref, workDir string,
	titles map[string]string,
	opt BatchOptions,
	log *slog.Logger,
) types.ReportEntry {
	res := uc.Run(ctx, usecase.Input{
		Ref:      ref,
		Langs:    opt.Langs,
		LangHint: opt.LangHint,
		WorkDir:  workDir,
		Logger:   log,
	})
	if res.Outcome.Kind == types.OutcomeFailed {
		return failedEntry(ref, res.Title, res.Outcome.Err)
	}

	name := res.Title
	if owner, taken := titles[name]; taken && owner != ref {
		name = title.Disambiguate(name, ref)
		log.Warn("title already used in this run, disambiguating", "title", res.Title, "file_name", name)
	}
	titles[name] = ref

	paths, err := w.Write(opt.OutDir, name, res.Outcome, res.Audio.Path)
	if err != nil {
		err = types.NewStageError(types.StageWrite, err)
		log.Warn("item failed", logging.FieldStage, types.StageWrite, "error", err)
		e := failedEntry(ref, name, err)
		e.OutputPaths = paths
		return e
	}

	entry := types.ReportEntry{
		Reference:       ref,
		Title:           name,
		Outcome:         res.Outcome.Kind.String(),
		CaptionLanguage: res.Outcome.CaptionLanguage,
		Segments:        len(res.Outcome.Segments),
		OutputPaths:     paths,
	}
	log.Info("item done", "outcome", entry.Outcome, "files", len(paths))
	return entry
}

func failedEntry(ref, name string, err error) types.ReportEntry {
	e := types.ReportEntry{
		Reference: ref,
		Title:     name,
		Outcome:   types.OutcomeFailed.String(),
		Stage:     types.StageOf(err),
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

func recordHistory(ctx context.Context, path string, rep types.BatchReport) error {
	// The batch may have ended on a cancelled context; history is still kept.
	ctx = context.WithoutCancel(ctx)
	store, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Record(ctx, rep)
}

func itemWorkDir(root string, idx int, ref string) string {
	seg := normalizePathSegment(ref)
	if r := []rune(seg); len(r) > 40 {
		seg = string(r[len(r)-40:])
	}
	return filepath.Join(root, fmt.Sprintf("%03d-%s-%s", idx+1, seg, hash(ref)[:6]))
}
