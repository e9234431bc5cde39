// Package upload runs a batch of local files through the processing service
// and folds the verdicts into the drive store and the transfer queue.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/rescale/drivectl/internal/api"
	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/events"
	"github.com/rescale/drivectl/internal/logging"
	"github.com/rescale/drivectl/internal/models"
	"github.com/rescale/drivectl/internal/progress"
	"github.com/rescale/drivectl/internal/transfer"
)

// Processor sends one file to the processing service.
type Processor interface {
	ProcessFile(ctx context.Context, name string, r io.Reader) (*models.ProcessedDocument, error)
}

// Store receives accepted records.
type Store interface {
	AddUploaded(rec models.FileRecord) bool
	StorageRemaining() int64
}

// Notifier is the user-facing surface for batch outcomes.
type Notifier interface {
	Success(title, message string)
	Warning(title, message string)
	Error(title string, err error)
	Alert(title, message string)
}

// Options tunes an Orchestrator.
type Options struct {
	// Concurrency bounds simultaneous uploads. 0 means the default.
	Concurrency int
	// UI renders per-file bars. nil renders nothing.
	UI progress.ProgressUI
}

// BatchResult is the outcome of UploadBatch. Accepted and Rejected keep
// input order.
type BatchResult struct {
	Accepted []models.FileRecord
	Rejected []transfer.UploadTask
	// Suspended is set when any file hit an account ban.
	Suspended bool
}

// Orchestrator uploads batches. One Orchestrator is shared per process.
type Orchestrator struct {
	processor Processor
	store     Store
	queue     *transfer.Queue
	slots     *transfer.Manager
	notifier  Notifier
	eventBus  *events.EventBus
	logger    *logging.Logger
	ui        progress.ProgressUI
}

// NewOrchestrator wires the orchestrator. notifier, eventBus and logger may be nil.
func NewOrchestrator(processor Processor, store Store, queue *transfer.Queue, notifier Notifier,
	eventBus *events.EventBus, logger *logging.Logger, opts Options) *Orchestrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	ui := opts.UI
	if ui == nil {
		ui = progress.NopUI{}
	}
	return &Orchestrator{
		processor: processor,
		store:     store,
		queue:     queue,
		slots:     transfer.NewManager(opts.Concurrency),
		notifier:  notifier,
		eventBus:  eventBus,
		logger:    logger,
		ui:        ui,
	}
}

type localFile struct {
	path string
	size int64
}

// outcome of one file; exactly one of rec and task is set.
type outcome struct {
	rec       *models.FileRecord
	task      *transfer.UploadTask
	suspended bool
}

// UploadBatch uploads paths concurrently. Every path is checked before the
// first request; a missing file or a directory fails the whole batch with no
// task created. After that, one file's failure never stops the others.
//
// The returned error is non-nil only for a bad path or when ctx ends.
func (o *Orchestrator) UploadBatch(ctx context.Context, paths []string) (*BatchResult, error) {
	if len(paths) == 0 {
		return &BatchResult{}, nil
	}

	files := make([]localFile, 0, len(paths))
	var total int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("'%s' is a directory, not a file", p)
		}
		files = append(files, localFile{path: p, size: info.Size()})
		total += info.Size()
	}

	o.quotaPreflight(total)

	tasks := make([]transfer.UploadTask, len(files))
	for i, f := range files {
		tasks[i] = o.queue.Add(filepath.Base(f.path), f.path, f.size)
	}

	o.logger.Info().Int("count", len(files)).Int64("bytes", total).Msg("Starting upload batch")

	results := make([]outcome, len(files))
	var g errgroup.Group
	for i := range files {
		g.Go(func() error {
			results[i] = o.uploadOne(ctx, files[i], tasks[i])
			return nil
		})
	}
	_ = g.Wait()
	o.ui.Wait()

	res := &BatchResult{}
	for _, r := range results {
		switch {
		case r.rec != nil:
			res.Accepted = append(res.Accepted, *r.rec)
		case r.task != nil:
			res.Rejected = append(res.Rejected, *r.task)
		}
		res.Suspended = res.Suspended || r.suspended
	}

	o.logger.Info().Int("accepted", len(res.Accepted)).Int("rejected", len(res.Rejected)).Msg("Upload batch finished")
	if n := len(res.Accepted); n > 0 {
		o.notifier.Success("Upload complete", fmt.Sprintf("%d file(s) uploaded", n))
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) quotaPreflight(total int64) {
	remaining := o.store.StorageRemaining()
	if remaining < 0 || total <= remaining {
		return
	}
	msg := fmt.Sprintf("Batch needs %s but only %s remain; the server may reject some files",
		models.FormatSize(total), models.FormatSize(remaining))
	o.logger.Warn().Int64("needed", total).Int64("remaining", remaining).Msg("Upload may exceed storage quota")
	o.notifier.Warning("Storage almost full", msg)
}

func (o *Orchestrator) uploadOne(ctx context.Context, f localFile, task transfer.UploadTask) outcome {
	log := o.logger.With().Str("file", f.path).Str("task", task.ID).Logger()

	slot, err := o.slots.Acquire(ctx, task.Name)
	if err != nil {
		return o.fail(task, err.Error(), false)
	}
	defer slot.Complete()

	bar := o.ui.AddFileBar(f.path, f.size)

	fh, err := os.Open(f.path)
	if err != nil {
		bar.Complete("", err)
		return o.fail(task, err.Error(), false)
	}
	defer fh.Close()

	reader := progress.NewReader(fh, func(sent int64) {
		o.queue.UpdateBytes(task.ID, sent)
		bar.UpdateBytes(sent)
	})

	doc, err := o.processor.ProcessFile(ctx, f.path, reader)
	if err != nil {
		bar.Complete("", err)
		if api.IsSuspended(err) {
			log.Warn().Err(err).Msg("Upload refused: account suspended")
			o.suspend(task.Name, err.Error())
			return o.fail(task, err.Error(), true)
		}
		log.Error().Err(err).Msg("Upload failed")
		o.notifier.Error("Upload failed", fmt.Errorf("%s: %w", task.Name, err))
		return o.fail(task, err.Error(), false)
	}

	if doc.Safe() {
		rec := doc.ToFileRecord()
		o.queue.Complete(task.ID, doc.FileName)
		if !o.store.AddUploaded(rec) {
			log.Debug().Str("id", rec.ID).Msg("Upload accepted outside the listed view")
		}
		bar.Complete(doc.FileName, nil)
		log.Debug().Str("id", rec.ID).Msg("Upload accepted")
		return outcome{rec: &rec}
	}

	reason := doc.Reason(constants.DefaultRejectionReason)
	bar.Complete("", errors.New(reason))
	log.Warn().Str("verdict", doc.SecurityStatus).Str("reason", reason).Msg("Upload rejected")
	o.notifier.Error("Upload rejected", fmt.Errorf("%s: %s", task.Name, reason))
	if doc.Banned() {
		o.suspend(task.Name, reason)
	}
	return o.fail(task, reason, doc.Banned())
}

func (o *Orchestrator) fail(task transfer.UploadTask, reason string, suspended bool) outcome {
	o.queue.Fail(task.ID, reason)
	if t, ok := o.queue.Get(task.ID); ok {
		task = t
	} else {
		task.Status = transfer.StatusError
		task.Error = reason
		task.Progress = 0
	}
	return outcome{task: &task, suspended: suspended}
}

func (o *Orchestrator) suspend(fileName, reason string) {
	o.notifier.Alert("Account suspended",
		"Your account has been suspended after an unsafe upload. Contact support to restore access.")
	if o.eventBus != nil {
		o.eventBus.Publish(&events.AccountSuspendedEvent{
			BaseEvent: events.NewBase(events.EventAccountSuspended),
			FileName:  fileName,
			Reason:    reason,
		})
	}
}

type nopNotifier struct{}

func (nopNotifier) Success(string, string) {}
func (nopNotifier) Warning(string, string) {}
func (nopNotifier) Error(string, error)    {}
func (nopNotifier) Alert(string, string)   {}
