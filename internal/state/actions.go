package state

import (
	"context"
	"fmt"
	"io"

	"github.com/rescale/drivectl/internal/models"
)

// StarOutcome tells whether an optimistic star toggle stuck.
type StarOutcome int

const (
	StarApplied StarOutcome = iota
	StarRolledBack
)

func (o StarOutcome) String() string {
	if o == StarRolledBack {
		return "rolled-back"
	}
	return "applied"
}

// StarResult is the result of ToggleStar. Err is set when rolled back.
type StarResult struct {
	Outcome StarOutcome
	Starred bool // value the record holds after the action
	Err     error
}

// ToggleStar flips the starred flag of id optimistically and confirms it
// with the file service. On failure only that record's flag is restored,
// provided the record is still in the list.
func (s *Store) ToggleStar(ctx context.Context, id string) (StarResult, error) {
	unlock := s.records.lock(id)
	defer unlock()

	if _, ok := s.File(id); !ok {
		return StarResult{}, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}

	// mark the record busy before the flipped value is visible
	s.setFileLoading(id, true)
	defer s.setFileLoading(id, false)

	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return StarResult{}, fmt.Errorf("%w: %s", ErrFileNotFound, id)
	}
	prior := s.files[i].Starred
	s.files[i].Starred = !prior
	view := s.activeView
	filesCopy := s.filesLocked()
	s.mu.Unlock()

	s.eventBus.Publish(NewFileListChangedEvent(view, filesCopy))

	err := s.backend.SetStar(ctx, id, !prior)
	if err == nil {
		return StarResult{Outcome: StarApplied, Starred: !prior}, nil
	}

	s.logger.Warn().Err(err).Str("id", id).Msg("star toggle failed, rolling back")
	s.mu.Lock()
	restored := false
	if i := s.indexLocked(id); i >= 0 {
		s.files[i].Starred = prior
		restored = true
	}
	filesCopy = s.filesLocked()
	s.mu.Unlock()

	if restored {
		s.eventBus.Publish(NewFileListChangedEvent(view, filesCopy))
	}
	s.notifier.Error("Failed to update star", err)
	return StarResult{Outcome: StarRolledBack, Starred: prior, Err: err}, err
}

type batchKind int

const (
	batchTrash batchKind = iota
	batchRestore
	batchDelete
)

var batchNames = map[batchKind]struct{ op, done, failed string }{
	batchTrash:   {"move to trash", "Moved to trash", "Failed to move files to trash"},
	batchRestore: {"restore", "Restored", "Failed to restore files"},
	batchDelete:  {"delete permanently", "Deleted permanently", "Failed to delete files"},
}

// MoveFilesToTrash moves records to the recycle bin and drops them from the list.
func (s *Store) MoveFilesToTrash(ctx context.Context, records []models.FileRecord) error {
	return s.batch(ctx, batchTrash, records)
}

// RestoreFiles restores records from the recycle bin and reloads the bin.
func (s *Store) RestoreFiles(ctx context.Context, records []models.FileRecord) error {
	return s.batch(ctx, batchRestore, records)
}

// DeleteFilesPermanently deletes records for good and reloads the bin.
func (s *Store) DeleteFilesPermanently(ctx context.Context, records []models.FileRecord) error {
	return s.batch(ctx, batchDelete, records)
}

// batch issues one batched mutation. On failure the list is left as it was.
func (s *Store) batch(ctx context.Context, kind batchKind, records []models.FileRecord) error {
	names := batchNames[kind]
	ids, err := recordIDs(records)
	if err != nil {
		return fmt.Errorf("%s: %w", names.op, err)
	}
	if len(ids) == 0 {
		return nil
	}

	unlock := s.records.lockAll(ids)
	defer unlock()

	s.setLoading(true)
	defer s.setLoading(false)

	switch kind {
	case batchTrash:
		err = s.backend.MoveToRecycleBin(ctx, ids)
	case batchRestore:
		err = s.backend.RestoreFiles(ctx, ids)
	case batchDelete:
		err = s.backend.PermanentlyDeleteFiles(ctx, ids)
	}
	if err != nil {
		s.logger.Error().Err(err).Strs("ids", ids).Msgf("%s failed", names.op)
		s.notifier.Error(names.failed, err)
		return fmt.Errorf("%s: %w", names.op, err)
	}

	s.logger.Info().Int("count", len(ids)).Msgf("%s done", names.op)
	s.notifier.Success(names.done, fmt.Sprintf("%d file(s)", len(ids)))

	if kind == batchTrash {
		s.removeFiles(ids)
		s.ClearSelection()
		return nil
	}

	s.mu.RLock()
	query := s.searchQuery
	s.mu.RUnlock()
	// load clears the selection along with the list
	if err := s.load(ctx, ViewTrash, query); err != nil {
		return fmt.Errorf("%s succeeded but refresh failed: %w", names.op, err)
	}
	return nil
}

// DownloadFiles streams the archive of records into w. sizeHint, when set,
// receives the announced length (-1 when unknown). The list is not changed.
func (s *Store) DownloadFiles(ctx context.Context, records []models.FileRecord, w io.Writer, sizeHint func(int64)) (int64, error) {
	ids, err := recordIDs(records)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	for _, id := range ids {
		s.setFileLoading(id, true)
	}
	defer func() {
		for _, id := range ids {
			s.setFileLoading(id, false)
		}
	}()

	n, err := s.backend.DownloadFiles(ctx, ids, w, sizeHint)
	if err != nil {
		s.notifier.Error("Download failed", err)
		return n, err
	}
	s.ClearSelection()
	s.logger.Info().Int("files", len(ids)).Int64("bytes", n).Msg("archive downloaded")
	return n, nil
}

func recordIDs(records []models.FileRecord) ([]string, error) {
	ids := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: %q", models.ErrMissingID, r.Name)
		}
		if !seen[r.ID] {
			seen[r.ID] = true
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}
