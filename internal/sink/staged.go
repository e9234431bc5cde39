package sink

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/diskspace"
	"github.com/rescale/drivectl/internal/http"
	"github.com/rescale/drivectl/internal/logging"
)

// uploader pushes a finished, seekable archive to remote storage.
type uploader interface {
	upload(ctx context.Context, f *os.File, size int64) error
}

// stagedSink spools the archive to a temp file, then uploads it with
// retries. Uploads need a known length and a rewindable body, which the
// download stream cannot give.
type stagedSink struct {
	ctx    context.Context
	dest   Destination
	up     uploader
	file   *os.File
	size   int64
	logger *logging.Logger
	retry  http.RetryConfig
}

func newStagedSink(ctx context.Context, dest Destination, up uploader, logger *logging.Logger) (*stagedSink, error) {
	f, err := os.CreateTemp("", "drivectl-archive-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	s := &stagedSink{ctx: ctx, dest: dest, up: up, file: f, logger: logger, retry: http.DefaultRetryConfig()}
	s.retry.OnRetry = func(attempt int, err error, errType http.ErrorType) {
		logger.Warn().Err(err).Int("attempt", attempt).Str("class", http.ErrorTypeName(errType)).
			Str("dest", dest.String()).Msg("archive upload failed, retrying")
	}
	return s, nil
}

func (s *stagedSink) Prepare(size int64) error {
	return diskspace.CheckAvailableSpace(s.file.Name(), size, constants.DiskSpaceBufferPercent)
}

func (s *stagedSink) Write(p []byte) (int, error) {
	n, err := s.file.Write(p)
	s.size += int64(n)
	return n, err
}

func (s *stagedSink) Close() error {
	defer s.cleanup()

	err := http.ExecuteWithRetry(s.ctx, s.retry, func() error {
		if _, err := s.file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		return s.up.upload(s.ctx, s.file, s.size)
	})
	if err != nil {
		return fmt.Errorf("upload archive to %s: %w", s.dest, err)
	}
	s.logger.Info().Str("dest", s.dest.String()).Int64("bytes", s.size).Msg("archive uploaded")
	return nil
}

func (s *stagedSink) Abort() error {
	s.cleanup()
	return nil
}

func (s *stagedSink) cleanup() {
	if s.file == nil {
		return
	}
	_ = s.file.Close()
	_ = os.Remove(s.file.Name())
	s.file = nil
}

func (s *stagedSink) Location() string {
	return s.dest.String()
}
