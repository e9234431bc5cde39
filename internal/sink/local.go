package sink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/diskspace"
	"github.com/rescale/drivectl/internal/logging"
)

// localSink writes to path.part and renames it over path on Close, so a
// failed download never leaves a truncated archive under the final name.
type localSink struct {
	path   string
	part   string
	file   *os.File
	logger *logging.Logger
}

func newLocalSink(path string, logger *logging.Logger) (*localSink, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", abs, err)
	}

	part := abs + ".part"
	f, err := os.OpenFile(part, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", part, err)
	}
	return &localSink{path: abs, part: part, file: f, logger: logger}, nil
}

func (s *localSink) Prepare(size int64) error {
	return diskspace.CheckAvailableSpace(s.path, size, constants.DiskSpaceBufferPercent)
}

func (s *localSink) Write(p []byte) (int, error) {
	return s.file.Write(p)
}

func (s *localSink) Close() error {
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("sync %s: %w", s.part, err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.part, err)
	}
	if err := os.Rename(s.part, s.path); err != nil {
		return fmt.Errorf("move archive into place: %w", err)
	}
	s.logger.Debug().Str("path", s.path).Msg("archive written")
	return nil
}

func (s *localSink) Abort() error {
	_ = s.file.Close()
	if err := os.Remove(s.part); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *localSink) Location() string {
	return s.path
}
