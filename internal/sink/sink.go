// Package sink provides destinations for downloaded archives: a local file,
// an S3 object or an Azure blob, chosen by URL.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rescale/drivectl/internal/config"
	"github.com/rescale/drivectl/internal/constants"
	"github.com/rescale/drivectl/internal/logging"
)

// Kind is the destination family.
type Kind string

const (
	KindLocal Kind = "file"
	KindS3    Kind = "s3"
	KindAzure Kind = "azblob"
)

// ErrBadDestination is returned for a destination URL that cannot be used.
var ErrBadDestination = errors.New("invalid archive destination")

// Destination is a parsed archive destination.
type Destination struct {
	Kind Kind

	// local
	Path string

	// s3://bucket/key
	Bucket string
	Key    string

	// azblob://account/container/blob
	Account   string
	Container string
	Blob      string
}

func (d Destination) String() string {
	switch d.Kind {
	case KindS3:
		return "s3://" + d.Bucket + "/" + d.Key
	case KindAzure:
		return "azblob://" + d.Account + "/" + d.Container + "/" + d.Blob
	default:
		return d.Path
	}
}

// ParseDestination parses dest. An empty dest is files.zip in the working
// directory; an existing directory gets files.zip inside it; a remote URL
// ending in "/" gets files.zip appended to the key.
func ParseDestination(dest string) (Destination, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return Destination{Kind: KindLocal, Path: constants.DefaultArchiveName}, nil
	}

	scheme, rest, found := strings.Cut(dest, "://")
	if !found {
		return localDestination(dest), nil
	}

	switch strings.ToLower(scheme) {
	case "file":
		u, err := url.Parse(dest)
		if err != nil {
			return Destination{}, fmt.Errorf("%w: %v", ErrBadDestination, err)
		}
		return localDestination(u.Path), nil

	case "s3":
		bucket, key, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Destination{}, fmt.Errorf("%w: %s has no bucket", ErrBadDestination, dest)
		}
		return Destination{Kind: KindS3, Bucket: bucket, Key: withArchiveName(key)}, nil

	case "azblob":
		parts := strings.SplitN(rest, "/", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return Destination{}, fmt.Errorf("%w: %s needs account and container", ErrBadDestination, dest)
		}
		blob := ""
		if len(parts) == 3 {
			blob = parts[2]
		}
		return Destination{Kind: KindAzure, Account: parts[0], Container: parts[1], Blob: withArchiveName(blob)}, nil
	}
	return Destination{}, fmt.Errorf("%w: unsupported scheme %q (use a path, file://, s3:// or azblob://)", ErrBadDestination, scheme)
}

func localDestination(p string) Destination {
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		p = filepath.Join(p, constants.DefaultArchiveName)
	}
	return Destination{Kind: KindLocal, Path: p}
}

func withArchiveName(key string) string {
	if key == "" || strings.HasSuffix(key, "/") {
		return key + constants.DefaultArchiveName
	}
	return key
}

// Sink receives one archive stream.
type Sink interface {
	io.Writer

	// Prepare is told the announced archive size, -1 when unknown, before
	// the first byte is written.
	Prepare(size int64) error

	// Close finishes the archive: the local file is moved into place or the
	// staged copy is uploaded.
	Close() error

	// Abort discards partial output. Safe to call after a failed Close.
	Abort() error

	// Location describes where the archive ends up.
	Location() string
}

// Open creates the sink for dest.
func Open(ctx context.Context, dest string, cfg *config.Config, logger *logging.Logger) (Sink, error) {
	d, err := ParseDestination(dest)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	switch d.Kind {
	case KindS3:
		up, err := newS3Uploader(ctx, cfg, d)
		if err != nil {
			return nil, err
		}
		return newStagedSink(ctx, d, up, logger)
	case KindAzure:
		up, err := newAzureUploader(cfg, d)
		if err != nil {
			return nil, err
		}
		return newStagedSink(ctx, d, up, logger)
	default:
		return newLocalSink(d.Path, logger)
	}
}
