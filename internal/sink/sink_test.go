package sink

import (
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rescale/drivectl/internal/config"
	"github.com/rescale/drivectl/internal/logging"
)

func TestParseDestination(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		in      string
		want    Destination
		wantErr bool
	}{
		{"", Destination{Kind: KindLocal, Path: "files.zip"}, false},
		{"out/archive.zip", Destination{Kind: KindLocal, Path: "out/archive.zip"}, false},
		{dir, Destination{Kind: KindLocal, Path: filepath.Join(dir, "files.zip")}, false},
		{"file:///tmp/x.zip", Destination{Kind: KindLocal, Path: "/tmp/x.zip"}, false},
		{"s3://bucket/backups/a.zip", Destination{Kind: KindS3, Bucket: "bucket", Key: "backups/a.zip"}, false},
		{"s3://bucket/backups/", Destination{Kind: KindS3, Bucket: "bucket", Key: "backups/files.zip"}, false},
		{"s3://bucket", Destination{Kind: KindS3, Bucket: "bucket", Key: "files.zip"}, false},
		{"azblob://acct/cont/dir/a.zip", Destination{Kind: KindAzure, Account: "acct", Container: "cont", Blob: "dir/a.zip"}, false},
		{"azblob://acct/cont", Destination{Kind: KindAzure, Account: "acct", Container: "cont", Blob: "files.zip"}, false},
		{"azblob://acct", Destination{}, true},
		{"s3:///key", Destination{}, true},
		{"ftp://host/x", Destination{}, true},
	}
	for _, tt := range tests {
		got, err := ParseDestination(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrBadDestination) {
				t.Errorf("ParseDestination(%q) err = %v, want ErrBadDestination", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDestination(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDestination(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestLocalSinkRenamesOnClose(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "sub", "files.zip")
	s, err := Open(context.Background(), dest, nil, logging.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Prepare(3); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := io.WriteString(s, "zip"); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatal("final file should not exist before Close")
	}
	if _, err := os.Stat(dest + ".part"); err != nil {
		t.Fatalf("part file missing: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(dest)
	if err != nil || string(data) != "zip" {
		t.Fatalf("archive = %q, %v", data, err)
	}
	if _, err := os.Stat(dest + ".part"); !os.IsNotExist(err) {
		t.Error("part file left behind")
	}
	if s.Location() != dest {
		t.Errorf("Location = %q", s.Location())
	}
}

func TestLocalSinkAbortRemovesPart(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "files.zip")
	s, err := Open(context.Background(), dest, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.WriteString(s, "partial")
	if err := s.Abort(); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{dest, dest + ".part"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should not exist", p)
		}
	}
}

type fakeUploader struct {
	mu       sync.Mutex
	calls    int
	failures []error
	got      string
	size     int64
}

func (f *fakeUploader) upload(_ context.Context, file *os.File, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.got = string(data)
	f.size = size
	return nil
}

func TestStagedSinkUploadsAndCleansUp(t *testing.T) {
	up := &fakeUploader{}
	d := Destination{Kind: KindS3, Bucket: "b", Key: "k.zip"}
	s, err := newStagedSink(context.Background(), d, up, logging.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.retry.InitialDelay = 0
	staged := s.file.Name()

	_, _ = io.WriteString(s, "hello ")
	_, _ = io.WriteString(s, "archive")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if up.got != "hello archive" || up.size != 13 {
		t.Errorf("uploaded %q (%d bytes)", up.got, up.size)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Error("staging file left behind")
	}
	if s.Location() != "s3://b/k.zip" {
		t.Errorf("Location = %q", s.Location())
	}
}

func TestStagedSinkRetriesRewoundBody(t *testing.T) {
	up := &fakeUploader{failures: []error{errors.New("503 service unavailable")}}
	s, err := newStagedSink(context.Background(), Destination{Kind: KindS3, Bucket: "b", Key: "k"}, up, logging.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	s.retry.InitialDelay = 0

	_, _ = io.WriteString(s, "payload")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if up.calls != 2 || up.got != "payload" {
		t.Errorf("calls = %d, got %q", up.calls, up.got)
	}
}

func TestStagedSinkFatalErrorNotRetried(t *testing.T) {
	up := &fakeUploader{failures: []error{errors.New("NoSuchBucket")}}
	s, err := newStagedSink(context.Background(), Destination{Kind: KindS3, Bucket: "b", Key: "k"}, up, logging.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err == nil || !strings.Contains(err.Error(), "NoSuchBucket") {
		t.Fatalf("Close err = %v", err)
	}
	if up.calls != 1 {
		t.Errorf("calls = %d", up.calls)
	}
}

func TestS3UploaderPutsObject(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(nethttp.StatusOK)
	}))
	defer srv.Close()

	t.Setenv(envS3AccessKey, "AKIDEXAMPLE")
	t.Setenv(envS3SecretKey, "secret")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	cfg := config.NewConfig()
	cfg.S3Endpoint = srv.URL

	up, err := newS3Uploader(context.Background(), cfg, Destination{Kind: KindS3, Bucket: "drive", Key: "exports/files.zip"})
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.CreateTemp(t.TempDir(), "a-*.zip")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	_, _ = f.WriteString("PK")
	_, _ = f.Seek(0, io.SeekStart)

	if err := up.upload(context.Background(), f, 2); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if method != nethttp.MethodPut || path != "/drive/exports/files.zip" {
		t.Errorf("request = %s %s", method, path)
	}
	if !strings.Contains(body, "PK") {
		t.Errorf("body = %q", body)
	}
}

func TestAzureUploaderNeedsCredentials(t *testing.T) {
	t.Setenv(envAzureStorageKey, "")
	cfg := config.NewConfig()
	cfg.AzureSASToken = ""
	_, err := newAzureUploader(cfg, Destination{Kind: KindAzure, Account: "acct", Container: "c", Blob: "b"})
	if !errors.Is(err, errNoAzureCredentials) {
		t.Fatalf("err = %v", err)
	}
}

func TestAccountURL(t *testing.T) {
	cfg := config.NewConfig()
	if got := accountURL(cfg, "acct"); got != "https://acct.blob.core.windows.net/" {
		t.Errorf("default = %q", got)
	}
	cfg.AzureAccountURL = "http://127.0.0.1:10000/devstoreaccount1"
	if got := accountURL(cfg, "acct"); got != "http://127.0.0.1:10000/devstoreaccount1/" {
		t.Errorf("override = %q", got)
	}
}
