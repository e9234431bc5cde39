package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rescale/drivectl/internal/api"
	"github.com/rescale/drivectl/internal/events"
	"github.com/rescale/drivectl/internal/models"
	"github.com/rescale/drivectl/internal/transfer"
)

type fakeProcessor struct {
	mu      sync.Mutex
	verdict map[string]*models.ProcessedDocument
	errs    map[string]error
	read    map[string]string
}

func (p *fakeProcessor) ProcessFile(_ context.Context, name string, r io.Reader) (*models.ProcessedDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(name)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.read == nil {
		p.read = map[string]string{}
	}
	p.read[base] = string(data)
	if err := p.errs[base]; err != nil {
		return nil, err
	}
	if doc, ok := p.verdict[base]; ok {
		return doc, nil
	}
	return nil, fmt.Errorf("no verdict for %s", base)
}

type fakeStore struct {
	mu        sync.Mutex
	added     []models.FileRecord
	remaining int64
}

func (s *fakeStore) AddUploaded(rec models.FileRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, rec)
	return true
}

func (s *fakeStore) StorageRemaining() int64 { return s.remaining }

type note struct{ kind, title, msg string }

type fakeNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *fakeNotifier) add(kind, title, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{kind, title, msg})
}

func (n *fakeNotifier) Success(title, msg string)   { n.add("success", title, msg) }
func (n *fakeNotifier) Warning(title, msg string)   { n.add("warning", title, msg) }
func (n *fakeNotifier) Error(title string, e error) { n.add("error", title, e.Error()) }
func (n *fakeNotifier) Alert(title, msg string)     { n.add("alert", title, msg) }

func (n *fakeNotifier) count(kind, title string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, x := range n.notes {
		if x.kind == kind && x.title == title {
			c++
		}
	}
	return c
}

func strPtr(s string) *string { return &s }

func writeFiles(t *testing.T, contents map[string]string) map[string]string {
	t.Helper()
	dir := t.TempDir()
	paths := map[string]string{}
	for name, body := range contents {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
		paths[name] = p
	}
	return paths
}

func safeDoc(id, name string) *models.ProcessedDocument {
	return &models.ProcessedDocument{
		ID: id, FileName: name, FileType: "application/pdf", FileSize: 3,
		SecurityStatus: models.SecuritySafe, ProcessedAt: "2024-05-01T10:00:00Z",
	}
}

func newTestOrchestrator(p Processor, store *fakeStore, n *fakeNotifier, bus *events.EventBus) (*Orchestrator, *transfer.Queue) {
	q := transfer.NewQueue(bus, transfer.WithTTLs(time.Hour, time.Hour))
	return NewOrchestrator(p, store, q, n, bus, nil, Options{Concurrency: 2}), q
}

func TestUploadBatchMixedVerdicts(t *testing.T) {
	paths := writeFiles(t, map[string]string{"a.pdf": "aaa", "b.exe": "bbb", "c.txt": "ccc"})
	proc := &fakeProcessor{
		verdict: map[string]*models.ProcessedDocument{
			"a.pdf": safeDoc("id-a", "a.pdf"),
			"b.exe": {SecurityStatus: models.SecurityUnsafe, RejectionReason: strPtr("Executable content")},
		},
		errs: map[string]error{"c.txt": errors.New("connection reset by peer")},
	}
	store := &fakeStore{remaining: -1}
	n := &fakeNotifier{}
	o, q := newTestOrchestrator(proc, store, n, nil)
	defer q.Close()

	res, err := o.UploadBatch(context.Background(), []string{paths["a.pdf"], paths["b.exe"], paths["c.txt"]})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Accepted) != 1 || res.Accepted[0].ID != "id-a" {
		t.Fatalf("accepted = %+v", res.Accepted)
	}
	if len(store.added) != 1 || store.added[0].ID != "id-a" {
		t.Errorf("store received %+v", store.added)
	}
	if len(res.Rejected) != 2 {
		t.Fatalf("rejected = %+v", res.Rejected)
	}
	if res.Rejected[0].Error != "Executable content" || res.Rejected[0].Status != transfer.StatusError {
		t.Errorf("rejected[0] = %+v", res.Rejected[0])
	}
	if !strings.Contains(res.Rejected[1].Error, "connection reset") || res.Rejected[1].Progress != 0 {
		t.Errorf("rejected[1] = %+v", res.Rejected[1])
	}
	if res.Suspended {
		t.Error("batch should not be suspended")
	}

	stats := q.Stats()
	if stats.Completed != 1 || stats.Failed != 2 || stats.Uploading != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if n.count("error", "Upload rejected") != 1 || n.count("error", "Upload failed") != 1 {
		t.Errorf("notes = %+v", n.notes)
	}
	if n.count("success", "Upload complete") != 1 {
		t.Errorf("missing completion notice: %+v", n.notes)
	}
	if proc.read["a.pdf"] != "aaa" {
		t.Errorf("streamed body = %q", proc.read["a.pdf"])
	}
}

func TestUploadBatchDefaultRejectionReason(t *testing.T) {
	paths := writeFiles(t, map[string]string{"x.bin": "x"})
	proc := &fakeProcessor{verdict: map[string]*models.ProcessedDocument{
		"x.bin": {SecurityStatus: models.SecurityUnsafe, RejectionReason: nil},
	}}
	o, q := newTestOrchestrator(proc, &fakeStore{remaining: -1}, &fakeNotifier{}, nil)
	defer q.Close()

	res, err := o.UploadBatch(context.Background(), []string{paths["x.bin"]})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Rejected) != 1 || res.Rejected[0].Error != "File rejected by server policy." {
		t.Errorf("rejected = %+v", res.Rejected)
	}
}

func TestUploadBatchBannedRaisesSuspension(t *testing.T) {
	paths := writeFiles(t, map[string]string{"bad.doc": "x"})
	proc := &fakeProcessor{verdict: map[string]*models.ProcessedDocument{
		"bad.doc": {SecurityStatus: models.SecurityBanned, RejectionReason: strPtr("Malware detected")},
	}}
	bus := events.NewEventBus(16)
	defer bus.Close()
	sub := bus.Subscribe(events.EventAccountSuspended)

	n := &fakeNotifier{}
	o, q := newTestOrchestrator(proc, &fakeStore{remaining: -1}, n, bus)
	defer q.Close()

	res, err := o.UploadBatch(context.Background(), []string{paths["bad.doc"]})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Suspended || len(res.Rejected) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if n.count("error", "Upload rejected") != 1 || n.count("alert", "Account suspended") != 1 {
		t.Errorf("notes = %+v", n.notes)
	}

	select {
	case ev := <-sub:
		se, ok := ev.(*events.AccountSuspendedEvent)
		if !ok || se.FileName != "bad.doc" || se.Reason != "Malware detected" {
			t.Errorf("event = %#v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no suspension event")
	}
}

func TestUploadBatchSuspendedBusinessError(t *testing.T) {
	paths := writeFiles(t, map[string]string{"a.pdf": "x"})
	proc := &fakeProcessor{errs: map[string]error{"a.pdf": fmt.Errorf("process a.pdf: %w", api.ErrAccountSuspended)}}
	n := &fakeNotifier{}
	o, q := newTestOrchestrator(proc, &fakeStore{remaining: -1}, n, nil)
	defer q.Close()

	res, err := o.UploadBatch(context.Background(), []string{paths["a.pdf"]})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Suspended || n.count("alert", "Account suspended") != 1 {
		t.Errorf("res = %+v, notes = %+v", res, n.notes)
	}
}

func TestUploadBatchStatFailsBeforeAnyTask(t *testing.T) {
	paths := writeFiles(t, map[string]string{"a.pdf": "x"})
	proc := &fakeProcessor{}
	o, q := newTestOrchestrator(proc, &fakeStore{remaining: -1}, &fakeNotifier{}, nil)
	defer q.Close()

	_, err := o.UploadBatch(context.Background(), []string{paths["a.pdf"], filepath.Join(t.TempDir(), "missing.pdf")})
	if err == nil {
		t.Fatal("expected stat error")
	}
	if len(q.Tasks()) != 0 || len(proc.read) != 0 {
		t.Errorf("tasks = %d, requests = %d", len(q.Tasks()), len(proc.read))
	}

	if _, err := o.UploadBatch(context.Background(), []string{t.TempDir()}); err == nil {
		t.Error("directory should be refused")
	}
}

func TestUploadBatchQuotaWarning(t *testing.T) {
	paths := writeFiles(t, map[string]string{"big.pdf": "0123456789"})
	proc := &fakeProcessor{verdict: map[string]*models.ProcessedDocument{"big.pdf": safeDoc("id", "big.pdf")}}
	n := &fakeNotifier{}
	o, q := newTestOrchestrator(proc, &fakeStore{remaining: 4}, n, nil)
	defer q.Close()

	res, err := o.UploadBatch(context.Background(), []string{paths["big.pdf"]})
	if err != nil {
		t.Fatal(err)
	}
	if n.count("warning", "Storage almost full") != 1 {
		t.Errorf("notes = %+v", n.notes)
	}
	if len(res.Accepted) != 1 {
		t.Error("server stays authoritative: upload should still run")
	}
}

func TestUploadBatchEmpty(t *testing.T) {
	o, q := newTestOrchestrator(&fakeProcessor{}, &fakeStore{remaining: -1}, &fakeNotifier{}, nil)
	defer q.Close()
	res, err := o.UploadBatch(context.Background(), nil)
	if err != nil || len(res.Accepted)+len(res.Rejected) != 0 {
		t.Errorf("res = %+v, err = %v", res, err)
	}
}

func TestUploadBatchCancelledContext(t *testing.T) {
	paths := writeFiles(t, map[string]string{"a.pdf": "x"})
	o, q := newTestOrchestrator(&fakeProcessor{}, &fakeStore{remaining: -1}, &fakeNotifier{}, nil)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := o.UploadBatch(ctx, []string{paths["a.pdf"]})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if len(res.Rejected) != 1 {
		t.Errorf("rejected = %+v", res.Rejected)
	}
}
