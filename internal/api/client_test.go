package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rescale/drivectl/internal/config"
	"github.com/rescale/drivectl/internal/models"
)

func testConfig(url string) *config.Config {
	cfg := config.NewConfig()
	cfg.AuthURL = url
	cfg.SearchURL = url
	cfg.FileURL = url
	cfg.ProcessURL = url
	cfg.PaymentURL = url
	cfg.MaxRetries = 3
	cfg.RetryWaitMin = time.Millisecond
	cfg.RetryWaitMax = 5 * time.Millisecond
	cfg.RequestsPerSecond = 1000
	cfg.RequestBurst = 1000
	return cfg
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(testConfig(srv.URL), func() string { return "session-token" }, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client, srv
}

// TestNewClientRejectsEmptyBaseURL verifies that NewClient fails with a clear
// error instead of producing "unsupported protocol scheme" on every request.
func TestNewClientRejectsEmptyBaseURL(t *testing.T) {
	cfg := testConfig("http://localhost:1")
	cfg.SearchURL = ""

	_, err := NewClient(cfg, nil, nil)
	if err == nil {
		t.Fatal("NewClient() should return error for empty search URL")
	}
	if !strings.Contains(err.Error(), "search service base URL is empty") {
		t.Errorf("NewClient() error = %q", err.Error())
	}
}

func TestListFilesChoosesEndpoint(t *testing.T) {
	var paths []string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer session-token" {
			t.Errorf("Authorization = %q", got)
		}
		paths = append(paths, r.URL.Path+"?"+r.URL.RawQuery)
		w.Write([]byte(`[{"id":"1","fileName":"a.pdf","fileType":"pdf","fileSize":10,"processedAt":"2024-05-01T10:00:00","isStarred":true}]`))
	})

	rows, err := client.ListFiles(context.Background(), "   ")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(rows) != 1 || rows[0].FileName != "a.pdf" || !*rows[0].IsStarred {
		t.Errorf("rows = %+v", rows)
	}

	if _, err := client.ListFiles(context.Background(), " budget "); err != nil {
		t.Fatalf("ListFiles(query) error = %v", err)
	}
	if _, err := client.ListTrash(context.Background(), "old"); err != nil {
		t.Fatalf("ListTrash(query) error = %v", err)
	}

	want := []string{
		"/api/metadata/user/search?",
		"/api/metadata/search?query=budget",
		"/api/metadata/search/trash?query=old",
	}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("call %d path = %q, want %q", i, paths[i], p)
		}
	}
}

func TestListRejectsUnexpectedShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"object instead of array", `{"files":[]}`},
		{"null", `null`},
		{"empty body", ``},
		{"row without id", `[{"fileName":"x.txt"}]`},
		{"wrong field type", `[{"id":"1","fileSize":"big"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})

			_, err := client.ListStarred(context.Background())
			if !errors.Is(err, ErrUnexpectedShape) {
				t.Fatalf("error = %v, want ErrUnexpectedShape", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.Endpoint != "GET /api/metadata/user/starred" {
				t.Errorf("DecodeError = %+v", de)
			}
		})
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		code  int
		check func(error) bool
	}{
		{http.StatusUnauthorized, IsUnauthorized},
		{http.StatusForbidden, IsUnauthorized},
		{http.StatusNotFound, func(err error) bool { return errors.Is(err, ErrNotFound) }},
		{http.StatusTeapot, func(err error) bool {
			var se *StatusError
			return errors.As(err, &se) && se.Code == http.StatusTeapot && se.Body == "short and stout"
		}},
	}

	for _, tt := range tests {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.code)
			w.Write([]byte("short and stout"))
		})
		_, err := client.ListRecent(context.Background())
		if !tt.check(err) {
			t.Errorf("status %d mapped to %v", tt.code, err)
		}
	}
}

func TestReadsRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"plan":"PRO","storageConsumed":1024}`))
	})

	plan, err := client.GetStoragePlan(context.Background())
	if err != nil {
		t.Fatalf("GetStoragePlan() error = %v", err)
	}
	if plan.Plan != "PRO" || plan.StorageConsumed != 1024 {
		t.Errorf("plan = %+v", plan)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestMutationsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.MoveToRecycleBin(context.Background(), []string{"a", "b"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusInternalServerError {
		t.Fatalf("error = %v, want StatusError 500", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, a batch mutation must be sent at most once", calls.Load())
	}
}

func TestSetStarAndBatchBodies(t *testing.T) {
	type call struct {
		method, path, body string
	}
	var calls []call
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		calls = append(calls, call{r.Method, r.URL.Path, string(body)})
	})

	ctx := context.Background()
	if err := client.SetStar(ctx, "f 1", true); err != nil {
		t.Fatalf("SetStar() error = %v", err)
	}
	if err := client.MoveToRecycleBin(ctx, []string{"a", "b"}); err != nil {
		t.Fatalf("MoveToRecycleBin() error = %v", err)
	}
	if err := client.RestoreFiles(ctx, []string{"a"}); err != nil {
		t.Fatalf("RestoreFiles() error = %v", err)
	}
	if err := client.PermanentlyDeleteFiles(ctx, []string{"c"}); err != nil {
		t.Fatalf("PermanentlyDeleteFiles() error = %v", err)
	}

	want := []call{
		{"POST", "/api/star/f 1", "true"},
		{"DELETE", "/api/MoveToRecycleBin", `["a","b"]`},
		{"POST", "/api/RestoreFiles", `["a"]`},
		{"DELETE", "/api/PermanentlyDeleteFiles", `["c"]`},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v", calls)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestDownloadFilesStreams(t *testing.T) {
	archive := bytes.Repeat([]byte("zip"), 1000)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var ids []string
		json.NewDecoder(r.Body).Decode(&ids)
		if len(ids) != 2 {
			t.Errorf("ids = %v", ids)
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	})

	var buf bytes.Buffer
	var hinted int64
	n, err := client.DownloadFiles(context.Background(), []string{"a", "b"}, &buf, func(size int64) { hinted = size })
	if err != nil {
		t.Fatalf("DownloadFiles() error = %v", err)
	}
	if n != int64(len(archive)) || !bytes.Equal(buf.Bytes(), archive) {
		t.Errorf("downloaded %d bytes, want %d", n, len(archive))
	}
	if hinted != int64(len(archive)) {
		t.Errorf("size hint = %d", hinted)
	}
}

func TestProcessFile(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/genai/process" {
			t.Errorf("path = %s", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile() error = %v", err)
			return
		}
		content, _ := io.ReadAll(file)

		if header.Filename == "virus.exe" {
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"securityStatus":"unsafe","rejectionReason":"malware","fileName":"virus.exe"}`))
			return
		}
		doc := models.ProcessedDocument{
			ID:             "srv-1",
			FileName:       header.Filename,
			FileSize:       int64(len(content)),
			SecurityStatus: "safe",
		}
		json.NewEncoder(w).Encode(doc)
	})

	doc, err := client.ProcessFile(context.Background(), "/tmp/notes.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("ProcessFile() error = %v", err)
	}
	if !doc.Safe() || doc.ID != "srv-1" || doc.FileName != "notes.txt" || doc.FileSize != 5 {
		t.Errorf("doc = %+v", doc)
	}

	doc, err = client.ProcessFile(context.Background(), "virus.exe", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("202 should decode, got %v", err)
	}
	if doc.Safe() || doc.Reason("") != "malware" {
		t.Errorf("unsafe doc = %+v", doc)
	}
}

func TestProcessFileSuspended(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Upload rejected: Account suspended due to policy violations."}`))
	})

	_, err := client.ProcessFile(context.Background(), "a.txt", strings.NewReader("x"))
	if !IsSuspended(err) {
		t.Fatalf("error = %v, want suspension", err)
	}
}

func TestCheckout(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req models.CheckoutRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Plan != "PRO" || req.Amount != 5 {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"sessionUrl":"https://checkout.stripe.com/c/pay/cs_123"}`))
	})

	out, err := client.Checkout(context.Background(), models.CheckoutRequest{Plan: "PRO", Amount: 5})
	if err != nil {
		t.Fatalf("Checkout() error = %v", err)
	}
	if out.SessionURL != "https://checkout.stripe.com/c/pay/cs_123" {
		t.Errorf("SessionURL = %q", out.SessionURL)
	}
}

func TestGetUserUsesGivenToken(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer fresh" {
			t.Errorf("Authorization = %q", got)
		}
		w.Write([]byte(`{"id":7,"username":"ada","email":"ada@example.com","picture":""}`))
	})

	user, err := client.GetUser(context.Background(), "fresh")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if user.ID != 7 || user.Email != "ada@example.com" {
		t.Errorf("user = %+v", user)
	}

	if _, err := client.GetUser(context.Background(), ""); !IsUnauthorized(err) {
		t.Errorf("empty token should be unauthorized, got %v", err)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 0
	client, err := NewClient(cfg, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		_, _ = client.ListRecent(context.Background())
	}
	_, err = client.ListRecent(context.Background())
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Fatalf("error = %v, want ErrServiceUnavailable", err)
	}
	if !IsRetryable(err) {
		t.Error("an open breaker is retryable later")
	}
	if calls.Load() != 10 {
		t.Errorf("server calls = %d, the open breaker must short-circuit", calls.Load())
	}

	// other services keep their own breaker
	if _, err := client.GetStoragePlan(context.Background()); errors.Is(err, ErrServiceUnavailable) {
		t.Error("auth breaker should still be closed")
	}
}

func TestLoginURL(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	got := client.LoginURL("http://127.0.0.1:5555/callback")
	want := srv.URL + "/api/auth/login/google?redirect_uri=http%3A%2F%2F127.0.0.1%3A5555%2Fcallback"
	if got != want {
		t.Errorf("LoginURL() = %q, want %q", got, want)
	}
}
