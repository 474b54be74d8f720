package service

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/local/pdfmend/internal/config"
	"github.com/local/pdfmend/internal/dispatcher"
	"github.com/local/pdfmend/internal/store"
)

type fakeServiceQueue struct {
	enqueued  [][]byte
	cancelled []string
	failNext  bool
}

func (q *fakeServiceQueue) Enqueue(_ context.Context, payload []byte) error {
	if q.failNext {
		return context.DeadlineExceeded
	}
	q.enqueued = append(q.enqueued, payload)
	return nil
}

func (q *fakeServiceQueue) CancelJob(_ context.Context, jobID string) error {
	q.cancelled = append(q.cancelled, jobID)
	return nil
}

func (q *fakeServiceQueue) Depths(context.Context) (int64, int64, int64, error) {
	return 1, 0, 0, nil
}

type fakeStatusStore struct {
	statuses map[string]store.Status
}

func newFakeStatusStore() *fakeStatusStore {
	return &fakeStatusStore{statuses: map[string]store.Status{}}
}

func (s *fakeStatusStore) Set(_ context.Context, jobID string, st store.Status) error {
	s.statuses[jobID] = st
	return nil
}

func (s *fakeStatusStore) Get(_ context.Context, jobID string) (store.Status, bool, error) {
	st, ok := s.statuses[jobID]
	return st, ok, nil
}

func newTestService(t *testing.T, q *fakeServiceQueue, st *fakeStatusStore) (*Service, *http.ServeMux) {
	t.Helper()
	cfg := config.FromEnv()
	cfg.Storage.UploadDir = t.TempDir()
	cfg.Storage.ResultDir = t.TempDir()
	svc := New(cfg, q, st, nil, nil)
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	return svc, mux
}

func TestRepairFileCreatesJob(t *testing.T) {
	q := &fakeServiceQueue{}
	st := newFakeStatusStore()
	_, mux := newTestService(t, q, st)

	body := `{"file_path": "file:///tmp/doc.pdf", "mode": "overlay"}`
	req := httptest.NewRequest(http.MethodPost, "/repair_file", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp repairResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.JobID == "" {
		t.Error("response missing job_id")
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.enqueued))
	}
	job, err := dispatcher.UnmarshalJob(q.enqueued[0])
	if err != nil {
		t.Fatalf("unmarshal enqueued job: %v", err)
	}
	if job.FileRef != "file:///tmp/doc.pdf" {
		t.Errorf("FileRef = %q", job.FileRef)
	}
	if job.Mode != "overlay" {
		t.Errorf("Mode = %q, want overlay", job.Mode)
	}
	if got := st.statuses[job.ID].Status; got != "queued" {
		t.Errorf("initial status = %q, want queued", got)
	}
}

func TestRepairFileMissingRef(t *testing.T) {
	q := &fakeServiceQueue{}
	_, mux := newTestService(t, q, newFakeStatusStore())

	req := httptest.NewRequest(http.MethodPost, "/repair_file", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(q.enqueued) != 0 {
		t.Errorf("nothing should be enqueued")
	}
}

func TestRepairFileQueueDown(t *testing.T) {
	q := &fakeServiceQueue{failNext: true}
	_, mux := newTestService(t, q, newFakeStatusStore())

	body := `{"file_path": "file:///tmp/doc.pdf"}`
	req := httptest.NewRequest(http.MethodPost, "/repair_file", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestRepairFileBareKeyGetsFilePrefix(t *testing.T) {
	q := &fakeServiceQueue{}
	_, mux := newTestService(t, q, newFakeStatusStore())

	body := `{"file_path": "docs/invoice.pdf"}`
	req := httptest.NewRequest(http.MethodPost, "/repair_file", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	job, err := dispatcher.UnmarshalJob(q.enqueued[0])
	if err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	// No bucket configured in tests, so bare keys become local refs.
	if !strings.HasPrefix(job.FileRef, "file://") {
		t.Errorf("FileRef = %q, want file:// prefix", job.FileRef)
	}
}

func TestRepairUpload(t *testing.T) {
	q := &fakeServiceQueue{}
	st := newFakeStatusStore()
	svc, mux := newTestService(t, q, st)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "scan.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write([]byte("%PDF-1.4 test"))
	_ = mw.WriteField("mode", "fresh")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/repair_upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.enqueued))
	}
	job, err := dispatcher.UnmarshalJob(q.enqueued[0])
	if err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if job.Source != "upload" {
		t.Errorf("Source = %q, want upload", job.Source)
	}
	localPath := strings.TrimPrefix(job.FileRef, "file://")
	if _, err := os.Stat(localPath); err != nil {
		t.Errorf("uploaded file not persisted: %v", err)
	}
	if !strings.HasPrefix(localPath, svc.cfg.Storage.UploadDir) {
		t.Errorf("upload stored outside upload dir: %s", localPath)
	}
}

func TestProgress(t *testing.T) {
	st := newFakeStatusStore()
	st.statuses["job-1"] = store.Status{Status: "processing", Progress: 42, Message: "page 3/7 done"}
	_, mux := newTestService(t, &fakeServiceQueue{}, st)

	req := httptest.NewRequest(http.MethodGet, "/progress/job-1", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["progress"] != float64(42) {
		t.Errorf("progress = %v, want 42", resp["progress"])
	}
	if resp["success"] != false {
		t.Errorf("success = %v, want false", resp["success"])
	}
}

func TestProgressUnknownJob(t *testing.T) {
	_, mux := newTestService(t, &fakeServiceQueue{}, newFakeStatusStore())

	req := httptest.NewRequest(http.MethodGet, "/progress/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestDownloadResult(t *testing.T) {
	dir := t.TempDir()
	pdfPath := filepath.Join(dir, "out.pdf")
	if err := os.WriteFile(pdfPath, []byte("%PDF-1.4 repaired"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	st := newFakeStatusStore()
	st.statuses["job-2"] = store.Status{
		Status:   "success",
		Progress: 100,
		Metadata: map[string]interface{}{"result_local_path": pdfPath},
	}
	_, mux := newTestService(t, &fakeServiceQueue{}, st)

	req := httptest.NewRequest(http.MethodGet, "/download_result/job-2", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("repaired")) {
		t.Error("body does not contain artifact content")
	}
}

func TestDownloadResultNotReady(t *testing.T) {
	st := newFakeStatusStore()
	st.statuses["job-3"] = store.Status{Status: "processing", Progress: 50}
	_, mux := newTestService(t, &fakeServiceQueue{}, st)

	req := httptest.NewRequest(http.MethodGet, "/download_result/job-3", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}

func TestCancelJob(t *testing.T) {
	q := &fakeServiceQueue{}
	st := newFakeStatusStore()
	st.statuses["job-4"] = store.Status{Status: "processing", Progress: 30}
	_, mux := newTestService(t, q, st)

	body := `{"job_id": "job-4", "reason": "user request"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/cancel_job", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(q.cancelled) != 1 || q.cancelled[0] != "job-4" {
		t.Errorf("cancelled = %v, want [job-4]", q.cancelled)
	}
	if got := st.statuses["job-4"].Status; got != "cancelled" {
		t.Errorf("status after cancel = %q", got)
	}
	if !strings.Contains(st.statuses["job-4"].Message, "user request") {
		t.Errorf("cancel reason missing from message: %q", st.statuses["job-4"].Message)
	}
}

func TestHealth(t *testing.T) {
	_, mux := newTestService(t, &fakeServiceQueue{}, newFakeStatusStore())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
