package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfmend/internal/config"
	"github.com/local/pdfmend/internal/dispatcher"
	"github.com/local/pdfmend/internal/statuscheck"
	"github.com/local/pdfmend/internal/store"
)

// Queue is the slice of queue behavior the HTTP layer needs.
type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	CancelJob(ctx context.Context, jobID string) error
	Depths(ctx context.Context) (int64, int64, int64, error)
}

// StatusStore reads and writes job status.
type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

// Service is the HTTP front of the repair system: it accepts jobs, reports
// progress and serves results. Processing itself happens in the workers.
type Service struct {
	cfg     config.Config
	queue   Queue
	status  StatusStore
	pages   *store.PageStore
	checker *statuscheck.Checker
}

func New(cfg config.Config, q Queue, status StatusStore, pages *store.PageStore, checker *statuscheck.Checker) *Service {
	return &Service{cfg: cfg, queue: q, status: status, pages: pages, checker: checker}
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/repair_file", s.handleRepairFile)
	mux.HandleFunc("/repair_upload", s.handleRepairUpload)
	mux.HandleFunc("/progress/", s.handleProgress)
	mux.HandleFunc("/download_result/", s.handleDownloadResult)
	mux.HandleFunc("/webhook/cancel_job", s.handleCancelJob)
	mux.HandleFunc("/status", s.handleStatus)
}

type repairReq struct {
	FilePath string `json:"file_path"`
	FileURL  string `json:"file_url"`
	Mode     string `json:"mode"`
	Password string `json:"password"`
	// ExtractFields defaults to true when absent.
	ExtractFields *bool `json:"extract_fields"`
}

type repairResp struct {
	Status  string                 `json:"status"`
	JobID   string                 `json:"job_id"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Service) handleRepairFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req repairReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	fileRef := req.FilePath
	if fileRef == "" {
		fileRef = req.FileURL
	}
	if fileRef == "" {
		http.Error(w, "missing file_path or file_url", http.StatusBadRequest)
		return
	}
	// Bare keys refer to the configured bucket.
	if !strings.HasPrefix(fileRef, "s3://") &&
		!strings.HasPrefix(fileRef, "http://") &&
		!strings.HasPrefix(fileRef, "https://") &&
		!strings.HasPrefix(fileRef, "file://") {
		if s.cfg.Storage.S3Bucket != "" {
			fileRef = fmt.Sprintf("s3://%s/%s", s.cfg.Storage.S3Bucket, fileRef)
		} else {
			fileRef = "file://" + fileRef
		}
	}

	jobID := uuid.NewString()
	job := dispatcher.NewJob(jobID, fileRef, "api")
	job.Mode = req.Mode
	job.Password = req.Password
	if req.ExtractFields != nil {
		job.ExtractFields = *req.ExtractFields
	}

	if err := s.enqueue(r.Context(), job); err != nil {
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	log.Info().Str("job_id", jobID).Str("file_ref", fileRef).Msg("repair job created")
	writeJSON(w, http.StatusCreated, repairResp{
		Status:  "ok",
		JobID:   jobID,
		Message: "Repair job created successfully",
		Meta:    map[string]interface{}{"timestamp": time.Now().Format(time.RFC3339)},
	})
}

// handleRepairUpload accepts multipart/form-data uploads and enqueues a
// repair job against the stored copy.
func (s *Service) handleRepairUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	mode := r.FormValue("mode")

	uploadDir := s.cfg.Storage.UploadDir
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		http.Error(w, "cannot create upload dir", http.StatusInternalServerError)
		return
	}

	jobID := uuid.NewString()
	name := hdr.Filename
	if name == "" {
		name = "upload.pdf"
	}
	localPath := filepath.Join(uploadDir, fmt.Sprintf("%s_%s", jobID, filepath.Base(name)))
	out, err := os.Create(localPath)
	if err != nil {
		http.Error(w, "cannot save upload", http.StatusInternalServerError)
		return
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		http.Error(w, "write failed", http.StatusInternalServerError)
		return
	}
	_ = out.Close()

	job := dispatcher.NewJob(jobID, "file://"+localPath, "upload")
	job.Mode = mode

	if err := s.enqueue(r.Context(), job); err != nil {
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}

	log.Info().Str("job_id", jobID).Str("file", localPath).Msg("upload repair job created")
	writeJSON(w, http.StatusCreated, repairResp{Status: "ok", JobID: jobID, Message: "Upload job created"})
}

func (s *Service) enqueue(ctx context.Context, job dispatcher.Job) error {
	start := time.Now()
	if err := s.status.Set(ctx, job.ID, store.Status{
		Status:   "queued",
		Progress: 0,
		Message:  "queued",
		Start:    &start,
		Metadata: map[string]interface{}{"file_ref": job.FileRef, "source": job.Source},
	}); err != nil {
		return err
	}
	payload, err := job.Marshal()
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, payload); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Msg("enqueue failed")
		return err
	}
	return nil
}

func (s *Service) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/progress/")
	st, ok, err := s.status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	resp := map[string]interface{}{
		"success":    st.Status == "success",
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
		"metadata":   st.Metadata,
	}
	if s.pages != nil && st.Status == "success" {
		if total := intFromMeta(st.Metadata, "total_pages"); total > 0 {
			if counts, err := s.pages.SourceCounts(r.Context(), id, total); err == nil {
				resp["page_sources"] = counts
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func intFromMeta(m map[string]interface{}, key string) int {
	if m == nil {
		return 0
	}
	switch t := m[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	}
	return 0
}

// handleDownloadResult serves the repaired PDF for completed jobs. Append
// ?format=text for the combined text record instead.
func (s *Service) handleDownloadResult(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/download_result/")
	st, ok, err := s.status.Get(r.Context(), id)
	if err != nil || !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if st.Status != "success" {
		http.Error(w, "not ready", http.StatusAccepted)
		return
	}

	var path, contentType, filename string
	if r.URL.Query().Get("format") == "text" {
		path, _ = st.Metadata["result_text_path"].(string)
		contentType = "text/plain; charset=utf-8"
		filename = fmt.Sprintf("repaired_text_%s.txt", id)
	} else {
		path, _ = st.Metadata["result_local_path"].(string)
		contentType = "application/pdf"
		filename = fmt.Sprintf("repaired_%s.pdf", id)
	}
	if path == "" {
		http.Error(w, "result not available", http.StatusNotFound)
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, "failed to read", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	_, _ = w.Write(b)
}

type cancelReq struct {
	JobID  string `json:"job_id"`
	Reason string `json:"reason,omitempty"`
}

func (s *Service) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.JobID == "" {
		http.Error(w, "missing job_id", http.StatusBadRequest)
		return
	}
	if err := s.queue.CancelJob(r.Context(), req.JobID); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	st, ok, _ := s.status.Get(r.Context(), req.JobID)
	if !ok {
		st = store.Status{}
	}
	st.Status = "cancelled"
	st.Progress = 0
	if req.Reason != "" {
		st.Message = fmt.Sprintf("Cancelled: %s", req.Reason)
	} else {
		st.Message = "Cancelled"
	}
	now := time.Now()
	st.End = &now
	_ = s.status.Set(r.Context(), req.JobID, st)

	log.Info().Str("job_id", req.JobID).Str("reason", req.Reason).Msg("job cancelled")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "job_id": req.JobID, "status": "cancelled"})
}

// handleStatus reports dependency readiness and queue depths.
func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{}
	if s.checker != nil {
		resp["dependencies"] = s.checker.Summary(r.Context())
	}
	if main, delayed, dlq, err := s.queue.Depths(r.Context()); err == nil {
		resp["queue"] = map[string]int64{"main": main, "delayed": delayed, "dlq": dlq}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
