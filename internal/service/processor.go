package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfmend/internal/classify"
	"github.com/local/pdfmend/internal/config"
	"github.com/local/pdfmend/internal/dispatcher"
	"github.com/local/pdfmend/internal/filetype"
	"github.com/local/pdfmend/internal/ocr"
	"github.com/local/pdfmend/internal/pdf"
	"github.com/local/pdfmend/internal/probe"
	"github.com/local/pdfmend/internal/repair"
	"github.com/local/pdfmend/internal/storage"
	"github.com/local/pdfmend/internal/store"
)

// Processor runs one repair job end to end: materialize the source, walk the
// page pipeline, persist per-page outcomes and write the result artifact.
// It implements dispatcher.Processor.
type Processor struct {
	cfg      config.Config
	pages    *store.PageStore
	status   *store.RedisStatus
	s3       *storage.S3Client
	ocr      *ocr.Service
	detector *filetype.Detector
}

// NewProcessor wires a Processor. s3 may be nil when no bucket is configured;
// results then stay on the local filesystem.
func NewProcessor(cfg config.Config, pages *store.PageStore, status *store.RedisStatus, s3 *storage.S3Client) *Processor {
	return &Processor{
		cfg:    cfg,
		pages:  pages,
		status: status,
		s3:     s3,
		ocr: ocr.NewService(ocr.Options{
			Language:  cfg.OCR.Language,
			RenderDPI: cfg.OCR.RenderDPI,
			Grayscale: cfg.OCR.Grayscale,
		}),
		detector: filetype.New(),
	}
}

func (p *Processor) Process(ctx context.Context, job dispatcher.Job) error {
	p.update(ctx, job.ID, "processing", 5, "materializing source", nil)

	localPath, cleanup, err := p.materialize(ctx, job)
	if err != nil {
		p.recordFailure(ctx, job, err)
		return err
	}
	defer cleanup()

	if err := p.detector.EnsurePDF(localPath); err != nil {
		verr := &dispatcher.ValidationError{Message: err.Error()}
		p.recordFailure(ctx, job, verr)
		return verr
	}

	// Broken documents are the whole point; validation failures are only
	// recorded, never fatal.
	if err := pdf.Validate(localPath); err != nil {
		log.Warn().Err(err).Str("job_id", job.ID).Msg("document failed structural validation; continuing")
	}

	hasTextLayer := false
	if hasText, diag, perr := probe.HasTextLayer(localPath, 0); perr == nil {
		hasTextLayer = hasText
		log.Debug().
			Str("job_id", job.ID).
			Bool("has_text_layer", hasText).
			Int("sample_chars", diag.SampleChars).
			Msg("text layer probe")
	}

	doc, err := pdf.Open(localPath)
	if err != nil {
		lerr := &repair.LoadError{Path: localPath, Err: err}
		p.recordFailure(ctx, job, lerr)
		return lerr
	}
	defer doc.Close()

	total := doc.NumPages()
	if n, cerr := pdf.PageCount(localPath); cerr == nil && n != total {
		log.Warn().Int("render_pages", total).Int("pdfcpu_pages", n).Str("job_id", job.ID).Msg("page count mismatch between libraries")
	}
	p.update(ctx, job.ID, "processing", 10, "repairing pages", map[string]interface{}{
		"total_pages":    total,
		"file_ref":       job.FileRef,
		"source":         job.Source,
		"has_text_layer": hasTextLayer,
	})

	pipe := repair.New(repair.Options{
		Classifier:     classify.New(p.cfg.Repair.ReadabilityThreshold, p.cfg.Repair.MinWordCount),
		Recoverer:      p.ocr,
		Sink:           newProgressSink(p.status, job.ID, total),
		StripArtifacts: p.cfg.Repair.StripArtifacts,
		OCRConcurrency: p.cfg.Repair.OCRConcurrency,
		ExtractFields:  job.ExtractFields,
	})
	res, err := pipe.Run(ctx, doc)
	if err != nil {
		p.recordFailure(ctx, job, err)
		return err
	}

	for _, pr := range res.Pages {
		if err := p.pages.SavePageText(ctx, job.ID, pr.Index+1, pr.Text, string(pr.Source)); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Int("page", pr.Index+1).Msg("page text save failed")
		}
	}

	meta, err := p.finalize(ctx, job, localPath, res)
	if err != nil {
		p.recordFailure(ctx, job, err)
		return err
	}

	meta["total_pages"] = total
	meta["pages_recovered"] = res.Recovered()
	meta["pages_unrecovered"] = res.Unrecovered()
	meta["file_ref"] = job.FileRef
	meta["source"] = job.Source
	addFieldsMeta(meta, res)

	now := time.Now()
	_ = p.status.Set(ctx, job.ID, store.Status{
		Status:   "success",
		Progress: 100,
		Message:  "completed",
		End:      &now,
		Metadata: meta,
	})

	log.Info().
		Str("job_id", job.ID).
		Int("total_pages", total).
		Int("recovered", res.Recovered()).
		Int("unrecovered", res.Unrecovered()).
		Msg("repair job completed")

	CleanupTemps(time.Hour)
	return nil
}

// materialize fetches the source document to the local filesystem. Encrypted
// objects in the service bucket go through the decrypting storage client;
// everything else takes the plain download path.
func (p *Processor) materialize(ctx context.Context, job dispatcher.Job) (string, func(), error) {
	nop := func() {}
	if p.s3 != nil && job.Password != "" && strings.HasPrefix(job.FileRef, "s3://") {
		bucket, key, err := storage.ParseURL(job.FileRef)
		if err == nil && bucket == p.cfg.Storage.S3Bucket {
			data, derr := p.s3.Download(ctx, key, job.Password)
			if derr != nil {
				return "", nop, &dispatcher.TransferError{Ref: job.FileRef, Reason: derr.Error()}
			}
			f, ferr := os.CreateTemp("", "s3pdf-*.pdf")
			if ferr != nil {
				return "", nop, &dispatcher.TransferError{Ref: job.FileRef, Reason: ferr.Error()}
			}
			if _, werr := f.Write(data); werr != nil {
				f.Close()
				os.Remove(f.Name())
				return "", nop, &dispatcher.TransferError{Ref: job.FileRef, Reason: werr.Error()}
			}
			_ = f.Close()
			path := f.Name()
			return path, func() { _ = os.Remove(path) }, nil
		}
	}
	return EnsureLocalPDF(ctx, job.FileRef)
}

// finalize writes the repaired PDF and the combined text record to their
// destination, S3 for api-origin jobs when a bucket is configured, the local
// result directory otherwise.
func (p *Processor) finalize(ctx context.Context, job dispatcher.Job, srcPath string, res repair.Result) (map[string]interface{}, error) {
	meta := map[string]interface{}{}

	mode := repair.ParseArtifactMode(job.Mode)
	if job.Mode == "" {
		mode = repair.ParseArtifactMode(p.cfg.Repair.Mode)
	}

	if err := os.MkdirAll(p.cfg.Storage.ResultDir, 0o755); err != nil {
		return nil, &repair.WriteError{Dest: p.cfg.Storage.ResultDir, Err: err}
	}

	artifactPath := filepath.Join(p.cfg.Storage.ResultDir, fmt.Sprintf("%s_repaired.pdf", job.ID))
	if err := repair.NewArtifactBuilder(mode).Build(srcPath, res, artifactPath); err != nil {
		return nil, err
	}
	meta["result_local_path"] = artifactPath

	textPath := filepath.Join(p.cfg.Storage.ResultDir, fmt.Sprintf("%s_repaired_text.txt", job.ID))
	if err := pdf.WriteFileAtomic(textPath, []byte(res.CombinedText)); err != nil {
		return nil, &repair.WriteError{Dest: textPath, Err: err}
	}
	meta["result_text_path"] = textPath

	// Upload-origin jobs stay local so the dashboard can serve the download.
	if job.Source == "upload" || p.s3 == nil {
		return meta, nil
	}

	pdfBytes, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, &repair.WriteError{Dest: artifactPath, Err: err}
	}
	pdfKey := fmt.Sprintf("results/%s/repaired.pdf", job.ID)
	if err := p.s3.Upload(ctx, pdfKey, pdfBytes, job.Password, "application/pdf", map[string]string{"job-id": job.ID}); err != nil {
		return nil, err
	}
	meta["result_s3_pdf"] = pdfKey

	textKey := fmt.Sprintf("results/%s/repaired_text.txt", job.ID)
	if err := p.s3.Upload(ctx, textKey, []byte(res.CombinedText), job.Password, "text/plain; charset=utf-8", map[string]string{"job-id": job.ID}); err != nil {
		return nil, err
	}
	meta["result_s3_text"] = textKey

	return meta, nil
}

func addFieldsMeta(meta map[string]interface{}, res repair.Result) {
	f := res.Fields
	if f.OrderNumber == "" && f.OrderDate == "" && f.RecipientName == "" && f.RecipientAddress == "" {
		return
	}
	meta["fields"] = map[string]interface{}{
		"order_number":      f.OrderNumber,
		"order_date":        f.OrderDate,
		"recipient_name":    f.RecipientName,
		"recipient_address": f.RecipientAddress,
	}
}

func (p *Processor) update(ctx context.Context, jobID, status string, progress int, message string, meta map[string]interface{}) {
	_ = p.status.Set(ctx, jobID, store.Status{
		Status:   status,
		Progress: progress,
		Message:  message,
		Metadata: meta,
	})
}

// recordFailure reflects the failure in the job status. Attempts below the
// retry ceiling stay "processing" since the worker will requeue them.
func (p *Processor) recordFailure(ctx context.Context, job dispatcher.Job, err error) {
	status := "failed"
	msg := err.Error()
	if job.Attempt < p.cfg.Worker.JobMaxAttempts {
		status = "processing"
		msg = fmt.Sprintf("attempt %d failed: %s", job.Attempt, err)
	}
	st := store.Status{Status: status, Progress: 0, Message: msg}
	if status == "failed" {
		now := time.Now()
		st.End = &now
	}
	_ = p.status.Set(ctx, job.ID, st)
}

// progressSink translates pipeline events into status progress updates.
// Safe for concurrent use; the pipeline may emit from several goroutines.
type progressSink struct {
	status *store.RedisStatus
	jobID  string
	total  int

	mu   sync.Mutex
	done int
}

func newProgressSink(status *store.RedisStatus, jobID string, total int) *progressSink {
	return &progressSink{status: status, jobID: jobID, total: total}
}

func (s *progressSink) Emit(ev repair.Event) {
	if ev.Type != repair.EventPageDone && ev.Type != repair.EventPageFailed {
		return
	}
	s.mu.Lock()
	s.done++
	done := s.done
	s.mu.Unlock()

	progress := 10
	if s.total > 0 {
		progress = 10 + int(float64(done)/float64(s.total)*85)
	}
	_ = s.status.Set(context.Background(), s.jobID, store.Status{
		Status:   "processing",
		Progress: progress,
		Message:  fmt.Sprintf("page %d/%d done", done, s.total),
	})
}
