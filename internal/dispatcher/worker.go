package dispatcher

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfmend/internal/metrics"
)

// Queue is the slice of queue behavior the worker needs.
type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	IsIdemDone(ctx context.Context, key string) (bool, error)
	MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
}

// Processor runs one repair job end to end.
type Processor interface {
	Process(ctx context.Context, job Job) error
}

// Config controls worker pool behavior.
type Config struct {
	Concurrency     int
	MaxAttempts     int
	RetryBaseDelay  time.Duration
	RetryJitter     time.Duration
	DocumentTimeout time.Duration
	IdemTTL         time.Duration
}

// Worker consumes repair jobs from the queue and hands them to the Processor.
type Worker struct {
	cfg  Config
	q    Queue
	proc Processor
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config, q Queue, proc Processor) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 2 * time.Second
	}
	if cfg.DocumentTimeout <= 0 {
		cfg.DocumentTimeout = 10 * time.Minute
	}
	if cfg.IdemTTL <= 0 {
		cfg.IdemTTL = 24 * time.Hour
	}
	return &Worker{cfg: cfg, q: q, proc: proc, stop: make(chan struct{})}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals all workers and waits for in-flight jobs, bounded by ctx.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := consumerName(id)
	log.Info().Int("worker", id).Str("consumer", consumer).Msg("repair worker started")

	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("repair worker stopped")
			return
		default:
		}

		msgID, data, err := w.q.Dequeue(context.Background(), consumer, 2*time.Second)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if data == nil {
			continue
		}

		w.handle(msgID, data)
	}
}

func (w *Worker) handle(msgID string, data []byte) {
	ctx := context.Background()

	job, err := UnmarshalJob(data)
	if err != nil {
		log.Error().Err(err).Str("msg_id", msgID).Msg("dropping undecodable job payload")
		_ = w.q.AddDLQ(ctx, data, "undecodable payload")
		_ = w.q.Ack(ctx, msgID)
		metrics.IncJob("invalid")
		return
	}

	logCtx := log.With().Str("job_id", job.ID).Int("attempt", job.Attempt).Logger()

	if cancelled, _ := w.q.IsCancelled(ctx, job.ID); cancelled {
		logCtx.Warn().Msg("job cancelled before processing; skipping")
		_ = w.q.Ack(ctx, msgID)
		metrics.IncJob("cancelled")
		return
	}

	if done, _ := w.q.IsIdemDone(ctx, job.IdempotencyKey); done {
		logCtx.Info().Msg("job already completed; skipping duplicate")
		_ = w.q.Ack(ctx, msgID)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.DocumentTimeout)
	perr := w.proc.Process(jobCtx, job)
	cancel()

	if perr == nil {
		_ = w.q.MarkIdemDone(ctx, job.IdempotencyKey, w.cfg.IdemTTL)
		_ = w.q.Ack(ctx, msgID)
		metrics.IncJob("success")
		return
	}

	if isTransientError(perr) && job.Attempt < w.cfg.MaxAttempts {
		job.Attempt++
		payload, merr := job.Marshal()
		if merr == nil {
			delay := w.retryDelay(job.Attempt)
			if err := w.q.EnqueueDelayed(ctx, payload, time.Now().Add(delay)); err == nil {
				logCtx.Warn().Err(perr).Dur("delay", delay).Msg("transient failure; job requeued")
				_ = w.q.Ack(ctx, msgID)
				metrics.IncRetry()
				return
			}
		}
	}

	logCtx.Error().Err(perr).Msg("job failed permanently; moving to DLQ")
	_ = w.q.AddDLQ(ctx, data, perr.Error())
	_ = w.q.Ack(ctx, msgID)
	metrics.IncJob("failed")
}

// retryDelay grows exponentially with the attempt number plus random jitter.
func (w *Worker) retryDelay(attempt int) time.Duration {
	delay := w.cfg.RetryBaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
	}
	if w.cfg.RetryJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(w.cfg.RetryJitter)))
	}
	return delay
}

func consumerName(id int) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, id)
}
