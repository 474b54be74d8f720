package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/local/pdfmend/internal/repair"
)

type fakeQueue struct {
	acked     []string
	delayed   [][]byte
	dlq       [][]byte
	cancelled map[string]bool
	idemDone  map[string]bool
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{cancelled: map[string]bool{}, idemDone: map[string]bool{}}
}

func (q *fakeQueue) Dequeue(context.Context, string, time.Duration) (string, []byte, error) {
	return "", nil, nil
}

func (q *fakeQueue) Ack(_ context.Context, msgID string) error {
	q.acked = append(q.acked, msgID)
	return nil
}

func (q *fakeQueue) EnqueueDelayed(_ context.Context, payload []byte, _ time.Time) error {
	q.delayed = append(q.delayed, payload)
	return nil
}

func (q *fakeQueue) AddDLQ(_ context.Context, payload []byte, _ string) error {
	q.dlq = append(q.dlq, payload)
	return nil
}

func (q *fakeQueue) IsCancelled(_ context.Context, jobID string) (bool, error) {
	return q.cancelled[jobID], nil
}

func (q *fakeQueue) IsIdemDone(_ context.Context, key string) (bool, error) {
	return q.idemDone[key], nil
}

func (q *fakeQueue) MarkIdemDone(_ context.Context, key string, _ time.Duration) error {
	q.idemDone[key] = true
	return nil
}

type fakeProcessor struct {
	err   error
	calls int
}

func (p *fakeProcessor) Process(context.Context, Job) error {
	p.calls++
	return p.err
}

func mustPayload(t *testing.T, job Job) []byte {
	t.Helper()
	data, err := job.Marshal()
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return data
}

func TestHandleSuccess(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{}
	w := New(Config{}, q, p)

	job := NewJob("job-1", "file:///tmp/a.pdf", "api")
	w.handle("m1", mustPayload(t, job))

	if p.calls != 1 {
		t.Fatalf("processor called %d times, want 1", p.calls)
	}
	if len(q.acked) != 1 {
		t.Errorf("acked %d messages, want 1", len(q.acked))
	}
	if !q.idemDone[job.IdempotencyKey] {
		t.Error("idempotency key not marked done")
	}
	if len(q.dlq) != 0 || len(q.delayed) != 0 {
		t.Errorf("unexpected dlq=%d delayed=%d", len(q.dlq), len(q.delayed))
	}
}

func TestHandleTransientFailureRequeues(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{err: &TransferError{Ref: "s3://b/k", Reason: "connection refused"}}
	w := New(Config{MaxAttempts: 3}, q, p)

	job := NewJob("job-2", "s3://b/k", "api")
	w.handle("m1", mustPayload(t, job))

	if len(q.delayed) != 1 {
		t.Fatalf("delayed %d payloads, want 1", len(q.delayed))
	}
	requeued, err := UnmarshalJob(q.delayed[0])
	if err != nil {
		t.Fatalf("unmarshal requeued job: %v", err)
	}
	if requeued.Attempt != 2 {
		t.Errorf("requeued attempt = %d, want 2", requeued.Attempt)
	}
	if len(q.dlq) != 0 {
		t.Errorf("job must not reach DLQ on first transient failure")
	}
}

func TestHandleExhaustedAttemptsGoToDLQ(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{err: &TransferError{Ref: "s3://b/k", Reason: "timeout"}}
	w := New(Config{MaxAttempts: 3}, q, p)

	job := NewJob("job-3", "s3://b/k", "api")
	job.Attempt = 3
	w.handle("m1", mustPayload(t, job))

	if len(q.delayed) != 0 {
		t.Errorf("exhausted job must not be requeued")
	}
	if len(q.dlq) != 1 {
		t.Errorf("dlq has %d payloads, want 1", len(q.dlq))
	}
}

func TestHandleFatalFailureGoesStraightToDLQ(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{err: &ValidationError{Message: "not a PDF"}}
	w := New(Config{MaxAttempts: 3}, q, p)

	job := NewJob("job-4", "file:///tmp/bad.bin", "upload")
	w.handle("m1", mustPayload(t, job))

	if len(q.delayed) != 0 {
		t.Errorf("fatal job must not be requeued")
	}
	if len(q.dlq) != 1 {
		t.Errorf("dlq has %d payloads, want 1", len(q.dlq))
	}
}

func TestHandleCancelledJobSkipsProcessing(t *testing.T) {
	q := newFakeQueue()
	q.cancelled["job-5"] = true
	p := &fakeProcessor{}
	w := New(Config{}, q, p)

	job := NewJob("job-5", "file:///tmp/a.pdf", "api")
	w.handle("m1", mustPayload(t, job))

	if p.calls != 0 {
		t.Errorf("processor called for cancelled job")
	}
	if len(q.acked) != 1 {
		t.Errorf("cancelled message must still be acked")
	}
}

func TestHandleDuplicateJobSkipsProcessing(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{}
	w := New(Config{}, q, p)

	job := NewJob("job-6", "file:///tmp/a.pdf", "api")
	q.idemDone[job.IdempotencyKey] = true
	w.handle("m1", mustPayload(t, job))

	if p.calls != 0 {
		t.Errorf("processor called for already-completed job")
	}
}

func TestHandleUndecodablePayload(t *testing.T) {
	q := newFakeQueue()
	p := &fakeProcessor{}
	w := New(Config{}, q, p)

	w.handle("m1", []byte("{not json"))

	if p.calls != 0 {
		t.Errorf("processor called for garbage payload")
	}
	if len(q.dlq) != 1 {
		t.Errorf("garbage payload must land in DLQ")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
	}{
		{"nil", nil, false, false},
		{"transfer", &TransferError{Ref: "x", Reason: "refused"}, true, false},
		{"validation", &ValidationError{Message: "bad"}, false, true},
		{"load", &repair.LoadError{Path: "a.pdf", Err: errors.New("damaged xref")}, false, true},
		{"write", &repair.WriteError{Dest: "out.pdf", Err: errors.New("disk full")}, true, false},
		{"deadline", context.DeadlineExceeded, true, false},
		{"network string", errors.New("dial tcp: connection reset by peer"), true, false},
		{"not a pdf string", errors.New("not a PDF: detected image/png"), false, true},
		{"unknown", errors.New("something odd"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.transient {
				t.Errorf("isTransientError = %v, want %v", got, tt.transient)
			}
			if got := isFatalError(tt.err); got != tt.fatal {
				t.Errorf("isFatalError = %v, want %v", got, tt.fatal)
			}
		})
	}
}

func TestRetryDelayGrowth(t *testing.T) {
	w := New(Config{RetryBaseDelay: time.Second}, newFakeQueue(), &fakeProcessor{})

	if d := w.retryDelay(2); d != time.Second {
		t.Errorf("attempt 2 delay = %v, want 1s", d)
	}
	if d := w.retryDelay(3); d != 2*time.Second {
		t.Errorf("attempt 3 delay = %v, want 2s", d)
	}
	if d := w.retryDelay(4); d != 4*time.Second {
		t.Errorf("attempt 4 delay = %v, want 4s", d)
	}
}
