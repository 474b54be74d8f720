package dispatcher

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job describes one document repair request flowing through the queue.
type Job struct {
	ID             string    `json:"job_id"`
	FileRef        string    `json:"file_ref"`
	ResultName     string    `json:"result_name,omitempty"`
	Mode           string    `json:"mode,omitempty"`
	Source         string    `json:"source"`
	Password       string    `json:"password,omitempty"`
	ExtractFields  bool      `json:"extract_fields"`
	Attempt        int       `json:"attempt"`
	IdempotencyKey string    `json:"idempotency_key"`
	EnqueuedAt     time.Time `json:"enqueued_at"`
}

// NewJob builds a job for fileRef with attempt 1 and a stable idempotency key.
func NewJob(jobID, fileRef, source string) Job {
	return Job{
		ID:             jobID,
		FileRef:        fileRef,
		Source:         source,
		ExtractFields:  true,
		Attempt:        1,
		IdempotencyKey: fmt.Sprintf("doc:%s", jobID),
		EnqueuedAt:     time.Now(),
	}
}

// Marshal serializes the job for the queue.
func (j Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalJob parses a queue payload back into a Job.
func UnmarshalJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("decode job payload: %w", err)
	}
	if j.ID == "" {
		return Job{}, fmt.Errorf("job payload missing job_id")
	}
	return j, nil
}
