package statuscheck

import (
	"context"
	"errors"
	"os/exec"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the external dependencies of the
// repair service.
type Checker struct {
	redis    RedisPinger
	s3Bucket string
}

// Options configures the Checker.
type Options struct {
	Redis    RedisPinger
	S3Bucket string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis     Status `json:"redis"`
	S3        Status `json:"s3"`
	Tesseract Status `json:"tesseract"`
	MuPDF     Status `json:"mupdf"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{
		redis:    opts.Redis,
		s3Bucket: opts.S3Bucket,
	}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:     c.checkRedis(ctx),
		S3:        c.checkS3(ctx),
		Tesseract: checkBinary("tesseract"),
		MuPDF:     checkBinary("mutool"),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: false, Message: "client unavailable"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: err.Error()}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
	if c.s3Bucket == "" {
		return Status{OK: false, Message: "Bucket not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return Status{OK: false, Message: err.Error()}
	}
	cli := s3.NewFromConfig(cfg)
	if _, err := cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.s3Bucket}); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func checkBinary(name string) Status {
	if _, err := exec.LookPath(name); err != nil {
		return Status{OK: false, Message: "Binary not found"}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
