package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/pdfmend/internal/dispatcher"
	"github.com/local/pdfmend/internal/storage"
)

// EnsureLocalPDF materializes the document referenced by ref on the local
// filesystem. Supports file://, http(s):// and s3:// references as well as
// plain paths. The returned cleanup removes any temp copy and is always
// non-nil.
func EnsureLocalPDF(ctx context.Context, ref string) (string, func(), error) {
	nop := func() {}

	switch {
	case strings.HasPrefix(ref, "s3://"):
		path, err := downloadS3ToTemp(ctx, ref)
		if err != nil {
			return "", nop, &dispatcher.TransferError{Ref: ref, Reason: err.Error()}
		}
		return path, func() { _ = os.Remove(path) }, nil

	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		path, err := downloadHTTPToTemp(ctx, ref)
		if err != nil {
			return "", nop, &dispatcher.TransferError{Ref: ref, Reason: err.Error()}
		}
		return path, func() { _ = os.Remove(path) }, nil

	case strings.HasPrefix(ref, "file://"):
		path := strings.TrimPrefix(ref, "file://")
		if _, err := os.Stat(path); err != nil {
			return "", nop, &dispatcher.TransferError{Ref: ref, Reason: err.Error()}
		}
		return path, nop, nil

	default:
		if _, err := os.Stat(ref); err != nil {
			return "", nop, &dispatcher.TransferError{Ref: ref, Reason: err.Error()}
		}
		return ref, nop, nil
	}
}

func downloadHTTPToTemp(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}
	f, err := os.CreateTemp("", "pdfdl-*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func downloadS3ToTemp(ctx context.Context, s3url string) (string, error) {
	bucket, key, err := storage.ParseURL(s3url)
	if err != nil {
		return "", err
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx)
	if err != nil {
		return "", err
	}
	cli := s3.NewFromConfig(cfg)

	out, err := cli.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return "", err
	}
	defer out.Body.Close()

	// .pdf suffix keeps pdfcpu happy about the extension
	f, err := os.CreateTemp("", "s3pdf-*.pdf")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, out.Body); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	log.Info().Str("bucket", bucket).Str("key", key).Str("file", filepath.Base(f.Name())).Msg("downloaded s3 pdf to temp")
	return f.Name(), nil
}
