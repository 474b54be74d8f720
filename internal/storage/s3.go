package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/pbkdf2"
)

// gcmMagic prefixes password-encrypted objects so plaintext and encrypted
// payloads can be told apart on download.
const gcmMagic = "PMGCMv1\x00"

const (
	pbkdf2Iterations = 100_000
	saltLen          = 16
)

// S3Client wraps the AWS S3 client with optional password-based encryption
// of stored objects.
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewS3Client creates an S3 client for the given bucket. Static credentials
// from the environment take precedence over the default chain.
func NewS3Client(ctx context.Context, bucket string) (*S3Client, error) {
	var opts []func(*awscfg.LoadOptions) error
	if id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); id != "" && secret != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(id, secret, os.Getenv("AWS_SESSION_TOKEN"))))
	}
	cfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	cli := s3.NewFromConfig(cfg)
	return &S3Client{
		client:   cli,
		uploader: manager.NewUploader(cli),
		bucket:   bucket,
	}, nil
}

// ParseURL splits an s3://bucket/key reference.
func ParseURL(s3url string) (bucket, key string, err error) {
	path := strings.TrimPrefix(s3url, "s3://")
	slash := strings.Index(path, "/")
	if slash <= 0 {
		return "", "", fmt.Errorf("invalid s3 url: %s", s3url)
	}
	return path[:slash], path[slash+1:], nil
}

// Download fetches an object, decrypting it when password is non-empty and
// the payload carries the encryption magic.
func (s *S3Client) Download(ctx context.Context, key, password string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object: %w", err)
	}

	if bytes.HasPrefix(data, []byte(gcmMagic)) {
		if password == "" {
			return nil, fmt.Errorf("object %s is encrypted but no password given", key)
		}
		plain, err := decrypt(data, password)
		if err != nil {
			return nil, fmt.Errorf("decrypt %s: %w", key, err)
		}
		log.Debug().Str("key", key).Int("size", len(plain)).Msg("downloaded and decrypted s3 object")
		return plain, nil
	}

	log.Debug().Str("key", key).Int("size", len(data)).Msg("downloaded s3 object")
	return data, nil
}

// Upload stores data under key, encrypting it when password is non-empty.
// Metadata entries are attached as object metadata verbatim.
func (s *S3Client) Upload(ctx context.Context, key string, data []byte, password, contentType string, metadata map[string]string) error {
	payload := data
	if password != "" {
		var err error
		payload, err = encrypt(data, password)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
	}

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", s.bucket, key, err)
	}

	log.Info().
		Str("key", key).
		Int("size", len(payload)).
		Bool("encrypted", password != "").
		Msg("uploaded s3 object")
	return nil
}

// encrypt seals data with AES-GCM under a pbkdf2-derived key.
// Layout: magic || salt || nonce || ciphertext.
func encrypt(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, nonce, data, nil)

	out := make([]byte, 0, len(gcmMagic)+len(salt)+len(nonce)+len(sealed))
	out = append(out, gcmMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return append(out, sealed...), nil
}

func decrypt(data []byte, password string) ([]byte, error) {
	data = data[len(gcmMagic):]
	if len(data) < saltLen {
		return nil, fmt.Errorf("encrypted payload truncated")
	}
	salt, rest := data[:saltLen], data[saltLen:]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	if len(rest) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted payload truncated")
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return plain, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
