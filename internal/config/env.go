package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool
}

// AxiomConfig holds Axiom log forwarding configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// OCRConfig configures page rendering and text recognition.
type OCRConfig struct {
    Language    string
    RenderDPI   float64
    Grayscale   bool
    PageTimeout time.Duration
}

// RepairConfig configures the page repair pipeline.
type RepairConfig struct {
    // Mode selects the output artifact strategy: "overlay", "fresh" or "freshlayout".
    Mode                 string
    ReadabilityThreshold float64
    MinWordCount         int
    StripArtifacts       bool
    OCRConcurrency       int
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
    Concurrency     int
    JobMaxAttempts  int
    RetryBaseDelay  time.Duration
    RetryJitter     time.Duration
    DocumentTimeout time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
    RedisURL     string
    Stream       string
    Group        string
    PollInterval time.Duration
}

// StorageConfig defines where sources and results live.
type StorageConfig struct {
    S3Bucket  string
    UploadDir string
    ResultDir string
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig
    Axiom   AxiomConfig
    OCR     OCRConfig
    Repair  RepairConfig
    Worker  WorkerConfig
    Queue   QueueConfig
    Storage StorageConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/pdfmend.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_pdfmend",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    // 72 dpi renders the page at its media-box size in points.
    cfg.OCR = OCRConfig{
        Language:    getEnv("OCR_LANGUAGE", "eng"),
        RenderDPI:   parseFloat(getEnv("OCR_RENDER_DPI", "72"), 72),
        Grayscale:   parseBool(getEnv("OCR_GRAYSCALE", "true")),
        PageTimeout: parseDuration(getEnv("OCR_PAGE_TIMEOUT", "60s"), 60*time.Second),
    }

    cfg.Repair = RepairConfig{
        Mode:                 getEnv("REPAIR_MODE", "overlay"),
        ReadabilityThreshold: parseFloat(getEnv("REPAIR_READABILITY_THRESHOLD", "0.90"), 0.90),
        MinWordCount:         parseInt(getEnv("REPAIR_MIN_WORD_COUNT", "5"), 5),
        StripArtifacts:       parseBool(getEnv("REPAIR_STRIP_ARTIFACTS", "0")),
        OCRConcurrency:       parseInt(getEnv("REPAIR_OCR_CONCURRENCY", "1"), 1),
    }

    cfg.Worker = WorkerConfig{
        Concurrency:     parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
        JobMaxAttempts:  parseInt(getEnv("JOB_MAX_ATTEMPTS", "3"), 3),
        RetryBaseDelay:  parseDuration(getEnv("RETRY_BASE_DELAY", "2s"), 2*time.Second),
        RetryJitter:     parseDuration(getEnv("RETRY_JITTER", "200ms"), 200*time.Millisecond),
        DocumentTimeout: parseDuration(getEnv("DOCUMENT_TIMEOUT", "10m"), 10*time.Minute),
    }

    cfg.Queue = QueueConfig{
        RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
        Stream:       getEnv("QUEUE_STREAM", "jobs:repair:docs"),
        Group:        getEnv("QUEUE_GROUP", "workers:repair"),
        PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
    }

    cfg.Storage = StorageConfig{
        S3Bucket:  getEnv("AWS_S3_BUCKET", ""),
        UploadDir: getEnv("UPLOAD_DIR", "uploads"),
        ResultDir: getEnv("RESULT_DIR", "uploads/results"),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
