package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/pdfmend/internal/config"
	"github.com/local/pdfmend/internal/dispatcher"
	logpkg "github.com/local/pdfmend/internal/logger"
	"github.com/local/pdfmend/internal/metrics"
	"github.com/local/pdfmend/internal/queue"
	"github.com/local/pdfmend/internal/service"
	"github.com/local/pdfmend/internal/statuscheck"
	"github.com/local/pdfmend/internal/storage"
	"github.com/local/pdfmend/internal/store"
)

func main() {
	// .env is optional; real deployments configure through the environment.
	_ = godotenv.Load()

	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rq.Close()

	rs, err := store.NewRedisStatus(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init redis status store")
	}
	defer rs.Close()

	ps, err := store.NewPageStore(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init page store")
	}
	defer ps.Close()

	var s3cli *storage.S3Client
	if cfg.Storage.S3Bucket != "" {
		s3cli, err = storage.NewS3Client(context.Background(), cfg.Storage.S3Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 client")
		}
	}

	checker := statuscheck.New(statuscheck.Options{
		Redis:    rq,
		S3Bucket: cfg.Storage.S3Bucket,
	})

	svc := service.New(cfg, rq, rs, ps, checker)
	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	runWorkers := os.Getenv("RUN_WORKERS")
	if runWorkers == "" || runWorkers == "1" || runWorkers == "true" {
		proc := service.NewProcessor(cfg, ps, rs, s3cli)
		w := dispatcher.New(dispatcher.Config{
			Concurrency:     cfg.Worker.Concurrency,
			MaxAttempts:     cfg.Worker.JobMaxAttempts,
			RetryBaseDelay:  cfg.Worker.RetryBaseDelay,
			RetryJitter:     cfg.Worker.RetryJitter,
			DocumentTimeout: cfg.Worker.DocumentTimeout,
		}, rq, proc)
		w.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = w.Stop(ctx)
		}()
	}

	go watchQueueDepth(rq)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}

func watchQueueDepth(rq *queue.RedisQueue) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for range t.C {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		main, delayed, dlq, err := rq.Depths(ctx)
		cancel()
		if err != nil {
			continue
		}
		metrics.SetQueueDepth("main", main)
		metrics.SetQueueDepth("delayed", delayed)
		metrics.SetQueueDepth("dlq", dlq)
	}
}
