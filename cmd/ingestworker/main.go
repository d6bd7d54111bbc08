// Package main is the ingestion pipeline's composition root: it loads
// configuration, wires every AWS client and pipeline stage together, and
// runs the coordinator until an interrupt signal triggers graceful
// shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/firehose"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gurre/s3streamer"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	_ "go.uber.org/automaxprocs"

	"github.com/wifiloc/pipeline/ack"
	"github.com/wifiloc/pipeline/aws"
	"github.com/wifiloc/pipeline/batch"
	"github.com/wifiloc/pipeline/config"
	"github.com/wifiloc/pipeline/coordinator"
	"github.com/wifiloc/pipeline/delivery"
	"github.com/wifiloc/pipeline/logging"
	"github.com/wifiloc/pipeline/memorygovernor"
	"github.com/wifiloc/pipeline/metrics"
	"github.com/wifiloc/pipeline/objectreader"
	"github.com/wifiloc/pipeline/queue"
	"github.com/wifiloc/pipeline/router"
	"github.com/wifiloc/pipeline/transform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	bootstrapLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load(&bootstrapLogger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(cfg.LogFormat, cfg.ZerologLevel())
	logger.Info().Str("region", cfg.Region).Str("queue_url", cfg.QueueURL).Msg("starting ingestion pipeline")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	sqsClient := aws.NewSQSClient(sqs.NewFromConfig(awsCfg))
	rawS3Client := s3.NewFromConfig(awsCfg)
	s3Client := aws.NewS3Client(rawS3Client)
	firehoseClient := aws.NewFirehoseClient(firehose.NewFromConfig(awsCfg))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	limiter := rate.NewLimiter(rate.Limit(cfg.MaxMessagesPerPoll), int(cfg.MaxMessagesPerPoll))
	consumer := queue.New(sqsClient, cfg.QueueURL, cfg.MaxMessagesPerPoll, cfg.VisibilityTimeoutSec, cfg.PollWaitTimeSec, limiter, logger)

	rt := router.New(router.DefaultFeedProcessor{}, router.StrictFeedProcessor{})

	streamer := s3streamer.NewS3Streamer(rawS3Client)
	objReader := objectreader.New(s3Client, streamer, cfg.Object.MaxFileSize)

	transformer := transform.New(cfg.Filtering, m)

	ackCoord := ack.New(consumer, logger)

	sink := delivery.New(firehoseClient, cfg.Delivery.DeliveryStreamName, cfg.Delivery.MaxRetries, cfg.Delivery.RetryBackoffMs, m, logger,
		func(owner string, lost bool) {
			ackCoord.Complete(context.Background(), owner, lost)
		},
	)

	var governor *memorygovernor.Governor
	var pressure batch.PressureSource
	if cfg.MemoryManagement.Enabled {
		governor = memorygovernor.New(cfg.MemoryManagement, memorygovernor.SystemSampler{}, clockwork.NewRealClock())
		pressure = governor
	}

	publisher := batch.New(sink, pressure, m, clockwork.NewRealClock(), cfg.Delivery.MaxBatchRecords, cfg.Delivery.MaxBatchBytes, cfg.Delivery.MaxBatchAgeMs)

	coord := coordinator.New(cfg, consumer, rt, objReader, transformer, publisher, ackCoord, m, logger)

	if governor != nil {
		go governor.Run(ctx)
		go runGCOptimizer(ctx, cfg.MemoryManagement, governor, logger)
	}
	go logSnapshotPeriodically(ctx, coord, logger)

	logger.Info().Msg("pipeline running, waiting for shutdown signal")
	if err := coord.Run(ctx); err != nil {
		return fmt.Errorf("coordinator run: %w", err)
	}
	logger.Info().Msg("pipeline shut down cleanly")
	return nil
}

// runGCOptimizer periodically nudges the Go GC when the memory governor
// reports pressure, the closest idiomatic analogue to the original's
// JVM-GC-hint configuration; there is no forced-GC equivalent worth calling
// unconditionally in Go.
func runGCOptimizer(ctx context.Context, cfg config.MemoryManagement, governor *memorygovernor.Governor, logger zerolog.Logger) {
	if !cfg.GCOptimization.Enabled || !cfg.GCOptimization.SuggestGCOnPressure {
		return
	}
	interval := cfg.GCOptimization.GCPauseIntervalMs
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if governor.Pressured() {
				runtime.GC()
				debug.FreeOSMemory()
				if cfg.GCOptimization.LogGCEvents {
					logger.Info().Msg("suggested GC under memory pressure")
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func logSnapshotPeriodically(ctx context.Context, coord *coordinator.Coordinator, logger zerolog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			snap := coord.Snapshot()
			logger.Info().
				Int64("records_accepted", snap.RecordsAccepted).
				Int64("parse_failures", snap.ParseFailures).
				Int64("delivery_loss", snap.DeliveryLoss).
				Int("active_workers", snap.ActiveWorkers).
				Int("messages_in_flight", snap.MessagesInFlight).
				Msg("activity snapshot")
		case <-ctx.Done():
			return
		}
	}
}
