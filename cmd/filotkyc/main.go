// Command filotkyc is the engine's single binary: it wires the Queue
// Substrate, Blob Store, database repositories, OCR selector, Worker Pool,
// Review Forwarder/Drainer, Decision Router, Callback Receiver, and HTTP
// Surface together, runs §4.9 startup recovery, then serves until signaled.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/filotkyc/engine/api"
	"github.com/filotkyc/engine/callback"
	"github.com/filotkyc/engine/config"
	"github.com/filotkyc/engine/db"
	"github.com/filotkyc/engine/decision"
	"github.com/filotkyc/engine/identity"
	"github.com/filotkyc/engine/logging"
	"github.com/filotkyc/engine/metrics"
	"github.com/filotkyc/engine/ocr"
	"github.com/filotkyc/engine/queue"
	"github.com/filotkyc/engine/reviewer"
	"github.com/filotkyc/engine/startup"
	"github.com/filotkyc/engine/statemanager"
	"github.com/filotkyc/engine/storage"
	"github.com/filotkyc/engine/worker"
)

func main() {
	if err := run(); err != nil {
		logging.Logger.WithError(err).Error("filotkyc: fatal startup error")
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Configure(logging.Config{Level: logging.Level(cfg.Log.Level), Format: cfg.Log.Format})

	build := logging.GetBuildInfo()
	log := logging.ForComponent("main")
	log.WithFields(toFields(cfg.RedactedDump(logging.MaskSecret))).Info("starting filotkyc")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	substrate, err := queue.New(ctx, queue.Config{
		URL:      cfg.Queue.URL,
		Password: cfg.Queue.Password,
		TLS:      cfg.Queue.TLS,
		Prefix:   cfg.Queue.Prefix,
	})
	if err != nil {
		return fmt.Errorf("connect queue substrate: %w", err)
	}
	defer substrate.Close()

	blob, err := storage.New(ctx, storage.Config{
		Endpoint:   cfg.Blob.Endpoint,
		AccessKey:  cfg.Blob.AccessKey,
		SecretKey:  cfg.Blob.SecretKey,
		Bucket:     cfg.Blob.Bucket,
		PresignTTL: cfg.Blob.PresignTTL,
		UseSSL:     cfg.Blob.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("connect blob store: %w", err)
	}

	pool, err := db.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns, cfg.Database.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	documents := db.NewDocumentRepository(pool)
	users := db.NewUserRepository(pool)
	reviews := db.NewManualReviewRepository(pool)

	registry := metrics.New("filotkyc")

	recognize := ocr.NewHTTPRecognizeFunc(ocr.HTTPRecognizeConfig{
		APIURL:  cfg.OCR.APIURL,
		APIKey:  cfg.OCR.APIKey,
		Timeout: cfg.OCR.RequestTimeout,
	})
	selector := ocr.NewSelector(
		ocr.NewCPUEngine(recognize),
		ocr.NewGPUEngine(recognize, ocr.GPUConfig{
			Concurrency:  cfg.OCR.GPUConcurrency,
			MaxRetries:   cfg.OCR.GPUMaxRetries,
			StuckTimeout: cfg.OCR.GPUStuckTimeout,
		}),
		cfg.OCR.AutoFallback,
	)

	forwarder := reviewer.New(cfg.Reviewer, substrate, logging.ForComponent("reviewer"), registry)
	drainer := reviewer.NewDrainer(forwarder)
	go drainer.Run(ctx)

	useGPU := cfg.OCR.Engine == "gpu"
	family := queue.CPU
	if useGPU {
		family = queue.GPU
	}

	states := statemanager.New(statemanager.Config{ServiceName: "filotkyc-worker"})

	pipeline := worker.NewPool(worker.Dependencies{
		Substrate:             substrate,
		Blob:                  blob,
		Documents:             documents,
		Users:                 users,
		Reviews:               reviews,
		OCR:                   selector,
		Forwarder:             forwarder,
		Metrics:               registry,
		States:                states,
		Logger:                logging.ForComponent("worker"),
		Family:                family,
		UseGPU:                useGPU,
		StuckTimeout:          cfg.OCR.GPUStuckTimeout,
		ReaperInterval:        cfg.OCR.GPUReaperPeriod,
		LockTTL:               cfg.OCR.GPULockTTL,
		ConservativeThreshold: config.ConservativeThreshold,
	})
	pipeline.Start(ctx)
	defer pipeline.Stop()

	evaluator := &decision.Evaluator{
		Documents: documents,
		Reviews:   reviews,
		Users:     users,
		Forwarder: forwarder,
		Scoring:   cfg.Scoring,
	}

	callbackHandler := &callback.Handler{
		Reviews:   reviews,
		Documents: documents,
		Users:     users,
		Config:    cfg.Reviewer,
		Logger:    logging.ForComponent("callback"),
		Metrics:   registry,
	}

	if err := startup.Recover(ctx, substrate, documents, []queue.Family{queue.CPU, queue.GPU}, log); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}

	documentsHandler := &api.DocumentsHandler{
		Users:     users,
		Documents: documents,
		Blob:      blob,
		Substrate: substrate,
		Family:    family,
	}

	handlers := api.Handlers{
		Documents: documentsHandler,
		Verify: &api.VerificationHandler{
			Documents: documentsHandler,
			Reviews:   reviews,
			Evaluator: evaluator,
		},
		Callback: callbackHandler,
		Internal: &api.InternalHandler{
			Documents: documents,
			Reviews:   reviews,
			Users:     users,
			Forwarder: evaluator.Forwarder,
			Threshold: config.ConservativeThreshold,
		},
		Health: &api.HealthHandler{
			Substrate: substrate,
			DB:        pool,
			Blob:      blob,
			States:    states,
			Breaker:   forwarder,
			Build:     build,
		},
		Metrics:    &api.MetricsHandler{Registry: registry},
		Verifier:   identity.NewJWTVerifier(cfg.HTTP.JWTSecret),
		ServiceKey: cfg.HTTP.ServiceKey,
		States:     states,
	}

	serverCfg := api.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		BodyLimit:       "10M",
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		RateLimit:       cfg.HTTP.RateLimit,
	}
	echoServer := api.NewEcho(serverCfg, handlers)

	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	log.WithField("addr", cfg.HTTP.Addr).Info("serving HTTP")
	if err := api.StartAndWait(sigCtx, echoServer, serverCfg); err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("filotkyc stopped")
	return nil
}

func toFields(m map[string]string) map[string]interface{} {
	fields := make(map[string]interface{}, len(m))
	for k, v := range m {
		fields[k] = v
	}
	return fields
}
