// Command auditledger runs the audit ledger HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/api"
	"github.com/persistorai/auditledger/internal/compliance"
	"github.com/persistorai/auditledger/internal/config"
	"github.com/persistorai/auditledger/internal/intake"
	"github.com/persistorai/auditledger/internal/ledger"
	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/service"
	"github.com/persistorai/auditledger/internal/tracing"
	"github.com/persistorai/auditledger/internal/ws"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "auditledger: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	return log
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:      cfg.OTelEnabled,
		ServiceName:  "auditledger",
		Version:      config.Version,
		Endpoint:     cfg.OTelEndpoint,
		SamplingRate: cfg.OTelSamplingRate,
	}, log)
	if err != nil {
		return err
	}

	// Background workers outlive the signal context so they can drain.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	var workers sync.WaitGroup

	hub := ws.NewHub(log)
	go hub.Run(bgCtx)

	worker := service.NewSinkWorker(buildSinks(ctx, cfg, log), log, cfg.SinkQueueSize)
	workers.Add(1)
	go func() {
		defer workers.Done()
		worker.Run(bgCtx)
	}()

	signer, err := newSigner(cfg)
	if err != nil {
		return err
	}

	persist, err := openPersistence(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer persist.Close()

	opts := append([]ledger.Option{
		ledger.WithBlockSize(cfg.BlockSize),
		ledger.WithLogger(log),
		ledger.WithObserver(hub),
		ledger.WithObserver(worker),
	}, persist.ledgerOptions...)

	sealer := ledger.NewSealer(signer, ledger.SealerConfig{
		Difficulty:    cfg.Difficulty,
		MaxIterations: cfg.MaxNonceIterations,
	}, log)

	chain, err := ledger.New(ctx, sealer, opts...)
	if err != nil {
		return fmt.Errorf("starting ledger: %w", err)
	}

	tags := compliance.DefaultTagTable()
	if cfg.ComplianceTagsFile != "" {
		if tags, err = compliance.LoadTagTable(cfg.ComplianceTagsFile); err != nil {
			return err
		}
	}

	reportCache, checks := openCache(ctx, cfg, log)
	checks = append(persist.checks, checks...)

	svc := service.NewLedgerService(chain, ledger.NewEventFactory(tags), reportCache, log)
	if persist.restored {
		checkRestoredChain(ctx, chain, log)
	}

	flusher := service.NewFlusher(chain, cfg.FlushInterval, log)
	go flusher.Run(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		consumer := intake.NewConsumer(svc, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := consumer.Run(ctx, intake.Config{
				Brokers: cfg.KafkaBrokers,
				Topic:   cfg.KafkaTopic,
				GroupID: cfg.KafkaGroupID,
			}); err != nil {
				log.WithError(err).Error("intake.failed")
			}
		}()
	}

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:         log,
		Ledger:      svc,
		Reports:     compliance.NewReporter(svc, svc, log),
		Hub:         hub,
		Keys:        persist.principals(cfg),
		Checks:      checks,
		CORSOrigins: cfg.CORSOrigins,
		Version:     config.Version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	for _, s := range []*http.Server{srv, metricsSrv} {
		go func() {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("serving %s: %w", s.Addr, err)
			}
		}()
	}

	log.WithFields(logrus.Fields{
		"addr":         cfg.Addr(),
		"metrics_addr": cfg.MetricsAddr(),
		"version":      config.Version,
		"persistent":   cfg.Persistent(),
		"chain_length": chain.ChainLength(),
		"block_size":   cfg.BlockSize,
		"difficulty":   cfg.Difficulty,
	}).Info("server.started")

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	log.Info("server.shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, s := range []*http.Server{srv, metricsSrv} {
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).WithField("addr", s.Addr).Warn("server.shutdown_failed")
		}
	}

	// Seal what is still pending so the sinks receive it before they drain.
	if _, err := chain.Flush(shutdownCtx); err != nil && !errors.Is(err, models.ErrEmptyBatch) {
		log.WithError(err).Warn("ledger.final_flush_failed")
	}

	hub.Shutdown()
	bgCancel()
	workers.Wait()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing.shutdown_failed")
	}

	log.Info("server.stopped")

	return serveErr
}

// checkRestoredChain verifies a chain loaded from the database and logs the
// outcome. It always runs a full verification, never a recorded report. A
// broken chain is reported, not fatal: it stays readable for investigation.
func checkRestoredChain(ctx context.Context, chain *ledger.Ledger, log *logrus.Logger) {
	report := chain.Verify(ctx)

	fields := logrus.Fields{
		"blocks": report.TotalBlocks,
		"events": report.TotalEvents,
		"errors": len(report.Errors),
	}

	if !report.IsValid {
		log.WithFields(fields).Error("ledger.restored_chain_invalid")
		return
	}

	log.WithFields(fields).Info("ledger.restored_chain_verified")
}
