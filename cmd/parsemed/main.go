package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"github.com/joseph-ayodele/parsemed/internal/async"
	"github.com/joseph-ayodele/parsemed/internal/common"
	"github.com/joseph-ayodele/parsemed/internal/documents"
	"github.com/joseph-ayodele/parsemed/internal/editor"
	"github.com/joseph-ayodele/parsemed/internal/export"
	"github.com/joseph-ayodele/parsemed/internal/llm/openai"
	"github.com/joseph-ayodele/parsemed/internal/markdown"
	"github.com/joseph-ayodele/parsemed/internal/pipeline"
	repo "github.com/joseph-ayodele/parsemed/internal/repository"
	svc "github.com/joseph-ayodele/parsemed/internal/server"
	"github.com/joseph-ayodele/parsemed/internal/storage"
	"github.com/joseph-ayodele/parsemed/internal/templates"
)

func main() {
	fs := common.NewFlagSet("parsemed")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}
	cfg, err := common.LoadConfig(fs)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	logger := common.NewLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err, "driver", cfg.Database.Driver)
		os.Exit(1)
	}
	defer svc.CloseDB(db, logger)

	if err := svc.PingDB(ctx, db, logger, 5*time.Second); err != nil {
		os.Exit(1)
	}

	blobs, err := storage.NewDiskStore(cfg.Storage.Dir, logger)
	if err != nil {
		logger.Error("failed to open blob store", "dir", cfg.Storage.Dir, "error", err)
		os.Exit(1)
	}

	jobsRepo := repo.NewExtractJobRepository(db, logger)
	docsRepo := repo.NewDocumentRepository(db, logger)
	templatesService := templates.NewService(repo.NewTemplateRepository(db, logger), logger)

	converter := markdown.NewConverter(logger,
		markdown.WithEngines(markdown.DefaultEngines(logger)...),
		markdown.WithMaxBytes(cfg.Server.MaxUploadBytes),
	)
	openaiClient := openai.NewClient(openai.Config{
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		Lenient:     true,
	}, logger)

	convertStage := pipeline.NewConvertStage(blobs, jobsRepo, converter, cfg.Pipeline.TablesOnly, logger)
	extractStage := pipeline.NewExtractStage(logger, jobsRepo, openaiClient)
	processor := pipeline.NewProcessor(logger, blobs, jobsRepo, templatesService, convertStage, extractStage)

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.JobTimeout),
	)

	sessions := editor.NewStore(logger)
	go sweepSessions(ctx, sessions, cfg.Server.SessionIdleTimeout, logger)

	api := svc.NewAPI(svc.Deps{
		Processor:      processor,
		Jobs:           jobsRepo,
		Queue:          queue,
		Sessions:       sessions,
		Documents:      documents.NewService(docsRepo, blobs, logger),
		Templates:      templatesService,
		Exporter:       export.NewService(docsRepo, logger),
		Ping:           func(ctx context.Context) error { return repo.HealthCheck(ctx, db, 2*time.Second) },
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	})

	var (
		httpServer *http.Server
		grpcServer *grpc.Server
		serveErr   = make(chan error, 2)
	)

	if cfg.Server.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("parsemed http listening", "addr", cfg.Server.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		grpcServer, _ = svc.NewGRPCServer(svc.NewDocumentsService(processor, logger), logger)
		go func() {
			logger.Info("parsemed grpc listening", "addr", cfg.Server.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				serveErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		logger.Error("server error", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "error", err)
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}

// sweepSessions drops editing sessions idle longer than maxIdle.
func sweepSessions(ctx context.Context, sessions *editor.Store, maxIdle time.Duration, logger *slog.Logger) {
	if maxIdle <= 0 {
		return
	}
	t := time.NewTicker(maxIdle / 4)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := sessions.Sweep(maxIdle); n > 0 {
				logger.Info("editor.sessions.swept", "count", n, "remaining", sessions.Len())
			}
		}
	}
}
