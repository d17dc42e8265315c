package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/config"
	"github.com/HRV220/plate-detect/detector"
	"github.com/HRV220/plate-detect/handlers"
	"github.com/HRV220/plate-detect/middleware"
	"github.com/HRV220/plate-detect/notify"
	"github.com/HRV220/plate-detect/overlay"
	"github.com/HRV220/plate-detect/pool"
	"github.com/HRV220/plate-detect/service"
	"github.com/HRV220/plate-detect/storage"
	"github.com/HRV220/plate-detect/store"
	"github.com/HRV220/plate-detect/sweeper"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Plate cover service starting",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := store.Connect(cfg.RedisAddr, logger)
	if err != nil {
		logger.Fatal("Failed to connect to task store", zap.Error(err))
	}
	defer st.Close()

	files, err := storage.NewManager(cfg.TasksDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize file storage", zap.Error(err))
	}

	var events notify.EventProducer
	if cfg.KafkaBrokers != "" {
		events, err = notify.NewKafkaProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic)
		if err != nil {
			logger.Error("Kafka producer init failed, completion events disabled", zap.Error(err))
			events = nil
		} else {
			defer events.Close()
		}
	}
	notifier := notify.New(notify.Config{
		UploadURL:   cfg.UploadURL,
		CallbackURL: cfg.CallbackURL,
	}, events, logger)

	wp := pool.New(cfg.WorkerCount)

	// The cover graphic is loaded once; without it the engine cannot run
	// and submissions are answered with 503.
	var svc handlers.TaskService
	engine, err := overlay.NewEngine(cfg.CoverImagePath, logger)
	if err != nil {
		logger.Error("Overlay engine init failed, submissions disabled", zap.Error(err))
	} else {
		model := detector.NewRemoteModel(cfg.InferenceURL, cfg.InferenceDevice, logger)
		adapter := detector.NewAdapter(model, cfg.BatchSize, logger)
		svc = service.NewTaskService(
			ctx, st, files, adapter, engine, wp, notifier,
			service.Limits{MaxFiles: cfg.MaxFiles, MaxFileSize: cfg.MaxFileSize},
			cfg.TaskTTL, logger,
		)
	}

	sw := sweeper.New(st, files, cfg.SweepInterval, logger)
	go sw.Run(ctx)

	taskHandler := handlers.NewTaskHandler(svc, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		taskHandler.Submit(w, r)
	})
	mux.HandleFunc("/api/v1/tasks/", taskHandler.Status)
	mux.Handle("/results/", http.StripPrefix("/results/", http.FileServer(http.Dir(files.Root()))))
	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/", handlers.Root)

	maxBody := cfg.MaxFileSize*int64(cfg.MaxFiles) + 1<<20
	handler := middleware.TraceID(
		middleware.Logging(logger)(
			middleware.Recovery(logger)(
				middleware.BodyLimit(maxBody, logger)(mux),
			),
		),
	)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}

		// Let in-flight tasks reach a terminal state before exit.
		wp.Wait()
	}()

	logger.Info("Server started", zap.String("address", server.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed", zap.Error(err))
	}
	wp.Wait()
}
