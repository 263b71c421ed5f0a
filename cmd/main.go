package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mailfleet/mailfleet/pkg/api"
	"github.com/mailfleet/mailfleet/pkg/broker"
	"github.com/mailfleet/mailfleet/pkg/config"
	"github.com/mailfleet/mailfleet/pkg/email"
	"github.com/mailfleet/mailfleet/pkg/filestore"
	"github.com/mailfleet/mailfleet/pkg/metrics"
	"github.com/mailfleet/mailfleet/pkg/smtp"
	"github.com/mailfleet/mailfleet/pkg/storage"
	"github.com/mailfleet/mailfleet/pkg/template"
)

const shutdownTimeout = 30 * time.Second

func main() {
	var debug bool
	var configPath string
	flag.BoolVar(&debug, "debug", false, "enable debug level logging")
	flag.StringVar(&configPath, "config", "", "path to config file (defaults to ./config.yaml)")
	flag.Parse()

	zl := setupLogger(debug)
	log := zl.Sugar()
	log.Info("Starting mailfleet")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Error loading mailfleet config: %v", err)
	}

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	defer db.Close()

	sink := metrics.Prometheus{}
	files := filestore.NewFS(cfg.Storage.BaseDir, log)
	templates := template.NewService(db, files, cfg.Storage.TemplatesBucket, log)
	dispatcher := smtp.NewDispatcher(cfg.SMTP, sink, log)
	service := email.NewService(db, dispatcher, templates, sink, log)

	// Queue consumers: one per queue, manual acknowledgment. A failed
	// initial connection is fatal for the whole service.
	emailQueue, err := broker.NewKafkaQueue(cfg.Broker, cfg.Broker.EmailQueue, log)
	if err != nil {
		log.Fatalf("Error opening email queue: %v", err)
	}
	templatedQueue, err := broker.NewKafkaQueue(cfg.Broker, cfg.Broker.TemplatedQueue, log)
	if err != nil {
		log.Fatalf("Error opening templated email queue: %v", err)
	}

	consumer := broker.NewConsumer(sink, log)
	consumer.Register(emailQueue, broker.SendHandler(service))
	consumer.Register(templatedQueue, broker.SendTemplatedHandler(service))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	consumer.Start(ctx)

	server := api.NewServer(zl, cfg, debug)
	err = server.RegisterAll([]api.APIController{
		api.NewEmailController(service, db, log),
		api.NewTemplateController(templates, log),
	})
	if err != nil {
		log.Fatalf("Error registering controllers: %v", err)
	}

	go func() {
		if err := server.Listen(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Warnw("Error stopping queue consumer", "error", err)
	}
	log.Info("Mailfleet stopped")
}

func setupLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}

	zl, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return zl
}
