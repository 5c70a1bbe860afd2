package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emersion/go-smtp"
	"golang.org/x/sync/errgroup"

	"github.com/meinedokbox/dokbox/api"
	"github.com/meinedokbox/dokbox/config"
	"github.com/meinedokbox/dokbox/datastore"
	"github.com/meinedokbox/dokbox/documents"
	"github.com/meinedokbox/dokbox/duplicates"
	"github.com/meinedokbox/dokbox/inbound"
	"github.com/meinedokbox/dokbox/ingestion"
	rh "github.com/meinedokbox/dokbox/route-handlers"
	"github.com/meinedokbox/dokbox/scheduler"
	"github.com/meinedokbox/dokbox/smtpd"
	"github.com/meinedokbox/dokbox/storage"
	"github.com/meinedokbox/dokbox/upload"
	"github.com/meinedokbox/dokbox/webhooks"
	"github.com/meinedokbox/dokbox/whitelist"
)

const (
	dbOpenTimeout     = 15 * time.Second
	shutdownTimeout   = 15 * time.Second
	requestTimeout    = 60 * time.Second
	smtpMessageBudget = 2 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server gracefully stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	openCtx, cancel := context.WithTimeout(ctx, dbOpenTimeout)
	db, err := datastore.Open(openCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return fmt.Errorf("database setup failed: %w", err)
	}
	defer db.Close()

	userRepo := datastore.NewUserRepository(db)
	whitelistRepo := datastore.NewWhitelistRepository(db)
	documentRepo := datastore.NewDocumentRepository(db)
	sessionRepo := datastore.NewSessionRepository(db)
	preferenceRepo := datastore.NewPreferenceRepository(db)

	gate := whitelist.NewGate(whitelistRepo)
	inboundSvc := inbound.NewService(userRepo, cfg.InboundDomain)
	documentSvc := documents.NewService(documentRepo, storage.NewLocalFileStorer(cfg.StorageDir), nil)
	detector := duplicates.NewHashDetector(documentRepo)
	uploads := upload.NewManager(detector, documentSvc, upload.Options{
		CheckTimeout:    cfg.DuplicateCheckTimeout,
		ConfirmationTTL: cfg.UploadConfirmationTTL,
		MaxFiles:        cfg.MaxBatchFiles,
	})
	processor := ingestion.NewProcessor(inboundSvc, gate, documentSvc)
	maintenance := scheduler.New(sessionRepo, uploads, scheduler.DefaultInterval)

	router := api.SetupRoutes(api.Handlers{
		Auth:          rh.NewAuthHandler(userRepo, sessionRepo, inboundSvc, cfg.SessionTTL, cfg.SecureCookies),
		Whitelist:     rh.NewWhitelistHandler(gate),
		Inbound:       rh.NewInboundHandler(inboundSvc),
		Documents:     rh.NewDocumentHandler(documentSvc, detector, cfg.MaxUploadBytes()),
		Uploads:       rh.NewUploadHandler(uploads, cfg.MaxUploadBytes(), cfg.MaxBatchFiles),
		Onboarding:    rh.NewOnboardingHandler(preferenceRepo, gate),
		InboundEmail:  webhooks.NewInboundEmailHandler(processor, cfg.MailgunSigningKey, 2*cfg.SMTPMaxMessageBytes).HandleInbound,
		SchedulerTick: maintenance.HandleTick,
	}, api.Options{
		Sessions:             sessionRepo,
		LoginRatePerMinute:   cfg.LoginRatePerMinute,
		WebhookRatePerMinute: cfg.WebhookRatePerMinute,
		RequestTimeout:       requestTimeout,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var smtpSrv *smtp.Server
	if cfg.SMTPListenAddr != "" {
		smtpSrv = smtpd.NewServer(smtpd.NewBackend(processor, smtpMessageBudget), cfg.SMTPListenAddr, cfg.SMTPDomain, cfg.SMTPMaxMessageBytes)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if smtpSrv != nil {
		g.Go(func() error {
			slog.Info("SMTP server starting", "addr", smtpSrv.Addr, "domain", smtpSrv.Domain)
			if err := smtpSrv.ListenAndServe(); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
				return fmt.Errorf("smtp server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return maintenance.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, initiating graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if smtpSrv != nil {
			if err := smtpSrv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("smtp shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.IsDevelopment() {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
