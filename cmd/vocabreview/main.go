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

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/vocabreview/internal/config"
	"github.com/conorfennell/vocabreview/internal/fsrs"
	"github.com/conorfennell/vocabreview/internal/logging"
	"github.com/conorfennell/vocabreview/internal/reminder"
	"github.com/conorfennell/vocabreview/internal/review"
	"github.com/conorfennell/vocabreview/internal/storage"
	"github.com/conorfennell/vocabreview/internal/sync"
	"github.com/conorfennell/vocabreview/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		if config.IsHelp(err) {
			os.Exit(0)
		}
		slog.Error("Fatal error", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// 1. Define and parse command-line flags
	fs := pflag.NewFlagSet("vocabreview", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	addSource := fs.String("add-source", "", "Register a vocabulary source (directory or git URL) and exit")
	userID := fs.Int64("user", 1, "User that owns the source given with --add-source")
	syncOnce := fs.Bool("sync", false, "Sync all sources once and exit")

	cfg, err := config.Load(fs, args)
	if err != nil {
		return err
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// 2. Open the database
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Database opened", "path", cfg.DB)

	fsrsCfg, err := cfg.FSRS()
	if err != nil {
		return err
	}
	scheduler, err := fsrs.NewScheduler(fsrsCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer := sync.New(db, logger, cfg.Sync.ReposDir,
		sync.WithLocalRoot(cfg.Sync.LocalRoot),
		sync.WithLifetime(ctx),
	)

	// 3. One-shot commands
	if *addSource != "" {
		src, err := syncer.AddSource(ctx, *userID, *addSource)
		if err != nil {
			return err
		}
		fmt.Printf("Source %d added: %s (%s)\n", src.ID, src.Path, src.Type)
		return nil
	}
	if *syncOnce {
		reports, err := syncer.RunSync(ctx)
		for _, r := range reports {
			fmt.Printf("source %d: parsed %d, created %d, orphaned %d, errors %d\n",
				r.SourceID, r.Parsed, r.Created, r.Orphaned, r.Errors)
		}
		return err
	}

	// 4. Serve
	reviews := review.NewService(db, scheduler, logger, review.WithMaxRetries(cfg.Review.MaxRetries))
	reminders := reminder.NewService(db, reminder.LogNotifier{Logger: logger}, logger, reminder.Config{
		Interval: cfg.Reminder.Interval,
		MinGap:   cfg.Reminder.MinGap,
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewServer(db, reviews, syncer, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return syncLoop(ctx, logger, syncer, cfg.Sync.Interval)
	})
	g.Go(func() error {
		return reminders.Run(ctx)
	})
	return g.Wait()
}

// syncLoop syncs all sources at startup and then on every tick. Failures are
// logged and retried on the next tick.
func syncLoop(ctx context.Context, logger *slog.Logger, syncer *sync.Syncer, interval time.Duration) error {
	if interval <= 0 {
		logger.Info("Periodic sync disabled")
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := syncer.RunSync(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("Periodic sync failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
