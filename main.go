package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/korjavin/studyquizbot/ai"
	"github.com/korjavin/studyquizbot/bot"
	"github.com/korjavin/studyquizbot/config"
	"github.com/korjavin/studyquizbot/database"
	"github.com/korjavin/studyquizbot/server"
)

func main() {
	// Configure logging
	log.SetOutput(os.Stdout)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Starting StudyQuizBot...")

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.Default()
	switch cfg.Mode {
	case config.ModeServer:
		err = runServer(ctx, cfg, logger)
	default:
		err = runBot(ctx, cfg, logger)
	}
	if err != nil {
		log.Fatalf("Exited with error: %v", err)
	}
	log.Println("Shutdown complete")
}

func runBot(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	b, err := bot.New(cfg, logger)
	if err != nil {
		return err
	}
	log.Println("Bot initialized successfully")
	b.Start(ctx)
	return nil
}

func runServer(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Printf("Quiz cache opened at %s", cfg.DatabasePath)

	purger, err := database.StartPurger(db, cfg.PurgeSchedule, cfg.CacheTTL, logger)
	if err != nil {
		return err
	}
	defer purger.Stop()

	deepseek := ai.NewDeepseekClient(cfg.DeepseekAPIKey,
		ai.WithAPIURL(cfg.DeepseekAPIURL),
		ai.WithModel(cfg.DeepseekModel),
		ai.WithLogger(logger),
	)
	srv := server.New(deepseek, server.WithCache(db), server.WithLogger(logger))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Routes(cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on %s", cfg.HTTPAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
