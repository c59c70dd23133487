package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osintlab/casedesk/internal/server"
	"github.com/osintlab/casedesk/internal/store"
)

func main() {
	listenAddr := flag.String("listen", envOr("CASEDESK_LISTEN", ":8080"), "HTTP listen address")
	dbPath := flag.String("db", envOr("CASEDESK_DB_PATH", "./casedesk.db"), "SQLite database path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	db, err := store.NewSQLiteStore(ctx, *dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	cfg := server.Config{
		ListenAddr:     *listenAddr,
		DBPath:         *dbPath,
		SendGridKey:    os.Getenv("CASEDESK_SENDGRID_KEY"),
		AlertFromEmail: envOr("CASEDESK_ALERT_FROM", "alerts@casedesk.local"),
		AlertFromName:  envOr("CASEDESK_ALERT_FROM_NAME", "Case Desk"),
		AlertToEmail:   os.Getenv("CASEDESK_ALERT_TO"),
		SandboxMode:    os.Getenv("CASEDESK_SENDGRID_SANDBOX") == "1",
	}

	srv := server.NewServer(cfg, db, logger)

	httpSrv := &http.Server{
		Addr:    *listenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("Listening on %s", *listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
