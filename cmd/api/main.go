package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contractdesk.org/internal/authz"
	"contractdesk.org/internal/httpapi"
	"contractdesk.org/internal/obs"
	"contractdesk.org/internal/store/pg"
	"contractdesk.org/internal/stream"
	"contractdesk.org/internal/workflow"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("CONTRACTDESK_PG_DSN")
	if dsn == "" {
		log.Fatal("CONTRACTDESK_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	resolver, err := authz.NewResolver(store)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	guard, err := authz.NewGuard(resolver)
	if err != nil {
		log.Fatalf("guard: %v", err)
	}
	svc, err := authz.NewService(store, resolver)
	if err != nil {
		log.Fatalf("authz service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.EnsureBuiltins(ctx); err != nil {
		cancel()
		log.Fatalf("ensure builtin permissions: %v", err)
	}
	cancel()

	registry, err := workflow.NewDefaultRegistry()
	if err != nil {
		log.Fatalf("workflow registry: %v", err)
	}
	events := stream.New()
	engine, err := workflow.NewEngine(registry, guard, store, workflow.WithStream(events))
	if err != nil {
		log.Fatalf("workflow engine: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, svc, guard, engine, events)

	addr := os.Getenv("CONTRACTDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting contractdesk-api %s on %s", version, addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("shutting down")
	obs.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("stopped")
}
