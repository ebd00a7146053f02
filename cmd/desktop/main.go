// The desktop server embeds the whole sync core behind a localhost REST
// and WebSocket surface for the dashboard shell.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openbursar/feesync/cmd/desktop/handlers"
	"github.com/openbursar/feesync/internal/anchor"
	"github.com/openbursar/feesync/internal/config"
	"github.com/openbursar/feesync/internal/connectivity"
	"github.com/openbursar/feesync/internal/db"
	"github.com/openbursar/feesync/internal/logging"
	syncengine "github.com/openbursar/feesync/internal/sync"
	"github.com/openbursar/feesync/internal/sync/conflict"
	"github.com/openbursar/feesync/internal/sync/outbox"
	"github.com/openbursar/feesync/internal/sync/scheduler"
)

func main() {
	cfg := config.Load()
	logging.Init(os.Stdout, logging.ParseLevel(cfg.LogLevel))
	log := logging.Get()

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		log.Error("failed to open database", err)
		os.Exit(1)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Up(); err != nil {
		log.Error("migration failed", err)
		os.Exit(1)
	}

	store := db.NewStore(database.DB)
	defer store.Close()

	monitor := connectivity.NewMonitor(cfg.DebounceWindow)
	queue := outbox.NewManager(store)
	resolver := conflict.NewResolver(store, queue)
	remote := syncengine.NewHTTPRemote(cfg.RemoteBaseURL, cfg.RequestTimeout)
	notifier := anchor.NewNotifier(cfg.AnchorURL, cfg.RequestTimeout)

	var anchorSink syncengine.AnchorNotifier
	if notifier != nil {
		anchorSink = notifier
	}
	engine := syncengine.NewEngine(store, queue, remote, resolver, monitor, anchorSink,
		syncengine.Options{GraceWindow: cfg.GraceWindow})

	if err := engine.Recover(); err != nil {
		log.Error("failed to recover in-flight queue items", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(engine, monitor, cfg.SyncInterval)
	sched.Start(ctx)
	defer sched.Stop()

	hub := NewWSHub()
	go hub.RelaySyncEvents(engine.Subscribe())
	go hub.RelayConnectivity(monitor.Subscribe())

	mux := http.NewServeMux()
	registerRoutes(mux, hub, store, engine, sched, queue, monitor, cfg)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("desktop server listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", err)
	}
}

func registerRoutes(mux *http.ServeMux, hub *WSHub, store *db.Store,
	engine *syncengine.Engine, sched *scheduler.Scheduler,
	queue *outbox.Manager, monitor *connectivity.Monitor, cfg *config.Config) {

	syncH := handlers.NewSyncHandler(engine, sched, queue, monitor)
	entityH := handlers.NewEntityHandler(store, sched, cfg.MaxAttempts)
	exportH := handlers.NewExportHandler(store)

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"feesync-desktop"}`))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", HandleWebSocket(hub))

	mux.HandleFunc("GET /api/sync/status", syncH.Status)
	mux.HandleFunc("POST /api/sync/now", syncH.SyncNow)
	mux.HandleFunc("GET /api/sync/queue", syncH.Queue)
	mux.HandleFunc("POST /api/sync/retry", syncH.Retry)
	mux.HandleFunc("GET /api/sync/conflicts", syncH.Conflicts)
	mux.HandleFunc("POST /api/sync/conflicts/{id}/resolve", syncH.Resolve)
	mux.HandleFunc("POST /api/sync/connectivity", syncH.Connectivity)

	mux.HandleFunc("POST /api/entities/{type}", entityH.Put)
	mux.HandleFunc("DELETE /api/entities/{type}/{id}", entityH.Delete)
	mux.HandleFunc("GET /api/dashboard", entityH.Dashboard)
	mux.HandleFunc("GET /api/dashboard/arrears", entityH.Arrears)
	mux.HandleFunc("GET /api/students", entityH.Students)
	mux.HandleFunc("GET /api/students/{id}/payments", entityH.StudentPayments)
	mux.HandleFunc("GET /api/fees", entityH.FeeStructures)
	mux.HandleFunc("GET /api/fees/{id}", entityH.FeeStructure)
	mux.HandleFunc("GET /api/schools/{id}", entityH.School)
	mux.HandleFunc("GET /api/users/{id}", entityH.User)
	mux.HandleFunc("GET /api/audit", entityH.AuditLogs)

	mux.HandleFunc("POST /api/export", exportH.Export)
	mux.HandleFunc("POST /api/import", exportH.Import)
}
