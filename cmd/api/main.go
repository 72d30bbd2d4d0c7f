package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"google.golang.org/grpc"

	"hrvault.org/internal/audit"
	"hrvault.org/internal/config"
	"hrvault.org/internal/devicetrust"
	"hrvault.org/internal/directory"
	"hrvault.org/internal/httpapi"
	"hrvault.org/internal/notify"
	"hrvault.org/internal/obs"
	"hrvault.org/internal/ratelimit"
	"hrvault.org/internal/records"
	"hrvault.org/internal/session"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("HRVAULT_COMMIT"))

	configPath := flag.String("config", os.Getenv("HRVAULT_CONFIG"), "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	codec, err := session.NewCodec(cfg.Session.Secret, session.WithTTL(cfg.Session.TTL))
	if err != nil {
		log.Fatalf("session codec: %v", err)
	}

	// Store selection: Postgres when configured, in-memory demo mode
	// otherwise.
	var (
		backing     directory.Store
		recordStore records.Store
		auditSink   audit.Sink = audit.LogSink{}
		notifier    notify.BulkNotifier
		deviceStore devicetrust.Store
	)
	if db != nil {
		backing = directory.NewPGStore(db)
		recordStore = records.NewPGStore(db)
		auditSink = audit.MultiSink{audit.NewPGSink(db), audit.LogSink{}}
		notifier = notify.NewPGNotifier(db)
		deviceStore = devicetrust.NewPGStore(db)
	} else {
		log.Println("no HRVAULT_PG_DSN configured, running with in-memory stores")
		backing = directory.NewInMemory()
		recordStore = records.NewInMemory()
		notifier = notify.NewMemoryNotifier()
		deviceStore = devicetrust.NewInMemoryStore()
	}

	accounts := directory.NewCache(backing, directory.WithCacheTTL(cfg.DirectoryTTL))
	recorder := audit.NewRecorder(auditSink)
	hub := notify.NewHub()
	devices := devicetrust.NewService(deviceStore, accounts, notifier, recorder, hub,
		devicetrust.WithRiskRecipients(cfg.RiskRecipients))

	limiter := ratelimit.New()
	stopJanitor := limiter.StartJanitor(time.Minute)
	defer stopJanitor()

	api := httpapi.New(httpapi.Options{
		Codec:        codec,
		Accounts:     accounts,
		Records:      recordStore,
		Devices:      devices,
		Limiter:      limiter,
		Recorder:     recorder,
		Hub:          hub,
		ReadyProbe:   httpapi.ReadyProbe{DB: db},
		Version:      version,
		CookieSecure: cfg.Session.CookieSecure,
		Limits:       cfg.RateLimits,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.Printf("Starting hrvault-api %s on %s", version, srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		httpapi.RegisterHealth(grpcSrv, httpapi.ReadyProbe{DB: db})
		log.Printf("Starting gRPC health on %s", cfg.Server.GRPCAddr)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
