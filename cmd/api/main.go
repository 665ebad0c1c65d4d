package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fieldgrid.org/internal/auth"
	"fieldgrid.org/internal/config"
	"fieldgrid.org/internal/directory"
	"fieldgrid.org/internal/dispatch"
	"fieldgrid.org/internal/httpapi"
	"fieldgrid.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// With a DSN the stores run on PostgreSQL; without one everything lives
	// in memory, which is enough for development and the mobile-client demo.
	var (
		db    *sql.DB
		users directory.UserStore
		grids directory.GridStore
		tasks dispatch.Store
	)
	if cfg.Database.DSN != "" {
		db, err = sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)

		users = directory.NewPGUsers(db)
		grids = directory.NewPGGrids(db)
		tasks = dispatch.NewPG(db)
	} else {
		users = directory.NewInMemoryUsers()
		grids = directory.NewInMemoryGrids()
		tasks = dispatch.NewInMemory()
	}

	authz := auth.NewAuthorizer()

	dir, err := directory.NewService(users, grids, authz, directory.WithTaskGuard(tasks))
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}

	cache := auth.NewMemoryCache()
	defer cache.Close()

	tokens, err := auth.NewTokenStore(cache, dir,
		auth.WithAccessTTL(cfg.Auth.AccessTTL),
		auth.WithRefreshTTL(cfg.Auth.RefreshTTL),
	)
	if err != nil {
		log.Fatalf("token store: %v", err)
	}

	disp, err := dispatch.NewService(tasks, users, grids, authz)
	if err != nil {
		log.Fatalf("dispatch service: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, tokens, dir, disp,
		httpapi.WithRateLimit(cfg.Rate.Burst, cfg.Rate.PerSecond),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting fieldgrid-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
