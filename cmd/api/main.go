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
	"github.com/joho/godotenv"

	"auditgate.io/internal/httpapi"
	"auditgate.io/internal/obs"
	"auditgate.io/internal/portal"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Подключение к БД (если задан DSN); без DSN работаем на in-memory
	// хранилище — удобно для локальной разработки.
	var (
		db    *sql.DB
		store portal.Store
	)
	if dsn := os.Getenv("AUDITGATE_PG_DSN"); dsn != "" {
		var err error
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = portal.NewPGStore(db)
	} else {
		log.Println("AUDITGATE_PG_DSN is not set, using in-memory store")
		store = portal.NewMemory()
	}

	svc, err := portal.NewService(store)
	if err != nil {
		log.Fatalf("portal service: %v", err)
	}

	// HTTP API
	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, svc)

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting auditgate-api %s on %s", version, srv.Addr)

	// graceful shutdown
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
