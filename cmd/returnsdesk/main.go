package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	httpserver "returnsdesk/infrastructure/http"
	"returnsdesk/infrastructure/sqlite"
	"returnsdesk/infrastructure/storage"
	"returnsdesk/upload"
)

func main() {
	_ = godotenv.Load()

	addr := getenv("APP_ADDR", ":8080")
	dbPath := getenv("SQLITE_PATH", "returnsdesk.db")
	baseURL := getenv("APP_BASE_URL", "http://localhost:8080")

	db, err := sqlite.OpenDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := sqlite.ApplyMigrations(context.Background(), db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	store, filesRoot, err := buildStore(baseURL)
	if err != nil {
		log.Fatalf("init storage: %v", err)
	}

	server := httpserver.NewServer(addr, db, store, upload.DefaultConfig(), filesRoot)
	if err := server.Start(); err != nil {
		log.Fatalf("start server: %v", err)
	}
	log.Printf("returnsdesk listening on %s", addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	if err := server.Stop(); err != nil {
		log.Printf("graceful shutdown error: %v", err)
	}
}

// buildStore picks the object-store backend. The disk store is the
// default; set STORAGE_BACKEND=remote to put against a blob gateway.
func buildStore(baseURL string) (storage.Store, string, error) {
	switch getenv("STORAGE_BACKEND", "disk") {
	case "remote":
		store, err := storage.NewRemoteStore(storage.RemoteConfig{
			BaseURL:    os.Getenv("STORAGE_GATEWAY_URL"),
			PublicBase: os.Getenv("STORAGE_PUBLIC_URL"),
			Token:      os.Getenv("STORAGE_GATEWAY_TOKEN"),
		})
		return store, "", err
	default:
		root := getenv("STORAGE_ROOT", "uploads")
		store, err := storage.NewDiskStore(root, baseURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.Root(), nil
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
