package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/litianfu1997/openssh/internal/audit"
	"github.com/litianfu1997/openssh/internal/config"
	"github.com/litianfu1997/openssh/internal/crypto"
	"github.com/litianfu1997/openssh/internal/database"
	"github.com/litianfu1997/openssh/internal/events"
	"github.com/litianfu1997/openssh/internal/handlers"
	"github.com/litianfu1997/openssh/internal/hosts"
	"github.com/litianfu1997/openssh/internal/logging"
	"github.com/litianfu1997/openssh/internal/sftpcache"
	"github.com/litianfu1997/openssh/internal/shell"
	"github.com/litianfu1997/openssh/internal/sshconn"
	"github.com/litianfu1997/openssh/internal/transfer"
)

func main() {
	config.Load()
	logging.Init(config.Cfg.LogPath)
	defer logging.Shutdown()

	if err := database.Init(config.Cfg.DatabasePath); err != nil {
		log.Fatalf("Database init: %v", err)
	}
	defer database.Close()

	vault := crypto.NewVault(database.DB)
	store := hosts.NewStore(database.DB, vault)

	// Handle CLI commands before starting the server
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--import-hosts":
			if len(os.Args) < 3 {
				fmt.Fprintln(os.Stderr, "Usage: openssh --import-hosts <file.yaml>")
				os.Exit(1)
			}
			importHosts(store, os.Args[2])
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown argument %q\n", os.Args[1])
			os.Exit(1)
		}
	}

	sshOpts, err := sshconn.OptionsFromConfig(config.Cfg)
	if err != nil {
		log.Fatalf("Host key policy: %v", err)
	}
	log.Printf("Config: listen=%s host_key_policy=%s keepalive=%s/%d inactivity=%s",
		config.Cfg.ListenAddr, config.Cfg.HostKeyPolicy, config.Cfg.KeepaliveInterval,
		config.Cfg.KeepaliveMaxMissed, config.Cfg.InactivityTimeout)

	hub := events.NewHub()
	shells := shell.NewRegistry(store, shell.SSHOpener{Options: sshOpts}, hub, shell.OptionsFromConfig(config.Cfg))
	cache := sftpcache.New(store, sftpcache.OptionsFromConfig(config.Cfg, sshOpts))
	engine := transfer.New(transfer.FromCache(cache), hub, transfer.OptionsFromConfig(config.Cfg))

	auditor := audit.NewAuditor(database.DB, config.Cfg.AuditRetentionDays)
	shells.SetObserver(auditor.ShellObserver(store))
	engine.SetObserver(auditor.TransferObserver(store, cache.HostFor))

	m := &maintenance{cache: cache, auditor: auditor, now: time.Now}
	jobs, err := m.start()
	if err != nil {
		log.Fatalf("Maintenance jobs: %v", err)
	}

	api := &handlers.Server{
		DB:        database.DB,
		Hosts:     store,
		Shells:    shells,
		SFTP:      cache,
		Transfers: engine,
		Hub:       hub,
		Audit:     auditor,
		SSH:       sshOpts,
		APIToken:  config.Cfg.APIToken,
	}
	if api.APIToken == "" {
		log.Printf("WARNING: OPENSSH_API_TOKEN is not set; the API is unauthenticated")
	}

	// Graceful shutdown
	srv := &http.Server{
		Addr:    config.Cfg.ListenAddr,
		Handler: api.Routes(),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("Server starting on %s", config.Cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	<-jobs.Stop().Done()
	shells.CloseAll()
	cache.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func importHosts(store *hosts.Store, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("Open hosts file: %v", err)
	}
	defer f.Close()

	n, err := hosts.ImportYAML(context.Background(), store, f)
	if err != nil {
		log.Fatalf("Import hosts: %v", err)
	}
	fmt.Printf("Imported %d hosts from %s.\n", n, path)
}
