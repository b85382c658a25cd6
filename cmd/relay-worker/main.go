// Package main provides the relay worker executable: dispatch loop,
// scheduled recovery sweeps and the ops HTTP endpoint.
package main

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	natsio "github.com/nats-io/nats.go"

	"github.com/coregx/relay"
	relaynats "github.com/coregx/relay/adapters/nats"
	"github.com/coregx/relay/adapters/relica"
	"github.com/coregx/relay/cmd/relay-worker/internal/api"
	"github.com/coregx/relay/cmd/relay-worker/internal/config"
	"github.com/coregx/relay/provider"
	"github.com/coregx/relay/retry"
)

// SimpleLogger implements relay.Logger for standard logging.
type SimpleLogger struct{}

func (l *SimpleLogger) Debugf(format string, args ...interface{}) {
	log.Printf("[DEBUG] "+format, args...)
}
func (l *SimpleLogger) Infof(format string, args ...interface{}) {
	log.Printf("[INFO] "+format, args...)
}
func (l *SimpleLogger) Warnf(format string, args ...interface{}) {
	log.Printf("[WARN] "+format, args...)
}
func (l *SimpleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
func (l *SimpleLogger) Info(message string) {
	log.Printf("[INFO] %s", message)
}

func main() {
	log.Println("Starting relay worker v0.1.0...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Configuration loaded:")
	log.Printf("   Server: %s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("   Database: %s (%s:%d)", cfg.Database.Driver, cfg.Database.Host, cfg.Database.Port)
	log.Printf("   Consumer: %s / %s", cfg.Worker.Group, cfg.Worker.Consumer)

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.GetDSN())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Printf("Failed to close database: %v", closeErr)
		}
	}()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	log.Println("Database connection established")

	logger := &SimpleLogger{}

	var repos *relica.Repositories
	if cfg.Database.Prefix != "" {
		repos = relica.NewRepositoriesWithPrefix(db, cfg.Database.Driver, cfg.Database.Prefix)
	} else {
		repos = relica.NewRepositories(db, cfg.Database.Driver)
	}
	log.Println("Repositories initialized (Relica adapters)")

	key, err := hex.DecodeString(cfg.Worker.EncryptionKey)
	if err != nil {
		log.Fatalf("RELAY_ENCRYPTION_KEY is not valid hex: %v", err)
	}
	cipher, err := provider.NewAESCipher(key)
	if err != nil {
		log.Fatalf("Failed to create credential cipher: %v", err)
	}

	registry := provider.NewRegistry()
	registry.Register("smtp", "email", provider.NewSMTPAdapter(cipher))
	registry.Register("httpsms", "sms", provider.NewSMSAdapter(cipher, nil))
	registry.Register("webhook", "webhook", provider.NewWebhookAdapter(cipher, nil))
	log.Printf("Provider registry ready (channels: %v)", registry.Channels())

	// Notification service: NATS when configured, log-only otherwise.
	var notifier relay.NotificationService = relay.NewLoggingNotificationService(logger)
	if cfg.NATS.URL != "" {
		nc, err := natsio.Connect(cfg.NATS.URL, natsio.MaxReconnects(cfg.NATS.MaxReconnects))
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		defer nc.Close()
		notifier, err = relaynats.NewNotifier(nc, cfg.NATS.SubjectPrefix)
		if err != nil {
			log.Fatalf("Failed to create NATS notifier: %v", err)
		}
		log.Printf("NATS notifications enabled (%s)", cfg.NATS.SubjectPrefix)
	}

	strategy := retry.Strategy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		ExponentialBase: 2.0,
	}

	publisher, err := relay.NewDedupPublisher(repos.Stream, logger,
		relay.WithDedupWindow(cfg.Worker.DedupWindow),
		relay.WithDedupLimits(cfg.Worker.DedupMaxMessages, cfg.Worker.DedupFallbackLimit),
	)
	if err != nil {
		log.Fatalf("Failed to create publisher: %v", err)
	}

	dispatcher, err := relay.NewDispatcher(
		relay.WithStores(repos.Message, repos.Association),
		relay.WithStream(repos.Stream),
		relay.WithRegistry(registry),
		relay.WithPublisher(publisher),
		relay.WithLogger(logger),
		relay.WithConsumer(cfg.Worker.Group, cfg.Worker.Consumer),
		relay.WithRetryStrategy(strategy),
		relay.WithReadBatch(cfg.Worker.ReadCount, cfg.Worker.BlockTimeout),
		relay.WithSendTimeout(cfg.Worker.SendTimeout),
		relay.WithNotifications(notifier),
	)
	if err != nil {
		log.Fatalf("Failed to create dispatcher: %v", err)
	}
	log.Println("Dispatcher created")

	recovery, err := relay.NewRecovery(
		relay.WithRecoveryStores(repos.Message, repos.Stream),
		relay.WithRecoveryDispatcher(dispatcher),
		relay.WithRecoveryPublisher(publisher),
		relay.WithRecoveryLogger(logger),
		relay.WithRecoveryConsumer(cfg.Worker.Group, cfg.Worker.Consumer),
		relay.WithRecoveryStrategy(strategy),
		relay.WithRecoveryTimings(cfg.Recovery.MinIdleTime, cfg.Recovery.OrphanGracePeriod,
			cfg.Recovery.OrphanMaxAge, cfg.Recovery.ProcessingTimeout),
		relay.WithRecoveryLimits(cfg.Recovery.MaxClaimCount, cfg.Recovery.RecoveryLimit),
		relay.WithRecoveryNotifications(notifier),
	)
	if err != nil {
		log.Fatalf("Failed to create recovery service: %v", err)
	}
	log.Println("Recovery service created")

	credentialManager, err := relay.NewCredentialManager(
		relay.WithCredentialRepositories(repos.Credential, repos.Association),
		relay.WithCredentialEncryptor(cipher),
		relay.WithCredentialLogger(logger),
	)
	if err != nil {
		log.Fatalf("Failed to create credential manager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Run(ctx)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler: %v", err)
	}
	if err := scheduleSweeps(ctx, scheduler, recovery, cfg, logger); err != nil {
		log.Fatalf("Failed to schedule recovery sweeps: %v", err)
	}
	scheduler.Start()
	log.Printf("Recovery sweeps scheduled (reclaim %v, orphan %v, stuck %v)",
		cfg.Recovery.ReclaimInterval, cfg.Recovery.OrphanInterval, cfg.Recovery.StuckInterval)

	handler := api.NewHandler(repos.Message, publisher, credentialManager, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		log.Printf("Scheduler forced to shutdown: %v", err)
	}

	cancel() // Stop dispatcher
	log.Println("Worker stopped gracefully")
}

// scheduleSweeps registers the three recovery sweeps as interval jobs.
// Sweep errors are logged, never fatal; the next tick retries.
func scheduleSweeps(ctx context.Context, scheduler gocron.Scheduler, recovery *relay.Recovery, cfg *config.Config, logger relay.Logger) error {
	if _, err := scheduler.NewJob(gocron.DurationJob(cfg.Recovery.ReclaimInterval), gocron.NewTask(func() {
		if _, err := recovery.ReclaimPending(ctx); err != nil {
			logger.Errorf("Pending reclaim sweep failed: %v", err)
		}
	})); err != nil {
		return err
	}

	if _, err := scheduler.NewJob(gocron.DurationJob(cfg.Recovery.OrphanInterval), gocron.NewTask(func() {
		if _, err := recovery.RecoverOrphaned(ctx); err != nil {
			logger.Errorf("Orphan recovery sweep failed: %v", err)
		}
	})); err != nil {
		return err
	}

	if _, err := scheduler.NewJob(gocron.DurationJob(cfg.Recovery.StuckInterval), gocron.NewTask(func() {
		if _, err := recovery.RecoverStuck(ctx); err != nil {
			logger.Errorf("Stuck recovery sweep failed: %v", err)
		}
	})); err != nil {
		return err
	}

	return nil
}
