// Package relay provides the asynchronous delivery worker of a multi-tenant
// notification relay: a consumer-group stream processor that picks up queued
// messages, resolves the tenant's provider for the channel, invokes the
// provider adapter and drives every message to a terminal status.
//
// Works both as a library for embedding in your application AND as a
// standalone worker process (cmd/relay-worker).
//
// # Features
//
//   - Consumer-group dispatch loop: each stream entry is claimed by exactly
//     one worker; retries are new delayed entries, never replays
//   - Exponential Backoff: 30s → 1m → 2m → 4m → 8m (capped at 30m)
//   - Persist-before-ack: status transitions hit the store before the stream
//     entry is acknowledged, so a crash causes redelivery, never loss
//   - At-least-once delivery with a terminal-status idempotency guard
//   - Pluggable provider adapters (SMTP email, SMS, webhooks) behind a
//     registry keyed by provider type and channel
//   - Encrypted tenant credentials (AES-256-GCM), decrypted only at send time
//   - Windowed best-effort duplicate suppression on publish
//   - Three recovery sweepers: pending reclaimer, orphaned-event recoverer,
//     stuck-processing recoverer
//   - Options Pattern for service construction
//   - Pluggable Logger and NotificationService (NATS adapter included)
//   - Multi-Database Support: MySQL, PostgreSQL, SQLite via Relica adapters
//   - Embedded Migrations for easy database setup
//
// # Quick Start
//
// Apply the embedded migrations with your preferred tool, then wire the
// Relica adapters:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/relay"
//	    "github.com/coregx/relay/adapters/relica"
//	    "github.com/coregx/relay/provider"
//	    _ "github.com/go-sql-driver/mysql"
//	)
//
//	db, _ := sql.Open("mysql", "user:pass@tcp(localhost:3306)/relay?parseTime=true")
//	repos := relica.NewRepositories(db, "mysql")
//
//	registry := provider.NewRegistry()
//	registry.Register("smtp", model.ChannelEmail, provider.NewSMTPAdapter(cipher))
//
//	publisher, _ := relay.NewDedupPublisher(repos.Stream, logger)
//	dispatcher, _ := relay.NewDispatcher(
//	    relay.WithStores(repos.Message, repos.Association),
//	    relay.WithStream(repos.Stream),
//	    relay.WithRegistry(registry),
//	    relay.WithPublisher(publisher),
//	    relay.WithLogger(logger),
//	    relay.WithConsumer("relay-workers", "worker-1"),
//	)
//
//	go dispatcher.Run(ctx)
//
// Schedule the recovery sweeps alongside the dispatch loop:
//
//	recovery, _ := relay.NewRecovery(
//	    relay.WithRecoveryStores(repos.Message, repos.Stream),
//	    relay.WithRecoveryDispatcher(dispatcher),
//	    relay.WithRecoveryPublisher(publisher),
//	    relay.WithRecoveryLogger(logger),
//	    relay.WithRecoveryConsumer("relay-workers", "worker-1"),
//	)
//
// Messages enter the system through the publisher and a message row:
//
//	msg := model.NewMessage(uuid.NewString(), projectID, model.ChannelEmail, "user@example.com", payload)
//	_ = repos.Message.Create(ctx, &msg)
//	_, _ = publisher.Publish(ctx, msg.ID, 0)
//
// See cmd/relay-worker for the full standalone wiring including scheduled
// recovery sweeps, the ops HTTP endpoint and ENV-based configuration.
package relay
