// Command server runs the evidence ledger API: receipt ingestion,
// verification, chain traversal, trust sync, and the retention background
// pass. main wires dependencies and owns the process lifecycle; business
// logic lives in the internal packages.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"ledgerd/internal/chain"
	"ledgerd/internal/dlq"
	"ledgerd/internal/ingest"
	ingesthandler "ledgerd/internal/ingest/handler"
	ingestmetrics "ledgerd/internal/ingest/metrics"
	jwttoken "ledgerd/internal/jwt_token"
	"ledgerd/internal/ledger"
	"ledgerd/internal/ledger/segment"
	ledgerstore "ledgerd/internal/ledger/store"
	"ledgerd/internal/platform/config"
	"ledgerd/internal/platform/httpserver"
	"ledgerd/internal/platform/logger"
	platformredis "ledgerd/internal/platform/redis"
	"ledgerd/internal/policy"
	policyhandler "ledgerd/internal/policy/handler"
	"ledgerd/internal/ratelimit"
	"ledgerd/internal/retention"
	retentionmetrics "ledgerd/internal/retention/metrics"
	"ledgerd/internal/tenant"
	tenanthandler "ledgerd/internal/tenant/handler"
	tenantmetrics "ledgerd/internal/tenant/metrics"
	tenantmodels "ledgerd/internal/tenant/models"
	tenantstore "ledgerd/internal/tenant/store"
	"ledgerd/internal/trust"
	trusthandler "ledgerd/internal/trust/handler"
	"ledgerd/internal/trust/verifier"
	httptransport "ledgerd/internal/transport/http"
	audit "ledgerd/pkg/platform/audit"
	"ledgerd/pkg/platform/audit/publisher"
	auditkafka "ledgerd/pkg/platform/audit/store/kafka"
	auditmemory "ledgerd/pkg/platform/audit/store/memory"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	trustStore := trust.NewStore(anchorKey(cfg, log))
	if err := seedTrustKeys(trustStore, cfg.TrustKeysFile); err != nil {
		log.Error("trust key seeding failed", "file", cfg.TrustKeysFile, "error", err)
		os.Exit(1)
	}

	db, dbCleanup, err := openDatabase(cfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer dbCleanup()

	index := newIndex(db)
	segments := segment.NewWriter(cfg.LedgerDir)

	auditSink, kafkaCleanup := newAuditSink(cfg, log)
	defer kafkaCleanup()
	auditPub := publisher.NewPublisher(auditSink, publisher.WithAsyncBuffer(256), publisher.WithLogger(log))
	defer auditPub.Close()

	governance, err := newGovernance(cfg, db, index, auditPub, log)
	if err != nil {
		log.Error("governance init failed", "error", err)
		os.Exit(1)
	}

	deadLetters, redisCleanup, err := newDeadLetterStore(cfg, governance)
	if err != nil {
		log.Error("dlq init failed", "error", err)
		os.Exit(1)
	}
	defer redisCleanup()

	service := ingest.NewService(
		trustStore,
		index,
		segment.ActorAppender{W: segments},
		deadLetters,
		auditPub,
		log,
		ingestmetrics.New(),
	)

	limiter := ratelimit.NewSlidingWindow(cfg.VerifyRangeLimit, cfg.VerifyRangeWindow)
	chains := chain.New(index)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "ledgerd", "evidence-api")

	var policyHandler *policyhandler.Handler
	if cfg.RegistryURL != "" {
		snapshots := policy.NewCache(
			policy.NewHTTPRegistryClient(cfg.RegistryURL, &http.Client{Timeout: cfg.RegistryTimeout}),
			verifier.New(trustStore),
			log,
			cfg.RegistryTimeout,
		)
		policyHandler = policyhandler.New(snapshots, log)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Ingest:    ingesthandler.New(service, chains, limiter, log),
		Trust:     trusthandler.New(trustStore, log),
		Tenant:    tenanthandler.New(governance, log),
		Policy:    policyHandler,
		Validator: jwttoken.NewJWTServiceAdapter(jwtService),
		Logger:    log,
	})

	retentionEngine := retention.NewEngine(
		index,
		governance,
		cfg.RetentionInterval,
		auditPub,
		log,
		retentionmetrics.New(),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go retentionEngine.Run(rootCtx)

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("starting ledgerd", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// anchorKey loads the CRL anchor from config, or generates an ephemeral one
// for development so the process can still start.
func anchorKey(cfg config.Server, log *slog.Logger) ed25519.PublicKey {
	if cfg.TrustAnchorKey != "" {
		raw, err := base64.StdEncoding.DecodeString(cfg.TrustAnchorKey)
		if err == nil && len(raw) == ed25519.PublicKeySize {
			return ed25519.PublicKey(raw)
		}
		log.Warn("invalid trust anchor key, generating ephemeral anchor")
	} else {
		log.Warn("no trust anchor configured, generating ephemeral anchor")
	}
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	return pub
}

// seedTrustKeys installs the anchor-signed key set from a JSON file so
// producers signed under existing keys verify immediately after a restart.
// The document's signature is checked against the anchor before any key is
// accepted.
func seedTrustKeys(store *trust.Store, path string) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var keyset trust.KeySet
	if err := json.Unmarshal(raw, &keyset); err != nil {
		return err
	}
	if len(keyset.Keys) == 0 {
		return nil
	}
	return store.ReplaceKeySet(keyset)
}

// openDatabase connects to Postgres when configured; a nil DB selects the
// in-memory stores.
func openDatabase(cfg config.Server) (*sql.DB, func(), error) {
	if cfg.PostgresURL == "" {
		return nil, func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, func() { db.Close() }, nil
}

func newIndex(db *sql.DB) ledger.Store {
	if db == nil {
		return ledgerstore.NewMemory()
	}
	return ledgerstore.NewPostgres(db)
}

// newGovernance builds the tenant policy service, seeds legal holds from
// config, and loads the snapshot.
func newGovernance(cfg config.Server, db *sql.DB, index ledger.Store, auditPub *publisher.Publisher, log *slog.Logger) (*tenant.Service, error) {
	var st tenantstore.Store = tenantstore.NewMemory()
	if db != nil {
		st = tenantstore.NewPostgres(db)
	}
	governance := tenant.NewService(st, index, tenant.Defaults{
		Retention: retention.TenantPolicy{
			MaxAgeDays:      cfg.RetentionMaxAgeDays,
			ExpireAfterDays: cfg.RetentionExpireDays,
		},
		DLQRetention: cfg.DLQRetention,
	}, auditPub, log, tenantmetrics.New())

	ctx := context.Background()
	if err := governance.Load(ctx); err != nil {
		return nil, err
	}
	for _, tenantID := range cfg.LegalHoldTenants {
		if governance.LegalHold(tenantID) {
			continue
		}
		record, err := tenantmodels.New(tenantID, "", time.Now().UTC())
		if err != nil {
			return nil, err
		}
		record.LegalHold = true
		if err := governance.Upsert(ctx, *record); err != nil {
			return nil, err
		}
	}
	return governance, nil
}

func newDeadLetterStore(cfg config.Server, retentionPolicy dlq.RetentionPolicy) (dlq.Store, func(), error) {
	client, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return dlq.NewMemory(retentionPolicy), func() {}, nil
	}
	return dlq.NewRedis(client, retentionPolicy), func() { client.Close() }, nil
}

func newAuditSink(cfg config.Server, log *slog.Logger) (audit.Store, func()) {
	memory := auditmemory.NewInMemoryStore()
	if len(cfg.KafkaBrokers) == 0 {
		return memory, func() {}
	}
	sink, err := auditkafka.Dial(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Warn("kafka unavailable, audit events stay local", "error", err)
		return memory, func() {}
	}
	return audit.Fanout(memory, sink), func() { sink.Close() }
}
