// Command relayserver runs Relay's HTTP service: the pipeline, query, and
// ontology engine described in internal/relay, fronted by the REST surface
// in applications/httpapi.
package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/camdencbrown/relay/applications/httpapi"
	relaycrypto "github.com/camdencbrown/relay/infrastructure/crypto"
	"github.com/camdencbrown/relay/infrastructure/logging"
	"github.com/camdencbrown/relay/infrastructure/metrics"
	"github.com/camdencbrown/relay/internal/config"
	"github.com/camdencbrown/relay/internal/relay/blobwriter"
	"github.com/camdencbrown/relay/internal/relay/connectors"
	"github.com/camdencbrown/relay/internal/relay/metadata"
	"github.com/camdencbrown/relay/internal/relay/ontology"
	"github.com/camdencbrown/relay/internal/relay/pipeline"
	"github.com/camdencbrown/relay/internal/relay/query"
	"github.com/camdencbrown/relay/internal/relay/scheduler"
	"github.com/camdencbrown/relay/internal/relay/semantic"
	"github.com/camdencbrown/relay/internal/relay/service"
	"github.com/camdencbrown/relay/internal/relay/store"
	"github.com/camdencbrown/relay/system/platform/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.NewFromEnv("relayserver")

	st, closeStore := openStore(cfg, logger)
	defer closeStore()

	var cipher service.Cipher
	if cfg.EncryptionKey != "" {
		keyBytes, err := decodeEncryptionKey(cfg.EncryptionKey)
		if err != nil {
			log.Fatalf("invalid ENCRYPTION_KEY: %v", err)
		}
		c, err := relaycrypto.NewCipher(keyBytes)
		if err != nil {
			log.Fatalf("initialize cipher: %v", err)
		}
		cipher = c
	} else {
		log.Println("WARNING: ENCRYPTION_KEY not set; connection credentials cannot be stored")
	}

	backend := blobwriter.Backend(blobwriter.NewLocalBackend(cfg.LocalStoragePath))
	if cfg.StorageMode == config.StorageObject {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			log.Fatalf("load AWS config: %v", err)
		}
		backend = blobwriter.NewObjectStoreBackend(s3.NewFromConfig(awsCfg))
	}
	writer := blobwriter.NewWriter(backend)

	registry := connectors.NewRegistry(st, cipher)
	metadataGen := metadata.New(st)
	pipelines := pipeline.New(st, registry, writer, metadataGen, logger)
	pipelines.FetchTimeout = cfg.FetchTimeout

	queryEngine := query.New(st)
	queryEngine.Timeout = cfg.SQLTimeout
	pipelines.Queries = queryEngine
	semanticEngine := semantic.New(st, queryEngine, cfg.LLMAPIKey)
	ontologyMgr := ontology.New(st, cfg.LLMAPIKey, cfg.RequireAuth)
	sched := scheduler.New(st, pipelines, logger)

	svc := service.New(st, registry, writer, pipelines, metadataGen, queryEngine, ontologyMgr, semanticEngine, sched, cipher, logger,
		service.WithRequireAuth(cfg.RequireAuth),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sched.Start(ctx)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New("relayserver")
	}
	router := httpapi.NewRouter(svc, logger, cfg.RequireAuth, m, cfg.CORSAllowedOrigins)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("relayserver listening on %s (auth_required=%v, storage_mode=%s)", srv.Addr, cfg.RequireAuth, cfg.StorageMode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// openStore opens a Postgres-backed store when DATABASE_URL is configured,
// applying embedded migrations first, or falls back to the in-memory store
// for local/no-DSN operation.
func openStore(cfg *config.Config, logger *logging.Logger) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn(context.Background(), "DATABASE_URL not set; using in-memory store", nil)
		return store.NewMemory(), func() {}
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.DBMaxConnections)
	db.SetConnMaxIdleTime(cfg.DBIdleTimeout)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("ping database: %v", err)
	}

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelMigrate()
	if err := migrations.Apply(migrateCtx, db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	return store.NewPostgres(db), func() { _ = db.Close() }
}

// decodeEncryptionKey accepts base64, hex, or raw 32-byte key material.
func decodeEncryptionKey(value string) ([]byte, error) {
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	if decoded, err := hex.DecodeString(value); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	if raw := []byte(value); len(raw) == 32 {
		return raw, nil
	}
	return nil, fmt.Errorf("expected a 32-byte key (base64, hex, or raw)")
}
