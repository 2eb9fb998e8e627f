package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/api"
	"github.com/persistorai/auditledger/internal/cache"
	"github.com/persistorai/auditledger/internal/config"
	"github.com/persistorai/auditledger/internal/crypto"
	"github.com/persistorai/auditledger/internal/db"
	"github.com/persistorai/auditledger/internal/dbpool"
	"github.com/persistorai/auditledger/internal/ledger"
	"github.com/persistorai/auditledger/internal/middleware"
	"github.com/persistorai/auditledger/internal/service"
	"github.com/persistorai/auditledger/internal/sink"
	"github.com/persistorai/auditledger/internal/store"
)

// bootstrapPrincipal owns the API key given through API_KEY.
const bootstrapPrincipal = "bootstrap"

func newKeyProvider(cfg *config.Config) (crypto.KeyProvider, error) {
	if cfg.SigningProvider == "vault" {
		return crypto.NewVaultProvider(cfg.VaultAddr, cfg.VaultToken, cfg.VaultMount), nil
	}

	keys, err := crypto.NewStaticProvider(cfg.SigningKey.Value())
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}

	return keys, nil
}

func newSigner(cfg *config.Config) (*crypto.Signer, error) {
	keys, err := newKeyProvider(cfg)
	if err != nil {
		return nil, err
	}

	return crypto.NewSigner(keys), nil
}

// persistence is the database side of the server, empty for an in-memory ledger.
type persistence struct {
	pool          *dbpool.Pool
	keys          *store.KeyStore
	ledgerOptions []ledger.Option
	checks        []api.ReadinessCheck
	restored      bool
}

func openPersistence(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*persistence, error) {
	if !cfg.Persistent() {
		log.Warn("DATABASE_URL not set, ledger is held in memory only")
		return &persistence{}, nil
	}

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), dbpool.Options{
		MaxConns:         int32(cfg.DBMaxConns), //nolint:gosec // bounded by config validation.
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		return nil, err
	}
	prometheus.MustRegister(dbpool.NewStatsCollector(pool))

	if err := db.Migrate(ctx, pool, log); err != nil {
		pool.Close()
		return nil, err
	}

	base := store.Base{Pool: pool, Log: log}
	if cfg.EncryptDetails {
		keys, err := newKeyProvider(cfg)
		if err != nil {
			pool.Close()
			return nil, err
		}
		base.Crypto = crypto.NewService(keys)
	}

	blocks := store.NewBlockStore(base)
	keyStore := store.NewKeyStore(base)

	if cfg.APIKey.Value() != "" {
		if err := keyStore.EnsureKey(ctx, cfg.APIKey.Value(), bootstrapPrincipal); err != nil {
			pool.Close()
			return nil, err
		}
	}

	chain, pending, err := blocks.LoadChain(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}

	p := &persistence{
		pool:          pool,
		keys:          keyStore,
		ledgerOptions: []ledger.Option{ledger.WithPersister(blocks)},
		checks:        []api.ReadinessCheck{{Name: "database", Checker: pool}},
	}

	if len(chain) > 0 {
		p.ledgerOptions = append(p.ledgerOptions, ledger.WithRestore(chain, pending))
		p.restored = true
	}

	return p, nil
}

// principals returns the API key lookup: the key table when persistent,
// otherwise the single bootstrap key.
func (p *persistence) principals(cfg *config.Config) middleware.PrincipalLookup {
	if p.keys != nil {
		return p.keys
	}

	keys := middleware.StaticKeys{}
	if k := cfg.APIKey.Value(); k != "" {
		keys[k] = bootstrapPrincipal
	}

	return keys
}

func (p *persistence) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// buildSinks creates every configured export sink. A sink that cannot be
// created is logged and skipped; the ledger runs without it.
func buildSinks(ctx context.Context, cfg *config.Config, log *logrus.Logger) []service.Sink {
	var sinks []service.Sink

	if cfg.OpenSearchURL != "" {
		idx, err := sink.NewOpenSearchIndexer(cfg.OpenSearchURL, log)
		if err == nil {
			err = idx.EnsureIndex(ctx)
		}

		if err != nil {
			log.WithError(err).Error("sink.opensearch_disabled")
		} else {
			sinks = append(sinks, idx)
		}
	}

	if cfg.ArchiveBucket != "" {
		arc, err := sink.NewArchiver(sink.ArchiveConfig{
			Bucket:          cfg.ArchiveBucket,
			Endpoint:        cfg.ArchiveEndpoint,
			Region:          cfg.ArchiveRegion,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey.Value(),
		}, log)
		if err != nil {
			log.WithError(err).Error("sink.archive_disabled")
		} else {
			sinks = append(sinks, arc)
		}
	}

	for _, s := range sinks {
		log.WithField("sink", s.Name()).Info("sink.enabled")
	}

	return sinks
}

// openCache connects the verification report cache when REDIS_URL is set.
// Redis is optional: when it is unreachable verification runs uncached.
func openCache(ctx context.Context, cfg *config.Config, log *logrus.Logger) (service.ReportCache, []api.ReadinessCheck) {
	if cfg.RedisURL.Value() == "" {
		return nil, nil
	}

	c, err := cache.Dial(ctx, cfg.RedisURL.Value(), cfg.VerifyCacheTTL, log)
	if err != nil {
		log.WithError(err).Warn("cache.disabled")
		return nil, nil
	}

	return c, []api.ReadinessCheck{{Name: "cache", Checker: c, Optional: true}}
}
