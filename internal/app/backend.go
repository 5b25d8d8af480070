package app

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/gallery-checkout/internal/domain/auth"
	"github.com/xenking/gallery-checkout/internal/domain/cart"
	"github.com/xenking/gallery-checkout/internal/domain/catalog"
	"github.com/xenking/gallery-checkout/internal/domain/order"
	"github.com/xenking/gallery-checkout/internal/outbox"
	"github.com/xenking/gallery-checkout/internal/storage/memory"
	"github.com/xenking/gallery-checkout/internal/storage/postgres"
	rediscache "github.com/xenking/gallery-checkout/internal/storage/redis"
	"github.com/xenking/gallery-checkout/pkg/health"
)

// backend bundles the stores the application runs on.
type backend struct {
	carts   cart.Repository
	catalog catalog.Reader
	uow     order.UnitOfWork
	ledger  order.Ledger
	outbox  outbox.Store
	close   func()
}

func openBackend(ctx context.Context, lg *zap.Logger, cfg *Config, hs *health.Health) (*backend, error) {
	if cfg.DemoMode() {
		lg.Warn("No database configured, serving the in-memory demo gallery")
		st := memory.NewDemoStore()
		return &backend{
			carts:   st,
			catalog: st,
			uow:     st,
			ledger:  st,
			outbox:  st,
			close:   func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	hs.Register(health.Readiness, "postgres", health.PingCheck("postgres", pool.Ping),
		health.WithTimeout(5*time.Second),
	)

	return &backend{
		carts:   postgres.NewCartRepository(pool),
		catalog: postgres.NewCatalogRepository(pool),
		uow:     postgres.NewUnitOfWork(pool),
		ledger:  postgres.NewOrderRepository(pool),
		outbox:  postgres.NewOutboxRepository(pool),
		close:   pool.Close,
	}, nil
}

// openCache connects the cart view cache. A nil cache disables caching. An
// unreachable server at startup is not fatal: cache errors fall back to the
// database on every read.
func openCache(ctx context.Context, lg *zap.Logger, cfg RedisConfig) (cart.ViewCache, func(), error) {
	if cfg.Addr == "" {
		return nil, func() {}, nil
	}

	var opts *redis.Options
	if strings.Contains(cfg.Addr, "://") {
		parsed, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parse redis url")
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Addr, Password: cfg.Password}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		lg.Warn("Redis unreachable, cart views will not be cached until it recovers", zap.Error(err))
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			lg.Warn("Redis close failed", zap.Error(err))
		}
	}
	return rediscache.NewCartCache(client, cfg.TTL), closeFn, nil
}

// newTokens builds the bearer token verifier. Without a configured secret
// (demo mode only) a random one is generated and tokens for the demo visitor
// and administrator are logged.
func newTokens(lg *zap.Logger, cfg *Config) (*auth.Tokens, error) {
	if cfg.JWT.Secret != "" {
		return auth.NewTokens([]byte(cfg.JWT.Secret), cfg.JWT.AdminEmail), nil
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, errors.Wrap(err, "generate jwt secret")
	}
	tokens := auth.NewTokens(secret, cfg.JWT.AdminEmail)
	for _, id := range []auth.Identity{
		{UserID: memory.DemoVisitorID, Role: auth.RoleVisitor, Email: "visitor@gallery.local"},
		{UserID: memory.DemoAdminID, Role: auth.RoleAdmin, Email: "admin@gallery.local"},
	} {
		raw, err := tokens.Issue(id, 24*time.Hour)
		if err != nil {
			return nil, errors.Wrap(err, "issue demo token")
		}
		lg.Info("Demo token", zap.String("role", string(id.Role)), zap.String("token", raw))
	}
	return tokens, nil
}
