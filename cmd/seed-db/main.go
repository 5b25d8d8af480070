package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/gallery-checkout/internal/domain/auth"
	"github.com/xenking/gallery-checkout/internal/domain/catalog"
	"github.com/xenking/gallery-checkout/internal/storage/postgres"
)

type seedFile struct {
	Users    []userJSON    `json:"users"`
	Artworks []artworkJSON `json:"artworks"`
}

type userJSON struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Inactive bool   `json:"inactive"`
}

type artworkJSON struct {
	ID       int64           `json:"id"`
	Seller   string          `json:"seller"`
	Title    string          `json:"title"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl"`
	Status   string          `json:"status"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
		jwtSecret   string
		adminEmail  string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/gallery.json", "path to users and artworks JSON file")
	flag.StringVar(&jwtSecret, "jwt-secret", "", "HS256 secret for printed dev tokens (or GALLERY_JWT_SECRET env)")
	flag.StringVar(&adminEmail, "admin-email", "", "configured administrator email (or GALLERY_JWT_ADMIN_EMAIL env)")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of printed dev tokens")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if jwtSecret == "" {
		jwtSecret = os.Getenv("GALLERY_JWT_SECRET")
	}
	if adminEmail == "" {
		adminEmail = os.Getenv("GALLERY_JWT_ADMIN_EMAIL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var tokens *auth.Tokens
	if jwtSecret != "" {
		tokens = auth.NewTokens([]byte(jwtSecret), adminEmail)
	}

	if err := run(ctx, databaseURL, seedPath, tokens, tokenTTL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string, tokens *auth.Tokens, ttl time.Duration) error {
	seed, err := readSeed(seedPath)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	users, err := seedUsers(ctx, postgres.NewUserRepository(pool), seed.Users)
	if err != nil {
		return errors.Wrap(err, "seed users")
	}

	if err := seedArtworks(ctx, postgres.NewCatalogRepository(pool), seed.Artworks, users); err != nil {
		return errors.Wrap(err, "seed artworks")
	}

	if tokens == nil {
		slog.Info("no jwt secret given, skipping dev tokens")
		return nil
	}
	return printTokens(tokens, users, ttl)
}

func readSeed(path string) (*seedFile, error) {
	slog.Info("reading seed file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read seed file")
	}

	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, errors.Wrap(err, "parse seed JSON")
	}
	return &seed, nil
}

func seedUsers(ctx context.Context, repo *postgres.UserRepository, in []userJSON) (map[string]auth.User, error) {
	slog.Info("upserting users", slog.Int("count", len(in)))

	out := make(map[string]auth.User, len(in))
	for _, u := range in {
		role, err := auth.ParseRole(u.Role)
		if err != nil {
			return nil, errors.Wrapf(err, "user %s", u.Email)
		}
		user := auth.User{
			Name:   u.Name,
			Email:  u.Email,
			Role:   role,
			Active: !u.Inactive,
		}
		user.ID, err = repo.Upsert(ctx, user)
		if err != nil {
			return nil, err
		}
		out[user.Email] = user

		slog.Info("upserted user", slog.Int64("id", user.ID), slog.String("email", user.Email), slog.String("role", string(role)))
	}
	return out, nil
}

func seedArtworks(ctx context.Context, repo *postgres.CatalogRepository, in []artworkJSON, users map[string]auth.User) error {
	slog.Info("upserting artworks", slog.Int("count", len(in)))

	items := make([]catalog.Item, 0, len(in))
	for _, a := range in {
		seller, ok := users[a.Seller]
		if !ok {
			return errors.Errorf("artwork %d: unknown seller %q", a.ID, a.Seller)
		}
		status := catalog.Status(a.Status)
		switch status {
		case catalog.StatusPending, catalog.StatusApproved, catalog.StatusRejected:
		default:
			return errors.Errorf("artwork %d: unknown status %q", a.ID, a.Status)
		}
		items = append(items, catalog.Item{
			ID:       a.ID,
			SellerID: seller.ID,
			Title:    a.Title,
			Price:    a.Price,
			ImageURL: a.ImageURL,
			Status:   status,
		})
	}
	return repo.Upsert(ctx, items)
}

func printTokens(tokens *auth.Tokens, users map[string]auth.User, ttl time.Duration) error {
	for _, u := range users {
		raw, err := tokens.Issue(auth.Identity{UserID: u.ID, Role: u.Role, Email: u.Email}, ttl)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", u.Email)
		}
		fmt.Printf("%-8s %-24s %s\n", u.Role, u.Email, raw)
	}
	return nil
}
