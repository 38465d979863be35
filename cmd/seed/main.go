// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev account (alice) already exists.
package main

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	accountdomain "tenant-identity-provider/internal/account/domain"
	accountrepo "tenant-identity-provider/internal/account/repository"
	"tenant-identity-provider/internal/config"
	"tenant-identity-provider/internal/db"
	"tenant-identity-provider/internal/security"
)

const (
	devUsername = "alice"
	devPassword = "Password12345"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	accounts := accountrepo.NewPostgresRepository(conn)

	existing, err := accounts.GetByUsername(ctx, devUsername)
	if err != nil {
		log.Fatalf("lookup %s: %v", devUsername, err)
	}
	if existing != nil {
		log.Printf("dev account %q already exists; nothing to do", devUsername)
		return
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	hash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash: %v", err)
	}

	now := time.Now().UTC()
	acct := &accountdomain.Account{
		ID:           uuid.New().String(),
		Username:     devUsername,
		PasswordHash: hash,
		Status:       accountdomain.AccountStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := accounts.Create(ctx, acct); err != nil {
		log.Fatalf("create %s: %v", devUsername, err)
	}
	log.Printf("created dev account %q (password %q)", devUsername, devPassword)

	// A second account pre-linked to the demo external provider, so the
	// external sign-in path can be exercised without registering first.
	linked := &accountdomain.Account{
		ID:        uuid.New().String(),
		Username:  "bob-external",
		Status:    accountdomain.AccountStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	loginRow := &accountdomain.ExternalLogin{
		ID:          uuid.New().String(),
		AccountID:   linked.ID,
		Provider:    "demoidsrv",
		ProviderKey: "dev-subject-001",
		CreatedAt:   now,
	}
	if err := accounts.CreateWithLogin(ctx, linked, loginRow); err != nil {
		log.Fatalf("create linked account: %v", err)
	}
	log.Printf("created external-only account %q linked to demoidsrv/dev-subject-001", linked.Username)
}
