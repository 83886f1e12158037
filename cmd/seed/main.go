// seed inserts development accounts for local testing.
// Idempotent: accounts that already exist are left alone.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"identity-portal/internal/account/domain"
	"identity-portal/internal/config"
	"identity-portal/internal/db"
	"identity-portal/internal/security"
	"identity-portal/internal/store"
)

const (
	devUserEmail   = "dev@example.com"
	devPassword    = "password123"
	devUserID      = "dev-user-001"
	twoFactorEmail = "2fa@example.com"
	twoFactorID    = "dev-user-002"
)

func main() {
	withTwoFactor := flag.Bool("two-factor", true, "also seed an account with two-factor sign-in enabled")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.StoreBackend != config.StorePostgres {
		log.Fatal("seed: STORE_BACKEND must be postgres; the memory store starts empty on every run")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	st := store.NewPostgres(conn)
	ctx := context.Background()

	hasher, err := security.NewHasher(security.HashParams{
		Time:        cfg.Argon2Time,
		MemoryKiB:   cfg.Argon2MemoryKiB,
		Parallelism: cfg.Argon2Parallelism,
	})
	if err != nil {
		log.Fatalf("hasher: %v", err)
	}
	passwordHash, err := hasher.Hash(devPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()
	accounts := []*domain.Account{{
		ID:              devUserID,
		Email:           devUserEmail,
		Name:            "Dev User",
		PasswordHash:    passwordHash,
		Methods:         []domain.Method{domain.MethodCredentials},
		EmailVerifiedAt: &now,
		Role:            domain.RoleAdmin,
		CreatedAt:       now,
		UpdatedAt:       now,
	}}
	if *withTwoFactor {
		accounts = append(accounts, &domain.Account{
			ID:               twoFactorID,
			Email:            twoFactorEmail,
			Name:             "Two Factor User",
			PasswordHash:     passwordHash,
			Methods:          []domain.Method{domain.MethodCredentials},
			EmailVerifiedAt:  &now,
			TwoFactorEnabled: true,
			Role:             domain.RoleUser,
			CreatedAt:        now,
			UpdatedAt:        now,
		})
	}

	for _, a := range accounts {
		existing, err := st.Accounts().GetByEmail(ctx, a.Email)
		if err != nil {
			log.Fatalf("seed check %s: %v", a.Email, err)
		}
		if existing != nil {
			log.Printf("%s already exists. Skipping.", a.Email)
			continue
		}
		if err := st.Accounts().Create(ctx, a); err != nil {
			log.Fatalf("create %s: %v", a.Email, err)
		}
		fmt.Printf("Seeded login: %s / %s\n", a.Email, devPassword)
	}
}
