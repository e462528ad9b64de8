// seed inserts the development professionals for local testing.
// Idempotent: accounts whose email already exists are left untouched.
package main

import (
	"context"
	"log"

	"nfc4care/backend/internal/config"
	"nfc4care/backend/internal/db"
	identityservice "nfc4care/backend/internal/identity/service"
	profrepo "nfc4care/backend/internal/professional/repository"
	"nfc4care/backend/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("seed: refusing to create development accounts when APP_ENV=production")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	// Seeding never issues sessions, so no session authority is wired.
	auth := identityservice.NewAuthService(profrepo.NewPostgresRepository(conn), nil,
		security.NewHasher(cfg.BcryptCost), nil, nil)

	ctx := context.Background()
	for _, acc := range []identityservice.Account{identityservice.DefaultDoctor, identityservice.DefaultAdmin} {
		created, err := auth.EnsureProfessional(ctx, acc)
		if err != nil {
			log.Fatalf("seed %s: %v", acc.Email, err)
		}
		if created {
			log.Printf("Created %s (%s) with password %q", acc.Email, acc.Role, acc.Password)
		} else {
			log.Printf("%s already exists. Skipping.", acc.Email)
		}
	}
}
