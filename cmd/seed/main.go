// Command seed bootstraps the initial admin user so registration, which is
// itself admin-only, has a starting point. It talks to the store directly
// and calls the password hasher without going through the HTTP layer.
package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/example/authgate/internal/auth"
	"github.com/example/authgate/internal/config"
	"github.com/example/authgate/internal/store"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if cfg.AdminPassword == "" {
		log.Fatal("ADMIN_PASSWORD must be set to seed the admin user")
	}

	var dsn string
	if cfg.DBAdapter == "postgres" {
		dsn, err = cfg.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}
	}
	db, err := store.Open(cfg.DBAdapter, cfg.SQLiteFile, dsn)
	if err != nil {
		log.Fatalf("store init: %v", err)
	}

	if _, err := db.FindUserByUsername(cfg.AdminUsername); err == nil {
		fmt.Printf("Admin user %q already exists, nothing to do\n", cfg.AdminUsername)
		return
	} else if !errors.Is(err, auth.ErrNotFound) {
		log.Fatalf("looking up admin user: %v", err)
	}

	hasher := auth.NewPasswordHasher(auth.ScryptParams{N: cfg.ScryptN, R: cfg.ScryptR, P: cfg.ScryptP})
	hash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("hashing admin password: %v", err)
	}

	user, err := db.InsertUser(&auth.User{
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		Active:       true,
	})
	if err != nil {
		log.Fatalf("creating admin user: %v", err)
	}
	fmt.Printf("Created admin user %q (id %d)\n", user.Username, user.ID)
}
