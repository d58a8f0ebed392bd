package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/authgate/internal/auth"
	cfg "github.com/example/authgate/internal/config"
	"github.com/example/authgate/internal/store"
)

// App wires the auth core to the HTTP layer.
type App struct {
	Store              auth.Store
	Auth               *auth.Service
	RateLimitPerMinute int
	rateLimiter        *RateLimiter
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

func openStore(c *cfg.Config) (auth.Store, error) {
	var dsn string
	if c.DBAdapter == "postgres" {
		var err error
		dsn, err = c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres config error: %w", err)
		}

		// Apply migrations before connecting
		log.Println("Applying database migrations...")
		if err := ApplyMigrations("./migrations", dsn); err != nil {
			log.Printf("migrations warning: %v", err)
		} else {
			log.Println("Migrations applied successfully")
		}
	}
	if c.DBAdapter == "memory" {
		log.Println("Using in-memory store (not recommended for production)")
	}
	s, err := store.Open(c.DBAdapter, c.SQLiteFile, dsn)
	if err != nil {
		return nil, err
	}
	if c.DBAdapter == "postgres" {
		log.Println("Connected to PostgreSQL database")
	}
	return s, nil
}

func newAuthService(c *cfg.Config, store auth.Store) *auth.Service {
	passwords := auth.NewPasswordHasher(auth.ScryptParams{N: c.ScryptN, R: c.ScryptR, P: c.ScryptP})
	keys := auth.NewKeyMaker(c.APIKeyTag)
	tokens := auth.NewTokenManager([]byte(c.JwtSecret), c.AccessTokenTTL, c.RefreshTokenTTL)
	return auth.NewService(store, passwords, keys, tokens)
}

func newRouter(app *App) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(SecurityHeaders)
	r.Use(RequestID)
	r.Use(app.Logging)
	r.Use(app.CORS)

	// Health check endpoints (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(200)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if p, ok := app.Store.(interface{ Ping() bool }); ok {
			if !p.Ping() {
				w.WriteHeader(503)
				w.Write([]byte(`{"ready":false}`))
				return
			}
		}
		w.WriteHeader(200)
		w.Write([]byte(`{"ready":true}`))
	}).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()

	// Credential-presenting endpoints: rate-limited, no session required
	public := v1.NewRoute().Subrouter()
	public.Use(app.RateLimit)
	public.HandleFunc("/auth/login", app.HandleLogin).Methods("POST")
	public.HandleFunc("/auth/refresh", app.HandleRefresh).Methods("POST")
	public.HandleFunc("/auth/validate", app.HandleTokenValidate).Methods("GET")

	// Session endpoints: JWT required
	session := v1.NewRoute().Subrouter()
	session.Use(app.JWTAuth)
	session.HandleFunc("/users/me", app.HandleMe).Methods("GET")
	session.HandleFunc("/apikeys", app.HandleCreateAPIKey).Methods("POST")
	session.HandleFunc("/apikeys", app.HandleListAPIKeys).Methods("GET")
	session.HandleFunc("/apikeys/{id}/revoke", app.HandleRevokeAPIKey).Methods("POST")
	session.HandleFunc("/apikeys/{id}", app.HandleDeleteAPIKey).Methods("DELETE")

	// Admin endpoints: registration is admin-initiated
	admin := v1.NewRoute().Subrouter()
	admin.Use(app.JWTAuth, app.RequireAdmin)
	admin.HandleFunc("/auth/register", app.HandleRegister).Methods("POST")

	// Programmatic access: API key required
	machine := v1.NewRoute().Subrouter()
	machine.Use(app.APIKeyAuth)
	machine.HandleFunc("/whoami", app.HandleWhoAmI).Methods("GET")

	return r
}

func main() {
	c, err := cfg.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	st, err := openStore(c)
	if err != nil {
		log.Fatalf("store init: %v", err)
	}

	app := &App{
		Store:              st,
		Auth:               newAuthService(c, st),
		RateLimitPerMinute: c.RateLimitPerMinute,
	}

	srv := &http.Server{Handler: newRouter(app), Addr: ":" + c.Port, ReadTimeout: 5 * time.Second, WriteTimeout: 10 * time.Second}

	go func() {
		fmt.Println("Starting authgate server on", c.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closer, ok := app.Store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown failed:%+v", err)
	}
	fmt.Println("Server exited properly")
}
