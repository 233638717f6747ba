package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/TraxTaz/FontysInfraLab/internal/config"
	internalhttp "github.com/TraxTaz/FontysInfraLab/internal/http"
	"github.com/TraxTaz/FontysInfraLab/internal/identity"
	"github.com/TraxTaz/FontysInfraLab/internal/repository"
	"github.com/TraxTaz/FontysInfraLab/internal/scripts"
	"github.com/TraxTaz/FontysInfraLab/internal/tunnel"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load: %v", err)
	}
	cfg := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatal("SECRET_KEY is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := tunnel.NewManager(tunnel.Config{
		SSHAddr:     cfg.SSHAddr,
		SSHUser:     cfg.SSHUser,
		SSHPassword: cfg.SSHPassword,
		KnownHosts:  cfg.SSHKnownHosts,
		DialTimeout: cfg.SSHDialTimeout,
		DatabaseURL: cfg.DatabaseURL,
	})
	defer manager.Close()

	var cache *redis.Client
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := cache.Ping(pingCtx).Err(); err != nil {
			cancel()
			log.Fatalf("redis connection failed: %v", err)
		}
		cancel()
		defer cache.Close()
	}

	store := repository.NewStore(manager, cache, cfg.PrincipalCacheTTL)
	provider := identity.NewClient(identity.Config{
		BaseURL:      cfg.IdentityBaseURL,
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.FrontendURL,
		Timeout:      cfg.IdentityTimeout,
	})
	runner := scripts.NewRunner(manager, cfg.ScriptDir)
	server := internalhttp.NewServer(cfg, store, provider, runner)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("vpn portal listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
