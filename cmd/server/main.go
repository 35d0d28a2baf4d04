package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumail/lumail/internal/api"
	"github.com/lumail/lumail/internal/auth"
	"github.com/lumail/lumail/internal/config"
	"github.com/lumail/lumail/internal/domain"
	"github.com/lumail/lumail/internal/mailing"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

// buildSender picks the delivery provider from configuration.
func buildSender(ctx context.Context, cfg *config.Config) (mailing.Sender, domain.ESPType, error) {
	switch domain.ESPType(cfg.Provider) {
	case domain.ESPResend:
		if cfg.Resend.APIKey == "" {
			return nil, "", fmt.Errorf("provider is resend but resend.api_key is empty")
		}
		return mailing.NewResendSender(cfg.Resend.APIKey, cfg.Resend.Timeout()), domain.ESPResend, nil
	case domain.ESPSES:
		sender, err := mailing.NewSESSender(ctx, cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region, cfg.SES.Timeout())
		if err != nil {
			return nil, "", fmt.Errorf("initialize SES client: %w", err)
		}
		return sender, domain.ESPSES, nil
	case domain.ESPLog:
		return mailing.NewLogSender(), domain.ESPLog, nil
	default:
		return nil, "", fmt.Errorf("unknown provider %q (want resend, ses, or log)", cfg.Provider)
	}
}

func main() {
	// Load configuration
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Pre-flight check: verify the target port is available
	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Delivery provider
	sender, provider, err := buildSender(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize delivery provider: %v", err)
	}
	log.Printf("Delivery provider: %s", provider)

	// Unsubscribe token codec
	if cfg.Unsubscribe.SigningSecret == "" {
		log.Fatal("unsubscribe.signing_secret is required")
	}
	codec := mailing.NewTokenCodec(cfg.Unsubscribe.SigningSecret, cfg.Unsubscribe.TTL())

	// Redis-backed suppression store
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Sends fail open without the store, so a dead Redis is a warning
		// rather than a startup failure.
		log.Printf("WARNING: Redis unreachable at %s: %v (suppression checks will be skipped)", cfg.Redis.Addr, err)
	}
	suppressions := mailing.NewSuppressionStore(rdb)

	// Bulk send orchestrator
	renderer := mailing.NewRenderer(cfg.Sending.AppBaseURL, cfg.Sending.FromName)
	bulk := mailing.NewBulkSender(sender, codec, renderer, cfg.Sending.AllowedDomain, cfg.Sending.FromName)
	bulk.SetSuppressor(suppressions)
	bulk.SetBatching(cfg.Sending.BatchSize, cfg.Sending.BatchPause())
	bulk.SetErrorReportCap(cfg.Sending.ErrorReportCap)

	// Session verification for the dashboard API
	authManager := auth.NewManager(&cfg.Auth)
	if authManager.Enabled() {
		log.Println("Bearer auth enabled for /api routes")
	} else {
		log.Println("WARNING: bearer auth disabled, /api routes are open")
	}

	handlers := api.NewHandlers(bulk, codec, suppressions, provider)
	handlers.SetDefaultFromEmail(cfg.Sending.DefaultFromEmail)
	server := api.NewServer(cfg.Server, handlers, authManager)

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Printf("Redis close error: %v", err)
	}

	log.Println("Server stopped")
}
