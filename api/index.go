// Package handler is the entry point for Vercel serverless deployments.
// The full router is built once per instance and reused across invocations.
package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/lumail/lumail/internal/api"
	"github.com/lumail/lumail/internal/auth"
	"github.com/lumail/lumail/internal/config"
	"github.com/lumail/lumail/internal/domain"
	"github.com/lumail/lumail/internal/mailing"
)

var handler http.Handler

func init() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var sender mailing.Sender
	provider := domain.ESPType(cfg.Provider)
	switch provider {
	case domain.ESPResend:
		sender = mailing.NewResendSender(cfg.Resend.APIKey, cfg.Resend.Timeout())
	case domain.ESPSES:
		sender, err = mailing.NewSESSender(context.Background(), cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region, cfg.SES.Timeout())
		if err != nil {
			log.Fatalf("Failed to initialize SES client: %v", err)
		}
	default:
		provider = domain.ESPLog
		sender = mailing.NewLogSender()
	}

	codec := mailing.NewTokenCodec(cfg.Unsubscribe.SigningSecret, cfg.Unsubscribe.TTL())

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	suppressions := mailing.NewSuppressionStore(rdb)

	renderer := mailing.NewRenderer(cfg.Sending.AppBaseURL, cfg.Sending.FromName)
	bulk := mailing.NewBulkSender(sender, codec, renderer, cfg.Sending.AllowedDomain, cfg.Sending.FromName)
	bulk.SetSuppressor(suppressions)
	bulk.SetBatching(cfg.Sending.BatchSize, cfg.Sending.BatchPause())
	bulk.SetErrorReportCap(cfg.Sending.ErrorReportCap)

	handlers := api.NewHandlers(bulk, codec, suppressions, provider)
	handlers.SetDefaultFromEmail(cfg.Sending.DefaultFromEmail)
	handler = api.SetupRoutes(handlers, auth.NewManager(&cfg.Auth))

	log.Println("Server initialized for Vercel")
}

// Handler is the entry point for Vercel serverless functions
// Vercel will call this function for all requests
func Handler(w http.ResponseWriter, r *http.Request) {
	handler.ServeHTTP(w, r)
}
