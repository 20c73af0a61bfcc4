package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitcheckr/fitcheckr/api"
	"github.com/fitcheckr/fitcheckr/config"
	"github.com/fitcheckr/fitcheckr/relay"
	"github.com/fitcheckr/fitcheckr/store"
	"github.com/fitcheckr/fitcheckr/subscription"
	"github.com/fitcheckr/fitcheckr/utils"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	config.LoadConfig()
	logger := utils.NewLogger(config.AppEnv)
	zlog.Logger = logger
	if !config.EnvFileLoaded {
		logger.Info().Msg("no .env file found, using system environment variables")
	}

	if err := config.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	listStore, closeStore, err := openStore(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", config.StoreBackend).Msg("failed to open subscriber store")
	}
	defer closeStore()
	logger.Info().Str("store", listStore.Kind()).Msg("subscriber store ready")

	var mailer subscription.Mailer
	if m := utils.NewSendGridMailer(config.SendGridAPIKey, config.EmailFromName, config.EmailFromAddr); m != nil {
		mailer = m
	}
	subscriptions := subscription.NewService(listStore, config.SubscribersKey, mailer, logger)

	provider, err := relay.NewGeminiProvider(ctx, config.GeminiAPIKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create Gemini client")
	}
	defer provider.Close()

	server := api.NewServer(relay.New(provider, config.GeminiModel), subscriptions, logger, api.Options{
		AdminSecret:     config.AdminSecret,
		RelayTimeout:    config.RelayTimeout,
		AllowedOrigin:   config.AllowedOrigin,
		RateLimitPerMin: config.RateLimitPerMin,
		TrustProxy:      config.TrustProxy,
	})

	httpServer := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      config.RelayTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", config.Port).
			Str("store", listStore.Kind()).
			Str("model", config.GeminiModel).
			Msg("server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.RelayTimeout+5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// openStore builds the subscriber store selected by STORE_BACKEND.
func openStore(ctx context.Context, logger zerolog.Logger) (store.ListStore, func(), error) {
	switch config.StoreBackend {
	case config.StoreMongo:
		client, err := utils.ConnectMongo(ctx, config.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("failed to disconnect from MongoDB")
			}
		}
		return store.NewMongoStore(utils.GetCollection(client, config.DBName, "kv")), closeFn, nil
	case config.StoreS3:
		objects, err := utils.InitS3(ctx, config.AWSRegion, config.AWSBucketName)
		if err != nil {
			return nil, nil, err
		}
		return store.NewBlobStore(objects), func() {}, nil
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory subscriber store; data is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", config.StoreBackend)
	}
}
