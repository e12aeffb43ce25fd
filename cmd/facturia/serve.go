package main

import (
	"context"

	"github.com/facturia/facturia/internal/app"
	"github.com/facturia/facturia/internal/authority"
	"github.com/facturia/facturia/internal/credentials"
	"github.com/facturia/facturia/internal/observability"
	"github.com/facturia/facturia/internal/platform/cache"
	"github.com/facturia/facturia/internal/sequencer"
	"github.com/facturia/facturia/internal/submission"
)

func runServe(ctx context.Context) error {
	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)
	metrics := observability.NewMetrics()

	locker, redisClient, err := newLocker(ctx, cfg, logger)
	if err != nil {
		return err
	}
	var readiness []app.ReadinessCheck
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("redis close")
			}
		}()
		readiness = append(readiness, app.ReadinessCheck{Name: "redis", Probe: cache.Probe(redisClient)})
	}

	authorityClient := authority.NewClient(cfg.AuthorityURL,
		authority.WithTimeout(cfg.AuthorityTimeout),
		authority.WithLogger(logger),
	)
	readiness = append(readiness, app.ReadinessCheck{Name: "authority", Probe: authorityClient.Ping})

	service := submission.NewService(submission.Config{
		Dialer:           authorityClient,
		Sequencer:        sequencer.New(locker, sequencer.NewMetrics(metrics.Registerer()), logger),
		Materializer:     credentials.NewMaterializer(cfg.CredentialsDir, logger),
		Location:         cfg.Location(),
		AuthorityTimeout: cfg.AuthorityTimeout,
		Metrics:          submission.NewMetrics(metrics.Registerer()),
		Logger:           logger,
	})

	var understanding submission.Extractor
	ext, err := newExtractor(ctx, cfg, logger)
	switch {
	case err != nil:
		logger.Warn().Err(err).Str("provider", cfg.ExtractorProvider).Msg("extraction disabled")
	case ext != nil:
		understanding = ext
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SubmissionHandler: submission.NewHandler(service, understanding, cfg.Location(), logger),
		Readiness:         readiness,
		Metrics:           metrics,
	})

	logger.Info().
		Str("env", cfg.AppEnv).
		Str("sequencer", cfg.SequencerBackend).
		Str("extractor", cfg.ExtractorProvider).
		Msg("facturia configured")
	return app.Serve(ctx, app.NewServer(cfg, router), logger)
}
