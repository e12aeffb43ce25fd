package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/facturia/facturia/internal/app"
	"github.com/facturia/facturia/internal/extractor"
	"github.com/facturia/facturia/internal/platform/cache"
	"github.com/facturia/facturia/internal/sequencer"
)

// newGenerator builds the language model backend selected by
// EXTRACTOR_PROVIDER. It returns nil when extraction is disabled.
func newGenerator(ctx context.Context, cfg *app.Config) (extractor.Generator, error) {
	switch cfg.ExtractorProvider {
	case app.ExtractorGemini:
		return extractor.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case app.ExtractorOpenAI:
		return extractor.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	case app.ExtractorNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown extractor provider %q", cfg.ExtractorProvider)
}

func newExtractor(ctx context.Context, cfg *app.Config, logger zerolog.Logger) (*extractor.Extractor, error) {
	gen, err := newGenerator(ctx, cfg)
	if err != nil || gen == nil {
		return nil, err
	}
	return extractor.New(gen,
		extractor.WithTimeout(cfg.ExtractorTimeout),
		extractor.WithMaxConcurrency(cfg.ExtractorMaxConcurrency),
		extractor.WithLocation(cfg.Location()),
		extractor.WithLogger(logger),
	), nil
}

// newLocker returns the sequence locker for SEQUENCER_BACKEND, plus the redis
// client when one was opened.
func newLocker(ctx context.Context, cfg *app.Config, logger zerolog.Logger) (sequencer.Locker, *redis.Client, error) {
	if cfg.SequencerBackend != app.SequencerRedis {
		logger.Info().Msg("using in-process sequence locks; run a single instance")
		return sequencer.NewMemoryLocker(), nil, nil
	}
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	return sequencer.NewRedisLocker(client, logger, sequencer.WithLeaseTTL(cfg.SequenceLockTTL)), client, nil
}
