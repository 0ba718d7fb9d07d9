package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters"
	"github.com/ruslano69/tdtp-featurestore/pkg/brokers"
	"github.com/ruslano69/tdtp-featurestore/pkg/ingest"
	"github.com/ruslano69/tdtp-featurestore/pkg/resultlog"
	"github.com/ruslano69/tdtp-featurestore/pkg/retriever"
	"github.com/ruslano69/tdtp-featurestore/pkg/sink"
	"github.com/ruslano69/tdtp-featurestore/pkg/staging"
	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

// prepareAll регистрирует все наборы конфигурации и синхронизирует их таблицы
func prepareAll(ctx context.Context, s *sink.Sink, config *Config) error {
	for _, spec := range config.FeatureSets {
		if err := s.PrepareWrite(ctx, spec); err != nil {
			return err
		}
	}
	return nil
}

func runPrepare(ctx context.Context, config *Config) error {
	s, err := sink.Open(ctx, config.Store, templater.MustTemplateSet())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := prepareAll(ctx, s, config); err != nil {
		return err
	}
	log.Info().Int("feature_sets", len(config.FeatureSets)).Msg("feature set tables are up to date")
	return nil
}

func runRetrieve(ctx context.Context, config *Config, requestFile string, dev bool) error {
	req, err := config.LoadRequest(requestFile)
	if err != nil {
		return err
	}

	db, dialect, err := adapters.Open(ctx, config.Store.Config)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := newStagingStore(ctx, config)
	if err != nil {
		return err
	}

	r, err := retriever.New(db, templater.New(dialect, templater.MustTemplateSet()), store, config.Retrieval)
	if err != nil {
		return err
	}

	publisher, closePublisher, err := newPublisher(config, dev)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer closePublisher()
		r.WithPublisher(publisher)
	}

	res, err := r.GetHistoricalFeatures(ctx, req)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(map[string]any{
		"correlation_id":   res.CorrelationID,
		"output_file_uris": res.OutputFileURIs,
		"output_format":    res.OutputFormat,
		"rows":             res.Rows,
		"checksum":         res.Checksum,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

func runIngest(ctx context.Context, config *Config) error {
	if config.Broker == nil {
		return fmt.Errorf("broker section is required for ingest")
	}

	s, err := sink.Open(ctx, config.Store, templater.MustTemplateSet())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := prepareAll(ctx, s, config); err != nil {
		return err
	}
	writer, err := s.Writer(config.JobName)
	if err != nil {
		return err
	}

	source, err := brokers.New(*config.Broker)
	if err != nil {
		return err
	}
	if err := source.Connect(ctx); err != nil {
		return err
	}
	defer source.Close()

	in, err := ingest.New(source, writer, config.Ingest)
	if err != nil {
		return err
	}
	return in.Run(ctx)
}

func newStagingStore(ctx context.Context, config *Config) (*staging.Store, error) {
	if config.S3 == nil {
		return staging.NewStore(nil), nil
	}
	client, err := staging.NewS3Client(ctx, *config.S3)
	if err != nil {
		return nil, err
	}
	return staging.NewStore(client), nil
}

// newPublisher создает публикацию состояний заданий. В dev-режиме
// используется miniredis в процессе.
func newPublisher(config *Config, dev bool) (*resultlog.RedisPublisher, func(), error) {
	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, nil, fmt.Errorf("dev: miniredis: %w", err)
		}
		cfg := resultlog.Config{Address: mr.Addr(), TTL: 3600}
		if config.ResultLog != nil {
			cfg.Prefix = config.ResultLog.Prefix
		}
		pub := resultlog.NewRedisPublisher(cfg)
		log.Info().Str("redis", mr.Addr()).Msg("dev: in-process miniredis started")
		return pub, func() {
			pub.Close()
			mr.Close()
		}, nil
	}

	if config.ResultLog == nil {
		return nil, nil, nil
	}
	pub := resultlog.NewRedisPublisher(*config.ResultLog)
	return pub, func() { pub.Close() }, nil
}
