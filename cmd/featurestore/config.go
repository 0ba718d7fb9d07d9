package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/tdtp-featurestore/pkg/adapters"
	"github.com/ruslano69/tdtp-featurestore/pkg/brokers"
	"github.com/ruslano69/tdtp-featurestore/pkg/core/featureset"
	"github.com/ruslano69/tdtp-featurestore/pkg/ingest"
	"github.com/ruslano69/tdtp-featurestore/pkg/resultlog"
	"github.com/ruslano69/tdtp-featurestore/pkg/retriever"
	"github.com/ruslano69/tdtp-featurestore/pkg/retry"
	"github.com/ruslano69/tdtp-featurestore/pkg/sink"
	"github.com/ruslano69/tdtp-featurestore/pkg/staging"
	"github.com/ruslano69/tdtp-featurestore/pkg/templater"
)

// Config represents the main configuration structure
type Config struct {
	Store       sink.Config       `yaml:"store"`
	JobName     string            `yaml:"job_name"`
	FeatureSets []featureset.Spec `yaml:"feature_sets"`
	Retrieval   retriever.Config  `yaml:"retrieval"`
	S3          *staging.S3Config `yaml:"s3,omitempty"`
	ResultLog   *resultlog.Config `yaml:"result_log,omitempty"`
	Broker      *brokers.Config   `yaml:"broker,omitempty"`
	Ingest      ingest.Config     `yaml:"ingest,omitempty"`
}

// RequestFile - запрос выборки в YAML. Наборы фич указываются ссылкой
// project/name на определения из конфигурации.
type RequestFile struct {
	CorrelationID string                 `yaml:"correlation_id"`
	EntitySource  retriever.EntitySource `yaml:"entity_source"`
	FeatureSets   []struct {
		Ref      string   `yaml:"ref"`
		Features []string `yaml:"features,omitempty"`
	} `yaml:"feature_sets"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", filename, err)
	}
	return &config, nil
}

// SetDefaults заполняет необязательные поля
func (c *Config) SetDefaults() {
	if c.JobName == "" {
		c.JobName = "featurestore"
	}
	if c.Store.BatchSize == 0 {
		c.Store.BatchSize = 100
	}
	if c.Retrieval.StagingLocation == "" {
		c.Retrieval.StagingLocation = "staging"
	}
	if c.ResultLog != nil && c.ResultLog.TTL == 0 {
		c.ResultLog.TTL = 86400
	}
}

// Validate проверяет конфигурацию
func (c *Config) Validate() error {
	if c.Store.URL == "" {
		return fmt.Errorf("store.url is required")
	}
	if _, err := adapters.ForDriver(c.Store.Driver); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.FeatureSets))
	for _, spec := range c.FeatureSets {
		if err := spec.Validate(); err != nil {
			return err
		}
		if seen[spec.Ref()] {
			return fmt.Errorf("feature set %s is defined twice", spec.Ref())
		}
		seen[spec.Ref()] = true
	}

	return c.Retrieval.Validate()
}

// Spec возвращает определение набора по ссылке project/name
func (c *Config) Spec(ref string) (featureset.Spec, bool) {
	for _, spec := range c.FeatureSets {
		if spec.Ref() == ref {
			return spec, true
		}
	}
	return featureset.Spec{}, false
}

// LoadRequest читает запрос выборки и разрешает ссылки на наборы фич
func (c *Config) LoadRequest(filename string) (retriever.Request, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return retriever.Request{}, fmt.Errorf("failed to read request file: %w", err)
	}

	var rf RequestFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return retriever.Request{}, fmt.Errorf("failed to parse request file: %w", err)
	}

	req := retriever.Request{CorrelationID: rf.CorrelationID, EntitySource: rf.EntitySource}
	for _, fs := range rf.FeatureSets {
		spec, ok := c.Spec(fs.Ref)
		if !ok {
			return retriever.Request{}, fmt.Errorf("feature set %s is not defined in config", fs.Ref)
		}
		req.FeatureSets = append(req.FeatureSets, templater.FeatureSetRequest{Spec: spec, Features: fs.Features})
	}
	return req, nil
}

// CreateSampleConfig creates sample configuration for the database type
func CreateSampleConfig(driver string) *Config {
	config := &Config{
		Store: sink.Config{
			Config:    adapters.Config{Driver: driver, MaxConns: 8},
			BatchSize: 100,
		},
		JobName: "featurestore",
		FeatureSets: []featureset.Spec{{
			Project:  "default",
			Name:     "driver_stats",
			Entities: []featureset.EntitySpec{{Name: "driver_id", ValueType: featureset.TypeInt64}},
			Features: []featureset.FeatureSpec{
				{Name: "conv_rate", ValueType: featureset.TypeFloat},
				{Name: "trips_today", ValueType: featureset.TypeInt32},
			},
			MaxAge: 24 * time.Hour,
		}},
		Retrieval: retriever.Config{
			StagingLocation: "staging",
			MaxParallelism:  4,
		},
		Ingest: ingest.Config{
			BatchSize: 100,
			Retry:     retry.Enable(5, time.Second),
		},
	}

	switch driver {
	case "pgx", "postgres":
		config.Store.URL = "postgresql://localhost:5432/feast"
		config.Store.Username = "feast"
		config.Store.Password = "password"
		config.Retrieval.ServerSideExport = true
	case "mysql":
		config.Store.URL = "mysql://localhost:3306/feast"
		config.Store.Username = "root"
		config.Store.Password = "password"
	case "sqlserver", "mssql":
		config.Store.URL = "sqlserver://localhost:1433;databaseName=feast"
		config.Store.Username = "sa"
		config.Store.Password = "YourPassword123"
	default:
		config.Store.URL = "featurestore.db"
	}
	return config
}

// SaveConfig saves configuration to YAML file
func SaveConfig(filename string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
