package main

import (
	"time"

	"github.com/rotormetrics/prophet/internal/pipeline"
)

const (
	defaultSource       = "s3"
	defaultMaxAttempts  = pipeline.DefaultMaxAttempts
	defaultRetryBase    = pipeline.DefaultRetryBase
	defaultOutputDir    = "output"
	defaultQueryTimeout = 30 * time.Second
	defaultBindHost     = "127.0.0.1"
	defaultAPIPort      = 3000
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	Source string `mapstructure:"source"` // "s3" or "fs"

	S3Endpoint  string `mapstructure:"s3-endpoint"`
	S3Region    string `mapstructure:"s3-region"`
	S3AccessKey string `mapstructure:"s3-access-key"`
	S3SecretKey string `mapstructure:"s3-secret-key"`
	S3UseSSL    bool   `mapstructure:"s3-use-ssl"`
	S3Bucket    string `mapstructure:"s3-bucket"`
	S3Prefix    string `mapstructure:"s3-prefix"`

	FSDir string `mapstructure:"fs-dir"`

	Vehicles string `mapstructure:"vehicles"`  // comma-separated vehicle IDs, empty = all
	DeadList string `mapstructure:"dead-list"` // YAML file of vehicles no longer in service

	DBPath       string        `mapstructure:"db-path"`
	QueryTimeout time.Duration `mapstructure:"query-timeout"`

	Workers     int           `mapstructure:"workers"`  // 0 = available parallelism
	Prefetch    int           `mapstructure:"prefetch"` // max logs per run, 0 = unlimited
	Resume      bool          `mapstructure:"resume"`
	MaxAttempts int           `mapstructure:"max-attempts"`
	RetryBase   time.Duration `mapstructure:"retry-base"`

	OutputDir  string `mapstructure:"output-dir"`
	PublishURL string `mapstructure:"publish-url"` // s3://bucket/prefix for run artifacts, empty = local only

	APIEnabled bool   `mapstructure:"api-enabled"`
	APIPort    int    `mapstructure:"api-port"`
	APIAddr    string `mapstructure:"api-addr"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
