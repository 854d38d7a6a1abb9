// Command prophet fetches a fleet's PX4 flight logs from an object store or
// local directory, extracts per-log safety metrics under a bounded worker
// pool, aggregates them per vehicle, ranks the fleet by maintenance risk,
// and writes the report artifacts. With api-enabled it then serves the
// analytics over HTTP until interrupted.
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
)

func main() {
	var configPath string
	var showVersion bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/prophet/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.Parse()

	if showVersion {
		fmt.Printf("Prophet - Fleet Telemetry Analyzer\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Commit:     %s\n", commit)
		fmt.Printf("  Built:      %s\n", buildTime)
		fmt.Printf("  Go version: %s\n", goVersion)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	defaultDBPath := filepath.Join(home, ".local", "share", "prophet", "prophet.duckdb")

	v := viper.New()
	v.SetEnvPrefix("PROPHET")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("source", defaultSource)
	v.SetDefault("s3-use-ssl", true)
	v.SetDefault("db-path", defaultDBPath)
	v.SetDefault("query-timeout", defaultQueryTimeout)
	v.SetDefault("workers", 0)
	v.SetDefault("prefetch", 0)
	v.SetDefault("resume", false)
	v.SetDefault("max-attempts", defaultMaxAttempts)
	v.SetDefault("retry-base", defaultRetryBase)
	v.SetDefault("output-dir", defaultOutputDir)
	v.SetDefault("api-enabled", false)
	v.SetDefault("api-port", defaultAPIPort)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "prophet", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	switch cfg.Source {
	case "s3":
		if strings.TrimSpace(cfg.S3Bucket) == "" {
			return cfg, fmt.Errorf("s3 source requires s3-bucket")
		}
	case "fs":
		if strings.TrimSpace(cfg.FSDir) == "" {
			return cfg, fmt.Errorf("fs source requires fs-dir")
		}
	default:
		return cfg, fmt.Errorf("invalid source: %q (want s3 or fs)", cfg.Source)
	}
	if cfg.Workers < 0 {
		return cfg, fmt.Errorf("invalid workers: %d", cfg.Workers)
	}
	if cfg.Prefetch < 0 {
		return cfg, fmt.Errorf("invalid prefetch: %d", cfg.Prefetch)
	}
	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}

	// Expand ~ in paths
	for _, p := range []*string{&cfg.DBPath, &cfg.FSDir, &cfg.DeadList, &cfg.OutputDir} {
		if strings.HasPrefix(*p, "~/") {
			*p = filepath.Join(home, (*p)[2:])
		}
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}
